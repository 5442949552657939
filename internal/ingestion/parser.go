package ingestion

import (
	"fmt"
	"strings"

	"rewardengine/internal/event"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// subjectTypes maps the two subject tokens after "reward." to an event type.
// Anything after them (version, pool, account) only routes the message.
var subjectTypes = map[string]event.EventType{
	"shares.minted":      event.EventTypeSharesMinted,
	"shares.burned":      event.EventTypeSharesBurned,
	"shares.transferred": event.EventTypeSharesTransferred,
	"staking.deposited":  event.EventTypeStakeDeposited,
	"staking.withdrawn":  event.EventTypeStakeWithdrawn,
	"vesting.allocated":  event.EventTypeVestingAllocationSet,
	"oracle.balance":     event.EventTypeFundBalanceReported,
	"oracle.rate":        event.EventTypeConversionRateReported,
	"oracle.outage":      event.EventTypeOracleOutage,
	"claims.reward":      event.EventTypeRewardClaimRequested,
	"claims.staking":     event.EventTypeStakingClaimRequested,
	"claims.vesting":     event.EventTypeVestingClaimRequested,
	"admin.cutover":      event.EventTypeLedgerCutover,
	"admin.pool_added":   event.EventTypePoolAdded,
}

// EventTypeForSubject resolves an inbound subject such as
// "reward.shares.minted.v2.stable" to its event type.
func EventTypeForSubject(subject string) (event.EventType, error) {
	parts := strings.SplitN(subject, ".", 4)
	if len(parts) < 3 || parts[0] != "reward" {
		return event.EventTypeUnknown, fmt.Errorf("unroutable subject: %s", subject)
	}
	et, ok := subjectTypes[parts[1]+"."+parts[2]]
	if !ok {
		return event.EventTypeUnknown, fmt.Errorf("unroutable subject: %s", subject)
	}
	return et, nil
}

// ParseRawEvent converts a RawEvent into a typed event.Event.
//
// Payloads are JSON with snake_case fields, amounts as decimal strings and
// accounts as UUIDs. The ingestion shell rejects malformed input here so the
// core never sees a missing amount or account.
func ParseRawEvent(raw RawEvent) (event.Event, error) {
	et, ok := event.ParseEventType(raw.EventType)
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", raw.EventType)
	}
	evt, err := event.Decode(et, raw.Data)
	if err != nil {
		return nil, err
	}
	if err := validate(evt); err != nil {
		return nil, fmt.Errorf("parse %s: %w", et, err)
	}
	return evt, nil
}

func validate(evt event.Event) error {
	switch e := evt.(type) {
	case *event.SharesMinted:
		return firstErr(need("tx_hash", e.Ref.TxHash), need("version", e.Version), need("pool", e.Pool),
			account("account", e.Account), amount("amount", e.Amount))
	case *event.SharesBurned:
		return firstErr(need("tx_hash", e.Ref.TxHash), need("version", e.Version), need("pool", e.Pool),
			account("account", e.Account), amount("amount", e.Amount))
	case *event.SharesTransferred:
		return firstErr(need("tx_hash", e.Ref.TxHash), need("version", e.Version), need("pool", e.Pool),
			account("from", e.From), account("to", e.To), amount("amount", e.Amount))
	case *event.StakeDeposited:
		return firstErr(need("tx_hash", e.Ref.TxHash), account("account", e.Account), amount("amount", e.Amount))
	case *event.StakeWithdrawn:
		return firstErr(need("tx_hash", e.Ref.TxHash), account("account", e.Account), amount("amount", e.Amount))
	case *event.VestingAllocationSet:
		return firstErr(account("change_id", e.ChangeID), account("account", e.Account), amount("total", e.Total))
	case *event.FundBalanceReported:
		return firstErr(need("pool", e.Pool), amount("balance", e.Balance))
	case *event.ConversionRateReported:
		if e.Rate.IsNil() {
			return fmt.Errorf("rate is required")
		}
		return need("pool", e.Pool)
	case *event.OracleOutage:
		return need("pool", e.Pool)
	case *event.RewardClaimRequested:
		return firstErr(account("claim_id", e.ClaimID), account("account", e.Account), optionalAmount(e.Amount))
	case *event.StakingClaimRequested:
		return firstErr(account("claim_id", e.ClaimID), account("account", e.Account), optionalAmount(e.Amount))
	case *event.VestingClaimRequested:
		return firstErr(account("claim_id", e.ClaimID), account("account", e.Account), optionalAmount(e.Amount))
	case *event.LedgerCutover:
		return firstErr(account("change_id", e.ChangeID), need("version", e.Version))
	case *event.PoolAdded:
		return firstErr(account("change_id", e.ChangeID), need("version", e.Version), need("pool", e.Pool))
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func need(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func account(field string, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func amount(field string, v sdkmath.Int) error {
	if v.IsNil() {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func optionalAmount(v *sdkmath.Int) error {
	if v != nil && v.IsNil() {
		return fmt.Errorf("amount is malformed")
	}
	return nil
}
