package coordinator

import (
	"context"
	"errors"
	"fmt"

	"rewardengine/internal/ledger"
	"rewardengine/internal/registry"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TokenTransfer moves reward tokens to a claimant. A call either transfers
// the whole amount or fails without effect.
type TokenTransfer interface {
	Payout(ctx context.Context, account uuid.UUID, amount sdkmath.Int) error
}

// NopTransfer accepts every payout. Used while replaying the event log, where
// transfers already happened.
type NopTransfer struct{}

func (NopTransfer) Payout(context.Context, uuid.UUID, sdkmath.Int) error { return nil }

type Kind string

const (
	KindReward  Kind = "reward"
	KindStaking Kind = "staking"
	KindVesting Kind = "vesting"
)

// Receipt is a committed, paid claim.
type Receipt struct {
	Kind    Kind           `json:"kind"`
	Program ledger.Program `json:"program"`
	ledger.ClaimResult
}

type Config struct {
	Registry *registry.Registry
	Staking  *ledger.StakingLedger // optional
	Vesting  *ledger.VestingLedger // optional
	Transfer TokenTransfer
	Logger   zerolog.Logger
}

// Coordinator runs settle, compute, pay and commit for every ledger. The
// payout happens under the ledger lock and the deduction is committed only
// when the transfer succeeded.
type Coordinator struct {
	registry *registry.Registry
	staking  *ledger.StakingLedger
	vesting  *ledger.VestingLedger
	transfer TokenTransfer
	logger   zerolog.Logger
}

func New(cfg Config) *Coordinator {
	transfer := cfg.Transfer
	if transfer == nil {
		transfer = NopTransfer{}
	}
	return &Coordinator{
		registry: cfg.Registry,
		staking:  cfg.Staking,
		vesting:  cfg.Vesting,
		transfer: transfer,
		logger:   cfg.Logger,
	}
}

// SetTransfer swaps the transfer collaborator, e.g. from NopTransfer to the
// live one once replay is done. Not safe for use concurrently with claims.
func (c *Coordinator) SetTransfer(t TokenTransfer) {
	c.transfer = t
}

func (c *Coordinator) Registry() *registry.Registry  { return c.registry }
func (c *Coordinator) Staking() *ledger.StakingLedger { return c.staking }
func (c *Coordinator) Vesting() *ledger.VestingLedger { return c.vesting }

type claimRefKey struct{}
type programKey struct{}

// WithClaimRef tags ctx with the claim request being paid.
func WithClaimRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, claimRefKey{}, ref)
}

// TransferID identifies one payout as "<claim ref>:<program>", stable across
// redeliveries of the same claim. It is empty for untagged claims.
func TransferID(ctx context.Context) string {
	ref, _ := ctx.Value(claimRefKey{}).(string)
	program, _ := ctx.Value(programKey{}).(ledger.Program)
	if ref == "" {
		return ""
	}
	return ref + ":" + string(program)
}

func (c *Coordinator) payout(ctx context.Context, program ledger.Program) ledger.PayoutFunc {
	ctx = context.WithValue(ctx, programKey{}, program)
	return func(res ledger.ClaimResult) error {
		if !res.Net.IsPositive() {
			return nil
		}
		return c.transfer.Payout(ctx, res.Account, res.Net)
	}
}

func (c *Coordinator) done(kind Kind, program ledger.Program, res ledger.ClaimResult) Receipt {
	c.logger.Info().
		Str("kind", string(kind)).
		Str("program", string(program)).
		Str("account", res.Account.String()).
		Str("net", res.Net.String()).
		Str("fee", res.Fee.String()).
		Uint64("unit", res.Unit).
		Msg("claim paid")
	return Receipt{Kind: kind, Program: program, ClaimResult: res}
}

// ClaimRewards claims from one reward ledger version. A nil amount claims
// everything owed.
func (c *Coordinator) ClaimRewards(ctx context.Context, version string, account uuid.UUID, amount *sdkmath.Int, now uint64) (Receipt, error) {
	l, err := c.registry.Get(version)
	if err != nil {
		return Receipt{}, err
	}
	res, err := l.ClaimWith(account, amount, now, c.payout(ctx, ledger.Program(version)))
	if err != nil {
		return Receipt{}, err
	}
	return c.done(KindReward, ledger.Program(version), res), nil
}

// ClaimAllRewards claims everything owed across every registered version.
// It stops at the first failure; receipts for versions already paid are
// returned with the error.
func (c *Coordinator) ClaimAllRewards(ctx context.Context, account uuid.UUID, now uint64) ([]Receipt, error) {
	var receipts []Receipt
	for _, e := range c.registry.Versions() {
		owed, err := e.Ledger.GetUnclaimed(account, now)
		if err != nil {
			return receipts, fmt.Errorf("version %s: %w", e.Version, err)
		}
		if owed.IsZero() {
			continue
		}
		res, err := e.Ledger.ClaimWith(account, nil, now, c.payout(ctx, ledger.Program(e.Version)))
		if err != nil {
			return receipts, fmt.Errorf("version %s: %w", e.Version, err)
		}
		receipts = append(receipts, c.done(KindReward, ledger.Program(e.Version), res))
	}
	if len(receipts) == 0 {
		return nil, fmt.Errorf("%w: nothing to claim for %s", ledger.ErrInsufficientUnclaimedBalance, account)
	}
	return receipts, nil
}

var errNotConfigured = errors.New("ledger not configured")

func (c *Coordinator) ClaimStaking(ctx context.Context, account uuid.UUID, amount *sdkmath.Int, now uint64) (Receipt, error) {
	if c.staking == nil {
		return Receipt{}, fmt.Errorf("staking: %w", errNotConfigured)
	}
	res, err := c.staking.ClaimWith(account, amount, now, c.payout(ctx, ledger.Program(c.staking.Name())))
	if err != nil {
		return Receipt{}, err
	}
	return c.done(KindStaking, ledger.Program(c.staking.Name()), res), nil
}

func (c *Coordinator) ClaimVesting(ctx context.Context, account uuid.UUID, amount *sdkmath.Int, now uint64) (Receipt, error) {
	if c.vesting == nil {
		return Receipt{}, fmt.Errorf("vesting: %w", errNotConfigured)
	}
	res, err := c.vesting.ClaimWith(account, amount, now, c.payout(ctx, ledger.Program(c.vesting.Name())))
	if err != nil {
		return Receipt{}, err
	}
	return c.done(KindVesting, ledger.Program(c.vesting.Name()), res), nil
}

// Reapply commits a recorded receipt again without paying it. Replay uses it
// so claims land exactly as they did live, whatever the transfer did then.
func (c *Coordinator) Reapply(r Receipt) (Receipt, error) {
	nop := func(ledger.ClaimResult) error { return nil }
	amount := r.Requested

	var (
		res ledger.ClaimResult
		err error
	)
	switch r.Kind {
	case KindReward:
		l, gerr := c.registry.Get(string(r.Program))
		if gerr != nil {
			return Receipt{}, gerr
		}
		res, err = l.ClaimWith(r.Account, &amount, r.Unit, nop)
	case KindStaking:
		if c.staking == nil {
			return Receipt{}, fmt.Errorf("staking: %w", errNotConfigured)
		}
		res, err = c.staking.ClaimWith(r.Account, &amount, r.Unit, nop)
	case KindVesting:
		if c.vesting == nil {
			return Receipt{}, fmt.Errorf("vesting: %w", errNotConfigured)
		}
		res, err = c.vesting.ClaimWith(r.Account, &amount, r.Unit, nop)
	default:
		return Receipt{}, fmt.Errorf("unknown claim kind %q", r.Kind)
	}
	if err != nil {
		return Receipt{}, err
	}
	if !res.Net.Equal(r.Net) || !res.Fee.Equal(r.Fee) {
		return Receipt{}, fmt.Errorf("reapply %s claim on %s for %s: got net %s fee %s, recorded net %s fee %s",
			r.Kind, r.Program, r.Account, res.Net, res.Fee, r.Net, r.Fee)
	}
	return Receipt{Kind: r.Kind, Program: r.Program, ClaimResult: res}, nil
}
