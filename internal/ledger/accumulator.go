package ledger

import (
	"fmt"

	"rewardengine/internal/fee"
	fpmath "rewardengine/internal/math"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
)

// ClaimResult describes one claim. Requested is the pre-fee amount removed
// from the claimant's entitlement; Net + Fee == Requested.
type ClaimResult struct {
	Account   uuid.UUID   `json:"account"`
	Requested sdkmath.Int `json:"requested"`
	Net       sdkmath.Int `json:"net"`
	Fee       sdkmath.Int `json:"fee"`
	Unit      uint64      `json:"unit"`
}

// PayoutFunc performs the external transfer for a computed claim. It runs
// while the ledger is locked; the claim is committed only if it returns nil.
type PayoutFunc func(ClaimResult) error

// advanceIndex returns perShare + amount*Scale/supply. With no supply the
// index is unchanged and the amount is owed to nobody.
func advanceIndex(perShare, amount, supply sdkmath.Int) (sdkmath.Int, error) {
	if supply.IsZero() || amount.IsZero() {
		return perShare, nil
	}
	inc, err := fpmath.MulDiv(amount, fpmath.Scale, supply)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return fpmath.Add(perShare, inc)
}

// accrued returns (perShare - index) * balance / Scale.
func accrued(perShare, index, balance sdkmath.Int) (sdkmath.Int, error) {
	if balance.IsZero() || perShare.Equal(index) {
		return fpmath.Zero(), nil
	}
	diff, err := fpmath.Sub(perShare, index)
	if err != nil {
		return sdkmath.Int{}, fmt.Errorf("index ahead of accumulator: %w", err)
	}
	return fpmath.MulDiv(diff, balance, fpmath.Scale)
}

// emittedDelta returns the curve amount released between two units.
func emittedDelta(cum func(uint64) (sdkmath.Int, error), from, to uint64) (sdkmath.Int, error) {
	if to <= from {
		return fpmath.Zero(), nil
	}
	hi, err := cum(to)
	if err != nil {
		return sdkmath.Int{}, err
	}
	lo, err := cum(from)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return fpmath.Sub(hi, lo)
}

// resolveClaim picks the amount to claim out of unclaimed and splits off the
// fee. A nil amount claims everything.
func resolveClaim(account uuid.UUID, amount *sdkmath.Int, unclaimed sdkmath.Int, schedule *fee.Schedule, now uint64) (ClaimResult, error) {
	requested := unclaimed
	if amount != nil {
		if amount.IsNil() || !amount.IsPositive() {
			return ClaimResult{}, fmt.Errorf("%w: claim amount must be positive", ErrInvalidAmount)
		}
		if amount.GT(unclaimed) {
			return ClaimResult{}, fmt.Errorf("%w: requested %s, unclaimed %s", ErrInsufficientUnclaimedBalance, amount, unclaimed)
		}
		requested = *amount
	}
	if requested.IsZero() {
		return ClaimResult{}, fmt.Errorf("%w: nothing to claim for %s", ErrInsufficientUnclaimedBalance, account)
	}
	net, charged, err := schedule.Apply(requested, now)
	if err != nil {
		return ClaimResult{}, err
	}
	return ClaimResult{Account: account, Requested: requested, Net: net, Fee: charged, Unit: now}, nil
}
