package ledger

import (
	"errors"

	fpmath "rewardengine/internal/math"
)

var (
	ErrInsufficientUnclaimedBalance = errors.New("insufficient unclaimed balance")
	ErrInsufficientStakedBalance    = errors.New("insufficient staked balance")
	ErrInsufficientShareBalance     = errors.New("insufficient share balance")
	ErrInconsistentVestingState     = errors.New("inconsistent vesting state")
	ErrInvalidAmount                = errors.New("invalid amount")
	ErrUnknownPool                  = errors.New("unknown pool")
	ErrLedgerFrozen                 = errors.New("ledger frozen")
	ErrConservationViolated         = errors.New("conservation violated")

	// ErrArithmeticOverflow is the math package sentinel, re-exported so
	// ledger callers need a single import for the error taxonomy.
	ErrArithmeticOverflow = fpmath.ErrArithmeticOverflow
)
