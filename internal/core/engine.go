package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"rewardengine/internal/coordinator"
	"rewardengine/internal/event"
	"rewardengine/internal/ledger"
	"rewardengine/internal/observability"
	"rewardengine/internal/oracle"
	"rewardengine/internal/registry"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reward and staking ledgers run on block height, vesting on unix time.
const (
	rewardUnit  = event.UnitHeight
	vestingUnit = event.UnitTimestamp
)

const defaultCheckInterval = 1000

var errNotConfigured = errors.New("ledger not configured")

// DeterministicCore is the single-writer event processor. Every state change
// of every ledger goes through ProcessEvent (live) or Replay (recovery).
type DeterministicCore struct {
	mu sync.Mutex

	sequence          int64
	hasher            *StateHasher
	balanceTracker    *ledger.BalanceTracker
	journalGen        *ledger.JournalGenerator
	validator         *ledger.InvariantValidator
	coordinator       *coordinator.Coordinator
	board             *oracle.Board
	pools             map[string][]PoolSpec // version -> pools added by event
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	checkInterval     int64
	metrics           *observability.Metrics
	logger            zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// PoolSpec is a pool registered at runtime.
type PoolSpec struct {
	ID        string `json:"id"`
	Converter string `json:"converter,omitempty"`
}

type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch // nil unless a claim was paid
	Receipts   []coordinator.Receipt
	StateDelta []byte
}

type Config struct {
	StartSequence int64
	Coordinator   *coordinator.Coordinator
	Board         *oracle.Board
	FeeCollector  *uuid.UUID // nil burns claim fees
	DBChecker     DBIdempotencyChecker
	LRUCapacity   int
	CheckInterval int64 // sequences between full invariant checks
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

func NewDeterministicCore(cfg Config, persistChan, projectionChan chan<- CoreOutput) *DeterministicCore {
	balanceTracker := ledger.NewBalanceTracker()

	capacity := cfg.LRUCapacity
	if capacity <= 0 {
		capacity = 1_000_000
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	return &DeterministicCore{
		sequence:          cfg.StartSequence,
		hasher:            NewStateHasher(),
		balanceTracker:    balanceTracker,
		journalGen:        ledger.NewJournalGenerator(cfg.StartSequence, cfg.FeeCollector),
		validator:         ledger.NewInvariantValidator(balanceTracker),
		coordinator:       cfg.Coordinator,
		board:             cfg.Board,
		pools:             make(map[string][]PoolSpec),
		idempotency:       NewIdempotencyChecker(capacity, cfg.DBChecker, cfg.Metrics),
		sequenceValidator: NewSequenceValidator(cfg.Metrics),
		checkInterval:     interval,
		metrics:           cfg.Metrics,
		logger:            cfg.Logger,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}
}

// applied is what a handler changed.
type applied struct {
	batch    *ledger.Batch
	receipts []coordinator.Receipt
	digest   digest
}

// ProcessEvent is the main processing pipeline.
//
// Dedup, ordering and encoding failures return an error and consume nothing.
// A ledger error (bad amount, unavailable oracle, failed transfer) still
// consumes the source sequence: the event is logged as rejected so replay
// walks the same path, and the error is returned for the caller to log.
func (c *DeterministicCore) ProcessEvent(ctx context.Context, evt event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	et := evt.EventType()
	eventType := et.String()
	key := evt.IdempotencyKey()

	// Step 1: Idempotency check (two-tier)
	isDuplicate, err := c.idempotency.IsDuplicate(et, key)
	if err != nil {
		c.rejected(eventType, "dedup_unavailable")
		return err
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		c.rejected(eventType, "encode")
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	// Step 2: Sequence validation
	fresh, err := c.validateSequence(evt, isDuplicate)
	if err != nil {
		c.rejected(eventType, "sequence")
		return fmt.Errorf("sequence validation failed: %w", err)
	}
	if isDuplicate {
		c.rejected(eventType, "duplicate")
		return nil
	}
	if !fresh {
		if c.metrics != nil {
			c.metrics.OracleStaleReadings.WithLabelValues(strings.TrimPrefix(evt.Partition(), "oracle:")).Inc()
		}
		return nil
	}

	// Step 3: Dispatch
	res, dispatchErr := c.dispatch(ctx, evt)
	if dispatchErr != nil {
		c.logger.Warn().
			Err(dispatchErr).
			Str("event_type", eventType).
			Str("key", key).
			Int("receipts", len(res.receipts)).
			Msg("event not fully applied")
		if c.metrics != nil && errors.Is(dispatchErr, oracle.ErrOracleUnavailable) {
			c.metrics.OracleUnavailable.WithLabelValues(eventType).Inc()
		}
		if c.metrics != nil && event.IsClaim(et) {
			c.metrics.ClaimFailures.WithLabelValues(claimKind(et), failureReason(dispatchErr)).Inc()
		}
	}

	// Step 4: Digest, hash, envelope
	output, err := c.seal(evt, payload, res, dispatchErr)
	if err != nil {
		panic(fmt.Sprintf("FATAL: seal %s: %v", eventType, err))
	}

	// Step 5: Periodic invariant sweep
	c.periodicCheck()

	// Step 6: Emit. Persist blocks (backpressure), projection drops.
	c.emit(output)

	c.idempotency.MarkProcessed(et, key)

	if c.metrics != nil {
		if output.Envelope.Rejected {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "ledger").Inc()
		} else {
			c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		}
		c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}

	if dispatchErr != nil {
		return fmt.Errorf("%s %s: %w", eventType, key, dispatchErr)
	}
	return nil
}

// Replay re-applies one logged envelope during recovery. Nothing is emitted.
// Claims commit their recorded receipts, rejected events only consume their
// sequence, and the recomputed state hash must match the logged one.
func (c *DeterministicCore) Replay(ctx context.Context, env *event.EventEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if env.Sequence != c.sequence {
		return fmt.Errorf("replay: expected sequence %d, got %d", c.sequence, env.Sequence)
	}
	evt, err := event.Decode(env.EventType, env.Payload)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
	}
	fresh, err := c.validateSequence(evt, false)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
	}
	if !fresh {
		return fmt.Errorf("replay seq %d: stale oracle reading in log", env.Sequence)
	}

	var res applied
	var dispatchErr error
	if env.Rejected {
		dispatchErr = errors.New(env.Reason)
	} else if event.IsClaim(env.EventType) {
		res, err = c.reapplyClaims(env)
		if err != nil {
			return fmt.Errorf("replay seq %d diverged: %w", env.Sequence, err)
		}
	} else {
		res, err = c.dispatch(ctx, evt)
		if err != nil {
			return fmt.Errorf("replay seq %d diverged: %w", env.Sequence, err)
		}
	}

	output, err := c.seal(evt, env.Payload, res, dispatchErr)
	if err != nil {
		return fmt.Errorf("replay seq %d: %w", env.Sequence, err)
	}
	if output.Envelope.StateHash != env.StateHash {
		return fmt.Errorf("replay seq %d: state hash mismatch: logged %x, computed %x",
			env.Sequence, env.StateHash, output.Envelope.StateHash)
	}
	c.periodicCheck()
	c.idempotency.MarkProcessed(env.EventType, env.IdempotencyKey)

	if c.metrics != nil {
		c.metrics.ReplayEventsTotal.Inc()
		c.metrics.CoreSequence.Set(float64(c.sequence))
	}
	return nil
}

func (c *DeterministicCore) validateSequence(evt event.Event, isDuplicate bool) (bool, error) {
	et := evt.EventType()
	partition := evt.Partition()
	switch {
	case event.IsOracle(et):
		if isDuplicate {
			return false, nil
		}
		return c.sequenceValidator.ValidateOracleSequence(partition, evt.SourceSequence()), nil
	case event.IsClaim(et):
		return true, c.sequenceValidator.ValidateNonce(partition, evt.SourceSequence(), isDuplicate)
	default:
		return true, c.sequenceValidator.ValidateSequence(partition, evt.SourceSequence(), isDuplicate)
	}
}

// seal builds the envelope for the current sequence and advances the chain.
// A dispatch error with no committed receipts marks the event rejected.
func (c *DeterministicCore) seal(evt event.Event, payload []byte, res applied, dispatchErr error) (CoreOutput, error) {
	env := &event.EventEnvelope{
		Sequence:       c.sequence,
		IdempotencyKey: evt.IdempotencyKey(),
		EventType:      evt.EventType(),
		Partition:      evt.Partition(),
		At:             evt.Position(),
		SourceSequence: evt.SourceSequence(),
		Payload:        payload,
		PrevHash:       c.hasher.GetPrevHash(),
	}
	if dispatchErr != nil {
		env.Reason = dispatchErr.Error()
		env.Rejected = len(res.receipts) == 0
	}
	if len(res.receipts) > 0 {
		outcome, err := json.Marshal(res.receipts)
		if err != nil {
			return CoreOutput{}, fmt.Errorf("encode receipts: %w", err)
		}
		env.Outcome = outcome
	}

	hashStart := time.Now()
	stateDigest := res.digest.bytes()
	env.StateHash = c.hasher.ComputeHash(c.sequence, stateDigest)
	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	c.sequence++
	return CoreOutput{
		Envelope:   env,
		Batch:      res.batch,
		Receipts:   res.receipts,
		StateDelta: stateDigest,
	}, nil
}

func (c *DeterministicCore) emit(output CoreOutput) {
	if c.persistChan != nil {
		select {
		case c.persistChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.PersistBackpressure.Inc()
			}
			c.persistChan <- output
		}
	}
	if c.projectionChan != nil {
		select {
		case c.projectionChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("claims").Inc()
			}
		}
	}
}

func (c *DeterministicCore) rejected(eventType, reason string) {
	if c.metrics != nil {
		c.metrics.CoreEventsRejected.WithLabelValues(eventType, reason).Inc()
	}
}

func (c *DeterministicCore) periodicCheck() {
	if c.sequence%c.checkInterval != 0 {
		return
	}
	if err := c.checkInvariants(); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated at sequence %d: %v", c.sequence, err))
	}
}

// CheckInvariants runs the full sweep: payouts sum to zero per program, no
// reserve released more than its ledger recorded as claimed, and every
// ledger stays within its emission budget.
func (c *DeterministicCore) CheckInvariants() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkInvariants()
}

func (c *DeterministicCore) checkInvariants() error {
	if err := c.validator.ValidateGlobalBalance(); err != nil {
		return err
	}
	for _, e := range c.coordinator.Registry().Versions() {
		if err := e.Ledger.CheckConservation(0); err != nil {
			return err
		}
		_, claimed, _, err := e.Ledger.Totals()
		if err != nil {
			return err
		}
		if err := c.validator.ValidateReserveWithinBudget(ledger.Program(e.Version), claimed); err != nil {
			return err
		}
	}
	if s := c.coordinator.Staking(); s != nil {
		if err := s.CheckConservation(0); err != nil {
			return err
		}
		claimed, err := s.TotalClaimed()
		if err != nil {
			return err
		}
		if err := c.validator.ValidateReserveWithinBudget(ledger.Program(s.Name()), claimed); err != nil {
			return err
		}
	}
	if v := c.coordinator.Vesting(); v != nil {
		if err := v.CheckConservation(); err != nil {
			return err
		}
		claimed, err := v.TotalClaimed()
		if err != nil {
			return err
		}
		if err := c.validator.ValidateReserveWithinBudget(ledger.Program(v.Name()), claimed); err != nil {
			return err
		}
	}
	return nil
}

// ============================================================================
// Dispatch
// ============================================================================

func (c *DeterministicCore) dispatch(ctx context.Context, evt event.Event) (applied, error) {
	if event.IsClaim(evt.EventType()) {
		ctx = coordinator.WithClaimRef(ctx, evt.IdempotencyKey())
	}
	switch e := evt.(type) {
	case *event.SharesMinted:
		return c.handleSharesMinted(e)
	case *event.SharesBurned:
		return c.handleSharesBurned(e)
	case *event.SharesTransferred:
		return c.handleSharesTransferred(e)
	case *event.StakeDeposited:
		return c.handleStakeDeposited(e)
	case *event.StakeWithdrawn:
		return c.handleStakeWithdrawn(e)
	case *event.VestingAllocationSet:
		return c.handleVestingAllocationSet(e)
	case *event.FundBalanceReported:
		return c.handleFundBalanceReported(e)
	case *event.ConversionRateReported:
		return c.handleConversionRateReported(e)
	case *event.OracleOutage:
		return c.handleOracleOutage(e)
	case *event.RewardClaimRequested:
		return c.handleRewardClaim(ctx, e)
	case *event.StakingClaimRequested:
		return c.handleStakingClaim(ctx, e)
	case *event.VestingClaimRequested:
		return c.handleVestingClaim(ctx, e)
	case *event.LedgerCutover:
		return c.handleLedgerCutover(e)
	case *event.PoolAdded:
		return c.handlePoolAdded(e)
	default:
		return applied{}, fmt.Errorf("unknown event type: %T", evt)
	}
}

func (c *DeterministicCore) rewardLedger(version string) (*ledger.RewardLedger, error) {
	return c.coordinator.Registry().Get(version)
}

func (c *DeterministicCore) handleSharesMinted(e *event.SharesMinted) (applied, error) {
	l, err := c.rewardLedger(e.Version)
	if err != nil {
		return applied{}, err
	}
	if err := l.Mint(e.Account, e.Pool, e.Amount, e.At.Unit(rewardUnit)); err != nil {
		return applied{}, err
	}
	d := digest{}
	d.shares(l, e.Version, e.Pool, e.Account)
	return applied{digest: d}, nil
}

func (c *DeterministicCore) handleSharesBurned(e *event.SharesBurned) (applied, error) {
	l, err := c.rewardLedger(e.Version)
	if err != nil {
		return applied{}, err
	}
	if err := l.Burn(e.Account, e.Pool, e.Amount, e.At.Unit(rewardUnit)); err != nil {
		return applied{}, err
	}
	d := digest{}
	d.shares(l, e.Version, e.Pool, e.Account)
	return applied{digest: d}, nil
}

func (c *DeterministicCore) handleSharesTransferred(e *event.SharesTransferred) (applied, error) {
	l, err := c.rewardLedger(e.Version)
	if err != nil {
		return applied{}, err
	}
	if err := l.Transfer(e.From, e.To, e.Pool, e.Amount, e.At.Unit(rewardUnit)); err != nil {
		return applied{}, err
	}
	d := digest{}
	d.shares(l, e.Version, e.Pool, e.From)
	d.shares(l, e.Version, e.Pool, e.To)
	return applied{digest: d}, nil
}

func (c *DeterministicCore) handleStakeDeposited(e *event.StakeDeposited) (applied, error) {
	s := c.coordinator.Staking()
	if s == nil {
		return applied{}, fmt.Errorf("staking: %w", errNotConfigured)
	}
	if err := s.Deposit(e.Account, e.Amount, e.At.Unit(rewardUnit)); err != nil {
		return applied{}, err
	}
	d := digest{}
	d.stake(s, e.Account)
	return applied{digest: d}, nil
}

func (c *DeterministicCore) handleStakeWithdrawn(e *event.StakeWithdrawn) (applied, error) {
	s := c.coordinator.Staking()
	if s == nil {
		return applied{}, fmt.Errorf("staking: %w", errNotConfigured)
	}
	if err := s.Withdraw(e.Account, e.Amount, e.At.Unit(rewardUnit)); err != nil {
		return applied{}, err
	}
	d := digest{}
	d.stake(s, e.Account)
	return applied{digest: d}, nil
}

func (c *DeterministicCore) handleVestingAllocationSet(e *event.VestingAllocationSet) (applied, error) {
	v := c.coordinator.Vesting()
	if v == nil {
		return applied{}, fmt.Errorf("vesting: %w", errNotConfigured)
	}
	if err := v.SetAllocation(e.Account, e.Total); err != nil {
		return applied{}, err
	}
	d := digest{}
	d.allocation(v, e.Account)
	return applied{digest: d}, nil
}

func (c *DeterministicCore) handleFundBalanceReported(e *event.FundBalanceReported) (applied, error) {
	if e.Balance.IsNil() || e.Balance.IsNegative() {
		return applied{}, fmt.Errorf("%w: fund balance %s for pool %s", ledger.ErrInvalidAmount, e.Balance, e.Pool)
	}
	c.board.ReportBalance(e.Pool, e.Balance, e.At.Unit(rewardUnit))
	d := digest{}
	d.reading(c.board, e.Pool)
	return applied{digest: d}, nil
}

func (c *DeterministicCore) handleConversionRateReported(e *event.ConversionRateReported) (applied, error) {
	if e.Rate.IsNil() || e.Rate.IsNegative() {
		return applied{}, fmt.Errorf("%w: conversion rate %s for pool %s", ledger.ErrInvalidAmount, e.Rate, e.Pool)
	}
	c.board.ReportRate(e.Pool, e.Rate, e.At.Unit(rewardUnit))
	d := digest{}
	d.reading(c.board, e.Pool)
	return applied{digest: d}, nil
}

func (c *DeterministicCore) handleOracleOutage(e *event.OracleOutage) (applied, error) {
	c.board.MarkUnavailable(e.Pool)
	c.logger.Warn().Str("pool", e.Pool).Str("reason", e.Reason).Msg("oracle marked unavailable")
	d := digest{}
	d.reading(c.board, e.Pool)
	return applied{digest: d}, nil
}

func (c *DeterministicCore) handleRewardClaim(ctx context.Context, e *event.RewardClaimRequested) (applied, error) {
	now := e.At.Unit(rewardUnit)
	if e.Version == "" {
		if e.Amount != nil {
			return applied{}, fmt.Errorf("%w: a claim across versions takes no amount", ledger.ErrInvalidAmount)
		}
		receipts, err := c.coordinator.ClaimAllRewards(ctx, e.Account, now)
		return c.bookClaims(e.IdempotencyKey(), receipts, err)
	}
	r, err := c.coordinator.ClaimRewards(ctx, e.Version, e.Account, e.Amount, now)
	if err != nil {
		return applied{}, err
	}
	return c.bookClaims(e.IdempotencyKey(), []coordinator.Receipt{r}, nil)
}

func (c *DeterministicCore) handleStakingClaim(ctx context.Context, e *event.StakingClaimRequested) (applied, error) {
	r, err := c.coordinator.ClaimStaking(ctx, e.Account, e.Amount, e.At.Unit(rewardUnit))
	if err != nil {
		return applied{}, err
	}
	return c.bookClaims(e.IdempotencyKey(), []coordinator.Receipt{r}, nil)
}

func (c *DeterministicCore) handleVestingClaim(ctx context.Context, e *event.VestingClaimRequested) (applied, error) {
	r, err := c.coordinator.ClaimVesting(ctx, e.Account, e.Amount, e.At.Unit(vestingUnit))
	if err != nil {
		return applied{}, err
	}
	return c.bookClaims(e.IdempotencyKey(), []coordinator.Receipt{r}, nil)
}

func (c *DeterministicCore) reapplyClaims(env *event.EventEnvelope) (applied, error) {
	var recorded []coordinator.Receipt
	if err := json.Unmarshal(env.Outcome, &recorded); err != nil {
		return applied{}, fmt.Errorf("decode receipts: %w", err)
	}
	receipts := make([]coordinator.Receipt, 0, len(recorded))
	for _, r := range recorded {
		again, err := c.coordinator.Reapply(r)
		if err != nil {
			return applied{}, err
		}
		receipts = append(receipts, again)
	}
	return c.bookClaims(env.IdempotencyKey, receipts, nil)
}

// bookClaims journals committed receipts. Ledgers already deducted them and
// tokens already moved, so a journal that cannot be booked is fatal.
// claimErr is passed through for partially completed claims.
func (c *DeterministicCore) bookClaims(ref string, receipts []coordinator.Receipt, claimErr error) (applied, error) {
	if len(receipts) == 0 {
		return applied{}, claimErr
	}

	payouts := make([]ledger.Payout, 0, len(receipts))
	for _, r := range receipts {
		payouts = append(payouts, ledger.Payout{Program: r.Program, Result: r.ClaimResult})
	}

	c.journalGen.SetSequence(c.sequence)
	batch, err := c.journalGen.GenerateClaims(ref, payouts)
	if err != nil {
		panic(fmt.Sprintf("FATAL: journal committed claim %s: %v", ref, err))
	}
	if err := c.validator.ValidateBatchBalance(batch); err != nil {
		panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
	}
	if err := c.balanceTracker.ApplyBatch(batch); err != nil {
		panic(fmt.Sprintf("FATAL: apply batch %s: %v", batch.BatchID, err))
	}
	for _, r := range receipts {
		if err := c.validator.ValidateUserPaidNonNegative(r.Account, r.Program); err != nil {
			panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
		}
	}

	d := digest{}
	d.journals(c.balanceTracker, batch)
	for _, r := range receipts {
		c.digestClaimed(d, r)
		if c.metrics != nil {
			c.metrics.ClaimsPaid.WithLabelValues(string(r.Kind), string(r.Program)).Inc()
			c.metrics.ClaimedTokens.WithLabelValues(string(r.Kind), string(r.Program)).Add(approx(r.Net))
			c.metrics.ClaimFeeTokens.WithLabelValues(string(r.Kind), string(r.Program)).Add(approx(r.Fee))
		}
	}
	if c.metrics != nil {
		for _, j := range batch.Journals {
			c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
		}
	}
	return applied{batch: batch, receipts: receipts, digest: d}, claimErr
}

func (c *DeterministicCore) digestClaimed(d digest, r coordinator.Receipt) {
	switch r.Kind {
	case coordinator.KindReward:
		if l, err := c.rewardLedger(string(r.Program)); err == nil {
			d.put(fmt.Sprintf("rewards:%s:claimed:%s", r.Program, r.Account), l.Claimed(r.Account).String())
		}
	case coordinator.KindStaking:
		if s := c.coordinator.Staking(); s != nil {
			d.stake(s, r.Account)
		}
	case coordinator.KindVesting:
		if v := c.coordinator.Vesting(); v != nil {
			d.allocation(v, r.Account)
		}
	}
}

func (c *DeterministicCore) handleLedgerCutover(e *event.LedgerCutover) (applied, error) {
	reg := c.coordinator.Registry()
	if err := reg.Cutover(e.Version, e.At.Unit(rewardUnit)); err != nil {
		return applied{}, err
	}
	if c.metrics != nil {
		c.metrics.LedgerCutovers.Inc()
	}
	d := digest{}
	d.put("registry:active", e.Version)
	for _, v := range reg.Versions() {
		d.put(fmt.Sprintf("rewards:%s:frozen", v.Version), fmt.Sprint(v.Ledger.Frozen()))
		d.put(fmt.Sprintf("rewards:%s:last_update", v.Version), fmt.Sprint(v.Ledger.LastUpdateUnit()))
		for _, pool := range v.Ledger.PoolIDs() {
			if supply, err := v.Ledger.TotalSupply(pool); err == nil {
				d.put(fmt.Sprintf("rewards:%s:pool:%s:supply", v.Version, pool), supply.String())
			}
		}
	}
	return applied{digest: d}, nil
}

// handlePoolAdded settles the ledger under the old weights first, so the new
// pool only shares emission from now on.
func (c *DeterministicCore) handlePoolAdded(e *event.PoolAdded) (applied, error) {
	l, err := c.rewardLedger(e.Version)
	if err != nil {
		return applied{}, err
	}
	if l.Frozen() {
		return applied{}, fmt.Errorf("add pool %s to %s: %w", e.Pool, e.Version, ledger.ErrLedgerFrozen)
	}
	conv, err := oracle.ConverterByName(e.Converter)
	if err != nil {
		return applied{}, err
	}
	if err := l.SettleGlobal(e.At.Unit(rewardUnit)); err != nil {
		return applied{}, err
	}
	if err := l.AddPool(ledger.PoolDescriptor{ID: e.Pool, Converter: conv}); err != nil {
		return applied{}, err
	}
	c.pools[e.Version] = append(c.pools[e.Version], PoolSpec{ID: e.Pool, Converter: e.Converter})

	d := digest{}
	d.put(fmt.Sprintf("rewards:%s:pools", e.Version), strings.Join(l.PoolIDs(), ","))
	d.put(fmt.Sprintf("rewards:%s:last_update", e.Version), fmt.Sprint(l.LastUpdateUnit()))
	return applied{digest: d}, nil
}

func claimKind(et event.EventType) string {
	switch et {
	case event.EventTypeStakingClaimRequested:
		return string(coordinator.KindStaking)
	case event.EventTypeVestingClaimRequested:
		return string(coordinator.KindVesting)
	}
	return string(coordinator.KindReward)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientUnclaimedBalance):
		return "insufficient"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, oracle.ErrOracleUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, registry.ErrUnknownVersion):
		return "unknown_version"
	case errors.Is(err, ledger.ErrArithmeticOverflow):
		return "overflow"
	}
	return "transfer"
}

// approx converts base units to float64 for counters only.
func approx(v sdkmath.Int) float64 {
	f, _ := v.BigInt().Float64()
	return f
}

// ============================================================================
// Accessors
// ============================================================================

// GetSequence returns the next global sequence the core will assign.
func (c *DeterministicCore) GetSequence() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasher.GetPrevHash()
}

func (c *DeterministicCore) Coordinator() *coordinator.Coordinator { return c.coordinator }
func (c *DeterministicCore) Board() *oracle.Board                  { return c.board }

// PaidBalance reads one payout account from the journal balances.
func (c *DeterministicCore) PaidBalance(key ledger.AccountKey) sdkmath.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balanceTracker.GetBalance(key)
}
