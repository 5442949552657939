package projection

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"rewardengine/internal/coordinator"
	"rewardengine/internal/event"
	"rewardengine/internal/ledger"
	"rewardengine/internal/observability"
	"rewardengine/internal/recorder"

	sdkmath "cosmossdk.io/math"
	"github.com/behrang/sqlbatch"
	"github.com/rs/zerolog"
)

// ProjectionOutput mirrors the data needed by projection workers.
// The orchestrator bridges between core.CoreOutput and this.
type ProjectionOutput struct {
	Sequence  int64
	EventType string
	Key       string
	Height    uint64
	Rejected  bool
	Reason    string
	Receipts  []coordinator.Receipt
	Journals  []JournalEntry
}

// JournalEntry is a simplified journal for projection consumption.
type JournalEntry struct {
	DebitAccount  string
	CreditAccount string
	Program       string
	Amount        sdkmath.Int
}

// NewProjectionOutput flattens one core output.
func NewProjectionOutput(env *event.EventEnvelope, batch *ledger.Batch, receipts []coordinator.Receipt) ProjectionOutput {
	out := ProjectionOutput{
		Sequence:  env.Sequence,
		EventType: env.EventType.String(),
		Key:       env.IdempotencyKey,
		Height:    env.At.Height,
		Rejected:  env.Rejected,
		Reason:    env.Reason,
		Receipts:  receipts,
	}
	if batch != nil {
		for _, j := range batch.Journals {
			out.Journals = append(out.Journals, JournalEntry{
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Program:       string(j.Program),
				Amount:        j.Amount,
			})
		}
	}
	return out
}

// ProjectionWorker updates claim history and balance projections from
// processed events. The projection channel is non-blocking with drop, so
// projections are eventually consistent and can be rebuilt from the log.
type ProjectionWorker struct {
	db        *sql.DB // nil disables the Postgres balance projection
	recorder  recorder.Recorder
	inputChan <-chan ProjectionOutput
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   atomic.Int64
}

func NewProjectionWorker(
	db *sql.DB,
	rec recorder.Recorder,
	inputChan <-chan ProjectionOutput,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ProjectionWorker {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	pw := &ProjectionWorker{
		db:        db,
		recorder:  rec,
		inputChan: inputChan,
		metrics:   metrics,
		logger:    logger,
	}
	pw.lastSeq.Store(-1)
	return pw
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				pw.logger.Warn().Err(err).Int64("seq", output.Sequence).Msg("projection update failed")
			}
			pw.lastSeq.Store(output.Sequence)
		}
	}
}

// LastSequence is the last output the worker consumed, -1 before the first.
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq.Load()
}

func (pw *ProjectionWorker) processOutput(ctx context.Context, output ProjectionOutput) error {
	start := time.Now()
	if err := pw.recordHistory(output); err != nil {
		return fmt.Errorf("claim history: %w", err)
	}
	pw.observe("claims", start)

	if pw.db == nil {
		return nil
	}
	start = time.Now()
	if err := pw.updateBalances(ctx, output); err != nil {
		return fmt.Errorf("balance projection: %w", err)
	}
	pw.observe("balances", start)
	return nil
}

func (pw *ProjectionWorker) recordHistory(output ProjectionOutput) error {
	if output.Rejected {
		return pw.recorder.RecordRejection(&recorder.RejectionRecord{
			Sequence:  output.Sequence,
			EventType: output.EventType,
			Key:       output.Key,
			Reason:    output.Reason,
			Height:    output.Height,
		})
	}
	for _, r := range output.Receipts {
		if err := pw.recorder.RecordClaim(&recorder.ClaimRecord{
			Sequence:  output.Sequence,
			ClaimRef:  output.Key,
			Kind:      string(r.Kind),
			Program:   string(r.Program),
			Account:   r.Account,
			Requested: r.Requested,
			Net:       r.Net,
			Fee:       r.Fee,
			Unit:      r.Unit,
		}); err != nil {
			return err
		}
	}
	return nil
}

const sqlBalanceAdd = `
	INSERT INTO projections.balances (account_path, program, balance, last_sequence)
	VALUES ($1, $2, $3::numeric, $4)
	ON CONFLICT (account_path, program)
	DO UPDATE SET balance = projections.balances.balance + EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
`

const sqlWatermark = `
	INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
	VALUES ('main', $1, NOW())
	ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
`

// balanceCommands books each journal: the debit side grows, the credit
// side shrinks.
func balanceCommands(output ProjectionOutput) []sqlbatch.Command {
	commands := make([]sqlbatch.Command, 0, 2*len(output.Journals)+1)
	for _, j := range output.Journals {
		commands = append(commands,
			sqlbatch.Command{Query: sqlBalanceAdd, Args: []interface{}{j.DebitAccount, j.Program, j.Amount.String(), output.Sequence}},
			sqlbatch.Command{Query: sqlBalanceAdd, Args: []interface{}{j.CreditAccount, j.Program, j.Amount.Neg().String(), output.Sequence}},
		)
	}
	return append(commands, sqlbatch.Command{Query: sqlWatermark, Args: []interface{}{output.Sequence}})
}

func (pw *ProjectionWorker) updateBalances(ctx context.Context, output ProjectionOutput) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := sqlbatch.Batch(tx, balanceCommands(output)); err != nil {
		return err
	}
	return tx.Commit()
}

func (pw *ProjectionWorker) observe(projection string, start time.Time) {
	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(projection).Observe(time.Since(start).Seconds())
	}
}

// RebuildProjections recomputes the balance projection from the journal.
func RebuildProjections(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = sqlbatch.Batch(tx, []sqlbatch.Command{
		{Query: `TRUNCATE projections.balances`},
		{Query: `DELETE FROM projections.watermark WHERE worker_id = 'main'`},
		{Query: `
		INSERT INTO projections.balances (account_path, program, balance, last_sequence)
		SELECT account_path, program, SUM(delta), MAX(sequence)
		FROM (
			SELECT debit_account AS account_path, program, amount AS delta, sequence FROM reward_log.journal
			UNION ALL
			SELECT credit_account, program, -amount, sequence FROM reward_log.journal
		) moves
		GROUP BY account_path, program`},
		{Query: `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		SELECT 'main', MAX(sequence), NOW() FROM reward_log.events HAVING MAX(sequence) IS NOT NULL`},
	})
	if err != nil {
		return fmt.Errorf("rebuild balances: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logger.Info().Msg("projection rebuild complete")
	return nil
}
