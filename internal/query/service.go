package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// QueryService provides read-only access to the event log and projection
// tables. Responses carry as_of_sequence, the projection watermark, so
// callers can tell how far behind the core they are.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetAccountBalances returns the projected payout balances of an account
// across every program.
func (qs *QueryService) GetAccountBalances(ctx context.Context, account uuid.UUID) (*AccountBalances, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT account_path, program, balance::text, last_sequence
		FROM projections.balances
		WHERE account_path LIKE $1
		ORDER BY program, account_path
	`, userPrefix(account))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := &AccountBalances{Account: account, AsOfSequence: asOfSeq}
	for rows.Next() {
		var b BalanceEntry
		if err := rows.Scan(&b.AccountPath, &b.Program, &b.Balance, &b.LastSequence); err != nil {
			return nil, err
		}
		out.Balances = append(out.Balances, b)
	}
	return out, rows.Err()
}

// GetJournalHistory returns journal entries touching an account, newest
// first. afterSequence pages backwards.
func (qs *QueryService) GetJournalHistory(
	ctx context.Context,
	account uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	query := `
		SELECT journal_id::text, batch_id::text, event_ref, sequence,
		       debit_account, credit_account, program, amount::text, journal_type, unit
		FROM reward_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{userPrefix(account)}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC, journal_type"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.EventRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Program, &e.Amount,
			&e.JournalType, &e.Unit,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks the hash chain of the event log and that projected
// balances of every program net to zero against its emission reserve.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM reward_log.events e1
		JOIN reward_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	balanceRows, err := qs.db.QueryContext(ctx, `
		SELECT program, SUM(balance)::text
		FROM projections.balances
		GROUP BY program
		HAVING SUM(balance) != 0
		ORDER BY program
	`)
	if err != nil {
		return nil, err
	}
	defer balanceRows.Close()

	for balanceRows.Next() {
		var u UnbalancedProgram
		if err := balanceRows.Scan(&u.Program, &u.Imbalance); err != nil {
			return nil, err
		}
		report.UnbalancedPrograms = append(report.UnbalancedPrograms, u)
	}
	if err := balanceRows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.UnbalancedPrograms) == 0
	return report, nil
}

// --- helpers ---

func (qs *QueryService) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	return seq, err
}

func userPrefix(account uuid.UUID) string {
	return fmt.Sprintf("user:%s:%%", account)
}
