package persistence

import (
	"fmt"
	"strings"

	"rewardengine/internal/event"
	"rewardengine/internal/ledger"

	"github.com/behrang/sqlbatch"
)

// EventRow represents a row in reward_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Partition      string
	Height         int64
	UnixTime       int64
	SourceSequence int64
	Payload        []byte // JSON-encoded event payload
	Rejected       bool
	Reason         string
	Outcome        []byte // JSON claim receipts, nil for non-claims
	StateHash      []byte
	PrevHash       []byte
}

// JournalRow represents a row in reward_log.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Program       string
	Amount        string // decimal base units
	JournalType   string
	Unit          int64
}

// LogEntry is everything one core output writes to the event log.
// The orchestrator builds it from core.CoreOutput with NewLogEntry.
type LogEntry struct {
	Event    EventRow
	Journals []JournalRow
}

// NewLogEntry flattens an envelope and its optional journal batch into rows.
func NewLogEntry(env *event.EventEnvelope, batch *ledger.Batch) LogEntry {
	entry := LogEntry{
		Event: EventRow{
			Sequence:       env.Sequence,
			EventType:      env.EventType.String(),
			IdempotencyKey: env.IdempotencyKey,
			Partition:      env.Partition,
			Height:         int64(env.At.Height),
			UnixTime:       int64(env.At.Timestamp),
			SourceSequence: env.SourceSequence,
			Payload:        env.Payload,
			Rejected:       env.Rejected,
			Reason:         env.Reason,
			Outcome:        env.Outcome,
			StateHash:      append([]byte(nil), env.StateHash[:]...),
			PrevHash:       append([]byte(nil), env.PrevHash[:]...),
		},
	}
	if batch == nil {
		return entry
	}
	for _, j := range batch.Journals {
		entry.Journals = append(entry.Journals, JournalRow{
			JournalID:     j.JournalID.String(),
			BatchID:       j.BatchID.String(),
			EventRef:      j.EventRef,
			Sequence:      j.Sequence,
			DebitAccount:  j.DebitAccount.AccountPath(),
			CreditAccount: j.CreditAccount.AccountPath(),
			Program:       string(j.Program),
			Amount:        j.Amount.String(),
			JournalType:   j.JournalType.String(),
			Unit:          int64(j.Unit),
		})
	}
	return entry
}

// Envelope rebuilds the logged envelope for replay.
func (r EventRow) Envelope() (*event.EventEnvelope, error) {
	et, ok := event.ParseEventType(r.EventType)
	if !ok {
		return nil, fmt.Errorf("seq %d: unknown event type %q", r.Sequence, r.EventType)
	}
	if len(r.StateHash) != 32 || len(r.PrevHash) != 32 {
		return nil, fmt.Errorf("seq %d: malformed hash", r.Sequence)
	}
	env := &event.EventEnvelope{
		Sequence:       r.Sequence,
		IdempotencyKey: r.IdempotencyKey,
		EventType:      et,
		Partition:      r.Partition,
		At:             event.Point{Height: uint64(r.Height), Timestamp: uint64(r.UnixTime)},
		SourceSequence: r.SourceSequence,
		Payload:        r.Payload,
		Rejected:       r.Rejected,
		Reason:         r.Reason,
		Outcome:        r.Outcome,
	}
	copy(env.StateHash[:], r.StateHash)
	copy(env.PrevHash[:], r.PrevHash)
	return env, nil
}

const eventColumns = 13

// insertEventsCommand builds one multi-row INSERT. Rows already present are
// skipped so a retried flush is idempotent.
func insertEventsCommand(events []EventRow) sqlbatch.Command {
	query := `INSERT INTO reward_log.events
		(sequence, event_type, idempotency_key, partition, height, unix_time, source_sequence,
		 payload, rejected, reason, outcome, state_hash, prev_hash)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*eventColumns)

	for i, e := range events {
		values = append(values, placeholders(i*eventColumns, eventColumns, map[int]string{7: "::jsonb", 10: "::jsonb"}))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Partition, e.Height, e.UnixTime, e.SourceSequence,
			string(e.Payload), e.Rejected, e.Reason, nullJSON(e.Outcome), e.StateHash, e.PrevHash,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"
	return sqlbatch.Command{Query: query, Args: args}
}

const journalColumns = 10

func insertJournalsCommand(journals []JournalRow) sqlbatch.Command {
	query := `INSERT INTO reward_log.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, program, amount, journal_type, unit)
		VALUES `

	values := make([]string, 0, len(journals))
	args := make([]interface{}, 0, len(journals)*journalColumns)

	for i, j := range journals {
		values = append(values, placeholders(i*journalColumns, journalColumns, map[int]string{7: "::numeric"}))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Program, j.Amount,
			j.JournalType, j.Unit,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"
	return sqlbatch.Command{Query: query, Args: args}
}

// placeholders renders "($base+1, ..., $base+n)" with optional casts by column.
func placeholders(base, n int, casts map[int]string) string {
	var b strings.Builder
	b.WriteByte('(')
	for col := 0; col < n; col++ {
		if col > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d%s", base+col+1, casts[col])
	}
	b.WriteByte(')')
	return b.String()
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
