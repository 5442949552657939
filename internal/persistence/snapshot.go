package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"rewardengine/internal/core"
	"rewardengine/internal/event"

	"github.com/behrang/sqlbatch"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// snapshotFormat is bumped whenever core.SnapshotState changes shape.
const snapshotFormat = 1

const (
	sqlSnapshotUpsert = `
	INSERT INTO reward_log.snapshots
		(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
	VALUES ($1, $2, $3::jsonb, $4, $5, $6, FALSE, $7)
	ON CONFLICT (sequence) DO UPDATE SET
		data = EXCLUDED.data, state_hash = EXCLUDED.state_hash, size_bytes = EXCLUDED.size_bytes
`

	sqlSnapshotLatest = `
	SELECT data FROM reward_log.snapshots
	WHERE verified = TRUE AND format_version = $1
	ORDER BY sequence DESC
	LIMIT 1
`

	sqlSnapshotVerify = `
	UPDATE reward_log.snapshots SET verified = TRUE WHERE sequence = $1
`

	sqlEventsFrom = `
	SELECT sequence, event_type, idempotency_key, partition, height, unix_time, source_sequence,
	       payload, rejected, reason, outcome, state_hash, prev_hash
	FROM reward_log.events
	WHERE sequence >= $1
	ORDER BY sequence ASC
	LIMIT $2
`

	sqlLatestSequence = `
	SELECT MAX(sequence) FROM reward_log.events
`
)

// SnapshotManager handles creating and loading state snapshots for recovery.
// A snapshot is the JSON encoding of core.SnapshotState; warm restart loads
// the latest verified one and replays the event log from the next sequence.
type SnapshotManager struct {
	handler BatchHandler
}

func NewSnapshotManager(db *sql.DB, logger zerolog.Logger) *SnapshotManager {
	return &SnapshotManager{handler: BatchHandler{DB: db, Logger: logger}}
}

// SaveSnapshot persists a snapshot unverified and returns its encoded size.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *core.SnapshotState) (int, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.handler.Batch(ctx, nil, []sqlbatch.Command{{
		Query: sqlSnapshotUpsert,
		Args: []interface{}{
			uuid.New(), snap.Sequence, string(data), snap.StateHash[:], snapshotFormat, len(data), time.Now().UTC(),
		},
		Affect: 1,
	}})
	if err != nil {
		return 0, fmt.Errorf("save snapshot at %d: %w", snap.Sequence, err)
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.SnapshotState, error) {
	results, err := sm.handler.Batch(ctx, &sql.TxOptions{ReadOnly: true}, []sqlbatch.Command{{
		Query:   sqlSnapshotLatest,
		Args:    []interface{}{snapshotFormat},
		Init:    [][]byte(nil),
		ReadAll: readSnapshotData,
	}})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	rows, _ := results[0].([][]byte)
	if len(rows) == 0 {
		return nil, nil
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(rows[0], &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// MarkVerified marks a snapshot as verified after integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.handler.Batch(ctx, nil, []sqlbatch.Command{{
		Query:  sqlSnapshotVerify,
		Args:   []interface{}{sequence},
		Affect: 1,
	}})
	return err
}

// LoadEventsFrom loads logged envelopes from a given sequence for replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]*event.EventEnvelope, error) {
	results, err := sm.handler.Batch(ctx, &sql.TxOptions{ReadOnly: true}, []sqlbatch.Command{{
		Query:   sqlEventsFrom,
		Args:    []interface{}{fromSequence, limit},
		Init:    make([]EventRow, 0, limit),
		ReadAll: readEventRows,
	}})
	if err != nil {
		return nil, fmt.Errorf("load events from %d: %w", fromSequence, err)
	}

	rows, _ := results[0].([]EventRow)
	envs := make([]*event.EventEnvelope, 0, len(rows))
	for _, r := range rows {
		env, err := r.Envelope()
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

// GetLatestSequence returns the highest logged sequence, or -1 when the
// log is empty.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	results, err := sm.handler.Batch(ctx, &sql.TxOptions{ReadOnly: true}, []sqlbatch.Command{{
		Query: sqlLatestSequence,
		ReadOne: func(scan func(...interface{}) error) (interface{}, error) {
			var seq sql.NullInt64
			err := scan(&seq)
			return seq, err
		},
	}})
	if err != nil {
		return 0, err
	}
	seq, _ := results[0].(sql.NullInt64)
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

func readSnapshotData(memo interface{}, scan func(...interface{}) error) (interface{}, error) {
	var data []byte
	err := scan(&data)
	list := memo.([][]byte)
	return append(list, data), err
}

func readEventRows(memo interface{}, scan func(...interface{}) error) (interface{}, error) {
	var r EventRow
	err := scan(
		&r.Sequence, &r.EventType, &r.IdempotencyKey, &r.Partition, &r.Height, &r.UnixTime, &r.SourceSequence,
		&r.Payload, &r.Rejected, &r.Reason, &r.Outcome, &r.StateHash, &r.PrevHash,
	)
	list := memo.([]EventRow)
	return append(list, r), err
}
