package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists claim history to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the projection worker writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS claims (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at INTEGER NOT NULL,
			sequence    INTEGER NOT NULL,
			claim_ref   TEXT    NOT NULL,
			kind        TEXT    NOT NULL,
			program     TEXT    NOT NULL,
			account     TEXT    NOT NULL,
			requested   TEXT    NOT NULL,
			net         TEXT    NOT NULL,
			fee         TEXT    NOT NULL,
			unit        INTEGER NOT NULL,
			UNIQUE (claim_ref, program)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claims_account ON claims(account, sequence)`,

		`CREATE TABLE IF NOT EXISTS rejections (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at INTEGER NOT NULL,
			sequence    INTEGER NOT NULL UNIQUE,
			event_type  TEXT    NOT NULL,
			event_key   TEXT    NOT NULL,
			reason      TEXT,
			height      INTEGER NOT NULL
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordClaim stores a claim. Re-recording the same claim on the same
// program is ignored, so a projection rebuild can run over old history.
func (r *SQLiteRecorder) RecordClaim(rec *ClaimRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR IGNORE INTO claims
		(recorded_at, sequence, claim_ref, kind, program, account, requested, net, fee, unit)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), rec.Sequence, rec.ClaimRef, rec.Kind, rec.Program, rec.Account.String(),
		rec.Requested.String(), rec.Net.String(), rec.Fee.String(), int64(rec.Unit),
	)
	return err
}

func (r *SQLiteRecorder) RecordRejection(rec *RejectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR IGNORE INTO rejections
		(recorded_at, sequence, event_type, event_key, reason, height)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), rec.Sequence, rec.EventType, rec.Key, rec.Reason, int64(rec.Height),
	)
	return err
}

// ClaimsByAccount returns the newest claims of an account first.
func (r *SQLiteRecorder) ClaimsByAccount(account uuid.UUID, limit int) ([]ClaimRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT sequence, claim_ref, kind, program, requested, net, fee, unit
		FROM claims WHERE account = ?
		ORDER BY sequence DESC, program ASC
		LIMIT ?`, account.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClaimRecord
	for rows.Next() {
		rec := ClaimRecord{Account: account}
		var requested, net, fee string
		var unit int64
		if err := rows.Scan(&rec.Sequence, &rec.ClaimRef, &rec.Kind, &rec.Program, &requested, &net, &fee, &unit); err != nil {
			return nil, err
		}
		if rec.Requested, err = parseAmount(requested); err != nil {
			return nil, err
		}
		if rec.Net, err = parseAmount(net); err != nil {
			return nil, err
		}
		if rec.Fee, err = parseAmount(fee); err != nil {
			return nil, err
		}
		rec.Unit = uint64(unit)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func parseAmount(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("malformed amount %q", s)
	}
	return v, nil
}
