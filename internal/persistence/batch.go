package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/behrang/sqlbatch"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// serializationFailure is the Postgres code for a retryable tx conflict.
const serializationFailure = "40001"

// BatchHandler runs a list of sqlbatch commands in one transaction.
type BatchHandler struct {
	DB     *sql.DB
	Logger zerolog.Logger
}

// Batch executes commands atomically and returns one result per command.
// Serialization failures are retried; any other error is returned.
func (h BatchHandler) Batch(ctx context.Context, opts *sql.TxOptions, commands []sqlbatch.Command) ([]interface{}, error) {
	for {
		results, err := h.tryBatch(ctx, opts, commands)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == serializationFailure && ctx.Err() == nil {
			h.Logger.Warn().Err(err).Msg("retryable postgres error, retrying batch")
			continue
		}
		return results, err
	}
}

func (h BatchHandler) tryBatch(ctx context.Context, opts *sql.TxOptions, commands []sqlbatch.Command) ([]interface{}, error) {
	tx, err := h.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	results, err := sqlbatch.Batch(tx, commands)
	if err != nil {
		return results, err
	}
	return results, tx.Commit()
}
