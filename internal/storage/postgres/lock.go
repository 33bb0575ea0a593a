package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLocker serializes per-person work across processes with a
// session-level Postgres advisory lock held on a dedicated connection.
type AdvisoryLocker struct {
	db *pgxpool.Pool
}

func NewAdvisoryLocker(db *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

func (l *AdvisoryLocker) Lock(ctx context.Context, key uuid.UUID) (func(), error) {
	conn, err := l.db.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key.String()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", key, err)
	}

	return func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key.String()); err != nil {
			// соединение с висящим локом в пул не возвращаем
			slog.Error("advisory unlock failed", "key", key, "error", err)
			conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}
