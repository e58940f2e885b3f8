package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/teachhub/telemetry/internal/model"
)

// PostgresErrorArchive keeps critical errors in Postgres so they outlive
// the Redis TTL and can be queried with SQL.
type PostgresErrorArchive struct {
	db *sqlx.DB
}

func NewPostgresErrorArchive(db *sqlx.DB) *PostgresErrorArchive {
	return &PostgresErrorArchive{db: db}
}

func (r *PostgresErrorArchive) Insert(ctx context.Context, entry *model.ErrorRecord) error {
	if entry == nil {
		return nil
	}
	metadataJSON, _ := json.Marshal(entry.Metadata)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO error_archive (
			id, level, message, stack, user_id, request_id,
			endpoint, method, status_code, user_agent, ip,
			metadata, created_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,$10,$11,
			$12,$13
		)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.Level, entry.Message, entry.Stack, entry.UserID, entry.RequestID,
		entry.Endpoint, entry.Method, entry.StatusCode, entry.UserAgent, entry.IP,
		metadataJSON, entry.Timestamp)
	return err
}

// ListSince returns archived errors newer than since, newest first.
func (r *PostgresErrorArchive) ListSince(ctx context.Context, since time.Time, limit int) ([]*model.ErrorRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, level, message, stack, user_id, request_id, endpoint, method,
		       status_code, user_agent, ip, metadata, created_at
		FROM error_archive
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]*model.ErrorRecord, 0, limit)
	for rows.Next() {
		var entry model.ErrorRecord
		var metadataJSON []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.Level,
			&entry.Message,
			&entry.Stack,
			&entry.UserID,
			&entry.RequestID,
			&entry.Endpoint,
			&entry.Method,
			&entry.StatusCode,
			&entry.UserAgent,
			&entry.IP,
			&metadataJSON,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			_ = json.Unmarshal(metadataJSON, &entry.Metadata)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		records = append(records, &entry)
	}
	return records, rows.Err()
}

func (r *PostgresErrorArchive) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS error_archive (
			id TEXT PRIMARY KEY,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			stack TEXT,
			user_id TEXT,
			request_id TEXT,
			endpoint TEXT,
			method TEXT,
			status_code INTEGER,
			user_agent TEXT,
			ip TEXT,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}
	_, _ = r.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_error_archive_created ON error_archive(created_at DESC)`)
	return nil
}

func (r *PostgresErrorArchive) Cleanup(ctx context.Context, olderThan time.Duration) error {
	if olderThan <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	_, err := r.db.ExecContext(ctx, `DELETE FROM error_archive WHERE created_at < $1`, cutoff)
	return err
}

func (r *PostgresErrorArchive) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
