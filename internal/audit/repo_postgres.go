package audit

import (
	"context"
	"database/sql"
	"fmt"

	"power-dialer/pkg/utils"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS dialer_audit_events (
	id          UUID PRIMARY KEY,
	type        TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	role        TEXT NOT NULL DEFAULT '',
	ip_address  TEXT NOT NULL DEFAULT '',
	call_id     TEXT NOT NULL DEFAULT '',
	destination TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS dialer_audit_events_created_at_idx ON dialer_audit_events (created_at DESC);
`

// PostgresRepo stores the journal in Postgres through database/sql and pgx.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) EnsureSchema(ctx context.Context) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("audit: ensure schema: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO dialer_audit_events
	(id, type, actor, role, ip_address, call_id, destination, status, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.ID, string(e.Type), e.Actor, e.Role, e.IPAddress, e.CallID, e.Destination, e.Status, e.Message, e.Metadata, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("audit: insert event: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, type, actor, role, ip_address, call_id, destination, status, message, metadata, created_at
FROM dialer_audit_events
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var typ string
		if err := rows.Scan(&e.ID, &typ, &e.Actor, &e.Role, &e.IPAddress, &e.CallID, &e.Destination, &e.Status, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan event: %w", err)
		}
		e.Type = EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
