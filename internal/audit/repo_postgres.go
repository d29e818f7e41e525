package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo persists audit events.
//
// Assumed table:
// - call_audit_log (id, type, call_id, actor_user_id, from_status,
//   to_status, message, metadata, created_at) -- append-only
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_audit_log (
  id, type, call_id, actor_user_id, from_status, to_status, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Type,
		e.CallID,
		e.ActorUserID,
		e.FromStatus,
		e.ToStatus,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
