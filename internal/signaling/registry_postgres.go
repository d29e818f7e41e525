package signaling

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"telehealth-signaling/pkg/utils"
)

// PostgresRegistry persists call sessions.
//
// Assumed table:
// - call_sessions (call_id PK, caller_id, caller_name, callee_id,
//   callee_name, appointment_id, channel_name, status, acknowledged,
//   created_at, updated_at)
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

const sessionColumns = `
call_id, caller_id, caller_name, callee_id, callee_name, appointment_id,
channel_name, status, acknowledged, created_at, updated_at`

func scanSession(row *sql.Row) (CallSession, error) {
	var s CallSession
	err := row.Scan(
		&s.CallID,
		&s.CallerID,
		&s.CallerName,
		&s.CalleeID,
		&s.CalleeName,
		&s.AppointmentID,
		&s.ChannelName,
		&s.Status,
		&s.Acknowledged,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	return s, err
}

func (r *PostgresRegistry) Create(ctx context.Context, s CallSession) error {
	if s.CallID == "" {
		return ErrInvalidArgument
	}
	const q = `
INSERT INTO call_sessions (
  call_id, caller_id, caller_name, callee_id, callee_name, appointment_id,
  channel_name, status, acknowledged, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
	_, err := r.db.ExecContext(ctx, q,
		s.CallID,
		s.CallerID,
		s.CallerName,
		s.CalleeID,
		s.CalleeName,
		s.AppointmentID,
		s.ChannelName,
		s.Status,
		s.Acknowledged,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

func (r *PostgresRegistry) Get(ctx context.Context, callID string) (CallSession, bool, error) {
	if callID == "" {
		return CallSession{}, false, ErrInvalidArgument
	}
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE call_id = $1
`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, false, nil
		}
		return CallSession{}, false, err
	}
	return s, true, nil
}

func (r *PostgresRegistry) SetStatus(ctx context.Context, callID string, to Status, now time.Time) (CallSession, error) {
	if callID == "" {
		return CallSession{}, ErrInvalidArgument
	}

	var out CallSession
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row so the returned session reflects this write, not a
		// concurrent one. The write itself stays last-writer-wins.
		const lockQ = `
SELECT call_id FROM call_sessions WHERE call_id = $1 FOR UPDATE
`
		var id string
		if err := tx.QueryRowContext(ctx, lockQ, callID).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		const q = `
UPDATE call_sessions
SET status = $2, updated_at = $3
WHERE call_id = $1
RETURNING ` + sessionColumns + `
`
		s, err := scanSession(tx.QueryRowContext(ctx, q, callID, to, now))
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return CallSession{}, err
	}
	return out, nil
}

func (r *PostgresRegistry) Acknowledge(ctx context.Context, callID string) error {
	if callID == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE call_sessions SET acknowledged = TRUE WHERE call_id = $1
`
	res, err := r.db.ExecContext(ctx, q, callID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRegistry) ListUnacknowledgedRinging(ctx context.Context, calleeID string) ([]CallSession, error) {
	if calleeID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE callee_id = $1 AND status = $2 AND acknowledged = FALSE
ORDER BY created_at ASC
`
	return r.querySessions(ctx, q, calleeID, StatusRinging)
}

func (r *PostgresRegistry) ListRingingBefore(ctx context.Context, cutoff time.Time) ([]CallSession, error) {
	const q = `
SELECT ` + sessionColumns + `
FROM call_sessions
WHERE status = $1 AND created_at < $2
ORDER BY created_at ASC
`
	return r.querySessions(ctx, q, StatusRinging, cutoff)
}

func (r *PostgresRegistry) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const q = `
DELETE FROM call_sessions
WHERE status IN ($1, $2) AND updated_at < $3
`
	res, err := r.db.ExecContext(ctx, q, StatusRejected, StatusEnded, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *PostgresRegistry) querySessions(ctx context.Context, q string, args ...any) ([]CallSession, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallSession, 0)
	for rows.Next() {
		var s CallSession
		if err := rows.Scan(
			&s.CallID,
			&s.CallerID,
			&s.CallerName,
			&s.CalleeID,
			&s.CalleeName,
			&s.AppointmentID,
			&s.ChannelName,
			&s.Status,
			&s.Acknowledged,
			&s.CreatedAt,
			&s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
