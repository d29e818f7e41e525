package directory

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresDirectory reads the users table owned by the account system.
// This service never writes to it.
//
// Assumed table:
// - users (id, display_name, role)
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Resolve(ctx context.Context, userID string) (User, bool, error) {
	if userID == "" {
		return User{}, false, ErrInvalidArgument
	}

	const q = `
SELECT id, display_name, role
FROM users
WHERE id = $1
`
	var u User
	if err := d.db.QueryRowContext(ctx, q, userID).Scan(
		&u.ID,
		&u.DisplayName,
		&u.Role,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, false, nil
		}
		return User{}, false, err
	}
	return u, true, nil
}
