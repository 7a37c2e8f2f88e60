package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/poiesic/placefinder/storage"
)

// GetProperty returns the value of a database property.
func (s *Store) GetProperty(ctx context.Context, name string) (string, error) {
	var value string
	err := sqlx.GetContext(ctx, s.conn(ctx), &value, `SELECT value FROM properties WHERE property = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	return value, err
}

// SetProperty sets the value of a database property.
func (s *Store) SetProperty(ctx context.Context, name, value string) error {
	_, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO properties (property, value) VALUES (?, ?)
		 ON CONFLICT(property) DO UPDATE SET value = excluded.value`, name, value)
	return err
}
