package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Zeebrow/ec2-price-tracker/internal/status"
)

// StatusStore implements status.Store against the single-row system_status
// table so the CLI and the control API observe the same lifecycle.
type StatusStore struct {
	store *Store
}

// NewStatusStore wraps a Store.
func NewStatusStore(s *Store) *StatusStore {
	return &StatusStore{store: s}
}

// Read returns the current lifecycle state. A missing row reads as exited;
// the first Write creates it.
func (s *StatusStore) Read(ctx context.Context) (status.State, error) {
	var current string
	err := s.store.pool.QueryRow(ctx,
		`SELECT status FROM system_status WHERE id = 1`,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return status.StateExited, nil
	}
	if err != nil {
		return "", fmt.Errorf("read status: %w", err)
	}
	return status.State(current), nil
}

// Write upserts the lifecycle state.
func (s *StatusStore) Write(ctx context.Context, st status.State) error {
	_, err := s.store.pool.Exec(ctx, `
		INSERT INTO system_status (id, status, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
	`, string(st))
	if err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}
