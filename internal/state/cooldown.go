// internal/state/cooldown.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CooldownStore records the last successful publish per destination.
type CooldownStore struct {
	db *DB
}

func NewCooldownStore(db *DB) *CooldownStore {
	return &CooldownStore{db: db}
}

// LastPublish returns the last publish time. ok is false when the
// destination has never been published to.
func (s *CooldownStore) LastPublish(ctx context.Context, destination string) (time.Time, bool, error) {
	var ns int64
	err := s.db.db.QueryRowContext(ctx,
		`SELECT last_publish_ns FROM channel_cooldown WHERE destination = ?`, destination,
	).Scan(&ns)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query cooldown %s: %w", destination, err)
	}
	return time.Unix(0, ns), true, nil
}

func (s *CooldownStore) SetLastPublish(ctx context.Context, destination string, at time.Time) error {
	_, err := s.db.db.ExecContext(ctx,
		`INSERT INTO channel_cooldown (destination, last_publish_ns) VALUES (?, ?)
		 ON CONFLICT(destination) DO UPDATE SET last_publish_ns = excluded.last_publish_ns`,
		destination, at.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert cooldown %s: %w", destination, err)
	}
	return nil
}

// List returns the last publish time of every destination seen so far.
func (s *CooldownStore) List(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.db.QueryContext(ctx, `SELECT destination, last_publish_ns FROM channel_cooldown`)
	if err != nil {
		return nil, fmt.Errorf("list cooldowns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var dest string
		var ns int64
		if err := rows.Scan(&dest, &ns); err != nil {
			return nil, fmt.Errorf("scan cooldown: %w", err)
		}
		out[dest] = time.Unix(0, ns)
	}
	return out, rows.Err()
}
