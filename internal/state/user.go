// internal/state/user.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// UserStore is the user directory: registration, admin and ban flags.
type UserStore struct {
	db *DB
}

func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

// Touch registers the user on first contact and refreshes the display name
// afterwards. created reports whether the row was new.
func (s *UserStore) Touch(ctx context.Context, id int64, name string) (bool, error) {
	res, err := s.db.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO user (id, name, created_ts) VALUES (?, ?, ?)`,
		id, name, time.Now().Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("insert user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert user %d: %w", id, err)
	}
	if n > 0 {
		return true, nil
	}
	if _, err := s.db.db.ExecContext(ctx, `UPDATE user SET name = ? WHERE id = ? AND name != ?`, name, id, name); err != nil {
		return false, fmt.Errorf("update user %d: %w", id, err)
	}
	return false, nil
}

func (s *UserStore) Get(ctx context.Context, id int64) (*types.User, error) {
	u := &types.User{ID: id}
	var admin, banned int
	var created int64
	err := s.db.db.QueryRowContext(ctx,
		`SELECT name, is_admin, is_banned, created_ts FROM user WHERE id = ?`, id,
	).Scan(&u.Name, &admin, &banned, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query user %d: %w", id, err)
	}
	u.IsAdmin = admin != 0
	u.IsBanned = banned != 0
	u.CreatedAt = time.Unix(created, 0)
	return u, nil
}

// IsAdmin is false for unknown users.
func (s *UserStore) IsAdmin(ctx context.Context, id int64) (bool, error) {
	u, err := s.Get(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// IsBanned reports false for unknown users.
func (s *UserStore) IsBanned(ctx context.Context, id int64) (bool, error) {
	u, err := s.Get(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsBanned, nil
}

func (s *UserStore) SetAdmin(ctx context.Context, id int64, admin bool) error {
	return s.setFlag(ctx, id, "is_admin", admin)
}

func (s *UserStore) SetBanned(ctx context.Context, id int64, banned bool) error {
	return s.setFlag(ctx, id, "is_banned", banned)
}

func (s *UserStore) setFlag(ctx context.Context, id int64, column string, on bool) error {
	v := 0
	if on {
		v = 1
	}
	res, err := s.db.db.ExecContext(ctx, fmt.Sprintf(`UPDATE user SET %s = ? WHERE id = ?`, column), v, id)
	if err != nil {
		return fmt.Errorf("update user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("user %d: %w", id, types.ErrNotFound)
	}
	return nil
}

// List returns all users ordered by id.
func (s *UserStore) List(ctx context.Context) ([]*types.User, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT id, name, is_admin, is_banned, created_ts FROM user ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return scanUsers(rows)
}

// FindByName returns the users whose display name is exactly name, most
// recently registered first. Names are not unique.
func (s *UserStore) FindByName(ctx context.Context, name string) ([]*types.User, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT id, name, is_admin, is_banned, created_ts FROM user WHERE name = ? ORDER BY created_ts DESC, id DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("find users named %q: %w", name, err)
	}
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]*types.User, error) {
	defer rows.Close()

	list := []*types.User{}
	for rows.Next() {
		u := &types.User{}
		var admin, banned int
		var created int64
		if err := rows.Scan(&u.ID, &u.Name, &admin, &banned, &created); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.IsAdmin = admin != 0
		u.IsBanned = banned != 0
		u.CreatedAt = time.Unix(created, 0)
		list = append(list, u)
	}
	return list, rows.Err()
}
