// internal/state/submission.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// SubmissionStore keeps pending submissions as JSON payloads keyed by id.
// Records are insert-only; a decision deletes them.
type SubmissionStore struct {
	db *DB
}

func NewSubmissionStore(db *DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// Put inserts a new record. An existing id is an error.
func (s *SubmissionStore) Put(ctx context.Context, sub *types.PendingSubmission) error {
	if sub.ID == "" {
		return errors.New("put submission: empty id")
	}
	if len(sub.Items) == 0 {
		return fmt.Errorf("put submission %s: no items", sub.ID)
	}
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	_, err = s.db.db.ExecContext(ctx,
		`INSERT INTO pending_submission (id, submitter_id, payload, created_ts) VALUES (?, ?, ?, ?)`,
		string(sub.ID), sub.SubmitterID, string(payload), sub.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert submission %s: %w", sub.ID, err)
	}
	return nil
}

// Get returns the record for id, or an error wrapping types.ErrNotFound.
func (s *SubmissionStore) Get(ctx context.Context, id types.SubmissionID) (*types.PendingSubmission, error) {
	var payload string
	err := s.db.db.QueryRowContext(ctx,
		`SELECT payload FROM pending_submission WHERE id = ?`, string(id),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query submission %s: %w", id, err)
	}
	return decodeSubmission(payload)
}

// Delete removes the record. Deleting a missing id is not an error.
func (s *SubmissionStore) Delete(ctx context.Context, id types.SubmissionID) error {
	if _, err := s.db.db.ExecContext(ctx, `DELETE FROM pending_submission WHERE id = ?`, string(id)); err != nil {
		return fmt.Errorf("delete submission %s: %w", id, err)
	}
	return nil
}

// List returns every pending record, oldest first.
func (s *SubmissionStore) List(ctx context.Context) ([]*types.PendingSubmission, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT payload FROM pending_submission ORDER BY created_ts ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	list := []*types.PendingSubmission{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub, err := decodeSubmission(payload)
		if err != nil {
			return nil, err
		}
		list = append(list, sub)
	}
	return list, rows.Err()
}

func decodeSubmission(payload string) (*types.PendingSubmission, error) {
	var sub types.PendingSubmission
	if err := json.Unmarshal([]byte(payload), &sub); err != nil {
		return nil, fmt.Errorf("unmarshal submission: %w", err)
	}
	return &sub, nil
}
