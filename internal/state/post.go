// internal/state/post.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// PostStore is the published-post log.
type PostStore struct {
	db *DB
}

func NewPostStore(db *DB) *PostStore {
	return &PostStore{db: db}
}

// Put records a post, replacing any record with the same first message.
func (s *PostStore) Put(ctx context.Context, post *types.PublishedPost) error {
	ids := post.MessageIDs
	if len(ids) == 0 {
		ids = []int{post.MessageID}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode post %s/%d: %w", post.Destination, post.MessageID, err)
	}
	_, err = s.db.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO published_post
		 (destination, message_id, submission_id, submitter_id, submitter_name, message_ids, published_ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		post.Destination, post.MessageID, string(post.SubmissionID),
		post.SubmitterID, post.SubmitterName, string(idsJSON), post.PublishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert post %s/%d: %w", post.Destination, post.MessageID, err)
	}
	return nil
}

// Get returns the post whose first message is messageID.
func (s *PostStore) Get(ctx context.Context, destination string, messageID int) (*types.PublishedPost, error) {
	post := &types.PublishedPost{Destination: destination, MessageID: messageID}
	var subID, idsJSON string
	var ns int64
	err := s.db.db.QueryRowContext(ctx,
		`SELECT submission_id, submitter_id, submitter_name, message_ids, published_ts
		 FROM published_post WHERE destination = ? AND message_id = ?`,
		destination, messageID,
	).Scan(&subID, &post.SubmitterID, &post.SubmitterName, &idsJSON, &ns)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %s/%d: %w", destination, messageID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query post %s/%d: %w", destination, messageID, err)
	}
	if err := json.Unmarshal([]byte(idsJSON), &post.MessageIDs); err != nil {
		return nil, fmt.Errorf("decode post %s/%d: %w", destination, messageID, err)
	}
	if len(post.MessageIDs) == 0 {
		post.MessageIDs = []int{messageID}
	}
	post.SubmissionID = types.SubmissionID(subID)
	post.PublishedAt = time.Unix(0, ns)
	return post, nil
}

func (s *PostStore) Delete(ctx context.Context, destination string, messageID int) error {
	_, err := s.db.db.ExecContext(ctx,
		`DELETE FROM published_post WHERE destination = ? AND message_id = ?`, destination, messageID)
	if err != nil {
		return fmt.Errorf("delete post %s/%d: %w", destination, messageID, err)
	}
	return nil
}
