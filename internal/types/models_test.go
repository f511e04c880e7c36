// internal/types/models_test.go
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPendingSubmissionSerialization(t *testing.T) {
	sub := PendingSubmission{
		ID: NewSubmissionID(),
		Items: []MediaItem{
			{Kind: MediaPhoto, FileID: "p1"},
			{Kind: MediaVideo, FileID: "v1", Caption: "clip"},
		},
		Caption:       "hello",
		SubmitterID:   42,
		SubmitterName: "Ann",
		CreatedAt:     time.Now(),
	}

	data, err := json.Marshal(sub)
	if err != nil {
		t.Fatal(err)
	}

	var decoded PendingSubmission
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	if len(decoded.Items) != 2 || decoded.Items[1].Kind != MediaVideo {
		t.Errorf("items not preserved: %+v", decoded.Items)
	}
	if !decoded.CreatedAt.Equal(sub.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", sub.CreatedAt, decoded.CreatedAt)
	}
}

func TestPublishErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("approve: %w", &PublishError{Destination: "pg", Err: cause})

	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatal("expected PublishError in chain")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
}

func TestRateLimitedErrorMessage(t *testing.T) {
	err := &RateLimitedError{Destination: "pg", Remaining: 600}
	if err.Error() != "destination pg cooling down for 600s" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
