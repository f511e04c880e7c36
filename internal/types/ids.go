// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

type SubmissionID string
type RunID string
type LaneKey string

// NewSubmissionID returns a 128-bit random id in base57. The alphabet has no
// '-', so the id can sit inside an action token unescaped.
func NewSubmissionID() SubmissionID {
	return SubmissionID(shortuuid.New())
}

func NewRunID() RunID {
	return RunID(uuid.New().String())
}

func NewLaneKey(parts ...string) LaneKey {
	return LaneKey(strings.Join(parts, ":"))
}
