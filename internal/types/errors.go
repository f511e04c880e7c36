// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a key is absent.
var ErrNotFound = errors.New("not found")

// UserInputError is shown to the user verbatim and never changes state.
type UserInputError struct {
	Msg string
}

// NewUserInputError formats a message for the user.
func NewUserInputError(format string, args ...any) *UserInputError {
	return &UserInputError{Msg: fmt.Sprintf(format, args...)}
}

func (e *UserInputError) Error() string { return e.Msg }

// RateLimitedError reports a destination still inside its cooldown window.
type RateLimitedError struct {
	Destination string
	Remaining   int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("destination %s cooling down for %ds", e.Destination, e.Remaining)
}

// PublishError wraps a transform or send failure. The submission stays
// pending and the moderator can retry.
type PublishError struct {
	Destination string
	Err         error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Destination, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
