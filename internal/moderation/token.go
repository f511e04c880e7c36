package moderation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/T1murKa41/pixilgnang/internal/delivery"
	"github.com/T1murKa41/pixilgnang/internal/types"
)

// ActionKind is the verb carried by a moderation button.
type ActionKind string

const (
	ActionAccept  ActionKind = "accept"
	ActionDecline ActionKind = "decline"
	ActionDelete  ActionKind = "delete"
)

// maxTokenLen is Telegram's callback_data limit.
const maxTokenLen = 64

// ErrInvalidToken is returned by ParseToken for malformed payloads.
var ErrInvalidToken = errors.New("invalid action token")

// Token is a decoded moderation button payload of the form
// "{action}-{destination}-{ref}". Ref is a submission id for accept and
// decline and a published message id for delete. Decline does not name a
// channel and uses delivery.AnyDestination.
type Token struct {
	Action      ActionKind
	Destination string
	Ref         string
}

// AcceptToken publishes submission id to dest.
func AcceptToken(dest string, id types.SubmissionID) Token {
	return Token{Action: ActionAccept, Destination: dest, Ref: string(id)}
}

// DeclineToken drops submission id.
func DeclineToken(id types.SubmissionID) Token {
	return Token{Action: ActionDecline, Destination: delivery.AnyDestination, Ref: string(id)}
}

// DeleteToken removes the post whose first message is messageID from dest.
func DeleteToken(dest string, messageID int) Token {
	return Token{Action: ActionDelete, Destination: dest, Ref: strconv.Itoa(messageID)}
}

// String encodes t as button callback data.
func (t Token) String() string {
	return string(t.Action) + "-" + t.Destination + "-" + t.Ref
}

// SubmissionID returns Ref as a submission id.
func (t Token) SubmissionID() types.SubmissionID {
	return types.SubmissionID(t.Ref)
}

// MessageID returns Ref as a published message id. Only valid for delete.
func (t Token) MessageID() int {
	n, _ := strconv.Atoi(t.Ref)
	return n
}

// Validate checks that the token can be encoded and decoded unambiguously.
func (t Token) Validate() error {
	switch t.Action {
	case ActionAccept, ActionDecline, ActionDelete:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidToken, t.Action)
	}
	if t.Destination == "" || strings.Contains(t.Destination, "-") {
		return fmt.Errorf("%w: bad destination %q", ErrInvalidToken, t.Destination)
	}
	if t.Action == ActionDecline && t.Destination != delivery.AnyDestination {
		return fmt.Errorf("%w: decline names destination %q", ErrInvalidToken, t.Destination)
	}
	if t.Action != ActionDecline && t.Destination == delivery.AnyDestination {
		return fmt.Errorf("%w: %s needs a destination", ErrInvalidToken, t.Action)
	}
	if t.Ref == "" || strings.Contains(t.Ref, "-") {
		return fmt.Errorf("%w: bad ref %q", ErrInvalidToken, t.Ref)
	}
	if t.Action == ActionDelete {
		if n, err := strconv.Atoi(t.Ref); err != nil || n <= 0 {
			return fmt.Errorf("%w: delete ref %q is not a message id", ErrInvalidToken, t.Ref)
		}
	}
	if len(t.String()) > maxTokenLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidToken, maxTokenLen)
	}
	return nil
}

// Encode returns the wire form, or an error if the token is not decodable.
func (t Token) Encode() (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t.String(), nil
}

// ParseToken decodes a wire token. Every failure wraps ErrInvalidToken.
func ParseToken(s string) (Token, error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}
	t := Token{Action: ActionKind(parts[0]), Destination: parts[1], Ref: parts[2]}
	if err := t.Validate(); err != nil {
		return Token{}, err
	}
	return t, nil
}
