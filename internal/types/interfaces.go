// internal/types/interfaces.go
package types

import (
	"context"
	"time"
)

// SubmissionStore holds pending submissions until a moderator decides.
type SubmissionStore interface {
	Put(ctx context.Context, sub *PendingSubmission) error
	Get(ctx context.Context, id SubmissionID) (*PendingSubmission, error)
	Delete(ctx context.Context, id SubmissionID) error
	List(ctx context.Context) ([]*PendingSubmission, error)
}

// CooldownStore remembers the last publish time per destination.
type CooldownStore interface {
	LastPublish(ctx context.Context, destination string) (time.Time, bool, error)
	SetLastPublish(ctx context.Context, destination string, at time.Time) error
	List(ctx context.Context) (map[string]time.Time, error)
}

type PostStore interface {
	Put(ctx context.Context, post *PublishedPost) error
	Get(ctx context.Context, destination string, messageID int) (*PublishedPost, error)
	Delete(ctx context.Context, destination string, messageID int) error
}

// UserDirectory stores everyone who has talked to the bot.
type UserDirectory interface {
	Touch(ctx context.Context, id int64, name string) (bool, error)
	Get(ctx context.Context, id int64) (*User, error)
	IsAdmin(ctx context.Context, id int64) (bool, error)
	IsBanned(ctx context.Context, id int64) (bool, error)
	SetAdmin(ctx context.Context, id int64, admin bool) error
	SetBanned(ctx context.Context, id int64, banned bool) error
	FindByName(ctx context.Context, name string) ([]*User, error)
	List(ctx context.Context) ([]*User, error)
}

// Messenger is the outbound side of the chat transport. Every call returns
// once the remote side has accepted or rejected it.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, opts *SendOptions) (int, error)
	Forward(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
	Copy(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error)
	SendMediaGroup(ctx context.Context, chatID int64, media []OutboundMedia) ([]int, error)
	EditText(ctx context.Context, ref MessageRef, text string, buttons [][]Button) error
	Delete(ctx context.Context, ref MessageRef) error
	FetchFile(ctx context.Context, fileID string) ([]byte, error)
}
