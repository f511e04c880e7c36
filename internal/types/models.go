// internal/types/models.go
package types

import (
	"time"
)

type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
	MediaOther    MediaKind = "other"
)

// MediaItem is one piece of user content. FileID is the Telegram file id,
// which can be re-sent or downloaded without keeping a local copy.
type MediaItem struct {
	Kind    MediaKind `json:"kind"`
	FileID  string    `json:"file_id"`
	Caption string    `json:"caption,omitempty"`
}

// PendingSubmission is a moderation queue entry. It exists only while a
// decision is outstanding and is never modified after it is stored.
type PendingSubmission struct {
	ID            SubmissionID `json:"id"`
	Items         []MediaItem  `json:"items"`
	Caption       string       `json:"caption"`
	SubmitterID   int64        `json:"submitter_id"`
	SubmitterName string       `json:"submitter_name"`
	CreatedAt     time.Time    `json:"created_at"`
}

// PublishedPost remembers who a channel post came from, so a later delete
// can still reach the submitter. MessageID is the first message of the post
// and keys the record; MessageIDs lists every message of an album.
type PublishedPost struct {
	Destination   string       `json:"destination"`
	MessageID     int          `json:"message_id"`
	MessageIDs    []int        `json:"message_ids"`
	SubmissionID  SubmissionID `json:"submission_id"`
	SubmitterID   int64        `json:"submitter_id"`
	SubmitterName string       `json:"submitter_name"`
	PublishedAt   time.Time    `json:"published_at"`
}

// PublishedRef identifies the messages sent to a destination channel.
// MessageID is MessageIDs[0].
type PublishedRef struct {
	Destination string `json:"destination"`
	ChatID      int64  `json:"chat_id"`
	MessageID   int    `json:"message_id"`
	MessageIDs  []int  `json:"message_ids"`
}

type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	IsBanned  bool      `json:"is_banned"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int   `json:"message_id"`
}

type EventKind string

const (
	EventMessage  EventKind = "message"
	EventCallback EventKind = "callback"
)

// InboundEvent is a transport-neutral user message or button press.
type InboundEvent struct {
	Kind        EventKind  `json:"kind"`
	UserID      int64      `json:"user_id"`
	DisplayName string     `json:"display_name"`
	ChatID      int64      `json:"chat_id"`
	MessageID   int        `json:"message_id"`
	Private     bool       `json:"private"`
	Text        string     `json:"text,omitempty"`
	Command     string     `json:"command,omitempty"`
	Media       *MediaItem `json:"media,omitempty"`

	CallbackID   string     `json:"callback_id,omitempty"`
	CallbackData string     `json:"callback_data,omitempty"`
	Origin       MessageRef `json:"origin,omitempty"`

	ReplyTo *ReplyRef `json:"reply_to,omitempty"`
}

// ReplyRef describes the message an inbound message replies to. A forward
// names its original author by id, or only by name when the author hides
// their account.
type ReplyRef struct {
	MessageID         int    `json:"message_id"`
	FromSelf          bool   `json:"from_self"`
	ForwardFromID     int64  `json:"forward_from_id,omitempty"`
	ForwardSenderName string `json:"forward_sender_name,omitempty"`
}

// Action is a moderator pressing a decision button.
type Action struct {
	Token     string
	ActorID   int64
	ActorName string
	Origin    MessageRef
}

type Button struct {
	Text string
	Data string
	URL  string
}

// SendOptions controls formatting and keyboards of an outgoing text.
type SendOptions struct {
	HTML       bool
	Inline     [][]Button
	Menu       [][]string
	RemoveMenu bool
}

// OutboundMedia is one element of a media group. Exactly one of FileID and
// Data is set.
type OutboundMedia struct {
	Kind    MediaKind
	FileID  string
	Data    []byte
	Caption string
	HTML    bool
}
