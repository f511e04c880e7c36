package conversation

import (
	"strings"
	"time"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// State is where a user is in a conversation.
type State string

const (
	StateIdle                 State = "idle"
	StateCollectingSinglePost State = "collecting_single_post"
	StateCollectingAlbum      State = "collecting_album"
	StateAwaitingDescription  State = "awaiting_description"
)

// Session is one user's in-progress submission. It lives only in memory
// and is dropped on cancel or hand-off.
type Session struct {
	UserID    int64
	State     State
	Album     []types.MediaItem
	Caption   string
	UpdatedAt time.Time
}

// EventKind is the classification of an inbound message.
type EventKind string

const (
	EventSendMessage EventKind = "send_message"
	EventSendMeme    EventKind = "send_meme"
	EventCancel      EventKind = "cancel"
	EventNext        EventKind = "next"
	EventCommand     EventKind = "command"
	EventMedia       EventKind = "media"
	EventText        EventKind = "text"
	EventOther       EventKind = "other"
)

// Keywords are the reply-keyboard labels. Each has a slash-command alias.
type Keywords struct {
	SendMeme    string
	SendMessage string
	Cancel      string
	Next        string
}

// DefaultKeywords returns the built-in menu labels.
func DefaultKeywords() Keywords {
	return Keywords{
		SendMeme:    "🖼 Send meme",
		SendMessage: "✉️ Send message",
		Cancel:      "❌ Cancel",
		Next:        "➡️ Next",
	}
}

func (k Keywords) withDefaults() Keywords {
	d := DefaultKeywords()
	if k.SendMeme == "" {
		k.SendMeme = d.SendMeme
	}
	if k.SendMessage == "" {
		k.SendMessage = d.SendMessage
	}
	if k.Cancel == "" {
		k.Cancel = d.Cancel
	}
	if k.Next == "" {
		k.Next = d.Next
	}
	return k
}

// Classify maps an inbound message to an event kind. Media wins over
// text, keywords and their commands win over other commands.
func Classify(ev *types.InboundEvent, kw Keywords) EventKind {
	if ev.Media != nil {
		switch ev.Media.Kind {
		case types.MediaPhoto, types.MediaVideo, types.MediaDocument:
			return EventMedia
		default:
			return EventOther
		}
	}

	text := strings.TrimSpace(ev.Text)
	switch {
	case matches(text, kw.Cancel) || ev.Command == "cancel":
		return EventCancel
	case matches(text, kw.Next) || ev.Command == "next" || ev.Command == "done":
		return EventNext
	case matches(text, kw.SendMeme) || ev.Command == "sendmeme":
		return EventSendMeme
	case matches(text, kw.SendMessage) || ev.Command == "send":
		return EventSendMessage
	case ev.Command != "":
		return EventCommand
	case text != "":
		return EventText
	}
	return EventOther
}

func matches(text, keyword string) bool {
	return keyword != "" && strings.EqualFold(text, keyword)
}
