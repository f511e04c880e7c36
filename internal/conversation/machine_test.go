package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/T1murKa41/pixilgnang/internal/delivery"
	"github.com/T1murKa41/pixilgnang/internal/moderation"
	"github.com/T1murKa41/pixilgnang/internal/publish"
	"github.com/T1murKa41/pixilgnang/internal/state"
	"github.com/T1murKa41/pixilgnang/internal/types"
	"github.com/T1murKa41/pixilgnang/internal/types/typestest"
)

const (
	userID  int64 = 7
	modChat int64 = -900
	logChat int64 = -901
)

type harness struct {
	m     *Machine
	store *state.SubmissionStore
	msgr  *typestest.Messenger
	kw    Keywords
	name  string
	msgID int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := state.Open(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg := delivery.NewRegistry()
	require.NoError(t, reg.Register(delivery.Destination{Key: "pg", ChatID: -100, Title: "PG"}))
	require.NoError(t, reg.Register(delivery.Destination{Key: "poco", ChatID: -200, Title: "Poco"}))

	h := &harness{
		store: state.NewSubmissionStore(db),
		msgr:  typestest.NewMessenger(),
		kw:    DefaultKeywords(),
		name:  "Ann",
	}
	h.m = New(Config{ModeratorChatID: modChat}, Deps{
		Store:     h.store,
		Messenger: h.msgr,
		Registry:  reg,
		Notifier:  delivery.NewNotifier(h.msgr, logChat, nil),
	})
	return h
}

func (h *harness) send(t *testing.T, ev types.InboundEvent) bool {
	t.Helper()
	h.msgID++
	ev.Kind = types.EventMessage
	ev.UserID = userID
	ev.ChatID = userID
	ev.DisplayName = h.name
	ev.Private = true
	ev.MessageID = h.msgID
	handled, err := h.m.Handle(context.Background(), &ev)
	require.NoError(t, err)
	return handled
}

func (h *harness) text(t *testing.T, s string) bool {
	return h.send(t, types.InboundEvent{Text: s})
}

func (h *harness) command(t *testing.T, cmd string) bool {
	return h.send(t, types.InboundEvent{Text: "/" + cmd, Command: cmd})
}

func (h *harness) media(t *testing.T, kind types.MediaKind, id string) bool {
	return h.send(t, types.InboundEvent{Media: &types.MediaItem{Kind: kind, FileID: id}})
}

func (h *harness) lastReply() string {
	return h.msgr.LastText(userID)
}

func TestClassify(t *testing.T) {
	kw := DefaultKeywords()
	cases := []struct {
		ev   types.InboundEvent
		want EventKind
	}{
		{types.InboundEvent{Media: &types.MediaItem{Kind: types.MediaPhoto}}, EventMedia},
		{types.InboundEvent{Media: &types.MediaItem{Kind: types.MediaOther}}, EventOther},
		{types.InboundEvent{Text: kw.Cancel}, EventCancel},
		{types.InboundEvent{Text: "/cancel", Command: "cancel"}, EventCancel},
		{types.InboundEvent{Text: kw.Next}, EventNext},
		{types.InboundEvent{Text: kw.SendMeme}, EventSendMeme},
		{types.InboundEvent{Text: "/sendmeme", Command: "sendmeme"}, EventSendMeme},
		{types.InboundEvent{Text: "/send", Command: "send"}, EventSendMessage},
		{types.InboundEvent{Text: "/help", Command: "help"}, EventCommand},
		{types.InboundEvent{Text: "hello"}, EventText},
		{types.InboundEvent{}, EventOther},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(&c.ev, kw), "%+v", c.ev)
	}
}

func TestAlbumScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.True(t, h.text(t, h.kw.SendMeme))
	assert.Equal(t, StateCollectingAlbum, h.m.State(userID))

	for _, id := range []string{"p1", "p2", "p3"} {
		require.True(t, h.media(t, types.MediaPhoto, id))
	}
	require.True(t, h.text(t, h.kw.Next))
	assert.Equal(t, StateAwaitingDescription, h.m.State(userID))

	require.True(t, h.text(t, "hello"))
	assert.Equal(t, StateIdle, h.m.State(userID))
	_, ok := h.m.Session(userID)
	assert.False(t, ok, "session discarded after hand-off")

	subs, err := h.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	sub := subs[0]
	assert.Len(t, sub.Items, 3)
	assert.Equal(t, "hello", sub.Caption)
	assert.Equal(t, userID, sub.SubmitterID)
	assert.Equal(t, "Ann", sub.SubmitterName)

	// Preview, forwarded description, then one notification with three tokens.
	require.Len(t, h.msgr.Groups, 1)
	assert.Equal(t, modChat, h.msgr.Groups[0].ChatID)
	assert.Len(t, h.msgr.Groups[0].Media, 3)
	require.Len(t, h.msgr.Forwards, 1)
	assert.Equal(t, modChat, h.msgr.Forwards[0].To)

	var notes []typestest.SentText
	for _, s := range h.msgr.Texts {
		if s.ChatID == modChat {
			notes = append(notes, s)
		}
	}
	require.Len(t, notes, 1)
	var tokens []string
	for _, row := range notes[0].Opts.Inline {
		for _, b := range row {
			tokens = append(tokens, b.Data)
		}
	}
	assert.Equal(t, []string{
		moderation.AcceptToken("pg", sub.ID).String(),
		moderation.AcceptToken("poco", sub.ID).String(),
		moderation.DeclineToken(sub.ID).String(),
	}, tokens)

	assert.NotEmpty(t, h.msgr.TextsTo(logChat))
	assert.Contains(t, h.lastReply(), "sent to the moderators")
}

func TestCancelFromEveryState(t *testing.T) {
	setups := map[State]func(h *harness, t *testing.T){
		StateCollectingSinglePost: func(h *harness, t *testing.T) {
			h.text(t, h.kw.SendMessage)
		},
		StateCollectingAlbum: func(h *harness, t *testing.T) {
			h.text(t, h.kw.SendMeme)
			h.media(t, types.MediaPhoto, "p1")
		},
		StateAwaitingDescription: func(h *harness, t *testing.T) {
			h.text(t, h.kw.SendMeme)
			h.media(t, types.MediaPhoto, "p1")
			h.text(t, h.kw.Next)
		},
	}
	for want, setup := range setups {
		t.Run(string(want), func(t *testing.T) {
			h := newHarness(t)
			setup(h, t)
			require.Equal(t, want, h.m.State(userID))

			require.True(t, h.text(t, h.kw.Cancel))
			assert.Equal(t, StateIdle, h.m.State(userID))
			assert.Equal(t, 0, h.m.Active())
			assert.Contains(t, h.lastReply(), "Cancelled")

			subs, err := h.store.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, subs)
		})
	}

	t.Run("idle", func(t *testing.T) {
		h := newHarness(t)
		require.True(t, h.command(t, "cancel"))
		assert.Equal(t, StateIdle, h.m.State(userID))
		assert.Equal(t, "Nothing to cancel.", h.lastReply())
	})
}

func TestEmptyAlbumCannotAdvance(t *testing.T) {
	h := newHarness(t)

	h.text(t, h.kw.SendMeme)
	require.True(t, h.text(t, h.kw.Next))
	assert.Equal(t, StateCollectingAlbum, h.m.State(userID))
	assert.Contains(t, h.lastReply(), "album is empty")
}

func TestAlbumRejectsText(t *testing.T) {
	h := newHarness(t)

	h.text(t, h.kw.SendMeme)
	h.media(t, types.MediaVideo, "v1")
	h.text(t, "just words")
	assert.Contains(t, h.lastReply(), "Only photos, videos and documents")

	s, ok := h.m.Session(userID)
	require.True(t, ok)
	assert.Len(t, s.Album, 1)
	assert.Equal(t, StateCollectingAlbum, s.State)
}

func TestAlbumLimit(t *testing.T) {
	h := newHarness(t)

	h.text(t, h.kw.SendMeme)
	for i := 0; i < DefaultMaxAlbum; i++ {
		h.media(t, types.MediaPhoto, "p")
	}
	h.media(t, types.MediaPhoto, "overflow")
	assert.Contains(t, h.lastReply(), "at most 10")

	s, _ := h.m.Session(userID)
	assert.Len(t, s.Album, DefaultMaxAlbum)
}

func TestAlbumNoMixedDocuments(t *testing.T) {
	h := newHarness(t)

	h.text(t, h.kw.SendMeme)
	h.media(t, types.MediaPhoto, "p1")
	h.media(t, types.MediaDocument, "d1")
	assert.Contains(t, h.lastReply(), "can't be mixed")

	s, _ := h.m.Session(userID)
	assert.Len(t, s.Album, 1)
}

func TestAwaitingDescriptionNeedsText(t *testing.T) {
	h := newHarness(t)

	h.text(t, h.kw.SendMeme)
	h.media(t, types.MediaPhoto, "p1")
	h.text(t, h.kw.Next)
	h.media(t, types.MediaPhoto, "p2")
	assert.Contains(t, h.lastReply(), "text description")
	assert.Equal(t, StateAwaitingDescription, h.m.State(userID))

	h.text(t, strings.Repeat("x", DefaultMaxCaption+1))
	assert.Contains(t, h.lastReply(), "too long")
	assert.Equal(t, StateAwaitingDescription, h.m.State(userID))
}

func TestDescriptionLimitCountsAttribution(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.name = "Alexander Konstantinov"

	h.text(t, h.kw.SendMeme)
	h.media(t, types.MediaPhoto, "p1")
	h.text(t, h.kw.Next)

	h.text(t, strings.Repeat("я", DefaultMaxCaption))
	assert.Contains(t, h.lastReply(), "too long")
	assert.Equal(t, StateAwaitingDescription, h.m.State(userID))

	room := publish.CaptionRoom(h.name)
	require.Less(t, room, DefaultMaxCaption)
	h.text(t, strings.Repeat("я", room))
	assert.Equal(t, StateIdle, h.m.State(userID))

	subs, err := h.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.LessOrEqual(t, publish.TextLength(subs[0].Caption+"\nBy "+h.name), publish.MaxCaptionLength)
}

func TestHandOffRollsBackWhenModeratorsUnreachable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.text(t, h.kw.SendMeme)
	h.media(t, types.MediaPhoto, "p1")
	h.text(t, h.kw.Next)

	h.msgr.FailSendText = func(chatID int64) error {
		if chatID == modChat {
			return errors.New("Bad Request: chat not found")
		}
		return nil
	}
	require.True(t, h.text(t, "hello"))
	assert.Equal(t, StateAwaitingDescription, h.m.State(userID))
	assert.Contains(t, h.lastReply(), "could not be reached")

	subs, err := h.store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs, "record must not outlive a failed notification")

	h.msgr.FailSendText = nil
	require.True(t, h.text(t, "hello again"))
	subs, err = h.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "hello again", subs[0].Caption)
}

func TestSinglePostForwarded(t *testing.T) {
	h := newHarness(t)

	h.text(t, h.kw.SendMessage)
	h.command(t, "start")
	assert.Equal(t, StateCollectingSinglePost, h.m.State(userID), "commands re-prompt")
	assert.Empty(t, h.msgr.Forwards)

	h.text(t, "please add more cats")
	assert.Equal(t, StateIdle, h.m.State(userID))
	require.Len(t, h.msgr.Forwards, 1)
	assert.Equal(t, forwarded(modChat, userID, h.msgID), h.msgr.Forwards[0])
}

func forwarded(to, from int64, id int) typestest.Forwarded {
	return typestest.Forwarded{To: to, From: from, MessageID: id}
}

func TestSinglePostForwardFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.text(t, h.kw.SendMessage)

	h.msgr.FailForward = errors.New("timeout")
	h.msgID++
	handled, err := h.m.Handle(context.Background(), &types.InboundEvent{
		Kind: types.EventMessage, UserID: userID, ChatID: userID, MessageID: h.msgID, Text: "hi",
	})
	assert.True(t, handled)
	assert.Error(t, err)
	assert.Equal(t, StateCollectingSinglePost, h.m.State(userID))
}

func TestIdleLeavesUnknownToCaller(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.text(t, "hi there"))
	assert.False(t, h.command(t, "help"))
	assert.False(t, h.media(t, types.MediaPhoto, "p1"))
	assert.Empty(t, h.msgr.Texts)

	handled, err := h.m.Handle(context.Background(), &types.InboundEvent{Kind: types.EventCallback, UserID: userID})
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestUsersAreIndependent(t *testing.T) {
	h := newHarness(t)
	h.text(t, h.kw.SendMeme)

	other := &types.InboundEvent{Kind: types.EventMessage, UserID: 8, ChatID: 8, Text: h.kw.SendMessage}
	handled, err := h.m.Handle(context.Background(), other)
	require.NoError(t, err)
	require.True(t, handled)

	assert.Equal(t, StateCollectingAlbum, h.m.State(userID))
	assert.Equal(t, StateCollectingSinglePost, h.m.State(8))
	assert.Equal(t, 2, h.m.Active())
}

func TestExpire(t *testing.T) {
	h := newHarness(t)
	now := time.Unix(1_700_000_000, 0)
	h.m.now = func() time.Time { return now }

	h.text(t, h.kw.SendMeme)
	now = now.Add(2 * time.Hour)

	assert.Equal(t, 0, h.m.Expire(3*time.Hour))
	assert.Equal(t, 1, h.m.Expire(time.Hour))
	assert.Equal(t, StateIdle, h.m.State(userID))
}
