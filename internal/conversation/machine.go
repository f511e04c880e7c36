package conversation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/T1murKa41/pixilgnang/internal/delivery"
	"github.com/T1murKa41/pixilgnang/internal/moderation"
	"github.com/T1murKa41/pixilgnang/internal/publish"
	"github.com/T1murKa41/pixilgnang/internal/types"
)

const (
	DefaultMaxAlbum   = 10
	DefaultMaxCaption = 1000
)

// Config tunes the machine. Zero fields take the package defaults.
type Config struct {
	Keywords        Keywords
	ModeratorChatID int64
	MaxAlbum        int
	MaxCaption      int
}

// Deps are the collaborators the machine sends through and stores into.
type Deps struct {
	Store     types.SubmissionStore
	Messenger types.Messenger
	Registry  *delivery.Registry
	Notifier  *delivery.Notifier
}

// transition runs a side effect and returns the next state. A
// *types.UserInputError leaves the session untouched and is shown to the
// user.
type transition func(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error)

// Machine drives the submission dialogue. Callers must serialize events of
// one user; different users may be handled concurrently.
type Machine struct {
	cfg       Config
	store     types.SubmissionStore
	messenger types.Messenger
	registry  *delivery.Registry
	notifier  *delivery.Notifier
	sessions  *xsync.MapOf[int64, *Session]
	table     map[State]map[EventKind]transition
	now       func() time.Time
}

// New creates a Machine with no sessions.
func New(cfg Config, deps Deps) *Machine {
	cfg.Keywords = cfg.Keywords.withDefaults()
	if cfg.MaxAlbum <= 0 || cfg.MaxAlbum > DefaultMaxAlbum {
		cfg.MaxAlbum = DefaultMaxAlbum
	}
	if cfg.MaxCaption <= 0 {
		cfg.MaxCaption = DefaultMaxCaption
	}
	m := &Machine{
		cfg:       cfg,
		store:     deps.Store,
		messenger: deps.Messenger,
		registry:  deps.Registry,
		notifier:  deps.Notifier,
		sessions:  xsync.NewMapOf[int64, *Session](),
		now:       time.Now,
	}
	m.table = m.buildTable()
	return m
}

func (m *Machine) buildTable() map[State]map[EventKind]transition {
	return map[State]map[EventKind]transition{
		StateIdle: {
			EventSendMessage: m.startSinglePost,
			EventSendMeme:    m.startAlbum,
			EventCancel:      m.nothingToCancel,
		},
		StateCollectingSinglePost: {
			EventCancel:      m.cancel,
			EventCommand:     m.promptSinglePost,
			EventSendMessage: m.promptSinglePost,
			EventSendMeme:    m.promptSinglePost,
			EventNext:        m.promptSinglePost,
			EventMedia:       m.forwardSinglePost,
			EventText:        m.forwardSinglePost,
			EventOther:       m.forwardSinglePost,
		},
		StateCollectingAlbum: {
			EventCancel:      m.cancel,
			EventMedia:       m.appendMedia,
			EventNext:        m.finishAlbum,
			EventText:        m.onlyMedia,
			EventOther:       m.onlyMedia,
			EventCommand:     m.promptAlbum,
			EventSendMessage: m.promptAlbum,
			EventSendMeme:    m.promptAlbum,
		},
		StateAwaitingDescription: {
			EventCancel:      m.cancel,
			EventText:        m.handOff,
			EventMedia:       m.needText,
			EventOther:       m.needText,
			EventCommand:     m.promptDescription,
			EventSendMessage: m.promptDescription,
			EventSendMeme:    m.promptDescription,
			EventNext:        m.promptDescription,
		},
	}
}

// Handle feeds one message into the user's session. handled is false when
// the user is idle and the message starts nothing, leaving the reply to
// the caller.
func (m *Machine) Handle(ctx context.Context, ev *types.InboundEvent) (bool, error) {
	if ev.Kind != types.EventMessage {
		return false, nil
	}

	s, ok := m.sessions.Load(ev.UserID)
	if !ok {
		s = &Session{UserID: ev.UserID, State: StateIdle}
	}

	kind := Classify(ev, m.cfg.Keywords)
	tr, ok := m.table[s.State][kind]
	if !ok {
		return false, nil
	}

	from := s.State
	next, err := tr(ctx, s, ev)
	var uie *types.UserInputError
	if errors.As(err, &uie) {
		userErrors.WithLabelValues(string(from)).Inc()
		m.reply(ctx, ev.ChatID, uie.Msg, nil)
		return true, nil
	}
	if err != nil {
		return true, err
	}

	s.State = next
	s.UpdatedAt = m.now()
	if next == StateIdle {
		m.sessions.Delete(ev.UserID)
	} else {
		m.sessions.Store(ev.UserID, s)
	}
	if from != next {
		transitions.WithLabelValues(string(from), string(next)).Inc()
		slog.Debug("conversation transition", "user_id", ev.UserID, "from", from, "to", next, "event", kind)
	}
	return true, nil
}

// Session returns a copy of the user's session, if any.
func (m *Machine) Session(userID int64) (Session, bool) {
	s, ok := m.sessions.Load(userID)
	if !ok {
		return Session{}, false
	}
	cp := *s
	cp.Album = append([]types.MediaItem(nil), s.Album...)
	return cp, true
}

// State returns the user's current state. Users without a session are idle.
func (m *Machine) State(userID int64) State {
	if s, ok := m.sessions.Load(userID); ok {
		return s.State
	}
	return StateIdle
}

// Expire drops sessions untouched for longer than maxAge and returns how
// many were removed.
func (m *Machine) Expire(maxAge time.Duration) int {
	cutoff := m.now().Add(-maxAge)
	var stale []int64
	m.sessions.Range(func(id int64, s *Session) bool {
		if s.UpdatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
		return true
	})
	for _, id := range stale {
		m.sessions.Delete(id)
	}
	return len(stale)
}

// Active returns the number of open sessions.
func (m *Machine) Active() int {
	return m.sessions.Size()
}

// MainMenu is the idle reply keyboard.
func (m *Machine) MainMenu() [][]string {
	return [][]string{{m.cfg.Keywords.SendMeme, m.cfg.Keywords.SendMessage}}
}

func (m *Machine) cancelMenu() [][]string {
	return [][]string{{m.cfg.Keywords.Cancel}}
}

func (m *Machine) albumMenu() [][]string {
	return [][]string{{m.cfg.Keywords.Next, m.cfg.Keywords.Cancel}}
}

func (m *Machine) reply(ctx context.Context, chatID int64, text string, menu [][]string) {
	opts := &types.SendOptions{Menu: menu}
	if _, err := m.messenger.SendText(ctx, chatID, text, opts); err != nil {
		slog.Warn("reply not delivered", "chat_id", chatID, "error", err)
	}
}

func (m *Machine) startSinglePost(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	m.reply(ctx, ev.ChatID, "ℹ️ Send the message you want to pass on to the admins.", m.cancelMenu())
	return StateCollectingSinglePost, nil
}

func (m *Machine) startAlbum(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	s.Album = nil
	s.Caption = ""
	m.reply(ctx, ev.ChatID,
		fmt.Sprintf("ℹ️ Send up to %d photos, videos or documents, then press %q.", m.cfg.MaxAlbum, m.cfg.Keywords.Next),
		m.albumMenu())
	return StateCollectingAlbum, nil
}

func (m *Machine) nothingToCancel(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	m.reply(ctx, ev.ChatID, "Nothing to cancel.", m.MainMenu())
	return StateIdle, nil
}

func (m *Machine) cancel(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	s.Album = nil
	s.Caption = ""
	m.reply(ctx, ev.ChatID, "♿️ Cancelled.", m.MainMenu())
	return StateIdle, nil
}

func (m *Machine) promptSinglePost(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	m.reply(ctx, ev.ChatID, fmt.Sprintf("ℹ️ Send your message, or press %q.", m.cfg.Keywords.Cancel), m.cancelMenu())
	return s.State, nil
}

func (m *Machine) forwardSinglePost(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	if _, err := m.messenger.Forward(ctx, m.cfg.ModeratorChatID, ev.ChatID, ev.MessageID); err != nil {
		return s.State, fmt.Errorf("forward message: %w", err)
	}
	singlePostsForwarded.Inc()
	m.notifier.Log(ctx, fmt.Sprintf("✉️ Message from %s forwarded to the admins", userLink(ev.UserID, ev.DisplayName)))
	m.reply(ctx, ev.ChatID, "✅ Your message was sent to the admins.", m.MainMenu())
	return StateIdle, nil
}

func (m *Machine) appendMedia(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	item := *ev.Media
	if len(s.Album) >= m.cfg.MaxAlbum {
		return s.State, types.NewUserInputError("⚠️ An album holds at most %d items. Press %q to continue.", m.cfg.MaxAlbum, m.cfg.Keywords.Next)
	}
	if len(s.Album) > 0 && (item.Kind == types.MediaDocument) != (s.Album[0].Kind == types.MediaDocument) {
		return s.State, types.NewUserInputError("⚠️ Documents can't be mixed with photos or videos in one album.")
	}
	// The per-item caption is not published; the album gets one description.
	item.Caption = ""
	s.Album = append(s.Album, item)
	m.reply(ctx, ev.ChatID, fmt.Sprintf("✅ Added to the album (%d/%d).", len(s.Album), m.cfg.MaxAlbum), nil)
	return StateCollectingAlbum, nil
}

func (m *Machine) onlyMedia(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	return s.State, types.NewUserInputError("⚠️ Only photos, videos and documents are supported.")
}

func (m *Machine) promptAlbum(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	m.reply(ctx, ev.ChatID,
		fmt.Sprintf("ℹ️ Keep sending media, press %q when done or %q to stop.", m.cfg.Keywords.Next, m.cfg.Keywords.Cancel),
		m.albumMenu())
	return s.State, nil
}

func (m *Machine) finishAlbum(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	if len(s.Album) == 0 {
		return s.State, types.NewUserInputError("⚠️ The album is empty. Send at least one photo, video or document first.")
	}
	m.reply(ctx, ev.ChatID, "✍️ Now send a description for your post.", m.cancelMenu())
	return StateAwaitingDescription, nil
}

func (m *Machine) needText(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	return s.State, types.NewUserInputError("⚠️ Please send a text description.")
}

func (m *Machine) promptDescription(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	m.reply(ctx, ev.ChatID,
		fmt.Sprintf("✍️ Send a text description, or press %q.", m.cfg.Keywords.Cancel), m.cancelMenu())
	return s.State, nil
}

// handOff turns the finished session into a pending submission and asks
// the moderators for a decision.
func (m *Machine) handOff(ctx context.Context, s *Session, ev *types.InboundEvent) (State, error) {
	caption := strings.TrimSpace(ev.Text)
	// The channel caption also carries the attribution line.
	limit := min(m.cfg.MaxCaption, publish.CaptionRoom(ev.DisplayName))
	if n := publish.TextLength(caption); n > limit {
		return s.State, types.NewUserInputError("⚠️ The description is too long (%d characters, at most %d).", n, limit)
	}
	s.Caption = caption

	sub := &types.PendingSubmission{
		ID:            types.NewSubmissionID(),
		Items:         append([]types.MediaItem(nil), s.Album...),
		Caption:       caption,
		SubmitterID:   ev.UserID,
		SubmitterName: ev.DisplayName,
		CreatedAt:     m.now(),
	}

	buttons, err := m.decisionButtons(sub.ID)
	if err != nil {
		return s.State, err
	}

	if err := m.store.Put(ctx, sub); err != nil {
		return s.State, fmt.Errorf("store submission: %w", err)
	}

	preview := make([]types.OutboundMedia, len(sub.Items))
	for i, item := range sub.Items {
		preview[i] = types.OutboundMedia{Kind: item.Kind, FileID: item.FileID}
	}
	preview[0].Caption = publish.Caption(sub)
	preview[0].HTML = true
	if _, err := m.messenger.SendMediaGroup(ctx, m.cfg.ModeratorChatID, preview); err != nil {
		slog.Warn("album preview not delivered", "submission_id", sub.ID, "error", err)
	}
	if _, err := m.messenger.Forward(ctx, m.cfg.ModeratorChatID, ev.ChatID, ev.MessageID); err != nil {
		slog.Warn("description not forwarded", "submission_id", sub.ID, "error", err)
	}

	text := fmt.Sprintf("📥 New submission <code>%s</code> from %s\n%d item(s)\n\n%s",
		sub.ID, userLink(sub.SubmitterID, sub.SubmitterName), len(sub.Items), html.EscapeString(caption))
	if _, err := m.messenger.SendText(ctx, m.cfg.ModeratorChatID, text, &types.SendOptions{HTML: true, Inline: buttons}); err != nil {
		slog.Error("moderator notification failed, rolling back submission", "submission_id", sub.ID, "error", err)
		if derr := m.store.Delete(ctx, sub.ID); derr != nil {
			slog.Error("roll back submission", "submission_id", sub.ID, "error", derr)
		}
		return s.State, types.NewUserInputError("⚠️ The moderators could not be reached. Please send the description again.")
	}

	submissionsCreated.Inc()
	slog.Info("submission created", "submission_id", sub.ID, "user_id", sub.SubmitterID, "items", len(sub.Items))
	m.notifier.Log(ctx, fmt.Sprintf("📥 Submission <code>%s</code> from %s (%d item(s))",
		sub.ID, userLink(sub.SubmitterID, sub.SubmitterName), len(sub.Items)))
	m.reply(ctx, ev.ChatID, "✅ Your post was sent to the moderators. You will be notified about the decision.", m.MainMenu())
	return StateIdle, nil
}

// decisionButtons is one accept per destination followed by decline.
func (m *Machine) decisionButtons(id types.SubmissionID) ([][]types.Button, error) {
	var rows [][]types.Button
	for _, dest := range m.registry.All() {
		data, err := moderation.AcceptToken(dest.Key, id).Encode()
		if err != nil {
			return nil, fmt.Errorf("encode accept token: %w", err)
		}
		title := dest.Title
		if title == "" {
			title = dest.Key
		}
		rows = append(rows, []types.Button{{Text: "✅ " + title, Data: data}})
	}
	data, err := moderation.DeclineToken(id).Encode()
	if err != nil {
		return nil, fmt.Errorf("encode decline token: %w", err)
	}
	rows = append(rows, []types.Button{{Text: "❌ Decline", Data: data}})
	return rows, nil
}

func userLink(id int64, name string) string {
	if name == "" {
		name = fmt.Sprintf("user %d", id)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, id, html.EscapeString(name))
}
