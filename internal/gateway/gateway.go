package gateway

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/T1murKa41/pixilgnang/internal/delivery"
	"github.com/T1murKa41/pixilgnang/internal/moderation"
	"github.com/T1murKa41/pixilgnang/internal/types"
)

// Conversation consumes user messages. handled is false when the message
// started nothing and the gateway should answer it.
type Conversation interface {
	Handle(ctx context.Context, ev *types.InboundEvent) (handled bool, err error)
	MainMenu() [][]string
}

// Moderator executes button presses.
type Moderator interface {
	Handle(ctx context.Context, act types.Action) (moderation.Outcome, error)
}

// Gateway turns inbound events into runs on per-user lanes and routes each
// run to the conversation or the moderator after the ban and registration
// checks.
type Gateway struct {
	users     types.UserDirectory
	conv      Conversation
	mod       Moderator
	messenger types.Messenger
	registry  *delivery.Registry
	relay     *Relay
	Queue     *Queue

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Gateway with the given concurrency limit for simultaneous
// run processing.
func New(users types.UserDirectory, conv Conversation, mod Moderator, messenger types.Messenger, registry *delivery.Registry, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 4
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	g := &Gateway{
		users:     users,
		conv:      conv,
		mod:       mod,
		messenger: messenger,
		registry:  registry,
		Queue:     NewQueue(concurrency),
	}
	g.Queue.SetProcessor(g.process)
	return g
}

// SetRelay enables moderator replies from the moderator chat. Without a
// relay every group message is ignored.
func (g *Gateway) SetRelay(r *Relay) {
	g.relay = r
}

// Start initialises the gateway's context and starts the internal queue.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
	g.Queue.Start(g.ctx)
}

// Stop cancels the gateway context, stops the queue, and waits for any
// outstanding work to finish.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
	g.Queue.Stop()
	g.wg.Wait()
}

// RunOption configures optional behavior on a Run.
type RunOption func(*Run)

// WithOnComplete sets a callback invoked with the run's short answer.
func WithOnComplete(fn func(string)) RunOption {
	return func(r *Run) { r.OnComplete = fn }
}

// LaneFor returns the lane of a user. All events of one user share it.
func LaneFor(userID int64) types.LaneKey {
	return types.NewLaneKey("user", strconv.FormatInt(userID, 10))
}

// HandleInbound wraps the event in a Run and enqueues it on the sender's
// lane.
func (g *Gateway) HandleInbound(ctx context.Context, event *types.InboundEvent, opts ...RunOption) error {
	if event.UserID == 0 {
		return fmt.Errorf("inbound event without user")
	}
	run := NewRun(LaneFor(event.UserID), event)
	for _, opt := range opts {
		opt(run)
	}
	return g.Queue.Enqueue(run)
}

func (g *Gateway) process(run *Run) error {
	ctx := run.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ev := run.Event

	banned, err := g.users.IsBanned(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("check ban: %w", err)
	}
	if banned {
		slog.Info("dropping event from banned user", "user_id", ev.UserID, "kind", ev.Kind)
		if ev.Kind == types.EventCallback {
			run.complete("You are banned")
		} else if ev.Private {
			g.reply(ctx, ev.ChatID, "⛔️ You are banned.", nil)
		}
		return nil
	}

	created, err := g.users.Touch(ctx, ev.UserID, ev.DisplayName)
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	if created {
		slog.Info("user registered", "user_id", ev.UserID, "name", ev.DisplayName)
	}

	switch ev.Kind {
	case types.EventCallback:
		return g.processCallback(ctx, run)
	case types.EventMessage:
		return g.processMessage(ctx, run)
	}
	return fmt.Errorf("unknown event kind %q", ev.Kind)
}

func (g *Gateway) processCallback(ctx context.Context, run *Run) error {
	ev := run.Event
	out, err := g.mod.Handle(ctx, types.Action{
		Token:     ev.CallbackData,
		ActorID:   ev.UserID,
		ActorName: ev.DisplayName,
		Origin:    ev.Origin,
	})
	if err != nil {
		return fmt.Errorf("moderation action: %w", err)
	}
	run.complete(out.Text())
	return nil
}

func (g *Gateway) processMessage(ctx context.Context, run *Run) error {
	ev := run.Event
	// Group chats are output only, apart from moderator replies.
	if !ev.Private {
		_, err := g.relay.Handle(ctx, ev)
		return err
	}

	handled, err := g.conv.Handle(ctx, ev)
	if err != nil {
		return err
	}
	if handled {
		return nil
	}

	switch ev.Command {
	case "start":
		g.reply(ctx, ev.ChatID, g.greeting(ev.DisplayName), &types.SendOptions{HTML: true, Menu: g.conv.MainMenu()})
	case "help":
		g.reply(ctx, ev.ChatID, helpText, &types.SendOptions{Menu: g.conv.MainMenu()})
	case "":
		g.reply(ctx, ev.ChatID, "🤔 This is not a command. Use the menu below.", &types.SendOptions{Menu: g.conv.MainMenu()})
	default:
		g.reply(ctx, ev.ChatID, "🤔 Unknown command. Send /help for the list.", &types.SendOptions{Menu: g.conv.MainMenu()})
	}
	return nil
}

const helpText = `/start - main menu
/sendmeme - submit photos, videos or documents for publishing
/send - send a message to the admins
/cancel - stop the current submission`

func (g *Gateway) greeting(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 Hi, %s!\nHere you can suggest posts for our channels", html.EscapeString(name))
	var links []string
	for _, d := range g.registry.All() {
		if d.Link == "" {
			continue
		}
		title := d.Title
		if title == "" {
			title = d.Key
		}
		links = append(links, fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(d.Link), html.EscapeString(title)))
	}
	if len(links) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(links, ", "))
	}
	b.WriteString(".")
	return b.String()
}

func (g *Gateway) reply(ctx context.Context, chatID int64, text string, opts *types.SendOptions) {
	if _, err := g.messenger.SendText(ctx, chatID, text, opts); err != nil {
		slog.Warn("reply not delivered", "chat_id", chatID, "error", err)
	}
}
