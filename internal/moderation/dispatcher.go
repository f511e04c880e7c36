package moderation

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/T1murKa41/pixilgnang/internal/delivery"
	"github.com/T1murKa41/pixilgnang/internal/types"
)

// Publisher sends a submission to a destination channel.
type Publisher interface {
	Publish(ctx context.Context, sub *types.PendingSubmission, dest delivery.Destination) (types.PublishedRef, error)
}

// OutcomeKind classifies what a button press did.
type OutcomeKind string

const (
	OutcomePublished          OutcomeKind = "published"
	OutcomeDeclined           OutcomeKind = "declined"
	OutcomeDeleted            OutcomeKind = "deleted"
	OutcomeAlreadyHandled     OutcomeKind = "already_handled"
	OutcomeUnknownDestination OutcomeKind = "unknown_destination"
	OutcomeRateLimited        OutcomeKind = "rate_limited"
	OutcomePublishFailed      OutcomeKind = "publish_failed"
	OutcomeDeleteFailed       OutcomeKind = "delete_failed"
	OutcomeUnauthorized       OutcomeKind = "unauthorized"
	OutcomeInvalid            OutcomeKind = "invalid"
)

// Outcome is the result of one button press, reported back to the
// moderator who pressed it.
type Outcome struct {
	Kind               OutcomeKind
	Destination        string
	Remaining          int
	PublishedMessageID int
}

// Text is the short answer shown to the moderator.
func (o Outcome) Text() string {
	switch o.Kind {
	case OutcomePublished:
		return "Published to " + o.Destination
	case OutcomeDeclined:
		return "Declined"
	case OutcomeDeleted:
		return "Post deleted"
	case OutcomeAlreadyHandled:
		return "Already handled"
	case OutcomeUnknownDestination:
		return "Unknown destination"
	case OutcomeRateLimited:
		return fmt.Sprintf("%s is cooling down, try again in %d seconds", o.Destination, o.Remaining)
	case OutcomePublishFailed:
		return "Publish failed, press again to retry"
	case OutcomeDeleteFailed:
		return "Could not delete the post"
	case OutcomeUnauthorized:
		return "Only admins can moderate"
	default:
		return "Invalid action"
	}
}

// Deps wires a Dispatcher. Every field is required.
type Deps struct {
	Submissions types.SubmissionStore
	Posts       types.PostStore
	Users       types.UserDirectory
	Registry    *delivery.Registry
	Limiter     *Limiter
	Publisher   Publisher
	Messenger   types.Messenger
	Notifier    *delivery.Notifier
}

// Dispatcher executes moderator decisions.
type Dispatcher struct {
	submissions types.SubmissionStore
	posts       types.PostStore
	users       types.UserDirectory
	registry    *delivery.Registry
	limiter     *Limiter
	publisher   Publisher
	messenger   types.Messenger
	notifier    *delivery.Notifier
	locks       *keyedMutex
	now         func() time.Time
}

// NewDispatcher creates a Dispatcher from deps.
func NewDispatcher(deps Deps) *Dispatcher {
	return &Dispatcher{
		submissions: deps.Submissions,
		posts:       deps.Posts,
		users:       deps.Users,
		registry:    deps.Registry,
		limiter:     deps.Limiter,
		publisher:   deps.Publisher,
		messenger:   deps.Messenger,
		notifier:    deps.Notifier,
		locks:       newKeyedMutex(),
		now:         time.Now,
	}
}

// Handle authorizes, decodes and executes one action. The error is non-nil
// only when a store fails; every expected condition is an Outcome.
func (d *Dispatcher) Handle(ctx context.Context, act types.Action) (Outcome, error) {
	out, err := d.handle(ctx, act)
	action := "unknown"
	if tok, perr := ParseToken(act.Token); perr == nil {
		action = string(tok.Action)
	}
	status := string(out.Kind)
	if err != nil {
		status = "error"
	}
	actionsHandled.WithLabelValues(action, status).Inc()
	return out, err
}

func (d *Dispatcher) handle(ctx context.Context, act types.Action) (Outcome, error) {
	admin, err := d.users.IsAdmin(ctx, act.ActorID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check admin: %w", err)
	}
	if !admin {
		slog.Warn("moderation action from non-admin", "user_id", act.ActorID)
		return Outcome{Kind: OutcomeUnauthorized}, nil
	}

	tok, err := ParseToken(act.Token)
	if err != nil {
		slog.Info("rejected action token", "token", act.Token, "error", err)
		return Outcome{Kind: OutcomeInvalid}, nil
	}

	var dest delivery.Destination
	if tok.Action != ActionDecline {
		dest, err = d.registry.Lookup(tok.Destination)
		if errors.Is(err, types.ErrNotFound) {
			slog.Info("action for unknown destination", "destination", tok.Destination)
			return Outcome{Kind: OutcomeUnknownDestination, Destination: tok.Destination}, nil
		}
		if err != nil {
			return Outcome{}, err
		}
	}

	switch tok.Action {
	case ActionAccept:
		return d.accept(ctx, act, tok.SubmissionID(), dest)
	case ActionDecline:
		return d.decline(ctx, act, tok.SubmissionID())
	case ActionDelete:
		return d.delete(ctx, act, dest, tok.MessageID())
	}
	return Outcome{Kind: OutcomeInvalid}, nil
}

func (d *Dispatcher) accept(ctx context.Context, act types.Action, id types.SubmissionID, dest delivery.Destination) (Outcome, error) {
	unlock := d.locks.Lock(string(id))
	defer unlock()

	sub, err := d.submissions.Get(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		slog.Info("accept for consumed submission", "submission_id", id)
		return Outcome{Kind: OutcomeAlreadyHandled}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load submission: %w", err)
	}

	res, err := d.limiter.Reserve(ctx, dest.Key)
	var rl *types.RateLimitedError
	if errors.As(err, &rl) {
		rateLimitDenials.WithLabelValues(dest.Key).Inc()
		slog.Info("accept denied by cooldown", "submission_id", id, "destination", dest.Key, "remaining", rl.Remaining)
		return Outcome{Kind: OutcomeRateLimited, Destination: dest.Key, Remaining: rl.Remaining}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	ref, err := d.publisher.Publish(ctx, sub, dest)
	if err != nil {
		res.Release()
		publishDuration.WithLabelValues(dest.Key, "error").Observe(time.Since(start).Seconds())
		slog.Error("publish failed", "submission_id", id, "destination", dest.Key, "error", err)
		return Outcome{Kind: OutcomePublishFailed, Destination: dest.Key}, nil
	}
	publishDuration.WithLabelValues(dest.Key, "ok").Observe(time.Since(start).Seconds())

	delErr := d.submissions.Delete(ctx, id)
	if err := res.Commit(ctx); err != nil {
		slog.Error("cooldown not recorded", "destination", dest.Key, "error", err)
	}
	if delErr != nil {
		return Outcome{}, fmt.Errorf("consume submission: %w", delErr)
	}

	post := &types.PublishedPost{
		Destination:   dest.Key,
		MessageID:     ref.MessageID,
		MessageIDs:    ref.MessageIDs,
		SubmissionID:  id,
		SubmitterID:   sub.SubmitterID,
		SubmitterName: sub.SubmitterName,
		PublishedAt:   d.now(),
	}
	if err := d.posts.Put(ctx, post); err != nil {
		slog.Error("published post not recorded", "destination", dest.Key, "message_id", ref.MessageID, "error", err)
	}

	slog.Info("submission published", "submission_id", id, "destination", dest.Key, "message_id", ref.MessageID, "moderator", act.ActorID)

	title := html.EscapeString(titleOf(dest))
	d.notifier.Send(ctx, sub.SubmitterID, fmt.Sprintf("Your submission was published in <b>%s</b>. Thank you!", title))

	deleteBtn := types.Button{Text: "🗑 Delete", Data: DeleteToken(dest.Key, ref.MessageID).String()}
	d.editOrigin(ctx, act.Origin,
		fmt.Sprintf("✅ Published to <b>%s</b> by %s\nSubmission %s from %s",
			title, html.EscapeString(act.ActorName), id, html.EscapeString(sub.SubmitterName)),
		[][]types.Button{{deleteBtn}})
	d.notifier.Log(ctx, fmt.Sprintf("✅ %s published submission %s from %s to <b>%s</b>",
		html.EscapeString(act.ActorName), id, userLink(sub.SubmitterID, sub.SubmitterName), title))

	return Outcome{Kind: OutcomePublished, Destination: dest.Key, PublishedMessageID: ref.MessageID}, nil
}

func (d *Dispatcher) decline(ctx context.Context, act types.Action, id types.SubmissionID) (Outcome, error) {
	unlock := d.locks.Lock(string(id))
	defer unlock()

	sub, err := d.submissions.Get(ctx, id)
	if errors.Is(err, types.ErrNotFound) {
		slog.Info("decline for consumed submission", "submission_id", id)
		return Outcome{Kind: OutcomeAlreadyHandled}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load submission: %w", err)
	}

	if err := d.submissions.Delete(ctx, id); err != nil {
		return Outcome{}, fmt.Errorf("consume submission: %w", err)
	}
	slog.Info("submission declined", "submission_id", id, "moderator", act.ActorID)

	d.notifier.Send(ctx, sub.SubmitterID, "Your submission was declined by the moderators.")
	d.editOrigin(ctx, act.Origin,
		fmt.Sprintf("❌ Declined by %s\nSubmission %s from %s",
			html.EscapeString(act.ActorName), id, html.EscapeString(sub.SubmitterName)),
		nil)
	d.notifier.Log(ctx, fmt.Sprintf("❌ %s declined submission %s from %s",
		html.EscapeString(act.ActorName), id, userLink(sub.SubmitterID, sub.SubmitterName)))

	return Outcome{Kind: OutcomeDeclined}, nil
}

// delete removes every message of a published post. The token names the
// first message; the post record supplies the rest of an album. Without a
// record only the named message is removed. Messages that could not be
// removed stay in the record so the next press retries just those.
func (d *Dispatcher) delete(ctx context.Context, act types.Action, dest delivery.Destination, messageID int) (Outcome, error) {
	unlock := d.locks.Lock(fmt.Sprintf("post:%s:%d", dest.Key, messageID))
	defer unlock()

	post, err := d.posts.Get(ctx, dest.Key, messageID)
	switch {
	case errors.Is(err, types.ErrNotFound):
		slog.Info("no published post record, deleting the named message only", "destination", dest.Key, "message_id", messageID)
		post = nil
	case err != nil:
		slog.Error("load published post", "destination", dest.Key, "message_id", messageID, "error", err)
		post = nil
	}
	ids := []int{messageID}
	if post != nil && len(post.MessageIDs) > 0 {
		ids = post.MessageIDs
	}

	var failed []int
	for _, id := range ids {
		ref := types.MessageRef{ChatID: dest.ChatID, MessageID: id}
		if err := d.messenger.Delete(ctx, ref); err != nil {
			slog.Warn("delete post message failed", "destination", dest.Key, "message_id", id, "error", err)
			failed = append(failed, id)
		}
	}
	if len(failed) > 0 {
		if post != nil && len(failed) < len(ids) {
			post.MessageIDs = failed
			if err := d.posts.Put(ctx, post); err != nil {
				slog.Error("update published post record", "destination", dest.Key, "message_id", messageID, "error", err)
			}
		}
		return Outcome{Kind: OutcomeDeleteFailed, Destination: dest.Key}, nil
	}
	slog.Info("post deleted", "destination", dest.Key, "message_id", messageID, "messages", len(ids), "moderator", act.ActorID)

	title := html.EscapeString(titleOf(dest))
	submitter := "unknown submitter"
	if post != nil {
		submitter = userLink(post.SubmitterID, post.SubmitterName)
		d.notifier.Send(ctx, post.SubmitterID, fmt.Sprintf("Your post in <b>%s</b> was removed by the moderators.", title))
		if err := d.posts.Delete(ctx, dest.Key, messageID); err != nil {
			slog.Error("remove published post record", "destination", dest.Key, "message_id", messageID, "error", err)
		}
	}

	d.editOrigin(ctx, act.Origin,
		fmt.Sprintf("🗑 Deleted from <b>%s</b> by %s", title, html.EscapeString(act.ActorName)), nil)
	d.notifier.Log(ctx, fmt.Sprintf("🗑 %s deleted post %d by %s from <b>%s</b>",
		html.EscapeString(act.ActorName), messageID, submitter, title))

	return Outcome{Kind: OutcomeDeleted, Destination: dest.Key}, nil
}

func (d *Dispatcher) editOrigin(ctx context.Context, origin types.MessageRef, text string, buttons [][]types.Button) {
	if origin.MessageID == 0 {
		return
	}
	if err := d.messenger.EditText(ctx, origin, text, buttons); err != nil {
		slog.Warn("edit moderation message", "chat_id", origin.ChatID, "message_id", origin.MessageID, "error", err)
	}
}

func titleOf(dest delivery.Destination) string {
	if dest.Title != "" {
		return dest.Title
	}
	return dest.Key
}

func userLink(id int64, name string) string {
	if name == "" {
		name = fmt.Sprintf("user %d", id)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, id, html.EscapeString(name))
}
