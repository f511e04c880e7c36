package gateway

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// Relay delivers moderator replies to users. A moderator answers a user by
// replying, in the moderator chat, to the message the bot forwarded there.
// Admins answer anonymously; other members of the chat are named.
type Relay struct {
	users     types.UserDirectory
	messenger types.Messenger
	chatID    int64
}

// NewRelay creates a Relay answering from moderatorChatID.
func NewRelay(users types.UserDirectory, messenger types.Messenger, moderatorChatID int64) *Relay {
	return &Relay{users: users, messenger: messenger, chatID: moderatorChatID}
}

// Handle relays ev if it replies to a forwarded user message in the
// moderator chat. handled is false for any other message.
func (r *Relay) Handle(ctx context.Context, ev *types.InboundEvent) (handled bool, err error) {
	if r == nil || ev.ChatID != r.chatID || ev.ReplyTo == nil || !ev.ReplyTo.FromSelf {
		return false, nil
	}
	reply := ev.ReplyTo
	if reply.ForwardFromID == 0 && reply.ForwardSenderName == "" {
		return false, nil
	}

	target := reply.ForwardFromID
	if target == 0 {
		found, err := r.users.FindByName(ctx, reply.ForwardSenderName)
		if err != nil {
			return true, fmt.Errorf("resolve hidden sender: %w", err)
		}
		switch len(found) {
		case 0:
			r.answer(ctx, "🥲 No user with that name.")
			return true, nil
		case 1:
			target = found[0].ID
		default:
			r.answer(ctx, fmt.Sprintf("🤷 %d users are named %s, cannot tell who wrote this.",
				len(found), html.EscapeString(reply.ForwardSenderName)))
			return true, nil
		}
	}

	admin, err := r.users.IsAdmin(ctx, ev.UserID)
	if err != nil {
		return true, fmt.Errorf("check admin: %w", err)
	}

	mode := "anonymous"
	switch {
	case admin:
		_, err = r.messenger.Copy(ctx, target, ev.ChatID, ev.MessageID)
	case ev.Text != "":
		mode = "named"
		_, err = r.messenger.SendText(ctx, target,
			fmt.Sprintf("Moderator %s wrote:\n\n%s", html.EscapeString(ev.DisplayName), html.EscapeString(ev.Text)),
			&types.SendOptions{HTML: true})
	default:
		mode = "named"
		_, err = r.messenger.Forward(ctx, target, ev.ChatID, ev.MessageID)
	}
	if err != nil {
		slog.Warn("moderator reply not delivered", "user_id", target, "moderator", ev.UserID, "error", err)
		relayed.WithLabelValues("failed").Inc()
		r.answer(ctx, fmt.Sprintf("⚠️ Could not deliver to user %d, they may have blocked the bot.", target))
		return true, nil
	}
	relayed.WithLabelValues(mode).Inc()
	slog.Info("moderator reply relayed", "user_id", target, "moderator", ev.UserID, "mode", mode)

	if admin {
		r.answer(ctx, fmt.Sprintf("✅ Sent anonymously to user %d.", target))
	} else {
		r.answer(ctx, fmt.Sprintf("✅ Sent to user %d.", target))
	}
	return true, nil
}

func (r *Relay) answer(ctx context.Context, text string) {
	if _, err := r.messenger.SendText(ctx, r.chatID, text, &types.SendOptions{HTML: true}); err != nil {
		slog.Warn("relay answer not delivered", "chat_id", r.chatID, "error", err)
	}
}
