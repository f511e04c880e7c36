package delivery

import (
	"context"
	"log/slog"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// Notifier sends best-effort notices: messages to submitters and audit
// lines to the log chat. Failures are retried, then logged and returned;
// callers never roll back on them.
type Notifier struct {
	messenger types.Messenger
	logChatID int64
	retry     *RetryPolicy
}

// NewNotifier creates a Notifier. A zero logChatID disables audit lines.
func NewNotifier(m types.Messenger, logChatID int64, retry *RetryPolicy) *Notifier {
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Notifier{messenger: m, logChatID: logChatID, retry: retry}
}

// Send delivers an HTML notice to chatID.
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	err := n.retry.Execute(ctx, func() error {
		_, err := n.messenger.SendText(ctx, chatID, text, &types.SendOptions{HTML: true})
		return err
	})
	if err != nil {
		slog.Warn("notice not delivered", "chat_id", chatID, "error", err)
	}
	return err
}

// Log posts an audit line to the log chat.
func (n *Notifier) Log(ctx context.Context, text string) error {
	if n.logChatID == 0 {
		return nil
	}
	return n.Send(ctx, n.logChatID, text)
}
