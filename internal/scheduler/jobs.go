package scheduler

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

// digestLimit caps the submissions listed by id in one digest.
const digestLimit = 20

// Sender delivers an HTML notice to a chat.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Expirer drops idle conversation sessions.
type Expirer interface {
	Expire(maxAge time.Duration) int
}

// DigestJob reminds the moderator chat of submissions that have waited
// longer than minAge. Nothing is sent when none qualify.
func DigestJob(schedule string, subs types.SubmissionStore, sender Sender, chatID int64, minAge time.Duration) Job {
	return Job{
		Name:     "pending-digest",
		Schedule: schedule,
		Run: func(ctx context.Context) {
			list, err := subs.List(ctx)
			if err != nil {
				slog.Error("digest: list submissions", "error", err)
				return
			}
			text, n := BuildDigest(list, minAge, time.Now())
			if n == 0 {
				return
			}
			if err := sender.Send(ctx, chatID, text); err != nil {
				slog.Error("digest: send", "error", err)
				return
			}
			slog.Info("digest sent", "pending", n)
		},
	}
}

// SweepJob expires conversation sessions idle for longer than maxAge.
func SweepJob(schedule string, e Expirer, maxAge time.Duration) Job {
	return Job{
		Name:     "session-sweep",
		Schedule: schedule,
		Run: func(ctx context.Context) {
			if n := e.Expire(maxAge); n > 0 {
				slog.Info("expired idle sessions", "count", n)
			}
		},
	}
}

// BuildDigest renders the digest of submissions older than minAge and
// returns how many qualified. subs must be oldest first.
func BuildDigest(subs []*types.PendingSubmission, minAge time.Duration, now time.Time) (string, int) {
	var due []*types.PendingSubmission
	for _, sub := range subs {
		if now.Sub(sub.CreatedAt) >= minAge {
			due = append(due, sub)
		}
	}
	if len(due) == 0 {
		return "", 0
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🕒 <b>%d</b> submission(s) waiting for a decision, oldest %s ago:",
		len(due), humanAge(now.Sub(due[0].CreatedAt)))
	for i, sub := range due {
		if i == digestLimit {
			fmt.Fprintf(&b, "\n…and %d more", len(due)-digestLimit)
			break
		}
		name := sub.SubmitterName
		if name == "" {
			name = "anonymous"
		}
		fmt.Fprintf(&b, "\n• <code>%s</code> from %s, %d item(s), %s",
			sub.ID, html.EscapeString(name), len(sub.Items), humanAge(now.Sub(sub.CreatedAt)))
	}
	return b.String(), len(due)
}

func humanAge(d time.Duration) string {
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
}
