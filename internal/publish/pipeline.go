package publish

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"unicode/utf16"

	"github.com/T1murKa41/pixilgnang/internal/delivery"
	"github.com/T1murKa41/pixilgnang/internal/types"
)

// Pipeline turns a pending submission into one media group in a channel.
type Pipeline struct {
	messenger types.Messenger
	watermark *Watermarker
}

// NewPipeline creates a Pipeline. A nil watermark sends photos unchanged.
func NewPipeline(m types.Messenger, w *Watermarker) *Pipeline {
	return &Pipeline{messenger: m, watermark: w}
}

// Publish sends every item of sub to dest in one group call. Any failure is
// returned as *types.PublishError and nothing is left half-sent by us.
func (p *Pipeline) Publish(ctx context.Context, sub *types.PendingSubmission, dest delivery.Destination) (types.PublishedRef, error) {
	fail := func(err error) (types.PublishedRef, error) {
		return types.PublishedRef{}, &types.PublishError{Destination: dest.Key, Err: err}
	}

	if len(sub.Items) == 0 {
		return fail(errors.New("submission has no items"))
	}

	media := make([]types.OutboundMedia, 0, len(sub.Items))
	for i, item := range sub.Items {
		om, err := p.prepare(ctx, item)
		if err != nil {
			return fail(fmt.Errorf("item %d: %w", i, err))
		}
		if i == 0 {
			om.Caption = Caption(sub)
			om.HTML = true
		}
		media = append(media, om)
	}

	ids, err := p.messenger.SendMediaGroup(ctx, dest.ChatID, media)
	if err != nil {
		return fail(fmt.Errorf("send media group: %w", err))
	}
	if len(ids) == 0 {
		return fail(errors.New("send media group: no message id returned"))
	}

	slog.Debug("media group sent", "submission_id", sub.ID, "destination", dest.Key, "items", len(media), "message_id", ids[0])
	return types.PublishedRef{Destination: dest.Key, ChatID: dest.ChatID, MessageID: ids[0], MessageIDs: ids}, nil
}

func (p *Pipeline) prepare(ctx context.Context, item types.MediaItem) (types.OutboundMedia, error) {
	switch item.Kind {
	case types.MediaPhoto:
		if p.watermark == nil {
			return types.OutboundMedia{Kind: item.Kind, FileID: item.FileID}, nil
		}
		raw, err := p.messenger.FetchFile(ctx, item.FileID)
		if err != nil {
			return types.OutboundMedia{}, fmt.Errorf("fetch photo: %w", err)
		}
		marked, err := p.watermark.Apply(raw)
		if err != nil {
			return types.OutboundMedia{}, err
		}
		return types.OutboundMedia{Kind: item.Kind, Data: marked}, nil
	case types.MediaVideo, types.MediaDocument:
		return types.OutboundMedia{Kind: item.Kind, FileID: item.FileID}, nil
	default:
		return types.OutboundMedia{}, fmt.Errorf("unsupported media kind %q", item.Kind)
	}
}

// MaxCaptionLength is Telegram's limit on the visible text of a media
// caption, in UTF-16 code units.
const MaxCaptionLength = 1024

// TextLength counts s the way Telegram counts message and caption length.
func TextLength(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

func attributionName(name string) string {
	if name == "" {
		return "anonymous"
	}
	return name
}

// CaptionRoom is how long a description may be once the attribution line
// for submitter name is appended.
func CaptionRoom(name string) int {
	room := MaxCaptionLength - TextLength("\nBy "+attributionName(name))
	if room < 0 {
		return 0
	}
	return room
}

// Caption is the submission caption followed by an attribution line, in
// Telegram HTML. A description longer than CaptionRoom is cut short so the
// post stays publishable.
func Caption(sub *types.PendingSubmission) string {
	name := attributionName(sub.SubmitterName)
	return fmt.Sprintf("%s\nBy <a href=\"tg://user?id=%d\">%s</a>",
		html.EscapeString(shorten(sub.Caption, CaptionRoom(name))), sub.SubmitterID, html.EscapeString(name))
}

// shorten cuts s to at most limit code units, ending in "…" when cut.
func shorten(s string, limit int) string {
	if TextLength(s) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	n := 0
	for i, r := range s {
		if n+utf16.RuneLen(r) > limit-1 {
			return s[:i] + "…"
		}
		n += utf16.RuneLen(r)
	}
	return s
}
