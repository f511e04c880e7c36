package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/T1murKa41/pixilgnang/internal/gateway"
	"github.com/T1murKa41/pixilgnang/internal/types"
)

// maxDownload is the Bot API limit for getFile downloads.
const maxDownload = 20 << 20

// Adapter bridges Telegram to the gateway and implements types.Messenger.
type Adapter struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	client  *http.Client
}

// New creates a Telegram adapter. sendRate caps outgoing API calls per
// second across all chats.
func New(token string, sendRate float64) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	if sendRate <= 0 {
		sendRate = 25
	}
	slog.Info("telegram bot authorized", "username", bot.Self.UserName)
	return &Adapter{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(sendRate), int(sendRate)),
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Username returns the bot's @username without the @.
func (a *Adapter) Username() string {
	return a.bot.Self.UserName
}

// Start long-polls for updates and hands them to gw until ctx ends.
func (a *Adapter) Start(ctx context.Context, gw *gateway.Gateway) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message", "callback_query"}

	updates := a.bot.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			a.dispatch(ctx, gw, update)
		case <-ctx.Done():
			a.bot.StopReceivingUpdates()
			return
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, gw *gateway.Gateway, update tgbotapi.Update) {
	ev, ok := toInboundEvent(update, a.bot.Self.ID)
	if !ok {
		return
	}

	var onComplete func(string)
	if ev.Kind == types.EventCallback {
		callbackID := ev.CallbackID
		onComplete = func(text string) { a.answerCallback(ctx, callbackID, text) }
	} else {
		chatID := ev.ChatID
		onComplete = func(text string) {
			if _, err := a.SendText(ctx, chatID, text, nil); err != nil {
				slog.Warn("send response", "chat_id", chatID, "error", err)
			}
		}
	}

	if err := gw.HandleInbound(ctx, ev, gateway.WithOnComplete(onComplete)); err != nil {
		slog.Error("handle inbound", "user_id", ev.UserID, "error", err)
		onComplete("Too many messages at once, please slow down.")
	}
}

func (a *Adapter) answerCallback(ctx context.Context, id, text string) {
	if err := a.limiter.Wait(ctx); err != nil {
		return
	}
	if _, err := a.bot.Request(tgbotapi.NewCallback(id, truncate(text, maxCallbackAnswer))); err != nil {
		slog.Warn("answer callback", "error", err)
	}
}

// SendText sends text, split into several messages if it exceeds the
// Telegram limit. Keyboards are attached to the last part. Returns the id
// of the last message.
func (a *Adapter) SendText(ctx context.Context, chatID int64, text string, opts *types.SendOptions) (int, error) {
	parts := splitMessage(text)
	var last int
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.DisableWebPagePreview = true
		if opts != nil {
			msg.ParseMode = parseMode(opts.HTML)
		}
		if i == len(parts)-1 {
			if markup := replyMarkup(opts); markup != nil {
				msg.ReplyMarkup = markup
			}
		}
		if err := a.limiter.Wait(ctx); err != nil {
			return 0, err
		}
		sent, err := a.bot.Send(msg)
		if err != nil {
			return 0, fmt.Errorf("send message: %w", err)
		}
		last = sent.MessageID
	}
	return last, nil
}

func (a *Adapter) Forward(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	sent, err := a.bot.Send(tgbotapi.NewForward(toChatID, fromChatID, messageID))
	if err != nil {
		return 0, fmt.Errorf("forward message: %w", err)
	}
	return sent.MessageID, nil
}

// Copy re-sends a message without the "forwarded from" header.
func (a *Adapter) Copy(ctx context.Context, toChatID, fromChatID int64, messageID int) (int, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	sent, err := a.bot.CopyMessage(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID))
	if err != nil {
		return 0, fmt.Errorf("copy message: %w", err)
	}
	return sent.MessageID, nil
}

// SendMediaGroup sends 2-10 items as an album, or a single item as a plain
// photo, video or document.
func (a *Adapter) SendMediaGroup(ctx context.Context, chatID int64, media []types.OutboundMedia) ([]int, error) {
	if len(media) == 0 {
		return nil, fmt.Errorf("send media group: no media")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if len(media) == 1 {
		c, err := singleMedia(chatID, media[0])
		if err != nil {
			return nil, err
		}
		sent, err := a.bot.Send(c)
		if err != nil {
			return nil, fmt.Errorf("send media: %w", err)
		}
		return []int{sent.MessageID}, nil
	}

	files, err := inputMedia(media)
	if err != nil {
		return nil, err
	}
	msgs, err := a.bot.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, files))
	if err != nil {
		return nil, fmt.Errorf("send media group: %w", err)
	}
	ids := make([]int, len(msgs))
	for i, m := range msgs {
		ids[i] = m.MessageID
	}
	return ids, nil
}

// EditText replaces the text and buttons of a sent message.
func (a *Adapter) EditText(ctx context.Context, ref types.MessageRef, text string, buttons [][]types.Button) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	var edit tgbotapi.EditMessageTextConfig
	if len(buttons) > 0 {
		edit = tgbotapi.NewEditMessageTextAndMarkup(ref.ChatID, ref.MessageID, text, inlineMarkup(buttons))
	} else {
		edit = tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, text)
	}
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := a.bot.Request(edit); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, ref types.MessageRef) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	if _, err := a.bot.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// FetchFile downloads a file by its Telegram file id.
func (a *Adapter) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	url, err := a.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build file request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > maxDownload {
		return nil, fmt.Errorf("file %s exceeds %d bytes", fileID, maxDownload)
	}
	return data, nil
}

var _ types.Messenger = (*Adapter)(nil)
