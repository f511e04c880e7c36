package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

const (
	maxTelegramMessage = 4096
	maxCallbackAnswer  = 200
)

// toInboundEvent translates an update. selfID is the bot's own user id. ok
// is false for updates the bot does not act on.
func toInboundEvent(update tgbotapi.Update, selfID int64) (*types.InboundEvent, bool) {
	if cq := update.CallbackQuery; cq != nil {
		if cq.From == nil {
			return nil, false
		}
		ev := &types.InboundEvent{
			Kind:         types.EventCallback,
			UserID:       cq.From.ID,
			DisplayName:  displayName(cq.From),
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
			ev.Origin = types.MessageRef{ChatID: cq.Message.Chat.ID, MessageID: cq.Message.MessageID}
		}
		return ev, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil, false
	}
	ev := &types.InboundEvent{
		Kind:        types.EventMessage,
		UserID:      msg.From.ID,
		DisplayName: displayName(msg.From),
		ChatID:      msg.Chat.ID,
		MessageID:   msg.MessageID,
		Private:     msg.Chat.IsPrivate(),
		Text:        msg.Text,
		Media:       mediaOf(msg),
	}
	if msg.IsCommand() {
		ev.Command = strings.ToLower(msg.Command())
	}
	if r := msg.ReplyToMessage; r != nil {
		ev.ReplyTo = &types.ReplyRef{
			MessageID:         r.MessageID,
			FromSelf:          r.From != nil && r.From.ID == selfID,
			ForwardSenderName: r.ForwardSenderName,
		}
		if r.ForwardFrom != nil {
			ev.ReplyTo.ForwardFromID = r.ForwardFrom.ID
		}
	}
	return ev, true
}

// mediaOf returns the message's attachment. Only photos, videos and plain
// documents can go into an album; everything else is MediaOther.
func mediaOf(msg *tgbotapi.Message) *types.MediaItem {
	switch {
	case len(msg.Photo) > 0:
		return &types.MediaItem{Kind: types.MediaPhoto, FileID: msg.Photo[len(msg.Photo)-1].FileID, Caption: msg.Caption}
	case msg.Video != nil:
		return &types.MediaItem{Kind: types.MediaVideo, FileID: msg.Video.FileID, Caption: msg.Caption}
	case msg.Animation != nil:
		// Animations also carry a Document.
		return &types.MediaItem{Kind: types.MediaOther, FileID: msg.Animation.FileID}
	case msg.Document != nil:
		return &types.MediaItem{Kind: types.MediaDocument, FileID: msg.Document.FileID, Caption: msg.Caption}
	case msg.Sticker != nil:
		return &types.MediaItem{Kind: types.MediaOther, FileID: msg.Sticker.FileID}
	case msg.Voice != nil:
		return &types.MediaItem{Kind: types.MediaOther, FileID: msg.Voice.FileID}
	case msg.VideoNote != nil:
		return &types.MediaItem{Kind: types.MediaOther, FileID: msg.VideoNote.FileID}
	case msg.Audio != nil:
		return &types.MediaItem{Kind: types.MediaOther, FileID: msg.Audio.FileID}
	case msg.Text == "":
		// Polls, contacts, locations and the like.
		return &types.MediaItem{Kind: types.MediaOther}
	}
	return nil
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name != "" {
		return name
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return fmt.Sprintf("user %d", u.ID)
}

func inlineMarkup(rows [][]types.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func menuMarkup(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	out := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		out = append(out, tgbotapi.NewKeyboardButtonRow(buttons...))
	}
	return tgbotapi.NewReplyKeyboard(out...)
}

// replyMarkup picks the keyboard for a text message. Inline buttons win
// over a reply menu.
func replyMarkup(opts *types.SendOptions) interface{} {
	if opts == nil {
		return nil
	}
	switch {
	case len(opts.Inline) > 0:
		return inlineMarkup(opts.Inline)
	case len(opts.Menu) > 0:
		return menuMarkup(opts.Menu)
	case opts.RemoveMenu:
		return tgbotapi.NewRemoveKeyboard(false)
	}
	return nil
}

func fileData(m types.OutboundMedia, index int) tgbotapi.RequestFileData {
	if m.Data != nil {
		return tgbotapi.FileBytes{Name: fmt.Sprintf("%s-%d.jpg", m.Kind, index), Bytes: m.Data}
	}
	return tgbotapi.FileID(m.FileID)
}

func parseMode(html bool) string {
	if html {
		return tgbotapi.ModeHTML
	}
	return ""
}

// inputMedia builds media group members.
func inputMedia(media []types.OutboundMedia) ([]interface{}, error) {
	out := make([]interface{}, 0, len(media))
	for i, m := range media {
		file := fileData(m, i)
		switch m.Kind {
		case types.MediaPhoto:
			im := tgbotapi.NewInputMediaPhoto(file)
			im.Caption, im.ParseMode = m.Caption, parseMode(m.HTML)
			out = append(out, im)
		case types.MediaVideo:
			im := tgbotapi.NewInputMediaVideo(file)
			im.Caption, im.ParseMode = m.Caption, parseMode(m.HTML)
			out = append(out, im)
		case types.MediaDocument:
			im := tgbotapi.NewInputMediaDocument(file)
			im.Caption, im.ParseMode = m.Caption, parseMode(m.HTML)
			out = append(out, im)
		default:
			return nil, fmt.Errorf("media kind %q cannot be sent in a group", m.Kind)
		}
	}
	return out, nil
}

// singleMedia builds the send config for a one-item group, which Telegram
// rejects as a media group.
func singleMedia(chatID int64, m types.OutboundMedia) (tgbotapi.Chattable, error) {
	file := fileData(m, 0)
	switch m.Kind {
	case types.MediaPhoto:
		c := tgbotapi.NewPhoto(chatID, file)
		c.Caption, c.ParseMode = m.Caption, parseMode(m.HTML)
		return c, nil
	case types.MediaVideo:
		c := tgbotapi.NewVideo(chatID, file)
		c.Caption, c.ParseMode = m.Caption, parseMode(m.HTML)
		return c, nil
	case types.MediaDocument:
		c := tgbotapi.NewDocument(chatID, file)
		c.Caption, c.ParseMode = m.Caption, parseMode(m.HTML)
		return c, nil
	}
	return nil, fmt.Errorf("media kind %q cannot be sent", m.Kind)
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
