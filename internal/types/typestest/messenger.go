// Package typestest provides in-memory fakes of the collaborator interfaces.
package typestest

import (
	"context"
	"fmt"
	"sync"

	"github.com/T1murKa41/pixilgnang/internal/types"
)

type SentText struct {
	ChatID int64
	Text   string
	Opts   *types.SendOptions
}

type SentGroup struct {
	ChatID int64
	Media  []types.OutboundMedia
}

type Forwarded struct {
	To, From  int64
	MessageID int
}

type Copied struct {
	To, From  int64
	MessageID int
}

type Edit struct {
	Ref     types.MessageRef
	Text    string
	Buttons [][]types.Button
}

// Messenger records every call. Setting one of the Fail* fields makes the
// matching call return that error. FailForward also fails Copy.
type Messenger struct {
	mu     sync.Mutex
	nextID int

	Texts    []SentText
	Groups   []SentGroup
	Forwards []Forwarded
	Copies   []Copied
	Edits    []Edit
	Deletes  []types.MessageRef
	Files    map[string][]byte
	Fetched  []string

	FailSendText func(chatID int64) error
	FailGroup    error
	FailForward  error
	FailEdit     error
	FailDelete   error

	// FailDeleteRef, when set, decides per message whether Delete fails.
	FailDeleteRef func(ref types.MessageRef) error
}

func NewMessenger() *Messenger {
	return &Messenger{nextID: 100, Files: make(map[string][]byte)}
}

func (m *Messenger) id() int {
	m.nextID++
	return m.nextID
}

func (m *Messenger) SendText(_ context.Context, chatID int64, text string, opts *types.SendOptions) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSendText != nil {
		if err := m.FailSendText(chatID); err != nil {
			return 0, err
		}
	}
	m.Texts = append(m.Texts, SentText{ChatID: chatID, Text: text, Opts: opts})
	return m.id(), nil
}

func (m *Messenger) Forward(_ context.Context, to, from int64, messageID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailForward != nil {
		return 0, m.FailForward
	}
	m.Forwards = append(m.Forwards, Forwarded{To: to, From: from, MessageID: messageID})
	return m.id(), nil
}

func (m *Messenger) Copy(_ context.Context, to, from int64, messageID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailForward != nil {
		return 0, m.FailForward
	}
	m.Copies = append(m.Copies, Copied{To: to, From: from, MessageID: messageID})
	return m.id(), nil
}

func (m *Messenger) SendMediaGroup(_ context.Context, chatID int64, media []types.OutboundMedia) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGroup != nil {
		return nil, m.FailGroup
	}
	m.Groups = append(m.Groups, SentGroup{ChatID: chatID, Media: media})
	ids := make([]int, len(media))
	for i := range media {
		ids[i] = m.id()
	}
	return ids, nil
}

func (m *Messenger) EditText(_ context.Context, ref types.MessageRef, text string, buttons [][]types.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailEdit != nil {
		return m.FailEdit
	}
	m.Edits = append(m.Edits, Edit{Ref: ref, Text: text, Buttons: buttons})
	return nil
}

func (m *Messenger) Delete(_ context.Context, ref types.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return m.FailDelete
	}
	if m.FailDeleteRef != nil {
		if err := m.FailDeleteRef(ref); err != nil {
			return err
		}
	}
	m.Deletes = append(m.Deletes, ref)
	return nil
}

func (m *Messenger) FetchFile(_ context.Context, fileID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Files[fileID]
	if !ok {
		return nil, fmt.Errorf("fetch file %s: not found", fileID)
	}
	m.Fetched = append(m.Fetched, fileID)
	return data, nil
}

// TextsTo returns the texts sent to chatID in order.
func (m *Messenger) TextsTo(chatID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.Texts {
		if s.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

// LastText returns the most recent text sent to chatID, or "".
func (m *Messenger) LastText(chatID int64) string {
	texts := m.TextsTo(chatID)
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

var _ types.Messenger = (*Messenger)(nil)
