package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/T1murKa41/pixilgnang/internal/delivery"
	"github.com/T1murKa41/pixilgnang/internal/publish"
	"github.com/T1murKa41/pixilgnang/internal/state"
	"github.com/T1murKa41/pixilgnang/internal/types"
	"github.com/T1murKa41/pixilgnang/internal/types/typestest"
)

const (
	modID       int64 = 1
	submitterID int64 = 7
	modChat     int64 = -900
	logChat     int64 = -901
)

type fakePublisher struct {
	mu     sync.Mutex
	calls  int
	err    error
	nextID int
}

func (p *fakePublisher) Publish(_ context.Context, sub *types.PendingSubmission, dest delivery.Destination) (types.PublishedRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return types.PublishedRef{}, &types.PublishError{Destination: dest.Key, Err: p.err}
	}
	p.nextID++
	id := 500 + p.nextID
	return types.PublishedRef{Destination: dest.Key, ChatID: dest.ChatID, MessageID: id, MessageIDs: []int{id}}, nil
}

type env struct {
	d     *Dispatcher
	subs  *state.SubmissionStore
	posts *state.PostStore
	users *state.UserStore
	msgr  *typestest.Messenger
	pub   *fakePublisher
	clock *fakeClock
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db := openDB(t)

	e := &env{
		subs:  state.NewSubmissionStore(db),
		posts: state.NewPostStore(db),
		users: state.NewUserStore(db),
		msgr:  typestest.NewMessenger(),
		pub:   &fakePublisher{},
		clock: &fakeClock{now: time.Unix(1_700_000_000, 0)},
	}

	_, err := e.users.Touch(ctx, modID, "Mod")
	require.NoError(t, err)
	require.NoError(t, e.users.SetAdmin(ctx, modID, true))

	reg := delivery.NewRegistry()
	require.NoError(t, reg.Register(delivery.Destination{Key: "pg", ChatID: -100, Title: "PG"}))
	require.NoError(t, reg.Register(delivery.Destination{Key: "poco", ChatID: -200, Title: "Poco"}))

	limiter := NewLimiter(state.NewCooldownStore(db), 1200*time.Second)
	limiter.SetClock(e.clock.Now)

	e.d = NewDispatcher(Deps{
		Submissions: e.subs,
		Posts:       e.posts,
		Users:       e.users,
		Registry:    reg,
		Limiter:     limiter,
		Publisher:   e.pub,
		Messenger:   e.msgr,
		Notifier:    delivery.NewNotifier(e.msgr, logChat, nil),
	})
	e.d.now = e.clock.Now
	return e
}

func (e *env) submit(t *testing.T) types.SubmissionID {
	t.Helper()
	sub := &types.PendingSubmission{
		ID:            types.NewSubmissionID(),
		Items:         []types.MediaItem{{Kind: types.MediaPhoto, FileID: "p1"}},
		Caption:       "hello",
		SubmitterID:   submitterID,
		SubmitterName: "Ann",
		CreatedAt:     e.clock.Now(),
	}
	require.NoError(t, e.subs.Put(context.Background(), sub))
	return sub.ID
}

func (e *env) press(t *testing.T, tok Token) Outcome {
	t.Helper()
	out, err := e.d.Handle(context.Background(), types.Action{
		Token:     tok.String(),
		ActorID:   modID,
		ActorName: "Mod",
		Origin:    types.MessageRef{ChatID: modChat, MessageID: 42},
	})
	require.NoError(t, err)
	return out
}

func TestAcceptPublishes(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submit(t)

	out := e.press(t, AcceptToken("pg", id))
	assert.Equal(t, OutcomePublished, out.Kind)
	assert.Equal(t, 501, out.PublishedMessageID)
	assert.Equal(t, 1, e.pub.calls)

	_, err := e.subs.Get(ctx, id)
	assert.ErrorIs(t, err, types.ErrNotFound)

	post, err := e.posts.Get(ctx, "pg", 501)
	require.NoError(t, err)
	assert.Equal(t, submitterID, post.SubmitterID)

	assert.Contains(t, e.msgr.LastText(submitterID), "published")
	assert.NotEmpty(t, e.msgr.TextsTo(logChat))

	require.Len(t, e.msgr.Edits, 1)
	edit := e.msgr.Edits[0]
	assert.Equal(t, types.MessageRef{ChatID: modChat, MessageID: 42}, edit.Ref)
	require.Len(t, edit.Buttons, 1)
	assert.Equal(t, "delete-pg-501", edit.Buttons[0][0].Data)
}

func TestAcceptReplayIsAlreadyHandled(t *testing.T) {
	e := newEnv(t)
	id := e.submit(t)

	require.Equal(t, OutcomePublished, e.press(t, AcceptToken("pg", id)).Kind)
	out := e.press(t, AcceptToken("pg", id))
	assert.Equal(t, OutcomeAlreadyHandled, out.Kind)
	assert.Equal(t, 1, e.pub.calls, "replay must never publish twice")

	out = e.press(t, AcceptToken("poco", id))
	assert.Equal(t, OutcomeAlreadyHandled, out.Kind)
}

func TestAcceptWithinWindowDenied(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first, second := e.submit(t), e.submit(t)

	require.Equal(t, OutcomePublished, e.press(t, AcceptToken("pg", first)).Kind)

	e.clock.Advance(600 * time.Second)
	out := e.press(t, AcceptToken("pg", second))
	assert.Equal(t, OutcomeRateLimited, out.Kind)
	assert.Equal(t, 600, out.Remaining)
	assert.Contains(t, out.Text(), "600 seconds")

	_, err := e.subs.Get(ctx, second)
	assert.NoError(t, err, "denied submission stays pending")

	out = e.press(t, AcceptToken("poco", second))
	assert.Equal(t, OutcomePublished, out.Kind, "other destination is not limited")
}

func TestAcceptDeniedCanRetryAfterWindow(t *testing.T) {
	e := newEnv(t)
	first, second := e.submit(t), e.submit(t)

	require.Equal(t, OutcomePublished, e.press(t, AcceptToken("pg", first)).Kind)
	require.Equal(t, OutcomeRateLimited, e.press(t, AcceptToken("pg", second)).Kind)
	require.Equal(t, OutcomeRateLimited, e.press(t, AcceptToken("pg", second)).Kind)

	e.clock.Advance(1200 * time.Second)
	assert.Equal(t, OutcomePublished, e.press(t, AcceptToken("pg", second)).Kind)
}

func TestAcceptPublishFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submit(t)

	e.pub.err = errors.New("Bad Request: wrong file identifier")
	out := e.press(t, AcceptToken("pg", id))
	assert.Equal(t, OutcomePublishFailed, out.Kind)

	_, err := e.subs.Get(ctx, id)
	require.NoError(t, err, "record kept after failed publish")
	assert.Empty(t, e.msgr.TextsTo(submitterID))

	e.pub.err = nil
	out = e.press(t, AcceptToken("pg", id))
	assert.Equal(t, OutcomePublished, out.Kind, "failed publish must not start the cooldown")
}

func TestDecline(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submit(t)

	out := e.press(t, DeclineToken(id))
	assert.Equal(t, OutcomeDeclined, out.Kind)

	_, err := e.subs.Get(ctx, id)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Contains(t, e.msgr.LastText(submitterID), "declined")
	require.Len(t, e.msgr.Edits, 1)
	assert.Contains(t, e.msgr.Edits[0].Text, "Declined")

	out = e.press(t, DeclineToken(id))
	assert.Equal(t, OutcomeAlreadyHandled, out.Kind)
	assert.Len(t, e.msgr.TextsTo(submitterID), 1)
}

func TestDeleteAfterPublish(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submit(t)

	pub := e.press(t, AcceptToken("pg", id))
	require.Equal(t, OutcomePublished, pub.Kind)

	out := e.press(t, DeleteToken("pg", pub.PublishedMessageID))
	assert.Equal(t, OutcomeDeleted, out.Kind)
	require.Len(t, e.msgr.Deletes, 1)
	assert.Equal(t, types.MessageRef{ChatID: -100, MessageID: pub.PublishedMessageID}, e.msgr.Deletes[0])
	assert.Contains(t, e.msgr.LastText(submitterID), "removed")

	_, err := e.posts.Get(ctx, "pg", pub.PublishedMessageID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// submitAlbum stores a submission of n photos and switches the dispatcher
// to the real publish pipeline, so message ids come from the messenger.
func (e *env) submitAlbum(t *testing.T, n int) types.SubmissionID {
	t.Helper()
	e.d.publisher = publish.NewPipeline(e.msgr, nil)
	sub := &types.PendingSubmission{
		ID:            types.NewSubmissionID(),
		Caption:       "album",
		SubmitterID:   submitterID,
		SubmitterName: "Ann",
		CreatedAt:     e.clock.Now(),
	}
	for i := 0; i < n; i++ {
		sub.Items = append(sub.Items, types.MediaItem{Kind: types.MediaPhoto, FileID: fmt.Sprintf("p%d", i)})
	}
	require.NoError(t, e.subs.Put(context.Background(), sub))
	return sub.ID
}

func TestDeleteRemovesWholeAlbum(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submitAlbum(t, 3)

	pub := e.press(t, AcceptToken("pg", id))
	require.Equal(t, OutcomePublished, pub.Kind)
	require.Len(t, e.msgr.Groups, 1)
	require.Len(t, e.msgr.Groups[0].Media, 3)

	post, err := e.posts.Get(ctx, "pg", pub.PublishedMessageID)
	require.NoError(t, err)
	require.Len(t, post.MessageIDs, 3)
	assert.Equal(t, pub.PublishedMessageID, post.MessageIDs[0])

	out := e.press(t, DeleteToken("pg", pub.PublishedMessageID))
	assert.Equal(t, OutcomeDeleted, out.Kind)
	require.Len(t, e.msgr.Deletes, 3)
	for i, ref := range e.msgr.Deletes {
		assert.Equal(t, types.MessageRef{ChatID: -100, MessageID: post.MessageIDs[i]}, ref)
	}

	_, err = e.posts.Get(ctx, "pg", pub.PublishedMessageID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeleteAlbumPartialFailureRetriesRest(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submitAlbum(t, 3)

	pub := e.press(t, AcceptToken("pg", id))
	require.Equal(t, OutcomePublished, pub.Kind)
	post, err := e.posts.Get(ctx, "pg", pub.PublishedMessageID)
	require.NoError(t, err)
	stuck := post.MessageIDs[2]

	e.msgr.FailDeleteRef = func(ref types.MessageRef) error {
		if ref.MessageID == stuck {
			return errors.New("Too Many Requests: retry after 3")
		}
		return nil
	}
	out := e.press(t, DeleteToken("pg", pub.PublishedMessageID))
	assert.Equal(t, OutcomeDeleteFailed, out.Kind)
	assert.Len(t, e.msgr.Deletes, 2)

	post, err = e.posts.Get(ctx, "pg", pub.PublishedMessageID)
	require.NoError(t, err)
	assert.Equal(t, []int{stuck}, post.MessageIDs, "record keeps only what is still in the channel")

	e.msgr.FailDeleteRef = nil
	out = e.press(t, DeleteToken("pg", pub.PublishedMessageID))
	assert.Equal(t, OutcomeDeleted, out.Kind)
	require.Len(t, e.msgr.Deletes, 3)
	assert.Equal(t, stuck, e.msgr.Deletes[2].MessageID)
	assert.Contains(t, e.msgr.LastText(submitterID), "removed")
}

func TestDeleteWithoutPostRecord(t *testing.T) {
	e := newEnv(t)

	out := e.press(t, DeleteToken("pg", 77))
	assert.Equal(t, OutcomeDeleted, out.Kind)
	assert.Empty(t, e.msgr.TextsTo(submitterID))
}

func TestDeleteFailure(t *testing.T) {
	e := newEnv(t)
	e.msgr.FailDelete = errors.New("Bad Request: message can't be deleted")

	out := e.press(t, DeleteToken("pg", 77))
	assert.Equal(t, OutcomeDeleteFailed, out.Kind)
	assert.Empty(t, e.msgr.Edits)
}

func TestNonAdminUnauthorized(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submit(t)

	out, err := e.d.Handle(ctx, types.Action{Token: AcceptToken("pg", id).String(), ActorID: submitterID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnauthorized, out.Kind)
	assert.Equal(t, 0, e.pub.calls)

	_, err = e.subs.Get(ctx, id)
	assert.NoError(t, err)
}

func TestInvalidAndUnknown(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.submit(t)

	out, err := e.d.Handle(ctx, types.Action{Token: "garbage", ActorID: modID})
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalid, out.Kind)

	out = e.press(t, AcceptToken("nowhere", id))
	assert.Equal(t, OutcomeUnknownDestination, out.Kind)
	assert.Equal(t, 0, e.pub.calls)
}

func TestConcurrentAcceptAndDecline(t *testing.T) {
	e := newEnv(t)
	id := e.submit(t)

	var wg sync.WaitGroup
	outs := make([]Outcome, 2)
	for i, tok := range []Token{AcceptToken("pg", id), DeclineToken(id)} {
		wg.Add(1)
		go func(i int, tok Token) {
			defer wg.Done()
			out, err := e.d.Handle(context.Background(), types.Action{Token: tok.String(), ActorID: modID})
			assert.NoError(t, err)
			outs[i] = out
		}(i, tok)
	}
	wg.Wait()

	terminal := 0
	for _, o := range outs {
		if o.Kind == OutcomePublished || o.Kind == OutcomeDeclined {
			terminal++
		} else {
			assert.Equal(t, OutcomeAlreadyHandled, o.Kind)
		}
	}
	assert.Equal(t, 1, terminal)
}

func TestOutcomeText(t *testing.T) {
	out := Outcome{Kind: OutcomeRateLimited, Destination: "pg", Remaining: 12}
	assert.True(t, strings.HasSuffix(out.Text(), "12 seconds"))
	assert.Equal(t, "Invalid action", Outcome{Kind: OutcomeInvalid}.Text())
}
