package roulette

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher(t *testing.T) (*Matcher, *matchLog) {
	t.Helper()
	appCtx, _ := newTestApp(t)
	m := NewMatcher(appCtx,
		NewQueue(appCtx.Store),
		NewSessionManager(appCtx),
		NewChatManager(appCtx))

	ml := &matchLog{}
	m.OnMatch(ml.record)
	t.Cleanup(func() {
		for _, sess := range ml.all() {
			appCtx.Timers.Cancel(sess.ID)
		}
	})
	return m, ml
}

type matchLog struct {
	mu       sync.Mutex
	sessions []*Session
}

func (l *matchLog) record(sess *Session) {
	l.mu.Lock()
	l.sessions = append(l.sessions, sess)
	l.mu.Unlock()
}

func (l *matchLog) all() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Session, len(l.sessions))
	copy(out, l.sessions)
	return out
}

func TestMatcher_JoinWaitsUntilCounterpart(t *testing.T) {
	m, ml := newTestMatcher(t)
	ctx := context.Background()

	res, err := m.Join(ctx, "m1", GenderMale)
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, 1, res.Position)
	assert.Empty(t, ml.all())

	res, err = m.Join(ctx, "f1", GenderFemale)
	require.NoError(t, err)
	require.True(t, res.Matched)
	require.NotNil(t, res.Session)
	assert.True(t, res.Session.Has("m1"))
	assert.True(t, res.Session.Has("f1"))

	// the announce callback saw the same session
	announced := ml.all()
	require.Len(t, announced, 1)
	assert.Equal(t, res.Session.ID, announced[0].ID)

	// both queues drained
	depth, err := m.Queue().Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestMatcher_JoinDeclinesPropagate(t *testing.T) {
	m, _ := newTestMatcher(t)
	ctx := context.Background()

	res, err := m.Join(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, DeclineGenderRequired, res.Declined)

	_, err = m.Join(ctx, "u1", GenderMale)
	require.NoError(t, err)
	res, err = m.Join(ctx, "u1", GenderMale)
	require.NoError(t, err)
	assert.Equal(t, DeclineAlreadyQueued, res.Declined)
}

func TestMatcher_JoinAlreadyQueuedReportsRealPosition(t *testing.T) {
	m, _ := newTestMatcher(t)
	ctx := context.Background()

	_, err := m.Join(ctx, "m1", GenderMale)
	require.NoError(t, err)
	_, err = m.Join(ctx, "m2", GenderMale)
	require.NoError(t, err)

	// a repeat join is declined but still reports where the party stands
	res, err := m.Join(ctx, "m1", GenderMale)
	require.NoError(t, err)
	assert.Equal(t, DeclineAlreadyQueued, res.Declined)
	assert.Equal(t, 2, res.Position)
}

func TestMatcher_SkipRequeuesBothAndRematches(t *testing.T) {
	m, ml := newTestMatcher(t)
	ctx := context.Background()

	_, err := m.Join(ctx, "m1", GenderMale)
	require.NoError(t, err)
	res, err := m.Join(ctx, "f1", GenderFemale)
	require.NoError(t, err)
	require.True(t, res.Matched)
	first := res.Session

	require.NoError(t, m.Skip(ctx, first.ID, "m1"))

	// with no one else waiting the same pair is matched again, in a new session
	announced := ml.all()
	require.Len(t, announced, 2)
	second := announced[1]
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.Has("m1"))
	assert.True(t, second.Has("f1"))

	// the skipped session is gone, the new one is live
	gone, err := m.Sessions().Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	live, err := m.Sessions().Get(ctx, second.ID)
	require.NoError(t, err)
	assert.NotNil(t, live)
}

func TestMatcher_SkipMissingSessionIsNoop(t *testing.T) {
	m, ml := newTestMatcher(t)
	require.NoError(t, m.Skip(context.Background(), "roulette_gone", "m1"))
	assert.Empty(t, ml.all())
}

func TestMatcher_MutualLikeHandsOffToPrivateChat(t *testing.T) {
	m, _ := newTestMatcher(t)
	ctx := context.Background()

	_, err := m.Join(ctx, "m1", GenderMale)
	require.NoError(t, err)
	res, err := m.Join(ctx, "f1", GenderFemale)
	require.NoError(t, err)
	require.True(t, res.Matched)

	chat, err := m.HandleMutualLike(ctx, res.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, chat)
	defer m.Chats().End(ctx, chat.ID, EndUserLeft)

	assert.True(t, chat.Has("m1"))
	assert.True(t, chat.Has("f1"))

	// never in a session and a chat at once
	sess, err := m.Sessions().SessionFor(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, sess)

	// second hand-off for the same session is a no-op
	again, err := m.HandleMutualLike(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestMatcher_HandleDisconnectCleansEverything(t *testing.T) {
	m, _ := newTestMatcher(t)
	ctx := context.Background()

	// waiting in queue
	_, err := m.Join(ctx, "m1", GenderMale)
	require.NoError(t, err)
	require.NoError(t, m.HandleDisconnect(ctx, "m1"))
	depth, err := m.Queue().Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	// in a session
	_, err = m.Join(ctx, "m2", GenderMale)
	require.NoError(t, err)
	res, err := m.Join(ctx, "f2", GenderFemale)
	require.NoError(t, err)
	require.True(t, res.Matched)

	require.NoError(t, m.HandleDisconnect(ctx, "f2"))
	sess, err := m.Sessions().Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Nil(t, sess)

	// in a private chat
	_, err = m.Join(ctx, "m3", GenderMale)
	require.NoError(t, err)
	res, err = m.Join(ctx, "f3", GenderFemale)
	require.NoError(t, err)
	chat, err := m.HandleMutualLike(ctx, res.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, chat)

	require.NoError(t, m.HandleDisconnect(ctx, "m3"))
	goneChat, err := m.Chats().Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, goneChat)

	// disconnecting an unknown party is harmless
	require.NoError(t, m.HandleDisconnect(ctx, "stranger"))
}

func TestMatcher_FullLifecycle(t *testing.T) {
	m, ml := newTestMatcher(t)
	ctx := context.Background()

	// three males, one female: FIFO pairs m1+f1, m2 and m3 wait
	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := m.Join(ctx, id, GenderMale)
		require.NoError(t, err)
	}
	res, err := m.Join(ctx, "f1", GenderFemale)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.True(t, res.Session.Has("m1"))

	// mutual like moves the pair into a private chat
	_, err = m.Sessions().RegisterLike(ctx, res.Session.ID, "m1")
	require.NoError(t, err)
	like, err := m.Sessions().RegisterLike(ctx, res.Session.ID, "f1")
	require.NoError(t, err)
	require.True(t, like.Mutual)

	chat, err := m.HandleMutualLike(ctx, res.Session.ID)
	require.NoError(t, err)
	require.NotNil(t, chat)

	// both extend once
	_, err = m.Chats().VoteExtend(ctx, chat.ID, "m1")
	require.NoError(t, err)
	ext, err := m.Chats().VoteExtend(ctx, chat.ID, "f1")
	require.NoError(t, err)
	require.True(t, ext.Extended)

	// f1 leaves; chat ends, m2 and m3 still waiting
	require.NoError(t, m.HandleDisconnect(ctx, "f1"))
	depth, err := m.Queue().Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, depth)

	// a new female arrives and pairs with m2, the longest waiting
	res, err = m.Join(ctx, "f2", GenderFemale)
	require.NoError(t, err)
	require.True(t, res.Matched)
	assert.True(t, res.Session.Has("m2"))

	assert.Len(t, ml.all(), 2)
}
