package roulette

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_CreateAndGet(t *testing.T) {
	appCtx, _ := newTestApp(t)
	m := NewSessionManager(appCtx)
	ctx := context.Background()

	sess, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Contains(t, sess.ID, "roulette_")
	assert.True(t, sess.Has("alice"))
	assert.True(t, sess.Has("bob"))
	assert.False(t, sess.Has("carol"))

	got, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)

	// party index points both parties at the session
	for _, p := range []string{"alice", "bob"} {
		found, err := m.SessionFor(ctx, p)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, sess.ID, found.ID)
	}

	assert.True(t, appCtx.Timers.Active(sess.ID))
	m.timers.Cancel(sess.ID)
}

func TestSessionManager_GetMissingReturnsNil(t *testing.T) {
	appCtx, _ := newTestApp(t)
	m := NewSessionManager(appCtx)

	sess, err := m.Get(context.Background(), "roulette_missing")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSessionManager_RegisterLikeIsIdempotent(t *testing.T) {
	appCtx, _ := newTestApp(t)
	m := NewSessionManager(appCtx)
	ctx := context.Background()

	sess, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	defer m.timers.Cancel(sess.ID)

	res, err := m.RegisterLike(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Mutual)
	assert.Len(t, res.Likes, 1)

	// repeat like adds nothing
	res, err = m.RegisterLike(ctx, sess.ID, "alice")
	require.NoError(t, err)
	assert.False(t, res.Mutual)
	assert.Len(t, res.Likes, 1)

	res, err = m.RegisterLike(ctx, sess.ID, "bob")
	require.NoError(t, err)
	assert.True(t, res.Mutual)
	assert.Len(t, res.Likes, 2)
}

func TestSessionManager_RegisterLikeOnMissingSession(t *testing.T) {
	appCtx, _ := newTestApp(t)
	m := NewSessionManager(appCtx)
	ctx := context.Background()

	res, err := m.RegisterLike(ctx, "roulette_gone", "alice")
	require.NoError(t, err)
	assert.False(t, res.Found)

	// no like set may materialize for an id that has no session record
	exists, err := appCtx.Store.Exists(ctx, "likes:roulette_gone")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSessionManager_LikeSetExpiresWithSession(t *testing.T) {
	appCtx, _ := newTestApp(t)
	m := NewSessionManager(appCtx)
	ctx := context.Background()

	sess, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	defer m.timers.Cancel(sess.ID)

	_, err = m.RegisterLike(ctx, sess.ID, "alice")
	require.NoError(t, err)

	ttl, err := appCtx.Store.Client.TTL(ctx, "likes:"+sess.ID).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestSessionManager_ConcurrentEndBroadcastsOnce(t *testing.T) {
	appCtx, rec := newTestApp(t)
	m := NewSessionManager(appCtx)
	ctx := context.Background()

	// timeout and skip racing on the same id must produce a single ended
	// event, whichever claims the record first
	for i := 0; i < 25; i++ {
		sess, err := m.Create(ctx, "alice", "bob")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		for _, reason := range []string{EndTimeout, EndSkipped} {
			go func(reason string) {
				defer wg.Done()
				errs <- m.End(ctx, sess.ID, reason)
			}(reason)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		require.Len(t, rec.Events("roulette_ended"), i+1)
	}
}

func TestSessionManager_EndBroadcastsAndDeletes(t *testing.T) {
	appCtx, rec := newTestApp(t)
	m := NewSessionManager(appCtx)
	ctx := context.Background()

	sess, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = m.RegisterLike(ctx, sess.ID, "alice")
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, sess.ID, EndSkipped))

	ended := rec.Events("roulette_ended")
	require.Len(t, ended, 1)
	payload := ended[0].Data.(SessionEnded)
	assert.Equal(t, sess.ID, payload.SessionID)
	assert.Equal(t, EndSkipped, payload.Reason)
	assert.False(t, payload.Mutual)

	gone, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.False(t, appCtx.Timers.Active(sess.ID))

	// party index cleaned
	for _, p := range []string{"alice", "bob"} {
		found, err := m.SessionFor(ctx, p)
		require.NoError(t, err)
		assert.Nil(t, found)
	}
}

func TestSessionManager_EndIsIdempotent(t *testing.T) {
	appCtx, rec := newTestApp(t)
	m := NewSessionManager(appCtx)
	ctx := context.Background()

	sess, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, sess.ID, EndUserLeft))
	require.NoError(t, m.End(ctx, sess.ID, EndUserLeft))
	require.NoError(t, m.End(ctx, "roulette_never_existed", EndTimeout))

	assert.Len(t, rec.Events("roulette_ended"), 1)
}

func TestSessionManager_EndReportsMutual(t *testing.T) {
	appCtx, rec := newTestApp(t)
	m := NewSessionManager(appCtx)
	ctx := context.Background()

	sess, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = m.RegisterLike(ctx, sess.ID, "alice")
	require.NoError(t, err)
	_, err = m.RegisterLike(ctx, sess.ID, "bob")
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, sess.ID, EndMutualLike))

	ended := rec.Events("roulette_ended")
	require.Len(t, ended, 1)
	assert.True(t, ended[0].Data.(SessionEnded).Mutual)
}

func TestSessionManager_TimeoutEndsSession(t *testing.T) {
	appCtx, rec := newTestApp(t)
	appCtx.Cfg.Roulette.SessionDuration = 2 * time.Second // 2 fast ticks
	m := NewSessionManager(appCtx)
	ctx := context.Background()

	sess, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.Events("roulette_ended")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	payload := rec.Events("roulette_ended")[0].Data.(SessionEnded)
	assert.Equal(t, EndTimeout, payload.Reason)

	gone, err := m.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	// ticks were broadcast to the session room while it lived
	assert.NotEmpty(t, rec.Events("timer_update"))
}
