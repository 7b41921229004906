package roulette

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatManager_CreateAndLookup(t *testing.T) {
	appCtx, _ := newTestApp(t)
	m := NewChatManager(appCtx)
	ctx := context.Background()

	chat, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Contains(t, chat.ID, "private_")

	got, err := m.Get(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	found, err := m.ChatFor(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, chat.ID, found.ID)

	m.timers.Cancel(chat.ID)
}

func TestChatManager_VoteExtendNeedsBothParties(t *testing.T) {
	appCtx, rec := newTestApp(t)
	m := NewChatManager(appCtx)
	ctx := context.Background()

	chat, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	defer m.timers.Cancel(chat.ID)

	res, err := m.VoteExtend(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.False(t, res.Extended)
	assert.Equal(t, 1, res.VotedCount)

	// voting twice does not move the count
	res, err = m.VoteExtend(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.False(t, res.Extended)
	assert.Equal(t, 1, res.VotedCount)

	res, err = m.VoteExtend(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.True(t, res.Extended)
	assert.Equal(t, 300, res.NewDuration)

	extended := rec.Events("chat_extended")
	require.Len(t, extended, 1)
	payload := extended[0].Data.(ChatExtended)
	assert.Equal(t, chat.ID, payload.ChatID)
	assert.Equal(t, 300, payload.NewDuration)

	// id is stable across the extension
	got, err := m.Get(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestChatManager_ExtensionRoundsAreIsolated(t *testing.T) {
	appCtx, rec := newTestApp(t)
	m := NewChatManager(appCtx)
	ctx := context.Background()

	chat, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)
	defer m.timers.Cancel(chat.ID)

	_, err = m.VoteExtend(ctx, chat.ID, "alice")
	require.NoError(t, err)
	res, err := m.VoteExtend(ctx, chat.ID, "bob")
	require.NoError(t, err)
	require.True(t, res.Extended)

	// a second extension needs a fresh unanimous vote
	res, err = m.VoteExtend(ctx, chat.ID, "alice")
	require.NoError(t, err)
	assert.False(t, res.Extended)
	assert.Equal(t, 1, res.VotedCount)

	res, err = m.VoteExtend(ctx, chat.ID, "bob")
	require.NoError(t, err)
	assert.True(t, res.Extended)
	assert.Len(t, rec.Events("chat_extended"), 2)
}

func TestChatManager_VoteExtendOnMissingChat(t *testing.T) {
	appCtx, _ := newTestApp(t)
	m := NewChatManager(appCtx)
	ctx := context.Background()

	res, err := m.VoteExtend(ctx, "private_gone", "alice")
	require.NoError(t, err)
	assert.False(t, res.Found)

	// no vote set may materialize for an id that has no chat record
	exists, err := appCtx.Store.Exists(ctx, "extend:private_gone")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestChatManager_ConcurrentEndBroadcastsOnce(t *testing.T) {
	appCtx, rec := newTestApp(t)
	m := NewChatManager(appCtx)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		chat, err := m.Create(ctx, "alice", "bob")
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, 2)
		wg.Add(2)
		for _, reason := range []string{EndTimeout, EndUserLeft} {
			go func(reason string) {
				defer wg.Done()
				errs <- m.End(ctx, chat.ID, reason)
			}(reason)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		require.Len(t, rec.Events("private_chat_ended"), i+1)
	}
}

func TestChatManager_EndIsIdempotent(t *testing.T) {
	appCtx, rec := newTestApp(t)
	m := NewChatManager(appCtx)
	ctx := context.Background()

	chat, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, chat.ID, EndUserLeft))
	require.NoError(t, m.End(ctx, chat.ID, EndUserLeft))
	require.NoError(t, m.End(ctx, "private_never_existed", EndTimeout))

	ended := rec.Events("private_chat_ended")
	require.Len(t, ended, 1)
	payload := ended[0].Data.(ChatEnded)
	assert.Equal(t, chat.ID, payload.ChatID)
	assert.Equal(t, EndUserLeft, payload.Reason)

	gone, err := m.ChatFor(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.False(t, appCtx.Timers.Active(chat.ID))
}

func TestChatManager_TimeoutEndsChat(t *testing.T) {
	appCtx, rec := newTestApp(t)
	appCtx.Cfg.Roulette.PrivateDuration = 2 * time.Second // 2 fast ticks
	m := NewChatManager(appCtx)
	ctx := context.Background()

	chat, err := m.Create(ctx, "alice", "bob")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(rec.Events("private_chat_ended")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	payload := rec.Events("private_chat_ended")[0].Data.(ChatEnded)
	assert.Equal(t, EndTimeout, payload.Reason)

	gone, err := m.Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
