package roulette

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freedomchat/backend/internal/app"
	"github.com/freedomchat/backend/internal/broadcast"
	"github.com/freedomchat/backend/internal/config"
	"github.com/freedomchat/backend/internal/store"
	"github.com/freedomchat/backend/internal/timer"
)

func newTestStore(t *testing.T) *store.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return store.NewFromClient(client)
}

// newTestApp wires an AppContext against miniredis with a fast timer tick and
// a recording broadcaster.
func newTestApp(t *testing.T) (*app.AppContext, *broadcast.Recorder) {
	t.Helper()
	st := newTestStore(t)
	rec := broadcast.NewRecorder()

	cfg := &config.Config{}
	cfg.Roulette.SessionDuration = 180 * time.Second
	cfg.Roulette.PrivateDuration = 300 * time.Second
	cfg.Roulette.ExtendDuration = 300 * time.Second
	cfg.Roulette.SweepInterval = 2 * time.Second
	cfg.Roulette.TTLBuffer = 60 * time.Second

	timers := timer.NewWithInterval(20 * time.Millisecond)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.New(cfg, st, rec, timers, log), rec
}

func TestQueue_EnqueueRequiresGender(t *testing.T) {
	q := NewQueue(newTestStore(t))
	ctx := context.Background()

	declined, err := q.Enqueue(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, DeclineGenderRequired, declined)

	declined, err = q.Enqueue(ctx, "u1", "other")
	require.NoError(t, err)
	assert.Equal(t, DeclineGenderRequired, declined)
}

func TestQueue_NoDoubleQueueing(t *testing.T) {
	q := NewQueue(newTestStore(t))
	ctx := context.Background()

	declined, err := q.Enqueue(ctx, "u1", GenderMale)
	require.NoError(t, err)
	require.Equal(t, DeclineNone, declined)

	// same queue
	declined, err = q.Enqueue(ctx, "u1", GenderMale)
	require.NoError(t, err)
	assert.Equal(t, DeclineAlreadyQueued, declined)

	// other queue
	declined, err = q.Enqueue(ctx, "u1", GenderFemale)
	require.NoError(t, err)
	assert.Equal(t, DeclineAlreadyQueued, declined)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestQueue_PopPairFIFO(t *testing.T) {
	q := NewQueue(newTestStore(t))
	ctx := context.Background()

	for _, id := range []string{"m1", "m2"} {
		_, err := q.Enqueue(ctx, id, GenderMale)
		require.NoError(t, err)
	}
	for _, id := range []string{"f1", "f2"} {
		_, err := q.Enqueue(ctx, id, GenderFemale)
		require.NoError(t, err)
	}

	male, female, ok, err := q.PopPair(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m1", male)
	assert.Equal(t, "f1", female)

	male, female, ok, err = q.PopPair(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m2", male)
	assert.Equal(t, "f2", female)

	_, _, ok, err = q.PopPair(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueue_PopPairPushesBackOnPartialPop(t *testing.T) {
	q := NewQueue(newTestStore(t))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "m1", GenderMale)
	require.NoError(t, err)

	_, _, ok, err := q.PopPair(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// m1 must still be waiting at the front
	_, err = q.Enqueue(ctx, "f1", GenderFemale)
	require.NoError(t, err)
	male, female, ok, err := q.PopPair(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m1", male)
	assert.Equal(t, "f1", female)
}

func TestQueue_LeaveIsIdempotent(t *testing.T) {
	q := NewQueue(newTestStore(t))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "u1", GenderFemale)
	require.NoError(t, err)

	require.NoError(t, q.Leave(ctx, "u1"))
	require.NoError(t, q.Leave(ctx, "u1"))
	require.NoError(t, q.Leave(ctx, "never-queued"))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestQueue_DepthIsCombined(t *testing.T) {
	q := NewQueue(newTestStore(t))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "m1", GenderMale)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "m2", GenderMale)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "f1", GenderFemale)
	require.NoError(t, err)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, depth)
}
