package stats

import (
	"context"
	"io"
	"log/slog"
	"strings"
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

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	appCtx := app.New(&config.Config{}, store.NewFromClient(client),
		broadcast.NewRecorder(), timer.NewWithInterval(time.Second),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr := NewTracker(appCtx)
	// pin the clock so daily/monthly buckets are deterministic
	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return fixed }
	return tr
}

func TestIncrement_WritesAllThreeResolutions(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Increment(ctx, FieldMatches, 1))
	require.NoError(t, tr.Increment(ctx, FieldMatches, 2))

	global, err := tr.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, global.TotalMatches)

	day, err := tr.DailyStats(ctx, "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, 3, day.Fields[FieldMatches])

	month, err := tr.MonthlyStats(ctx, "2026-08")
	require.NoError(t, err)
	assert.Equal(t, 3, month[FieldMatches])
}

func TestTrackSignup_GenderSplitAndEmailList(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackSignup(ctx, "ada@example.com", "Ada", "Berlin", "female"))
	require.NoError(t, tr.TrackSignup(ctx, "bob@example.com", "Bob", "Paris", "male"))
	require.NoError(t, tr.TrackSignup(ctx, "", "NoEmail", "", "male"))

	global, err := tr.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, global.TotalSignups)

	day, err := tr.DailyStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, day.Fields[FieldFemaleSignups])
	assert.Equal(t, 2, day.Fields[FieldMaleSignups])

	count, err := tr.EmailCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// repeat signup with the same email overwrites, never duplicates
	require.NoError(t, tr.TrackSignup(ctx, "ada@example.com", "Ada Again", "Berlin", "female"))
	count, err = tr.EmailCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestTrackMessage_PerChannelCounters(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.TrackMessage(ctx, "roulette"))
	require.NoError(t, tr.TrackMessage(ctx, "room"))
	require.NoError(t, tr.TrackMessage(ctx, "room"))
	require.NoError(t, tr.TrackMessage(ctx, "private"))
	require.NoError(t, tr.TrackMessage(ctx, ""))

	global, err := tr.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, global.TotalMessages)
	assert.Equal(t, 2, global.TotalRoomMessages)

	day, err := tr.DailyStats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, day.Fields[FieldRouletteMessages])
	assert.Equal(t, 1, day.Fields[FieldPrivateMessages])
}

func TestUpdatePeakUsers_OnlyRaises(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.UpdatePeakUsers(ctx, 10))
	require.NoError(t, tr.UpdatePeakUsers(ctx, 4))

	global, err := tr.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, global.PeakConcurrentUsers)

	require.NoError(t, tr.UpdatePeakUsers(ctx, 25))
	global, err = tr.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, global.PeakConcurrentUsers)
}

func TestSetActiveUsers_PublishesAndRaisesPeak(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.SetActiveUsers(ctx, 7))
	active, err := tr.ActiveUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, active)

	global, err := tr.GlobalStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, global.PeakConcurrentUsers)
}

func TestStatsRange_OldestFirst(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.Increment(ctx, FieldLikes, 1))

	days, err := tr.StatsRange(ctx, 3)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, "2026-08-26", days[0].Date)
	assert.Equal(t, "2026-08-27", days[1].Date)
	assert.Equal(t, "2026-08-28", days[2].Date)
	assert.Equal(t, 1, days[2].Fields[FieldLikes])
	assert.Empty(t, days[0].Fields)
}

func TestExportEmailsCSV(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.AddEmail(ctx, "ada@example.com", "Ada", "Berlin"))

	csvOut, err := tr.ExportEmailsCSV(ctx)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(csvOut), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "email,name,city,joined_date", lines[0])
	assert.Contains(t, lines[1], "ada@example.com")
	assert.Contains(t, lines[1], "Berlin")
}

func TestEmailList_NewestFirst(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return base }
	require.NoError(t, tr.AddEmail(ctx, "old@example.com", "Old", ""))
	tr.now = func() time.Time { return base.Add(time.Minute) }
	require.NoError(t, tr.AddEmail(ctx, "new@example.com", "New", ""))

	list, err := tr.EmailList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new@example.com", list[0].Email)
}
