package rooms

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

func newTestManager(t *testing.T, admins ...string) *Manager {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	adminSet := make(map[string]struct{}, len(admins))
	for _, id := range admins {
		adminSet[id] = struct{}{}
	}
	appCtx := app.New(&config.Config{}, store.NewFromClient(client),
		broadcast.NewRecorder(), timer.NewWithInterval(time.Second),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewManager(appCtx, func(id string) bool {
		_, ok := adminSet[id]
		return ok
	})
}

func TestInitDefaults_SeedsOnceOnly(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.InitDefaults(ctx))
	all, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	// joining general then re-seeding must not wipe membership
	_, err = m.Join(ctx, "u1", "general")
	require.NoError(t, err)
	require.NoError(t, m.InitDefaults(ctx))

	general, err := m.Get(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, 1, general.MemberCount)
}

func TestCreate_CustomRoomAutoJoinsCreator(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	out, err := m.Create(ctx, "creator", "Ada", Room{Name: "Movies"})
	require.NoError(t, err)
	require.True(t, out.OK)
	assert.Contains(t, out.Room.ID, "custom_")
	assert.False(t, out.Room.IsDefault)
	assert.Equal(t, "creator", out.Room.CreatorID)
	assert.Equal(t, 1, out.Room.MemberCount)
}

func TestJoin_BannedUserIsDeclined(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	out, err := m.Create(ctx, "creator", "Ada", Room{Name: "Movies"})
	require.NoError(t, err)
	roomID := out.Room.ID

	joined, err := m.Join(ctx, "troll", roomID)
	require.NoError(t, err)
	require.True(t, joined.OK)

	banned, err := m.Ban(ctx, "creator", "troll", roomID)
	require.NoError(t, err)
	require.True(t, banned.OK)

	rejoin, err := m.Join(ctx, "troll", roomID)
	require.NoError(t, err)
	assert.False(t, rejoin.OK)
	assert.Equal(t, "banned", rejoin.Reason)

	unbanned, err := m.Unban(ctx, "creator", "troll", roomID)
	require.NoError(t, err)
	require.True(t, unbanned.OK)
	rejoin, err = m.Join(ctx, "troll", roomID)
	require.NoError(t, err)
	assert.True(t, rejoin.OK)
}

func TestModeration_CreatorAndAdminOnly(t *testing.T) {
	m := newTestManager(t, "admin")
	ctx := context.Background()

	out, err := m.Create(ctx, "creator", "Ada", Room{Name: "Movies"})
	require.NoError(t, err)
	roomID := out.Room.ID
	_, err = m.Join(ctx, "member", roomID)
	require.NoError(t, err)

	kick, err := m.Kick(ctx, "member", "creator", roomID)
	require.NoError(t, err)
	assert.False(t, kick.OK)
	assert.Equal(t, "not_authorized", kick.Reason)

	kick, err = m.Kick(ctx, "creator", "member", roomID)
	require.NoError(t, err)
	assert.True(t, kick.OK)

	// admins moderate any room
	_, err = m.Join(ctx, "member", roomID)
	require.NoError(t, err)
	kick, err = m.Kick(ctx, "admin", "member", roomID)
	require.NoError(t, err)
	assert.True(t, kick.OK)
}

func TestDefaultRooms_RequireAdmin(t *testing.T) {
	m := newTestManager(t, "admin")
	ctx := context.Background()
	require.NoError(t, m.InitDefaults(ctx))

	out, err := m.Update(ctx, "regular", "general", Room{Name: "Hijacked"})
	require.NoError(t, err)
	assert.False(t, out.OK)

	out, err = m.Update(ctx, "admin", "general", Room{Name: "Renamed"})
	require.NoError(t, err)
	require.True(t, out.OK)
	assert.Equal(t, "Renamed", out.Room.Name)

	created, err := m.CreateDefault(ctx, "regular", Room{Name: "Sports"})
	require.NoError(t, err)
	assert.False(t, created.OK)

	created, err = m.CreateDefault(ctx, "admin", Room{Name: "Sports"})
	require.NoError(t, err)
	assert.True(t, created.OK)
	assert.True(t, created.Room.IsDefault)
}

func TestAll_DefaultRoomsSortFirst(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.InitDefaults(ctx))

	out, err := m.Create(ctx, "creator", "Ada", Room{Name: "Busy"})
	require.NoError(t, err)
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := m.Join(ctx, id, out.Room.ID)
		require.NoError(t, err)
	}

	all, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for _, listing := range all[:3] {
		assert.True(t, listing.IsDefault)
	}
	assert.Equal(t, out.Room.ID, all[3].ID)
}

func TestMembers_DropsStaleEntries(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.InitDefaults(ctx))

	_, err := m.Join(ctx, "alive", "general")
	require.NoError(t, err)
	_, err = m.Join(ctx, "ghost", "general")
	require.NoError(t, err)

	members, err := m.Members(ctx, "general", func(_ context.Context, id string) (bool, error) {
		return id == "alive", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alive"}, members)

	// ghost was cleaned up in passing
	general, err := m.Get(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, 1, general.MemberCount)
}

func TestRemoveFromAll_ClearsEveryMembership(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.InitDefaults(ctx))

	_, err := m.Join(ctx, "u1", "general")
	require.NoError(t, err)
	_, err = m.Join(ctx, "u1", "news")
	require.NoError(t, err)

	require.NoError(t, m.RemoveFromAll(ctx, "u1"))

	joined, err := m.RoomsOf(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, joined)
	general, err := m.Get(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, 0, general.MemberCount)
}

func TestDelete_CustomRoomByCreator(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	out, err := m.Create(ctx, "creator", "Ada", Room{Name: "Temp"})
	require.NoError(t, err)

	deleted, err := m.Delete(ctx, "stranger", out.Room.ID)
	require.NoError(t, err)
	assert.False(t, deleted.OK)

	deleted, err = m.Delete(ctx, "creator", out.Room.ID)
	require.NoError(t, err)
	require.True(t, deleted.OK)

	gone, err := m.Get(ctx, out.Room.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
