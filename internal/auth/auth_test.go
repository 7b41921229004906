package auth

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
	"golang.org/x/crypto/bcrypt"

	"github.com/freedomchat/backend/internal/app"
	"github.com/freedomchat/backend/internal/broadcast"
	"github.com/freedomchat/backend/internal/config"
	"github.com/freedomchat/backend/internal/store"
	"github.com/freedomchat/backend/internal/timer"
)

func newTestManager(t *testing.T, passwordHash string) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{}
	cfg.Admin.PasswordHash = passwordHash
	appCtx := app.New(cfg, store.NewFromClient(client),
		broadcast.NewRecorder(), timer.NewWithInterval(time.Second),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return NewManager(appCtx), mr
}

func TestAdminLogin_SessionLifecycle(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	m, _ := newTestManager(t, string(hash))

	assert.False(t, m.AdminLogin("conn1", "wrong"))
	assert.False(t, m.IsAdmin("conn1"))

	assert.True(t, m.AdminLogin("conn1", "hunter2"))
	assert.True(t, m.IsAdmin("conn1"))
	assert.False(t, m.IsAdmin("conn2"))

	m.DropAdmin("conn1")
	assert.False(t, m.IsAdmin("conn1"))
}

func TestAdminLogin_DisabledWithoutHash(t *testing.T) {
	m, _ := newTestManager(t, "")
	assert.False(t, m.AdminLogin("conn1", "anything"))
}

func TestVerifyCode_ConsumesOnSuccess(t *testing.T) {
	m, _ := newTestManager(t, "")
	ctx := context.Background()

	code, err := m.SendVerificationCode(ctx, "+49 170 1234567")
	require.NoError(t, err)
	require.Len(t, code, 6)

	res, err := m.VerifyCode(ctx, "491701234567", code)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.True(t, res.IsNewUser)

	// the code is single use
	res, err = m.VerifyCode(ctx, "491701234567", code)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "code_expired", res.Error)
}

func TestVerifyCode_WrongCodeKeepsStored(t *testing.T) {
	m, _ := newTestManager(t, "")
	ctx := context.Background()

	code, err := m.SendVerificationCode(ctx, "491701234567")
	require.NoError(t, err)

	res, err := m.VerifyCode(ctx, "491701234567", "000000")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "invalid_code", res.Error)

	res, err = m.VerifyCode(ctx, "491701234567", code)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestVerifyCode_Expires(t *testing.T) {
	m, mr := newTestManager(t, "")
	ctx := context.Background()

	_, err := m.SendVerificationCode(ctx, "491701234567")
	require.NoError(t, err)

	mr.FastForward(verifyCodeTTL + time.Second)

	res, err := m.VerifyCode(ctx, "491701234567", "123456")
	require.NoError(t, err)
	assert.Equal(t, "code_expired", res.Error)
}

func TestVerifyCode_ReportsExistingUser(t *testing.T) {
	m, _ := newTestManager(t, "")
	ctx := context.Background()

	require.NoError(t, m.LinkPhone(ctx, "user-42", "491701234567"))

	code, err := m.SendVerificationCode(ctx, "491701234567")
	require.NoError(t, err)
	res, err := m.VerifyCode(ctx, "491701234567", code)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.False(t, res.IsNewUser)
	assert.Equal(t, "user-42", res.ExistingUserID)
}

func TestSendVerificationCode_RejectsGarbage(t *testing.T) {
	m, _ := newTestManager(t, "")
	_, err := m.SendVerificationCode(context.Background(), "not a number")
	assert.Error(t, err)
}

func TestLinkFacebook_Resolves(t *testing.T) {
	m, _ := newTestManager(t, "")
	ctx := context.Background()

	require.NoError(t, m.LinkFacebook(ctx, "user-7", "fb-abc"))

	userID, err := m.UserByFacebook(ctx, "fb-abc")
	require.NoError(t, err)
	assert.Equal(t, "user-7", userID)

	unknown, err := m.UserByFacebook(ctx, "fb-nope")
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestTrackSignupSource_Breakdown(t *testing.T) {
	m, _ := newTestManager(t, "")
	ctx := context.Background()

	require.NoError(t, m.TrackSignupSource(ctx, "phone"))
	require.NoError(t, m.TrackSignupSource(ctx, "phone"))
	require.NoError(t, m.TrackSignupSource(ctx, "facebook"))
	require.NoError(t, m.TrackSignupSource(ctx, "invite"))

	stats, err := m.SignupSourceStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Phone)
	assert.Equal(t, 1, stats.Facebook)
	assert.Equal(t, 1, stats.Invite)
	assert.Equal(t, 4, stats.Total)
}
