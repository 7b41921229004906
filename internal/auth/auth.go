package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/freedomchat/backend/internal/app"
	"github.com/freedomchat/backend/internal/store"
)

const verifyCodeTTL = 5 * time.Minute

func phoneKey(phone string) string     { return "auth:phone:" + phone }
func verifyKey(phone string) string    { return "auth:verify:" + phone }
func facebookKey(fbID string) string   { return "auth:facebook:" + fbID }
func userAuthKey(userID string) string { return "auth:user:" + userID }

const signupSourcesKey = "stats:signup_sources"

// VerifyResult is the outcome of a phone code check.
type VerifyResult struct {
	OK             bool   `json:"ok"`
	Error          string `json:"error,omitempty"`
	IsNewUser      bool   `json:"isNewUser,omitempty"`
	ExistingUserID string `json:"existingUserId,omitempty"`
}

// SignupSources is the per-channel signup breakdown.
type SignupSources struct {
	Facebook int `json:"facebook"`
	Phone    int `json:"phone"`
	Invite   int `json:"invite"`
	Total    int `json:"total"`
}

// Manager handles phone verification, account linking and admin sessions.
// Admin sessions are in-process only: they are keyed by connection id and
// die with the connection.
type Manager struct {
	store        *store.Redis
	log          *slog.Logger
	passwordHash string

	mu     sync.Mutex
	admins map[string]struct{}
}

func NewManager(appCtx *app.AppContext) *Manager {
	return &Manager{
		store:        appCtx.Store,
		log:          appCtx.Logger,
		passwordHash: appCtx.Cfg.Admin.PasswordHash,
		admins:       make(map[string]struct{}),
	}
}

// AdminLogin checks the password against the configured bcrypt hash and, on
// success, marks the connection as an admin session.
func (m *Manager) AdminLogin(clientID, password string) bool {
	if m.passwordHash == "" {
		return false
	}
	if bcrypt.CompareHashAndPassword([]byte(m.passwordHash), []byte(password)) != nil {
		m.log.Warn("admin login rejected", "client", clientID)
		return false
	}
	m.mu.Lock()
	m.admins[clientID] = struct{}{}
	m.mu.Unlock()
	m.log.Info("admin login", "client", clientID)
	return true
}

// IsAdmin reports whether the connection holds an admin session.
func (m *Manager) IsAdmin(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.admins[clientID]
	return ok
}

// DropAdmin clears the connection's admin session, for the disconnect sweep.
func (m *Manager) DropAdmin(clientID string) {
	m.mu.Lock()
	delete(m.admins, clientID)
	m.mu.Unlock()
}

// SendVerificationCode issues a 6-digit code for the phone number, valid for
// five minutes. The code is returned to the caller for delivery; SMS dispatch
// is out of process.
func (m *Manager) SendVerificationCode(ctx context.Context, phone string) (string, error) {
	normalized := normalizePhone(phone)
	if normalized == "" {
		return "", fmt.Errorf("invalid phone number")
	}
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	if err := m.store.Set(ctx, verifyKey(normalized), code, verifyCodeTTL); err != nil {
		return "", fmt.Errorf("store verification code: %w", err)
	}
	m.log.Debug("verification code issued", "phone", normalized)
	return code, nil
}

// VerifyCode checks and consumes a phone verification code.
func (m *Manager) VerifyCode(ctx context.Context, phone, code string) (VerifyResult, error) {
	normalized := normalizePhone(phone)
	stored, found, err := m.store.Get(ctx, verifyKey(normalized))
	if err != nil {
		return VerifyResult{}, err
	}
	if !found {
		return VerifyResult{Error: "code_expired"}, nil
	}
	if stored != code {
		return VerifyResult{Error: "invalid_code"}, nil
	}
	if err := m.store.Del(ctx, verifyKey(normalized)); err != nil {
		return VerifyResult{}, err
	}

	existing, found, err := m.store.Get(ctx, phoneKey(normalized))
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{OK: true, IsNewUser: !found, ExistingUserID: existing}, nil
}

// LinkPhone binds a verified phone number to a user.
func (m *Manager) LinkPhone(ctx context.Context, userID, phone string) error {
	normalized := normalizePhone(phone)
	if err := m.store.Set(ctx, phoneKey(normalized), userID, 0); err != nil {
		return err
	}
	return m.store.Client.HSet(ctx, userAuthKey(userID), "phone", normalized).Err()
}

// LinkFacebook binds a Facebook identity to a user.
func (m *Manager) LinkFacebook(ctx context.Context, userID, facebookID string) error {
	if err := m.store.Set(ctx, facebookKey(facebookID), userID, 0); err != nil {
		return err
	}
	return m.store.Client.HSet(ctx, userAuthKey(userID), "facebookId", facebookID).Err()
}

// UserByFacebook resolves a Facebook identity to a user id, empty when
// unknown.
func (m *Manager) UserByFacebook(ctx context.Context, facebookID string) (string, error) {
	userID, _, err := m.store.Get(ctx, facebookKey(facebookID))
	return userID, err
}

// TrackSignupSource counts a signup by channel (facebook, phone or invite),
// lifetime plus per day.
func (m *Manager) TrackSignupSource(ctx context.Context, source string) error {
	c := m.store.Client
	if err := c.HIncrBy(ctx, signupSourcesKey, source, 1).Err(); err != nil {
		return err
	}
	day := source + ":" + time.Now().UTC().Format("2006-01-02")
	return c.HIncrBy(ctx, signupSourcesKey, day, 1).Err()
}

// SignupSourceStats returns the lifetime per-channel signup counts.
func (m *Manager) SignupSourceStats(ctx context.Context) (SignupSources, error) {
	data, err := m.store.Client.HGetAll(ctx, signupSourcesKey).Result()
	if err != nil {
		return SignupSources{}, err
	}
	get := func(field string) int {
		n, _ := strconv.Atoi(data[field])
		return n
	}
	s := SignupSources{
		Facebook: get("facebook"),
		Phone:    get("phone"),
		Invite:   get("invite"),
	}
	s.Total = s.Facebook + s.Phone + s.Invite
	return s, nil
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
