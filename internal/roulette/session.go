package roulette

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/freedomchat/backend/internal/app"
	"github.com/freedomchat/backend/internal/broadcast"
	"github.com/freedomchat/backend/internal/metrics"
	"github.com/freedomchat/backend/internal/store"
	"github.com/freedomchat/backend/internal/timer"
)

// LikeResult is the outcome of registering a like.
type LikeResult struct {
	Found  bool
	Mutual bool
	Likes  []string
}

// SessionManager creates and ends timed roulette sessions and records like
// votes. Session state machine: created -> active (ticking) ->
// {timeout | skipped | mutual_like} -> destroyed.
type SessionManager struct {
	store     *store.Redis
	broadcast broadcast.Broadcaster
	timers    *timer.Registry
	log       *slog.Logger

	duration  time.Duration
	ttlBuffer time.Duration
}

func NewSessionManager(appCtx *app.AppContext) *SessionManager {
	return &SessionManager{
		store:     appCtx.Store,
		broadcast: appCtx.Broadcast,
		timers:    appCtx.Timers,
		log:       appCtx.Logger,
		duration:  appCtx.Cfg.Roulette.SessionDuration,
		ttlBuffer: appCtx.Cfg.Roulette.TTLBuffer,
	}
}

// Duration returns the nominal session length in seconds.
func (m *SessionManager) Duration() int {
	return int(m.duration.Seconds())
}

// Create writes a new session record for the pair, initializes an empty like
// set, and starts the countdown. Joining both parties to the broadcast room
// is the caller's concern.
func (m *SessionManager) Create(ctx context.Context, partyA, partyB string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        "roulette_" + uuid.NewString(),
		User1:     partyA,
		User2:     partyB,
		StartedAt: now.UnixMilli(),
		ExpiresAt: now.Add(m.duration).UnixMilli(),
	}

	ttl := m.duration + m.ttlBuffer
	if err := m.store.SetJSON(ctx, sessionKey(sess.ID), sess, ttl); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := m.store.Del(ctx, likesKey(sess.ID)); err != nil {
		return nil, fmt.Errorf("init like set: %w", err)
	}
	// party -> session index, used by the disconnect hook
	for _, p := range []string{partyA, partyB} {
		if err := m.store.Set(ctx, partySessionKey(p), sess.ID, ttl); err != nil {
			return nil, fmt.Errorf("index party %s: %w", p, err)
		}
	}

	m.startCountdown(sess.ID)
	metrics.MatchesMade.Inc()
	m.log.Info("roulette session created", "session", sess.ID, "user1", partyA, "user2", partyB)
	return sess, nil
}

// Get returns the session, or nil when it does not exist.
func (m *SessionManager) Get(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	found, err := m.store.GetJSON(ctx, sessionKey(sessionID), &sess)
	if err != nil || !found {
		return nil, err
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	return &sess, nil
}

// SessionFor returns the active session partyID belongs to, if any.
func (m *SessionManager) SessionFor(ctx context.Context, partyID string) (*Session, error) {
	id, found, err := m.store.Get(ctx, partySessionKey(partyID))
	if err != nil || !found {
		return nil, err
	}
	return m.Get(ctx, id)
}

// RegisterLike adds partyID to the session's like set. Idempotent: liking
// twice has no additional effect. Mutual is true iff both parties are in the
// set. Detection of mutual likes does not trigger the private-chat hand-off
// here; that is the caller's move.
func (m *SessionManager) RegisterLike(ctx context.Context, sessionID, partyID string) (LikeResult, error) {
	sess, err := m.Get(ctx, sessionID)
	if err != nil {
		return LikeResult{}, err
	}
	if sess == nil {
		// never touch the like set for a dead or invented id
		return LikeResult{}, nil
	}

	if err := m.store.Client.SAdd(ctx, likesKey(sessionID), partyID).Err(); err != nil {
		return LikeResult{}, fmt.Errorf("register like: %w", err)
	}
	// the set never outlives the session record's own expiry window
	ttl := time.Until(time.UnixMilli(sess.ExpiresAt)) + m.ttlBuffer
	if err := m.store.Client.Expire(ctx, likesKey(sessionID), ttl).Err(); err != nil {
		return LikeResult{}, fmt.Errorf("bound like set: %w", err)
	}

	likes, err := m.store.Client.SMembers(ctx, likesKey(sessionID)).Result()
	if err != nil {
		return LikeResult{}, fmt.Errorf("read like set: %w", err)
	}
	return LikeResult{
		Found:  true,
		Mutual: contains(likes, sess.User1) && contains(likes, sess.User2),
		Likes:  likes,
	}, nil
}

// End tears the session down: cancels the countdown, broadcasts the ended
// event with the final mutual status, then deletes the session record and
// like set. Safe to call when the session is already gone; a late timer tick
// or a second explicit teardown is a silent no-op.
func (m *SessionManager) End(ctx context.Context, sessionID, reason string) error {
	// cancel before deleting keys so no tick fires against deleted state
	m.timers.Cancel(sessionID)

	// taking the record is the claim: of two racing teardowns (timeout vs
	// skip/disconnect) only the one that gets the value proceeds to broadcast
	var sess Session
	claimed, err := m.store.GetDelJSON(ctx, sessionKey(sessionID), &sess)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("session %s: %w", sessionID, err)
	}

	likes, err := m.store.Client.SMembers(ctx, likesKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("read like set: %w", err)
	}
	mutual := contains(likes, sess.User1) && contains(likes, sess.User2)

	m.broadcast.Emit(sessionID, "roulette_ended", SessionEnded{
		SessionID: sessionID,
		Reason:    reason,
		Mutual:    mutual,
	})

	if err := m.store.Del(ctx, likesKey(sessionID),
		partySessionKey(sess.User1), partySessionKey(sess.User2)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	metrics.SessionsEnded.WithLabelValues(reason).Inc()
	m.log.Info("roulette session ended", "session", sessionID, "reason", reason, "mutual", mutual)
	return nil
}

func (m *SessionManager) startCountdown(sessionID string) {
	m.timers.Start(sessionID, m.Duration(),
		func(remaining int) {
			m.broadcast.Emit(sessionID, "timer_update", TimerUpdate{
				ID:        sessionID,
				Remaining: remaining,
				Kind:      "roulette",
			})
		},
		func() {
			if err := m.End(context.Background(), sessionID, EndTimeout); err != nil {
				m.log.Error("end session on timeout", "session", sessionID, "err", err)
			}
		})
}
