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

// ExtendResult is the outcome of an extend vote.
type ExtendResult struct {
	Found       bool
	Extended    bool
	VotedCount  int
	NewDuration int
}

// ChatManager mirrors SessionManager for private chats, with an extend
// mechanic instead of like/mutual-match. The chat id is stable across
// extensions; each extension requires a fresh unanimous vote.
type ChatManager struct {
	store     *store.Redis
	broadcast broadcast.Broadcaster
	timers    *timer.Registry
	log       *slog.Logger

	duration       time.Duration
	extendDuration time.Duration
	ttlBuffer      time.Duration
}

func NewChatManager(appCtx *app.AppContext) *ChatManager {
	return &ChatManager{
		store:          appCtx.Store,
		broadcast:      appCtx.Broadcast,
		timers:         appCtx.Timers,
		log:            appCtx.Logger,
		duration:       appCtx.Cfg.Roulette.PrivateDuration,
		extendDuration: appCtx.Cfg.Roulette.ExtendDuration,
		ttlBuffer:      appCtx.Cfg.Roulette.TTLBuffer,
	}
}

// Duration returns the initial chat length in seconds.
func (m *ChatManager) Duration() int {
	return int(m.duration.Seconds())
}

// Create opens a private chat for the pair and starts its countdown.
func (m *ChatManager) Create(ctx context.Context, partyA, partyB string) (*PrivateChat, error) {
	now := time.Now()
	chat := &PrivateChat{
		ID:        "private_" + uuid.NewString(),
		User1:     partyA,
		User2:     partyB,
		StartedAt: now.UnixMilli(),
		ExpiresAt: now.Add(m.duration).UnixMilli(),
	}

	ttl := m.duration + m.ttlBuffer
	if err := m.store.SetJSON(ctx, privateKey(chat.ID), chat, ttl); err != nil {
		return nil, fmt.Errorf("create private chat: %w", err)
	}
	if err := m.store.Del(ctx, extendKey(chat.ID)); err != nil {
		return nil, fmt.Errorf("init extend set: %w", err)
	}
	for _, p := range []string{partyA, partyB} {
		if err := m.store.Set(ctx, partyChatKey(p), chat.ID, ttl); err != nil {
			return nil, fmt.Errorf("index party %s: %w", p, err)
		}
	}

	m.startCountdown(chat.ID, m.Duration())
	metrics.PrivateChatsStarted.Inc()
	m.log.Info("private chat created", "chat", chat.ID, "user1", partyA, "user2", partyB)
	return chat, nil
}

// Get returns the chat, or nil when it does not exist.
func (m *ChatManager) Get(ctx context.Context, chatID string) (*PrivateChat, error) {
	var chat PrivateChat
	found, err := m.store.GetJSON(ctx, privateKey(chatID), &chat)
	if err != nil || !found {
		return nil, err
	}
	if err := chat.Validate(); err != nil {
		return nil, fmt.Errorf("private chat %s: %w", chatID, err)
	}
	return &chat, nil
}

// ChatFor returns the active private chat partyID belongs to, if any.
func (m *ChatManager) ChatFor(ctx context.Context, partyID string) (*PrivateChat, error) {
	id, found, err := m.store.Get(ctx, partyChatKey(partyID))
	if err != nil || !found {
		return nil, err
	}
	return m.Get(ctx, id)
}

// VoteExtend records partyID's vote for the current countdown window.
// Idempotent per round. When both parties have voted, the chat's expiry is
// recomputed on the same chat id, the vote set is cleared for the next round,
// a fresh countdown starts, and "chat_extended" is broadcast.
func (m *ChatManager) VoteExtend(ctx context.Context, chatID, partyID string) (ExtendResult, error) {
	chat, err := m.Get(ctx, chatID)
	if err != nil {
		return ExtendResult{}, err
	}
	if chat == nil {
		// never touch the vote set for a dead or invented id
		return ExtendResult{}, nil
	}

	if err := m.store.Client.SAdd(ctx, extendKey(chatID), partyID).Err(); err != nil {
		return ExtendResult{}, fmt.Errorf("record extend vote: %w", err)
	}
	// the set never outlives the chat record's own expiry window
	ttl := time.Until(time.UnixMilli(chat.ExpiresAt)) + m.ttlBuffer
	if err := m.store.Client.Expire(ctx, extendKey(chatID), ttl).Err(); err != nil {
		return ExtendResult{}, fmt.Errorf("bound extend set: %w", err)
	}

	votes, err := m.store.Client.SMembers(ctx, extendKey(chatID)).Result()
	if err != nil {
		return ExtendResult{}, fmt.Errorf("read extend set: %w", err)
	}
	if !(contains(votes, chat.User1) && contains(votes, chat.User2)) {
		return ExtendResult{Found: true, VotedCount: len(votes)}, nil
	}

	if err := m.extend(ctx, chat); err != nil {
		return ExtendResult{}, err
	}
	return ExtendResult{Found: true, Extended: true, NewDuration: int(m.extendDuration.Seconds())}, nil
}

func (m *ChatManager) extend(ctx context.Context, chat *PrivateChat) error {
	// cancel the running countdown before rearming the same id
	m.timers.Cancel(chat.ID)

	chat.ExpiresAt = time.Now().Add(m.extendDuration).UnixMilli()
	ttl := m.extendDuration + m.ttlBuffer
	if err := m.store.SetJSON(ctx, privateKey(chat.ID), chat, ttl); err != nil {
		return fmt.Errorf("extend private chat: %w", err)
	}
	// votes never carry over across extension rounds
	if err := m.store.Del(ctx, extendKey(chat.ID)); err != nil {
		return fmt.Errorf("clear extend set: %w", err)
	}
	for _, p := range []string{chat.User1, chat.User2} {
		if err := m.store.Set(ctx, partyChatKey(p), chat.ID, ttl); err != nil {
			return fmt.Errorf("refresh party index %s: %w", p, err)
		}
	}

	newDuration := int(m.extendDuration.Seconds())
	m.startCountdown(chat.ID, newDuration)
	m.broadcast.Emit(chat.ID, "chat_extended", ChatExtended{
		ChatID:      chat.ID,
		NewDuration: newDuration,
	})

	metrics.PrivateChatsExtended.Inc()
	m.log.Info("private chat extended", "chat", chat.ID, "duration_s", newDuration)
	return nil
}

// End tears the chat down with the same idempotent contract as roulette's
// End: cancel the countdown, broadcast "ended", delete records; a missing
// chat is a silent no-op.
func (m *ChatManager) End(ctx context.Context, chatID, reason string) error {
	m.timers.Cancel(chatID)

	// taking the record is the claim, as in SessionManager.End: a racing
	// timeout and user-leave cannot both broadcast
	var chat PrivateChat
	claimed, err := m.store.GetDelJSON(ctx, privateKey(chatID), &chat)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if err := chat.Validate(); err != nil {
		return fmt.Errorf("private chat %s: %w", chatID, err)
	}

	m.broadcast.Emit(chatID, "private_chat_ended", ChatEnded{
		ChatID: chatID,
		Reason: reason,
	})

	if err := m.store.Del(ctx, extendKey(chatID),
		partyChatKey(chat.User1), partyChatKey(chat.User2)); err != nil {
		return fmt.Errorf("delete private chat: %w", err)
	}

	metrics.PrivateChatsEnded.WithLabelValues(reason).Inc()
	m.log.Info("private chat ended", "chat", chatID, "reason", reason)
	return nil
}

func (m *ChatManager) startCountdown(chatID string, totalSeconds int) {
	m.timers.Start(chatID, totalSeconds,
		func(remaining int) {
			m.broadcast.Emit(chatID, "timer_update", TimerUpdate{
				ID:        chatID,
				Remaining: remaining,
				Kind:      "private",
			})
		},
		func() {
			if err := m.End(context.Background(), chatID, EndTimeout); err != nil {
				m.log.Error("end private chat on timeout", "chat", chatID, "err", err)
			}
		})
}
