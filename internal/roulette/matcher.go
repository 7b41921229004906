package roulette

import (
	"context"
	"log/slog"
	"time"

	"github.com/freedomchat/backend/internal/app"
)

// JoinResult is the discriminated outcome of a queue join or match attempt.
type JoinResult struct {
	Declined Decline
	Matched  bool
	Session  *Session
	// combined depth of both queues, reported while waiting
	Position int
}

// Matcher orchestrates the queue, the session manager and the chat manager:
// event-driven pairing on join, the periodic sweep, skip rematching and the
// disconnect hook. Every successful pairing, whichever path formed it, flows
// through one announce callback so the gateway can join parties to the
// session room and notify them.
type Matcher struct {
	queue    *Queue
	sessions *SessionManager
	chats    *ChatManager
	log      *slog.Logger

	sweepInterval time.Duration
	onMatch       func(*Session)
}

func NewMatcher(appCtx *app.AppContext, queue *Queue, sessions *SessionManager, chats *ChatManager) *Matcher {
	return &Matcher{
		queue:         queue,
		sessions:      sessions,
		chats:         chats,
		log:           appCtx.Logger,
		sweepInterval: appCtx.Cfg.Roulette.SweepInterval,
	}
}

// OnMatch registers the announce callback invoked for every new session.
func (m *Matcher) OnMatch(fn func(*Session)) {
	m.onMatch = fn
}

// Queue exposes the underlying queue (leave on disconnect, tests).
func (m *Matcher) Queue() *Queue { return m.queue }

// Sessions exposes the session manager.
func (m *Matcher) Sessions() *SessionManager { return m.sessions }

// Chats exposes the private chat manager.
func (m *Matcher) Chats() *ChatManager { return m.chats }

// Join enqueues partyID and immediately attempts a pairing rather than
// waiting for the sweep, to keep match latency low.
func (m *Matcher) Join(ctx context.Context, partyID, gender string) (JoinResult, error) {
	declined, err := m.queue.Enqueue(ctx, partyID, gender)
	if err != nil {
		return JoinResult{}, err
	}
	if declined != DeclineNone {
		res := JoinResult{Declined: declined}
		if declined == DeclineAlreadyQueued {
			// the party is still waiting; report its real position
			if res.Position, err = m.queue.Depth(ctx); err != nil {
				return JoinResult{}, err
			}
		}
		return res, nil
	}
	return m.TryMatch(ctx)
}

// TryMatch attempts exactly one pairing. Re-entrant-safe: a partial pop is
// pushed back by the queue and reported as waiting.
func (m *Matcher) TryMatch(ctx context.Context) (JoinResult, error) {
	male, female, ok, err := m.queue.PopPair(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	if !ok {
		depth, err := m.queue.Depth(ctx)
		if err != nil {
			return JoinResult{}, err
		}
		return JoinResult{Position: depth}, nil
	}

	sess, err := m.sessions.Create(ctx, male, female)
	if err != nil {
		// both ids are confirmed but the session never materialized; put
		// them back at the front so the sweep retries them first
		_ = m.queue.pushFront(ctx, GenderMale, male)
		_ = m.queue.pushFront(ctx, GenderFemale, female)
		return JoinResult{}, err
	}

	if m.onMatch != nil {
		m.onMatch(sess)
	}
	return JoinResult{Matched: true, Session: sess}, nil
}

// Skip ends the session as skipped and re-enqueues both original parties,
// not just the requester: skip is a mutual-rematch action. A missing session
// makes this a no-op, guarding the race against a concurrent timeout.
func (m *Matcher) Skip(ctx context.Context, sessionID, requesterID string) error {
	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	if err := m.sessions.End(ctx, sessionID, EndSkipped); err != nil {
		return err
	}

	// User1 was popped from the male queue, User2 from the female one
	for party, gender := range map[string]string{sess.User1: GenderMale, sess.User2: GenderFemale} {
		declined, err := m.queue.Enqueue(ctx, party, gender)
		if err != nil {
			return err
		}
		if declined != DeclineNone {
			m.log.Warn("skip re-enqueue declined", "party", party, "reason", string(declined))
			continue
		}
		if _, err := m.TryMatch(ctx); err != nil {
			return err
		}
	}
	return nil
}

// HandleMutualLike performs the hand-off: end the roulette session with
// reason mutual_like, then create the private chat for the same pair. The
// ordering guarantees a party is never in an active session and a private
// chat at once.
func (m *Matcher) HandleMutualLike(ctx context.Context, sessionID string) (*PrivateChat, error) {
	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	if err := m.sessions.End(ctx, sessionID, EndMutualLike); err != nil {
		return nil, err
	}
	return m.chats.Create(ctx, sess.User1, sess.User2)
}

// HandleDisconnect is the gateway's disconnect hook: leave the queue and end
// any session or chat the party was part of.
func (m *Matcher) HandleDisconnect(ctx context.Context, partyID string) error {
	if err := m.queue.Leave(ctx, partyID); err != nil {
		return err
	}

	if sess, err := m.sessions.SessionFor(ctx, partyID); err != nil {
		return err
	} else if sess != nil {
		if err := m.sessions.End(ctx, sess.ID, EndUserLeft); err != nil {
			return err
		}
	}

	if chat, err := m.chats.ChatFor(ctx, partyID); err != nil {
		return err
	} else if chat != nil {
		if err := m.chats.End(ctx, chat.ID, EndUserLeft); err != nil {
			return err
		}
	}
	return nil
}

// Run performs the periodic catch-all sweep for pairing opportunities missed
// by the event-driven path, until ctx is done.
func (m *Matcher) Run(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.TryMatch(ctx); err != nil {
				m.log.Debug("sweep match attempt failed", "err", err)
			}
		}
	}
}
