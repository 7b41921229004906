package roulette

import "fmt"

// Accepted gender values; each selects one of the two queues.
const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Decline is an expected business-rule rejection. Declines are results, not
// errors; infrastructure failures travel separately as error values.
type Decline string

const (
	DeclineNone           Decline = ""
	DeclineGenderRequired Decline = "gender_required"
	DeclineAlreadyQueued  Decline = "already_in_queue"
)

// Reasons a roulette session or private chat ends.
const (
	EndTimeout    = "timeout"
	EndSkipped    = "skipped"
	EndMutualLike = "mutual_like"
	EndUserLeft   = "user_left"
)

// Session is a timed two-party roulette pairing. User1/User2 are opaque
// party ids; all pair logic treats them as an unordered set.
type Session struct {
	ID        string `json:"id"`
	User1     string `json:"user1"`
	User2     string `json:"user2"`
	StartedAt int64  `json:"startedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (s *Session) Validate() error {
	if s.ID == "" || s.User1 == "" || s.User2 == "" {
		return fmt.Errorf("session record missing required fields")
	}
	return nil
}

// Has reports whether partyID is one of the two session parties.
func (s *Session) Has(partyID string) bool {
	return partyID == s.User1 || partyID == s.User2
}

// PrivateChat is a timed two-party chat created from a mutual like. The id is
// stable across extensions.
type PrivateChat struct {
	ID        string `json:"id"`
	User1     string `json:"user1"`
	User2     string `json:"user2"`
	StartedAt int64  `json:"startedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (c *PrivateChat) Validate() error {
	if c.ID == "" || c.User1 == "" || c.User2 == "" {
		return fmt.Errorf("private chat record missing required fields")
	}
	return nil
}

func (c *PrivateChat) Has(partyID string) bool {
	return partyID == c.User1 || partyID == c.User2
}

// Broadcast payloads.

type TimerUpdate struct {
	ID        string `json:"id"`
	Remaining int    `json:"remaining"`
	Kind      string `json:"kind"` // "roulette" or "private"
}

type SessionEnded struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
	Mutual    bool   `json:"mutual"`
}

type ChatExtended struct {
	ChatID      string `json:"chatId"`
	NewDuration int    `json:"newDuration"`
}

type ChatEnded struct {
	ChatID string `json:"chatId"`
	Reason string `json:"reason"`
}

// Key layout. Queue entries are plain party ids; session and chat records are
// JSON strings with a TTL buffer past their nominal duration so abandoned
// state self-expires even if cleanup fails.
func queueKey(gender string) string         { return "queue:roulette:" + gender }
func sessionKey(id string) string           { return "session:" + id }
func likesKey(sessionID string) string      { return "likes:" + sessionID }
func privateKey(id string) string           { return "private:" + id }
func extendKey(chatID string) string        { return "extend:" + chatID }
func partySessionKey(partyID string) string { return "party:session:" + partyID }
func partyChatKey(partyID string) string    { return "party:private:" + partyID }
