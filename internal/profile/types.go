package profile

import (
	"strings"
	"time"
)

const (
	// profiles expire after 30 days without a save
	profileTTL = 30 * 24 * time.Hour
	// a profile is "online" if active within the last 5 minutes
	onlineWindow = 5 * time.Minute
	// browse splits profiles idle for 2+ weeks into the inactive shelf
	inactiveAfter = 14 * 24 * time.Hour
	// featured profiles must have been active within a week
	featuredWindow = 7 * 24 * time.Hour
	// unique reporters needed before a user is flagged for admin review
	FlagThreshold = 10

	minPhotos  = 3
	maxNameLen = 50
	maxCityLen = 100
	maxBioLen  = 500
)

// Profile is a user's public profile record.
type Profile struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Photo      string   `json:"photo"`
	Photos     []string `json:"photos"`
	City       string   `json:"city"`
	Bio        string   `json:"bio"`
	Age        int      `json:"age,omitempty"`
	Gender     string   `json:"gender,omitempty"`
	CreatedAt  int64    `json:"createdAt"`
	LastActive int64    `json:"lastActive"`
}

// Complete reports whether the profile passes the discovery gate:
// 3+ photos plus a non-empty city and bio. Incomplete profiles can use the
// roulette but cannot browse-like or be browsed.
func (p *Profile) Complete() bool {
	return len(p.Photos) >= minPhotos &&
		strings.TrimSpace(p.City) != "" &&
		strings.TrimSpace(p.Bio) != ""
}

// View is one recorded profile view.
type View struct {
	UserID    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// Report is one abuse report against a user.
type Report struct {
	ID         string `json:"id"`
	ReporterID string `json:"reporterId"`
	ReportedID string `json:"reportedId"`
	Reason     string `json:"reason"`
	Timestamp  int64  `json:"timestamp"`
	Status     string `json:"status"`
}

// Match links two mutually-liked profiles.
type Match struct {
	Users         [2]string      `json:"users"`
	CreatedAt     int64          `json:"createdAt"`
	ScheduledChat *ScheduledChat `json:"scheduledChat"`
}

// ScheduledChat is a chat appointment between two matched users.
type ScheduledChat struct {
	ID            string    `json:"id"`
	Users         [2]string `json:"users"`
	ScheduledTime int64     `json:"scheduledTime"`
	Duration      int       `json:"duration"`
	Status        string    `json:"status"`
}

func profileKey(id string) string       { return "profile:" + id }
func likesGivenKey(id string) string    { return "likes:given:" + id }
func likesReceivedKey(id string) string { return "likes:received:" + id }
func matchesKey(id string) string       { return "matches:" + id }
func scheduledChatKey(id string) string { return "scheduled:" + id }
func viewsKey(id string) string         { return "views:" + id }
func reportsKey(id string) string       { return "reports:" + id }
func invitesKey(id string) string       { return "invites:" + id }

const (
	allProfilesKey = "profiles:all"
	allReportsKey  = "reports:all"
)
