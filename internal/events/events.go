package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/freedomchat/backend/internal/app"
	"github.com/freedomchat/backend/internal/store"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 1000
	maxSpeakerBioLen  = 500
	maxQuestionLen    = 500
	maxMessageLen     = 500

	defaultMaxAttendees = 1000
)

// Event statuses.
const (
	StatusScheduled = "scheduled"
	StatusLive      = "live"
	StatusEnded     = "ended"
)

// Question statuses.
const (
	QuestionPending   = "pending"
	QuestionApproved  = "approved"
	QuestionAnswered  = "answered"
	QuestionDismissed = "dismissed"
)

// Event is a speaker event with RSVPs, live attendance and Q&A.
type Event struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	SpeakerName  string   `json:"speakerName"`
	SpeakerBio   string   `json:"speakerBio"`
	SpeakerPhoto string   `json:"speakerPhoto"`
	VideoURL     string   `json:"videoUrl"`
	VideoType    string   `json:"videoType"` // youtube, zoom, or custom
	ScheduledAt  int64    `json:"scheduledAt"`
	DurationMin  int      `json:"duration"`
	Status       string   `json:"status"`
	CreatorID    string   `json:"creatorId"`
	CreatorName  string   `json:"creatorName"`
	CreatedAt    int64    `json:"createdAt"`
	StartedAt    int64    `json:"startedAt,omitempty"`
	EndedAt      int64    `json:"endedAt,omitempty"`
	MaxAttendees int      `json:"maxAttendees"`
	IsPublic     bool     `json:"isPublic"`
	Tags         []string `json:"tags,omitempty"`
	Thumbnail    string   `json:"thumbnail,omitempty"`
}

// Listing is an event with its live counters.
type Listing struct {
	Event
	RsvpCount     int   `json:"rsvpCount"`
	AttendeeCount int   `json:"attendeeCount"`
	Stats         Stats `json:"stats"`
}

// Stats are per-event counters.
type Stats struct {
	RsvpCount      int `json:"rsvpCount"`
	PeakAttendees  int `json:"peakAttendees"`
	TotalMessages  int `json:"totalMessages"`
	TotalQuestions int `json:"totalQuestions"`
}

// Question is one audience question in an event's Q&A.
type Question struct {
	ID         string   `json:"id"`
	EventID    string   `json:"eventId"`
	AskerID    string   `json:"askerId"`
	AskerName  string   `json:"askerName"`
	Text       string   `json:"text"`
	Status     string   `json:"status"`
	Upvotes    int      `json:"upvotes"`
	Upvoters   []string `json:"upvoters"`
	CreatedAt  int64    `json:"createdAt"`
	AnsweredAt int64    `json:"answeredAt,omitempty"`
}

// Outcome is a declined-or-accepted event operation result.
type Outcome struct {
	OK       bool
	Reason   string
	Event    *Listing
	Count    int
	Question *Question
}

// Manager handles the full event lifecycle.
type Manager struct {
	store   *store.Redis
	log     *slog.Logger
	isAdmin func(clientID string) bool
}

func NewManager(appCtx *app.AppContext, isAdmin func(string) bool) *Manager {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &Manager{store: appCtx.Store, log: appCtx.Logger, isAdmin: isAdmin}
}

func eventKey(id string) string     { return "event:" + id }
func rsvpsKey(id string) string     { return "event:" + id + ":rsvps" }
func attendeesKey(id string) string { return "event:" + id + ":attendees" }
func questionsKey(id string) string { return "event:" + id + ":questions" }
func statsKey(id string) string     { return "event:" + id + ":stats" }

const scheduleKey = "events:all"

// Create stores a new event and indexes it by scheduled time.
func (m *Manager) Create(ctx context.Context, creatorID, creatorName string, ev Event) (Outcome, error) {
	ev.ID = "evt_" + uuid.NewString()
	if ev.Title == "" {
		ev.Title = "Untitled Event"
	}
	ev.Title = truncate(ev.Title, maxTitleLen)
	ev.Description = truncate(ev.Description, maxDescriptionLen)
	ev.SpeakerBio = truncate(ev.SpeakerBio, maxSpeakerBioLen)
	if ev.SpeakerName == "" {
		ev.SpeakerName = creatorName
	}
	if ev.VideoType == "" {
		ev.VideoType = "youtube"
	}
	if ev.ScheduledAt == 0 {
		ev.ScheduledAt = time.Now().UnixMilli()
	}
	if ev.DurationMin == 0 {
		ev.DurationMin = 60
	}
	if ev.MaxAttendees == 0 {
		ev.MaxAttendees = defaultMaxAttendees
	}
	ev.Status = StatusScheduled
	ev.CreatorID = creatorID
	ev.CreatorName = creatorName
	ev.CreatedAt = time.Now().UnixMilli()

	if err := m.store.SetJSON(ctx, eventKey(ev.ID), &ev, 0); err != nil {
		return Outcome{}, fmt.Errorf("create event: %w", err)
	}
	if err := m.store.Client.ZAdd(ctx, scheduleKey, redis.Z{
		Score:  float64(ev.ScheduledAt),
		Member: ev.ID,
	}).Err(); err != nil {
		return Outcome{}, fmt.Errorf("index event: %w", err)
	}
	if err := m.store.SetJSON(ctx, statsKey(ev.ID), &Stats{}, 0); err != nil {
		return Outcome{}, fmt.Errorf("init event stats: %w", err)
	}

	m.log.Info("event created", "event", ev.ID, "title", ev.Title)
	return Outcome{OK: true, Event: &Listing{Event: ev}}, nil
}

// Get returns the event with live counters, or nil when absent.
func (m *Manager) Get(ctx context.Context, eventID string) (*Listing, error) {
	var ev Event
	found, err := m.store.GetJSON(ctx, eventKey(eventID), &ev)
	if err != nil || !found {
		return nil, err
	}

	rsvps, err := m.store.Client.SCard(ctx, rsvpsKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("count rsvps: %w", err)
	}
	attendees, err := m.store.Client.SCard(ctx, attendeesKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("count attendees: %w", err)
	}
	stats, err := m.stats(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &Listing{
		Event:         ev,
		RsvpCount:     int(rsvps),
		AttendeeCount: int(attendees),
		Stats:         stats,
	}, nil
}

// All lists events ordered by scheduled time. Without includeEnded, only
// events scheduled in the last 24 hours or the future are returned.
func (m *Manager) All(ctx context.Context, includeEnded bool) ([]Listing, error) {
	var ids []string
	var err error
	if includeEnded {
		ids, err = m.store.Client.ZRange(ctx, scheduleKey, 0, -1).Result()
	} else {
		oneDayAgo := time.Now().Add(-24 * time.Hour).UnixMilli()
		ids, err = m.store.Client.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
			Min: strconv.FormatInt(oneDayAgo, 10),
			Max: "+inf",
		}).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var events []Listing
	for _, id := range ids {
		listing, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if listing != nil {
			events = append(events, *listing)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ScheduledAt < events[j].ScheduledAt })
	return events, nil
}

// Upcoming lists up to limit future events that have not ended.
func (m *Manager) Upcoming(ctx context.Context, limit int) ([]Listing, error) {
	if limit <= 0 {
		limit = 10
	}
	ids, err := m.store.Client.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
		Min:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}

	var events []Listing
	for _, id := range ids {
		listing, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if listing != nil && listing.Status != StatusEnded {
			events = append(events, *listing)
		}
	}
	return events, nil
}

// Update edits an event; creator or admin only.
func (m *Manager) Update(ctx context.Context, requesterID, eventID string, updates Event) (Outcome, error) {
	listing, err := m.Get(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "event_not_found"}, nil
	}
	if !m.maySpeak(requesterID, &listing.Event) {
		return Outcome{Reason: "not_authorized"}, nil
	}

	ev := listing.Event
	if updates.Title != "" {
		ev.Title = truncate(updates.Title, maxTitleLen)
	}
	if updates.Description != "" {
		ev.Description = truncate(updates.Description, maxDescriptionLen)
	}
	if updates.SpeakerName != "" {
		ev.SpeakerName = truncate(updates.SpeakerName, maxTitleLen)
	}
	if updates.SpeakerBio != "" {
		ev.SpeakerBio = truncate(updates.SpeakerBio, maxSpeakerBioLen)
	}
	if updates.SpeakerPhoto != "" {
		ev.SpeakerPhoto = updates.SpeakerPhoto
	}
	if updates.VideoURL != "" {
		ev.VideoURL = updates.VideoURL
	}
	if updates.VideoType != "" {
		ev.VideoType = updates.VideoType
	}
	if updates.DurationMin != 0 {
		ev.DurationMin = updates.DurationMin
	}
	if updates.Thumbnail != "" {
		ev.Thumbnail = updates.Thumbnail
	}
	if updates.ScheduledAt != 0 {
		ev.ScheduledAt = updates.ScheduledAt
		if err := m.store.Client.ZAdd(ctx, scheduleKey, redis.Z{
			Score:  float64(ev.ScheduledAt),
			Member: ev.ID,
		}).Err(); err != nil {
			return Outcome{}, fmt.Errorf("reindex event: %w", err)
		}
	}

	if err := m.store.SetJSON(ctx, eventKey(eventID), &ev, 0); err != nil {
		return Outcome{}, fmt.Errorf("update event: %w", err)
	}
	listing.Event = ev
	return Outcome{OK: true, Event: listing}, nil
}

// Delete removes an event and all of its data; creator or admin only.
func (m *Manager) Delete(ctx context.Context, requesterID, eventID string) (Outcome, error) {
	listing, err := m.Get(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "event_not_found"}, nil
	}
	if !m.maySpeak(requesterID, &listing.Event) {
		return Outcome{Reason: "not_authorized"}, nil
	}

	if err := m.store.Del(ctx,
		eventKey(eventID), rsvpsKey(eventID), attendeesKey(eventID),
		questionsKey(eventID), statsKey(eventID),
	); err != nil {
		return Outcome{}, fmt.Errorf("delete event: %w", err)
	}
	if err := m.store.Client.ZRem(ctx, scheduleKey, eventID).Err(); err != nil {
		return Outcome{}, fmt.Errorf("unindex event: %w", err)
	}
	return Outcome{OK: true}, nil
}

// Rsvp reserves a spot, declining when the event is at capacity.
func (m *Manager) Rsvp(ctx context.Context, userID, eventID string) (Outcome, error) {
	listing, err := m.Get(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "event_not_found"}, nil
	}
	if listing.RsvpCount >= listing.MaxAttendees {
		return Outcome{Reason: "event_full"}, nil
	}

	if err := m.store.Client.SAdd(ctx, rsvpsKey(eventID), userID).Err(); err != nil {
		return Outcome{}, fmt.Errorf("rsvp: %w", err)
	}
	count, err := m.store.Client.SCard(ctx, rsvpsKey(eventID)).Result()
	if err != nil {
		return Outcome{}, err
	}
	if err := m.patchStats(ctx, eventID, func(s *Stats) { s.RsvpCount = int(count) }); err != nil {
		return Outcome{}, err
	}
	return Outcome{OK: true, Count: int(count)}, nil
}

// CancelRsvp releases a reservation. Idempotent.
func (m *Manager) CancelRsvp(ctx context.Context, userID, eventID string) (Outcome, error) {
	if err := m.store.Client.SRem(ctx, rsvpsKey(eventID), userID).Err(); err != nil {
		return Outcome{}, err
	}
	count, err := m.store.Client.SCard(ctx, rsvpsKey(eventID)).Result()
	if err != nil {
		return Outcome{}, err
	}
	if err := m.patchStats(ctx, eventID, func(s *Stats) { s.RsvpCount = int(count) }); err != nil {
		return Outcome{}, err
	}
	return Outcome{OK: true, Count: int(count)}, nil
}

// HasRsvp reports whether userID holds a reservation.
func (m *Manager) HasRsvp(ctx context.Context, userID, eventID string) (bool, error) {
	return m.store.Client.SIsMember(ctx, rsvpsKey(eventID), userID).Result()
}

// Start flips the event live; speaker or admin only.
func (m *Manager) Start(ctx context.Context, requesterID, eventID string) (Outcome, error) {
	return m.setStatus(ctx, requesterID, eventID, StatusLive)
}

// End closes the event; speaker or admin only.
func (m *Manager) End(ctx context.Context, requesterID, eventID string) (Outcome, error) {
	return m.setStatus(ctx, requesterID, eventID, StatusEnded)
}

func (m *Manager) setStatus(ctx context.Context, requesterID, eventID, status string) (Outcome, error) {
	listing, err := m.Get(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "event_not_found"}, nil
	}
	if !m.maySpeak(requesterID, &listing.Event) {
		return Outcome{Reason: "not_authorized"}, nil
	}

	ev := listing.Event
	ev.Status = status
	switch status {
	case StatusLive:
		ev.StartedAt = time.Now().UnixMilli()
	case StatusEnded:
		ev.EndedAt = time.Now().UnixMilli()
	}
	if err := m.store.SetJSON(ctx, eventKey(eventID), &ev, 0); err != nil {
		return Outcome{}, fmt.Errorf("set event status: %w", err)
	}
	listing.Event = ev
	return Outcome{OK: true, Event: listing}, nil
}

// JoinRoom adds userID to the live attendance, tracking peak attendance.
func (m *Manager) JoinRoom(ctx context.Context, userID, eventID string) (Outcome, error) {
	listing, err := m.Get(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "event_not_found"}, nil
	}

	if err := m.store.Client.SAdd(ctx, attendeesKey(eventID), userID).Err(); err != nil {
		return Outcome{}, fmt.Errorf("join event: %w", err)
	}
	count, err := m.store.Client.SCard(ctx, attendeesKey(eventID)).Result()
	if err != nil {
		return Outcome{}, err
	}
	if int(count) > listing.Stats.PeakAttendees {
		if err := m.patchStats(ctx, eventID, func(s *Stats) { s.PeakAttendees = int(count) }); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{OK: true, Event: listing, Count: int(count)}, nil
}

// LeaveRoom drops userID from the live attendance. Idempotent.
func (m *Manager) LeaveRoom(ctx context.Context, userID, eventID string) (int, error) {
	if err := m.store.Client.SRem(ctx, attendeesKey(eventID), userID).Err(); err != nil {
		return 0, err
	}
	count, err := m.store.Client.SCard(ctx, attendeesKey(eventID)).Result()
	return int(count), err
}

// Attendees lists the current live attendance.
func (m *Manager) Attendees(ctx context.Context, eventID string) ([]string, error) {
	return m.store.Client.SMembers(ctx, attendeesKey(eventID)).Result()
}

// SubmitQuestion files an audience question.
func (m *Manager) SubmitQuestion(ctx context.Context, userID, userName, eventID, text string) (Outcome, error) {
	q := Question{
		ID:        "q_" + uuid.NewString(),
		EventID:   eventID,
		AskerID:   userID,
		AskerName: userName,
		Text:      truncate(text, maxQuestionLen),
		Status:    QuestionPending,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := m.putQuestion(ctx, eventID, &q); err != nil {
		return Outcome{}, err
	}
	if err := m.patchStats(ctx, eventID, func(s *Stats) { s.TotalQuestions++ }); err != nil {
		return Outcome{}, err
	}
	return Outcome{OK: true, Question: &q}, nil
}

// Questions lists an event's questions, most upvoted first, ties oldest
// first. A non-empty status filters the listing.
func (m *Manager) Questions(ctx context.Context, eventID, status string) ([]Question, error) {
	data, err := m.store.Client.HGetAll(ctx, questionsKey(eventID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	var questions []Question
	for id, raw := range data {
		var q Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, fmt.Errorf("decode question %s: %w", id, err)
		}
		if status != "" && q.Status != status {
			continue
		}
		questions = append(questions, q)
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].Upvotes != questions[j].Upvotes {
			return questions[i].Upvotes > questions[j].Upvotes
		}
		return questions[i].CreatedAt < questions[j].CreatedAt
	})
	return questions, nil
}

// Upvote adds one vote to a question; one vote per user.
func (m *Manager) Upvote(ctx context.Context, userID, eventID, questionID string) (Outcome, error) {
	q, err := m.question(ctx, eventID, questionID)
	if err != nil {
		return Outcome{}, err
	}
	if q == nil {
		return Outcome{Reason: "question_not_found"}, nil
	}
	for _, voter := range q.Upvoters {
		if voter == userID {
			return Outcome{Reason: "already_upvoted"}, nil
		}
	}
	q.Upvotes++
	q.Upvoters = append(q.Upvoters, userID)
	if err := m.putQuestion(ctx, eventID, q); err != nil {
		return Outcome{}, err
	}
	return Outcome{OK: true, Question: q}, nil
}

// SetQuestionStatus moves a question through the Q&A workflow; speaker or
// admin only.
func (m *Manager) SetQuestionStatus(ctx context.Context, requesterID, eventID, questionID, status string) (Outcome, error) {
	listing, err := m.Get(ctx, eventID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "event_not_found"}, nil
	}
	if !m.maySpeak(requesterID, &listing.Event) {
		return Outcome{Reason: "not_authorized"}, nil
	}

	q, err := m.question(ctx, eventID, questionID)
	if err != nil {
		return Outcome{}, err
	}
	if q == nil {
		return Outcome{Reason: "question_not_found"}, nil
	}
	q.Status = status
	if status == QuestionAnswered {
		q.AnsweredAt = time.Now().UnixMilli()
	} else {
		q.AnsweredAt = 0
	}
	if err := m.putQuestion(ctx, eventID, q); err != nil {
		return Outcome{}, err
	}
	return Outcome{OK: true, Question: q}, nil
}

// CountMessage bumps the event's message counter; chat content itself is
// never stored.
func (m *Manager) CountMessage(ctx context.Context, eventID string) error {
	return m.patchStats(ctx, eventID, func(s *Stats) { s.TotalMessages++ })
}

// TotalStats aggregates counters across every event.
type TotalStats struct {
	TotalEvents      int `json:"totalEvents"`
	TotalRsvps       int `json:"totalRsvps"`
	TotalAttendees   int `json:"totalAttendees"`
	TotalMessages    int `json:"totalMessages"`
	TotalQuestions   int `json:"totalQuestions"`
	AverageAttendees int `json:"averageAttendees"`
}

// AllStats aggregates counters across all events, ended ones included.
func (m *Manager) AllStats(ctx context.Context) (TotalStats, error) {
	events, err := m.All(ctx, true)
	if err != nil {
		return TotalStats{}, err
	}
	var total TotalStats
	total.TotalEvents = len(events)
	for _, ev := range events {
		total.TotalRsvps += ev.RsvpCount
		total.TotalAttendees += ev.Stats.PeakAttendees
		total.TotalMessages += ev.Stats.TotalMessages
		total.TotalQuestions += ev.Stats.TotalQuestions
	}
	if total.TotalEvents > 0 {
		total.AverageAttendees = total.TotalAttendees / total.TotalEvents
	}
	return total, nil
}

// RemoveFromAll clears a user out of every live attendance set, for the
// disconnect sweep.
func (m *Manager) RemoveFromAll(ctx context.Context, userID string) error {
	events, err := m.All(ctx, false)
	if err != nil {
		return err
	}
	for _, ev := range events {
		if err := m.store.Client.SRem(ctx, attendeesKey(ev.ID), userID).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) maySpeak(requesterID string, ev *Event) bool {
	return ev.CreatorID == requesterID || m.isAdmin(requesterID)
}

func (m *Manager) stats(ctx context.Context, eventID string) (Stats, error) {
	var s Stats
	if _, err := m.store.GetJSON(ctx, statsKey(eventID), &s); err != nil {
		return Stats{}, err
	}
	return s, nil
}

func (m *Manager) patchStats(ctx context.Context, eventID string, patch func(*Stats)) error {
	s, err := m.stats(ctx, eventID)
	if err != nil {
		return err
	}
	patch(&s)
	return m.store.SetJSON(ctx, statsKey(eventID), &s, 0)
}

func (m *Manager) question(ctx context.Context, eventID, questionID string) (*Question, error) {
	raw, err := m.store.Client.HGet(ctx, questionsKey(eventID), questionID).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	var q Question
	if err := json.Unmarshal([]byte(raw), &q); err != nil {
		return nil, fmt.Errorf("decode question %s: %w", questionID, err)
	}
	return &q, nil
}

func (m *Manager) putQuestion(ctx context.Context, eventID string, q *Question) error {
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal question %s: %w", q.ID, err)
	}
	if err := m.store.Client.HSet(ctx, questionsKey(eventID), q.ID, raw).Err(); err != nil {
		return fmt.Errorf("store question: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
