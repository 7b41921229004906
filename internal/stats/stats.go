package stats

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/freedomchat/backend/internal/app"
	"github.com/freedomchat/backend/internal/store"
)

// Counter field names. These are permanent and survive profile expiry.
const (
	FieldSignups          = "totalSignups"
	FieldMaleSignups      = "maleSignups"
	FieldFemaleSignups    = "femaleSignups"
	FieldMatches          = "totalMatches"
	FieldLikes            = "totalLikes"
	FieldMessages         = "totalMessages"
	FieldRouletteMessages = "totalRouletteMessages"
	FieldRoomMessages     = "totalRoomMessages"
	FieldPrivateMessages  = "totalPrivateMessages"
	FieldRouletteSessions = "totalRouletteSessions"
	FieldProfileViews     = "totalProfileViews"
	FieldInvites          = "totalInvitesSent"
	FieldReports          = "totalReports"
	FieldPeakUsers        = "peakConcurrentUsers"
)

const (
	globalKey      = "stats:global"
	emailsKey      = "emails:list"
	activeUsersKey = "stats:activeUsers"
)

func dailyKey(date string) string    { return "stats:daily:" + date }
func monthlyKey(month string) string { return "stats:monthly:" + month }

// Global is the lifetime counter snapshot.
type Global struct {
	TotalSignups          int `json:"totalSignups"`
	TotalMatches          int `json:"totalMatches"`
	TotalMessages         int `json:"totalMessages"`
	TotalLikes            int `json:"totalLikes"`
	TotalRouletteSessions int `json:"totalRouletteSessions"`
	TotalRoomMessages     int `json:"totalRoomMessages"`
	TotalReports          int `json:"totalReports"`
	TotalInvitesSent      int `json:"totalInvitesSent"`
	TotalProfileViews     int `json:"totalProfileViews"`
	PeakConcurrentUsers   int `json:"peakConcurrentUsers"`
}

// DayStats is one day's counters keyed by field name.
type DayStats struct {
	Date   string         `json:"date"`
	Fields map[string]int `json:"fields"`
}

// EmailEntry is one signup email kept on the permanent list.
type EmailEntry struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	City    string `json:"city"`
	AddedAt int64  `json:"addedAt"`
}

// Tracker records platform counters at three resolutions: lifetime, daily
// and monthly. None of the keys expire.
type Tracker struct {
	store *store.Redis
	log   *slog.Logger
	now   func() time.Time
}

func NewTracker(appCtx *app.AppContext) *Tracker {
	return &Tracker{store: appCtx.Store, log: appCtx.Logger, now: time.Now}
}

func (t *Tracker) today() string { return t.now().UTC().Format("2006-01-02") }
func (t *Tracker) month() string { return t.now().UTC().Format("2006-01") }

// Increment bumps a counter in the lifetime, daily and monthly hashes.
func (t *Tracker) Increment(ctx context.Context, field string, amount int64) error {
	c := t.store.Client
	if err := c.HIncrBy(ctx, globalKey, field, amount).Err(); err != nil {
		return fmt.Errorf("increment %s: %w", field, err)
	}
	if err := c.HIncrBy(ctx, dailyKey(t.today()), field, amount).Err(); err != nil {
		return fmt.Errorf("increment daily %s: %w", field, err)
	}
	if err := c.HIncrBy(ctx, monthlyKey(t.month()), field, amount).Err(); err != nil {
		return fmt.Errorf("increment monthly %s: %w", field, err)
	}
	return nil
}

// TrackSignup counts a signup, records the email on the permanent list and
// tracks the gender split.
func (t *Tracker) TrackSignup(ctx context.Context, email, name, city, gender string) error {
	if err := t.Increment(ctx, FieldSignups, 1); err != nil {
		return err
	}
	if email != "" {
		if err := t.AddEmail(ctx, email, name, city); err != nil {
			return err
		}
	}
	switch gender {
	case "male":
		return t.Increment(ctx, FieldMaleSignups, 1)
	case "female":
		return t.Increment(ctx, FieldFemaleSignups, 1)
	}
	return nil
}

func (t *Tracker) TrackMatch(ctx context.Context) error {
	return t.Increment(ctx, FieldMatches, 1)
}

func (t *Tracker) TrackLike(ctx context.Context) error {
	return t.Increment(ctx, FieldLikes, 1)
}

// TrackMessage counts a message overall plus per channel. Channel is one of
// roulette, room or private; anything else only counts toward the total.
func (t *Tracker) TrackMessage(ctx context.Context, channel string) error {
	if err := t.Increment(ctx, FieldMessages, 1); err != nil {
		return err
	}
	switch channel {
	case "roulette":
		return t.Increment(ctx, FieldRouletteMessages, 1)
	case "room":
		return t.Increment(ctx, FieldRoomMessages, 1)
	case "private":
		return t.Increment(ctx, FieldPrivateMessages, 1)
	}
	return nil
}

func (t *Tracker) TrackRouletteSession(ctx context.Context) error {
	return t.Increment(ctx, FieldRouletteSessions, 1)
}

func (t *Tracker) TrackProfileView(ctx context.Context) error {
	return t.Increment(ctx, FieldProfileViews, 1)
}

func (t *Tracker) TrackInvite(ctx context.Context) error {
	return t.Increment(ctx, FieldInvites, 1)
}

func (t *Tracker) TrackReport(ctx context.Context) error {
	return t.Increment(ctx, FieldReports, 1)
}

// GlobalStats returns the lifetime counters. Missing fields read as zero.
func (t *Tracker) GlobalStats(ctx context.Context) (Global, error) {
	data, err := t.store.Client.HGetAll(ctx, globalKey).Result()
	if err != nil {
		return Global{}, fmt.Errorf("get global stats: %w", err)
	}
	get := func(field string) int {
		n, _ := strconv.Atoi(data[field])
		return n
	}
	return Global{
		TotalSignups:          get(FieldSignups),
		TotalMatches:          get(FieldMatches),
		TotalMessages:         get(FieldMessages),
		TotalLikes:            get(FieldLikes),
		TotalRouletteSessions: get(FieldRouletteSessions),
		TotalRoomMessages:     get(FieldRoomMessages),
		TotalReports:          get(FieldReports),
		TotalInvitesSent:      get(FieldInvites),
		TotalProfileViews:     get(FieldProfileViews),
		PeakConcurrentUsers:   get(FieldPeakUsers),
	}, nil
}

// DailyStats returns one day's counters; an empty date means today.
func (t *Tracker) DailyStats(ctx context.Context, date string) (DayStats, error) {
	if date == "" {
		date = t.today()
	}
	data, err := t.store.Client.HGetAll(ctx, dailyKey(date)).Result()
	if err != nil {
		return DayStats{}, fmt.Errorf("get daily stats: %w", err)
	}
	return DayStats{Date: date, Fields: toInts(data)}, nil
}

// MonthlyStats returns one month's counters; an empty month means the
// current one.
func (t *Tracker) MonthlyStats(ctx context.Context, month string) (map[string]int, error) {
	if month == "" {
		month = t.month()
	}
	data, err := t.store.Client.HGetAll(ctx, monthlyKey(month)).Result()
	if err != nil {
		return nil, fmt.Errorf("get monthly stats: %w", err)
	}
	return toInts(data), nil
}

// StatsRange returns daily counters for the last days days, oldest first.
func (t *Tracker) StatsRange(ctx context.Context, days int) ([]DayStats, error) {
	if days <= 0 {
		days = 30
	}
	results := make([]DayStats, 0, days)
	for i := days - 1; i >= 0; i-- {
		date := t.now().UTC().AddDate(0, 0, -i).Format("2006-01-02")
		day, err := t.DailyStats(ctx, date)
		if err != nil {
			return nil, err
		}
		results = append(results, day)
	}
	return results, nil
}

// UpdatePeakUsers raises the lifetime concurrency high-water mark.
func (t *Tracker) UpdatePeakUsers(ctx context.Context, count int) error {
	current, err := t.store.Client.HGet(ctx, globalKey, FieldPeakUsers).Result()
	if err == nil {
		if peak, _ := strconv.Atoi(current); count <= peak {
			return nil
		}
	}
	return t.store.Client.HSet(ctx, globalKey, FieldPeakUsers, strconv.Itoa(count)).Err()
}

// SetActiveUsers publishes the current online count and updates the peak.
func (t *Tracker) SetActiveUsers(ctx context.Context, count int) error {
	if err := t.store.Set(ctx, activeUsersKey, strconv.Itoa(count), 0); err != nil {
		return err
	}
	return t.UpdatePeakUsers(ctx, count)
}

func (t *Tracker) ActiveUsers(ctx context.Context) (int, error) {
	val, found, err := t.store.Get(ctx, activeUsersKey)
	if err != nil || !found {
		return 0, err
	}
	n, _ := strconv.Atoi(val)
	return n, nil
}

// AddEmail records a signup email on the permanent list, keyed by address
// so repeats overwrite instead of duplicating.
func (t *Tracker) AddEmail(ctx context.Context, email, name, city string) error {
	entry := EmailEntry{Email: email, Name: name, City: city, AddedAt: t.now().UnixMilli()}
	raw, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal email entry: %w", err)
	}
	return t.store.Client.HSet(ctx, emailsKey, email, raw).Err()
}

// EmailList returns the signup emails, newest first.
func (t *Tracker) EmailList(ctx context.Context) ([]EmailEntry, error) {
	data, err := t.store.Client.HGetAll(ctx, emailsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get email list: %w", err)
	}
	entries := make([]EmailEntry, 0, len(data))
	for email, raw := range data {
		var e EmailEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode email entry %s: %w", email, err)
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].AddedAt > entries[j].AddedAt })
	return entries, nil
}

func (t *Tracker) EmailCount(ctx context.Context) (int, error) {
	n, err := t.store.Client.HLen(ctx, emailsKey).Result()
	return int(n), err
}

// ExportEmailsCSV renders the email list as CSV with a header row.
func (t *Tracker) ExportEmailsCSV(ctx context.Context) (string, error) {
	entries, err := t.EmailList(ctx)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"email", "name", "city", "joined_date"}); err != nil {
		return "", err
	}
	for _, e := range entries {
		joined := time.UnixMilli(e.AddedAt).UTC().Format(time.RFC3339)
		if err := w.Write([]string{e.Email, e.Name, e.City, joined}); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func toInts(data map[string]string) map[string]int {
	out := make(map[string]int, len(data))
	for k, v := range data {
		n, _ := strconv.Atoi(v)
		out[k] = n
	}
	return out
}
