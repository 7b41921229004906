package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/freedomchat/backend/internal/metrics"
)

// LikeOutcome is the result of a browse-like.
type LikeOutcome struct {
	OK      bool
	IsMatch bool
	Reason  string
}

// Like records a directed like from one profile to another. The liker must
// pass the completeness gate. A like that is already reciprocated creates a
// match immediately.
func (m *Manager) Like(ctx context.Context, fromID, toID string) (LikeOutcome, error) {
	liker, err := m.Get(ctx, fromID)
	if err != nil {
		return LikeOutcome{}, err
	}
	if liker == nil || !liker.Complete() {
		return LikeOutcome{Reason: "profile_incomplete"}, nil
	}

	if err := m.store.Client.SAdd(ctx, likesGivenKey(fromID), toID).Err(); err != nil {
		return LikeOutcome{}, fmt.Errorf("record like: %w", err)
	}
	received, err := json.Marshal(View{UserID: fromID, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return LikeOutcome{}, err
	}
	if err := m.store.Client.HSet(ctx, likesReceivedKey(toID), fromID, received).Err(); err != nil {
		return LikeOutcome{}, fmt.Errorf("record received like: %w", err)
	}

	mutual, err := m.store.Client.SIsMember(ctx, likesGivenKey(toID), fromID).Result()
	if err != nil {
		return LikeOutcome{}, fmt.Errorf("check reciprocal like: %w", err)
	}
	if mutual {
		if err := m.createMatch(ctx, fromID, toID); err != nil {
			return LikeOutcome{}, err
		}
		return LikeOutcome{OK: true, IsMatch: true}, nil
	}
	return LikeOutcome{OK: true}, nil
}

// Liked is one entry in a received-likes listing.
type Liked struct {
	UserID  string
	Profile *Profile
	LikedAt int64
}

// LikesReceived lists who liked userID, newest first.
func (m *Manager) LikesReceived(ctx context.Context, userID string) ([]Liked, error) {
	data, err := m.store.Client.HGetAll(ctx, likesReceivedKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list received likes: %w", err)
	}
	var likes []Liked
	for fromID, raw := range data {
		var v View
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode like from %s: %w", fromID, err)
		}
		p, err := m.Get(ctx, fromID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		likes = append(likes, Liked{UserID: fromID, Profile: p, LikedAt: v.Timestamp})
	}
	sort.Slice(likes, func(i, j int) bool { return likes[i].LikedAt > likes[j].LikedAt })
	return likes, nil
}

// RemoveLike rejects a received like.
func (m *Manager) RemoveLike(ctx context.Context, userID, fromID string) error {
	return m.store.Client.HDel(ctx, likesReceivedKey(userID), fromID).Err()
}

func (m *Manager) createMatch(ctx context.Context, id1, id2 string) error {
	match := Match{Users: [2]string{id1, id2}, CreatedAt: time.Now().UnixMilli()}
	raw, err := json.Marshal(match)
	if err != nil {
		return err
	}
	if err := m.store.Client.HSet(ctx, matchesKey(id1), id2, raw).Err(); err != nil {
		return fmt.Errorf("store match: %w", err)
	}
	if err := m.store.Client.HSet(ctx, matchesKey(id2), id1, raw).Err(); err != nil {
		return fmt.Errorf("store match: %w", err)
	}
	// the pending likes are consumed by the match
	if err := m.store.Client.HDel(ctx, likesReceivedKey(id1), id2).Err(); err != nil {
		return err
	}
	if err := m.store.Client.HDel(ctx, likesReceivedKey(id2), id1).Err(); err != nil {
		return err
	}
	m.log.Info("match created", "user1", id1, "user2", id2)
	return nil
}

// Matched is one entry in a match listing.
type Matched struct {
	UserID        string
	Profile       *Profile
	MatchedAt     int64
	ScheduledChat *ScheduledChat
}

// Matches lists userID's matches, newest first.
func (m *Manager) Matches(ctx context.Context, userID string) ([]Matched, error) {
	data, err := m.store.Client.HGetAll(ctx, matchesKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	var matches []Matched
	for otherID, raw := range data {
		var match Match
		if err := json.Unmarshal([]byte(raw), &match); err != nil {
			return nil, fmt.Errorf("decode match with %s: %w", otherID, err)
		}
		p, err := m.Get(ctx, otherID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		matches = append(matches, Matched{
			UserID:        otherID,
			Profile:       p,
			MatchedAt:     match.CreatedAt,
			ScheduledChat: match.ScheduledChat,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].MatchedAt > matches[j].MatchedAt })
	return matches, nil
}

// Unmatch removes the match from both sides.
func (m *Manager) Unmatch(ctx context.Context, userID, otherID string) error {
	if err := m.store.Client.HDel(ctx, matchesKey(userID), otherID).Err(); err != nil {
		return err
	}
	return m.store.Client.HDel(ctx, matchesKey(otherID), userID).Err()
}

// ScheduleChat books a chat appointment on an existing match.
func (m *Manager) ScheduleChat(ctx context.Context, userID, matchID string, scheduledTime int64, durationMin int) (*ScheduledChat, error) {
	raw, err := m.store.Client.HGet(ctx, matchesKey(userID), matchID).Result()
	if err != nil {
		return nil, nil // not matched
	}
	var match Match
	if err := json.Unmarshal([]byte(raw), &match); err != nil {
		return nil, fmt.Errorf("decode match: %w", err)
	}

	if durationMin <= 0 {
		durationMin = 5
	}
	chat := &ScheduledChat{
		ID:            "chat_" + uuid.NewString(),
		Users:         [2]string{userID, matchID},
		ScheduledTime: scheduledTime,
		Duration:      durationMin,
		Status:        "scheduled",
	}
	if err := m.store.SetJSON(ctx, scheduledChatKey(chat.ID), chat, 24*time.Hour); err != nil {
		return nil, fmt.Errorf("store scheduled chat: %w", err)
	}

	match.ScheduledChat = chat
	updated, err := json.Marshal(match)
	if err != nil {
		return nil, err
	}
	if err := m.store.Client.HSet(ctx, matchesKey(userID), matchID, updated).Err(); err != nil {
		return nil, err
	}
	if err := m.store.Client.HSet(ctx, matchesKey(matchID), userID, updated).Err(); err != nil {
		return nil, err
	}
	return chat, nil
}

// CancelChat drops a scheduled chat from both sides of the match.
func (m *Manager) CancelChat(ctx context.Context, userID, otherID, chatID string) error {
	raw, err := m.store.Client.HGet(ctx, matchesKey(userID), otherID).Result()
	if err == nil {
		var match Match
		if jsonErr := json.Unmarshal([]byte(raw), &match); jsonErr == nil {
			match.ScheduledChat = nil
			if updated, marshalErr := json.Marshal(match); marshalErr == nil {
				_ = m.store.Client.HSet(ctx, matchesKey(userID), otherID, updated).Err()
				_ = m.store.Client.HSet(ctx, matchesKey(otherID), userID, updated).Err()
			}
		}
	}
	return m.store.Del(ctx, scheduledChatKey(chatID))
}

// RecordView stores a profile view. Self-views are ignored.
func (m *Manager) RecordView(ctx context.Context, viewerID, viewedID string) error {
	if viewerID == viewedID {
		return nil
	}
	raw, err := json.Marshal(View{UserID: viewerID, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	return m.store.Client.HSet(ctx, viewsKey(viewedID), viewerID, raw).Err()
}

// Viewer is one entry in a profile-views listing.
type Viewer struct {
	UserID   string
	Profile  *Profile
	ViewedAt int64
}

// Views lists who viewed userID's profile, newest first.
func (m *Manager) Views(ctx context.Context, userID string) ([]Viewer, error) {
	data, err := m.store.Client.HGetAll(ctx, viewsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	var views []Viewer
	for viewerID, raw := range data {
		var v View
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode view by %s: %w", viewerID, err)
		}
		p, err := m.Get(ctx, viewerID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		views = append(views, Viewer{UserID: viewerID, Profile: p, ViewedAt: v.Timestamp})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ViewedAt > views[j].ViewedAt })
	return views, nil
}

// ReportOutcome carries the unique-reporter count and whether the reported
// user crossed the flag threshold.
type ReportOutcome struct {
	ReportCount int
	Flagged     bool
}

// Report files an abuse report. The count is of unique reporters, so
// repeated reports from one user do not inflate it.
func (m *Manager) Report(ctx context.Context, reporterID, reportedID, reason string) (ReportOutcome, error) {
	report := Report{
		ID:         "report_" + uuid.NewString(),
		ReporterID: reporterID,
		ReportedID: reportedID,
		Reason:     reason,
		Timestamp:  time.Now().UnixMilli(),
		Status:     "pending",
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return ReportOutcome{}, err
	}
	if err := m.store.Client.HSet(ctx, reportsKey(reportedID), report.ID, raw).Err(); err != nil {
		return ReportOutcome{}, fmt.Errorf("store report: %w", err)
	}
	if err := m.store.Client.HSet(ctx, allReportsKey, report.ID, raw).Err(); err != nil {
		return ReportOutcome{}, fmt.Errorf("index report: %w", err)
	}

	count, err := m.uniqueReporters(ctx, reportedID)
	if err != nil {
		return ReportOutcome{}, err
	}
	flagged := count >= FlagThreshold
	if flagged {
		metrics.UsersFlagged.Inc()
		m.log.Warn("user flagged by reports", "user", reportedID, "reports", count)
	}
	return ReportOutcome{ReportCount: count, Flagged: flagged}, nil
}

// AllReports lists every filed report, newest first.
func (m *Manager) AllReports(ctx context.Context) ([]Report, error) {
	data, err := m.store.Client.HGetAll(ctx, allReportsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	var reports []Report
	for id, raw := range data {
		var r Report
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("decode report %s: %w", id, err)
		}
		reports = append(reports, r)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Timestamp > reports[j].Timestamp })
	return reports, nil
}

// Flagged is one user over the report threshold.
type Flagged struct {
	UserID      string
	Profile     *Profile
	ReportCount int
}

// FlaggedUsers lists every indexed user at or over the flag threshold.
func (m *Manager) FlaggedUsers(ctx context.Context) ([]Flagged, error) {
	allIDs, err := m.store.Client.SMembers(ctx, allProfilesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	var flagged []Flagged
	for _, userID := range allIDs {
		count, err := m.uniqueReporters(ctx, userID)
		if err != nil {
			return nil, err
		}
		if count < FlagThreshold {
			continue
		}
		p, err := m.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		flagged = append(flagged, Flagged{UserID: userID, Profile: p, ReportCount: count})
	}
	return flagged, nil
}

// ReportCount returns the unique-reporter count for a user.
func (m *Manager) ReportCount(ctx context.Context, userID string) (int, error) {
	return m.uniqueReporters(ctx, userID)
}

func (m *Manager) uniqueReporters(ctx context.Context, reportedID string) (int, error) {
	data, err := m.store.Client.HGetAll(ctx, reportsKey(reportedID)).Result()
	if err != nil {
		return 0, fmt.Errorf("list reports for %s: %w", reportedID, err)
	}
	reporters := make(map[string]struct{})
	for id, raw := range data {
		var r Report
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return 0, fmt.Errorf("decode report %s: %w", id, err)
		}
		reporters[r.ReporterID] = struct{}{}
	}
	return len(reporters), nil
}

// TrackInvite credits inviterID for bringing invitedID in; the set keeps the
// count unique per invited user.
func (m *Manager) TrackInvite(ctx context.Context, inviterID, invitedID string) (int, error) {
	if err := m.store.Client.SAdd(ctx, invitesKey(inviterID), invitedID).Err(); err != nil {
		return 0, fmt.Errorf("track invite: %w", err)
	}
	n, err := m.store.Client.SCard(ctx, invitesKey(inviterID)).Result()
	return int(n), err
}

// InviteCount returns how many unique users inviterID has brought in.
func (m *Manager) InviteCount(ctx context.Context, inviterID string) (int, error) {
	n, err := m.store.Client.SCard(ctx, invitesKey(inviterID)).Result()
	return int(n), err
}
