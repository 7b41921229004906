package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/freedomchat/backend/internal/app"
	"github.com/freedomchat/backend/internal/store"
)

// Manager handles profile storage, discovery and the browse-based matching
// flow (distinct from the roulette: these likes are directed at profiles, not
// sessions, and matches persist).
type Manager struct {
	store *store.Redis
	log   *slog.Logger
}

func NewManager(appCtx *app.AppContext) *Manager {
	return &Manager{store: appCtx.Store, log: appCtx.Logger}
}

// Save creates or updates a profile, preserving the original creation time.
// Profiles with at least one photo enter the discovery index.
func (m *Manager) Save(ctx context.Context, userID string, p Profile) (*Profile, error) {
	existing, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	p.ID = userID
	p.Name = truncate(p.Name, maxNameLen)
	p.City = truncate(p.City, maxCityLen)
	p.Bio = truncate(p.Bio, maxBioLen)
	p.LastActive = now
	if existing != nil {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}

	if err := m.store.SetJSON(ctx, profileKey(userID), &p, profileTTL); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	if len(p.Photos) > 0 || p.Photo != "" {
		if err := m.store.Client.SAdd(ctx, allProfilesKey, userID).Err(); err != nil {
			return nil, fmt.Errorf("index profile: %w", err)
		}
	}
	return &p, nil
}

// Get returns the profile, or nil when it does not exist.
func (m *Manager) Get(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	found, err := m.store.GetJSON(ctx, profileKey(userID), &p)
	if err != nil || !found {
		return nil, err
	}
	return &p, nil
}

// Delete removes the profile and all social state attached to it.
func (m *Manager) Delete(ctx context.Context, userID string) error {
	if err := m.store.Del(ctx,
		profileKey(userID),
		likesGivenKey(userID),
		likesReceivedKey(userID),
		matchesKey(userID),
		viewsKey(userID),
	); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if err := m.store.Client.SRem(ctx, allProfilesKey, userID).Err(); err != nil {
		return fmt.Errorf("unindex profile: %w", err)
	}
	m.log.Info("profile deleted", "user", userID)
	return nil
}

// Touch refreshes the profile's last-active timestamp.
func (m *Manager) Touch(ctx context.Context, userID string) error {
	p, err := m.Get(ctx, userID)
	if err != nil || p == nil {
		return err
	}
	p.LastActive = time.Now().UnixMilli()
	return m.store.SetJSON(ctx, profileKey(userID), p, profileTTL)
}

// BrowseFilters narrow a discovery listing.
type BrowseFilters struct {
	City   string
	Gender string
	Limit  int
	Offset int
}

// BrowseResult splits complete profiles into active and inactive shelves.
type BrowseResult struct {
	Active        []Profile
	Inactive      []Profile
	TotalActive   int
	TotalInactive int
}

// Browse lists discoverable profiles for userID: complete profiles only,
// excluding self and anyone already liked, newest activity first.
func (m *Manager) Browse(ctx context.Context, userID string, filters BrowseFilters) (*BrowseResult, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}

	allIDs, err := m.store.Client.SMembers(ctx, allProfilesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	liked, err := m.store.Client.SMembers(ctx, likesGivenKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list likes given: %w", err)
	}
	likedSet := make(map[string]struct{}, len(liked))
	for _, id := range liked {
		likedSet[id] = struct{}{}
	}

	now := time.Now().UnixMilli()
	res := &BrowseResult{}
	for _, pid := range allIDs {
		if pid == userID {
			continue
		}
		if _, ok := likedSet[pid]; ok {
			continue
		}
		p, err := m.Get(ctx, pid)
		if err != nil {
			return nil, err
		}
		if p == nil || !p.Complete() {
			continue
		}
		if filters.City != "" && !containsFold(p.City, filters.City) {
			continue
		}
		if filters.Gender != "" && p.Gender != filters.Gender {
			continue
		}

		if now-p.LastActive > inactiveAfter.Milliseconds() {
			res.Inactive = append(res.Inactive, *p)
		} else {
			res.Active = append(res.Active, *p)
		}
	}

	sortByLastActive(res.Active)
	sortByLastActive(res.Inactive)
	res.TotalActive = len(res.Active)
	res.TotalInactive = len(res.Inactive)

	if filters.Offset < len(res.Active) {
		end := filters.Offset + filters.Limit
		if end > len(res.Active) {
			end = len(res.Active)
		}
		res.Active = res.Active[filters.Offset:end]
	} else {
		res.Active = nil
	}
	return res, nil
}

// Featured returns up to limit complete profiles active within the last week.
func (m *Manager) Featured(ctx context.Context, excludeID, gender string, limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = 10
	}
	allIDs, err := m.store.Client.SMembers(ctx, allProfilesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	now := time.Now().UnixMilli()
	var qualified []Profile
	for _, pid := range allIDs {
		if pid == excludeID {
			continue
		}
		p, err := m.Get(ctx, pid)
		if err != nil {
			return nil, err
		}
		if p == nil || !p.Complete() {
			continue
		}
		if now-p.LastActive > featuredWindow.Milliseconds() {
			continue
		}
		if gender != "" && p.Gender != gender {
			continue
		}
		qualified = append(qualified, *p)
	}

	sortByLastActive(qualified)
	if len(qualified) > limit {
		qualified = qualified[:limit]
	}
	return qualified, nil
}

// AllProfiles lists every indexed profile, complete or not, newest activity
// first. Used by the admin dashboard.
func (m *Manager) AllProfiles(ctx context.Context) ([]Profile, error) {
	allIDs, err := m.store.Client.SMembers(ctx, allProfilesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	var profiles []Profile
	for _, pid := range allIDs {
		p, err := m.Get(ctx, pid)
		if err != nil {
			return nil, err
		}
		if p == nil {
			// record expired but index entry lingered
			_ = m.store.Client.SRem(ctx, allProfilesKey, pid).Err()
			continue
		}
		profiles = append(profiles, *p)
	}
	sortByLastActive(profiles)
	return profiles, nil
}

// Online reports whether the profile was active within the online window.
func (m *Manager) Online(p *Profile) bool {
	return time.Now().UnixMilli()-p.LastActive < onlineWindow.Milliseconds()
}

func sortByLastActive(ps []Profile) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].LastActive > ps[j].LastActive })
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
