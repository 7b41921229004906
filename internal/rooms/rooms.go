package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freedomchat/backend/internal/app"
	"github.com/freedomchat/backend/internal/store"
)

const (
	// custom rooms and bans expire after 7 days of no activity
	roomTTL = 7 * 24 * time.Hour

	maxNameLen        = 50
	maxDescriptionLen = 200
)

// Room is a topic chat room. Default rooms are seeded at boot and only
// admins may change them; custom rooms belong to their creator and expire
// when idle.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	IsDefault   bool   `json:"isDefault"`
	IsPrivate   bool   `json:"isPrivate,omitempty"`
	CreatorID   string `json:"creatorId"`
	CreatorName string `json:"creatorName,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt,omitempty"`
}

// Listing is a room with its live member count.
type Listing struct {
	Room
	MemberCount int `json:"memberCount"`
}

// Outcome is a declined-or-accepted room operation result.
type Outcome struct {
	OK     bool
	Reason string
	Room   *Listing
}

var defaultRooms = []Room{
	{ID: "general", Name: "General Chat", Description: "Welcome! Say hi and meet new people", Icon: "👋", IsDefault: true},
	{ID: "news", Name: "News & Politics", Description: "Discuss current events and news", Icon: "📰", IsDefault: true},
	{ID: "science", Name: "Science & Health", Description: "Science, health, and wellness topics", Icon: "🔬", IsDefault: true},
}

// Manager handles room CRUD, membership and moderation.
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

func roomKey(id string) string          { return "room:" + id }
func membersKey(id string) string       { return "room:" + id + ":members" }
func bansKey(id string) string          { return "room:" + id + ":bans" }
func userRoomsKey(userID string) string { return "user:" + userID + ":rooms" }

// InitDefaults seeds the default rooms that do not exist yet.
func (m *Manager) InitDefaults(ctx context.Context) error {
	for _, room := range defaultRooms {
		exists, err := m.store.Exists(ctx, roomKey(room.ID))
		if err != nil {
			return fmt.Errorf("check room %s: %w", room.ID, err)
		}
		if exists {
			continue
		}
		room.CreatedAt = time.Now().UnixMilli()
		room.CreatorID = "system"
		if err := m.store.SetJSON(ctx, roomKey(room.ID), &room, 0); err != nil {
			return fmt.Errorf("seed room %s: %w", room.ID, err)
		}
	}
	m.log.Info("default rooms initialized")
	return nil
}

// Get returns the room with its member count, or nil when absent.
func (m *Manager) Get(ctx context.Context, roomID string) (*Listing, error) {
	var room Room
	found, err := m.store.GetJSON(ctx, roomKey(roomID), &room)
	if err != nil || !found {
		return nil, err
	}
	count, err := m.store.Client.SCard(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	return &Listing{Room: room, MemberCount: int(count)}, nil
}

// All lists every room, default rooms first, then by member count.
func (m *Manager) All(ctx context.Context) ([]Listing, error) {
	keys, err := m.store.Client.Keys(ctx, "room:*").Result()
	if err != nil {
		return nil, fmt.Errorf("scan rooms: %w", err)
	}

	var rooms []Listing
	for _, key := range keys {
		id := strings.TrimPrefix(key, "room:")
		if id == "" || strings.Contains(id, ":") {
			continue // members/bans keys
		}
		listing, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if listing != nil {
			rooms = append(rooms, *listing)
		}
	}

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].IsDefault != rooms[j].IsDefault {
			return rooms[i].IsDefault
		}
		return rooms[i].MemberCount > rooms[j].MemberCount
	})
	return rooms, nil
}

// Create makes a custom room owned by the creator, who joins it immediately.
func (m *Manager) Create(ctx context.Context, creatorID, creatorName string, room Room) (Outcome, error) {
	room.ID = "custom_" + uuid.NewString()
	room.Name = truncate(room.Name, maxNameLen)
	room.Description = truncate(room.Description, maxDescriptionLen)
	if room.Icon == "" {
		room.Icon = "💬"
	}
	room.IsDefault = false
	room.CreatorID = creatorID
	room.CreatorName = creatorName
	room.CreatedAt = time.Now().UnixMilli()

	if err := m.store.SetJSON(ctx, roomKey(room.ID), &room, roomTTL); err != nil {
		return Outcome{}, fmt.Errorf("create room: %w", err)
	}
	if _, err := m.Join(ctx, creatorID, room.ID); err != nil {
		return Outcome{}, err
	}

	listing, err := m.Get(ctx, room.ID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{OK: true, Room: listing}, nil
}

// CreateDefault makes a default room; admin only.
func (m *Manager) CreateDefault(ctx context.Context, requesterID string, room Room) (Outcome, error) {
	if !m.isAdmin(requesterID) {
		return Outcome{Reason: "not_authorized"}, nil
	}
	if room.ID == "" {
		room.ID = "default_" + uuid.NewString()
	}
	room.Name = truncate(room.Name, maxNameLen)
	room.Description = truncate(room.Description, maxDescriptionLen)
	if room.Icon == "" {
		room.Icon = "💬"
	}
	room.IsDefault = true
	room.CreatorID = "system"
	room.CreatedAt = time.Now().UnixMilli()

	if err := m.store.SetJSON(ctx, roomKey(room.ID), &room, 0); err != nil {
		return Outcome{}, fmt.Errorf("create default room: %w", err)
	}
	return Outcome{OK: true, Room: &Listing{Room: room}}, nil
}

// Update edits a room. Default rooms require admin; custom rooms their
// creator (or admin).
func (m *Manager) Update(ctx context.Context, requesterID, roomID string, updates Room) (Outcome, error) {
	listing, err := m.Get(ctx, roomID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "room_not_found"}, nil
	}
	if !m.mayModerate(requesterID, &listing.Room) {
		return Outcome{Reason: "not_authorized"}, nil
	}

	room := listing.Room
	if updates.Name != "" {
		room.Name = truncate(updates.Name, maxNameLen)
	}
	if updates.Description != "" {
		room.Description = truncate(updates.Description, maxDescriptionLen)
	}
	if updates.Icon != "" {
		room.Icon = updates.Icon
	}
	room.UpdatedAt = time.Now().UnixMilli()

	ttl := time.Duration(0)
	if !room.IsDefault {
		ttl = roomTTL
	}
	if err := m.store.SetJSON(ctx, roomKey(roomID), &room, ttl); err != nil {
		return Outcome{}, fmt.Errorf("update room: %w", err)
	}
	listing.Room = room
	return Outcome{OK: true, Room: listing}, nil
}

// Delete removes a room and all its data. Default rooms require admin.
func (m *Manager) Delete(ctx context.Context, requesterID, roomID string) (Outcome, error) {
	listing, err := m.Get(ctx, roomID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "room_not_found"}, nil
	}
	if !m.mayModerate(requesterID, &listing.Room) {
		return Outcome{Reason: "not_authorized"}, nil
	}

	if err := m.store.Del(ctx, roomKey(roomID), membersKey(roomID), bansKey(roomID)); err != nil {
		return Outcome{}, fmt.Errorf("delete room: %w", err)
	}
	return Outcome{OK: true}, nil
}

// Join adds a user to a room, unless banned. Refreshes the room's activity
// TTL for custom rooms.
func (m *Manager) Join(ctx context.Context, userID, roomID string) (Outcome, error) {
	listing, err := m.Get(ctx, roomID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "room_not_found"}, nil
	}

	banned, err := m.store.Client.SIsMember(ctx, bansKey(roomID), userID).Result()
	if err != nil {
		return Outcome{}, fmt.Errorf("check ban: %w", err)
	}
	if banned {
		return Outcome{Reason: "banned"}, nil
	}

	if err := m.store.Client.SAdd(ctx, membersKey(roomID), userID).Err(); err != nil {
		return Outcome{}, fmt.Errorf("join room: %w", err)
	}
	if err := m.store.Client.SAdd(ctx, userRoomsKey(userID), roomID).Err(); err != nil {
		return Outcome{}, fmt.Errorf("track user room: %w", err)
	}
	if !listing.IsDefault {
		_ = m.store.Client.Expire(ctx, roomKey(roomID), roomTTL).Err()
	}

	listing.MemberCount++
	return Outcome{OK: true, Room: listing}, nil
}

// Leave removes a user from a room. Idempotent.
func (m *Manager) Leave(ctx context.Context, userID, roomID string) error {
	if err := m.store.Client.SRem(ctx, membersKey(roomID), userID).Err(); err != nil {
		return err
	}
	return m.store.Client.SRem(ctx, userRoomsKey(userID), roomID).Err()
}

// Members returns member ids, dropping entries whose user record resolver
// reports gone (stale members are cleaned up in passing).
func (m *Manager) Members(ctx context.Context, roomID string, alive func(context.Context, string) (bool, error)) ([]string, error) {
	ids, err := m.store.Client.SMembers(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	var members []string
	for _, id := range ids {
		ok, err := alive(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			_ = m.store.Client.SRem(ctx, membersKey(roomID), id).Err()
			continue
		}
		members = append(members, id)
	}
	return members, nil
}

// Kick removes a target from the room; moderator only.
func (m *Manager) Kick(ctx context.Context, requesterID, targetID, roomID string) (Outcome, error) {
	listing, err := m.Get(ctx, roomID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "room_not_found"}, nil
	}
	if !m.mayModerate(requesterID, &listing.Room) {
		return Outcome{Reason: "not_authorized"}, nil
	}
	if err := m.Leave(ctx, targetID, roomID); err != nil {
		return Outcome{}, err
	}
	return Outcome{OK: true}, nil
}

// Ban kicks a target and blocks re-entry for the ban TTL; moderator only.
func (m *Manager) Ban(ctx context.Context, requesterID, targetID, roomID string) (Outcome, error) {
	out, err := m.Kick(ctx, requesterID, targetID, roomID)
	if err != nil || !out.OK {
		return out, err
	}
	if err := m.store.Client.SAdd(ctx, bansKey(roomID), targetID).Err(); err != nil {
		return Outcome{}, fmt.Errorf("ban user: %w", err)
	}
	_ = m.store.Client.Expire(ctx, bansKey(roomID), roomTTL).Err()
	return Outcome{OK: true}, nil
}

// Unban lifts a ban; moderator only.
func (m *Manager) Unban(ctx context.Context, requesterID, targetID, roomID string) (Outcome, error) {
	listing, err := m.Get(ctx, roomID)
	if err != nil {
		return Outcome{}, err
	}
	if listing == nil {
		return Outcome{Reason: "room_not_found"}, nil
	}
	if !m.mayModerate(requesterID, &listing.Room) {
		return Outcome{Reason: "not_authorized"}, nil
	}
	if err := m.store.Client.SRem(ctx, bansKey(roomID), targetID).Err(); err != nil {
		return Outcome{}, err
	}
	return Outcome{OK: true}, nil
}

// RoomsOf lists the rooms a user has joined.
func (m *Manager) RoomsOf(ctx context.Context, userID string) ([]string, error) {
	return m.store.Client.SMembers(ctx, userRoomsKey(userID)).Result()
}

// RemoveFromAll clears a user out of every room, for the disconnect sweep.
func (m *Manager) RemoveFromAll(ctx context.Context, userID string) error {
	roomIDs, err := m.RoomsOf(ctx, userID)
	if err != nil {
		return err
	}
	for _, roomID := range roomIDs {
		if err := m.store.Client.SRem(ctx, membersKey(roomID), userID).Err(); err != nil {
			return err
		}
	}
	return m.store.Del(ctx, userRoomsKey(userID))
}

func (m *Manager) mayModerate(requesterID string, room *Room) bool {
	if m.isAdmin(requesterID) {
		return true
	}
	return !room.IsDefault && room.CreatorID == requesterID
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
