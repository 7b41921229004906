package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freedomchat/backend/internal/rooms"
)

func roomChannel(roomID string) string { return "room_" + roomID }

func (g *Gateway) handleGetRooms(ctx context.Context, c *client) {
	listings, err := g.rooms.All(ctx)
	if err != nil {
		g.log.Error("list rooms", "err", err)
		g.emitError(c.id, "failed to get rooms")
		return
	}
	g.emitTo(c.id, "rooms_list", map[string]interface{}{"rooms": listings})
}

func (g *Gateway) broadcastRoomsList(ctx context.Context) {
	listings, err := g.rooms.All(ctx)
	if err != nil {
		g.log.Error("list rooms", "err", err)
		return
	}
	g.hub.EmitAll("rooms_list", map[string]interface{}{"rooms": listings})
}

func (g *Gateway) handleCreateRoom(ctx context.Context, c *client, raw json.RawMessage) {
	var room rooms.Room
	if !decode(raw, &room) || room.Name == "" {
		g.emitError(c.id, "room name is required")
		return
	}
	out, err := g.rooms.Create(ctx, c.id, c.name, room)
	if err != nil {
		g.log.Error("create room", "err", err)
		g.emitError(c.id, "failed to create room")
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.Join(roomChannel(out.Room.ID), c.id)
	g.emitTo(c.id, "room_created", map[string]interface{}{"room": out.Room})
	g.broadcastRoomsList(ctx)
}

func (g *Gateway) handleCreateDefaultRoom(ctx context.Context, c *client, raw json.RawMessage) {
	var room rooms.Room
	if !decode(raw, &room) || room.Name == "" {
		g.emitError(c.id, "room name is required")
		return
	}
	out, err := g.rooms.CreateDefault(ctx, c.id, room)
	if err != nil {
		g.log.Error("create default room", "err", err)
		g.emitError(c.id, "failed to create room")
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.emitTo(c.id, "room_created", map[string]interface{}{"room": out.Room})
	g.broadcastRoomsList(ctx)
}

func (g *Gateway) handleJoinRoom(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		RoomID string `json:"roomId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.rooms.Join(ctx, c.id, data.RoomID)
	if err != nil {
		g.log.Error("join room", "room", data.RoomID, "err", err)
		g.emitError(c.id, "failed to join room")
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.Join(roomChannel(data.RoomID), c.id)

	// connected members only; stale ids from dropped sockets get cleaned up
	members, err := g.rooms.Members(ctx, data.RoomID, func(_ context.Context, id string) (bool, error) {
		_, connected := g.hub.Get(id)
		return connected, nil
	})
	if err != nil {
		g.log.Error("list room members", "room", data.RoomID, "err", err)
	}
	g.emitTo(c.id, "room_joined", map[string]interface{}{"room": out.Room, "members": members})
	g.hub.Emit(roomChannel(data.RoomID), "user_joined_room", map[string]string{
		"roomId":   data.RoomID,
		"userId":   c.id,
		"userName": c.name,
	})
}

func (g *Gateway) handleLeaveRoom(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		RoomID string `json:"roomId"`
	}
	if !decode(raw, &data) {
		return
	}
	if err := g.rooms.Leave(ctx, c.id, data.RoomID); err != nil {
		g.log.Error("leave room", "room", data.RoomID, "err", err)
		return
	}
	g.hub.Leave(roomChannel(data.RoomID), c.id)
	g.emitTo(c.id, "room_left", map[string]string{"roomId": data.RoomID})
	g.hub.Emit(roomChannel(data.RoomID), "user_left_room", map[string]string{
		"roomId":   data.RoomID,
		"userId":   c.id,
		"userName": c.name,
	})
}

func (g *Gateway) handleRoomMessage(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		RoomID  string `json:"roomId"`
		Message string `json:"message"`
	}
	if !decode(raw, &data) || data.Message == "" {
		return
	}
	g.hub.Emit(roomChannel(data.RoomID), "room_message", map[string]interface{}{
		"roomId":     data.RoomID,
		"senderId":   c.id,
		"senderName": c.name,
		"message":    data.Message,
		"timestamp":  time.Now().UnixMilli(),
	})
	_ = g.stats.TrackMessage(ctx, "room")
}

func (g *Gateway) handleKickUser(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		RoomID   string `json:"roomId"`
		TargetID string `json:"targetId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.rooms.Kick(ctx, c.id, data.TargetID, data.RoomID)
	if err != nil {
		g.log.Error("kick user", "room", data.RoomID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.Emit(roomChannel(data.RoomID), "user_kicked", map[string]string{
		"roomId": data.RoomID,
		"userId": data.TargetID,
	})
	g.hub.Leave(roomChannel(data.RoomID), data.TargetID)
}

func (g *Gateway) handleBanUser(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		RoomID   string `json:"roomId"`
		TargetID string `json:"targetId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.rooms.Ban(ctx, c.id, data.TargetID, data.RoomID)
	if err != nil {
		g.log.Error("ban user", "room", data.RoomID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.Emit(roomChannel(data.RoomID), "user_banned", map[string]string{
		"roomId": data.RoomID,
		"userId": data.TargetID,
	})
	g.hub.Leave(roomChannel(data.RoomID), data.TargetID)
}

func (g *Gateway) handleUpdateRoom(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		RoomID  string     `json:"roomId"`
		Updates rooms.Room `json:"updates"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.rooms.Update(ctx, c.id, data.RoomID, data.Updates)
	if err != nil {
		g.log.Error("update room", "room", data.RoomID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.Emit(roomChannel(data.RoomID), "room_updated", map[string]interface{}{"room": out.Room})
	g.broadcastRoomsList(ctx)
}

func (g *Gateway) handleDeleteRoom(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		RoomID string `json:"roomId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.rooms.Delete(ctx, c.id, data.RoomID)
	if err != nil {
		g.log.Error("delete room", "room", data.RoomID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.Emit(roomChannel(data.RoomID), "room_deleted", map[string]string{"roomId": data.RoomID})
	g.broadcastRoomsList(ctx)
}
