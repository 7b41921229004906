package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freedomchat/backend/internal/roulette"
)

// announceMatch is the single announce path for every new roulette session,
// whichever flow formed it (join, sweep or skip rematch).
func (g *Gateway) announceMatch(sess *roulette.Session) {
	g.hub.Join(sess.ID, sess.User1)
	g.hub.Join(sess.ID, sess.User2)
	g.hub.Emit(sess.ID, "match_found", map[string]interface{}{
		"sessionId": sess.ID,
		"duration":  g.matcher.Sessions().Duration(),
		"users": []map[string]string{
			{"id": sess.User1, "name": g.nameOf(sess.User1)},
			{"id": sess.User2, "name": g.nameOf(sess.User2)},
		},
	})
	_ = g.stats.TrackRouletteSession(context.Background())
}

func (g *Gateway) handleRegister(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		Name   string `json:"name"`
		Gender string `json:"gender"`
		Email  string `json:"email"`
		City   string `json:"city"`
		Photo  string `json:"photo"`
		Source string `json:"source"`
	}
	if !decode(raw, &data) || data.Name == "" {
		g.emitTo(c.id, "registered", map[string]interface{}{"success": false, "error": "name is required"})
		return
	}

	c.name = data.Name
	c.gender = data.Gender
	c.registered = true

	if err := g.stats.TrackSignup(ctx, data.Email, data.Name, data.City, data.Gender); err != nil {
		g.log.Error("track signup", "client", c.id, "err", err)
	}
	if data.Source != "" {
		_ = g.auth.TrackSignupSource(ctx, data.Source)
	}

	g.emitTo(c.id, "registered", map[string]interface{}{
		"success": true,
		"user": map[string]string{
			"id":     c.id,
			"name":   c.name,
			"gender": c.gender,
		},
	})
}

func (g *Gateway) handleJoinQueue(ctx context.Context, c *client) {
	if !c.registered {
		g.emitError(c.id, "please register first")
		return
	}
	g.emitTo(c.id, "queue_status", map[string]string{"status": "joining"})

	res, err := g.matcher.Join(ctx, c.id, c.gender)
	if err != nil {
		g.log.Error("join queue", "client", c.id, "err", err)
		g.emitError(c.id, "failed to join queue")
		return
	}
	switch {
	case res.Declined == roulette.DeclineGenderRequired:
		g.emitError(c.id, "please select your gender to use roulette matching")
	case res.Declined == roulette.DeclineAlreadyQueued:
		g.emitTo(c.id, "queue_status", map[string]interface{}{"status": "waiting", "position": res.Position})
	case res.Matched:
		// announceMatch already notified the pair
	default:
		g.emitTo(c.id, "queue_status", map[string]interface{}{"status": "waiting", "position": res.Position})
	}
}

func (g *Gateway) handleLeaveQueue(ctx context.Context, c *client) {
	if err := g.matcher.Queue().Leave(ctx, c.id); err != nil {
		g.log.Error("leave queue", "client", c.id, "err", err)
		return
	}
	g.emitTo(c.id, "queue_status", map[string]string{"status": "left"})
}

func (g *Gateway) handleRouletteMessage(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		SessionID string `json:"sessionId"`
		Message   string `json:"message"`
	}
	if !decode(raw, &data) || data.Message == "" {
		return
	}
	sess, err := g.matcher.Sessions().Get(ctx, data.SessionID)
	if err != nil || sess == nil || !sess.Has(c.id) {
		return
	}
	g.hub.Emit(data.SessionID, "roulette_message", map[string]interface{}{
		"senderId":   c.id,
		"senderName": c.name,
		"message":    data.Message,
		"timestamp":  time.Now().UnixMilli(),
	})
	_ = g.stats.TrackMessage(ctx, "roulette")
}

func (g *Gateway) handleLike(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		SessionID string `json:"sessionId"`
	}
	if !decode(raw, &data) {
		return
	}
	res, err := g.matcher.Sessions().RegisterLike(ctx, data.SessionID, c.id)
	if err != nil {
		g.log.Error("register like", "session", data.SessionID, "err", err)
		return
	}
	if !res.Found {
		return
	}
	_ = g.stats.TrackLike(ctx)
	g.hub.Emit(data.SessionID, "like_registered", map[string]interface{}{
		"sessionId": data.SessionID,
		"mutual":    res.Mutual,
		"likes":     len(res.Likes),
	})
	if !res.Mutual {
		return
	}

	chat, err := g.matcher.HandleMutualLike(ctx, data.SessionID)
	if err != nil {
		g.log.Error("mutual like hand-off", "session", data.SessionID, "err", err)
		return
	}
	if chat == nil {
		return
	}
	_ = g.stats.TrackMatch(ctx)

	for _, party := range []string{chat.User1, chat.User2} {
		g.hub.Leave(data.SessionID, party)
		g.hub.Join(chat.ID, party)
	}
	g.hub.Emit(chat.ID, "private_chat_started", map[string]interface{}{
		"chatId":   chat.ID,
		"duration": g.matcher.Chats().Duration(),
		"users": []map[string]string{
			{"id": chat.User1, "name": g.nameOf(chat.User1)},
			{"id": chat.User2, "name": g.nameOf(chat.User2)},
		},
	})
}

func (g *Gateway) handleSkip(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		SessionID string `json:"sessionId"`
	}
	if !decode(raw, &data) {
		return
	}
	if err := g.matcher.Skip(ctx, data.SessionID, c.id); err != nil {
		g.log.Error("skip session", "session", data.SessionID, "err", err)
	}
}

func (g *Gateway) handlePrivateMessage(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		ChatID  string `json:"chatId"`
		Message string `json:"message"`
	}
	if !decode(raw, &data) || data.Message == "" {
		return
	}
	chat, err := g.matcher.Chats().Get(ctx, data.ChatID)
	if err != nil || chat == nil || !chat.Has(c.id) {
		return
	}
	g.hub.Emit(data.ChatID, "private_message", map[string]interface{}{
		"senderId":   c.id,
		"senderName": c.name,
		"message":    data.Message,
		"timestamp":  time.Now().UnixMilli(),
	})
	_ = g.stats.TrackMessage(ctx, "private")
}

func (g *Gateway) handleExtend(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		ChatID string `json:"chatId"`
	}
	if !decode(raw, &data) {
		return
	}
	res, err := g.matcher.Chats().VoteExtend(ctx, data.ChatID, c.id)
	if err != nil {
		g.log.Error("extend vote", "chat", data.ChatID, "err", err)
		return
	}
	if res.Found && !res.Extended {
		// chat_extended is broadcast by the manager once both have voted
		g.hub.Emit(data.ChatID, "extend_vote", map[string]interface{}{
			"chatId":     data.ChatID,
			"votedCount": res.VotedCount,
		})
	}
}

func (g *Gateway) handleLeavePrivate(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		ChatID string `json:"chatId"`
	}
	if !decode(raw, &data) {
		return
	}
	chat, err := g.matcher.Chats().Get(ctx, data.ChatID)
	if err != nil || chat == nil || !chat.Has(c.id) {
		return
	}
	if err := g.matcher.Chats().End(ctx, data.ChatID, roulette.EndUserLeft); err != nil {
		g.log.Error("leave private chat", "chat", data.ChatID, "err", err)
	}
}
