package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freedomchat/backend/internal/events"
)

func eventChannel(eventID string) string { return "event_" + eventID }

func (g *Gateway) handleGetEvents(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		IncludeEnded bool `json:"includeEnded"`
	}
	decode(raw, &data)
	listings, err := g.events.All(ctx, data.IncludeEnded)
	if err != nil {
		g.log.Error("list events", "err", err)
		g.emitError(c.id, "failed to get events")
		return
	}
	g.emitTo(c.id, "events_list", map[string]interface{}{"events": listings})
}

func (g *Gateway) handleGetUpcomingEvents(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		Limit int `json:"limit"`
	}
	decode(raw, &data)
	listings, err := g.events.Upcoming(ctx, data.Limit)
	if err != nil {
		g.log.Error("list upcoming events", "err", err)
		return
	}
	g.emitTo(c.id, "upcoming_events", map[string]interface{}{"events": listings})
}

func (g *Gateway) handleGetEvent(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID string `json:"eventId"`
	}
	if !decode(raw, &data) {
		return
	}
	listing, err := g.events.Get(ctx, data.EventID)
	if err != nil {
		g.log.Error("get event", "event", data.EventID, "err", err)
		return
	}
	if listing == nil {
		g.emitError(c.id, "event not found")
		return
	}
	hasRsvp, _ := g.events.HasRsvp(ctx, c.id, data.EventID)
	g.emitTo(c.id, "event_data", map[string]interface{}{"event": listing, "hasRsvp": hasRsvp})
}

func (g *Gateway) handleCreateEvent(ctx context.Context, c *client, raw json.RawMessage) {
	var ev events.Event
	if !decode(raw, &ev) {
		g.emitError(c.id, "malformed event")
		return
	}
	out, err := g.events.Create(ctx, c.id, c.name, ev)
	if err != nil {
		g.log.Error("create event", "err", err)
		g.emitError(c.id, "failed to create event")
		return
	}
	g.emitTo(c.id, "event_created", map[string]interface{}{"event": out.Event})
	g.hub.EmitAll("new_event", map[string]interface{}{"event": out.Event})
}

func (g *Gateway) handleUpdateEvent(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID string       `json:"eventId"`
		Updates events.Event `json:"updates"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.events.Update(ctx, c.id, data.EventID, data.Updates)
	if err != nil {
		g.log.Error("update event", "event", data.EventID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.emitTo(c.id, "event_updated", map[string]interface{}{"event": out.Event})
	g.hub.EmitAll("event_changed", map[string]interface{}{"event": out.Event})
}

func (g *Gateway) handleDeleteEvent(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID string `json:"eventId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.events.Delete(ctx, c.id, data.EventID)
	if err != nil {
		g.log.Error("delete event", "event", data.EventID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.EmitAll("event_deleted", map[string]string{"eventId": data.EventID})
}

func (g *Gateway) handleRsvp(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID string `json:"eventId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.events.Rsvp(ctx, c.id, data.EventID)
	if err != nil {
		g.log.Error("rsvp", "event", data.EventID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.emitTo(c.id, "rsvp_success", map[string]interface{}{"eventId": data.EventID, "rsvpCount": out.Count})
	g.hub.EmitAll("event_rsvp_updated", map[string]interface{}{"eventId": data.EventID, "rsvpCount": out.Count})
}

func (g *Gateway) handleCancelRsvp(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID string `json:"eventId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.events.CancelRsvp(ctx, c.id, data.EventID)
	if err != nil {
		g.log.Error("cancel rsvp", "event", data.EventID, "err", err)
		return
	}
	g.emitTo(c.id, "rsvp_cancelled", map[string]interface{}{"eventId": data.EventID, "rsvpCount": out.Count})
	g.hub.EmitAll("event_rsvp_updated", map[string]interface{}{"eventId": data.EventID, "rsvpCount": out.Count})
}

func (g *Gateway) handleStartEvent(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID string `json:"eventId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.events.Start(ctx, c.id, data.EventID)
	if err != nil {
		g.log.Error("start event", "event", data.EventID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.EmitAll("event_started", map[string]interface{}{"eventId": data.EventID, "event": out.Event})
}

func (g *Gateway) handleEndEvent(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID string `json:"eventId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.events.End(ctx, c.id, data.EventID)
	if err != nil {
		g.log.Error("end event", "event", data.EventID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.EmitAll("event_ended", map[string]string{"eventId": data.EventID})
}

func (g *Gateway) handleJoinEvent(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID string `json:"eventId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.events.JoinRoom(ctx, c.id, data.EventID)
	if err != nil {
		g.log.Error("join event", "event", data.EventID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.Join(eventChannel(data.EventID), c.id)

	questions, err := g.events.Questions(ctx, data.EventID, "")
	if err != nil {
		g.log.Error("list questions", "event", data.EventID, "err", err)
	}
	attendees, err := g.events.Attendees(ctx, data.EventID)
	if err != nil {
		g.log.Error("list attendees", "event", data.EventID, "err", err)
	}
	g.emitTo(c.id, "event_joined", map[string]interface{}{
		"event":         out.Event,
		"attendeeCount": out.Count,
		"attendees":     attendees,
		"questions":     questions,
	})
	g.hub.Emit(eventChannel(data.EventID), "attendee_joined", map[string]interface{}{
		"eventId":       data.EventID,
		"userId":        c.id,
		"userName":      c.name,
		"attendeeCount": out.Count,
	})
}

func (g *Gateway) handleLeaveEvent(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID string `json:"eventId"`
	}
	if !decode(raw, &data) {
		return
	}
	count, err := g.events.LeaveRoom(ctx, c.id, data.EventID)
	if err != nil {
		g.log.Error("leave event", "event", data.EventID, "err", err)
		return
	}
	g.hub.Leave(eventChannel(data.EventID), c.id)
	g.hub.Emit(eventChannel(data.EventID), "attendee_left", map[string]interface{}{
		"eventId":       data.EventID,
		"userId":        c.id,
		"attendeeCount": count,
	})
}

func (g *Gateway) handleEventMessage(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID string `json:"eventId"`
		Message string `json:"message"`
	}
	if !decode(raw, &data) || data.Message == "" {
		return
	}
	if len(data.Message) > 500 {
		data.Message = data.Message[:500]
	}
	g.hub.Emit(eventChannel(data.EventID), "event_message", map[string]interface{}{
		"eventId":    data.EventID,
		"senderId":   c.id,
		"senderName": c.name,
		"message":    data.Message,
		"timestamp":  time.Now().UnixMilli(),
	})
	if err := g.events.CountMessage(ctx, data.EventID); err != nil {
		g.log.Error("count event message", "event", data.EventID, "err", err)
	}
	_ = g.stats.TrackMessage(ctx, "room")
}

func (g *Gateway) handleSubmitQuestion(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID  string `json:"eventId"`
		Question string `json:"question"`
	}
	if !decode(raw, &data) || data.Question == "" {
		return
	}
	out, err := g.events.SubmitQuestion(ctx, c.id, c.name, data.EventID, data.Question)
	if err != nil {
		g.log.Error("submit question", "event", data.EventID, "err", err)
		return
	}
	g.hub.Emit(eventChannel(data.EventID), "new_question", out.Question)
}

func (g *Gateway) handleUpvoteQuestion(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID    string `json:"eventId"`
		QuestionID string `json:"questionId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.events.Upvote(ctx, c.id, data.EventID, data.QuestionID)
	if err != nil {
		g.log.Error("upvote question", "event", data.EventID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.Emit(eventChannel(data.EventID), "question_updated", out.Question)
}

func (g *Gateway) handleUpdateQuestionStatus(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		EventID    string `json:"eventId"`
		QuestionID string `json:"questionId"`
		Status     string `json:"status"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.events.SetQuestionStatus(ctx, c.id, data.EventID, data.QuestionID, data.Status)
	if err != nil {
		g.log.Error("update question status", "event", data.EventID, "err", err)
		return
	}
	if !out.OK {
		g.emitError(c.id, out.Reason)
		return
	}
	g.hub.Emit(eventChannel(data.EventID), "question_updated", out.Question)
}

func (g *Gateway) handleAllEventsStats(ctx context.Context, c *client) {
	if !g.auth.IsAdmin(c.id) {
		g.emitError(c.id, "not authorized")
		return
	}
	total, err := g.events.AllStats(ctx)
	if err != nil {
		g.log.Error("aggregate event stats", "err", err)
		return
	}
	g.emitTo(c.id, "all_events_stats", total)
}
