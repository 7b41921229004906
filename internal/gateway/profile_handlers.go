package gateway

import (
	"context"
	"encoding/json"

	"github.com/freedomchat/backend/internal/profile"
)

func (g *Gateway) handleSaveProfile(ctx context.Context, c *client, raw json.RawMessage) {
	var p profile.Profile
	if !decode(raw, &p) {
		g.emitError(c.id, "malformed profile")
		return
	}
	saved, err := g.profiles.Save(ctx, c.id, p)
	if err != nil {
		g.log.Error("save profile", "client", c.id, "err", err)
		g.emitError(c.id, "failed to save profile")
		return
	}
	if saved.Name != "" {
		c.name = saved.Name
	}
	if saved.Gender != "" {
		c.gender = saved.Gender
	}
	g.emitTo(c.id, "profile_saved", map[string]interface{}{"profile": saved})
}

func (g *Gateway) handleBrowseProfiles(ctx context.Context, c *client, raw json.RawMessage) {
	var filters profile.BrowseFilters
	decode(raw, &filters)
	res, err := g.profiles.Browse(ctx, c.id, filters)
	if err != nil {
		g.log.Error("browse profiles", "client", c.id, "err", err)
		g.emitError(c.id, "failed to load profiles")
		return
	}
	g.emitTo(c.id, "profiles_list", map[string]interface{}{
		"profiles":      res.Active,
		"inactive":      res.Inactive,
		"totalActive":   res.TotalActive,
		"totalInactive": res.TotalInactive,
	})
	_ = g.profiles.Touch(ctx, c.id)
}

func (g *Gateway) handleLikeProfile(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		UserID string `json:"userId"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.profiles.Like(ctx, c.id, data.UserID)
	if err != nil {
		g.log.Error("like profile", "client", c.id, "err", err)
		g.emitError(c.id, "failed to like profile")
		return
	}
	g.emitTo(c.id, "like_result", map[string]interface{}{
		"ok":      out.OK,
		"isMatch": out.IsMatch,
		"reason":  out.Reason,
	})
	if !out.OK {
		return
	}
	_ = g.stats.TrackLike(ctx)
	if !out.IsMatch {
		// the liked user sees it in their likes list; no push
		return
	}
	_ = g.stats.TrackMatch(ctx)

	theirs, err := g.profiles.Get(ctx, data.UserID)
	if err == nil && theirs != nil {
		g.emitTo(c.id, "new_match", map[string]interface{}{"profile": theirs})
	}
	mine, err := g.profiles.Get(ctx, c.id)
	if err == nil && mine != nil {
		g.emitTo(data.UserID, "new_match", map[string]interface{}{"profile": mine})
	}
}

func (g *Gateway) handleGetLikes(ctx context.Context, c *client) {
	likes, err := g.profiles.LikesReceived(ctx, c.id)
	if err != nil {
		g.log.Error("list likes", "client", c.id, "err", err)
		g.emitError(c.id, "failed to get likes")
		return
	}
	g.emitTo(c.id, "likes_list", map[string]interface{}{"likes": likes})
}

func (g *Gateway) handleRemoveLike(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		UserID string `json:"userId"`
	}
	if !decode(raw, &data) {
		return
	}
	if err := g.profiles.RemoveLike(ctx, c.id, data.UserID); err != nil {
		g.log.Error("remove like", "client", c.id, "err", err)
		return
	}
	g.emitTo(c.id, "like_removed", map[string]string{"userId": data.UserID})
}

func (g *Gateway) handleGetMatches(ctx context.Context, c *client) {
	matches, err := g.profiles.Matches(ctx, c.id)
	if err != nil {
		g.log.Error("list matches", "client", c.id, "err", err)
		g.emitError(c.id, "failed to get matches")
		return
	}
	g.emitTo(c.id, "matches_list", map[string]interface{}{"matches": matches})
}

func (g *Gateway) handleUnmatch(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		UserID string `json:"userId"`
	}
	if !decode(raw, &data) {
		return
	}
	if err := g.profiles.Unmatch(ctx, c.id, data.UserID); err != nil {
		g.log.Error("unmatch", "client", c.id, "err", err)
		return
	}
	g.emitTo(c.id, "unmatched", map[string]string{"userId": data.UserID})
}

func (g *Gateway) handleScheduleChat(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		MatchID       string `json:"matchId"`
		ScheduledTime int64  `json:"scheduledTime"`
		Duration      int    `json:"duration"`
	}
	if !decode(raw, &data) {
		return
	}
	chat, err := g.profiles.ScheduleChat(ctx, c.id, data.MatchID, data.ScheduledTime, data.Duration)
	if err != nil {
		g.log.Error("schedule chat", "client", c.id, "err", err)
		g.emitError(c.id, "failed to schedule chat")
		return
	}
	if chat == nil {
		g.emitError(c.id, "not matched with this user")
		return
	}
	g.emitTo(c.id, "chat_scheduled", chat)
	g.emitTo(data.MatchID, "chat_scheduled", chat)
}

func (g *Gateway) handleCancelScheduledChat(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		MatchID string `json:"matchId"`
		ChatID  string `json:"chatId"`
	}
	if !decode(raw, &data) {
		return
	}
	if err := g.profiles.CancelChat(ctx, c.id, data.MatchID, data.ChatID); err != nil {
		g.log.Error("cancel scheduled chat", "client", c.id, "err", err)
		return
	}
	g.emitTo(c.id, "chat_cancelled", map[string]string{"chatId": data.ChatID})
}

func (g *Gateway) handleViewProfile(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		UserID string `json:"userId"`
	}
	if !decode(raw, &data) {
		return
	}
	if err := g.profiles.RecordView(ctx, c.id, data.UserID); err != nil {
		g.log.Error("record view", "client", c.id, "err", err)
		return
	}
	_ = g.stats.TrackProfileView(ctx)
}

func (g *Gateway) handleGetProfileViews(ctx context.Context, c *client) {
	views, err := g.profiles.Views(ctx, c.id)
	if err != nil {
		g.log.Error("list views", "client", c.id, "err", err)
		return
	}
	g.emitTo(c.id, "profile_views", map[string]interface{}{"views": views})
}

func (g *Gateway) handleGetFeatured(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		Gender string `json:"gender"`
	}
	decode(raw, &data)
	profiles, err := g.profiles.Featured(ctx, c.id, data.Gender, 0)
	if err != nil {
		g.log.Error("featured profiles", "err", err)
		return
	}
	g.emitTo(c.id, "featured_profiles", map[string]interface{}{"profiles": profiles})
}

func (g *Gateway) handleReportUser(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		UserID string `json:"userId"`
		Reason string `json:"reason"`
	}
	if !decode(raw, &data) {
		return
	}
	out, err := g.profiles.Report(ctx, c.id, data.UserID, data.Reason)
	if err != nil {
		g.log.Error("report user", "client", c.id, "err", err)
		return
	}
	_ = g.stats.TrackReport(ctx)
	g.emitTo(c.id, "report_submitted", map[string]interface{}{
		"reportCount": out.ReportCount,
		"flagged":     out.Flagged,
	})
	if out.Flagged {
		g.hub.EmitAll("user_flagged", map[string]interface{}{
			"userId":      data.UserID,
			"reportCount": out.ReportCount,
		})
	}
}

func (g *Gateway) handleDeleteMyProfile(ctx context.Context, c *client) {
	if err := g.profiles.Delete(ctx, c.id); err != nil {
		g.log.Error("delete profile", "client", c.id, "err", err)
		return
	}
	g.emitTo(c.id, "profile_deleted", map[string]bool{"success": true})
}

func (g *Gateway) handleTrackInvite(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		InviterID string `json:"inviterId"`
	}
	if !decode(raw, &data) || data.InviterID == "" {
		return
	}
	count, err := g.profiles.TrackInvite(ctx, data.InviterID, c.id)
	if err != nil {
		g.log.Error("track invite", "inviter", data.InviterID, "err", err)
		return
	}
	_ = g.stats.TrackInvite(ctx)
	_ = g.auth.TrackSignupSource(ctx, "invite")
	g.emitTo(data.InviterID, "invite_count", map[string]int{"count": count})
}

func (g *Gateway) handleInviteCount(ctx context.Context, c *client) {
	count, err := g.profiles.InviteCount(ctx, c.id)
	if err != nil {
		g.log.Error("invite count", "client", c.id, "err", err)
		return
	}
	g.emitTo(c.id, "invite_count", map[string]int{"count": count})
}
