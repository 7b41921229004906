package gateway

import (
	"context"
	"encoding/json"
)

func (g *Gateway) handleAdminLogin(ctx context.Context, c *client, raw json.RawMessage) {
	var data struct {
		Password string `json:"password"`
	}
	if !decode(raw, &data) {
		g.emitTo(c.id, "admin_login_result", map[string]bool{"success": false})
		return
	}
	success := g.auth.AdminLogin(c.id, data.Password)
	g.emitTo(c.id, "admin_login_result", map[string]bool{"success": success})
}

func (g *Gateway) handleAdminGetUsers(ctx context.Context, c *client) {
	if !g.auth.IsAdmin(c.id) {
		g.emitError(c.id, "not authorized")
		return
	}
	users, err := g.profiles.AllProfiles(ctx)
	if err != nil {
		g.log.Error("admin list users", "err", err)
		return
	}
	g.emitTo(c.id, "admin_users", map[string]interface{}{"users": users})
}

func (g *Gateway) handleAdminGetReports(ctx context.Context, c *client) {
	if !g.auth.IsAdmin(c.id) {
		g.emitError(c.id, "not authorized")
		return
	}
	reports, err := g.profiles.AllReports(ctx)
	if err != nil {
		g.log.Error("admin list reports", "err", err)
		return
	}
	flagged, err := g.profiles.FlaggedUsers(ctx)
	if err != nil {
		g.log.Error("admin list flagged", "err", err)
		return
	}
	g.emitTo(c.id, "admin_reports", map[string]interface{}{"reports": reports, "flagged": flagged})
}

func (g *Gateway) handleAdminDeleteUser(ctx context.Context, c *client, raw json.RawMessage) {
	if !g.auth.IsAdmin(c.id) {
		g.emitError(c.id, "not authorized")
		return
	}
	var data struct {
		UserID string `json:"userId"`
	}
	if !decode(raw, &data) {
		return
	}
	if err := g.profiles.Delete(ctx, data.UserID); err != nil {
		g.log.Error("admin delete user", "user", data.UserID, "err", err)
		return
	}
	g.emitTo(c.id, "admin_user_deleted", map[string]string{"userId": data.UserID})
}

func (g *Gateway) handleAdminGetStats(ctx context.Context, c *client) {
	if !g.auth.IsAdmin(c.id) {
		g.emitError(c.id, "not authorized")
		return
	}
	global, err := g.stats.GlobalStats(ctx)
	if err != nil {
		g.log.Error("admin global stats", "err", err)
		return
	}
	daily, err := g.stats.StatsRange(ctx, 30)
	if err != nil {
		g.log.Error("admin daily stats", "err", err)
		return
	}
	active, _ := g.stats.ActiveUsers(ctx)
	emailCount, _ := g.stats.EmailCount(ctx)
	sources, _ := g.auth.SignupSourceStats(ctx)

	g.emitTo(c.id, "admin_stats", map[string]interface{}{
		"global":        global,
		"daily":         daily,
		"activeUsers":   active,
		"onlineNow":     g.hub.Len(),
		"emailCount":    emailCount,
		"signupSources": sources,
	})
}

func (g *Gateway) handleAdminExportEmails(ctx context.Context, c *client) {
	if !g.auth.IsAdmin(c.id) {
		g.emitError(c.id, "not authorized")
		return
	}
	emails, err := g.stats.EmailList(ctx)
	if err != nil {
		g.log.Error("admin email list", "err", err)
		return
	}
	csv, err := g.stats.ExportEmailsCSV(ctx)
	if err != nil {
		g.log.Error("admin export emails", "err", err)
		return
	}
	g.emitTo(c.id, "admin_emails", map[string]interface{}{
		"csv":    csv,
		"emails": emails,
		"count":  len(emails),
	})
}
