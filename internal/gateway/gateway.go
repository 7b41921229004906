package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/freedomchat/backend/internal/app"
	"github.com/freedomchat/backend/internal/auth"
	"github.com/freedomchat/backend/internal/broadcast"
	"github.com/freedomchat/backend/internal/events"
	"github.com/freedomchat/backend/internal/profile"
	"github.com/freedomchat/backend/internal/rooms"
	"github.com/freedomchat/backend/internal/roulette"
	"github.com/freedomchat/backend/internal/stats"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	outQueueSize   = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// same-origin policy is enforced at the edge proxy
	CheckOrigin: func(*http.Request) bool { return true },
}

// inbound is the client -> server message envelope.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Gateway is the websocket front door: it upgrades connections, runs the
// read/write pumps and dispatches inbound events to the domain managers.
type Gateway struct {
	log      *slog.Logger
	hub      *broadcast.Hub
	matcher  *roulette.Matcher
	profiles *profile.Manager
	rooms    *rooms.Manager
	events   *events.Manager
	stats    *stats.Tracker
	auth     *auth.Manager

	mu      sync.RWMutex
	clients map[string]*client
}

// client is the per-connection state. The connection id doubles as the user
// id for the lifetime of the socket.
type client struct {
	id         string
	name       string
	gender     string
	registered bool
}

func New(appCtx *app.AppContext, hub *broadcast.Hub, matcher *roulette.Matcher,
	profiles *profile.Manager, roomMgr *rooms.Manager, eventMgr *events.Manager,
	tracker *stats.Tracker, authMgr *auth.Manager) *Gateway {

	gw := &Gateway{
		log:      appCtx.Logger,
		hub:      hub,
		matcher:  matcher,
		profiles: profiles,
		rooms:    roomMgr,
		events:   eventMgr,
		stats:    tracker,
		auth:     authMgr,
		clients:  make(map[string]*client),
	}
	matcher.OnMatch(gw.announceMatch)
	return gw
}

// ServeWS upgrades the request and runs the connection until it drops.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{id: uuid.NewString()}
	conn := &broadcast.Conn{ID: c.id, WS: ws, Out: make(chan []byte, outQueueSize)}
	g.hub.Register(conn)
	g.mu.Lock()
	g.clients[c.id] = c
	g.mu.Unlock()

	_ = g.stats.SetActiveUsers(r.Context(), g.hub.Len())
	g.log.Info("client connected", "client", c.id)

	go g.writePump(conn)
	g.readPump(conn, c)
}

func (g *Gateway) readPump(conn *broadcast.Conn, c *client) {
	defer g.disconnect(c)

	conn.WS.SetReadLimit(maxMessageSize)
	_ = conn.WS.SetReadDeadline(time.Now().Add(pongWait))
	conn.WS.SetPongHandler(func(string) error {
		return conn.WS.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.WS.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Warn("websocket read error", "client", c.id, "err", err)
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			g.emitError(c.id, "malformed message")
			continue
		}
		g.dispatch(context.Background(), c, msg)
	}
}

func (g *Gateway) writePump(conn *broadcast.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.WS.Close()
	}()

	for {
		select {
		case payload, ok := <-conn.Out:
			_ = conn.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WS.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// disconnect tears down everything the connection was part of: admin
// session, queue slot, active roulette session or private chat, room and
// event membership.
func (g *Gateway) disconnect(c *client) {
	ctx := context.Background()

	g.auth.DropAdmin(c.id)
	if err := g.matcher.HandleDisconnect(ctx, c.id); err != nil {
		g.log.Error("disconnect cleanup", "client", c.id, "err", err)
	}
	if err := g.rooms.RemoveFromAll(ctx, c.id); err != nil {
		g.log.Error("room cleanup", "client", c.id, "err", err)
	}
	if err := g.events.RemoveFromAll(ctx, c.id); err != nil {
		g.log.Error("event cleanup", "client", c.id, "err", err)
	}

	g.hub.Unregister(c.id)
	g.mu.Lock()
	delete(g.clients, c.id)
	g.mu.Unlock()

	_ = g.stats.SetActiveUsers(ctx, g.hub.Len())
	g.log.Info("client disconnected", "client", c.id)
}

func (g *Gateway) dispatch(ctx context.Context, c *client, msg inbound) {
	switch msg.Event {
	// identity
	case "register":
		g.handleRegister(ctx, c, msg.Data)

	// roulette
	case "join_queue":
		g.handleJoinQueue(ctx, c)
	case "leave_queue":
		g.handleLeaveQueue(ctx, c)
	case "roulette_message":
		g.handleRouletteMessage(ctx, c, msg.Data)
	case "like":
		g.handleLike(ctx, c, msg.Data)
	case "skip":
		g.handleSkip(ctx, c, msg.Data)
	case "private_message":
		g.handlePrivateMessage(ctx, c, msg.Data)
	case "extend":
		g.handleExtend(ctx, c, msg.Data)
	case "leave_private":
		g.handleLeavePrivate(ctx, c, msg.Data)

	// rooms
	case "get_rooms":
		g.handleGetRooms(ctx, c)
	case "create_room":
		g.handleCreateRoom(ctx, c, msg.Data)
	case "create_default_room":
		g.handleCreateDefaultRoom(ctx, c, msg.Data)
	case "join_room":
		g.handleJoinRoom(ctx, c, msg.Data)
	case "leave_room":
		g.handleLeaveRoom(ctx, c, msg.Data)
	case "room_message":
		g.handleRoomMessage(ctx, c, msg.Data)
	case "kick_user":
		g.handleKickUser(ctx, c, msg.Data)
	case "ban_user":
		g.handleBanUser(ctx, c, msg.Data)
	case "update_room":
		g.handleUpdateRoom(ctx, c, msg.Data)
	case "delete_room":
		g.handleDeleteRoom(ctx, c, msg.Data)

	// events
	case "get_events":
		g.handleGetEvents(ctx, c, msg.Data)
	case "get_upcoming_events":
		g.handleGetUpcomingEvents(ctx, c, msg.Data)
	case "get_event":
		g.handleGetEvent(ctx, c, msg.Data)
	case "create_event":
		g.handleCreateEvent(ctx, c, msg.Data)
	case "update_event":
		g.handleUpdateEvent(ctx, c, msg.Data)
	case "delete_event":
		g.handleDeleteEvent(ctx, c, msg.Data)
	case "rsvp_event":
		g.handleRsvp(ctx, c, msg.Data)
	case "cancel_rsvp":
		g.handleCancelRsvp(ctx, c, msg.Data)
	case "start_event":
		g.handleStartEvent(ctx, c, msg.Data)
	case "end_event":
		g.handleEndEvent(ctx, c, msg.Data)
	case "join_event":
		g.handleJoinEvent(ctx, c, msg.Data)
	case "leave_event":
		g.handleLeaveEvent(ctx, c, msg.Data)
	case "event_message":
		g.handleEventMessage(ctx, c, msg.Data)
	case "submit_question":
		g.handleSubmitQuestion(ctx, c, msg.Data)
	case "upvote_question":
		g.handleUpvoteQuestion(ctx, c, msg.Data)
	case "update_question_status":
		g.handleUpdateQuestionStatus(ctx, c, msg.Data)
	case "get_all_events_stats":
		g.handleAllEventsStats(ctx, c)

	// profiles
	case "save_profile":
		g.handleSaveProfile(ctx, c, msg.Data)
	case "browse_profiles":
		g.handleBrowseProfiles(ctx, c, msg.Data)
	case "like_profile", "like_back":
		g.handleLikeProfile(ctx, c, msg.Data)
	case "get_likes":
		g.handleGetLikes(ctx, c)
	case "remove_like":
		g.handleRemoveLike(ctx, c, msg.Data)
	case "get_matches":
		g.handleGetMatches(ctx, c)
	case "unmatch":
		g.handleUnmatch(ctx, c, msg.Data)
	case "schedule_chat":
		g.handleScheduleChat(ctx, c, msg.Data)
	case "cancel_scheduled_chat":
		g.handleCancelScheduledChat(ctx, c, msg.Data)
	case "view_profile":
		g.handleViewProfile(ctx, c, msg.Data)
	case "get_profile_views":
		g.handleGetProfileViews(ctx, c)
	case "get_featured_profiles":
		g.handleGetFeatured(ctx, c, msg.Data)
	case "report_user":
		g.handleReportUser(ctx, c, msg.Data)
	case "delete_my_profile":
		g.handleDeleteMyProfile(ctx, c)

	// invites
	case "track_invite":
		g.handleTrackInvite(ctx, c, msg.Data)
	case "get_invite_count":
		g.handleInviteCount(ctx, c)

	// admin
	case "check_admin":
		g.emitTo(c.id, "admin_status", map[string]bool{"isAdmin": g.auth.IsAdmin(c.id)})
	case "admin_login":
		g.handleAdminLogin(ctx, c, msg.Data)
	case "admin_get_users":
		g.handleAdminGetUsers(ctx, c)
	case "admin_get_reports":
		g.handleAdminGetReports(ctx, c)
	case "admin_delete_user":
		g.handleAdminDeleteUser(ctx, c, msg.Data)
	case "admin_get_stats":
		g.handleAdminGetStats(ctx, c)
	case "admin_export_emails":
		g.handleAdminExportEmails(ctx, c)

	default:
		g.emitError(c.id, "unknown event: "+msg.Event)
	}
}

func (g *Gateway) emitTo(clientID, event string, data interface{}) {
	g.hub.EmitTo(clientID, event, data)
}

func (g *Gateway) emitError(clientID, message string) {
	g.hub.EmitTo(clientID, "error", map[string]string{"message": message})
}

func decode(raw json.RawMessage, v interface{}) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func (g *Gateway) client(id string) *client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.clients[id]
}

func (g *Gateway) nameOf(id string) string {
	if c := g.client(id); c != nil && c.name != "" {
		return c.name
	}
	return "Anonymous"
}
