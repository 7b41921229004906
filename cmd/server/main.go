package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/freedomchat/backend/internal/app"
	"github.com/freedomchat/backend/internal/auth"
	"github.com/freedomchat/backend/internal/broadcast"
	"github.com/freedomchat/backend/internal/config"
	"github.com/freedomchat/backend/internal/events"
	"github.com/freedomchat/backend/internal/gateway"
	"github.com/freedomchat/backend/internal/logger"
	"github.com/freedomchat/backend/internal/metrics"
	"github.com/freedomchat/backend/internal/profile"
	"github.com/freedomchat/backend/internal/rooms"
	"github.com/freedomchat/backend/internal/roulette"
	"github.com/freedomchat/backend/internal/server"
	"github.com/freedomchat/backend/internal/stats"
	"github.com/freedomchat/backend/internal/store"
	"github.com/freedomchat/backend/internal/timer"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	metrics.Register()

	// Init Redis, the only persistence layer
	redis := store.New(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := redis.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	hub := broadcast.NewHub()
	timers := timer.New()
	appCtx := app.New(cfg, redis, hub, timers, log)

	// Domain managers
	authMgr := auth.NewManager(appCtx)
	profiles := profile.NewManager(appCtx)
	roomMgr := rooms.NewManager(appCtx, authMgr.IsAdmin)
	eventMgr := events.NewManager(appCtx, authMgr.IsAdmin)
	tracker := stats.NewTracker(appCtx)

	queue := roulette.NewQueue(redis)
	sessions := roulette.NewSessionManager(appCtx)
	chats := roulette.NewChatManager(appCtx)
	matcher := roulette.NewMatcher(appCtx, queue, sessions, chats)

	if err := roomMgr.InitDefaults(ctx); err != nil {
		log.Error("failed to seed default rooms", "err", err)
		return
	}

	gw := gateway.New(appCtx, hub, matcher, profiles, roomMgr, eventMgr, tracker, authMgr)

	// periodic catch-all pairing sweep
	go matcher.Run(ctx)

	if err := server.Start(ctx, cfg, gw.ServeWS); err != nil {
		log.Error("http server failed", "err", err)
	}
	timers.CancelAll()
}
