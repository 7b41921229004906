package app

import (
	"log/slog"

	"github.com/freedomchat/backend/internal/broadcast"
	"github.com/freedomchat/backend/internal/config"
	"github.com/freedomchat/backend/internal/store"
	"github.com/freedomchat/backend/internal/timer"
)

// AppContext holds shared dependencies (store, broadcaster, timers, logger).
type AppContext struct {
	Cfg       *config.Config
	Store     *store.Redis
	Broadcast broadcast.Broadcaster
	Timers    *timer.Registry
	Logger    *slog.Logger
}

// New creates a new AppContext.
func New(cfg *config.Config, st *store.Redis, bc broadcast.Broadcaster, timers *timer.Registry, logger *slog.Logger) *AppContext {
	return &AppContext{
		Cfg:       cfg,
		Store:     st,
		Broadcast: bc,
		Timers:    timers,
		Logger:    logger,
	}
}
