package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_online_conns",
		Help: "Current online websocket connections.",
	})

	WSPushOK = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_push_ok_total",
		Help: "Total ws messages queued successfully.",
	})
	WSPushBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_backpressure_total",
		Help: "Total times an outbound queue was full and a message dropped.",
	})

	QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_roulette_queue_depth",
		Help: "Current roulette queue depth per gender.",
	}, []string{"gender"})

	MatchesMade = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_roulette_matches_total",
		Help: "Total roulette pairings created.",
	})
	SessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_roulette_sessions_ended_total",
		Help: "Total roulette sessions ended, by reason.",
	}, []string{"reason"})

	PrivateChatsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_private_started_total",
		Help: "Total private chats created from mutual likes.",
	})
	PrivateChatsExtended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_private_extended_total",
		Help: "Total successful mutual extensions.",
	})
	PrivateChatsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_private_ended_total",
		Help: "Total private chats ended, by reason.",
	}, []string{"reason"})

	UsersFlagged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_users_flagged_total",
		Help: "Total users crossing the report flag threshold.",
	})
)

func Register() {
	prometheus.MustRegister(
		OnlineConns,
		WSPushOK, WSPushBackpressure,
		QueueDepth,
		MatchesMade, SessionsEnded,
		PrivateChatsStarted, PrivateChatsExtended, PrivateChatsEnded,
		UsersFlagged,
	)
}
