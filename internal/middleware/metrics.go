package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Domain counters beyond the per-route HTTP metrics fiberprometheus records.
var (
	// ActiveWebSockets tracks currently open stream connections.
	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playroom_active_websockets",
		Help: "Number of open WebSocket stream connections",
	})

	// MessagesSent counts chat messages accepted by the gateway.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playroom_chat_messages_sent_total",
		Help: "Chat messages accepted, direct and group",
	})

	// MovesApplied counts accepted game moves.
	MovesApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playroom_game_moves_applied_total",
		Help: "Game moves validated and applied",
	})

	// GamesFinished counts sessions reaching a terminal board.
	GamesFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playroom_games_finished_total",
		Help: "Game sessions finished with a winner or a draw",
	})
)

var (
	promOnce sync.Once
	promInst *fiberprometheus.FiberPrometheus
)

// InitMetrics returns the process-wide Prometheus middleware. The underlying
// collectors register with the default registry, so the instance is shared.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promInst = fiberprometheus.New(serviceName)
	})
	return promInst
}

// MetricsMiddleware wraps the fiberprometheus handler as app middleware.
func MetricsMiddleware(prom *fiberprometheus.FiberPrometheus) fiber.Handler {
	return prom.Middleware
}
