package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the chat platform.
//
// Naming convention: namespace_subsystem_name
// - namespace: chat_server (application-level grouping)
// - subsystem: websocket, room, db, callback, circuit_breaker, rate_limit
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, rooms, users)
// - Counter: Cumulative events (messages processed, batches, errors)
// - Histogram: Distributions (db batch sizes)

var (
	// ActiveWebSocketConnections tracks the current number of live sockets (Gauge - current state)
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ConnectionsRejected counts upgrades rejected at the global connection cap
	ConnectionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "websocket",
		Name:      "connections_rejected_total",
		Help:      "Total upgrade attempts rejected by the connection cap",
	})

	// ActiveRooms tracks the current number of live room actors (Gauge - current state)
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomUsers tracks the number of connected users in each room (GaugeVec with room_id label)
	RoomUsers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "room",
		Name:      "users_count",
		Help:      "Number of connected users in each room",
	}, []string{"room_id"})

	// RoomMessages tracks messages processed by room actors (CounterVec - cumulative)
	RoomMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "room",
		Name:      "messages_total",
		Help:      "Total internal messages processed by room actors",
	}, []string{"kind", "status"})

	// BroadcastDrops counts frames dropped because a recipient's outbound buffer was full
	BroadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "room",
		Name:      "broadcast_drops_total",
		Help:      "Total frames dropped to slow recipients during fan-out",
	})

	// DbBatchSize observes the number of commands committed per transaction (Histogram)
	DbBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chat_server",
		Subsystem: "db",
		Name:      "batch_size",
		Help:      "Write commands committed per transaction",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
	})

	// DbBatchFailures counts batches discarded after a transaction failure
	DbBatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "db",
		Name:      "batch_failures_total",
		Help:      "Total write batches discarded after a transaction failure",
	})

	// CallbackDeliveries tracks webhook POST outcomes (CounterVec - cumulative)
	CallbackDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "callback",
		Name:      "deliveries_total",
		Help:      "Total webhook deliveries by event type and outcome",
	}, []string{"event_type", "status"})

	// CallbackRetries counts retry attempts after a failed POST
	CallbackRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "callback",
		Name:      "retries_total",
		Help:      "Total webhook delivery retries",
	})

	// CircuitBreakerState tracks the current state of a circuit breaker (GaugeVec)
	// 0: Closed (Healthy), 1: Open (Failure), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chat_server",
		Subsystem: "circuit_breaker",
		Name:      "state",
		Help:      "Current state of the circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"service"})

	// CircuitBreakerFailures tracks requests rejected by an open circuit breaker
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "circuit_breaker",
		Name:      "failures_total",
		Help:      "Total requests rejected by the circuit breaker",
	}, []string{"service"})

	// RateLimitExceeded tracks requests that exceeded a rate limit
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks requests checked against the rate limiter
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chat_server",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
