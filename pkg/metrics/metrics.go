package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletsync"

var connectionStates = []string{"connecting", "connected", "disconnected", "noConnection"}

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "background_update",
			Name:      "connection_state",
			Help:      "Current connection state per wallet (1 for the active state).",
		},
		[]string{"wallet", "state"},
	)

	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "background_update",
			Name:      "reconnects_total",
			Help:      "Total number of streaming reconnect attempts.",
		},
		[]string{"reason"},
	)

	transactionEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "background_update",
			Name:      "transaction_events_total",
			Help:      "Total number of transaction events forwarded to observers.",
		},
	)

	droppedEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "background_update",
			Name:      "dropped_events_total",
			Help:      "Total number of streaming events dropped before delivery.",
		},
		[]string{"reason"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path"},
	)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "websocket_clients",
			Help:      "Current number of connected status feed clients.",
		},
	)
)

func init() {
	Registry.MustRegister(
		connectionState,
		reconnects,
		transactionEvents,
		droppedEvents,
		httpRequests,
		httpDuration,
		wsClients,
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetConnectionState marks state as the wallet's current connection state.
func SetConnectionState(wallet, state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		connectionState.WithLabelValues(wallet, s).Set(v)
	}
}

// ForgetWallet drops the wallet's connection state series.
func ForgetWallet(wallet string) {
	connectionState.DeletePartialMatch(prometheus.Labels{"wallet": wallet})
}

func RecordReconnect(reason string) {
	reconnects.WithLabelValues(reason).Inc()
}

func RecordTransactionEvent() {
	transactionEvents.Inc()
}

func RecordDroppedEvent(reason string) {
	droppedEvents.WithLabelValues(reason).Inc()
}

func WebsocketClientConnected()    { wsClients.Inc() }
func WebsocketClientDisconnected() { wsClients.Dec() }

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
