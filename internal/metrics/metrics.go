// Package metrics exposes Prometheus metrics and a health endpoint for the
// paper trader.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading engine.
type Metrics struct {
	TicksTotal   prometheus.Counter
	SignalsTotal *prometheus.CounterVec // labels: signal
	ActionsTotal *prometheus.CounterVec // labels: action
	BlockedTicks prometheus.Counter

	FetchDur   prometheus.Histogram
	TickDur    prometheus.Histogram
	PersistDur prometheus.Histogram

	Balance      prometheus.Gauge
	OpenPosition prometheus.Gauge // 0=flat, 1=long, -1=short
	DailyTrades  prometheus.Gauge

	MirrorBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	MirrorBreakerTrips prometheus.Counter
}

// New registers and returns the engine metrics.
func New() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_ticks_total",
			Help: "Total engine ticks processed",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_signals_total",
			Help: "Indicator signals by type",
		}, []string{"signal"}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "papertrader_actions_total",
			Help: "State machine actions by tag",
		}, []string{"action"}),
		BlockedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_blocked_ticks_total",
			Help: "Ticks blocked by trading-hours or pause controls",
		}),
		FetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_fetch_duration_seconds",
			Help:    "Candle fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		TickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_tick_duration_seconds",
			Help:    "Full tick latency (fetch + compute + persist)",
			Buckets: prometheus.DefBuckets,
		}),
		PersistDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "papertrader_persist_duration_seconds",
			Help:    "Document save latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		Balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_balance_inr",
			Help: "Current paper account balance in INR",
		}),
		OpenPosition: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_open_position",
			Help: "Open position direction (0=flat, 1=long, -1=short)",
		}),
		DailyTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_daily_trades",
			Help: "Trades closed today",
		}),
		MirrorBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "papertrader_mirror_breaker_state",
			Help: "Redis mirror circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		MirrorBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "papertrader_mirror_breaker_trips_total",
			Help: "Times the Redis mirror circuit breaker tripped open",
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.SignalsTotal,
		m.ActionsTotal,
		m.BlockedTicks,
		m.FetchDur,
		m.TickDur,
		m.PersistDur,
		m.Balance,
		m.OpenPosition,
		m.DailyTrades,
		m.MirrorBreakerState,
		m.MirrorBreakerTrips,
	)
	return m
}

// Pinger is anything that can be liveness-probed with a context.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SimplePinger is a liveness probe without context support (the SQLite
// journal).
type SimplePinger interface {
	Ping() error
}

// HealthStatus tracks dependency health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	lastTickTime   time.Time
	redisConnected bool
	redisEnabled   bool
	sqliteOK       bool
	sqliteEnabled  bool
	redisLatencyMs float64
	lastCheckAt    time.Time
	startedAt      time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{startedAt: time.Now()}
}

// SetLastTickTime records the most recent engine tick.
func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.lastTickTime = t
	h.mu.Unlock()
}

// StartLivenessChecker probes the mirror and journal on an interval until
// ctx is cancelled. Either probe may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, mirror Pinger, journal SimplePinger, interval time.Duration) {
	h.mu.Lock()
	h.redisEnabled = mirror != nil
	h.sqliteEnabled = journal != nil
	h.mu.Unlock()

	go func() {
		h.probe(ctx, mirror, journal)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.probe(ctx, mirror, journal)
			}
		}
	}()
}

func (h *HealthStatus) probe(ctx context.Context, mirror Pinger, journal SimplePinger) {
	var redisOK, sqliteOK bool
	var redisLatency float64

	if mirror != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		start := time.Now()
		redisOK = mirror.Ping(probeCtx) == nil
		redisLatency = float64(time.Since(start).Microseconds()) / 1000.0
		cancel()
	}
	if journal != nil {
		sqliteOK = journal.Ping() == nil
	}

	h.mu.Lock()
	h.redisConnected = redisOK
	h.redisLatencyMs = redisLatency
	h.sqliteOK = sqliteOK
	h.lastCheckAt = time.Now()
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint. Optional dependencies that are
// not configured don't degrade the status.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overall := "healthy"
	code := http.StatusOK
	if (h.redisEnabled && !h.redisConnected) || (h.sqliteEnabled && !h.sqliteOK) {
		overall = "degraded"
		code = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !h.lastTickTime.IsZero() {
		tickAge = time.Since(h.lastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		LastTickTime   string  `json:"last_tick_time"`
		TickAge        string  `json:"tick_age"`
		RedisEnabled   bool    `json:"redis_enabled"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		SQLiteEnabled  bool    `json:"sqlite_enabled"`
		SQLiteOK       bool    `json:"sqlite_ok"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overall,
		Uptime:         time.Since(h.startedAt).Round(time.Second).String(),
		LastTickTime:   h.lastTickTime.Format(time.RFC3339),
		TickAge:        tickAge,
		RedisEnabled:   h.redisEnabled,
		RedisConnected: h.redisConnected,
		RedisLatencyMs: h.redisLatencyMs,
		SQLiteEnabled:  h.sqliteEnabled,
		SQLiteOK:       h.sqliteOK,
		LastCheckAt:    h.lastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(status)
}

// Server exposes /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
