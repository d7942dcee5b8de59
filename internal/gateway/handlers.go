// Package gateway exposes the paper-trading engine over HTTP: the polled
// /signal endpoint that advances the state machine, read-only dashboard
// views, control endpoints, and a WebSocket feed of tick results.
package gateway

import (
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"papertraderv1/internal/indicator"
	"papertraderv1/internal/logger"
	"papertraderv1/internal/metrics"
	"papertraderv1/internal/model"
	"papertraderv1/internal/risk"
	"papertraderv1/internal/store/sqlite"
	"papertraderv1/internal/trader"
	"papertraderv1/internal/tradingcontrol"
)

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Server wires the engine, risk manager, and trading controls behind the
// dashboard's HTTP surface.
type Server struct {
	source  model.CandleSource
	engine  *trader.Engine
	risk    *risk.Manager
	control *tradingcontrol.Controller
	hub     *Hub
	metrics *metrics.Metrics      // optional
	health  *metrics.HealthStatus // optional
	journal *sqlite.Journal       // optional

	start time.Time
}

// NewServer builds the HTTP surface. metrics, health, and journal may be
// nil; the corresponding endpoints and instrumentation degrade gracefully.
func NewServer(source model.CandleSource, engine *trader.Engine, riskMgr *risk.Manager, control *tradingcontrol.Controller, hub *Hub, m *metrics.Metrics, health *metrics.HealthStatus, journal *sqlite.Journal) *Server {
	return &Server{
		source:  source,
		engine:  engine,
		risk:    riskMgr,
		control: control,
		hub:     hub,
		metrics: m,
		health:  health,
		journal: journal,
		start:   time.Now(),
	}
}

// RegisterRoutes registers all HTTP routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/signal", s.handleSignal)
	mux.HandleFunc("/chart-data", s.handleChartData)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/performance", s.handlePerformance)
	mux.HandleFunc("/risk-status", s.handleRiskStatus)
	mux.HandleFunc("/risk-config", s.handleRiskConfig)
	mux.HandleFunc("/trading-control", s.handleTradingControl)
	mux.HandleFunc("/force-close", s.handleForceClose)
	mux.HandleFunc("/breakeven", s.handleBreakeven)
	mux.HandleFunc("/journal", s.handleJournal)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws", s.hub.ServeWS)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	SetCORS(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// signalResponse is the /signal payload: one tick result plus the control
// flags the dashboard renders alongside it.
type signalResponse struct {
	trader.TickResult
	ForceStart bool `json:"force_start"`
}

// blockedResponse is served when trading controls block the tick. The
// engine is not advanced; only live P/L is computed against the fetched
// price.
type blockedResponse struct {
	Signal     model.SignalType `json:"signal"`
	Price      float64          `json:"price"`
	Action     string           `json:"action"`
	LivePLINR  *float64         `json:"live_pl_inr"`
	ForceStart bool             `json:"force_start"`
}

// handleSignal is the dashboard poll: fetch the candle window, compute the
// indicator snapshot, and either advance the state machine or report why
// trading is blocked.
func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithTickID(r.Context(), logger.NewTickID("BTCUSDT", time.Now()))

	allowed, reason, err := s.control.Allowed()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ctlState, err := s.control.State()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	fetchStart := time.Now()
	candles, err := s.source.FetchCandles(ctx)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if s.metrics != nil {
		s.metrics.FetchDur.Observe(time.Since(fetchStart).Seconds())
	}

	snap := indicator.ComputeSignal(candles)

	if !allowed {
		if s.metrics != nil {
			s.metrics.BlockedTicks.Inc()
		}
		livePL, err := s.engine.LivePL(snap.Price)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, blockedResponse{
			Signal:     model.SignalHold,
			Price:      snap.Price,
			Action:     reason,
			LivePLINR:  livePL,
			ForceStart: ctlState.ForceStart,
		})
		return
	}

	tickStart := time.Now()
	res, err := s.engine.Tick(snap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.observeTick(res, time.Since(tickStart))
	s.hub.Broadcast("tick", res)

	slog.Info("tick processed", append(logger.LogWithTick(ctx),
		slog.String("signal", string(res.Signal)),
		slog.String("action", res.Action),
		slog.Float64("price", res.Price),
		slog.Float64("balance", res.Balance),
	)...)

	writeJSON(w, http.StatusOK, signalResponse{TickResult: res, ForceStart: ctlState.ForceStart})
}

func (s *Server) observeTick(res trader.TickResult, dur time.Duration) {
	if s.health != nil {
		s.health.SetLastTickTime(time.Now())
	}
	if s.metrics == nil {
		return
	}
	s.metrics.TicksTotal.Inc()
	s.metrics.TickDur.Observe(dur.Seconds())
	s.metrics.SignalsTotal.WithLabelValues(string(res.Signal)).Inc()
	s.metrics.ActionsTotal.WithLabelValues(res.Action).Inc()
	s.metrics.Balance.Set(res.Balance)
	switch {
	case res.Holding && res.PositionSide == string(model.SideLong):
		s.metrics.OpenPosition.Set(1)
	case res.Holding:
		s.metrics.OpenPosition.Set(-1)
	default:
		s.metrics.OpenPosition.Set(0)
	}
	if st, err := s.risk.LoadState(); err == nil {
		s.metrics.DailyTrades.Set(float64(st.DailyTrades))
	}
}

func (s *Server) handleChartData(w http.ResponseWriter, r *http.Request) {
	doc, err := s.engine.Document()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades":        doc.History,
		"open_position": doc.OpenPosition,
		"last_signal":   doc.LastSignal,
		"balance":       doc.Balance,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	doc, err := s.engine.Document()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trade_history": doc.History,
		"order_log":     doc.OrderLog,
	})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.Performance()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRiskStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.risk.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRiskConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		SetCORS(w)
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method == http.MethodPost {
		var cfg risk.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.risk.SaveConfig(cfg); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		log.Printf("[gateway] risk config updated")
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	cfg, err := s.risk.Config()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleTradingControl(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		SetCORS(w)
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if _, err := s.control.Apply(req.Action); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		log.Printf("[gateway] trading control action: %s", req.Action)
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
		return
	}
	state, err := s.control.State()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	allowed, reason, err := s.control.Allowed()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":           state,
		"trading_allowed": allowed,
		"pause_reason":    reason,
	})
}

func (s *Server) handleForceClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Price float64 `json:"price"`
	}
	// Body is optional; empty or malformed bodies fall back to a live price.
	json.NewDecoder(r.Body).Decode(&req)

	if req.Price <= 0 {
		price, err := s.source.FetchPrice(r.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		req.Price = price
	}

	closed, err := s.engine.ForceClose(req.Price, model.ExitForceClose)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if closed == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "no open position",
		})
		return
	}
	s.hub.Broadcast("force_close", closed)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"closed_trade": closed,
	})
}

func (s *Server) handleBreakeven(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	newStop, moved, err := s.engine.MoveStopToBreakeven()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !moved {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "no open position",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"new_stop": newStop,
	})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "journal not configured"})
		return
	}
	limit := 50
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 1000 {
		limit = l
	}
	rows, err := s.journal.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": rows})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"ws_clients": s.hub.ClientCount(),
		"uptime_sec": int64(time.Since(s.start).Seconds()),
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
	})
}
