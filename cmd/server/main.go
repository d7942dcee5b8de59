package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papertraderv1/config"
	"papertraderv1/internal/gateway"
	"papertraderv1/internal/logger"
	"papertraderv1/internal/marketdata"
	"papertraderv1/internal/metrics"
	"papertraderv1/internal/model"
	"papertraderv1/internal/notification"
	"papertraderv1/internal/risk"
	"papertraderv1/internal/store/jsonfile"
	"papertraderv1/internal/store/redis"
	"papertraderv1/internal/store/sqlite"
	"papertraderv1/internal/trader"
	"papertraderv1/internal/tradingcontrol"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := config.Load()
	logger.Init("papertrader", parseLogLevel(cfg.LogLevel))
	slog.Info("starting", slog.String("symbol", cfg.Symbol), slog.String("addr", cfg.ListenAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Primary document store: whole-document JSON files on disk.
	primary, err := jsonfile.New(cfg.DataDir)
	if err != nil {
		log.Fatalf("[server] open data dir: %v", err)
	}

	// Optional Redis mirror for document durability across hosts.
	var docs model.DocumentStore = primary
	var mirror *redis.Mirror
	if cfg.RedisAddr != "" {
		mirror, err = redis.NewMirror(primary, redis.MirrorConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("[server] redis mirror: %v", err)
		}
		defer mirror.Close()
		docs = mirror
	}

	// Optional SQLite journal of closed trades.
	var journal *sqlite.Journal
	if cfg.SQLitePath != "" {
		journal, err = sqlite.NewJournal(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("[server] sqlite journal: %v", err)
		}
		defer journal.Close()
	}

	notifier := buildNotifier(cfg)
	riskMgr := risk.NewManager(docs)
	control := tradingcontrol.New(docs)

	var engineJournal model.TradeJournal
	if journal != nil {
		engineJournal = journal
	}
	engine := trader.New(docs, riskMgr, engineJournal, notifier)

	source := marketdata.New(marketdata.Config{
		Symbol:   cfg.Symbol,
		Interval: cfg.Interval,
		Limit:    cfg.CandleLimit,
	})

	// Metrics and health on their own listener.
	m := metrics.New()
	primary.SetSaveObserver(func(d time.Duration) {
		m.PersistDur.Observe(d.Seconds())
	})
	health := metrics.NewHealthStatus()
	var mirrorPinger metrics.Pinger
	if mirror != nil {
		mirrorPinger = mirror
	}
	var journalPinger metrics.SimplePinger
	if journal != nil {
		journalPinger = journal
	}
	health.StartLivenessChecker(ctx, mirrorPinger, journalPinger, 30*time.Second)
	if mirror != nil {
		go watchBreaker(ctx, mirror, m)
	}
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// Dashboard HTTP surface.
	hub := gateway.NewHub()
	gw := gateway.NewServer(source, engine, riskMgr, control, hub, m, health, journal)
	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		log.Printf("[server] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[server] listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("[server] shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	cancel()
}

// buildNotifier assembles the alert fan-out from whichever channels are
// configured, always including the process log.
func buildNotifier(cfg *config.Config) notification.Notifier {
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[server] telegram alerts enabled")
	}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
		log.Println("[server] webhook alerts enabled")
	}
	if len(backends) == 1 {
		return backends[0]
	}
	return notification.NewMultiNotifier(backends...)
}

// watchBreaker exports the mirror's circuit breaker state as a gauge.
func watchBreaker(ctx context.Context, mirror *redis.Mirror, m *metrics.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	prev := redis.StateClosed
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := mirror.BreakerState()
			m.MirrorBreakerState.Set(float64(st))
			if st == redis.StateOpen && prev != redis.StateOpen {
				m.MirrorBreakerTrips.Inc()
			}
			prev = st
		}
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
