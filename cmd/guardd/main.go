package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/engagement-guard/internal/api"
	"github.com/p-blackswan/engagement-guard/internal/config"
	"github.com/p-blackswan/engagement-guard/internal/cooldown"
	"github.com/p-blackswan/engagement-guard/internal/detector"
	"github.com/p-blackswan/engagement-guard/internal/guard"
	"github.com/p-blackswan/engagement-guard/internal/health"
	"github.com/p-blackswan/engagement-guard/internal/metrics"
	"github.com/p-blackswan/engagement-guard/internal/notify"
	"github.com/p-blackswan/engagement-guard/internal/response"
	"github.com/p-blackswan/engagement-guard/internal/scanner"
	"github.com/p-blackswan/engagement-guard/internal/session"
	"github.com/p-blackswan/engagement-guard/internal/store"
	"github.com/p-blackswan/engagement-guard/internal/timing"
	"github.com/p-blackswan/engagement-guard/internal/warmup"
)

const (
	redeliveryInterval = time.Minute
	shutdownTimeout    = 15 * time.Second
)

func main() {
	// A .env file is optional; the environment always wins.
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("account_age", string(cfg.Age())).
		Str("speed_tier", string(cfg.Tier())).
		Int("http_port", cfg.HTTPPort).
		Str("api_addr", cfg.APIListenAddr).
		Bool("slack_enabled", cfg.SlackEnabled()).
		Msg("starting engagement guard")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("guard stopped with error")
	}
	logger.Info().Msg("guard stopped")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	db, err := store.New(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	start, ok, err := cfg.WarmupStartTime()
	if err != nil {
		return err
	}
	if !ok {
		if start, err = db.WarmupStart(ctx, time.Now()); err != nil {
			return err
		}
	}

	m := metrics.New()
	checker := health.NewChecker(logger)
	checker.Register("store", health.PingCheck(db))

	markers := detector.NewMarkerSet(detector.DefaultMarkers())
	var watcher *detector.Watcher
	if cfg.MarkersPath != "" {
		watcher = detector.NewWatcher(cfg.MarkersPath, markers, logger)
		if err := watcher.Load(); err != nil {
			return fmt.Errorf("loading markers: %w", err)
		}
	} else {
		logger.Info().Msg("MARKERS_PATH not set, using built-in marker list")
	}
	checker.Register("markers", health.ListCheck(func() int {
		return len(markers.Markers().WarningPhrases)
	}))

	cd := cooldown.NewManager(db, logger)
	tracker := session.New(db, session.Config{
		AccountAge: cfg.Age(),
		SpeedTier:  cfg.Tier(),
		Location:   loc,
	}, logger)
	if err := tracker.Load(ctx); err != nil {
		return err
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	var outbox *notify.Outbox
	if slackNotifier := notify.NewSlackNotifier(notify.SlackConfig{
		WebhookURL: cfg.SlackWebhookURL,
		BotToken:   cfg.SlackBotToken,
		Channel:    cfg.SlackChannel,
	}, logger); slackNotifier != nil {
		outbox = notify.NewOutbox(slackNotifier, "slack", db, logger)
		notifier = notify.NewMultiNotifier(notifier, outbox)
		logger.Info().Msg("slack alerts enabled")
	} else {
		logger.Info().Msg("slack not configured, alerts go to the log only")
	}

	g := guard.New(guard.Components{
		Timing:   timing.New(timing.Options{Tier: cfg.Tier()}, logger),
		Warmup:   warmup.NewPolicy(cfg.Age(), start),
		Cooldown: cd,
		Detector: detector.New(detector.Config{BaselineDuration: cfg.BaselineActionDuration}, markers, logger),
		Session:  tracker,
		Response: response.New(response.Deps{
			Cooldown:  cd,
			Session:   tracker,
			Incidents: db,
			Notifier:  notifier,
			Metrics:   m,
		}, logger),
		Metrics:        m,
		SnapshotMaxAge: 2 * cfg.ScanInterval,
	}, logger)

	if st, err := g.Status(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial status unavailable")
	} else {
		logger.Info().
			Int("warmup_day", st.Warmup.Day).
			Bool("in_warmup", st.Warmup.InWarmup).
			Bool("cooldown_active", st.Cooldown.Active).
			Int("warnings", st.Cooldown.WarningCount).
			Bool("permanently_restricted", st.Cooldown.PermanentlyRestricted).
			Bool("automation_enabled", st.Cooldown.AutomationEnabled).
			Msg("guard ready")
	}

	jobs := []scanner.Job{
		scanner.ScanJob(g, cfg.ScanInterval, logger),
		scanner.RetentionJob(db, cfg.RetentionInterval),
	}
	if outbox != nil {
		jobs = append(jobs, scanner.RedeliveryJob(outbox, redeliveryInterval, logger))
	}
	sc := scanner.New(jobs, logger)

	apiServer := api.NewServer(api.ServerConfig{
		ListenAddr:  cfg.APIListenAddr,
		Auth:        api.AuthConfig{Mode: cfg.APIAuthMode, APIKey: cfg.APIKey},
		RateLimit:   api.RateLimitConfig{RPS: cfg.APIRateLimitRPS, Burst: cfg.APIRateLimitBurst},
		CORSOrigins: strings.Join(cfg.CORSOrigins(), ","),
	}, g, db, checker, m, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", health.LivenessHandler())
	mux.HandleFunc("/readyz", checker.ReadinessHandler())
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", httpServer.Addr).Msg("health/metrics server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sc.Run(ctx)
	}()

	if watcher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("markers watcher stopped; hot reload disabled")
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server failed, shutting down")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown error")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("health server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("shutdown timed out waiting for background work")
	}
	return runErr
}
