// Package api exposes the guard to the page-side executor over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/cooldown"
	"github.com/p-blackswan/engagement-guard/internal/guard"
	"github.com/p-blackswan/engagement-guard/internal/health"
	"github.com/p-blackswan/engagement-guard/internal/metrics"
	"github.com/p-blackswan/engagement-guard/internal/models"
	"github.com/p-blackswan/engagement-guard/internal/requestid"
	"github.com/p-blackswan/engagement-guard/internal/timing"
)

// Guard is the surface of guard.Guard served over HTTP.
type Guard interface {
	Status(ctx context.Context) (guard.Status, error)
	StartSession(ctx context.Context) (guard.SessionInfo, error)
	CheckAction(ctx context.Context, req guard.ActionRequest) (guard.Decision, error)
	ReportOutcome(ctx context.Context, o models.ActionOutcome) (guard.ScanReport, error)
	Scan(ctx context.Context, snap *models.PageSnapshot) guard.ScanReport
	NextDelay() time.Duration
	ReadingTime(post models.Post) time.Duration
	Break() *timing.Break
	Typing(text string) []timing.TypingStep
	Cursor(start, end timing.Point, steps int) ([]timing.Point, time.Duration)
	MicroPause(kind timing.MicroPauseKind) time.Duration
	CooldownStatus(ctx context.Context) (cooldown.Status, error)
	EnableCooldown(ctx context.Context, reason string) (cooldown.Status, error)
	ResumeAutomation(ctx context.Context) error
}

// IncidentLister lists recorded incidents, newest first.
type IncidentLister interface {
	ListIncidents(ctx context.Context, limit int) ([]models.Incident, error)
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr  string
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
	// RequestTimeout bounds guard calls made on behalf of one request.
	RequestTimeout time.Duration
}

const defaultRequestTimeout = 10 * time.Second

// Server is the API fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config ServerConfig
}

// NewServer creates and configures the API server. incidents and m may be
// nil.
func NewServer(cfg ServerConfig, g Guard, incidents IncidentLister, checker *health.Checker, m *metrics.Metrics, logger zerolog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	logger = logger.With().Str("component", "api").Logger()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 << 20,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
	})

	s := &Server{app: app, logger: logger, config: cfg}
	h := &handlers{guard: g, incidents: incidents, checker: checker, timeout: cfg.RequestTimeout, logger: logger}

	s.setupMiddleware(cfg, m)
	s.setupRoutes(h)
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, m *metrics.Metrics) {
	s.app.Use(recover.New(recover.Config{EnableStackTrace: true}))

	s.app.Use(func(c *fiber.Ctx) error {
		ctx, reqID := requestid.Resolve(c.UserContext(), c.Get(requestid.Header))
		c.SetUserContext(ctx)
		c.Set(requestid.Header, reqID)
		return c.Next()
	})

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.Auth, s.logger))

	s.app.Use(func(c *fiber.Ctx) error {
		if isProbe(c.Path()) {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()
		took := time.Since(start)

		route := c.Route().Path
		if m != nil {
			m.ObserveDuration(route, took.Seconds())
		}
		log := requestid.Logger(c.UserContext(), s.logger)
		log.Debug().
			Str("method", c.Method()).
			Str("route", route).
			Int("status", c.Response().StatusCode()).
			Dur("took", took).
			Msg("api request")
		return err
	})
}

func (s *Server) setupRoutes(h *handlers) {
	s.app.Get("/healthz", h.liveness)
	s.app.Get("/readyz", h.readiness)

	v1 := s.app.Group("/api/v1")
	v1.Get("/status", h.status)
	v1.Post("/session/start", h.startSession)

	v1.Post("/actions/check", h.checkAction)
	v1.Post("/actions/outcome", h.reportOutcome)

	v1.Get("/timing/delay", h.delay)
	v1.Post("/timing/reading", h.reading)
	v1.Get("/timing/break", h.breakCheck)
	v1.Post("/timing/typing", h.typing)
	v1.Post("/timing/cursor", h.cursor)
	v1.Get("/timing/micropause", h.microPause)

	v1.Post("/scan", h.scan)

	v1.Get("/cooldown", h.cooldownStatus)
	v1.Post("/cooldown", h.enableCooldown)
	v1.Post("/automation/resume", h.resume)

	v1.Get("/incidents", h.listIncidents)
}

// Start listens until Shutdown.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8090"
	}
	s.logger.Info().Str("addr", addr).Msg("API server starting")
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("API server shutting down")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		log := requestid.Logger(c.UserContext(), logger)
		log.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		title := "Internal Server Error"
		detail := "An internal error occurred"
		errType := "internal_error"
		if code != fiber.StatusInternalServerError {
			title = utils.StatusMessage(code)
			detail = err.Error()
			errType = "http_error"
		}
		return problemResponse(c, code, errType, title, detail)
	}
}
