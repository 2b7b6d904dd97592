package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	gerrors "github.com/p-blackswan/engagement-guard/internal/errors"
	"github.com/p-blackswan/engagement-guard/internal/guard"
	"github.com/p-blackswan/engagement-guard/internal/health"
	"github.com/p-blackswan/engagement-guard/internal/models"
	"github.com/p-blackswan/engagement-guard/internal/requestid"
	"github.com/p-blackswan/engagement-guard/internal/timing"
)

const (
	defaultIncidentLimit = 20
	maxIncidentLimit     = 200
)

type handlers struct {
	guard     Guard
	incidents IncidentLister
	checker   *health.Checker
	timeout   time.Duration
	logger    zerolog.Logger
}

// OutcomeResponse is the scan triggered by a reported outcome. Warning is
// set when the outcome could not be persisted.
type OutcomeResponse struct {
	guard.ScanReport
	Warning string `json:"warning,omitempty"`
}

func (h *handlers) ctx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// bind parses a JSON body into v and validates it. An empty body is only
// accepted when allowEmpty is set.
func bind(c *fiber.Ctx, v any, allowEmpty bool) error {
	if len(c.Body()) == 0 {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("%w: request body is required", gerrors.ErrInvalidInput)
	}
	if err := c.BodyParser(v); err != nil {
		return fmt.Errorf("%w: %v", gerrors.ErrInvalidInput, err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", gerrors.ErrInvalidInput, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", gerrors.ErrInvalidInput, err)
	}
	return nil
}

// errorCode names a guard error for clients.
func errorCode(err error) string {
	switch {
	case errors.Is(err, gerrors.ErrCooldownActive):
		return "cooldown_active"
	case errors.Is(err, gerrors.ErrAutomationPaused):
		return "automation_paused"
	case errors.Is(err, gerrors.ErrOnBreak):
		return "forced_break"
	case errors.Is(err, gerrors.ErrLimitReached):
		return "limit_reached"
	case errors.Is(err, gerrors.ErrAlreadyEngaged):
		return "already_engaged"
	case errors.Is(err, gerrors.ErrSkipped):
		return "skipped"
	case errors.Is(err, gerrors.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, gerrors.ErrStorage):
		return "storage_unavailable"
	default:
		return "internal_error"
	}
}

func (h *handlers) fail(c *fiber.Ctx, err error) error {
	status := gerrors.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		log := requestid.Logger(c.UserContext(), h.logger)
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return problemResponse(c, status, errorCode(err), utils.StatusMessage(status), err.Error())
}

func (h *handlers) liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *handlers) readiness(c *fiber.Ctx) error {
	if h.checker == nil {
		return c.JSON(health.Report{Ready: true, CheckedAt: time.Now()})
	}
	rep := h.checker.Check(c.UserContext())
	if !rep.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(rep)
	}
	return c.JSON(rep)
}

func (h *handlers) status(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	st, err := h.guard.Status(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(st)
}

func (h *handlers) startSession(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	info, err := h.guard.StartSession(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(info)
}

// checkAction answers 200 for both verdicts. Only bad input and storage
// failures are problems.
func (h *handlers) checkAction(c *fiber.Ctx) error {
	var req CheckActionRequest
	if err := bind(c, &req, false); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	d, err := h.guard.CheckAction(ctx, req.toGuard())
	resp := CheckActionResponse{Decision: d, RetryAfterMS: d.RetryAfter.Milliseconds()}
	if err != nil {
		if errors.Is(err, gerrors.ErrStorage) || errors.Is(err, gerrors.ErrInvalidInput) {
			return h.fail(c, err)
		}
		resp.Code = errorCode(err)
	}
	return c.JSON(resp)
}

func (h *handlers) reportOutcome(c *fiber.Ctx) error {
	var req OutcomeRequest
	if err := bind(c, &req, false); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	report, err := h.guard.ReportOutcome(ctx, req.toModel())
	resp := OutcomeResponse{ScanReport: report}
	if err != nil {
		resp.Warning = err.Error()
	}
	return c.JSON(resp)
}

func (h *handlers) delay(c *fiber.Ctx) error {
	return c.JSON(durationResponse(h.guard.NextDelay()))
}

func (h *handlers) reading(c *fiber.Ctx) error {
	var req ReadingRequest
	if err := bind(c, &req, false); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(durationResponse(h.guard.ReadingTime(req.Post)))
}

func (h *handlers) breakCheck(c *fiber.Ctx) error {
	b := h.guard.Break()
	resp := BreakResponse{Break: b}
	if b != nil {
		resp.DurationMS = b.Duration.Milliseconds()
	}
	return c.JSON(resp)
}

func (h *handlers) typing(c *fiber.Ctx) error {
	var req TypingRequest
	if err := bind(c, &req, false); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"steps": h.guard.Typing(req.Text)})
}

func (h *handlers) cursor(c *fiber.Ctx) error {
	var req CursorRequest
	if err := bind(c, &req, false); err != nil {
		return h.fail(c, err)
	}
	path, d := h.guard.Cursor(req.Start, req.End, req.Steps)
	return c.JSON(CursorResponse{Path: path, DurationMS: d.Milliseconds()})
}

func (h *handlers) microPause(c *fiber.Ctx) error {
	kind := timing.MicroPauseKind(c.Query("kind", string(timing.MicroShort)))
	if kind != timing.MicroShort && kind != timing.MicroLong {
		return h.fail(c, fmt.Errorf("%w: kind must be short or long", gerrors.ErrInvalidInput))
	}
	return c.JSON(durationResponse(h.guard.MicroPause(kind)))
}

func (h *handlers) scan(c *fiber.Ctx) error {
	var req ScanRequest
	if err := bind(c, &req, true); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	return c.JSON(h.guard.Scan(ctx, req.Page))
}

func (h *handlers) cooldownStatus(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	cs, err := h.guard.CooldownStatus(ctx)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(cs)
}

func (h *handlers) enableCooldown(c *fiber.Ctx) error {
	var req CooldownRequest
	if err := bind(c, &req, true); err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	cs, err := h.guard.EnableCooldown(ctx, req.Reason)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(cs)
}

func (h *handlers) resume(c *fiber.Ctx) error {
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.guard.ResumeAutomation(ctx); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"automation_enabled": true})
}

func (h *handlers) listIncidents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultIncidentLimit)
	if limit <= 0 || limit > maxIncidentLimit {
		return h.fail(c, fmt.Errorf("%w: limit must be between 1 and %d", gerrors.ErrInvalidInput, maxIncidentLimit))
	}
	if h.incidents == nil {
		return c.JSON(fiber.Map{"incidents": []models.Incident{}})
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	list, err := h.incidents.ListIncidents(ctx, limit)
	if err != nil {
		return h.fail(c, fmt.Errorf("%w: %v", gerrors.ErrStorage, err))
	}
	if list == nil {
		list = []models.Incident{}
	}
	return c.JSON(fiber.Map{"incidents": list})
}
