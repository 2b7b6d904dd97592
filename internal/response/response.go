// Package response turns an aggregate alert level into a graduated
// reaction: pacing adjustments, pauses, cooldowns, incidents and alerts.
package response

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/cooldown"
	"github.com/p-blackswan/engagement-guard/internal/metrics"
	"github.com/p-blackswan/engagement-guard/internal/models"
	"github.com/p-blackswan/engagement-guard/internal/notify"
	"github.com/p-blackswan/engagement-guard/internal/session"
)

// Recipe constants.
const (
	HighDelayMultiplier   = 3.0
	HighBatchSizeFactor   = 0.5
	MediumDelayMultiplier = 1.5
	MediumSkips           = 2
	LowForcedBreak        = 10 * time.Minute
	LowRandomizationScale = 2.0
)

// Directive is what the caller must do after a response.
type Directive struct {
	Level              models.AlertLevel        `json:"level"`
	Action             models.RecommendedAction `json:"action"`
	Halt               bool                     `json:"halt"`
	Pause              bool                     `json:"pause"`
	CooldownOpened     bool                     `json:"cooldown_opened"`
	DelayMultiplier    float64                  `json:"delay_multiplier,omitempty"`
	BatchSizeFactor    float64                  `json:"batch_size_factor,omitempty"`
	RandomizationScale float64                  `json:"randomization_scale,omitempty"`
	SkipNext           int                      `json:"skip_next,omitempty"`
	ForcedBreak        time.Duration            `json:"forced_break,omitempty"`
	Alert              *notify.Alert            `json:"alert,omitempty"`
	IncidentID         string                   `json:"incident_id,omitempty"`
}

// Plan is the fixed level-to-recipe mapping, without side effects.
func Plan(level models.AlertLevel, signals []models.DetectionSignal) Directive {
	level = level.Normalize()
	d := Directive{Level: level, Action: models.RecommendationFor(level)}
	reason := Summarize(signals)

	switch level {
	case models.AlertCritical:
		d.Halt = true
		d.Alert = &notify.Alert{
			Severity: notify.SeverityUrgent,
			Title:    "Automation halted: platform warning detected",
			Message:  fmt.Sprintf("%s. A %d-hour cooldown has started.", reason, int(cooldown.Duration.Hours())),
			Blocking: true,
		}
	case models.AlertHigh:
		d.Pause = true
		d.DelayMultiplier = HighDelayMultiplier
		d.BatchSizeFactor = HighBatchSizeFactor
		d.Alert = &notify.Alert{
			Severity: notify.SeverityWarning,
			Title:    "Automation paused",
			Message:  reason + ". Resume manually once the account looks healthy.",
		}
	case models.AlertMedium:
		d.DelayMultiplier = MediumDelayMultiplier
		d.SkipNext = MediumSkips
		d.Alert = &notify.Alert{
			Severity: notify.SeverityInfo,
			Title:    "Slowing down",
			Message:  reason,
		}
	case models.AlertLow:
		d.ForcedBreak = LowForcedBreak
		d.RandomizationScale = LowRandomizationScale
		d.Alert = &notify.Alert{
			Severity: notify.SeverityInfo,
			Title:    "Taking a short break",
			Message:  reason,
		}
	}
	if d.Alert != nil {
		d.Alert.Level = level
		d.Alert.Signals = signals
	}
	return d
}

// Summarize renders the most severe signal as a one-line reason.
func Summarize(signals []models.DetectionSignal) string {
	if len(signals) == 0 {
		return "No specific signal"
	}
	top := signals[0]
	for _, s := range signals[1:] {
		if s.Severity > top.Severity {
			top = s
		}
	}
	msg := top.Message
	if msg == "" {
		msg = top.Code
	}
	if len(signals) > 1 {
		return fmt.Sprintf("%s (+%d more signals)", msg, len(signals)-1)
	}
	return msg
}

// CooldownController is the subset of cooldown.Manager used here.
type CooldownController interface {
	EnableCooldown(ctx context.Context, reason string) (cooldown.Status, error)
	SetAutomationEnabled(ctx context.Context, enabled bool) error
}

// SessionAdjuster applies pacing adjustments.
type SessionAdjuster interface {
	ApplyAdjustments(ctx context.Context, a session.Adjustments) (models.SessionState, error)
}

// IncidentRecorder persists incidents.
type IncidentRecorder interface {
	SaveIncident(ctx context.Context, inc *models.Incident) error
}

// Deps are the coordinator's collaborators. Nil Incidents, Notifier and
// Metrics are allowed.
type Deps struct {
	Cooldown  CooldownController
	Session   SessionAdjuster
	Incidents IncidentRecorder
	Notifier  notify.Notifier
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Coordinator executes recipes.
type Coordinator struct {
	deps   Deps
	logger zerolog.Logger
}

// New creates a coordinator.
func New(deps Deps, logger zerolog.Logger) *Coordinator {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Coordinator{
		deps:   deps,
		logger: logger.With().Str("component", "response").Logger(),
	}
}

// Handle plans and executes the response for level. Side-effect failures
// are logged and counted; the returned directive always reflects the plan.
func (c *Coordinator) Handle(ctx context.Context, level models.AlertLevel, signals []models.DetectionSignal) Directive {
	d := Plan(level, signals)
	if d.Level == models.AlertNone {
		return d
	}
	if d.Alert != nil {
		d.Alert.At = c.deps.Now()
	}
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordResponse(d.Level.String())
	}
	reason := Summarize(signals)

	switch d.Level {
	case models.AlertCritical:
		if _, err := c.deps.Cooldown.EnableCooldown(ctx, reason); err != nil {
			c.sideEffectFailed(err, "enable_cooldown")
		} else {
			d.CooldownOpened = true
		}
		d.IncidentID = c.recordIncident(ctx, d, reason, signals)
		if err := c.deps.Notifier.Notify(ctx, *d.Alert); err != nil {
			c.sideEffectFailed(err, "notify")
			if c.deps.Metrics != nil {
				c.deps.Metrics.RecordNotifyError()
			}
		}

	case models.AlertHigh:
		if err := c.deps.Cooldown.SetAutomationEnabled(ctx, false); err != nil {
			c.sideEffectFailed(err, "pause_automation")
		}
		c.adjust(ctx, d)
		d.IncidentID = c.recordIncident(ctx, d, reason, signals)

	case models.AlertMedium, models.AlertLow:
		c.adjust(ctx, d)
	}

	c.logger.Warn().
		Str("level", d.Level.String()).
		Str("action", string(d.Action)).
		Bool("cooldown_opened", d.CooldownOpened).
		Str("incident_id", d.IncidentID).
		Str("reason", reason).
		Msg("response executed")
	return d
}

func (c *Coordinator) adjust(ctx context.Context, d Directive) {
	if c.deps.Session == nil {
		return
	}
	_, err := c.deps.Session.ApplyAdjustments(ctx, session.Adjustments{
		DelayMultiplier:    d.DelayMultiplier,
		BatchSizeFactor:    d.BatchSizeFactor,
		RandomizationScale: d.RandomizationScale,
		Skips:              d.SkipNext,
	})
	if err != nil {
		c.sideEffectFailed(err, "apply_adjustments")
	}
}

func (c *Coordinator) recordIncident(ctx context.Context, d Directive, reason string, signals []models.DetectionSignal) string {
	if c.deps.Incidents == nil {
		return ""
	}
	inc := &models.Incident{
		Level:     d.Level,
		Action:    d.Action,
		Reason:    reason,
		Signals:   signals,
		CreatedAt: c.deps.Now(),
	}
	if err := c.deps.Incidents.SaveIncident(ctx, inc); err != nil {
		c.sideEffectFailed(err, "save_incident")
		return ""
	}
	return inc.ID
}

func (c *Coordinator) sideEffectFailed(err error, effect string) {
	c.logger.Error().Err(err).Str("effect", effect).Msg("response side effect failed")
	if c.deps.Metrics != nil {
		c.deps.Metrics.RecordError("response", effect)
	}
}
