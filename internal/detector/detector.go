// Package detector inspects page state, action outcomes and temporal
// patterns for signs that the platform has noticed automation, and folds
// the findings into a single alert level.
//
// Tiers run independently. A tier or sub-check that errors or panics
// contributes nothing; it never aborts the scan or hides another tier's
// signals.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// Tier names.
const (
	TierAppearance = "appearance"
	TierBehavioral = "behavioral"
	TierPattern    = "pattern"
)

// Observation is the input to one scan.
type Observation struct {
	Page         *models.PageSnapshot
	ActionsToday int
	DailyCap     int
	SessionStart time.Time
	Intervals    []time.Duration // oldest first
	Now          time.Time
}

// Tier is one independent detection stage.
type Tier interface {
	Name() string
	Check(ctx context.Context, obs Observation) ([]models.DetectionSignal, error)
}

// Result is the outcome of a scan.
type Result struct {
	Signals     []models.DetectionSignal `json:"signals"`
	Level       models.AlertLevel        `json:"level"`
	Recommended models.RecommendedAction `json:"recommended_action"`
	ScannedAt   time.Time                `json:"scanned_at"`
	FailedTiers []string                 `json:"failed_tiers,omitempty"`
}

// Config tunes the detector.
type Config struct {
	// BaselineDuration is the expected duration of one action.
	BaselineDuration time.Duration
	Now              func() time.Time
}

// DefaultBaselineDuration is used when Config.BaselineDuration is unset.
const DefaultBaselineDuration = 3 * time.Second

// Detector runs the tiers and aggregates their signals.
type Detector struct {
	tiers      []Tier
	behavioral *BehavioralTier
	now        func() time.Time
	logger     zerolog.Logger
}

// New builds a detector with the three standard tiers.
func New(cfg Config, markers MarkerSource, logger zerolog.Logger) *Detector {
	if cfg.BaselineDuration <= 0 {
		cfg.BaselineDuration = DefaultBaselineDuration
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger = logger.With().Str("component", "detector").Logger()

	behavioral := NewBehavioralTier(cfg.BaselineDuration, logger)
	return &Detector{
		tiers: []Tier{
			NewAppearanceTier(markers, logger),
			behavioral,
			NewPatternTier(logger),
		},
		behavioral: behavioral,
		now:        cfg.Now,
		logger:     logger,
	}
}

// NewWithTiers builds a detector from arbitrary tiers.
func NewWithTiers(tiers []Tier, logger zerolog.Logger) *Detector {
	d := &Detector{
		tiers:  tiers,
		now:    time.Now,
		logger: logger.With().Str("component", "detector").Logger(),
	}
	for _, t := range tiers {
		if b, ok := t.(*BehavioralTier); ok {
			d.behavioral = b
		}
	}
	return d
}

// RecordOutcome feeds an action outcome into the behavioral tier.
func (d *Detector) RecordOutcome(o models.ActionOutcome) {
	if d.behavioral != nil {
		d.behavioral.RecordOutcome(o)
	}
}

// Reset forgets the outcome history held by the behavioral tier.
func (d *Detector) Reset() {
	if d.behavioral != nil {
		d.behavioral.Reset()
	}
}

// ConsecutiveFailures exposes the behavioral failure streak.
func (d *Detector) ConsecutiveFailures() int {
	if d.behavioral == nil {
		return 0
	}
	return d.behavioral.ConsecutiveFailures()
}

// Scan runs every tier and aggregates. It never fails.
func (d *Detector) Scan(ctx context.Context, obs Observation) Result {
	if obs.Now.IsZero() {
		obs.Now = d.now()
	}
	if obs.ActionsToday < 0 {
		obs.ActionsToday = 0
	}

	res := Result{ScannedAt: obs.Now}
	for _, t := range d.tiers {
		sigs, err := runTier(ctx, t, obs)
		if err != nil {
			res.FailedTiers = append(res.FailedTiers, t.Name())
			d.logger.Error().Err(err).Str("tier", t.Name()).Msg("detector tier failed")
		}
		for i := range sigs {
			if sigs[i].Timestamp.IsZero() {
				sigs[i].Timestamp = obs.Now
			}
			if sigs[i].Tier == "" {
				sigs[i].Tier = t.Name()
			}
			sigs[i].Severity = sigs[i].Severity.Normalize()
		}
		res.Signals = append(res.Signals, sigs...)
	}

	sort.SliceStable(res.Signals, func(i, j int) bool {
		return res.Signals[i].Severity > res.Signals[j].Severity
	})

	res.Level = models.AlertNone
	for _, s := range res.Signals {
		res.Level = models.MaxAlert(res.Level, s.Severity)
	}
	res.Recommended = models.RecommendationFor(res.Level)

	if res.Level > models.AlertNone {
		d.logger.Info().
			Str("level", res.Level.String()).
			Int("signals", len(res.Signals)).
			Str("recommended", string(res.Recommended)).
			Msg("risk signals detected")
	}
	return res
}

func runTier(ctx context.Context, t Tier, obs Observation) (sigs []models.DetectionSignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sigs = nil
			err = fmt.Errorf("tier %s panicked: %v", t.Name(), r)
		}
	}()
	return t.Check(ctx, obs)
}

// subCheck is a single detection rule inside a tier.
type subCheck struct {
	name string
	fn   func(obs Observation) []models.DetectionSignal
}

// runSubChecks evaluates each rule in isolation. Failing rules are
// reported in the returned error while the remaining signals are kept.
func runSubChecks(tier string, checks []subCheck, obs Observation) ([]models.DetectionSignal, error) {
	var (
		out  []models.DetectionSignal
		errs []error
	)
	for _, c := range checks {
		sigs, err := safeCheck(c, obs)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", tier, c.name, err))
			continue
		}
		out = append(out, sigs...)
	}
	return out, errors.Join(errs...)
}

func safeCheck(c subCheck, obs Observation) (sigs []models.DetectionSignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			sigs = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return c.fn(obs), nil
}

func newSignal(kind models.SignalKind, severity models.AlertLevel, code, msg string, details map[string]string) models.DetectionSignal {
	return models.DetectionSignal{
		Kind:     kind,
		Severity: severity,
		Code:     code,
		Message:  msg,
		Details:  details,
	}
}
