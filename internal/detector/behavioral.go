package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

const (
	consecutiveFailureLimit = 3
	slowResponseFactor      = 3
	// a success faster than this is likely a silent no-op
	shadowRestrictionCeiling = 500 * time.Millisecond
)

// BehavioralTier watches action outcomes: failure streaks, slow responses
// and suspiciously fast successes.
type BehavioralTier struct {
	mu                  sync.Mutex
	baseline            time.Duration
	consecutiveFailures int
	last                *models.ActionOutcome
	logger              zerolog.Logger
	checks              []subCheck
}

// NewBehavioralTier creates the tier with the given per-action baseline.
func NewBehavioralTier(baseline time.Duration, logger zerolog.Logger) *BehavioralTier {
	if baseline <= 0 {
		baseline = DefaultBaselineDuration
	}
	t := &BehavioralTier{baseline: baseline, logger: logger}
	t.checks = []subCheck{
		{name: "consecutive_failures", fn: t.failureStreak},
		{name: "slow_response", fn: t.slowResponse},
		{name: "shadow_restriction", fn: t.shadowRestriction},
	}
	return t
}

func (t *BehavioralTier) Name() string { return TierBehavioral }

// RecordOutcome updates the failure streak and the latest outcome.
func (t *BehavioralTier) RecordOutcome(o models.ActionOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if o.Success {
		t.consecutiveFailures = 0
	} else {
		t.consecutiveFailures++
	}
	t.last = &o
}

// Reset clears the failure streak and the latest outcome.
func (t *BehavioralTier) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.consecutiveFailures = 0
	t.last = nil
}

// ConsecutiveFailures returns the current failure streak.
func (t *BehavioralTier) ConsecutiveFailures() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutiveFailures
}

func (t *BehavioralTier) Check(_ context.Context, obs Observation) ([]models.DetectionSignal, error) {
	return runSubChecks(TierBehavioral, t.checks, obs)
}

func (t *BehavioralTier) snapshot() (int, *models.ActionOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return t.consecutiveFailures, nil
	}
	last := *t.last
	return t.consecutiveFailures, &last
}

func (t *BehavioralTier) failureStreak(_ Observation) []models.DetectionSignal {
	n, _ := t.snapshot()
	if n < consecutiveFailureLimit {
		return nil
	}
	return []models.DetectionSignal{newSignal(models.SignalError, models.AlertHigh, "consecutive_failures",
		fmt.Sprintf("%d consecutive actions failed", n),
		map[string]string{"count": fmt.Sprint(n)})}
}

func (t *BehavioralTier) slowResponse(_ Observation) []models.DetectionSignal {
	_, last := t.snapshot()
	if last == nil || last.Duration <= slowResponseFactor*t.baseline {
		return nil
	}
	return []models.DetectionSignal{newSignal(models.SignalPerformance, models.AlertMedium, "slow_response",
		fmt.Sprintf("last %s took %s, over %dx the %s baseline", last.Kind, last.Duration, slowResponseFactor, t.baseline),
		map[string]string{
			"duration_ms": fmt.Sprint(last.Duration.Milliseconds()),
			"baseline_ms": fmt.Sprint(t.baseline.Milliseconds()),
		})}
}

func (t *BehavioralTier) shadowRestriction(_ Observation) []models.DetectionSignal {
	_, last := t.snapshot()
	if last == nil || !last.Success || last.Duration <= 0 || last.Duration >= shadowRestrictionCeiling {
		return nil
	}
	return []models.DetectionSignal{newSignal(models.SignalWarning, models.AlertHigh, "possible_shadow_restriction",
		fmt.Sprintf("%s succeeded in %s; the platform may be discarding actions", last.Kind, last.Duration),
		map[string]string{"duration_ms": fmt.Sprint(last.Duration.Milliseconds())})}
}
