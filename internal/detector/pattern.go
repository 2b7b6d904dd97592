package detector

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

const (
	dailyCapWarnFraction = 0.9
	longSessionLimit     = 45 * time.Minute
	minRegularitySamples = 5
	maxRegularitySamples = 20
	// stddev/mean below this is machine-like
	regularityCVThreshold = 0.15
)

// PatternTier looks at aggregate activity: quota pressure, session length
// and timing regularity.
type PatternTier struct {
	logger zerolog.Logger
	checks []subCheck
}

// NewPatternTier creates the tier.
func NewPatternTier(logger zerolog.Logger) *PatternTier {
	t := &PatternTier{logger: logger}
	t.checks = []subCheck{
		{name: "daily_cap", fn: t.dailyCap},
		{name: "session_length", fn: t.sessionLength},
		{name: "timing_regularity", fn: t.timingRegularity},
	}
	return t
}

func (t *PatternTier) Name() string { return TierPattern }

func (t *PatternTier) Check(_ context.Context, obs Observation) ([]models.DetectionSignal, error) {
	return runSubChecks(TierPattern, t.checks, obs)
}

func (t *PatternTier) dailyCap(obs Observation) []models.DetectionSignal {
	if obs.DailyCap <= 0 {
		return nil
	}
	if float64(obs.ActionsToday) < dailyCapWarnFraction*float64(obs.DailyCap) {
		return nil
	}
	return []models.DetectionSignal{newSignal(models.SignalPattern, models.AlertLow, "daily_limit_near",
		fmt.Sprintf("%d of %d daily actions used", obs.ActionsToday, obs.DailyCap),
		map[string]string{
			"actions_today": fmt.Sprint(obs.ActionsToday),
			"daily_cap":     fmt.Sprint(obs.DailyCap),
		})}
}

func (t *PatternTier) sessionLength(obs Observation) []models.DetectionSignal {
	if obs.SessionStart.IsZero() {
		return nil
	}
	elapsed := obs.Now.Sub(obs.SessionStart)
	if elapsed <= longSessionLimit {
		return nil
	}
	return []models.DetectionSignal{newSignal(models.SignalPattern, models.AlertLow, "long_session",
		fmt.Sprintf("session running for %s", elapsed.Round(time.Minute)),
		map[string]string{"elapsed_s": fmt.Sprint(int(elapsed.Seconds()))})}
}

func (t *PatternTier) timingRegularity(obs Observation) []models.DetectionSignal {
	intervals := obs.Intervals
	if len(intervals) < minRegularitySamples {
		return nil
	}
	if len(intervals) > maxRegularitySamples {
		intervals = intervals[len(intervals)-maxRegularitySamples:]
	}
	cv, ok := coefficientOfVariation(intervals)
	if !ok || cv >= regularityCVThreshold {
		return nil
	}
	return []models.DetectionSignal{newSignal(models.SignalPattern, models.AlertMedium, "timing_too_regular",
		fmt.Sprintf("inter-action intervals vary by only %.1f%%", cv*100),
		map[string]string{
			"cv":      fmt.Sprintf("%.4f", cv),
			"samples": fmt.Sprint(len(intervals)),
		})}
}

// coefficientOfVariation returns population stddev / mean of d.
func coefficientOfVariation(d []time.Duration) (float64, bool) {
	if len(d) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range d {
		sum += float64(v)
	}
	mean := sum / float64(len(d))
	if mean <= 0 {
		return 0, false
	}
	var variance float64
	for _, v := range d {
		diff := float64(v) - mean
		variance += diff * diff
	}
	variance /= float64(len(d))
	return math.Sqrt(variance) / mean, true
}
