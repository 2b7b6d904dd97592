package warmup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

func TestDayNumber(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, DayNumber(start, start))
	assert.Equal(t, 1, DayNumber(start, start.Add(23*time.Hour)))
	assert.Equal(t, 2, DayNumber(start, start.Add(24*time.Hour)))
	assert.Equal(t, 10, DayNumber(start, start.Add(9*24*time.Hour+time.Minute)))
	assert.Equal(t, 1, DayNumber(start, start.Add(-72*time.Hour)))
}

func TestGetConfig_SixToTwelveMonths(t *testing.T) {
	day3 := GetConfig(models.Age6To12Months, 3)
	assert.Equal(t, 15, day3.MaxActionsPerDay)
	assert.Equal(t, 3, day3.MaxCommentsPerDay)

	day10 := GetConfig(models.Age6To12Months, 10)
	assert.Equal(t, 30, day10.MaxActionsPerDay)
	assert.Equal(t, 7, day10.MaxCommentsPerDay)
}

func TestUnderThreeMonths_AlwaysBlocked(t *testing.T) {
	for _, d := range []int{-30, -1, 0, 1, 14, 28, 365, 10000} {
		cfg := GetConfig(models.AgeUnder3Months, d)
		assert.Equal(t, 0, cfg.MaxActionsPerDay, "day %d", d)
		assert.Equal(t, 0, cfg.MaxCommentsPerDay, "day %d", d)
		assert.True(t, cfg.RequiresApproval)
		assert.True(t, PhaseFor(models.AgeUnder3Months, d).InWarmup)

		for _, kind := range []models.ActionKind{models.KindLike, models.KindComment, models.KindShare, models.KindConnect} {
			dec := CanPerformAction(cfg, kind, 0, 0, 1, models.SpeedUltraSlow)
			assert.False(t, dec.Allowed, "day %d kind %s", d, kind)
			assert.NotEmpty(t, dec.Reason)
		}
	}
}

func TestUnknownAge_FallsBackToStrictest(t *testing.T) {
	cfg := GetConfig(models.AccountAge("ancient"), 50)
	assert.Equal(t, GetConfig(models.AgeUnder3Months, 50), cfg)
}

func TestWarmupSequences_IncreaseMonotonically(t *testing.T) {
	for age, p := range profiles {
		if p.Blocked {
			continue
		}
		prev := Config{}
		for d := 1; d <= p.WarmupDays; d++ {
			cur := GetConfig(age, d)
			assert.GreaterOrEqual(t, cur.MaxActionsPerDay, prev.MaxActionsPerDay, "%s day %d", age, d)
			assert.GreaterOrEqual(t, cur.MaxCommentsPerDay, prev.MaxCommentsPerDay, "%s day %d", age, d)
			assert.GreaterOrEqual(t, len(cur.AllowedSpeedTiers), len(prev.AllowedSpeedTiers), "%s day %d", age, d)
			prev = cur
		}
		// the last bucket must cover the full warm-up length
		require.NotEmpty(t, p.Steps)
		assert.Equal(t, p.WarmupDays, p.Steps[len(p.Steps)-1].MaxDay, "%s", age)
	}
}

func TestPostWarmupRamp(t *testing.T) {
	mature := ProfileFor(models.Age6To12Months).Mature

	early := PhaseFor(models.Age6To12Months, 14+10)
	assert.False(t, early.InWarmup)
	assert.Equal(t, 60, early.RampPct)
	assert.Equal(t, mature.MaxActionsPerDay*60/100, early.Config.MaxActionsPerDay)

	mid := PhaseFor(models.Age6To12Months, 14+45)
	assert.Equal(t, 80, mid.RampPct)

	full := PhaseFor(models.Age6To12Months, 14+61)
	assert.Equal(t, 100, full.RampPct)
	assert.Equal(t, mature.MaxActionsPerDay, full.Config.MaxActionsPerDay)

	// older accounts skip the ramp
	old := PhaseFor(models.AgeOver2Years, 4)
	assert.Equal(t, 100, old.RampPct)
	assert.Equal(t, ProfileFor(models.AgeOver2Years).Mature.MaxActionsPerDay, old.Config.MaxActionsPerDay)
}

func TestCanPerformAction_CommentsDisabled(t *testing.T) {
	cfg := Config{
		MaxActionsPerDay:    10,
		MaxCommentsPerDay:   0,
		AllowedSpeedTiers:   models.AllSpeedTiers,
		MaxConnectionDegree: 3,
	}
	for _, comments := range []int{-1, 0, 5} {
		dec := CanPerformAction(cfg, models.KindComment, 2, comments, 1, models.SpeedSlow)
		assert.False(t, dec.Allowed)
		assert.Contains(t, dec.Reason, "comments disabled")
	}
	// likes are unaffected
	assert.True(t, CanPerformAction(cfg, models.KindLike, 2, 0, 1, models.SpeedSlow).Allowed)
}

func TestCanPerformAction_RuleOrder(t *testing.T) {
	cfg := Config{
		MaxActionsPerDay:    10,
		MaxCommentsPerDay:   2,
		AllowedSpeedTiers:   []models.SpeedTier{models.SpeedUltraSlow},
		MaxConnectionDegree: 1,
	}

	tests := []struct {
		name     string
		kind     models.ActionKind
		actions  int
		comments int
		degree   int
		speed    models.SpeedTier
		allowed  bool
		reason   string
	}{
		{"daily cap first", models.KindComment, 10, 5, 3, models.SpeedNormal, false, "daily action limit"},
		{"comment cap", models.KindComment, 3, 2, 3, models.SpeedNormal, false, "daily comment limit"},
		{"degree scope", models.KindLike, 3, 0, 2, models.SpeedNormal, false, "connection degree"},
		{"unknown degree is 3rd+", models.KindLike, 3, 0, 0, models.SpeedUltraSlow, false, "connection degree"},
		{"speed tier", models.KindLike, 3, 0, 1, models.SpeedNormal, false, "speed tier"},
		{"allowed", models.KindComment, 3, 1, 1, models.SpeedUltraSlow, true, ""},
		{"negative counts clamp to zero", models.KindLike, -4, -4, 1, models.SpeedUltraSlow, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := CanPerformAction(cfg, tt.kind, tt.actions, tt.comments, tt.degree, tt.speed)
			assert.Equal(t, tt.allowed, dec.Allowed)
			if tt.reason != "" {
				assert.Contains(t, dec.Reason, tt.reason)
			}
		})
	}
}

func TestConfigScale(t *testing.T) {
	cfg := Config{MaxActionsPerDay: 40, MaxCommentsPerDay: 10}
	assert.Equal(t, 30, cfg.Scale(0.75).MaxActionsPerDay)
	assert.Equal(t, 5, cfg.Scale(0.5).MaxCommentsPerDay)
	assert.Equal(t, 40, cfg.Scale(1).MaxActionsPerDay)
	assert.Equal(t, 40, cfg.Scale(-2).MaxActionsPerDay)
}

func TestPolicy_UsesClock(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	p := NewPolicy(models.Age6To12Months, start)
	p.Now = func() time.Time { return start.Add(2*24*time.Hour + time.Hour) }

	assert.Equal(t, 3, p.Day())
	assert.Equal(t, 15, p.Config().MaxActionsPerDay)
	assert.True(t, p.CanPerformAction(models.KindLike, 0, 0, 1, models.SpeedSlow).Allowed)
	assert.False(t, p.CanPerformAction(models.KindLike, 0, 0, 1, models.SpeedNormal).Allowed)
}

func TestConfigClone_DoesNotAliasTable(t *testing.T) {
	cfg := GetConfig(models.Age1To2Years, 1)
	require.NotEmpty(t, cfg.AllowedSpeedTiers)
	cfg.AllowedSpeedTiers[0] = models.SpeedNormal
	assert.Equal(t, models.SpeedUltraSlow, GetConfig(models.Age1To2Years, 1).AllowedSpeedTiers[0])
}
