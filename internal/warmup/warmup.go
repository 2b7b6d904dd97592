// Package warmup computes the activity envelope an account may use, as a
// pure function of its declared age bracket and days since warm-up start,
// and adjudicates individual action requests against it.
package warmup

import (
	"fmt"
	"slices"
	"time"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// Config is the activity envelope in force on a given day.
type Config struct {
	MaxActionsPerDay    int                `json:"max_actions_per_day"`
	MaxCommentsPerDay   int                `json:"max_comments_per_day"`
	MinHourSpread       int                `json:"min_hour_spread"`
	AllowedSpeedTiers   []models.SpeedTier `json:"allowed_speed_tiers"`
	MaxConnectionDegree int                `json:"max_connection_degree"`
	RequiresApproval    bool               `json:"requires_approval"`
}

// Step is a day bucket of a warm-up sequence.
type Step struct {
	MaxDay int
	Config Config
}

// RampStep scales mature limits for days after warm-up ends.
type RampStep struct {
	MaxDaysAfter int
	Percent      int
}

// Profile is the full policy of one age bracket.
type Profile struct {
	Blocked    bool // never leaves warm-up; all activity denied
	WarmupDays int
	Steps      []Step
	Mature     Config
	Ramp       []RampStep
}

// Phase describes where an account is in its warm-up.
type Phase struct {
	Day        int    `json:"day"`
	InWarmup   bool   `json:"in_warmup"`
	WarmupDays int    `json:"warmup_days"`
	RampPct    int    `json:"ramp_percent"`
	Config     Config `json:"config"`
}

// Decision is the verdict on a single action request.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

const day = 24 * time.Hour

// DayNumber is max(1, floor((now - start) / 24h) + 1).
func DayNumber(start, now time.Time) int {
	elapsed := now.Sub(start)
	n := int(elapsed/day) + 1
	if elapsed < 0 {
		n = 1
	}
	if n < 1 {
		n = 1
	}
	return n
}

// ProfileFor returns the bracket's profile. Unknown brackets get the
// strictest profile.
func ProfileFor(age models.AccountAge) Profile {
	if p, ok := profiles[age]; ok {
		return p
	}
	return profiles[models.AgeUnder3Months]
}

// GetConfig returns the envelope for age on warm-up day dayNum. Day
// numbers below 1 are treated as day 1.
func GetConfig(age models.AccountAge, dayNum int) Config {
	return PhaseFor(age, dayNum).Config
}

// PhaseFor resolves the full warm-up phase for age on dayNum.
func PhaseFor(age models.AccountAge, dayNum int) Phase {
	if dayNum < 1 {
		dayNum = 1
	}
	p := ProfileFor(age)
	if p.Blocked {
		return Phase{Day: dayNum, InWarmup: true, RampPct: 100, Config: p.Mature.clone()}
	}

	if dayNum <= p.WarmupDays {
		for _, s := range p.Steps {
			if dayNum <= s.MaxDay {
				return Phase{Day: dayNum, InWarmup: true, WarmupDays: p.WarmupDays, RampPct: 100, Config: s.Config.clone()}
			}
		}
	}

	pct := rampPercent(p.Ramp, dayNum-p.WarmupDays)
	return Phase{
		Day:        dayNum,
		InWarmup:   false,
		WarmupDays: p.WarmupDays,
		RampPct:    pct,
		Config:     p.Mature.scaled(pct),
	}
}

func rampPercent(ramp []RampStep, daysAfter int) int {
	for _, r := range ramp {
		if daysAfter <= r.MaxDaysAfter {
			return r.Percent
		}
	}
	return 100
}

func (c Config) clone() Config {
	c.AllowedSpeedTiers = slices.Clone(c.AllowedSpeedTiers)
	return c
}

func (c Config) scaled(pct int) Config {
	c = c.clone()
	if pct >= 100 {
		return c
	}
	c.MaxActionsPerDay = c.MaxActionsPerDay * pct / 100
	c.MaxCommentsPerDay = c.MaxCommentsPerDay * pct / 100
	return c
}

// Scale applies an external restriction multiplier (see cooldown) to the
// daily caps. Multipliers outside (0, 1] leave the config unchanged.
func (c Config) Scale(mult float64) Config {
	c = c.clone()
	if mult <= 0 || mult >= 1 {
		return c
	}
	c.MaxActionsPerDay = int(float64(c.MaxActionsPerDay) * mult)
	c.MaxCommentsPerDay = int(float64(c.MaxCommentsPerDay) * mult)
	return c
}

// AllowsSpeed reports whether tier is in the allowed set.
func (c Config) AllowsSpeed(tier models.SpeedTier) bool {
	return slices.Contains(c.AllowedSpeedTiers, tier)
}

// CanPerformAction checks a request against cfg. Rules are evaluated in a
// fixed order and the first failure supplies the reason.
func CanPerformAction(cfg Config, kind models.ActionKind, actionsToday, commentsToday, degree int, speed models.SpeedTier) Decision {
	if actionsToday < 0 {
		actionsToday = 0
	}
	if commentsToday < 0 {
		commentsToday = 0
	}
	degree = models.NormalizeDegree(degree)

	if actionsToday >= cfg.MaxActionsPerDay {
		return deny("daily action limit reached (%d/%d)", actionsToday, cfg.MaxActionsPerDay)
	}
	if kind == models.KindComment && cfg.MaxCommentsPerDay > 0 && commentsToday >= cfg.MaxCommentsPerDay {
		return deny("daily comment limit reached (%d/%d)", commentsToday, cfg.MaxCommentsPerDay)
	}
	if kind == models.KindComment && cfg.MaxCommentsPerDay <= 0 {
		return deny("comments disabled for the current warm-up phase")
	}
	if degree > cfg.MaxConnectionDegree {
		return deny("connection degree %d exceeds permitted scope (max %d)", degree, cfg.MaxConnectionDegree)
	}
	if !cfg.AllowsSpeed(speed) {
		return deny("speed tier %q not allowed in the current phase", speed)
	}
	return Decision{Allowed: true}
}

func deny(format string, args ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, args...)}
}
