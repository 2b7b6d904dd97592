package warmup

import (
	"time"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// Policy binds the warm-up table to one account. It holds no state beyond
// its inputs; every query recomputes the envelope.
type Policy struct {
	Age   models.AccountAge
	Start time.Time
	Now   func() time.Time
}

// NewPolicy creates a Policy. A zero start means warm-up begins now.
func NewPolicy(age models.AccountAge, start time.Time) *Policy {
	if start.IsZero() {
		start = time.Now()
	}
	return &Policy{Age: models.ParseAccountAge(string(age)), Start: start, Now: time.Now}
}

// Day returns the current warm-up day number.
func (p *Policy) Day() int {
	return DayNumber(p.Start, p.now())
}

// Phase returns the current phase.
func (p *Policy) Phase() Phase {
	return PhaseFor(p.Age, p.Day())
}

// Config returns the current envelope.
func (p *Policy) Config() Config {
	return p.Phase().Config
}

// CanPerformAction checks a request against the current envelope.
func (p *Policy) CanPerformAction(kind models.ActionKind, actionsToday, commentsToday, degree int, speed models.SpeedTier) Decision {
	return CanPerformAction(p.Config(), kind, actionsToday, commentsToday, degree, speed)
}

func (p *Policy) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
