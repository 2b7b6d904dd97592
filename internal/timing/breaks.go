package timing

import (
	"time"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// BreakKind names a break directive.
type BreakKind string

const (
	BreakMini       BreakKind = "mini"
	BreakMedium     BreakKind = "medium"
	BreakSessionEnd BreakKind = "session_end"
	BreakForced     BreakKind = "forced"
)

// Break tells the orchestrator to stop acting for Duration.
type Break struct {
	Kind     BreakKind     `json:"kind"`
	Duration time.Duration `json:"duration"`
	Reason   string        `json:"reason"`
}

// ShouldTakeBreak returns at most one break, highest priority first:
// session end, then medium, then mini. Nil means keep going.
func (m *Model) ShouldTakeBreak(state models.SessionState) *Break {
	st := state.Normalized()
	n := st.ActionsThisSession
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()
	cfg := m.cfg

	if n >= cfg.SessionEndActions {
		return &Break{
			Kind:     BreakSessionEnd,
			Duration: cfg.SessionEndBreak.Draw(m.fast),
			Reason:   "session action limit reached",
		}
	}
	if !st.SessionStart.IsZero() && now.Sub(st.SessionStart) >= MaxSessionLength {
		return &Break{
			Kind:     BreakSessionEnd,
			Duration: cfg.SessionEndBreak.Draw(m.fast),
			Reason:   "session length limit reached",
		}
	}

	// A new session started underneath us.
	if n < m.lastCount || m.nextMini == 0 {
		m.nextMini = cfg.MiniBreakEvery.Draw(m.fast)
		m.nextMedium = cfg.MediumBreakEvery.Draw(m.fast)
	}
	m.lastCount = n

	if n >= m.nextMedium {
		m.nextMedium = n + cfg.MediumBreakEvery.Draw(m.fast)
		m.nextMini = n + cfg.MiniBreakEvery.Draw(m.fast)
		return &Break{
			Kind:     BreakMedium,
			Duration: cfg.MediumBreak.Draw(m.fast),
			Reason:   "medium break interval reached",
		}
	}
	if n >= m.nextMini {
		m.nextMini = n + cfg.MiniBreakEvery.Draw(m.fast)
		return &Break{
			Kind:     BreakMini,
			Duration: cfg.MiniBreak.Draw(m.fast),
			Reason:   "mini break interval reached",
		}
	}
	return nil
}
