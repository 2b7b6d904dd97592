// Package cooldown tracks the mandatory post-incident suspension window and
// the escalating restriction that follows repeated warnings.
package cooldown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Duration is the fixed length of every cooldown.
const Duration = 48 * time.Hour

// PermanentRestrictionThreshold is the warning count at which the account
// is treated as permanently restricted.
const PermanentRestrictionThreshold = 2

// State is the persisted cooldown record. WarningCount only ever grows.
type State struct {
	ExpiresAt         time.Time `json:"expires_at"`
	Reason            string    `json:"reason"`
	WarningCount      int       `json:"warning_count"`
	AutomationEnabled bool      `json:"automation_enabled"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// StateStore persists State. It is the consistency point shared between
// the automation loop and the periodic scanner.
type StateStore interface {
	LoadCooldown(ctx context.Context) (State, error)
	SaveCooldown(ctx context.Context, st State) error
}

// Status is the answer to "are we cooling down?".
type Status struct {
	Active                bool          `json:"active"`
	Remaining             time.Duration `json:"remaining"`
	Reason                string        `json:"reason,omitempty"`
	ExpiresAt             time.Time     `json:"expires_at,omitempty"`
	WarningCount          int           `json:"warning_count"`
	PermanentlyRestricted bool          `json:"permanently_restricted"`
	AutomationEnabled     bool          `json:"automation_enabled"`
	RestrictionMultiplier float64       `json:"restriction_multiplier"`
}

// Manager reads and writes cooldown state through a StateStore.
type Manager struct {
	mu     sync.Mutex
	store  StateStore
	now    func() time.Time
	logger zerolog.Logger
}

// NewManager creates a Manager backed by store.
func NewManager(store StateStore, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		now:    time.Now,
		logger: logger.With().Str("component", "cooldown").Logger(),
	}
}

// SetClock overrides the wall clock (tests).
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// IsInCooldown reports the current status. An expired record is cleared
// on read; the warning count survives.
func (m *Manager) IsInCooldown(ctx context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.LoadCooldown(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("loading cooldown: %w", err)
	}

	now := m.now()
	if !st.ExpiresAt.IsZero() && !now.Before(st.ExpiresAt) {
		m.logger.Info().
			Time("expired_at", st.ExpiresAt).
			Str("reason", st.Reason).
			Msg("cooldown expired")
		st.ExpiresAt = time.Time{}
		st.Reason = ""
		st.UpdatedAt = now
		if err := m.store.SaveCooldown(ctx, st); err != nil {
			return Status{}, fmt.Errorf("clearing expired cooldown: %w", err)
		}
	}
	return statusOf(st, now), nil
}

// EnableCooldown opens a 48h cooldown from now, disables automation and
// adds one warning.
func (m *Manager) EnableCooldown(ctx context.Context, reason string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.LoadCooldown(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("loading cooldown: %w", err)
	}

	now := m.now()
	st.ExpiresAt = now.Add(Duration)
	st.Reason = reason
	st.WarningCount++
	st.AutomationEnabled = false
	st.UpdatedAt = now

	if err := m.store.SaveCooldown(ctx, st); err != nil {
		return Status{}, fmt.Errorf("saving cooldown: %w", err)
	}

	m.logger.Warn().
		Str("reason", reason).
		Int("warning_count", st.WarningCount).
		Time("expires_at", st.ExpiresAt).
		Bool("permanently_restricted", st.WarningCount >= PermanentRestrictionThreshold).
		Msg("cooldown enabled")

	return statusOf(st, now), nil
}

// SetAutomationEnabled flips the shared automation flag.
func (m *Manager) SetAutomationEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.LoadCooldown(ctx)
	if err != nil {
		return fmt.Errorf("loading cooldown: %w", err)
	}
	if st.AutomationEnabled == enabled {
		return nil
	}
	st.AutomationEnabled = enabled
	st.UpdatedAt = m.now()
	if err := m.store.SaveCooldown(ctx, st); err != nil {
		return fmt.Errorf("saving automation flag: %w", err)
	}
	m.logger.Info().Bool("enabled", enabled).Msg("automation flag changed")
	return nil
}

// RestrictionMultiplier returns the activity scale for the current
// warning count.
func (m *Manager) RestrictionMultiplier(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.store.LoadCooldown(ctx)
	if err != nil {
		return RestrictionMultiplier(PermanentRestrictionThreshold), fmt.Errorf("loading cooldown: %w", err)
	}
	return RestrictionMultiplier(st.WarningCount), nil
}

// RestrictionMultiplier maps warning counts to an activity scale:
// 0 → 1.0, 1 → 0.75, 2+ → 0.5.
func RestrictionMultiplier(warnings int) float64 {
	switch {
	case warnings <= 0:
		return 1.0
	case warnings == 1:
		return 0.75
	default:
		return 0.5
	}
}

func statusOf(st State, now time.Time) Status {
	s := Status{
		WarningCount:          st.WarningCount,
		PermanentlyRestricted: st.WarningCount >= PermanentRestrictionThreshold,
		AutomationEnabled:     st.AutomationEnabled,
		RestrictionMultiplier: RestrictionMultiplier(st.WarningCount),
	}
	if !st.ExpiresAt.IsZero() && now.Before(st.ExpiresAt) {
		s.Active = true
		s.Remaining = st.ExpiresAt.Sub(now)
		s.Reason = st.Reason
		s.ExpiresAt = st.ExpiresAt
	}
	return s
}
