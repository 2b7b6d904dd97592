package models

import "time"

// SessionState is the mutable per-account activity record.
type SessionState struct {
	ActionsToday       int        `json:"actions_today"`
	CommentsToday      int        `json:"comments_today"`
	ActionsThisSession int        `json:"actions_this_session"`
	SessionStart       time.Time  `json:"session_start"`
	LastActionAt       time.Time  `json:"last_action_at"`
	Day                string     `json:"day"` // YYYY-MM-DD of the counters above
	RiskLevel          AlertLevel `json:"risk_level"`
	InWarmup           bool       `json:"in_warmup"`
	WarmupDay          int        `json:"warmup_day"`
	AccountAge         AccountAge `json:"account_age"`
	SpeedTier          SpeedTier  `json:"speed_tier"`

	// Adjustments written by the response coordinator.
	DelayMultiplier    float64 `json:"delay_multiplier"`
	RandomizationScale float64 `json:"randomization_scale"`
	BatchSizeFactor    float64 `json:"batch_size_factor"`
	PendingSkips       int     `json:"pending_skips"`
}

// Normalized returns a copy with counters clamped to zero and multipliers
// clamped to their neutral floor.
func (s SessionState) Normalized() SessionState {
	if s.ActionsToday < 0 {
		s.ActionsToday = 0
	}
	if s.CommentsToday < 0 {
		s.CommentsToday = 0
	}
	if s.ActionsThisSession < 0 {
		s.ActionsThisSession = 0
	}
	if s.PendingSkips < 0 {
		s.PendingSkips = 0
	}
	if s.DelayMultiplier < 1 {
		s.DelayMultiplier = 1
	}
	if s.RandomizationScale < 1 {
		s.RandomizationScale = 1
	}
	if s.BatchSizeFactor <= 0 || s.BatchSizeFactor > 1 {
		s.BatchSizeFactor = 1
	}
	if !s.SpeedTier.Valid() {
		s.SpeedTier = SpeedUltraSlow
	}
	if !s.AccountAge.Valid() {
		s.AccountAge = AgeUnder3Months
	}
	s.RiskLevel = s.RiskLevel.Normalize()
	return s
}
