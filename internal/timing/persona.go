package timing

import "time"

// Persona is the behavioral fingerprint sampled once per session.
type Persona struct {
	TypingWPM    float64       `json:"typing_wpm"`
	TypoRate     float64       `json:"typo_rate"`
	PointerSpeed float64       `json:"pointer_speed_px_s"`
	ScrollSpeed  float64       `json:"scroll_speed_px_s"`
	ReactionTime time.Duration `json:"reaction_time"`
	SampledAt    time.Time     `json:"sampled_at"`
}

// Personalize samples a fresh persona and resets the break schedule.
// Call once at session start.
func (m *Model) Personalize() Persona {
	p := Persona{
		TypingWPM:    between(m.strong, 40, 80),
		TypoRate:     between(m.strong, 0.02, 0.05),
		PointerSpeed: between(m.strong, 800, 1500),
		ScrollSpeed:  between(m.strong, 600, 1200),
		ReactionTime: Range{Min: 200 * time.Millisecond, Max: 400 * time.Millisecond}.Draw(m.strong),
		SampledAt:    m.now(),
	}

	m.mu.Lock()
	m.persona = &p
	m.nextMini, m.nextMedium, m.lastCount = 0, 0, 0
	m.mu.Unlock()

	m.logger.Debug().
		Float64("wpm", p.TypingWPM).
		Float64("typo_rate", p.TypoRate).
		Dur("reaction", p.ReactionTime).
		Msg("persona sampled")
	return p
}

// Persona returns the session persona, sampling one if none exists yet.
func (m *Model) Persona() Persona {
	m.mu.Lock()
	p := m.persona
	m.mu.Unlock()
	if p != nil {
		return *p
	}
	return m.Personalize()
}
