// Package timing produces human-plausible delays, reading times, breaks,
// typing traces and pointer paths.
//
// A Model is parameterized by a speed tier and a per-session persona. Draws
// that an observer could correlate over time come from the strong source;
// cosmetic jitter comes from the fast source.
package timing

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// Options configures a Model. Zero values get production defaults.
type Options struct {
	Tier   models.SpeedTier
	Strong Source
	Fast   Source
	Now    func() time.Time
}

// Model is the timing engine for one automation session.
type Model struct {
	mu     sync.Mutex
	tier   models.SpeedTier
	cfg    TierConfig
	strong Source
	fast   Source
	now    func() time.Time
	logger zerolog.Logger

	persona *Persona

	// break schedule, in actions-this-session
	nextMini   int
	nextMedium int
	lastCount  int
}

// New creates a Model.
func New(opts Options, logger zerolog.Logger) *Model {
	if opts.Strong == nil {
		opts.Strong = StrongSource{}
	}
	if opts.Fast == nil {
		opts.Fast = NewFastSource()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	tier := opts.Tier
	if !tier.Valid() {
		tier = models.SpeedUltraSlow
	}
	return &Model{
		tier:   tier,
		cfg:    ConfigFor(tier),
		strong: opts.Strong,
		fast:   opts.Fast,
		now:    opts.Now,
		logger: logger.With().Str("component", "timing").Logger(),
	}
}

// Tier returns the active speed tier.
func (m *Model) Tier() models.SpeedTier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tier
}

// SetTier switches the speed tier. The persona is kept.
func (m *Model) SetTier(tier models.SpeedTier) {
	if !tier.Valid() {
		tier = models.SpeedUltraSlow
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tier = tier
	m.cfg = ConfigFor(tier)
}

// ActionDelay returns the wait before the next action.
func (m *Model) ActionDelay(state models.SessionState) time.Duration {
	st := state.Normalized()

	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	base := float64(cfg.BaseDelay.Draw(m.strong))

	jitterMag := 0.30 * st.RandomizationScale
	if jitterMag > 0.9 {
		jitterMag = 0.9
	}
	jitter := base * jitterMag * (2*m.fast.Float64() - 1)

	d := (base + jitter) *
		FatigueMultiplier(st.ActionsThisSession) *
		RhythmMultiplier(m.now().Hour()) *
		st.DelayMultiplier

	d += (2*m.strong.Float64() - 1) * float64(2*time.Second)

	if d < float64(MinActionDelay) {
		d = float64(MinActionDelay)
	}
	return time.Duration(d)
}

// ReadingTime estimates how long a human dwells on post before acting.
func (m *Model) ReadingTime(post models.Post) time.Duration {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	words := post.WordCount
	if words <= 0 && post.Text != "" {
		words = len(strings.Fields(post.Text))
	}

	var d time.Duration
	switch {
	case words < 100:
		d = cfg.ReadShort.Draw(m.fast)
	case words < 300:
		d = cfg.ReadMedium.Draw(m.fast)
	default:
		d = cfg.ReadLong.Draw(m.fast)
	}
	if post.HasImage {
		d += imageExtra.Draw(m.fast)
	}
	if post.HasVideo {
		d += videoExtra.Draw(m.fast)
	}
	if post.CommentCount > 10 {
		d += commentsExtra.Draw(m.fast)
	}
	if chance(m.fast, rereadProbability) {
		d += rereadExtra.Draw(m.fast)
	}
	return d
}

var (
	imageExtra    = Range{Min: 2 * time.Second, Max: 5 * time.Second}
	videoExtra    = Range{Min: 10 * time.Second, Max: 25 * time.Second}
	commentsExtra = Range{Min: 3 * time.Second, Max: 8 * time.Second}
	rereadExtra   = Range{Min: 3 * time.Second, Max: 10 * time.Second}
)

const rereadProbability = 0.15

// MicroPauseKind selects one of the two micro-pause ranges.
type MicroPauseKind string

const (
	MicroShort MicroPauseKind = "short"
	MicroLong  MicroPauseKind = "long"
)

// MicroPause returns a short hesitation between sub-steps of an action.
func (m *Model) MicroPause(kind MicroPauseKind) time.Duration {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()
	if kind == MicroLong {
		return cfg.MicroLong.Draw(m.fast)
	}
	return cfg.MicroShort.Draw(m.fast)
}
