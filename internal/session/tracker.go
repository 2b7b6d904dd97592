// Package session tracks per-account activity: daily and per-session
// counters, inter-action intervals, risk adjustments and the posts already
// engaged with. Every mutation is written through to the store.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

const (
	dayLayout = "2006-01-02"

	// intervals kept for regularity analysis
	maxIntervals = 20

	defaultSeenCapacity = 5000
	defaultSeenTTL      = 30 * 24 * time.Hour
)

// Store persists session state and action history.
type Store interface {
	LoadSession(ctx context.Context) (models.SessionState, bool, error)
	SaveSession(ctx context.Context, st models.SessionState) error
	AppendAction(ctx context.Context, o models.ActionOutcome) error
	RecentActions(ctx context.Context, since time.Time, limit int) ([]models.ActionOutcome, error)
}

// Config seeds a fresh session record.
type Config struct {
	AccountAge   models.AccountAge
	SpeedTier    models.SpeedTier
	SeenCapacity int
	SeenTTL      time.Duration
	// Location decides where the calendar day rolls over. Default UTC.
	Location *time.Location
	Now      func() time.Time
}

// Adjustments are risk-driven changes to pacing. Zero fields leave the
// current value alone. Multipliers only ever tighten until the next day.
type Adjustments struct {
	DelayMultiplier    float64
	BatchSizeFactor    float64
	RandomizationScale float64
	Skips              int
}

// Tracker owns the live SessionState.
type Tracker struct {
	mu        sync.Mutex
	st        models.SessionState
	store     Store
	seen      *seenPosts
	intervals []time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

// New creates a tracker. A nil store keeps state in memory only.
func New(store Store, cfg Config, logger zerolog.Logger) *Tracker {
	if cfg.SeenCapacity <= 0 {
		cfg.SeenCapacity = defaultSeenCapacity
	}
	if cfg.SeenTTL <= 0 {
		cfg.SeenTTL = defaultSeenTTL
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	t := &Tracker{
		store:  store,
		seen:   newSeenPosts(cfg.SeenCapacity, cfg.SeenTTL),
		loc:    cfg.Location,
		now:    cfg.Now,
		logger: logger.With().Str("component", "session").Logger(),
	}
	t.st = models.SessionState{
		AccountAge: cfg.AccountAge,
		SpeedTier:  cfg.SpeedTier,
		Day:        t.day(t.now()),
	}.Normalized()
	return t
}

// Load restores persisted state and the recent interval history. The
// configured account age and speed tier override what was stored.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	st, found, err := t.store.LoadSession(ctx)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if found {
		st.AccountAge = t.st.AccountAge
		st.SpeedTier = t.st.SpeedTier
		t.st = st.Normalized()
	}
	t.rolloverLocked(t.now())

	now := t.now()
	recent, err := t.store.RecentActions(ctx, now.Add(-24*time.Hour), maxIntervals+1)
	if err != nil {
		return fmt.Errorf("load recent actions: %w", err)
	}
	t.intervals = t.intervals[:0]
	for i, o := range recent {
		t.seen.mark(o.PostID, o.At)
		if i > 0 {
			t.intervals = append(t.intervals, o.At.Sub(recent[i-1].At))
		}
	}

	t.logger.Info().
		Bool("restored", found).
		Int("actions_today", t.st.ActionsToday).
		Int("intervals", len(t.intervals)).
		Msg("session loaded")
	return t.saveLocked(ctx)
}

// Snapshot returns a copy of the current state, rolled over to today.
func (t *Tracker) Snapshot() models.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolloverLocked(t.now())
	return t.st
}

// Start begins a new session.
func (t *Tracker) Start(ctx context.Context) (models.SessionState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.rolloverLocked(now)
	t.st.SessionStart = now
	t.st.ActionsThisSession = 0
	t.logger.Info().Time("session_start", now).Msg("session started")
	return t.st, t.saveLocked(ctx)
}

// RecordAction counts an attempted action. Only successful actions count
// toward quotas; every attempt contributes an interval.
func (t *Tracker) RecordAction(ctx context.Context, o models.ActionOutcome) (models.SessionState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if o.At.IsZero() {
		o.At = t.now()
	}
	t.rolloverLocked(o.At)

	if !t.st.LastActionAt.IsZero() && o.At.After(t.st.LastActionAt) {
		t.intervals = append(t.intervals, o.At.Sub(t.st.LastActionAt))
		if len(t.intervals) > maxIntervals {
			t.intervals = t.intervals[len(t.intervals)-maxIntervals:]
		}
	}
	t.st.LastActionAt = o.At
	if t.st.SessionStart.IsZero() {
		t.st.SessionStart = o.At
	}

	if o.Success {
		t.st.ActionsToday++
		t.st.ActionsThisSession++
		if o.Kind == models.KindComment {
			t.st.CommentsToday++
		}
		t.seen.mark(o.PostID, o.At)
	}

	if t.store != nil {
		if err := t.store.AppendAction(ctx, o); err != nil {
			return t.st, fmt.Errorf("append action: %w", err)
		}
	}
	return t.st, t.saveLocked(ctx)
}

// SetRiskLevel records the latest aggregate level.
func (t *Tracker) SetRiskLevel(ctx context.Context, level models.AlertLevel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.st.RiskLevel = level.Normalize()
	return t.saveLocked(ctx)
}

// SetWarmup records the warm-up phase the policy computed.
func (t *Tracker) SetWarmup(ctx context.Context, inWarmup bool, day int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.InWarmup == inWarmup && t.st.WarmupDay == day {
		return nil
	}
	t.st.InWarmup = inWarmup
	t.st.WarmupDay = day
	return t.saveLocked(ctx)
}

// ApplyAdjustments tightens pacing. Delay and randomization only grow, the
// batch factor only shrinks, and pending skips are raised to at least
// a.Skips.
func (t *Tracker) ApplyAdjustments(ctx context.Context, a Adjustments) (models.SessionState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if a.DelayMultiplier > t.st.DelayMultiplier {
		t.st.DelayMultiplier = a.DelayMultiplier
	}
	if a.RandomizationScale > t.st.RandomizationScale {
		t.st.RandomizationScale = a.RandomizationScale
	}
	if a.BatchSizeFactor > 0 && a.BatchSizeFactor < t.st.BatchSizeFactor {
		t.st.BatchSizeFactor = a.BatchSizeFactor
	}
	if a.Skips > t.st.PendingSkips {
		t.st.PendingSkips = a.Skips
	}
	t.st = t.st.Normalized()
	return t.st, t.saveLocked(ctx)
}

// ResetAdjustments restores neutral pacing.
func (t *Tracker) ResetAdjustments(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearAdjustmentsLocked()
	return t.saveLocked(ctx)
}

// ConsumeSkip uses up one pending skip. It reports whether the current
// candidate must be skipped.
func (t *Tracker) ConsumeSkip(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st.PendingSkips <= 0 {
		return false, nil
	}
	t.st.PendingSkips--
	return true, t.saveLocked(ctx)
}

// HasSeen reports whether the post was engaged with recently.
func (t *Tracker) HasSeen(postID string) bool {
	if postID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seen.has(postID, t.now())
}

// RecentIntervals returns up to n of the most recent intervals, oldest
// first. n <= 0 returns all retained intervals.
func (t *Tracker) RecentIntervals(n int) []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	src := t.intervals
	if n > 0 && len(src) > n {
		src = src[len(src)-n:]
	}
	out := make([]time.Duration, len(src))
	copy(out, src)
	return out
}

func (t *Tracker) day(ts time.Time) string {
	return ts.In(t.loc).Format(dayLayout)
}

// rolloverLocked resets daily counters and decays adjustments when the
// calendar day changes.
func (t *Tracker) rolloverLocked(now time.Time) {
	today := t.day(now)
	if t.st.Day == today {
		return
	}
	if t.st.Day != "" && t.st.Day > today {
		// clock went backwards; keep counting against the later day
		return
	}
	t.logger.Info().
		Str("from", t.st.Day).
		Str("to", today).
		Int("actions", t.st.ActionsToday).
		Msg("daily rollover")
	t.st.Day = today
	t.st.ActionsToday = 0
	t.st.CommentsToday = 0
	t.st.RiskLevel = models.AlertNone
	t.clearAdjustmentsLocked()
}

func (t *Tracker) clearAdjustmentsLocked() {
	t.st.DelayMultiplier = 1
	t.st.RandomizationScale = 1
	t.st.BatchSizeFactor = 1
	t.st.PendingSkips = 0
}

func (t *Tracker) saveLocked(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	if err := t.store.SaveSession(ctx, t.st); err != nil {
		t.logger.Error().Err(err).Msg("failed to persist session state")
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
