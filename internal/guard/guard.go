// Package guard threads the timing model, warm-up policy, cooldown manager,
// detector, session tracker and response coordinator into the single object
// the daemon and its API drive.
package guard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/cooldown"
	"github.com/p-blackswan/engagement-guard/internal/detector"
	gerrors "github.com/p-blackswan/engagement-guard/internal/errors"
	"github.com/p-blackswan/engagement-guard/internal/metrics"
	"github.com/p-blackswan/engagement-guard/internal/models"
	"github.com/p-blackswan/engagement-guard/internal/response"
	"github.com/p-blackswan/engagement-guard/internal/session"
	"github.com/p-blackswan/engagement-guard/internal/timing"
	"github.com/p-blackswan/engagement-guard/internal/warmup"
)

// DefaultSnapshotMaxAge bounds how long a page snapshot is replayed by
// scans that do not supply one. It is twice the default scan interval.
const DefaultSnapshotMaxAge = time.Minute

// Components are the collaborators a Guard is built from. Metrics, Now and
// SnapshotMaxAge are optional.
type Components struct {
	Timing   *timing.Model
	Warmup   *warmup.Policy
	Cooldown *cooldown.Manager
	Detector *detector.Detector
	Session  *session.Tracker
	Response *response.Coordinator
	Metrics  *metrics.Metrics
	Now      func() time.Time

	// SnapshotMaxAge is how old the last page snapshot may be and still be
	// rescanned by a scan without one.
	SnapshotMaxAge time.Duration
}

// ActionRequest asks whether one action may be performed.
type ActionRequest struct {
	Kind             models.ActionKind `json:"kind"`
	PostID           string            `json:"post_id,omitempty"`
	ConnectionDegree int               `json:"connection_degree"`
}

// Decision is the verdict on an ActionRequest.
type Decision struct {
	Allowed          bool          `json:"allowed"`
	Reason           string        `json:"reason,omitempty"`
	RequiresApproval bool          `json:"requires_approval"`
	RetryAfter       time.Duration `json:"retry_after,omitempty"`
	BatchSizeFactor  float64       `json:"batch_size_factor"`
	Limits           warmup.Config `json:"limits"`
}

// ScanReport is the outcome of one scan and the response it triggered.
type ScanReport struct {
	Result    detector.Result    `json:"result"`
	Directive response.Directive `json:"directive"`
	// Repeated is set when the findings match the previous scan, or when a
	// critical finding arrives while a cooldown is already open. The
	// response was planned but not executed again.
	Repeated bool `json:"repeated"`
}

// Status is a point-in-time view of the guard.
type Status struct {
	Session             models.SessionState `json:"session"`
	Cooldown            cooldown.Status     `json:"cooldown"`
	Warmup              warmup.Phase        `json:"warmup"`
	SpeedTier           models.SpeedTier    `json:"speed_tier"`
	ForcedBreakUntil    time.Time           `json:"forced_break_until,omitempty"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	LastScan            *ScanReport         `json:"last_scan,omitempty"`
}

// SessionInfo is returned when a session starts.
type SessionInfo struct {
	State   models.SessionState `json:"state"`
	Persona timing.Persona      `json:"persona"`
}

// Guard is safe for concurrent use. Mutations are serialized so the
// periodic scanner and API requests never interleave half-applied state.
type Guard struct {
	mu             sync.Mutex
	c              Components
	now            func() time.Time
	snapshotMaxAge time.Duration

	lastSnapshot     *models.PageSnapshot
	lastReport       *ScanReport
	lastFingerprint  string
	forcedBreakUntil time.Time

	logger zerolog.Logger
}

// New creates a Guard.
func New(c Components, logger zerolog.Logger) *Guard {
	now := c.Now
	if now == nil {
		now = time.Now
	}
	maxAge := c.SnapshotMaxAge
	if maxAge <= 0 {
		maxAge = DefaultSnapshotMaxAge
	}
	return &Guard{
		c:              c,
		now:            now,
		snapshotMaxAge: maxAge,
		logger:         logger.With().Str("component", "guard").Logger(),
	}
}

// CheckAction evaluates req against, in order: the cooldown, the automation
// flag, any forced break, the warm-up envelope, the seen-post set and the
// pending skips. A denied decision comes with a *errors.DenialError. Storage
// failures deny.
func (g *Guard) CheckAction(ctx context.Context, req ActionRequest) (Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	kind, ok := models.ParseActionKind(string(req.Kind))
	if !ok {
		return g.deny("unknown", Decision{}, gerrors.ErrInvalidInput, fmt.Sprintf("unknown action kind %q", req.Kind))
	}

	cs, err := g.c.Cooldown.IsInCooldown(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("cooldown state unavailable, denying")
		return g.deny(kind, Decision{}, gerrors.ErrStorage, "cooldown state unavailable")
	}
	g.observeCooldown(cs)
	if cs.Active {
		d := Decision{RetryAfter: cs.Remaining}
		return g.deny(kind, d, gerrors.ErrCooldownActive, fmt.Sprintf("cooldown active for %s: %s", cs.Remaining.Round(time.Minute), cs.Reason))
	}
	if !cs.AutomationEnabled {
		return g.deny(kind, Decision{}, gerrors.ErrAutomationPaused, "automation paused pending manual resume")
	}
	now := g.now()
	if now.Before(g.forcedBreakUntil) {
		remaining := g.forcedBreakUntil.Sub(now)
		return g.deny(kind, Decision{RetryAfter: remaining}, gerrors.ErrOnBreak, fmt.Sprintf("forced break for another %s", remaining.Round(time.Second)))
	}

	st := g.c.Session.Snapshot()
	phase := g.c.Warmup.Phase()
	if err := g.c.Session.SetWarmup(ctx, phase.InWarmup, phase.Day); err != nil {
		g.logger.Warn().Err(err).Msg("failed to record warm-up phase")
	}
	limits := phase.Config.Scale(cs.RestrictionMultiplier)
	d := Decision{
		RequiresApproval: limits.RequiresApproval,
		BatchSizeFactor:  st.BatchSizeFactor,
		Limits:           limits,
	}
	verdict := warmup.CanPerformAction(limits, kind, st.ActionsToday, st.CommentsToday, req.ConnectionDegree, g.c.Timing.Tier())
	if !verdict.Allowed {
		return g.deny(kind, d, gerrors.ErrLimitReached, verdict.Reason)
	}

	if g.c.Session.HasSeen(req.PostID) {
		return g.deny(kind, d, gerrors.ErrAlreadyEngaged, fmt.Sprintf("post %s already engaged", req.PostID))
	}

	skip, err := g.c.Session.ConsumeSkip(ctx)
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to persist skip, denying")
		return g.deny(kind, d, gerrors.ErrStorage, "session state unavailable")
	}
	if skip {
		return g.deny(kind, d, gerrors.ErrSkipped, "skipping candidate to slow down")
	}

	d.Allowed = true
	g.recordDecision(kind, true)
	return d, nil
}

func (g *Guard) deny(kind models.ActionKind, d Decision, sentinel error, reason string) (Decision, error) {
	d.Allowed = false
	d.Reason = reason
	g.recordDecision(kind, false)
	g.logger.Debug().Str("kind", string(kind)).Str("reason", reason).Msg("action denied")
	return d, gerrors.Deny(sentinel, reason)
}

func (g *Guard) recordDecision(kind models.ActionKind, allowed bool) {
	if g.c.Metrics != nil {
		g.c.Metrics.RecordDecision(string(kind), allowed)
	}
}

// NextDelay returns the wait before the next action.
func (g *Guard) NextDelay() time.Duration {
	d := g.c.Timing.ActionDelay(g.c.Session.Snapshot())
	if g.c.Metrics != nil {
		g.c.Metrics.ObserveDelay(d.Seconds())
	}
	return d
}

// ReadingTime returns the dwell time for post.
func (g *Guard) ReadingTime(post models.Post) time.Duration {
	return g.c.Timing.ReadingTime(post)
}

// Break returns the break to take now, or nil. A forced break from a risk
// response takes priority over the regular schedule.
func (g *Guard) Break() *timing.Break {
	g.mu.Lock()
	until := g.forcedBreakUntil
	g.mu.Unlock()

	if now := g.now(); now.Before(until) {
		return &timing.Break{
			Kind:     timing.BreakForced,
			Duration: until.Sub(now),
			Reason:   "risk response",
		}
	}
	return g.c.Timing.ShouldTakeBreak(g.c.Session.Snapshot())
}

// Typing returns a keystroke trace for text.
func (g *Guard) Typing(text string) []timing.TypingStep {
	return g.c.Timing.SimulateTyping(text)
}

// Cursor returns a pointer path and how long to take traversing it.
func (g *Guard) Cursor(start, end timing.Point, steps int) ([]timing.Point, time.Duration) {
	return g.c.Timing.CursorPath(start, end, steps), g.c.Timing.MoveDuration(start, end)
}

// MicroPause returns a short hesitation.
func (g *Guard) MicroPause(kind timing.MicroPauseKind) time.Duration {
	return g.c.Timing.MicroPause(kind)
}

// StartSession begins a session and samples a fresh persona.
func (g *Guard) StartSession(ctx context.Context) (SessionInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, err := g.c.Session.Start(ctx)
	if err != nil {
		return SessionInfo{State: st}, fmt.Errorf("%w: %v", gerrors.ErrStorage, err)
	}
	return SessionInfo{State: st, Persona: g.c.Timing.Personalize()}, nil
}

// ReportOutcome records an executed action and runs an inline scan over
// the most recent page snapshot. A storage failure is returned alongside
// the scan, which still runs.
func (g *Guard) ReportOutcome(ctx context.Context, o models.ActionOutcome) (ScanReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if o.At.IsZero() {
		o.At = g.now()
	}
	var recErr error
	if _, err := g.c.Session.RecordAction(ctx, o); err != nil {
		g.logger.Error().Err(err).Str("kind", string(o.Kind)).Msg("failed to record action")
		recErr = fmt.Errorf("%w: %v", gerrors.ErrStorage, err)
	}
	g.c.Detector.RecordOutcome(o)
	return g.scanLocked(ctx, nil), recErr
}

// Scan runs the detector and the response for the resulting level. A nil
// snapshot reuses the most recent one while it is younger than
// SnapshotMaxAge.
func (g *Guard) Scan(ctx context.Context, snap *models.PageSnapshot) ScanReport {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scanLocked(ctx, snap)
}

func (g *Guard) scanLocked(ctx context.Context, snap *models.PageSnapshot) ScanReport {
	if snap != nil {
		cp := *snap
		if cp.CapturedAt.IsZero() {
			cp.CapturedAt = g.now()
		}
		g.lastSnapshot = &cp
	} else if g.lastSnapshot != nil && g.now().Sub(g.lastSnapshot.CapturedAt) > g.snapshotMaxAge {
		g.lastSnapshot = nil
	}

	st := g.c.Session.Snapshot()
	mult, err := g.c.Cooldown.RestrictionMultiplier(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("restriction multiplier unavailable, assuming strictest")
	}
	limits := g.c.Warmup.Config().Scale(mult)

	res := g.c.Detector.Scan(ctx, detector.Observation{
		Page:         g.lastSnapshot,
		ActionsToday: st.ActionsToday,
		DailyCap:     limits.MaxActionsPerDay,
		SessionStart: st.SessionStart,
		Intervals:    g.c.Session.RecentIntervals(0),
		Now:          g.now(),
	})
	g.observeScan(res)

	report := ScanReport{Result: res}
	fp := fingerprint(res)
	switch {
	case res.Level == models.AlertNone:
		g.lastFingerprint = ""
		report.Directive = response.Plan(res.Level, res.Signals)
	case fp == g.lastFingerprint:
		report.Repeated = true
		report.Directive = response.Plan(res.Level, res.Signals)
	case res.Level == models.AlertCritical && g.cooldownActiveLocked(ctx):
		// an open cooldown already covers it; another would count a second warning
		g.lastFingerprint = fp
		report.Repeated = true
		report.Directive = response.Plan(res.Level, res.Signals)
	default:
		g.lastFingerprint = fp
		report.Directive = g.c.Response.Handle(ctx, res.Level, res.Signals)
		if report.Directive.CooldownOpened {
			g.lastSnapshot = nil
		}
		if b := report.Directive.ForcedBreak; b > 0 {
			if until := g.now().Add(b); until.After(g.forcedBreakUntil) {
				g.forcedBreakUntil = until
			}
		}
	}

	if err := g.c.Session.SetRiskLevel(ctx, res.Level); err != nil {
		g.logger.Warn().Err(err).Msg("failed to record risk level")
	}
	if !report.Repeated && res.Level >= models.AlertHigh {
		if cs, err := g.c.Cooldown.IsInCooldown(ctx); err == nil {
			g.observeCooldown(cs)
		}
	}

	g.lastReport = &report
	return report
}

func (g *Guard) cooldownActiveLocked(ctx context.Context) bool {
	cs, err := g.c.Cooldown.IsInCooldown(ctx)
	return err == nil && cs.Active
}

// fingerprint identifies a finding so an unchanged page or streak is not
// responded to on every tick.
func fingerprint(res detector.Result) string {
	codes := make([]string, 0, len(res.Signals))
	for _, s := range res.Signals {
		codes = append(codes, s.Tier+"/"+s.Code)
	}
	sort.Strings(codes)
	return res.Level.String() + "|" + strings.Join(codes, ",")
}

// Status reports the current state of every component.
func (g *Guard) Status(ctx context.Context) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	cs, err := g.c.Cooldown.IsInCooldown(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %v", gerrors.ErrStorage, err)
	}
	g.observeCooldown(cs)
	s := Status{
		Session:             g.c.Session.Snapshot(),
		Cooldown:            cs,
		Warmup:              g.c.Warmup.Phase(),
		SpeedTier:           g.c.Timing.Tier(),
		ConsecutiveFailures: g.c.Detector.ConsecutiveFailures(),
		LastScan:            g.lastReport,
	}
	s.Warmup.Config = s.Warmup.Config.Scale(cs.RestrictionMultiplier)
	if g.now().Before(g.forcedBreakUntil) {
		s.ForcedBreakUntil = g.forcedBreakUntil
	}
	return s, nil
}

// CooldownStatus reports the cooldown alone.
func (g *Guard) CooldownStatus(ctx context.Context) (cooldown.Status, error) {
	cs, err := g.c.Cooldown.IsInCooldown(ctx)
	if err != nil {
		return cs, fmt.Errorf("%w: %v", gerrors.ErrStorage, err)
	}
	g.observeCooldown(cs)
	return cs, nil
}

// EnableCooldown opens a cooldown on operator request.
func (g *Guard) EnableCooldown(ctx context.Context, reason string) (cooldown.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if strings.TrimSpace(reason) == "" {
		reason = "manual"
	}
	cs, err := g.c.Cooldown.EnableCooldown(ctx, reason)
	if err != nil {
		return cs, fmt.Errorf("%w: %v", gerrors.ErrStorage, err)
	}
	g.observeCooldown(cs)
	g.logger.Warn().Str("reason", reason).Int("warnings", cs.WarningCount).Msg("cooldown enabled by operator")
	return cs, nil
}

// ResumeAutomation re-enables automation after a pause. It clears pacing
// adjustments, any forced break, the outcome history behind behavioral
// signals and the last page snapshot. It is refused while a cooldown runs.
func (g *Guard) ResumeAutomation(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cs, err := g.c.Cooldown.IsInCooldown(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", gerrors.ErrStorage, err)
	}
	if cs.Active {
		return gerrors.Deny(gerrors.ErrCooldownActive, fmt.Sprintf("cooldown ends in %s", cs.Remaining.Round(time.Minute)))
	}
	if err := g.c.Cooldown.SetAutomationEnabled(ctx, true); err != nil {
		return fmt.Errorf("%w: %v", gerrors.ErrStorage, err)
	}
	if err := g.c.Session.ResetAdjustments(ctx); err != nil {
		return fmt.Errorf("%w: %v", gerrors.ErrStorage, err)
	}
	g.c.Detector.Reset()
	g.forcedBreakUntil = time.Time{}
	g.lastFingerprint = ""
	g.lastSnapshot = nil
	g.logger.Info().Msg("automation resumed")
	return nil
}

func (g *Guard) observeScan(res detector.Result) {
	if g.c.Metrics == nil {
		return
	}
	for _, s := range res.Signals {
		g.c.Metrics.RecordSignal(s.Tier, s.Severity.String())
	}
	g.c.Metrics.SetAlertLevel(int(res.Level))
}

func (g *Guard) observeCooldown(cs cooldown.Status) {
	if g.c.Metrics != nil {
		g.c.Metrics.SetCooldown(cs.Active, cs.WarningCount)
	}
}
