package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/engagement-guard/internal/models"
	"github.com/p-blackswan/engagement-guard/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)}
}

func newMemTracker(c *clock) *Tracker {
	return New(nil, Config{
		AccountAge: models.Age6To12Months,
		SpeedTier:  models.SpeedSlow,
		Now:        c.now,
	}, zerolog.Nop())
}

func like(postID string, at time.Time, ok bool) models.ActionOutcome {
	return models.ActionOutcome{Kind: models.KindLike, PostID: postID, Duration: 2 * time.Second, Success: ok, At: at}
}

func TestNew_Defaults(t *testing.T) {
	tr := newMemTracker(newClock())
	st := tr.Snapshot()
	assert.Equal(t, "2026-05-04", st.Day)
	assert.Equal(t, models.Age6To12Months, st.AccountAge)
	assert.Equal(t, models.SpeedSlow, st.SpeedTier)
	assert.Equal(t, 1.0, st.DelayMultiplier)
	assert.Equal(t, 1.0, st.BatchSizeFactor)
}

func TestRecordAction_Counters(t *testing.T) {
	c := newClock()
	tr := newMemTracker(c)
	ctx := context.Background()

	_, err := tr.RecordAction(ctx, like("p1", c.now(), true))
	require.NoError(t, err)
	c.advance(time.Minute)
	_, err = tr.RecordAction(ctx, models.ActionOutcome{Kind: models.KindComment, PostID: "p2", Success: true, At: c.now()})
	require.NoError(t, err)
	c.advance(time.Minute)
	st, err := tr.RecordAction(ctx, like("p3", c.now(), false))
	require.NoError(t, err)

	assert.Equal(t, 2, st.ActionsToday, "failures do not consume quota")
	assert.Equal(t, 1, st.CommentsToday)
	assert.Equal(t, 2, st.ActionsThisSession)
	assert.Equal(t, c.now(), st.LastActionAt)
	assert.Equal(t, []time.Duration{time.Minute, time.Minute}, tr.RecentIntervals(0))

	assert.True(t, tr.HasSeen("p1"))
	assert.False(t, tr.HasSeen("p3"), "failed actions are not marked seen")
	assert.False(t, tr.HasSeen(""))
}

func TestDailyRollover(t *testing.T) {
	c := newClock()
	tr := newMemTracker(c)
	ctx := context.Background()

	_, err := tr.RecordAction(ctx, like("p1", c.now(), true))
	require.NoError(t, err)
	_, err = tr.ApplyAdjustments(ctx, Adjustments{DelayMultiplier: 3, Skips: 2})
	require.NoError(t, err)
	require.NoError(t, tr.SetRiskLevel(ctx, models.AlertHigh))

	c.advance(15 * time.Hour) // 01:00 next day
	st := tr.Snapshot()
	assert.Equal(t, "2026-05-05", st.Day)
	assert.Zero(t, st.ActionsToday)
	assert.Zero(t, st.CommentsToday)
	assert.Equal(t, models.AlertNone, st.RiskLevel)
	assert.Equal(t, 1.0, st.DelayMultiplier)
	assert.Zero(t, st.PendingSkips)
}

func TestRollover_UsesLocation(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC)}
	loc := time.FixedZone("UTC+2", 2*60*60)
	tr := New(nil, Config{Location: loc, Now: c.now}, zerolog.Nop())
	assert.Equal(t, "2026-05-05", tr.Snapshot().Day)
}

func TestStart_ResetsSessionOnly(t *testing.T) {
	c := newClock()
	tr := newMemTracker(c)
	ctx := context.Background()

	_, err := tr.RecordAction(ctx, like("p1", c.now(), true))
	require.NoError(t, err)
	c.advance(time.Hour)

	st, err := tr.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.now(), st.SessionStart)
	assert.Zero(t, st.ActionsThisSession)
	assert.Equal(t, 1, st.ActionsToday)
}

func TestApplyAdjustments_OnlyTighten(t *testing.T) {
	tr := newMemTracker(newClock())
	ctx := context.Background()

	st, err := tr.ApplyAdjustments(ctx, Adjustments{DelayMultiplier: 3, BatchSizeFactor: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 3.0, st.DelayMultiplier)
	assert.Equal(t, 0.5, st.BatchSizeFactor)

	st, err = tr.ApplyAdjustments(ctx, Adjustments{DelayMultiplier: 1.5, RandomizationScale: 2, Skips: 2})
	require.NoError(t, err)
	assert.Equal(t, 3.0, st.DelayMultiplier, "a milder response does not loosen pacing")
	assert.Equal(t, 2.0, st.RandomizationScale)
	assert.Equal(t, 0.5, st.BatchSizeFactor)
	assert.Equal(t, 2, st.PendingSkips)

	require.NoError(t, tr.ResetAdjustments(ctx))
	st = tr.Snapshot()
	assert.Equal(t, 1.0, st.DelayMultiplier)
	assert.Equal(t, 1.0, st.BatchSizeFactor)
}

func TestConsumeSkip(t *testing.T) {
	tr := newMemTracker(newClock())
	ctx := context.Background()
	_, err := tr.ApplyAdjustments(ctx, Adjustments{Skips: 2})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		skip, err := tr.ConsumeSkip(ctx)
		require.NoError(t, err)
		assert.True(t, skip)
	}
	skip, err := tr.ConsumeSkip(ctx)
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestRecentIntervals_Bounded(t *testing.T) {
	c := newClock()
	tr := newMemTracker(c)
	ctx := context.Background()
	for i := 0; i < maxIntervals+5; i++ {
		_, err := tr.RecordAction(ctx, like("", c.now(), true))
		require.NoError(t, err)
		c.advance(time.Duration(i+1) * time.Second)
	}
	all := tr.RecentIntervals(0)
	assert.Len(t, all, maxIntervals)
	last := tr.RecentIntervals(3)
	require.Len(t, last, 3)
	assert.Equal(t, all[len(all)-1], last[2])
}

func TestSeenPosts_LRUAndTTL(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s := newSeenPosts(2, time.Hour)

	s.mark("a", now)
	s.mark("b", now)
	assert.True(t, s.has("a", now)) // no reorder on has; a stays least recent
	s.mark("a", now)                // refresh a
	s.mark("c", now)                // evicts b
	assert.True(t, s.has("a", now))
	assert.False(t, s.has("b", now))
	assert.True(t, s.has("c", now))
	assert.Equal(t, 2, s.len())

	assert.False(t, s.has("a", now.Add(2*time.Hour)), "expired")
	assert.Equal(t, 1, s.len())
}

func TestTracker_PersistsAndRestores(t *testing.T) {
	c := newClock()
	st, err := store.New(filepath.Join(t.TempDir(), "guard.db"), zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	tr := New(st, Config{AccountAge: models.Age1To2Years, SpeedTier: models.SpeedMedium, Now: c.now}, zerolog.Nop())
	require.NoError(t, tr.Load(ctx))
	for i := 0; i < 3; i++ {
		_, err := tr.RecordAction(ctx, like("post-"+string(rune('a'+i)), c.now(), true))
		require.NoError(t, err)
		c.advance(90 * time.Second)
	}
	_, err = tr.ApplyAdjustments(ctx, Adjustments{DelayMultiplier: 1.5})
	require.NoError(t, err)

	restored := New(st, Config{AccountAge: models.Age1To2Years, SpeedTier: models.SpeedNormal, Now: c.now}, zerolog.Nop())
	require.NoError(t, restored.Load(ctx))
	snap := restored.Snapshot()
	assert.Equal(t, 3, snap.ActionsToday)
	assert.Equal(t, 1.5, snap.DelayMultiplier)
	assert.Equal(t, models.SpeedNormal, snap.SpeedTier, "configured tier wins")
	assert.Equal(t, []time.Duration{90 * time.Second, 90 * time.Second}, restored.RecentIntervals(0))
	assert.True(t, restored.HasSeen("post-a"))
}

type brokenStore struct{}

func (brokenStore) LoadSession(context.Context) (models.SessionState, bool, error) {
	return models.SessionState{}, false, errors.New("locked")
}
func (brokenStore) SaveSession(context.Context, models.SessionState) error { return errors.New("locked") }
func (brokenStore) AppendAction(context.Context, models.ActionOutcome) error {
	return errors.New("locked")
}
func (brokenStore) RecentActions(context.Context, time.Time, int) ([]models.ActionOutcome, error) {
	return nil, errors.New("locked")
}

func TestTracker_StoreErrorsSurface(t *testing.T) {
	c := newClock()
	tr := New(brokenStore{}, Config{Now: c.now}, zerolog.Nop())
	ctx := context.Background()

	assert.Error(t, tr.Load(ctx))
	st, err := tr.RecordAction(ctx, like("p1", c.now(), true))
	assert.Error(t, err)
	assert.Equal(t, 1, st.ActionsToday, "in-memory state still advances")
}
