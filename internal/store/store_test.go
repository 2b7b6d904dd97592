package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/engagement-guard/internal/cooldown"
	"github.com/p-blackswan/engagement-guard/internal/models"
)

var testNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "guard.db")
	store, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	store.SetClock(func() time.Time { return testNow })
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew_CreatesDB(t *testing.T) {
	store := newTestStore(t)

	tables := []string{
		"session_state", "cooldown_state", "action_history",
		"incidents", "dead_letters", "meta",
	}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	assert.Equal(t, "2", store.schemaVersion())
}

func TestNew_ReopenKeepsState(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "guard.db")
	ctx := context.Background()

	s1, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s1.SaveCooldown(ctx, cooldown.State{WarningCount: 1, Reason: "captcha", AutomationEnabled: false}))
	require.NoError(t, s1.Close())

	s2, err := New(dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	st, err := s2.LoadCooldown(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.WarningCount)
	assert.Equal(t, "captcha", st.Reason)
	assert.False(t, st.AutomationEnabled)
	assert.Equal(t, "2", s2.schemaVersion())
}

func TestCooldown_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	st, err := store.LoadCooldown(ctx)
	require.NoError(t, err)
	assert.True(t, st.AutomationEnabled, "fresh database starts enabled")
	assert.Zero(t, st.WarningCount)
	assert.True(t, st.ExpiresAt.IsZero())

	want := cooldown.State{
		ExpiresAt:    testNow.Add(48 * time.Hour),
		Reason:       "security checkpoint",
		WarningCount: 2,
	}
	require.NoError(t, store.SaveCooldown(ctx, want))

	got, err := store.LoadCooldown(ctx)
	require.NoError(t, err)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, want.Reason, got.Reason)
	assert.Equal(t, 2, got.WarningCount)
	assert.False(t, got.AutomationEnabled)
	assert.True(t, got.UpdatedAt.Equal(testNow))
}

func TestCooldown_ManagerOverStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := cooldown.NewManager(store, zerolog.Nop())
	m.SetClock(func() time.Time { return testNow })

	_, err := m.EnableCooldown(ctx, "captcha")
	require.NoError(t, err)

	// a second manager sharing the store sees the same cooldown
	other := cooldown.NewManager(store, zerolog.Nop())
	other.SetClock(func() time.Time { return testNow.Add(time.Hour) })
	status, err := other.IsInCooldown(ctx)
	require.NoError(t, err)
	assert.True(t, status.Active)
	assert.Equal(t, 1, status.WarningCount)
}

func TestSession_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.LoadSession(ctx)
	require.NoError(t, err)
	assert.False(t, found)

	st := models.SessionState{
		ActionsToday:    12,
		CommentsToday:   2,
		SessionStart:    testNow.Add(-20 * time.Minute),
		Day:             "2026-05-04",
		RiskLevel:       models.AlertMedium,
		AccountAge:      models.Age6To12Months,
		SpeedTier:       models.SpeedSlow,
		DelayMultiplier: 1.5,
		PendingSkips:    2,
	}
	require.NoError(t, store.SaveSession(ctx, st))

	got, found, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 12, got.ActionsToday)
	assert.Equal(t, models.AlertMedium, got.RiskLevel)
	assert.Equal(t, models.SpeedSlow, got.SpeedTier)
	assert.Equal(t, 1.5, got.DelayMultiplier)
	assert.Equal(t, 1.0, got.BatchSizeFactor, "normalized on save")
	assert.True(t, st.SessionStart.Equal(got.SessionStart))
}

func TestWarmupStart_RecordedOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.WarmupStart(ctx, testNow)
	require.NoError(t, err)
	assert.True(t, testNow.Equal(first))

	again, err := store.WarmupStart(ctx, testNow.Add(72*time.Hour))
	require.NoError(t, err)
	assert.True(t, testNow.Equal(again), "later boots keep the first start")
}

func TestActions_AppendAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendAction(ctx, models.ActionOutcome{
			Kind:     models.KindLike,
			PostID:   "p" + string(rune('a'+i)),
			Duration: time.Duration(i+1) * time.Second,
			Success:  i%2 == 0,
			At:       testNow.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, store.AppendAction(ctx, models.ActionOutcome{
		Kind: models.KindComment, Success: true, At: testNow.Add(10 * time.Minute),
	}))

	all, err := store.RecentActions(ctx, testNow.Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "pa", all[0].PostID, "oldest first")
	assert.Equal(t, models.KindComment, all[5].Kind)
	assert.Equal(t, 3*time.Second, all[2].Duration)
	assert.True(t, all[0].Success)
	assert.False(t, all[1].Success)

	last3, err := store.RecentActions(ctx, testNow.Add(-time.Hour), 3)
	require.NoError(t, err)
	require.Len(t, last3, 3)
	assert.Equal(t, "pd", last3[0].PostID)
	assert.Equal(t, models.KindComment, last3[2].Kind)

	n, err := store.CountActionsSince(ctx, models.KindComment, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.CountActionsSince(ctx, "", testNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestIncidents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := &models.Incident{
		Level:     models.AlertHigh,
		Action:    models.ActionPause,
		Reason:    "3 consecutive actions failed",
		CreatedAt: testNow.Add(-time.Hour),
	}
	require.NoError(t, store.SaveIncident(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &models.Incident{
		Level:  models.AlertCritical,
		Action: models.ActionStop,
		Reason: "captcha",
		Signals: []models.DetectionSignal{{
			Kind: models.SignalWarning, Severity: models.AlertCritical, Tier: "appearance", Code: "challenge_marker",
		}},
	}
	require.NoError(t, store.SaveIncident(ctx, second))
	assert.True(t, second.CreatedAt.Equal(testNow))

	list, err := store.ListIncidents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	assert.Equal(t, models.AlertCritical, list[0].Level)
	require.Len(t, list[0].Signals, 1)
	assert.Equal(t, "challenge_marker", list[0].Signals[0].Code)
	assert.Empty(t, list[1].Signals)

	list, err = store.ListIncidents(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeadLetter_CRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	dl := &DeadLetter{
		Target:      "slack",
		Severity:    "urgent",
		Message:     "cooldown started",
		Error:       "timeout",
		NextRetryAt: testNow.Add(-time.Minute),
	}
	require.NoError(t, store.SaveDeadLetter(ctx, dl))
	require.NotEmpty(t, dl.ID)

	future := &DeadLetter{Target: "slack", Severity: "info", Message: "later", Error: "x", NextRetryAt: testNow.Add(time.Hour)}
	require.NoError(t, store.SaveDeadLetter(ctx, future))

	ready, err := store.ListRetryable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, dl.ID, ready[0].ID)
	assert.Equal(t, "urgent", ready[0].Severity)

	require.NoError(t, store.IncrementRetry(ctx, dl.ID, testNow.Add(-time.Second), "still down"))
	ready, err = store.ListRetryable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, 1, ready[0].RetryCount)
	assert.Equal(t, "still down", ready[0].Error)

	require.NoError(t, store.ResolveDeadLetter(ctx, dl.ID))
	ready, err = store.ListRetryable(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, ready)

	assert.Error(t, store.ResolveDeadLetter(ctx, "missing"))
	assert.Error(t, store.IncrementRetry(ctx, "missing", time.Time{}, ""))
}

func TestRetention(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendAction(ctx, models.ActionOutcome{Kind: models.KindLike, At: testNow.Add(-31 * 24 * time.Hour)}))
	require.NoError(t, store.AppendAction(ctx, models.ActionOutcome{Kind: models.KindLike, At: testNow.Add(-29 * 24 * time.Hour)}))
	require.NoError(t, store.SaveIncident(ctx, &models.Incident{Level: models.AlertHigh, Reason: "old", CreatedAt: testNow.Add(-91 * 24 * time.Hour)}))
	require.NoError(t, store.SaveIncident(ctx, &models.Incident{Level: models.AlertHigh, Reason: "recent", CreatedAt: testNow.Add(-24 * time.Hour)}))

	require.NoError(t, store.RunRetention(ctx))

	actions, err := store.RecentActions(ctx, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, actions, 1)

	incidents, err := store.ListIncidents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, "recent", incidents[0].Reason)
}

func TestDBSize(t *testing.T) {
	store := newTestStore(t)
	size, err := store.DBSizeBytes()
	require.NoError(t, err)
	assert.Greater(t, size, int64(0))
}
