package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/p-blackswan/engagement-guard/internal/cooldown"
	"github.com/p-blackswan/engagement-guard/internal/models"
)

// LoadCooldown returns the cooldown record. A missing row is the initial
// state: no cooldown, no warnings, automation enabled.
func (s *Store) LoadCooldown(ctx context.Context) (cooldown.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		st        cooldown.State
		expiresAt sql.NullInt64
		updatedAt sql.NullInt64
		enabled   int
	)
	err := s.db.QueryRowContext(ctx, `
	SELECT expires_at, reason, warning_count, automation_enabled, updated_at
	FROM cooldown_state WHERE id = 1
	`).Scan(&expiresAt, &st.Reason, &st.WarningCount, &enabled, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return cooldown.State{AutomationEnabled: true}, nil
	}
	if err != nil {
		return cooldown.State{}, fmt.Errorf("failed to load cooldown state: %w", err)
	}

	st.ExpiresAt = fromMillis(expiresAt)
	st.UpdatedAt = fromMillis(updatedAt)
	st.AutomationEnabled = enabled != 0
	return st, nil
}

// SaveCooldown replaces the cooldown record.
func (s *Store) SaveCooldown(ctx context.Context, st cooldown.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = s.now()
	}
	enabled := 0
	if st.AutomationEnabled {
		enabled = 1
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO cooldown_state (
		id, expires_at, reason, warning_count, automation_enabled, updated_at
	) VALUES (1, ?, ?, ?, ?, ?)
	`, toMillis(st.ExpiresAt), st.Reason, st.WarningCount, enabled, st.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save cooldown state: %w", err)
	}
	return nil
}

// LoadSession returns the persisted session record, or found=false when
// none has been written yet.
func (s *Store) LoadSession(ctx context.Context) (models.SessionState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM session_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return models.SessionState{}, false, nil
	}
	if err != nil {
		return models.SessionState{}, false, fmt.Errorf("failed to load session state: %w", err)
	}

	var st models.SessionState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return models.SessionState{}, false, fmt.Errorf("failed to decode session state: %w", err)
	}
	return st.Normalized(), true, nil
}

// SaveSession replaces the session record.
func (s *Store) SaveSession(ctx context.Context, st models.SessionState) error {
	data, err := json.Marshal(st.Normalized())
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
	INSERT OR REPLACE INTO session_state (id, data, updated_at) VALUES (1, ?, ?)
	`, string(data), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save session state: %w", err)
	}
	return nil
}

// WarmupStart returns the persisted warm-up start. On first use it records
// fallback, so the warm-up clock survives restarts.
func (s *Store) WarmupStart(ctx context.Context, fallback time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO meta(key, value) VALUES ('warmup_start', ?)`,
		strconv.FormatInt(fallback.UnixMilli(), 10)); err != nil {
		return time.Time{}, fmt.Errorf("failed to record warm-up start: %w", err)
	}

	var raw string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'warmup_start'`).Scan(&raw); err != nil {
		return time.Time{}, fmt.Errorf("failed to load warm-up start: %w", err)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt warm-up start %q: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
