// Package notify delivers guard alerts to humans.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// Severity describes the urgency of an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityUrgent  Severity = "urgent"
)

// Alert is a notification to the operator.
type Alert struct {
	Severity Severity                 `json:"severity"`
	Title    string                   `json:"title"`
	Message  string                   `json:"message"`
	Blocking bool                     `json:"blocking"` // operator must act before automation resumes
	Level    models.AlertLevel        `json:"level"`
	Signals  []models.DetectionSignal `json:"signals,omitempty"`
	At       time.Time                `json:"at"`
}

// Notifier sends alerts.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

// MultiNotifier fans out to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(ns ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: ns}
}

// Notify calls every notifier and joins their errors.
func (m *MultiNotifier) Notify(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier logs alerts.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "notify").Logger()}
}

func (l *LogNotifier) Notify(_ context.Context, a Alert) error {
	ev := l.logger.Info()
	switch a.Severity {
	case SeverityUrgent:
		ev = l.logger.Error()
	case SeverityWarning:
		ev = l.logger.Warn()
	}
	ev.Str("severity", string(a.Severity)).
		Str("level", a.Level.String()).
		Bool("blocking", a.Blocking).
		Int("signals", len(a.Signals)).
		Str("title", a.Title).
		Msg(a.Message)
	return nil
}

// Nop discards alerts.
type Nop struct{}

func (Nop) Notify(context.Context, Alert) error { return nil }

// SeverityFor maps an alert level to a notification severity.
func SeverityFor(l models.AlertLevel) Severity {
	switch l.Normalize() {
	case models.AlertCritical:
		return SeverityUrgent
	case models.AlertHigh, models.AlertMedium:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func severityEmoji(s Severity) string {
	switch s {
	case SeverityUrgent:
		return "🚨"
	case SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
