package models

import (
	"encoding/json"
	"strings"
	"time"
)

// AlertLevel is the ordered risk scale. Higher values are more severe.
type AlertLevel int

const (
	AlertNone     AlertLevel = iota // Baseline: nothing detected
	AlertLow                        // Soft pattern indicators
	AlertMedium                     // Performance or regularity anomalies
	AlertHigh                       // Behavioral failures, likely throttling
	AlertCritical                   // Platform warning or checkpoint visible
)

func (l AlertLevel) String() string {
	switch l {
	case AlertNone:
		return "none"
	case AlertLow:
		return "low"
	case AlertMedium:
		return "medium"
	case AlertHigh:
		return "high"
	case AlertCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Normalize clamps out-of-range values into the closed scale.
func (l AlertLevel) Normalize() AlertLevel {
	if l < AlertNone {
		return AlertNone
	}
	if l > AlertCritical {
		return AlertCritical
	}
	return l
}

// ParseAlertLevel maps a name to a level. Unknown names map to AlertNone.
func ParseAlertLevel(s string) AlertLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return AlertLow
	case "medium":
		return AlertMedium
	case "high":
		return AlertHigh
	case "critical":
		return AlertCritical
	default:
		return AlertNone
	}
}

// MaxAlert returns the most severe of the given levels.
func MaxAlert(levels ...AlertLevel) AlertLevel {
	out := AlertNone
	for _, l := range levels {
		if n := l.Normalize(); n > out {
			out = n
		}
	}
	return out
}

func (l AlertLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

func (l *AlertLevel) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*l = ParseAlertLevel(s)
	return nil
}

// SignalKind classifies a detection signal.
type SignalKind string

const (
	SignalWarning     SignalKind = "warning"
	SignalError       SignalKind = "error"
	SignalPerformance SignalKind = "performance"
	SignalPattern     SignalKind = "pattern"
)

// DetectionSignal is a single risk indicator produced by a detector tier.
type DetectionSignal struct {
	Kind      SignalKind        `json:"kind"`
	Severity  AlertLevel        `json:"severity"`
	Tier      string            `json:"tier"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// RecommendedAction is what the orchestrator should do after a scan.
type RecommendedAction string

const (
	ActionContinue RecommendedAction = "CONTINUE"
	ActionSlowDown RecommendedAction = "SLOW_DOWN"
	ActionPause    RecommendedAction = "PAUSE"
	ActionStop     RecommendedAction = "STOP"
)

// RecommendationFor is the fixed mapping from aggregate level to action.
func RecommendationFor(l AlertLevel) RecommendedAction {
	switch l.Normalize() {
	case AlertCritical:
		return ActionStop
	case AlertHigh:
		return ActionPause
	case AlertMedium, AlertLow:
		return ActionSlowDown
	default:
		return ActionContinue
	}
}
