package timing

import (
	"time"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// TierConfig holds the timing parameters of one speed tier.
type TierConfig struct {
	BaseDelay Range

	ReadShort  Range // < 100 words
	ReadMedium Range // < 300 words
	ReadLong   Range

	MicroShort Range
	MicroLong  Range

	MiniBreakEvery    IntRange
	MediumBreakEvery  IntRange
	SessionEndActions int

	MiniBreak       Range
	MediumBreak     Range
	SessionEndBreak Range
}

// MinActionDelay is the hard floor applied to every action delay.
const MinActionDelay = 15 * time.Second

// MaxSessionLength forces a session-end break regardless of action count.
const MaxSessionLength = time.Hour

var (
	miniBreakEvery   = IntRange{Min: 8, Max: 12}
	mediumBreakEvery = IntRange{Min: 25, Max: 30}
	miniBreak        = Range{Min: 2 * time.Minute, Max: 5 * time.Minute}
	mediumBreak      = Range{Min: 10 * time.Minute, Max: 20 * time.Minute}
	sessionEndBreak  = Range{Min: 2 * time.Hour, Max: 4 * time.Hour}
)

// Ultra-slow sessions end at 20 actions, before the first medium break can
// fall due, so that tier only ever takes mini breaks within a session.
var tierTable = map[models.SpeedTier]TierConfig{
	models.SpeedUltraSlow: {
		BaseDelay:         Range{Min: 90 * time.Second, Max: 180 * time.Second},
		ReadShort:         Range{Min: 8 * time.Second, Max: 15 * time.Second},
		ReadMedium:        Range{Min: 15 * time.Second, Max: 30 * time.Second},
		ReadLong:          Range{Min: 30 * time.Second, Max: 60 * time.Second},
		MicroShort:        Range{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
		MicroLong:         Range{Min: 2 * time.Second, Max: 5 * time.Second},
		MiniBreakEvery:    miniBreakEvery,
		MediumBreakEvery:  mediumBreakEvery,
		SessionEndActions: 20,
		MiniBreak:         miniBreak,
		MediumBreak:       mediumBreak,
		SessionEndBreak:   sessionEndBreak,
	},
	models.SpeedSlow: {
		BaseDelay:         Range{Min: 60 * time.Second, Max: 120 * time.Second},
		ReadShort:         Range{Min: 6 * time.Second, Max: 12 * time.Second},
		ReadMedium:        Range{Min: 12 * time.Second, Max: 25 * time.Second},
		ReadLong:          Range{Min: 25 * time.Second, Max: 50 * time.Second},
		MicroShort:        Range{Min: 400 * time.Millisecond, Max: 1200 * time.Millisecond},
		MicroLong:         Range{Min: 1500 * time.Millisecond, Max: 4 * time.Second},
		MiniBreakEvery:    miniBreakEvery,
		MediumBreakEvery:  mediumBreakEvery,
		SessionEndActions: 30,
		MiniBreak:         miniBreak,
		MediumBreak:       mediumBreak,
		SessionEndBreak:   sessionEndBreak,
	},
	models.SpeedMedium: {
		BaseDelay:         Range{Min: 35 * time.Second, Max: 70 * time.Second},
		ReadShort:         Range{Min: 5 * time.Second, Max: 10 * time.Second},
		ReadMedium:        Range{Min: 10 * time.Second, Max: 20 * time.Second},
		ReadLong:          Range{Min: 20 * time.Second, Max: 40 * time.Second},
		MicroShort:        Range{Min: 300 * time.Millisecond, Max: 1 * time.Second},
		MicroLong:         Range{Min: 1 * time.Second, Max: 3 * time.Second},
		MiniBreakEvery:    miniBreakEvery,
		MediumBreakEvery:  mediumBreakEvery,
		SessionEndActions: 40,
		MiniBreak:         miniBreak,
		MediumBreak:       mediumBreak,
		SessionEndBreak:   sessionEndBreak,
	},
	models.SpeedNormal: {
		BaseDelay:         Range{Min: 20 * time.Second, Max: 45 * time.Second},
		ReadShort:         Range{Min: 4 * time.Second, Max: 8 * time.Second},
		ReadMedium:        Range{Min: 8 * time.Second, Max: 15 * time.Second},
		ReadLong:          Range{Min: 15 * time.Second, Max: 30 * time.Second},
		MicroShort:        Range{Min: 200 * time.Millisecond, Max: 800 * time.Millisecond},
		MicroLong:         Range{Min: 800 * time.Millisecond, Max: 2500 * time.Millisecond},
		MiniBreakEvery:    miniBreakEvery,
		MediumBreakEvery:  mediumBreakEvery,
		SessionEndActions: 50,
		MiniBreak:         miniBreak,
		MediumBreak:       mediumBreak,
		SessionEndBreak:   sessionEndBreak,
	},
}

// ConfigFor returns the table row for tier. Unknown tiers get the
// ultra-slow row.
func ConfigFor(tier models.SpeedTier) TierConfig {
	if cfg, ok := tierTable[tier]; ok {
		return cfg
	}
	return tierTable[models.SpeedUltraSlow]
}

// FatigueMultiplier slows delays as the session accumulates actions.
func FatigueMultiplier(actionsThisSession int) float64 {
	switch {
	case actionsThisSession <= 10:
		return 1.0
	case actionsThisSession <= 20:
		return 1.1
	case actionsThisSession <= 30:
		return 1.25
	case actionsThisSession <= 40:
		return 1.4
	default:
		return 1.5
	}
}

// RhythmMultiplier follows a human day: fastest at morning and late
// afternoon peaks, slowest at night.
func RhythmMultiplier(hour int) float64 {
	hour = ((hour % 24) + 24) % 24
	switch {
	case hour < 7:
		return 2.0 // night
	case hour < 12:
		return 1.0 // morning peak
	case hour < 14:
		return 1.3 // lunch
	case hour < 16:
		return 1.2 // afternoon dip
	case hour < 19:
		return 1.0 // late afternoon peak
	default:
		return 1.4 // evening
	}
}
