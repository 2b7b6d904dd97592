package models

import "strings"

// SpeedTier names one of the four timing profiles.
type SpeedTier string

const (
	SpeedUltraSlow SpeedTier = "ultra_slow"
	SpeedSlow      SpeedTier = "slow"
	SpeedMedium    SpeedTier = "medium"
	SpeedNormal    SpeedTier = "normal"
)

// AllSpeedTiers lists tiers from slowest to fastest.
var AllSpeedTiers = []SpeedTier{SpeedUltraSlow, SpeedSlow, SpeedMedium, SpeedNormal}

// ParseSpeedTier accepts "ultra-slow", "ultra_slow", "Ultra Slow" and friends.
// Unknown values fall back to the slowest tier.
func ParseSpeedTier(s string) SpeedTier {
	norm := normalizeName(s)
	for _, t := range AllSpeedTiers {
		if string(t) == norm {
			return t
		}
	}
	return SpeedUltraSlow
}

// Valid reports whether t is one of the four known tiers.
func (t SpeedTier) Valid() bool {
	for _, k := range AllSpeedTiers {
		if k == t {
			return true
		}
	}
	return false
}

// AccountAge is the declared age bracket of the automated account.
type AccountAge string

const (
	AgeUnder3Months AccountAge = "under_3_months"
	Age3To6Months   AccountAge = "3_6_months"
	Age6To12Months  AccountAge = "6_12_months"
	Age1To2Years    AccountAge = "1_2_years"
	AgeOver2Years   AccountAge = "over_2_years"
)

// AllAccountAges lists brackets from youngest to oldest.
var AllAccountAges = []AccountAge{AgeUnder3Months, Age3To6Months, Age6To12Months, Age1To2Years, AgeOver2Years}

// ParseAccountAge maps a name to a bracket. Unknown values map to the
// youngest (strictest) bracket.
func ParseAccountAge(s string) AccountAge {
	norm := normalizeName(s)
	for _, a := range AllAccountAges {
		if string(a) == norm {
			return a
		}
	}
	return AgeUnder3Months
}

// Valid reports whether a is one of the known brackets.
func (a AccountAge) Valid() bool {
	for _, k := range AllAccountAges {
		if k == a {
			return true
		}
	}
	return false
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return s
}
