package detector

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Markers is the evolving list of strings that indicate the platform is
// challenging or warning the account. It is data, not code.
type Markers struct {
	Version          string   `yaml:"version"`
	WarningPhrases   []string `yaml:"warning_phrases"`
	ChallengeMarkers []string `yaml:"challenge_markers"`
	CheckpointPaths  []string `yaml:"checkpoint_paths"`
}

// DefaultMarkers is the compiled-in list used when no markers file is
// configured.
func DefaultMarkers() Markers {
	return Markers{
		Version: "builtin",
		WarningPhrases: []string{
			"unusual activity",
			"temporarily restricted",
			"account has been restricted",
			"verify your identity",
			"security verification",
			"too many requests",
			"you've reached the weekly invitation limit",
			"weekly invitation limit",
			"quick security check",
			"let's do a quick security check",
			"we've detected automated",
		},
		ChallengeMarkers: []string{
			"captcha",
			"g-recaptcha",
			"h-captcha",
			"challenge-form",
			"arkose",
			"funcaptcha",
		},
		CheckpointPaths: []string{
			"/checkpoint/",
			"/challenge/",
			"/authwall",
			"/security-verification",
		},
	}
}

// normalized lowercases, trims and dedupes every list.
func (m Markers) normalized() Markers {
	return Markers{
		Version:          m.Version,
		WarningPhrases:   normalizeList(m.WarningPhrases),
		ChallengeMarkers: normalizeList(m.ChallengeMarkers),
		CheckpointPaths:  normalizeList(m.CheckpointPaths),
	}
}

// Validate rejects a marker set that would silently disable a check.
func (m Markers) Validate() error {
	if len(m.WarningPhrases) == 0 {
		return fmt.Errorf("markers: warning_phrases is empty")
	}
	if len(m.ChallengeMarkers) == 0 {
		return fmt.Errorf("markers: challenge_markers is empty")
	}
	if len(m.CheckpointPaths) == 0 {
		return fmt.Errorf("markers: checkpoint_paths is empty")
	}
	return nil
}

func normalizeList(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// LoadMarkers reads a YAML markers file.
func LoadMarkers(path string) (Markers, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Markers{}, fmt.Errorf("read markers: %w", err)
	}
	return ParseMarkers(data)
}

// ParseMarkers decodes and validates YAML marker data.
func ParseMarkers(data []byte) (Markers, error) {
	var m Markers
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Markers{}, fmt.Errorf("parse markers: %w", err)
	}
	m = m.normalized()
	if err := m.Validate(); err != nil {
		return Markers{}, err
	}
	return m, nil
}

// MarkerSource provides the current marker set.
type MarkerSource interface {
	Markers() Markers
}

// StaticMarkers is a fixed marker set.
type StaticMarkers Markers

func (s StaticMarkers) Markers() Markers { return Markers(s).normalized() }

// MarkerSet holds a marker list that can be swapped at runtime.
type MarkerSet struct {
	current atomic.Pointer[Markers]
}

// NewMarkerSet creates a set seeded with m.
func NewMarkerSet(m Markers) *MarkerSet {
	s := &MarkerSet{}
	s.Set(m)
	return s
}

// Markers returns the current list.
func (s *MarkerSet) Markers() Markers {
	if m := s.current.Load(); m != nil {
		return *m
	}
	return DefaultMarkers().normalized()
}

// Set replaces the current list.
func (s *MarkerSet) Set(m Markers) {
	n := m.normalized()
	s.current.Store(&n)
}
