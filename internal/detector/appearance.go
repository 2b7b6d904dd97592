package detector

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/engagement-guard/internal/models"
)

// disabledControlsThreshold is the fraction of disabled interactive
// controls above which the page is considered locked down.
const disabledControlsThreshold = 0.5

// AppearanceTier matches what is visible on the page against known
// warning phrases, challenge markers and checkpoint locations. Every match
// is critical.
type AppearanceTier struct {
	markers MarkerSource
	logger  zerolog.Logger
	checks  []subCheck
}

// NewAppearanceTier creates the tier. A nil source uses DefaultMarkers.
func NewAppearanceTier(markers MarkerSource, logger zerolog.Logger) *AppearanceTier {
	if markers == nil {
		markers = StaticMarkers(DefaultMarkers())
	}
	t := &AppearanceTier{markers: markers, logger: logger}
	t.checks = []subCheck{
		{name: "warning_phrases", fn: t.warningPhrases},
		{name: "challenge_markers", fn: t.challengeMarkers},
		{name: "disabled_controls", fn: t.disabledControls},
		{name: "checkpoint_location", fn: t.checkpointLocation},
	}
	return t
}

func (t *AppearanceTier) Name() string { return TierAppearance }

func (t *AppearanceTier) Check(_ context.Context, obs Observation) ([]models.DetectionSignal, error) {
	if obs.Page == nil {
		return nil, nil
	}
	return runSubChecks(TierAppearance, t.checks, obs)
}

func (t *AppearanceTier) warningPhrases(obs Observation) []models.DetectionSignal {
	text := strings.ToLower(obs.Page.Text)
	var out []models.DetectionSignal
	for _, phrase := range t.markers.Markers().WarningPhrases {
		if phrase != "" && strings.Contains(text, phrase) {
			out = append(out, newSignal(models.SignalWarning, models.AlertCritical, "warning_phrase",
				fmt.Sprintf("platform warning text visible: %q", phrase),
				map[string]string{"phrase": phrase, "url": obs.Page.URL}))
		}
	}
	return out
}

func (t *AppearanceTier) challengeMarkers(obs Observation) []models.DetectionSignal {
	haystack := strings.ToLower(obs.Page.Markup + "\n" + obs.Page.Text)
	var out []models.DetectionSignal
	for _, marker := range t.markers.Markers().ChallengeMarkers {
		if marker != "" && strings.Contains(haystack, marker) {
			out = append(out, newSignal(models.SignalWarning, models.AlertCritical, "challenge_marker",
				fmt.Sprintf("verification challenge present: %q", marker),
				map[string]string{"marker": marker, "url": obs.Page.URL}))
		}
	}
	return out
}

func (t *AppearanceTier) disabledControls(obs Observation) []models.DetectionSignal {
	total, disabled := obs.Page.InteractiveTotal, obs.Page.InteractiveDisabled
	if total <= 0 || disabled <= 0 {
		return nil
	}
	if disabled > total {
		disabled = total
	}
	ratio := float64(disabled) / float64(total)
	if ratio <= disabledControlsThreshold {
		return nil
	}
	return []models.DetectionSignal{newSignal(models.SignalWarning, models.AlertCritical, "controls_disabled",
		fmt.Sprintf("%.0f%% of interactive controls are disabled", ratio*100),
		map[string]string{
			"disabled": fmt.Sprint(disabled),
			"total":    fmt.Sprint(total),
		})}
}

func (t *AppearanceTier) checkpointLocation(obs Observation) []models.DetectionSignal {
	if obs.Page.URL == "" {
		return nil
	}
	path := strings.ToLower(obs.Page.URL)
	if u, err := url.Parse(obs.Page.URL); err == nil && u.Path != "" {
		path = strings.ToLower(u.Path)
	}
	for _, frag := range t.markers.Markers().CheckpointPaths {
		if frag != "" && strings.Contains(path, frag) {
			return []models.DetectionSignal{newSignal(models.SignalWarning, models.AlertCritical, "security_checkpoint",
				"page is a security checkpoint",
				map[string]string{"url": obs.Page.URL, "match": frag})}
		}
	}
	return nil
}
