package detector

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a markers file into a MarkerSet whenever it changes.
// An invalid file is logged and the previous list stays in effect.
type Watcher struct {
	path   string
	set    *MarkerSet
	logger zerolog.Logger
	// OnReload is called after a successful reload. Optional.
	OnReload func(Markers)
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, set *MarkerSet, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:   path,
		set:    set,
		logger: logger.With().Str("component", "markers-watcher").Str("path", path).Logger(),
	}
}

// Load reads the file once into the set.
func (w *Watcher) Load() error {
	m, err := LoadMarkers(w.path)
	if err != nil {
		return err
	}
	w.set.Set(m)
	w.logger.Info().
		Str("version", m.Version).
		Int("phrases", len(m.WarningPhrases)).
		Int("challenge_markers", len(m.ChallengeMarkers)).
		Msg("markers loaded")
	if w.OnReload != nil {
		w.OnReload(m)
	}
	return nil
}

// Run watches the file's directory until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	// editors replace files, so watch the directory
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := w.Load(); err != nil {
					w.logger.Error().Err(err).Msg("markers reload failed, keeping previous list")
				}
			})

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("markers watcher error")
		}
	}
}
