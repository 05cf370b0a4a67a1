// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package device

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/capsync/internal/log"
)

const DefaultDebounce = 250 * time.Millisecond

// Watcher turns device node creation and removal in DevDir into wake-ups for
// the session manager. Bursts of events within Debounce collapse into one.
type Watcher struct {
	DevDir   string
	Pattern  string
	Debounce time.Duration
	Logger   zerolog.Logger

	wake chan struct{}
}

// NewWatcher returns a watcher on dir for nodes matching pattern.
func NewWatcher(dir, pattern string, logger zerolog.Logger) *Watcher {
	if dir == "" {
		dir = DefaultDevDir
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Watcher{
		DevDir:   dir,
		Pattern:  pattern,
		Debounce: DefaultDebounce,
		Logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// Wake is signalled after a debounced hotplug burst. It never closes.
func (w *Watcher) Wake() <-chan struct{} { return w.wake }

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.DevDir); err != nil {
		return fmt.Errorf("watch %s: %w", w.DevDir, err)
	}
	w.Logger.Info().
		Str(xglog.FieldEvent, "hotplug.watcher_started").
		Str("path", w.DevDir).
		Msg("watching for capture device changes")

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info().Str(xglog.FieldEvent, "hotplug.watcher_stopped").Msg("hotplug watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			w.Logger.Debug().
				Str(xglog.FieldEvent, "hotplug.changed").
				Str(xglog.FieldDevice, event.Name).
				Str("op", event.Op.String()).
				Msg("capture device node changed")
			timer.Reset(debounce)

		case <-timer.C:
			select {
			case w.wake <- struct{}{}:
			default:
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Error().
				Err(err).
				Str(xglog.FieldEvent, "hotplug.watcher_error").
				Msg("hotplug watcher error")
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
		return false
	}
	ok, err := filepath.Match(w.Pattern, filepath.Base(event.Name))
	return err == nil && ok
}
