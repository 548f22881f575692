// Lifeline - Supervised Worker Host for Web Applications
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lifeline

package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// WatchConfig configures a WatchService.
type WatchConfig struct {
	Dir         string
	Debounce    time.Duration
	MinInterval time.Duration
}

// WatchService watches a directory tree and calls trigger once a burst of
// changes has settled for Debounce. Triggers are at most one per
// MinInterval; a trigger that arrives early is delayed, not dropped.
type WatchService struct {
	cfg     WatchConfig
	trigger func(path string)
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewWatchService creates a watcher for cfg.Dir.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewWatchService(cfg WatchConfig, logger zerolog.Logger, trigger func(path string)) *WatchService {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &WatchService{
		cfg:     cfg,
		trigger: trigger,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With().Str("component", "watch").Str("dir", cfg.Dir).Logger(),
	}
}

// Serve implements suture.Service.
func (s *WatchService) Serve(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := s.addTree(w, s.cfg.Dir); err != nil {
		return err
	}
	s.logger.Info().Dur("debounce", s.cfg.Debounce).Msg("Watching for changes")

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var fire <-chan time.Time
	var last string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("watcher event stream closed")
			}
			if !relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				// New directories need their own watch.
				_ = s.addTree(w, ev.Name)
			}
			last = ev.Name
			timer.Reset(s.cfg.Debounce)
			fire = timer.C

		case werr, ok := <-w.Errors:
			if !ok {
				return errors.New("watcher error stream closed")
			}
			s.logger.Warn().Err(werr).Msg("Watcher error")

		case <-fire:
			fire = nil
			res := s.limiter.Reserve()
			if d := res.Delay(); d > 0 {
				res.Cancel()
				s.logger.Debug().Dur("delay", d).Msg("Change burst rate-limited, delaying restart")
				timer.Reset(d)
				fire = timer.C
				continue
			}
			s.logger.Info().Str("path", last).Msg("Change detected")
			s.trigger(last)
		}
	}
}

func (s *WatchService) String() string {
	return "watch"
}

func (s *WatchService) addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

func relevant(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
