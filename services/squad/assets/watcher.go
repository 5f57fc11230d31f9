// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package assets

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a rebuild is reported.
const DefaultDebounce = 150 * time.Millisecond

// Watcher invalidates resolver memos when the build output changes.
//
// # Description
//
// Watches the build root recursively. Events are collapsed over a debounce
// window so a bundler writing dozens of files triggers one invalidation.
//
// # Thread Safety
//
// Safe for concurrent use. onChange is called from a single goroutine.
type Watcher struct {
	root     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func()
	logger   *slog.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// NewWatcher creates a watcher over root. onChange runs after each debounced
// batch; debounce <= 0 means DefaultDebounce.
func NewWatcher(root string, debounce time.Duration, onChange func(), logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root:     root,
		watcher:  fw,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// WatchResolver is NewWatcher with Resolver.Invalidate as the callback.
func WatchResolver(r *Resolver, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	cfg := r.Config()
	root := filepath.Join(cfg.RootDir, filepath.FromSlash(cfg.BuildDir))
	return NewWatcher(root, debounce, r.Invalidate, logger)
}

// Start begins watching. Watching ends on Stop or when ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
		return err
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop ends watching and waits for the event goroutine.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("build watcher close failed", slog.String("error", err.Error()))
		}

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time
	pending := false

	fire := func() {
		if pending && w.onChange != nil {
			w.onChange()
		}
		pending = false
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			fire()
			return
		case <-w.done:
			fire()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.logger.Warn("build watcher add failed",
							slog.String("path", event.Name),
							slog.String("error", err.Error()),
						)
					}
				}
			}
			pending = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			w.logger.Debug("build output changed", slog.String("root", w.root))
			fire()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("build watcher error", slog.String("error", err.Error()))
		}
	}
}
