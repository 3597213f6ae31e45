// Copyright 2025 Kadir Pekel
// Copyright 2025 The Searchsocket Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package devwatch implements the `dev` subcommand's file-watch mode:
// recursive fsnotify watching of a content-files/static-output source
// root, debounced so a burst of saves triggers one re-index rather
// than one per file.
//
// The watcher coalesces events via a pending-paths map and a reset
// timer, then invokes a single OnChange callback: the caller (the
// `dev` CLI command) re-runs the whole index pipeline on any change
// rather than indexing one file at a time, since the pipeline's unit
// of work is a page, not a raw source file.
package devwatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config configures the watcher.
type Config struct {
	// BasePath is the directory tree to watch recursively.
	BasePath string
	// DebounceDelay coalesces a burst of events into one trigger.
	// Defaults to 300ms.
	DebounceDelay time.Duration
	// OnChange is invoked (with the paths that changed) after the
	// debounce window closes following at least one relevant event.
	OnChange func(ctx context.Context, changedPaths []string) error
}

// Watcher watches Config.BasePath and calls Config.OnChange on change,
// debounced.
type Watcher struct {
	cfg     Config
	fsw     *fsnotify.Watcher
	mu      sync.Mutex
	running bool
}

// New constructs a Watcher. The underlying fsnotify.Watcher is created
// but watching does not start until Run is called.
func New(cfg Config) (*Watcher, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("devwatch: BasePath is required")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("devwatch: OnChange is required")
	}
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = 300 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("devwatch: create watcher: %w", err)
	}
	return &Watcher{cfg: cfg, fsw: fsw}, nil
}

// Run watches until ctx is cancelled, invoking Config.OnChange on each
// debounced batch of filesystem events. It blocks until ctx.Done() or
// a fatal setup error.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("devwatch: already running")
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		_ = w.fsw.Close()
	}()

	if err := w.addTree(w.cfg.BasePath); err != nil {
		return fmt.Errorf("devwatch: watch %q: %w", w.cfg.BasePath, err)
	}

	pending := make(map[string]bool)
	var pendingMu sync.Mutex
	var timer *time.Timer

	trigger := func() {
		pendingMu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]bool)
		pendingMu.Unlock()
		if len(paths) == 0 {
			return
		}
		if err := w.cfg.OnChange(ctx, paths); err != nil {
			slog.Error("devwatch: reindex after change failed", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			if ev.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(ev.Name); err != nil {
						slog.Warn("devwatch: failed to watch new directory", "path", ev.Name, "error", err)
					}
					continue
				}
			}

			pendingMu.Lock()
			pending[ev.Name] = true
			pendingMu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.cfg.DebounceDelay, trigger)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Error("devwatch: watcher error", "error", err)
		}
	}
}

// addTree adds root and every subdirectory under it to the underlying
// fsnotify watcher (fsnotify does not watch recursively on its own).
func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			slog.Warn("devwatch: failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}
