// SPDX-FileCopyrightText: Copyright 2026 forcedev authors
// SPDX-License-Identifier: Apache-2.0

// Package watcher observes the Salesforce CLI configuration file and
// reports default-org changes, so a user flipping orgs with
// `sf config set target-org` retargets the running server without a
// restart.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"

	"github.com/forcedev/sfmcp/pkg/logger"
)

// DebounceWindow is how long writes must be quiet before the config file
// is re-read. CLI writes arrive in bursts; only the settled value counts.
const DebounceWindow = 5 * time.Second

// OrgChanged reports one observed change of the default target org.
type OrgChanged struct {
	Old string
	New string
}

// Watcher debounce-watches <dir>/.sf/config.json for target-org changes.
// Start and Stop are idempotent.
type Watcher struct {
	configPath string
	debounce   time.Duration
	events     chan OrgChanged

	mu         sync.Mutex
	started    bool
	fsw        *fsnotify.Watcher
	stop       chan struct{}
	lastTarget string
}

// New creates a watcher for the CLI config under the given working
// directory.
func New(workingDir string) *Watcher {
	return &Watcher{
		configPath: filepath.Join(workingDir, ".sf", "config.json"),
		debounce:   DebounceWindow,
		events:     make(chan OrgChanged, 1),
	}
}

// Events is the channel org changes are delivered on. Bursts coalesce:
// an undelivered event is replaced by the newer one.
func (w *Watcher) Events() <-chan OrgChanged {
	return w.events
}

// Start begins watching. A second Start while running is a no-op.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: editors and the CLI replace
	// config.json atomically, which would orphan a file watch.
	dir := filepath.Dir(w.configPath)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return err
	}

	if target, ok := w.readTarget(); ok {
		w.lastTarget = target
	}
	w.fsw = fsw
	w.stop = make(chan struct{})
	w.started = true

	go w.loop(fsw, w.stop)
	logger.Debugw("org watcher started", "path", w.configPath, "target-org", w.lastTarget)
	return nil
}

// Stop halts watching and removes the filesystem listener. A second Stop
// is a no-op. Pending undelivered events stay readable.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	close(w.stop)
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
}

func (w *Watcher) loop(fsw *fsnotify.Watcher, stop chan struct{}) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// Restart the quiet-period timer on every burst write.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.evaluate()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logger.Warnf("org watcher error: %v", err)
		}
	}
}

// evaluate re-reads the settled config and emits an event when the
// target org actually changed. Read or parse failures retain the prior
// value.
func (w *Watcher) evaluate() {
	current, ok := w.readTarget()
	if !ok {
		return
	}

	w.mu.Lock()
	old := w.lastTarget
	if current == old {
		w.mu.Unlock()
		return
	}
	w.lastTarget = current
	w.mu.Unlock()

	logger.Infow("default target org changed", "old", old, "new", current)
	change := OrgChanged{Old: old, New: current}
	for {
		select {
		case w.events <- change:
			return
		default:
			// Replace the stale undelivered event with the newer one.
			select {
			case <-w.events:
			default:
			}
		}
	}
}

// readTarget parses the config file's target-org. ok is false on read or
// parse failure, which callers treat as "keep the previous value".
func (w *Watcher) readTarget() (string, bool) {
	data, err := os.ReadFile(w.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("failed to read CLI config %q: %v", w.configPath, err)
		}
		return "", false
	}
	if !gjson.ValidBytes(data) {
		logger.Warnf("CLI config %q is not valid JSON; keeping previous target org", w.configPath)
		return "", false
	}
	return gjson.GetBytes(data, "target-org").String(), true
}
