package routes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultDebounce is how long the watcher waits for more writes before reloading.
const DefaultDebounce = 200 * time.Millisecond

// ParseRules decodes YAML rules. Groups missing from the document keep their defaults; unknown keys are rejected.
func ParseRules(data []byte) (Rules, error) {
	rules := DefaultRules()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("routes: parse rules: %w", err)
	}
	return rules, nil
}

// LoadFile reads and compiles the rules file at path.
func LoadFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routes: read %s: %w", path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, err
	}
	return New(rules)
}

// Watcher serves the current Classifier and reloads it when the rules file changes.
// A file that fails to parse or compile leaves the previous classifier in place.
type Watcher struct {
	path     string
	debounce time.Duration
	current  atomic.Pointer[Classifier]
	logger   *slog.Logger

	// onReload, when set, is called after every reload attempt.
	onReload func(error)
}

// NewWatcher loads path once. The initial load must succeed.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	c, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{path: path, debounce: DefaultDebounce, logger: logger}
	w.current.Store(c)
	return w, nil
}

// Current returns the classifier in effect.
func (w *Watcher) Current() *Classifier {
	return w.current.Load()
}

// Run watches the file's directory until ctx is done. Editors often replace files by rename,
// so the directory is watched and events are filtered by name.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	w.logger.Info("routes: watching rules file", "path", abs)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("routes: watcher error", "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	c, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("routes: reload failed, keeping previous rules", "path", w.path, "error", err)
	} else {
		w.current.Store(c)
		w.logger.Info("routes: rules reloaded", "path", w.path)
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}
