package fsevents

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/specview/reactivefs/pkg/logger"
)

// maxBatch bounds how many raw events are coalesced into one batch.
const maxBatch = 512

// notifyBackend implements Backend using fsnotify.
type notifyBackend struct {
	logger logger.Logger
}

// NewNotifyBackend creates a Backend backed by fsnotify.
//
// fsnotify watches are not recursive, so the subscription watches every
// directory under the root and adds new directories as they appear. A burst
// of creations can therefore outrun the watch registration; the project
// watcher's health check covers that gap.
func NewNotifyBackend(log logger.Logger) Backend {
	return &notifyBackend{logger: log}
}

// Subscribe implements Backend.Subscribe.
func (b *notifyBackend) Subscribe(root string, ignore []string) (Subscription, error) {
	resolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch root: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootNotDirectory, resolved)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	sub := &notifySubscription{
		fsw:    fsw,
		root:   resolved,
		ignore: toSet(ignore),
		logger: b.logger,
		events: make(chan []Event, 64),
		errors: make(chan error, 16),
		done:   make(chan struct{}),
	}

	if err := sub.addRecursive(resolved); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	go sub.pump()

	return sub, nil
}

// notifySubscription implements Subscription over one fsnotify watcher.
type notifySubscription struct {
	fsw    *fsnotify.Watcher
	root   string
	ignore map[string]struct{}
	logger logger.Logger

	events chan []Event
	errors chan error

	done      chan struct{}
	closeOnce sync.Once
}

// Events implements Subscription.Events.
func (s *notifySubscription) Events() <-chan []Event {
	return s.events
}

// Errors implements Subscription.Errors.
func (s *notifySubscription) Errors() <-chan error {
	return s.errors
}

// Close implements Subscription.Close.
func (s *notifySubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.fsw.Close()
	})
	return err
}

// pump reads raw fsnotify events, coalesces them into batches, and forwards
// them until the subscription is closed.
func (s *notifySubscription) pump() {
	defer close(s.events)
	defer close(s.errors)

	for {
		select {
		case <-s.done:
			return

		case raw, ok := <-s.fsw.Events:
			if !ok {
				return
			}

			batch := s.collect(raw)
			if len(batch) == 0 {
				continue
			}

			select {
			case s.events <- batch:
			case <-s.done:
				return
			}

		case err, ok := <-s.fsw.Errors:
			if !ok {
				return
			}

			if errors.Is(err, fsnotify.ErrEventOverflow) {
				err = ErrEventsDropped
			}

			select {
			case s.errors <- err:
			case <-s.done:
				return
			}
		}
	}
}

// collect translates the first raw event and drains any others already
// queued, so rapid changes arrive as one batch.
func (s *notifySubscription) collect(first fsnotify.Event) []Event {
	var batch []Event

	if ev, ok := s.translate(first); ok {
		batch = append(batch, ev)
	}

	for len(batch) < maxBatch {
		select {
		case raw, ok := <-s.fsw.Events:
			if !ok {
				return batch
			}
			if ev, ok := s.translate(raw); ok {
				batch = append(batch, ev)
			}
		default:
			return batch
		}
	}

	return batch
}

// translate maps a raw fsnotify event onto the backend event model.
//
// New directories are added to the watch before the event is reported, so
// children created immediately afterwards are seen too.
func (s *notifySubscription) translate(raw fsnotify.Event) (Event, bool) {
	path := filepath.Clean(raw.Name)
	if s.ignored(path) {
		return Event{}, false
	}

	var typ EventType
	switch {
	case raw.Op&fsnotify.Create == fsnotify.Create:
		typ = Create
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := s.addRecursive(path); err != nil {
				s.logger.Warn("failed to watch new directory",
					"path", path,
					"error", err)
			}
		}
	case raw.Op&fsnotify.Remove == fsnotify.Remove:
		typ = Delete
	case raw.Op&fsnotify.Rename == fsnotify.Rename:
		typ = Delete
	case raw.Op&fsnotify.Write == fsnotify.Write:
		typ = Update
	case raw.Op&fsnotify.Chmod == fsnotify.Chmod:
		// Timestamp touches surface as chmod; the health check depends on
		// seeing them.
		typ = Update
	default:
		return Event{}, false
	}

	return Event{Type: typ, Path: path}, true
}

// ignored reports whether any path component under the root is in the
// ignore set.
func (s *notifySubscription) ignored(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}

	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if _, skip := s.ignore[part]; skip {
			return true
		}
	}

	return false
}

// addRecursive watches path and every directory below it, skipping ignored
// names. Unreadable subdirectories are logged and skipped.
func (s *notifySubscription) addRecursive(path string) error {
	if err := s.fsw.Add(path); err != nil {
		return fmt.Errorf("failed to add watch path: %w", err)
	}

	return filepath.WalkDir(path, func(subPath string, entry fs.DirEntry, err error) error {
		if err != nil {
			s.logger.Warn("error walking watch path",
				"path", subPath,
				"error", err)
			return nil
		}

		if !entry.IsDir() || subPath == path {
			return nil
		}

		if _, skip := s.ignore[entry.Name()]; skip {
			return filepath.SkipDir
		}

		if addErr := s.fsw.Add(subPath); addErr != nil {
			s.logger.Warn("failed to watch subdirectory",
				"path", subPath,
				"error", addErr)
		}

		return nil
	})
}

// toSet converts a name list to a lookup set.
func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
