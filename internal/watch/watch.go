// Package watch reruns the pipeline whenever an input archive or rule file
// changes on disk. Session watches an arbitrary set of archive/rule paths
// known up front and hands changes to a caller-supplied rebuild function,
// since a whole-program run has all of its inputs known before the first
// pass rather than discovered incrementally.
package watch

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Session watches a fixed set of paths; Wait reports the first one that
// changes on disk.
type Session struct {
	watcher *fsnotify.Watcher
	paths   []string
}

// NewSession creates a watcher on the given input archive and rule file
// paths. The parent directory of each path is watched non-recursively, and
// events for other files in those directories are ignored.
func NewSession(paths []string) (*Session, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dirs := make(map[string]bool)
	for _, p := range paths {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, err
		}
	}
	return &Session{watcher: w, paths: paths}, nil
}

// Close releases the underlying OS watch handles.
func (s *Session) Close() error {
	return s.watcher.Close()
}

// isWatched reports whether name is one of the paths the session was
// constructed with, ignoring events for sibling files in the same watched
// directory.
func (s *Session) isWatched(name string) bool {
	for _, p := range s.paths {
		if filepath.Clean(name) == filepath.Clean(p) {
			return true
		}
	}
	return false
}

// Wait blocks until one of the watched paths is created, written, or
// renamed, then returns its path. It returns the error if the watcher's
// error channel fires first, and an empty path with a nil error if the
// watcher is closed first. Events are filtered
// down to the caller's actual input set rather than reporting every change
// under a watched directory.
func (s *Session) Wait() (string, error) {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return "", nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !s.isWatched(ev.Name) {
				continue
			}
			log.Infof("watch: change detected: %s", ev.Name)
			return ev.Name, nil
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return "", nil
			}
			return "", err
		}
	}
}

// Run watches until the first relevant change, then calls rebuild once and
// returns its error. Callers that want a persistent watch loop call Run
// repeatedly.
func Run(paths []string, rebuild func(changed string) error) error {
	s, err := NewSession(paths)
	if err != nil {
		return err
	}
	defer s.Close()

	changed, err := s.Wait()
	if err != nil {
		return err
	}
	if changed == "" {
		return nil // watcher closed with no change observed
	}
	return rebuild(changed)
}
