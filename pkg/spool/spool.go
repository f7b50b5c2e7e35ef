// Package spool implements the durable, file-backed single-producer/
// single-consumer queue between the listener and the loader (§4.2).
package spool

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"github.com/fedora-ci/kaijs-go/pkg/envelope"
)

// maxScanFiles bounds the cost of listing the active directory per scan,
// per §4.2's N=32 requirement.
const maxScanFiles = 32

// pollInterval is the polling-timer fallback for unreliable new-file
// notifications.
const pollInterval = time.Minute

// Spool is a durable FIFO of envelope.SpoolMessage backed by two
// directories: active/ (unclaimed) and claim/ (claimed, awaiting commit or
// rollback). A process crash between claim and commit leaves the file in
// claim/, which is treated as active again on restart.
type Spool struct {
	activeDir string
	claimDir  string
	log       hclog.Logger

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	notify    chan struct{}
	closeOnce sync.Once
}

// Open creates (if needed) the active/claim directories under dir and
// starts the fsnotify watch. Any file left in claim/ from a prior crash is
// recovered back into active/.
func Open(dir string, log hclog.Logger) (*Spool, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	active := filepath.Join(dir, "active")
	claim := filepath.Join(dir, "claim")
	for _, d := range []string{active, claim} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}

	s := &Spool{
		activeDir: active,
		claimDir:  claim,
		log:       log.Named("spool"),
		notify:    make(chan struct{}, 1),
	}

	if err := s.recoverClaimed(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(active); err != nil {
		w.Close()
		return nil, err
	}
	s.watcher = w
	go s.watchLoop()

	return s, nil
}

// recoverClaimed moves every file still sitting in claim/ back to active/,
// restoring at-least-once delivery after a crash between claim and commit.
func (s *Spool) recoverClaimed() error {
	entries, err := os.ReadDir(s.claimDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		src := filepath.Join(s.claimDir, e.Name())
		dst := filepath.Join(s.activeDir, e.Name())
		if err := os.Rename(src, dst); err != nil {
			return err
		}
		s.log.Warn("recovered claimed envelope after restart", "file", e.Name())
	}
	return nil
}

func (s *Spool) watchLoop() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) != 0 {
				s.wake()
			}
		case _, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
		case <-ticker.C:
			s.wake()
		}
	}
}

func (s *Spool) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Notify returns a channel that receives a value whenever a new envelope
// may be available (either via fsnotify or the one-minute poll fallback).
func (s *Spool) Notify() <-chan struct{} {
	return s.notify
}

// Push appends env to the spool, writing its file next to active/ and
// renaming it into active/ so the write is atomic with respect to any
// concurrent listing.
func (s *Spool) Push(env envelope.SpoolMessage) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	final := filepath.Join(s.activeDir, env.Filename())
	tmp := filepath.Join(filepath.Dir(s.activeDir), env.Filename()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return err
	}
	s.wake()
	return nil
}

// Claimed is a popped envelope awaiting Commit or Rollback. Per §8.1,
// exactly one of Commit/Rollback must be called before the next Pop.
type Claimed struct {
	Env      envelope.SpoolMessage
	path     string
	activeAt string
}

// Commit permanently removes the claimed envelope from the spool.
func (c *Claimed) Commit() error {
	return os.Remove(c.path)
}

// Rollback returns the claimed envelope to active/, making it eligible to
// be popped again.
func (c *Claimed) Rollback() error {
	return os.Rename(c.path, c.activeAt)
}

// oldestFilenames lists at most maxScanFiles filenames from active/, sorted
// ascending so the lexical (timestamp-prefixed) order yields FIFO delivery.
func (s *Spool) oldestFilenames() ([]string, error) {
	entries, err := os.ReadDir(s.activeDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) > maxScanFiles {
		names = names[:maxScanFiles]
	}
	return names, nil
}

// Tpop claims the oldest file by moving it into claim/. Returns (nil, nil)
// if the spool is currently empty.
func (s *Spool) Tpop() (*Claimed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.oldestFilenames()
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		activeAt := filepath.Join(s.activeDir, name)
		claimAt := filepath.Join(s.claimDir, name)
		if err := os.Rename(activeAt, claimAt); err != nil {
			if os.IsNotExist(err) {
				// another scan raced us (shouldn't happen single-consumer,
				// but tolerate it); try the next candidate.
				continue
			}
			return nil, err
		}
		data, err := os.ReadFile(claimAt)
		if err != nil {
			return nil, err
		}
		env, err := envelope.Unmarshal(data)
		if err != nil {
			return nil, err
		}
		return &Claimed{Env: env, path: claimAt, activeAt: activeAt}, nil
	}
	return nil, nil
}

// Length returns the number of unclaimed envelopes currently in active/.
func (s *Spool) Length() (int, error) {
	entries, err := os.ReadDir(s.activeDir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}

// Clear removes every unclaimed envelope. Intended for tests only.
func (s *Spool) Clear() error {
	entries, err := os.ReadDir(s.activeDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.activeDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the watcher. It does not touch any on-disk state.
func (s *Spool) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}
