// Package ratelimit implements fixed-window attempt counters keyed by an
// arbitrary string (the login handler uses the client IP). State lives in
// memory and is optionally mirrored to a JSON file so limits survive a
// restart.
package ratelimit

import (
	"context"
	"io/fs"
	"sync"
	"time"

	"github.com/MrVoidLink/loopa-servers-panel/internal/fsatomic"
)

// State is the persisted form of the counters.
type State struct {
	Version int               `json:"version"`
	Buckets map[string]Bucket `json:"buckets"`
}

type Bucket struct {
	Hits   int    `json:"hits"`
	Window string `json:"window"`
}

type Store struct {
	path        string
	now         func() time.Time
	mu          sync.Mutex
	st          State
	lastPersist time.Time
	ops         int
}

type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New returns a store. An empty path keeps everything in memory; otherwise
// previous state is loaded from path and a malformed file is ignored.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, now: time.Now, st: State{Version: 1, Buckets: map[string]Bucket{}}}
	for _, o := range opts {
		o(s)
	}
	if path != "" {
		_ = s.load()
	}
	return s
}

func (s *Store) load() error {
	var st State
	ok, err := fsatomic.LoadJSON(s.path, &st)
	if err != nil || !ok {
		return err
	}
	s.st = st
	if s.st.Buckets == nil {
		s.st.Buckets = map[string]Bucket{}
	}
	s.lastPersist = s.now()
	return nil
}

func (s *Store) Persistent() bool { return s.path != "" }

func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := State{Version: s.st.Version, Buckets: make(map[string]Bucket, len(s.st.Buckets))}
	for k, b := range s.st.Buckets {
		out.Buckets[k] = b
	}
	return out
}

// Allow applies a fixed-window limit (max within window) and counts the
// attempt when it is admitted. Returns ok, remaining, and resetAt time.
func (s *Store) Allow(key string, limit int, window time.Duration) (bool, int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	b := s.st.Buckets[key]
	start := parseWindow(b.Window)
	if start.IsZero() || now.Sub(start) >= window {
		start = now
		b.Window = start.Format(time.RFC3339Nano)
		b.Hits = 0
	}
	resetAt := start.Add(window)
	if b.Hits >= limit {
		s.maybePersistLocked()
		return false, 0, resetAt
	}
	b.Hits++
	s.st.Buckets[key] = b
	s.maybePersistLocked()
	remaining := limit - b.Hits
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining, resetAt
}

// Prune drops buckets whose window started more than window ago and
// returns how many were removed.
func (s *Store) Prune(window time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	n := 0
	for k, b := range s.st.Buckets {
		start := parseWindow(b.Window)
		if start.IsZero() || now.Sub(start) >= window {
			delete(s.st.Buckets, k)
			n++
		}
	}
	return n
}

// Flush forces a persist to disk. It is a no-op for in-memory stores.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	st := s.st
	if err := fsatomic.WithLock(ctx, s.path, func() error {
		return fsatomic.SaveJSON(ctx, s.path, st, fs.FileMode(0o600))
	}); err != nil {
		return err
	}
	s.lastPersist = s.now()
	s.ops = 0
	return nil
}

// maybePersistLocked persists every ~2s or every 10 ops to reduce IO.
func (s *Store) maybePersistLocked() {
	if s.path == "" {
		return
	}
	s.ops++
	if s.ops%10 == 0 || s.now().Sub(s.lastPersist) >= 2*time.Second {
		_ = s.persistLocked(context.Background())
	}
}

func parseWindow(val string) time.Time {
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	return time.Time{}
}
