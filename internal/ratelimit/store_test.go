package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock { return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)} }

func TestLoginLimitTwentyPerFiveMinutes(t *testing.T) {
	clk := newClock()
	s := New("", WithClock(clk.Now))
	key := "login:10.0.0.1"
	for i := 0; i < 20; i++ {
		ok, remaining, _ := s.Allow(key, 20, 5*time.Minute)
		require.True(t, ok, "attempt %d", i+1)
		assert.Equal(t, 19-i, remaining)
	}
	ok, _, reset := s.Allow(key, 20, 5*time.Minute)
	assert.False(t, ok, "21st attempt must be refused")
	assert.Equal(t, clk.Now().Add(5*time.Minute), reset)

	// other clients are unaffected
	ok, _, _ = s.Allow("login:10.0.0.2", 20, 5*time.Minute)
	assert.True(t, ok)

	clk.Advance(5 * time.Minute)
	ok, _, _ = s.Allow(key, 20, 5*time.Minute)
	assert.True(t, ok, "window elapsed")
}

func TestPrune(t *testing.T) {
	clk := newClock()
	s := New("", WithClock(clk.Now))
	s.Allow("a", 5, time.Minute)
	clk.Advance(30 * time.Second)
	s.Allow("b", 5, time.Minute)
	clk.Advance(40 * time.Second)

	assert.Equal(t, 1, s.Prune(time.Minute))
	st := s.Snapshot()
	assert.NotContains(t, st.Buckets, "a")
	assert.Contains(t, st.Buckets, "b")
}

func TestInMemoryFlushIsNoop(t *testing.T) {
	s := New("")
	assert.False(t, s.Persistent())
	s.Allow("k", 1, time.Minute)
	assert.NoError(t, s.Flush(context.Background()))
}

func TestConcurrentAllowNeverExceedsLimit(t *testing.T) {
	s := New("")
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _, _ := s.Allow("k", 20, time.Minute); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, granted)
}
