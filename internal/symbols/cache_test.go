package symbols

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCacheReusesWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	var loads int32
	load := func(ctx context.Context, workspace string) (*Table, error) {
		atomic.AddInt32(&loads, 1)
		return Build([]Entry{{Name: "UserService", Kind: KindClass, File: "a.go", StartLine: 1}}), nil
	}
	cache := NewCache(load, 5*time.Minute, clock.Now)

	ctx := context.Background()
	first, err := cache.Get(ctx, "/workspace")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := cache.Get(ctx, "/workspace")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if first != second {
		t.Fatal("expected the cached table to be reused")
	}
	if got := atomic.LoadInt32(&loads); got != 1 {
		t.Fatalf("expected 1 load, got %d", got)
	}

	clock.Advance(5*time.Minute + time.Second)
	if _, err := cache.Get(ctx, "/workspace"); err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if got := atomic.LoadInt32(&loads); got != 2 {
		t.Fatalf("expected a reload after TTL, got %d loads", got)
	}
}

func TestCacheKeysByWorkspace(t *testing.T) {
	var loads int32
	load := func(ctx context.Context, workspace string) (*Table, error) {
		atomic.AddInt32(&loads, 1)
		return Build(nil), nil
	}
	cache := NewCache(load, 0, nil)

	ctx := context.Background()
	if _, err := cache.Get(ctx, "/a"); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Get(ctx, "/b"); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&loads); got != 2 {
		t.Fatalf("expected one load per workspace, got %d", got)
	}
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	var loads int32
	load := func(ctx context.Context, workspace string) (*Table, error) {
		if atomic.AddInt32(&loads, 1) == 1 {
			return nil, errors.New("store unavailable")
		}
		return Build(nil), nil
	}
	cache := NewCache(load, time.Minute, nil)

	ctx := context.Background()
	if _, err := cache.Get(ctx, "/workspace"); err == nil {
		t.Fatal("expected the first load to fail")
	}
	if _, err := cache.Get(ctx, "/workspace"); err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if got := atomic.LoadInt32(&loads); got != 2 {
		t.Fatalf("expected 2 loads, got %d", got)
	}
}

func TestCacheInvalidate(t *testing.T) {
	var loads int32
	load := func(ctx context.Context, workspace string) (*Table, error) {
		atomic.AddInt32(&loads, 1)
		return Build(nil), nil
	}
	cache := NewCache(load, time.Hour, nil)

	ctx := context.Background()
	if _, err := cache.Get(ctx, "/workspace"); err != nil {
		t.Fatal(err)
	}
	cache.Invalidate("/workspace")
	if _, err := cache.Get(ctx, "/workspace"); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt32(&loads); got != 2 {
		t.Fatalf("expected a reload after invalidation, got %d loads", got)
	}
}

func TestCacheSingleFlight(t *testing.T) {
	var loads int32
	release := make(chan struct{})
	load := func(ctx context.Context, workspace string) (*Table, error) {
		atomic.AddInt32(&loads, 1)
		<-release
		return Build(nil), nil
	}
	cache := NewCache(load, time.Minute, nil)

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([]*Table, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			table, err := cache.Get(ctx, "/workspace")
			if err != nil {
				t.Errorf("get %d: %v", i, err)
				return
			}
			results[i] = table
		}(i)
	}
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&loads); got != 1 {
		t.Fatalf("expected a single in-flight load, got %d", got)
	}
	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Fatal("all callers should observe the same table")
		}
	}
}

func TestCacheGetRespectsContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	load := func(ctx context.Context, workspace string) (*Table, error) {
		close(started)
		<-release
		return Build(nil), nil
	}
	cache := NewCache(load, time.Minute, nil)

	go cache.Get(context.Background(), "/workspace")
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cache.Get(ctx, "/workspace"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)
}
