package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, user *string) (*Cache, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(NewMemoryStore(64, time.Hour), Options{
		Scope:      func() string { return *user },
		StaleAfter: func(string) time.Duration { return 30 * time.Second },
		Now:        clk.Now,
	})
	return c, clk
}

func counter(calls *atomic.Int32, val []string, err error) func(context.Context) ([]string, error) {
	return func(context.Context) ([]string, error) {
		calls.Add(1)
		return val, err
	}
}

func TestQuery_FreshHitSkipsFetch(t *testing.T) {
	user := "u1"
	c, _ := newTestCache(t, &user)
	ctx := context.Background()
	key := Key{Resource: ResourceClients}

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		got, err := Query(ctx, c, key, counter(&calls, []string{"ana"}, nil))
		if err != nil || len(got) != 1 || got[0] != "ana" {
			t.Fatalf("Query = %v, %v", got, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("fetch called %d times, want 1", calls.Load())
	}
}

func TestQuery_StaleRefetches(t *testing.T) {
	user := "u1"
	c, clk := newTestCache(t, &user)
	ctx := context.Background()
	key := Key{Resource: ResourceOrders}

	var calls atomic.Int32
	Query(ctx, c, key, counter(&calls, []string{"v1"}, nil))
	clk.Advance(31 * time.Second)
	got, err := Query(ctx, c, key, counter(&calls, []string{"v2"}, nil))
	if err != nil || got[0] != "v2" {
		t.Fatalf("Query = %v, %v", got, err)
	}
	if calls.Load() != 2 {
		t.Errorf("fetch called %d times, want 2", calls.Load())
	}
}

func TestQuery_StaleServedOnFailure(t *testing.T) {
	user := "u1"
	c, clk := newTestCache(t, &user)
	ctx := context.Background()
	key := Key{Resource: ResourceWhatsAppStatus}

	var calls atomic.Int32
	Query(ctx, c, key, counter(&calls, []string{"connected"}, nil))
	clk.Advance(time.Minute)

	got, err := Query(ctx, c, key, counter(&calls, nil, errors.New("network down")))
	if err != nil {
		t.Fatalf("expected stale value, got error %v", err)
	}
	if got[0] != "connected" {
		t.Errorf("got %v", got)
	}
}

func TestQuery_ServeStaleOnFilter(t *testing.T) {
	user := "u1"
	clk := &clock{now: time.Now()}
	denied := errors.New("unauthorized")
	c := New(NewMemoryStore(8, time.Hour), Options{
		Scope:        func() string { return user },
		StaleAfter:   func(string) time.Duration { return time.Second },
		ServeStaleOn: func(err error) bool { return !errors.Is(err, denied) },
		Now:          clk.Now,
	})
	ctx := context.Background()
	key := Key{Resource: ResourceClients}

	var calls atomic.Int32
	Query(ctx, c, key, counter(&calls, []string{"a"}, nil))
	clk.Advance(2 * time.Second)
	if _, err := Query(ctx, c, key, counter(&calls, nil, denied)); !errors.Is(err, denied) {
		t.Errorf("got %v, want the fetch error", err)
	}
}

func TestQuery_MissPropagatesError(t *testing.T) {
	user := "u1"
	c, _ := newTestCache(t, &user)
	boom := errors.New("boom")
	var calls atomic.Int32
	_, err := Query(context.Background(), c, Key{Resource: ResourceClients}, counter(&calls, nil, boom))
	if !errors.Is(err, boom) {
		t.Errorf("got %v", err)
	}
}

func TestInvalidate_OnlyTouchesResource(t *testing.T) {
	user := "u1"
	c, _ := newTestCache(t, &user)
	ctx := context.Background()

	var clientCalls, orderCalls, filteredCalls atomic.Int32
	Query(ctx, c, Key{Resource: ResourceClients}, counter(&clientCalls, []string{"a"}, nil))
	Query(ctx, c, Key{Resource: ResourceMessages, Params: ParamsKey("clientId", "c1")}, counter(&filteredCalls, []string{"m"}, nil))
	Query(ctx, c, Key{Resource: ResourceOrders}, counter(&orderCalls, []string{"o"}, nil))

	if err := c.Invalidate(ctx, ResourceClients); err != nil {
		t.Fatal(err)
	}
	if err := c.Invalidate(ctx, ResourceMessages); err != nil {
		t.Fatal(err)
	}

	Query(ctx, c, Key{Resource: ResourceClients}, counter(&clientCalls, []string{"a"}, nil))
	Query(ctx, c, Key{Resource: ResourceMessages, Params: ParamsKey("clientId", "c1")}, counter(&filteredCalls, []string{"m"}, nil))
	Query(ctx, c, Key{Resource: ResourceOrders}, counter(&orderCalls, []string{"o"}, nil))

	if clientCalls.Load() != 2 || filteredCalls.Load() != 2 {
		t.Errorf("invalidated resources not refetched: clients %d, messages %d", clientCalls.Load(), filteredCalls.Load())
	}
	if orderCalls.Load() != 1 {
		t.Errorf("orders refetched %d times, want 1", orderCalls.Load())
	}
}

func TestScope_IsolatesUsers(t *testing.T) {
	user := "u1"
	c, _ := newTestCache(t, &user)
	ctx := context.Background()
	key := Key{Resource: ResourceClients}

	var calls atomic.Int32
	Query(ctx, c, key, counter(&calls, []string{"mine"}, nil))
	user = "u2"
	got, _ := Query(ctx, c, key, counter(&calls, []string{"theirs"}, nil))
	if got[0] != "theirs" {
		t.Errorf("user u2 saw %v", got)
	}
	if calls.Load() != 2 {
		t.Errorf("fetch called %d times, want 2", calls.Load())
	}
}

func TestClear(t *testing.T) {
	user := "u1"
	c, _ := newTestCache(t, &user)
	ctx := context.Background()
	var calls atomic.Int32
	Query(ctx, c, Key{Resource: ResourceClients}, counter(&calls, []string{"a"}, nil))
	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	Query(ctx, c, Key{Resource: ResourceClients}, counter(&calls, []string{"a"}, nil))
	if calls.Load() != 2 {
		t.Errorf("fetch called %d times after Clear, want 2", calls.Load())
	}
}

func TestQuery_ConcurrentCallsShareFetch(t *testing.T) {
	user := "u1"
	c, _ := newTestCache(t, &user)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"x"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			Query(ctx, c, Key{Resource: ResourceClients}, fetch)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fetch called %d times, want 1", calls.Load())
	}
}

func TestParamsKey(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"clientId", "c1", "status", ""}, "clientId=c1"},
		{[]string{"a", "1", "b", "2"}, "a=1&b=2"},
	}
	for _, tt := range tests {
		if got := ParamsKey(tt.in...); got != tt.want {
			t.Errorf("ParamsKey(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("OMNIWP_TEST_REDIS")
	if addr == "" {
		t.Skip("OMNIWP_TEST_REDIS not set")
	}
	ctx := context.Background()
	store, err := NewRedisStore(ctx, RedisConfig{Addr: addr, TTL: time.Minute})
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	defer store.Close()
	defer store.Clear(ctx)

	if err := store.Set(ctx, "u1:clients:", Entry{Data: []byte(`["a"]`), StoredAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := store.Get(ctx, "u1:clients:"); err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if err := store.DeletePrefix(ctx, "u1:clients:"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := store.Get(ctx, "u1:clients:"); ok {
		t.Error("entry survived DeletePrefix")
	}
}
