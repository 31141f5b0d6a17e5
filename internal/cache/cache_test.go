package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	clock := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return clock }
	return store, &clock
}

func TestCacheSetGetFreshAndStale(t *testing.T) {
	ctx := context.Background()
	store, clock := openStore(t)

	if err := store.Set(ctx, "k1", []byte(`{"v":1}`), 5*time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := store.Get(ctx, "k1", time.Hour)
	if err != nil {
		t.Fatalf("Get fresh failed: %v", err)
	}
	if !res.Hit || res.Stale {
		t.Fatalf("expected fresh hit, got %+v", res)
	}

	*clock = clock.Add(6 * time.Minute)
	res, err = store.Get(ctx, "k1", time.Hour)
	if err != nil {
		t.Fatalf("Get stale failed: %v", err)
	}
	if !res.Hit || !res.Stale || res.TooStale {
		t.Fatalf("expected stale within budget, got %+v", res)
	}
}

func TestCacheTooStale(t *testing.T) {
	ctx := context.Background()
	store, clock := openStore(t)

	if err := store.Set(ctx, "k2", []byte(`{"v":2}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	*clock = clock.Add(2 * time.Minute)
	res, err := store.Get(ctx, "k2", 10*time.Second)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.TooStale {
		t.Fatalf("expected too stale, got %+v", res)
	}
}

func TestCacheMiss(t *testing.T) {
	store, _ := openStore(t)
	res, err := store.Get(context.Background(), "absent", time.Minute)
	if err != nil || res.Hit {
		t.Fatalf("expected miss, got %+v %v", res, err)
	}
}

func TestCachePruneKeepsStaleWindow(t *testing.T) {
	ctx := context.Background()
	store, clock := openStore(t)
	if err := store.Set(ctx, "k3", []byte(`1`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	*clock = clock.Add(10 * time.Minute)
	if err := store.Prune(ctx, time.Hour); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if res, _ := store.Get(ctx, "k3", -1); !res.Hit {
		t.Fatal("entry inside keep window must survive prune")
	}
	if err := store.Prune(ctx, 0); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if res, _ := store.Get(ctx, "k3", -1); res.Hit {
		t.Fatal("expired entry must be pruned")
	}
}

func TestCacheConcurrentOpenAndSet(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cache.db")
	lockPath := filepath.Join(tmp, "cache.lock")

	const workers = 16
	const iterations = 40

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			store, err := Open(dbPath, lockPath)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", workerID, err)
				return
			}
			defer store.Close()

			ctx := context.Background()
			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, i)
				if err := store.Set(ctx, key, []byte(`{"ok":true}`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set iter %d: %w", workerID, i, err)
					return
				}
				res, err := store.Get(ctx, key, time.Minute)
				if err != nil {
					errCh <- fmt.Errorf("worker %d get iter %d: %w", workerID, i, err)
					return
				}
				if !res.Hit {
					errCh <- fmt.Errorf("worker %d get iter %d: expected hit", workerID, i)
					return
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}

// Runs against a real server when BSCDEFI_TEST_REDIS_ADDR is set.
func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("BSCDEFI_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BSCDEFI_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	store, err := OpenRedis(ctx, RedisConfig{Address: addr, Prefix: fmt.Sprintf("bscdefi:test:%d:", time.Now().UnixNano())})
	if err != nil {
		t.Fatalf("OpenRedis failed: %v", err)
	}
	defer store.Close()

	clock := time.Now()
	store.now = func() time.Time { return clock }
	if err := store.Set(ctx, "k", []byte(`{"v":1}`), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	res, err := store.Get(ctx, "k", time.Minute)
	if err != nil || !res.Hit || res.Stale || string(res.Value) != `{"v":1}` {
		t.Fatalf("unexpected fresh read %+v %v", res, err)
	}
	clock = clock.Add(90 * time.Second)
	res, err = store.Get(ctx, "k", time.Minute)
	if err != nil || !res.Stale || res.TooStale {
		t.Fatalf("unexpected stale read %+v %v", res, err)
	}
}

func TestOpenRedisRequiresAddress(t *testing.T) {
	if _, err := OpenRedis(context.Background(), RedisConfig{}); err == nil {
		t.Fatal("expected error without address")
	}
}

func TestEvaluateNegativeMaxStaleNeverTooStale(t *testing.T) {
	now := time.Unix(1_000, 0)
	res := evaluate(nil, now.Add(-time.Hour), time.Minute, -1, now)
	if !res.Stale || res.TooStale {
		t.Fatalf("unexpected result %+v", res)
	}
}
