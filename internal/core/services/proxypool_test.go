package services

import (
	"errors"
	"testing"
	"time"
)

func newTestPool(t *testing.T, cfg ProxyPoolConfig) *ProxyPool {
	t.Helper()
	pool, err := NewProxyPool(cfg)
	if err != nil {
		t.Fatalf("NewProxyPool: %v", err)
	}
	return pool
}

func TestProxyPoolDropsMalformedEntries(t *testing.T) {
	pool := newTestPool(t, ProxyPoolConfig{
		ProxyList: "http://10.0.0.1:8080\nnot a uri at all\nftp://10.0.0.2:21\n\nsocks5://10.0.0.3:1080\n",
	})
	if pool.Size() != 2 {
		t.Fatalf("want 2 parsed proxies, got %d", pool.Size())
	}
}

func TestProxyPoolEmptyFallsBackToDirect(t *testing.T) {
	pool := newTestPool(t, ProxyPoolConfig{})
	rec, client, err := pool.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected direct connection, got proxy %q", rec.URI)
	}
	if client == nil {
		t.Fatal("expected a usable http client")
	}
}

func TestProxyPoolEmptyWithRequiredProxiesFails(t *testing.T) {
	_, err := NewProxyPool(ProxyPoolConfig{
		ProxyList:      "garbage\n",
		RequireProxies: true,
	})
	if !errors.Is(err, ErrProxiesRequired) {
		t.Fatalf("want ErrProxiesRequired, got %v", err)
	}
}

func TestProxyPoolRoundRobinFairness(t *testing.T) {
	pool := newTestPool(t, ProxyPoolConfig{
		ProxyList: "http://p1:8080\nhttp://p2:8080\nhttp://p3:8080",
	})

	const k = 31
	counts := map[string]int{}
	for i := 0; i < k; i++ {
		rec, _, err := pool.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		counts[rec.URI]++
	}

	for uri, n := range counts {
		if n < k/3 {
			t.Errorf("proxy %s selected %d times, want at least %d", uri, n, k/3)
		}
	}
	if len(counts) != 3 {
		t.Fatalf("want all 3 proxies used, got %d", len(counts))
	}
}

func TestProxyPoolDisableAndCooldown(t *testing.T) {
	pool := newTestPool(t, ProxyPoolConfig{
		ProxyList:        "http://p1:8080\nhttp://p2:8080",
		FailureThreshold: 2,
		Cooldown:         50 * time.Millisecond,
	})

	var bad *ProxyRecord
	for {
		rec, _, err := pool.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if rec.URI == "http://p1:8080" {
			bad = rec
			break
		}
	}

	pool.ReportFailure(bad)
	pool.ReportFailure(bad)

	if pool.EnabledCount() != 1 {
		t.Fatalf("want 1 enabled proxy after threshold, got %d", pool.EnabledCount())
	}
	for i := 0; i < 6; i++ {
		rec, _, err := pool.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if rec.URI == bad.URI {
			t.Fatalf("disabled proxy %s still in rotation", bad.URI)
		}
	}

	time.Sleep(60 * time.Millisecond)

	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		rec, _, err := pool.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		seen[rec.URI] = true
	}
	if !seen[bad.URI] {
		t.Fatalf("proxy %s not re-enabled after cooldown", bad.URI)
	}
}

func TestProxyPoolSuccessResetsFailureStreak(t *testing.T) {
	pool := newTestPool(t, ProxyPoolConfig{
		ProxyList:        "http://p1:8080",
		FailureThreshold: 3,
	})

	rec, _, err := pool.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	pool.ReportFailure(rec)
	pool.ReportFailure(rec)
	pool.ReportSuccess(rec, 10*time.Millisecond)
	pool.ReportFailure(rec)
	pool.ReportFailure(rec)

	if pool.EnabledCount() != 1 {
		t.Fatal("proxy disabled despite interleaved success")
	}
}

func TestProxyPoolSnapshotCounters(t *testing.T) {
	pool := newTestPool(t, ProxyPoolConfig{
		ProxyList: "http://p1:8080",
	})

	rec, _, _ := pool.Next()
	pool.ReportSuccess(rec, 20*time.Millisecond)
	rec, _, _ = pool.Next()
	pool.ReportFailure(rec)

	stats := pool.Snapshot()
	entry, ok := stats["http://p1:8080"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing snapshot entry: %#v", stats)
	}
	if entry["attempts"].(uint64) != 2 {
		t.Errorf("attempts: want 2 got %v", entry["attempts"])
	}
	if entry["successes"].(uint64) != 1 {
		t.Errorf("successes: want 1 got %v", entry["successes"])
	}
	if entry["failures"].(uint64) != 1 {
		t.Errorf("failures: want 1 got %v", entry["failures"])
	}
}
