package services

import (
	"context"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/banwatch/backend/internal/domain"
)

// fakeStatusClient scripts per-identifier behaviour and instruments
// concurrency.
type fakeStatusClient struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       map[string]int
	delay       time.Duration
	// respond decides the outcome of one attempt; attempt counts from 1
	respond func(steamID string, attempt int) (domain.Verdict, string, error)
}

func newFakeStatusClient(respond func(string, int) (domain.Verdict, string, error)) *fakeStatusClient {
	return &fakeStatusClient{calls: map[string]int{}, respond: respond}
}

func (f *fakeStatusClient) Check(ctx context.Context, steamID string, _ *http.Client) (domain.Verdict, string, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.calls[steamID]++
	attempt := f.calls[steamID]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	return f.respond(steamID, attempt)
}

func alwaysClean(string, int) (domain.Verdict, string, error) {
	return domain.VerdictClean, "no bans on record", nil
}

func runScheduler(t *testing.T, client *fakeStatusClient, ids []string, opts domain.CheckOptions) map[string]Outcome {
	t.Helper()
	pool, err := NewProxyPool(ProxyPoolConfig{})
	if err != nil {
		t.Fatalf("NewProxyPool: %v", err)
	}
	s := NewBatchScheduler(BatchSchedulerConfig{
		Pool:              pool,
		Client:            client,
		RateLimitCooldown: 10 * time.Millisecond,
	})

	var mu sync.Mutex
	outcomes := map[string]Outcome{}
	s.Run(context.Background(), "test-task", ids, opts, func(o Outcome) {
		mu.Lock()
		outcomes[o.SteamID] = o
		mu.Unlock()
	})
	return outcomes
}

func TestPartitionBatches(t *testing.T) {
	got := partitionBatches([]string{"A", "B", "C"}, 2)
	want := [][]string{{"A", "B"}, {"C"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v got %v", want, got)
	}

	if got := partitionBatches(nil, 5); got != nil {
		t.Fatalf("want nil for empty input, got %v", got)
	}
}

func TestDedupeIdentifiers(t *testing.T) {
	got := dedupeIdentifiers([]string{"A", "B", "A", "C", "B"})
	want := []string{"A", "B", "C"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want %v got %v", want, got)
	}
}

func TestSchedulerReportsEveryIdentifierOnce(t *testing.T) {
	client := newFakeStatusClient(alwaysClean)
	opts := domain.CheckOptions{
		LogicalBatchSize:     2,
		MaxConcurrentBatches: 2,
		MaxWorkersPerBatch:   2,
	}.Clamped()

	outcomes := runScheduler(t, client, []string{"A", "B", "C"}, opts)
	if len(outcomes) != 3 {
		t.Fatalf("want 3 outcomes got %d", len(outcomes))
	}
	for _, id := range []string{"A", "B", "C"} {
		o, ok := outcomes[id]
		if !ok {
			t.Fatalf("missing outcome for %s", id)
		}
		if o.Verdict != domain.VerdictClean {
			t.Fatalf("%s: want CLEAN got %s", id, o.Verdict)
		}
		if client.calls[id] != 1 {
			t.Fatalf("%s: want 1 call got %d", id, client.calls[id])
		}
	}
}

func TestSchedulerConcurrencyCeiling(t *testing.T) {
	client := newFakeStatusClient(alwaysClean)
	client.delay = 10 * time.Millisecond

	opts := domain.CheckOptions{
		LogicalBatchSize:     5,
		MaxConcurrentBatches: 4,
		MaxWorkersPerBatch:   2,
	}.Clamped()

	ids := make([]string, 60)
	for i := range ids {
		ids[i] = "id-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
	}
	outcomes := runScheduler(t, client, dedupeIdentifiers(ids), opts)

	limit := opts.MaxConcurrentBatches * opts.MaxWorkersPerBatch
	if client.maxInFlight > limit {
		t.Fatalf("in-flight calls reached %d, limit is %d", client.maxInFlight, limit)
	}
	if len(outcomes) != len(dedupeIdentifiers(ids)) {
		t.Fatalf("want %d outcomes got %d", len(dedupeIdentifiers(ids)), len(outcomes))
	}
}

func TestSchedulerRetryExhaustionYieldsError(t *testing.T) {
	client := newFakeStatusClient(func(string, int) (domain.Verdict, string, error) {
		return domain.VerdictError, "", &transientStatusError{code: 503}
	})
	opts := domain.CheckOptions{
		LogicalBatchSize:     1,
		MaxConcurrentBatches: 1,
		MaxWorkersPerBatch:   1,
		MaxRetriesPerID:      2,
	}.Clamped()

	outcomes := runScheduler(t, client, []string{"X"}, opts)
	o := outcomes["X"]
	if o.Verdict != domain.VerdictError {
		t.Fatalf("want ERROR got %s", o.Verdict)
	}
	if o.Details == "" {
		t.Fatal("want failure reason in details")
	}
	if client.calls["X"] != 3 {
		t.Fatalf("want retries+1 = 3 attempts, got %d", client.calls["X"])
	}
}

func TestSchedulerSuccessOnFinalAttempt(t *testing.T) {
	client := newFakeStatusClient(func(_ string, attempt int) (domain.Verdict, string, error) {
		if attempt < 3 {
			return domain.VerdictError, "", &transientStatusError{code: 500}
		}
		return domain.VerdictClean, "no bans on record", nil
	})
	opts := domain.CheckOptions{
		LogicalBatchSize:     1,
		MaxConcurrentBatches: 1,
		MaxWorkersPerBatch:   1,
		MaxRetriesPerID:      2,
	}.Clamped()

	outcomes := runScheduler(t, client, []string{"X"}, opts)
	if outcomes["X"].Verdict != domain.VerdictClean {
		t.Fatalf("final-attempt success must not be ERROR, got %s", outcomes["X"].Verdict)
	}
	if client.calls["X"] != 3 {
		t.Fatalf("want 3 attempts got %d", client.calls["X"])
	}
}

func TestSchedulerPermanentErrorStopsRetrying(t *testing.T) {
	client := newFakeStatusClient(func(string, int) (domain.Verdict, string, error) {
		return domain.VerdictError, "", context.Canceled
	})
	opts := domain.CheckOptions{
		LogicalBatchSize:     1,
		MaxConcurrentBatches: 1,
		MaxWorkersPerBatch:   1,
		MaxRetriesPerID:      5,
	}.Clamped()

	outcomes := runScheduler(t, client, []string{"X"}, opts)
	if outcomes["X"].Verdict != domain.VerdictError {
		t.Fatalf("want ERROR got %s", outcomes["X"].Verdict)
	}
	if client.calls["X"] != 1 {
		t.Fatalf("permanent failure should not retry, got %d attempts", client.calls["X"])
	}
}

func TestSchedulerRateLimitPausesBatch(t *testing.T) {
	var first sync.Once
	client := newFakeStatusClient(nil)
	client.respond = func(_ string, _ int) (domain.Verdict, string, error) {
		tripped := false
		first.Do(func() { tripped = true })
		if tripped {
			return domain.VerdictError, "", ErrRateLimited
		}
		return domain.VerdictClean, "no bans on record", nil
	}

	opts := domain.CheckOptions{
		LogicalBatchSize:     4,
		MaxConcurrentBatches: 1,
		MaxWorkersPerBatch:   1,
		MaxRetriesPerID:      1,
	}.Clamped()

	start := time.Now()
	outcomes := runScheduler(t, client, []string{"A", "B", "C", "D"}, opts)
	elapsed := time.Since(start)

	if len(outcomes) != 4 {
		t.Fatalf("want 4 outcomes got %d", len(outcomes))
	}
	// the 429 must have paused the pool for at least one cooldown (10ms)
	if elapsed < 10*time.Millisecond {
		t.Fatalf("expected rate-limit pause, finished in %v", elapsed)
	}
	for id, o := range outcomes {
		if o.Verdict != domain.VerdictClean {
			t.Fatalf("%s: want CLEAN after retry got %s", id, o.Verdict)
		}
	}
}

func TestSchedulerExpiredContextMarksTimedOut(t *testing.T) {
	client := newFakeStatusClient(alwaysClean)
	opts := domain.CheckOptions{
		LogicalBatchSize:     2,
		MaxConcurrentBatches: 1,
		MaxWorkersPerBatch:   1,
	}.Clamped()

	pool, err := NewProxyPool(ProxyPoolConfig{})
	if err != nil {
		t.Fatalf("NewProxyPool: %v", err)
	}
	s := NewBatchScheduler(BatchSchedulerConfig{Pool: pool, Client: client})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var mu sync.Mutex
	outcomes := map[string]Outcome{}
	s.Run(ctx, "test-task", []string{"A", "B"}, opts, func(o Outcome) {
		mu.Lock()
		outcomes[o.SteamID] = o
		mu.Unlock()
	})

	for id, o := range outcomes {
		if o.Verdict != domain.VerdictError || o.Details != "timed out" {
			t.Fatalf("%s: want timed-out ERROR got %+v", id, o)
		}
	}
}
