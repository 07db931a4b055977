package services

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banwatch/backend/internal/core/ports"
	"github.com/banwatch/backend/internal/domain"
	"github.com/banwatch/backend/internal/infrastructure/logger"
)

// Outcome is one identifier's terminal result reported by a worker.
type Outcome struct {
	SteamID string
	Verdict domain.Verdict
	Details string
}

type BatchSchedulerConfig struct {
	Pool              *ProxyPool
	Client            ports.StatusClient
	RateLimitCooldown time.Duration
	Logger            *logger.Logger
}

// BatchScheduler partitions an identifier list into batches and drives a
// bounded worker pool per batch. Batches run concurrently up to the outer
// width; there is no ordering guarantee across or within batches.
type BatchScheduler struct {
	pool     *ProxyPool
	client   ports.StatusClient
	cooldown time.Duration
	log      *logger.Logger
}

func NewBatchScheduler(cfg BatchSchedulerConfig) *BatchScheduler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	cooldown := cfg.RateLimitCooldown
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	return &BatchScheduler{
		pool:     cfg.Pool,
		client:   cfg.Client,
		cooldown: cooldown,
		log:      log,
	}
}

// Run checks every identifier and reports each terminal outcome through the
// report callback. It returns once every batch has finished or ctx expired;
// identifiers left unresolved by an expired ctx are NOT reported here, the
// caller reconciles them.
func (s *BatchScheduler) Run(ctx context.Context, taskID string, ids []string, opts domain.CheckOptions, report func(Outcome)) {
	batches := partitionBatches(ids, opts.LogicalBatchSize)
	throttle := newSubmitGate(opts.SubmitDelay)

	s.log.Infow("scheduler_start",
		"task_id", taskID,
		"identifiers", len(ids),
		"batches", len(batches),
		"batch_size", opts.LogicalBatchSize,
		"concurrent_batches", opts.MaxConcurrentBatches,
		"workers_per_batch", opts.MaxWorkersPerBatch,
	)

	outer := &errgroup.Group{}
	outer.SetLimit(opts.MaxConcurrentBatches)
	for i, batch := range batches {
		i, batch := i, batch
		outer.Go(func() error {
			s.runBatch(ctx, taskID, i, batch, opts, throttle, report)
			return nil
		})
	}
	outer.Wait()

	s.log.Infow("scheduler_done", "task_id", taskID, "batches", len(batches))
}

func (s *BatchScheduler) runBatch(ctx context.Context, taskID string, batchIdx int, batch []string, opts domain.CheckOptions, throttle *submitGate, report func(Outcome)) {
	gate := newBackoffGate(s.cooldown)

	inner := &errgroup.Group{}
	inner.SetLimit(opts.MaxWorkersPerBatch)
	for _, id := range batch {
		id := id
		inner.Go(func() error {
			report(s.checkOne(ctx, id, opts, throttle, gate))
			return nil
		})
	}
	inner.Wait()

	s.log.Debugw("scheduler_batch_done", "task_id", taskID, "batch", batchIdx, "size", len(batch))
}

// checkOne runs the full retry budget for one identifier. Each attempt
// rotates to the next proxy; a 429 pauses the whole batch's pool via gate.
func (s *BatchScheduler) checkOne(ctx context.Context, steamID string, opts domain.CheckOptions, throttle *submitGate, gate *backoffGate) Outcome {
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetriesPerID; attempt++ {
		if ctx.Err() != nil {
			return Outcome{SteamID: steamID, Verdict: domain.VerdictError, Details: "timed out"}
		}
		if attempt > 0 {
			if err := sleepCtx(ctx, jitter(opts.RetryDelay)); err != nil {
				return Outcome{SteamID: steamID, Verdict: domain.VerdictError, Details: "timed out"}
			}
		}
		if err := gate.Wait(ctx); err != nil {
			return Outcome{SteamID: steamID, Verdict: domain.VerdictError, Details: "timed out"}
		}
		if err := throttle.Wait(ctx); err != nil {
			return Outcome{SteamID: steamID, Verdict: domain.VerdictError, Details: "timed out"}
		}

		rec, httpClient, err := s.pool.Next()
		if err != nil {
			// no usable connection path for this attempt
			lastErr = err
			continue
		}

		start := time.Now()
		verdict, details, err := s.client.Check(ctx, steamID, httpClient)
		if err == nil {
			s.pool.ReportSuccess(rec, time.Since(start))
			return Outcome{SteamID: steamID, Verdict: verdict, Details: details}
		}

		s.pool.ReportFailure(rec)
		lastErr = err
		if errors.Is(err, ErrRateLimited) {
			gate.Trip()
			s.log.Warnw("scheduler_rate_limited", "steam_id", steamID, "attempt", attempt)
		}
		if !IsTransient(err) {
			break
		}
	}

	details := "check failed"
	if lastErr != nil {
		details = lastErr.Error()
	}
	return Outcome{SteamID: steamID, Verdict: domain.VerdictError, Details: details}
}

// partitionBatches splits ids into consecutive batches of size; the final
// batch may be shorter.
func partitionBatches(ids []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var batches [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}
	return batches
}

// dedupeIdentifiers removes duplicates while preserving first-seen order.
func dedupeIdentifiers(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// submitGate spaces outbound submissions across the whole task.
type submitGate struct {
	mu       sync.Mutex
	interval time.Duration
	nextAt   time.Time
}

func newSubmitGate(interval time.Duration) *submitGate {
	return &submitGate{interval: interval}
}

func (g *submitGate) Wait(ctx context.Context) error {
	if g.interval <= 0 {
		return ctx.Err()
	}
	g.mu.Lock()
	now := time.Now()
	if g.nextAt.Before(now) {
		g.nextAt = now
	}
	wait := g.nextAt.Sub(now)
	g.nextAt = g.nextAt.Add(g.interval)
	g.mu.Unlock()
	return sleepCtx(ctx, wait)
}

// backoffGate pauses a batch's worker pool after an upstream 429.
type backoffGate struct {
	mu       sync.Mutex
	until    time.Time
	cooldown time.Duration
}

func newBackoffGate(cooldown time.Duration) *backoffGate {
	return &backoffGate{cooldown: cooldown}
}

func (g *backoffGate) Trip() {
	g.mu.Lock()
	defer g.mu.Unlock()
	until := time.Now().Add(g.cooldown)
	if until.After(g.until) {
		g.until = until
	}
}

func (g *backoffGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	wait := time.Until(g.until)
	g.mu.Unlock()
	return sleepCtx(ctx, wait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter spreads d over [0.75d, 1.25d] so retries from parallel workers don't
// land in lockstep.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
}
