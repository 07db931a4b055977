package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banwatch/backend/internal/config"
	"github.com/banwatch/backend/internal/core/ports"
	"github.com/banwatch/backend/internal/domain"
	"github.com/banwatch/backend/internal/infrastructure/logger"
)

type CheckServiceConfig struct {
	Repository ports.TaskRepository
	Client     ports.StatusClient
	Checker    config.CheckerConfig
	Logger     *logger.Logger
}

type checkService struct {
	repo   ports.TaskRepository
	client ports.StatusClient
	cfg    config.CheckerConfig
	log    *logger.Logger
	wg     sync.WaitGroup
}

func NewCheckService(cfg CheckServiceConfig) ports.CheckService {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &checkService{
		repo:   cfg.Repository,
		client: cfg.Client,
		cfg:    cfg.Checker.Normalized(),
		log:    log,
	}
}

func (s *checkService) Submit(ctx context.Context, input ports.SubmitInput) (*domain.CheckTask, error) {
	ids := make([]string, 0, len(input.SteamIDs))
	for _, id := range input.SteamIDs {
		id = strings.TrimSpace(id)
		if id != "" {
			ids = append(ids, id)
		}
	}
	ids = dedupeIdentifiers(ids)

	if len(ids) > s.cfg.MaxIdentifiers {
		return nil, ErrTooManyIdentifiers
	}

	opts := BalanceOptions(len(ids), input.Options)

	task := &domain.CheckTask{
		TaskID:  uuid.New().String(),
		OwnerID: input.OwnerID,
		Status:  domain.TaskStatusPending,
		Message: "queued",
		Total:   len(ids),
	}

	if len(ids) == 0 {
		task.Status = domain.TaskStatusCompleted
		task.Progress = 100
		task.Message = "no identifiers submitted"
		if err := s.repo.Create(ctx, task); err != nil {
			return nil, fmt.Errorf("task: create: %w", err)
		}
		return task, nil
	}

	pool, err := NewProxyPool(ProxyPoolConfig{
		ProxyList:        opts.ProxyList,
		FailureThreshold: s.cfg.ProxyFailureThreshold,
		Cooldown:         s.cfg.ProxyCooldown,
		RequestTimeout:   s.cfg.RequestTimeout,
		RequireProxies:   s.cfg.RequireProxies,
		Logger:           s.log,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("task: create: %w", err)
	}

	s.log.Infow("task_submitted",
		"task_id", task.TaskID,
		"owner_id", task.OwnerID,
		"identifiers", len(ids),
		"auto_balanced", input.Options.UseAutoBalancing,
		"proxies", pool.Size(),
	)

	// the aggregate loop owns task from here on; hand the caller a snapshot
	snapshot := *task
	s.wg.Add(1)
	go s.runTask(task, ids, opts, pool)

	return &snapshot, nil
}

func (s *checkService) SubmitFile(ctx context.Context, input ports.SubmitFileInput) (*domain.CheckTask, error) {
	ids, err := ParseIdentifierColumn(input.File, input.IDColumn)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, ports.SubmitInput{
		OwnerID:  input.OwnerID,
		SteamIDs: ids,
		Options:  input.Options,
	})
}

func (s *checkService) GetTask(ctx context.Context, ownerID, taskID string) (*domain.CheckTask, error) {
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return nil, ErrTaskNotFound
	}
	// foreign tasks are indistinguishable from missing ones
	if ownerID != "" && task.OwnerID != ownerID {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (s *checkService) ListTasks(ctx context.Context, ownerID string, limit int) ([]domain.CheckTask, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if ownerID == "" {
		return s.repo.ListRecent(ctx, limit)
	}
	return s.repo.ListByOwner(ctx, ownerID, limit)
}

func (s *checkService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runTask drives one submission to a terminal state in the background. The
// caller's request context is deliberately not used: a client that stops
// polling does not cancel server-side work. A per-task timeout bounds it
// instead.
func (s *checkService) runTask(task *domain.CheckTask, ids []string, opts domain.CheckOptions, pool *ProxyPool) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TaskTimeout)
	defer cancel()

	updates := make(chan Outcome, len(ids))
	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		s.aggregate(task, ids, pool, updates)
	}()

	scheduler := NewBatchScheduler(BatchSchedulerConfig{
		Pool:              pool,
		Client:            s.client,
		RateLimitCooldown: s.cfg.RateLimitCooldown,
		Logger:            s.log,
	})
	scheduler.Run(ctx, task.TaskID, ids, opts, func(o Outcome) {
		updates <- o
	})

	close(updates)
	<-aggregated
}

// aggregate is the single writer for one task. Every mutation of the task
// record flows through this loop, so progress and results never disagree.
func (s *checkService) aggregate(task *domain.CheckTask, order []string, pool *ProxyPool, updates <-chan Outcome) {
	position := make(map[string]int, len(order))
	for i, id := range order {
		position[id] = i
	}
	resolved := make(map[string]struct{}, len(order))
	errCount := 0
	total := len(order)

	task.Status = domain.TaskStatusProcessing
	task.Message = "processing"
	if err := s.persistWithRetry(task, nil); err != nil {
		s.failTask(task, err)
		// drain so workers never block on a dead task
		for range updates {
		}
		return
	}

	for outcome := range updates {
		if _, done := resolved[outcome.SteamID]; done {
			continue
		}
		resolved[outcome.SteamID] = struct{}{}
		if outcome.Verdict == domain.VerdictError {
			errCount++
		}

		result := domain.CheckResult{
			TaskID:   task.TaskID,
			SteamID:  outcome.SteamID,
			Position: position[outcome.SteamID],
			Summary:  outcome.Verdict,
			Details:  outcome.Details,
		}

		task.Progress = float64(len(resolved)) / float64(total) * 100
		task.ProxyStats = pool.Snapshot()
		if len(resolved) == total {
			s.finalize(task, total, errCount, 0)
		}

		if err := s.persistWithRetry(task, []domain.CheckResult{result}); err != nil {
			s.failTask(task, err)
			for range updates {
			}
			return
		}
	}

	if len(resolved) == total {
		return
	}

	// task timeout: everything still unresolved becomes an ERROR result
	var missing []domain.CheckResult
	for _, id := range order {
		if _, done := resolved[id]; done {
			continue
		}
		missing = append(missing, domain.CheckResult{
			TaskID:   task.TaskID,
			SteamID:  id,
			Position: position[id],
			Summary:  domain.VerdictError,
			Details:  "timed out",
		})
		errCount++
	}

	task.ProxyStats = pool.Snapshot()
	s.finalize(task, total, errCount, len(missing))
	if err := s.persistWithRetry(task, missing); err != nil {
		s.failTask(task, err)
	}
}

func (s *checkService) finalize(task *domain.CheckTask, total, errCount, timedOut int) {
	task.Status = domain.TaskStatusCompleted
	task.Progress = 100
	switch {
	case timedOut > 0:
		task.Message = fmt.Sprintf("checked %d identifier(s), %d error(s), %d timed out", total, errCount, timedOut)
	case errCount > 0:
		task.Message = fmt.Sprintf("checked %d identifier(s), %d error(s)", total, errCount)
	default:
		task.Message = fmt.Sprintf("checked %d identifier(s)", total)
	}
	s.log.Infow("task_completed", "task_id", task.TaskID, "total", total, "errors", errCount, "timed_out", timedOut)
}

// persistWithRetry shields result updates from transient store failures; an
// update is never silently dropped.
func (s *checkService) persistWithRetry(task *domain.CheckTask, results []domain.CheckResult) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
		}
		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.repo.ApplyUpdate(writeCtx, task, results)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		s.log.Warnw("task_persist_retry", "task_id", task.TaskID, "attempt", attempt+1, "error", err)
	}
	return lastErr
}

func (s *checkService) failTask(task *domain.CheckTask, cause error) {
	s.log.Errorw("task_failed", "task_id", task.TaskID, "error", cause)
	task.Status = domain.TaskStatusFailed
	task.Progress = 100
	task.Message = fmt.Sprintf("task failed: %v", cause)
	writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.repo.ApplyUpdate(writeCtx, task, nil); err != nil {
		s.log.Errorw("task_fail_persist_failed", "task_id", task.TaskID, "error", err)
	}
}
