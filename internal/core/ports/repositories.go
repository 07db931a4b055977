package ports

import (
	"context"

	"github.com/banwatch/backend/internal/domain"
)

type TaskRepository interface {
	Create(ctx context.Context, task *domain.CheckTask) error
	// GetByID loads the task with its results ordered by submission position.
	GetByID(ctx context.Context, taskID string) (*domain.CheckTask, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.CheckTask, error)
	ListRecent(ctx context.Context, limit int) ([]domain.CheckTask, error)
	// ApplyUpdate upserts the given results and persists the task's mutable
	// fields (status, message, progress, proxy stats) in one transaction.
	ApplyUpdate(ctx context.Context, task *domain.CheckTask, results []domain.CheckResult) error
}
