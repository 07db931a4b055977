package db

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/banwatch/backend/internal/core/ports"
	"github.com/banwatch/backend/internal/domain"
	"github.com/banwatch/backend/internal/infrastructure/logger"
)

type taskRepository struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRepository(db *gorm.DB, log *logger.Logger) ports.TaskRepository {
	return &taskRepository{db: db, log: log}
}

func (r *taskRepository) Create(ctx context.Context, task *domain.CheckTask) error {
	if err := r.db.WithContext(ctx).Omit("Results").Create(task).Error; err != nil {
		r.log.Errorw("task_repo_create_failed", "task_id", task.TaskID, "error", err)
		return err
	}
	r.log.Infow("task_repo_create_ok", "task_id", task.TaskID, "owner_id", task.OwnerID)
	return nil
}

func (r *taskRepository) GetByID(ctx context.Context, taskID string) (*domain.CheckTask, error) {
	var task domain.CheckTask
	err := r.db.WithContext(ctx).
		Preload("Results", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		First(&task, "task_id = ?", taskID).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			r.log.Errorw("task_repo_get_failed", "task_id", taskID, "error", err)
		}
		return nil, err
	}
	return &task, nil
}

func (r *taskRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.CheckTask, error) {
	var tasks []domain.CheckTask
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		r.log.Errorw("task_repo_list_failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	return tasks, nil
}

func (r *taskRepository) ListRecent(ctx context.Context, limit int) ([]domain.CheckTask, error) {
	var tasks []domain.CheckTask
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		r.log.Errorw("task_repo_list_recent_failed", "error", err)
		return nil, err
	}
	return tasks, nil
}

// ApplyUpdate writes one aggregator step atomically: the result upsert and
// the task's progress/status/message/proxy_stats never land separately.
func (r *taskRepository) ApplyUpdate(ctx context.Context, task *domain.CheckTask, results []domain.CheckResult) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(results) > 0 {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "task_id"}, {Name: "steam_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"summary", "details"}),
			}).Create(&results).Error; err != nil {
				return err
			}
		}
		return tx.Model(&domain.CheckTask{}).
			Where("task_id = ?", task.TaskID).
			Updates(map[string]interface{}{
				"status":      task.Status,
				"message":     task.Message,
				"progress":    task.Progress,
				"proxy_stats": task.ProxyStats,
			}).Error
	})
	if err != nil {
		r.log.Errorw("task_repo_apply_update_failed", "task_id", task.TaskID, "error", err)
		return err
	}
	return nil
}
