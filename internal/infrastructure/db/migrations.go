package db

import (
	"github.com/banwatch/backend/internal/domain"
	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.CheckTask{},
		&domain.CheckResult{},
	)
	if err != nil {
		return err
	}

	return createCustomIndexes(db)
}

func createCustomIndexes(db *gorm.DB) error {
	// Composite index for the owner-scoped recent-tasks listing
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_check_tasks_owner_created
		ON check_tasks (owner_id, created_at DESC)
	`).Error; err != nil {
		return err
	}

	return nil
}
