package db

import (
	"fmt"

	types "github.com/skillforge/skillforge-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.GenerationJob{},
	)
}

func EnsureJobIndexes(db *gorm.DB) error {
	// Single-flight checks scan by owner + status; keep that path indexed.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_generation_job_owner_status
		ON generation_job (owner_user_id, status);
	`).Error; err != nil {
		return fmt.Errorf("create idx_generation_job_owner_status: %w", err)
	}
	// Latest-job lookups per owner.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_generation_job_owner_created_at
		ON generation_job (owner_user_id, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_generation_job_owner_created_at: %w", err)
	}
	return nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureJobIndexes(s.db); err != nil {
		s.log.Error("Job index migration failed", "error", err)
		return err
	}
	return nil
}
