package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/skillforge/skillforge-backend/internal/domain"
)

func SeedGenerationJob(tb testing.TB, ctx context.Context, tx *gorm.DB, owner uuid.UUID, kind, status string) *types.GenerationJob {
	tb.Helper()
	now := time.Now()
	job := &types.GenerationJob{
		ID:          uuid.New(),
		OwnerUserID: owner,
		Kind:        kind,
		Status:      status,
		Step:        "Queued",
		Payload:     datatypes.JSON([]byte(`{"goal":"seeded fixture goal"}`)),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(job).Error; err != nil {
		tb.Fatalf("seed generation job: %v", err)
	}
	return job
}
