package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobKindStructure = "structure"
	JobKindContent   = "content"
)

const (
	JobStatusQueued     = "queued"
	JobStatusConnecting = "connecting"
	JobStatusGenerating = "generating"
	JobStatusParsing    = "parsing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// ActiveJobStatuses are the non-terminal statuses. The single-flight guard
// counts a job in any of these as "in flight" for its owner.
var ActiveJobStatuses = []string{
	JobStatusQueued,
	JobStatusConnecting,
	JobStatusGenerating,
	JobStatusParsing,
}

// TerminalJobStatuses are the only statuses a job can never leave.
var TerminalJobStatuses = []string{
	JobStatusCompleted,
	JobStatusFailed,
}

func IsTerminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

func IsValidJobKind(kind string) bool {
	return kind == JobKindStructure || kind == JobKindContent
}

// GenerationJob is the durable record of one asynchronous generation run.
// The row is created by the submission service in status "queued" and from
// then on mutated only by the executor that claimed it, except for the
// external cancellation write (status flipped to "failed" from outside).
type GenerationJob struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID uuid.UUID      `gorm:"type:uuid;not null;index" json:"owner_user_id"`
	Kind        string         `gorm:"column:kind;not null;index" json:"kind"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Progress    int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Step        string         `gorm:"column:step;type:text" json:"step"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Result      datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	Error       string         `gorm:"column:error;type:text" json:"error,omitempty"`
	TokensIn    int            `gorm:"column:tokens_in;not null;default:0" json:"tokens_in"`
	TokensOut   int            `gorm:"column:tokens_out;not null;default:0" json:"tokens_out"`
	ModelUsed   string         `gorm:"column:model_used" json:"model_used,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (GenerationJob) TableName() string { return "generation_job" }
