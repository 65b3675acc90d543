package contract

import (
	"context"
	"errors"
	"time"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"

	"github.com/google/uuid"
)

// ErrStatusConflict means the stored run left the expected status before the write landed.
var ErrStatusConflict = errors.New("research run status changed concurrently")

// RunScope limits run lookups to what one caller may see. Runs created
// without a household are visible to their creator only.
type RunScope struct {
	UserId      uuid.UUID
	HouseholdId uuid.UUID
	// All lifts the restriction. Only operator tooling sets it.
	All bool
}

func (s RunScope) Allows(householdId, createdById uuid.UUID) bool {
	switch {
	case s.All:
		return true
	case s.HouseholdId != uuid.Nil:
		return householdId == s.HouseholdId
	default:
		return householdId == uuid.Nil && createdById == s.UserId
	}
}

type ResearchRunRepository interface {
	Create(ctx context.Context, run *entity.ResearchRun) error
	Update(ctx context.Context, run *entity.ResearchRun) error
	// UpdateStatus writes run only while the stored status still equals from,
	// otherwise it returns ErrStatusConflict and leaves the row alone.
	UpdateStatus(ctx context.Context, run *entity.ResearchRun, from constant.ResearchRunStatus) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.ResearchRun, error)
	FindByIdInScope(ctx context.Context, id uuid.UUID, scope RunScope) (*entity.ResearchRun, error)
	FindByConversationId(ctx context.Context, conversationId uuid.UUID, scope RunScope) ([]*entity.ResearchRun, error)
	FindByStatus(ctx context.Context, status constant.ResearchRunStatus) ([]*entity.ResearchRun, error)
}

type ResearchSourceRepository interface {
	// CreateIfAbsent inserts the source unless its normalized URL is already known for the run.
	// It returns the stored row and whether it was created by this call.
	CreateIfAbsent(ctx context.Context, source *entity.ResearchSource) (*entity.ResearchSource, bool, error)
	MarkRetrieved(ctx context.Context, id uuid.UUID, retrievedAt time.Time) error
	FindByRunId(ctx context.Context, runId uuid.UUID) ([]*entity.ResearchSource, error)
	FindByIds(ctx context.Context, runId uuid.UUID, ids []uuid.UUID) ([]*entity.ResearchSource, error)
}

type ResearchFindingRepository interface {
	Create(ctx context.Context, finding *entity.ResearchFinding) error
	FindByRunId(ctx context.Context, runId uuid.UUID) ([]*entity.ResearchFinding, error)
	FindByIds(ctx context.Context, runId uuid.UUID, ids []uuid.UUID) ([]*entity.ResearchFinding, error)
	// DeleteBySubQuestion drops findings an interrupted attempt left for a
	// sub-question that is about to run again.
	DeleteBySubQuestion(ctx context.Context, runId uuid.UUID, subQuestion string) (int, error)
}

type ResearchEventRepository interface {
	Create(ctx context.Context, event *entity.ResearchRunEvent) error
	FindByRunId(ctx context.Context, runId uuid.UUID) ([]*entity.ResearchRunEvent, error)
}

type ResearchReportRepository interface {
	Create(ctx context.Context, report *entity.ResearchReport) error
	Update(ctx context.Context, report *entity.ResearchReport) error
	FindByRunId(ctx context.Context, runId uuid.UUID) (*entity.ResearchReport, error)
}
