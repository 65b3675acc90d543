package unitofwork

import (
	"context"

	"homehub-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ResearchRunRepository() contract.ResearchRunRepository
	ResearchSourceRepository() contract.ResearchSourceRepository
	ResearchFindingRepository() contract.ResearchFindingRepository
	ResearchEventRepository() contract.ResearchEventRepository
	ResearchReportRepository() contract.ResearchReportRepository
}
