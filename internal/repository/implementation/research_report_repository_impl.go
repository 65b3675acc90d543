package implementation

import (
	"context"
	"errors"

	"homehub-be/internal/entity"
	"homehub-be/internal/mapper"
	"homehub-be/internal/model"
	"homehub-be/internal/repository/contract"
	"homehub-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ResearchReportRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ResearchMapper
}

func NewResearchReportRepository(db *gorm.DB) contract.ResearchReportRepository {
	return &ResearchReportRepositoryImpl{
		db:     db,
		mapper: mapper.NewResearchMapper(),
	}
}

// Create fails on the unique research_run_id index if the run already has a report.
func (r *ResearchReportRepositoryImpl) Create(ctx context.Context, report *entity.ResearchReport) error {
	m := r.mapper.ReportToModel(report)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*report = *r.mapper.ReportToEntity(m)
	return nil
}

func (r *ResearchReportRepositoryImpl) Update(ctx context.Context, report *entity.ResearchReport) error {
	m := r.mapper.ReportToModel(report)
	if err := r.db.WithContext(ctx).Save(m).Error; err != nil {
		return err
	}
	*report = *r.mapper.ReportToEntity(m)
	return nil
}

func (r *ResearchReportRepositoryImpl) FindByRunId(ctx context.Context, runId uuid.UUID) (*entity.ResearchReport, error) {
	var m model.ResearchReport
	query := specification.Apply(r.db.WithContext(ctx), specification.ByResearchRunID{RunID: runId})
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ReportToEntity(&m), nil
}
