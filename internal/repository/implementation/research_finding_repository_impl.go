package implementation

import (
	"context"

	"homehub-be/internal/entity"
	"homehub-be/internal/mapper"
	"homehub-be/internal/model"
	"homehub-be/internal/repository/contract"
	"homehub-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ResearchFindingRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ResearchMapper
}

func NewResearchFindingRepository(db *gorm.DB) contract.ResearchFindingRepository {
	return &ResearchFindingRepositoryImpl{
		db:     db,
		mapper: mapper.NewResearchMapper(),
	}
}

func (r *ResearchFindingRepositoryImpl) Create(ctx context.Context, finding *entity.ResearchFinding) error {
	m := r.mapper.FindingToModel(finding)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*finding = *r.mapper.FindingToEntity(m)
	return nil
}

func (r *ResearchFindingRepositoryImpl) FindByRunId(ctx context.Context, runId uuid.UUID) ([]*entity.ResearchFinding, error) {
	return r.find(ctx,
		specification.ByResearchRunID{RunID: runId},
		specification.OrderBy{Field: "created_at"},
	)
}

func (r *ResearchFindingRepositoryImpl) FindByIds(ctx context.Context, runId uuid.UUID, ids []uuid.UUID) ([]*entity.ResearchFinding, error) {
	if len(ids) == 0 {
		return []*entity.ResearchFinding{}, nil
	}
	return r.find(ctx,
		specification.ByResearchRunID{RunID: runId},
		specification.ByIDs{IDs: ids},
		specification.OrderBy{Field: "created_at"},
	)
}

func (r *ResearchFindingRepositoryImpl) DeleteBySubQuestion(ctx context.Context, runId uuid.UUID, subQuestion string) (int, error) {
	query := specification.Apply(r.db.WithContext(ctx),
		specification.ByResearchRunID{RunID: runId},
		specification.BySubQuestion{SubQuestion: subQuestion},
	)
	result := query.Delete(&model.ResearchFinding{})
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}

func (r *ResearchFindingRepositoryImpl) find(ctx context.Context, specs ...specification.Specification) ([]*entity.ResearchFinding, error) {
	var models []*model.ResearchFinding
	query := specification.Apply(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.FindingsToEntities(models), nil
}
