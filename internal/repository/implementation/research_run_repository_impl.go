package implementation

import (
	"context"
	"errors"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/mapper"
	"homehub-be/internal/model"
	"homehub-be/internal/repository/contract"
	"homehub-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ResearchRunRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ResearchMapper
}

func NewResearchRunRepository(db *gorm.DB) contract.ResearchRunRepository {
	return &ResearchRunRepositoryImpl{
		db:     db,
		mapper: mapper.NewResearchMapper(),
	}
}

func (r *ResearchRunRepositoryImpl) Create(ctx context.Context, run *entity.ResearchRun) error {
	m := r.mapper.RunToModel(run)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*run = *r.mapper.RunToEntity(m)
	return nil
}

func (r *ResearchRunRepositoryImpl) Update(ctx context.Context, run *entity.ResearchRun) error {
	m := r.mapper.RunToModel(run)
	if err := r.db.WithContext(ctx).Omit("Sources", "Findings", "Events", "Report").Save(m).Error; err != nil {
		return err
	}
	*run = *r.mapper.RunToEntity(m)
	return nil
}

// UpdateStatus is a compare-and-set on the status column.
func (r *ResearchRunRepositoryImpl) UpdateStatus(ctx context.Context, run *entity.ResearchRun, from constant.ResearchRunStatus) error {
	m := r.mapper.RunToModel(run)
	result := r.db.WithContext(ctx).
		Model(m).
		Where("status = ?", string(from)).
		Select("*").
		Omit("id", "created_at", "Sources", "Findings", "Events", "Report").
		Updates(m)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return contract.ErrStatusConflict
	}
	*run = *r.mapper.RunToEntity(m)
	return nil
}

func (r *ResearchRunRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.ResearchRun, error) {
	return r.first(ctx, specification.ByID{ID: id})
}

func (r *ResearchRunRepositoryImpl) FindByIdInScope(ctx context.Context, id uuid.UUID, scope contract.RunScope) (*entity.ResearchRun, error) {
	return r.first(ctx, specification.ByID{ID: id}, specification.VisibleTo(scope))
}

func (r *ResearchRunRepositoryImpl) first(ctx context.Context, specs ...specification.Specification) (*entity.ResearchRun, error) {
	var m model.ResearchRun
	query := specification.Apply(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.RunToEntity(&m), nil
}

func (r *ResearchRunRepositoryImpl) FindByConversationId(ctx context.Context, conversationId uuid.UUID, scope contract.RunScope) ([]*entity.ResearchRun, error) {
	return r.findAll(ctx,
		specification.ByConversationID{ConversationID: conversationId},
		specification.VisibleTo(scope),
		specification.OrderBy{Field: "created_at", Desc: true},
	)
}

func (r *ResearchRunRepositoryImpl) FindByStatus(ctx context.Context, status constant.ResearchRunStatus) ([]*entity.ResearchRun, error) {
	return r.findAll(ctx,
		specification.ByStatus{Status: string(status)},
		specification.OrderBy{Field: "created_at"},
	)
}

func (r *ResearchRunRepositoryImpl) findAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ResearchRun, error) {
	var models []*model.ResearchRun
	query := specification.Apply(r.db.WithContext(ctx), specs...)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.ResearchRun, len(models))
	for i, m := range models {
		entities[i] = r.mapper.RunToEntity(m)
	}
	return entities, nil
}
