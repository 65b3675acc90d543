package implementation

import (
	"context"
	"time"

	"homehub-be/internal/entity"
	"homehub-be/internal/mapper"
	"homehub-be/internal/model"
	"homehub-be/internal/repository/contract"
	"homehub-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ResearchEventRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ResearchMapper
}

func NewResearchEventRepository(db *gorm.DB) contract.ResearchEventRepository {
	return &ResearchEventRepositoryImpl{
		db:     db,
		mapper: mapper.NewResearchMapper(),
	}
}

func (r *ResearchEventRepositoryImpl) Create(ctx context.Context, event *entity.ResearchRunEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	m := r.mapper.EventToModel(event)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*event = *r.mapper.EventToEntity(m)
	return nil
}

func (r *ResearchEventRepositoryImpl) FindByRunId(ctx context.Context, runId uuid.UUID) ([]*entity.ResearchRunEvent, error) {
	var models []*model.ResearchRunEvent
	query := specification.Apply(r.db.WithContext(ctx),
		specification.ByResearchRunID{RunID: runId},
		specification.OrderBy{Field: "created_at"},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.ResearchRunEvent, len(models))
	for i, m := range models {
		entities[i] = r.mapper.EventToEntity(m)
	}
	return entities, nil
}
