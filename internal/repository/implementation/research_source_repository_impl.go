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
	"gorm.io/gorm/clause"
)

type ResearchSourceRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ResearchMapper
}

func NewResearchSourceRepository(db *gorm.DB) contract.ResearchSourceRepository {
	return &ResearchSourceRepositoryImpl{
		db:     db,
		mapper: mapper.NewResearchMapper(),
	}
}

func (r *ResearchSourceRepositoryImpl) CreateIfAbsent(ctx context.Context, source *entity.ResearchSource) (*entity.ResearchSource, bool, error) {
	m := r.mapper.SourceToModel(source)
	if m.Id == uuid.Nil {
		m.Id = uuid.New()
	}

	// (research_run_id, normalized_url) is unique, so a re-sighting inserts nothing.
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "research_run_id"}, {Name: "normalized_url"}},
			DoNothing: true,
		}).
		Create(m)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return r.mapper.SourceToEntity(m), true, nil
	}

	var existing model.ResearchSource
	query := specification.Apply(r.db.WithContext(ctx),
		specification.ByResearchRunID{RunID: source.ResearchRunId},
		specification.ByNormalizedURL{URL: source.NormalizedUrl},
	)
	if err := query.First(&existing).Error; err != nil {
		return nil, false, err
	}
	return r.mapper.SourceToEntity(&existing), false, nil
}

func (r *ResearchSourceRepositoryImpl) MarkRetrieved(ctx context.Context, id uuid.UUID, retrievedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ResearchSource{}).
		Where("id = ?", id).
		Update("retrieved_at", retrievedAt).Error
}

func (r *ResearchSourceRepositoryImpl) FindByRunId(ctx context.Context, runId uuid.UUID) ([]*entity.ResearchSource, error) {
	var models []*model.ResearchSource
	query := specification.Apply(r.db.WithContext(ctx),
		specification.ByResearchRunID{RunID: runId},
		specification.OrderBy{Field: "created_at"},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.SourcesToEntities(models), nil
}

func (r *ResearchSourceRepositoryImpl) FindByIds(ctx context.Context, runId uuid.UUID, ids []uuid.UUID) ([]*entity.ResearchSource, error) {
	if len(ids) == 0 {
		return []*entity.ResearchSource{}, nil
	}
	var models []*model.ResearchSource
	query := specification.Apply(r.db.WithContext(ctx),
		specification.ByResearchRunID{RunID: runId},
		specification.ByIDs{IDs: ids},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.SourcesToEntities(models), nil
}
