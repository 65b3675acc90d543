package mapper

import (
	"encoding/json"
	"time"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/model"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ResearchMapper struct{}

func NewResearchMapper() *ResearchMapper {
	return &ResearchMapper{}
}

func toJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func fromJSON(data datatypes.JSON, out interface{}) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, out)
}

// Run Mappers

func (m *ResearchMapper) RunToEntity(r *model.ResearchRun) *entity.ResearchRun {
	if r == nil {
		return nil
	}

	var updatedAt *time.Time
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		updatedAt = &t
	}

	run := &entity.ResearchRun{
		Id:             r.Id,
		ConversationId: r.ConversationId,
		HouseholdId:    r.HouseholdId,
		CreatedById:    r.CreatedById,
		Status:         constant.ResearchRunStatus(r.Status),
		Query:          r.Query,
		Effort:         constant.ResearchEffort(r.Effort),
		RecencyDays:    r.RecencyDays,
		QualityScore:   r.QualityScore,
		Error:          r.Error,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      updatedAt,
	}
	fromJSON(r.Plan, &run.Plan)
	fromJSON(r.Metrics, &run.Metrics)
	return run
}

func (m *ResearchMapper) RunToModel(r *entity.ResearchRun) *model.ResearchRun {
	if r == nil {
		return nil
	}

	var updatedAt time.Time
	if r.UpdatedAt != nil {
		updatedAt = *r.UpdatedAt
	}

	return &model.ResearchRun{
		Id:             r.Id,
		ConversationId: r.ConversationId,
		HouseholdId:    r.HouseholdId,
		CreatedById:    r.CreatedById,
		Status:         string(r.Status),
		Query:          r.Query,
		Effort:         string(r.Effort),
		RecencyDays:    r.RecencyDays,
		Plan:           toJSON(r.Plan),
		Metrics:        toJSON(r.Metrics),
		QualityScore:   r.QualityScore,
		Error:          r.Error,
		StartedAt:      r.StartedAt,
		CompletedAt:    r.CompletedAt,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      updatedAt,
	}
}

// Source Mappers

func (m *ResearchMapper) SourceToEntity(s *model.ResearchSource) *entity.ResearchSource {
	if s == nil {
		return nil
	}
	src := &entity.ResearchSource{
		Id:            s.Id,
		ResearchRunId: s.ResearchRunId,
		Url:           s.Url,
		NormalizedUrl: s.NormalizedUrl,
		Title:         s.Title,
		Domain:        s.Domain,
		Snippet:       s.Snippet,
		PublishedAt:   s.PublishedAt,
		RetrievedAt:   s.RetrievedAt,
		Score:         s.Score,
		CreatedAt:     s.CreatedAt,
	}
	fromJSON(s.Metadata, &src.Metadata)
	return src
}

func (m *ResearchMapper) SourceToModel(s *entity.ResearchSource) *model.ResearchSource {
	if s == nil {
		return nil
	}
	return &model.ResearchSource{
		Id:            s.Id,
		ResearchRunId: s.ResearchRunId,
		Url:           s.Url,
		NormalizedUrl: s.NormalizedUrl,
		Title:         s.Title,
		Domain:        s.Domain,
		Snippet:       s.Snippet,
		PublishedAt:   s.PublishedAt,
		RetrievedAt:   s.RetrievedAt,
		Score:         s.Score,
		Metadata:      toJSON(s.Metadata),
		CreatedAt:     s.CreatedAt,
	}
}

func (m *ResearchMapper) SourcesToEntities(models []*model.ResearchSource) []*entity.ResearchSource {
	entities := make([]*entity.ResearchSource, len(models))
	for i, s := range models {
		entities[i] = m.SourceToEntity(s)
	}
	return entities
}

// Finding Mappers

func (m *ResearchMapper) FindingToEntity(f *model.ResearchFinding) *entity.ResearchFinding {
	if f == nil {
		return nil
	}
	finding := &entity.ResearchFinding{
		Id:            f.Id,
		ResearchRunId: f.ResearchRunId,
		SubQuestion:   f.SubQuestion,
		Claim:         f.Claim,
		Confidence:    f.Confidence,
		Status:        constant.ResearchFindingStatus(f.Status),
		Notes:         f.Notes,
		CreatedAt:     f.CreatedAt,
	}
	fromJSON(f.SupportingSourceIds, &finding.SupportingSourceIds)
	fromJSON(f.Evidence, &finding.Evidence)
	return finding
}

func (m *ResearchMapper) FindingToModel(f *entity.ResearchFinding) *model.ResearchFinding {
	if f == nil {
		return nil
	}
	sourceIds := f.SupportingSourceIds
	if sourceIds == nil {
		sourceIds = []uuid.UUID{}
	}
	evidence := f.Evidence
	if evidence == nil {
		evidence = []entity.FindingEvidence{}
	}
	return &model.ResearchFinding{
		Id:                  f.Id,
		ResearchRunId:       f.ResearchRunId,
		SubQuestion:         f.SubQuestion,
		Claim:               f.Claim,
		Confidence:          f.Confidence,
		SupportingSourceIds: toJSON(sourceIds),
		Evidence:            toJSON(evidence),
		Status:              string(f.Status),
		Notes:               f.Notes,
		CreatedAt:           f.CreatedAt,
	}
}

func (m *ResearchMapper) FindingsToEntities(models []*model.ResearchFinding) []*entity.ResearchFinding {
	entities := make([]*entity.ResearchFinding, len(models))
	for i, f := range models {
		entities[i] = m.FindingToEntity(f)
	}
	return entities
}

// Event Mappers

func (m *ResearchMapper) EventToEntity(e *model.ResearchRunEvent) *entity.ResearchRunEvent {
	if e == nil {
		return nil
	}
	event := &entity.ResearchRunEvent{
		Id:            e.Id,
		ResearchRunId: e.ResearchRunId,
		Stage:         e.Stage,
		Status:        constant.ResearchEventStatus(e.Status),
		SubQuestion:   e.SubQuestion,
		Message:       e.Message,
		CreatedAt:     e.CreatedAt,
	}
	fromJSON(e.Payload, &event.Payload)
	return event
}

func (m *ResearchMapper) EventToModel(e *entity.ResearchRunEvent) *model.ResearchRunEvent {
	if e == nil {
		return nil
	}
	return &model.ResearchRunEvent{
		Id:            e.Id,
		ResearchRunId: e.ResearchRunId,
		Stage:         e.Stage,
		Status:        string(e.Status),
		SubQuestion:   e.SubQuestion,
		Message:       e.Message,
		Payload:       toJSON(e.Payload),
		CreatedAt:     e.CreatedAt,
	}
}

// Report Mappers

func (m *ResearchMapper) ReportToEntity(r *model.ResearchReport) *entity.ResearchReport {
	if r == nil {
		return nil
	}
	report := &entity.ResearchReport{
		Id:             r.Id,
		ResearchRunId:  r.ResearchRunId,
		Summary:        r.Summary,
		ReportMarkdown: r.ReportMarkdown,
		CreatedAt:      r.CreatedAt,
	}
	fromJSON(r.Unknowns, &report.Unknowns)
	fromJSON(r.Actions, &report.Actions)
	fromJSON(r.Presentation, &report.Presentation)
	return report
}

func (m *ResearchMapper) ReportToModel(r *entity.ResearchReport) *model.ResearchReport {
	if r == nil {
		return nil
	}
	unknowns := r.Unknowns
	if unknowns == nil {
		unknowns = []string{}
	}
	actions := r.Actions
	if actions == nil {
		actions = []entity.ReportAction{}
	}
	var presentation datatypes.JSON
	if r.Presentation != nil {
		presentation = toJSON(r.Presentation)
	}
	return &model.ResearchReport{
		Id:             r.Id,
		ResearchRunId:  r.ResearchRunId,
		Summary:        r.Summary,
		ReportMarkdown: r.ReportMarkdown,
		Unknowns:       toJSON(unknowns),
		Actions:        toJSON(actions),
		Presentation:   presentation,
		CreatedAt:      r.CreatedAt,
	}
}
