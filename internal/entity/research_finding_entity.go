package entity

import (
	"time"

	"homehub-be/internal/constant"

	"github.com/google/uuid"
)

type ResearchFinding struct {
	Id                  uuid.UUID
	ResearchRunId       uuid.UUID
	SubQuestion         string
	Claim               string
	Confidence          float64
	SupportingSourceIds []uuid.UUID
	Evidence            []FindingEvidence
	Status              constant.ResearchFindingStatus
	Notes               string
	CreatedAt           time.Time
}

type FindingEvidence struct {
	SourceId       uuid.UUID `json:"source_id"`
	Excerpt        *string   `json:"excerpt"`
	RelevanceScore float64   `json:"relevance_score"`
	Url            string    `json:"url"`
	Title          string    `json:"title"`
}
