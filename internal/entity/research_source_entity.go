package entity

import (
	"time"

	"github.com/google/uuid"
)

type ResearchSource struct {
	Id            uuid.UUID
	ResearchRunId uuid.UUID
	Url           string
	NormalizedUrl string
	Title         string
	Domain        string
	Snippet       string
	PublishedAt   *time.Time
	RetrievedAt   *time.Time
	Score         *float64
	Metadata      map[string]interface{}
	CreatedAt     time.Time
}
