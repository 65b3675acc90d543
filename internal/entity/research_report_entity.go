package entity

import (
	"time"

	"github.com/google/uuid"
)

type ResearchReport struct {
	Id             uuid.UUID
	ResearchRunId  uuid.UUID
	Summary        string
	ReportMarkdown string
	Unknowns       []string
	Actions        []ReportAction
	Presentation   *ReportPresentation
	CreatedAt      time.Time
}

type ReportAction struct {
	Title             string      `json:"title"`
	Description       string      `json:"description,omitempty"`
	RelatedFindingIds []uuid.UUID `json:"related_finding_ids,omitempty"`
	CreatedTaskId     *uuid.UUID  `json:"created_task_id,omitempty"`
}

type ReportPresentation struct {
	Markdown string              `json:"markdown"`
	Blocks   []PresentationBlock `json:"blocks"`
}

type PresentationBlock struct {
	Type  string                 `json:"type"`
	Title string                 `json:"title,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}
