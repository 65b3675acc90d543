package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ResearchRun owns its sources, findings, events and report. Deleting a run cascades.
type ResearchRun struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ConversationId uuid.UUID      `gorm:"type:uuid;not null;index:idx_research_runs_conversation,priority:1"`
	HouseholdId    uuid.UUID      `gorm:"type:uuid;not null;index"`
	CreatedById    uuid.UUID      `gorm:"type:uuid;not null"`
	Status         string         `gorm:"type:varchar(32);not null;index"`
	Query          string         `gorm:"type:text;not null"`
	Effort         string         `gorm:"type:varchar(16);not null"`
	RecencyDays    *int           `gorm:"type:integer"`
	Plan           datatypes.JSON `gorm:"type:jsonb;not null"`
	Metrics        datatypes.JSON `gorm:"type:jsonb;not null"`
	QualityScore   *float64       `gorm:"type:double precision"`
	Error          *string        `gorm:"type:text"`
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_research_runs_conversation,priority:2"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`

	Sources  []ResearchSource   `gorm:"foreignKey:ResearchRunId;constraint:OnDelete:CASCADE"`
	Findings []ResearchFinding  `gorm:"foreignKey:ResearchRunId;constraint:OnDelete:CASCADE"`
	Events   []ResearchRunEvent `gorm:"foreignKey:ResearchRunId;constraint:OnDelete:CASCADE"`
	Report   *ResearchReport    `gorm:"foreignKey:ResearchRunId;constraint:OnDelete:CASCADE"`
}

func (ResearchRun) TableName() string {
	return "research_runs"
}

type ResearchSource struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ResearchRunId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_research_sources_run_url,priority:1"`
	Url           string    `gorm:"type:text;not null"`
	NormalizedUrl string    `gorm:"type:text;not null;uniqueIndex:idx_research_sources_run_url,priority:2"`
	Title         string    `gorm:"type:text"`
	Domain        string    `gorm:"type:varchar(255)"`
	Snippet       string    `gorm:"type:text"`
	PublishedAt   *time.Time
	RetrievedAt   *time.Time
	Score         *float64       `gorm:"type:double precision"`
	Metadata      datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"autoCreateTime"`
}

func (ResearchSource) TableName() string {
	return "research_sources"
}

type ResearchFinding struct {
	Id                  uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ResearchRunId       uuid.UUID      `gorm:"type:uuid;not null;index:idx_research_findings_run_created,priority:1"`
	SubQuestion         string         `gorm:"type:text;not null"`
	Claim               string         `gorm:"type:text;not null"`
	Confidence          float64        `gorm:"type:double precision;not null"`
	SupportingSourceIds datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"`
	Evidence            datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"`
	Status              string         `gorm:"type:varchar(16);not null"`
	Notes               string         `gorm:"type:text"`
	CreatedAt           time.Time      `gorm:"autoCreateTime;index:idx_research_findings_run_created,priority:2"`
}

func (ResearchFinding) TableName() string {
	return "research_findings"
}

type ResearchRunEvent struct {
	Id            uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ResearchRunId uuid.UUID      `gorm:"type:uuid;not null;index:idx_research_events_run_created,priority:1"`
	Stage         string         `gorm:"type:varchar(32);not null"`
	Status        string         `gorm:"type:varchar(16);not null"`
	SubQuestion   *string        `gorm:"type:text"`
	Message       string         `gorm:"type:text;not null"`
	Payload       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time      `gorm:"index:idx_research_events_run_created,priority:2"`
}

func (ResearchRunEvent) TableName() string {
	return "research_run_events"
}

type ResearchReport struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ResearchRunId  uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex"`
	Summary        string         `gorm:"type:text;not null"`
	ReportMarkdown string         `gorm:"type:text;not null"`
	Unknowns       datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"`
	Actions        datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'"`
	Presentation   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
}

func (ResearchReport) TableName() string {
	return "research_reports"
}
