package dto

import (
	"time"

	"homehub-be/internal/entity"

	"github.com/google/uuid"
)

type CreateResearchPlanRequest struct {
	ConversationId uuid.UUID `json:"conversation_id" validate:"required"`
	Query          string    `json:"query" validate:"required,max=4000"`
	Effort         string    `json:"effort" validate:"omitempty,oneof=quick standard deep QUICK STANDARD DEEP"`
	RecencyDays    *int      `json:"recency_days" validate:"omitempty,min=1,max=3650"`
}

type CreateResearchPlanResponse struct {
	RunId   uuid.UUID             `json:"run_id"`
	Status  string                `json:"status"`
	Effort  string                `json:"effort"`
	Plan    entity.ResearchPlan   `json:"plan"`
	Budget  entity.ResearchBudget `json:"budget"`
	Planner entity.PlannerStatus  `json:"planner"`
}

type StartResearchRunResponse struct {
	RunId  uuid.UUID `json:"run_id"`
	Status string    `json:"status"`
}

type ResearchRunSummary struct {
	Id             uuid.UUID  `json:"id"`
	ConversationId uuid.UUID  `json:"conversation_id"`
	Status         string     `json:"status"`
	Query          string     `json:"query"`
	Effort         string     `json:"effort"`
	QualityScore   *float64   `json:"quality_score"`
	StopReason     string     `json:"stop_reason,omitempty"`
	Error          *string    `json:"error"`
	StartedAt      *time.Time `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ResearchRunResponse struct {
	Id             uuid.UUID              `json:"id"`
	ConversationId uuid.UUID              `json:"conversation_id"`
	HouseholdId    uuid.UUID              `json:"household_id"`
	CreatedById    uuid.UUID              `json:"created_by_id"`
	Status         string                 `json:"status"`
	Query          string                 `json:"query"`
	Effort         string                 `json:"effort"`
	RecencyDays    *int                   `json:"recency_days"`
	Plan           entity.ResearchPlan    `json:"plan"`
	Metrics        entity.ResearchMetrics `json:"metrics"`
	QualityScore   *float64               `json:"quality_score"`
	Error          *string                `json:"error"`
	StartedAt      *time.Time             `json:"started_at"`
	CompletedAt    *time.Time             `json:"completed_at"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      *time.Time             `json:"updated_at"`
}

type ResearchSourceResponse struct {
	Id          uuid.UUID              `json:"id"`
	Url         string                 `json:"url"`
	Title       string                 `json:"title"`
	Domain      string                 `json:"domain"`
	Snippet     string                 `json:"snippet"`
	PublishedAt *time.Time             `json:"published_at"`
	RetrievedAt *time.Time             `json:"retrieved_at"`
	Score       *float64               `json:"score"`
	Metadata    map[string]interface{} `json:"metadata"`
	CreatedAt   time.Time              `json:"created_at"`
}

type ResearchFindingResponse struct {
	Id                  uuid.UUID                `json:"id"`
	SubQuestion         string                   `json:"sub_question"`
	Claim               string                   `json:"claim"`
	Confidence          float64                  `json:"confidence"`
	Status              string                   `json:"status"`
	SupportingSourceIds []uuid.UUID              `json:"supporting_source_ids"`
	Evidence            []entity.FindingEvidence `json:"evidence"`
	Notes               string                   `json:"notes,omitempty"`
	CreatedAt           time.Time                `json:"created_at"`
}

type ResearchReportResponse struct {
	Id             uuid.UUID                  `json:"id"`
	Summary        string                     `json:"summary"`
	ReportMarkdown string                     `json:"report_markdown"`
	Unknowns       []string                   `json:"unknowns"`
	Actions        []entity.ReportAction      `json:"actions"`
	Presentation   *entity.ReportPresentation `json:"presentation"`
	CreatedAt      time.Time                  `json:"created_at"`
}

type ResearchEventResponse struct {
	Id          uuid.UUID              `json:"id"`
	Stage       string                 `json:"stage"`
	Status      string                 `json:"status"`
	SubQuestion *string                `json:"sub_question"`
	Message     string                 `json:"message"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
}

type ResearchRunStatusResponse struct {
	Run      ResearchRunResponse        `json:"run"`
	Sources  []*ResearchSourceResponse  `json:"sources"`
	Findings []*ResearchFindingResponse `json:"findings"`
	Report   *ResearchReportResponse    `json:"report"`
	Events   []*ResearchEventResponse   `json:"events"`
}

type ResearchActionItem struct {
	Title       string `json:"title" validate:"required,max=500"`
	Description string `json:"description" validate:"max=4000"`
}

type CreateTasksFromRunRequest struct {
	FindingIds  []uuid.UUID          `json:"finding_ids"`
	ActionItems []ResearchActionItem `json:"action_items" validate:"dive"`
}

type CreateTasksFromRunResponse struct {
	CreatedTaskIds []uuid.UUID `json:"created_task_ids"`
}

// ResearchRunRequestedMessage is the run queue payload.
type ResearchRunRequestedMessage struct {
	RunId  uuid.UUID `json:"run_id"`
	Reason string    `json:"reason"`
}
