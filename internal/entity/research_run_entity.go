package entity

import (
	"time"

	"homehub-be/internal/constant"

	"github.com/google/uuid"
)

type ResearchRun struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	HouseholdId    uuid.UUID
	CreatedById    uuid.UUID
	Status         constant.ResearchRunStatus
	Query          string
	Effort         constant.ResearchEffort
	RecencyDays    *int
	Plan           ResearchPlan
	Metrics        ResearchMetrics
	QualityScore   *float64
	Error          *string
	StartedAt      *time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

type ResearchPlan struct {
	Objective       string       `json:"objective"`
	SubQuestions    []string     `json:"sub_questions"`
	Assumptions     []string     `json:"assumptions"`
	OutputFormat    string       `json:"output_format"`
	EffortRationale string       `json:"effort_rationale,omitempty"`
	StopCriteria    StopCriteria `json:"stop_criteria"`
}

type StopCriteria struct {
	ConfidenceTarget         float64 `json:"confidence_target"`
	DiminishingReturnsDelta  float64 `json:"diminishing_returns_delta"`
	DiminishingReturnsWindow int     `json:"diminishing_returns_window"`
}

// ResearchBudget is derived from effort and frozen into metrics when the plan is created.
type ResearchBudget struct {
	MaxSteps                   int `json:"max_steps"`
	MaxRuntimeSeconds          int `json:"max_runtime_seconds"`
	MinSources                 int `json:"min_sources"`
	MaxRequeriesPerSubQuestion int `json:"max_requeries_per_sub_question"`
}

func (b ResearchBudget) MaxRuntime() time.Duration {
	return time.Duration(b.MaxRuntimeSeconds) * time.Second
}

type PlannerStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ResearchMetrics is the mutable progress snapshot persisted on every transition.
// Everything needed to resume a run lives here.
type ResearchMetrics struct {
	Budget                   ResearchBudget `json:"budget"`
	Planner                  PlannerStatus  `json:"planner"`
	StepsUsed                int            `json:"steps_used"`
	// InFlightSteps holds the step allowance of each dispatched sub-question
	// that has not reported back, keyed by plan index.
	InFlightSteps            map[int]int    `json:"in_flight_steps,omitempty"`
	ActiveSeconds            float64        `json:"active_seconds"`
	ProcessedSubQuestions    []int          `json:"processed_sub_questions"`
	FailedSoftSubQuestions   []int          `json:"failed_soft_sub_questions"`
	UnderSourcedSubQuestions []int          `json:"under_sourced_sub_questions"`
	UsableSourceIds          []uuid.UUID    `json:"usable_source_ids"`
	SourcesCount             int            `json:"sources_count"`
	FindingsCount            int            `json:"findings_count"`
	ConfidenceHistory        []float64      `json:"confidence_history"`
	AggregateConfidence      float64        `json:"aggregate_confidence"`
	Unknowns                 []string       `json:"unknowns,omitempty"`
	SuggestedActions         []ReportAction `json:"suggested_actions,omitempty"`
	StopReason               string         `json:"stop_reason,omitempty"`
	Warnings                 []string       `json:"warnings,omitempty"`
	ReportFallback           bool           `json:"report_fallback,omitempty"`
}

func (m *ResearchMetrics) IsProcessed(index int) bool {
	for _, i := range m.ProcessedSubQuestions {
		if i == index {
			return true
		}
	}
	return false
}
