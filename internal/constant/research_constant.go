package constant

import "strings"

type ResearchRunStatus string

const (
	ResearchRunStatusPlanning              ResearchRunStatus = "planning"
	ResearchRunStatusRunning               ResearchRunStatus = "running"
	ResearchRunStatusCompleted             ResearchRunStatus = "completed"
	ResearchRunStatusCompletedWithWarnings ResearchRunStatus = "completed_with_warnings"
	ResearchRunStatusFailed                ResearchRunStatus = "failed"
	ResearchRunStatusCanceled              ResearchRunStatus = "canceled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s ResearchRunStatus) IsTerminal() bool {
	switch s {
	case ResearchRunStatusCompleted,
		ResearchRunStatusCompletedWithWarnings,
		ResearchRunStatusFailed,
		ResearchRunStatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo encodes the run state machine.
// planning -> running | canceled, running -> any terminal state.
func (s ResearchRunStatus) CanTransitionTo(next ResearchRunStatus) bool {
	switch s {
	case ResearchRunStatusPlanning:
		return next == ResearchRunStatusRunning || next == ResearchRunStatusCanceled || next == ResearchRunStatusFailed
	case ResearchRunStatusRunning:
		return next.IsTerminal()
	}
	return false
}

type ResearchEffort string

const (
	ResearchEffortQuick    ResearchEffort = "quick"
	ResearchEffortStandard ResearchEffort = "standard"
	ResearchEffortDeep     ResearchEffort = "deep"
)

// ParseResearchEffort is case-insensitive. The second value is false for unknown input.
func ParseResearchEffort(value string) (ResearchEffort, bool) {
	switch ResearchEffort(strings.ToLower(strings.TrimSpace(value))) {
	case ResearchEffortQuick:
		return ResearchEffortQuick, true
	case ResearchEffortStandard:
		return ResearchEffortStandard, true
	case ResearchEffortDeep:
		return ResearchEffortDeep, true
	}
	return ResearchEffortStandard, false
}

type ResearchFindingStatus string

const (
	ResearchFindingStatusPartial    ResearchFindingStatus = "partial"
	ResearchFindingStatusSufficient ResearchFindingStatus = "sufficient"
	ResearchFindingStatusConflicted ResearchFindingStatus = "conflicted"
	ResearchFindingStatusUnknown    ResearchFindingStatus = "unknown"
)

type ResearchEventStatus string

const (
	ResearchEventStatusStarted   ResearchEventStatus = "started"
	ResearchEventStatusProgress  ResearchEventStatus = "progress"
	ResearchEventStatusCompleted ResearchEventStatus = "completed"
	ResearchEventStatusFailed    ResearchEventStatus = "failed"
	ResearchEventStatusInfo      ResearchEventStatus = "info"
)

// Event stages
const (
	ResearchStagePlanning     = "planning"
	ResearchStageRun          = "run"
	ResearchStageSubQuestion  = "sub_question"
	ResearchStageSearch       = "search"
	ResearchStageFetch        = "fetch"
	ResearchStageSynthesis    = "synthesis"
	ResearchStageReport       = "report"
	ResearchStageCancellation = "cancellation"
	ResearchStageTasks        = "tasks"
)

const (
	PlannerStatusGenerated = "generated"
	PlannerStatusFallback  = "fallback"
)

// Stop reasons recorded in run metrics
const (
	StopReasonAllProcessed       = "all_sub_questions_processed"
	StopReasonMaxRuntime         = "max_runtime_reached"
	StopReasonMaxSteps           = "max_steps_reached"
	StopReasonDiminishingReturns = "diminishing_returns"
	StopReasonConfidenceTarget   = "confidence_target_reached"
	StopReasonCanceled           = "canceled"
	StopReasonError              = "error"
)

// Presentation block types
const (
	PresentationBlockComparisonTable = "comparison_table"
	PresentationBlockRankedList      = "ranked_list"
	PresentationBlockSources         = "sources"
	PresentationBlockCallout         = "callout"
	PresentationBlockActionItems     = "action_items"
)

// Event bus
const (
	ResearchRunTopic = "RESEARCH_RUN_REQUESTED"

	EventResearchRunStarted  = "RESEARCH_RUN_STARTED"
	EventResearchRunProgress = "RESEARCH_RUN_PROGRESS"
	EventResearchRunFinished = "RESEARCH_RUN_FINISHED"
	EventTaskCreateRequested = "TASK_CREATE_REQUESTED"
)
