// Package notify tells the rest of the application about research run
// lifecycle changes over the event bus.
package notify

import (
	"context"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/pkg/logger"
	"homehub-be/pkg/events"
)

type Notifier interface {
	RunStarted(ctx context.Context, run *entity.ResearchRun)
	RunProgress(ctx context.Context, run *entity.ResearchRun, subQuestionIndex int)
	RunFinished(ctx context.Context, run *entity.ResearchRun)
}

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// BusNotifier publishes RESEARCH_RUN_* events. Publish failures are logged
// and never reach the run.
type BusNotifier struct {
	publisher EventPublisher
	logger    logger.ILogger
}

func NewBusNotifier(publisher EventPublisher, log logger.ILogger) *BusNotifier {
	return &BusNotifier{publisher: publisher, logger: log}
}

func (n *BusNotifier) RunStarted(ctx context.Context, run *entity.ResearchRun) {
	n.publish(ctx, constant.EventResearchRunStarted, run, map[string]interface{}{
		"sub_questions": len(run.Plan.SubQuestions),
		"effort":        run.Effort,
	})
}

func (n *BusNotifier) RunProgress(ctx context.Context, run *entity.ResearchRun, subQuestionIndex int) {
	n.publish(ctx, constant.EventResearchRunProgress, run, map[string]interface{}{
		"sub_question_index": subQuestionIndex,
		"processed":          len(run.Metrics.ProcessedSubQuestions),
		"total":              len(run.Plan.SubQuestions),
		"steps_used":         run.Metrics.StepsUsed,
	})
}

func (n *BusNotifier) RunFinished(ctx context.Context, run *entity.ResearchRun) {
	data := map[string]interface{}{
		"stop_reason": run.Metrics.StopReason,
		"warnings":    run.Metrics.Warnings,
	}
	if run.QualityScore != nil {
		data["quality_score"] = *run.QualityScore
	}
	if run.Error != nil {
		data["error"] = *run.Error
	}
	n.publish(ctx, constant.EventResearchRunFinished, run, data)
}

func (n *BusNotifier) publish(ctx context.Context, eventType string, run *entity.ResearchRun, data map[string]interface{}) {
	if n.publisher == nil {
		return
	}

	data["research_run_id"] = run.Id.String()
	data["conversation_id"] = run.ConversationId.String()
	data["household_id"] = run.HouseholdId.String()
	data["user_id"] = run.CreatedById.String()
	data["status"] = run.Status
	data["entity_type"] = "research_run"
	data["entity_id"] = run.Id.String()

	if err := n.publisher.Publish(ctx, events.New(eventType, data)); err != nil {
		n.logger.Error("RESEARCH", "Failed to publish "+eventType+" event", map[string]interface{}{
			"run_id": run.Id,
			"error":  err.Error(),
		})
	}
}

type NopNotifier struct{}

func (NopNotifier) RunStarted(ctx context.Context, run *entity.ResearchRun)                        {}
func (NopNotifier) RunProgress(ctx context.Context, run *entity.ResearchRun, subQuestionIndex int) {}
func (NopNotifier) RunFinished(ctx context.Context, run *entity.ResearchRun)                       {}
