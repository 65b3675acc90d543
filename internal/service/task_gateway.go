package service

import (
	"context"
	"errors"
	"fmt"

	"homehub-be/internal/constant"
	"homehub-be/pkg/events"
	"homehub-be/pkg/research/notify"

	"github.com/google/uuid"
)

var ErrTaskGatewayUnavailable = errors.New("task service is not reachable")

// TaskDraft is a task the household task service is asked to create.
type TaskDraft struct {
	HouseholdId    uuid.UUID
	ConversationId uuid.UUID
	CreatedById    uuid.UUID
	ResearchRunId  uuid.UUID
	FindingId      *uuid.UUID
	Title          string
	Description    string
}

type ITaskGateway interface {
	CreateTask(ctx context.Context, draft TaskDraft) (uuid.UUID, error)
}

type eventTaskGateway struct {
	publisher notify.EventPublisher
}

// NewEventTaskGateway requests tasks over the event bus. The task id is
// assigned here so the caller can link it before the task service has
// consumed the event.
func NewEventTaskGateway(publisher notify.EventPublisher) ITaskGateway {
	return &eventTaskGateway{publisher: publisher}
}

func (g *eventTaskGateway) CreateTask(ctx context.Context, draft TaskDraft) (uuid.UUID, error) {
	if g.publisher == nil {
		return uuid.Nil, ErrTaskGatewayUnavailable
	}

	id := uuid.New()
	data := map[string]interface{}{
		"task_id":         id.String(),
		"household_id":    draft.HouseholdId.String(),
		"conversation_id": draft.ConversationId.String(),
		"user_id":         draft.CreatedById.String(),
		"research_run_id": draft.ResearchRunId.String(),
		"title":           draft.Title,
		"description":     draft.Description,
		"entity_type":     "task",
		"entity_id":       id.String(),
	}
	if draft.FindingId != nil {
		data["finding_id"] = draft.FindingId.String()
	}

	if err := g.publisher.Publish(ctx, events.New(constant.EventTaskCreateRequested, data)); err != nil {
		return uuid.Nil, fmt.Errorf("request task: %w", err)
	}
	return id, nil
}
