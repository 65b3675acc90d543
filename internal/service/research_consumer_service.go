// FILE: internal/service/research_consumer_service.go
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"homehub-be/internal/dto"
	"homehub-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

const runQueueModule = "RUN_QUEUE"

// RunExecutor drives one run to completion. The orchestrator implements it.
type RunExecutor interface {
	Run(ctx context.Context, runId uuid.UUID) error
}

// IResearchConsumerService is the in-process registry of executing runs.
type IResearchConsumerService interface {
	Consume(ctx context.Context) error
	// Wait blocks until every run picked up so far has returned.
	Wait()
}

type researchConsumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	runner    RunExecutor
	logger    logger.ILogger
	slots     chan struct{}
	wg        sync.WaitGroup
}

func NewResearchConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	runner RunExecutor,
	log logger.ILogger,
	maxConcurrentRuns int,
) IResearchConsumerService {
	if maxConcurrentRuns <= 0 {
		maxConcurrentRuns = 4
	}
	return &researchConsumerService{
		pubSub:    pubSub,
		topicName: topicName,
		runner:    runner,
		logger:    log,
		slots:     make(chan struct{}, maxConcurrentRuns),
	}
}

func (cs *researchConsumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *researchConsumerService) Wait() {
	cs.wg.Wait()
}

func (cs *researchConsumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.ResearchRunRequestedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error(runQueueModule, "Failed to unmarshal run request", map[string]interface{}{"error": err.Error()})
		msg.Ack() // poison message, retrying will not help
		return
	}

	select {
	case cs.slots <- struct{}{}:
	case <-ctx.Done():
		msg.Nack()
		return
	}
	msg.Ack()

	cs.logger.Info(runQueueModule, "Run picked up", map[string]interface{}{
		"run_id": payload.RunId,
		"reason": payload.Reason,
	})

	cs.wg.Add(1)
	go func() {
		defer cs.wg.Done()
		defer func() { <-cs.slots }()

		if err := cs.runner.Run(ctx, payload.RunId); err != nil {
			if errors.Is(err, context.Canceled) {
				cs.logger.Warn(runQueueModule, "Run interrupted by shutdown", map[string]interface{}{"run_id": payload.RunId})
				return
			}
			cs.logger.Error(runQueueModule, "Run ended with error", map[string]interface{}{
				"run_id": payload.RunId,
				"error":  err.Error(),
			})
		}
	}()
}
