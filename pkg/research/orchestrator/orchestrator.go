// Package orchestrator drives a research run from running to a terminal
// status. All run state lives in the persisted run record, so Run can be
// called again after a crash and continues where the last checkpoint left off.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/pkg/logger"
	"homehub-be/internal/repository/unitofwork"
	"homehub-be/pkg/research/coord"
	"homehub-be/pkg/research/executor"
	"homehub-be/pkg/research/notify"
	"homehub-be/pkg/research/synthesizer"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const researchModule = "RESEARCH"

var tracer = otel.Tracer("homehub-be/research/orchestrator")

var (
	ErrRunNotFound   = errors.New("research run not found")
	ErrRunNotStarted = errors.New("research run has not been started")
)

type Config struct {
	// Parallelism bounds concurrently executing sub-questions.
	Parallelism int
	// LockMargin is added to the run's max runtime to size the run lock.
	LockMargin time.Duration
	Now        func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Parallelism <= 0 {
		c.Parallelism = 3
	}
	if c.LockMargin <= 0 {
		c.LockMargin = 5 * time.Minute
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

type Orchestrator struct {
	uowFactory  unitofwork.RepositoryFactory
	executor    executor.Executor
	synthesizer synthesizer.Synthesizer
	coord       coord.Coordinator
	notifier    notify.Notifier
	logger      logger.ILogger
	cfg         Config
}

func New(
	uowFactory unitofwork.RepositoryFactory,
	exec executor.Executor,
	synth synthesizer.Synthesizer,
	coordinator coord.Coordinator,
	notifier notify.Notifier,
	log logger.ILogger,
	cfg Config,
) *Orchestrator {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	return &Orchestrator{
		uowFactory:  uowFactory,
		executor:    exec,
		synthesizer: synth,
		coord:       coordinator,
		notifier:    notifier,
		logger:      log,
		cfg:         cfg.withDefaults(),
	}
}

// Run executes or resumes a run in running status. It returns nil without
// doing anything when the run is terminal or owned by another worker.
func (o *Orchestrator) Run(ctx context.Context, runId uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "research.run",
		trace.WithAttributes(attribute.String("run_id", runId.String())),
	)
	defer span.End()

	uow := o.uowFactory.NewUnitOfWork(ctx)
	run, err := uow.ResearchRunRepository().FindById(ctx, runId)
	if err != nil {
		return fmt.Errorf("load research run: %w", err)
	}
	if run == nil {
		return ErrRunNotFound
	}
	if run.Status.IsTerminal() {
		return nil
	}
	if run.Status != constant.ResearchRunStatusRunning {
		return ErrRunNotStarted
	}

	ttl := run.Metrics.Budget.MaxRuntime() + o.cfg.LockMargin
	acquired, err := o.coord.AcquireRun(ctx, runId, ttl)
	if err != nil {
		return err
	}
	if !acquired {
		o.logger.Info(researchModule, "Run is owned by another worker", map[string]interface{}{"run_id": runId})
		return nil
	}
	defer func() {
		if err := o.coord.ReleaseRun(context.Background(), runId); err != nil {
			o.logger.Warn(researchModule, "Failed to release run lock", map[string]interface{}{"run_id": runId, "error": err.Error()})
		}
	}()

	// Reload under the lock, a previous owner may have finished it.
	run, err = uow.ResearchRunRepository().FindById(ctx, runId)
	if err != nil {
		return fmt.Errorf("load research run: %w", err)
	}
	if run == nil {
		return ErrRunNotFound
	}
	if run.Status.IsTerminal() {
		return nil
	}

	st, err := o.newRunState(ctx, uow, run)
	if err != nil {
		if o.interrupted(ctx, runId, err) {
			return err
		}
		return o.fail(ctx, nil, run, err)
	}

	if err := o.begin(ctx, st); err != nil {
		if o.interrupted(ctx, runId, err) {
			st.persistQuietly(o)
			return err
		}
		return o.fail(ctx, st, run, err)
	}

	if err := o.execute(ctx, st); err != nil {
		if o.interrupted(ctx, runId, err) {
			st.persistQuietly(o)
			return err
		}
		span.RecordError(err)
		return o.fail(ctx, st, run, err)
	}

	if err := o.finalize(ctx, st); err != nil {
		if o.interrupted(ctx, runId, err) {
			st.persistQuietly(o)
			return err
		}
		span.RecordError(err)
		return o.fail(ctx, st, run, err)
	}

	span.SetAttributes(attribute.String("status", string(run.Status)))
	return nil
}

func (o *Orchestrator) begin(ctx context.Context, st *runState) error {
	run := st.run
	if run.StartedAt == nil {
		now := o.cfg.Now()
		run.StartedAt = &now
		if err := st.persist(ctx); err != nil {
			return err
		}
		if err := o.event(ctx, st, constant.ResearchStageRun, constant.ResearchEventStatusStarted, nil,
			fmt.Sprintf("Research started with %d sub-question(s)", len(run.Plan.SubQuestions)), map[string]interface{}{
				"budget": run.Metrics.Budget,
			}); err != nil {
			return err
		}
		o.notifier.RunStarted(ctx, run)
		o.logger.Info(researchModule, "Run started", map[string]interface{}{"run_id": run.Id, "effort": run.Effort})
		return nil
	}

	o.logger.Info(researchModule, "Run resumed", map[string]interface{}{
		"run_id":    run.Id,
		"processed": len(run.Metrics.ProcessedSubQuestions),
	})
	return o.event(ctx, st, constant.ResearchStageRun, constant.ResearchEventStatusInfo, nil,
		fmt.Sprintf("Research resumed after %d of %d sub-question(s)", len(run.Metrics.ProcessedSubQuestions), len(run.Plan.SubQuestions)), nil)
}

// fail marks the run failed. It is the only place a run becomes failed
// because of an error.
func (o *Orchestrator) fail(ctx context.Context, st *runState, run *entity.ResearchRun, cause error) error {
	if st != nil {
		run = st.run
	}
	o.logger.Error(researchModule, "Run failed", map[string]interface{}{"run_id": run.Id, "error": cause.Error()})

	// The run context may already be done, the failure must still land.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if !run.Status.CanTransitionTo(constant.ResearchRunStatusFailed) {
		return cause
	}
	msg := cause.Error()
	now := o.cfg.Now()
	run.Status = constant.ResearchRunStatusFailed
	run.Error = &msg
	run.QualityScore = nil
	run.CompletedAt = &now
	run.Metrics.StopReason = constant.StopReasonError

	uow := o.uowFactory.NewUnitOfWork(persistCtx)
	if st != nil {
		run.Metrics.ActiveSeconds = st.activeSeconds()
	}
	if err := uow.ResearchRunRepository().Update(persistCtx, run); err != nil {
		o.logger.Error(researchModule, "Failed to persist failed status", map[string]interface{}{"run_id": run.Id, "error": err.Error()})
		return errors.Join(cause, err)
	}
	_ = uow.ResearchEventRepository().Create(persistCtx, &entity.ResearchRunEvent{
		Id:            uuid.New(),
		ResearchRunId: run.Id,
		Stage:         constant.ResearchStageRun,
		Status:        constant.ResearchEventStatusFailed,
		Message:       "Research failed: " + msg,
		Payload:       map[string]interface{}{},
		CreatedAt:     now,
	})
	o.notifier.RunFinished(persistCtx, run)
	return cause
}

func (o *Orchestrator) event(ctx context.Context, st *runState, stage string, status constant.ResearchEventStatus, subQuestion *string, message string, payload map[string]interface{}) error {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	err := st.uow.ResearchEventRepository().Create(ctx, &entity.ResearchRunEvent{
		Id:            uuid.New(),
		ResearchRunId: st.run.Id,
		Stage:         stage,
		Status:        status,
		SubQuestion:   subQuestion,
		Message:       message,
		Payload:       payload,
		CreatedAt:     o.cfg.Now(),
	})
	if err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	return nil
}

// interrupted reports a shutdown rather than a run failure. The run then
// stays running so the next process resumes it.
func (o *Orchestrator) interrupted(ctx context.Context, runId uuid.UUID, err error) bool {
	if ctx.Err() == nil || !isContextError(err) {
		return false
	}
	o.logger.Warn(researchModule, "Run interrupted", map[string]interface{}{"run_id": runId, "error": err.Error()})
	return true
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
