package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/pkg/logger"
	"homehub-be/internal/repository/memory"
	"homehub-be/internal/repository/unitofwork"
	"homehub-be/pkg/research/acquisition"
	"homehub-be/pkg/research/coord"
	"homehub-be/pkg/research/executor"
	"homehub-be/pkg/research/scorer"
	"homehub-be/pkg/research/synthesizer"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedExecutor persists one source and one finding per task, shaped by outcomeFor.
type scriptedExecutor struct {
	factory    unitofwork.RepositoryFactory
	mu         sync.Mutex
	calls      []int
	outcomeFor func(task executor.Task, call int) (status constant.ResearchFindingStatus, confidence float64, failedSoft bool, err error)
	onCall     func(task executor.Task)
}

func (e *scriptedExecutor) Execute(ctx context.Context, task executor.Task) (*executor.Outcome, error) {
	e.mu.Lock()
	e.calls = append(e.calls, task.Index)
	call := len(e.calls)
	e.mu.Unlock()

	if e.onCall != nil {
		e.onCall(task)
	}

	status, confidence, failedSoft, err := e.outcomeFor(task, call)
	if err != nil {
		return nil, err
	}

	uow := e.factory.NewUnitOfWork(ctx)
	out := &executor.Outcome{Index: task.Index, SubQuestion: task.SubQuestion, StepsUsed: 1, FailedSoft: failedSoft}

	finding := &entity.ResearchFinding{
		Id:            uuid.New(),
		ResearchRunId: task.RunId,
		SubQuestion:   task.SubQuestion,
		Claim:         "claim for " + task.SubQuestion,
		Confidence:    confidence,
		Status:        status,
	}
	if status != constant.ResearchFindingStatusUnknown {
		src, _, err := uow.ResearchSourceRepository().CreateIfAbsent(ctx, &entity.ResearchSource{
			Id:            uuid.New(),
			ResearchRunId: task.RunId,
			Url:           fmt.Sprintf("https://example.com/%d", task.Index),
			NormalizedUrl: fmt.Sprintf("https://example.com/%d", task.Index),
			Title:         fmt.Sprintf("Source %d", task.Index),
		})
		if err != nil {
			return nil, err
		}
		finding.SupportingSourceIds = []uuid.UUID{src.Id}
		out.SourceIds = []uuid.UUID{src.Id}
		out.UsableSourceIds = []uuid.UUID{src.Id}
	} else {
		out.UnderSourced = true
		out.Unknowns = []string{task.SubQuestion}
	}
	if err := uow.ResearchFindingRepository().Create(ctx, finding); err != nil {
		return nil, err
	}
	out.Findings = []*entity.ResearchFinding{finding}
	return out, nil
}

func (e *scriptedExecutor) invoked() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.calls...)
}

func constantly(status constant.ResearchFindingStatus, confidence float64, failedSoft bool) func(executor.Task, int) (constant.ResearchFindingStatus, float64, bool, error) {
	return func(executor.Task, int) (constant.ResearchFindingStatus, float64, bool, error) {
		return status, confidence, failedSoft, nil
	}
}

type modelSynthesizer struct{ calls int }

func (s *modelSynthesizer) Synthesize(ctx context.Context, in synthesizer.Input) synthesizer.Output {
	s.calls++
	return synthesizer.Output{Report: &entity.ResearchReport{Summary: "Machine A.", ReportMarkdown: "Machine A."}}
}

type harness struct {
	store   *memory.ResearchStore
	factory unitofwork.RepositoryFactory
	coord   *coord.MemoryCoordinator
	exec    *scriptedExecutor
	synth   synthesizer.Synthesizer
}

func newHarness(outcomeFor func(executor.Task, int) (constant.ResearchFindingStatus, float64, bool, error)) *harness {
	store := memory.NewResearchStore()
	factory := store.NewRepositoryFactory()
	return &harness{
		store:   store,
		factory: factory,
		coord:   coord.NewMemoryCoordinator(),
		exec:    &scriptedExecutor{factory: factory, outcomeFor: outcomeFor},
		synth:   &modelSynthesizer{},
	}
}

func (h *harness) orchestrator(parallelism int) *Orchestrator {
	return New(h.factory, h.exec, h.synth, h.coord, nil, logger.NewNopLogger(), Config{Parallelism: parallelism})
}

func (h *harness) createRun(t *testing.T, subQuestions int, budget entity.ResearchBudget) *entity.ResearchRun {
	t.Helper()
	qs := make([]string, subQuestions)
	for i := range qs {
		qs[i] = fmt.Sprintf("Sub-question %d?", i+1)
	}
	run := &entity.ResearchRun{
		Id:             uuid.New(),
		ConversationId: uuid.New(),
		Status:         constant.ResearchRunStatusRunning,
		Query:          "best espresso machines under $500",
		Effort:         constant.ResearchEffortQuick,
		Plan: entity.ResearchPlan{
			Objective:    "Pick a machine",
			SubQuestions: qs,
			StopCriteria: entity.StopCriteria{ConfidenceTarget: 0.75, DiminishingReturnsDelta: 0.05, DiminishingReturnsWindow: 2},
		},
		Metrics: entity.ResearchMetrics{Budget: budget},
	}
	require.NoError(t, h.factory.NewUnitOfWork(context.Background()).ResearchRunRepository().Create(context.Background(), run))
	return run
}

func (h *harness) load(t *testing.T, id uuid.UUID) (*entity.ResearchRun, *entity.ResearchReport, []*entity.ResearchFinding) {
	t.Helper()
	ctx := context.Background()
	uow := h.factory.NewUnitOfWork(ctx)
	run, err := uow.ResearchRunRepository().FindById(ctx, id)
	require.NoError(t, err)
	report, err := uow.ResearchReportRepository().FindByRunId(ctx, id)
	require.NoError(t, err)
	findings, err := uow.ResearchFindingRepository().FindByRunId(ctx, id)
	require.NoError(t, err)
	return run, report, findings
}

var roomyBudget = entity.ResearchBudget{MaxSteps: 20, MaxRuntimeSeconds: 60, MinSources: 3, MaxRequeriesPerSubQuestion: 1}

func TestRun_Completed(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusSufficient, 0.9, false))
	run := h.createRun(t, 3, roomyBudget)

	require.NoError(t, h.orchestrator(1).Run(context.Background(), run.Id))

	got, report, findings := h.load(t, run.Id)
	assert.Equal(t, constant.ResearchRunStatusCompleted, got.Status)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 0.9, *got.QualityScore, 0.001)
	assert.Nil(t, got.Error)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, constant.StopReasonAllProcessed, got.Metrics.StopReason)
	assert.Equal(t, 3, got.Metrics.StepsUsed)
	assert.ElementsMatch(t, []int{0, 1, 2}, got.Metrics.ProcessedSubQuestions)
	assert.Len(t, got.Metrics.ConfidenceHistory, 3)
	assert.Equal(t, 3, got.Metrics.SourcesCount)
	assert.Empty(t, got.Metrics.Warnings)
	require.NotNil(t, report)
	assert.Equal(t, "Machine A.", report.Summary)
	assert.Len(t, findings, 3)
	assert.Equal(t, []int{0, 1, 2}, h.exec.invoked())
}

func TestRun_ParallelDispatchKeepsBudgetConsistent(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusSufficient, 0.9, false))
	run := h.createRun(t, 6, entity.ResearchBudget{MaxSteps: 30, MaxRuntimeSeconds: 60, MinSources: 6, MaxRequeriesPerSubQuestion: 1})

	require.NoError(t, h.orchestrator(3).Run(context.Background(), run.Id))

	got, _, findings := h.load(t, run.Id)
	assert.Equal(t, constant.ResearchRunStatusCompleted, got.Status)
	assert.Equal(t, 6, got.Metrics.StepsUsed)
	assert.Len(t, got.Metrics.ProcessedSubQuestions, 6)
	assert.Len(t, got.Metrics.UsableSourceIds, 6)
	assert.Len(t, findings, 6)
}

func TestRun_EverySynthesisFailsStillOneReport(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusUnknown, 0, true))
	h.synth = synthesizer.NewLLMSynthesizer(nil, logger.NewNopLogger())
	run := h.createRun(t, 4, roomyBudget)

	err := h.orchestrator(2).Run(context.Background(), run.Id)
	require.NoError(t, err)

	got, report, findings := h.load(t, run.Id)
	assert.Equal(t, constant.ResearchRunStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "no usable findings")
	assert.Nil(t, got.QualityScore)
	assert.True(t, got.Metrics.ReportFallback)
	require.NotNil(t, report)
	assert.NotEmpty(t, report.ReportMarkdown)
	for _, f := range findings {
		assert.Equal(t, constant.ResearchFindingStatusUnknown, f.Status)
	}

	// a second Run on the terminal run is a no-op
	require.NoError(t, h.orchestrator(2).Run(context.Background(), run.Id))
	_, again, _ := h.load(t, run.Id)
	assert.Equal(t, report.Id, again.Id)
}

func TestRun_SoftFailureMeansWarnings(t *testing.T) {
	h := newHarness(func(task executor.Task, call int) (constant.ResearchFindingStatus, float64, bool, error) {
		if task.Index == 1 {
			return constant.ResearchFindingStatusUnknown, 0, true, nil
		}
		return constant.ResearchFindingStatusSufficient, 0.95, false, nil
	})
	run := h.createRun(t, 3, entity.ResearchBudget{MaxSteps: 20, MaxRuntimeSeconds: 60, MinSources: 2, MaxRequeriesPerSubQuestion: 1})

	require.NoError(t, h.orchestrator(1).Run(context.Background(), run.Id))

	got, report, _ := h.load(t, run.Id)
	assert.Equal(t, constant.ResearchRunStatusCompletedWithWarnings, got.Status)
	require.NotNil(t, got.QualityScore)
	assert.NotNil(t, report)
	assert.Equal(t, []int{1}, got.Metrics.FailedSoftSubQuestions)
	assert.Contains(t, got.Metrics.Warnings, "finding synthesis failed for 1 of 3 sub-questions")
}

func TestRun_CancellationStopsDispatch(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusSufficient, 0.9, false))
	run := h.createRun(t, 5, roomyBudget)

	var afterCancel int
	var mu sync.Mutex
	canceled := false
	h.exec.onCall = func(task executor.Task) {
		mu.Lock()
		defer mu.Unlock()
		if canceled {
			afterCancel++
		}
		// cancel while the first sub-question is in flight
		if task.Index == 0 {
			assert.NoError(t, h.coord.RequestCancel(context.Background(), run.Id))
			canceled = true
		}
	}

	require.NoError(t, h.orchestrator(1).Run(context.Background(), run.Id))

	got, report, findings := h.load(t, run.Id)
	assert.Equal(t, constant.ResearchRunStatusCanceled, got.Status)
	assert.Equal(t, constant.StopReasonCanceled, got.Metrics.StopReason)
	assert.Equal(t, []int{0}, h.exec.invoked())
	assert.Equal(t, 0, afterCancel)
	assert.Nil(t, report)
	assert.Nil(t, got.QualityScore)
	// work finished before the checkpoint is kept
	assert.Len(t, findings, 1)
	assert.Equal(t, []int{0}, got.Metrics.ProcessedSubQuestions)
}

func TestRun_MaxStepsStops(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusPartial, 0.5, false))
	run := h.createRun(t, 5, entity.ResearchBudget{MaxSteps: 2, MaxRuntimeSeconds: 60, MinSources: 1, MaxRequeriesPerSubQuestion: 1})

	require.NoError(t, h.orchestrator(1).Run(context.Background(), run.Id))

	got, report, _ := h.load(t, run.Id)
	assert.Equal(t, constant.StopReasonMaxSteps, got.Metrics.StopReason)
	assert.LessOrEqual(t, got.Metrics.StepsUsed, 2)
	assert.Len(t, h.exec.invoked(), 2)
	assert.Equal(t, constant.ResearchRunStatusCompletedWithWarnings, got.Status)
	assert.Contains(t, got.Metrics.Warnings, "3 sub-question(s) not researched (max_steps_reached)")
	assert.NotNil(t, report)
}

func TestRun_StepAllowanceNeverExceedsBudget(t *testing.T) {
	var mu sync.Mutex
	allowances := []int{}
	h := newHarness(constantly(constant.ResearchFindingStatusPartial, 0.5, false))
	h.exec.onCall = func(task executor.Task) {
		mu.Lock()
		allowances = append(allowances, task.StepAllowance)
		mu.Unlock()
	}
	run := h.createRun(t, 4, entity.ResearchBudget{MaxSteps: 5, MaxRuntimeSeconds: 60, MinSources: 10, MaxRequeriesPerSubQuestion: 2})

	require.NoError(t, h.orchestrator(3).Run(context.Background(), run.Id))

	// 3 + 2 reserved up front, the rest only as steps are refunded
	total := 0
	for _, a := range allowances[:2] {
		total += a
	}
	assert.LessOrEqual(t, total, 5)
	got, _, _ := h.load(t, run.Id)
	assert.LessOrEqual(t, got.Metrics.StepsUsed, 5)
}

func TestRun_DiminishingReturnsStops(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusPartial, 0.02, false))
	run := h.createRun(t, 5, entity.ResearchBudget{MaxSteps: 20, MaxRuntimeSeconds: 60, MinSources: 1, MaxRequeriesPerSubQuestion: 1})

	require.NoError(t, h.orchestrator(1).Run(context.Background(), run.Id))

	got, _, _ := h.load(t, run.Id)
	assert.Equal(t, constant.StopReasonDiminishingReturns, got.Metrics.StopReason)
	assert.Len(t, h.exec.invoked(), 2)
	assert.Equal(t, constant.ResearchRunStatusCompletedWithWarnings, got.Status)
}

func TestRun_ConfidenceTargetStops(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusSufficient, 0.9, false))
	run := h.createRun(t, 4, entity.ResearchBudget{MaxSteps: 20, MaxRuntimeSeconds: 60, MinSources: 1, MaxRequeriesPerSubQuestion: 1})

	require.NoError(t, h.orchestrator(1).Run(context.Background(), run.Id))

	got, _, _ := h.load(t, run.Id)
	assert.Equal(t, constant.StopReasonConfidenceTarget, got.Metrics.StopReason)
	assert.Len(t, h.exec.invoked(), 1)
}

func TestRun_SourceFloorKeepsGoing(t *testing.T) {
	// aggregate is above target after the first sub-question, but sources are short
	confidences := []float64{0.8, 0.8, 1.0, 1.0}
	h := newHarness(func(task executor.Task, call int) (constant.ResearchFindingStatus, float64, bool, error) {
		return constant.ResearchFindingStatusSufficient, confidences[call-1], false, nil
	})
	run := h.createRun(t, 4, entity.ResearchBudget{MaxSteps: 20, MaxRuntimeSeconds: 60, MinSources: 3, MaxRequeriesPerSubQuestion: 1})

	require.NoError(t, h.orchestrator(1).Run(context.Background(), run.Id))

	got, _, _ := h.load(t, run.Id)
	assert.Equal(t, constant.StopReasonConfidenceTarget, got.Metrics.StopReason)
	assert.Len(t, h.exec.invoked(), 3)
	assert.Equal(t, []float64{0.8, 0.8, 0.867}, got.Metrics.ConfidenceHistory)
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusSufficient, 0.9, false))
	run := h.createRun(t, 3, roomyBudget)

	started := time.Now().Add(-time.Minute)
	run.StartedAt = &started
	run.Metrics.ProcessedSubQuestions = []int{0}
	run.Metrics.StepsUsed = 1
	run.Metrics.ConfidenceHistory = []float64{0.9}
	require.NoError(t, h.factory.NewUnitOfWork(context.Background()).ResearchRunRepository().Update(context.Background(), run))

	require.NoError(t, h.orchestrator(1).Run(context.Background(), run.Id))

	got, _, _ := h.load(t, run.Id)
	assert.Equal(t, []int{1, 2}, h.exec.invoked())
	assert.Equal(t, 3, got.Metrics.StepsUsed)
	assert.Equal(t, []int{0, 1, 2}, got.Metrics.ProcessedSubQuestions)
	assert.True(t, got.Status.IsTerminal())
}

func TestRun_SkipsRunOwnedElsewhere(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusSufficient, 0.9, false))
	run := h.createRun(t, 3, roomyBudget)

	ok, err := h.coord.AcquireRun(context.Background(), run.Id, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, h.orchestrator(1).Run(context.Background(), run.Id))
	assert.Empty(t, h.exec.invoked())

	got, _, _ := h.load(t, run.Id)
	assert.Equal(t, constant.ResearchRunStatusRunning, got.Status)
}

func TestRun_ExecutorErrorFailsRun(t *testing.T) {
	h := newHarness(func(task executor.Task, call int) (constant.ResearchFindingStatus, float64, bool, error) {
		if call == 2 {
			return "", 0, false, errors.New("database unavailable")
		}
		return constant.ResearchFindingStatusSufficient, 0.9, false, nil
	})
	run := h.createRun(t, 3, roomyBudget)

	err := h.orchestrator(1).Run(context.Background(), run.Id)
	require.Error(t, err)

	got, report, _ := h.load(t, run.Id)
	assert.Equal(t, constant.ResearchRunStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "database unavailable")
	assert.Equal(t, constant.StopReasonError, got.Metrics.StopReason)
	assert.Nil(t, got.QualityScore)
	assert.Nil(t, report)
}

func TestRun_RejectsPlanningRun(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusSufficient, 0.9, false))
	run := h.createRun(t, 3, roomyBudget)
	run.Status = constant.ResearchRunStatusPlanning
	require.NoError(t, h.factory.NewUnitOfWork(context.Background()).ResearchRunRepository().Update(context.Background(), run))

	err := h.orchestrator(1).Run(context.Background(), run.Id)
	assert.ErrorIs(t, err, ErrRunNotStarted)
	assert.ErrorIs(t, h.orchestrator(1).Run(context.Background(), uuid.New()), ErrRunNotFound)
}

// shutdownCompleter stands in for a model call that is still running when the
// process is told to stop.
type shutdownCompleter struct{ stop context.CancelFunc }

func (c *shutdownCompleter) Complete(ctx context.Context, prompt string, schema string) (json.RawMessage, error) {
	c.stop()
	<-ctx.Done()
	return nil, fmt.Errorf("generate: %w", ctx.Err())
}

// degradingSynthesizer falls back to the deterministic report after the
// context is gone, the way a synthesizer unaware of shutdown would.
type degradingSynthesizer struct{ stop context.CancelFunc }

func (s *degradingSynthesizer) Synthesize(ctx context.Context, in synthesizer.Input) synthesizer.Output {
	s.stop()
	return synthesizer.Output{Report: synthesizer.FallbackReport(in), Fallback: true, Reason: "report synthesis failed: " + ctx.Err().Error()}
}

func TestRun_ShutdownDuringReportKeepsRunRunning(t *testing.T) {
	tests := []struct {
		name  string
		synth func(stop context.CancelFunc) synthesizer.Synthesizer
	}{
		{
			name: "model call cut short",
			synth: func(stop context.CancelFunc) synthesizer.Synthesizer {
				return synthesizer.NewLLMSynthesizer(&shutdownCompleter{stop: stop}, logger.NewNopLogger())
			},
		},
		{
			name: "synthesizer degrades after shutdown",
			synth: func(stop context.CancelFunc) synthesizer.Synthesizer {
				return &degradingSynthesizer{stop: stop}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(constantly(constant.ResearchFindingStatusSufficient, 0.9, false))
			run := h.createRun(t, 3, roomyBudget)

			ctx, stop := context.WithCancel(context.Background())
			defer stop()
			h.synth = tt.synth(stop)

			err := h.orchestrator(1).Run(ctx, run.Id)
			assert.ErrorIs(t, err, context.Canceled)

			got, report, _ := h.load(t, run.Id)
			assert.Equal(t, constant.ResearchRunStatusRunning, got.Status)
			assert.Nil(t, report)
			assert.Nil(t, got.CompletedAt)
			assert.Nil(t, got.Error)
			assert.False(t, got.Metrics.ReportFallback)
			assert.Empty(t, got.Metrics.Warnings)
			assert.Equal(t, constant.StopReasonAllProcessed, got.Metrics.StopReason)

			// The next process writes the report without researching again.
			h.synth = &modelSynthesizer{}
			require.NoError(t, h.orchestrator(1).Run(context.Background(), run.Id))

			got, report, _ = h.load(t, run.Id)
			assert.Equal(t, constant.ResearchRunStatusCompleted, got.Status)
			require.NotNil(t, report)
			assert.Equal(t, "Machine A.", report.Summary)
			assert.Equal(t, []int{0, 1, 2}, h.exec.invoked())
		})
	}
}

func TestRun_ResumeDropsWorkOfUnfinishedSubQuestions(t *testing.T) {
	h := newHarness(constantly(constant.ResearchFindingStatusSufficient, 0.9, false))
	run := h.createRun(t, 3, roomyBudget)
	ctx := context.Background()
	uow := h.factory.NewUnitOfWork(ctx)

	// A crash left sub-question 1 dispatched with two steps reserved, after it
	// had already written a finding.
	kept := &entity.ResearchFinding{ResearchRunId: run.Id, SubQuestion: run.Plan.SubQuestions[0], Claim: "kept", Confidence: 0.9, Status: constant.ResearchFindingStatusSufficient}
	orphan := &entity.ResearchFinding{ResearchRunId: run.Id, SubQuestion: run.Plan.SubQuestions[1], Claim: "orphan", Confidence: 0.9, Status: constant.ResearchFindingStatusSufficient}
	require.NoError(t, uow.ResearchFindingRepository().Create(ctx, kept))
	require.NoError(t, uow.ResearchFindingRepository().Create(ctx, orphan))

	started := time.Now().Add(-time.Minute)
	run.StartedAt = &started
	run.Metrics.ProcessedSubQuestions = []int{0}
	run.Metrics.StepsUsed = 1
	run.Metrics.InFlightSteps = map[int]int{1: 2}
	run.Metrics.FindingsCount = 2
	run.Metrics.ConfidenceHistory = []float64{0.9}
	require.NoError(t, uow.ResearchRunRepository().Update(ctx, run))

	h.exec.onCall = func(task executor.Task) {
		// every dispatch is checkpointed before the work starts
		stored, err := h.factory.NewUnitOfWork(ctx).ResearchRunRepository().FindById(ctx, run.Id)
		if assert.NoError(t, err) {
			assert.Equal(t, task.StepAllowance, stored.Metrics.InFlightSteps[task.Index])
		}
	}

	require.NoError(t, h.orchestrator(1).Run(ctx, run.Id))

	got, _, findings := h.load(t, run.Id)
	assert.Equal(t, []int{1, 2}, h.exec.invoked())
	// 1 before the crash, 2 charged for the lost attempt, 1 each for the reruns
	assert.Equal(t, 5, got.Metrics.StepsUsed)
	assert.Empty(t, got.Metrics.InFlightSteps)
	assert.Equal(t, 3, got.Metrics.FindingsCount)

	require.Len(t, findings, 3)
	perSubQuestion := map[string]int{}
	for _, f := range findings {
		perSubQuestion[f.SubQuestion]++
		assert.NotEqual(t, orphan.Id, f.Id)
	}
	for _, q := range run.Plan.SubQuestions {
		assert.Equal(t, 1, perSubQuestion[q], q)
	}
}

// pageFetcher fails the test if the executor ever gets past an empty search.
type pageFetcher struct{ t *testing.T }

func (f pageFetcher) Fetch(ctx context.Context, rawURL string) acquisition.FetchedSource {
	f.t.Errorf("unexpected fetch of %s", rawURL)
	return acquisition.FetchedSource{URL: rawURL}
}

type emptySearcher struct{ err error }

func (s emptySearcher) Search(ctx context.Context, query string, recencyDays *int, limit int) ([]acquisition.SearchResult, error) {
	return nil, s.err
}

func TestRun_NothingFoundAnywhereFailsWithOneReport(t *testing.T) {
	tests := []struct {
		name     string
		searcher acquisition.Searcher
	}{
		{name: "no results", searcher: emptySearcher{}},
		{name: "search outage", searcher: emptySearcher{err: &acquisition.SearchFailedError{Provider: "json", StatusCode: 503}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.NewResearchStore()
			factory := store.NewRepositoryFactory()
			h := &harness{store: store, factory: factory, coord: coord.NewMemoryCoordinator()}
			run := h.createRun(t, 4, roomyBudget)

			exec := executor.NewSubQuestionExecutor(factory, tt.searcher, pageFetcher{t: t}, scorer.NewLexicalScorer(), nil, logger.NewNopLogger(), executor.Options{})
			orch := New(factory, exec, synthesizer.NewLLMSynthesizer(nil, logger.NewNopLogger()), h.coord, nil, logger.NewNopLogger(), Config{Parallelism: 2})

			require.NotPanics(t, func() {
				require.NoError(t, orch.Run(context.Background(), run.Id))
			})

			got, report, findings := h.load(t, run.Id)
			assert.Equal(t, constant.ResearchRunStatusFailed, got.Status)
			require.NotNil(t, got.Error)
			assert.Contains(t, *got.Error, "no usable findings")
			assert.Empty(t, got.Metrics.UsableSourceIds)
			assert.True(t, got.Metrics.ReportFallback)

			require.NotEmpty(t, findings)
			assert.Len(t, findings, len(got.Metrics.ProcessedSubQuestions))
			for _, f := range findings {
				assert.Equal(t, constant.ResearchFindingStatusUnknown, f.Status)
				assert.Empty(t, f.SupportingSourceIds)
			}

			require.NotNil(t, report)
			assert.NotEmpty(t, report.ReportMarkdown)

			// one report per run, even when the worker is asked again
			require.NoError(t, orch.Run(context.Background(), run.Id))
			_, again, _ := h.load(t, run.Id)
			assert.Equal(t, report.Id, again.Id)
		})
	}
}
