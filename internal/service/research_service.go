package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"homehub-be/internal/constant"
	"homehub-be/internal/dto"
	"homehub-be/internal/entity"
	"homehub-be/internal/pkg/logger"
	"homehub-be/internal/repository/contract"
	"homehub-be/internal/repository/unitofwork"
	"homehub-be/pkg/research/budget"
	"homehub-be/pkg/research/coord"
	"homehub-be/pkg/research/planner"

	"github.com/google/uuid"
)

const researchModule = "RESEARCH"

var (
	ErrRunNotFound          = errors.New("research run not found")
	ErrInvalidRunState      = errors.New("research run is not in a state that allows this operation")
	ErrInvalidResearchInput = errors.New("invalid research request")
)

const (
	runReasonStart  = "start"
	runReasonResume = "resume"
)

// Caller is who asks, taken from the access token. Runs outside the caller's
// household, or another user's personal runs, read as not found.
type Caller struct {
	UserId      uuid.UUID
	HouseholdId uuid.UUID
	operator    bool
}

// OperatorCaller sees every run. Only the local CLI uses it.
func OperatorCaller() Caller {
	return Caller{operator: true}
}

func (c Caller) scope() contract.RunScope {
	return contract.RunScope{UserId: c.UserId, HouseholdId: c.HouseholdId, All: c.operator}
}

type IResearchService interface {
	CreatePlan(ctx context.Context, caller Caller, req *dto.CreateResearchPlanRequest) (*dto.CreateResearchPlanResponse, error)
	StartRun(ctx context.Context, caller Caller, runId uuid.UUID) (*dto.StartResearchRunResponse, error)
	CancelRun(ctx context.Context, caller Caller, runId uuid.UUID) (*dto.ResearchRunSummary, error)
	GetRunStatus(ctx context.Context, caller Caller, runId uuid.UUID) (*dto.ResearchRunStatusResponse, error)
	ListRunsForConversation(ctx context.Context, caller Caller, conversationId uuid.UUID) ([]*dto.ResearchRunSummary, error)
	CreateTasksFromRun(ctx context.Context, caller Caller, runId uuid.UUID, req *dto.CreateTasksFromRunRequest) (*dto.CreateTasksFromRunResponse, error)
	// ResumeInterrupted re-queues runs left in running status by a previous process.
	ResumeInterrupted(ctx context.Context) (int, error)
}

type researchService struct {
	uowFactory       unitofwork.RepositoryFactory
	planner          planner.Planner
	publisherService IPublisherService
	coordinator      coord.Coordinator
	taskGateway      ITaskGateway
	logger           logger.ILogger
}

func NewResearchService(
	uowFactory unitofwork.RepositoryFactory,
	researchPlanner planner.Planner,
	publisherService IPublisherService,
	coordinator coord.Coordinator,
	taskGateway ITaskGateway,
	log logger.ILogger,
) IResearchService {
	return &researchService{
		uowFactory:       uowFactory,
		planner:          researchPlanner,
		publisherService: publisherService,
		coordinator:      coordinator,
		taskGateway:      taskGateway,
		logger:           log,
	}
}

func (s *researchService) CreatePlan(ctx context.Context, caller Caller, req *dto.CreateResearchPlanRequest) (*dto.CreateResearchPlanResponse, error) {
	effort, _ := constant.ParseResearchEffort(req.Effort)
	planReq := planner.Request{
		Query:       strings.TrimSpace(req.Query),
		Effort:      effort,
		RecencyDays: req.RecencyDays,
	}
	if err := planner.ValidateRequest(planReq); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResearchInput, err)
	}

	result := s.planner.Generate(ctx, planReq)
	runBudget := budget.ForEffort(effort)

	run := &entity.ResearchRun{
		Id:             uuid.New(),
		ConversationId: req.ConversationId,
		HouseholdId:    caller.HouseholdId,
		CreatedById:    caller.UserId,
		Status:         constant.ResearchRunStatusPlanning,
		Query:          planReq.Query,
		Effort:         effort,
		RecencyDays:    req.RecencyDays,
		Plan:           result.Plan,
		Metrics: entity.ResearchMetrics{
			Budget:  runBudget,
			Planner: result.Planner,
		},
		CreatedAt: time.Now(),
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return nil, err
	}
	defer uow.Rollback()

	if err := uow.ResearchRunRepository().Create(ctx, run); err != nil {
		return nil, err
	}
	if err := uow.ResearchEventRepository().Create(ctx, &entity.ResearchRunEvent{
		Id:            uuid.New(),
		ResearchRunId: run.Id,
		Stage:         constant.ResearchStagePlanning,
		Status:        constant.ResearchEventStatusCompleted,
		Message:       fmt.Sprintf("Plan ready with %d sub-question(s)", len(run.Plan.SubQuestions)),
		Payload: map[string]interface{}{
			"planner": result.Planner,
			"budget":  runBudget,
		},
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, err
	}

	s.logger.Info(researchModule, "Research plan created", map[string]interface{}{
		"run_id":  run.Id,
		"effort":  effort,
		"planner": result.Planner.Status,
	})

	return &dto.CreateResearchPlanResponse{
		RunId:   run.Id,
		Status:  string(run.Status),
		Effort:  string(run.Effort),
		Plan:    run.Plan,
		Budget:  runBudget,
		Planner: result.Planner,
	}, nil
}

func (s *researchService) StartRun(ctx context.Context, caller Caller, runId uuid.UUID) (*dto.StartResearchRunResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	run, err := s.findRun(ctx, uow, caller, runId)
	if err != nil {
		return nil, err
	}
	if run.Status != constant.ResearchRunStatusPlanning {
		return nil, fmt.Errorf("%w: run is %s", ErrInvalidRunState, run.Status)
	}

	run.Status = constant.ResearchRunStatusRunning
	if err := s.transition(ctx, uow, run, constant.ResearchRunStatusPlanning); err != nil {
		return nil, err
	}
	if err := s.event(ctx, uow, run.Id, constant.ResearchStageRun, constant.ResearchEventStatusInfo, "Research queued"); err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, run.Id, runReasonStart); err != nil {
		// The run is already running, ResumeInterrupted picks it up on the next start.
		s.logger.Error(researchModule, "Failed to queue research run", map[string]interface{}{"run_id": run.Id, "error": err.Error()})
		return nil, err
	}

	return &dto.StartResearchRunResponse{
		RunId:  run.Id,
		Status: string(run.Status),
	}, nil
}

func (s *researchService) CancelRun(ctx context.Context, caller Caller, runId uuid.UUID) (*dto.ResearchRunSummary, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	run, err := s.findRun(ctx, uow, caller, runId)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case constant.ResearchRunStatusPlanning:
		// Nothing executes yet, cancel in place.
		now := time.Now()
		run.Status = constant.ResearchRunStatusCanceled
		run.CompletedAt = &now
		run.Metrics.StopReason = constant.StopReasonCanceled
		if err := s.transition(ctx, uow, run, constant.ResearchRunStatusPlanning); err != nil {
			if errors.Is(err, ErrInvalidRunState) {
				// Started meanwhile, so cancel through the worker instead.
				return s.CancelRun(ctx, caller, runId)
			}
			return nil, err
		}
		if err := s.event(ctx, uow, run.Id, constant.ResearchStageCancellation, constant.ResearchEventStatusInfo, "Research canceled before start"); err != nil {
			return nil, err
		}
	case constant.ResearchRunStatusRunning:
		if err := s.coordinator.RequestCancel(ctx, run.Id); err != nil {
			return nil, err
		}
		if err := s.event(ctx, uow, run.Id, constant.ResearchStageCancellation, constant.ResearchEventStatusInfo, "Cancellation requested"); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: run is %s", ErrInvalidRunState, run.Status)
	}

	s.logger.Info(researchModule, "Research cancel requested", map[string]interface{}{"run_id": run.Id, "status": run.Status})
	return toRunSummary(run), nil
}

func (s *researchService) GetRunStatus(ctx context.Context, caller Caller, runId uuid.UUID) (*dto.ResearchRunStatusResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	run, err := s.findRun(ctx, uow, caller, runId)
	if err != nil {
		return nil, err
	}
	sources, err := uow.ResearchSourceRepository().FindByRunId(ctx, runId)
	if err != nil {
		return nil, err
	}
	findings, err := uow.ResearchFindingRepository().FindByRunId(ctx, runId)
	if err != nil {
		return nil, err
	}
	report, err := uow.ResearchReportRepository().FindByRunId(ctx, runId)
	if err != nil {
		return nil, err
	}
	evts, err := uow.ResearchEventRepository().FindByRunId(ctx, runId)
	if err != nil {
		return nil, err
	}

	res := &dto.ResearchRunStatusResponse{
		Run:      toRunResponse(run),
		Sources:  make([]*dto.ResearchSourceResponse, 0, len(sources)),
		Findings: make([]*dto.ResearchFindingResponse, 0, len(findings)),
		Events:   make([]*dto.ResearchEventResponse, 0, len(evts)),
	}
	for _, src := range sources {
		res.Sources = append(res.Sources, &dto.ResearchSourceResponse{
			Id:          src.Id,
			Url:         src.Url,
			Title:       src.Title,
			Domain:      src.Domain,
			Snippet:     src.Snippet,
			PublishedAt: src.PublishedAt,
			RetrievedAt: src.RetrievedAt,
			Score:       src.Score,
			Metadata:    src.Metadata,
			CreatedAt:   src.CreatedAt,
		})
	}
	for _, f := range findings {
		res.Findings = append(res.Findings, &dto.ResearchFindingResponse{
			Id:                  f.Id,
			SubQuestion:         f.SubQuestion,
			Claim:               f.Claim,
			Confidence:          f.Confidence,
			Status:              string(f.Status),
			SupportingSourceIds: f.SupportingSourceIds,
			Evidence:            f.Evidence,
			Notes:               f.Notes,
			CreatedAt:           f.CreatedAt,
		})
	}
	if report != nil {
		res.Report = &dto.ResearchReportResponse{
			Id:             report.Id,
			Summary:        report.Summary,
			ReportMarkdown: report.ReportMarkdown,
			Unknowns:       report.Unknowns,
			Actions:        report.Actions,
			Presentation:   report.Presentation,
			CreatedAt:      report.CreatedAt,
		}
	}
	for _, e := range evts {
		res.Events = append(res.Events, &dto.ResearchEventResponse{
			Id:          e.Id,
			Stage:       e.Stage,
			Status:      string(e.Status),
			SubQuestion: e.SubQuestion,
			Message:     e.Message,
			Payload:     e.Payload,
			CreatedAt:   e.CreatedAt,
		})
	}
	return res, nil
}

func (s *researchService) ListRunsForConversation(ctx context.Context, caller Caller, conversationId uuid.UUID) ([]*dto.ResearchRunSummary, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	runs, err := uow.ResearchRunRepository().FindByConversationId(ctx, conversationId, caller.scope())
	if err != nil {
		return nil, err
	}

	result := make([]*dto.ResearchRunSummary, 0, len(runs))
	for _, run := range runs {
		result = append(result, toRunSummary(run))
	}
	return result, nil
}

func (s *researchService) CreateTasksFromRun(ctx context.Context, caller Caller, runId uuid.UUID, req *dto.CreateTasksFromRunRequest) (*dto.CreateTasksFromRunResponse, error) {
	if len(req.FindingIds) == 0 && len(req.ActionItems) == 0 {
		return nil, fmt.Errorf("%w: no findings or action items selected", ErrInvalidResearchInput)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	run, err := s.findRun(ctx, uow, caller, runId)
	if err != nil {
		return nil, err
	}
	if run.Status != constant.ResearchRunStatusCompleted && run.Status != constant.ResearchRunStatusCompletedWithWarnings {
		return nil, fmt.Errorf("%w: run is %s", ErrInvalidRunState, run.Status)
	}

	findingIds := distinctIds(req.FindingIds)
	findings := make([]*entity.ResearchFinding, 0, len(findingIds))
	if len(findingIds) > 0 {
		findings, err = uow.ResearchFindingRepository().FindByIds(ctx, runId, findingIds)
		if err != nil {
			return nil, err
		}
		if len(findings) != len(findingIds) {
			return nil, fmt.Errorf("%w: %d finding(s) do not belong to this run", ErrInvalidResearchInput, len(findingIds)-len(findings))
		}
	}

	report, err := uow.ResearchReportRepository().FindByRunId(ctx, runId)
	if err != nil {
		return nil, err
	}

	base := TaskDraft{
		HouseholdId:    run.HouseholdId,
		ConversationId: run.ConversationId,
		CreatedById:    caller.UserId,
		ResearchRunId:  run.Id,
	}
	created := make([]uuid.UUID, 0, len(findings)+len(req.ActionItems))

	for _, f := range findings {
		draft := base
		findingId := f.Id
		draft.FindingId = &findingId
		draft.Title = taskTitle(f.Claim)
		draft.Description = f.Claim
		if f.SubQuestion != "" {
			draft.Description = f.SubQuestion + "\n\n" + f.Claim
		}

		id, err := s.taskGateway.CreateTask(ctx, draft)
		if err != nil {
			return nil, err
		}
		created = append(created, id)
	}

	reportChanged := false
	for _, item := range req.ActionItems {
		draft := base
		draft.Title = taskTitle(item.Title)
		draft.Description = item.Description

		id, err := s.taskGateway.CreateTask(ctx, draft)
		if err != nil {
			return nil, err
		}
		created = append(created, id)

		if report != nil && linkAction(report.Actions, item.Title, id) {
			reportChanged = true
		}
	}

	if reportChanged {
		if err := uow.ResearchReportRepository().Update(ctx, report); err != nil {
			return nil, err
		}
	}

	taskIds := make([]string, 0, len(created))
	for _, id := range created {
		taskIds = append(taskIds, id.String())
	}
	if err := uow.ResearchEventRepository().Create(ctx, &entity.ResearchRunEvent{
		Id:            uuid.New(),
		ResearchRunId: run.Id,
		Stage:         constant.ResearchStageTasks,
		Status:        constant.ResearchEventStatusCompleted,
		Message:       fmt.Sprintf("%d task(s) requested", len(created)),
		Payload:       map[string]interface{}{"task_ids": taskIds},
		CreatedAt:     time.Now(),
	}); err != nil {
		return nil, err
	}

	return &dto.CreateTasksFromRunResponse{CreatedTaskIds: created}, nil
}

func (s *researchService) ResumeInterrupted(ctx context.Context) (int, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	runs, err := uow.ResearchRunRepository().FindByStatus(ctx, constant.ResearchRunStatusRunning)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, run := range runs {
		if err := s.enqueue(ctx, run.Id, runReasonResume); err != nil {
			s.logger.Error(researchModule, "Failed to re-queue interrupted run", map[string]interface{}{"run_id": run.Id, "error": err.Error()})
			continue
		}
		queued++
	}

	if queued > 0 {
		s.logger.Info(researchModule, "Interrupted runs re-queued", map[string]interface{}{"count": queued})
	}
	return queued, nil
}

func (s *researchService) findRun(ctx context.Context, uow unitofwork.UnitOfWork, caller Caller, runId uuid.UUID) (*entity.ResearchRun, error) {
	run, err := uow.ResearchRunRepository().FindByIdInScope(ctx, runId, caller.scope())
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// transition persists run only if nobody moved it off from since it was read.
func (s *researchService) transition(ctx context.Context, uow unitofwork.UnitOfWork, run *entity.ResearchRun, from constant.ResearchRunStatus) error {
	to := run.Status
	err := uow.ResearchRunRepository().UpdateStatus(ctx, run, from)
	if errors.Is(err, contract.ErrStatusConflict) {
		s.logger.Warn(researchModule, "Research run changed concurrently", map[string]interface{}{"run_id": run.Id, "from": from, "to": to})
		return fmt.Errorf("%w: run is no longer %s", ErrInvalidRunState, from)
	}
	return err
}

func (s *researchService) enqueue(ctx context.Context, runId uuid.UUID, reason string) error {
	msgJson, err := json.Marshal(dto.ResearchRunRequestedMessage{RunId: runId, Reason: reason})
	if err != nil {
		return err
	}
	return s.publisherService.Publish(ctx, msgJson)
}

func (s *researchService) event(ctx context.Context, uow unitofwork.UnitOfWork, runId uuid.UUID, stage string, status constant.ResearchEventStatus, message string) error {
	return uow.ResearchEventRepository().Create(ctx, &entity.ResearchRunEvent{
		Id:            uuid.New(),
		ResearchRunId: runId,
		Stage:         stage,
		Status:        status,
		Message:       message,
		Payload:       map[string]interface{}{},
		CreatedAt:     time.Now(),
	})
}

func toRunSummary(run *entity.ResearchRun) *dto.ResearchRunSummary {
	return &dto.ResearchRunSummary{
		Id:             run.Id,
		ConversationId: run.ConversationId,
		Status:         string(run.Status),
		Query:          run.Query,
		Effort:         string(run.Effort),
		QualityScore:   run.QualityScore,
		StopReason:     run.Metrics.StopReason,
		Error:          run.Error,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		CreatedAt:      run.CreatedAt,
	}
}

func toRunResponse(run *entity.ResearchRun) dto.ResearchRunResponse {
	return dto.ResearchRunResponse{
		Id:             run.Id,
		ConversationId: run.ConversationId,
		HouseholdId:    run.HouseholdId,
		CreatedById:    run.CreatedById,
		Status:         string(run.Status),
		Query:          run.Query,
		Effort:         string(run.Effort),
		RecencyDays:    run.RecencyDays,
		Plan:           run.Plan,
		Metrics:        run.Metrics,
		QualityScore:   run.QualityScore,
		Error:          run.Error,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		CreatedAt:      run.CreatedAt,
		UpdatedAt:      run.UpdatedAt,
	}
}

func distinctIds(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// linkAction records the task id on the report action with the same title.
func linkAction(actions []entity.ReportAction, title string, taskId uuid.UUID) bool {
	for i := range actions {
		if strings.EqualFold(strings.TrimSpace(actions[i].Title), strings.TrimSpace(title)) && actions[i].CreatedTaskId == nil {
			id := taskId
			actions[i].CreatedTaskId = &id
			return true
		}
	}
	return false
}

func taskTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= 120 {
		return s
	}
	return strings.TrimSpace(string(runes[:117])) + "..."
}
