package orchestrator

import (
	"context"
	"fmt"
	"time"

	"homehub-be/internal/entity"
	"homehub-be/internal/repository/unitofwork"
	"homehub-be/pkg/research/executor"

	"github.com/google/uuid"
)

// runState is owned by the goroutine running the dispatch loop. Workers never
// touch it, they hand their outcome back over a channel.
type runState struct {
	run      *entity.ResearchRun
	uow      unitofwork.UnitOfWork
	findings []*entity.ResearchFinding
	usable   map[uuid.UUID]bool

	baseActive   float64
	sessionStart time.Time
	now          func() time.Time
}

func (o *Orchestrator) newRunState(ctx context.Context, uow unitofwork.UnitOfWork, run *entity.ResearchRun) (*runState, error) {
	st := &runState{
		run:          run,
		uow:          uow,
		baseActive:   run.Metrics.ActiveSeconds,
		sessionStart: o.cfg.Now(),
		now:          o.cfg.Now,
	}

	recovered, err := o.recoverInFlight(ctx, st)
	if err != nil {
		return nil, err
	}

	findings, err := uow.ResearchFindingRepository().FindByRunId(ctx, run.Id)
	if err != nil {
		return nil, fmt.Errorf("load findings: %w", err)
	}
	st.findings = findings

	st.usable = make(map[uuid.UUID]bool, len(run.Metrics.UsableSourceIds))
	for _, id := range run.Metrics.UsableSourceIds {
		st.usable[id] = true
	}

	if recovered {
		run.Metrics.FindingsCount = len(findings)
		if err := st.persist(ctx); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// recoverInFlight settles sub-questions a previous process dispatched but
// never absorbed. Their reserved steps count as spent, and whatever findings
// they managed to write are dropped because they run again.
func (o *Orchestrator) recoverInFlight(ctx context.Context, st *runState) (bool, error) {
	m := &st.run.Metrics
	recovered := false

	for _, allowance := range m.InFlightSteps {
		m.StepsUsed += allowance
		recovered = true
	}
	m.InFlightSteps = nil

	for _, idx := range st.pending() {
		deleted, err := st.uow.ResearchFindingRepository().DeleteBySubQuestion(ctx, st.run.Id, st.run.Plan.SubQuestions[idx])
		if err != nil {
			return false, fmt.Errorf("drop partial findings: %w", err)
		}
		if deleted > 0 {
			recovered = true
			o.logger.Info(researchModule, "Dropped findings of an unfinished sub-question", map[string]interface{}{
				"run_id": st.run.Id, "index": idx, "findings": deleted,
			})
		}
	}
	return recovered, nil
}

func (s *runState) activeSeconds() float64 {
	return s.baseActive + s.now().Sub(s.sessionStart).Seconds()
}

func (s *runState) timeUp() bool {
	return s.activeSeconds() >= float64(s.run.Metrics.Budget.MaxRuntimeSeconds)
}

// deadline is the wall-clock instant the runtime budget runs out this session.
func (s *runState) deadline() time.Time {
	left := float64(s.run.Metrics.Budget.MaxRuntimeSeconds) - s.baseActive
	return s.sessionStart.Add(time.Duration(left * float64(time.Second)))
}

func (s *runState) pending() []int {
	out := make([]int, 0, len(s.run.Plan.SubQuestions))
	for i := range s.run.Plan.SubQuestions {
		if !s.run.Metrics.IsProcessed(i) {
			out = append(out, i)
		}
	}
	return out
}

// reserve records a dispatched sub-question's allowance so a crash cannot lose it.
func (s *runState) reserve(index, allowance int) {
	if s.run.Metrics.InFlightSteps == nil {
		s.run.Metrics.InFlightSteps = make(map[int]int)
	}
	s.run.Metrics.InFlightSteps[index] = allowance
}

func (s *runState) persist(ctx context.Context) error {
	s.run.Metrics.ActiveSeconds = s.activeSeconds()
	if err := s.uow.ResearchRunRepository().Update(ctx, s.run); err != nil {
		return fmt.Errorf("persist research run: %w", err)
	}
	return nil
}

func (s *runState) persistQuietly(o *Orchestrator) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.persist(ctx); err != nil {
		o.logger.Warn(researchModule, "Failed to checkpoint interrupted run", map[string]interface{}{"run_id": s.run.Id, "error": err.Error()})
	}
}

// absorb folds a finished sub-question into the run metrics.
func (s *runState) absorb(ctx context.Context, out *executor.Outcome) error {
	m := &s.run.Metrics
	m.StepsUsed += out.StepsUsed
	delete(m.InFlightSteps, out.Index)
	m.ProcessedSubQuestions = append(m.ProcessedSubQuestions, out.Index)
	if out.FailedSoft {
		m.FailedSoftSubQuestions = append(m.FailedSoftSubQuestions, out.Index)
	}
	if out.UnderSourced {
		m.UnderSourcedSubQuestions = append(m.UnderSourcedSubQuestions, out.Index)
	}
	for _, id := range out.UsableSourceIds {
		if !s.usable[id] {
			s.usable[id] = true
			m.UsableSourceIds = append(m.UsableSourceIds, id)
		}
	}
	m.Unknowns = appendDistinct(m.Unknowns, out.Unknowns...)
	for _, a := range out.Actions {
		if !hasAction(m.SuggestedActions, a.Title) {
			m.SuggestedActions = append(m.SuggestedActions, a)
		}
	}

	s.findings = append(s.findings, out.Findings...)
	m.FindingsCount = len(s.findings)

	sources, err := s.uow.ResearchSourceRepository().FindByRunId(ctx, s.run.Id)
	if err != nil {
		return fmt.Errorf("count sources: %w", err)
	}
	m.SourcesCount = len(sources)

	m.AggregateConfidence = AggregateConfidence(s.findings)
	m.ConfidenceHistory = append(m.ConfidenceHistory, m.AggregateConfidence)
	return nil
}

func appendDistinct(list []string, values ...string) []string {
	seen := make(map[string]bool, len(list))
	for _, v := range list {
		seen[v] = true
	}
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			list = append(list, v)
		}
	}
	return list
}

func hasAction(actions []entity.ReportAction, title string) bool {
	for _, a := range actions {
		if a.Title == title {
			return true
		}
	}
	return false
}
