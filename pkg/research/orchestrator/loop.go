package orchestrator

import (
	"context"
	"fmt"
	"math"

	"homehub-be/internal/constant"
	"homehub-be/pkg/research/executor"
)

type taskResult struct {
	index     int
	allowance int
	outcome   *executor.Outcome
	err       error
}

// execute dispatches pending sub-questions in plan order until they are all
// processed, a stop criterion fires or cancellation is observed. Budget
// counters are only touched on this goroutine.
func (o *Orchestrator) execute(ctx context.Context, st *runState) error {
	run := st.run
	budget := run.Metrics.Budget

	if run.Metrics.StopReason != "" {
		// Stopped before a crash, go straight to the report.
		return nil
	}

	pending := st.pending()
	perQuestionMin := int(math.Ceil(float64(budget.MinSources) / float64(max(1, len(run.Plan.SubQuestions)))))
	if perQuestionMin < 1 {
		perQuestionMin = 1
	}

	results := make(chan taskResult, o.cfg.Parallelism)
	inFlight, reserved := 0, 0
	stopReason := ""
	canceled := false
	var fatal error

	for {
		for fatal == nil && stopReason == "" && !canceled && inFlight < o.cfg.Parallelism && len(pending) > 0 {
			requested, err := o.coord.IsCancelRequested(ctx, run.Id)
			if err != nil {
				o.logger.Warn(researchModule, "Cancel flag check failed", map[string]interface{}{"run_id": run.Id, "error": err.Error()})
			}
			if requested {
				canceled = true
				break
			}

			remaining := budget.MaxSteps - run.Metrics.StepsUsed - reserved
			if remaining <= 0 {
				if inFlight == 0 {
					stopReason = constant.StopReasonMaxSteps
				}
				break
			}
			if st.timeUp() {
				if inFlight == 0 {
					stopReason = constant.StopReasonMaxRuntime
				}
				break
			}

			idx := pending[0]
			allowance := min(1+budget.MaxRequeriesPerSubQuestion, remaining)
			st.reserve(idx, allowance)
			if err := st.persist(ctx); err != nil {
				fatal = err
				break
			}
			pending = pending[1:]
			reserved += allowance
			inFlight++

			task := executor.Task{
				RunId:         run.Id,
				Objective:     run.Plan.Objective,
				SubQuestion:   run.Plan.SubQuestions[idx],
				Index:         idx,
				RecencyDays:   run.RecencyDays,
				StepAllowance: allowance,
				MinSources:    perQuestionMin,
				MaxRequeries:  budget.MaxRequeriesPerSubQuestion,
				Deadline:      st.deadline(),
			}
			go func() {
				out, err := o.executor.Execute(ctx, task)
				results <- taskResult{index: task.Index, allowance: task.StepAllowance, outcome: out, err: err}
			}()
		}

		if inFlight == 0 {
			break
		}

		res := <-results
		inFlight--
		reserved -= res.allowance

		if res.err != nil {
			if fatal == nil {
				fatal = fmt.Errorf("sub-question %d: %w", res.index+1, res.err)
			}
			continue
		}
		if fatal != nil {
			continue
		}

		if err := o.complete(ctx, st, res.outcome); err != nil {
			fatal = err
			continue
		}

		if stopReason == "" && (len(pending) > 0 || inFlight > 0) {
			stopReason = o.evaluateStop(st, len(pending))
			if stopReason != "" {
				o.logger.Info(researchModule, "Stop criterion reached", map[string]interface{}{"run_id": run.Id, "reason": stopReason})
			}
		}
	}

	if fatal != nil {
		return fatal
	}

	if !canceled {
		// Final checkpoint before the report.
		if requested, err := o.coord.IsCancelRequested(ctx, run.Id); err == nil && requested {
			canceled = true
		}
	}

	switch {
	case canceled:
		run.Metrics.StopReason = constant.StopReasonCanceled
	case stopReason != "":
		run.Metrics.StopReason = stopReason
	default:
		run.Metrics.StopReason = constant.StopReasonAllProcessed
	}
	if err := st.persist(ctx); err != nil {
		return err
	}
	return o.event(ctx, st, constant.ResearchStageRun, constant.ResearchEventStatusInfo, nil,
		"Research loop finished: "+run.Metrics.StopReason, map[string]interface{}{
			"steps_used":     run.Metrics.StepsUsed,
			"usable_sources": len(run.Metrics.UsableSourceIds),
			"processed":      len(run.Metrics.ProcessedSubQuestions),
		})
}

// complete records one finished sub-question and checkpoints the run.
func (o *Orchestrator) complete(ctx context.Context, st *runState, out *executor.Outcome) error {
	if err := st.absorb(ctx, out); err != nil {
		return err
	}
	if err := st.persist(ctx); err != nil {
		return err
	}

	subQuestion := out.SubQuestion
	if err := o.event(ctx, st, constant.ResearchStageRun, constant.ResearchEventStatusProgress, &subQuestion,
		fmt.Sprintf("Sub-question %d of %d done", len(st.run.Metrics.ProcessedSubQuestions), len(st.run.Plan.SubQuestions)),
		map[string]interface{}{
			"aggregate_confidence": st.run.Metrics.AggregateConfidence,
			"steps_used":           st.run.Metrics.StepsUsed,
			"usable_sources":       len(st.run.Metrics.UsableSourceIds),
		}); err != nil {
		return err
	}
	o.notifier.RunProgress(ctx, st.run, out.Index)
	return nil
}

// evaluateStop applies the global stop criteria after a completion, in order:
// runtime, steps, source floor, diminishing returns, confidence target.
func (o *Orchestrator) evaluateStop(st *runState, pending int) string {
	m := st.run.Metrics
	criteria := st.run.Plan.StopCriteria

	if st.timeUp() {
		return constant.StopReasonMaxRuntime
	}
	if m.StepsUsed >= m.Budget.MaxSteps {
		return constant.StopReasonMaxSteps
	}
	if len(m.UsableSourceIds) < m.Budget.MinSources && pending > 0 {
		return ""
	}
	if diminishingReturns(m.ConfidenceHistory, criteria.DiminishingReturnsWindow, criteria.DiminishingReturnsDelta) {
		return constant.StopReasonDiminishingReturns
	}
	if m.AggregateConfidence >= criteria.ConfidenceTarget && len(m.UsableSourceIds) >= m.Budget.MinSources {
		return constant.StopReasonConfidenceTarget
	}
	return ""
}
