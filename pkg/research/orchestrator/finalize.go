package orchestrator

import (
	"context"
	"fmt"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/pkg/research/synthesizer"

	"github.com/google/uuid"
)

// finalize classifies the run, writes its report and moves it to a terminal status.
func (o *Orchestrator) finalize(ctx context.Context, st *runState) error {
	run := st.run
	m := &run.Metrics

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.StopReason == constant.StopReasonCanceled {
		return o.finish(ctx, st, constant.ResearchRunStatusCanceled, nil, "Research canceled")
	}

	sources, err := st.uow.ResearchSourceRepository().FindByRunId(ctx, run.Id)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}

	supported := 0
	for _, f := range st.findings {
		if f.Status != constant.ResearchFindingStatusUnknown {
			supported++
		}
	}

	usable := len(m.UsableSourceIds)
	quality := QualityScore(st.findings, usable, m.Budget.MinSources)
	m.Warnings = o.warnings(st, quality)

	in := synthesizer.Input{
		Query:        run.Query,
		Plan:         run.Plan,
		Findings:     st.findings,
		Sources:      sources,
		Unknowns:     m.Unknowns,
		Actions:      m.SuggestedActions,
		Warnings:     m.Warnings,
		QualityScore: quality,
	}

	if supported == 0 {
		// Nothing usable: keep a deterministic report for the audit trail, fail the run.
		if err := o.saveReport(ctx, st, synthesizer.FallbackReport(in)); err != nil {
			return err
		}
		m.ReportFallback = true
		msg := fmt.Sprintf("no usable findings: all %d finding(s) across %d sub-question(s) are unknown",
			len(st.findings), len(m.ProcessedSubQuestions))
		run.Error = &msg
		return o.finish(ctx, st, constant.ResearchRunStatusFailed, nil, "Research failed: "+msg)
	}

	out := o.synthesizer.Synthesize(ctx, in)
	if out.Err != nil {
		return out.Err
	}
	if err := ctx.Err(); err != nil {
		// A report cut short by shutdown is not the run's answer.
		return err
	}
	if out.Fallback {
		m.ReportFallback = true
		m.Warnings = append(m.Warnings, "report assembled without the language model: "+out.Reason)
	}
	if err := o.saveReport(ctx, st, out.Report); err != nil {
		return err
	}

	status := constant.ResearchRunStatusCompleted
	if quality < run.Plan.StopCriteria.ConfidenceTarget ||
		len(m.FailedSoftSubQuestions) > 0 ||
		usable < m.Budget.MinSources ||
		out.Fallback {
		status = constant.ResearchRunStatusCompletedWithWarnings
	}

	message := fmt.Sprintf("Research %s with quality %.2f", status, quality)
	return o.finish(ctx, st, status, &quality, message)
}

// saveReport creates the run's report. A report left by an interrupted
// earlier attempt is kept.
func (o *Orchestrator) saveReport(ctx context.Context, st *runState, report *entity.ResearchReport) error {
	repo := st.uow.ResearchReportRepository()
	existing, err := repo.FindByRunId(ctx, st.run.Id)
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if existing != nil {
		return nil
	}

	report.Id = uuid.New()
	report.ResearchRunId = st.run.Id
	report.CreatedAt = o.cfg.Now()
	if err := repo.Create(ctx, report); err != nil {
		return fmt.Errorf("persist report: %w", err)
	}
	return o.event(ctx, st, constant.ResearchStageReport, constant.ResearchEventStatusCompleted, nil, "Report ready", map[string]interface{}{
		"report_id": report.Id,
	})
}

func (o *Orchestrator) finish(ctx context.Context, st *runState, status constant.ResearchRunStatus, quality *float64, message string) error {
	run := st.run
	if !run.Status.CanTransitionTo(status) {
		return fmt.Errorf("invalid transition %s -> %s", run.Status, status)
	}

	now := o.cfg.Now()
	run.Status = status
	run.QualityScore = quality
	run.CompletedAt = &now
	if err := st.persist(ctx); err != nil {
		return err
	}

	eventStatus := constant.ResearchEventStatusCompleted
	stage := constant.ResearchStageRun
	switch status {
	case constant.ResearchRunStatusFailed:
		eventStatus = constant.ResearchEventStatusFailed
	case constant.ResearchRunStatusCanceled:
		eventStatus = constant.ResearchEventStatusInfo
		stage = constant.ResearchStageCancellation
	}
	if err := o.event(ctx, st, stage, eventStatus, nil, message, map[string]interface{}{
		"status":      status,
		"stop_reason": run.Metrics.StopReason,
		"warnings":    run.Metrics.Warnings,
	}); err != nil {
		return err
	}

	o.notifier.RunFinished(ctx, run)
	o.logger.Info(researchModule, "Run finished", map[string]interface{}{
		"run_id":      run.Id,
		"status":      status,
		"stop_reason": run.Metrics.StopReason,
	})
	return nil
}

func (o *Orchestrator) warnings(st *runState, quality float64) []string {
	m := st.run.Metrics
	total := len(st.run.Plan.SubQuestions)
	out := make([]string, 0)

	if usable := len(m.UsableSourceIds); usable < m.Budget.MinSources {
		out = append(out, fmt.Sprintf("minimum source count not reached: %d of %d usable sources", usable, m.Budget.MinSources))
	}
	if n := len(m.UnderSourcedSubQuestions); n > 0 {
		out = append(out, fmt.Sprintf("minimum source count not reached for %d of %d sub-questions", n, total))
	}
	if n := len(m.FailedSoftSubQuestions); n > 0 {
		out = append(out, fmt.Sprintf("finding synthesis failed for %d of %d sub-questions", n, total))
	}
	if skipped := total - len(m.ProcessedSubQuestions); skipped > 0 {
		out = append(out, fmt.Sprintf("%d sub-question(s) not researched (%s)", skipped, m.StopReason))
	}
	if target := st.run.Plan.StopCriteria.ConfidenceTarget; quality < target {
		out = append(out, fmt.Sprintf("quality score %.2f is below the target %.2f", quality, target))
	}
	return out
}
