// Package planner turns a research query into an objective and a bounded list
// of sub-questions. It always returns a usable plan: when the model fails or
// answers outside the contract a deterministic plan is produced instead.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/pkg/logger"
	"homehub-be/pkg/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	MinSubQuestions = 3
	MaxSubQuestions = 8

	MaxQueryLength = 4000
	MaxRecencyDays = 3650

	plannerModule = "PLANNER"

	defaultTarget = 0.75
	defaultDelta  = 0.05
	defaultWindow = 2

	defaultOutputFormat = "Short direct answer, then key findings per sub-question, open unknowns and suggested next actions."
)

var tracer = otel.Tracer("homehub-be/research/planner")

type Request struct {
	Query       string
	Effort      constant.ResearchEffort
	RecencyDays *int
}

type Result struct {
	Plan    entity.ResearchPlan
	Planner entity.PlannerStatus
}

type Planner interface {
	Generate(ctx context.Context, req Request) Result
}

type LLMPlanner struct {
	completer llm.StructuredCompleter
	logger    logger.ILogger
}

func NewLLMPlanner(completer llm.StructuredCompleter, log logger.ILogger) *LLMPlanner {
	return &LLMPlanner{completer: completer, logger: log}
}

// ValidateRequest checks the bounds on query length and recency.
func ValidateRequest(req Request) error {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return fmt.Errorf("query is required")
	}
	if len([]rune(q)) > MaxQueryLength {
		return fmt.Errorf("query must be at most %d characters", MaxQueryLength)
	}
	if req.RecencyDays != nil && (*req.RecencyDays < 1 || *req.RecencyDays > MaxRecencyDays) {
		return fmt.Errorf("recency_days must be between 1 and %d", MaxRecencyDays)
	}
	return nil
}

func (p *LLMPlanner) Generate(ctx context.Context, req Request) Result {
	ctx, span := tracer.Start(ctx, "research.plan.generate",
		trace.WithAttributes(
			attribute.String("effort", string(req.Effort)),
			attribute.Int("query_length", len(req.Query)),
		),
	)
	defer span.End()

	if p.completer == nil {
		return p.fallback(req, "no language model configured")
	}

	raw, err := p.completer.Complete(ctx, buildPrompt(req), planSchema)
	if err != nil {
		span.RecordError(err)
		return p.fallback(req, fmt.Sprintf("plan generation failed: %v", err))
	}

	plan, err := decodePlan(raw, req)
	if err != nil {
		return p.fallback(req, err.Error())
	}

	span.SetAttributes(attribute.Int("sub_questions", len(plan.SubQuestions)))
	p.logger.Info(plannerModule, "Plan generated", map[string]interface{}{
		"sub_questions": len(plan.SubQuestions),
		"effort":        req.Effort,
	})
	return Result{
		Plan:    plan,
		Planner: entity.PlannerStatus{Status: constant.PlannerStatusGenerated},
	}
}

func (p *LLMPlanner) fallback(req Request, reason string) Result {
	p.logger.Warn(plannerModule, "Using fallback plan", map[string]interface{}{
		"reason": reason,
		"effort": req.Effort,
	})
	return Result{
		Plan:    FallbackPlan(req),
		Planner: entity.PlannerStatus{Status: constant.PlannerStatusFallback, Reason: reason},
	}
}

type planWire struct {
	Objective       string   `json:"objective"`
	SubQuestions    []string `json:"subQuestions"`
	Assumptions     []string `json:"assumptions"`
	OutputFormat    string   `json:"outputFormat"`
	EffortRationale string   `json:"effortRationale"`
	StopCriteria    *struct {
		ConfidenceTarget         *float64 `json:"confidenceTarget"`
		DiminishingReturnsDelta  *float64 `json:"diminishingReturnsDelta"`
		DiminishingReturnsWindow *float64 `json:"diminishingReturnsWindow"`
	} `json:"stopCriteria"`
}

func decodePlan(raw json.RawMessage, req Request) (entity.ResearchPlan, error) {
	var w planWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return entity.ResearchPlan{}, fmt.Errorf("plan is not valid JSON: %w", err)
	}

	subQuestions := DedupeSubQuestions(w.SubQuestions)
	if len(subQuestions) < MinSubQuestions {
		return entity.ResearchPlan{}, fmt.Errorf("plan has %d distinct sub-questions, need at least %d", len(subQuestions), MinSubQuestions)
	}
	if len(subQuestions) > MaxSubQuestions {
		subQuestions = subQuestions[:MaxSubQuestions]
	}

	objective := strings.TrimSpace(w.Objective)
	if objective == "" {
		objective = strings.TrimSpace(req.Query)
	}
	outputFormat := strings.TrimSpace(w.OutputFormat)
	if outputFormat == "" {
		outputFormat = defaultOutputFormat
	}

	criteria := DefaultStopCriteria()
	if w.StopCriteria != nil {
		if v := w.StopCriteria.ConfidenceTarget; v != nil {
			criteria.ConfidenceTarget = *v
		}
		if v := w.StopCriteria.DiminishingReturnsDelta; v != nil {
			criteria.DiminishingReturnsDelta = *v
		}
		if v := w.StopCriteria.DiminishingReturnsWindow; v != nil {
			criteria.DiminishingReturnsWindow = int(*v)
		}
	}

	return entity.ResearchPlan{
		Objective:       objective,
		SubQuestions:    subQuestions,
		Assumptions:     nonEmpty(w.Assumptions),
		OutputFormat:    outputFormat,
		EffortRationale: strings.TrimSpace(w.EffortRationale),
		StopCriteria:    criteria,
	}, nil
}

func DefaultStopCriteria() entity.StopCriteria {
	return entity.StopCriteria{
		ConfidenceTarget:         defaultTarget,
		DiminishingReturnsDelta:  defaultDelta,
		DiminishingReturnsWindow: defaultWindow,
	}
}

// DedupeSubQuestions trims entries and drops blanks and case-insensitive repeats,
// keeping first occurrences in order.
func DedupeSubQuestions(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		q = strings.Join(strings.Fields(q), " ")
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
