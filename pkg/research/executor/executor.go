// Package executor researches a single sub-question: search, fetch, score and
// synthesise findings, re-querying with a broader search while evidence is
// thin and the step allowance permits.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/pkg/logger"
	"homehub-be/internal/repository/unitofwork"
	"homehub-be/pkg/llm"
	"homehub-be/pkg/research/acquisition"
	"homehub-be/pkg/research/scorer"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const executorModule = "EXECUTOR"

var tracer = otel.Tracer("homehub-be/research/executor")

type Task struct {
	RunId       uuid.UUID
	Objective   string
	SubQuestion string
	Index       int
	RecencyDays *int

	// StepAllowance is the number of search rounds this task may spend.
	StepAllowance int
	// MinSources is the usable-source target for this sub-question.
	MinSources   int
	MaxRequeries int
	// Deadline stops re-querying once passed. Zero means no deadline.
	Deadline time.Time
}

type Outcome struct {
	Index           int
	SubQuestion     string
	StepsUsed       int
	Requeries       int
	SourceIds       []uuid.UUID
	UsableSourceIds []uuid.UUID
	Findings        []*entity.ResearchFinding
	Unknowns        []string
	Actions         []entity.ReportAction
	FailedSoft      bool
	UnderSourced    bool
}

// Executor errors are fatal to the run. Everything recoverable is folded into
// the Outcome instead.
type Executor interface {
	Execute(ctx context.Context, task Task) (*Outcome, error)
}

type Options struct {
	SearchLimit      int
	FetchPerRound    int
	FetchConcurrency int
	// MaxEvidenceChars bounds the text of one source handed to the model.
	MaxEvidenceChars int
}

func (o Options) withDefaults() Options {
	if o.SearchLimit <= 0 {
		o.SearchLimit = 6
	}
	if o.FetchPerRound <= 0 {
		o.FetchPerRound = 4
	}
	if o.FetchConcurrency <= 0 {
		o.FetchConcurrency = 3
	}
	if o.MaxEvidenceChars <= 0 {
		o.MaxEvidenceChars = 2500
	}
	return o
}

type SubQuestionExecutor struct {
	uowFactory unitofwork.RepositoryFactory
	searcher   acquisition.Searcher
	fetcher    acquisition.Fetcher
	scorer     scorer.Scorer
	completer  llm.StructuredCompleter
	logger     logger.ILogger
	opts       Options
	now        func() time.Time
}

func NewSubQuestionExecutor(
	uowFactory unitofwork.RepositoryFactory,
	searcher acquisition.Searcher,
	fetcher acquisition.Fetcher,
	sc scorer.Scorer,
	completer llm.StructuredCompleter,
	log logger.ILogger,
	opts Options,
) *SubQuestionExecutor {
	return &SubQuestionExecutor{
		uowFactory: uowFactory,
		searcher:   searcher,
		fetcher:    fetcher,
		scorer:     sc,
		completer:  completer,
		logger:     log,
		opts:       opts.withDefaults(),
		now:        time.Now,
	}
}

// evidence is one fetched and scored source.
type evidence struct {
	source    *entity.ResearchSource
	text      string
	excerpt   *string
	relevance float64
	notes     string
}

// execution holds the state of one Execute call.
type execution struct {
	*SubQuestionExecutor
	task     Task
	uow      unitofwork.UnitOfWork
	outcome  *Outcome
	tried    map[string]bool
	usable   []evidence
	fetched  int
	searched int
}

func (e *SubQuestionExecutor) Execute(ctx context.Context, task Task) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "research.sub_question.execute",
		trace.WithAttributes(
			attribute.String("run_id", task.RunId.String()),
			attribute.Int("index", task.Index),
		),
	)
	defer span.End()

	x := &execution{
		SubQuestionExecutor: e,
		task:                task,
		uow:                 e.uowFactory.NewUnitOfWork(ctx),
		outcome:             &Outcome{Index: task.Index, SubQuestion: task.SubQuestion},
		tried:               make(map[string]bool),
	}

	if err := x.event(ctx, constant.ResearchStageSubQuestion, constant.ResearchEventStatusStarted,
		fmt.Sprintf("Researching: %s", task.SubQuestion), nil); err != nil {
		return nil, err
	}

	if err := x.gather(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := x.synthesize(ctx); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("steps", x.outcome.StepsUsed),
		attribute.Int("usable_sources", len(x.outcome.UsableSourceIds)),
		attribute.Int("findings", len(x.outcome.Findings)),
	)

	status := constant.ResearchEventStatusCompleted
	if x.outcome.FailedSoft {
		status = constant.ResearchEventStatusFailed
	}
	if err := x.event(ctx, constant.ResearchStageSubQuestion, status, "Sub-question finished", map[string]interface{}{
		"steps_used":     x.outcome.StepsUsed,
		"requeries":      x.outcome.Requeries,
		"usable_sources": len(x.outcome.UsableSourceIds),
		"findings":       len(x.outcome.Findings),
		"failed_soft":    x.outcome.FailedSoft,
		"under_sourced":  x.outcome.UnderSourced,
	}); err != nil {
		return nil, err
	}

	return x.outcome, nil
}

// gather runs search rounds until the sub-question has enough usable sources
// or the re-query cap, step allowance or deadline is hit.
func (x *execution) gather(ctx context.Context) error {
	allowance := x.task.StepAllowance
	if allowance < 1 {
		allowance = 1
	}
	query := x.task.SubQuestion

	for {
		x.outcome.StepsUsed++
		if err := x.round(ctx, query); err != nil {
			return err
		}

		if len(x.usable) >= x.task.MinSources {
			return nil
		}
		if x.outcome.Requeries >= x.task.MaxRequeries ||
			x.outcome.StepsUsed >= allowance ||
			x.deadlinePassed() ||
			ctx.Err() != nil {
			x.outcome.UnderSourced = true
			return nil
		}

		x.outcome.Requeries++
		query = BroadenQuery(x.task.SubQuestion, x.task.Objective, x.outcome.Requeries)
	}
}

func (x *execution) deadlinePassed() bool {
	return !x.task.Deadline.IsZero() && !x.now().Before(x.task.Deadline)
}

func (x *execution) round(ctx context.Context, query string) error {
	results, err := x.searcher.Search(ctx, query, x.task.RecencyDays, x.opts.SearchLimit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Search outages degrade to an empty round.
		x.logger.Warn(executorModule, "Search failed", map[string]interface{}{
			"run_id": x.task.RunId,
			"query":  query,
			"error":  err.Error(),
		})
		if evErr := x.event(ctx, constant.ResearchStageSearch, constant.ResearchEventStatusFailed,
			"Search failed", map[string]interface{}{"query": query, "error": err.Error()}); evErr != nil {
			return evErr
		}
		return nil
	}
	x.searched += len(results)

	if err := x.event(ctx, constant.ResearchStageSearch, constant.ResearchEventStatusProgress,
		fmt.Sprintf("Search returned %d result(s)", len(results)), map[string]interface{}{
			"query": query,
			"round": x.outcome.StepsUsed,
		}); err != nil {
		return err
	}

	sources, err := x.recordSources(ctx, query, results)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return nil
	}

	pages, err := x.fetchAll(ctx, sources)
	if err != nil {
		return err
	}

	usableBefore := len(x.usable)
	for i, page := range pages {
		// Unusable pages never reach the scorer.
		if page.Text == nil {
			continue
		}
		x.fetched++
		scored := x.scorer.Score(*page.Text, x.task.SubQuestion)
		if scored.RelevanceScore <= 0 {
			continue
		}
		x.usable = append(x.usable, evidence{
			source:    sources[i],
			text:      *page.Text,
			excerpt:   scored.Excerpt,
			relevance: scored.RelevanceScore,
			notes:     scored.Notes,
		})
		x.outcome.UsableSourceIds = append(x.outcome.UsableSourceIds, sources[i].Id)
	}

	return x.event(ctx, constant.ResearchStageFetch, constant.ResearchEventStatusProgress,
		fmt.Sprintf("Fetched %d page(s), %d usable", len(pages), len(x.usable)-usableBefore), map[string]interface{}{
			"attempted": len(pages),
			"usable":    len(x.usable) - usableBefore,
		})
}

// recordSources persists the untried results of a round, up to the per-round cap.
func (x *execution) recordSources(ctx context.Context, query string, results []acquisition.SearchResult) ([]*entity.ResearchSource, error) {
	repo := x.uow.ResearchSourceRepository()
	sources := make([]*entity.ResearchSource, 0, x.opts.FetchPerRound)

	for rank, result := range results {
		if len(sources) >= x.opts.FetchPerRound {
			break
		}
		normalized := acquisition.NormalizeURL(result.URL)
		if normalized == "" || x.tried[normalized] {
			continue
		}
		x.tried[normalized] = true

		domain := result.Domain
		if domain == "" {
			domain = acquisition.DomainOf(result.URL)
		}
		metadata := map[string]interface{}{
			"query":              query,
			"rank":               rank + 1,
			"sub_question_index": x.task.Index,
		}
		for k, v := range result.Metadata {
			metadata["provider_"+k] = v
		}

		stored, _, err := repo.CreateIfAbsent(ctx, &entity.ResearchSource{
			Id:            uuid.New(),
			ResearchRunId: x.task.RunId,
			Url:           result.URL,
			NormalizedUrl: normalized,
			Title:         result.Title,
			Domain:        domain,
			Snippet:       result.Snippet,
			PublishedAt:   result.PublishedAt,
			Score:         result.Score,
			Metadata:      metadata,
			CreatedAt:     x.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("persist source %s: %w", result.URL, err)
		}
		sources = append(sources, stored)
		x.outcome.SourceIds = append(x.outcome.SourceIds, stored.Id)
	}
	return sources, nil
}

func (x *execution) fetchAll(ctx context.Context, sources []*entity.ResearchSource) ([]acquisition.FetchedSource, error) {
	pages := make([]acquisition.FetchedSource, len(sources))
	repo := x.uow.ResearchSourceRepository()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.FetchConcurrency)
	for i, src := range sources {
		g.Go(func() error {
			page := x.fetcher.Fetch(gCtx, src.Url)
			pages[i] = page
			if page.Text == nil {
				return nil
			}
			if err := repo.MarkRetrieved(gCtx, src.Id, page.RetrievedAt); err != nil {
				return fmt.Errorf("mark source retrieved: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

func (x *execution) event(ctx context.Context, stage string, status constant.ResearchEventStatus, message string, payload map[string]interface{}) error {
	subQuestion := x.task.SubQuestion
	if payload == nil {
		payload = map[string]interface{}{}
	}
	payload["sub_question_index"] = x.task.Index

	err := x.uow.ResearchEventRepository().Create(ctx, &entity.ResearchRunEvent{
		Id:            uuid.New(),
		ResearchRunId: x.task.RunId,
		Stage:         stage,
		Status:        status,
		SubQuestion:   &subQuestion,
		Message:       message,
		Payload:       payload,
		CreatedAt:     x.now(),
	})
	if err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	return nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
