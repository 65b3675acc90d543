// Package synthesizer writes the final research report from a run's findings.
package synthesizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/pkg/logger"
	"homehub-be/pkg/llm"

	"github.com/google/uuid"
)

const synthesizerModule = "SYNTHESIZER"

type Input struct {
	Query        string
	Plan         entity.ResearchPlan
	Findings     []*entity.ResearchFinding
	Sources      []*entity.ResearchSource
	Unknowns     []string
	Actions      []entity.ReportAction
	Warnings     []string
	QualityScore float64
}

type Output struct {
	Report *entity.ResearchReport
	// Fallback is set when the report was assembled without the model.
	Fallback bool
	Reason   string
	// Err is the context error when the caller went away mid-synthesis.
	// Report is nil then.
	Err error
}

type Synthesizer interface {
	Synthesize(ctx context.Context, in Input) Output
}

type LLMSynthesizer struct {
	completer llm.StructuredCompleter
	logger    logger.ILogger
}

func NewLLMSynthesizer(completer llm.StructuredCompleter, log logger.ILogger) *LLMSynthesizer {
	return &LLMSynthesizer{completer: completer, logger: log}
}

type reportWire struct {
	Summary  string   `json:"summary"`
	Markdown string   `json:"markdown"`
	Unknowns []string `json:"unknowns"`
	Actions  []struct {
		Title             string   `json:"title"`
		Description       string   `json:"description"`
		RelatedFindingIds []string `json:"relatedFindingIds"`
	} `json:"actions"`
	Blocks []struct {
		Type  string                 `json:"type"`
		Title string                 `json:"title"`
		Data  map[string]interface{} `json:"data"`
	} `json:"blocks"`
}

func (s *LLMSynthesizer) Synthesize(ctx context.Context, in Input) Output {
	if s.completer == nil {
		return s.fallback(in, "no language model configured")
	}

	raw, err := s.completer.Complete(ctx, buildPrompt(in), reportSchema)
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return Output{Err: ctxErr}
	}
	if err != nil {
		return s.fallback(in, fmt.Sprintf("report synthesis failed: %v", err))
	}

	var wire reportWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return s.fallback(in, fmt.Sprintf("report could not be decoded: %v", err))
	}

	markdown := ResolveCitations(StripPreamble(wire.Markdown), in.Sources)
	if strings.TrimSpace(markdown) == "" {
		return s.fallback(in, "model returned an empty report")
	}
	summary := StripPreamble(wire.Summary)
	if summary == "" {
		summary = firstParagraph(markdown)
	}

	findingIds := make(map[uuid.UUID]bool, len(in.Findings))
	for _, f := range in.Findings {
		findingIds[f.Id] = true
	}

	actions := make([]entity.ReportAction, 0, len(wire.Actions))
	for _, a := range wire.Actions {
		title := strings.TrimSpace(a.Title)
		if title == "" {
			continue
		}
		related := make([]uuid.UUID, 0, len(a.RelatedFindingIds))
		for _, raw := range a.RelatedFindingIds {
			if id, err := uuid.Parse(strings.TrimSpace(raw)); err == nil && findingIds[id] {
				related = append(related, id)
			}
		}
		actions = append(actions, entity.ReportAction{
			Title:             title,
			Description:       strings.TrimSpace(a.Description),
			RelatedFindingIds: related,
		})
	}
	if len(actions) == 0 {
		actions = in.Actions
	}

	unknowns := dedupeStrings(wire.Unknowns)
	if len(unknowns) == 0 {
		unknowns = dedupeStrings(in.Unknowns)
	}

	blocks := make([]entity.PresentationBlock, 0, len(wire.Blocks))
	seen := map[string]bool{}
	for _, b := range wire.Blocks {
		key := b.Type + "|" + strings.ToLower(strings.TrimSpace(b.Title))
		if !validBlockType(b.Type) || seen[key] {
			continue
		}
		seen[key] = true
		blocks = append(blocks, entity.PresentationBlock{Type: b.Type, Title: strings.TrimSpace(b.Title), Data: b.Data})
	}

	s.logger.Info(synthesizerModule, "Report synthesized", map[string]interface{}{
		"blocks":  len(blocks),
		"actions": len(actions),
	})

	return Output{
		Report: &entity.ResearchReport{
			Summary:        summary,
			ReportMarkdown: markdown,
			Unknowns:       unknowns,
			Actions:        actions,
			Presentation:   &entity.ReportPresentation{Markdown: markdown, Blocks: blocks},
		},
	}
}

func (s *LLMSynthesizer) fallback(in Input, reason string) Output {
	s.logger.Warn(synthesizerModule, "Using fallback report", map[string]interface{}{"reason": reason})
	return Output{Report: FallbackReport(in), Fallback: true, Reason: reason}
}

func validBlockType(t string) bool {
	switch t {
	case constant.PresentationBlockComparisonTable,
		constant.PresentationBlockRankedList,
		constant.PresentationBlockSources,
		constant.PresentationBlockCallout,
		constant.PresentationBlockActionItems:
		return true
	}
	return false
}

func dedupeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func firstParagraph(markdown string) string {
	for _, para := range strings.Split(markdown, "\n\n") {
		para = strings.TrimSpace(para)
		if para != "" && !strings.HasPrefix(para, "#") {
			return para
		}
	}
	return ""
}
