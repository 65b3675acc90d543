package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"

	"github.com/google/uuid"
)

const findingsSchema = `{
  "type": "object",
  "required": ["findings", "unknowns", "actions"],
  "properties": {
    "findings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["claim", "confidence", "status", "sourceIds"],
        "properties": {
          "claim": {"type": "string", "minLength": 1},
          "confidence": {"type": "number", "minimum": 0, "maximum": 1},
          "status": {"type": "string", "enum": ["partial", "sufficient", "conflicted", "unknown"]},
          "sourceIds": {"type": "array", "items": {"type": "string"}},
          "notes": {"type": "string"}
        }
      }
    },
    "unknowns": {"type": "array", "items": {"type": "string"}},
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "description": {"type": "string"}
        }
      }
    }
  }
}`

type findingsWire struct {
	Findings []struct {
		Claim      string   `json:"claim"`
		Confidence float64  `json:"confidence"`
		Status     string   `json:"status"`
		SourceIds  []string `json:"sourceIds"`
		Notes      string   `json:"notes"`
	} `json:"findings"`
	Unknowns []string `json:"unknowns"`
	Actions  []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"actions"`
}

func (x *execution) synthesize(ctx context.Context) error {
	if len(x.usable) == 0 {
		notes := fmt.Sprintf("No usable evidence: %d search result(s), %d page(s) with readable text, none relevant to the question.", x.searched, x.fetched)
		if x.fetched == 0 {
			notes = fmt.Sprintf("No usable evidence: %d search result(s) and no page could be fetched as readable text.", x.searched)
		}
		x.outcome.Unknowns = append(x.outcome.Unknowns, x.task.SubQuestion)
		return x.persistFinding(ctx, x.unknownFinding(notes, nil))
	}

	if x.completer == nil {
		x.outcome.FailedSoft = true
		return x.persistFinding(ctx, x.unknownFinding("Synthesis unavailable: no language model configured.", x.allEvidence()))
	}

	raw, err := x.completer.Complete(ctx, x.buildPrompt(), findingsSchema)
	if err != nil {
		if isContextError(err) && ctx.Err() != nil {
			return err
		}
		x.logger.Warn(executorModule, "Finding synthesis failed", map[string]interface{}{
			"run_id": x.task.RunId,
			"index":  x.task.Index,
			"error":  err.Error(),
		})
		x.outcome.FailedSoft = true
		if evErr := x.event(ctx, constant.ResearchStageSynthesis, constant.ResearchEventStatusFailed,
			"Could not synthesize findings", map[string]interface{}{"error": err.Error()}); evErr != nil {
			return evErr
		}
		return x.persistFinding(ctx, x.unknownFinding(
			fmt.Sprintf("Synthesis failed, the model did not return valid findings: %v", err), x.allEvidence()))
	}

	var wire findingsWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		x.outcome.FailedSoft = true
		return x.persistFinding(ctx, x.unknownFinding(fmt.Sprintf("Synthesis failed, findings could not be decoded: %v", err), x.allEvidence()))
	}

	for _, u := range wire.Unknowns {
		if u = strings.TrimSpace(u); u != "" {
			x.outcome.Unknowns = append(x.outcome.Unknowns, u)
		}
	}
	for _, a := range wire.Actions {
		if title := strings.TrimSpace(a.Title); title != "" {
			x.outcome.Actions = append(x.outcome.Actions, entity.ReportAction{
				Title:       title,
				Description: strings.TrimSpace(a.Description),
			})
		}
	}

	persisted := 0
	for _, f := range wire.Findings {
		claim := strings.TrimSpace(f.Claim)
		if claim == "" {
			continue
		}
		finding := x.buildFinding(claim, f.Confidence, f.Status, f.SourceIds, strings.TrimSpace(f.Notes))
		if err := x.persistFinding(ctx, finding); err != nil {
			return err
		}
		persisted++
	}

	if persisted == 0 {
		notes := "The model found no claim the evidence supports."
		if len(x.outcome.Unknowns) > 0 {
			notes = "Open: " + strings.Join(x.outcome.Unknowns, "; ")
		}
		return x.persistFinding(ctx, x.unknownFinding(notes, x.allEvidence()))
	}

	return x.event(ctx, constant.ResearchStageSynthesis, constant.ResearchEventStatusCompleted,
		fmt.Sprintf("Synthesized %d finding(s)", persisted), nil)
}

// buildFinding keeps only citations of usable evidence. A finding left without
// a valid citation is downgraded to unknown.
func (x *execution) buildFinding(claim string, confidence float64, status string, rawIds []string, notes string) *entity.ResearchFinding {
	byId := make(map[uuid.UUID]evidence, len(x.usable))
	for _, ev := range x.usable {
		byId[ev.source.Id] = ev
	}

	ids := make([]uuid.UUID, 0, len(rawIds))
	seen := map[uuid.UUID]bool{}
	cited := make([]entity.FindingEvidence, 0, len(rawIds))
	for _, raw := range rawIds {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil || seen[id] {
			continue
		}
		ev, ok := byId[id]
		if !ok {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
		cited = append(cited, toFindingEvidence(ev))
	}

	findingStatus := parseFindingStatus(status)
	if findingStatus != constant.ResearchFindingStatusUnknown && len(ids) == 0 {
		findingStatus = constant.ResearchFindingStatusUnknown
		notes = strings.TrimSpace(notes + " Downgraded to unknown: no valid source citation.")
	}

	return &entity.ResearchFinding{
		Id:                  uuid.New(),
		ResearchRunId:       x.task.RunId,
		SubQuestion:         x.task.SubQuestion,
		Claim:               claim,
		Confidence:          clamp01(confidence),
		SupportingSourceIds: ids,
		Evidence:            cited,
		Status:              findingStatus,
		Notes:               notes,
		CreatedAt:           x.now(),
	}
}

func (x *execution) unknownFinding(notes string, ev []entity.FindingEvidence) *entity.ResearchFinding {
	return &entity.ResearchFinding{
		Id:                  uuid.New(),
		ResearchRunId:       x.task.RunId,
		SubQuestion:         x.task.SubQuestion,
		Claim:               fmt.Sprintf("Could not establish an answer to: %s", x.task.SubQuestion),
		Confidence:          0,
		SupportingSourceIds: []uuid.UUID{},
		Evidence:            ev,
		Status:              constant.ResearchFindingStatusUnknown,
		Notes:               notes,
		CreatedAt:           x.now(),
	}
}

func (x *execution) persistFinding(ctx context.Context, finding *entity.ResearchFinding) error {
	if err := x.uow.ResearchFindingRepository().Create(ctx, finding); err != nil {
		return fmt.Errorf("persist finding: %w", err)
	}
	x.outcome.Findings = append(x.outcome.Findings, finding)
	return nil
}

func (x *execution) allEvidence() []entity.FindingEvidence {
	out := make([]entity.FindingEvidence, 0, len(x.usable))
	for _, ev := range x.usable {
		out = append(out, toFindingEvidence(ev))
	}
	return out
}

func toFindingEvidence(ev evidence) entity.FindingEvidence {
	return entity.FindingEvidence{
		SourceId:       ev.source.Id,
		Excerpt:        ev.excerpt,
		RelevanceScore: ev.relevance,
		Url:            ev.source.Url,
		Title:          ev.source.Title,
	}
}

func (x *execution) buildPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are answering one research sub-question using only the evidence below.\n\n")
	sb.WriteString(fmt.Sprintf("Overall objective: %s\n", x.task.Objective))
	sb.WriteString(fmt.Sprintf("Sub-question: %s\n\n", x.task.SubQuestion))

	for i, ev := range x.usable {
		sb.WriteString(fmt.Sprintf("--- Evidence %d ---\n", i+1))
		sb.WriteString(fmt.Sprintf("sourceId: %s\n", ev.source.Id))
		sb.WriteString(fmt.Sprintf("title: %s\n", ev.source.Title))
		sb.WriteString(fmt.Sprintf("url: %s\n", ev.source.Url))
		if ev.source.Snippet != "" {
			sb.WriteString(fmt.Sprintf("snippet: %s\n", ev.source.Snippet))
		}
		sb.WriteString(fmt.Sprintf("relevance: %.2f\n", ev.relevance))
		sb.WriteString("text:\n")
		sb.WriteString(truncate(ev.text, x.opts.MaxEvidenceChars))
		sb.WriteString("\n\n")
	}

	sb.WriteString("Rules:\n")
	sb.WriteString("- every finding must cite at least one sourceId copied exactly from the evidence above\n")
	sb.WriteString("- confidence (0-1) reflects source quality and agreement between sources\n")
	sb.WriteString("- use status \"unknown\" when evidence is weak, absent or contradictory; \"conflicted\" when sources disagree\n")
	sb.WriteString("- list what remains unanswered in unknowns and concrete follow-ups in actions\n\n")
	sb.WriteString("Return only JSON matching this schema:\n")
	sb.WriteString(findingsSchema)
	return sb.String()
}

func parseFindingStatus(s string) constant.ResearchFindingStatus {
	switch constant.ResearchFindingStatus(strings.ToLower(strings.TrimSpace(s))) {
	case constant.ResearchFindingStatusSufficient:
		return constant.ResearchFindingStatusSufficient
	case constant.ResearchFindingStatusConflicted:
		return constant.ResearchFindingStatusConflicted
	case constant.ResearchFindingStatusUnknown:
		return constant.ResearchFindingStatusUnknown
	default:
		return constant.ResearchFindingStatusPartial
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
