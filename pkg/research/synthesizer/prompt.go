package synthesizer

import (
	"fmt"
	"strings"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"

	"github.com/google/uuid"
)

const reportSchema = `{
  "type": "object",
  "required": ["summary", "markdown", "unknowns", "actions", "blocks"],
  "properties": {
    "summary": {"type": "string", "minLength": 1},
    "markdown": {"type": "string", "minLength": 1},
    "unknowns": {"type": "array", "items": {"type": "string"}},
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["title"],
        "properties": {
          "title": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "relatedFindingIds": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "blocks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "data"],
        "properties": {
          "type": {"type": "string", "enum": ["comparison_table", "ranked_list", "sources", "callout", "action_items"]},
          "title": {"type": "string"},
          "data": {"type": "object"}
        }
      }
    }
  }
}`

func buildPrompt(in Input) string {
	sources := make(map[uuid.UUID]*entity.ResearchSource, len(in.Sources))
	for _, s := range in.Sources {
		sources[s.Id] = s
	}

	var sb strings.Builder
	sb.WriteString("Write the final answer to a household research request.\n\n")
	sb.WriteString(fmt.Sprintf("Request: %s\n", in.Query))
	sb.WriteString(fmt.Sprintf("Objective: %s\n", in.Plan.Objective))
	if in.Plan.OutputFormat != "" {
		sb.WriteString(fmt.Sprintf("Expected format: %s\n", in.Plan.OutputFormat))
	}
	sb.WriteString(fmt.Sprintf("Quality score: %.2f\n\n", in.QualityScore))

	sb.WriteString("Findings:\n")
	for _, f := range in.Findings {
		sb.WriteString(fmt.Sprintf("- id=%s status=%s confidence=%.2f\n  question: %s\n  claim: %s\n",
			f.Id, f.Status, f.Confidence, f.SubQuestion, f.Claim))
		for _, id := range f.SupportingSourceIds {
			if s, ok := sources[id]; ok {
				sb.WriteString(fmt.Sprintf("  source: [%s](%s)\n", sourceTitle(s), s.Url))
			}
		}
	}

	if len(in.Unknowns) > 0 {
		sb.WriteString("\nOpen unknowns:\n")
		for _, u := range in.Unknowns {
			sb.WriteString("- " + u + "\n")
		}
	}
	if len(in.Actions) > 0 {
		sb.WriteString("\nSuggested actions:\n")
		for _, a := range in.Actions {
			sb.WriteString("- " + a.Title + "\n")
		}
	}
	if len(in.Warnings) > 0 {
		sb.WriteString("\nQuality warnings to mention briefly:\n")
		for _, w := range in.Warnings {
			sb.WriteString("- " + w + "\n")
		}
	}

	sb.WriteString("\nRules:\n")
	sb.WriteString("- answer the request directly in the first sentence; never open with \"Based on my research\" or similar\n")
	sb.WriteString("- cite sources inline as [title](url) using only the source links listed above\n")
	sb.WriteString("- do not present unknown-status findings as facts\n")
	sb.WriteString(fmt.Sprintf("- add blocks (%s, %s, %s, %s, %s) only when they add clarity over prose and never repeat the markdown\n",
		constant.PresentationBlockComparisonTable, constant.PresentationBlockRankedList, constant.PresentationBlockSources,
		constant.PresentationBlockCallout, constant.PresentationBlockActionItems))
	sb.WriteString("- relatedFindingIds must be finding ids from the list above\n\n")
	sb.WriteString("Return only JSON matching this schema:\n")
	sb.WriteString(reportSchema)
	return sb.String()
}

func sourceTitle(s *entity.ResearchSource) string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return strings.NewReplacer("[", "(", "]", ")").Replace(t)
	}
	if s.Domain != "" {
		return s.Domain
	}
	return s.Url
}
