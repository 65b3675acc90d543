package planner

import (
	"fmt"
	"strings"
)

const planSchema = `{
  "type": "object",
  "required": ["objective", "subQuestions", "assumptions", "outputFormat", "stopCriteria"],
  "properties": {
    "objective": {"type": "string", "minLength": 1},
    "subQuestions": {
      "type": "array",
      "minItems": 3,
      "maxItems": 8,
      "items": {"type": "string", "minLength": 3}
    },
    "assumptions": {"type": "array", "items": {"type": "string"}},
    "outputFormat": {"type": "string"},
    "effortRationale": {"type": "string"},
    "stopCriteria": {
      "type": "object",
      "properties": {
        "confidenceTarget": {"type": "number", "minimum": 0, "maximum": 1},
        "diminishingReturnsDelta": {"type": "number", "minimum": 0, "maximum": 1},
        "diminishingReturnsWindow": {"type": "integer", "minimum": 1}
      }
    }
  }
}`

func buildPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString("You are planning a web research task for a household assistant.\n")
	sb.WriteString("Break the user's request into focused sub-questions that can each be answered from web sources.\n\n")
	sb.WriteString(fmt.Sprintf("Request: %s\n", strings.TrimSpace(req.Query)))
	sb.WriteString(fmt.Sprintf("Effort: %s (quick = 3-4 sub-questions, standard = 4-6, deep = 6-8)\n", effortOrDefault(req.Effort)))
	if req.RecencyDays != nil {
		sb.WriteString(fmt.Sprintf("Only sources published in the last %d days are relevant.\n", *req.RecencyDays))
	}
	sb.WriteString("\nRules:\n")
	sb.WriteString("- objective is one sentence describing what the final answer must deliver\n")
	sb.WriteString("- 3 to 8 sub-questions, no duplicates, each answerable on its own\n")
	sb.WriteString("- list assumptions you are making about the request\n")
	sb.WriteString("- outputFormat describes the sections of the final report\n")
	sb.WriteString("- stopCriteria.confidenceTarget in [0,1], diminishingReturnsDelta in [0,1], diminishingReturnsWindow >= 1\n\n")
	sb.WriteString("Return only JSON matching this schema:\n")
	sb.WriteString(planSchema)
	return sb.String()
}
