package planner

import (
	"fmt"
	"strings"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
)

var fallbackTemplates = []string{
	"What are the key facts and current state of: %s?",
	"What options or alternatives exist for: %s?",
	"What are the main trade-offs, costs, or risks involved in: %s?",
	"What do recent expert reviews or reliable sources recommend about: %s?",
	"What practical next steps should a household take regarding: %s?",
}

func fallbackCount(effort constant.ResearchEffort) int {
	switch effort {
	case constant.ResearchEffortQuick:
		return 3
	case constant.ResearchEffortDeep:
		return 5
	default:
		return 4
	}
}

// FallbackPlan builds a plan without a model. Sub-questions are templated from
// the query so the plan is always within bounds.
func FallbackPlan(req Request) entity.ResearchPlan {
	topic := strings.TrimRight(strings.Join(strings.Fields(req.Query), " "), "?.! ")
	if topic == "" {
		topic = "the request"
	}

	n := fallbackCount(req.Effort)
	subQuestions := make([]string, 0, n)
	for _, tmpl := range fallbackTemplates[:n] {
		subQuestions = append(subQuestions, fmt.Sprintf(tmpl, topic))
	}

	assumptions := []string{"Publicly available web sources are representative of the topic."}
	if req.RecencyDays != nil {
		assumptions = append(assumptions, fmt.Sprintf("Only sources from the last %d days are relevant.", *req.RecencyDays))
	}

	return entity.ResearchPlan{
		Objective:       strings.TrimSpace(req.Query),
		SubQuestions:    subQuestions,
		Assumptions:     assumptions,
		OutputFormat:    defaultOutputFormat,
		EffortRationale: fmt.Sprintf("Generic %s-effort plan generated without a language model.", effortOrDefault(req.Effort)),
		StopCriteria:    DefaultStopCriteria(),
	}
}

func effortOrDefault(effort constant.ResearchEffort) constant.ResearchEffort {
	if e, ok := constant.ParseResearchEffort(string(effort)); ok {
		return e
	}
	return constant.ResearchEffortStandard
}
