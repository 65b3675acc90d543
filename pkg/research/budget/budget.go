// Package budget maps an effort preset to the run's hard limits.
package budget

import (
	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
)

var presets = map[constant.ResearchEffort]entity.ResearchBudget{
	constant.ResearchEffortQuick: {
		MaxSteps:                   8,
		MaxRuntimeSeconds:          180,
		MinSources:                 4,
		MaxRequeriesPerSubQuestion: 1,
	},
	constant.ResearchEffortStandard: {
		MaxSteps:                   16,
		MaxRuntimeSeconds:          420,
		MinSources:                 8,
		MaxRequeriesPerSubQuestion: 2,
	},
	constant.ResearchEffortDeep: {
		MaxSteps:                   32,
		MaxRuntimeSeconds:          900,
		MinSources:                 15,
		MaxRequeriesPerSubQuestion: 3,
	},
}

// ForEffort never fails. Unrecognised presets get the standard budget.
func ForEffort(effort constant.ResearchEffort) entity.ResearchBudget {
	if b, ok := presets[effort]; ok {
		return b
	}
	return presets[constant.ResearchEffortStandard]
}
