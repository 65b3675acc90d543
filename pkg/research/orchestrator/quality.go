package orchestrator

import (
	"math"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
)

// AggregateConfidence is the mean confidence over all findings, with
// unknown findings counting as zero.
func AggregateConfidence(findings []*entity.ResearchFinding) float64 {
	if len(findings) == 0 {
		return 0
	}
	sum := 0.0
	for _, f := range findings {
		if f.Status != constant.ResearchFindingStatusUnknown {
			sum += f.Confidence
		}
	}
	return round3(sum / float64(len(findings)))
}

// QualityScore weights each supported finding by its source count (1..3),
// then penalises unknown and conflicted shares and a shortfall against the
// minimum source count.
func QualityScore(findings []*entity.ResearchFinding, usableSources, minSources int) float64 {
	if len(findings) == 0 {
		return 0
	}

	var weighted, weights float64
	var unknown, conflicted int
	for _, f := range findings {
		switch f.Status {
		case constant.ResearchFindingStatusUnknown:
			unknown++
			continue
		case constant.ResearchFindingStatusConflicted:
			conflicted++
		}
		w := math.Min(3, math.Max(1, float64(len(f.SupportingSourceIds))))
		weighted += w * f.Confidence
		weights += w
	}
	if weights == 0 {
		return 0
	}

	total := float64(len(findings))
	base := weighted / weights
	base *= 1 - 0.5*float64(unknown)/total - 0.25*float64(conflicted)/total

	coverage := 1.0
	if minSources > 0 {
		coverage = math.Min(1, float64(usableSources)/float64(minSources))
	}
	return round3(clamp01(base * (0.7 + 0.3*coverage)))
}

// diminishingReturns reports whether each of the last window completions
// raised aggregate confidence by less than delta. The first completion is
// measured against zero.
func diminishingReturns(history []float64, window int, delta float64) bool {
	if window < 1 || len(history) < window {
		return false
	}
	for i := len(history) - window; i < len(history); i++ {
		prev := 0.0
		if i > 0 {
			prev = history[i-1]
		}
		if history[i]-prev >= delta {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
