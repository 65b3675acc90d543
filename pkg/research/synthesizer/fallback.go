package synthesizer

import (
	"fmt"
	"strings"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"

	"github.com/google/uuid"
)

// FallbackReport assembles a report from the findings and sources alone.
func FallbackReport(in Input) *entity.ResearchReport {
	sources := make(map[uuid.UUID]*entity.ResearchSource, len(in.Sources))
	for _, s := range in.Sources {
		sources[s.Id] = s
	}

	// group findings by sub-question, keeping plan order first
	order := append([]string{}, in.Plan.SubQuestions...)
	grouped := map[string][]*entity.ResearchFinding{}
	for _, f := range in.Findings {
		if !contains(order, f.SubQuestion) {
			order = append(order, f.SubQuestion)
		}
		grouped[f.SubQuestion] = append(grouped[f.SubQuestion], f)
	}

	supported, unknown := 0, 0
	for _, f := range in.Findings {
		if f.Status == constant.ResearchFindingStatusUnknown {
			unknown++
		} else {
			supported++
		}
	}

	title := strings.TrimSpace(in.Plan.Objective)
	if title == "" {
		title = strings.TrimSpace(in.Query)
	}
	summary := fmt.Sprintf("%d supported finding(s) across %d sub-question(s); %d could not be answered from the available sources.",
		supported, len(grouped), unknown)

	var md strings.Builder
	md.WriteString("# " + title + "\n\n")
	md.WriteString(summary + "\n")

	for _, q := range order {
		findings := grouped[q]
		if len(findings) == 0 {
			continue
		}
		md.WriteString("\n## " + q + "\n\n")
		for _, f := range findings {
			md.WriteString(fmt.Sprintf("- %s (%s, confidence %.0f%%)", f.Claim, f.Status, f.Confidence*100))
			for _, id := range f.SupportingSourceIds {
				if s, ok := sources[id]; ok {
					md.WriteString(fmt.Sprintf(" [%s](%s)", sourceTitle(s), s.Url))
				}
			}
			md.WriteString("\n")
		}
	}

	unknowns := dedupeStrings(in.Unknowns)
	if len(unknowns) > 0 {
		md.WriteString("\n## Unknowns\n\n")
		for _, u := range unknowns {
			md.WriteString("- " + u + "\n")
		}
	}

	if len(in.Warnings) > 0 {
		md.WriteString("\n## Warnings\n\n")
		for _, w := range in.Warnings {
			md.WriteString("- " + w + "\n")
		}
	}

	// The source list lives in its presentation block only, findings already cite inline.
	items := make([]interface{}, 0, len(in.Sources))
	for _, s := range in.Sources {
		items = append(items, map[string]interface{}{"title": sourceTitle(s), "url": s.Url, "domain": s.Domain})
	}

	blocks := make([]entity.PresentationBlock, 0, 2)
	if len(items) > 0 {
		blocks = append(blocks, entity.PresentationBlock{
			Type:  constant.PresentationBlockSources,
			Title: "Sources",
			Data:  map[string]interface{}{"items": items},
		})
	}
	if len(in.Actions) > 0 {
		actionItems := make([]interface{}, 0, len(in.Actions))
		for _, a := range in.Actions {
			actionItems = append(actionItems, map[string]interface{}{"title": a.Title, "description": a.Description})
		}
		blocks = append(blocks, entity.PresentationBlock{
			Type:  constant.PresentationBlockActionItems,
			Title: "Suggested actions",
			Data:  map[string]interface{}{"items": actionItems},
		})
	}

	markdown := md.String()
	return &entity.ResearchReport{
		Summary:        summary,
		ReportMarkdown: markdown,
		Unknowns:       unknowns,
		Actions:        in.Actions,
		Presentation:   &entity.ReportPresentation{Markdown: markdown, Blocks: blocks},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
