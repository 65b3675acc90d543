package main

import (
	"encoding/json"
	"fmt"

	"homehub-be/internal/dto"
	"homehub-be/internal/service"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show a run with its findings and report",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var (
	statusJSON   bool
	statusReport bool
)

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the full status as JSON")
	statusCmd.Flags().BoolVar(&statusReport, "report", false, "Print the report markdown")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, args []string) error {
	runId, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}

	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.close()

	st, err := e.ResearchService.GetRunStatus(e.ctx, service.OperatorCaller(), runId)
	if err != nil {
		return err
	}

	if statusJSON {
		out, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	printStatus(st)
	return nil
}

func printStatus(st *dto.ResearchRunStatusResponse) {
	run := st.Run
	statusColor := color.New(color.FgYellow)
	switch run.Status {
	case "completed":
		statusColor = color.New(color.FgGreen)
	case "failed":
		statusColor = color.New(color.FgRed)
	}
	statusColor.Printf("Run %s: %s\n", run.Id, run.Status)

	fmt.Printf("Query: %s\n", run.Query)
	if run.QualityScore != nil {
		fmt.Printf("Quality: %.2f\n", *run.QualityScore)
	}
	m := run.Metrics
	fmt.Printf("Steps: %d/%d  Sources: %d (%d usable)  Findings: %d  Stop: %s\n",
		m.StepsUsed, m.Budget.MaxSteps, m.SourcesCount, len(m.UsableSourceIds), m.FindingsCount, m.StopReason)
	if run.Error != nil {
		color.Red("Error: %s", *run.Error)
	}
	for _, w := range m.Warnings {
		color.Yellow("Warning: %s", w)
	}

	for _, f := range st.Findings {
		c := color.New(color.FgWhite)
		if f.Status == "unknown" {
			c = color.New(color.FgHiBlack)
		}
		c.Printf("  - [%s %.2f] %s\n", f.Status, f.Confidence, f.Claim)
	}

	if st.Report != nil {
		color.Cyan("Summary: %s", st.Report.Summary)
		if statusReport {
			fmt.Println()
			fmt.Println(st.Report.ReportMarkdown)
		}
	}
}
