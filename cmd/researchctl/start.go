package main

import (
	"fmt"
	"time"

	"homehub-be/internal/constant"
	"homehub-be/internal/service"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start <run-id>",
	Short: "Start a planned run and wait for it to finish",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Plan and execute a research run in one go",
	RunE:  runPlanAndStart,
}

var pollInterval time.Duration

func init() {
	startCmd.Flags().DurationVar(&pollInterval, "poll", time.Second, "Status poll interval")
	rootCmd.AddCommand(startCmd)

	addPlanFlags(runCmd)
	runCmd.Flags().DurationVar(&pollInterval, "poll", time.Second, "Status poll interval")
	rootCmd.AddCommand(runCmd)
}

func runStart(_ *cobra.Command, args []string) error {
	runId, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id: %w", err)
	}

	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.close()

	return startAndWait(e, runId)
}

func runPlanAndStart(_ *cobra.Command, _ []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.close()

	plan, err := createPlan(e)
	if err != nil {
		return err
	}
	printPlan(plan)
	return startAndWait(e, plan.RunId)
}

// startAndWait executes the run in this process. The consumer has to be
// subscribed before the run is queued.
func startAndWait(e *engine, runId uuid.UUID) error {
	if err := e.ConsumerService.Consume(e.ctx); err != nil {
		return err
	}
	if _, err := e.ResearchService.StartRun(e.ctx, service.OperatorCaller(), runId); err != nil {
		return err
	}
	color.Cyan("Run %s started", runId)
	return waitForTerminal(e, runId)
}

func waitForTerminal(e *engine, runId uuid.UUID) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	seen := 0
	for {
		select {
		case <-e.ctx.Done():
			color.Yellow("Interrupted, the run stays running and can be resumed")
			return nil
		case <-ticker.C:
		}

		st, err := e.ResearchService.GetRunStatus(e.ctx, service.OperatorCaller(), runId)
		if err != nil {
			return err
		}
		for _, ev := range st.Events[min(seen, len(st.Events)):] {
			fmt.Printf("  [%s/%s] %s\n", ev.Stage, ev.Status, ev.Message)
		}
		seen = len(st.Events)

		if constant.ResearchRunStatus(st.Run.Status).IsTerminal() {
			printStatus(st)
			return nil
		}
	}
}
