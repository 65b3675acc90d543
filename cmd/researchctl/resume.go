package main

import (
	"time"

	"homehub-be/internal/constant"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume runs left in running status and wait for them",
	RunE:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(_ *cobra.Command, _ []string) error {
	e, err := newEngine()
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.ConsumerService.Consume(e.ctx); err != nil {
		return err
	}
	n, err := e.ResearchService.ResumeInterrupted(e.ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		color.Green("No interrupted runs")
		return nil
	}
	color.Cyan("Resuming %d run(s)...", n)

	// Wait until nothing is left in running.
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return nil
		case <-ticker.C:
		}
		uow := e.Container.UnitOfWorkFactory.NewUnitOfWork(e.ctx)
		running, err := uow.ResearchRunRepository().FindByStatus(e.ctx, constant.ResearchRunStatusRunning)
		if err != nil {
			return err
		}
		if len(running) == 0 {
			color.Green("All resumed runs finished")
			return nil
		}
	}
}
