package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"homehub-be/internal/config"
	"homehub-be/internal/constant"
	"homehub-be/pkg/events"
	pktNats "homehub-be/pkg/nats"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow research lifecycle events on the event bus",
	RunE:  runWatch,
}

var watchRunId string

func init() {
	watchCmd.Flags().StringVar(&watchRunId, "run", "", "Only show events for this run id")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
	cfg := config.Load()
	if cfg.App.NatsURL == "" {
		return fmt.Errorf("NATS_URL is not set")
	}

	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		return err
	}
	defer sub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cc, err := sub.Subscribe(ctx, "events.>", "", func(ctx context.Context, event events.Event) error {
		printEvent(event)
		return nil
	})
	if err != nil {
		return err
	}
	defer cc.Stop()

	color.Cyan("Watching research events, Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func printEvent(event events.Event) {
	data := event.Payload()
	if !strings.HasPrefix(event.EventType(), "RESEARCH_RUN_") && event.EventType() != constant.EventTaskCreateRequested {
		return
	}
	runId, _ := data["research_run_id"].(string)
	if watchRunId != "" && runId != watchRunId {
		return
	}

	ts := event.Timestamp().Format("15:04:05")
	switch event.EventType() {
	case constant.EventResearchRunFinished:
		status, _ := data["status"].(string)
		if status == "failed" {
			color.Red("%s %s %s %s", ts, event.EventType(), runId, status)
		} else {
			color.Green("%s %s %s %s", ts, event.EventType(), runId, status)
		}
	case constant.EventTaskCreateRequested:
		color.Magenta("%s %s %v", ts, event.EventType(), data["title"])
	default:
		fmt.Printf("%s %s %s %v\n", ts, event.EventType(), runId, data["sub_question_index"])
	}
}
