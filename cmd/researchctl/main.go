// Package main provides researchctl, an operator CLI for the research engine.
// It runs against the same store and configuration as the REST server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"homehub-be/internal/bootstrap"
	"homehub-be/internal/config"
	"homehub-be/pkg/database"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:           "researchctl",
	Short:         "Plan, run and inspect deep research runs",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var verbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Mirror engine logs to stdout")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// engine is the wired container plus the context that stops it.
type engine struct {
	*bootstrap.Container
	ctx    context.Context
	cancel context.CancelFunc
}

func newEngine() (*engine, error) {
	cfg := config.Load()
	if !verbose {
		cfg.App.LogToConsole = false
	}

	var db *gorm.DB
	if cfg.Database.Connection != "" {
		conn, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		db = conn
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &engine{
		Container: bootstrap.NewContainer(ctx, db, cfg),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (e *engine) close() {
	e.cancel()
	e.ConsumerService.Wait()
	e.Container.Close()
}
