package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"homehub-be/internal/bootstrap"
	"homehub-be/internal/config"
	"homehub-be/internal/server"
	"homehub-be/internal/tracer"
	"homehub-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()

	// 2. Initialize Database (optional)
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(ctx, gormDB, cfg)
	defer container.Close()

	// 4. Start Background Services
	// The consumer must subscribe before anything is queued.
	if err := container.ConsumerService.Consume(ctx); err != nil {
		log.Fatalf("Background Consumer Error: %v", err)
	}
	if n, err := container.ResearchService.ResumeInterrupted(ctx); err != nil {
		log.Printf("[WARN] Failed to resume interrupted runs: %v", err)
	} else if n > 0 {
		log.Printf("[INFO] Resumed %d interrupted research run(s)", n)
	}

	// 5. Initialize Server
	srv := server.New(cfg, container)

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		if err := srv.Shutdown(); err != nil {
			log.Printf("[WARN] Server shutdown: %v", err)
		}
	}()

	// 6. Run Server
	if err := srv.Run(); err != nil {
		log.Printf("[ERROR] Server stopped: %v", err)
	}

	// Runs see the canceled context, checkpoint and stay running for the next start.
	container.ConsumerService.Wait()
}
