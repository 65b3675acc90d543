package main

import (
	"log"
	"os"

	"homehub-be/internal/model"
	"homehub-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	// 1. Load Environment Variables
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.NewGormDBFromDSN(dsn)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting research schema migration...")

	// gen_random_uuid() defaults
	log.Println("Step 1: Setting up extensions...")
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to create pgcrypto extension: %v", err)
	}

	log.Println("Step 2: Migrating research tables...")
	// Parent first so the cascade constraints resolve.
	models := []interface{}{
		&model.ResearchRun{},
		&model.ResearchSource{},
		&model.ResearchFinding{},
		&model.ResearchRunEvent{},
		&model.ResearchReport{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	log.Println("Step 3: Creating constraints and triggers...")
	postMigrationSQL := []string{
		`DO $$ BEGIN
		   IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_research_runs_status') THEN
		     ALTER TABLE research_runs ADD CONSTRAINT chk_research_runs_status
		       CHECK (status IN ('planning','running','completed','completed_with_warnings','failed','canceled'));
		   END IF;
		 END $$;`,
		`DO $$ BEGIN
		   IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_research_runs_quality') THEN
		     ALTER TABLE research_runs ADD CONSTRAINT chk_research_runs_quality
		       CHECK (quality_score IS NULL OR (quality_score >= 0 AND quality_score <= 1));
		   END IF;
		 END $$;`,
		`DO $$ BEGIN
		   IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_research_findings_confidence') THEN
		     ALTER TABLE research_findings ADD CONSTRAINT chk_research_findings_confidence
		       CHECK (confidence >= 0 AND confidence <= 1);
		   END IF;
		 END $$;`,
		`CREATE OR REPLACE FUNCTION set_current_timestamp_updated_at() RETURNS trigger LANGUAGE plpgsql AS $$
		DECLARE _new_value TIMESTAMP WITH TIME ZONE;
		BEGIN
		  _new_value := now();
		  IF NEW.updated_at IS DISTINCT FROM _new_value THEN NEW.updated_at = _new_value; END IF;
		  RETURN NEW;
		END; $$;`,
		`DROP TRIGGER IF EXISTS set_research_runs_updated_at ON research_runs;`,
		`CREATE TRIGGER set_research_runs_updated_at BEFORE UPDATE ON research_runs
		 FOR EACH ROW EXECUTE FUNCTION set_current_timestamp_updated_at();`,
	}

	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("✅ Success: Research schema migration completed.")
}
