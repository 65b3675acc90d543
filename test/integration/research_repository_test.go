package integration

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/model"
	"homehub-be/internal/repository/contract"
	"homehub-be/internal/repository/unitofwork"
	"homehub-be/pkg/database"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// Load .env from root
	if err := godotenv.Load("../../.env"); err != nil {
		log.Println("No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		t.Skip("Skipping integration test: DB_CONNECTION_STRING not set")
	}

	db, err := database.NewGormDBFromDSN(dsn)
	require.NoError(t, err, "Failed to connect to DB")

	require.NoError(t, db.AutoMigrate(
		&model.ResearchRun{},
		&model.ResearchSource{},
		&model.ResearchFinding{},
		&model.ResearchRunEvent{},
		&model.ResearchReport{},
	))
	return db
}

func TestResearchRepositories(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	uow := unitofwork.NewRepositoryFactory(db).NewUnitOfWork(ctx)

	run := &entity.ResearchRun{
		Id:             uuid.New(),
		ConversationId: uuid.New(),
		HouseholdId:    uuid.New(),
		CreatedById:    uuid.New(),
		Status:         constant.ResearchRunStatusPlanning,
		Query:          "best espresso machines under $500",
		Effort:         constant.ResearchEffortQuick,
		Plan: entity.ResearchPlan{
			Objective:    "Pick an espresso machine",
			SubQuestions: []string{"Which machines are under $500?", "Which are reliable?", "Which are easy to clean?"},
		},
		Metrics: entity.ResearchMetrics{
			Budget: entity.ResearchBudget{MaxSteps: 8, MaxRuntimeSeconds: 180, MinSources: 3, MaxRequeriesPerSubQuestion: 1},
		},
	}
	require.NoError(t, uow.ResearchRunRepository().Create(ctx, run))
	defer db.Delete(&model.ResearchRun{}, "id = ?", run.Id)

	t.Run("run round trip keeps plan and metrics", func(t *testing.T) {
		got, err := uow.ResearchRunRepository().FindById(ctx, run.Id)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, run.Plan.SubQuestions, got.Plan.SubQuestions)
		assert.Equal(t, 8, got.Metrics.Budget.MaxSteps)

		now := time.Now()
		got.Status = constant.ResearchRunStatusRunning
		got.StartedAt = &now
		got.Metrics.ProcessedSubQuestions = []int{0}
		require.NoError(t, uow.ResearchRunRepository().Update(ctx, got))

		running, err := uow.ResearchRunRepository().FindByStatus(ctx, constant.ResearchRunStatusRunning)
		require.NoError(t, err)
		var found bool
		for _, r := range running {
			if r.Id == run.Id {
				found = true
				assert.Equal(t, []int{0}, r.Metrics.ProcessedSubQuestions)
			}
		}
		assert.True(t, found)

		byConversation, err := uow.ResearchRunRepository().FindByConversationId(ctx, run.ConversationId, contract.RunScope{HouseholdId: run.HouseholdId})
		require.NoError(t, err)
		assert.Len(t, byConversation, 1)

		otherHousehold, err := uow.ResearchRunRepository().FindByConversationId(ctx, run.ConversationId, contract.RunScope{HouseholdId: uuid.New()})
		require.NoError(t, err)
		assert.Empty(t, otherHousehold)
	})

	t.Run("scoped lookup hides other households", func(t *testing.T) {
		got, err := uow.ResearchRunRepository().FindByIdInScope(ctx, run.Id, contract.RunScope{UserId: run.CreatedById, HouseholdId: run.HouseholdId})
		require.NoError(t, err)
		require.NotNil(t, got)

		hidden, err := uow.ResearchRunRepository().FindByIdInScope(ctx, run.Id, contract.RunScope{UserId: run.CreatedById})
		require.NoError(t, err)
		assert.Nil(t, hidden)
	})

	t.Run("status update is conditional", func(t *testing.T) {
		got, err := uow.ResearchRunRepository().FindById(ctx, run.Id)
		require.NoError(t, err)
		require.Equal(t, constant.ResearchRunStatusRunning, got.Status)

		stale := *got
		stale.Status = constant.ResearchRunStatusCanceled
		err = uow.ResearchRunRepository().UpdateStatus(ctx, &stale, constant.ResearchRunStatusPlanning)
		assert.ErrorIs(t, err, contract.ErrStatusConflict)

		again, err := uow.ResearchRunRepository().FindById(ctx, run.Id)
		require.NoError(t, err)
		assert.Equal(t, constant.ResearchRunStatusRunning, again.Status)
	})

	t.Run("missing run is nil without error", func(t *testing.T) {
		got, err := uow.ResearchRunRepository().FindById(ctx, uuid.New())
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("sources dedupe on normalized url", func(t *testing.T) {
		src := &entity.ResearchSource{
			ResearchRunId: run.Id,
			Url:           "https://Example.com/review?utm_source=x",
			NormalizedUrl: "https://example.com/review",
			Title:         "Review",
			Domain:        "example.com",
		}
		first, created, err := uow.ResearchSourceRepository().CreateIfAbsent(ctx, src)
		require.NoError(t, err)
		assert.True(t, created)

		again := *src
		again.Id = uuid.Nil
		second, created, err := uow.ResearchSourceRepository().CreateIfAbsent(ctx, &again)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.Id, second.Id)

		require.NoError(t, uow.ResearchSourceRepository().MarkRetrieved(ctx, first.Id, time.Now()))
		sources, err := uow.ResearchSourceRepository().FindByRunId(ctx, run.Id)
		require.NoError(t, err)
		require.Len(t, sources, 1)
		assert.NotNil(t, sources[0].RetrievedAt)
	})

	t.Run("findings events and report", func(t *testing.T) {
		finding := &entity.ResearchFinding{
			ResearchRunId: run.Id,
			SubQuestion:   run.Plan.SubQuestions[0],
			Claim:         "Several machines sell below $500.",
			Confidence:    0.7,
			Status:        constant.ResearchFindingStatusSufficient,
		}
		require.NoError(t, uow.ResearchFindingRepository().Create(ctx, finding))
		assert.NotEqual(t, uuid.Nil, finding.Id)

		byIds, err := uow.ResearchFindingRepository().FindByIds(ctx, run.Id, []uuid.UUID{finding.Id})
		require.NoError(t, err)
		assert.Len(t, byIds, 1)

		otherRun, err := uow.ResearchFindingRepository().FindByIds(ctx, uuid.New(), []uuid.UUID{finding.Id})
		require.NoError(t, err)
		assert.Empty(t, otherRun)

		require.NoError(t, uow.ResearchEventRepository().Create(ctx, &entity.ResearchRunEvent{
			ResearchRunId: run.Id,
			Stage:         "planning",
			Status:        constant.ResearchEventStatusCompleted,
			Message:       "Plan ready",
			Payload:       map[string]interface{}{"sub_questions": 3},
		}))
		evs, err := uow.ResearchEventRepository().FindByRunId(ctx, run.Id)
		require.NoError(t, err)
		assert.Len(t, evs, 1)

		report := &entity.ResearchReport{
			ResearchRunId:  run.Id,
			Summary:        "Machine A.",
			ReportMarkdown: "# Report",
			Actions:        []entity.ReportAction{{Title: "Buy machine A"}},
		}
		require.NoError(t, uow.ResearchReportRepository().Create(ctx, report))

		taskId := uuid.New()
		report.Actions[0].CreatedTaskId = &taskId
		require.NoError(t, uow.ResearchReportRepository().Update(ctx, report))

		got, err := uow.ResearchReportRepository().FindByRunId(ctx, run.Id)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.Actions[0].CreatedTaskId)
		assert.Equal(t, taskId, *got.Actions[0].CreatedTaskId)
	})
}
