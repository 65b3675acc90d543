package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/repository/contract"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRun(t *testing.T, store *ResearchStore, householdId, userId uuid.UUID, status constant.ResearchRunStatus) *entity.ResearchRun {
	t.Helper()
	run := &entity.ResearchRun{
		Id:             uuid.New(),
		ConversationId: uuid.New(),
		HouseholdId:    householdId,
		CreatedById:    userId,
		Status:         status,
		Query:          "quietest dishwasher",
	}
	require.NoError(t, store.NewRepositoryFactory().NewUnitOfWork(context.Background()).ResearchRunRepository().Create(context.Background(), run))
	return run
}

func TestRunRepository_UpdateStatusIsCompareAndSet(t *testing.T) {
	store := NewResearchStore()
	ctx := context.Background()
	runs := store.NewRepositoryFactory().NewUnitOfWork(ctx).ResearchRunRepository()
	run := seedRun(t, store, uuid.New(), uuid.New(), constant.ResearchRunStatusPlanning)

	canceled := *run
	canceled.Status = constant.ResearchRunStatusCanceled
	require.NoError(t, runs.UpdateStatus(ctx, &canceled, constant.ResearchRunStatusPlanning))

	// A writer that still believes the run is planning loses.
	started := *run
	started.Status = constant.ResearchRunStatusRunning
	assert.ErrorIs(t, runs.UpdateStatus(ctx, &started, constant.ResearchRunStatusPlanning), contract.ErrStatusConflict)

	got, err := runs.FindById(ctx, run.Id)
	require.NoError(t, err)
	assert.Equal(t, constant.ResearchRunStatusCanceled, got.Status)

	missing := entity.ResearchRun{Id: uuid.New(), Status: constant.ResearchRunStatusRunning}
	assert.ErrorIs(t, runs.UpdateStatus(ctx, &missing, constant.ResearchRunStatusPlanning), contract.ErrStatusConflict)
}

func TestRunRepository_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	store := NewResearchStore()
	ctx := context.Background()
	run := seedRun(t, store, uuid.New(), uuid.New(), constant.ResearchRunStatusPlanning)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := *run
			next.Status = constant.ResearchRunStatusRunning
			if i%2 == 0 {
				next.Status = constant.ResearchRunStatusCanceled
			}
			err := store.NewRepositoryFactory().NewUnitOfWork(ctx).ResearchRunRepository().UpdateStatus(ctx, &next, constant.ResearchRunStatusPlanning)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRunRepository_ScopedLookups(t *testing.T) {
	store := NewResearchStore()
	ctx := context.Background()
	runs := store.NewRepositoryFactory().NewUnitOfWork(ctx).ResearchRunRepository()

	household, owner := uuid.New(), uuid.New()
	shared := seedRun(t, store, household, owner, constant.ResearchRunStatusPlanning)
	personal := seedRun(t, store, uuid.Nil, owner, constant.ResearchRunStatusPlanning)

	tests := []struct {
		name    string
		run     *entity.ResearchRun
		scope   contract.RunScope
		visible bool
	}{
		{name: "household member", run: shared, scope: contract.RunScope{UserId: uuid.New(), HouseholdId: household}, visible: true},
		{name: "other household", run: shared, scope: contract.RunScope{UserId: owner, HouseholdId: uuid.New()}},
		{name: "creator without household claim", run: shared, scope: contract.RunScope{UserId: owner}},
		{name: "personal run creator", run: personal, scope: contract.RunScope{UserId: owner}, visible: true},
		{name: "personal run other user", run: personal, scope: contract.RunScope{UserId: uuid.New()}},
		{name: "personal run seen from a household", run: personal, scope: contract.RunScope{UserId: owner, HouseholdId: household}},
		{name: "operator", run: personal, scope: contract.RunScope{All: true}, visible: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runs.FindByIdInScope(ctx, tt.run.Id, tt.scope)
			require.NoError(t, err)
			list, err := runs.FindByConversationId(ctx, tt.run.ConversationId, tt.scope)
			require.NoError(t, err)
			if tt.visible {
				require.NotNil(t, got)
				assert.Equal(t, tt.run.Id, got.Id)
				assert.Len(t, list, 1)
			} else {
				assert.Nil(t, got)
				assert.Empty(t, list)
			}
		})
	}
}

func TestSourceRepository_MarkRetrievedWhileSourcesArrive(t *testing.T) {
	store := NewResearchStore()
	ctx := context.Background()
	sources := store.NewRepositoryFactory().NewUnitOfWork(ctx).ResearchSourceRepository()
	runId := uuid.New()

	ids := make(chan uuid.UUID, 32)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			src, _, err := sources.CreateIfAbsent(ctx, &entity.ResearchSource{
				ResearchRunId: runId,
				Url:           fmt.Sprintf("https://example.com/%d", i),
				NormalizedUrl: fmt.Sprintf("https://example.com/%d", i),
			})
			if err == nil {
				ids <- src.Id
			}
		}(i)
	}
	go func() {
		wg.Wait()
		close(ids)
	}()

	var marks sync.WaitGroup
	for id := range ids {
		marks.Add(1)
		go func(id uuid.UUID) {
			defer marks.Done()
			assert.NoError(t, sources.MarkRetrieved(ctx, id, time.Now()))
		}(id)
	}
	marks.Wait()

	all, err := sources.FindByRunId(ctx, runId)
	require.NoError(t, err)
	require.Len(t, all, 32)
	for _, src := range all {
		assert.NotNil(t, src.RetrievedAt, src.Url)
	}

	assert.Error(t, sources.MarkRetrieved(ctx, uuid.New(), time.Now()))
}

func TestFindingRepository_DeleteBySubQuestion(t *testing.T) {
	store := NewResearchStore()
	ctx := context.Background()
	findings := store.NewRepositoryFactory().NewUnitOfWork(ctx).ResearchFindingRepository()
	runId, otherRun := uuid.New(), uuid.New()

	for _, f := range []*entity.ResearchFinding{
		{ResearchRunId: runId, SubQuestion: "Which is quietest?", Claim: "A"},
		{ResearchRunId: runId, SubQuestion: "Which is quietest?", Claim: "B"},
		{ResearchRunId: runId, SubQuestion: "Which is cheapest?", Claim: "C"},
		{ResearchRunId: otherRun, SubQuestion: "Which is quietest?", Claim: "D"},
	} {
		require.NoError(t, findings.Create(ctx, f))
	}

	deleted, err := findings.DeleteBySubQuestion(ctx, runId, "Which is quietest?")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	left, err := findings.FindByRunId(ctx, runId)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "C", left[0].Claim)

	other, err := findings.FindByRunId(ctx, otherRun)
	require.NoError(t, err)
	assert.Len(t, other, 1)
}
