package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"homehub-be/internal/constant"
	"homehub-be/internal/entity"
	"homehub-be/internal/mapper"
	"homehub-be/internal/model"
	"homehub-be/internal/repository/contract"
	"homehub-be/internal/repository/unitofwork"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ResearchStore keeps research records in process memory. It backs local
// development without DB_CONNECTION_STRING and the engine tests.
// Rows are stored as gorm models so reads always hand out fresh copies.
type ResearchStore struct {
	cache  *cache.Cache
	mapper *mapper.ResearchMapper
	seq    atomic.Uint64

	// mu serializes read-modify-write on stored rows.
	mu sync.Mutex
	// sourceKeys maps a source id to its cache key.
	sourceKeys map[uuid.UUID]string
}

type storedRow struct {
	seq   uint64
	value interface{}
}

func NewResearchStore() *ResearchStore {
	return &ResearchStore{
		cache:      cache.New(cache.NoExpiration, 0),
		mapper:     mapper.NewResearchMapper(),
		sourceKeys: make(map[uuid.UUID]string),
	}
}

// NewRepositoryFactory exposes the store through the same unit of work contract as gorm.
func (s *ResearchStore) NewRepositoryFactory() unitofwork.RepositoryFactory {
	return &repositoryFactory{store: s}
}

func (s *ResearchStore) put(key string, value interface{}) {
	s.cache.Set(key, storedRow{seq: s.seq.Add(1), value: value}, cache.NoExpiration)
}

func (s *ResearchStore) add(key string, value interface{}) error {
	return s.cache.Add(key, storedRow{seq: s.seq.Add(1), value: value}, cache.NoExpiration)
}

func (s *ResearchStore) get(key string) (storedRow, bool) {
	x, found := s.cache.Get(key)
	if !found {
		return storedRow{}, false
	}
	return x.(storedRow), true
}

// scan returns rows under prefix in insertion order.
func (s *ResearchStore) scan(prefix string) []interface{} {
	rows := make([]storedRow, 0)
	for key, item := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			rows = append(rows, item.Object.(storedRow))
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	values := make([]interface{}, len(rows))
	for i, r := range rows {
		values[i] = r.value
	}
	return values
}

func runKey(id uuid.UUID) string { return "run:" + id.String() }
func sourceKey(runId uuid.UUID, normalizedURL string) string {
	return fmt.Sprintf("source:%s:%s", runId, normalizedURL)
}
func findingKey(runId, id uuid.UUID) string {
	return fmt.Sprintf("finding:%s:%s", runId, id)
}
func eventKey(runId, id uuid.UUID) string {
	return fmt.Sprintf("event:%s:%s", runId, id)
}
func reportKey(runId uuid.UUID) string { return "report:" + runId.String() }

type repositoryFactory struct {
	store *ResearchStore
}

func (f *repositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &unitOfWork{store: f.store}
}

// unitOfWork writes through immediately. Begin/Commit/Rollback only satisfy the contract.
type unitOfWork struct {
	store *ResearchStore
}

func (u *unitOfWork) Begin(ctx context.Context) error { return nil }
func (u *unitOfWork) Commit() error                   { return nil }
func (u *unitOfWork) Rollback() error                 { return nil }

func (u *unitOfWork) ResearchRunRepository() contract.ResearchRunRepository {
	return &runRepository{store: u.store}
}

func (u *unitOfWork) ResearchSourceRepository() contract.ResearchSourceRepository {
	return &sourceRepository{store: u.store}
}

func (u *unitOfWork) ResearchFindingRepository() contract.ResearchFindingRepository {
	return &findingRepository{store: u.store}
}

func (u *unitOfWork) ResearchEventRepository() contract.ResearchEventRepository {
	return &eventRepository{store: u.store}
}

func (u *unitOfWork) ResearchReportRepository() contract.ResearchReportRepository {
	return &reportRepository{store: u.store}
}

// Runs

type runRepository struct {
	store *ResearchStore
}

func (r *runRepository) Create(ctx context.Context, run *entity.ResearchRun) error {
	if run.Id == uuid.Nil {
		run.Id = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	m := r.store.mapper.RunToModel(run)
	m.UpdatedAt = run.CreatedAt
	if err := r.store.add(runKey(run.Id), m); err != nil {
		return fmt.Errorf("research run %s already exists", run.Id)
	}
	*run = *r.store.mapper.RunToEntity(m)
	return nil
}

func (r *runRepository) Update(ctx context.Context, run *entity.ResearchRun) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	row, found := r.store.get(runKey(run.Id))
	if !found {
		return fmt.Errorf("research run %s not found", run.Id)
	}
	r.write(row, run)
	return nil
}

func (r *runRepository) UpdateStatus(ctx context.Context, run *entity.ResearchRun, from constant.ResearchRunStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	row, found := r.store.get(runKey(run.Id))
	if !found || row.value.(*model.ResearchRun).Status != string(from) {
		return contract.ErrStatusConflict
	}
	r.write(row, run)
	return nil
}

// write replaces the stored run. Callers hold store.mu.
func (r *runRepository) write(row storedRow, run *entity.ResearchRun) {
	m := r.store.mapper.RunToModel(run)
	m.CreatedAt = row.value.(*model.ResearchRun).CreatedAt
	m.UpdatedAt = time.Now()
	r.store.cache.Set(runKey(run.Id), storedRow{seq: row.seq, value: m}, cache.NoExpiration)
	*run = *r.store.mapper.RunToEntity(m)
}

func (r *runRepository) FindById(ctx context.Context, id uuid.UUID) (*entity.ResearchRun, error) {
	return r.FindByIdInScope(ctx, id, contract.RunScope{All: true})
}

func (r *runRepository) FindByIdInScope(ctx context.Context, id uuid.UUID, scope contract.RunScope) (*entity.ResearchRun, error) {
	row, found := r.store.get(runKey(id))
	if !found {
		return nil, nil
	}
	m := row.value.(*model.ResearchRun)
	if !scope.Allows(m.HouseholdId, m.CreatedById) {
		return nil, nil
	}
	return r.store.mapper.RunToEntity(m), nil
}

func (r *runRepository) FindByConversationId(ctx context.Context, conversationId uuid.UUID, scope contract.RunScope) ([]*entity.ResearchRun, error) {
	runs := r.filter(func(m *model.ResearchRun) bool {
		return m.ConversationId == conversationId && scope.Allows(m.HouseholdId, m.CreatedById)
	})
	// newest first, matching the gorm repository
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
	return runs, nil
}

func (r *runRepository) FindByStatus(ctx context.Context, status constant.ResearchRunStatus) ([]*entity.ResearchRun, error) {
	return r.filter(func(m *model.ResearchRun) bool { return m.Status == string(status) }), nil
}

func (r *runRepository) filter(keep func(m *model.ResearchRun) bool) []*entity.ResearchRun {
	result := make([]*entity.ResearchRun, 0)
	for _, v := range r.store.scan("run:") {
		m := v.(*model.ResearchRun)
		if keep(m) {
			result = append(result, r.store.mapper.RunToEntity(m))
		}
	}
	return result
}

// Sources

type sourceRepository struct {
	store *ResearchStore
}

func (r *sourceRepository) CreateIfAbsent(ctx context.Context, source *entity.ResearchSource) (*entity.ResearchSource, bool, error) {
	if source.Id == uuid.Nil {
		source.Id = uuid.New()
	}
	if source.CreatedAt.IsZero() {
		source.CreatedAt = time.Now()
	}
	m := r.store.mapper.SourceToModel(source)
	key := sourceKey(source.ResearchRunId, source.NormalizedUrl)

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if err := r.store.add(key, m); err != nil {
		row, found := r.store.get(key)
		if !found {
			return nil, false, fmt.Errorf("research source %s not found after conflict", source.NormalizedUrl)
		}
		return r.store.mapper.SourceToEntity(row.value.(*model.ResearchSource)), false, nil
	}
	r.store.sourceKeys[m.Id] = key
	return r.store.mapper.SourceToEntity(m), true, nil
}

func (r *sourceRepository) MarkRetrieved(ctx context.Context, id uuid.UUID, retrievedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	key, ok := r.store.sourceKeys[id]
	if !ok {
		return fmt.Errorf("research source %s not found", id)
	}
	row, found := r.store.get(key)
	if !found {
		return fmt.Errorf("research source %s not found", id)
	}
	updated := *row.value.(*model.ResearchSource)
	t := retrievedAt
	updated.RetrievedAt = &t
	r.store.cache.Set(key, storedRow{seq: row.seq, value: &updated}, cache.NoExpiration)
	return nil
}

func (r *sourceRepository) FindByRunId(ctx context.Context, runId uuid.UUID) ([]*entity.ResearchSource, error) {
	result := make([]*entity.ResearchSource, 0)
	for _, v := range r.store.scan(fmt.Sprintf("source:%s:", runId)) {
		result = append(result, r.store.mapper.SourceToEntity(v.(*model.ResearchSource)))
	}
	return result, nil
}

func (r *sourceRepository) FindByIds(ctx context.Context, runId uuid.UUID, ids []uuid.UUID) ([]*entity.ResearchSource, error) {
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	result := make([]*entity.ResearchSource, 0, len(ids))
	for _, v := range r.store.scan(fmt.Sprintf("source:%s:", runId)) {
		m := v.(*model.ResearchSource)
		if wanted[m.Id] {
			result = append(result, r.store.mapper.SourceToEntity(m))
		}
	}
	return result, nil
}

// Findings

type findingRepository struct {
	store *ResearchStore
}

func (r *findingRepository) Create(ctx context.Context, finding *entity.ResearchFinding) error {
	if finding.Id == uuid.Nil {
		finding.Id = uuid.New()
	}
	if finding.CreatedAt.IsZero() {
		finding.CreatedAt = time.Now()
	}
	m := r.store.mapper.FindingToModel(finding)
	r.store.put(findingKey(finding.ResearchRunId, finding.Id), m)
	*finding = *r.store.mapper.FindingToEntity(m)
	return nil
}

func (r *findingRepository) FindByRunId(ctx context.Context, runId uuid.UUID) ([]*entity.ResearchFinding, error) {
	result := make([]*entity.ResearchFinding, 0)
	for _, v := range r.store.scan(fmt.Sprintf("finding:%s:", runId)) {
		result = append(result, r.store.mapper.FindingToEntity(v.(*model.ResearchFinding)))
	}
	return result, nil
}

func (r *findingRepository) FindByIds(ctx context.Context, runId uuid.UUID, ids []uuid.UUID) ([]*entity.ResearchFinding, error) {
	result := make([]*entity.ResearchFinding, 0, len(ids))
	for _, id := range ids {
		if row, found := r.store.get(findingKey(runId, id)); found {
			result = append(result, r.store.mapper.FindingToEntity(row.value.(*model.ResearchFinding)))
		}
	}
	return result, nil
}

func (r *findingRepository) DeleteBySubQuestion(ctx context.Context, runId uuid.UUID, subQuestion string) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	prefix := fmt.Sprintf("finding:%s:", runId)
	deleted := 0
	for key, item := range r.store.cache.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if item.Object.(storedRow).value.(*model.ResearchFinding).SubQuestion == subQuestion {
			r.store.cache.Delete(key)
			deleted++
		}
	}
	return deleted, nil
}

// Events

type eventRepository struct {
	store *ResearchStore
}

func (r *eventRepository) Create(ctx context.Context, event *entity.ResearchRunEvent) error {
	if event.Id == uuid.Nil {
		event.Id = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	m := r.store.mapper.EventToModel(event)
	r.store.put(eventKey(event.ResearchRunId, event.Id), m)
	*event = *r.store.mapper.EventToEntity(m)
	return nil
}

func (r *eventRepository) FindByRunId(ctx context.Context, runId uuid.UUID) ([]*entity.ResearchRunEvent, error) {
	result := make([]*entity.ResearchRunEvent, 0)
	for _, v := range r.store.scan(fmt.Sprintf("event:%s:", runId)) {
		result = append(result, r.store.mapper.EventToEntity(v.(*model.ResearchRunEvent)))
	}
	return result, nil
}

// Reports

type reportRepository struct {
	store *ResearchStore
}

func (r *reportRepository) Create(ctx context.Context, report *entity.ResearchReport) error {
	if report.Id == uuid.Nil {
		report.Id = uuid.New()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now()
	}
	m := r.store.mapper.ReportToModel(report)
	if err := r.store.add(reportKey(report.ResearchRunId), m); err != nil {
		return fmt.Errorf("research run %s already has a report", report.ResearchRunId)
	}
	*report = *r.store.mapper.ReportToEntity(m)
	return nil
}

func (r *reportRepository) Update(ctx context.Context, report *entity.ResearchReport) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	row, found := r.store.get(reportKey(report.ResearchRunId))
	if !found {
		return fmt.Errorf("report for research run %s not found", report.ResearchRunId)
	}
	m := r.store.mapper.ReportToModel(report)
	r.store.cache.Set(reportKey(report.ResearchRunId), storedRow{seq: row.seq, value: m}, cache.NoExpiration)
	*report = *r.store.mapper.ReportToEntity(m)
	return nil
}

func (r *reportRepository) FindByRunId(ctx context.Context, runId uuid.UUID) (*entity.ResearchReport, error) {
	row, found := r.store.get(reportKey(runId))
	if !found {
		return nil, nil
	}
	return r.store.mapper.ReportToEntity(row.value.(*model.ResearchReport)), nil
}
