package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
	"github.com/Harsh-BH/Intelligenter/internal/events"
	"github.com/Harsh-BH/Intelligenter/internal/provider"
	"github.com/Harsh-BH/Intelligenter/internal/repository"
)

// ---- RecordStore mock ----

var _ repository.RecordStore = (*RecordStore)(nil)

// RecordStore is an in-memory repository.RecordStore. The mutex plays the
// role of the row lock.
type RecordStore struct {
	mu      sync.Mutex
	records map[string]*domain.DomainRecord

	// Hook functions for injecting errors. A hook replaces the default behavior.
	FindByNameFn         func(ctx context.Context, name string) (*domain.DomainRecord, error)
	TryBeginAnalysisFn   func(ctx context.Context, name string) (domain.BeginOutcome, error)
	CompleteAnalysisFn   func(ctx context.Context, name string, facts domain.Facts, at time.Time) error
	FailAnalysisFn       func(ctx context.Context, name string, message string) error
	ListStaleCompletedFn func(ctx context.Context, q domain.StaleQuery) ([]*domain.DomainRecord, error)

	// Recorded calls for assertions.
	BeginCalls    []string
	CompleteCalls []string
	FailCalls     []FailCall
	ListCalls     []domain.StaleQuery
}

// FailCall records one FailAnalysis invocation.
type FailCall struct {
	Name    string
	Message string
}

// NewRecordStore creates an empty in-memory store.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]*domain.DomainRecord)}
}

// Put stores a copy of rec, replacing any existing record.
func (m *RecordStore) Put(rec *domain.DomainRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[rec.DomainName] = &cp
}

// Get returns a copy of the stored record or nil (for test assertions).
func (m *RecordStore) Get(name string) *domain.DomainRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// Calls returns a snapshot of the recorded begin and complete calls.
func (m *RecordStore) Calls() (begins, completes []string, fails []FailCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.BeginCalls...),
		append([]string(nil), m.CompleteCalls...),
		append([]FailCall(nil), m.FailCalls...)
}

// ListQueries returns a snapshot of the recorded stale queries.
func (m *RecordStore) ListQueries() []domain.StaleQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StaleQuery(nil), m.ListCalls...)
}

func (m *RecordStore) FindByName(ctx context.Context, name string) (*domain.DomainRecord, error) {
	if m.FindByNameFn != nil {
		return m.FindByNameFn(ctx, name)
	}
	if rec := m.Get(name); rec != nil {
		return rec, nil
	}
	return nil, domain.ErrRecordNotFound
}

func (m *RecordStore) InsertPending(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(name)
	return nil
}

func (m *RecordStore) insertLocked(name string) bool {
	if _, ok := m.records[name]; ok {
		return false
	}
	now := time.Now().UTC()
	m.records[name] = &domain.DomainRecord{
		DomainName: name,
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return true
}

func (m *RecordStore) TryBeginAnalysis(ctx context.Context, name string) (domain.BeginOutcome, error) {
	m.mu.Lock()
	m.BeginCalls = append(m.BeginCalls, name)
	m.mu.Unlock()
	if m.TryBeginAnalysisFn != nil {
		return m.TryBeginAnalysisFn(ctx, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := domain.BeginOutcome{Created: m.insertLocked(name)}
	rec := m.records[name]
	out.Previous = rec.Status

	if rec.Status == domain.StatusAnalyzing {
		out.AlreadyAnalyzing = true
		return out, nil
	}
	if !domain.CanTransition(rec.Status, domain.StatusAnalyzing) {
		return out, fmt.Errorf("mock: begin analysis from %s: %w", rec.Status, domain.ErrInvalidTransition)
	}
	rec.Status = domain.StatusAnalyzing
	rec.Reputation = nil
	rec.Registration = nil
	rec.LastError = nil
	rec.UpdatedAt = time.Now().UTC()
	return out, nil
}

func (m *RecordStore) CompleteAnalysis(ctx context.Context, name string, facts domain.Facts, at time.Time) error {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, name)
	m.mu.Unlock()
	if m.CompleteAnalysisFn != nil {
		return m.CompleteAnalysisFn(ctx, name, facts, at)
	}
	if !facts.Complete() {
		return fmt.Errorf("mock: complete analysis: both facts are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if rec.Status != domain.StatusAnalyzing {
		return fmt.Errorf("mock: %s to completed: %w", rec.Status, domain.ErrInvalidTransition)
	}
	at = at.UTC()
	rec.Status = domain.StatusCompleted
	rec.Reputation = facts.Reputation
	rec.Registration = facts.Registration
	rec.LastError = nil
	rec.LastAnalyzedAt = &at
	rec.AnalysisCount++
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *RecordStore) FailAnalysis(ctx context.Context, name string, message string) error {
	m.mu.Lock()
	m.FailCalls = append(m.FailCalls, FailCall{Name: name, Message: message})
	m.mu.Unlock()
	if m.FailAnalysisFn != nil {
		return m.FailAnalysisFn(ctx, name, message)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if rec.Status != domain.StatusAnalyzing {
		return fmt.Errorf("mock: %s to error: %w", rec.Status, domain.ErrInvalidTransition)
	}
	rec.Status = domain.StatusError
	rec.Reputation = nil
	rec.Registration = nil
	rec.LastError = &message
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *RecordStore) ListStaleCompleted(ctx context.Context, q domain.StaleQuery) ([]*domain.DomainRecord, error) {
	m.mu.Lock()
	m.ListCalls = append(m.ListCalls, q)
	m.mu.Unlock()
	if m.ListStaleCompletedFn != nil {
		return m.ListStaleCompletedFn(ctx, q)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*domain.DomainRecord
	for _, rec := range m.records {
		if rec.Status != domain.StatusCompleted {
			continue
		}
		if rec.LastAnalyzedAt != nil && !rec.LastAnalyzedAt.Before(q.Cutoff) {
			continue
		}
		if q.After != nil && !cursorLess(q.After, domain.CursorOf(rec)) {
			continue
		}
		cp := *rec
		stale = append(stale, &cp)
	}
	sort.Slice(stale, func(i, j int) bool {
		return cursorLess(domain.CursorOf(stale[i]), domain.CursorOf(stale[j]))
	})
	if q.Limit > 0 && len(stale) > q.Limit {
		stale = stale[:q.Limit]
	}
	return stale, nil
}

func cursorLess(a, b *domain.StaleCursor) bool {
	if !a.LastAnalyzedAt.Equal(b.LastAnalyzedAt) {
		return a.LastAnalyzedAt.Before(b.LastAnalyzedAt)
	}
	return a.DomainName < b.DomainName
}

func (m *RecordStore) FailStuckAnalyses(ctx context.Context, olderThan time.Duration, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var n int64
	for _, rec := range m.records {
		if rec.Status == domain.StatusAnalyzing && rec.UpdatedAt.Before(cutoff) {
			msg := message
			rec.Status = domain.StatusError
			rec.LastError = &msg
			rec.Reputation = nil
			rec.Registration = nil
			rec.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (m *RecordStore) Ping(ctx context.Context) error { return nil }

// ---- Cache mock ----

var _ repository.Cache = (*Cache)(nil)

// Cache is an in-memory repository.Cache that ignores TTLs.
type Cache struct {
	mu      sync.Mutex
	entries map[string]domain.Result

	GetFn    func(ctx context.Context, name string) (*domain.Result, bool, error)
	SetFn    func(ctx context.Context, name string, result *domain.Result, ttl time.Duration) error
	DeleteFn func(ctx context.Context, name string) error

	SetCalls    []string
	DeleteCalls []string
}

// NewCache creates an empty in-memory cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]domain.Result)}
}

// Has reports whether name is cached (for test assertions).
func (m *Cache) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[name]
	return ok
}

// Counts returns the number of Set and Delete calls so far.
func (m *Cache) Counts() (sets, deletes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SetCalls), len(m.DeleteCalls)
}

func (m *Cache) Get(ctx context.Context, name string) (*domain.Result, bool, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.entries[name]
	if !ok {
		return nil, false, nil
	}
	return &res, true, nil
}

func (m *Cache) Set(ctx context.Context, name string, result *domain.Result, ttl time.Duration) error {
	m.mu.Lock()
	m.SetCalls = append(m.SetCalls, name)
	m.mu.Unlock()
	if m.SetFn != nil {
		return m.SetFn(ctx, name, result, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *result
	cp.Task = nil
	cp.Deduplicated = false
	m.entries[name] = cp
	return nil
}

func (m *Cache) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, name)
	m.mu.Unlock()
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}

func (m *Cache) Ping(ctx context.Context) error { return nil }

// ---- Provider mocks ----

var (
	_ provider.ReputationProvider   = (*ReputationProvider)(nil)
	_ provider.RegistrationProvider = (*RegistrationProvider)(nil)
)

// ReputationProvider is a test double for provider.ReputationProvider.
type ReputationProvider struct {
	AnalyzeFn func(ctx context.Context, name string) (*domain.ReputationFact, error)
	calls     atomic.Int32
}

// Calls returns how many times the provider was invoked.
func (m *ReputationProvider) Calls() int { return int(m.calls.Load()) }

func (m *ReputationProvider) AnalyzeReputation(ctx context.Context, name string) (*domain.ReputationFact, error) {
	m.calls.Add(1)
	if m.AnalyzeFn != nil {
		return m.AnalyzeFn(ctx, name)
	}
	return &domain.ReputationFact{
		NumberOfDetection: 0,
		NumberOfScanners:  70,
		DetectedEngines:   "CLEAN MX",
		LastUpdated:       "2026.10.18",
	}, nil
}

// RegistrationProvider is a test double for provider.RegistrationProvider.
type RegistrationProvider struct {
	AnalyzeFn func(ctx context.Context, name string) (*domain.RegistrationFact, error)
	calls     atomic.Int32
}

// Calls returns how many times the provider was invoked.
func (m *RegistrationProvider) Calls() int { return int(m.calls.Load()) }

func (m *RegistrationProvider) AnalyzeRegistration(ctx context.Context, name string) (*domain.RegistrationFact, error) {
	m.calls.Add(1)
	if m.AnalyzeFn != nil {
		return m.AnalyzeFn(ctx, name)
	}
	return &domain.RegistrationFact{
		DateCreated: "1997.09.15",
		OwnerName:   "Example Org",
		ExpiredOn:   "2031.09.13",
	}, nil
}

// ---- Publisher mock ----

var _ events.Publisher = (*Publisher)(nil)

// Publisher records published analysis events.
type Publisher struct {
	mu        sync.Mutex
	Published []domain.AnalysisEvent
	PublishFn func(ctx context.Context, event domain.AnalysisEvent) error
}

// Events returns a snapshot of the published events.
func (m *Publisher) Events() []domain.AnalysisEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AnalysisEvent(nil), m.Published...)
}

func (m *Publisher) PublishOutcome(ctx context.Context, event domain.AnalysisEvent) error {
	m.mu.Lock()
	m.Published = append(m.Published, event)
	m.mu.Unlock()
	if m.PublishFn != nil {
		return m.PublishFn(ctx, event)
	}
	return nil
}

func (m *Publisher) Close() error { return nil }
