package repository

import (
	"context"
	"time"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

// RecordStore persists domain records and guards their state transitions.
type RecordStore interface {
	// FindByName returns domain.ErrRecordNotFound when no record exists.
	FindByName(ctx context.Context, name string) (*domain.DomainRecord, error)

	// InsertPending creates a pending record. It is a no-op if one exists.
	InsertPending(ctx context.Context, name string) error

	// TryBeginAnalysis atomically creates the record if needed, locks it and
	// moves it to analyzing. If another caller already holds it in analyzing
	// the outcome reports AlreadyAnalyzing and nothing changes.
	TryBeginAnalysis(ctx context.Context, name string) (domain.BeginOutcome, error)

	// CompleteAnalysis stores both facts and moves analyzing to completed.
	CompleteAnalysis(ctx context.Context, name string, facts domain.Facts, analyzedAt time.Time) error

	// FailAnalysis moves analyzing to error and clears any facts.
	FailAnalysis(ctx context.Context, name string, message string) error

	// ListStaleCompleted returns one page of completed records analyzed before
	// q.Cutoff, oldest first with never-analyzed records leading.
	ListStaleCompleted(ctx context.Context, q domain.StaleQuery) ([]*domain.DomainRecord, error)

	// FailStuckAnalyses moves records analyzing for longer than olderThan to error.
	FailStuckAnalyses(ctx context.Context, olderThan time.Duration, message string) (int64, error)

	Ping(ctx context.Context) error
}

// Cache holds completed results keyed by domain name.
type Cache interface {
	// Get reports found=false on a miss.
	Get(ctx context.Context, name string) (*domain.Result, bool, error)
	Set(ctx context.Context, name string, result *domain.Result, ttl time.Duration) error
	// Delete is idempotent.
	Delete(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}
