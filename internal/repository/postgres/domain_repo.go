package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
	"github.com/Harsh-BH/Intelligenter/internal/repository"
)

// Ensure pgDomainRepo implements repository.RecordStore.
var _ repository.RecordStore = (*pgDomainRepo)(nil)

const recordColumns = `domain_name, status, reputation, registration, analysis_count,
	last_error, created_at, updated_at, last_analyzed_at`

type pgDomainRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresDomainRepository creates a PostgreSQL-backed record store.
func NewPostgresDomainRepository(pool *pgxpool.Pool) repository.RecordStore {
	return &pgDomainRepo{pool: pool, now: time.Now}
}

func (r *pgDomainRepo) FindByName(ctx context.Context, name string) (*domain.DomainRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM domains WHERE domain_name = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find domain: %w", err)
	}
	return rec, nil
}

func (r *pgDomainRepo) InsertPending(ctx context.Context, name string) error {
	query := `
		INSERT INTO domains (domain_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (domain_name) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, name, domain.StatusPending, r.now().UTC()); err != nil {
		return fmt.Errorf("postgres: insert pending: %w", err)
	}
	return nil
}

func (r *pgDomainRepo) TryBeginAnalysis(ctx context.Context, name string) (domain.BeginOutcome, error) {
	var out domain.BeginOutcome

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return out, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := r.now().UTC()
	tag, err := tx.Exec(ctx, `
		INSERT INTO domains (domain_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (domain_name) DO NOTHING`,
		name, domain.StatusPending, now,
	)
	if err != nil {
		return out, fmt.Errorf("postgres: insert pending: %w", err)
	}
	out.Created = tag.RowsAffected() == 1

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM domains WHERE domain_name = $1 FOR UPDATE`, name).Scan(&status)
	if err != nil {
		return out, fmt.Errorf("postgres: lock domain: %w", err)
	}
	out.Previous = domain.AnalysisStatus(status)

	if out.Previous == domain.StatusAnalyzing {
		out.AlreadyAnalyzing = true
		return out, nil
	}
	if !domain.CanTransition(out.Previous, domain.StatusAnalyzing) {
		return out, fmt.Errorf("postgres: begin analysis from %s: %w", out.Previous, domain.ErrInvalidTransition)
	}

	_, err = tx.Exec(ctx, `
		UPDATE domains
		SET status = $2, reputation = NULL, registration = NULL, last_error = NULL, updated_at = $3
		WHERE domain_name = $1`,
		name, domain.StatusAnalyzing, now,
	)
	if err != nil {
		return out, fmt.Errorf("postgres: mark analyzing: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return out, fmt.Errorf("postgres: commit begin analysis: %w", err)
	}
	return out, nil
}

func (r *pgDomainRepo) CompleteAnalysis(ctx context.Context, name string, facts domain.Facts, analyzedAt time.Time) error {
	if !facts.Complete() {
		return fmt.Errorf("postgres: complete analysis: both facts are required")
	}
	reputation, err := json.Marshal(facts.Reputation)
	if err != nil {
		return fmt.Errorf("postgres: encode reputation: %w", err)
	}
	registration, err := json.Marshal(facts.Registration)
	if err != nil {
		return fmt.Errorf("postgres: encode registration: %w", err)
	}

	query := `
		UPDATE domains
		SET status = $2, reputation = $3::jsonb, registration = $4::jsonb,
		    last_error = NULL, last_analyzed_at = $5,
		    analysis_count = analysis_count + 1, updated_at = $6
		WHERE domain_name = $1 AND status = $7`

	tag, err := r.pool.Exec(ctx, query,
		name, domain.StatusCompleted, string(reputation), string(registration),
		analyzedAt.UTC(), r.now().UTC(), domain.StatusAnalyzing,
	)
	if err != nil {
		return fmt.Errorf("postgres: complete analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrInvalid(ctx, name, domain.StatusCompleted)
	}
	return nil
}

func (r *pgDomainRepo) FailAnalysis(ctx context.Context, name string, message string) error {
	query := `
		UPDATE domains
		SET status = $2, reputation = NULL, registration = NULL, last_error = $3, updated_at = $4
		WHERE domain_name = $1 AND status = $5`

	tag, err := r.pool.Exec(ctx, query,
		name, domain.StatusError, message, r.now().UTC(), domain.StatusAnalyzing,
	)
	if err != nil {
		return fmt.Errorf("postgres: fail analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrInvalid(ctx, name, domain.StatusError)
	}
	return nil
}

// missingOrInvalid explains why a guarded update touched no row.
func (r *pgDomainRepo) missingOrInvalid(ctx context.Context, name string, to domain.AnalysisStatus) error {
	rec, err := r.FindByName(ctx, name)
	if err != nil {
		return err
	}
	return fmt.Errorf("postgres: %s to %s: %w", rec.Status, to, domain.ErrInvalidTransition)
}

func (r *pgDomainRepo) ListStaleCompleted(ctx context.Context, q domain.StaleQuery) ([]*domain.DomainRecord, error) {
	args := []any{domain.StatusCompleted, q.Cutoff.UTC(), q.Limit}
	query := `SELECT ` + recordColumns + `
		FROM domains
		WHERE status = $1
		  AND (last_analyzed_at IS NULL OR last_analyzed_at < $2)`

	if q.After != nil {
		query += `
		  AND (COALESCE(last_analyzed_at, '-infinity'::timestamptz), domain_name) > ($4, $5)`
		args = append(args, cursorTime(q.After), q.After.DomainName)
	}
	query += `
		ORDER BY COALESCE(last_analyzed_at, '-infinity'::timestamptz), domain_name
		LIMIT $3`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stale: %w", err)
	}
	defer rows.Close()

	var records []*domain.DomainRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stale: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list stale: %w", err)
	}
	return records, nil
}

func (r *pgDomainRepo) FailStuckAnalyses(ctx context.Context, olderThan time.Duration, message string) (int64, error) {
	now := r.now().UTC()
	query := `
		UPDATE domains
		SET status = $1, reputation = NULL, registration = NULL, last_error = $2, updated_at = $3
		WHERE status = $4 AND updated_at < $5`

	tag, err := r.pool.Exec(ctx, query,
		domain.StatusError, message, now, domain.StatusAnalyzing, now.Add(-olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("postgres: fail stuck analyses: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgDomainRepo) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}

// cursorTime maps the zero time of a never-analyzed record onto -infinity,
// matching the COALESCE used for ordering.
func cursorTime(c *domain.StaleCursor) pgtype.Timestamptz {
	if c.LastAnalyzedAt.IsZero() {
		return pgtype.Timestamptz{InfinityModifier: pgtype.NegativeInfinity, Valid: true}
	}
	return pgtype.Timestamptz{Time: c.LastAnalyzedAt.UTC(), Valid: true}
}

func scanRecord(row pgx.Row) (*domain.DomainRecord, error) {
	var (
		rec          domain.DomainRecord
		status       string
		reputation   []byte
		registration []byte
	)
	err := row.Scan(
		&rec.DomainName, &status, &reputation, &registration, &rec.AnalysisCount,
		&rec.LastError, &rec.CreatedAt, &rec.UpdatedAt, &rec.LastAnalyzedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.AnalysisStatus(status)

	if len(reputation) > 0 {
		rec.Reputation = &domain.ReputationFact{}
		if err := json.Unmarshal(reputation, rec.Reputation); err != nil {
			return nil, fmt.Errorf("decode reputation: %w", err)
		}
	}
	if len(registration) > 0 {
		rec.Registration = &domain.RegistrationFact{}
		if err := json.Unmarshal(registration, rec.Registration); err != nil {
			return nil, fmt.Errorf("decode registration: %w", err)
		}
	}
	return &rec, nil
}
