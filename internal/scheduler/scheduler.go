// Package scheduler periodically re-analyzes domains whose data has aged out.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
	"github.com/Harsh-BH/Intelligenter/internal/metrics"
	"github.com/Harsh-BH/Intelligenter/internal/repository"
	"github.com/Harsh-BH/Intelligenter/internal/retry"
)

// ErrCycleInProgress is returned by RunOnce while another cycle is running.
var ErrCycleInProgress = errors.New("scheduler: refresh cycle already running")

// StuckAnalysisMessage is stored on records recovered by the heartbeat.
const StuckAnalysisMessage = "analysis did not finish in time"

// Refresher forces a re-analysis. *usecase.AnalysisOrchestrator satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, name string) (*domain.Result, error)
}

// Config holds the scheduler settings.
type Config struct {
	Cron      string
	Heartbeat string
	// RefreshInterval is the age after which a completed record is refreshed.
	RefreshInterval time.Duration
	PageSize        int
	BatchDelay      time.Duration
	// Retry applies to submitting a single domain.
	Retry retry.Policy
	// AnalysisWait bounds how long a cycle waits for one analysis. The
	// analysis keeps running after the wait is abandoned.
	AnalysisWait time.Duration
	StuckTimeout time.Duration
}

// CycleReport summarizes one refresh cycle.
type CycleReport struct {
	RunID  string
	Cutoff time.Time
	Pages  int
	// Submitted analyses; Processed and Failed count how they ended.
	Submitted int
	Processed int
	Failed    int
	// Abandoned analyses outlived AnalysisWait.
	Abandoned int
	// Skipped domains were already being analyzed.
	Skipped  int
	Duration time.Duration
}

// RefreshScheduler drives refresh cycles from a cron schedule.
type RefreshScheduler struct {
	cfg       Config
	store     repository.RecordStore
	refresher Refresher
	logger    *zap.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	running atomic.Bool
	cron    *cron.Cron
}

// NewRefreshScheduler creates a new RefreshScheduler.
func NewRefreshScheduler(cfg Config, store repository.RecordStore, refresher Refresher, logger *zap.Logger) *RefreshScheduler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.AnalysisWait <= 0 {
		cfg.AnalysisWait = 2 * time.Minute
	}
	return &RefreshScheduler{
		cfg:       cfg,
		store:     store,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Start registers the refresh and heartbeat jobs and starts the cron runner.
func (s *RefreshScheduler) Start(ctx context.Context) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{s.logger.Sugar()})),
	)

	if _, err := s.cron.AddFunc(s.cfg.Cron, func() { s.trigger(ctx) }); err != nil {
		return fmt.Errorf("scheduler: parse refresh schedule %q: %w", s.cfg.Cron, err)
	}
	if s.cfg.Heartbeat != "" {
		if _, err := s.cron.AddFunc(s.cfg.Heartbeat, func() { s.Heartbeat(ctx) }); err != nil {
			return fmt.Errorf("scheduler: parse heartbeat schedule %q: %w", s.cfg.Heartbeat, err)
		}
	}

	s.cron.Start()
	s.logger.Info("Refresh scheduler started",
		zap.String("schedule", s.cfg.Cron),
		zap.String("heartbeat", s.cfg.Heartbeat),
		zap.Duration("refresh_interval", s.cfg.RefreshInterval),
		zap.Int("page_size", s.cfg.PageSize),
	)
	return nil
}

// Stop stops triggering new jobs and waits for running ones until ctx ends.
func (s *RefreshScheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Refresh scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
}

// Running reports whether a cycle is in progress.
func (s *RefreshScheduler) Running() bool {
	return s.running.Load()
}

func (s *RefreshScheduler) trigger(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrCycleInProgress) {
		s.logger.Error("Refresh cycle failed", zap.Error(err))
	}
}

// RunOnce runs one refresh cycle over every completed record analyzed before
// now minus RefreshInterval. The cutoff is fixed when the cycle starts. A
// call made while a cycle is running returns ErrCycleInProgress at once.
func (s *RefreshScheduler) RunOnce(ctx context.Context) (CycleReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.RefreshCycles.WithLabelValues("skipped").Inc()
		s.logger.Warn("Refresh cycle already running, skipping trigger")
		return CycleReport{}, ErrCycleInProgress
	}
	defer s.running.Store(false)

	start := s.now()
	report := CycleReport{
		RunID:  newRunID(),
		Cutoff: start.Add(-s.cfg.RefreshInterval).UTC(),
	}
	log := s.logger.With(zap.String("run_id", report.RunID))
	log.Info("Refresh cycle started", zap.Time("cutoff", report.Cutoff))

	err := s.runPages(ctx, &report, log)
	report.Duration = s.now().Sub(start)

	fields := []zap.Field{
		zap.Int("pages", report.Pages),
		zap.Int("submitted", report.Submitted),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Int("abandoned", report.Abandoned),
		zap.Int("skipped", report.Skipped),
		zap.Duration("duration", report.Duration),
	}
	if err != nil {
		metrics.RefreshCycles.WithLabelValues("failed").Inc()
		log.Error("Refresh cycle aborted", append(fields, zap.Error(err))...)
		return report, err
	}
	metrics.RefreshCycles.WithLabelValues("completed").Inc()
	log.Info("Refresh cycle finished", fields...)
	return report, nil
}

func (s *RefreshScheduler) runPages(ctx context.Context, report *CycleReport, log *zap.Logger) error {
	var after *domain.StaleCursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.store.ListStaleCompleted(ctx, domain.StaleQuery{
			Cutoff: report.Cutoff,
			Limit:  s.cfg.PageSize,
			After:  after,
		})
		if err != nil {
			return fmt.Errorf("scheduler: list page %d: %w", report.Pages+1, err)
		}
		if len(page) == 0 {
			return nil
		}

		report.Pages++
		log.Debug("Processing refresh page", zap.Int("page", report.Pages), zap.Int("records", len(page)))
		s.processPage(ctx, page, report, log)

		if len(page) < s.cfg.PageSize {
			return nil
		}
		after = domain.CursorOf(page[len(page)-1])

		if err := s.sleep(ctx, s.cfg.BatchDelay); err != nil {
			return err
		}
	}
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeFailed
	outcomeAbandoned
	outcomeSkipped
)

func (s *RefreshScheduler) processPage(ctx context.Context, page []*domain.DomainRecord, report *CycleReport, log *zap.Logger) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PageSize)

	for _, rec := range page {
		name := rec.DomainName
		g.Go(func() error {
			submitted, result := s.refreshOne(gctx, name, log)

			mu.Lock()
			defer mu.Unlock()
			if submitted {
				report.Submitted++
			}
			switch result {
			case outcomeProcessed:
				report.Processed++
				metrics.RefreshRecords.WithLabelValues("processed").Inc()
			case outcomeFailed:
				report.Failed++
				metrics.RefreshRecords.WithLabelValues("failed").Inc()
			case outcomeAbandoned:
				report.Abandoned++
				metrics.RefreshRecords.WithLabelValues("abandoned").Inc()
			case outcomeSkipped:
				report.Skipped++
				metrics.RefreshRecords.WithLabelValues("skipped").Inc()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// refreshOne submits one domain with retries and waits for its analysis.
func (s *RefreshScheduler) refreshOne(ctx context.Context, name string, log *zap.Logger) (bool, outcome) {
	var res *domain.Result
	err := retry.Do(ctx, s.cfg.Retry, func(ctx context.Context) error {
		r, err := s.refresher.Refresh(ctx, name)
		if err != nil {
			return err
		}
		res = r
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		log.Warn("Retrying domain refresh",
			zap.String("domain", name),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
	})
	if err != nil {
		log.Error("Domain refresh failed", zap.String("domain", name), zap.Error(err))
		return false, outcomeFailed
	}

	if res.Deduplicated {
		return false, outcomeSkipped
	}
	if res.Task == nil {
		if res.Status == domain.ResultError {
			return false, outcomeFailed
		}
		return false, outcomeProcessed
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.AnalysisWait)
	defer cancel()

	err = res.Task.Wait(waitCtx)
	switch {
	case waitCtx.Err() != nil:
		log.Warn("Stopped waiting for analysis", zap.String("domain", name), zap.Duration("waited", s.cfg.AnalysisWait))
		return true, outcomeAbandoned
	case err != nil:
		log.Warn("Refresh analysis failed", zap.String("domain", name), zap.Error(err))
		return true, outcomeFailed
	default:
		return true, outcomeProcessed
	}
}

// Heartbeat reports liveness and fails records stuck in analyzing, which
// happens when a process dies mid-analysis.
func (s *RefreshScheduler) Heartbeat(ctx context.Context) {
	metrics.SchedulerHeartbeat.SetToCurrentTime()
	s.logger.Debug("Scheduler heartbeat", zap.Bool("cycle_running", s.running.Load()))

	if s.cfg.StuckTimeout <= 0 {
		return
	}
	n, err := s.store.FailStuckAnalyses(ctx, s.cfg.StuckTimeout, StuckAnalysisMessage)
	if err != nil {
		s.logger.Error("Failed to recover stuck analyses", zap.Error(err))
		return
	}
	if n > 0 {
		metrics.StuckAnalysesRecovered.Add(float64(n))
		s.logger.Warn("Recovered stuck analyses", zap.Int64("count", n), zap.Duration("older_than", s.cfg.StuckTimeout))
	}
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
