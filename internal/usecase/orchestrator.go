package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
	"github.com/Harsh-BH/Intelligenter/internal/events"
	"github.com/Harsh-BH/Intelligenter/internal/metrics"
	"github.com/Harsh-BH/Intelligenter/internal/pool"
	"github.com/Harsh-BH/Intelligenter/internal/provider"
	"github.com/Harsh-BH/Intelligenter/internal/repository"
)

const (
	defaultCacheTTL        = time.Hour
	defaultStaleness       = 24 * time.Hour
	defaultAnalysisTimeout = 2 * time.Minute
	persistTimeout         = 10 * time.Second
)

// TaskRunner runs detached analyses. *pool.WorkerPool satisfies it.
type TaskRunner interface {
	Submit(name string, task pool.Task) (*pool.Handle, error)
	SubmitWait(ctx context.Context, name string, task pool.Task) (*pool.Handle, error)
}

// Options tunes the orchestrator. Zero values fall back to defaults.
type Options struct {
	CacheTTL        time.Duration
	StalenessWindow time.Duration
	AnalysisTimeout time.Duration
}

// Deps are the collaborators of the orchestrator. Events and Now are optional.
type Deps struct {
	Store        repository.RecordStore
	Cache        repository.Cache
	Reputation   provider.ReputationProvider
	Registration provider.RegistrationProvider
	Runner       TaskRunner
	Events       events.Publisher
	Logger       *zap.Logger
	Now          func() time.Time
}

// AnalysisOrchestrator owns the record lifecycle: cache-aside reads, the
// single-flight transition into analyzing and the detached provider fan-out.
type AnalysisOrchestrator struct {
	store        repository.RecordStore
	cache        repository.Cache
	reputation   provider.ReputationProvider
	registration provider.RegistrationProvider
	runner       TaskRunner
	events       events.Publisher
	logger       *zap.Logger
	now          func() time.Time
	opts         Options

	reads singleflight.Group

	mu            sync.Mutex
	revalidations map[string]*pool.Handle
}

// NewAnalysisOrchestrator creates a new AnalysisOrchestrator.
func NewAnalysisOrchestrator(deps Deps, opts Options) *AnalysisOrchestrator {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.StalenessWindow <= 0 {
		opts.StalenessWindow = defaultStaleness
	}
	if opts.AnalysisTimeout <= 0 {
		opts.AnalysisTimeout = defaultAnalysisTimeout
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &AnalysisOrchestrator{
		store:        deps.Store,
		cache:        deps.Cache,
		reputation:   deps.Reputation,
		registration: deps.Registration,
		runner:       deps.Runner,
		events:       deps.Events,
		logger:       deps.Logger,
		now:          deps.Now,
		opts:         opts,

		revalidations: make(map[string]*pool.Handle),
	}
}

// Lookup answers a read request. It serves completed data from the cache or
// the store, starts an analysis for unknown or pending domains and triggers
// a background re-analysis when the data it returns is stale.
func (o *AnalysisOrchestrator) Lookup(ctx context.Context, name string) (*domain.Result, error) {
	if res, ok := o.cacheGet(ctx, name); ok {
		if domain.IsStale(res.LastAnalyzedAt, o.now(), o.opts.StalenessWindow) {
			o.revalidate(name)
		}
		return res, nil
	}

	rec, err := o.findRecord(ctx, name)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return o.begin(ctx, name, false)
	}
	if err != nil {
		return nil, domain.NewPersistenceError("find record", err)
	}

	switch rec.Status {
	case domain.StatusPending, domain.StatusAnalyzing:
		return o.begin(ctx, name, false)
	case domain.StatusError:
		return domain.ErrorResult(name), nil
	}

	res := domain.ResultOf(rec)
	if res.Status != domain.ResultCompleted {
		return res, nil
	}
	if rec.IsStale(o.now(), o.opts.StalenessWindow) {
		o.revalidate(name)
		return res, nil
	}
	o.cacheCompleted(ctx, name, res)
	return res, nil
}

// StartAnalysis is the explicit analysis request. Fresh cached data is
// returned as is; otherwise the record is moved to analyzing unless another
// caller already did, and the analysis is handed to the runner without
// waiting for capacity.
func (o *AnalysisOrchestrator) StartAnalysis(ctx context.Context, name string) (*domain.Result, error) {
	if res, ok := o.cacheGet(ctx, name); ok && !domain.IsStale(res.LastAnalyzedAt, o.now(), o.opts.StalenessWindow) {
		return res, nil
	}
	return o.begin(ctx, name, false)
}

// Refresh forces a re-analysis regardless of the cache and waits, bounded by
// ctx, for runner capacity. A scheduling failure is returned as an error.
func (o *AnalysisOrchestrator) Refresh(ctx context.Context, name string) (*domain.Result, error) {
	return o.begin(ctx, name, true)
}

// Status is a read-only view of a domain. It never starts an analysis.
func (o *AnalysisOrchestrator) Status(ctx context.Context, name string) (*domain.Result, error) {
	if res, ok := o.cacheGet(ctx, name); ok {
		return res, nil
	}
	rec, err := o.findRecord(ctx, name)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, domain.NewPersistenceError("find record", err)
	}
	return domain.ResultOf(rec), nil
}

// Wait blocks until the re-analyses queued by Lookup have finished or ctx
// ends. Re-analyses abandoned by a pool shutdown count as finished.
func (o *AnalysisOrchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	handles := make([]*pool.Handle, 0, len(o.revalidations))
	for _, h := range o.revalidations {
		handles = append(handles, h)
	}
	o.mu.Unlock()

	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (o *AnalysisOrchestrator) begin(ctx context.Context, name string, wait bool) (*domain.Result, error) {
	out, err := o.transition(ctx, name)
	if err != nil {
		return nil, err
	}
	if out.AlreadyAnalyzing {
		res := domain.OnAnalysisResult(name)
		res.Deduplicated = true
		return res, nil
	}

	task := func(taskCtx context.Context) error {
		return o.runAnalysis(taskCtx, name)
	}

	var handle *pool.Handle
	if wait {
		handle, err = o.runner.SubmitWait(ctx, "analyze:"+name, task)
	} else {
		handle, err = o.runner.Submit("analyze:"+name, task)
	}
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("rejected").Inc()
		o.logger.Error("Failed to schedule analysis", zap.String("domain", name), zap.Error(err))
		o.failRecord(ctx, name, "analysis could not be scheduled: "+err.Error())
		if wait {
			return nil, fmt.Errorf("schedule analysis: %w", err)
		}
		return domain.ErrorResult(name), nil
	}

	metrics.AnalysesTotal.WithLabelValues("started").Inc()
	o.logger.Info("Analysis started",
		zap.String("domain", name),
		zap.String("previous_status", string(out.Previous)),
	)

	res := domain.OnAnalysisResult(name)
	res.Task = handle
	return res, nil
}

// transition moves the record to analyzing unless another caller already
// did. The cache entry is purged on both sides of the commit.
func (o *AnalysisOrchestrator) transition(ctx context.Context, name string) (domain.BeginOutcome, error) {
	o.cacheDelete(ctx, name)

	out, err := o.store.TryBeginAnalysis(ctx, name)
	if err != nil {
		o.logger.Error("Failed to begin analysis", zap.String("domain", name), zap.Error(err))
		return out, domain.NewPersistenceError("begin analysis", err)
	}
	if out.AlreadyAnalyzing {
		metrics.AnalysesTotal.WithLabelValues("deduplicated").Inc()
		o.logger.Debug("Analysis already in progress", zap.String("domain", name))
		return out, nil
	}

	// A reader may have repopulated the cache between the delete and the commit.
	o.cacheDelete(ctx, name)
	return out, nil
}

// runAnalysis is the detached part: fetch both facts, then record the outcome.
// Every path out of it leaves the record completed or error.
func (o *AnalysisOrchestrator) runAnalysis(ctx context.Context, name string) (err error) {
	start := o.now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panicked: %v", r)
			o.logger.Error("Analysis panic recovered", zap.String("domain", name), zap.Any("panic", r))
			o.recordFailure(ctx, name, err, start)
		}
	}()

	analysisCtx, cancel := context.WithTimeout(ctx, o.opts.AnalysisTimeout)
	defer cancel()

	facts, err := o.fetchFacts(analysisCtx, name)
	if err != nil {
		o.recordFailure(ctx, name, err, start)
		return err
	}
	return o.recordSuccess(ctx, name, facts, start)
}

func (o *AnalysisOrchestrator) fetchFacts(ctx context.Context, name string) (domain.Facts, error) {
	var facts domain.Facts

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return guard(func() error {
			f, err := o.reputation.AnalyzeReputation(gctx, name)
			if err != nil {
				return err
			}
			facts.Reputation = f
			return nil
		})
	})
	g.Go(func() error {
		return guard(func() error {
			f, err := o.registration.AnalyzeRegistration(gctx, name)
			if err != nil {
				return err
			}
			facts.Registration = f
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		return domain.Facts{}, err
	}
	if !facts.Complete() {
		return domain.Facts{}, errors.New("provider returned no data")
	}
	return facts, nil
}

// guard turns a panic inside a provider call into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return fn()
}

func (o *AnalysisOrchestrator) recordSuccess(ctx context.Context, name string, facts domain.Facts, start time.Time) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	// Stored timestamps have microsecond precision.
	at := o.now().UTC().Truncate(time.Microsecond)
	if err := o.store.CompleteAnalysis(pctx, name, facts, at); err != nil {
		o.logger.Error("Failed to persist analysis result", zap.String("domain", name), zap.Error(err))
		perr := domain.NewPersistenceError("complete analysis", err)
		o.recordFailure(ctx, name, perr, start)
		return perr
	}

	res := domain.CompletedResult(&domain.DomainRecord{
		DomainName:     name,
		Status:         domain.StatusCompleted,
		Reputation:     facts.Reputation,
		Registration:   facts.Registration,
		LastAnalyzedAt: &at,
	})
	o.cacheCompleted(pctx, name, res)

	elapsed := o.now().Sub(start)
	metrics.AnalysesTotal.WithLabelValues("completed").Inc()
	metrics.AnalysisDuration.WithLabelValues(string(domain.StatusCompleted)).Observe(elapsed.Seconds())
	o.publish(pctx, domain.AnalysisEvent{
		Domain:     name,
		Status:     domain.StatusCompleted,
		DurationMs: elapsed.Milliseconds(),
		OccurredAt: at,
	})

	o.logger.Info("Analysis completed",
		zap.String("domain", name),
		zap.Duration("elapsed", elapsed),
		zap.Bool("synthetic", facts.Reputation.Synthetic || facts.Registration.Synthetic),
	)
	return nil
}

func (o *AnalysisOrchestrator) recordFailure(ctx context.Context, name string, cause error, start time.Time) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	o.failRecord(pctx, name, cause.Error())

	elapsed := o.now().Sub(start)
	metrics.AnalysesTotal.WithLabelValues("error").Inc()
	metrics.AnalysisDuration.WithLabelValues(string(domain.StatusError)).Observe(elapsed.Seconds())
	o.publish(pctx, domain.AnalysisEvent{
		Domain:     name,
		Status:     domain.StatusError,
		Error:      cause.Error(),
		DurationMs: elapsed.Milliseconds(),
		OccurredAt: o.now().UTC(),
	})

	o.logger.Warn("Analysis failed",
		zap.String("domain", name),
		zap.String("category", string(provider.GetCategory(cause))),
		zap.Duration("elapsed", elapsed),
		zap.Error(cause),
	)
}

// failRecord moves the record to error and purges its cache entry.
func (o *AnalysisOrchestrator) failRecord(ctx context.Context, name, message string) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := o.store.FailAnalysis(pctx, name, message); err != nil {
		o.logger.Error("Failed to persist analysis failure", zap.String("domain", name), zap.Error(err))
	}
	o.cacheDelete(pctx, name)
}

// revalidate queues a re-analysis of a stale domain on the runner, at most
// one at a time per domain within this process. A full queue drops it; the
// next stale read or the scheduler picks the domain up again.
func (o *AnalysisOrchestrator) revalidate(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if h, ok := o.revalidations[name]; ok {
		select {
		case <-h.Done():
		default:
			return
		}
	}

	handle, err := o.runner.Submit("revalidate:"+name, func(ctx context.Context) error {
		defer o.forgetRevalidation(name)
		return o.reanalyze(ctx, name)
	})
	if err != nil {
		o.logger.Warn("Stale re-analysis not scheduled", zap.String("domain", name), zap.Error(err))
		return
	}
	o.revalidations[name] = handle
}

func (o *AnalysisOrchestrator) forgetRevalidation(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.revalidations, name)
}

// reanalyze runs inside a runner task, so the analysis runs inline rather
// than being submitted a second time.
func (o *AnalysisOrchestrator) reanalyze(ctx context.Context, name string) error {
	o.logger.Info("Re-analyzing stale domain", zap.String("domain", name))

	out, err := o.transition(ctx, name)
	if err != nil || out.AlreadyAnalyzing {
		return err
	}
	metrics.AnalysesTotal.WithLabelValues("started").Inc()
	return o.runAnalysis(ctx, name)
}

func (o *AnalysisOrchestrator) findRecord(ctx context.Context, name string) (*domain.DomainRecord, error) {
	v, err, _ := o.reads.Do(name, func() (any, error) {
		return o.store.FindByName(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.DomainRecord), nil
}

func (o *AnalysisOrchestrator) publish(ctx context.Context, event domain.AnalysisEvent) {
	if err := o.events.PublishOutcome(ctx, event); err != nil {
		o.logger.Warn("Failed to publish analysis event", zap.String("domain", event.Domain), zap.Error(err))
	}
}

// Cache failures are never surfaced: a broken cache degrades to the store.

func (o *AnalysisOrchestrator) cacheGet(ctx context.Context, name string) (*domain.Result, bool) {
	res, found, err := o.cache.Get(ctx, name)
	if err != nil {
		metrics.CacheRequests.WithLabelValues("error").Inc()
		o.logger.Warn("Cache read failed", zap.String("domain", name), zap.Error(err))
		return nil, false
	}
	if !found || res == nil || res.Status != domain.ResultCompleted {
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheRequests.WithLabelValues("hit").Inc()
	return res, true
}

func (o *AnalysisOrchestrator) cacheSet(ctx context.Context, name string, res *domain.Result) {
	if err := o.cache.Set(ctx, name, res, o.opts.CacheTTL); err != nil {
		o.logger.Warn("Cache write failed", zap.String("domain", name), zap.Error(err))
	}
}

// cacheCompleted caches a completed result, then drops it again unless the
// store still holds that same completed analysis. A transition that commits
// after the check purges the entry itself.
func (o *AnalysisOrchestrator) cacheCompleted(ctx context.Context, name string, res *domain.Result) {
	o.cacheSet(ctx, name, res)

	rec, err := o.store.FindByName(ctx, name)
	if err == nil && sameAnalysis(rec, res) {
		return
	}
	o.logger.Debug("Cached result superseded, purging", zap.String("domain", name))
	o.cacheDelete(ctx, name)
}

func sameAnalysis(rec *domain.DomainRecord, res *domain.Result) bool {
	if rec.Status != domain.StatusCompleted || rec.LastAnalyzedAt == nil || res.LastAnalyzedAt == nil {
		return false
	}
	return rec.LastAnalyzedAt.Truncate(time.Microsecond).Equal(res.LastAnalyzedAt.Truncate(time.Microsecond))
}

func (o *AnalysisOrchestrator) cacheDelete(ctx context.Context, name string) {
	if err := o.cache.Delete(ctx, name); err != nil {
		o.logger.Warn("Cache delete failed", zap.String("domain", name), zap.Error(err))
	}
}
