package domain

import (
	"context"
	"time"
)

// ResultStatus is the externally visible status of a lookup.
type ResultStatus string

const (
	ResultCompleted  ResultStatus = "completed"
	ResultOnAnalysis ResultStatus = "onAnalysis"
	ResultError      ResultStatus = "error"
)

// AnalysisFailedMessage is returned to callers of a record in error state.
const AnalysisFailedMessage = "Analysis failed. Please try again later."

// Waiter is a handle on a detached analysis.
type Waiter interface {
	// Wait blocks until the analysis finishes or ctx ends and returns its error.
	Wait(ctx context.Context) error
}

// Result is one of three shapes: final data, still analyzing, or failed.
type Result struct {
	Domain         string            `json:"domain"`
	Status         ResultStatus      `json:"status"`
	Reputation     *ReputationFact   `json:"reputation,omitempty"`
	Registration   *RegistrationFact `json:"registration,omitempty"`
	LastAnalyzedAt *time.Time        `json:"lastAnalyzedAt,omitempty"`
	Message        string            `json:"message,omitempty"`

	// Deduplicated is set when an analysis was already in flight.
	Deduplicated bool `json:"-"`
	// Task tracks the analysis started by this call, if any.
	Task Waiter `json:"-"`
}

// CompletedResult builds the final-data shape from a completed record.
func CompletedResult(rec *DomainRecord) *Result {
	return &Result{
		Domain:         rec.DomainName,
		Status:         ResultCompleted,
		Reputation:     rec.Reputation,
		Registration:   rec.Registration,
		LastAnalyzedAt: rec.LastAnalyzedAt,
	}
}

// OnAnalysisResult builds the still-analyzing shape.
func OnAnalysisResult(name string) *Result {
	return &Result{Domain: name, Status: ResultOnAnalysis}
}

// ErrorResult builds the failed shape.
func ErrorResult(name string) *Result {
	return &Result{Domain: name, Status: ResultError, Message: AnalysisFailedMessage}
}

// ResultOf maps a stored record onto the external shape without side effects.
func ResultOf(rec *DomainRecord) *Result {
	switch rec.Status {
	case StatusCompleted:
		if rec.Reputation != nil && rec.Registration != nil {
			return CompletedResult(rec)
		}
		return ErrorResult(rec.DomainName)
	case StatusError:
		return ErrorResult(rec.DomainName)
	default:
		return OnAnalysisResult(rec.DomainName)
	}
}

// IsTerminal returns true once the result will not change without a new analysis.
func (r *Result) IsTerminal() bool {
	return r.Status != ResultOnAnalysis
}

// AnalysisEvent describes the outcome of one detached analysis.
type AnalysisEvent struct {
	Domain     string         `json:"domain"`
	Status     AnalysisStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	OccurredAt time.Time      `json:"occurred_at"`
}
