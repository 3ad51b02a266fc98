package domain

import (
	"strings"
	"time"
)

// AnalysisStatus represents the lifecycle state of a domain record.
type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "pending"
	StatusAnalyzing AnalysisStatus = "analyzing"
	StatusCompleted AnalysisStatus = "completed"
	StatusError     AnalysisStatus = "error"
)

// IsValid reports whether s is one of the known statuses.
func (s AnalysisStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusAnalyzing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// IsTerminal returns true if the status represents the outcome of an analysis.
func (s AnalysisStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// transitions is the complete state table. analyzing is never re-entered
// from itself; that case is the dedup no-op, not a transition.
var transitions = map[AnalysisStatus][]AnalysisStatus{
	StatusPending:   {StatusAnalyzing},
	StatusCompleted: {StatusAnalyzing},
	StatusError:     {StatusAnalyzing},
	StatusAnalyzing: {StatusCompleted, StatusError},
}

// CanTransition reports whether the record may move from one status to another.
func CanTransition(from, to AnalysisStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NormalizeName lower-cases a validated domain name and drops a trailing dot
// so that "Example.COM." and "example.com" share one record.
func NormalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}

// DomainRecord is the persisted state of one analyzed domain.
type DomainRecord struct {
	DomainName     string
	Status         AnalysisStatus
	Reputation     *ReputationFact
	Registration   *RegistrationFact
	AnalysisCount  int
	LastError      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAnalyzedAt *time.Time
}

// IsStale reports whether a completed record is older than window at now.
// A completed record that was never stamped counts as stale.
func (r *DomainRecord) IsStale(now time.Time, window time.Duration) bool {
	if r.Status != StatusCompleted {
		return false
	}
	return IsStale(r.LastAnalyzedAt, now, window)
}

// IsStale reports whether lastAnalyzedAt lies further than window behind now.
func IsStale(lastAnalyzedAt *time.Time, now time.Time, window time.Duration) bool {
	if lastAnalyzedAt == nil {
		return true
	}
	return now.Sub(*lastAnalyzedAt) > window
}

// Facts bundles the results of both providers. They are persisted together.
type Facts struct {
	Reputation   *ReputationFact
	Registration *RegistrationFact
}

// Complete reports whether both facts are present.
func (f Facts) Complete() bool {
	return f.Reputation != nil && f.Registration != nil
}

// StaleCursor is the keyset position of the last row of a stale-records page.
type StaleCursor struct {
	LastAnalyzedAt time.Time
	DomainName     string
}

// StaleQuery selects completed records whose analysis predates Cutoff.
type StaleQuery struct {
	Cutoff time.Time
	Limit  int
	After  *StaleCursor
}

// CursorOf returns the keyset position of rec. Records never analyzed sort
// first and share the zero time.
func CursorOf(rec *DomainRecord) *StaleCursor {
	c := &StaleCursor{DomainName: rec.DomainName}
	if rec.LastAnalyzedAt != nil {
		c.LastAnalyzedAt = *rec.LastAnalyzedAt
	}
	return c
}

// BeginOutcome is the result of the atomic check-and-set into analyzing.
type BeginOutcome struct {
	// AlreadyAnalyzing is set when another caller holds the analysis.
	AlreadyAnalyzing bool
	// Previous is the status the record had before the transition.
	Previous AnalysisStatus
	// Created is set when the record did not exist before this call.
	Created bool
}
