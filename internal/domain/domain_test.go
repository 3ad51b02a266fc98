package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

func TestCanTransition(t *testing.T) {
	all := []domain.AnalysisStatus{
		domain.StatusPending, domain.StatusAnalyzing, domain.StatusCompleted, domain.StatusError,
	}
	allowed := map[[2]domain.AnalysisStatus]bool{
		{domain.StatusPending, domain.StatusAnalyzing}:   true,
		{domain.StatusCompleted, domain.StatusAnalyzing}: true,
		{domain.StatusError, domain.StatusAnalyzing}:     true,
		{domain.StatusAnalyzing, domain.StatusCompleted}: true,
		{domain.StatusAnalyzing, domain.StatusError}:     true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]domain.AnalysisStatus{from, to}]
			assert.Equalf(t, want, domain.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestAnalyzingIsNeverReentered(t *testing.T) {
	assert.False(t, domain.CanTransition(domain.StatusAnalyzing, domain.StatusAnalyzing))
}

func TestDomainRecord_IsStale(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-time.Hour)
	old := now.Add(-48 * time.Hour)

	tests := []struct {
		name string
		rec  domain.DomainRecord
		want bool
	}{
		{"fresh completed", domain.DomainRecord{Status: domain.StatusCompleted, LastAnalyzedAt: &fresh}, false},
		{"old completed", domain.DomainRecord{Status: domain.StatusCompleted, LastAnalyzedAt: &old}, true},
		{"completed never stamped", domain.DomainRecord{Status: domain.StatusCompleted}, true},
		{"old error is not stale", domain.DomainRecord{Status: domain.StatusError, LastAnalyzedAt: &old}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.rec.IsStale(now, 24*time.Hour))
		})
	}
}

func TestResultOf_Shapes(t *testing.T) {
	at := time.Now()
	completed := &domain.DomainRecord{
		DomainName:     "example.com",
		Status:         domain.StatusCompleted,
		Reputation:     &domain.ReputationFact{NumberOfScanners: 70},
		Registration:   &domain.RegistrationFact{OwnerName: "Example"},
		LastAnalyzedAt: &at,
	}

	res := domain.ResultOf(completed)
	assert.Equal(t, domain.ResultCompleted, res.Status)
	assert.Equal(t, 70, res.Reputation.NumberOfScanners)
	assert.True(t, res.IsTerminal())

	res = domain.ResultOf(&domain.DomainRecord{DomainName: "example.com", Status: domain.StatusError})
	assert.Equal(t, domain.ResultError, res.Status)
	assert.Equal(t, domain.AnalysisFailedMessage, res.Message)
	assert.Nil(t, res.Reputation)

	for _, s := range []domain.AnalysisStatus{domain.StatusPending, domain.StatusAnalyzing} {
		res = domain.ResultOf(&domain.DomainRecord{DomainName: "example.com", Status: s})
		assert.Equal(t, domain.ResultOnAnalysis, res.Status)
		assert.False(t, res.IsTerminal())
	}
}

func TestResultOf_PartialFactsNeverSurface(t *testing.T) {
	rec := &domain.DomainRecord{
		DomainName: "example.com",
		Status:     domain.StatusCompleted,
		Reputation: &domain.ReputationFact{},
	}
	res := domain.ResultOf(rec)
	assert.Equal(t, domain.ResultError, res.Status)
	assert.Nil(t, res.Reputation)
}

func TestPersistenceError(t *testing.T) {
	cause := errors.New("connection refused")
	err := domain.NewPersistenceError("begin analysis", cause)

	require.Error(t, err)
	assert.True(t, domain.IsPersistenceError(err))
	assert.ErrorIs(t, err, cause)
	assert.Same(t, err, domain.NewPersistenceError("outer", err))
	assert.NoError(t, domain.NewPersistenceError("noop", nil))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "example.com", domain.NormalizeName("Example.COM."))
	assert.Equal(t, "sub.example.org", domain.NormalizeName(" sub.example.org "))
	assert.Equal(t, "example.com", domain.NormalizeName("example.com"))
}
