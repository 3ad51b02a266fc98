// Package provider defines the contracts of the external data sources.
package provider

import (
	"context"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

const (
	NameVirusTotal = "virustotal"
	NameWhois      = "whois"
)

// ReputationProvider produces reputation facts for a domain.
// Failures after the internal retry budget are *ProviderError.
type ReputationProvider interface {
	AnalyzeReputation(ctx context.Context, domainName string) (*domain.ReputationFact, error)
}

// RegistrationProvider produces registration facts for a domain.
// Failures after the internal retry budget are *ProviderError.
type RegistrationProvider interface {
	AnalyzeRegistration(ctx context.Context, domainName string) (*domain.RegistrationFact, error)
}
