package whois

import (
	"strings"
	"time"

	whoisparser "github.com/likexian/whois-parser"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

const (
	// DefaultValue fills any registration field the record does not carry.
	DefaultValue = "Unknown"

	// DateLayout formats dateCreated and expiredOn, e.g. 2026.10.18.
	DateLayout = "2006.01.02"

	syntheticCreated = "1997.09.15"
	syntheticOwner   = "MarkMonitor, Inc."
	syntheticExpiry  = "2028.09.13"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
}

// ParseRegistration reduces a raw WHOIS response to a RegistrationFact.
// Records the parser cannot read yield an all-default fact rather than an error.
func ParseRegistration(raw string) *domain.RegistrationFact {
	fact := &domain.RegistrationFact{
		DateCreated: DefaultValue,
		OwnerName:   DefaultValue,
		ExpiredOn:   DefaultValue,
	}

	info, err := whoisparser.Parse(raw)
	if err != nil {
		return fact
	}

	if info.Domain != nil {
		if v := normalizeDate(info.Domain.CreatedDate); v != "" {
			fact.DateCreated = v
		}
		if v := normalizeDate(info.Domain.ExpirationDate); v != "" {
			fact.ExpiredOn = v
		}
	}
	if info.Registrant != nil {
		switch {
		case strings.TrimSpace(info.Registrant.Organization) != "":
			fact.OwnerName = strings.TrimSpace(info.Registrant.Organization)
		case strings.TrimSpace(info.Registrant.Name) != "":
			fact.OwnerName = strings.TrimSpace(info.Registrant.Name)
		}
	}

	return fact
}

// normalizeDate renders known date formats with DateLayout and passes
// anything else through untouched.
func normalizeDate(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format(DateLayout)
		}
	}
	return raw
}

// SyntheticFact is the placeholder used in degraded mode. It is the same on
// every call so degraded results can be recognised and compared.
func SyntheticFact() *domain.RegistrationFact {
	return &domain.RegistrationFact{
		DateCreated: syntheticCreated,
		OwnerName:   syntheticOwner,
		ExpiredOn:   syntheticExpiry,
		Synthetic:   true,
	}
}
