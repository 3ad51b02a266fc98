package virustotal

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
	"github.com/Harsh-BH/Intelligenter/internal/provider"
)

// Defaults applied when a field of the payload is missing or malformed.
const (
	DefaultDetections     = 0
	DefaultScanners       = 0
	DefaultDetectedEngine = "CLEAN MX"
	DefaultLastUpdated    = "Unknown"

	// DateLayout formats lastUpdated, e.g. 2026.10.18.
	DateLayout = "2006.01.02"

	maliciousCategory = "malicious"
	syntheticScanners = 70
)

// ParseReputation reduces a /domains/{name} payload to a ReputationFact.
// Only a body that is not a JSON object is an error; every missing or
// mistyped field falls back to its default.
func ParseReputation(body []byte) (*domain.ReputationFact, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, provider.NewProviderError(provider.ErrorBadData, provider.NameVirusTotal, "decode payload", err)
	}

	attrs := asMap(asMap(payload["data"])["attributes"])
	stats := asMap(attrs["last_analysis_stats"])
	results := asMap(attrs["last_analysis_results"])

	fact := &domain.ReputationFact{
		NumberOfDetection: DefaultDetections,
		NumberOfScanners:  DefaultScanners,
		DetectedEngines:   DefaultDetectedEngine,
		LastUpdated:       DefaultLastUpdated,
	}

	if n, ok := asInt(stats["malicious"]); ok && n >= 0 {
		fact.NumberOfDetection = n
	}
	if results != nil {
		fact.NumberOfScanners = len(results)
	}
	if engine := firstMaliciousEngine(results); engine != "" {
		fact.DetectedEngines = engine
	}
	if ts, ok := asInt(attrs["last_analysis_date"]); ok && ts > 0 {
		fact.LastUpdated = time.Unix(int64(ts), 0).UTC().Format(DateLayout)
	}

	return fact, nil
}

// SyntheticFact is the placeholder used in degraded mode. It is the same on
// every call so degraded results can be recognised and compared.
func SyntheticFact() *domain.ReputationFact {
	return &domain.ReputationFact{
		NumberOfDetection: DefaultDetections,
		NumberOfScanners:  syntheticScanners,
		DetectedEngines:   DefaultDetectedEngine,
		LastUpdated:       DefaultLastUpdated,
		Synthetic:         true,
	}
}

// firstMaliciousEngine returns the alphabetically first engine that flagged
// the domain, so the result does not depend on map order.
func firstMaliciousEngine(results map[string]any) string {
	engines := make([]string, 0, len(results))
	for name := range results {
		engines = append(engines, name)
	}
	sort.Strings(engines)

	for _, name := range engines {
		if category, _ := asMap(results[name])["category"].(string); category == maliciousCategory {
			return name
		}
	}
	return ""
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asInt(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}
