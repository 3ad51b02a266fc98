// Package events publishes the outcome of detached analyses.
package events

import (
	"context"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
)

// Publisher emits analysis outcome events. Publishing is best effort: a
// failure never changes the outcome of the analysis itself.
type Publisher interface {
	PublishOutcome(ctx context.Context, event domain.AnalysisEvent) error
	Close() error
}

var _ Publisher = Noop{}

// Noop discards events. It is used when no broker is configured.
type Noop struct{}

func (Noop) PublishOutcome(context.Context, domain.AnalysisEvent) error { return nil }

func (Noop) Close() error { return nil }
