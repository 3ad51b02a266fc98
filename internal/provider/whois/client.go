// Package whois implements the registration provider on top of raw WHOIS lookups.
package whois

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/likexian/whois"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
	"github.com/Harsh-BH/Intelligenter/internal/metrics"
	"github.com/Harsh-BH/Intelligenter/internal/provider"
	"github.com/Harsh-BH/Intelligenter/internal/retry"
)

var _ provider.RegistrationProvider = (*Client)(nil)

// LookupFunc returns the raw WHOIS text for a domain.
type LookupFunc func(ctx context.Context, domainName string) (string, error)

// Config holds the WHOIS client settings.
type Config struct {
	// Timeout bounds a single lookup; a timed out lookup is a failed attempt.
	Timeout time.Duration
	Retry   retry.Policy
	// Synthetic returns a placeholder fact instead of failing once retries are spent.
	Synthetic bool
}

// Client resolves registration data over the WHOIS protocol.
type Client struct {
	cfg    Config
	lookup LookupFunc
	logger *zap.Logger
}

// NewClient creates a WHOIS client. A nil lookup queries the public WHOIS servers.
func NewClient(cfg Config, lookup LookupFunc, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if lookup == nil {
		lookup = networkLookup(cfg.Timeout)
	}
	return &Client{
		cfg:    cfg,
		lookup: lookup,
		logger: logger,
	}
}

// networkLookup wraps the blocking likexian client so it honours ctx.
func networkLookup(timeout time.Duration) LookupFunc {
	wc := whois.NewClient().SetTimeout(timeout)
	return func(ctx context.Context, domainName string) (string, error) {
		type answer struct {
			raw string
			err error
		}
		ch := make(chan answer, 1)
		go func() {
			raw, err := wc.Whois(domainName)
			ch <- answer{raw: raw, err: err}
		}()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case a := <-ch:
			return a.raw, a.err
		}
	}
}

// AnalyzeRegistration looks up and normalizes the registration of domainName.
func (c *Client) AnalyzeRegistration(ctx context.Context, domainName string) (*domain.RegistrationFact, error) {
	var fact *domain.RegistrationFact
	err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		f, err := c.fetch(ctx, domainName)
		if err != nil {
			metrics.ProviderAttempts.WithLabelValues(provider.NameWhois, string(provider.GetCategory(err))).Inc()
			if !provider.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		metrics.ProviderAttempts.WithLabelValues(provider.NameWhois, "ok").Inc()
		fact = f
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("Retrying WHOIS lookup",
			zap.String("domain", domainName),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
	})
	if err == nil {
		return fact, nil
	}

	c.logger.Error("WHOIS analysis failed", zap.String("domain", domainName), zap.Error(err))
	if c.cfg.Synthetic {
		c.logger.Warn("Using synthetic WHOIS data", zap.String("domain", domainName))
		return SyntheticFact(), nil
	}

	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		return nil, pe
	}
	return nil, provider.NewProviderError(provider.ErrorTimeout, provider.NameWhois, "analysis aborted", err)
}

func (c *Client) fetch(ctx context.Context, domainName string) (*domain.RegistrationFact, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	raw, err := c.lookup(reqCtx, domainName)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, provider.NewProviderError(provider.ErrorTimeout, provider.NameWhois, "lookup timed out", err)
		}
		return nil, provider.NewProviderError(provider.ErrorProviderOutage, provider.NameWhois, "lookup failed", err)
	}
	if strings.TrimSpace(raw) == "" {
		return nil, provider.NewProviderError(provider.ErrorProviderOutage, provider.NameWhois, "empty response", nil)
	}

	return ParseRegistration(raw), nil
}
