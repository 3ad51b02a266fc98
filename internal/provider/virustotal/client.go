// Package virustotal implements the reputation provider on the VirusTotal v3 API.
package virustotal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Harsh-BH/Intelligenter/internal/domain"
	"github.com/Harsh-BH/Intelligenter/internal/metrics"
	"github.com/Harsh-BH/Intelligenter/internal/provider"
	"github.com/Harsh-BH/Intelligenter/internal/retry"
)

const (
	DefaultBaseURL = "https://www.virustotal.com/api/v3"

	apiKeyHeader = "x-apikey"
	maxBodyBytes = 4 << 20
)

var _ provider.ReputationProvider = (*Client)(nil)

// Config holds the VirusTotal client settings.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout bounds a single request; a timed out request is a failed attempt.
	Timeout time.Duration
	// RatePerMinute limits outbound requests. Zero disables the limit.
	RatePerMinute int
	Retry         retry.Policy
	// Synthetic returns a placeholder fact instead of failing once retries are spent.
	Synthetic bool
}

// Client calls the VirusTotal domain report endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a VirusTotal client. A nil httpClient uses http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
	}
}

// AnalyzeReputation fetches and normalizes the reputation of domainName.
func (c *Client) AnalyzeReputation(ctx context.Context, domainName string) (*domain.ReputationFact, error) {
	if c.cfg.APIKey == "" {
		c.logger.Warn("VirusTotal API key missing, using synthetic data", zap.String("domain", domainName))
		return SyntheticFact(), nil
	}

	var fact *domain.ReputationFact
	err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) error {
		f, err := c.fetch(ctx, domainName)
		if err != nil {
			metrics.ProviderAttempts.WithLabelValues(provider.NameVirusTotal, string(provider.GetCategory(err))).Inc()
			if !provider.IsRetryable(err) {
				return retry.Permanent(err)
			}
			return err
		}
		metrics.ProviderAttempts.WithLabelValues(provider.NameVirusTotal, "ok").Inc()
		fact = f
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("Retrying VirusTotal request",
			zap.String("domain", domainName),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
	})
	if err == nil {
		return fact, nil
	}

	c.logger.Error("VirusTotal analysis failed", zap.String("domain", domainName), zap.Error(err))
	if c.cfg.Synthetic {
		c.logger.Warn("Using synthetic VirusTotal data", zap.String("domain", domainName))
		return SyntheticFact(), nil
	}

	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		return nil, pe
	}
	return nil, provider.NewProviderError(provider.ErrorTimeout, provider.NameVirusTotal, "analysis aborted", err)
}

func (c *Client) fetch(ctx context.Context, domainName string) (*domain.ReputationFact, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, provider.NewProviderError(provider.ErrorRateLimited, provider.NameVirusTotal, "rate limiter wait", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/domains/%s", c.cfg.BaseURL, url.PathEscape(domainName))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, provider.NewProviderError(provider.ErrorInternal, provider.NameVirusTotal, "build request", err)
	}
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, provider.NewProviderError(provider.ErrorTimeout, provider.NameVirusTotal, "request timed out", err)
		}
		return nil, provider.NewProviderError(provider.ErrorProviderOutage, provider.NameVirusTotal, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, provider.NewProviderError(provider.ErrorProviderOutage, provider.NameVirusTotal, "read body", err)
	}

	if cat, failed := classifyStatus(resp.StatusCode); failed {
		return nil, provider.NewProviderError(cat, provider.NameVirusTotal, fmt.Sprintf("unexpected status %d", resp.StatusCode), nil)
	}

	return ParseReputation(body)
}

func classifyStatus(code int) (provider.ErrorCategory, bool) {
	switch {
	case code == http.StatusOK:
		return "", false
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return provider.ErrorAuthentication, true
	case code == http.StatusNotFound:
		return provider.ErrorNotFound, true
	case code == http.StatusTooManyRequests:
		return provider.ErrorRateLimited, true
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return provider.ErrorTimeout, true
	case code >= http.StatusInternalServerError:
		return provider.ErrorProviderOutage, true
	default:
		return provider.ErrorBadData, true
	}
}
