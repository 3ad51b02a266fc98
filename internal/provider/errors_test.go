package provider_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Harsh-BH/Intelligenter/internal/provider"
)

func TestNewProviderError_Retryable(t *testing.T) {
	tests := []struct {
		category  provider.ErrorCategory
		retryable bool
	}{
		{provider.ErrorTimeout, true},
		{provider.ErrorProviderOutage, true},
		{provider.ErrorRateLimited, true},
		{provider.ErrorAuthentication, false},
		{provider.ErrorNotFound, false},
		{provider.ErrorBadData, false},
		{provider.ErrorInternal, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.category), func(t *testing.T) {
			err := provider.NewProviderError(tc.category, provider.NameVirusTotal, "request failed", nil)
			assert.Equal(t, tc.retryable, err.Retryable)
			assert.Equal(t, tc.retryable, provider.IsRetryable(err))
		})
	}
}

func TestProviderError_WrapsUnderlying(t *testing.T) {
	err := provider.NewProviderError(provider.ErrorTimeout, provider.NameWhois, "query", context.DeadlineExceeded)
	wrapped := fmt.Errorf("analysis: %w", err)

	assert.ErrorIs(t, wrapped, context.DeadlineExceeded)
	assert.True(t, provider.IsProviderError(wrapped))
	assert.Equal(t, provider.ErrorTimeout, provider.GetCategory(wrapped))
	assert.Contains(t, err.Error(), "provider whois [timeout]")
}

func TestGetCategory_PlainError(t *testing.T) {
	assert.Equal(t, provider.ErrorInternal, provider.GetCategory(errors.New("boom")))
	assert.False(t, provider.IsRetryable(errors.New("boom")))
}
