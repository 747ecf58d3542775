package ratelimiter

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gmanldn/actifix/internal/apperrors"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

func newTestLimiter(t *testing.T, limits map[string]ProviderLimits) *Limiter {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tickets.db")
	db, err := ticketstore.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db.Conn(), limits)
}

func TestCheckUnknownProviderIsUnconstrained(t *testing.T) {
	l := newTestLimiter(t, map[string]ProviderLimits{})
	require.NoError(t, l.Check("mystery-provider"))
}

func TestCheckDisabledProviderIsUnconstrained(t *testing.T) {
	l := newTestLimiter(t, map[string]ProviderLimits{
		"ollama": {CallsPerMinute: 1, CallsPerHour: 1, CallsPerDay: 1, Enabled: false},
	})
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("ollama"))
		l.Record("ollama", true, nil, nil, "")
	}
}

func TestCheckTripsOnceMinuteBudgetExhausted(t *testing.T) {
	l := newTestLimiter(t, map[string]ProviderLimits{
		"claude_api": {CallsPerMinute: 1, CallsPerHour: 100, CallsPerDay: 100, Enabled: true},
	})

	require.NoError(t, l.Check("claude_api"))
	l.Record("claude_api", true, nil, nil, "")

	err := l.Check("claude_api")
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	require.Equal(t, apperrors.CodeRateLimitExceeded, appErr.Code)
}

func TestSetLimitReplacesProviderBudget(t *testing.T) {
	l := newTestLimiter(t, map[string]ProviderLimits{})
	l.SetLimit("custom", ProviderLimits{CallsPerMinute: 1, CallsPerHour: 1, CallsPerDay: 1, Enabled: true})

	require.NoError(t, l.Check("custom"))
	l.Record("custom", true, nil, nil, "")
	require.Error(t, l.Check("custom"))
}

func TestGetUsageStatsReflectsRecordedCalls(t *testing.T) {
	l := newTestLimiter(t, map[string]ProviderLimits{
		"openai": {CallsPerMinute: 100, CallsPerHour: 100, CallsPerDay: 100, Enabled: true},
	})
	l.Record("openai", true, nil, nil, "")
	l.Record("openai", false, nil, nil, "boom")

	stats, err := l.GetUsageStats("openai")
	require.NoError(t, err)
	require.Equal(t, 2, stats.CallsLastMinute)
	require.Equal(t, 1, stats.SuccessfulCalls)
	require.Equal(t, 1, stats.FailedCalls)
}

func TestDefaultLimitsDisablesLocalProviders(t *testing.T) {
	limits := DefaultLimits()
	require.True(t, limits["openai"].Enabled)
	require.True(t, limits["claude_api"].Enabled)
	require.False(t, limits["claude_local"].Enabled)
	require.False(t, limits["ollama"].Enabled)
}
