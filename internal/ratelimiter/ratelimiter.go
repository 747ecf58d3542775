// Package ratelimiter enforces per-AI-provider call budgets over three
// stacked windows (minute, hour, day), independently disablable, so a
// runaway dispatch loop can't exhaust an API budget or run up cost.
package ratelimiter

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/gmanldn/actifix/internal/apperrors"
)

// ProviderLimits is a single provider's three-window budget.
type ProviderLimits struct {
	CallsPerMinute int
	CallsPerHour   int
	CallsPerDay    int
	Enabled        bool
}

// DefaultLimits mirrors the conservative provider defaults from
// original_source/security/rate_limiter.py.
func DefaultLimits() map[string]ProviderLimits {
	return map[string]ProviderLimits{
		"openai":       {CallsPerMinute: 3, CallsPerHour: 30, CallsPerDay: 200, Enabled: true},
		"claude_api":   {CallsPerMinute: 5, CallsPerHour: 50, CallsPerDay: 300, Enabled: true},
		"claude_local": {CallsPerMinute: 10, CallsPerHour: 200, CallsPerDay: 2000, Enabled: false},
		"ollama":       {CallsPerMinute: 10, CallsPerHour: 200, CallsPerDay: 2000, Enabled: false},
	}
}

type providerBuckets struct {
	limits  ProviderLimits
	minute  *rate.Limiter
	hour    *rate.Limiter
	day     *rate.Limiter
}

func newBuckets(limits ProviderLimits) *providerBuckets {
	return &providerBuckets{
		limits: limits,
		minute: rate.NewLimiter(rate.Every(time.Minute/time.Duration(max1(limits.CallsPerMinute))), max1(limits.CallsPerMinute)),
		hour:   rate.NewLimiter(rate.Every(time.Hour/time.Duration(max1(limits.CallsPerHour))), max1(limits.CallsPerHour)),
		day:    rate.NewLimiter(rate.Every(24*time.Hour/time.Duration(max1(limits.CallsPerDay))), max1(limits.CallsPerDay)),
	}
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// Limiter is the per-provider token-bucket rate limiter plus the
// durable api_calls accounting ledger.
type Limiter struct {
	conn *sql.DB

	mu       sync.Mutex
	byProvider map[string]*providerBuckets
}

// New wraps the ticket store's shared connection; limits seeds the
// per-provider configuration (DefaultLimits() if nil).
func New(conn *sql.DB, limits map[string]ProviderLimits) *Limiter {
	if limits == nil {
		limits = DefaultLimits()
	}
	l := &Limiter{conn: conn, byProvider: make(map[string]*providerBuckets, len(limits))}
	for name, lim := range limits {
		l.byProvider[name] = newBuckets(lim)
	}
	return l
}

// SetLimit updates or adds a provider's budget.
func (l *Limiter) SetLimit(provider string, limits ProviderLimits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byProvider[provider] = newBuckets(limits)
}

// Check reports whether a call to provider would exceed any enabled
// window's budget, without consuming a token. Unknown providers are
// unconstrained.
func (l *Limiter) Check(provider string) error {
	l.mu.Lock()
	buckets, ok := l.byProvider[provider]
	l.mu.Unlock()
	if !ok || !buckets.limits.Enabled {
		return nil
	}

	for window, lim := range map[string]*rate.Limiter{"minute": buckets.minute, "hour": buckets.hour, "day": buckets.day} {
		if !peek(lim) {
			return apperrors.RateLimitExceeded(provider, window)
		}
	}
	return nil
}

// peek reports whether a token would currently be available, without
// consuming it: reserve then immediately cancel if the reservation
// isn't free.
func peek(lim *rate.Limiter) bool {
	r := lim.Reserve()
	if !r.OK() {
		return false
	}
	delay := r.Delay()
	r.Cancel()
	return delay == 0
}

// Record consumes a token from every enabled window and appends a row
// to the durable ledger, then prunes entries older than 24h.
func (l *Limiter) Record(provider string, success bool, tokensUsed *int, costUSD *float64, callErr string) {
	l.mu.Lock()
	buckets, ok := l.byProvider[provider]
	l.mu.Unlock()
	if ok && buckets.limits.Enabled {
		buckets.minute.Allow()
		buckets.hour.Allow()
		buckets.day.Allow()
	}

	if l.conn == nil {
		return
	}
	now := time.Now().Format(time.RFC3339Nano)
	_, _ = l.conn.Exec(`INSERT INTO api_calls (provider, timestamp, success, tokens_used, cost_usd, error) VALUES (?,?,?,?,?,?)`,
		provider, now, success, tokensUsed, costUSD, nullIfEmpty(callErr))
	cutoff := time.Now().Add(-24 * time.Hour).Format(time.RFC3339Nano)
	_, _ = l.conn.Exec(`DELETE FROM api_calls WHERE timestamp < ?`, cutoff)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// UsageStats reports the ledger-derived call counts for a provider.
type UsageStats struct {
	Provider         string
	CallsLastMinute  int
	CallsLastHour    int
	CallsLastDay     int
	SuccessfulCalls  int
	FailedCalls      int
}

// GetUsageStats queries the durable ledger for a provider's usage.
func (l *Limiter) GetUsageStats(provider string) (UsageStats, error) {
	stats := UsageStats{Provider: provider}
	if l.conn == nil {
		return stats, nil
	}

	now := time.Now()
	queries := []struct {
		since time.Time
		dest  *int
	}{
		{now.Add(-time.Minute), &stats.CallsLastMinute},
		{now.Add(-time.Hour), &stats.CallsLastHour},
		{now.Add(-24 * time.Hour), &stats.CallsLastDay},
	}
	for _, q := range queries {
		if err := l.conn.QueryRow(`SELECT COUNT(*) FROM api_calls WHERE provider = ? AND timestamp >= ?`,
			provider, q.since.Format(time.RFC3339Nano)).Scan(q.dest); err != nil {
			return stats, fmt.Errorf("ratelimiter: usage stats: %w", err)
		}
	}

	if err := l.conn.QueryRow(`SELECT COUNT(*) FROM api_calls WHERE provider = ? AND success = 1`, provider).Scan(&stats.SuccessfulCalls); err != nil {
		return stats, fmt.Errorf("ratelimiter: usage stats: %w", err)
	}
	if err := l.conn.QueryRow(`SELECT COUNT(*) FROM api_calls WHERE provider = ? AND success = 0`, provider).Scan(&stats.FailedCalls); err != nil {
		return stats, fmt.Errorf("ratelimiter: usage stats: %w", err)
	}

	return stats, nil
}
