package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, existed := os.LookupEnv(k)
		os.Unsetenv(k)
		if existed {
			t.Cleanup(func() { os.Setenv(k, old) })
		}
	}
}

func TestDefaultIsInternallyValid(t *testing.T) {
	require.Empty(t, validate(Default()))
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	clearEnv(t, "ACTIFIX_CAPTURE_ENABLED", "ACTIFIX_MAX_P2_TICKETS_PER_HOUR", "ACTIFIX_WEBHOOK_URLS", "ACTIFIX_CORS_ORIGINS")
	os.Setenv("ACTIFIX_CAPTURE_ENABLED", "false")
	os.Setenv("ACTIFIX_MAX_P2_TICKETS_PER_HOUR", "5")
	os.Setenv("ACTIFIX_WEBHOOK_URLS", "https://a.example,https://b.example")
	os.Setenv("ACTIFIX_CORS_ORIGINS", "https://app.example")

	cfg, errs := Load(true)
	require.Empty(t, errs)
	require.False(t, cfg.CaptureEnabled)
	require.Equal(t, 5, cfg.Throttle.MaxP2PerHour)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WebhookURLs)
	require.Equal(t, []string{"https://app.example"}, cfg.CORSOrigins)
}

func TestLoadRejectsNonNumericThreshold(t *testing.T) {
	clearEnv(t, "ACTIFIX_MAX_P2_TICKETS_PER_HOUR")
	os.Setenv("ACTIFIX_MAX_P2_TICKETS_PER_HOUR", "not-a-number")

	_, errs := Load(true)
	require.NotEmpty(t, errs)
}

func TestLoadTolerantModeCollectsAllErrors(t *testing.T) {
	clearEnv(t, "ACTIFIX_MAX_P2_TICKETS_PER_HOUR", "ACTIFIX_MAX_P3_TICKETS_PER_4H")
	os.Setenv("ACTIFIX_MAX_P2_TICKETS_PER_HOUR", "bad")
	os.Setenv("ACTIFIX_MAX_P3_TICKETS_PER_4H", "also-bad")

	_, errs := Load(false)
	require.Len(t, errs, 2)
}

func TestValidateCatchesNonMonotonicSLA(t *testing.T) {
	cfg := Default()
	cfg.SLA.P0 = 10
	cfg.SLA.P1 = 1
	require.NotEmpty(t, validate(cfg))
}

func TestLoadAppliesMinCoverageOverride(t *testing.T) {
	clearEnv(t, "ACTIFIX_MIN_COVERAGE")
	os.Setenv("ACTIFIX_MIN_COVERAGE", "95")

	cfg, errs := Load(true)
	require.Empty(t, errs)
	require.Equal(t, 95.0, cfg.MinCoveragePercent)
}

func TestValidateRejectsCoverageOutOfRange(t *testing.T) {
	cfg := Default()
	cfg.MinCoveragePercent = 150
	require.NotEmpty(t, validate(cfg))

	cfg.MinCoveragePercent = -1
	require.NotEmpty(t, validate(cfg))

	cfg.MinCoveragePercent = 0
	require.Empty(t, validate(cfg))

	cfg.MinCoveragePercent = 100
	require.Empty(t, validate(cfg))
}

func TestSanitizeStringStripsControlCharacters(t *testing.T) {
	require.Equal(t, "clean", sanitizeString("cl\x00ea\x1fn"))
}

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, splitCSV(" a ,, b ,"))
}
