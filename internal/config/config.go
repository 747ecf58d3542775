// Package config loads and validates the typed Actifix configuration from
// environment variables, applying the sanitisation rules spec'd for
// ACTIFIX_* values before parsing them.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// SLAHours holds the per-priority SLA breach thresholds, P0 the tightest.
type SLAHours struct {
	P0 float64
	P1 float64
	P2 float64
	P3 float64
}

// ThrottleLimits holds the ticket-creation throttling caps from spec C7.
type ThrottleLimits struct {
	MaxP2PerHour        int
	MaxP3Per4Hours      int
	MaxP4PerDay         int
	EmergencyThreshold  int
	EmergencyWindowMins int
}

// Config is the fully resolved, validated Actifix configuration.
type Config struct {
	CaptureEnabled   bool
	EnforceRaiseAF   bool
	MaxMessageLength int

	SLA       SLAHours
	Throttle  ThrottleLimits
	AIEnabled bool

	AIProvider string
	AIAPIKey   string
	AIModel    string

	WebhookURLs            []string
	CompletionHookScripts   []string
	CORSOrigins            []string
	MaxLogSizeBytes        int64
	RetentionDays          int
	DefaultLeaseSeconds    int
	ModuleUnregisterTimeout int // seconds
	MinCoveragePercent      float64
}

// Default returns the baseline configuration before environment overlays.
func Default() Config {
	return Config{
		CaptureEnabled:   true,
		EnforceRaiseAF:   false,
		MaxMessageLength: 4000,
		SLA: SLAHours{
			P0: 1,
			P1: 4,
			P2: 24,
			P3: 72,
		},
		Throttle: ThrottleLimits{
			MaxP2PerHour:        20,
			MaxP3Per4Hours:      40,
			MaxP4PerDay:         100,
			EmergencyThreshold:  50,
			EmergencyWindowMins: 10,
		},
		AIEnabled:               true,
		CORSOrigins:             []string{"*"},
		MaxLogSizeBytes:         8 * 1024 * 1024,
		RetentionDays:           90,
		DefaultLeaseSeconds:     3600,
		ModuleUnregisterTimeout: 5,
		MinCoveragePercent:      80.0,
	}
}

// Load resolves Config from the process environment. In fail-fast mode the
// first validation error is returned and cfg is the zero value merged with
// whatever was parsed so far; in tolerant mode every validation error is
// collected and a best-effort Config is always returned.
func Load(failFast bool) (Config, []error) {
	cfg := Default()
	var errs []error

	fail := func(err error) bool {
		errs = append(errs, err)
		return failFast
	}

	if v, ok := lookupBool("ACTIFIX_CAPTURE_ENABLED"); ok {
		cfg.CaptureEnabled = v
	}
	if v, ok := lookupBool("ACTIFIX_ENFORCE_RAISE_AF"); ok {
		cfg.EnforceRaiseAF = v
	}
	if v, ok := lookupBool("ACTIFIX_AI_ENABLED"); ok {
		cfg.AIEnabled = v
	}

	cfg.AIProvider = sanitizeString(os.Getenv("ACTIFIX_AI_PROVIDER"))
	cfg.AIAPIKey = sanitizeString(os.Getenv("ACTIFIX_AI_API_KEY"))
	cfg.AIModel = sanitizeString(os.Getenv("ACTIFIX_AI_MODEL"))

	if raw := os.Getenv("ACTIFIX_WEBHOOK_URLS"); raw != "" {
		cfg.WebhookURLs = splitCSV(raw)
	}
	if raw := os.Getenv("ACTIFIX_COMPLETION_HOOK_SCRIPTS"); raw != "" {
		cfg.CompletionHookScripts = splitCSV(raw)
	}
	if raw := os.Getenv("ACTIFIX_CORS_ORIGINS"); raw != "" {
		cfg.CORSOrigins = splitCSV(raw)
	}

	if v, ok, err := lookupFloat("ACTIFIX_SLA_P0_HOURS"); err != nil {
		if fail(err) {
			return cfg, errs
		}
	} else if ok {
		cfg.SLA.P0 = v
	}
	if v, ok, err := lookupFloat("ACTIFIX_SLA_P1_HOURS"); err != nil {
		if fail(err) {
			return cfg, errs
		}
	} else if ok {
		cfg.SLA.P1 = v
	}
	if v, ok, err := lookupFloat("ACTIFIX_SLA_P2_HOURS"); err != nil {
		if fail(err) {
			return cfg, errs
		}
	} else if ok {
		cfg.SLA.P2 = v
	}
	if v, ok, err := lookupFloat("ACTIFIX_SLA_P3_HOURS"); err != nil {
		if fail(err) {
			return cfg, errs
		}
	} else if ok {
		cfg.SLA.P3 = v
	}

	if v, ok, err := lookupFloat("ACTIFIX_MIN_COVERAGE"); err != nil {
		if fail(err) {
			return cfg, errs
		}
	} else if ok {
		cfg.MinCoveragePercent = v
	}

	if v, ok, err := lookupInt("ACTIFIX_MAX_P2_TICKETS_PER_HOUR"); err != nil {
		if fail(err) {
			return cfg, errs
		}
	} else if ok {
		cfg.Throttle.MaxP2PerHour = v
	}
	if v, ok, err := lookupInt("ACTIFIX_MAX_P3_TICKETS_PER_4H"); err != nil {
		if fail(err) {
			return cfg, errs
		}
	} else if ok {
		cfg.Throttle.MaxP3Per4Hours = v
	}
	if v, ok, err := lookupInt("ACTIFIX_MAX_P4_TICKETS_PER_DAY"); err != nil {
		if fail(err) {
			return cfg, errs
		}
	} else if ok {
		cfg.Throttle.MaxP4PerDay = v
	}
	if v, ok, err := lookupInt("ACTIFIX_EMERGENCY_TICKET_THRESHOLD"); err != nil {
		if fail(err) {
			return cfg, errs
		}
	} else if ok {
		cfg.Throttle.EmergencyThreshold = v
	}
	if v, ok, err := lookupInt("ACTIFIX_EMERGENCY_WINDOW_MINUTES"); err != nil {
		if fail(err) {
			return cfg, errs
		}
	} else if ok {
		cfg.Throttle.EmergencyWindowMins = v
	}

	for _, err := range validate(cfg) {
		if fail(err) {
			return cfg, errs
		}
	}

	return cfg, errs
}

func validate(cfg Config) []error {
	var errs []error
	if cfg.MaxMessageLength <= 0 {
		errs = append(errs, fmt.Errorf("max message length must be positive, got %d", cfg.MaxMessageLength))
	}
	if !(cfg.SLA.P0 < cfg.SLA.P1 && cfg.SLA.P1 < cfg.SLA.P2 && cfg.SLA.P2 < cfg.SLA.P3) {
		errs = append(errs, fmt.Errorf("SLA thresholds must be monotonic P0<P1<P2<P3, got %+v", cfg.SLA))
	}
	if cfg.MaxLogSizeBytes <= 0 {
		errs = append(errs, fmt.Errorf("max log size must be positive, got %d", cfg.MaxLogSizeBytes))
	}
	if cfg.Throttle.MaxP2PerHour <= 0 || cfg.Throttle.MaxP3Per4Hours <= 0 || cfg.Throttle.MaxP4PerDay <= 0 {
		errs = append(errs, fmt.Errorf("throttle caps must be positive, got %+v", cfg.Throttle))
	}
	if cfg.MinCoveragePercent < 0 || cfg.MinCoveragePercent > 100 {
		errs = append(errs, fmt.Errorf("min coverage percent must be between 0 and 100, got %v", cfg.MinCoveragePercent))
	}
	return errs
}

var controlChars = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)

// sanitizeString strips null bytes and control characters per spec C1.
func sanitizeString(s string) string {
	return controlChars.ReplaceAllString(s, "")
}

func splitCSV(raw string) []string {
	parts := strings.Split(sanitizeString(raw), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

var truthy = map[string]bool{"true": true, "1": true, "yes": true, "on": true}
var falsy = map[string]bool{"false": true, "0": true, "no": true, "off": true}

func lookupBool(key string) (bool, bool) {
	raw, present := os.LookupEnv(key)
	if !present {
		return false, false
	}
	v := strings.ToLower(strings.TrimSpace(sanitizeString(raw)))
	if truthy[v] {
		return true, true
	}
	if falsy[v] {
		return false, true
	}
	return false, false
}

var numericPattern = regexp.MustCompile(`^[+-]?[0-9]*\.?[0-9]+$`)

func lookupFloat(key string) (float64, bool, error) {
	raw, present := os.LookupEnv(key)
	if !present {
		return 0, false, nil
	}
	v := strings.TrimSpace(sanitizeString(raw))
	if !numericPattern.MatchString(v) {
		return 0, false, fmt.Errorf("%s: %q is not numeric", key, raw)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return f, true, nil
}

func lookupInt(key string) (int, bool, error) {
	f, ok, err := lookupFloat(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	return int(f), true, nil
}
