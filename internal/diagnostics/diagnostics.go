// Package diagnostics bundles system state, recent tickets, logs, and
// configuration into a ZIP file for offline troubleshooting. Grounded
// on original_source's diagnostics.py.
package diagnostics

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gmanldn/actifix/internal/config"
	"github.com/gmanldn/actifix/internal/eventlog"
	"github.com/gmanldn/actifix/internal/health"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

const (
	recentTicketsLimit  = 50
	messagePreviewChars = 200
	recentLogMaxLines   = 500
)

// Bundle is the JSON payload written to diagnostics.json inside the
// exported ZIP.
type Bundle struct {
	SystemInfo    SystemInfo              `json:"system_info"`
	Config        ConfigSummary           `json:"config"`
	TicketStats   ticketstore.Stats       `json:"ticket_stats"`
	Health        HealthSummary           `json:"health"`
	RecentTickets []RecentTicket          `json:"recent_tickets,omitempty"`
}

// SystemInfo captures host/runtime facts, Go's analogue of platform.platform().
type SystemInfo struct {
	OS           string `json:"os"`
	Arch         string `json:"arch"`
	GoVersion    string `json:"go_version"`
	NumCPU       int    `json:"num_cpu"`
	Hostname     string `json:"hostname"`
	Timestamp    string `json:"timestamp"`
}

// ConfigSummary is the non-sensitive subset of config.Config worth
// shipping in a support bundle.
type ConfigSummary struct {
	CaptureEnabled  bool   `json:"capture_enabled"`
	EnforceRaiseAF  bool   `json:"enforce_raise_af"`
	AIEnabled       bool   `json:"ai_enabled"`
	AIProvider      string `json:"ai_provider"`
	ThrottleEnabled bool   `json:"ticket_throttling_enabled"`
	HasWebhooks     bool   `json:"webhook_enabled"`
	HasCompletionHooks bool `json:"completion_hooks_enabled"`
}

// HealthSummary mirrors the original's {overall_status, components}
// shape rather than the full Snapshot, since a support bundle only
// needs the headline.
type HealthSummary struct {
	OverallStatus string            `json:"overall_status"`
	Components    map[string]string `json:"components"`
}

// RecentTicket is a sanitized, preview-truncated ticket projection.
type RecentTicket struct {
	ID              string `json:"id"`
	Priority        string `json:"priority"`
	ErrorType       string `json:"error_type"`
	Source          string `json:"source"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
	MessagePreview  string `json:"message_preview"`
}

// Exporter assembles diagnostics bundles from the live system state.
type Exporter struct {
	store   *ticketstore.Store
	checker *health.Checker
	events  *eventlog.Log
	cfg     config.Config
	logsDir string
	baseDir string
}

// New builds an Exporter over the given dependencies.
func New(store *ticketstore.Store, checker *health.Checker, events *eventlog.Log, cfg config.Config, logsDir, baseDir string) *Exporter {
	return &Exporter{store: store, checker: checker, events: events, cfg: cfg, logsDir: logsDir, baseDir: baseDir}
}

// Collect gathers diagnostics without writing any files; Summary uses
// this to print to stdout, and Export uses it to build the ZIP.
func (e *Exporter) Collect(now time.Time, includeTickets bool) Bundle {
	bundle := Bundle{
		SystemInfo:  collectSystemInfo(now),
		Config:      e.collectConfigSummary(),
		Health:      e.collectHealthSummary(now),
		TicketStats: e.collectTicketStats(),
	}
	if includeTickets {
		bundle.RecentTickets = e.collectRecentTickets()
	}
	return bundle
}

// Export writes a ZIP bundle to outputPath (or a timestamped default
// under baseDir) containing diagnostics.json, system_info.txt, and
// (optionally) recent_logs.txt.
func (e *Exporter) Export(now time.Time, outputPath string, includeLogs, includeTickets bool) (string, error) {
	if outputPath == "" {
		outputPath = filepath.Join(e.baseDir, fmt.Sprintf("actifix_diagnostics_%s.zip", now.UTC().Format("20060102_150405")))
	}

	bundle := e.Collect(now, includeTickets)

	f, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("create diagnostics bundle: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	diagnosticsJSON, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diagnostics: %w", err)
	}
	if err := writeZipEntry(zw, "diagnostics.json", diagnosticsJSON); err != nil {
		return "", err
	}

	if includeLogs {
		logs := e.collectRecentLogs()
		if err := writeZipEntry(zw, "recent_logs.txt", []byte(logs)); err != nil {
			return "", err
		}
	}

	if err := writeZipEntry(zw, "system_info.txt", []byte(renderSystemInfoText(bundle.SystemInfo))); err != nil {
		return "", err
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finalize diagnostics bundle: %w", err)
	}

	if e.events != nil {
		info, statErr := os.Stat(outputPath)
		var size int64
		if statErr == nil {
			size = info.Size()
		}
		e.events.Append(eventlog.Event{
			EventType: "DIAGNOSTICS_EXPORTED",
			Level:     eventlog.LevelInfo,
			Message:   fmt.Sprintf("diagnostics bundle exported to %s", outputPath),
			Extra: map[string]any{
				"output_path":     outputPath,
				"file_size":       size,
				"include_logs":    includeLogs,
				"include_tickets": includeTickets,
			},
		})
	}

	return outputPath, nil
}

func writeZipEntry(zw *zip.Writer, name string, content []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create zip entry %s: %w", name, err)
	}
	if _, err := w.Write(content); err != nil {
		return fmt.Errorf("write zip entry %s: %w", name, err)
	}
	return nil
}

func collectSystemInfo(now time.Time) SystemInfo {
	hostname, _ := os.Hostname()
	return SystemInfo{
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
		Hostname:  hostname,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

func (e *Exporter) collectConfigSummary() ConfigSummary {
	provider := e.cfg.AIProvider
	if provider == "" {
		provider = "default"
	}
	return ConfigSummary{
		CaptureEnabled:     e.cfg.CaptureEnabled,
		EnforceRaiseAF:     e.cfg.EnforceRaiseAF,
		AIEnabled:          e.cfg.AIEnabled,
		AIProvider:         provider,
		ThrottleEnabled:    e.cfg.Throttle.Enabled,
		HasWebhooks:        len(e.cfg.WebhookURLs) > 0,
		HasCompletionHooks: len(e.cfg.CompletionHookScripts) > 0,
	}
}

func (e *Exporter) collectTicketStats() ticketstore.Stats {
	if e.store == nil {
		return ticketstore.Stats{}
	}
	stats, err := e.store.GetStats()
	if err != nil {
		return ticketstore.Stats{}
	}
	return stats
}

func (e *Exporter) collectHealthSummary(now time.Time) HealthSummary {
	if e.checker == nil {
		return HealthSummary{OverallStatus: "unknown", Components: map[string]string{}}
	}
	snap, err := e.checker.GetHealth(now, 0)
	if err != nil {
		return HealthSummary{OverallStatus: "error", Components: map[string]string{"error": err.Error()}}
	}
	components := map[string]string{
		"disk":      string(snap.DiskStatus),
		"db":        string(snap.DBStatus),
	}
	return HealthSummary{OverallStatus: string(snap.Status), Components: components}
}

func (e *Exporter) collectRecentTickets() []RecentTicket {
	if e.store == nil {
		return nil
	}
	tickets, err := e.store.GetTickets(ticketstore.Filter{Limit: recentTicketsLimit})
	if err != nil {
		return nil
	}

	out := make([]RecentTicket, 0, len(tickets))
	for _, t := range tickets {
		preview := t.Message
		if len(preview) > messagePreviewChars {
			preview = preview[:messagePreviewChars]
		}
		out = append(out, RecentTicket{
			ID:             t.ID,
			Priority:       string(t.Priority),
			ErrorType:      t.ErrorType,
			Source:         t.Source,
			Status:         string(t.Status),
			CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
			MessagePreview: preview,
		})
	}
	return out
}

func (e *Exporter) collectRecentLogs() string {
	if e.logsDir == "" {
		return "No log files found"
	}
	matches, err := filepath.Glob(filepath.Join(e.logsDir, "actifix*.log"))
	if err != nil || len(matches) == 0 {
		return "No log files found"
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, errI := os.Stat(matches[i])
		fj, errJ := os.Stat(matches[j])
		if errI != nil || errJ != nil {
			return false
		}
		return fi.ModTime().After(fj.ModTime())
	})

	raw, err := os.ReadFile(matches[0])
	if err != nil {
		return fmt.Sprintf("Error reading logs: %v", err)
	}

	lines := strings.Split(string(raw), "\n")
	if len(lines) > recentLogMaxLines {
		lines = lines[len(lines)-recentLogMaxLines:]
	}
	return strings.Join(lines, "\n")
}

func renderSystemInfoText(info SystemInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "os: %s\n", info.OS)
	fmt.Fprintf(&b, "arch: %s\n", info.Arch)
	fmt.Fprintf(&b, "go_version: %s\n", info.GoVersion)
	fmt.Fprintf(&b, "num_cpu: %d\n", info.NumCPU)
	fmt.Fprintf(&b, "hostname: %s\n", info.Hostname)
	fmt.Fprintf(&b, "timestamp: %s\n", info.Timestamp)
	return b.String()
}

// Summary renders a human-readable diagnostics summary for stdout, the
// Go analogue of print_diagnostics_summary.
func (e *Exporter) Summary(now time.Time) string {
	bundle := e.Collect(now, false)

	var b strings.Builder
	divider := strings.Repeat("=", 80)
	rule := strings.Repeat("-", 80)

	fmt.Fprintf(&b, "%s\nACTIFIX DIAGNOSTICS SUMMARY\n%s\n\n", divider, divider)

	fmt.Fprintf(&b, "System Information:\n%s\n", rule)
	fmt.Fprintf(&b, "  os: %s\n  arch: %s\n  go_version: %s\n  hostname: %s\n  timestamp: %s\n\n",
		bundle.SystemInfo.OS, bundle.SystemInfo.Arch, bundle.SystemInfo.GoVersion, bundle.SystemInfo.Hostname, bundle.SystemInfo.Timestamp)

	fmt.Fprintf(&b, "Configuration:\n%s\n", rule)
	fmt.Fprintf(&b, "  capture_enabled: %v\n  ai_enabled: %v\n  ai_provider: %s\n  ticket_throttling_enabled: %v\n\n",
		bundle.Config.CaptureEnabled, bundle.Config.AIEnabled, bundle.Config.AIProvider, bundle.Config.ThrottleEnabled)

	fmt.Fprintf(&b, "Ticket Statistics:\n%s\n", rule)
	fmt.Fprintf(&b, "  total: %d\n  open: %d\n  completed: %d\n\n",
		bundle.TicketStats.Total, bundle.TicketStats.ByStatus[ticketstore.StatusOpen], bundle.TicketStats.ByStatus[ticketstore.StatusCompleted])

	fmt.Fprintf(&b, "Health Status:\n%s\n", rule)
	fmt.Fprintf(&b, "  overall: %s\n", bundle.Health.OverallStatus)
	for k, v := range bundle.Health.Components {
		fmt.Fprintf(&b, "  %s: %s\n", k, v)
	}
	fmt.Fprintf(&b, "\n%s\n", divider)

	return b.String()
}
