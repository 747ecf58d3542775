package httpapi

import (
	"net/http"
	"time"

	"github.com/gmanldn/actifix/internal/health"
	"github.com/gmanldn/actifix/internal/ticketstore"
)

type healthMetrics struct {
	Open                int             `json:"open"`
	Completed           int             `json:"completed"`
	SLABreaches         map[string]int  `json:"sla_breaches"`
	OldestTicketAgeHours float64        `json:"oldest_ticket_age_hours"`
}

type healthFilesystem struct {
	FilesExist   bool `json:"files_exist"`
	FilesWritable bool `json:"files_writable"`
}

type healthResponse struct {
	Healthy    bool             `json:"healthy"`
	Status     health.Status    `json:"status"`
	Timestamp  time.Time        `json:"timestamp"`
	Metrics    healthMetrics    `json:"metrics"`
	Filesystem healthFilesystem `json:"filesystem"`
	Warnings   []string         `json:"warnings"`
	Errors     []string         `json:"errors"`
	Details    map[string]any   `json:"details"`
}

// handleHealth implements GET /api/health per spec section 6.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	var dbSize int64
	if s.dbSizeFn != nil {
		dbSize = s.dbSizeFn()
	}

	snap, err := s.checker.GetHealth(now, dbSize)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "health_check_failed", err.Error())
		return
	}

	oldestHours, oldestErr := s.oldestOpenTicketAgeHours(now)

	resp := healthResponse{
		Healthy:   snap.Status == health.StatusHealthy,
		Status:    snap.Status,
		Timestamp: snap.GeneratedAt,
		Metrics: healthMetrics{
			Open:                 snap.OpenCount,
			Completed:            snap.CompletedCount,
			SLABreaches:          breachesByPriority(snap),
			OldestTicketAgeHours: oldestHours,
		},
		Filesystem: filesystemSummary(snap),
		Warnings:   []string{},
		Errors:     []string{},
		Details: map[string]any{
			"state_dir_usage_pct": snap.StateDirUsagePct,
			"data_dir_usage_pct":  snap.DataDirUsagePct,
			"db_size_bytes":       snap.DBSizeBytes,
			"locked_count":        snap.LockedCount,
		},
	}
	if snap.HeartbeatKnown {
		resp.Details["heartbeat_age_seconds"] = snap.HeartbeatAge.Seconds()
		resp.Details["heartbeat_stale"] = snap.HeartbeatStale
	}

	if oldestErr != nil {
		resp.Warnings = append(resp.Warnings, "could not compute oldest open ticket age: "+oldestErr.Error())
	}
	if snap.DiskStatus == health.StatusWarning {
		resp.Warnings = append(resp.Warnings, "disk usage approaching capacity")
	}
	if snap.DiskStatus == health.StatusCritical {
		resp.Errors = append(resp.Errors, "disk usage critical")
	}
	if snap.DBStatus == health.StatusWarning {
		resp.Warnings = append(resp.Warnings, "ticket database approaching size threshold")
	}
	if snap.DBStatus == health.StatusCritical {
		resp.Errors = append(resp.Errors, "ticket database size critical")
	}
	for _, a := range snap.Artefacts {
		if !a.Exists {
			resp.Errors = append(resp.Errors, "missing core artefact: "+a.Path)
		} else if !a.Writable {
			resp.Errors = append(resp.Errors, "core artefact not writable: "+a.Path)
		}
	}
	if snap.HeartbeatKnown && snap.HeartbeatStale {
		resp.Warnings = append(resp.Warnings, "DoAF heartbeat stale")
	}
	for priority, count := range snap.SLABreaches {
		if count > 0 {
			resp.Warnings = append(resp.Warnings, string(priority)+" SLA breach detected")
		}
	}

	status := http.StatusOK
	if snap.Status == health.StatusCritical {
		status = http.StatusServiceUnavailable
	}
	Respond(w, status, resp)
}

func breachesByPriority(snap health.Snapshot) map[string]int {
	out := make(map[string]int, len(snap.SLABreaches))
	for p, c := range snap.SLABreaches {
		out[string(p)] = c
	}
	return out
}

func filesystemSummary(snap health.Snapshot) healthFilesystem {
	fs := healthFilesystem{FilesExist: true, FilesWritable: true}
	for _, a := range snap.Artefacts {
		if !a.Exists {
			fs.FilesExist = false
		}
		if !a.Writable {
			fs.FilesWritable = false
		}
	}
	return fs
}

func (s *Server) oldestOpenTicketAgeHours(now time.Time) (float64, error) {
	open, err := s.store.GetTickets(ticketstore.Filter{Status: ticketstore.StatusOpen, Limit: 100000})
	if err != nil {
		return 0, err
	}
	if len(open) == 0 {
		return 0, nil
	}
	oldest := open[0].CreatedAt
	for _, t := range open[1:] {
		if t.CreatedAt.Before(oldest) {
			oldest = t.CreatedAt
		}
	}
	return now.Sub(oldest).Hours(), nil
}

// handleStats implements GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "stats_failed", err.Error())
		return
	}

	now := time.Now()
	slaBreaches := 0
	if snap, err := s.checker.GetHealth(now, 0); err == nil {
		for _, c := range snap.SLABreaches {
			slaBreaches += c
		}
	}

	byPriority := make(map[string]int, len(stats.ByPriority))
	for p, c := range stats.ByPriority {
		byPriority[string(p)] = c
	}

	Respond(w, http.StatusOK, map[string]any{
		"total":        stats.Total,
		"open":         stats.ByStatus[ticketstore.StatusOpen],
		"completed":    stats.ByStatus[ticketstore.StatusCompleted],
		"by_priority":  byPriority,
		"sla_breaches": slaBreaches,
	})
}
