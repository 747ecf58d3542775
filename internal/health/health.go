// Package health implements the C12 health snapshot and Prometheus
// exposition: ticket counts, SLA breach detection, disk and database
// growth thresholds, and core artefact checks.
package health

import (
	"os"
	"syscall"
	"time"

	"github.com/gmanldn/actifix/internal/ticketstore"
)

// SLAHours maps a priority to the number of hours an open ticket may
// stay unresolved before it is considered an SLA breach.
type SLAHours struct {
	P0 float64
	P1 float64
	P2 float64
	P3 float64
}

// DefaultSLAHours mirrors spec 4.12's defaults.
func DefaultSLAHours() SLAHours {
	return SLAHours{P0: 1, P1: 4, P2: 24, P3: 72}
}

const (
	diskWarnPct     = 0.90
	diskCriticalPct = 0.95
	dbWarnBytes     = 100 * 1024 * 1024
	dbCriticalBytes = 500 * 1024 * 1024
	heartbeatStale  = 10 * time.Minute
)

// Status is the overall health verdict.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// ArtefactCheck reports existence/writability for a single core file.
type ArtefactCheck struct {
	Path     string
	Exists   bool
	Writable bool
}

// Snapshot is the full get_health() result.
type Snapshot struct {
	GeneratedAt time.Time
	Status      Status

	OpenCount      int
	CompletedCount int
	LockedCount    int

	SLABreaches map[ticketstore.Priority]int

	StateDirUsagePct float64
	DataDirUsagePct  float64
	DiskStatus       Status

	DBSizeBytes int64
	DBStatus    Status

	Artefacts []ArtefactCheck

	HeartbeatAge    time.Duration
	HeartbeatStale  bool
	HeartbeatKnown  bool
}

// Checker assembles a Snapshot from the live ticket store, disk, and DB.
type Checker struct {
	store       *ticketstore.Store
	sla         SLAHours
	stateDir    string
	dataDir     string
	artefacts   []string
	heartbeatFn func() (time.Time, bool)
}

// New builds a Checker. heartbeatFn may be nil when no DoAF agent
// heartbeat is tracked.
func New(store *ticketstore.Store, sla SLAHours, stateDir, dataDir string, artefacts []string, heartbeatFn func() (time.Time, bool)) *Checker {
	return &Checker{store: store, sla: sla, stateDir: stateDir, dataDir: dataDir, artefacts: artefacts, heartbeatFn: heartbeatFn}
}

// GetHealth computes the full snapshot.
func (c *Checker) GetHealth(now time.Time, dbSizeBytes int64) (Snapshot, error) {
	stats, err := c.store.GetStats()
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		GeneratedAt:    now,
		OpenCount:      stats.ByStatus[ticketstore.StatusOpen],
		CompletedCount: stats.ByStatus[ticketstore.StatusCompleted],
		LockedCount:    stats.Locked,
		SLABreaches:    map[ticketstore.Priority]int{},
	}

	if err := c.computeSLABreaches(&snap, now); err != nil {
		return Snapshot{}, err
	}

	snap.StateDirUsagePct = diskUsagePct(c.stateDir)
	snap.DataDirUsagePct = diskUsagePct(c.dataDir)
	snap.DiskStatus = thresholdStatus(maxFloat(snap.StateDirUsagePct, snap.DataDirUsagePct), diskWarnPct, diskCriticalPct)

	snap.DBSizeBytes = dbSizeBytes
	snap.DBStatus = byteThresholdStatus(dbSizeBytes, dbWarnBytes, dbCriticalBytes)

	for _, path := range c.artefacts {
		snap.Artefacts = append(snap.Artefacts, checkArtefact(path))
	}

	if c.heartbeatFn != nil {
		lastBeat, known := c.heartbeatFn()
		snap.HeartbeatKnown = known
		if known {
			snap.HeartbeatAge = now.Sub(lastBeat)
			snap.HeartbeatStale = snap.HeartbeatAge > heartbeatStale
		}
	}

	snap.Status = overallStatus(snap)
	return snap, nil
}

func (c *Checker) computeSLABreaches(snap *Snapshot, now time.Time) error {
	open, err := c.store.GetTickets(ticketstore.Filter{Status: ticketstore.StatusOpen, Limit: 100000})
	if err != nil {
		return err
	}
	limits := map[ticketstore.Priority]float64{
		ticketstore.PriorityP0: c.sla.P0,
		ticketstore.PriorityP1: c.sla.P1,
		ticketstore.PriorityP2: c.sla.P2,
		ticketstore.PriorityP3: c.sla.P3,
	}
	for _, t := range open {
		limit, ok := limits[t.Priority]
		if !ok {
			continue
		}
		if now.Sub(t.CreatedAt).Hours() > limit {
			snap.SLABreaches[t.Priority]++
		}
	}
	return nil
}

func overallStatus(snap Snapshot) Status {
	if snap.DiskStatus == StatusCritical || snap.DBStatus == StatusCritical {
		return StatusCritical
	}
	for _, artefact := range snap.Artefacts {
		if !artefact.Exists || !artefact.Writable {
			return StatusCritical
		}
	}
	if snap.DiskStatus == StatusWarning || snap.DBStatus == StatusWarning || snap.HeartbeatStale || len(snap.SLABreaches) > 0 {
		return StatusWarning
	}
	return StatusHealthy
}

func thresholdStatus(value, warn, critical float64) Status {
	switch {
	case value >= critical:
		return StatusCritical
	case value >= warn:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

func byteThresholdStatus(value, warn, critical int64) Status {
	switch {
	case value >= critical:
		return StatusCritical
	case value >= warn:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func diskUsagePct(dir string) float64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		return 0
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	if total == 0 {
		return 0
	}
	used := total - free
	return float64(used) / float64(total)
}

func checkArtefact(path string) ArtefactCheck {
	check := ArtefactCheck{Path: path}
	if _, err := os.Stat(path); err != nil {
		return check
	}
	check.Exists = true

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err == nil {
		f.Close()
		check.Writable = true
	}
	return check
}
