package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gmanldn/actifix/internal/atomicfile"
)

// RunState is the coarse value the crash snapshot file holds.
type RunState string

const (
	RunStateRunning      RunState = "running"
	RunStateShuttingDown RunState = "shutting_down"
	RunStateHealthy      RunState = "healthy"
)

// snapshot is the crash-detection file's JSON shape.
type snapshot struct {
	State      RunState  `json:"state"`
	UpdatedAt  time.Time `json:"updated_at"`
	PID        int       `json:"pid"`
	TicketsOpen int      `json:"tickets_open,omitempty"`
}

// CrashRecorder manages the small state file that lets the next start
// detect an unclean shutdown.
type CrashRecorder struct {
	path string
}

// NewCrashRecorder points at stateDir/run_state.json.
func NewCrashRecorder(stateDir string) *CrashRecorder {
	return &CrashRecorder{path: filepath.Join(stateDir, "run_state.json")}
}

// CheckPriorRun reads the snapshot left by the previous process, if
// any. A state of "running" means the previous process never reached a
// clean shutdown transition — an unclean exit (crash or kill -9).
func (c *CrashRecorder) CheckPriorRun() (wasUnclean bool, prior *snapshot, err error) {
	data, err := atomicfile.ReadBytesOrNil(c.path)
	if err != nil {
		return false, nil, err
	}
	if data == nil {
		return false, nil, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, nil, nil
	}
	return snap.State == RunStateRunning, &snap, nil
}

// SetState overwrites the snapshot with the given state.
func (c *CrashRecorder) SetState(state RunState) error {
	snap := snapshot{State: state, UpdatedAt: time.Now(), PID: os.Getpid()}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(c.path, data)
}
