// Package actifixpath resolves the canonical on-disk layout for an Actifix
// installation: project root, data/state/logs directories and the
// well-known files beneath them.
package actifixpath

import (
	"os"
	"path/filepath"
)

// Paths is the resolved bundle of locations Actifix reads from and writes to.
type Paths struct {
	ProjectRoot string
	DataDir     string
	StateDir    string
	LogsDir     string

	TicketDBPath      string
	QuarantineDir     string
	FallbackQueuePath string
	ListFile          string
	RollupFile        string
	EventLogPath      string

	// LegacyFallbackQueuePath is the pre-canonicalisation location some
	// installations still have a queue file sitting at; see DESIGN.md
	// Open Question 1.
	LegacyFallbackQueuePath string
}

// Overrides allows callers to pin individual roots (e.g. in tests); any
// field left empty falls through to ACTIFIX_* environment variables, and
// from there to a default derived from the project root.
type Overrides struct {
	ProjectRoot string
	DataDir     string
	StateDir    string
	LogsDir     string
}

// Resolve builds a Paths bundle following the precedence explicit overrides
// -> ACTIFIX_* environment variables -> cwd-derived defaults.
func Resolve(ov Overrides) (Paths, error) {
	root, err := resolveProjectRoot(ov.ProjectRoot)
	if err != nil {
		return Paths{}, err
	}

	dataDir := firstNonEmpty(ov.DataDir, os.Getenv("ACTIFIX_DATA_DIR"), filepath.Join(root, "actifix"))
	stateDir := firstNonEmpty(ov.StateDir, os.Getenv("ACTIFIX_STATE_DIR"), filepath.Join(root, ".actifix"))
	logsDir := firstNonEmpty(ov.LogsDir, os.Getenv("ACTIFIX_LOGS_DIR"), filepath.Join(root, "logs"))

	dataDir, err = filepath.Abs(cleanPath(dataDir))
	if err != nil {
		return Paths{}, err
	}
	stateDir, err = filepath.Abs(cleanPath(stateDir))
	if err != nil {
		return Paths{}, err
	}
	logsDir, err = filepath.Abs(cleanPath(logsDir))
	if err != nil {
		return Paths{}, err
	}

	ticketDB := os.Getenv("ACTIFIX_DB_PATH")
	if ticketDB == "" {
		ticketDB = filepath.Join(dataDir, "actifix.db")
	}

	return Paths{
		ProjectRoot:             root,
		DataDir:                 dataDir,
		StateDir:                stateDir,
		LogsDir:                 logsDir,
		TicketDBPath:            ticketDB,
		QuarantineDir:           filepath.Join(stateDir, "quarantine"),
		FallbackQueuePath:       filepath.Join(stateDir, "actifix_fallback_queue.json"),
		ListFile:                filepath.Join(dataDir, "ACTIFIX-LIST.md"),
		RollupFile:              filepath.Join(dataDir, "ACTIFIX.md"),
		EventLogPath:            filepath.Join(stateDir, "actifix_events.log"),
		LegacyFallbackQueuePath: filepath.Join(root, "actifix_fallback_queue.json"),
	}, nil
}

// EnsureDirs creates every directory the paths bundle references.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{p.DataDir, p.StateDir, p.LogsDir, p.QuarantineDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// CoreArtifacts lists the files a health check expects to exist and be
// writable.
func (p Paths) CoreArtifacts() []string {
	return []string{p.ListFile, p.RollupFile, p.TicketDBPath}
}

func resolveProjectRoot(override string) (string, error) {
	root := override
	if root == "" {
		root = os.Getenv("ACTIFIX_PROJECT_ROOT")
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = cwd
	}
	return filepath.Abs(cleanPath(root))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// cleanPath collapses redundant separators, matching the sanitisation the
// config loader applies to every ACTIFIX_* path value.
func cleanPath(p string) string {
	return filepath.Clean(p)
}
