// Package modulestatus persists the C15 module registry's enable/
// disable/error state to state_dir/module_statuses.json, the schema the
// CLI's `modules` command surface and the /api/modules endpoint share.
package modulestatus

import (
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/gmanldn/actifix/internal/atomicfile"
)

const schemaVersion = "module-statuses.v1"

// Statuses buckets every known module id by its current state.
type Statuses struct {
	Active   []string `json:"active"`
	Disabled []string `json:"disabled"`
	Error    []string `json:"error"`
}

// file is the on-disk JSON shape.
type file struct {
	SchemaVersion string   `json:"schema_version"`
	Statuses      Statuses `json:"statuses"`
}

// Store reads and writes the module status file.
type Store struct {
	path string
}

// New points a Store at stateDir/module_statuses.json.
func New(stateDir string) *Store {
	return &Store{path: filepath.Join(stateDir, "module_statuses.json")}
}

// Load reads the current statuses, returning an empty Statuses (all
// buckets nil) if the file does not yet exist or is corrupt — a corrupt
// file is backed up to *.corrupt.json and reset, per spec's persisted
// state layout note.
func (s *Store) Load() (Statuses, error) {
	data, err := atomicfile.ReadBytesOrNil(s.path)
	if err != nil {
		return Statuses{}, err
	}
	if data == nil {
		return Statuses{}, nil
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		_ = atomicfile.Write(s.path+".corrupt.json", data)
		empty := file{SchemaVersion: schemaVersion}
		if writeErr := s.save(empty.Statuses); writeErr != nil {
			return Statuses{}, writeErr
		}
		return Statuses{}, nil
	}
	return f.Statuses, nil
}

func (s *Store) save(st Statuses) error {
	sort.Strings(st.Active)
	sort.Strings(st.Disabled)
	sort.Strings(st.Error)
	data, err := json.MarshalIndent(file{SchemaVersion: schemaVersion, Statuses: st}, "", "  ")
	if err != nil {
		return err
	}
	return atomicfile.Write(s.path, data)
}

// Enable moves id into the active bucket, clearing it from the others.
func (s *Store) Enable(id string) error {
	st, err := s.Load()
	if err != nil {
		return err
	}
	st.Disabled = remove(st.Disabled, id)
	st.Error = remove(st.Error, id)
	st.Active = appendUnique(st.Active, id)
	return s.save(st)
}

// Disable moves id into the disabled bucket.
func (s *Store) Disable(id string) error {
	st, err := s.Load()
	if err != nil {
		return err
	}
	st.Active = remove(st.Active, id)
	st.Error = remove(st.Error, id)
	st.Disabled = appendUnique(st.Disabled, id)
	return s.save(st)
}

// MarkError moves id into the error bucket.
func (s *Store) MarkError(id string) error {
	st, err := s.Load()
	if err != nil {
		return err
	}
	st.Active = remove(st.Active, id)
	st.Disabled = remove(st.Disabled, id)
	st.Error = appendUnique(st.Error, id)
	return s.save(st)
}

func appendUnique(list []string, id string) []string {
	for _, v := range list {
		if v == id {
			return list
		}
	}
	return append(list, id)
}

func remove(list []string, id string) []string {
	out := list[:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
