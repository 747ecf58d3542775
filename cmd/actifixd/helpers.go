package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/gmanldn/actifix/internal/config"
)

// decodeQueueEntry unmarshals a fallback queue entry's JSON content into
// dst, the same encoding RecordError's enqueueFallback path produces.
func decodeQueueEntry(content string, dst any) error {
	return json.Unmarshal([]byte(content), dst)
}

// configDiff prints every field where the running config diverges from
// config.Default(), the way the teacher's own status reporting favours
// explicit overrides over a full dump.
func configDiff(a *app) error {
	def := config.Default()
	cur := a.cfg

	defVal := reflect.ValueOf(def)
	curVal := reflect.ValueOf(cur)
	t := defVal.Type()

	diffs := 0
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		defField := defVal.Field(i).Interface()
		curField := curVal.Field(i).Interface()
		if !reflect.DeepEqual(defField, curField) {
			fmt.Printf("%s: default=%v current=%v\n", field.Name, defField, curField)
			diffs++
		}
	}
	if diffs == 0 {
		fmt.Println("config matches defaults")
	}
	return nil
}

// moduleMetadata is the minimal shape a module's metadata.json needs,
// a simplified stand-in for the dynamically-introspected validation the
// original module registry performs at import time.
type moduleMetadata struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

func moduleCreate(a *app, id string) error {
	dir := filepath.Join(a.boot.Paths.DataDir, "modules", id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create module directory: %w", err)
	}

	meta := moduleMetadata{ID: id, Description: fmt.Sprintf("%s module", id)}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	metaPath := filepath.Join(dir, "metadata.json")
	if err := os.WriteFile(metaPath, raw, 0o644); err != nil {
		return fmt.Errorf("write module metadata: %w", err)
	}

	if err := a.modules.Enable(id); err != nil {
		return err
	}
	fmt.Printf("module scaffolded: %s\n", metaPath)
	return nil
}

func moduleValidate(a *app, id string) error {
	metaPath := filepath.Join(a.boot.Paths.DataDir, "modules", id, "metadata.json")
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("module %s: metadata not found: %w", id, err)
	}
	var meta moduleMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		_ = a.modules.MarkError(id)
		return fmt.Errorf("module %s: invalid metadata: %w", id, err)
	}
	if meta.ID != id {
		_ = a.modules.MarkError(id)
		return fmt.Errorf("module %s: metadata id mismatch %q", id, meta.ID)
	}
	fmt.Printf("module %s: valid\n", id)
	return nil
}

// moduleGraph prints the module dependency graph from
// state_dir/depgraph.json when present, the persisted analogue of the
// DEPGRAPH.json the registry reads at discovery time.
func moduleGraph(a *app) error {
	path := filepath.Join(a.boot.Paths.StateDir, "depgraph.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("no dependency graph recorded yet")
			return nil
		}
		return err
	}

	var graph map[string][]string
	if err := json.Unmarshal(raw, &graph); err != nil {
		return fmt.Errorf("parse depgraph.json: %w", err)
	}
	for module, deps := range graph {
		fmt.Printf("%s -> %v\n", module, deps)
	}
	return nil
}
