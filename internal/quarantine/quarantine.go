// Package quarantine isolates corrupted or malformed content rather
// than treating it as fatal, rendering each entry as a Markdown file
// a human can review and manually reintegrate. Grounded on
// original_source's quarantine.py.
package quarantine

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/gmanldn/actifix/internal/atomicfile"
	"github.com/gmanldn/actifix/internal/eventlog"
)

// Entry is a single quarantined item, parsed back from its rendered
// Markdown file.
type Entry struct {
	ID            string
	OriginalSource string
	Reason        string
	Content       string
	QuarantinedAt time.Time
	FilePath      string
}

// Store manages the quarantine directory.
type Store struct {
	dir    string
	events *eventlog.Log
}

// New builds a Store rooted at dir (typically Paths.QuarantineDir).
func New(dir string, events *eventlog.Log) *Store {
	return &Store{dir: dir, events: events}
}

// Quarantine renders content to a new quarantine entry file and logs
// CONTENT_QUARANTINED.
func (s *Store) Quarantine(content, source, reason string) (Entry, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create quarantine dir: %w", err)
	}

	now := time.Now().UTC()
	id := fmt.Sprintf("quarantine_%s", now.Format("20060102_150405.000000"))
	id = strings.ReplaceAll(id, ".", "_")
	path := filepath.Join(s.dir, id+".md")

	rendered := renderEntry(id, source, reason, now, content)
	if err := atomicfile.WriteString(path, rendered); err != nil {
		return Entry{}, fmt.Errorf("write quarantine entry: %w", err)
	}

	if s.events != nil {
		s.events.Append(eventlog.Event{
			EventType: "CONTENT_QUARANTINED",
			Level:     eventlog.LevelWarning,
			Message:   fmt.Sprintf("quarantined content from %s: %s", source, reason),
			Source:    source,
			Extra: map[string]any{
				"entry_id": id,
				"reason":   reason,
			},
		})
	}

	return Entry{ID: id, OriginalSource: source, Reason: reason, Content: content, QuarantinedAt: now, FilePath: path}, nil
}

// List returns every quarantined entry, newest first.
func (s *Store) List() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "quarantine_*.md"))
	if err != nil {
		return nil, fmt.Errorf("glob quarantine dir: %w", err)
	}

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		raw, err := atomicfile.ReadBytesOrNil(path)
		if err != nil || raw == nil {
			continue
		}
		entries = append(entries, parseEntry(path, string(raw)))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].QuarantinedAt.After(entries[j].QuarantinedAt) })
	return entries, nil
}

// Remove deletes a quarantine entry and logs QUARANTINE_REMOVED.
// Reports false if the entry did not exist.
func (s *Store) Remove(id string) (bool, error) {
	path := filepath.Join(s.dir, id+".md")
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, fmt.Errorf("remove quarantine entry: %w", err)
	}

	if backups, err := filepath.Glob(filepath.Join(s.dir, id+"_original*")); err == nil {
		for _, b := range backups {
			_ = os.Remove(b)
		}
	}

	if s.events != nil {
		s.events.Append(eventlog.Event{
			EventType: "QUARANTINE_REMOVED",
			Level:     eventlog.LevelInfo,
			Message:   fmt.Sprintf("removed quarantine entry: %s", id),
		})
	}
	return true, nil
}

// RenderHTML converts an entry's rendered Markdown note to HTML, for
// surfacing quarantine entries in a web view.
func (s *Store) RenderHTML(e Entry) (string, error) {
	raw, err := atomicfile.ReadBytesOrNil(e.FilePath)
	if err != nil {
		return "", fmt.Errorf("read quarantine note: %w", err)
	}
	if raw == nil {
		return "", fmt.Errorf("quarantine note not found: %s", e.FilePath)
	}

	var buf bytes.Buffer
	if err := goldmark.Convert(raw, &buf); err != nil {
		return "", fmt.Errorf("render quarantine note: %w", err)
	}
	return buf.String(), nil
}

// Count reports how many entries are currently quarantined.
func (s *Store) Count() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "quarantine_*.md"))
	if err != nil {
		return 0, fmt.Errorf("glob quarantine dir: %w", err)
	}
	return len(matches), nil
}

func renderEntry(id, source, reason string, at time.Time, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Quarantined Content\n\n")
	fmt.Fprintf(&b, "- **Entry ID**: %s\n", id)
	fmt.Fprintf(&b, "- **Source**: %s\n", source)
	fmt.Fprintf(&b, "- **Reason**: %s\n", reason)
	fmt.Fprintf(&b, "- **Quarantined At**: %s\n\n", at.Format(time.RFC3339Nano))
	fmt.Fprintf(&b, "## Original Content\n\n```\n%s\n```\n\n", content)
	fmt.Fprintf(&b, "## Recovery Notes\n\n")
	fmt.Fprintf(&b, "To recover this content:\n")
	fmt.Fprintf(&b, "1. Review the content above\n")
	fmt.Fprintf(&b, "2. Fix any issues\n")
	fmt.Fprintf(&b, "3. Manually reintegrate if needed\n")
	fmt.Fprintf(&b, "4. Delete this file when resolved\n")
	return b.String()
}

func parseEntry(path, content string) Entry {
	entry := Entry{
		ID:            strings.TrimSuffix(filepath.Base(path), ".md"),
		QuarantinedAt: time.Now().UTC(),
		FilePath:      path,
	}

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "- **Entry ID**:"):
			entry.ID = strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
		case strings.HasPrefix(line, "- **Source**:"):
			entry.OriginalSource = strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
		case strings.HasPrefix(line, "- **Reason**:"):
			entry.Reason = strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
		case strings.HasPrefix(line, "- **Quarantined At**:"):
			raw := strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
			if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				entry.QuarantinedAt = parsed
			}
		}
	}

	if idx := strings.Index(content, "## Original Content"); idx >= 0 {
		section := content[idx:]
		if parts := strings.SplitN(section, "```", 3); len(parts) >= 3 {
			entry.Content = strings.TrimSpace(parts[1])
		}
	}

	return entry
}
