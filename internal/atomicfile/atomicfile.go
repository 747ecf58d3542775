// Package atomicfile provides durable, crash-safe file writes using the
// temp-write-then-rename pattern, with fsync on both the file and its
// parent directory.
package atomicfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Write replaces path's contents atomically: it writes to a sibling
// temp file, fsyncs it, renames it over path, then fsyncs the parent
// directory so the rename itself survives a crash.
func Write(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("atomicfile: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("atomicfile: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("atomicfile: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("atomicfile: close temp: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("atomicfile: rename: %w", err)
	}

	if dirHandle, err := os.Open(dir); err == nil {
		_ = dirHandle.Sync()
		dirHandle.Close()
	}

	return nil
}

// WriteString is Write for string content.
func WriteString(path string, content string) error {
	return Write(path, []byte(content))
}

// TrimToLineBoundary truncates content to at most maxBytes, cutting at the
// last newline so a partial line is never kept.
func TrimToLineBoundary(content []byte, maxBytes int) []byte {
	if len(content) <= maxBytes {
		return content
	}
	truncated := content[:maxBytes]
	if idx := bytes.LastIndexByte(truncated, '\n'); idx > 0 {
		return truncated[:idx+1]
	}
	return truncated
}

// AppendWithGuard appends content to path, then — if the result would
// exceed maxSizeBytes — trims from the start at a line boundary so the
// most recent content survives. maxSizeBytes <= 0 means unlimited.
func AppendWithGuard(path string, content string, maxSizeBytes int) error {
	existing, err := ReadOrEmpty(path)
	if err != nil {
		return err
	}

	combined := append([]byte(existing), []byte(content)...)

	if maxSizeBytes > 0 && len(combined) > maxSizeBytes {
		excess := len(combined) - maxSizeBytes
		rest := combined[excess:]
		if idx := bytes.IndexByte(rest, '\n'); idx > 0 {
			combined = rest[idx+1:]
		} else {
			combined = rest
		}
	}

	return Write(path, combined)
}

// IdempotentAppend appends content to path only if entryKey is not
// already present in the file, reporting whether it wrote.
func IdempotentAppend(path string, content string, entryKey string) (bool, error) {
	existing, err := ReadOrEmpty(path)
	if err != nil {
		return false, err
	}
	if strings.Contains(existing, entryKey) {
		return false, nil
	}
	if err := Write(path, append([]byte(existing), []byte(content)...)); err != nil {
		return false, err
	}
	return true, nil
}

// ReadOrEmpty reads path's content, returning an empty string if it does
// not yet exist.
func ReadOrEmpty(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("atomicfile: read %s: %w", path, err)
	}
	return string(data), nil
}

// ReadBytesOrNil reads path's raw bytes, returning nil if it does not exist.
func ReadBytesOrNil(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("atomicfile: read %s: %w", path, err)
	}
	return data, nil
}

// Rotate renames path to path+".1", shifting any existing numbered
// backups up to maxBackups (path+".1" -> path+".2", etc.) before writing
// fresh content to path. Used by the fallback queue and event log when a
// file crosses its rotation threshold.
func Rotate(path string, maxBackups int) error {
	if maxBackups <= 0 {
		return nil
	}
	for i := maxBackups; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", path, i)
		if i == maxBackups {
			os.Remove(src)
			continue
		}
		dst := fmt.Sprintf("%s.%d", path, i+1)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, dst); err != nil {
				return fmt.Errorf("atomicfile: rotate %s -> %s: %w", src, dst, err)
			}
		}
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".1"); err != nil {
			return fmt.Errorf("atomicfile: rotate %s -> %s.1: %w", path, path, err)
		}
	}
	return nil
}
