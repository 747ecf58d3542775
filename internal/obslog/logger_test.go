package obslog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToInfoLevelOnInvalidLevel(t *testing.T) {
	logger := New(Config{Level: "not-a-level", Format: "text", Output: "stdout"})
	require.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNewParsesExplicitLevel(t *testing.T) {
	logger := New(Config{Level: "debug", Format: "text", Output: "stdout"})
	require.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestNewSelectsJSONFormatter(t *testing.T) {
	logger := New(Config{Level: "info", Format: "json", Output: "stdout"})
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	require.True(t, ok)
}

func TestNewSelectsTextFormatterByDefault(t *testing.T) {
	logger := New(Config{Level: "info", Format: "unknown", Output: "stdout"})
	_, ok := logger.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
}

func TestNewFileOutputCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{Level: "info", Format: "text", Output: "file", LogsDir: dir, FilePrefix: "comp"})
	logger.Info("hello")

	path := filepath.Join(dir, "comp.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
}

func TestNewFileOutputDefaultsPrefixAndDir(t *testing.T) {
	cwd, err := os.Getwd()
	require.NoError(t, err)
	defaultDir := filepath.Join(cwd, "logs")
	t.Cleanup(func() { os.RemoveAll(defaultDir) })

	logger := New(Config{Level: "info", Format: "text", Output: "file"})
	logger.Info("default path")

	_, statErr := os.Stat(filepath.Join(defaultDir, "actifix.log"))
	require.NoError(t, statErr)
}

func TestComponentTagsEntryWithName(t *testing.T) {
	base := New(Config{Level: "info", Format: "text", Output: "stdout"})
	entry := Component(base, "dispatch")
	require.Equal(t, "dispatch", entry.Data["component"])
}
