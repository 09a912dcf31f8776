package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/autoencode/internal/config"
)

func TestNewLogger_NoFile(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogFile = ""
	l, err := NewLogger(&cfg)
	require.NoError(t, err)
	defer l.Close()
	l.Info("test message")
}

func TestNewLogger_WithFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.LogFile = filepath.Join(dir, "logs", "autoencode.log")
	l, err := NewLogger(&cfg)
	require.NoError(t, err)
	l.Info("to file")
	require.NoError(t, l.Close())

	b, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(b), &rec))
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "to file", rec["msg"])
}

func TestLevels(t *testing.T) {
	var text, js bytes.Buffer
	l := NewWithWriters(&text, &js, false)

	l.Success("encoded %d chunks", 3)
	l.Warn("no audio")
	l.Error("failed: %s", "boom")
	l.Debug("hidden")

	out := text.String()
	assert.Contains(t, out, "level=SUCCESS")
	assert.Contains(t, out, `msg="encoded 3 chunks"`)
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "level=ERROR")
	assert.NotContains(t, out, "hidden")

	lines := strings.Split(strings.TrimSpace(js.String()), "\n")
	assert.Len(t, lines, 3)
}

func TestDebug_Verbose(t *testing.T) {
	var text bytes.Buffer
	l := NewWithWriters(&text, nil, true)
	l.Debug("rate from %s", "timecode")
	assert.Contains(t, text.String(), "level=DEBUG")
	assert.Contains(t, text.String(), "rate from timecode")
}

func TestWith_AddsAttrs(t *testing.T) {
	var text bytes.Buffer
	l := NewWithWriters(&text, nil, false).With("job", "abc123")
	l.Info("compiled")
	assert.Contains(t, text.String(), "job=abc123")
}
