package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLogger(t *testing.T) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("INFO")
	SetFormat("text")
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("INFO")
		SetFormat("text")
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := resetLogger(t)
	SetLevel("warn")

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 2")
}

func TestJSONFormat(t *testing.T) {
	buf := resetLogger(t)
	SetFormat("json")

	Error("upload failed for %s", "alice")

	var line jsonLine
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "ERROR", line.Level)
	assert.Equal(t, "upload failed for alice", line.Message)
	assert.NotEmpty(t, line.Time)
}

func TestConfigure_File(t *testing.T) {
	resetLogger(t)
	path := filepath.Join(t.TempDir(), "dittobox.log")

	require.NoError(t, Configure("debug", "text", path))
	Debug("written to file")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[DEBUG] written to file"))
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("Error")
	assert.True(t, ok)
	assert.Equal(t, LevelError, l)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}
