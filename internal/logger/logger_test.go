package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewJSONFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", "json")
	l.Info("dropped")
	l.Warn("run_failed", "run", "r1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "run_failed", rec["msg"])
	require.Equal(t, "r1", rec["run"])
}

func TestNewTextDefault(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "", "").Info("hello", "k", 1)
	require.Contains(t, buf.String(), "msg=hello")
	require.Contains(t, buf.String(), "k=1")
}

func TestLInitialisesOnce(t *testing.T) {
	a := L()
	require.NotNil(t, a)
	require.Same(t, a, L())
}
