package logging

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"info":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, LevelFromString(in), in)
	}
}

func TestNewWithWriterFiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := Component(NewWithWriter(&buf, "warn"), "pipeline")

	logger.Info("hidden")
	logger.Warn("shown", "pending", 12)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "msg=shown")
	assert.Contains(t, out, "component=pipeline")
	assert.Contains(t, out, "pending=12")
}

func TestComponentOnNilLogger(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		Component(nil, "x").Error("dropped")
	})
}

func TestNewKeepsStdoutForCommandOutput(t *testing.T) {
	stderr, err := os.CreateTemp(t.TempDir(), "stderr")
	require.NoError(t, err)
	defer stderr.Close()

	orig := os.Stderr
	os.Stderr = stderr
	New("info").Info("run finished", "outcome", "promoted")
	os.Stderr = orig

	raw, err := os.ReadFile(stderr.Name())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "msg=\"run finished\"")
	assert.Contains(t, string(raw), "outcome=promoted")
}
