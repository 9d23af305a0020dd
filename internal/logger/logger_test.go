package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.input), tt.input)
	}
}

func TestAsynqLevel(t *testing.T) {
	assert.Equal(t, asynq.DebugLevel, AsynqLevel("debug"))
	assert.Equal(t, asynq.WarnLevel, AsynqLevel("warn"))
	assert.Equal(t, asynq.ErrorLevel, AsynqLevel("error"))
	assert.Equal(t, asynq.InfoLevel, AsynqLevel(""))
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, Config{Level: "warn", Format: "json"})

	log.Info("dropped")
	log.Warn("kept", "jobId", "42")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "42", entry["jobId"])
}

func TestAsynqLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewAsynqLogger(NewWithWriter(&buf, Config{Level: "debug", Format: "json"}))

	l.Info("server ", "started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "server started", entry["msg"])
	assert.Equal(t, "asynq", entry["component"])
}
