package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/fundscope/pkg/config"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	tests := []struct {
		name      string
		cfg       *config.Config
		wantLevel zerolog.Level
	}{
		{"debug level", &config.Config{Env: "development", LogLevel: "debug", LogFormat: "json"}, zerolog.DebugLevel},
		{"info level", &config.Config{Env: "production", LogLevel: "info", LogFormat: "console"}, zerolog.InfoLevel},
		{"warn level", &config.Config{Env: "staging", LogLevel: "warn", LogFormat: "json"}, zerolog.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(tt.cfg)
			require.NotNil(t, l)
			assert.Equal(t, tt.wantLevel, zerolog.GlobalLevel())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewWithWriter_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "warn")

	l.Info("dropped")
	assert.Zero(t, buf.Len(), "info must be filtered at warn level")

	l.Warnf("kept %d", 1)
	entry := decode(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "kept 1", entry["message"])
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug").
		Component("fetch").
		WithFields(map[string]interface{}{"op": "nav_history", "attempt": 2}).
		WithError(errors.New("boom"))

	l.Debug("attempt failed")

	entry := decode(t, &buf)
	assert.Equal(t, "fetch", entry["component"])
	assert.Equal(t, "nav_history", entry["op"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, "boom", entry["error"])
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	l.WithField("k", "v").Infof("still %s", "nothing")
}
