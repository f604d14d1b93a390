package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mistfs/mistfs/internal/config"
)

func TestSetLoggingLevel(t *testing.T) {
	cases := []struct {
		severity string
		want     slog.Level
	}{
		{config.TRACE, LevelTrace},
		{config.DEBUG, LevelDebug},
		{config.INFO, LevelInfo},
		{config.WARNING, LevelWarn},
		{config.ERROR, LevelError},
		{config.OFF, LevelOff},
		{"garbage", LevelInfo},
	}

	for _, tc := range cases {
		levelVar := new(slog.LevelVar)
		setLoggingLevel(tc.severity, levelVar)
		assert.Equal(t, tc.want, levelVar.Level(), "severity %q", tc.severity)
	}
}

func TestLevelName(t *testing.T) {
	cases := []struct {
		level slog.Level
		want  string
	}{
		{LevelTrace, "TRACE"},
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARNING"},
		{LevelError, "ERROR"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, levelName(tc.level))
	}
}

func TestCreateJsonOrTextHandlerTextUsesSeverityKey(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{format: "text"}
	levelVar := new(slog.LevelVar)
	levelVar.Set(LevelInfo)

	l := slog.New(f.createJsonOrTextHandler(&buf, levelVar, ""))
	l.Info("hello")

	out := buf.String()
	assert.Contains(t, out, "severity=INFO")
	assert.Contains(t, out, "msg=hello")
	assert.NotContains(t, out, "level=")
}

func TestCreateJsonOrTextHandlerJSONUsesTimestampGroup(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{format: "json"}
	levelVar := new(slog.LevelVar)
	levelVar.Set(LevelInfo)

	l := slog.New(f.createJsonOrTextHandler(&buf, levelVar, ""))
	l.Warn("uh oh")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "WARNING", decoded["severity"])
	assert.Contains(t, decoded, "timestamp")

	ts, ok := decoded["timestamp"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, ts, "seconds")
	assert.Contains(t, ts, "nanos")
}

func TestCreateJsonOrTextHandlerAppliesPrefix(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{format: "text"}
	levelVar := new(slog.LevelVar)
	levelVar.Set(LevelInfo)

	l := slog.New(f.createJsonOrTextHandler(&buf, levelVar, "[mount] "))
	l.Info("ready")

	assert.True(t, strings.Contains(buf.String(), "msg=\"[mount] ready\""))
}

func TestLevelVarFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	f := &loggerFactory{format: "text"}
	levelVar := new(slog.LevelVar)
	levelVar.Set(LevelWarn)

	l := slog.New(f.createJsonOrTextHandler(&buf, levelVar, ""))
	l.Info("should be dropped")
	l.Warn("should appear")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "should appear")
}
