package utils

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testLogger(level LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Logger{out: log.New(&buf, "[router] ", 0), level: level}, &buf
}

func TestLoggerLevelThreshold(t *testing.T) {
	l, buf := testLogger(Warning)

	l.Debug("probe cycle started")
	l.Info("routing decision")
	assert.Empty(t, buf.String())

	l.Warn("attempt failed", "account", "openai-primary")
	assert.Contains(t, buf.String(), "[router] [WARN] attempt failed account=openai-primary")
}

func TestLoggerSetLogLevel(t *testing.T) {
	l, buf := testLogger(Warning)

	l.SetLogLevel(Debug)
	l.Debug("probe cycle started", "accounts", 3)
	assert.Contains(t, buf.String(), "[DEBUG] probe cycle started accounts=3")
}

func TestLoggerDanglingKeyIgnored(t *testing.T) {
	l, buf := testLogger(Info)

	l.Info("reloaded", "accounts", 2, "orphan")
	assert.Contains(t, buf.String(), "reloaded accounts=2")
	assert.NotContains(t, buf.String(), "orphan")
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  LogLevel
	}{
		{"debug", Debug},
		{"info", Info},
		{"error", Error},
		{"", Warning},
		{"bogus", Warning},
	}
	for _, tt := range tests {
		t.Setenv("LOG_LEVEL", tt.value)
		assert.Equal(t, tt.want, levelFromEnv(), "LOG_LEVEL=%q", tt.value)
	}
}
