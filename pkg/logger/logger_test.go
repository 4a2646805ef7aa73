package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wonny/harvest/backend/pkg/config"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	return logEntry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *config.Config
		wantLevel zerolog.Level
	}{
		{
			name:      "debug level",
			cfg:       &config.Config{Env: "development", LogLevel: "debug", LogFormat: "json"},
			wantLevel: zerolog.DebugLevel,
		},
		{
			name:      "info level",
			cfg:       &config.Config{Env: "production", LogLevel: "info", LogFormat: "json"},
			wantLevel: zerolog.InfoLevel,
		},
		{
			name:      "warn level",
			cfg:       &config.Config{Env: "staging", LogLevel: "warn", LogFormat: "json"},
			wantLevel: zerolog.WarnLevel,
		},
		{
			name:      "error level",
			cfg:       &config.Config{Env: "production", LogLevel: "error", LogFormat: "json"},
			wantLevel: zerolog.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(tt.cfg, &buf)
			if logger == nil {
				t.Fatal("Expected logger to be created")
			}

			// Verify global level is set
			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("Expected global level %v, got %v", tt.wantLevel, zerolog.GlobalLevel())
			}
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
		{"invalid", zerolog.InfoLevel}, // Default
		{"", zerolog.InfoLevel},        // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoggerMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&config.Config{Env: "test", LogLevel: "debug", LogFormat: "json"}, &buf)

	tests := []struct {
		name      string
		logFunc   func()
		wantMsg   string
		wantLevel string
	}{
		{"debug", func() { logger.Debug("debug message") }, "debug message", "debug"},
		{"info", func() { logger.Info("info message") }, "info message", "info"},
		{"warn", func() { logger.Warn("warn message") }, "warn message", "warn"},
		{"error", func() { logger.Error("error message") }, "error message", "error"},
		{"infof", func() { logger.Infof("segments: %d", 42) }, "segments: 42", "info"},
		{"warnf", func() { logger.Warnf("skipped %s", "3_14") }, "skipped 3_14", "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.logFunc()

			logEntry := decodeEntry(t, &buf)
			if logEntry["level"] != tt.wantLevel {
				t.Errorf("Expected level %q, got %q", tt.wantLevel, logEntry["level"])
			}
			if logEntry["message"] != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, logEntry["message"])
			}
			if logEntry["env"] != "test" {
				t.Errorf("Expected env field, got %v", logEntry["env"])
			}
		})
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := FromZerolog(zerolog.New(&buf))

	logger.WithComponent("batch").
		WithFields(map[string]interface{}{
			"commodity_id":    3,
			"municipality_id": 14,
		}).
		WithField("reason", "insufficient_history").
		Info("segment skipped")

	logEntry := decodeEntry(t, &buf)
	if logEntry["component"] != "batch" {
		t.Errorf("Expected component batch, got %v", logEntry["component"])
	}
	if logEntry["commodity_id"] != float64(3) {
		t.Errorf("Expected commodity_id 3, got %v", logEntry["commodity_id"])
	}
	if logEntry["municipality_id"] != float64(14) {
		t.Errorf("Expected municipality_id 14, got %v", logEntry["municipality_id"])
	}
	if logEntry["reason"] != "insufficient_history" {
		t.Errorf("Expected reason field, got %v", logEntry["reason"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := FromZerolog(zerolog.New(&buf))

	logger.WithError(errors.New("model store unavailable")).Error("operation failed")

	logEntry := decodeEntry(t, &buf)
	if logEntry["error"] != "model store unavailable" {
		t.Errorf("Expected error field, got %v", logEntry["error"])
	}
	if logEntry["message"] != "operation failed" {
		t.Errorf("Expected message 'operation failed', got %v", logEntry["message"])
	}
}

type jobID string

func (j jobID) String() string { return string(j) }

func TestWithJob(t *testing.T) {
	var buf bytes.Buffer
	FromZerolog(zerolog.New(&buf)).WithJob(jobID("4f1c"), "selective").Error("job failed")

	logEntry := decodeEntry(t, &buf)
	if logEntry["job_id"] != "4f1c" {
		t.Errorf("Expected job_id 4f1c, got %v", logEntry["job_id"])
	}
	if logEntry["mode"] != "selective" {
		t.Errorf("Expected mode selective, got %v", logEntry["mode"])
	}

	buf.Reset()
	FromZerolog(zerolog.New(&buf)).WithJob(jobID("4f1c"), "").Error("lookup failed")
	if _, ok := decodeEntry(t, &buf)["mode"]; ok {
		t.Error("Expected no mode field when mode is empty")
	}
}

func TestLogFormats(t *testing.T) {
	for _, format := range []string{"json", "console", "pretty"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&config.Config{Env: "test", LogLevel: "info", LogFormat: format}, &buf)
			logger.Info("test message")

			if !strings.Contains(buf.String(), "test message") {
				t.Errorf("Expected output to contain 'test message', got: %s", buf.String())
			}
		})
	}
}

func TestNop(t *testing.T) {
	// must not panic
	Nop().WithField("k", "v").Error("discarded")
}
