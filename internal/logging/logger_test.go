package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				ServiceName: "harvester",
				Environment: "development",
				LogLevel:    "info",
				OutputPath:  "stdout",
			},
			wantErr: false,
		},
		{
			name:    "default config",
			config:  DefaultConfig().WithServiceName("harvester"),
			wantErr: false,
		},
		{
			name: "invalid log level defaults to info",
			config: Config{
				ServiceName: "harvester",
				Environment: "development",
				LogLevel:    "invalid",
				OutputPath:  "stderr",
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if logger == nil && !tt.wantErr {
				t.Error("New() returned nil logger")
			}
			if logger != nil {
				logger.Sync()
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"invalid", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
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

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvester.log")

	logger, err := New(Config{
		ServiceName: "harvester",
		Environment: "production",
		LogLevel:    "info",
		OutputPath:  path,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("run complete")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("log entry is not JSON: %v", err)
	}
	if entry["service"] != "harvester" {
		t.Errorf("service field = %v, want harvester", entry["service"])
	}
	if entry["msg"] != "run complete" {
		t.Errorf("msg field = %v, want run complete", entry["msg"])
	}
}
