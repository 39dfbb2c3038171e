package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/klubi/stratus/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		enabled zapcore.Level
		wantErr bool
	}{
		{"console info", config.LogConfig{Level: "info", Format: "console", Name: "Mastra"}, zapcore.InfoLevel, false},
		{"json debug", config.LogConfig{Level: "debug", Format: "json"}, zapcore.DebugLevel, false},
		{"bad level", config.LogConfig{Level: "loud"}, 0, true},
		{"bad format", config.LogConfig{Level: "info", Format: "xml"}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !logger.Core().Enabled(tt.enabled) {
				t.Errorf("expected level %s enabled", tt.enabled)
			}
			if tt.enabled == zapcore.InfoLevel && logger.Core().Enabled(zapcore.DebugLevel) {
				t.Error("debug should be disabled at info level")
			}
			if tt.cfg.Name != "" && logger.Name() != tt.cfg.Name {
				t.Errorf("expected logger name %q, got %q", tt.cfg.Name, logger.Name())
			}
		})
	}
}
