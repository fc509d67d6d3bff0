package driver

import (
	"path/filepath"
	"testing"

	"github.com/ajprasad1994/opsBuddy/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.LoggingConfig
		wantErr    bool
		wantCloser bool
	}{
		{
			name: "stdout json",
			cfg:  config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name: "stdout console",
			cfg:  config.LoggingConfig{Level: "debug", Format: "console"},
		},
		{
			name: "file",
			cfg: config.LoggingConfig{
				Level:  "warn",
				Output: "file",
				File:   config.LogFileConfig{Path: filepath.Join(t.TempDir(), "gw.log")},
			},
			wantCloser: true,
		},
		{
			name:    "invalid level",
			cfg:     config.LoggingConfig{Level: "loud"},
			wantErr: true,
		},
		{
			name:    "file without path",
			cfg:     config.LoggingConfig{Level: "info", Output: "file"},
			wantErr: true,
		},
		{
			name:    "unknown output",
			cfg:     config.LoggingConfig{Level: "info", Output: "syslog"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, closer, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if logger == nil {
				t.Fatal("New() returned nil logger")
			}
			if tt.wantCloser != (closer != nil) {
				t.Errorf("closer = %v, wantCloser %v", closer, tt.wantCloser)
			}
			if closer != nil {
				closer.Close()
			}
		})
	}
}
