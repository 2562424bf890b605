package config

import (
	"strings"
	"testing"
)

func TestValidate_DefaultConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Errorf("Expected default config to validate, got: %v", err)
	}
}

func TestValidate_MissingRoot(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Root = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for missing server root, got nil")
	}
	// The error should name the offending field so the user can find it
	if !strings.Contains(err.Error(), "Server.Root") {
		t.Errorf("Expected error to mention Server.Root, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "VERBOSE"

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for invalid log level, got nil")
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for invalid log format, got nil")
	}
}

func TestValidate_PortOutOfRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Port = 70000

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected error for port 70000, got nil")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected error to name the failed rule, got: %v", err)
	}
}

func TestValidate_BlksizeBounds(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "ServerMaxBlksizeZeroAllowed", mutate: func(c *Config) { c.Server.MaxBlksize = 0 }},
		{name: "ServerMaxBlksizeFloor", mutate: func(c *Config) { c.Server.MaxBlksize = 8 }},
		{name: "ServerMaxBlksizeCeiling", mutate: func(c *Config) { c.Server.MaxBlksize = 65464 }},
		{name: "ServerMaxBlksizeTooSmall", mutate: func(c *Config) { c.Server.MaxBlksize = 4 }, wantErr: true},
		{name: "ServerMaxBlksizeTooLarge", mutate: func(c *Config) { c.Server.MaxBlksize = 65465 }, wantErr: true},
		{name: "ClientBlksizeTooSmall", mutate: func(c *Config) { c.Client.Blksize = 7 }, wantErr: true},
		{name: "ClientBlksizeValid", mutate: func(c *Config) { c.Client.Blksize = 1432 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected config to validate, got: %v", err)
			}
		})
	}
}

func TestValidate_RetriesMustBePositive(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.Retries = -1

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for negative retries, got nil")
	}
}

func TestValidate_MetricsPortRange(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 100000

	if err := Validate(cfg); err == nil {
		t.Error("Expected error for metrics port out of range, got nil")
	}
}
