package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MinimalConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Write minimal config; everything else comes from defaults
	configContent := `
logging:
  level: "INFO"

server:
  root: "/srv/tftp"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	// Load config
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Verify defaults were applied
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.ListenAddr != "0.0.0.0" {
		t.Errorf("Expected default listen_addr 0.0.0.0, got %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.Port != 69 {
		t.Errorf("Expected default port 69, got %d", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 5*time.Second {
		t.Errorf("Expected default timeout 5s, got %v", cfg.Server.Timeout)
	}
	if cfg.Server.Retries != 3 {
		t.Errorf("Expected default retries 3, got %d", cfg.Server.Retries)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Client.Timeout != 5*time.Second {
		t.Errorf("Expected default client timeout 5s, got %v", cfg.Client.Timeout)
	}
	if cfg.Metrics.Enabled {
		t.Error("Expected metrics to be disabled by default")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Loading with no config file returns a valid default config.
	// This allows running the server without a config file for quick testing.
	tmpDir := t.TempDir()
	nonExistentPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(nonExistentPath)
	if err != nil {
		t.Fatalf("Expected no error when loading default config, got: %v", err)
	}

	if cfg == nil {
		t.Fatal("Expected default config to be returned")
	}
	if cfg.Server.Root != "/srv/tftp" {
		t.Errorf("Expected default root /srv/tftp, got %q", cfg.Server.Root)
	}
	if cfg.Server.Port != 69 {
		t.Errorf("Expected default port 69, got %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	configContent := `
logging:
  level: INFO
  invalid yaml here [[[
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestLoad_DurationStrings(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  root: "/srv/tftp"
  timeout: "2s"
  shutdown_timeout: "1m"

client:
  timeout: "250ms"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Timeout != 2*time.Second {
		t.Errorf("Expected server timeout 2s, got %v", cfg.Server.Timeout)
	}
	if cfg.Server.ShutdownTimeout != time.Minute {
		t.Errorf("Expected shutdown_timeout 1m, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Client.Timeout != 250*time.Millisecond {
		t.Errorf("Expected client timeout 250ms, got %v", cfg.Client.Timeout)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: "INFO"

server:
  root: "/srv/tftp"
  port: 6969
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("TFTPFS_LOGGING_LEVEL", "debug")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	// Level is normalized to uppercase after the env override
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level DEBUG from environment, got %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != 6969 {
		t.Errorf("Expected port 6969 from file, got %d", cfg.Server.Port)
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// max_blksize below the RFC 2348 floor must be rejected
	configContent := `
server:
  root: "/srv/tftp"
  max_blksize: 4
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected validation error for max_blksize 4, got nil")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	original := GetDefaultConfig()
	original.Server.Port = 6969
	original.Client.Blksize = 1432

	if err := SaveConfig(original, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	// The file should be created with restrictive permissions
	info, err := os.Stat(configPath)
	if err != nil {
		t.Fatalf("Saved config file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected file mode 0600, got %o", perm)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Server.Port != 6969 {
		t.Errorf("Expected port 6969 after round trip, got %d", loaded.Server.Port)
	}
	if loaded.Client.Blksize != 1432 {
		t.Errorf("Expected client blksize 1432 after round trip, got %d", loaded.Client.Blksize)
	}
}

func TestMustLoad_MissingExplicitFile(t *testing.T) {
	tmpDir := t.TempDir()
	missing := filepath.Join(tmpDir, "absent.yaml")

	if _, err := MustLoad(missing); err == nil {
		t.Error("Expected error for missing explicit config file, got nil")
	}
}

func TestGetDefaultConfigPath_XDG(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	expected := filepath.Join(tmpDir, "tftpfs", "config.yaml")
	if got := GetDefaultConfigPath(); got != expected {
		t.Errorf("Expected config path %q, got %q", expected, got)
	}
}
