package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// validConfig returns a config that passes validation, for tests that
// flip one field at a time
func validConfig() *Config {
	return &Config{
		NetBox: NetBoxConfig{
			URL:     "https://netbox.example.com",
			Token:   "token",
			Timeout: 30 * time.Second,
			Filter:  DefaultDeviceFilter,
		},
		Stream: StreamConfig{
			URLs:      []string{"nats://localhost:4222"},
			Namespace: "sonic",
			Auth:      AuthConfig{Type: "none"},
		},
		SONiC: SONiCConfig{
			ExportDir:        "/tmp/export",
			ExportPrefix:     "sonic_",
			ExportSuffix:     ".json",
			ExportIdentifier: "name",
		},
		Daemon: DaemonConfig{
			SyncInterval: 10 * time.Minute,
			FetchTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "test.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// TestValidateAuthType tests stream auth type validation
func TestValidateAuthType(t *testing.T) {
	tests := []struct {
		name    string
		auth    AuthConfig
		wantErr bool
		errText string
	}{
		{name: "none", auth: AuthConfig{Type: "none"}},
		{name: "token", auth: AuthConfig{Type: "token", Token: "t"}},
		{name: "userpass", auth: AuthConfig{Type: "userpass", Username: "u", Password: "p"}},
		{name: "creds", auth: AuthConfig{Type: "creds", CredsFile: "/etc/nats.creds"}},
		{
			name:    "invalid type",
			auth:    AuthConfig{Type: "oauth"},
			wantErr: true,
			errText: "stream.auth.type",
		},
		{
			name:    "userpass without username",
			auth:    AuthConfig{Type: "userpass"},
			wantErr: true,
			errText: "username is required",
		},
		{
			name:    "creds without file",
			auth:    AuthConfig{Type: "creds"},
			wantErr: true,
			errText: "creds_file is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Stream.Auth = tt.auth

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errText != "" && err != nil {
				if !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("validate() error = %v, want error containing %q", err, tt.errText)
				}
			}
		})
	}
}

// TestValidateNamespace tests stream namespace validation
func TestValidateNamespace(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		wantErr   bool
	}{
		{name: "alphanumeric", namespace: "sonic"},
		{name: "with dashes", namespace: "sonic-prod"},
		{name: "with underscores", namespace: "sonic_prod_1"},
		{name: "empty", namespace: "", wantErr: true},
		{name: "with dots", namespace: "sonic.prod", wantErr: true},
		{name: "with spaces", namespace: "sonic prod", wantErr: true},
		{name: "with wildcard", namespace: "sonic.*", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Stream.Namespace = tt.namespace

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestValidateExportIdentifier tests export identifier validation
func TestValidateExportIdentifier(t *testing.T) {
	tests := []struct {
		name       string
		identifier string
		wantErr    bool
	}{
		{name: "name", identifier: "name"},
		{name: "id", identifier: "id"},
		{name: "empty", identifier: "", wantErr: true},
		{name: "unknown", identifier: "hostname", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.SONiC.ExportIdentifier = tt.identifier

			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestValidateIntervals tests daemon interval validation
func TestValidateIntervals(t *testing.T) {
	cfg := validConfig()
	cfg.Daemon.SyncInterval = 0
	if err := validate(cfg); err == nil {
		t.Error("validate() accepted zero sync_interval")
	}

	cfg = validConfig()
	cfg.Daemon.FetchTimeout = -1 * time.Second
	if err := validate(cfg); err == nil {
		t.Error("validate() accepted negative fetch_timeout")
	}
}

// TestValidateLogLevel tests logging level validation
func TestValidateLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		if err := validate(cfg); err != nil {
			t.Errorf("validate() rejected level %q: %v", level, err)
		}
	}

	cfg := validConfig()
	cfg.Logging.Level = "verbose"
	if err := validate(cfg); err == nil {
		t.Error("validate() accepted unknown log level")
	}
}

// TestLoadFromFile tests loading a YAML config file
func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
netbox:
  url: https://netbox.example.com
  token: secret
  ignore_ssl_errors: true
stream:
  urls:
    - nats://nats1:4222
    - nats://nats2:4222
  namespace: sonic-test
sonic:
  export_dir: /tmp/sonic
logging:
  level: debug
  file: /tmp/test.log
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.NetBox.URL != "https://netbox.example.com" {
		t.Errorf("NetBox.URL = %q, want %q", cfg.NetBox.URL, "https://netbox.example.com")
	}
	if !cfg.NetBox.IgnoreSSLErrors {
		t.Error("NetBox.IgnoreSSLErrors = false, want true")
	}
	if len(cfg.Stream.URLs) != 2 {
		t.Errorf("Stream.URLs = %v, want 2 entries", cfg.Stream.URLs)
	}
	if cfg.Stream.Namespace != "sonic-test" {
		t.Errorf("Stream.Namespace = %q, want %q", cfg.Stream.Namespace, "sonic-test")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}

	// Defaults should fill unset fields
	if cfg.NetBox.Filter != DefaultDeviceFilter {
		t.Errorf("NetBox.Filter = %q, want default filter", cfg.NetBox.Filter)
	}
	if cfg.Daemon.SyncInterval != 10*time.Minute {
		t.Errorf("Daemon.SyncInterval = %v, want 10m", cfg.Daemon.SyncInterval)
	}
	if cfg.SONiC.ExportPrefix != "sonic_" {
		t.Errorf("SONiC.ExportPrefix = %q, want %q", cfg.SONiC.ExportPrefix, "sonic_")
	}
}

// TestLoadMissingFileUsesDefaults tests that a missing config file is
// not an error
func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v, want nil for missing file", err)
	}

	if len(cfg.Stream.URLs) != 1 || cfg.Stream.URLs[0] != "nats://localhost:4222" {
		t.Errorf("Stream.URLs = %v, want default", cfg.Stream.URLs)
	}
	if cfg.Stream.Namespace != "sonic" {
		t.Errorf("Stream.Namespace = %q, want %q", cfg.Stream.Namespace, "sonic")
	}
}

// TestLoadMalformedFile tests that a present but unparseable file errors
func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("netbox: [not: valid"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}
