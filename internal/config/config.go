package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete manager configuration
type Config struct {
	NetBox  NetBoxConfig  `mapstructure:"netbox"`
	Stream  StreamConfig  `mapstructure:"stream"`
	SONiC   SONiCConfig   `mapstructure:"sonic"`
	Daemon  DaemonConfig  `mapstructure:"daemon"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// NetBoxConfig configures the inventory system connection.
// URL and Token may both be empty, in which case every inventory
// lookup degrades to an empty result.
type NetBoxConfig struct {
	URL             string        `mapstructure:"url"`
	Token           string        `mapstructure:"token"`
	IgnoreSSLErrors bool          `mapstructure:"ignore_ssl_errors"`
	Timeout         time.Duration `mapstructure:"timeout"`

	// Filter is a JSON-encoded list of device match clauses, e.g.
	// [{"state": "active", "tag": ["managed-by-metalbox"]}]
	Filter string `mapstructure:"filter"`
}

// StreamConfig configures the task output log connection
type StreamConfig struct {
	URLs      []string   `mapstructure:"urls"`
	Namespace string     `mapstructure:"namespace"`
	Auth      AuthConfig `mapstructure:"auth"`
	TLS       TLSConfig  `mapstructure:"tls"`

	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// AuthConfig holds stream authentication settings
type AuthConfig struct {
	Type      string `mapstructure:"type"` // "none", "token", "userpass", "creds"
	Token     string `mapstructure:"token"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	CredsFile string `mapstructure:"creds_file"`
}

// TLSConfig holds TLS settings for the stream connection
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CAFile             string `mapstructure:"ca_file"`
	CertFile           string `mapstructure:"cert_file"`
	KeyFile            string `mapstructure:"key_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// SONiCConfig configures config document export
type SONiCConfig struct {
	ExportDir        string `mapstructure:"export_dir"`
	ExportPrefix     string `mapstructure:"export_prefix"`
	ExportSuffix     string `mapstructure:"export_suffix"`
	ExportIdentifier string `mapstructure:"export_identifier"` // "name" or "id"
	PortConfigDir    string `mapstructure:"port_config_dir"`
}

// DaemonConfig configures the periodic sync daemon
type DaemonConfig struct {
	SyncInterval time.Duration `mapstructure:"sync_interval"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// LoggingConfig configures zap output
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// DefaultDeviceFilter is used when netbox.filter is empty or malformed
const DefaultDeviceFilter = `[{"state": "active", "tag": ["managed-by-metalbox"]}]`

// Load reads configuration from the given path (or the platform default
// when path is empty), applies SONIC_MANAGER_* environment overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SONIC_MANAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = GetDefaultConfigPath()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults plus env vars form a
		// complete configuration for the common container deployment.
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("netbox.url", "")
	v.SetDefault("netbox.token", "")
	v.SetDefault("netbox.ignore_ssl_errors", false)
	v.SetDefault("netbox.timeout", 30*time.Second)
	v.SetDefault("netbox.filter", DefaultDeviceFilter)

	v.SetDefault("stream.urls", []string{"nats://localhost:4222"})
	v.SetDefault("stream.namespace", "sonic")
	v.SetDefault("stream.auth.type", "none")
	v.SetDefault("stream.max_reconnects", 10)
	v.SetDefault("stream.reconnect_wait", 2*time.Second)

	v.SetDefault("sonic.export_prefix", "sonic_")
	v.SetDefault("sonic.export_suffix", ".json")
	v.SetDefault("sonic.export_identifier", "name")

	v.SetDefault("daemon.sync_interval", 10*time.Minute)
	v.SetDefault("daemon.fetch_timeout", 5*time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)

	UpdateConfigDefaults(v)
}

func validate(cfg *Config) error {
	if len(cfg.Stream.URLs) == 0 {
		return fmt.Errorf("stream.urls must not be empty")
	}

	switch cfg.Stream.Auth.Type {
	case "none", "token", "userpass", "creds":
	default:
		return fmt.Errorf("stream.auth.type must be one of none, token, userpass, creds (got %q)", cfg.Stream.Auth.Type)
	}
	if cfg.Stream.Auth.Type == "userpass" && cfg.Stream.Auth.Username == "" {
		return fmt.Errorf("stream.auth.username is required for userpass auth")
	}
	if cfg.Stream.Auth.Type == "creds" && cfg.Stream.Auth.CredsFile == "" {
		return fmt.Errorf("stream.auth.creds_file is required for creds auth")
	}

	if cfg.Stream.Namespace == "" {
		return fmt.Errorf("stream.namespace must not be empty")
	}
	for _, r := range cfg.Stream.Namespace {
		if !isSubjectTokenRune(r) {
			return fmt.Errorf("stream.namespace must contain only alphanumeric characters, dashes, and underscores (got %q)", cfg.Stream.Namespace)
		}
	}

	switch cfg.SONiC.ExportIdentifier {
	case "name", "id":
	default:
		return fmt.Errorf("sonic.export_identifier must be \"name\" or \"id\" (got %q)", cfg.SONiC.ExportIdentifier)
	}

	if cfg.Daemon.SyncInterval <= 0 {
		return fmt.Errorf("daemon.sync_interval must be positive")
	}
	if cfg.Daemon.FetchTimeout <= 0 {
		return fmt.Errorf("daemon.fetch_timeout must be positive")
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", cfg.Logging.Level)
	}

	return nil
}

func isSubjectTokenRune(r rune) bool {
	return r == '-' || r == '_' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z')
}
