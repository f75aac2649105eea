package config

import (
	"runtime"
)

// PlatformDefaults returns platform-specific default values
type PlatformDefaults struct {
	LogFile       string
	ConfigPath    string
	ExportDir     string
	PortConfigDir string
}

// GetPlatformDefaults returns platform-specific defaults based on runtime.GOOS
func GetPlatformDefaults() PlatformDefaults {
	switch runtime.GOOS {
	case "windows":
		return PlatformDefaults{
			LogFile:       `C:\ProgramData\SonicManager\sonic-manager.log`,
			ConfigPath:    `C:\ProgramData\SonicManager\config.yaml`,
			ExportDir:     `C:\ProgramData\SonicManager\export`,
			PortConfigDir: `C:\ProgramData\SonicManager\port_config`,
		}
	default:
		return PlatformDefaults{
			LogFile:       "/var/log/sonic-manager/sonic-manager.log",
			ConfigPath:    "/etc/sonic-manager/config.yaml",
			ExportDir:     "/var/lib/sonic-manager/export",
			PortConfigDir: "/usr/share/sonic-manager/port_config",
		}
	}
}

// GetDefaultConfigPath returns the platform-specific default config path
func GetDefaultConfigPath() string {
	return GetPlatformDefaults().ConfigPath
}

// UpdateConfigDefaults updates viper defaults with platform-specific values.
// This is called from setDefaults() in config.go.
func UpdateConfigDefaults(v interface{}) {
	type viperLike interface {
		SetDefault(key string, value interface{})
	}

	if viperInstance, ok := v.(viperLike); ok {
		defaults := GetPlatformDefaults()

		viperInstance.SetDefault("logging.file", defaults.LogFile)
		viperInstance.SetDefault("sonic.export_dir", defaults.ExportDir)
		viperInstance.SetDefault("sonic.port_config_dir", defaults.PortConfigDir)
	}
}
