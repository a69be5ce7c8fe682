package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	// Detection
	DeviceFilter      string   `mapstructure:"device_filter"`
	SMIPath           string   `mapstructure:"smi_path"`
	SMIFallbackPaths  []string `mapstructure:"smi_fallback_paths"`
	SMITimeoutSeconds int      `mapstructure:"smi_timeout_seconds"`
	RegistryPath      string   `mapstructure:"registry_path"`
	RegistryValue     string   `mapstructure:"registry_value"`
	SafeBootEnv       string   `mapstructure:"safe_boot_env"`

	// Uninstall
	PackagePattern        string `mapstructure:"package_pattern"`
	ShutdownNoticeSeconds int    `mapstructure:"shutdown_notice_seconds"`
	ForcePowerAction      bool   `mapstructure:"force_power_action"`
	RequireCleanRemoval   bool   `mapstructure:"require_clean_removal"`
	AssumeYes             bool   `mapstructure:"assume_yes"`

	// Logging and audit
	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format"`
	LogFile         string `mapstructure:"log_file"`
	LogMaxSizeMB    int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups   int    `mapstructure:"log_max_backups"`
	AuditEnabled    bool   `mapstructure:"audit_enabled"`
	AuditMaxSizeMB  int    `mapstructure:"audit_max_size_mb"`
	AuditMaxBackups int    `mapstructure:"audit_max_backups"`
	DataDir         string `mapstructure:"data_dir"`
}

func Default() *Config {
	return &Config{
		DeviceFilter: "NVIDIA GeForce",
		SMIPath:      "nvidia-smi",
		SMIFallbackPaths: []string{
			`C:\Program Files\NVIDIA Corporation\NVSMI\nvidia-smi.exe`,
			`C:\Windows\System32\nvidia-smi.exe`,
		},
		RegistryPath:          `SOFTWARE\NVIDIA Corporation\Installer2\Drivers`,
		RegistryValue:         "Display.Driver",
		SafeBootEnv:           "SAFEBOOT_OPTION", // SAFEBOOT in older builds
		PackagePattern:        "oem*.inf",
		ShutdownNoticeSeconds: 2,
		ForcePowerAction:      true,
		LogLevel:              "warn",
		LogFormat:             "text",
		LogMaxSizeMB:          10,
		LogMaxBackups:         3,
		AuditEnabled:          true,
		AuditMaxSizeMB:        10,
		AuditMaxBackups:       3,
	}
}

// Load reads driver-manager.yaml from cfgFile, or from the config directory
// and the working directory when cfgFile is empty. A missing file is not an
// error. Environment variables prefixed DRIVER_MANAGER_ override file values.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("driver-manager")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DRIVER_MANAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// bindDefaults registers every key so AutomaticEnv can override keys that
// are absent from the config file.
func bindDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("device_filter", cfg.DeviceFilter)
	v.SetDefault("smi_path", cfg.SMIPath)
	v.SetDefault("smi_fallback_paths", cfg.SMIFallbackPaths)
	v.SetDefault("smi_timeout_seconds", cfg.SMITimeoutSeconds)
	v.SetDefault("registry_path", cfg.RegistryPath)
	v.SetDefault("registry_value", cfg.RegistryValue)
	v.SetDefault("safe_boot_env", cfg.SafeBootEnv)
	v.SetDefault("package_pattern", cfg.PackagePattern)
	v.SetDefault("shutdown_notice_seconds", cfg.ShutdownNoticeSeconds)
	v.SetDefault("force_power_action", cfg.ForcePowerAction)
	v.SetDefault("require_clean_removal", cfg.RequireCleanRemoval)
	v.SetDefault("assume_yes", cfg.AssumeYes)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_max_size_mb", cfg.LogMaxSizeMB)
	v.SetDefault("log_max_backups", cfg.LogMaxBackups)
	v.SetDefault("audit_enabled", cfg.AuditEnabled)
	v.SetDefault("audit_max_size_mb", cfg.AuditMaxSizeMB)
	v.SetDefault("audit_max_backups", cfg.AuditMaxBackups)
	v.SetDefault("data_dir", cfg.DataDir)
}

// GetDataDir returns the directory holding the audit trail and log files.
func (c *Config) GetDataDir() string {
	if c != nil && c.DataDir != "" {
		return c.DataDir
	}
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "DriverManager")
	case "darwin":
		return "/Library/Application Support/DriverManager"
	default:
		return "/var/lib/driver-manager"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "DriverManager")
	case "darwin":
		return "/Library/Application Support/DriverManager"
	default:
		return "/etc/driver-manager"
	}
}
