package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/breeze-rmm/driver-manager/internal/logging"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// Validate checks the config for invalid values and returns all errors found.
// Values that would break the sequencer are clamped or reset to defaults;
// everything found is logged as a warning and does not prevent startup.
func (c *Config) Validate() []error {
	var errs []error
	def := Default()

	if strings.TrimSpace(c.DeviceFilter) == "" {
		errs = append(errs, fmt.Errorf("device_filter is empty, using %q", def.DeviceFilter))
		c.DeviceFilter = def.DeviceFilter
	}

	if strings.TrimSpace(c.SMIPath) == "" {
		errs = append(errs, fmt.Errorf("smi_path is empty, using %q", def.SMIPath))
		c.SMIPath = def.SMIPath
	}

	if c.SMITimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("smi_timeout_seconds %d is negative, disabling timeout", c.SMITimeoutSeconds))
		c.SMITimeoutSeconds = 0
	} else if c.SMITimeoutSeconds > 600 {
		errs = append(errs, fmt.Errorf("smi_timeout_seconds %d exceeds maximum 600, clamping", c.SMITimeoutSeconds))
		c.SMITimeoutSeconds = 600
	}

	if strings.TrimSpace(c.RegistryPath) == "" {
		errs = append(errs, fmt.Errorf("registry_path is empty, using %q", def.RegistryPath))
		c.RegistryPath = def.RegistryPath
	}
	if strings.TrimSpace(c.RegistryValue) == "" {
		errs = append(errs, fmt.Errorf("registry_value is empty, using %q", def.RegistryValue))
		c.RegistryValue = def.RegistryValue
	}

	if strings.TrimSpace(c.SafeBootEnv) == "" {
		errs = append(errs, fmt.Errorf("safe_boot_env is empty, using %q", def.SafeBootEnv))
		c.SafeBootEnv = def.SafeBootEnv
	}

	// The removal command only ever targets third-party driver packages.
	if _, err := path.Match(c.PackagePattern, ""); err != nil || !strings.HasSuffix(strings.ToLower(c.PackagePattern), ".inf") {
		errs = append(errs, fmt.Errorf("package_pattern %q must be a glob ending in .inf, using %q", c.PackagePattern, def.PackagePattern))
		c.PackagePattern = def.PackagePattern
	}

	if c.ShutdownNoticeSeconds < 0 {
		errs = append(errs, fmt.Errorf("shutdown_notice_seconds %d is negative, clamping to 0", c.ShutdownNoticeSeconds))
		c.ShutdownNoticeSeconds = 0
	} else if c.ShutdownNoticeSeconds > 60 {
		errs = append(errs, fmt.Errorf("shutdown_notice_seconds %d exceeds maximum 60, clamping", c.ShutdownNoticeSeconds))
		c.ShutdownNoticeSeconds = 60
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if c.LogMaxSizeMB < 1 {
		errs = append(errs, fmt.Errorf("log_max_size_mb %d is below minimum 1, clamping", c.LogMaxSizeMB))
		c.LogMaxSizeMB = 1
	}
	if c.AuditMaxSizeMB < 1 {
		errs = append(errs, fmt.Errorf("audit_max_size_mb %d is below minimum 1, clamping", c.AuditMaxSizeMB))
		c.AuditMaxSizeMB = 1
	}

	for _, err := range errs {
		logging.L("config").Warn("config validation", logging.KeyError, err)
	}

	return errs
}
