package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/breeze-rmm/driver-manager/internal/audit"
	"github.com/breeze-rmm/driver-manager/internal/bootmode"
	"github.com/breeze-rmm/driver-manager/internal/config"
	"github.com/breeze-rmm/driver-manager/internal/detect"
	"github.com/breeze-rmm/driver-manager/internal/executor"
	"github.com/breeze-rmm/driver-manager/internal/logging"
	"github.com/breeze-rmm/driver-manager/internal/privilege"
	"github.com/breeze-rmm/driver-manager/internal/prompt"
	"github.com/breeze-rmm/driver-manager/internal/report"
	"github.com/breeze-rmm/driver-manager/internal/uninstall"
)

var log = logging.L("main")

// errUninstallFailed is returned after the failure was already shown to
// the operator.
var errUninstallFailed = errors.New("uninstall failed")

const safeModeAdvice = "driver-manager detected that you are NOT in safe mode.\n" +
	"For an error-free cleanup, it is recommended to restart in safe mode."

type app struct {
	cfg     *config.Config
	runID   string
	stdout  io.Writer
	console *prompt.Console

	probe     *bootmode.Probe
	cascade   *detect.Cascade
	runner    *executor.Runner
	confirmer uninstall.Confirmer
	audit     *audit.Logger
	logFile   *logging.RotatingWriter
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	cfg.Validate()

	a := &app{
		cfg:     cfg,
		runID:   uuid.NewString(),
		stdout:  cmd.OutOrStdout(),
		console: prompt.NewConsole(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}

	var logOutput io.Writer = cmd.ErrOrStderr()
	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		a.logFile = rw
		logOutput = logging.TeeWriter(logOutput, rw)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, logOutput)

	if cfg.AuditEnabled {
		al, err := audit.NewLogger(cfg)
		if err != nil {
			log.Warn("audit log unavailable", logging.KeyError, err)
		} else {
			a.audit = al
		}
	}

	a.runner = executor.New()
	a.probe = bootmode.NewProbe(bootmode.EnvQuery{}, cfg.SafeBootEnv)
	a.cascade = detect.New(detect.Options{
		DeviceFilter:     cfg.DeviceFilter,
		SMIPath:          cfg.SMIPath,
		SMIFallbackPaths: cfg.SMIFallbackPaths,
		SMITimeout:       time.Duration(cfg.SMITimeoutSeconds) * time.Second,
		RegistryPath:     cfg.RegistryPath,
		RegistryValue:    cfg.RegistryValue,
	}, detect.NewInventory(), a.runner, detect.NewConfigStore())

	if cfg.AssumeYes {
		a.confirmer = prompt.AutoYes{}
	} else {
		a.confirmer = prompt.NewHuhConfirmer("Confirm Uninstall")
	}

	log.Debug("driver-manager started", "version", version, "runId", a.runID)
	return a, nil
}

// applyFlags copies explicitly set persistent flags over file and env values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if assumeYes {
		cfg.AssumeYes = true
	}
}

func (a *app) Close() {
	if err := a.audit.Close(); err != nil {
		log.Warn("failed to close audit log", logging.KeyError, err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}

func (a *app) auditPath() string {
	if p := a.audit.Path(); p != "" {
		return p
	}
	return filepath.Join(a.cfg.GetDataDir(), "audit.jsonl")
}

// advise warns when the machine is not in safe boot.
func (a *app) advise() {
	safe := a.probe.IsDegradedBootMode()
	log.Debug("boot mode checked", "indicator", a.probe.Indicator(), "safeMode", safe)
	if !safe {
		a.console.Warn("Attention", safeModeAdvice)
	}
}

func (a *app) detect(ctx context.Context, output string) (*detect.Detection, error) {
	format, err := report.ParseFormat(output)
	if err != nil {
		return nil, err
	}

	d, err := a.cascade.DetectVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("driver detection: %w", err)
	}
	a.audit.Log(audit.EventDetection, a.runID, map[string]any{
		"finalVersion": d.FinalVersion,
		"selectedFrom": d.SelectedFrom,
		"display":      d.Display,
	})

	r := &report.Report{
		RunID:       a.runID,
		GeneratedAt: time.Now().UTC(),
		SafeMode:    a.probe.IsDegradedBootMode(),
		Detection:   d,
	}
	if format != report.FormatText {
		r.Host = report.CollectHost(ctx)
	}
	if err := report.Write(a.stdout, format, r); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return d, nil
}

func (a *app) uninstall(ctx context.Context, action uninstall.PowerAction) error {
	if err := privilege.Check(privilege.OpUninstall); err != nil {
		a.audit.Log(audit.EventUninstallFailed, a.runID, map[string]any{"error": err.Error()})
		a.console.Error("Error", err.Error())
		return errUninstallFailed
	}

	seq := uninstall.New(uninstall.Options{
		PackagePattern:      a.cfg.PackagePattern,
		ShutdownNotice:      time.Duration(a.cfg.ShutdownNoticeSeconds) * time.Second,
		ForcePower:          a.cfg.ForcePowerAction,
		RequireCleanRemoval: a.cfg.RequireCleanRemoval,
		RunID:               a.runID,
	}, a.confirmer, a.console, a.runner, a.audit)

	res := seq.Uninstall(ctx, action)
	log.Info("uninstall finished",
		"outcome", res.Outcome.String(),
		logging.KeyPower, res.PowerAction.String(),
		"removalExitCode", res.RemovalExitCode)
	if res.Outcome == uninstall.OutcomeFailed {
		return errUninstallFailed
	}
	return nil
}
