// Package uninstall removes third-party driver packages and optionally
// restarts or shuts down the host afterwards.
package uninstall

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/breeze-rmm/driver-manager/internal/audit"
	"github.com/breeze-rmm/driver-manager/internal/logging"
	"github.com/breeze-rmm/driver-manager/internal/power"
)

var log = logging.L("uninstall")

const (
	DefaultPackagePattern = "oem*.inf"
	DefaultShutdownNotice = 2 * time.Second

	confirmTitle = "Confirm Uninstall"
	successTitle = "Success"
	errorTitle   = "Error"
)

var (
	// ErrNoConfirmer is returned when a Sequencer has nothing to ask.
	ErrNoConfirmer = errors.New("no confirmer configured")
	ErrNoRunner    = errors.New("no command runner configured")
)

// Options tune the sequence.
type Options struct {
	PackagePattern      string
	ShutdownNotice      time.Duration
	ForcePower          bool
	RequireCleanRemoval bool
	RunID               string
}

// Sequencer runs confirm, removal and power steps in order.
type Sequencer struct {
	opts      Options
	confirmer Confirmer
	notifier  Notifier
	runner    CommandRunner
	audit     *audit.Logger

	powerCommand func(power.Request) (string, []string, error)
	sleep        func(time.Duration)
}

// New creates a Sequencer. auditLog may be nil.
func New(opts Options, confirmer Confirmer, notifier Notifier, runner CommandRunner, auditLog *audit.Logger) *Sequencer {
	if opts.PackagePattern == "" {
		opts.PackagePattern = DefaultPackagePattern
	}
	if opts.ShutdownNotice < 0 {
		opts.ShutdownNotice = 0
	}
	if notifier == nil {
		notifier = logNotifier{}
	}
	return &Sequencer{
		opts:         opts,
		confirmer:    confirmer,
		notifier:     notifier,
		runner:       runner,
		audit:        auditLog,
		powerCommand: power.Command,
		sleep:        time.Sleep,
	}
}

// RemovalCommand returns the program and arguments that delete the driver
// packages.
func (s *Sequencer) RemovalCommand() (string, []string) {
	return "pnputil", []string{"/delete-driver", s.opts.PackagePattern, "/uninstall", "/force"}
}

// Uninstall asks for confirmation and then runs the removal followed by the
// power step for action. Failures are reported through the Notifier and
// returned in Result; Uninstall never panics out.
func (s *Sequencer) Uninstall(ctx context.Context, action PowerAction) (result Result) {
	result = Result{PowerAction: action, RemovalExitCode: -1}
	s.audit.Log(audit.EventUninstallRequested, s.opts.RunID, map[string]any{"power": action.String()})

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = OutcomeFailed
			result.Err = fmt.Errorf("uninstall panicked: %v", r)
			s.fail(result.Err)
		}
	}()

	if _, ok := powerActionNames[action]; !ok {
		return s.failed(result, &StepError{Step: StepConfirm, Err: fmt.Errorf("unsupported power action %d", int(action))})
	}
	if s.confirmer == nil {
		return s.failed(result, &StepError{Step: StepConfirm, Err: ErrNoConfirmer})
	}
	if s.runner == nil {
		return s.failed(result, &StepError{Step: StepRemoval, Err: ErrNoRunner})
	}

	ok, err := s.confirmer.Confirm(ctx, question(action))
	if err != nil {
		return s.failed(result, &StepError{Step: StepConfirm, Err: err})
	}
	if !ok {
		log.Info("uninstall declined", logging.KeyPower, action.String())
		s.audit.Log(audit.EventUninstallDeclined, s.opts.RunID, map[string]any{"power": action.String()})
		result.Outcome = OutcomeDeclined
		return result
	}

	// Issued commands must not be interrupted by Ctrl-C.
	runCtx := context.WithoutCancel(ctx)
	name, args := s.RemovalCommand()

	if action == PowerNone {
		if err := s.runner.Start(runCtx, name, args...); err != nil {
			return s.failed(result, &StepError{Step: StepRemoval, Err: err})
		}
		log.Info("removal launched", logging.KeyStep, StepRemoval, "command", commandLine(name, args))
		s.audit.Log(audit.EventRemovalExecuted, s.opts.RunID, map[string]any{
			"command": commandLine(name, args),
			"waited":  false,
		})
		s.notifier.Notify(successTitle, "Uninstall command executed. Please restart your computer manually.")
		result.Outcome = OutcomeExecuted
		return result
	}

	res, err := s.runner.Run(runCtx, name, args...)
	if err != nil {
		return s.failed(result, &StepError{Step: StepRemoval, Err: err})
	}
	result.RemovalExitCode = res.ExitCode
	s.audit.Log(audit.EventRemovalExecuted, s.opts.RunID, map[string]any{
		"command":    commandLine(name, args),
		"waited":     true,
		"exitCode":   res.ExitCode,
		"durationMs": res.Duration.Milliseconds(),
	})
	if res.ExitCode != 0 {
		log.Warn("removal exited with non-zero status",
			logging.KeyStep, StepRemoval,
			"exitCode", res.ExitCode,
			"stderr", strings.TrimSpace(res.Stderr))
		if s.opts.RequireCleanRemoval {
			return s.failed(result, &StepError{
				Step: StepRemoval,
				Err:  fmt.Errorf("%s exited with status %d", name, res.ExitCode),
			})
		}
	} else {
		log.Info("removal completed", logging.KeyStep, StepRemoval, logging.KeyDurationMs, res.Duration.Milliseconds())
	}

	req := power.Request{Kind: power.Shutdown, Force: s.opts.ForcePower}
	if action == PowerRestart {
		req.Kind = power.Restart
	}
	s.notifier.Notify(successTitle, notice(action, s.opts.ShutdownNotice))

	if action == PowerShutdownDelayed && s.opts.ShutdownNotice > 0 {
		s.sleep(s.opts.ShutdownNotice)
	}

	if err := s.issuePower(runCtx, req); err != nil {
		return s.failed(result, &StepError{Step: StepPower, Err: err})
	}
	result.Outcome = OutcomeExecuted
	return result
}

func (s *Sequencer) issuePower(ctx context.Context, req power.Request) error {
	name, args, err := s.powerCommand(req)
	if err != nil {
		return err
	}
	res, err := s.runner.Run(ctx, name, args...)
	if err != nil {
		return err
	}
	s.audit.Log(audit.EventPowerAction, s.opts.RunID, map[string]any{
		"kind":     req.Kind.String(),
		"command":  commandLine(name, args),
		"exitCode": res.ExitCode,
	})
	if res.ExitCode != 0 {
		detail := strings.TrimSpace(res.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(res.Stdout)
		}
		return fmt.Errorf("%s exited with status %d: %s", name, res.ExitCode, detail)
	}
	log.Info("power command issued", logging.KeyPower, req.Kind.String())
	return nil
}

func (s *Sequencer) failed(result Result, err error) Result {
	result.Outcome = OutcomeFailed
	result.Err = err
	s.fail(err)
	return result
}

func (s *Sequencer) fail(err error) {
	log.Error("uninstall failed", logging.KeyError, err)
	details := map[string]any{"error": err.Error()}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		details["step"] = stepErr.Step
	}
	s.audit.Log(audit.EventUninstallFailed, s.opts.RunID, details)
	s.notifier.Error(errorTitle, "Error during uninstallation: "+err.Error())
}

func question(action PowerAction) string {
	switch action {
	case PowerRestart:
		return "Are you sure you want to uninstall the NVIDIA driver and restart?"
	case PowerNone:
		return "Are you sure you want to uninstall the NVIDIA driver without restarting?"
	default:
		return "Are you sure you want to uninstall the NVIDIA driver and shut down?"
	}
}

func notice(action PowerAction, delay time.Duration) string {
	switch action {
	case PowerRestart:
		return "Uninstall command executed. Your computer will restart now."
	case PowerShutdownDelayed:
		if delay > 0 {
			return fmt.Sprintf("Uninstall command executed. Your computer will shut down in %s.", delay)
		}
		fallthrough
	default:
		return "Uninstall command executed. Your computer will shut down now."
	}
}

func commandLine(name string, args []string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

// logNotifier is used when no Notifier is supplied.
type logNotifier struct{}

func (logNotifier) Notify(title, message string) {
	log.Info(message, "title", title)
}

func (logNotifier) Error(title, message string) {
	log.Error(message, "title", title)
}
