package uninstall

import (
	"context"
	"fmt"
	"strings"

	"github.com/breeze-rmm/driver-manager/internal/executor"
)

// PowerAction is what happens to the host after the removal command.
type PowerAction int

const (
	PowerNone PowerAction = iota
	PowerRestart
	PowerShutdown
	PowerShutdownDelayed
)

var powerActionNames = map[PowerAction]string{
	PowerNone:            "none",
	PowerRestart:         "restart",
	PowerShutdown:        "shutdown",
	PowerShutdownDelayed: "shutdown-delayed",
}

func (a PowerAction) String() string {
	if name, ok := powerActionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("PowerAction(%d)", int(a))
}

// ParsePowerAction accepts the names printed by String, case-insensitively.
func ParsePowerAction(s string) (PowerAction, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for action, name := range powerActionNames {
		if name == want {
			return action, nil
		}
	}
	return PowerNone, fmt.Errorf("unknown power action %q (want none, restart, shutdown or shutdown-delayed)", s)
}

// Command-line directives accepted in place of a subcommand.
const (
	DirectiveRestart   = "/uninstallrestart"
	DirectiveNoRestart = "/uninstallnorestart"
	DirectiveShutdown  = "/uninstallshutdown"
)

// ParseDirective maps a positional directive to its power action.
func ParseDirective(arg string) (PowerAction, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case DirectiveRestart:
		return PowerRestart, nil
	case DirectiveNoRestart:
		return PowerNone, nil
	case DirectiveShutdown:
		return PowerShutdown, nil
	default:
		return PowerNone, fmt.Errorf("unknown directive %q", arg)
	}
}

// IsDirective reports whether arg looks like a directive rather than a
// subcommand name.
func IsDirective(arg string) bool {
	return strings.HasPrefix(arg, "/")
}

// Outcome is the terminal state of one uninstall attempt.
type Outcome int

const (
	OutcomeExecuted Outcome = iota
	OutcomeDeclined
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "executed"
	case OutcomeDeclined:
		return "declined"
	default:
		return "failed"
	}
}

// Result is returned by Sequencer.Uninstall. Err is set only for
// OutcomeFailed. RemovalExitCode is -1 when the removal was launched
// without waiting or never launched.
type Result struct {
	Outcome         Outcome
	PowerAction     PowerAction
	RemovalExitCode int
	Err             error
}

// Steps reported in StepError.
const (
	StepConfirm = "confirm"
	StepRemoval = "removal"
	StepPower   = "power"
)

// StepError identifies which step of the sequence failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Notifier reports progress and failures to the operator.
type Notifier interface {
	Notify(title, message string)
	Error(title, message string)
}

// CommandRunner runs or launches external commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (*executor.Result, error)
	Start(ctx context.Context, name string, args ...string) error
}
