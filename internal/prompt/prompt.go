// Package prompt implements the operator-facing confirmation and
// notification used by the uninstall sequence.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when confirmation is needed but stdin or
// stdout is not a terminal. Pass --yes to run unattended.
var ErrNotInteractive = errors.New("confirmation requires an interactive terminal (use --yes to skip)")

// IsInteractive reports whether stdin and stdout are both terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// HuhConfirmer asks yes/no questions with a huh confirm form.
type HuhConfirmer struct {
	Title string

	isTerminal func() bool
	runForm    func(ctx context.Context, form *huh.Form) error
}

// NewHuhConfirmer creates a confirmer using the default terminal check.
func NewHuhConfirmer(title string) *HuhConfirmer {
	return &HuhConfirmer{
		Title:      title,
		isTerminal: IsInteractive,
		runForm:    func(ctx context.Context, form *huh.Form) error { return form.RunWithContext(ctx) },
	}
}

// Confirm shows question and returns the answer. Esc or Ctrl+C count as no.
func (c *HuhConfirmer) Confirm(ctx context.Context, question string) (bool, error) {
	if c.isTerminal != nil && !c.isTerminal() {
		return false, ErrNotInteractive
	}

	answer := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(c.Title).
				Description(question).
				Affirmative("Yes").
				Negative("No").
				Value(&answer),
		),
	)

	err := c.runForm(ctx, form)
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("confirmation prompt: %w", err)
	}
	return answer, nil
}

// AutoYes confirms every question without asking.
type AutoYes struct{}

func (AutoYes) Confirm(context.Context, string) (bool, error) {
	return true, nil
}

// Console writes notices and errors to the terminal, coloured when the
// output supports it.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	err io.Writer
}

// NewConsole creates a Console writing notices to out and errors to errOut.
func NewConsole(out, errOut io.Writer) *Console {
	return &Console{out: out, err: errOut}
}

func (c *Console) Notify(title, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s\n", color.GreenString(title+":"), message)
}

func (c *Console) Error(title, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.err, "%s %s\n", color.RedString(title+":"), message)
}

// Warn prints an advisory that does not stop the run.
func (c *Console) Warn(title, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.err, "%s %s\n", color.YellowString(title+":"), message)
}
