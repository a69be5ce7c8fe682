package detect

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/breeze-rmm/driver-manager/internal/executor"
	"github.com/breeze-rmm/driver-manager/internal/logging"
)

var log = logging.L("detect")

// CommandRunner runs an external command to completion.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (*executor.Result, error)
}

// Options configures the three sources.
type Options struct {
	DeviceFilter     string
	SMIPath          string
	SMIFallbackPaths []string
	SMITimeout       time.Duration
	RegistryPath     string
	RegistryValue    string
}

// Cascade queries the inventory, the live diagnostic tool and the persisted
// driver configuration, in that order, and keeps the first usable version.
type Cascade struct {
	opts      Options
	inventory Inventory
	runner    CommandRunner
	store     ConfigStore
	lookPath  func(string) (string, error)
}

// New creates a Cascade. Nil capabilities make their source report NotFound.
func New(opts Options, inventory Inventory, runner CommandRunner, store ConfigStore) *Cascade {
	return &Cascade{
		opts:      opts,
		inventory: inventory,
		runner:    runner,
		store:     store,
		lookPath:  exec.LookPath,
	}
}

// DetectVersion runs one detection pass. Every source is attempted so the
// per-source results are complete; only the first non-empty candidate is
// selected. Source failures never surface as errors.
func (c *Cascade) DetectVersion(ctx context.Context) (*Detection, error) {
	if c == nil {
		return nil, fmt.Errorf("detect: cascade is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	start := time.Now()
	d := &Detection{}

	var invResult SourceResult
	d.Records, invResult = c.enumerate(ctx)
	for _, rec := range d.Records {
		d.Lines = append(d.Lines, rec.Line())
	}
	if len(d.Lines) == 0 {
		d.Lines = append(d.Lines, NoInventoryLine)
	}
	c.consider(d, invResult)

	c.consider(d, c.guard(ctx, SourceSMI, c.querySMI))
	c.consider(d, c.guard(ctx, SourceRegistry, c.readStore))

	d.Display = DisplayVersion(d.FinalVersion)

	log.Info("detection finished",
		"finalVersion", d.FinalVersion,
		"selectedFrom", d.SelectedFrom,
		"records", len(d.Records),
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	return d, nil
}

// consider records a source result and locks FinalVersion on the first
// non-empty candidate.
func (c *Cascade) consider(d *Detection, r SourceResult) {
	d.Results = append(d.Results, r)

	switch r.Status {
	case StatusError:
		log.Warn("version source failed", logging.KeySource, r.Source, logging.KeyError, r.Detail)
	case StatusNotFound:
		log.Debug("version source found nothing", logging.KeySource, r.Source, "detail", r.Detail)
	default:
		log.Debug("version source found candidate", logging.KeySource, r.Source, "value", r.Value)
	}

	if d.FinalVersion != "" {
		return
	}
	if candidate := r.Candidate(); candidate != "" {
		d.FinalVersion = candidate
		d.SelectedFrom = r.Source
	}
}

// guard runs a source, converting a panic into that source's Error result.
func (c *Cascade) guard(ctx context.Context, source string, fn func(context.Context) SourceResult) (result SourceResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = failed(source, fmt.Errorf("source panicked: %v", rec))
		}
	}()
	return fn(ctx)
}
