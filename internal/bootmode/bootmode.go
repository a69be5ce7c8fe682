// Package bootmode reports whether the host is running in a degraded
// (safe / diagnostic) boot mode.
package bootmode

import "os"

// DefaultIndicator is the variable Windows sets when booted into safe mode
// (Minimal, Network or DsRepair). Older builds of the tool read SAFEBOOT,
// which Windows does not set; configure safe_boot_env to restore that.
const DefaultIndicator = "SAFEBOOT_OPTION"

// BootModeQuery looks up a process-wide boot indicator.
type BootModeQuery interface {
	Lookup(name string) (string, bool)
}

// EnvQuery reads indicators from the process environment.
type EnvQuery struct{}

func (EnvQuery) Lookup(name string) (string, bool) {
	return os.LookupEnv(name)
}

// QueryFunc adapts a plain function to BootModeQuery.
type QueryFunc func(name string) (string, bool)

func (f QueryFunc) Lookup(name string) (string, bool) {
	return f(name)
}

// Probe answers IsDegradedBootMode from a single indicator.
type Probe struct {
	query     BootModeQuery
	indicator string
}

// NewProbe returns a Probe reading indicator through query. A nil query
// reads the environment; an empty indicator uses DefaultIndicator.
func NewProbe(query BootModeQuery, indicator string) *Probe {
	if query == nil {
		query = EnvQuery{}
	}
	if indicator == "" {
		indicator = DefaultIndicator
	}
	return &Probe{query: query, indicator: indicator}
}

// Indicator returns the name of the indicator the probe reads.
func (p *Probe) Indicator() string {
	return p.indicator
}

// IsDegradedBootMode reports true iff the indicator is present and non-empty.
func (p *Probe) IsDegradedBootMode() bool {
	value, ok := p.query.Lookup(p.indicator)
	return ok && value != ""
}
