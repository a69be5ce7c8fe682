package detect

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a structural absence in a source (missing key,
	// missing value, missing binary). It never reaches the caller.
	ErrNotFound = errors.New("not found")
	// ErrNotSupported is returned by platform capabilities that have no
	// implementation on the running OS.
	ErrNotSupported = errors.New("not supported on this platform")
)

// Source names, in priority order.
const (
	SourceInventory = "inventory"
	SourceSMI       = "nvidia-smi"
	SourceRegistry  = "registry"
)

// Display strings.
const (
	DisplayPrefix   = "Driver "
	NotFoundMessage = "No driver version found."
	NoInventoryLine = "No drivers found via inventory query"
	displayWidth    = 6
)

// DriverRecord is one matching device reported by the inventory source.
type DriverRecord struct {
	DeviceName string `json:"deviceName" yaml:"deviceName"`
	Version    string `json:"version" yaml:"version"`
}

// Line formats the record for the display list.
func (r DriverRecord) Line() string {
	return fmt.Sprintf("Device: %s, Version: %s", r.DeviceName, r.Version)
}

// Status is the outcome of one source attempt.
type Status int

const (
	StatusNotFound Status = iota
	StatusFound
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusError:
		return "error"
	default:
		return "not_found"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SourceResult is what one guarded source produced. NotFound and Error are
// equivalent for selection; Detail says why nothing was found.
type SourceResult struct {
	Source string `json:"source" yaml:"source"`
	Status Status `json:"status" yaml:"status"`
	Value  string `json:"value,omitempty" yaml:"value,omitempty"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

func found(source, value string) SourceResult {
	return SourceResult{Source: source, Status: StatusFound, Value: value}
}

func notFound(source, detail string) SourceResult {
	return SourceResult{Source: source, Status: StatusNotFound, Detail: detail}
}

func failed(source string, err error) SourceResult {
	return SourceResult{Source: source, Status: StatusError, Detail: err.Error()}
}

// fromError classifies a source error: structural absence and missing
// platform support are NotFound, anything else is Error.
func fromError(source string, err error) SourceResult {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotSupported) {
		return notFound(source, err.Error())
	}
	return failed(source, err)
}

// Candidate returns the value as it competes for FinalVersion. Values from
// the live tool and the config store carry their source tag.
func (r SourceResult) Candidate() string {
	if r.Status != StatusFound || r.Value == "" {
		return ""
	}
	switch r.Source {
	case SourceSMI:
		return "Version (nvidia-smi): " + r.Value
	case SourceRegistry:
		return "Version (Registry): " + r.Value
	default:
		return r.Value
	}
}

// Detection is the outcome of one detection pass.
type Detection struct {
	Records      []DriverRecord `json:"records" yaml:"records"`
	Lines        []string       `json:"lines" yaml:"lines"`
	Results      []SourceResult `json:"sources" yaml:"sources"`
	FinalVersion string         `json:"finalVersion" yaml:"finalVersion"`
	SelectedFrom string         `json:"selectedFrom,omitempty" yaml:"selectedFrom,omitempty"`
	Display      string         `json:"display" yaml:"display"`
}

// Found reports whether the pass produced a FinalVersion.
func (d *Detection) Found() bool {
	return d != nil && d.FinalVersion != ""
}

// DisplayVersion reduces a FinalVersion to the display string: the last six
// characters behind DisplayPrefix, or NotFoundMessage when empty.
func DisplayVersion(final string) string {
	if final == "" {
		return NotFoundMessage
	}
	runes := []rune(final)
	if len(runes) > displayWidth {
		runes = runes[len(runes)-displayWidth:]
	}
	return DisplayPrefix + string(runes)
}
