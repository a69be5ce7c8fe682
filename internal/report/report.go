// Package report renders a detection pass for the operator.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/driver-manager/internal/detect"
	"github.com/breeze-rmm/driver-manager/internal/logging"
)

var log = logging.L("report")

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts text, json, yaml (and yml).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
	}
}

// Report is one detection pass plus the context it ran in.
type Report struct {
	RunID       string            `json:"runId" yaml:"runId"`
	GeneratedAt time.Time         `json:"generatedAt" yaml:"generatedAt"`
	Host        *HostFacts        `json:"host,omitempty" yaml:"host,omitempty"`
	SafeMode    bool              `json:"safeMode" yaml:"safeMode"`
	Detection   *detect.Detection `json:"detection" yaml:"detection"`
}

// Write renders r to w in format.
func Write(w io.Writer, format Format, r *Report) error {
	if r == nil || r.Detection == nil {
		return fmt.Errorf("empty report")
	}
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatText, "":
		return writeText(w, r)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, r *Report) error {
	var b strings.Builder

	if r.Host != nil && r.Host.Hostname != "" {
		fmt.Fprintf(&b, "Host: %s (%s %s)\n", r.Host.Hostname, strings.TrimSpace(r.Host.OSVersion), r.Host.Architecture)
	}
	for _, line := range r.Detection.Lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for _, res := range r.Detection.Results {
		if res.Status == detect.StatusError {
			fmt.Fprintf(&b, "%s %s: %s\n", color.YellowString("warning:"), res.Source, res.Detail)
		}
	}

	if r.Detection.Found() {
		b.WriteString(color.GreenString(r.Detection.Display))
	} else {
		b.WriteString(color.RedString(r.Detection.Display))
	}
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
