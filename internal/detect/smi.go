package detect

import (
	"context"
	"fmt"
	"strings"
)

// smiArgs ask for the driver version only, one headerless CSV line per GPU.
var smiArgs = []string{"--query-gpu=driver_version", "--format=csv,noheader"}

// querySMI asks the vendor diagnostic tool for the live driver version.
func (c *Cascade) querySMI(ctx context.Context) SourceResult {
	if c.runner == nil {
		return notFound(SourceSMI, "no command runner available")
	}

	bin, err := c.resolveSMI()
	if err != nil {
		return notFound(SourceSMI, err.Error())
	}

	if c.opts.SMITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.SMITimeout)
		defer cancel()
	}

	result, err := c.runner.Run(ctx, bin, smiArgs...)
	if err != nil {
		return failed(SourceSMI, fmt.Errorf("failed to execute nvidia-smi: %w", err))
	}
	if result.ExitCode != 0 {
		detail := strings.TrimSpace(result.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(result.Stdout)
		}
		return failed(SourceSMI, fmt.Errorf("nvidia-smi exited with status %d: %s", result.ExitCode, detail))
	}

	version := firstLine(result.Stdout)
	if version == "" {
		return notFound(SourceSMI, "nvidia-smi printed no driver version")
	}
	return found(SourceSMI, version)
}

// resolveSMI finds the tool on PATH, then at the configured fallback paths.
func (c *Cascade) resolveSMI() (string, error) {
	candidates := append([]string{c.opts.SMIPath}, c.opts.SMIFallbackPaths...)
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if path, err := c.lookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("nvidia-smi executable %w", ErrNotFound)
}

// firstLine returns the first non-blank line of out, trimmed. With several
// GPUs the tool prints one line each; they share one driver.
func firstLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
