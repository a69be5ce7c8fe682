package report

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/breeze-rmm/driver-manager/internal/logging"
)

// HostFacts identifies the machine a report was produced on.
type HostFacts struct {
	Hostname     string `json:"hostname" yaml:"hostname"`
	OSType       string `json:"osType" yaml:"osType"`
	OSVersion    string `json:"osVersion" yaml:"osVersion"`
	OSBuild      string `json:"osBuild,omitempty" yaml:"osBuild,omitempty"`
	Architecture string `json:"architecture" yaml:"architecture"`
}

var hostInfo = host.InfoWithContext

// CollectHost gathers host facts. Missing facts are left empty; the
// architecture is always known.
func CollectHost(ctx context.Context) *HostFacts {
	facts := &HostFacts{Architecture: runtime.GOARCH}

	info, err := hostInfo(ctx)
	if err != nil {
		log.Debug("host info unavailable", logging.KeyError, err)
		return facts
	}
	facts.Hostname = info.Hostname
	facts.OSType = normalizeOSType(info.OS)
	facts.OSVersion = info.Platform + " " + info.PlatformVersion
	facts.OSBuild = info.KernelVersion
	return facts
}

func normalizeOSType(os string) string {
	if os == "darwin" {
		return "macos"
	}
	return os
}
