//go:build !windows

package privilege

import "os"

var getuid = os.Getuid

// IsRunningAsRoot returns true if the process is running with UID 0 (root).
func IsRunningAsRoot() bool {
	return getuid() == 0
}
