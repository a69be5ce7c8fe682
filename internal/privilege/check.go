package privilege

// Operations the CLI can perform.
const (
	OpDetect    = "detect"
	OpUninstall = "uninstall"
	OpVerify    = "audit-verify"
)

// elevatedOperations maps operations that require elevated (root/admin)
// privileges. Driver store removal and power commands are refused by the
// OS for unprivileged callers.
var elevatedOperations = map[string]bool{
	OpUninstall: true,
}

// RequiresElevation returns true if the operation needs root/admin privileges.
func RequiresElevation(op string) bool {
	return elevatedOperations[op]
}

// Check returns an error when op needs elevation the process does not have.
func Check(op string) error {
	if RequiresElevation(op) && !IsRunningAsRoot() {
		return &ElevationError{Op: op}
	}
	return nil
}

// ElevationError reports an operation refused for lack of privileges.
type ElevationError struct {
	Op string
}

func (e *ElevationError) Error() string {
	return e.Op + " requires administrator privileges"
}
