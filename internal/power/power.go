// Package power builds the operating system commands that restart or shut
// down the host.
package power

import (
	"fmt"
	"runtime"
	"strconv"
	"time"
)

// MaxDelay is the longest delay a power command may request (24 hours).
const MaxDelay = 24 * time.Hour

// Kind selects the power-state transition.
type Kind int

const (
	Restart Kind = iota
	Shutdown
)

func (k Kind) String() string {
	if k == Restart {
		return "restart"
	}
	return "shutdown"
}

// Request describes one power command. Force skips the graceful close of
// running applications where the platform supports it.
type Request struct {
	Kind  Kind
	Delay time.Duration
	Force bool
}

// Command returns the program and arguments implementing req on the
// running OS.
func Command(req Request) (string, []string, error) {
	return CommandFor(runtime.GOOS, req)
}

// CommandFor returns the program and arguments implementing req on goos.
func CommandFor(goos string, req Request) (string, []string, error) {
	delay := req.Delay
	if delay < 0 {
		delay = 0
	} else if delay > MaxDelay {
		delay = MaxDelay
	}

	switch goos {
	case "windows":
		action := "/s"
		if req.Kind == Restart {
			action = "/r"
		}
		args := []string{action}
		if req.Force {
			args = append(args, "/f")
		}
		args = append(args, "/t", strconv.Itoa(int(delay/time.Second)))
		return "shutdown", args, nil
	case "linux", "darwin":
		action := "-h"
		if req.Kind == Restart {
			action = "-r"
		}
		// shutdown(8) takes whole minutes; round partial minutes up
		when := "now"
		if delay > 0 {
			minutes := int((delay + time.Minute - 1) / time.Minute)
			when = "+" + strconv.Itoa(minutes)
		}
		return "shutdown", []string{action, when}, nil
	default:
		return "", nil, fmt.Errorf("unsupported OS: %s", goos)
	}
}
