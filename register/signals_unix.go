// Unix signal table for register categories.
//
// This file is compiled on all non-Windows platforms. Signal numbers come from
// [golang.org/x/sys/unix] so names and values match the host kernel.

//go:build !windows

package register

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// ///////////////////////////////////////////////
// Signal Table
// ///////////////////////////////////////////////

// signalsFor returns the signals mapped to t.
func signalsFor(t Type) []os.Signal {
	switch t {
	case ReloadConfig:
		return []os.Signal{unix.SIGHUP}
	case WaitForStop:
		return []os.Signal{unix.SIGINT, unix.SIGTERM, unix.SIGQUIT}
	case PrintStats:
		return []os.Signal{unix.SIGUSR1}
	default:
		return nil
	}
}

// uncatchable lists signals the kernel never delivers to a handler.
var uncatchable = []os.Signal{unix.SIGKILL, unix.SIGSTOP}

// SignalName returns the conventional name of sig, such as "SIGHUP".
func SignalName(sig os.Signal) string {
	if sig == nil {
		return "<nil>"
	}
	if s, ok := sig.(syscall.Signal); ok {
		if name := unix.SignalName(s); name != "" {
			return name
		}
	}
	return sig.String()
}
