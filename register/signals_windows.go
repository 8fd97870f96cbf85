// Windows signal table for register categories.
//
// This file is compiled only on Windows. Windows has no SIGHUP or SIGUSR1, so
// only [WaitForStop] is available; the Go runtime maps CTRL_C_EVENT and
// CTRL_BREAK_EVENT to [os.Interrupt] and console close/logoff/shutdown events
// to SIGTERM.

//go:build windows

package register

import (
	"os"
	"syscall"
)

// ///////////////////////////////////////////////
// Signal Table
// ///////////////////////////////////////////////

// signalsFor returns the signals mapped to t.
func signalsFor(t Type) []os.Signal {
	if t == WaitForStop {
		return []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	return nil
}

// uncatchable is empty: the runtime only delivers catchable events.
var uncatchable []os.Signal

// SignalName returns a printable name for sig.
func SignalName(sig os.Signal) string {
	if sig == nil {
		return "<nil>"
	}
	return sig.String()
}
