//go:build !windows

package main

import (
	"os"

	"golang.org/x/sys/unix"
)

// raiseReload sends SIGHUP to this process so file-triggered reloads take
// the same debounced path as an operator's kill -HUP.
func raiseReload() error {
	return unix.Kill(os.Getpid(), unix.SIGHUP)
}
