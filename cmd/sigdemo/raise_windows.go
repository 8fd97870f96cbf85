//go:build windows

package main

import "errors"

// raiseReload is unsupported: Windows has no reload signal.
func raiseReload() error {
	return errors.New("reload signal not supported on windows")
}
