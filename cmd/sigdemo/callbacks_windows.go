// Windows callback wiring. Only console stop events are delivered, so the
// reload and stats callbacks have no category to bind to.

//go:build windows

package main

import (
	"tools.zach/dev/sigdispatch/handler"
)

// ///////////////////////////////////////////////
// Worker Callbacks
// ///////////////////////////////////////////////

// bindWorkers is a no-op on Windows.
func bindWorkers(b *handler.Builder, d *daemon, async bool) {
	d.log.Debug("reload and stats callbacks unavailable on windows")
}

// operatorHints lists how to stop the daemon.
func operatorHints(int) []string {
	return []string{"Ctrl+C   stop"}
}
