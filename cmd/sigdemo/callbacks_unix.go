// Unix callback wiring. SIGHUP and SIGUSR1 exist here, so the reload and
// stats workers are bound alongside the inline callbacks.

//go:build !windows

package main

import (
	"fmt"

	"tools.zach/dev/sigdispatch/handler"
)

// ///////////////////////////////////////////////
// Worker Callbacks
// ///////////////////////////////////////////////

// bindWorkers binds the reload and stats callbacks to b.
func bindWorkers(b *handler.Builder, d *daemon, async bool) {
	if async {
		b.ReloadConfigContext(d.reload).PrintStatsContext(d.printStats)
		return
	}
	b.ReloadConfig(background(d.reload)).PrintStats(background(d.printStats))
}

// operatorHints lists the commands that drive a daemon running as pid.
func operatorHints(pid int) []string {
	return []string{
		fmt.Sprintf("kill -HUP %d    reload config", pid),
		fmt.Sprintf("kill -USR1 %d   print stats", pid),
		fmt.Sprintf("kill -TERM %d   stop", pid),
	}
}
