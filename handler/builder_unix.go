// Builder methods for categories that only exist where POSIX signals do.

//go:build !windows

package handler

import (
	"context"

	"tools.zach/dev/sigdispatch/callback"
)

// ReloadConfig binds a sync callback run on SIGHUP.
func (b *Builder) ReloadConfig(fn func(callback.Info)) *Builder {
	return b.Callback(callback.ReloadConfig, callback.Sync(fn))
}

// ReloadConfigContext binds a suspending ReloadConfig callback.
func (b *Builder) ReloadConfigContext(fn func(context.Context, callback.Info)) *Builder {
	return b.Callback(callback.ReloadConfig, callback.Suspending(fn))
}

// PrintStats binds a sync callback run on SIGUSR1.
func (b *Builder) PrintStats(fn func(callback.Info)) *Builder {
	return b.Callback(callback.PrintStats, callback.Sync(fn))
}

// PrintStatsContext binds a suspending PrintStats callback.
func (b *Builder) PrintStatsContext(fn func(context.Context, callback.Info)) *Builder {
	return b.Callback(callback.PrintStats, callback.Suspending(fn))
}
