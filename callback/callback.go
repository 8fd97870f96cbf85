// Package callback defines the values a dispatcher hands to application code:
// the immutable [Info] snapshot, the [Callback] tagged variant (sync or
// suspending), and the [Callbacks] binding of one callback per [Type].
package callback

import (
	"context"
	"fmt"
	"time"
)

// ///////////////////////////////////////////////
// Info
// ///////////////////////////////////////////////

// Info is captured each time a signal event becomes a dispatchable unit. It
// is immutable and passed by value.
type Info struct {
	time time.Time
}

// NewInfo captures an Info stamped with the current time. The timestamp
// keeps Go's monotonic clock reading, so comparisons against a worker's
// finish watermark are immune to wall-clock steps.
func NewInfo() Info {
	return Info{time: time.Now()}
}

// NewInfoAt returns an Info stamped with t.
func NewInfoAt(t time.Time) Info {
	return Info{time: t}
}

// Time returns the capture timestamp.
func (i Info) Time() time.Time {
	return i.time
}

// String implements [fmt.Stringer].
func (i Info) String() string {
	return "Info{time:" + i.time.Format(time.RFC3339Nano) + "}"
}

// ///////////////////////////////////////////////
// Kind
// ///////////////////////////////////////////////

// Kind tags how a [Callback] runs.
type Kind uint8

const (
	// KindSync runs to completion on the calling goroutine.
	KindSync Kind = iota + 1
	// KindSuspending receives a context and may block cooperatively. It is
	// only accepted by the cooperative execution model.
	KindSuspending
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindSuspending:
		return "suspending"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ///////////////////////////////////////////////
// Callback
// ///////////////////////////////////////////////

// Callback is a closed union over [KindSync] and [KindSuspending]. The zero
// value is not a valid callback; build one with [Sync] or [Suspending].
type Callback struct {
	kind       Kind
	sync       func(Info)
	suspending func(context.Context, Info)
}

// Sync wraps fn as a [KindSync] callback.
func Sync(fn func(Info)) Callback {
	return Callback{kind: KindSync, sync: fn}
}

// Suspending wraps fn as a [KindSuspending] callback.
func Suspending(fn func(context.Context, Info)) Callback {
	return Callback{kind: KindSuspending, suspending: fn}
}

// Kind reports the callback's variant.
func (c Callback) Kind() Kind {
	return c.kind
}

// Valid reports whether c was built by [Sync] or [Suspending] with a non-nil
// function.
func (c Callback) Valid() bool {
	switch c.kind {
	case KindSync:
		return c.sync != nil
	case KindSuspending:
		return c.suspending != nil
	default:
		return false
	}
}

// Invoke runs the callback with info. A sync callback ignores ctx. Invoke
// does not recover panics raised by the callback.
func (c Callback) Invoke(ctx context.Context, info Info) {
	switch c.kind {
	case KindSync:
		c.sync(info)
	case KindSuspending:
		c.suspending(ctx, info)
	default:
		panic(fmt.Sprintf("callback: invoke of invalid %v", c.kind))
	}
}

func (c Callback) String() string {
	return "Callback::" + c.kind.String()
}

// ///////////////////////////////////////////////
// Type
// ///////////////////////////////////////////////

// Type names the slot a callback is bound to.
type Type uint8

const (
	// Initialized runs once, after registration and before routing starts.
	Initialized Type = iota + 1
	// ReloadConfig runs on the reload signal category.
	ReloadConfig
	// WaitForStop runs on the terminal stop category.
	WaitForStop
	// PrintStats runs on the statistics signal category.
	PrintStats
)

// Types lists every callback slot in declaration order.
var Types = []Type{Initialized, ReloadConfig, WaitForStop, PrintStats}

func (t Type) String() string {
	switch t {
	case Initialized:
		return "initialized"
	case ReloadConfig:
		return "reload_config"
	case WaitForStop:
		return "wait_for_stop"
	case PrintStats:
		return "print_stats"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// Inline reports whether callbacks of this type run on the dispatcher's own
// goroutine instead of a dedicated worker.
func (t Type) Inline() bool {
	return t == Initialized || t == WaitForStop
}

// ///////////////////////////////////////////////
// Callbacks
// ///////////////////////////////////////////////

// Callbacks binds at most one [Callback] per [Type]. It is assembled by a
// builder and treated as read-only once dispatch starts.
type Callbacks map[Type]Callback

// HasSuspending reports whether any bound callback is [KindSuspending].
func (cs Callbacks) HasSuspending() bool {
	for _, cb := range cs {
		if cb.Kind() == KindSuspending {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy of cs.
func (cs Callbacks) Clone() Callbacks {
	out := make(Callbacks, len(cs))
	for t, cb := range cs {
		out[t] = cb
	}
	return out
}
