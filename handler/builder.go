package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tools.zach/dev/sigdispatch/callback"
	"tools.zach/dev/sigdispatch/register"
)

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

const (
	// DefaultEventCapacity bounds the registration events channel.
	DefaultEventCapacity = 6
	// DefaultPollInterval is the blocking model's routing loop wake period.
	DefaultPollInterval = time.Second
)

// ///////////////////////////////////////////////
// Builder
// ///////////////////////////////////////////////

// Builder assembles the callbacks and requested categories consumed by a
// [Handler]. Methods chain; binding a slot twice keeps the last callback.
type Builder struct {
	callbacks     callback.Callbacks
	registers     register.Registers
	registrar     register.Registrar
	logger        *slog.Logger
	registerer    prometheus.Registerer
	eventCapacity int
	queueCapacity int
	pollInterval  time.Duration
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		callbacks: callback.Callbacks{},
		registers: register.NewRegisters(),
	}
}

// Build returns a Handler. [register.WaitForStop] is always requested, with
// or without a bound callback. Build performs no registration.
func (b *Builder) Build() *Handler {
	registers := b.registers.Clone()
	if _, ok := registers[register.WaitForStop]; !ok {
		registers.InsertWaitForStop()
	}

	h := &Handler{
		callbacks:     b.callbacks.Clone(),
		registers:     registers,
		registrar:     b.registrar,
		logger:        b.logger,
		eventCapacity: b.eventCapacity,
		queueCapacity: b.queueCapacity,
		pollInterval:  b.pollInterval,
	}
	if h.registrar == nil {
		h.registrar = register.OS()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.eventCapacity <= 0 {
		h.eventCapacity = DefaultEventCapacity
	}
	if h.pollInterval <= 0 {
		h.pollInterval = DefaultPollInterval
	}
	h.metrics = NewMetrics(b.registerer)
	return h
}

// Callback binds cb to slot t and requests the matching register category.
// An invalid cb, such as a nil function or a zero [callback.Callback], is
// ignored and leaves any earlier binding in place.
func (b *Builder) Callback(t callback.Type, cb callback.Callback) *Builder {
	if !cb.Valid() {
		return b
	}
	b.callbacks[t] = cb
	if rt, ok := categoryFor(t); ok {
		b.registers.Insert(rt)
	}
	return b
}

// Request registers category t without binding a callback. Its events are
// read and dropped, which suppresses the signals' default action.
func (b *Builder) Request(t register.Type) *Builder {
	b.registers.Insert(t)
	return b
}

// Initialized binds a sync callback run once before routing starts.
func (b *Builder) Initialized(fn func(callback.Info)) *Builder {
	return b.Callback(callback.Initialized, callback.Sync(fn))
}

// InitializedContext binds a suspending Initialized callback.
func (b *Builder) InitializedContext(fn func(context.Context, callback.Info)) *Builder {
	return b.Callback(callback.Initialized, callback.Suspending(fn))
}

// WaitForStop binds a sync callback run when a stop signal arrives.
func (b *Builder) WaitForStop(fn func(callback.Info)) *Builder {
	return b.Callback(callback.WaitForStop, callback.Sync(fn))
}

// WaitForStopContext binds a suspending WaitForStop callback.
func (b *Builder) WaitForStopContext(fn func(context.Context, callback.Info)) *Builder {
	return b.Callback(callback.WaitForStop, callback.Suspending(fn))
}

// Registrar replaces the OS registration primitive, typically with a fake
// in tests.
func (b *Builder) Registrar(r register.Registrar) *Builder {
	b.registrar = r
	return b
}

// Logger sets the logger. The default is [slog.Default].
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Registerer registers the handler's [Metrics] with reg.
func (b *Builder) Registerer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// EventCapacity bounds the registration events channel. Deliveries beyond
// it are dropped. Values below 1 select [DefaultEventCapacity].
func (b *Builder) EventCapacity(n int) *Builder {
	b.eventCapacity = n
	return b
}

// QueueCapacity bounds each worker queue; 0 leaves them unbounded. Events
// routed to a full queue are dropped.
func (b *Builder) QueueCapacity(n int) *Builder {
	if n < 0 {
		n = 0
	}
	b.queueCapacity = n
	return b
}

// PollInterval sets the blocking model's routing loop wake period.
func (b *Builder) PollInterval(d time.Duration) *Builder {
	b.pollInterval = d
	return b
}

// categoryFor maps a callback slot to the register category that triggers
// it. Initialized has none.
func categoryFor(t callback.Type) (register.Type, bool) {
	switch t {
	case callback.ReloadConfig:
		return register.ReloadConfig, true
	case callback.WaitForStop:
		return register.WaitForStop, true
	case callback.PrintStats:
		return register.PrintStats, true
	default:
		return 0, false
	}
}
