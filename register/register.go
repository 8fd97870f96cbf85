// Package register maps register categories to the OS signals that trigger
// them and installs those signals through a [Registrar].
//
// Every installed signal performs one non-blocking send of its category tag
// into the events channel owned by a [Registry]. A full channel drops the
// event: signals are triggers, not payloads.
package register

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
)

// ///////////////////////////////////////////////
// Register Types
// ///////////////////////////////////////////////

// Type is a register category: a class of operator intent mapped to one or
// more OS signals.
type Type uint8

const (
	// ReloadConfig is triggered by SIGHUP. Unavailable on Windows.
	ReloadConfig Type = iota + 1
	// WaitForStop is triggered by SIGINT, SIGTERM and, on Unix, SIGQUIT.
	WaitForStop
	// PrintStats is triggered by SIGUSR1. Unavailable on Windows.
	PrintStats
)

func (t Type) String() string {
	switch t {
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

// Signals returns the signals mapped to t on the current platform. The
// returned slice is freshly allocated.
func (t Type) Signals() []os.Signal {
	return signalsFor(t)
}

// Available reports whether t has any signal on the current platform.
func (t Type) Available() bool {
	return len(signalsFor(t)) > 0
}

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrNilSignal is returned when a nil signal is registered.
	ErrNilSignal = errors.New("nil signal")
	// ErrUncatchable is returned for signals a process cannot handle.
	ErrUncatchable = errors.New("signal cannot be caught")
	// ErrOverlap is returned when one signal is requested by two categories.
	ErrOverlap = errors.New("signal mapped to more than one category")
)

// RegisterError reports the signal whose registration failed.
type RegisterError struct {
	// Signal is the signal that could not be registered.
	Signal os.Signal
	// Type is the category the signal was requested for.
	Type Type
	// Err is the underlying cause.
	Err error
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("register %s for %s: %v", SignalName(e.Signal), e.Type, e.Err)
}

func (e *RegisterError) Unwrap() error { return e.Err }

// ///////////////////////////////////////////////
// Registrar
// ///////////////////////////////////////////////

// Handle identifies one installed registration.
type Handle struct {
	// ID is unique per Registrar.
	ID uint64
	// Signal is the registered signal.
	Signal os.Signal
}

// Registrar is the OS-level registration primitive.
//
// Register arranges for fn to run each time sig is delivered. fn never
// blocks and never panics; implementations may call it from any goroutine.
// Unregister stops delivery for h and must not return while a call to fn
// for h is still in progress, nor call fn for h afterwards.
type Registrar interface {
	Register(sig os.Signal, fn func()) (Handle, error)
	Unregister(h Handle)
}

// ///////////////////////////////////////////////
// Registers
// ///////////////////////////////////////////////

// Registers is the requested set of categories and their signals. It is
// plain data; nothing is installed until [Registers.Register].
type Registers map[Type][]os.Signal

// NewRegisters returns an empty set.
func NewRegisters() Registers {
	return Registers{}
}

// Insert requests t with its platform signals and returns the previously
// requested signals, if any.
func (r Registers) Insert(t Type) (prev []os.Signal, existed bool) {
	prev, existed = r[t]
	r[t] = t.Signals()
	return prev, existed
}

// InsertReloadConfig requests [ReloadConfig].
func (r Registers) InsertReloadConfig() ([]os.Signal, bool) { return r.Insert(ReloadConfig) }

// InsertWaitForStop requests [WaitForStop].
func (r Registers) InsertWaitForStop() ([]os.Signal, bool) { return r.Insert(WaitForStop) }

// InsertPrintStats requests [PrintStats].
func (r Registers) InsertPrintStats() ([]os.Signal, bool) { return r.Insert(PrintStats) }

// Types returns the requested categories in ascending order.
func (r Registers) Types() []Type {
	types := make([]Type, 0, len(r))
	for t := range r {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Clone returns a deep copy of r.
func (r Registers) Clone() Registers {
	out := make(Registers, len(r))
	for t, sigs := range r {
		out[t] = append([]os.Signal(nil), sigs...)
	}
	return out
}

// Register installs every requested signal through registrar. Each delivery
// performs a non-blocking send of the signal's category into a fresh events
// channel of the given capacity, owned by the returned [Registry].
//
// A signal requested twice for the same category is installed once. If any
// registration fails, everything installed so far is unregistered and the
// failure is returned as a [*RegisterError].
func (r Registers) Register(registrar Registrar, capacity int) (*Registry, error) {
	if capacity < 1 {
		capacity = 1
	}
	events := make(chan Type, capacity)
	reg := &Registry{
		registrar: registrar,
		events:    events,
		types:     make(map[os.Signal]Type),
	}

	for _, t := range r.Types() {
		send := nonBlockingSend(events, t)
		for _, sig := range r[t] {
			if sig == nil {
				reg.release()
				return nil, &RegisterError{Type: t, Err: ErrNilSignal}
			}
			if owner, ok := reg.types[sig]; ok {
				if owner == t {
					continue
				}
				reg.release()
				return nil, &RegisterError{Signal: sig, Type: t, Err: ErrOverlap}
			}
			h, err := registrar.Register(sig, send)
			if err != nil {
				reg.release()
				return nil, &RegisterError{Signal: sig, Type: t, Err: err}
			}
			reg.handles = append(reg.handles, h)
			reg.types[sig] = t
		}
	}
	return reg, nil
}

// nonBlockingSend returns the function run on each delivery of a signal of
// category t. It never blocks and never allocates.
func nonBlockingSend(events chan<- Type, t Type) func() {
	return func() {
		select {
		case events <- t:
		default:
		}
	}
}

// ///////////////////////////////////////////////
// Registry
// ///////////////////////////////////////////////

// Registry is the set of handles installed by one [Registers.Register] call,
// together with the events channel they feed. It is owned by exactly one
// dispatcher run.
type Registry struct {
	// registrar is the primitive the handles were obtained from.
	registrar Registrar
	// events receives one category tag per delivered signal.
	events chan Type
	// handles lists installed registrations in installation order.
	handles []Handle
	// types maps each installed signal to its category.
	types map[os.Signal]Type
	// once makes Close idempotent.
	once sync.Once
}

// Events returns the channel fed by the installed signals. It is closed by
// [Registry.Close].
func (r *Registry) Events() <-chan Type {
	return r.events
}

// Handles returns a copy of the installed handles.
func (r *Registry) Handles() []Handle {
	return append([]Handle(nil), r.handles...)
}

// Len reports how many signals are installed.
func (r *Registry) Len() int {
	return len(r.handles)
}

// Category returns the category sig was installed for.
func (r *Registry) Category(sig os.Signal) (Type, bool) {
	t, ok := r.types[sig]
	return t, ok
}

// Close unregisters every handle and then closes the events channel. It is
// safe to call more than once.
func (r *Registry) Close() {
	r.once.Do(func() {
		r.release()
		close(r.events)
	})
}

// release unregisters every handle in reverse installation order.
func (r *Registry) release() {
	for i := len(r.handles) - 1; i >= 0; i-- {
		r.registrar.Unregister(r.handles[i])
	}
	r.handles = nil
	clear(r.types)
}
