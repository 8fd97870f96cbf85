package register

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
)

// ///////////////////////////////////////////////
// OS Registrar
// ///////////////////////////////////////////////

// osRegistrar installs signals through [signal.Notify]. The Go runtime's
// signal handler performs the non-blocking send into each subscription's
// one-slot channel; a forwarder goroutine turns that into a call to fn.
type osRegistrar struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*subscription
}

// subscription is one installed signal.
type subscription struct {
	// ch is the channel handed to signal.Notify. One slot coalesces bursts
	// that arrive while fn is running.
	ch chan os.Signal
	// done is closed by Unregister to stop the forwarder.
	done chan struct{}
	// wg tracks the forwarder goroutine.
	wg sync.WaitGroup
}

// OS returns a [Registrar] backed by the process's real signal handling.
// Registrations made through different OS registrars are independent, but
// they share the process-wide signal disposition: while any registration for
// a signal exists, its default action (such as termination) is suppressed.
func OS() Registrar {
	return &osRegistrar{subs: make(map[uint64]*subscription)}
}

// Register implements [Registrar].
func (o *osRegistrar) Register(sig os.Signal, fn func()) (Handle, error) {
	if sig == nil {
		return Handle{}, ErrNilSignal
	}
	if !catchable(sig) {
		return Handle{}, fmt.Errorf("%s: %w", SignalName(sig), ErrUncatchable)
	}

	s := &subscription{
		ch:   make(chan os.Signal, 1),
		done: make(chan struct{}),
	}
	signal.Notify(s.ch, sig)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				return
			case <-s.ch:
				fn()
			}
		}
	}()

	o.mu.Lock()
	o.next++
	id := o.next
	o.subs[id] = s
	o.mu.Unlock()

	return Handle{ID: id, Signal: sig}, nil
}

// Unregister implements [Registrar]. It waits for an in-flight fn to return.
func (o *osRegistrar) Unregister(h Handle) {
	o.mu.Lock()
	s, ok := o.subs[h.ID]
	delete(o.subs, h.ID)
	o.mu.Unlock()
	if !ok {
		return
	}

	signal.Stop(s.ch)
	close(s.done)
	s.wg.Wait()
}

// catchable reports whether sig may be handled by the process.
func catchable(sig os.Signal) bool {
	for _, u := range uncatchable {
		if u == sig {
			return false
		}
	}
	return true
}
