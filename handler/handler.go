// Package handler turns OS signal delivery into ordered, debounced callback
// invocations.
//
// A [Handler] registers the signals of every requested category, starts one
// serial worker per non-inline category, runs the Initialized callback, and
// then routes signal events until a stop signal arrives. Two execution
// models share the same routing and worker code:
//
//   - [Handler.Handle] is the blocking model. Each worker owns a dedicated OS
//     thread and only sync callbacks are accepted.
//   - [Handler.HandleAsync] is the cooperative model. Workers are ordinary
//     goroutines, suspending callbacks receive the caller's context, and
//     cancelling that context aborts dispatch.
//
// Within one category invocations never overlap and follow enqueue order.
// A queued event is skipped when an invocation finished after the event was
// captured, so a burst of signals costs at most one extra run.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"tools.zach/dev/sigdispatch/callback"
	"tools.zach/dev/sigdispatch/internal/logger"
	"tools.zach/dev/sigdispatch/register"
)

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

// Handler dispatches signal categories to callbacks. Build one with
// [NewBuilder]. A Handler runs at most once.
type Handler struct {
	callbacks     callback.Callbacks
	registers     register.Registers
	registrar     register.Registrar
	logger        *slog.Logger
	metrics       *Metrics
	eventCapacity int
	queueCapacity int
	pollInterval  time.Duration
	used          atomic.Bool
}

// Metrics returns the handler's collectors.
func (h *Handler) Metrics() *Metrics {
	return h.metrics
}

// Registers returns a copy of the categories the handler will register.
func (h *Handler) Registers() register.Registers {
	return h.registers.Clone()
}

// Handle runs the blocking model and returns after a stop signal has been
// handled and every worker has joined. It fails with [ErrAsyncRequired],
// before registering anything, if a suspending callback is bound.
//
// A panic raised by a worker's callback is re-raised here once shutdown has
// completed.
func (h *Handler) Handle() error {
	if types := suspendingTypes(h.callbacks); len(types) > 0 {
		return &HandleError{
			Kind: AsyncRequired,
			Err:  fmt.Errorf("suspending callbacks bound to %v", types),
		}
	}
	return h.dispatch(context.Background(), model{
		name:       "blocking",
		lockThread: true,
		poll:       h.pollInterval,
	})
}

// HandleAsync runs the cooperative model. It accepts sync and suspending
// callbacks and returns after a stop signal has been handled and every
// worker has joined. If ctx is cancelled first, routing stops, workers
// abandon their queues, and ctx.Err() is returned.
//
// A panic raised by a worker's callback is re-raised here once shutdown has
// completed.
func (h *Handler) HandleAsync(ctx context.Context) error {
	return h.dispatch(ctx, model{name: "cooperative"})
}

// ///////////////////////////////////////////////
// Dispatch
// ///////////////////////////////////////////////

// model holds what differs between the execution models.
type model struct {
	name string
	// lockThread pins every worker to its own OS thread.
	lockThread bool
	// poll is the routing loop's wake period; zero waits indefinitely.
	poll time.Duration
}

// dispatch registers signals, starts workers, runs Initialized, routes
// events and shuts down. The shutdown sequence also runs while a panic from
// an inline callback unwinds.
func (h *Handler) dispatch(ctx context.Context, m model) error {
	if !h.used.CompareAndSwap(false, true) {
		return NewOtherError(ErrHandlerUsed)
	}

	reg, err := h.registers.Register(h.registrar, h.eventCapacity)
	if err != nil {
		return &HandleError{Kind: RegisterFailed, Err: err}
	}
	h.logger.Debug("signals registered",
		"model", m.name,
		"signals", reg.Len(),
		"categories", len(h.registers),
	)

	workers := h.startWorkers(ctx, m)

	finished := false
	defer func() {
		results := h.shutdown(workers)
		reg.Close()
		if finished {
			rethrow(h.logger, results)
		}
	}()

	if cb, ok := h.callbacks[callback.Initialized]; ok {
		invokeObserved(ctx, h.metrics, callback.Initialized, cb, callback.NewInfo())
	}

	err = h.route(ctx, m, reg.Events(), workers)
	finished = true
	return err
}

// startWorkers launches one worker per bound non-inline category.
func (h *Handler) startWorkers(ctx context.Context, m model) map[register.Type]*worker {
	workers := make(map[register.Type]*worker)
	for _, t := range callback.Types {
		cb, ok := h.callbacks[t]
		if !ok || t.Inline() {
			continue
		}
		rt, ok := categoryFor(t)
		if !ok {
			continue
		}
		w := newWorker(t, cb, newMailbox(h.queueCapacity), h.metrics, h.logger)
		workers[rt] = w
		go w.run(ctx, m.lockThread)
	}
	return workers
}

// route reads registration events in arrival order until a stop event, the
// events channel closing, or ctx being done.
func (h *Handler) route(ctx context.Context, m model, events <-chan register.Type, workers map[register.Type]*worker) error {
	var wake <-chan time.Time
	if m.poll > 0 {
		ticker := time.NewTicker(m.poll)
		defer ticker.Stop()
		wake = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("dispatch cancelled", "model", m.name, "error", ctx.Err())
			return ctx.Err()

		case <-wake:
			// Wake only; keeps the blocking loop responsive.

		case tp, ok := <-events:
			if !ok {
				h.logger.Warn("registration events closed without a stop signal", "model", m.name)
				return nil
			}
			h.metrics.Events.WithLabelValues(tp.String()).Inc()

			if tp == register.WaitForStop {
				h.logger.Info("stop signal received", "model", m.name)
				if cb, ok := h.callbacks[callback.WaitForStop]; ok {
					invokeObserved(ctx, h.metrics, callback.WaitForStop, cb, callback.NewInfo())
				}
				return nil
			}
			h.forward(tp, workers[tp])
		}
	}
}

// forward enqueues a fresh Info for w without blocking. Full, closed and
// unbound queues drop the event.
func (h *Handler) forward(tp register.Type, w *worker) {
	label := tp.String()
	if w == nil {
		h.metrics.Dropped.WithLabelValues(label, dropUnbound).Inc()
		logger.Trace(h.logger, "dropping event without callback", "category", tp)
		return
	}

	switch w.box.trySend(callback.NewInfo()) {
	case sendOK:
		h.metrics.Routed.WithLabelValues(label).Inc()
	case sendFull:
		h.metrics.Dropped.WithLabelValues(label, dropFull).Inc()
		logger.Trace(h.logger, "dropping event, queue full", "category", tp)
	case sendClosed:
		h.metrics.Dropped.WithLabelValues(label, dropClosed).Inc()
		logger.Trace(h.logger, "dropping event, queue closed", "category", tp)
	}
}

// shutdown closes every worker queue, then joins every worker.
func (h *Handler) shutdown(workers map[register.Type]*worker) []joinResult {
	for _, w := range workers {
		w.box.close()
	}

	results := make([]joinResult, 0, len(workers))
	for _, t := range callback.Types {
		rt, ok := categoryFor(t)
		if !ok {
			continue
		}
		w, ok := workers[rt]
		if !ok {
			continue
		}
		r := w.wait()
		h.logger.Debug("worker joined", "category", r.typ, "outcome", r.outcome)
		results = append(results, r)
	}
	h.logger.Info("dispatch stopped", "workers", len(results))
	return results
}

// rethrow re-raises the first worker panic with its original value.
func rethrow(log *slog.Logger, results []joinResult) {
	for _, r := range results {
		if r.outcome != outcomePanicked {
			continue
		}
		logger.Fail(log, "callback panicked",
			"category", r.typ,
			"panic", fmt.Sprint(r.value),
			"stack", string(r.stack),
		)
		panic(r.value)
	}
}

// suspendingTypes lists the slots bound to suspending callbacks.
func suspendingTypes(cs callback.Callbacks) []callback.Type {
	if !cs.HasSuspending() {
		return nil
	}
	var types []callback.Type
	for _, t := range callback.Types {
		if cb, ok := cs[t]; ok && cb.Kind() == callback.KindSuspending {
			types = append(types, t)
		}
	}
	return types
}
