package handler

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"tools.zach/dev/sigdispatch/callback"
	"tools.zach/dev/sigdispatch/internal/logger"
)

// ///////////////////////////////////////////////
// Join Outcome
// ///////////////////////////////////////////////

// outcome is how a worker ended.
type outcome uint8

const (
	outcomeCompleted outcome = iota + 1
	outcomeCancelled
	outcomePanicked
)

func (o outcome) String() string {
	switch o {
	case outcomeCompleted:
		return "completed"
	case outcomeCancelled:
		return "cancelled"
	case outcomePanicked:
		return "panicked"
	default:
		return "unknown"
	}
}

// joinResult is what the joining goroutine learns from a finished worker.
type joinResult struct {
	typ     callback.Type
	outcome outcome
	// value and stack are set for outcomePanicked.
	value any
	stack []byte
}

// ///////////////////////////////////////////////
// Worker
// ///////////////////////////////////////////////

// worker serially executes one category's callback. It moves between idle
// and executing until its mailbox is closed and drained.
type worker struct {
	typ     callback.Type
	cb      callback.Callback
	box     *mailbox
	metrics *Metrics
	logger  *slog.Logger
	// now is the clock used for the finish watermark.
	now func() time.Time

	// latestFinish is when the last invocation returned; zero until the
	// first invocation. Only the worker goroutine touches it.
	latestFinish time.Time

	// done is closed once result is final.
	done   chan struct{}
	result joinResult
}

func newWorker(typ callback.Type, cb callback.Callback, box *mailbox, m *Metrics, log *slog.Logger) *worker {
	return &worker{
		typ:     typ,
		cb:      cb,
		box:     box,
		metrics: m,
		logger:  log,
		now:     time.Now,
		done:    make(chan struct{}),
		result:  joinResult{typ: typ},
	}
}

// run consumes the mailbox until it is closed and empty or ctx is done. With
// lockThread set the worker owns a dedicated OS thread for its lifetime. A
// panic raised by the callback ends the worker and is recorded for the
// joining goroutine, and abandons the mailbox so the router stops queueing
// for a dead worker.
func (w *worker) run(ctx context.Context, lockThread bool) {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.box.abandon()
			w.result.outcome = outcomePanicked
			w.result.value = r
			w.result.stack = debug.Stack()
		}
	}()

	if lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	for {
		info, res := w.box.recv(ctx)
		switch res {
		case recvClosed:
			w.result.outcome = outcomeCompleted
			return
		case recvCancelled:
			w.result.outcome = outcomeCancelled
			return
		}

		if w.stale(info) {
			w.metrics.Debounced.WithLabelValues(w.typ.String()).Inc()
			logger.Trace(w.logger, "skipping stale event",
				"category", w.typ,
				"captured", info.Time(),
				"latest_finish", w.latestFinish,
			)
			continue
		}

		w.invoke(ctx, info)
		w.latestFinish = w.now()
	}
}

// stale reports whether an invocation finished after info was captured.
func (w *worker) stale(info callback.Info) bool {
	return !w.latestFinish.IsZero() && w.latestFinish.After(info.Time())
}

func (w *worker) invoke(ctx context.Context, info callback.Info) {
	invokeObserved(ctx, w.metrics, w.typ, w.cb, info)
}

// wait blocks until the worker has finished and returns its result.
func (w *worker) wait() joinResult {
	<-w.done
	return w.result
}

// invokeObserved runs cb with info and records the invocation and its run
// time. A panicking callback is not recorded.
func invokeObserved(ctx context.Context, m *Metrics, typ callback.Type, cb callback.Callback, info callback.Info) {
	start := time.Now()
	cb.Invoke(ctx, info)
	label := typ.String()
	m.Invocations.WithLabelValues(label).Inc()
	m.Duration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}
