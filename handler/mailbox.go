package handler

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"tools.zach/dev/sigdispatch/callback"
)

// ///////////////////////////////////////////////
// Mailbox
// ///////////////////////////////////////////////

// sendResult reports what happened to a trySend.
type sendResult uint8

const (
	sendOK sendResult = iota
	sendFull
	sendClosed
)

// recvResult reports why recv returned.
type recvResult uint8

const (
	recvOK recvResult = iota
	recvClosed
	recvCancelled
)

// mailbox is a worker's inbound queue: single producer (the routing loop),
// single consumer (the worker). Sends never block. A zero capacity means
// unbounded.
type mailbox struct {
	mu       sync.Mutex
	items    *queue.Queue
	capacity int
	closed   bool
	// ready holds at most one wakeup for the consumer.
	ready chan struct{}
}

func newMailbox(capacity int) *mailbox {
	return &mailbox{
		items:    queue.New(),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// trySend enqueues info without blocking.
func (m *mailbox) trySend(info callback.Info) sendResult {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return sendClosed
	case m.capacity > 0 && m.items.Length() >= m.capacity:
		m.mu.Unlock()
		return sendFull
	}
	m.items.Add(info)
	m.mu.Unlock()

	m.wake()
	return sendOK
}

// close stops further sends. Items already queued remain receivable.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.wake()
}

// abandon closes the mailbox and discards anything still queued. A worker
// that can no longer consume calls it so later sends report sendClosed.
func (m *mailbox) abandon() {
	m.mu.Lock()
	m.closed = true
	m.items = queue.New()
	m.mu.Unlock()

	m.wake()
}

// recv blocks until an item is available, the mailbox is closed and empty,
// or ctx is done. A done ctx wins over queued items.
func (m *mailbox) recv(ctx context.Context) (callback.Info, recvResult) {
	for {
		if ctx.Err() != nil {
			return callback.Info{}, recvCancelled
		}

		m.mu.Lock()
		if m.items.Length() > 0 {
			info := m.items.Remove().(callback.Info)
			m.mu.Unlock()
			return info, recvOK
		}
		if m.closed {
			m.mu.Unlock()
			return callback.Info{}, recvClosed
		}
		m.mu.Unlock()

		select {
		case <-m.ready:
		case <-ctx.Done():
			return callback.Info{}, recvCancelled
		}
	}
}

// len reports the number of queued items.
func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items.Length()
}

func (m *mailbox) wake() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}
