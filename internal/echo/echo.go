// Package echo is a TCP echo server whose accept loop stays gated until the
// owner opens it, so clients are only served once startup has finished.
package echo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// Stats is a snapshot of server counters.
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Active   int64  `json:"active"`
	Bytes    uint64 `json:"bytes"`
}

// Server echoes every byte it reads back to the sender.
type Server struct {
	ln     net.Listener
	logger *slog.Logger

	open     chan struct{}
	openOnce sync.Once

	closed    chan struct{}
	closeOnce sync.Once

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup

	accepted atomic.Uint64
	active   atomic.Int64
	bytes    atomic.Uint64
}

// Listen binds addr. The server accepts nothing until [Server.Open].
func Listen(addr string, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		ln:     ln,
		logger: logger,
		open:   make(chan struct{}),
		closed: make(chan struct{}),
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Open releases the accept loop. Further calls do nothing.
func (s *Server) Open() {
	s.openOnce.Do(func() { close(s.open) })
}

// Stats returns the current counters.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Active:   s.active.Load(),
		Bytes:    s.bytes.Load(),
	}
}

// Serve waits for [Server.Open], then accepts until ctx is done or the
// server is closed, both of which return nil. Open connections are closed
// and drained before Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()
	defer s.wg.Wait()

	select {
	case <-s.open:
	case <-s.closed:
		return nil
	}
	s.logger.Info("echo listener open", "addr", s.ln.Addr().String())

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.accepted.Add(1)
		s.wg.Add(1)
		go s.handle(conn)
	}
}

// Close stops accepting and closes every open connection. It is safe to
// call more than once.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.ln.Close()
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
	})
	return err
}

// track records conn unless the server is already closed.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return false
	default:
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	s.active.Add(1)
	defer s.active.Add(-1)
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	addr := conn.RemoteAddr().String()
	n, err := io.Copy(conn, conn)
	s.bytes.Add(uint64(n))
	if err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("echo copy failed", "addr", addr, "bytes", n, "error", err)
		return
	}
	s.logger.Debug("echo client done", "addr", addr, "bytes", n)
}
