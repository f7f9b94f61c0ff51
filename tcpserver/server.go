// Package tcpserver serves one precomputed response to every TCP client.
//
// Each accepted connection gets its own goroutine that writes the response,
// half-closes the write side and closes the connection. Client bytes are
// never read. Accept, write and half-close failures are logged and counted
// but never stop the server; only a failed bind is fatal.
package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/folioserve/connid"
	"github.com/cyberinferno/folioserve/logger"
	"github.com/cyberinferno/folioserve/tracker"
	"golang.org/x/sync/semaphore"
)

// ErrServerRunning is returned when starting a server that is already running.
var ErrServerRunning = errors.New("server already running")

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Options configures a Server.
type Options struct {
	// Name appears in log messages.
	Name string
	// Addr is the host:port to bind.
	Addr string
	// WriteTimeout bounds the response write; 0 means no deadline.
	WriteTimeout time.Duration
	// MaxHandlers caps concurrently running handlers; 0 means unbounded.
	// When the cap is reached the accept loop waits for a handler to finish.
	MaxHandlers int64
}

// Server accepts connections on one listener and writes the same response
// buffer to each of them.
type Server struct {
	logger   logger.Logger
	name     string
	addr     string
	timeout  time.Duration
	limit    int64
	response []byte

	gate  *semaphore.Weighted
	ids   *connid.Generator
	conns *tracker.Tracker
	wg    sync.WaitGroup
	stats counters

	mu       sync.Mutex
	running  atomic.Bool
	listener net.Listener
	cancel   context.CancelFunc
	loopDone chan struct{}
}

// New returns a Server that will serve response. The buffer is copied, so
// later changes by the caller are not observed.
//
// Parameters:
//   - opts: Name, bind address and optional hardening limits
//   - response: The complete bytes written to every connection
//   - log: Logger for server and handler events; nil discards them
//
// Returns:
//   - A Server that is not yet listening
func New(opts Options, response []byte, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}

	name := opts.Name
	if name == "" {
		name = "folioserve"
	}

	s := &Server{
		logger:   log,
		name:     name,
		addr:     opts.Addr,
		timeout:  opts.WriteTimeout,
		limit:    opts.MaxHandlers,
		response: append([]byte(nil), response...),
		ids:      connid.NewGenerator(0),
		conns:    tracker.New(),
	}

	if s.limit > 0 {
		s.gate = semaphore.NewWeighted(s.limit)
	}

	return s
}

// ListenAndServe binds the configured address and runs the accept loop until
// Stop is called.
//
// Returns:
//   - An error naming the address if binding fails; nil after Stop
func (s *Server) ListenAndServe() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	return s.Serve(ln)
}

// Start binds the configured address and runs the accept loop in a
// goroutine. Bind errors are returned synchronously.
func (s *Server) Start() error {
	ln, err := s.listen()
	if err != nil {
		return err
	}

	ctx, done, err := s.begin(ln)
	if err != nil {
		_ = ln.Close()
		return err
	}

	go func() {
		if err := s.acceptLoop(ctx, ln, done); err != nil {
			s.logger.Error(fmt.Sprintf("%s server accept loop ended", s.name), logger.Err(err))
		}
	}()

	return nil
}

// Serve runs the accept loop on ln until Stop is called or ln is closed by
// someone else. The server takes ownership of ln.
//
// Returns:
//   - nil after Stop, ErrServerRunning if already running, or the error that
//     ended the loop
func (s *Server) Serve(ln net.Listener) error {
	ctx, done, err := s.begin(ln)
	if err != nil {
		return err
	}

	return s.acceptLoop(ctx, ln, done)
}

// Stop closes the listener and every live connection, then waits for all
// handlers to return. Safe to call when the server is not running.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running.Load() {
		s.mu.Unlock()
		s.logger.Info(fmt.Sprintf("%s server not running", s.name))
		return
	}

	s.running.Store(false)
	ln, cancel, done := s.listener, s.cancel, s.loopDone
	s.mu.Unlock()

	cancel()
	_ = ln.Close()
	<-done

	// The accept loop has exited, so no handler can be added from here on.
	closed := s.conns.CloseAll()
	s.wg.Wait()

	s.logger.Info(fmt.Sprintf("%s server stopped", s.name), logger.F("closed_conns", closed))
}

// Addr returns the bound address, or nil if the server is not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil || !s.running.Load() {
		return nil
	}

	return s.listener.Addr()
}

// Stats returns a snapshot of the server counters.
func (s *Server) Stats() Stats {
	return s.stats.snapshot(s.conns.Len())
}

func (s *Server) listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Error(fmt.Sprintf("%s server failed to bind", s.name),
			logger.F("addr", s.addr), logger.Err(err))
		return nil, fmt.Errorf("%s server failed to bind %s: %w", s.name, s.addr, err)
	}

	return ln, nil
}

func (s *Server) begin(ln net.Listener) (context.Context, chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil, nil, fmt.Errorf("%s: %w", s.name, ErrServerRunning)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.listener = ln
	s.cancel = cancel
	s.loopDone = done
	s.running.Store(true)

	s.logger.Info(fmt.Sprintf("%s server started", s.name),
		logger.F("addr", ln.Addr().String()),
		logger.F("response_bytes", len(s.response)),
		logger.F("max_handlers", s.limit))

	return ctx, done, nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, done chan struct{}) error {
	defer close(done)

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				return nil
			}

			if errors.Is(err, net.ErrClosed) {
				s.markStopped()
				return fmt.Errorf("%s server listener closed: %w", s.name, err)
			}

			s.stats.acceptFailures.Add(1)
			delay = nextDelay(delay)
			s.logger.Error(fmt.Sprintf("%s server accept error", s.name),
				logger.Err(err), logger.F("retry_in", delay.String()))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		if s.gate != nil {
			if err := s.gate.Acquire(ctx, 1); err != nil {
				_ = conn.Close()
				return nil
			}
		}

		s.stats.accepted.Add(1)
		id := s.ids.Next()
		s.conns.Add(id, conn)
		s.wg.Add(1)
		go s.handle(id, conn)
	}
}

// markStopped clears running after the listener was closed behind our back,
// so a later Stop does not wait on a loop that is already gone.
func (s *Server) markStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running.Store(false)
	s.cancel()
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}

	return min(d*2, maxAcceptDelay)
}
