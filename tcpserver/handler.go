package tcpserver

import (
	"fmt"
	"net"
	"time"

	"github.com/cyberinferno/folioserve/connid"
	"github.com/cyberinferno/folioserve/logger"
	"github.com/cyberinferno/folioserve/perfmonitor"
)

// State is a step of a connection handler's life.
type State int

const (
	Accepted       State = iota // Handed to a handler, nothing written yet
	Writing                     // Response write in progress
	WriteFailed                 // Write returned an error; terminal
	WriteSucceeded              // Whole response written
	ShutdownFailed              // Half-closing the write side failed; terminal
	Closed                      // Response written and write side closed; terminal
)

// String returns a human-readable name for the state.
func (st State) String() string {
	switch st {
	case Accepted:
		return "Accepted"
	case Writing:
		return "Writing"
	case WriteFailed:
		return "WriteFailed"
	case WriteSucceeded:
		return "WriteSucceeded"
	case ShutdownFailed:
		return "ShutdownFailed"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether a handler stops in st.
func (st State) Terminal() bool {
	return st == WriteFailed || st == ShutdownFailed || st == Closed
}

// Result is what a handler did with one connection.
type Result struct {
	State   State
	Written int
	Err     error
}

type closeWriter interface {
	CloseWrite() error
}

// WriteResponse writes response to conn in a single Write and then
// half-closes conn's write side when conn supports it. It does not close
// conn. A zero timeout sets no deadline. A short write always comes back as
// WriteFailed because net.Conn reports an error for it; nothing is resent.
//
// Parameters:
//   - conn: A just-accepted connection
//   - response: The bytes to send
//   - timeout: Write deadline relative to now, or 0
//
// Returns:
//   - The terminal Result of the handler
func WriteResponse(conn net.Conn, response []byte, timeout time.Duration) Result {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return Result{State: WriteFailed, Err: fmt.Errorf("set write deadline: %w", err)}
		}
	}

	n, err := conn.Write(response)
	if err != nil {
		return Result{State: WriteFailed, Written: n, Err: fmt.Errorf("write response: %w", err)}
	}

	cw, ok := conn.(closeWriter)
	if !ok {
		return Result{State: Closed, Written: n}
	}

	if err := cw.CloseWrite(); err != nil {
		return Result{State: ShutdownFailed, Written: n, Err: fmt.Errorf("close write: %w", err)}
	}

	return Result{State: Closed, Written: n}
}

// handle owns conn until it returns. It never touches the listener.
func (s *Server) handle(id connid.ID, conn net.Conn) {
	defer s.wg.Done()
	defer s.conns.Remove(id)
	defer func() { _ = conn.Close() }()
	if s.gate != nil {
		defer s.gate.Release(1)
	}

	log := s.logger.With(logger.F("conn", id.String()), logger.F("remote", remoteAddr(conn)))

	pm := perfmonitor.NewPerformanceMonitor()
	pm.Start()
	res := WriteResponse(conn, s.response, s.timeout)
	pm.Stop()

	s.stats.record(res.State)

	fields := []logger.Field{
		logger.F("state", res.State.String()),
		logger.F("bytes", res.Written),
		logger.F("elapsed_ms", pm.ElapsedMilliseconds()),
	}

	switch res.State {
	case WriteFailed:
		log.Warn("failed sending response", append(fields, logger.Err(res.Err))...)
	case ShutdownFailed:
		log.Warn("failed closing write side", append(fields, logger.Err(res.Err))...)
	default:
		log.Debug("response sent", fields...)
	}
}

func remoteAddr(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}

	return ""
}
