// Package probe is a minimal client for folioserve: it connects, sends
// nothing, and reads until the server closes its write side.
package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// DefaultTimeout bounds a whole Fetch when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// MaxResponseSize caps how much Fetch reads before giving up.
const MaxResponseSize = 16 * 1024 * 1024

var (
	// ErrTooLarge is returned when the server sends more than MaxResponseSize.
	ErrTooLarge = errors.New("response exceeds maximum size")
	// ErrUnexpectedResponse is returned by Check for a response that is not a
	// 200 HTML page.
	ErrUnexpectedResponse = errors.New("unexpected response")
)

// Config holds the client settings.
type Config struct {
	// Address is the "host:port" to connect to.
	Address string
	// Timeout covers dial and read together.
	Timeout time.Duration
}

// Fetch dials cfg.Address and returns every byte the server sends before EOF.
//
// Parameters:
//   - ctx: Cancels the dial and the read
//   - cfg: Address and timeout
//
// Returns:
//   - The response bytes, or an error if dialing or reading fails
func Fetch(ctx context.Context, cfg Config) ([]byte, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(conn, MaxResponseSize+1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("read %s: %w", cfg.Address, ctxErr)
		}
		return nil, fmt.Errorf("read %s: %w", cfg.Address, err)
	}

	if n > MaxResponseSize {
		return nil, ErrTooLarge
	}

	return buf.Bytes(), nil
}

// Check verifies that res starts with a 200 status line followed by the
// HTML content type header.
func Check(res []byte) error {
	head, _, ok := bytes.Cut(res, []byte("\r\n\r\n"))
	if !ok {
		return fmt.Errorf("%w: no end of headers", ErrUnexpectedResponse)
	}

	lines := bytes.Split(head, []byte("\r\n"))
	if string(lines[0]) != "HTTP/1.1 200 OK" {
		return fmt.Errorf("%w: status line %q", ErrUnexpectedResponse, lines[0])
	}

	for _, l := range lines[1:] {
		if string(l) == "Content-Type: text/html; charset=UTF-8" {
			return nil
		}
	}

	return fmt.Errorf("%w: missing html content type", ErrUnexpectedResponse)
}
