// Package wire implements the line-oriented text framing shared by every
// TCP session in the store: one logical message per line, tokens
// separated by single spaces, as spec.md §4.1 specifies. It knows
// nothing about command semantics — callers tokenize and interpret.
package wire

import (
	"bufio"
	"errors"
	"io"
	"net"
	"strings"
	"time"
)

// ErrTimeout is returned by ReadLine when no full line arrives before the
// supplied deadline.
var ErrTimeout = errors.New("wire: read timeout")

// ErrClosed is returned by ReadLine on EOF or any other I/O error that
// leaves the connection unusable.
var ErrClosed = errors.New("wire: connection closed")

// Conn wraps a net.Conn with buffered line reading. It is safe for one
// reader and one writer to use concurrently (distinct goroutines calling
// ReadLine and WriteLine respectively); it is not safe for concurrent
// writers, nor for concurrent readers — callers that need request/reply
// multiplexing over a single Conn must dedicate a single reader goroutine
// (see internal/noderegistry).
type Conn struct {
	nc     net.Conn
	reader *bufio.Reader
}

// New wraps an established net.Conn for line-oriented I/O.
func New(nc net.Conn) *Conn {
	return &Conn{nc: nc, reader: bufio.NewReader(nc)}
}

// Raw returns the underlying net.Conn, for callers that need to hand the
// connection off for raw byte transfer (file payloads are never framed
// by this package, per spec.md §1).
func (c *Conn) Raw() net.Conn {
	return c.nc
}

// ReadLine blocks until one newline-terminated line arrives or the
// deadline passes, then returns it split on runs of whitespace. A zero
// deadline means no timeout.
func (c *Conn) ReadLine(deadline time.Time) ([]string, error) {
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, ErrClosed
	}
	return strings.Fields(line), nil
}

// WriteLine joins tokens with single spaces, appends a newline, and
// writes the result in one call. Failure marks the connection broken by
// closing it, so subsequent reads/writes on this Conn fail fast instead
// of hanging a waiter indefinitely.
func (c *Conn) WriteLine(tokens ...string) error {
	line := strings.Join(tokens, " ") + "\n"
	if _, err := c.nc.Write([]byte(line)); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}

// ReadFull reads exactly n raw bytes (the payload following a STORE,
// REBALANCE_STORE, or similar command line) through the same buffered
// reader ReadLine uses, so bytes the client pipelined right behind its
// command line aren't dropped. Payload transfers are never framed by
// this package (spec.md §1); callers already know n from the command.
func (c *Conn) ReadFull(n int, deadline time.Time) ([]byte, error) {
	if err := c.nc.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.reader, buf); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, ErrTimeout
		}
		return nil, ErrClosed
	}
	return buf, nil
}

// WriteRaw writes b directly to the connection, unframed. Used for
// payload bytes following a command line (spec.md §1/§6).
func (c *Conn) WriteRaw(b []byte) error {
	if _, err := c.nc.Write(b); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
