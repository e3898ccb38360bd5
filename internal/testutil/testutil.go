// Package testutil provides small scriptable TCP helpers used only by
// controller tests to simulate client and data-node sessions, grounded
// on the teacher's pattern of small in-package test helpers living
// beside the code they exercise (e.g. cmd/node/main_test.go's mock
// dialer in the teacher repo).
package testutil

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/dstore/internal/wire"
)

// Client wraps a dialed connection to the controller's client port and
// offers line-at-a-time send/expect assertions.
type Client struct {
	t    *testing.T
	conn *wire.Conn
}

// DialClient connects to addr as a plain client session.
func DialClient(t *testing.T, addr string) *Client {
	t.Helper()
	nc, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	return &Client{t: t, conn: wire.New(nc)}
}

// Send writes one command line.
func (c *Client) Send(tokens ...string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteLine(tokens...))
}

// ReadLine reads one reply line within 2s, failing the test on timeout
// or closed connection.
func (c *Client) ReadLine() []string {
	c.t.Helper()
	tokens, err := c.conn.ReadLine(time.Now().Add(2 * time.Second))
	require.NoError(c.t, err)
	return tokens
}

// ExpectLine reads one reply line and asserts it matches want exactly.
func (c *Client) ExpectLine(want ...string) {
	c.t.Helper()
	got := c.ReadLine()
	require.Equal(c.t, want, got)
}

// Close closes the underlying connection.
func (c *Client) Close() { c.conn.Close() }

// FakeNode simulates a data node's control session: it dials the
// controller, sends JOIN, and lets the test script subsequent exchanges
// by hand (SendAck, SendRemoveAck, ExpectLine, Reply), or auto-answer
// the controller's LIST and REBALANCE requests via AutoRebalance.
type FakeNode struct {
	t    *testing.T
	Port int
	conn *wire.Conn
}

// JoinFakeNode dials addr and sends JOIN port, returning a handle for
// scripting the rest of the session.
func JoinFakeNode(t *testing.T, addr string, port int) *FakeNode {
	t.Helper()
	nc, err := net.DialTimeout("tcp", addr, time.Second)
	require.NoError(t, err)
	conn := wire.New(nc)
	require.NoError(t, conn.WriteLine("JOIN", strconv.Itoa(port)))
	return &FakeNode{t: t, Port: port, conn: conn}
}

// SendAck sends STORE_ACK name on the node's control session, as if it
// had just finished writing a client's uploaded content.
func (n *FakeNode) SendAck(name string) {
	n.t.Helper()
	require.NoError(n.t, n.conn.WriteLine("STORE_ACK", name))
}

// SendRemoveAck sends REMOVE_ACK name.
func (n *FakeNode) SendRemoveAck(name string) {
	n.t.Helper()
	require.NoError(n.t, n.conn.WriteLine("REMOVE_ACK", name))
}

// ExpectLine reads the next line sent to this node within 2s and
// asserts it matches want exactly.
func (n *FakeNode) ExpectLine(want ...string) {
	n.t.Helper()
	tokens, err := n.conn.ReadLine(time.Now().Add(2 * time.Second))
	require.NoError(n.t, err)
	require.Equal(n.t, want, tokens)
}

// Reply sends an arbitrary line, e.g. a LIST or REBALANCE_COMPLETE
// response.
func (n *FakeNode) Reply(tokens ...string) {
	n.t.Helper()
	require.NoError(n.t, n.conn.WriteLine(tokens...))
}

// Close closes the node's control session, simulating a crash/disconnect.
func (n *FakeNode) Close() { n.conn.Close() }

// AutoRebalance runs in the background, replying to every LIST request
// with files and to every REBALANCE request with REBALANCE_COMPLETE,
// until the node's session closes. Tests use this when they only care
// that a rebalance pass completes, not about the exact plan it computed.
func (n *FakeNode) AutoRebalance(files []string) {
	go func() {
		for {
			tokens, err := n.conn.ReadLine(time.Time{})
			if err != nil {
				return
			}
			if len(tokens) == 0 {
				continue
			}
			switch tokens[0] {
			case "LIST":
				if err := n.conn.WriteLine(append([]string{"LIST"}, files...)...); err != nil {
					return
				}
			case "REBALANCE":
				if err := n.conn.WriteLine("REBALANCE_COMPLETE"); err != nil {
					return
				}
			}
		}
	}()
}

// DrainListRequests answers any LIST requests already queued on this
// node's control session with an empty file list, returning once a read
// comes back empty-handed within timeout. Tests use this after JOIN to
// settle the automatic post-join rebalance pass (spec.md §4.5) before
// scripting the exchange they actually care about.
func (n *FakeNode) DrainListRequests(timeout time.Duration) {
	n.t.Helper()
	for {
		tokens, err := n.conn.ReadLine(time.Now().Add(timeout))
		if err != nil {
			return
		}
		if len(tokens) > 0 && tokens[0] == "LIST" {
			require.NoError(n.t, n.conn.WriteLine("LIST"))
			continue
		}
		return
	}
}
