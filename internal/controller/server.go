package controller

import (
	"context"
	"net"
	"time"

	"github.com/dreamware/dstore/internal/protocol"
	"github.com/dreamware/dstore/internal/wire"
)

// Serve runs the controller's single accept loop on ln until ctx is
// canceled: clients and data nodes share one listening socket
// (spec.md §4.4), distinguished by whether a new connection's first
// line is JOIN.
func (c *Controller) Serve(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				c.log.Warn().Err(err).Msg("accept failed")
				return
			}
		}
		go c.handleConn(wire.New(nc))
	}
}

// handleConn reads the first line of a freshly accepted connection and
// routes it to the node-join path or the client dispatch loop.
func (c *Controller) handleConn(conn *wire.Conn) {
	tokens, err := conn.ReadLine(time.Now().Add(c.cfg.Timeout))
	if err != nil {
		conn.Close()
		return
	}
	if len(tokens) == 0 {
		conn.Close()
		return
	}

	if tokens[0] == protocol.Join {
		if len(tokens) != 2 {
			c.log.Warn().Strs("tokens", tokens).Msg("malformed JOIN, closing session")
			conn.Close()
			return
		}
		c.acceptJoin(conn, tokens)
		return
	}

	c.serveClientLoop(conn, tokens)
}
