package controller

import (
	"strconv"

	"github.com/dreamware/dstore/internal/noderegistry"
	"github.com/dreamware/dstore/internal/wire"
)

// acceptJoin handles one node's JOIN handshake: tokens is the already
// validated ["JOIN", port] line. It hands the connection over to the
// registry as a persistent node session and triggers an immediate
// rebalance, per spec.md §4.4 JOIN.
func (c *Controller) acceptJoin(conn *wire.Conn, tokens []string) {
	log := c.log.With().Str("role", "node").Logger()

	port, err := strconv.Atoi(tokens[1])
	if err != nil {
		log.Warn().Str("port", tokens[1]).Msg("malformed JOIN port, closing session")
		conn.Close()
		return
	}

	n := noderegistry.NewNode(port, conn, log, c.onNodeClosed)
	c.Registry.Join(n)
	go n.Run()

	log.Info().Int("port", port).Msg("node joined")
	c.TriggerRebalance()
}

// onNodeClosed evicts port from the registry and scrubs it from every
// file's replica set, per spec.md §4.3's node-removal lifecycle. It runs
// on the node's own reader goroutine once the session is observed
// broken.
func (c *Controller) onNodeClosed(port int) {
	if c.Registry.Remove(port) {
		c.Index.ScrubNode(port)
	}
}
