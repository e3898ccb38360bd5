package controller

import (
	"time"

	"github.com/dreamware/dstore/internal/fileindex"
	"github.com/dreamware/dstore/internal/noderegistry"
	"github.com/dreamware/dstore/internal/protocol"
)

// handleRemove implements spec.md §4.4 REMOVE: admit into
// RemoveInProgress, fan out REMOVE to every replica in parallel, and
// await all acks within one deadline. REMOVE_ACK and the node's
// ERROR_FILE_DOES_NOT_EXIST reply both count as a successful ack;
// fileCount is decremented only for REMOVE_ACK.
func (c *Controller) handleRemove(s *Session, args []string) {
	if !c.enoughNodes() {
		s.conn.WriteLine(protocol.ErrNotEnoughDstores)
		return
	}
	if len(args) != 1 {
		s.log.Warn().Strs("args", args).Msg("malformed REMOVE, discarded")
		return
	}
	name := args[0]

	c.Gate.EnterClient()
	defer c.Gate.LeaveClient()

	entry, ok := c.Index.Get(name)
	if !ok || entry.Status != fileindex.StoreComplete {
		s.conn.WriteLine(protocol.ErrFileDoesNotExist)
		return
	}
	if err := c.Index.AdmitRemove(name); err != nil {
		s.conn.WriteLine(protocol.ErrFileDoesNotExist)
		return
	}

	nodes := make([]*noderegistry.Node, 0, len(entry.Replicas))
	for _, p := range entry.Replicas {
		if n, ok := c.Registry.Get(p); ok {
			nodes = append(nodes, n)
		}
	}

	// Register waiters before dispatching REMOVE, since the controller
	// initiates this round trip and a fast-replying node could otherwise
	// ack before a waiter is listening.
	key := noderegistry.RemoveAckKey(name)
	chans := make(map[int]chan noderegistry.Message, len(nodes))
	for _, n := range nodes {
		chans[n.Port] = n.RegisterWaiter(key)
	}
	for _, n := range nodes {
		if err := n.Send(protocol.Remove, name); err != nil {
			n.Unregister(key)
			delete(chans, n.Port)
		}
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	acked := awaitChans(chans, deadline)

	if len(acked) < len(nodes) {
		c.log.Info().Str("file", name).Int("acked", len(acked)).Int("want", len(nodes)).
			Msg("REMOVE timed out, leaving entry for rebalance to reconcile")
		for _, n := range nodes {
			if _, ok := acked[n.Port]; !ok {
				n.Unregister(key)
			}
		}
		return
	}

	for _, n := range nodes {
		if msg, ok := acked[n.Port]; ok && msg.Token == protocol.RemoveAck {
			n.AdjustFileCount(-1)
		}
	}

	c.Index.Drop(name)
	s.conn.WriteLine(protocol.RemoveComplete)
}
