package controller

import (
	"strconv"
	"time"

	"github.com/dreamware/dstore/internal/noderegistry"
	"github.com/dreamware/dstore/internal/protocol"
)

// handleStore implements spec.md §4.4 STORE: select R least-loaded
// nodes, admit the index entry, reply STORE_TO, then await R acks within
// one deadline from the reply.
func (c *Controller) handleStore(s *Session, args []string) {
	if !c.enoughNodes() {
		s.conn.WriteLine(protocol.ErrNotEnoughDstores)
		return
	}
	if len(args) != 2 {
		s.log.Warn().Strs("args", args).Msg("malformed STORE, discarded")
		return
	}
	name := args[0]
	size, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || size < 0 {
		s.log.Warn().Str("size", args[1]).Msg("malformed STORE size, discarded")
		return
	}

	c.Gate.EnterClient()
	defer c.Gate.LeaveClient()

	ports, err := c.Registry.SelectLeastLoaded(c.cfg.ReplicationFactor)
	if err != nil {
		s.conn.WriteLine(protocol.ErrNotEnoughDstores)
		return
	}

	if err := c.Index.AdmitStore(name, size, ports); err != nil {
		s.conn.WriteLine(protocol.ErrFileAlreadyExists)
		return
	}

	nodes := make([]*noderegistry.Node, 0, len(ports))
	for _, p := range ports {
		if n, ok := c.Registry.Get(p); ok {
			nodes = append(nodes, n)
		}
	}

	// Register ack waiters before replying STORE_TO: the reply is what
	// sends the client off to dial these nodes directly, and a node could
	// otherwise deliver its STORE_ACK before anything here is listening
	// for it.
	key := noderegistry.StoreAckKey(name)
	chans := make(map[int]chan noderegistry.Message, len(nodes))
	for _, n := range nodes {
		chans[n.Port] = n.RegisterWaiter(key)
	}

	if err := s.conn.WriteLine(append([]string{protocol.StoreTo}, portStrings(ports)...)...); err != nil {
		for _, n := range nodes {
			n.Unregister(key)
		}
		c.Index.Drop(name)
		return
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	acked := awaitChans(chans, deadline)

	if len(acked) < len(ports) {
		c.log.Info().Str("file", name).Int("acked", len(acked)).Int("want", len(ports)).Msg("STORE timed out, dropping entry")
		for _, n := range nodes {
			if _, ok := acked[n.Port]; !ok {
				n.Unregister(key)
			}
		}
		c.Index.Drop(name)
		return
	}

	for _, n := range nodes {
		n.AdjustFileCount(1)
	}
	c.Index.MarkStoreComplete(name)
	s.conn.WriteLine(protocol.StoreComplete)
}

func portStrings(ports []int) []string {
	out := make([]string, len(ports))
	for i, p := range ports {
		out[i] = strconv.Itoa(p)
	}
	return out
}
