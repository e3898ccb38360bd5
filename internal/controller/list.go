package controller

import "github.com/dreamware/dstore/internal/protocol"

// handleList implements spec.md §4.4 LIST: reply with every visible
// (StoreComplete) filename, order not significant.
func (c *Controller) handleList(s *Session) {
	if !c.enoughNodes() {
		s.conn.WriteLine(protocol.ErrNotEnoughDstores)
		return
	}

	c.Gate.WaitReadable()

	names := c.Index.SnapshotVisible()
	s.conn.WriteLine(append([]string{protocol.ListCmd}, names...)...)
}
