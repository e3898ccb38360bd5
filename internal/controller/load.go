package controller

import (
	"strconv"

	"github.com/dreamware/dstore/internal/fileindex"
	"github.com/dreamware/dstore/internal/protocol"
)

// clearRecentLoad drops s's recent-load cursor, called at the top of the
// dispatch loop for any command other than RELOAD (spec.md §4.7).
func (c *Controller) clearRecentLoad(s *Session) {
	c.loadMu.Lock()
	delete(c.recentLoads, s)
	c.loadMu.Unlock()
}

func (c *Controller) recentlyOffered(s *Session, name string, port int) bool {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	return c.recentLoads[s] != nil && c.recentLoads[s][name] != nil && c.recentLoads[s][name][port]
}

func (c *Controller) recordOffered(s *Session, name string, port int) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if c.recentLoads[s] == nil {
		c.recentLoads[s] = make(map[string]map[int]bool)
	}
	if c.recentLoads[s][name] == nil {
		c.recentLoads[s][name] = make(map[int]bool)
	}
	c.recentLoads[s][name][port] = true
}

// handleLoad implements spec.md §4.4 LOAD/RELOAD: walk the file's
// replicas in stored order and offer the first one not already offered
// to this session for this file.
func (c *Controller) handleLoad(s *Session, args []string) {
	if !c.enoughNodes() {
		s.conn.WriteLine(protocol.ErrNotEnoughDstores)
		return
	}
	if len(args) != 1 {
		s.log.Warn().Strs("args", args).Msg("malformed LOAD/RELOAD, discarded")
		return
	}
	name := args[0]

	c.Gate.WaitReadable()

	entry, ok := c.Index.Get(name)
	if !ok || entry.Status != fileindex.StoreComplete {
		s.conn.WriteLine(protocol.ErrFileDoesNotExist)
		return
	}

	for _, port := range entry.Replicas {
		if c.recentlyOffered(s, name, port) {
			continue
		}
		c.recordOffered(s, name, port)
		s.conn.WriteLine(protocol.LoadFrom, strconv.Itoa(port), strconv.FormatInt(entry.Size, 10))
		return
	}

	s.conn.WriteLine(protocol.ErrLoad)
}
