package controller

import (
	"sort"
	"strconv"
	"time"

	"github.com/dreamware/dstore/internal/noderegistry"
	"github.com/dreamware/dstore/internal/protocol"
)

// runRebalance executes one rebalance pass per spec.md §4.5. The
// Controller.Run loop invokes this sequentially off a single goroutine
// (the ticker/trigger select), so "at most one rebalance runs at a
// time" holds without any extra locking here.
func (c *Controller) runRebalance() {
	c.Gate.BeginExclusive()
	defer c.Gate.EndExclusive()

	if c.Index.HasInFlight() {
		c.log.Warn().Msg("rebalance entered exclusive mode with a StoreInProgress/RemoveInProgress entry still outstanding")
	}

	c.pruneDeadNodes()

	nodes := c.Registry.List()
	if len(nodes) < c.cfg.ReplicationFactor {
		c.log.Info().Int("live", len(nodes)).Int("r", c.cfg.ReplicationFactor).
			Msg("rebalance skipped: not enough live nodes")
		return
	}

	currents := c.collectFileLists(nodes)
	if len(currents) < c.cfg.ReplicationFactor {
		c.log.Info().Int("responded", len(currents)).Msg("rebalance skipped: not enough nodes responded to LIST")
		return
	}

	plan := planRebalance(currents, c.Index.Snapshot(), c.cfg.ReplicationFactor)
	if len(plan.Sends) == 0 && len(plan.Removals) == 0 {
		c.log.Debug().Msg("rebalance pass: no moves needed")
		c.commitPlan(plan, currents)
		return
	}

	acked := c.dispatchPlan(plan, currents)
	c.commitPlanForAcked(plan, currents, acked)
}

// pruneDeadNodes evicts any node whose session has already closed,
// scrubbing it from every file's replica set, per spec.md §4.5 step 2.
func (c *Controller) pruneDeadNodes() {
	for _, n := range c.Registry.List() {
		select {
		case <-n.Closed():
			if c.Registry.Remove(n.Port) {
				c.Index.ScrubNode(n.Port)
			}
		default:
		}
	}
}

// collectFileLists sends LIST to every live node and collects each
// reply within the operation deadline, per spec.md §4.5 step 4. Nodes
// that time out are simply absent from the result.
func (c *Controller) collectFileLists(nodes []*noderegistry.Node) map[int][]string {
	chans := make(map[int]chan noderegistry.Message, len(nodes))
	for _, n := range nodes {
		chans[n.Port] = n.RegisterWaiter(noderegistry.ListKey)
	}
	for _, n := range nodes {
		if err := n.Send(protocol.ListCmd); err != nil {
			n.Unregister(noderegistry.ListKey)
			delete(chans, n.Port)
		}
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	replies := awaitChans(chans, deadline)

	currents := make(map[int][]string, len(replies))
	for port, msg := range replies {
		currents[port] = msg.Args
	}
	return currents
}

// dispatchPlan sends each node with a non-empty plan a single REBALANCE
// message and awaits REBALANCE_COMPLETE within the operation deadline,
// per spec.md §4.5 steps 9-10.
func (c *Controller) dispatchPlan(plan Plan, currents map[int][]string) map[int]bool {
	targets := make(map[int]bool)
	for port := range plan.Sends {
		targets[port] = true
	}
	for port := range plan.Removals {
		targets[port] = true
	}

	chans := make(map[int]chan noderegistry.Message, len(targets))
	for port := range targets {
		n, ok := c.Registry.Get(port)
		if !ok {
			continue
		}
		chans[port] = n.RegisterWaiter(noderegistry.RebalanceCompleteKey)
	}
	for port := range targets {
		n, ok := c.Registry.Get(port)
		if !ok {
			continue
		}
		msg := rebalanceMessage(plan, port)
		if err := n.Send(msg...); err != nil {
			n.Unregister(noderegistry.RebalanceCompleteKey)
			delete(chans, port)
		}
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	replies := awaitChans(chans, deadline)

	acked := make(map[int]bool, len(replies))
	for port := range replies {
		acked[port] = true
	}
	return acked
}

// rebalanceMessage builds the REBALANCE wire message for port per
// spec.md §6:
//
//	REBALANCE S f1 c1 p1,1 ... p1,c1  f2 c2 ...  D r1 r2 ...
func rebalanceMessage(plan Plan, port int) []string {
	sends := plan.Sends[port]

	names := make([]string, 0, len(sends))
	for name := range sends {
		names = append(names, name)
	}
	sort.Strings(names)

	msg := []string{protocol.Rebalance, strconv.Itoa(len(names))}
	for _, name := range names {
		dests := sends[name]
		msg = append(msg, name, strconv.Itoa(len(dests)))
		for _, d := range dests {
			msg = append(msg, strconv.Itoa(d))
		}
	}

	removals := plan.Removals[port]
	msg = append(msg, strconv.Itoa(len(removals)))
	msg = append(msg, removals...)
	return msg
}

// commitPlan applies a plan with no dispatch step (nothing to send or
// remove) directly: just drop entries scheduled for deletion.
func (c *Controller) commitPlan(plan Plan, currents map[int][]string) {
	for _, name := range plan.DropEntries {
		c.Index.Drop(name)
	}
}

// commitPlanForAcked commits fileCount for each node the moment its own
// REBALANCE_COMPLETE lands, per spec.md §4.5 step 10: "only on receipt
// does the controller commit the new fileCount for that node" — that
// commit does not wait on, or get undone by, some other target in the
// same pass later timing out. Replica sets and drop entries are a
// separate, pass-wide commit (step 11) gated on every targeted node
// having acked, since a partial commit there would leave the index
// inconsistent with what nodes actually hold.
func (c *Controller) commitPlanForAcked(plan Plan, currents map[int][]string, acked map[int]bool) {
	for port := range acked {
		n, ok := c.Registry.Get(port)
		if !ok {
			continue
		}
		n.SetFileCount(finalFileCount(plan, currents, port))
	}

	allTargetsAcked := true
	for port := range plan.Sends {
		if !acked[port] {
			allTargetsAcked = false
		}
	}
	for port := range plan.Removals {
		if !acked[port] {
			allTargetsAcked = false
		}
	}
	if !allTargetsAcked {
		c.log.Warn().Msg("rebalance pass incomplete: some nodes did not ack, final commit deferred to next pass")
		return
	}

	// A pure destination (named only inside some send's destination
	// list) never receives a REBALANCE directive of its own and so never
	// appears in acked; its fileCount only advances here, once every
	// dispatched node has confirmed the pass completed.
	for port := range plan.affectedPorts() {
		if acked[port] {
			continue
		}
		n, ok := c.Registry.Get(port)
		if !ok {
			continue
		}
		n.SetFileCount(finalFileCount(plan, currents, port))
	}

	for name, replicas := range plan.FinalReplicas {
		c.Index.SetReplicas(name, replicas)
	}
	for _, name := range plan.DropEntries {
		c.Index.Drop(name)
	}
}

// finalFileCount computes the file count a node will hold once its
// planned sends and removals both complete, starting from what it
// reported in this pass's collect phase.
func finalFileCount(plan Plan, currents map[int][]string, port int) int {
	count := len(currents[port])
	for _, fileDests := range plan.Sends {
		for _, dests := range fileDests {
			for _, d := range dests {
				if d == port {
					count++
				}
			}
		}
	}
	count -= len(plan.Removals[port])
	return count
}
