package controller_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/dstore/internal/testutil"
)

// TestRebalanceAfterJoinPushesFilesToNewNode covers spec.md §8 scenario
// 6: a node joining an under-loaded cluster triggers a rebalance pass
// that ends with every node acking and the new node holding files.
func TestRebalanceAfterJoinPushesFilesToNewNode(t *testing.T) {
	cfg := defaultConfig()
	cfg.ReplicationFactor = 2
	addr, ctrl := startController(t, cfg)

	n1 := testutil.JoinFakeNode(t, addr, 4001)
	n2 := testutil.JoinFakeNode(t, addr, 4002)
	// Joining n2 brings the cluster to R=2 nodes, which fires an
	// immediate rebalance pass (spec.md §4.5); nothing answers its LIST
	// yet, so it simply times out and releases the gate once cfg.Timeout
	// elapses. Client commands below block on that gate meanwhile but
	// proceed once it clears.

	store := testutil.DialClient(t, addr)
	defer store.Close()
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
		store.Send("STORE", name, "5")
		store.ExpectLine("STORE_TO", "4001", "4002")
		n1.SendAck(name)
		n2.SendAck(name)
		store.ExpectLine("STORE_COMPLETE")
	}

	// Drain the LIST the earlier join-triggered pass sent (and timed out
	// waiting on) before wiring up a steady-state auto-responder, so that
	// stale reply can't land on the waiter the next pass registers.
	n1.DrainListRequests(50 * time.Millisecond)
	n2.DrainListRequests(50 * time.Millisecond)

	files := []string{"a.txt", "b.txt", "c.txt", "d.txt"}
	n1.AutoRebalance(files)
	n2.AutoRebalance(files)

	n3 := testutil.JoinFakeNode(t, addr, 4003)
	n3.AutoRebalance(nil)

	require.Eventually(t, func() bool {
		n, ok := ctrl.Registry.Get(4003)
		return ok && n.FileCount() > 0
	}, 2*time.Second, 20*time.Millisecond, "node 4003 never received any rebalanced files")

	c := testutil.DialClient(t, addr)
	defer c.Close()
	c.Send("LIST")
	got := c.ReadLine()
	assert.ElementsMatch(t, []string{"LIST", "a.txt", "b.txt", "c.txt", "d.txt"}, got)
}
