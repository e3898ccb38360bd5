package controller_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/dstore/internal/controller"
	"github.com/dreamware/dstore/internal/testutil"
)

// startController boots a Controller on an ephemeral loopback port and
// returns it along with its address, tearing everything down on test
// cleanup.
func startController(t *testing.T, cfg controller.Config) (string, *controller.Controller) {
	t.Helper()
	ctrl := controller.New(cfg, zerolog.Nop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(ctx)
	go ctrl.Serve(ctx, ln)

	t.Cleanup(func() {
		cancel()
		ln.Close()
	})

	return ln.Addr().String(), ctrl
}

func defaultConfig() controller.Config {
	return controller.Config{
		ReplicationFactor: 2,
		Timeout:           500 * time.Millisecond,
		RebalancePeriod:   time.Hour, // tests trigger rebalance explicitly via JOIN
	}
}

// joinNodes joins n fake nodes on ports starting at 4001 and returns
// them, waiting briefly for each JOIN's rebalance trigger to settle.
func joinNodes(t *testing.T, addr string, n int) []*testutil.FakeNode {
	t.Helper()
	nodes := make([]*testutil.FakeNode, n)
	for i := 0; i < n; i++ {
		nodes[i] = testutil.JoinFakeNode(t, addr, 4001+i)
	}
	time.Sleep(50 * time.Millisecond)
	for _, n := range nodes {
		n.DrainListRequests(100 * time.Millisecond)
	}
	return nodes
}
