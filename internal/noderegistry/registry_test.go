package noderegistry

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/dstore/internal/wire"
)

func newTestNode(t *testing.T, port int, onClose func(int)) (*Node, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	n := NewNode(port, wire.New(server), zerolog.Nop(), onClose)
	go n.Run()
	t.Cleanup(func() { client.Close() })
	return n, client
}

func TestSelectLeastLoadedTieBreaksByPort(t *testing.T) {
	r := New(zerolog.Nop())
	n1, _ := newTestNode(t, 4002, nil)
	n2, _ := newTestNode(t, 4001, nil)
	n3, _ := newTestNode(t, 4003, nil)
	r.Join(n1)
	r.Join(n2)
	r.Join(n3)

	ports, err := r.SelectLeastLoaded(2)
	require.NoError(t, err)
	assert.Equal(t, []int{4001, 4002}, ports)
}

func TestSelectLeastLoadedNotEnough(t *testing.T) {
	r := New(zerolog.Nop())
	n1, _ := newTestNode(t, 4001, nil)
	r.Join(n1)

	_, err := r.SelectLeastLoaded(2)
	assert.ErrorIs(t, err, ErrNotEnoughNodes)
}

func TestNodeDemuxRoutesByToken(t *testing.T) {
	n, client := newTestNode(t, 4001, nil)

	ackCh := n.RegisterWaiter(StoreAckKey("a.txt"))
	_, err := client.Write([]byte("STORE_ACK a.txt\n"))
	require.NoError(t, err)

	select {
	case msg := <-ackCh:
		assert.Equal(t, "STORE_ACK", msg.Token)
		assert.Equal(t, []string{"a.txt"}, msg.Args)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ack")
	}
}

func TestNodeDemuxRemoveAcceptsEitherToken(t *testing.T) {
	n, client := newTestNode(t, 4001, nil)

	ackCh := n.RegisterWaiter(RemoveAckKey("a.txt"))
	_, err := client.Write([]byte("ERROR_FILE_DOES_NOT_EXIST a.txt\n"))
	require.NoError(t, err)

	select {
	case msg := <-ackCh:
		assert.Equal(t, "ERROR_FILE_DOES_NOT_EXIST", msg.Token)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ack")
	}
}

func TestNodeOnCloseCalledWhenSessionBreaks(t *testing.T) {
	closed := make(chan int, 1)
	_, client := newTestNode(t, 4001, func(port int) { closed <- port })
	client.Close()

	select {
	case port := <-closed:
		assert.Equal(t, 4001, port)
	case <-time.After(time.Second):
		t.Fatal("onClose not called")
	}
}

func TestAdjustFileCount(t *testing.T) {
	n, _ := newTestNode(t, 4001, nil)
	assert.Equal(t, 0, n.FileCount())
	n.AdjustFileCount(1)
	n.AdjustFileCount(1)
	n.AdjustFileCount(-1)
	assert.Equal(t, 1, n.FileCount())
	n.SetFileCount(5)
	assert.Equal(t, 5, n.FileCount())
}
