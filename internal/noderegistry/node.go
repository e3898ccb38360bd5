package noderegistry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/dstore/internal/wire"
)

// Message is one parsed inbound line from a node session.
type Message struct {
	Token string
	Args  []string
}

// Node is a live data-node session: its connection, a dedicated reader
// goroutine that demultiplexes inbound lines to registered waiters, and
// a monotone file-count estimate used for least-loaded selection.
//
// Exactly one goroutine (Run, started by the controller right after
// the node's JOIN is accepted) ever calls
// conn.ReadLine for a given Node; everything else communicates with it
// through RegisterWaiter/Send, per spec.md §9's "do not let multiple
// requestors race to readLine" rule.
type Node struct {
	Port int
	conn *wire.Conn
	log  zerolog.Logger

	fileCount int64

	mu      sync.Mutex
	waiters map[string]chan Message

	closed    chan struct{}
	closeOnce sync.Once
	onClose   func(port int)
}

// NewNode constructs a node session for an accepted connection. onClose
// is invoked exactly once, from the reader goroutine, when the session
// is observed broken.
func NewNode(port int, conn *wire.Conn, log zerolog.Logger, onClose func(port int)) *Node {
	return &Node{
		Port:    port,
		conn:    conn,
		log:     log.With().Int("node_port", port).Logger(),
		waiters: make(map[string]chan Message),
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

// FileCount returns the current file-count estimate.
func (n *Node) FileCount() int {
	return int(atomic.LoadInt64(&n.fileCount))
}

// AdjustFileCount adds delta (positive or negative) to the file-count
// estimate.
func (n *Node) AdjustFileCount(delta int) {
	atomic.AddInt64(&n.fileCount, int64(delta))
}

// SetFileCount overwrites the file-count estimate, used after a
// successful rebalance commits a node's final placement.
func (n *Node) SetFileCount(v int) {
	atomic.StoreInt64(&n.fileCount, int64(v))
}

// Send writes a line to the node's session. The demux reader is a
// separate goroutine, so writes never block on a pending read.
func (n *Node) Send(tokens ...string) error {
	return n.conn.WriteLine(tokens...)
}

// RegisterWaiter declares interest in the next message keyed by key and
// returns a channel that receives at most one Message. If the session
// dies first the channel is neither delivered to nor closed, so callers
// must bound their wait with a deadline. Delivery removes the
// registration; callers that give up waiting before a message arrives
// must call Unregister to avoid leaking the map entry.
func (n *Node) RegisterWaiter(key string) chan Message {
	ch := make(chan Message, 1)
	n.mu.Lock()
	n.waiters[key] = ch
	n.mu.Unlock()
	return ch
}

// Unregister removes a waiter registration that was never delivered to,
// e.g. because the caller's deadline expired first.
func (n *Node) Unregister(key string) {
	n.mu.Lock()
	delete(n.waiters, key)
	n.mu.Unlock()
}

// Closed returns a channel that is closed when the session has been
// observed broken.
func (n *Node) Closed() <-chan struct{} {
	return n.closed
}

// Run is the node's dedicated reader goroutine: it loops reading lines
// and dispatching them to whichever waiter registered interest in the
// line's demux key, until the connection breaks. It must be started
// exactly once per Node, typically via `go n.Run()` right after JOIN.
func (n *Node) Run() {
	defer n.markClosed()
	for {
		tokens, err := n.conn.ReadLine(time.Time{})
		if err != nil {
			n.log.Info().Err(err).Msg("node session reader stopped")
			return
		}
		if len(tokens) == 0 {
			continue
		}
		msg := Message{Token: tokens[0], Args: tokens[1:]}
		key := demuxKey(msg)
		if key == "" {
			n.log.Warn().Strs("tokens", tokens).Msg("unroutable message from node, discarded")
			continue
		}
		n.deliver(key, msg)
	}
}

func (n *Node) deliver(key string, msg Message) {
	n.mu.Lock()
	ch, ok := n.waiters[key]
	if ok {
		delete(n.waiters, key)
	}
	n.mu.Unlock()

	if !ok {
		n.log.Warn().Str("key", key).Msg("no waiter registered for message, discarded")
		return
	}
	ch <- msg
}

func (n *Node) markClosed() {
	n.closeOnce.Do(func() {
		close(n.closed)
		n.conn.Close()
		if n.onClose != nil {
			n.onClose(n.Port)
		}
	})
}

// demuxKey computes the waiter key for an inbound message. REMOVE_ACK and
// the ERROR_FILE_DOES_NOT_EXIST reply to a REMOVE are both acceptable
// acks for the same outstanding REMOVE (spec.md §4.4), so they share a
// key.
func demuxKey(msg Message) string {
	switch msg.Token {
	case "STORE_ACK":
		if len(msg.Args) < 1 {
			return ""
		}
		return "STORE_ACK:" + msg.Args[0]
	case "REMOVE_ACK", "ERROR_FILE_DOES_NOT_EXIST":
		if len(msg.Args) < 1 {
			return ""
		}
		return "REMOVE:" + msg.Args[0]
	case "LIST":
		return "LIST"
	case "REBALANCE_COMPLETE":
		return "REBALANCE_COMPLETE"
	default:
		return ""
	}
}

// StoreAckKey returns the demux key STORE_ACK delivery uses for name.
func StoreAckKey(name string) string { return "STORE_ACK:" + name }

// RemoveAckKey returns the demux key REMOVE_ACK/ERROR_FILE_DOES_NOT_EXIST
// delivery uses for name.
func RemoveAckKey(name string) string { return "REMOVE:" + name }

// ListKey is the demux key for a node's LIST reply.
const ListKey = "LIST"

// RebalanceCompleteKey is the demux key for a node's REBALANCE_COMPLETE reply.
const RebalanceCompleteKey = "REBALANCE_COMPLETE"
