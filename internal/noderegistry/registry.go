// Package noderegistry tracks live data-node sessions: which ports are
// joined, their estimated file counts for least-loaded selection, and a
// per-node demultiplexing reader that routes inbound lines to whichever
// waiter declared interest, per spec.md §4.3 and the §4.4/§9 concurrency
// note. Do not call Conn.ReadLine directly on a registered node's
// connection from outside this package — Node.Run owns that reader.
package noderegistry

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/rs/zerolog"
)

// ErrNotEnoughNodes is returned by SelectLeastLoaded when fewer than R
// nodes are registered.
var ErrNotEnoughNodes = errors.New("noderegistry: not enough nodes")

// Registry is the controller's live set of data-node sessions.
type Registry struct {
	mu  sync.Mutex
	log zerolog.Logger

	nodes map[int]*Node
}

// New constructs an empty Registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{nodes: make(map[int]*Node), log: log.With().Str("component", "noderegistry").Logger()}
}

// Join registers a node session under port, replacing any prior session
// for the same port (the caller is responsible for closing a displaced
// session, which should not normally happen since ports are unique TCP
// listeners).
func (r *Registry) Join(n *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[n.Port] = n
	r.log.Info().Int("port", n.Port).Msg("node joined")
}

// Remove deletes port from the registry. Returns false if it was not
// present.
func (r *Registry) Remove(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.nodes[port]; !ok {
		return false
	}
	delete(r.nodes, port)
	r.log.Info().Int("port", port).Msg("node removed")
	return true
}

// Get returns the node session for port, if registered.
func (r *Registry) Get(port int) (*Node, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[port]
	return n, ok
}

// List returns a snapshot of all registered node sessions.
func (r *Registry) List() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// Count returns the number of registered nodes.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// Ports returns the registered ports in ascending order, the
// deterministic order spec.md §9 requires for tie-breaking.
func (r *Registry) Ports() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	ports := make([]int, 0, len(r.nodes))
	for p := range r.nodes {
		ports = append(ports, p)
	}
	slices.Sort(ports)
	return ports
}

// SelectLeastLoaded returns the k nodes with the smallest FileCount,
// ties broken by ascending port. Returns ErrNotEnoughNodes if fewer than
// k nodes are registered.
func (r *Registry) SelectLeastLoaded(k int) ([]int, error) {
	r.mu.Lock()
	nodes := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	r.mu.Unlock()

	if len(nodes) < k {
		return nil, ErrNotEnoughNodes
	}

	slices.SortFunc(nodes, func(a, b *Node) int {
		ac, bc := a.FileCount(), b.FileCount()
		if ac != bc {
			return ac - bc
		}
		return a.Port - b.Port
	})

	out := make([]int, k)
	for i := 0; i < k; i++ {
		out[i] = nodes[i].Port
	}
	return out, nil
}
