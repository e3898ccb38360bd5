package datanode

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/dstore/internal/protocol"
	"github.com/dreamware/dstore/internal/wire"
)

// Config is the data node's fixed, positional configuration (spec.md
// §6): its own listening port (announced to the controller in JOIN and
// used by clients/other nodes to reach it directly), the controller's
// address, and the per-operation deadline.
type Config struct {
	Port           int
	ControllerAddr string
	Timeout        time.Duration
}

// Node is the reference data node's runtime state: its content store and
// configuration. The controller's coordination engine is this project's
// core (spec.md §1); Node exists to exercise that engine's protocol.
type Node struct {
	cfg   Config
	log   zerolog.Logger
	Store *Store
}

// New constructs a Node with an empty content store.
func New(cfg Config, log zerolog.Logger) *Node {
	return &Node{
		cfg:   cfg,
		log:   log.With().Str("component", "datanode").Int("port", cfg.Port).Logger(),
		Store: NewStore(),
	}
}

// RunControlSession sends JOIN and then services LIST/REMOVE/REBALANCE
// requests from the controller until conn closes, per spec.md §6's
// controller<->data-node vocabulary. It is meant to run for the
// lifetime of the node process; callers should redial and retry on
// return if the control session drops.
func (nd *Node) RunControlSession(conn *wire.Conn) error {
	if err := conn.WriteLine(protocol.Join, strconv.Itoa(nd.cfg.Port)); err != nil {
		return fmt.Errorf("datanode: send JOIN: %w", err)
	}

	for {
		tokens, err := conn.ReadLine(time.Time{})
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			continue
		}

		cmd, args := tokens[0], tokens[1:]
		switch cmd {
		case protocol.ListCmd:
			nd.handleList(conn)
		case protocol.Remove:
			nd.handleRemove(conn, args)
		case protocol.Rebalance:
			nd.handleRebalance(conn, args)
		default:
			nd.log.Warn().Str("cmd", cmd).Msg("unexpected message from controller, discarded")
		}
	}
}

func (nd *Node) handleList(conn *wire.Conn) {
	names := nd.Store.List()
	conn.WriteLine(append([]string{protocol.ListCmd}, names...)...)
}

func (nd *Node) handleRemove(conn *wire.Conn, args []string) {
	if len(args) != 1 {
		nd.log.Warn().Strs("args", args).Msg("malformed REMOVE from controller, discarded")
		return
	}
	name := args[0]
	if _, ok := nd.Store.Get(name); !ok {
		conn.WriteLine(protocol.ErrFileDoesNotExist, name)
		return
	}
	nd.Store.Delete(name)
	conn.WriteLine(protocol.RemoveAck, name)
}

// handleRebalance parses and executes one REBALANCE directive (spec.md
// §4.5 step 9): push each named file to its listed destinations over a
// direct node-to-node connection, then delete each file named in the
// removal list, and finally ack.
func (nd *Node) handleRebalance(conn *wire.Conn, args []string) {
	sends, removals, err := parseRebalance(args)
	if err != nil {
		nd.log.Warn().Err(err).Strs("args", args).Msg("malformed REBALANCE from controller, discarded")
		return
	}

	for _, s := range sends {
		content, ok := nd.Store.Get(s.name)
		if !ok {
			nd.log.Warn().Str("file", s.name).Msg("rebalance asked to push a file this node no longer has")
			continue
		}
		for _, dest := range s.destinations {
			if err := nd.pushRebalanceFile(dest, s.name, content); err != nil {
				nd.log.Warn().Err(err).Str("file", s.name).Int("dest", dest).Msg("rebalance push failed")
			}
		}
	}

	for _, name := range removals {
		nd.Store.Delete(name)
	}

	conn.WriteLine(protocol.RebalanceComplete)
}

type rebalanceSend struct {
	name         string
	destinations []int
}

// parseRebalance decodes the REBALANCE directive body (everything after
// the REBALANCE token) per spec.md §6:
//
//	S f1 c1 p1,1 ... p1,c1  f2 c2 ...  D r1 r2 ...
func parseRebalance(args []string) (sends []rebalanceSend, removals []string, err error) {
	i := 0
	next := func() (string, error) {
		if i >= len(args) {
			return "", fmt.Errorf("unexpected end of REBALANCE message")
		}
		v := args[i]
		i++
		return v, nil
	}
	nextInt := func() (int, error) {
		v, err := next()
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(v)
	}

	s, err := nextInt()
	if err != nil {
		return nil, nil, err
	}
	for k := 0; k < s; k++ {
		name, err := next()
		if err != nil {
			return nil, nil, err
		}
		c, err := nextInt()
		if err != nil {
			return nil, nil, err
		}
		dests := make([]int, c)
		for j := 0; j < c; j++ {
			p, err := nextInt()
			if err != nil {
				return nil, nil, err
			}
			dests[j] = p
		}
		sends = append(sends, rebalanceSend{name: name, destinations: dests})
	}

	d, err := nextInt()
	if err != nil {
		return nil, nil, err
	}
	for k := 0; k < d; k++ {
		name, err := next()
		if err != nil {
			return nil, nil, err
		}
		removals = append(removals, name)
	}

	return sends, removals, nil
}
