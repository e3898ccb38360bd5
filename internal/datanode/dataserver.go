package datanode

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/dreamware/dstore/internal/protocol"
	"github.com/dreamware/dstore/internal/wire"
)

// ServeData runs the node's raw data-transfer accept loop until ctx is
// canceled: one goroutine per accepted connection, each handling
// exactly one STORE, LOAD_DATA, or REBALANCE_STORE exchange before
// closing, per spec.md §6's client/node<->data-node vocabulary.
func (nd *Node) ServeData(ctx context.Context, ln net.Listener) {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				nd.log.Warn().Err(err).Msg("data accept failed")
				return
			}
		}
		go nd.handleDataConn(wire.New(nc))
	}
}

func (nd *Node) handleDataConn(conn *wire.Conn) {
	defer conn.Close()

	tokens, err := conn.ReadLine(time.Now().Add(nd.cfg.Timeout))
	if err != nil {
		nd.log.Warn().Err(err).Msg("data session closed before a command line")
		return
	}
	if len(tokens) == 0 {
		return
	}

	switch tokens[0] {
	case protocol.Store:
		nd.handleStoreUpload(conn, tokens[1:])
	case protocol.LoadData:
		nd.handleLoadDownload(conn, tokens[1:])
	case protocol.RebalanceStore:
		nd.handleRebalanceStoreIncoming(conn, tokens[1:])
	default:
		nd.log.Warn().Strs("tokens", tokens).Msg("unrecognized data-session command, discarded")
	}
}

// handleStoreUpload services a client's STORE name size: ack, then read
// exactly size raw bytes and keep them under name.
func (nd *Node) handleStoreUpload(conn *wire.Conn, args []string) {
	name, size, err := parseNameSize(args)
	if err != nil {
		nd.log.Warn().Err(err).Strs("args", args).Msg("malformed STORE upload, discarded")
		return
	}
	if err := conn.WriteLine(protocol.Ack); err != nil {
		return
	}
	content, err := conn.ReadFull(size, time.Now().Add(nd.cfg.Timeout))
	if err != nil {
		nd.log.Warn().Err(err).Str("file", name).Msg("STORE upload payload read failed")
		return
	}
	nd.Store.Put(name, content)
}

// handleLoadDownload services a client's LOAD_DATA name: stream the
// stored bytes back with no framing.
func (nd *Node) handleLoadDownload(conn *wire.Conn, args []string) {
	if len(args) != 1 {
		nd.log.Warn().Strs("args", args).Msg("malformed LOAD_DATA, discarded")
		return
	}
	content, ok := nd.Store.Get(args[0])
	if !ok {
		nd.log.Warn().Str("file", args[0]).Msg("LOAD_DATA for a file this node doesn't have")
		return
	}
	conn.WriteRaw(content)
}

// handleRebalanceStoreIncoming services an incoming REBALANCE_STORE
// name size from a peer node: ack, then read the payload and keep it.
func (nd *Node) handleRebalanceStoreIncoming(conn *wire.Conn, args []string) {
	name, size, err := parseNameSize(args)
	if err != nil {
		nd.log.Warn().Err(err).Strs("args", args).Msg("malformed REBALANCE_STORE, discarded")
		return
	}
	if err := conn.WriteLine(protocol.Ack); err != nil {
		return
	}
	content, err := conn.ReadFull(size, time.Now().Add(nd.cfg.Timeout))
	if err != nil {
		nd.log.Warn().Err(err).Str("file", name).Msg("REBALANCE_STORE payload read failed")
		return
	}
	nd.Store.Put(name, content)
}

// pushRebalanceFile sends one file to another node's data listener for a
// rebalance-driven copy, per spec.md §6's node<->node REBALANCE_STORE
// exchange.
func (nd *Node) pushRebalanceFile(destPort int, name string, content []byte) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(destPort))
	nc, err := net.DialTimeout("tcp", addr, nd.cfg.Timeout)
	if err != nil {
		return fmt.Errorf("datanode: dial peer %d: %w", destPort, err)
	}
	conn := wire.New(nc)
	defer conn.Close()

	if err := conn.WriteLine(protocol.RebalanceStore, name, strconv.Itoa(len(content))); err != nil {
		return err
	}
	deadline := time.Now().Add(nd.cfg.Timeout)
	tokens, err := conn.ReadLine(deadline)
	if err != nil {
		return err
	}
	if len(tokens) == 0 || tokens[0] != protocol.Ack {
		return fmt.Errorf("datanode: peer %d did not ack REBALANCE_STORE", destPort)
	}
	return conn.WriteRaw(content)
}

func parseNameSize(args []string) (name string, size int, err error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("want 2 args, got %d", len(args))
	}
	size, err = strconv.Atoi(args[1])
	if err != nil || size < 0 {
		return "", 0, fmt.Errorf("invalid size %q", args[1])
	}
	return args[0], size, nil
}
