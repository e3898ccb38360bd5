// Command datanode runs the reference data node: it joins a controller,
// answers LIST/REMOVE/REBALANCE on that control session, and serves raw
// client/node data transfers on its own listening port. See spec.md §1:
// the node's local storage layout is not prescribed by the
// specification; this is a minimal in-memory reference so the
// controller's protocol is runnable end-to-end. It does not send
// STORE_ACK to the controller after a client upload, so client STOREs
// placed on it never complete.
//
// Usage:
//
//	datanode port cport timeoutMillis fileFolder
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dreamware/dstore/internal/datanode"
	"github.com/dreamware/dstore/internal/wire"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.Logger

	if len(os.Args) != 5 {
		logger.Fatal().Msg("usage: datanode port cport timeoutMillis fileFolder")
	}

	port := mustAtoi(logger, os.Args[1], "port")
	cport := mustAtoi(logger, os.Args[2], "cport")
	timeoutMs := mustAtoi(logger, os.Args[3], "timeout")
	// fileFolder (os.Args[4]) names where a persistent backend would keep
	// content; the reference node keeps everything in memory instead
	// (spec.md §1 leaves on-disk layout unspecified), so it is accepted
	// for positional compatibility and otherwise unused.

	cfg := datanode.Config{
		Port:           port,
		ControllerAddr: net.JoinHostPort("127.0.0.1", strconv.Itoa(cport)),
		Timeout:        time.Duration(timeoutMs) * time.Millisecond,
	}
	nd := datanode.New(cfg, logger)

	dataLn, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		logger.Fatal().Err(err).Int("port", port).Msg("listen for data connections")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go nd.ServeData(ctx, dataLn)
	go runControlLoop(ctx, logger, nd, cfg)

	logger.Info().Int("port", port).Str("controller", cfg.ControllerAddr).Msg("data node started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	logger.Info().Msg("data node stopped")
}

// runControlLoop dials the controller and runs the control session
// until it drops, then redials with a short backoff, until ctx is
// canceled. A node that loses its control session is otherwise still
// serving data connections, so reconnecting (rather than exiting) lets
// it rejoin once the controller is reachable again.
func runControlLoop(ctx context.Context, logger zerolog.Logger, nd *datanode.Node, cfg datanode.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		nc, err := net.DialTimeout("tcp", cfg.ControllerAddr, cfg.Timeout)
		if err != nil {
			logger.Warn().Err(err).Msg("dial controller failed, retrying")
			sleepOrDone(ctx, time.Second)
			continue
		}

		conn := wire.New(nc)
		if err := nd.RunControlSession(conn); err != nil {
			logger.Warn().Err(err).Msg("control session ended, reconnecting")
		}
		sleepOrDone(ctx, time.Second)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func mustAtoi(logger zerolog.Logger, s, field string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		logger.Fatal().Err(err).Str("field", field).Str("value", s).Msg("invalid positional argument")
	}
	return v
}
