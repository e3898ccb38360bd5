// Command controller runs the coordinating controller: it admits client
// commands (STORE/LOAD/RELOAD/REMOVE/LIST), tracks data-node membership,
// and periodically rebalances replica placement. See spec.md §6 for the
// wire protocol and positional configuration.
//
// Usage:
//
//	controller cport replicationFactor timeoutMillis rebalancePeriodMillis
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

	"github.com/dreamware/dstore/internal/controller"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := log.Logger

	if len(os.Args) != 5 {
		logger.Fatal().Msg("usage: controller cport replicationFactor timeoutMillis rebalancePeriodMillis")
	}

	cport := mustAtoi(logger, os.Args[1], "cport")
	r := mustAtoi(logger, os.Args[2], "replicationFactor")
	timeoutMs := mustAtoi(logger, os.Args[3], "timeout")
	rebalanceMs := mustAtoi(logger, os.Args[4], "rebalancePeriod")

	cfg := controller.Config{
		ReplicationFactor: r,
		Timeout:           time.Duration(timeoutMs) * time.Millisecond,
		RebalancePeriod:   time.Duration(rebalanceMs) * time.Millisecond,
	}
	ctrl := controller.New(cfg, logger)

	addr := net.JoinHostPort("", strconv.Itoa(cport))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", addr).Msg("listen")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ctrl.Run(ctx)
	go ctrl.Serve(ctx, ln)

	logger.Info().Int("cport", cport).Int("r", r).Msg("controller listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	logger.Info().Msg("controller stopped")
}

func mustAtoi(logger zerolog.Logger, s, field string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		logger.Fatal().Err(err).Str("field", field).Str("value", s).Msg("invalid positional argument")
	}
	return v
}
