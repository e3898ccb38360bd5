// Package controller implements the coordinating controller's request
// handling and rebalance engine: spec.md §4.4 (store/load/remove/list),
// §4.5 (rebalance planner & executor), and §4.6 (the admission gate
// wired through from internal/gate).
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamware/dstore/internal/fileindex"
	"github.com/dreamware/dstore/internal/gate"
	"github.com/dreamware/dstore/internal/noderegistry"
)

// Config holds the controller's fixed, positional configuration
// (spec.md §6): replication factor, per-operation deadline, and the
// rebalance period.
type Config struct {
	ReplicationFactor int
	Timeout           time.Duration
	RebalancePeriod   time.Duration
}

// Controller is the coordinator's in-process state: the file index, the
// node registry, the admission gate, and the rebalance driver.
type Controller struct {
	cfg Config
	log zerolog.Logger

	Index    *fileindex.Index
	Registry *noderegistry.Registry
	Gate     *gate.Gate

	rebalanceTrigger chan struct{}

	loadMu      sync.Mutex
	recentLoads map[*Session]map[string]map[int]bool // session -> filename -> ports already offered
}

// New constructs a Controller ready to serve commands once Run starts
// the rebalance loop.
func New(cfg Config, log zerolog.Logger) *Controller {
	return &Controller{
		cfg:              cfg,
		log:              log.With().Str("component", "controller").Logger(),
		Index:            fileindex.New(),
		Registry:         noderegistry.New(log),
		Gate:             gate.New(),
		rebalanceTrigger: make(chan struct{}, 1),
		recentLoads:      make(map[*Session]map[string]map[int]bool),
	}
}

// Run drives the periodic rebalance loop until ctx is canceled. It
// should be started once, in its own goroutine, alongside Serve's
// shared accept loop for clients and nodes.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.RebalancePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runRebalance()
		case <-c.rebalanceTrigger:
			c.runRebalance()
		}
		// Discard any trigger that arrived while that pass was running.
		select {
		case <-c.rebalanceTrigger:
		default:
		}
	}
}

// TriggerRebalance requests an immediate rebalance pass, as every JOIN
// does (spec.md §4.5). Repeat requests made before the pass starts
// collapse into one, and a request made while a pass is already running
// is dropped: Run discards it once that pass ends.
func (c *Controller) TriggerRebalance() {
	select {
	case c.rebalanceTrigger <- struct{}{}:
	default:
	}
}

// enoughNodes reports whether the registry currently holds at least R
// nodes, the admission check spec.md §4.4 requires before STORE, LOAD,
// RELOAD, REMOVE, and (per the spec.md §9 open-question decision) LIST.
func (c *Controller) enoughNodes() bool {
	return c.Registry.Count() >= c.cfg.ReplicationFactor
}

// forgetSession drops a session's recent-load cursor, called when a
// client connection closes.
func (c *Controller) forgetSession(s *Session) {
	c.loadMu.Lock()
	delete(c.recentLoads, s)
	c.loadMu.Unlock()
}
