// Package gate implements the admission/exclusion coordination between
// foreground client operations (STORE, REMOVE) and the background
// rebalance pass, per spec.md §4.6 and the §9 design note. Rebalance
// waits for in-flight client operations to drain, then holds exclusive
// access; client sessions that arrive while rebalancing block until it
// releases, at which point every blocked session wakes together.
//
// Redesign chosen per spec.md §9: option (a), wake every session when
// rebalance ends, implemented by closing (and replacing) a channel on
// each transition out of exclusive mode rather than busy-waiting.
package gate

import "sync"

// Gate coordinates admission between client operations and rebalance.
type Gate struct {
	mu          sync.Mutex
	cond        *sync.Cond
	inFlight    int
	rebalancing bool
	released    chan struct{}
}

// New constructs a Gate ready for client operations.
func New() *Gate {
	g := &Gate{released: make(chan struct{})}
	g.cond = sync.NewCond(&g.mu)
	close(g.released) // starts "open": nothing to wait on
	return g
}

// EnterClient blocks while rebalancing is in effect, then increments the
// in-flight counter for a STORE/REMOVE operation. Call LeaveClient when the
// operation completes (including on timeout).
func (g *Gate) EnterClient() {
	g.mu.Lock()
	for g.rebalancing {
		g.mu.Unlock()
		<-g.waitChan()
		g.mu.Lock()
	}
	g.inFlight++
	g.mu.Unlock()
}

// LeaveClient decrements the in-flight counter and wakes anything waiting
// on it to reach zero (the rebalancer's quiesce step).
func (g *Gate) LeaveClient() {
	g.mu.Lock()
	g.inFlight--
	g.cond.Broadcast()
	g.mu.Unlock()
}

// WaitReadable blocks while rebalancing is in effect, without
// incrementing the in-flight counter. LIST and LOAD use this: they must
// not run concurrently with a rebalance pass, but they also must not
// hold it back from quiescing (spec.md §4.6).
func (g *Gate) WaitReadable() {
	g.mu.Lock()
	for g.rebalancing {
		g.mu.Unlock()
		<-g.waitChan()
		g.mu.Lock()
	}
	g.mu.Unlock()
}

// waitChan returns the current "released" channel, taking g.mu itself;
// callers must not hold g.mu when calling it and re-acquire it after
// receiving.
func (g *Gate) waitChan() chan struct{} {
	g.mu.Lock()
	ch := g.released
	g.mu.Unlock()
	return ch
}

// BeginExclusive waits for the in-flight counter to reach zero, then sets
// rebalancing so that newly arriving client/read operations block.
// Concurrent admitted operations are allowed to finish first; operations
// admitted after this call blocks will queue behind it.
func (g *Gate) BeginExclusive() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.inFlight > 0 {
		g.cond.Wait()
	}
	g.rebalancing = true
	g.released = make(chan struct{})
}

// EndExclusive clears rebalancing and wakes every session parked in
// EnterClient/WaitReadable in one broadcast.
func (g *Gate) EndExclusive() {
	g.mu.Lock()
	g.rebalancing = false
	close(g.released)
	g.mu.Unlock()
}

// Rebalancing reports whether exclusive mode is currently held, for
// diagnostics/tests.
func (g *Gate) Rebalancing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rebalancing
}
