package controller

import (
	"sort"

	"github.com/dreamware/dstore/internal/fileindex"
)

// planState is the rebalance-local scratch space described in spec.md
// §4.5: currents and filesStored are mutated monotonically as sends and
// removals are scheduled, so later picks in the same pass see the
// placement the earlier picks already committed to.
type planState struct {
	currents    map[int]map[string]bool // port -> files it will hold after this plan
	filesStored map[string]map[int]bool // filename -> ports holding it after this plan

	sends    map[int]map[string][]int // port -> filename -> destination ports
	removals map[int][]string         // port -> filenames to delete on that node
}

// Plan is the computed rebalance plan, ready for dispatch.
type Plan struct {
	Sends    map[int]map[string][]int
	Removals map[int][]string
	// FinalReplicas is the replica set each StoreComplete file should end
	// up with once the plan's sends/removals all complete.
	FinalReplicas map[string][]int
	// DropEntries are index entries (phantom / RemoveInProgress) to
	// delete once the plan completes.
	DropEntries []string
}

func newPlanState(currentsIn map[int][]string) *planState {
	ps := &planState{
		currents:    make(map[int]map[string]bool),
		filesStored: make(map[string]map[int]bool),
		sends:       make(map[int]map[string][]int),
		removals:    make(map[int][]string),
	}
	for port, files := range currentsIn {
		set := make(map[string]bool, len(files))
		for _, f := range files {
			set[f] = true
			if ps.filesStored[f] == nil {
				ps.filesStored[f] = make(map[int]bool)
			}
			ps.filesStored[f][port] = true
		}
		ps.currents[port] = set
	}
	return ps
}

func (ps *planState) holds(port int, file string) bool {
	return ps.currents[port][file]
}

func (ps *planState) fileCount(port int) int {
	return len(ps.currents[port])
}

// scheduleSend records that port must push file to dest, and updates the
// scratch placement so dest is now considered to hold the file.
func (ps *planState) scheduleSend(port int, file string, dest int) {
	if ps.sends[port] == nil {
		ps.sends[port] = make(map[string][]int)
	}
	ps.sends[port][file] = append(ps.sends[port][file], dest)

	if ps.currents[dest] == nil {
		ps.currents[dest] = make(map[string]bool)
	}
	ps.currents[dest][file] = true
	if ps.filesStored[file] == nil {
		ps.filesStored[file] = make(map[int]bool)
	}
	ps.filesStored[file][dest] = true
}

// scheduleRemoval records that port must delete file, and updates the
// scratch placement so port is no longer considered to hold the file.
func (ps *planState) scheduleRemoval(port int, file string) {
	ps.removals[port] = append(ps.removals[port], file)

	delete(ps.currents[port], file)
	if set, ok := ps.filesStored[file]; ok {
		delete(set, port)
	}
}

func (ps *planState) holdersOf(file string) []int {
	ports := make([]int, 0, len(ps.filesStored[file]))
	for p := range ps.filesStored[file] {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// planRebalance computes a rebalance plan from the node-reported file
// lists and the controller's index, per spec.md §4.5 steps 5-8. It is a
// pure function (no I/O, no locks) so it can be unit tested directly.
//
// currents holds exactly the ports that responded to LIST within the
// collect-phase deadline; ports absent from currents are excluded from
// this pass entirely, per spec.md §4.5 step 4.
func planRebalance(currents map[int][]string, index map[string]fileindex.Entry, r int) Plan {
	ps := newPlanState(currents)

	ports := make([]int, 0, len(currents))
	for p := range currents {
		ports = append(ports, p)
	}
	sort.Ints(ports)

	var dropEntries []string

	// Step 6: reconcile phantom files. A file reported by a node but
	// absent from the index, or whose index entry is RemoveInProgress,
	// is scheduled for deletion on every node reporting it.
	reported := make(map[string]bool)
	for _, files := range currents {
		for _, f := range files {
			reported[f] = true
		}
	}
	for f := range reported {
		entry, ok := index[f]
		phantom := !ok || entry.Status == fileindex.RemoveInProgress
		if !phantom {
			continue
		}
		for _, port := range ps.holdersOf(f) {
			ps.scheduleRemoval(port, f)
		}
		if ok && entry.Status == fileindex.RemoveInProgress {
			dropEntries = append(dropEntries, f)
		}
	}

	// Visible (StoreComplete) files drive replication-count and
	// load-balancing decisions; a file with zero responding holders left
	// (e.g. all of its replicas went phantom-less but unreachable this
	// pass) is simply skipped until a later pass sees it again.
	var visible []string
	for name, entry := range index {
		if entry.Status == fileindex.StoreComplete {
			visible = append(visible, name)
		}
	}
	sort.Strings(visible)

	// Step 7: under-replicated files.
	for _, f := range visible {
		holders := ps.holdersOf(f)
		for len(holders) < r {
			if len(holders) == 0 {
				// No responding node currently holds this file at all;
				// nothing to copy from this pass, leave it short and let
				// a later pass (once a holder reappears) fix it.
				break
			}
			source := holders[0]
			dest, ok := leastLoadedExcluding(ps, ports, f)
			if !ok {
				break
			}
			ps.scheduleSend(source, f, dest)
			holders = ps.holdersOf(f)
		}
	}

	// Step 8: load balancing against [min, max] = [floor(R*F/N), ceil(R*F/N)].
	f := len(visible)
	n := len(ports)
	if n > 0 {
		min, max := thresholds(r, f, n)
		balanceLoad(ps, ports, min, max)
	}

	finalReplicas := make(map[string][]int, len(visible))
	for _, name := range visible {
		finalReplicas[name] = ps.holdersOf(name)
	}

	return Plan{
		Sends:         ps.sends,
		Removals:      ps.removals,
		FinalReplicas: finalReplicas,
		DropEntries:   dropEntries,
	}
}

// affectedPorts returns every port the plan touches in any role: a
// source that must push files, a port that must delete files, or a
// destination named in some send. Use this (not just Sends/Removals
// keys) when committing fileCount, since a pure destination never sends
// or deletes anything itself.
func (p Plan) affectedPorts() map[int]bool {
	ports := make(map[int]bool)
	for port, dests := range p.Sends {
		ports[port] = true
		for _, d := range dests {
			for _, dest := range d {
				ports[dest] = true
			}
		}
	}
	for port := range p.Removals {
		ports[port] = true
	}
	return ports
}

// thresholds computes the [min, max] file-count band every node should
// fall within after a successful rebalance, per spec.md §3/§4.5.
func thresholds(r, f, n int) (min, max int) {
	min = (r * f) / n
	max = min
	if (r*f)%n != 0 {
		max = min + 1
	}
	return min, max
}

// leastLoadedExcluding returns the least-loaded port (ties broken by
// ascending port) that does not already hold file, per the scratch
// placement. Returns ok=false if every port already holds it.
func leastLoadedExcluding(ps *planState, ports []int, file string) (int, bool) {
	best := -1
	bestCount := 0
	for _, p := range ports {
		if ps.holds(p, file) {
			continue
		}
		c := ps.fileCount(p)
		if best == -1 || c < bestCount || (c == bestCount && p < best) {
			best = p
			bestCount = c
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// balanceLoad repeatedly finds the most over- or under-loaded node and
// schedules a single-file move to reduce the imbalance, until every
// port's file count falls within [min, max] or no legal move remains.
// Each iteration strictly reduces
//
//	Σ max(0, count(p)-max) + Σ max(0, min-count(p))
//
// per spec.md §9, which guarantees termination since the sum is a
// non-negative integer that cannot decrease forever.
func balanceLoad(ps *planState, ports []int, min, max int) {
	for {
		over, ok := mostOverloaded(ps, ports, max)
		if ok {
			if moveFromOverloaded(ps, ports, over, max) {
				continue
			}
		}
		under, ok := mostUnderloaded(ps, ports, min)
		if ok {
			if moveToUnderloaded(ps, ports, under, min) {
				continue
			}
		}
		return
	}
}

func mostOverloaded(ps *planState, ports []int, max int) (int, bool) {
	best := -1
	bestCount := 0
	for _, p := range ports {
		c := ps.fileCount(p)
		if c > max && (best == -1 || c > bestCount || (c == bestCount && p < best)) {
			best = p
			bestCount = c
		}
	}
	return best, best != -1
}

func mostUnderloaded(ps *planState, ports []int, min int) (int, bool) {
	best := -1
	bestCount := 0
	for _, p := range ports {
		c := ps.fileCount(p)
		if c < min && (best == -1 || c < bestCount || (c == bestCount && p < best)) {
			best = p
			bestCount = c
		}
	}
	return best, best != -1
}

// moveFromOverloaded picks one of src's files whose least-loaded
// destination (not already holding it) has the fewest files, and
// schedules that move. A destination already at max is never used, so
// the move cannot create a new overload. Returns false if src holds no
// file with such a destination.
func moveFromOverloaded(ps *planState, ports []int, src, max int) bool {
	var files []string
	for f := range ps.currents[src] {
		files = append(files, f)
	}
	sort.Strings(files)

	bestFile := ""
	bestDest := -1
	bestCount := 0
	for _, f := range files {
		dest, ok := leastLoadedExcluding(ps, ports, f)
		if !ok || dest == src {
			continue
		}
		c := ps.fileCount(dest)
		if c >= max {
			continue
		}
		if bestDest == -1 || c < bestCount || (c == bestCount && dest < bestDest) {
			bestFile, bestDest, bestCount = f, dest, c
		}
	}
	if bestDest == -1 {
		return false
	}
	ps.scheduleSend(src, bestFile, bestDest)
	ps.scheduleRemoval(src, bestFile)
	return true
}

// moveToUnderloaded finds, per spec.md §9 point 4, the node holding at
// least one file absent from dst's file list with the largest file
// count, and moves one such file to dst. A source at or below min is
// never used, so the move cannot create a new underload.
func moveToUnderloaded(ps *planState, ports []int, dst, min int) bool {
	bestSrc := -1
	bestCount := 0
	for _, p := range ports {
		if p == dst {
			continue
		}
		if !hasFileAbsentFrom(ps, p, dst) {
			continue
		}
		c := ps.fileCount(p)
		if c <= min {
			continue
		}
		if bestSrc == -1 || c > bestCount || (c == bestCount && p < bestSrc) {
			bestSrc, bestCount = p, c
		}
	}
	if bestSrc == -1 {
		return false
	}

	var files []string
	for f := range ps.currents[bestSrc] {
		if !ps.holds(dst, f) {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return false
	}
	file := files[0]
	ps.scheduleSend(bestSrc, file, dst)
	ps.scheduleRemoval(bestSrc, file)
	return true
}

func hasFileAbsentFrom(ps *planState, holder, absentFrom int) bool {
	for f := range ps.currents[holder] {
		if !ps.holds(absentFrom, f) {
			return true
		}
	}
	return false
}
