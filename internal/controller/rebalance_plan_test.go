package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dreamware/dstore/internal/fileindex"
)

func complete(name string, replicas ...int) fileindex.Entry {
	return fileindex.Entry{Name: name, Replicas: replicas, Status: fileindex.StoreComplete, CreatedAt: time.Now()}
}

func TestPlanRebalanceAfterJoinSpreadsLoad(t *testing.T) {
	// scenario 6 from spec.md §8: a,b,c each on {4001,4002}, 4003 joins.
	currents := map[int][]string{
		4001: {"a", "b", "c"},
		4002: {"a", "b", "c"},
		4003: {},
	}
	index := map[string]fileindex.Entry{
		"a": complete("a", 4001, 4002),
		"b": complete("b", 4001, 4002),
		"c": complete("c", 4001, 4002),
	}

	plan := planRebalance(currents, index, 2)

	for _, name := range []string{"a", "b", "c"} {
		assert.Len(t, plan.FinalReplicas[name], 2)
	}

	counts := countFromFinalReplicas(plan)
	for port, c := range counts {
		assert.Equal(t, 2, c, "port %d has %d files, want 2", port, c)
	}
}

func TestPlanRebalanceUnderReplicatedIsRestored(t *testing.T) {
	currents := map[int][]string{
		4001: {"a"},
		4002: {},
		4003: {},
	}
	index := map[string]fileindex.Entry{
		"a": complete("a", 4001, 4002),
	}

	plan := planRebalance(currents, index, 2)
	assert.Len(t, plan.FinalReplicas["a"], 2)
	assert.Contains(t, plan.FinalReplicas["a"], 4001)
}

func TestPlanRebalancePhantomFileRemoved(t *testing.T) {
	currents := map[int][]string{
		4001: {"ghost"},
		4002: {},
	}
	index := map[string]fileindex.Entry{} // no index entry at all: phantom

	plan := planRebalance(currents, index, 1)
	assert.Equal(t, []string{"ghost"}, plan.Removals[4001])
}

func TestPlanRebalanceRemoveInProgressScheduledForDeletion(t *testing.T) {
	currents := map[int][]string{
		4001: {"a"},
		4002: {"a"},
	}
	index := map[string]fileindex.Entry{
		"a": {Name: "a", Replicas: []int{4001, 4002}, Status: fileindex.RemoveInProgress},
	}

	plan := planRebalance(currents, index, 2)
	assert.ElementsMatch(t, []string{"a"}, plan.Removals[4001])
	assert.ElementsMatch(t, []string{"a"}, plan.Removals[4002])
	assert.Contains(t, plan.DropEntries, "a")
}

func countFromFinalReplicas(plan Plan) map[int]int {
	counts := make(map[int]int)
	for _, ports := range plan.FinalReplicas {
		for _, p := range ports {
			counts[p]++
		}
	}
	return counts
}
