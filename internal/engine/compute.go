package engine

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/roach88/bip/internal/glue"
	"github.com/roach88/bip/internal/ir"
)

// Enumerate lists every glue-valid interaction over the offered ports.
//
// Enumeration runs per connected component of the interaction hypergraph,
// so unrelated ports never multiply the search. Within a component, ports
// are added in port-id order; a partial interaction is abandoned as soon as
// some port's accept sets cannot cover its co-participants, because adding
// more ports can never repair that. Requires is checked on every partial
// interaction that survives. At most one port per component instance is
// taken, and interactions larger than maxSize are not considered.
//
// The result is sorted by interaction key.
func Enumerate(set *glue.Set, reports []ir.Report, maxSize int) []ir.Interaction {
	var enabled []ir.ComponentPort
	for _, r := range reports {
		for _, o := range r.Offers {
			enabled = append(enabled, ir.ComponentPort{Component: r.Component, Spec: r.Spec, Port: o.Port})
		}
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxInteractionSize
	}

	var out []ir.Interaction
	for _, group := range set.Partition(enabled) {
		out = append(out, enumerateGroup(set, group, maxSize)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func enumerateGroup(set *glue.Set, group []ir.ComponentPort, maxSize int) []ir.Interaction {
	var (
		out    []ir.Interaction
		chosen []ir.ComponentPort
		refs   []ir.PortRef
		used   = make(map[string]bool)
	)

	var walk func(start int)
	walk = func(start int) {
		for i := start; i < len(group); i++ {
			cp := group[i]
			if used[cp.Component] {
				continue
			}
			ref := cp.Ref()
			if !acceptConsistent(set, refs, ref) {
				continue
			}
			chosen = append(chosen, cp)
			refs = append(refs, ref)
			used[cp.Component] = true

			if requiresSatisfied(set, refs) {
				out = append(out, ir.NewInteraction(set.Weight(refs), chosen...))
			}
			if len(chosen) < maxSize {
				walk(i + 1)
			}

			used[cp.Component] = false
			refs = refs[:len(refs)-1]
			chosen = chosen[:len(chosen)-1]
		}
	}
	walk(0)
	return out
}

// acceptConsistent reports whether adding ref to refs keeps every port's
// co-participants inside one of its accept sets.
func acceptConsistent(set *glue.Set, refs []ir.PortRef, ref ir.PortRef) bool {
	if len(refs) == 0 {
		return true
	}
	if !set.AcceptsAll(ref, refs) {
		return false
	}
	next := append(slices.Clone(refs), ref)
	for i, p := range refs {
		others := append(slices.Clone(next[:i]), next[i+1:]...)
		if !set.AcceptsAll(p, others) {
			return false
		}
	}
	return true
}

func requiresSatisfied(set *glue.Set, refs []ir.PortRef) bool {
	for i, p := range refs {
		others := append(slices.Clone(refs[:i]), refs[i+1:]...)
		if !set.RequiresSatisfied(p, others) {
			return false
		}
	}
	return true
}

// Select chooses a conflict-free set of interactions: no component instance
// takes part in two of them.
//
// Candidates that share a component form a conflict cluster; clusters are
// decided independently. Within a cluster only maximal conflict-free sets
// are considered. The set with the highest total priority wins; among equal
// totals, the set whose sorted port-id sequence is lexicographically
// smallest wins.
//
// The search is a branch and bound over at most budget nodes per cluster.
// When the budget runs out the cluster falls back to a greedy pick by
// priority, then key. The result is sorted by interaction key.
func Select(cands []ir.Interaction, budget int) []ir.Interaction {
	if budget <= 0 {
		budget = DefaultSearchBudget
	}
	var out []ir.Interaction
	for _, cluster := range conflictClusters(cands) {
		picked, ok := searchCluster(cluster, budget)
		if !ok {
			slog.Warn("selection budget exhausted, using greedy pick",
				"candidates", len(cluster),
				"budget", budget,
			)
			picked = greedy(cluster)
		}
		out = append(out, picked...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// conflictClusters groups candidates connected through shared components.
func conflictClusters(cands []ir.Interaction) [][]ir.Interaction {
	parent := make([]int, len(cands))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	owner := make(map[string]int)
	for i, in := range cands {
		for _, c := range in.Components() {
			if j, ok := owner[c]; ok {
				if ri, rj := find(i), find(j); ri != rj {
					parent[ri] = rj
				}
			} else {
				owner[c] = i
			}
		}
	}

	byRoot := make(map[int][]ir.Interaction)
	var roots []int
	for i, in := range cands {
		r := find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], in)
	}
	out := make([][]ir.Interaction, 0, len(roots))
	for _, r := range roots {
		out = append(out, byRoot[r])
	}
	return out
}

func conflicts(a, b ir.Interaction) bool {
	for _, c := range a.Components() {
		if b.Involves(c) {
			return true
		}
	}
	return false
}

// better orders interaction sets by the selection rule.
func better(aWeight int, aIDs []string, bWeight int, bIDs []string) bool {
	if aWeight != bWeight {
		return aWeight > bWeight
	}
	return slices.Compare(aIDs, bIDs) < 0
}

func portIDs(set []ir.Interaction) []string {
	var ids []string
	for _, in := range set {
		ids = append(ids, in.PortIDs()...)
	}
	sort.Strings(ids)
	return ids
}

// searchCluster finds the best maximal conflict-free subset of cluster.
// ok is false when the node budget ran out.
func searchCluster(cluster []ir.Interaction, budget int) (best []ir.Interaction, ok bool) {
	if len(cluster) == 1 {
		return cluster, true
	}
	order := rank(cluster)

	// suffix[i] bounds the weight still obtainable from order[i:].
	suffix := make([]int, len(order)+1)
	for i := len(order) - 1; i >= 0; i-- {
		suffix[i] = suffix[i+1] + max(order[i].Priority, 0)
	}

	var (
		found   bool
		bestW   int
		bestIDs []string
		chosen  []ir.Interaction
		nodes   int
	)
	var walk func(i, weight int) bool
	walk = func(i, weight int) bool {
		nodes++
		if nodes > budget {
			return false
		}
		if found && weight+suffix[i] < bestW {
			return true
		}
		if i == len(order) {
			if !maximal(order, chosen) {
				return true
			}
			ids := portIDs(chosen)
			if !found || better(weight, ids, bestW, bestIDs) {
				found, bestW, bestIDs = true, weight, ids
				best = slices.Clone(chosen)
			}
			return true
		}

		in := order[i]
		free := true
		for _, c := range chosen {
			if conflicts(c, in) {
				free = false
				break
			}
		}
		if free {
			chosen = append(chosen, in)
			if !walk(i+1, weight+in.Priority) {
				return false
			}
			chosen = chosen[:len(chosen)-1]
		}
		return walk(i+1, weight)
	}

	if !walk(0, 0) {
		return nil, false
	}
	return best, true
}

func maximal(all, chosen []ir.Interaction) bool {
	for _, in := range all {
		if slices.ContainsFunc(chosen, func(c ir.Interaction) bool { return c.Key() == in.Key() }) {
			continue
		}
		blocked := false
		for _, c := range chosen {
			if conflicts(c, in) {
				blocked = true
				break
			}
		}
		if !blocked {
			return false
		}
	}
	return true
}

// rank orders candidates by priority descending, then key ascending.
func rank(cands []ir.Interaction) []ir.Interaction {
	out := slices.Clone(cands)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

func greedy(cluster []ir.Interaction) []ir.Interaction {
	var out []ir.Interaction
	for _, in := range rank(cluster) {
		if !slices.ContainsFunc(out, func(c ir.Interaction) bool { return conflicts(c, in) }) {
			out = append(out, in)
		}
	}
	return out
}
