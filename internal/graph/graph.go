// Package graph links the intra-file call graph of extracted functions.
package graph

import (
	"sort"

	"github.com/phobologic/gentleman/internal/model"
)

// Index maps a function name to the position of its last definition.
// Later definitions overwrite earlier ones with the same name.
func Index(fns []model.FunctionRecord) map[string]int {
	idx := make(map[string]int, len(fns))
	for i := range fns {
		idx[fns[i].Name] = i
	}
	return idx
}

// Duplicates returns the sorted names defined more than once.
func Duplicates(fns []model.FunctionRecord) []string {
	count := make(map[string]int, len(fns))
	for i := range fns {
		count[fns[i].Name]++
	}
	var dups []string
	for name, n := range count {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	sort.Strings(dups)
	return dups
}

// Link deduplicates and sorts every Calls list, drops callees that are not
// defined in fns, and rebuilds CalledBy as the inverse of Calls. A callee name
// shared by several definitions resolves to the last one, so only that
// record receives the caller.
func Link(fns []model.FunctionRecord) {
	idx := Index(fns)

	for i := range fns {
		fns[i].Calls = normalize(fns[i].Calls, idx)
		fns[i].CalledBy = []string{}
	}

	callers := make([]map[string]struct{}, len(fns))
	for i := range fns {
		for _, callee := range fns[i].Calls {
			j := idx[callee]
			if callers[j] == nil {
				callers[j] = make(map[string]struct{})
			}
			callers[j][fns[i].Name] = struct{}{}
		}
	}

	for j := range fns {
		fns[j].CalledBy = sortedKeys(callers[j])
	}
}

// Edge is one caller -> callee pair.
type Edge struct {
	Caller string
	Callee string
}

// Edges returns the deduplicated call edges, sorted by caller then callee.
func Edges(fns []model.FunctionRecord) []Edge {
	type edgeKey struct{ caller, callee string }
	seen := make(map[edgeKey]struct{})

	var edges []Edge
	for i := range fns {
		for _, callee := range fns[i].Calls {
			key := edgeKey{fns[i].Name, callee}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			edges = append(edges, Edge{Caller: fns[i].Name, Callee: callee})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Caller != edges[j].Caller {
			return edges[i].Caller < edges[j].Caller
		}
		return edges[i].Callee < edges[j].Callee
	})
	return edges
}

func normalize(names []string, idx map[string]int) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := idx[n]; ok {
			set[n] = struct{}{}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
