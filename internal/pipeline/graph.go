package pipeline

import (
	"container/heap"
	"strings"

	"github.com/dgallion1/contractlens/internal/stage"
)

// Graph is a validated, immutable stage dependency graph. Node indexes follow
// declaration order, which is also the tie-breaker of the topological order.
//
// It is safe for concurrent read access.
type Graph struct {
	defs     []stage.Definition
	index    map[string]int
	outgoing [][]int // dependents of each node, ascending
	indeg    []int
	order    []int
}

// NewGraph validates defs and builds the graph. Every rejection matches
// ErrInvalidPipelineConfig; cycles also match ErrDependencyCycle.
func NewGraph(defs []stage.Definition) (*Graph, error) {
	if len(defs) == 0 {
		return nil, invalidf("no stages")
	}

	g := &Graph{
		defs:     make([]stage.Definition, len(defs)),
		index:    make(map[string]int, len(defs)),
		outgoing: make([][]int, len(defs)),
		indeg:    make([]int, len(defs)),
	}
	for i, d := range defs {
		if strings.TrimSpace(d.Name) == "" {
			return nil, invalidf("stage %d has no name", i+1)
		}
		if _, exists := g.index[d.Name]; exists {
			return nil, invalidf("duplicate stage name: %q", d.Name)
		}
		g.index[d.Name] = i
		d.DependsOn = append([]string(nil), d.DependsOn...)
		d.ConcurrentWith = append([]string(nil), d.ConcurrentWith...)
		g.defs[i] = d
	}

	for i, d := range g.defs {
		seen := make(map[string]bool, len(d.DependsOn))
		for _, dep := range d.DependsOn {
			if dep == d.Name {
				return nil, invalidf("stage %q depends on itself", d.Name)
			}
			j, ok := g.index[dep]
			if !ok {
				return nil, invalidf("stage %q depends on unknown stage %q", d.Name, dep)
			}
			if seen[dep] {
				return nil, invalidf("stage %q lists dependency %q twice", d.Name, dep)
			}
			seen[dep] = true
			g.outgoing[j] = append(g.outgoing[j], i)
			g.indeg[i]++
		}
		for _, c := range d.ConcurrentWith {
			if _, ok := g.index[c]; !ok {
				return nil, invalidf("stage %q lists unknown concurrent stage %q", d.Name, c)
			}
		}
	}

	g.order = g.topoOrderIndices()
	if len(g.order) != len(g.defs) {
		return nil, cycleError(g.findCycle())
	}
	return g, nil
}

// Order returns the stage names in topological order, ties broken by
// declaration order.
func (g *Graph) Order() []string {
	names := make([]string, 0, len(g.order))
	for _, i := range g.order {
		names = append(names, g.defs[i].Name)
	}
	return names
}

// Definitions returns the stage definitions in topological order.
func (g *Graph) Definitions() []stage.Definition {
	out := make([]stage.Definition, 0, len(g.order))
	for _, i := range g.order {
		out = append(out, g.defs[i])
	}
	return out
}

// Definition returns the named stage.
func (g *Graph) Definition(name string) (stage.Definition, bool) {
	i, ok := g.index[name]
	if !ok {
		return stage.Definition{}, false
	}
	return g.defs[i], true
}

// Dependents returns every stage that transitively depends on name, in
// topological order.
func (g *Graph) Dependents(name string) []string {
	start, ok := g.index[name]
	if !ok {
		return nil
	}
	reach := make([]bool, len(g.defs))
	var walk func(int)
	walk = func(u int) {
		for _, v := range g.outgoing[u] {
			if !reach[v] {
				reach[v] = true
				walk(v)
			}
		}
	}
	walk(start)

	var out []string
	for _, i := range g.order {
		if reach[i] {
			out = append(out, g.defs[i].Name)
		}
	}
	return out
}

// Len returns the number of stages.
func (g *Graph) Len() int { return len(g.defs) }

type intMinHeap []int

func (h intMinHeap) Len() int           { return len(h) }
func (h intMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intMinHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topoOrderIndices runs Kahn's algorithm with a min-heap ready queue, so the
// lowest declaration index among ready stages always goes first.
func (g *Graph) topoOrderIndices() []int {
	indeg := make([]int, len(g.indeg))
	copy(indeg, g.indeg)

	ready := &intMinHeap{}
	for i := range indeg {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}

	out := make([]int, 0, len(indeg))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(int)
		out = append(out, n)
		for _, m := range g.outgoing[n] {
			indeg[m]--
			if indeg[m] == 0 {
				heap.Push(ready, m)
			}
		}
	}
	return out
}

// findCycle returns one cycle as a closed path of stage names, found by a
// DFS over declaration order so the witness is stable across runs.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		gray
		black
	)
	color := make([]int, len(g.defs))
	parent := make([]int, len(g.defs))
	for i := range parent {
		parent[i] = -1
	}

	var cycle []int
	var dfs func(u int) bool
	dfs = func(u int) bool {
		color[u] = gray
		for _, v := range g.outgoing[u] {
			switch color[v] {
			case white:
				parent[v] = u
				if dfs(v) {
					return true
				}
			case gray:
				// Back edge u -> v closes v ... u -> v.
				cycle = append(cycle, v)
				for cur := u; cur != -1 && cur != v; cur = parent[cur] {
					cycle = append(cycle, cur)
				}
				cycle = append(cycle, v)
				return true
			}
		}
		color[u] = black
		return false
	}

	for i := range g.defs {
		if color[i] == white && dfs(i) {
			break
		}
	}

	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, g.defs[cycle[i]].Name)
	}
	return out
}
