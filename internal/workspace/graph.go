package workspace

import (
	"container/heap"
	"fmt"
	"strings"
)

// Graph is the workspace dependency graph. Packages keep their
// discovery order; name lookups go through an index map. Cycles are
// tolerated in storage and flagged in Warnings; only topological
// queries reject them.
type Graph struct {
	// Kind is the detected monorepo convention.
	Kind Kind
	// Root is the workspace root directory.
	Root string
	// Packages is the ordered package list.
	Packages []*Package
	// Warnings accumulates non-fatal findings from discovery and graph
	// construction (skipped manifests, cycles, duplicate dependencies).
	Warnings []string

	index map[string]int
}

// NewGraph builds a graph from discovered packages: it indexes names,
// extracts workspace dependencies from each manifest, and materializes
// reverse edges. Dependency names that are not workspace members are
// external and ignored.
func NewGraph(kind Kind, root string, packages []*Package) *Graph {
	g := &Graph{
		Kind:     kind,
		Root:     root,
		Packages: packages,
		index:    make(map[string]int, len(packages)),
	}
	for i, p := range packages {
		g.index[p.Name()] = i
	}

	for _, p := range packages {
		p.WorkspaceDeps = make(map[string]struct{})
		p.Dependents = make(map[string]struct{})
		for _, section := range []string{"dependencies", "devDependencies", "peerDependencies"} {
			for name := range p.Manifest.DependencyMap(section) {
				if _, ok := g.index[name]; ok && name != p.Name() {
					p.WorkspaceDeps[name] = struct{}{}
				}
			}
		}
	}
	for _, p := range packages {
		for dep := range p.WorkspaceDeps {
			g.Packages[g.index[dep]].Dependents[p.Name()] = struct{}{}
		}
	}

	if cycles := g.FindCycles(); len(cycles) > 0 {
		for _, cycle := range cycles {
			g.Warnings = append(g.Warnings,
				fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")))
		}
	}
	return g
}

// Get returns the package with the given name, or nil.
func (g *Graph) Get(name string) *Package {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.Packages[i]
}

// Has reports whether name is a workspace package.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Names returns the package names in discovery order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.Packages))
	for i, p := range g.Packages {
		names[i] = p.Name()
	}
	return names
}

// DependentsOf returns the direct dependents of name.
func (g *Graph) DependentsOf(name string) map[string]struct{} {
	p := g.Get(name)
	if p == nil {
		return nil
	}
	out := make(map[string]struct{}, len(p.Dependents))
	for d := range p.Dependents {
		out[d] = struct{}{}
	}
	return out
}

// TransitiveDependentsOf returns every package reachable from name over
// reverse edges, excluding name itself. BFS in index order for
// determinism.
func (g *Graph) TransitiveDependentsOf(name string) map[string]struct{} {
	result := make(map[string]struct{})
	if g.Get(name) == nil {
		return result
	}
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, p := range g.Packages {
			if !p.DependsOn(current) {
				continue
			}
			if _, seen := result[p.Name()]; seen || p.Name() == name {
				continue
			}
			result[p.Name()] = struct{}{}
			queue = append(queue, p.Name())
		}
	}
	return result
}

// indexHeap is a min-heap of package indices, giving Kahn's algorithm
// its insertion-order tie-break.
type indexHeap []int

func (h indexHeap) Len() int            { return len(h) }
func (h indexHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)         { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopologicalOrder returns the packages of subset (or all packages when
// subset is nil) ordered dependencies-first. Ties break by discovery
// order. Returns ErrCycle when the subset contains a cycle.
func (g *Graph) TopologicalOrder(subset []string) ([]string, error) {
	inSubset := make(map[string]bool)
	if subset == nil {
		for name := range g.index {
			inSubset[name] = true
		}
	} else {
		for _, name := range subset {
			if !g.Has(name) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, name)
			}
			inSubset[name] = true
		}
	}

	indegree := make(map[string]int, len(inSubset))
	for name := range inSubset {
		p := g.Get(name)
		for dep := range p.WorkspaceDeps {
			if inSubset[dep] {
				indegree[name]++
			}
		}
	}

	ready := &indexHeap{}
	heap.Init(ready)
	for name := range inSubset {
		if indegree[name] == 0 {
			heap.Push(ready, g.index[name])
		}
	}

	order := make([]string, 0, len(inSubset))
	for ready.Len() > 0 {
		name := g.Packages[heap.Pop(ready).(int)].Name()
		order = append(order, name)
		for dependent := range g.Get(name).Dependents {
			if !inSubset[dependent] {
				continue
			}
			indegree[dependent]--
			if indegree[dependent] == 0 {
				heap.Push(ready, g.index[dependent])
			}
		}
	}

	if len(order) != len(inSubset) {
		return nil, fmt.Errorf("%w: topological order impossible over %d of %d packages",
			ErrCycle, len(inSubset)-len(order), len(inSubset))
	}
	return order, nil
}

// FindCycles returns the strongly connected components with more than
// one member, each as a list of package names. Tarjan's algorithm.
func (g *Graph) FindCycles() [][]string {
	n := len(g.Packages)
	indexOf := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range indexOf {
		indexOf[i] = -1
	}
	var stack []int
	var cycles [][]string
	counter := 0

	var strongconnect func(v int)
	strongconnect = func(v int) {
		indexOf[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for dep := range g.Packages[v].WorkspaceDeps {
			w := g.index[dep]
			if indexOf[w] == -1 {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indexOf[w] < lowlink[v] {
				lowlink[v] = indexOf[w]
			}
		}

		if lowlink[v] == indexOf[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if len(scc) > 1 {
				names := make([]string, len(scc))
				for i, idx := range scc {
					names[len(scc)-1-i] = g.Packages[idx].Name()
				}
				cycles = append(cycles, names)
			}
		}
	}

	for v := 0; v < n; v++ {
		if indexOf[v] == -1 {
			strongconnect(v)
		}
	}
	return cycles
}
