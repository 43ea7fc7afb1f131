package dag

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Graph is a set of ids connected by dependency edges. It is safe for
// concurrent use.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*vertex
}

// vertex is kept private so callers address nodes by id only.
type vertex struct {
	id         string
	deps       map[string]*vertex // predecessors
	dependents map[string]*vertex // successors
}

// CycleError reports a dependency cycle. Path starts and ends with the same id.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*vertex)}
}

// AddNode adds id to the graph. Adding an existing id is a no-op.
func (g *Graph) AddNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &vertex{
		id:         id,
		deps:       make(map[string]*vertex),
		dependents: make(map[string]*vertex),
	}
}

// Has reports whether id is in the graph.
func (g *Graph) Has(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// AddEdge records that toID depends on fromID. Both nodes must exist, and an
// edge from a node to itself is rejected.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return &CycleError{Path: []string{fromID, fromID}}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	from, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	to.deps[fromID] = from
	from.dependents[toID] = to
	return nil
}

// Dependencies returns the sorted ids id depends on.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedIDs(n.deps), nil
}

// Dependents returns the sorted ids that depend on id.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return sortedIDs(n.dependents), nil
}

// DetectCycles returns a *CycleError describing the first cycle found, or nil.
// Nodes are visited in id order so the reported cycle is stable.
func (g *Graph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(n *vertex) error
	visit = func(n *vertex) error {
		state[n.id] = inStack
		stack = append(stack, n.id)

		for _, depID := range sortedIDs(n.deps) {
			switch state[depID] {
			case inStack:
				start := indexOf(stack, depID)
				path := append(append([]string(nil), stack[start:]...), depID)
				return &CycleError{Path: path}
			case unvisited:
				if err := visit(n.deps[depID]); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[n.id] = done
		return nil
	}

	for _, id := range sortedIDs(g.nodes) {
		if state[id] == unvisited {
			if err := visit(g.nodes[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopologicalOrder returns every id such that each one appears after all of
// its dependencies. Ties are broken by id, which makes the order
// deterministic. A graph with a cycle yields a *CycleError.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	remaining := make(map[string]int, len(g.nodes))
	var ready []string
	for id, n := range g.nodes {
		remaining[id] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unlocked []string
		for depID := range g.nodes[id].dependents {
			remaining[depID]--
			if remaining[depID] == 0 {
				unlocked = append(unlocked, depID)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}
	return order, nil
}

func sortedIDs(m map[string]*vertex) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return 0
}
