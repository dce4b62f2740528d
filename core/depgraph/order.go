package depgraph

import "sort"

// Ordering is the result of a topological sort. Order lists every agent
// that could be placed; Unordered lists, sorted, the agents left behind
// because they sit on or behind a cycle.
type Ordering struct {
	Order     []string `json:"order"`
	Unordered []string `json:"unordered"`
}

// Complete reports whether every agent was ordered.
func (o Ordering) Complete() bool { return len(o.Unordered) == 0 }

// TopologicalOrder orders start and everything it transitively depends on,
// dependencies first. start comes last when the subgraph is acyclic.
func (g *Graph) TopologicalOrder(start string) Ordering {
	return g.kahn(reachable(g.forward, start))
}

// DependentOrder orders start and everything that transitively depends on
// it, dependencies first, so start leads. This is the order in which
// dependents should be updated after start changes.
func (g *Graph) DependentOrder(start string) Ordering {
	return g.kahn(reachable(g.reverse, start))
}

// kahn runs Kahn's algorithm on the subgraph induced by nodes. A node is
// ready once all of its dependencies inside the subgraph are placed; ties
// are broken by name.
func (g *Graph) kahn(nodes map[string]struct{}) Ordering {
	pending := make(map[string]int, len(nodes))
	for n := range nodes {
		for dep := range g.forward[n] {
			if _, ok := nodes[dep]; ok {
				pending[n]++
			}
		}
	}

	var ready []string
	for n := range nodes {
		if pending[n] == 0 {
			ready = append(ready, n)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		var unlocked []string
		for dependent := range g.reverse[n] {
			if _, ok := nodes[dependent]; !ok {
				continue
			}
			pending[dependent]--
			if pending[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		if len(unlocked) > 0 {
			ready = append(ready, unlocked...)
			sort.Strings(ready)
		}
	}

	unordered := []string{}
	for n := range nodes {
		if pending[n] > 0 {
			unordered = append(unordered, n)
		}
	}
	sort.Strings(unordered)
	return Ordering{Order: order, Unordered: unordered}
}
