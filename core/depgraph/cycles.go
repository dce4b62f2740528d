package depgraph

// MaxCycles bounds how many cycles DetectCycles reports. Dense graphs can
// hold exponentially many elementary cycles.
const MaxCycles = 1000

// DetectCycles returns every elementary cycle, each starting and ending at
// its smallest agent, e.g. [a b c a]. Cycles are ordered by their first
// agent and then by discovery order of a depth-first search that visits
// neighbours in sorted order.
//
// The search is Johnson's algorithm: a node that failed to lead back to the
// root stays blocked until a node it waits on is unblocked.
func (g *Graph) DetectCycles() [][]string {
	nodes := g.Nodes()
	var cycles [][]string

	for i, root := range nodes {
		// Only nodes not smaller than root, and only those that can lead
		// back to root, can sit on a cycle rooted at root.
		allowed := make(map[string]bool, len(nodes)-i)
		for _, n := range nodes[i:] {
			allowed[n] = true
		}
		s := &cycleSearch{
			graph:   g,
			root:    root,
			within:  restrictedReach(g.reverse, root, allowed),
			blocked: make(map[string]bool),
			waiting: make(map[string]map[string]struct{}),
			limit:   MaxCycles - len(cycles),
		}
		s.circuit(root)
		cycles = append(cycles, s.cycles...)
		if len(cycles) >= MaxCycles {
			break
		}
	}
	return cycles
}

// cycleSearch holds the state of one Johnson search rooted at root.
type cycleSearch struct {
	graph  *Graph
	root   string
	within map[string]bool

	stack   []string
	blocked map[string]bool
	// waiting[w] holds the blocked nodes to release when w is unblocked.
	waiting map[string]map[string]struct{}

	cycles [][]string
	limit  int
}

func (s *cycleSearch) full() bool { return len(s.cycles) >= s.limit }

// circuit extends the current path with v and reports whether any cycle
// through v was found.
func (s *cycleSearch) circuit(v string) bool {
	found := false
	s.stack = append(s.stack, v)
	s.blocked[v] = true

	next := s.neighbours(v)
	for _, w := range next {
		if s.full() {
			break
		}
		switch {
		case w == s.root:
			s.cycles = append(s.cycles, append(append([]string(nil), s.stack...), s.root))
			found = true
		case !s.blocked[w]:
			if s.circuit(w) {
				found = true
			}
		}
	}

	if found {
		s.unblock(v)
	} else {
		for _, w := range next {
			link(s.waiting, w, v)
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
	return found
}

func (s *cycleSearch) unblock(v string) {
	s.blocked[v] = false
	for w := range s.waiting[v] {
		delete(s.waiting[v], w)
		if s.blocked[w] {
			s.unblock(w)
		}
	}
}

func (s *cycleSearch) neighbours(v string) []string {
	var out []string
	for _, w := range sortedKeys(s.graph.forward[v]) {
		if s.within[w] {
			out = append(out, w)
		}
	}
	return out
}

// restrictedReach walks adj from start through allowed nodes only.
func restrictedReach(adj map[string]map[string]struct{}, start string, allowed map[string]bool) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for next := range adj[n] {
			if allowed[next] && !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return seen
}
