package engine

import "sort"

// depGraph holds the ordering constraints between the pass's placement
// candidates. Edges point from a task to each dependency that is itself
// a candidate this pass; dependency ids naming no candidate (completed,
// already scheduled, or deleted tasks) add no edge and are resolved by
// the orchestrator against its assigned-end map.
type depGraph struct {
	deps map[string][]string
}

func buildDepGraph(items map[string]*workItem) *depGraph {
	g := &depGraph{deps: make(map[string][]string, len(items))}
	for id, it := range items {
		var ds []string
		for _, dep := range it.unit.deps() {
			if dep == id {
				// self-dependency is a one-node cycle
				ds = append(ds, dep)
				continue
			}
			if _, ok := items[dep]; ok {
				ds = append(ds, dep)
			}
		}
		g.deps[id] = ds
	}
	return g
}

type nodeColor uint8

const (
	unvisited nodeColor = iota
	visiting
	visited
)

// cyclic returns the ids of every node that sits on a dependency cycle.
// Nodes that merely depend into a cycle are not included; the orchestrator
// reports those as blocked once the cycle members fail.
func (g *depGraph) cyclic() map[string]bool {
	color := make(map[string]nodeColor, len(g.deps))
	onCycle := make(map[string]bool)
	stack := make([]string, 0, len(g.deps))

	var visit func(id string)
	visit = func(id string) {
		color[id] = visiting
		stack = append(stack, id)
		for _, dep := range g.deps[id] {
			switch color[dep] {
			case unvisited:
				visit(dep)
			case visiting:
				// Everything from dep up to the top of the stack is on
				// the cycle the back edge just closed.
				for i := len(stack) - 1; i >= 0; i-- {
					onCycle[stack[i]] = true
					if stack[i] == dep {
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = visited
	}

	ids := make([]string, 0, len(g.deps))
	for id := range g.deps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == unvisited {
			visit(id)
		}
	}
	return onCycle
}

// depths returns each node's longest dependency chain length. Nodes with
// no candidate dependencies are depth 0. Cycle members report the depth
// accumulated before the guard trips; they are failed before ordering
// matters, so the value is never used for them.
func (g *depGraph) depths() map[string]int {
	memo := make(map[string]int, len(g.deps))
	state := make(map[string]nodeColor, len(g.deps))

	var walk func(id string) int
	walk = func(id string) int {
		if state[id] == visited {
			return memo[id]
		}
		if state[id] == visiting {
			return 0
		}
		state[id] = visiting
		d := 0
		for _, dep := range g.deps[id] {
			if dd := walk(dep) + 1; dd > d {
				d = dd
			}
		}
		state[id] = visited
		memo[id] = d
		return d
	}
	for id := range g.deps {
		walk(id)
	}
	return memo
}
