package deps

import (
	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// DetectCycle returns the cycle path if one exists, or nil if the graph is acyclic.
// Uses DFS with coloring: white (unvisited), gray (in progress), black (done).
// The path starts and ends with the same task.
func (g *Graph) DetectCycle() []domain.TaskID {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[domain.TaskID]int)
	parent := make(map[domain.TaskID]domain.TaskID)

	var dfs func(node domain.TaskID) []domain.TaskID
	dfs = func(node domain.TaskID) []domain.TaskID {
		color[node] = gray
		for _, next := range sortedIDs(keys(g.blockedBy[node])) {
			if color[next] == gray {
				cycle := []domain.TaskID{next, node}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	ids := sortedIDs(g.order)
	for _, id := range ids {
		if color[id] == white {
			if cycle := dfs(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// TopoOrder returns task IDs so every task follows everything it is
// blocked by. Ties keep input order. The graph must be acyclic.
func (g *Graph) TopoOrder() []domain.TaskID {
	indegree := make(map[domain.TaskID]int, len(g.order))
	for _, id := range g.order {
		indegree[id] = len(g.blockedBy[id])
	}

	var out []domain.TaskID
	done := make(map[domain.TaskID]bool)
	for len(out) < len(g.order) {
		progressed := false
		for _, id := range g.order {
			if done[id] || indegree[id] > 0 {
				continue
			}
			done[id] = true
			out = append(out, id)
			progressed = true
			for _, other := range g.order {
				if g.blockedBy[other][id] {
					indegree[other]--
				}
			}
		}
		if !progressed {
			break
		}
	}
	return out
}
