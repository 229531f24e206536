package deps

import (
	"regexp"
	"sort"

	"github.com/felixgeelhaar/phaseflow/internal/classify"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/errors"
)

var (
	apiPattern     = regexp.MustCompile(`(?i)\b(?:api|apis|endpoint|endpoints)\b`)
	connectPattern = regexp.MustCompile(`(?i)\b(?:connect|integrat|link)\w*`)
)

// Graph is the blocks/blockedBy/parallelizable relation over a task set.
type Graph struct {
	order     []domain.TaskID
	tasks     map[domain.TaskID]domain.Task
	blockedBy map[domain.TaskID]map[domain.TaskID]bool
	deps      map[domain.TaskID]domain.Dependencies
}

// Resolve infers dependencies between tasks. It fails with a
// DependencyViolation when the inferred graph contains a cycle.
func Resolve(tasks []domain.Task) (*Graph, error) {
	g := &Graph{
		tasks:     make(map[domain.TaskID]domain.Task, len(tasks)),
		blockedBy: make(map[domain.TaskID]map[domain.TaskID]bool, len(tasks)),
		deps:      make(map[domain.TaskID]domain.Dependencies, len(tasks)),
	}
	nouns := make(map[domain.TaskID][]string, len(tasks))
	for _, t := range tasks {
		g.order = append(g.order, t.ID)
		g.tasks[t.ID] = t
		g.blockedBy[t.ID] = make(map[domain.TaskID]bool)
		nouns[t.ID] = classify.EntityNouns(t.Text())
	}

	for _, t := range tasks {
		text := t.Text()
		for _, other := range tasks {
			if other.ID == t.ID {
				continue
			}
			if blocks(t, other, text, nouns) {
				g.blockedBy[t.ID][other.ID] = true
			}
		}
	}

	if cycle := g.DetectCycle(); cycle != nil {
		path := make([]string, len(cycle))
		for i, id := range cycle {
			path[i] = string(id)
		}
		return nil, errors.NewCycleError(path)
	}

	g.computeRelations(nouns)
	return g, nil
}

// blocks reports whether other must finish before t may start.
func blocks(t, other domain.Task, text string, nouns map[domain.TaskID][]string) bool {
	switch t.Type {
	case domain.TaskTypeUI, domain.TaskTypeIntegration:
		if other.Type == domain.TaskTypeAPI && apiPattern.MatchString(other.Text()) {
			return true
		}
	case domain.TaskTypeAPI:
		if other.Type == domain.TaskTypeDataSchema && classify.SharesNoun(nouns[t.ID], nouns[other.ID]) {
			return true
		}
	case domain.TaskTypeTest:
		if other.Type != domain.TaskTypeTest {
			lead := classify.LeadingNoun(other.Text())
			if lead != "" && classify.SharesNoun([]string{lead}, nouns[t.ID]) {
				return true
			}
		}
	}

	if connectPattern.MatchString(text) &&
		(other.Type == domain.TaskTypeUI || other.Type == domain.TaskTypeAPI) {
		return true
	}
	return false
}

// computeRelations fills blocks, blockedBy and parallelizable for every task.
func (g *Graph) computeRelations(nouns map[domain.TaskID][]string) {
	blocksOf := make(map[domain.TaskID][]domain.TaskID)
	for _, id := range g.order {
		for dep := range g.blockedBy[id] {
			blocksOf[dep] = append(blocksOf[dep], id)
		}
	}

	for _, id := range g.order {
		d := domain.Dependencies{
			Blocks:    sortedIDs(blocksOf[id]),
			BlockedBy: sortedIDs(keys(g.blockedBy[id])),
		}
		for _, other := range g.order {
			if other == id || classify.SharesNoun(nouns[id], nouns[other]) {
				continue
			}
			if g.Reachable(id, other) || g.Reachable(other, id) {
				continue
			}
			d.Parallelizable = append(d.Parallelizable, other)
		}
		d.Parallelizable = sortedIDs(d.Parallelizable)
		g.deps[id] = d
	}
}

// Reachable reports whether from transitively waits on to.
func (g *Graph) Reachable(from, to domain.TaskID) bool {
	seen := make(map[domain.TaskID]bool)
	stack := []domain.TaskID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for dep := range g.blockedBy[cur] {
			if dep == to {
				return true
			}
			if !seen[dep] {
				seen[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}

// Dependencies returns the relations of one task
func (g *Graph) Dependencies(id domain.TaskID) domain.Dependencies {
	return g.deps[id].Clone()
}

// All returns the relations of every task, keyed by task ID
func (g *Graph) All() map[domain.TaskID]domain.Dependencies {
	out := make(map[domain.TaskID]domain.Dependencies, len(g.deps))
	for id, d := range g.deps {
		out[id] = d.Clone()
	}
	return out
}

// Tasks returns the tasks in input order
func (g *Graph) Tasks() []domain.Task {
	out := make([]domain.Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// Blocked reports whether any task of type dependent waits on a task of type prerequisite.
func (g *Graph) Blocked(dependent, prerequisite func(domain.Task) bool) bool {
	for _, id := range g.order {
		if !dependent(g.tasks[id]) {
			continue
		}
		for dep := range g.blockedBy[id] {
			if prerequisite(g.tasks[dep]) {
				return true
			}
		}
	}
	return false
}

func keys(m map[domain.TaskID]bool) []domain.TaskID {
	out := make([]domain.TaskID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sortedIDs(ids []domain.TaskID) []domain.TaskID {
	out := append([]domain.TaskID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
