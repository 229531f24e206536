package classify

import (
	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// UXPlanSignal reports whether a page/UX plan already exists for a change.
type UXPlanSignal interface {
	HasUXPlan(changeID string) bool
}

// Classifier scores tasks against a rule set.
type Classifier struct {
	rules *RuleSet
	ux    UXPlanSignal
	cache *Cache
}

// Option configures a Classifier
type Option func(*Classifier)

// WithRules replaces the default rule table
func WithRules(rs *RuleSet) Option {
	return func(c *Classifier) { c.rules = rs }
}

// WithUXPlanSignal sets the UX plan lookup
func WithUXPlanSignal(s UXPlanSignal) Option {
	return func(c *Classifier) { c.ux = s }
}

// WithCache shares a cache between classifiers
func WithCache(cache *Cache) Option {
	return func(c *Classifier) { c.cache = cache }
}

// New creates a classifier using the default rules and a private cache
func New(opts ...Option) *Classifier {
	c := &Classifier{
		rules: DefaultRules(),
		cache: NewCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rules returns the rule table in use
func (c *Classifier) Rules() *RuleSet {
	return c.rules
}

// Cache returns the classification cache
func (c *Classifier) Cache() *Cache {
	return c.cache
}

// Classify computes the intrinsic classification of one task. Dependencies
// and priority need the whole task set and are filled in by Prioritize.
func (c *Classifier) Classify(changeID string, task domain.Task) Classification {
	uxPlan := c.ux != nil && c.ux.HasUXPlan(changeID)
	key := Key(c.rules.Version, uxPlan, task)
	if cached, ok := c.cache.Get(key); ok {
		return cached
	}

	complexity := c.rules.ScoreComplexity(task)
	risk := c.rules.ScoreRisk(task, complexity)
	result := Classification{
		TaskID:         task.ID,
		Complexity:     complexity,
		Risk:           risk,
		Research:       c.rules.AssessResearch(task, uxPlan),
		TDD:            c.rules.RequiresTDD(task, complexity, risk),
		Subtasks:       c.rules.Breakdown(task, complexity),
		RuleSetVersion: c.rules.Version,
	}

	c.cache.Put(key, result)
	return result.Clone()
}

// ClassifyAll classifies every task in input order
func (c *Classifier) ClassifyAll(changeID string, tasks []domain.Task) []Classified {
	out := make([]Classified, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, Classified{Task: t, Classification: c.Classify(changeID, t)})
	}
	return out
}

// Prioritize attaches each task's dependencies and computes its priority.
func (c *Classifier) Prioritize(items []Classified, graph map[domain.TaskID]domain.Dependencies) []Classified {
	out := make([]Classified, len(items))
	for i, item := range items {
		cls := item.Classification.Clone()
		cls.Dependencies = graph[item.Task.ID].Clone()
		cls.Priority = c.rules.ScorePriority(item.Task, cls, cls.Dependencies)
		out[i] = Classified{Task: item.Task, Classification: cls}
	}
	return out
}
