package plan

import (
	"github.com/felixgeelhaar/phaseflow/internal/classify"
	"github.com/felixgeelhaar/phaseflow/internal/deps"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
	"github.com/felixgeelhaar/phaseflow/internal/metrics"
	"github.com/felixgeelhaar/phaseflow/internal/phases"
)

// GenerateOptions contains options for plan generation
type GenerateOptions struct {
	// Classifier scores the tasks; a default classifier is used when nil
	Classifier *classify.Classifier
	// Metrics records classification counts
	Metrics *metrics.Metrics
}

// Generate classifies tasks, resolves their dependencies, ranks them and
// selects a phase template. Tasks are validated first; a cyclic task
// graph fails with a DependencyViolation.
func Generate(changeID string, tasks []domain.Task, opts GenerateOptions) (*Plan, error) {
	if err := ValidateTasks(tasks); err != nil {
		return nil, err
	}

	classifier := opts.Classifier
	if classifier == nil {
		classifier = classify.New()
	}

	hits, misses := classifier.Cache().Stats()
	classified := classifier.ClassifyAll(changeID, tasks)
	recordClassifications(opts.Metrics, classifier.Cache(), hits, misses, classified)

	graph, err := deps.Resolve(tasks)
	if err != nil {
		return nil, err
	}

	ranked := classify.Rank(classifier.Prioritize(classified, graph.All()))

	return &Plan{
		ChangeID:       changeID,
		RuleSetVersion: classifier.Rules().Version,
		Tasks:          ranked,
		Order:          graph.TopoOrder(),
		Selection:      phases.Select(tasks, graph),
	}, nil
}

func recordClassifications(m *metrics.Metrics, cache *classify.Cache, hits, misses int, items []classify.Classified) {
	if m == nil {
		return
	}
	nowHits, nowMisses := cache.Stats()
	m.RecordCacheLookups(nowHits-hits, nowMisses-misses)
	for _, item := range items {
		c := item.Classification
		m.RecordClassification(string(c.Complexity.Level), string(c.Risk.Level))
	}
}
