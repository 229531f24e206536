package classify

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

type staticUXPlan bool

func (s staticUXPlan) HasUXPlan(string) bool { return bool(s) }

func TestClassifyMutatingAuthEndpoint(t *testing.T) {
	c := New()
	task := domain.Task{ID: "login-api", Title: "Implement POST /api/auth/login", Type: domain.TaskTypeAPI}

	got := c.Classify("chg", task)

	assert.GreaterOrEqual(t, got.Complexity.Score, 7)
	assert.Equal(t, domain.ComplexityComplex, got.Complexity.Level)
	assert.Contains(t, got.Complexity.Factors, "keyword:auth")
	assert.Contains(t, got.Complexity.Factors, "http-mutation")

	assert.Equal(t, domain.RiskHigh, got.Risk.Level)
	assert.Contains(t, got.Risk.Mitigations, "require test-first workflow")

	assert.True(t, got.TDD.Required)
	assert.Equal(t, RuleSetVersion, got.RuleSetVersion)
}

func TestScoreComplexity(t *testing.T) {
	rs := DefaultRules()

	tests := []struct {
		name      string
		task      domain.Task
		wantScore int
	}{
		{
			name:      "plain task",
			task:      domain.Task{ID: "a", Title: "Rename button label", Type: domain.TaskTypeUI},
			wantScore: 3,
		},
		{
			name:      "highest duration band only",
			task:      domain.Task{ID: "a", Title: "Rename button label", Type: domain.TaskTypeUI, EstimatedMinutes: 200},
			wantScore: 6,
		},
		{
			name:      "middle duration band",
			task:      domain.Task{ID: "a", Title: "Rename button label", Type: domain.TaskTypeUI, EstimatedMinutes: 61},
			wantScore: 5,
		},
		{
			name: "connectors",
			task: domain.Task{ID: "a", Title: "Header and footer and sidebar and menu", Type: domain.TaskTypeUI,
				Description: "first this then that then other"},
			wantScore: 5,
		},
		{
			name: "clamped at ten",
			task: domain.Task{ID: "a", Type: domain.TaskTypeAPI, EstimatedMinutes: 300,
				Title: "PUT payment oauth encryption websocket security performance migration refactor api"},
			wantScore: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rs.ScoreComplexity(tt.task)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, domain.ComplexityLevelFor(tt.wantScore), got.Level)
		})
	}
}

func TestScoreRiskSensitiveUIOnlyForUITasks(t *testing.T) {
	rs := DefaultRules()
	ui := domain.Task{ID: "a", Title: "Polish checkout summary", Type: domain.TaskTypeUI}
	api := ui
	api.Type = domain.TaskTypeAPI

	uiRisk := rs.ScoreRisk(ui, rs.ScoreComplexity(ui))
	apiRisk := rs.ScoreRisk(api, rs.ScoreComplexity(api))

	assert.Contains(t, uiRisk.Categories, "sensitive-ui")
	assert.NotContains(t, apiRisk.Categories, "sensitive-ui")
	assert.Equal(t, uiRisk.Score, apiRisk.Score+1)
}

func TestMitigationsAreDeterministic(t *testing.T) {
	rs := DefaultRules()
	task := domain.Task{ID: "m", Title: "Migrate legacy payment records via the billing API", Type: domain.TaskTypeDataSchema}

	first := rs.ScoreRisk(task, rs.ScoreComplexity(task))
	second := rs.ScoreRisk(task, rs.ScoreComplexity(task))

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"security", "external-dependency", "migration"}, first.Categories)
	assert.Contains(t, first.Mitigations, "prepare a rollback plan for data changes")
}

func TestAssessResearch(t *testing.T) {
	rs := DefaultRules()

	t.Run("ux pattern when no plan exists", func(t *testing.T) {
		task := domain.Task{ID: "w", Title: "Build onboarding wizard page", Type: domain.TaskTypeUI}
		r := rs.AssessResearch(task, false)
		require.NotNil(t, r)
		assert.Equal(t, "ux-pattern", r.Category)
		assert.Equal(t, 15, r.EstimatedMinutes)
		assert.Equal(t, []string{"wizard page UX pattern"}, r.Queries)
	})

	t.Run("ux categories skipped when plan exists", func(t *testing.T) {
		task := domain.Task{ID: "w", Title: "Build onboarding wizard page", Type: domain.TaskTypeUI}
		assert.Nil(t, rs.AssessResearch(task, true))
	})

	t.Run("first match wins", func(t *testing.T) {
		task := domain.Task{ID: "g", Title: "Add GraphQL gateway with caching", Type: domain.TaskTypeAPI}
		r := rs.AssessResearch(task, false)
		require.NotNil(t, r)
		assert.Equal(t, "new-technology", r.Category)
		assert.Equal(t, []string{"Add GraphQL gateway with caching getting started guide"}, r.Queries)
	})

	t.Run("nothing to research", func(t *testing.T) {
		task := domain.Task{ID: "n", Title: "Rename button label", Type: domain.TaskTypeUI}
		assert.Nil(t, rs.AssessResearch(task, false))
	})
}

func TestExpand(t *testing.T) {
	rs := DefaultRules()

	t.Run("ui and api split", func(t *testing.T) {
		task := domain.Task{ID: "p", Title: "Build profile page and API endpoint", Type: domain.TaskTypeUI, EstimatedMinutes: 120}
		subs := rs.Expand(task, rs.ScoreComplexity(task))
		require.Len(t, subs, 3)
		assert.Equal(t, domain.TaskID("p.1"), subs[0].ID)
		assert.Equal(t, domain.TaskTypeAPI, subs[0].Type)
		assert.Equal(t, domain.TaskTypeUI, subs[1].Type)
		assert.Equal(t, domain.TaskTypeIntegration, subs[2].Type)
		for _, s := range subs {
			assert.Equal(t, 40, s.EstimatedMinutes)
		}
	})

	t.Run("crud quadruple", func(t *testing.T) {
		task := domain.Task{ID: "c", Title: "Manage products with CRUD operations", Type: domain.TaskTypeAPI, EstimatedMinutes: 100}
		subs := rs.Expand(task, rs.ScoreComplexity(task))
		require.Len(t, subs, 4)
		assert.Equal(t, "Create product", subs[0].Title)
		assert.Equal(t, "Delete product", subs[3].Title)
		assert.Equal(t, domain.TaskID("c.4"), subs[3].ID)
		assert.Equal(t, 25, subs[0].EstimatedMinutes)
	})

	t.Run("per entity split", func(t *testing.T) {
		task := domain.Task{ID: "e", Title: "Sync Customer and Invoice records", Type: domain.TaskTypeDataSchema, EstimatedMinutes: 121}
		subs := rs.Expand(task, rs.ScoreComplexity(task))
		require.Len(t, subs, 2)
		assert.Equal(t, "Sync Customer and Invoice records (Customer)", subs[0].Title)
		assert.Equal(t, 61, subs[0].EstimatedMinutes)
	})

	t.Run("small task is not split", func(t *testing.T) {
		task := domain.Task{ID: "s", Title: "Build login form", Type: domain.TaskTypeUI, EstimatedMinutes: 30}
		assert.Nil(t, rs.Expand(task, rs.ScoreComplexity(task)))
	})

	t.Run("breakdown nests a different pattern", func(t *testing.T) {
		task := domain.Task{ID: "p", Title: "Build product page and API endpoint with CRUD operations", Type: domain.TaskTypeUI, EstimatedMinutes: 600}
		tree := rs.Breakdown(task, rs.ScoreComplexity(task))
		require.Len(t, tree, 3)

		api := tree[0]
		assert.Equal(t, domain.TaskID("p.1"), api.ID)
		assert.Equal(t, domain.TaskTypeAPI, api.Type)
		assert.Equal(t, 200, api.EstimatedMinutes)
		require.Len(t, api.Subtasks, 4)
		assert.Equal(t, domain.TaskID("p.1.1"), api.Subtasks[0].ID)
		assert.Equal(t, domain.TaskID("p.1.4"), api.Subtasks[3].ID)
		assert.True(t, strings.HasPrefix(api.Subtasks[0].Title, "Create "))
		assert.Equal(t, 50, api.Subtasks[0].EstimatedMinutes)
		assert.Equal(t, domain.TaskTypeAPI, api.Subtasks[0].Type)
		for _, leaf := range api.Subtasks {
			assert.Empty(t, leaf.Subtasks)
		}
		assert.Equal(t, 5, api.Count())
	})

	t.Run("breakdown never reapplies a pattern", func(t *testing.T) {
		task := domain.Task{ID: "c", Title: "Manage products with CRUD operations", Type: domain.TaskTypeAPI, EstimatedMinutes: 800}
		tree := rs.Breakdown(task, rs.ScoreComplexity(task))
		require.Len(t, tree, 4)
		for _, s := range tree {
			assert.Empty(t, s.Subtasks)
		}
	})

	t.Run("classification clones the tree", func(t *testing.T) {
		c := New()
		task := domain.Task{ID: "p", Title: "Build product page and API endpoint with CRUD operations", Type: domain.TaskTypeUI, EstimatedMinutes: 600}
		first := c.Classify("chg", task)
		require.Len(t, first.Subtasks, 3)
		first.Subtasks[0].Subtasks[0].Title = "mutated"

		second := c.Classify("chg", task)
		assert.NotEqual(t, "mutated", second.Subtasks[0].Subtasks[0].Title)
	})

	t.Run("action verbs trigger breakdown", func(t *testing.T) {
		task := domain.Task{ID: "v", Title: "Create, validate and deploy Order and Shipment", Type: domain.TaskTypeAPI}
		assert.True(t, rs.NeedsBreakdown(task, rs.ScoreComplexity(task)))
	})
}

func TestPrioritizeAndRank(t *testing.T) {
	c := New()
	ui := domain.Task{ID: "ui", Title: "Build login form", Type: domain.TaskTypeUI}
	api := domain.Task{ID: "api", Title: "Create POST /api/login", Type: domain.TaskTypeAPI}
	docs := domain.Task{ID: "docs", Title: "Write release notes", Type: domain.TaskTypeScript}

	items := c.ClassifyAll("chg", []domain.Task{ui, api, docs})
	graph := map[domain.TaskID]domain.Dependencies{
		"ui":  {BlockedBy: []domain.TaskID{"api"}},
		"api": {Blocks: []domain.TaskID{"ui"}},
	}

	prioritized := c.Prioritize(items, graph)
	assert.Equal(t, []domain.TaskID{"api"}, prioritized[0].Classification.Dependencies.BlockedBy)
	assert.Equal(t, 100, prioritized[0].Classification.Priority.Score)
	assert.Equal(t, domain.PriorityCritical, prioritized[1].Classification.Priority.Label)
	assert.Equal(t, 80, prioritized[2].Classification.Priority.Score)

	ranked := Rank(prioritized)
	ids := []domain.TaskID{ranked[0].Task.ID, ranked[1].Task.ID, ranked[2].Task.ID}
	assert.Equal(t, []domain.TaskID{"api", "ui", "docs"}, ids)

	// input order untouched
	assert.Equal(t, domain.TaskID("ui"), prioritized[0].Task.ID)
}

func TestClassifyUsesCache(t *testing.T) {
	c := New(WithUXPlanSignal(staticUXPlan(false)))
	task := domain.Task{ID: "t", Title: "Build onboarding wizard page", Type: domain.TaskTypeUI}

	first := c.Classify("chg", task)
	first.Complexity.Factors = append(first.Complexity.Factors, "mutated")
	second := c.Classify("chg", task)

	hits, misses := c.Cache().Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
	assert.NotContains(t, second.Complexity.Factors, "mutated")
}

func TestCacheKeyIncludesUXSignal(t *testing.T) {
	cache := NewCache()
	task := domain.Task{ID: "t", Title: "Build onboarding wizard page", Type: domain.TaskTypeUI}

	without := New(WithCache(cache), WithUXPlanSignal(staticUXPlan(false))).Classify("chg", task)
	with := New(WithCache(cache), WithUXPlanSignal(staticUXPlan(true))).Classify("chg", task)

	require.NotNil(t, without.Research)
	assert.Nil(t, with.Research)
	assert.Equal(t, 2, cache.Len())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New()
	task := domain.Task{ID: "t", Title: "Implement POST /api/auth/login", Type: domain.TaskTypeAPI}
	want := c.Classify("chg", task)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, c.Classify("chg", task))
		}()
	}
	wg.Wait()
}

func TestEntityNouns(t *testing.T) {
	assert.Equal(t, []string{"user", "profile"}, EntityNouns("Create users table with profile fields"))
	assert.Equal(t, "login", LeadingNoun("Build login form"))
	assert.Equal(t, "", LeadingNoun("Create the API"))
	assert.True(t, SharesNoun([]string{"user"}, []string{"order", "user"}))
	assert.False(t, SharesNoun([]string{"user"}, nil))
}
