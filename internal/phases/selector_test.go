package phases

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/phaseflow/internal/deps"
	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

func task(id, title string, typ domain.TaskType) domain.Task {
	return domain.Task{ID: domain.TaskID(id), Title: title, Type: typ}
}

func TestCatalogueSizes(t *testing.T) {
	want := map[string]int{
		TemplateBugFix:       5,
		TemplateRefactor:     4,
		TemplateScriptOnly:   7,
		TemplateFullStack:    19,
		TemplateFrontendOnly: 11,
		TemplateBackendOnly:  10,
	}
	for _, name := range Names() {
		tmpl, ok := Lookup(name)
		require.True(t, ok, name)
		assert.Len(t, tmpl.Phases, want[name], name)

		seen := make(map[string]bool)
		for _, p := range tmpl.Phases {
			assert.False(t, seen[p.Name], "duplicate phase %s in %s", p.Name, name)
			seen[p.Name] = true
			assert.NoError(t, p.WorkerRole.Validate())
			assert.NotEmpty(t, p.MetadataTags)
		}
		assert.Equal(t, "final-report", tmpl.Phases[len(tmpl.Phases)-1].Name)
	}

	_, ok := Lookup("waterfall")
	assert.False(t, ok)
}

func TestCatalogueDefaults(t *testing.T) {
	full, _ := Lookup(TemplateFullStack)

	mockup, _ := full.Phase("frontend-mockup")
	assert.Equal(t, domain.RoleUIBuilder, mockup.WorkerRole)
	assert.Equal(t, 90, mockup.DefaultEstimateMinutes)

	backend, _ := full.Phase("backend")
	assert.Equal(t, 120, backend.DefaultEstimateMinutes)
	assert.False(t, backend.DependsOnPriorPhase)

	e2e, _ := full.Phase("e2e-tests")
	assert.Equal(t, domain.RoleTester, e2e.WorkerRole)
	assert.Equal(t, 45, e2e.DefaultEstimateMinutes)

	groups := full.Groups()
	assert.Len(t, groups, 18)
	assert.Equal(t, "database", groups[6][0].Name)
	assert.Equal(t, "backend", groups[6][1].Name)
}

func TestLookupReturnsCopy(t *testing.T) {
	a, _ := Lookup(TemplateBugFix)
	a.Phases[0].MetadataTags[0] = "mutated"
	b, _ := Lookup(TemplateBugFix)
	assert.Equal(t, TagTesting, b.Phases[0].MetadataTags[0])
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name  string
		tasks []domain.Task
		want  string
	}{
		{
			name:  "bug keyword wins over everything",
			tasks: []domain.Task{task("a", "Fix crash on login form", domain.TaskTypeUI), task("b", "Create users API", domain.TaskTypeAPI)},
			want:  TemplateBugFix,
		},
		{
			name:  "refactor keyword",
			tasks: []domain.Task{task("a", "Extract billing module", domain.TaskTypeAPI)},
			want:  TemplateRefactor,
		},
		{
			name:  "script only",
			tasks: []domain.Task{task("a", "Write CLI to export reports", domain.TaskTypeScript), task("b", "Test export", domain.TaskTypeTest)},
			want:  TemplateScriptOnly,
		},
		{
			name:  "script keyword with api task is not script only",
			tasks: []domain.Task{task("a", "Add command handler", domain.TaskTypeAPI)},
			want:  TemplateBackendOnly,
		},
		{
			name:  "ui and schema",
			tasks: []domain.Task{task("a", "Build profile page", domain.TaskTypeUI), task("b", "Create profiles table", domain.TaskTypeDataSchema)},
			want:  TemplateFullStack,
		},
		{
			name:  "ui only",
			tasks: []domain.Task{task("a", "Build profile page", domain.TaskTypeUI)},
			want:  TemplateFrontendOnly,
		},
		{
			name:  "api only",
			tasks: []domain.Task{task("a", "Create orders API", domain.TaskTypeAPI)},
			want:  TemplateBackendOnly,
		},
		{
			name:  "fallback",
			tasks: []domain.Task{task("a", "Verify checkout journey", domain.TaskTypeTest)},
			want:  TemplateFullStack,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := Select(tt.tasks, nil)
			assert.Equal(t, tt.want, sel.Template.Name)
			assert.NotEmpty(t, sel.Reason)
		})
	}
}

func TestSelectKeepsBackendParallelWhenIndependent(t *testing.T) {
	tasks := []domain.Task{
		task("orders-table", "Create orders table", domain.TaskTypeDataSchema),
		task("user-api", "Expose user lookup handler", domain.TaskTypeAPI),
	}
	g, err := deps.Resolve(tasks)
	require.NoError(t, err)

	sel := Select(tasks, g)
	assert.Equal(t, TemplateBackendOnly, sel.Template.Name)
	backend, _ := sel.Template.Phase("backend")
	assert.False(t, backend.DependsOnPriorPhase)
	assert.Empty(t, sel.Sequentialized)
}

func TestSelectSequentializesBackendBehindSchema(t *testing.T) {
	tasks := []domain.Task{
		task("users-table", "Create users table", domain.TaskTypeDataSchema),
		task("user-api", "Expose user lookup handler", domain.TaskTypeAPI),
	}
	g, err := deps.Resolve(tasks)
	require.NoError(t, err)

	sel := Select(tasks, g)
	backend, _ := sel.Template.Phase("backend")
	assert.True(t, backend.DependsOnPriorPhase)
	assert.Equal(t, []string{"backend"}, sel.Sequentialized)
	assert.Len(t, sel.Template.Groups(), len(sel.Template.Phases))

	// the catalogue itself is untouched
	pristine, _ := Lookup(TemplateBackendOnly)
	p, _ := pristine.Phase("backend")
	assert.False(t, p.DependsOnPriorPhase)
}
