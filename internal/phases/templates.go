package phases

import (
	"github.com/felixgeelhaar/phaseflow/internal/domain"
)

// Metadata tags
const (
	TagPlanning       = "planning"
	TagImplementation = "implementation"
	TagTesting        = "testing"
	TagReview         = "review"
)

// Template names
const (
	TemplateBugFix       = "bug-fix"
	TemplateRefactor     = "refactor"
	TemplateScriptOnly   = "script-only"
	TemplateFullStack    = "full-stack"
	TemplateFrontendOnly = "frontend-only"
	TemplateBackendOnly  = "backend-only"
)

// Definition is one ordered step of a template.
type Definition struct {
	Name                   string            `json:"name" yaml:"name"`
	WorkerRole             domain.WorkerRole `json:"workerRole" yaml:"workerRole"`
	MetadataTags           []string          `json:"metadataTags" yaml:"metadataTags"`
	DefaultEstimateMinutes int               `json:"defaultEstimateMinutes" yaml:"defaultEstimateMinutes"`
	DependsOnPriorPhase    bool              `json:"dependsOnPriorPhase" yaml:"dependsOnPriorPhase"`
}

// HasTag reports whether the phase carries tag
func (d Definition) HasTag(tag string) bool {
	for _, t := range d.MetadataTags {
		if t == tag {
			return true
		}
	}
	return false
}

// Template is a named, ordered list of phases.
type Template struct {
	Name   string       `json:"name" yaml:"name"`
	Phases []Definition `json:"phases" yaml:"phases"`
}

// Phase returns the definition named name
func (t Template) Phase(name string) (Definition, bool) {
	for _, p := range t.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return Definition{}, false
}

// Groups splits the phases into parallel groups: a phase that does not
// depend on its predecessor joins the predecessor's group.
func (t Template) Groups() [][]Definition {
	var groups [][]Definition
	for i, p := range t.Phases {
		if i > 0 && !p.DependsOnPriorPhase {
			groups[len(groups)-1] = append(groups[len(groups)-1], p)
			continue
		}
		groups = append(groups, []Definition{p})
	}
	return groups
}

// TotalEstimate sums the default estimates
func (t Template) TotalEstimate() int {
	total := 0
	for _, p := range t.Phases {
		total += p.DefaultEstimateMinutes
	}
	return total
}

// clone copies the template so callers may adjust it
func (t Template) clone() Template {
	out := Template{Name: t.Name, Phases: make([]Definition, len(t.Phases))}
	for i, p := range t.Phases {
		p.MetadataTags = append([]string(nil), p.MetadataTags...)
		out.Phases[i] = p
	}
	return out
}

func seq(name string, role domain.WorkerRole, minutes int, tags ...string) Definition {
	return Definition{Name: name, WorkerRole: role, MetadataTags: tags, DefaultEstimateMinutes: minutes, DependsOnPriorPhase: true}
}

func par(name string, role domain.WorkerRole, minutes int, tags ...string) Definition {
	d := seq(name, role, minutes, tags...)
	d.DependsOnPriorPhase = false
	return d
}

func requirementsAnalysis(minutes int) Definition {
	return seq("requirements-analysis", domain.RoleIntegrator, minutes, TagPlanning)
}

func research(minutes int) Definition {
	return seq("research", domain.RoleIntegrator, minutes, TagPlanning)
}

var (
	uxPlanning               = seq("ux-planning", domain.RoleUIBuilder, 30, TagPlanning)
	frontendMockup           = seq("frontend-mockup", domain.RoleUIBuilder, 90, TagImplementation)
	mockupReview             = seq("mockup-review", domain.RoleIntegrator, 15, TagPlanning, TagReview)
	apiContractDesign        = seq("api-contract-design", domain.RoleAPIBuilder, 30, TagPlanning)
	database                 = seq("database", domain.RoleSchemaBuilder, 30, TagImplementation)
	backend                  = par("backend", domain.RoleAPIBuilder, 120, TagImplementation)
	backendUnitTests         = seq("backend-unit-tests", domain.RoleTester, 30, TagTesting)
	integrationContractCheck = seq("integration-contract-check", domain.RoleIntegrator, 10, TagReview)
	frontendImplementation   = seq("frontend-implementation", domain.RoleUIBuilder, 90, TagImplementation)
	frontendUnitTests        = seq("frontend-unit-tests", domain.RoleTester, 30, TagTesting)
	apiIntegration           = seq("api-integration", domain.RoleIntegrator, 45, TagImplementation)
	stateManagement          = seq("state-management", domain.RoleUIBuilder, 30, TagImplementation)
	accessibilityReview      = seq("accessibility-review", domain.RoleUIBuilder, 20, TagReview)
	e2eTests                 = seq("e2e-tests", domain.RoleTester, 45, TagTesting)
	performanceCheck         = seq("performance-check", domain.RoleTester, 20, TagTesting, TagReview)
	securityReview           = seq("security-review", domain.RoleIntegrator, 20, TagReview)
	regressionTests          = seq("regression-tests", domain.RoleTester, 30, TagTesting)
	finalReport              = seq("final-report", domain.RoleIntegrator, 10, TagPlanning)
)

var catalogue = map[string]Template{
	TemplateBugFix: {Name: TemplateBugFix, Phases: []Definition{
		seq("reproduce", domain.RoleTester, 15, TagTesting),
		seq("root-cause-analysis", domain.RoleIntegrator, 20, TagPlanning),
		seq("fix-implementation", domain.RoleAPIBuilder, 45, TagImplementation),
		regressionTests,
		finalReport,
	}},
	TemplateRefactor: {Name: TemplateRefactor, Phases: []Definition{
		seq("baseline-tests", domain.RoleTester, 20, TagTesting),
		seq("refactor-implementation", domain.RoleAPIBuilder, 60, TagImplementation),
		regressionTests,
		finalReport,
	}},
	TemplateScriptOnly: {Name: TemplateScriptOnly, Phases: []Definition{
		requirementsAnalysis(10),
		research(15),
		seq("script-design", domain.RoleScriptBuilder, 20, TagPlanning),
		seq("script-implementation", domain.RoleScriptBuilder, 45, TagImplementation),
		seq("script-tests", domain.RoleTester, 30, TagTesting),
		seq("documentation", domain.RoleIntegrator, 15, TagPlanning),
		finalReport,
	}},
	TemplateFullStack: {Name: TemplateFullStack, Phases: []Definition{
		requirementsAnalysis(15),
		research(20),
		uxPlanning,
		frontendMockup,
		mockupReview,
		apiContractDesign,
		database,
		backend,
		backendUnitTests,
		integrationContractCheck,
		frontendImplementation,
		frontendUnitTests,
		apiIntegration,
		stateManagement,
		accessibilityReview,
		e2eTests,
		performanceCheck,
		securityReview,
		finalReport,
	}},
	TemplateFrontendOnly: {Name: TemplateFrontendOnly, Phases: []Definition{
		requirementsAnalysis(15),
		research(20),
		uxPlanning,
		frontendMockup,
		mockupReview,
		frontendImplementation,
		stateManagement,
		frontendUnitTests,
		accessibilityReview,
		e2eTests,
		finalReport,
	}},
	TemplateBackendOnly: {Name: TemplateBackendOnly, Phases: []Definition{
		requirementsAnalysis(15),
		research(20),
		apiContractDesign,
		database,
		backend,
		backendUnitTests,
		integrationContractCheck,
		performanceCheck,
		securityReview,
		finalReport,
	}},
}

// Lookup returns a copy of the named template
func Lookup(name string) (Template, bool) {
	t, ok := catalogue[name]
	if !ok {
		return Template{}, false
	}
	return t.clone(), true
}

// Names lists the template names in selection order
func Names() []string {
	return []string{
		TemplateBugFix, TemplateRefactor, TemplateScriptOnly,
		TemplateFullStack, TemplateFrontendOnly, TemplateBackendOnly,
	}
}
