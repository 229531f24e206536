package classify

import (
	"regexp"
	"strings"
)

// RuleSetVersion identifies the default rule table. Bump it whenever a
// pattern or weight changes so cached classifications are invalidated.
const RuleSetVersion = "2026.10.1"

// Rule is one row of the rule table: text matching Pattern contributes
// Weight under Tag.
type Rule struct {
	Tag     string
	Pattern *regexp.Regexp
	Weight  int
}

// Matches reports whether the rule fires on text
func (r Rule) Matches(text string) bool {
	return r.Pattern.MatchString(text)
}

// DurationBand adds Weight when the estimate exceeds Over minutes.
type DurationBand struct {
	Over   int
	Weight int
}

// ResearchRule maps a pattern to a research category.
type ResearchRule struct {
	Category string
	Pattern  *regexp.Regexp
	Minutes  int
	// Query is a fmt template receiving one extracted noun phrase
	Query string
	// UX rules are skipped when a UX plan already exists
	UX bool
}

// RuleSet is the complete, versioned rule table used by the classifier.
type RuleSet struct {
	Version string

	// Complexity
	Base             int
	DurationBands    []DurationBand // highest band first
	CriticalKeywords []Rule
	ExternalRef      Rule
	MutationVerb     Rule
	AndConnector     Rule // fires when count > AndThreshold
	AndThreshold     int
	ThenConnector    Rule // fires when count > ThenThreshold
	ThenThreshold    int

	// Risk
	TierWeights  map[string]int
	Security     Rule
	External     Rule
	Migration    Rule
	SensitiveUI  Rule
	Mitigations  map[string][]string
	LevelActions map[string][]string

	// Research, first match wins
	Research []ResearchRule

	// Subtasks
	ActionVerbs   []string
	UINoun        Rule
	APINoun       Rule
	CRUD          Rule
	CRUDVerbs     [4]Rule
	BreakdownMins int

	// Priority
	BusinessCritical Rule
}

// word compiles a case-insensitive, word-bounded alternation.
func word(alts ...string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

func keywordRules(weight int, keywords ...string) []Rule {
	rules := make([]Rule, 0, len(keywords))
	for _, k := range keywords {
		alts := []string{regexp.QuoteMeta(k)}
		switch k {
		case "auth":
			alts = []string{"auth", "authentication", "authorization"}
		case "real-time":
			alts = []string{"real-?time"}
		case "refactor":
			alts = []string{"refactor", "refactoring"}
		case "migration":
			alts = []string{"migration", "migrations"}
		}
		rules = append(rules, Rule{Tag: "keyword:" + k, Pattern: word(alts...), Weight: weight})
	}
	return rules
}

// DefaultRules returns the built-in rule table.
func DefaultRules() *RuleSet {
	return &RuleSet{
		Version: RuleSetVersion,

		Base: 3,
		DurationBands: []DurationBand{
			{Over: 120, Weight: 3},
			{Over: 60, Weight: 2},
			{Over: 30, Weight: 1},
		},
		CriticalKeywords: keywordRules(1,
			"auth", "security", "payment", "real-time", "websocket", "oauth",
			"encryption", "migration", "refactor", "optimization", "performance"),
		ExternalRef:   Rule{Tag: "external-reference", Pattern: word("api", "apis", "library", "libraries", "service", "services", "integration", "integrations"), Weight: 1},
		MutationVerb:  Rule{Tag: "http-mutation", Pattern: regexp.MustCompile(`\b(?:POST|PUT|PATCH|DELETE)\b`), Weight: 2},
		AndConnector:  Rule{Tag: "connectors:and", Pattern: word("and"), Weight: 1},
		AndThreshold:  2,
		ThenConnector: Rule{Tag: "sequencing:then", Pattern: word("then"), Weight: 1},
		ThenThreshold: 1,

		TierWeights: map[string]int{"Moderate": 1, "Complex": 2, "Critical": 3},
		Security: Rule{Tag: "security", Weight: 3, Pattern: word(
			"auth", "authentication", "authorization", "security", "payment", "payments",
			"oauth", "encryption", "password", "passwords", "token", "tokens", "credential", "credentials")},
		External: Rule{Tag: "external-dependency", Weight: 1, Pattern: word(
			"api", "apis", "library", "service", "services", "integration", "third-party", "sdk", "webhook", "webhooks")},
		Migration: Rule{Tag: "migration", Weight: 2, Pattern: word(
			"migrate", "migration", "migrations", "transform", "transformation", "backfill")},
		SensitiveUI: Rule{Tag: "sensitive-ui", Weight: 1, Pattern: word("checkout", "payment", "profile", "login")},
		LevelActions: map[string][]string{
			"HIGH":   {"require test-first workflow", "add 50% time buffer", "request review before merge"},
			"MEDIUM": {"add 25% time buffer"},
		},
		Mitigations: map[string][]string{
			"security":            {"run a security review of auth and payment paths"},
			"external-dependency": {"mock external dependencies in tests"},
			"migration":           {"prepare a rollback plan for data changes"},
			"sensitive-ui":        {"verify the user flow end to end"},
		},

		Research: []ResearchRule{
			{Category: "new-technology", Minutes: 30, Query: "%s getting started guide",
				Pattern: word("graphql", "grpc", "websocket", "websockets", "real-?time", "webassembly", "wasm", "kafka", "llm", "machine learning")},
			{Category: "best-practice", Minutes: 15, Query: "%s best practices",
				Pattern: word("auth", "authentication", "oauth", "security", "password", "encryption", "best practice", "best practices")},
			{Category: "integration", Minutes: 20, Query: "%s integration guide",
				Pattern: word("integrate", "integration", "third-party", "sdk", "webhook", "webhooks", "stripe", "paypal")},
			{Category: "performance", Minutes: 20, Query: "%s performance optimization",
				Pattern: word("performance", "optimize", "optimization", "cache", "caching", "latency", "scale", "scaling")},
			{Category: "migration", Minutes: 25, Query: "%s migration strategy",
				Pattern: word("migrate", "migration", "upgrade", "transform", "backfill")},
			{Category: "ux-pattern", Minutes: 15, Query: "%s UX pattern", UX: true,
				Pattern: word("wizard", "onboarding", "dashboard", "modal", "multi-step", "infinite scroll", "drag and drop")},
			{Category: "accessibility", Minutes: 15, Query: "%s accessibility requirements", UX: true,
				Pattern: word("accessible", "accessibility", "a11y", "wcag", "screen reader", "keyboard navigation")},
			{Category: "missing-component-library", Minutes: 10, Query: "%s component library",
				Pattern: word("date ?picker", "carousel", "rich text", "chart", "charts", "calendar", "data ?grid")},
			{Category: "design-guidelines", Minutes: 10, Query: "%s design guidelines",
				Pattern: word("design system", "style ?guide", "branding", "theme", "theming", "design guidelines")},
		},

		ActionVerbs: []string{
			"create", "build", "implement", "add", "update", "delete", "remove", "validate",
			"test", "deploy", "refactor", "integrate", "configure", "migrate", "fix",
		},
		UINoun:  Rule{Tag: "ui", Pattern: word("ui", "form", "forms", "page", "pages", "screen", "screens", "view", "views", "component", "components", "frontend")},
		APINoun: Rule{Tag: "api", Pattern: word("api", "apis", "endpoint", "endpoints", "backend", "server", "route", "routes")},
		CRUD:    Rule{Tag: "crud", Pattern: word("crud")},
		CRUDVerbs: [4]Rule{
			{Tag: "create", Pattern: word("create", "add")},
			{Tag: "read", Pattern: word("read", "view", "list", "get")},
			{Tag: "update", Pattern: word("update", "edit")},
			{Tag: "delete", Pattern: word("delete", "remove")},
		},
		BreakdownMins: 90,

		BusinessCritical: Rule{Tag: "business-critical", Weight: 30, Pattern: word("login", "checkout", "payment", "payments", "core", "critical")},
	}
}

// countMatches returns how many times the rule's pattern occurs in text
func countMatches(r Rule, text string) int {
	return len(r.Pattern.FindAllStringIndex(text, -1))
}
