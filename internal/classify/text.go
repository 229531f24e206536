package classify

import (
	"regexp"
	"sort"
	"strings"
)

var (
	wordPattern        = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]*`)
	capitalizedPattern = regexp.MustCompile(`\b[A-Z][a-z][A-Za-z]*\b`)
	phrasePattern      = regexp.MustCompile(`(?i)\b([a-z][a-z0-9-]*)\s+(page|screen|form|view|component|modal|dashboard|widget|endpoint|table|flow)\b`)
)

// genericWords never count as entity nouns: verbs, connectors and the
// structural nouns shared by nearly every task.
var genericWords = toSet(
	"a", "an", "the", "and", "or", "then", "with", "for", "from", "into", "onto", "to", "of", "in", "on", "at", "by",
	"as", "is", "are", "be", "it", "its", "all", "any", "each", "new", "via", "when", "that", "this", "should", "must",
	"create", "build", "implement", "add", "update", "delete", "remove", "validate", "test", "tests", "testing",
	"deploy", "refactor", "integrate", "configure", "migrate", "fix", "write", "make", "support", "handle", "connect",
	"link", "wire", "set", "setup", "use", "get", "list", "read", "view", "edit", "show", "manage",
	"api", "apis", "endpoint", "endpoints", "ui", "form", "page", "screen", "component", "schema", "table", "database",
	"db", "model", "models", "service", "backend", "frontend", "server", "route", "routes", "flow", "unit", "e2e",
	"post", "put", "patch", "http", "https", "json", "crud", "data", "field", "fields", "operation", "operations",
)

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// singular folds a trivial English plural so "users" and "user" match.
func singular(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return strings.TrimSuffix(w, "s")
	}
	return w
}

// EntityNouns returns the distinct lower-cased, singular entity nouns
// of text in order of first appearance.
func EntityNouns(text string) []string {
	seen := make(map[string]bool)
	var nouns []string
	for _, w := range wordPattern.FindAllString(text, -1) {
		w = strings.ToLower(w)
		if len(w) < 3 || genericWords[w] {
			continue
		}
		w = singular(w)
		if genericWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		nouns = append(nouns, w)
	}
	return nouns
}

// LeadingNoun returns the first entity noun of text, or "".
func LeadingNoun(text string) string {
	if nouns := EntityNouns(text); len(nouns) > 0 {
		return nouns[0]
	}
	return ""
}

// SharesNoun reports whether a and b have an entity noun in common.
func SharesNoun(a, b []string) bool {
	set := toSet(a...)
	for _, n := range b {
		if set[n] {
			return true
		}
	}
	return false
}

// capitalizedEntities returns distinct capitalized nouns of the title
// and description, ignoring the leading word of the title.
func capitalizedEntities(title, description string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(text string, skipFirst bool) {
		locs := capitalizedPattern.FindAllStringIndex(text, -1)
		for i, loc := range locs {
			if skipFirst && i == 0 && strings.TrimSpace(text[:loc[0]]) == "" {
				continue
			}
			w := text[loc[0]:loc[1]]
			if genericWords[strings.ToLower(w)] || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
		}
	}
	add(title, true)
	add(description, true)
	return out
}

// nounPhrases returns "<noun> <kind>" phrases such as "login form",
// sorted for determinism.
func nounPhrases(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range phrasePattern.FindAllStringSubmatch(text, -1) {
		head := strings.ToLower(m[1])
		if genericWords[head] {
			continue
		}
		p := head + " " + strings.ToLower(m[2])
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// distinctMatches counts the distinct words of set that occur in text
func distinctMatches(text string, set []string) int {
	words := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(text, -1) {
		words[strings.ToLower(w)] = true
	}
	n := 0
	for _, v := range set {
		if words[v] {
			n++
		}
	}
	return n
}
