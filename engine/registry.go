package engine

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Registry is the indexed collection of compiled rules described in
// spec.md §4.2: rules by id, and a reverse index from input tag name
// to the rule ids that tag name triggers. A Registry is built once per
// run and is read-only afterward -- workers share it by pointer, as
// the teacher's RuleEngine shares its compiled rule set across worker
// goroutines.
type Registry struct {
	order   []string
	rules   map[string]*Rule
	byInput map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rules:   make(map[string]*Rule),
		byInput: make(map[string][]string),
	}
}

// AddRule installs a compiled rule, assigning it a uuid-based id when
// the surface syntax didn't supply one (the compiler never does; ids
// are a registry-level concern so they stay unique across every file
// loaded into one registry). It is an error to add two rules under the
// same explicit id.
func (reg *Registry) AddRule(r *Rule) (string, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if _, exists := reg.rules[r.ID]; exists {
		return "", fmt.Errorf("duplicate rule id %q", r.ID)
	}
	reg.rules[r.ID] = r
	reg.order = append(reg.order, r.ID)

	for _, in := range r.In {
		reg.ensureInputEntry(in)
		reg.byInput[in] = append(reg.byInput[in], r.ID)
	}
	for _, out := range r.Out {
		reg.ensureInputEntry(out)
	}
	return r.ID, nil
}

// ensureInputEntry guarantees by_input has an entry (possibly empty)
// for name, per spec.md §3's invariant that look-ups never fail.
func (reg *Registry) ensureInputEntry(name string) {
	if _, ok := reg.byInput[name]; !ok {
		reg.byInput[name] = nil
	}
}

// Rule returns the rule with the given id.
func (reg *Registry) Rule(id string) (*Rule, bool) {
	r, ok := reg.rules[id]
	return r, ok
}

// RulesByInput returns the ordered set of rule ids whose `in` contains
// tagName exactly, or whose `in` is a ".*" pattern matching it.
func (reg *Registry) RulesByInput(tagName string) []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(candidates []string) {
		for _, id := range candidates {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	add(reg.byInput[tagName])

	// Map iteration order is randomized; collect the matching glob
	// patterns first and sort them so the order candidates are appended
	// (and thus pushed onto the evaluator's worklist) is deterministic
	// across runs, per spec.md §8 P5.
	var patterns []string
	for pattern := range reg.byInput {
		if pattern == tagName {
			continue
		}
		if matchesGlobPattern(pattern, tagName) {
			patterns = append(patterns, pattern)
		}
	}
	sort.Strings(patterns)
	for _, pattern := range patterns {
		add(reg.byInput[pattern])
	}
	return ids
}

// AllRules returns every rule id in insertion order.
func (reg *Registry) AllRules() []string {
	return append([]string{}, reg.order...)
}

// Len reports how many rules are registered.
func (reg *Registry) Len() int { return len(reg.order) }
