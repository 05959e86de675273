package engine

import "path/filepath"

// Builtin exposes the four built-ins spec.md §4.1 makes available to a
// rule body: rule_file, rule_name, object_relative_path and has. The
// evaluator implements this once per object evaluation and hands it to
// whichever Body is currently running.
type Builtin interface {
	RuleFile() string
	RuleName() string
	ObjectRelativePath(parts ...string) string
	Has(pattern string) bool
}

// ruleBuiltin is the concrete Builtin bound to one (rule, object
// context) pair for the duration of a single body invocation.
type ruleBuiltin struct {
	rule       *Rule
	objectPath string
	hasFn      func(pattern string) bool
}

func newBuiltin(rule *Rule, objectPath string, hasFn func(string) bool) *ruleBuiltin {
	return &ruleBuiltin{rule: rule, objectPath: objectPath, hasFn: hasFn}
}

func (b *ruleBuiltin) RuleFile() string { return b.rule.SourceFile }
func (b *ruleBuiltin) RuleName() string { return b.rule.DisplayName() }

func (b *ruleBuiltin) ObjectRelativePath(parts ...string) string {
	all := append([]string{b.objectPath}, parts...)
	return filepath.Join(all...)
}

func (b *ruleBuiltin) Has(pattern string) bool {
	return b.hasFn(pattern)
}
