package engine

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/gval"
)

// RuleMeta is the read-only view of a rule a RuleSelector is matched
// against: enough to filter a ruleset before a run without exposing
// the compiled body.
type RuleMeta struct {
	ID         string
	Name       string
	SourceFile string
	Kind       Kind
}

func metaOf(r *Rule) RuleMeta {
	return RuleMeta{ID: r.ID, Name: r.DisplayName(), SourceFile: r.SourceFile, Kind: r.Kind}
}

// RuleSelector decides whether a rule should participate in a run.
// cmd/tagengine's -label-selector flag compiles one of these and the
// caller filters AllRules() through it before constructing an
// Evaluator's worklist.
type RuleSelector interface {
	Matches(meta RuleMeta) (bool, error)
}

// exprSelector is a RuleSelector backed by a gval boolean expression
// evaluated against a rule's id, name, file (its source file) and kind,
// mirroring the teacher's gval-backed label selector but over rule metadata instead
// of a free-form label set (this rule model carries no labels).
type exprSelector struct {
	src  string
	eval gval.Evaluable
}

// NewLabelSelector compiles expr, e.g. `kind == "default" && name =~ "sync.*"`,
// into a RuleSelector. The name "label selector" is kept for continuity
// with cmd/tagengine's flag, even though the expression runs over rule
// metadata fields rather than a label set.
func NewLabelSelector(expr string) (RuleSelector, error) {
	eval, err := exprLanguage.NewEvaluable(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling selector %q: %w", expr, err)
	}
	return &exprSelector{src: expr, eval: eval}, nil
}

func (s *exprSelector) Matches(meta RuleMeta) (bool, error) {
	params := map[string]interface{}{
		"id":   meta.ID,
		"name": meta.Name,
		"file": meta.SourceFile,
		"kind": meta.Kind.String(),
	}
	val, err := s.eval(context.Background(), params)
	if err != nil {
		return false, fmt.Errorf("evaluating selector %q against rule %q: %w", s.src, meta.ID, err)
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("selector %q did not evaluate to a boolean", s.src)
	}
	return b, nil
}

// SelectRules returns the subset of reg's rule ids, in registry order,
// for which every selector matches (an empty selector list matches
// everything).
func SelectRules(reg *Registry, selectors []RuleSelector) ([]string, error) {
	if len(selectors) == 0 {
		return reg.AllRules(), nil
	}
	kept := []string{}
	for _, id := range reg.AllRules() {
		r, ok := reg.Rule(id)
		if !ok {
			continue
		}
		meta := metaOf(r)
		matched := true
		for _, sel := range selectors {
			ok, err := sel.Matches(meta)
			if err != nil {
				return nil, err
			}
			if !ok {
				matched = false
				break
			}
		}
		if matched {
			kept = append(kept, id)
		}
	}
	return kept, nil
}
