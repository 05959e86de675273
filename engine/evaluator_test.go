package engine

import (
	"context"
	"testing"
)

func compileRules(t *testing.T, src string) *Registry {
	t.Helper()
	rules, err := NewCompiler("rules.tag").Compile(src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	reg := NewRegistry()
	for _, r := range rules {
		if _, err := reg.AddRule(r); err != nil {
			t.Fatalf("add rule: %v", err)
		}
	}
	return reg
}

func TestNoRulesNoChange(t *testing.T) {
	reg := NewRegistry()
	ev := NewEvaluator(reg, Options{})
	res := ev.Evaluate(context.Background(), "/obj", map[string]string{"k": "v"})
	if len(res.Changed) != 0 {
		t.Fatalf("expected no changes, got %v", res.Changed)
	}
}

func TestSimpleDefaultRule(t *testing.T) {
	reg := compileRules(t, `using { in {x} } define {
		rule out {y} always { set y [expr {$x + 1}] }
	}`)
	ev := NewEvaluator(reg, Options{})
	res := ev.Evaluate(context.Background(), "/obj", map[string]string{"x": "41"})
	if res.Changed["y"] != "42" {
		t.Fatalf("expected y=42, got %v", res.Changed)
	}
}

func TestEvaluateRecordsReadersEvenForReadOnlyTags(t *testing.T) {
	reg := compileRules(t, `using { in {x} } define {
		rule out {y} always { set y [expr {$x + 1}] }
	}`)
	ev := NewEvaluator(reg, Options{})
	res := ev.Evaluate(context.Background(), "/obj", map[string]string{"x": "41"})

	readers, ok := res.Readers["x"]
	if !ok || len(readers) != 1 {
		t.Fatalf("expected one reader of x, got %v", res.Readers)
	}
	if _, wrote := res.Writers["x"]; wrote {
		t.Fatalf("x is never written, expected no writer entries, got %v", res.Writers["x"])
	}
}

func TestMappingRuleMissingKeyProducesNoOutput(t *testing.T) {
	reg := compileRules(t, `rule in {color} out {hex} map { {red} {#f00} {green} {#0f0} }`)
	ev := NewEvaluator(reg, Options{})
	res := ev.Evaluate(context.Background(), "/obj", map[string]string{"color": "blue"})
	if _, ok := res.Changed["hex"]; ok {
		t.Fatalf("expected no hex output, got %v", res.Changed)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", res.Errors)
	}
}

func TestClaimViolationRecordsError(t *testing.T) {
	reg := compileRules(t, `rule in {count} always claim {$count >= 0}`)
	ev := NewEvaluator(reg, Options{})
	res := ev.Evaluate(context.Background(), "/obj", map[string]string{"count": "-3"})
	if len(res.Changed) != 0 {
		t.Fatalf("expected no tag changes, got %v", res.Changed)
	}
	if len(res.Errors) != 1 || res.Errors[0].Kind != KindRuleBodyError {
		t.Fatalf("expected one RuleBodyError, got %v", res.Errors)
	}
}

func TestWriteConflictUpdatesToLatestAndRecordsError(t *testing.T) {
	reg := compileRules(t, `
		rule in {a} out {color} always { set color "red" }
		rule in {b} out {color} always { set color "blue" }
	`)
	ev := NewEvaluator(reg, Options{})
	res := ev.Evaluate(context.Background(), "/obj", map[string]string{"a": "1", "b": "1"})
	if res.Context["color"] != "blue" {
		t.Fatalf("expected color=blue (latest writer), got %v", res.Context["color"])
	}
	found := false
	for _, e := range res.Errors {
		if e.Kind == KindWriteConflict {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a WriteConflict error, got %v", res.Errors)
	}
}

func TestReactivation(t *testing.T) {
	reg := compileRules(t, `
		rule in {x} out {y} always { set y [expr {$x * 2}] }
		rule in {y} out {z} always { set z [expr {$y + 1}] }
	`)
	ev := NewEvaluator(reg, Options{})
	res := ev.Evaluate(context.Background(), "/obj", map[string]string{"x": "5"})
	if res.Changed["y"] != "10" || res.Changed["z"] != "11" {
		t.Fatalf("expected y=10 z=11, got %v", res.Changed)
	}
}

func TestSecondEvaluationIsFixedPoint(t *testing.T) {
	reg := compileRules(t, `using { in {x} } define {
		rule out {y} always { set y [expr {$x + 1}] }
	}`)
	ev := NewEvaluator(reg, Options{})
	first := ev.Evaluate(context.Background(), "/obj", map[string]string{"x": "41"})
	second := ev.Evaluate(context.Background(), "/obj", first.Context)
	if len(second.Changed) != 0 {
		t.Fatalf("expected fixed point on second run, got %v", second.Changed)
	}
}
