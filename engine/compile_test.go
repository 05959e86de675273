package engine

import "testing"

func TestCompileUsingFrameComposesPrefixes(t *testing.T) {
	rules, err := NewCompiler("f.tag").Compile(`
		using { in {proj} out {status} } define {
			rule "derive" in {extra} always { set status "ok" }
		}
	`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	r := rules[0]
	if len(r.In) != 2 || r.In[0] != "proj" || r.In[1] != "extra" {
		t.Fatalf("expected in=[proj extra], got %v", r.In)
	}
	if len(r.Out) != 1 || r.Out[0] != "status" {
		t.Fatalf("expected out=[status], got %v", r.Out)
	}
}

func TestCompileRejectsInAfterOut(t *testing.T) {
	_, err := NewCompiler("f.tag").Compile(`rule out {y} in {x} always { set y "1" }`)
	if err == nil {
		t.Fatalf("expected a SyntaxError for 'in' after 'out'")
	}
}

func TestCompileRejectsMapArityMismatch(t *testing.T) {
	_, err := NewCompiler("f.tag").Compile(`rule in {a, b} out {c} map { {x} {y} }`)
	if err == nil {
		t.Fatalf("expected a SyntaxError for arity mismatch")
	}
}

func TestCompileRejectsConditionalRuleInsideBody(t *testing.T) {
	_, err := NewCompiler("f.tag").Compile(`rule out {y} always { rule in {z} out {w} always { set w "1" } }`)
	if err == nil {
		t.Fatalf("expected a SyntaxError for a rule defined inside a rule body")
	}
}

func TestCompileDedupesInAndConditions(t *testing.T) {
	rules, err := NewCompiler("f.tag").Compile(`rule in {a} in {a} always if {$a > 0} if {$a > 0} { set y "1" }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	r := rules[0]
	if len(r.In) != 1 {
		t.Fatalf("expected deduped in, got %v", r.In)
	}
	if len(r.Conditions) != 1 {
		t.Fatalf("expected deduped conditions, got %v", r.Conditions)
	}
}

func TestCompileClaimMustNotDeclareOut(t *testing.T) {
	_, err := NewCompiler("f.tag").Compile(`rule in {x} out {y} always claim {$x > 0}`)
	if err == nil {
		t.Fatalf("expected a SyntaxError for a claim rule with 'out'")
	}
}
