package engine

import "testing"

func TestRegistryAddRuleAssignsIDAndIndexesInputs(t *testing.T) {
	reg := NewRegistry()
	r := &Rule{In: []string{"a", "b.*"}, Out: []string{"c"}, Body: &claimBody{}}
	id, err := reg.AddRule(r)
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a generated id")
	}
	if got, ok := reg.Rule(id); !ok || got != r {
		t.Fatalf("Rule(%q) did not return the added rule", id)
	}
	if ids := reg.RulesByInput("a"); len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected exact match on 'a', got %v", ids)
	}
	if ids := reg.RulesByInput("b.sub"); len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected glob match on 'b.*' for 'b.sub', got %v", ids)
	}
	if ids := reg.RulesByInput("c"); len(ids) != 0 {
		t.Fatalf("expected 'c' (an out-only name) to have an empty entry, got %v", ids)
	}
}

func TestRegistryRejectsDuplicateExplicitID(t *testing.T) {
	reg := NewRegistry()
	r1 := &Rule{ID: "fixed", Body: &claimBody{}}
	r2 := &Rule{ID: "fixed", Body: &claimBody{}}
	if _, err := reg.AddRule(r1); err != nil {
		t.Fatalf("AddRule r1: %v", err)
	}
	if _, err := reg.AddRule(r2); err == nil {
		t.Fatalf("expected an error for a duplicate explicit id")
	}
}

func TestRegistryByInputOrdersOverlappingGlobsDeterministically(t *testing.T) {
	reg := NewRegistry()
	idConfig, err := reg.AddRule(&Rule{ID: "r-config", In: []string{"config.*"}, Body: &claimBody{}})
	if err != nil {
		t.Fatalf("AddRule r-config: %v", err)
	}
	idConfigDB, err := reg.AddRule(&Rule{ID: "r-config-db", In: []string{"config.db.*"}, Body: &claimBody{}})
	if err != nil {
		t.Fatalf("AddRule r-config-db: %v", err)
	}

	want := []string{idConfig, idConfigDB}
	for i := 0; i < 20; i++ {
		got := reg.RulesByInput("config.db.host")
		if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
			t.Fatalf("run %d: expected deterministic order %v, got %v", i, want, got)
		}
	}
}

func TestRegistryAllRulesPreservesInsertionOrder(t *testing.T) {
	reg := NewRegistry()
	var ids []string
	for i := 0; i < 3; i++ {
		id, _ := reg.AddRule(&Rule{Body: &claimBody{}})
		ids = append(ids, id)
	}
	got := reg.AllRules()
	for i, id := range ids {
		if got[i] != id {
			t.Fatalf("expected insertion order %v, got %v", ids, got)
		}
	}
}
