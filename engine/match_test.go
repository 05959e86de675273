package engine

import (
	"reflect"
	"testing"
)

func TestBindInputsExactAndMissing(t *testing.T) {
	r := &Rule{In: []string{"a", "b"}}
	bound, inOrder, missing := BindInputs(r, map[string]string{"a": "1"})
	if bound["a"] != "1" {
		t.Fatalf("expected a bound, got %v", bound)
	}
	if len(missing) != 1 || missing[0] != "b" {
		t.Fatalf("expected b missing, got %v", missing)
	}
	if inOrder[0] != "a" || inOrder[1] != "" {
		t.Fatalf("expected inOrder=[a \"\"], got %v", inOrder)
	}
}

func TestBindInputsGlobBindsEveryMatch(t *testing.T) {
	r := &Rule{In: []string{"proj.*"}}
	tags := map[string]string{"proj.cfg.lang": "go", "proj.cfg.ver": "2", "other": "x"}
	bound, inOrder, missing := BindInputs(r, tags)
	if len(missing) != 0 {
		t.Fatalf("expected no missing, got %v", missing)
	}
	want := map[string]string{"proj.cfg.lang": "go", "proj.cfg.ver": "2"}
	if !reflect.DeepEqual(bound, want) {
		t.Fatalf("expected %v, got %v", want, bound)
	}
	if inOrder[0] != "proj.cfg.lang" {
		t.Fatalf("expected first sorted match bound into inOrder, got %v", inOrder)
	}
}

func TestBindInputsGlobWithNoMatchesIsMissing(t *testing.T) {
	r := &Rule{In: []string{"proj.*"}}
	_, _, missing := BindInputs(r, map[string]string{"other": "x"})
	if len(missing) != 1 || missing[0] != "proj.*" {
		t.Fatalf("expected proj.* missing, got %v", missing)
	}
}

func TestMatchesGlobPatternStopsAtDotBoundary(t *testing.T) {
	if !matchesGlobPattern("proj.*", "proj.cfg") {
		t.Fatalf("expected proj.cfg to match proj.*")
	}
	if matchesGlobPattern("proj.*", "projector") {
		t.Fatalf("did not expect projector to match proj.* (no dot boundary)")
	}
	if matchesGlobPattern("proj.*", "proj") {
		t.Fatalf("did not expect the bare prefix itself to match")
	}
}

func TestMatchesGlobPatternExactRequiresEquality(t *testing.T) {
	if !matchesGlobPattern("a.b", "a.b") {
		t.Fatalf("expected exact match")
	}
	if matchesGlobPattern("a.b", "a.b.c") {
		t.Fatalf("did not expect a non-glob pattern to prefix-match")
	}
}
