package tagstore

import "testing"

func TestLeafJoin(t *testing.T) {
	cases := []struct {
		name string
		dirs []string
		leaf string
	}{
		{"baz", nil, "baz"},
		{"foo.bar", []string{"foo"}, "bar"},
		{"foo.bar.qux", []string{"foo", "bar"}, "qux"},
	}
	for _, c := range cases {
		dirs, leaf := Leaf(c.name)
		if leaf != c.leaf || len(dirs) != len(c.dirs) {
			t.Fatalf("Leaf(%q) = %v, %q; want %v, %q", c.name, dirs, leaf, c.dirs, c.leaf)
		}
		for i := range dirs {
			if dirs[i] != c.dirs[i] {
				t.Fatalf("Leaf(%q) dirs = %v; want %v", c.name, dirs, c.dirs)
			}
		}
		if got := Join(c.dirs, c.leaf); got != c.name {
			t.Fatalf("Join(%v, %q) = %q; want %q", c.dirs, c.leaf, got, c.name)
		}
	}
}

func TestIsGlobAndPrefix(t *testing.T) {
	if !IsGlob("proj.cfg.*") {
		t.Fatal("expected proj.cfg.* to be a glob")
	}
	if IsGlob("proj.cfg") {
		t.Fatal("did not expect proj.cfg to be a glob")
	}
	if got := GlobPrefix("proj.cfg.*"); got != "proj.cfg" {
		t.Fatalf("GlobPrefix = %q; want proj.cfg", got)
	}
}

func TestObjectMatch(t *testing.T) {
	o := New("/tmp/obj")
	o.Tags["x"] = "41"
	o.Tags["proj.cfg.name"] = "widget"
	o.Tags["proj.cfg.version"] = "2"

	if got := o.Match("x"); len(got) != 1 || got[0] != "x" {
		t.Fatalf("Match(x) = %v", got)
	}
	if got := o.Match("missing"); got != nil {
		t.Fatalf("Match(missing) = %v; want nil", got)
	}
	got := o.Match("proj.cfg.*")
	if len(got) != 2 || got[0] != "proj.cfg.name" || got[1] != "proj.cfg.version" {
		t.Fatalf("Match(proj.cfg.*) = %v", got)
	}
}

func TestMatchTagsAgreesWithObjectMatch(t *testing.T) {
	tags := map[string]string{
		"x":                "41",
		"proj.cfg.name":    "widget",
		"proj.cfg.version": "2",
	}
	got := MatchTags(tags, "proj.cfg.*")
	if len(got) != 2 || got[0] != "proj.cfg.name" || got[1] != "proj.cfg.version" {
		t.Fatalf("MatchTags(proj.cfg.*) = %v", got)
	}
	if got := MatchTags(tags, "missing"); got != nil {
		t.Fatalf("MatchTags(missing) = %v; want nil", got)
	}
}

func TestDiff(t *testing.T) {
	initial := map[string]string{"x": "41", "y": "1"}
	current := map[string]string{"x": "41", "y": "2", "z": "3"}
	changed := Diff(initial, current)
	if len(changed) != 2 {
		t.Fatalf("Diff = %v; want 2 entries", changed)
	}
	if changed["y"] != "2" || changed["z"] != "3" {
		t.Fatalf("Diff = %v", changed)
	}
}
