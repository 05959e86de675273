package engine

import "testing"

func TestTokenizeWordsAreSplitOnWhitespace(t *testing.T) {
	toks, err := tokenize(`rule in {a} out {b}`)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	want := []string{"rule", "in", "{a}", "out", "{b}"}
	if len(toks) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(toks), toks)
	}
	for i, w := range want {
		if toks[i].text != w {
			t.Fatalf("token %d: expected %q, got %q", i, w, toks[i].text)
		}
	}
}

func TestTokenizeHashPrefixedTextIsNotAComment(t *testing.T) {
	toks, err := tokenize(`map { {red} {#f00} }`)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if len(toks) != 2 {
		t.Fatalf("expected 2 tokens (map, table), got %d: %v", len(toks), toks)
	}
	if toks[1].text != "{ {red} {#f00} }" {
		t.Fatalf("expected the table body to retain the #f00 literal untouched, got %q", toks[1].text)
	}
}

func TestTokenizeNestsBracketsInsideBraces(t *testing.T) {
	toks, err := tokenize(`set y [expr {$x + 1}]`)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %v", len(toks), toks)
	}
	if toks[2].kind != tokBracket || toks[2].text != "[expr {$x + 1}]" {
		t.Fatalf("expected a single bracket token spanning the nested brace, got %+v", toks[2])
	}
}

func TestTokenizeQuotedStringKeepsEmbeddedSpace(t *testing.T) {
	toks, err := tokenize(`set status "ok go"`)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	if len(toks) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %v", len(toks), toks)
	}
	if toks[2].kind != tokString || toks[2].Inner() != "ok go" {
		t.Fatalf("expected a string token with inner text 'ok go', got %+v", toks[2])
	}
}

func TestTokenizeUnmatchedBraceIsAnError(t *testing.T) {
	if _, err := tokenize(`rule in {a`); err == nil {
		t.Fatalf("expected an error for an unterminated brace group")
	}
}

func TestTokenizeUnmatchedClosingBraceIsAnError(t *testing.T) {
	if _, err := tokenize(`set y expr}`); err == nil {
		t.Fatalf("expected an error for a stray closing brace")
	}
}
