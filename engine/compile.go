package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PaesslerAG/gval"
)

// reservedRuleAtLineStart rejects a rule body whose text contains a
// line starting with "rule": conditional definition of rules is
// forbidden (spec.md §9). This is a first-pass lexical check, not a
// semantic one, so a plain anchored regexp is enough -- there is no
// nesting or escaping to reason about.
var reservedRuleAtLineStart = regexp.MustCompile(`(?m)^\s*rule\s`)

// frame is one level of a using-context stack: the default in/out/
// conditions prepended to every rule declared inside the using block.
type frame struct {
	in         []string
	out        []string
	conditions []string
}

// Compiler parses the surface DSL (rule/using/claim/map) for one rules
// file into compiled *Rule values. It is not safe for concurrent use;
// callers compile one file per Compiler.
type Compiler struct {
	SourceFile string
	stack      []frame
}

// NewCompiler returns a compiler for the given source file name, used
// to populate Rule.SourceFile and in SyntaxError messages.
func NewCompiler(sourceFile string) *Compiler {
	return &Compiler{SourceFile: sourceFile}
}

// Compile parses src (the full contents of one rules file) into the
// rules it declares, in declaration order. A SyntaxError aborts the
// whole file, per spec.md §7; the caller decides whether to continue
// loading other files.
func (c *Compiler) Compile(src string) ([]*Rule, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, &SyntaxError{File: c.SourceFile, Detail: err.Error()}
	}
	p := &parser{c: c, tokens: tokens}
	return p.parseProgram()
}

type parser struct {
	c      *Compiler
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *parser) errf(format string, args ...interface{}) error {
	return &SyntaxError{File: p.c.SourceFile, Detail: fmt.Sprintf(format, args...)}
}

func (p *parser) parseProgram() ([]*Rule, error) {
	var rules []*Rule
	for {
		t, ok := p.peek()
		if !ok {
			return rules, nil
		}
		switch {
		case t.isKeyword("rule"):
			p.next()
			r, err := p.parseRule()
			if err != nil {
				return nil, err
			}
			rules = append(rules, r)
		case t.isKeyword("using"):
			p.next()
			using, err := p.parseUsing()
			if err != nil {
				return nil, err
			}
			rules = append(rules, using...)
		case t.isKeyword("metric"):
			// Metrics are a no-op in this port (spec.md §6): consume
			// the single argument that follows and move on.
			p.next()
			if _, ok := p.next(); !ok {
				return nil, p.errf("metric: expected an argument")
			}
		default:
			return nil, p.errf("unexpected token %q at top level", t.text)
		}
	}
}

// effectiveFrame flattens the using-context stack, outermost first, so
// a rule declared k frames deep inherits every ancestor's in/out/
// conditions as prefixes, composing rather than replacing.
func (p *parser) effectiveFrame() frame {
	var f frame
	for _, fr := range p.stack {
		f.in = append(f.in, fr.in...)
		f.out = append(f.out, fr.out...)
		f.conditions = append(f.conditions, fr.conditions...)
	}
	return f
}

func (p *parser) parseUsing() ([]*Rule, error) {
	braceTok, ok := p.next()
	if !ok || braceTok.kind != tokBrace {
		return nil, p.errf("using: expected a { in/out/if } frame")
	}
	fr, err := p.parseFrameBody(braceTok.Inner())
	if err != nil {
		return nil, err
	}
	defineTok, ok := p.next()
	if !ok || !defineTok.isKeyword("define") {
		return nil, p.errf("using: expected 'define' after frame")
	}
	bodyTok, ok := p.next()
	if !ok || bodyTok.kind != tokBrace {
		return nil, p.errf("using: expected a { ... } block after define")
	}
	innerTokens, err := tokenize(bodyTok.Inner())
	if err != nil {
		return nil, &SyntaxError{File: p.c.SourceFile, Detail: err.Error()}
	}

	p.stack = append(p.stack, fr)
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()

	inner := &parser{c: p.c, tokens: innerTokens}
	inner.stack = p.stack
	rules, err := inner.parseProgram()
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// parseFrameBody parses the "in {...} out {...} if {...}" contents of
// a using block's own frame declaration.
func (p *parser) parseFrameBody(src string) (frame, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return frame{}, &SyntaxError{File: p.c.SourceFile, Detail: err.Error()}
	}
	fp := &parser{c: p.c, tokens: tokens}
	var fr frame
	for {
		t, ok := fp.peek()
		if !ok {
			return fr, nil
		}
		switch {
		case t.isKeyword("in"):
			fp.next()
			names, err := fp.expectWordList()
			if err != nil {
				return frame{}, err
			}
			fr.in = append(fr.in, names...)
		case t.isKeyword("out"):
			fp.next()
			names, err := fp.expectWordList()
			if err != nil {
				return frame{}, err
			}
			fr.out = append(fr.out, names...)
		case t.isKeyword("if"):
			fp.next()
			exprTok, ok := fp.next()
			if !ok {
				return frame{}, fp.errf("using frame: expected an expression after 'if'")
			}
			fr.conditions = append(fr.conditions, exprSourceOf(exprTok))
		default:
			return frame{}, fp.errf("using frame: unexpected token %q", t.text)
		}
	}
}

func (p *parser) expectWordList() ([]string, error) {
	t, ok := p.next()
	if !ok || t.kind != tokBrace {
		return nil, p.errf("expected a { ... } list, got end of input")
	}
	inner, err := tokenize(t.Inner())
	if err != nil {
		return nil, &SyntaxError{File: p.c.SourceFile, Detail: err.Error()}
	}
	words := make([]string, 0, len(inner))
	for _, tok := range inner {
		words = append(words, tok.Inner())
	}
	return words, nil
}

func (p *parser) parseRule() (*Rule, error) {
	r := &Rule{SourceFile: p.c.SourceFile}

	// Optional display name: a bare word or quoted string that is not
	// one of the reserved clause keywords.
	if t, ok := p.peek(); ok && (t.kind == tokWord || t.kind == tokString) && !isClauseKeyword(t.text) {
		p.next()
		r.Name = t.Inner()
	}

	seenOut := false
	for {
		t, ok := p.peek()
		if !ok {
			return nil, p.errf("rule %q: unexpected end of input", r.Name)
		}
		if t.isKeyword("in") {
			if seenOut {
				return nil, p.errf("rule %q: 'in' may not follow 'out'", r.Name)
			}
			p.next()
			names, err := p.expectWordList()
			if err != nil {
				return nil, err
			}
			r.In = append(r.In, names...)
			continue
		}
		if t.isKeyword("out") {
			seenOut = true
			p.next()
			names, err := p.expectWordList()
			if err != nil {
				return nil, err
			}
			r.Out = append(r.Out, names...)
			continue
		}
		break
	}

	for {
		t, ok := p.peek()
		if !ok {
			return nil, p.errf("rule %q: unexpected end of input before a body", r.Name)
		}
		switch {
		case t.isKeyword("always"):
			p.next()
		case t.isKeyword("if"):
			p.next()
			exprTok, ok := p.next()
			if !ok {
				return nil, p.errf("rule %q: expected an expression after 'if'", r.Name)
			}
			r.Conditions = append(r.Conditions, exprSourceOf(exprTok))
		case t.isKeyword("when"):
			p.next()
			cmdTok, ok := p.next()
			if !ok {
				return nil, p.errf("rule %q: expected a command after 'when'", r.Name)
			}
			r.Conditions = append(r.Conditions, normalizeCommand(cmdTok.Inner()))
		default:
			goto guardsDone
		}
	}
guardsDone:

	if t, ok := p.peek(); ok && t.isKeyword("then") {
		p.next()
	}

	fr := p.effectiveFrame()
	r.In = dedupePreserveOrder(append(append([]string{}, fr.in...), r.In...))
	r.Out = append(append([]string{}, fr.out...), r.Out...) // out is exact, order preserved, not deduped per-name needed
	r.Conditions = dedupePreserveOrder(append(append([]string{}, fr.conditions...), r.Conditions...))

	bodyTok, ok := p.next()
	if !ok {
		return nil, p.errf("rule %q: missing body", r.Name)
	}

	switch {
	case bodyTok.isKeyword("claim"):
		exprTok, ok := p.next()
		if !ok {
			return nil, p.errf("rule %q: claim requires an expression", r.Name)
		}
		if len(r.Out) > 0 {
			return nil, p.errf("rule %q: a claim rule must not declare 'out'", r.Name)
		}
		exprSrc := exprSourceOf(exprTok)
		eval, err := compileExpr(exprSrc)
		if err != nil {
			return nil, err
		}
		r.Kind = KindClaim
		r.Body = &claimBody{exprSrc: exprSrc, eval: eval}

	case bodyTok.isKeyword("map"):
		tableTok, ok := p.next()
		if !ok || tableTok.kind != tokBrace {
			return nil, p.errf("rule %q: map requires a { ... } table", r.Name)
		}
		body, err := p.parseMapBody(tableTok.Inner(), len(r.In), len(r.Out))
		if err != nil {
			return nil, err
		}
		body.outs = append([]string{}, r.Out...)
		r.Kind = KindMap
		r.Body = body

	case bodyTok.kind == tokBrace:
		if reservedRuleAtLineStart.MatchString(bodyTok.Inner()) {
			return nil, p.errf("rule %q: a rule body may not define another rule", r.Name)
		}
		body, err := p.parseBlockBody(bodyTok.Inner(), r.Out)
		if err != nil {
			return nil, err
		}
		r.Kind = KindDefault
		r.Body = body

	default:
		return nil, p.errf("rule %q: unrecognized body form %q", r.Name, bodyTok.text)
	}

	return r, nil
}

func isClauseKeyword(word string) bool {
	switch word {
	case "in", "out", "if", "when", "always", "then", "claim", "map":
		return true
	default:
		return false
	}
}

// normalizeCommand rewrites a bareword command invocation such as
// "has proj.cfg.*" into the call-expression form "has(\"proj.cfg.*\")"
// that gval understands, per the built-ins of spec.md §4.1. An
// argument itself starting with "$" is passed through as a variable
// reference rather than quoted as a literal. Text that already looks
// like an expression (contains an operator or parenthesis; a ".*" glob
// suffix does not count as one) is left untouched.
func normalizeCommand(src string) string {
	src = strings.TrimSpace(src)
	if strings.ContainsAny(strings.ReplaceAll(src, ".*", ""), "()<>=!&|+-*/") {
		return src
	}
	fields := strings.Fields(src)
	if len(fields) < 2 {
		return src
	}
	name := fields[0]
	args := make([]string, 0, len(fields)-1)
	for _, a := range fields[1:] {
		if strings.HasPrefix(a, "$") {
			args = append(args, a[1:])
		} else {
			args = append(args, fmt.Sprintf("%q", a))
		}
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", "))
}

func (p *parser) parseMapBody(src string, inCols, outCols int) (*mapBody, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, &SyntaxError{File: p.c.SourceFile, Detail: err.Error()}
	}
	if len(tokens)%2 != 0 {
		return nil, p.errf("map table must contain an even number of tuples")
	}
	table := make(map[string][]string)
	var order [][]string
	for i := 0; i < len(tokens); i += 2 {
		inTup, err := tupleOf(tokens[i], inCols, p.c.SourceFile)
		if err != nil {
			return nil, err
		}
		outTup, err := tupleOf(tokens[i+1], outCols, p.c.SourceFile)
		if err != nil {
			return nil, err
		}
		table[mapKey(inTup)] = outTup
		order = append(order, inTup)
	}
	return &mapBody{table: table, order: order}, nil
}

func tupleOf(t token, width int, file string) ([]string, error) {
	if t.kind != tokBrace {
		return nil, &SyntaxError{File: file, Detail: fmt.Sprintf("map table entries must be { ... } tuples, got %q", t.text)}
	}
	inner, err := tokenize(t.Inner())
	if err != nil {
		return nil, &SyntaxError{File: file, Detail: err.Error()}
	}
	words := make([]string, 0, len(inner))
	for _, tok := range inner {
		words = append(words, tok.Inner())
	}
	if width > 0 && len(words) != width {
		return nil, &SyntaxError{File: file, Detail: fmt.Sprintf("map tuple %v has %d entries, rule declares %d", words, len(words), width)}
	}
	return words, nil
}

func mapKey(tuple []string) string {
	return strings.Join(tuple, "\x1f")
}

type stmtKind int

const (
	stmtSet stmtKind = iota
	stmtException
	stmtReturn
	stmtContinue
)

type statement struct {
	kind    stmtKind
	varName string
	expr    gval.Evaluable
	exprSrc string
	msg     string
}

func (p *parser) parseBlockBody(src string, outNames []string) (*blockBody, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, &SyntaxError{File: p.c.SourceFile, Detail: err.Error()}
	}
	bp := &parser{c: p.c, tokens: tokens}
	var stmts []statement
	for {
		t, ok := bp.peek()
		if !ok {
			break
		}
		switch {
		case t.isKeyword("set"):
			bp.next()
			nameTok, ok := bp.next()
			if !ok {
				return nil, bp.errf("set: expected a variable name")
			}
			exprTok, ok := bp.next()
			if !ok {
				return nil, bp.errf("set: expected an expression")
			}
			exprSrc := exprSourceOf(exprTok)
			eval, err := compileExpr(exprSrc)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, statement{kind: stmtSet, varName: nameTok.Inner(), expr: eval, exprSrc: exprSrc})
		case t.isKeyword("exception"):
			bp.next()
			msg := ""
			if nt, ok := bp.peek(); ok && !isStatementKeyword(nt.text) {
				bp.next()
				msg = nt.Inner()
			}
			stmts = append(stmts, statement{kind: stmtException, msg: msg})
		case t.isKeyword("return"):
			bp.next()
			stmts = append(stmts, statement{kind: stmtReturn})
		case t.isKeyword("continue"):
			bp.next()
			stmts = append(stmts, statement{kind: stmtContinue})
		default:
			return nil, bp.errf("unrecognized statement %q in rule body", t.text)
		}
	}
	return &blockBody{stmts: stmts, outNames: outNames}, nil
}

func isStatementKeyword(word string) bool {
	switch word {
	case "set", "exception", "return", "continue":
		return true
	default:
		return false
	}
}
