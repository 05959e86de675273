package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PaesslerAG/gval"
)

// varSigil matches a Tcl-style "$name" variable reference inside an
// expr block; gval resolves bare identifiers against its parameter
// map, so compiling strips the sigil before handing the text to gval.
var varSigil = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_.]*)`)

// exprLanguage is the one gval language shared by every compiled guard,
// claim and default-body expression. It is immutable after
// construction and safe to evaluate concurrently from worker
// goroutines, the same way the teacher's label selector language is
// built once and shared read-only.
var exprLanguage = gval.Full()

// exprSourceOf renders a parsed token back into the text compileExpr
// should see. A bracket token keeps its "[...]" delimiters so
// stripExprBrackets can recognize a "[expr {...}]" form; a quoted
// string keeps its quotes so gval parses it as a string literal rather
// than an unbound bareword identifier; a brace token's outer braces
// are stripped since "if {<expr>}" and "claim {<expr>}" hold the bare
// expression text directly, with no "expr" wrapper; a bareword token
// (a literal number, or a "$var" reference) is used as-is.
func exprSourceOf(t token) string {
	switch t.kind {
	case tokBracket, tokString:
		return t.text
	default:
		return t.Inner()
	}
}

// stripExprBrackets unwraps a Tcl-style "[expr {...}]" form into its
// inner expression text. Text that isn't bracketed is returned
// unchanged so a bare literal or builtin call can be compiled the same
// way.
func stripExprBrackets(src string) string {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "[expr") && strings.HasSuffix(src, "]") {
		inner := strings.TrimSuffix(strings.TrimPrefix(src, "[expr"), "]")
		inner = strings.TrimSpace(inner)
		inner = strings.TrimPrefix(inner, "{")
		inner = strings.TrimSuffix(inner, "}")
		return strings.TrimSpace(inner)
	}
	return src
}

// compileExpr compiles an expression source string (guard condition,
// claim body, or the right-hand side of a "set" statement) into a
// reusable gval.Evaluable.
func compileExpr(src string) (gval.Evaluable, error) {
	normalized := varSigil.ReplaceAllString(stripExprBrackets(src), "$1")
	eval, err := exprLanguage.NewEvaluable(normalized)
	if err != nil {
		return nil, &SyntaxError{Detail: fmt.Sprintf("invalid expression %q: %v", src, err)}
	}
	return eval, nil
}

// evalParams builds the parameter map an expression is evaluated
// against: every bound input/local variable, plus the callable "has",
// "rule_file", "rule_name" and "object_relative_path" builtins. A value
// that parses cleanly as a number is exposed as a number, any other
// value as a string, so "$count >= 0" works against a tag whose on-disk
// value is the text "-3".
func evalParams(vars map[string]string, builtin Builtin) map[string]interface{} {
	params := make(map[string]interface{}, len(vars)+1)
	for k, v := range vars {
		params[k] = coerce(v)
	}
	params["has"] = func(pattern string) bool { return builtin.Has(pattern) }
	params["rule_file"] = func() string { return builtin.RuleFile() }
	params["rule_name"] = func() string { return builtin.RuleName() }
	params["object_relative_path"] = func(parts ...string) string { return builtin.ObjectRelativePath(parts...) }
	return params
}

// coerce exposes a tag's string value as a float64 when it parses as
// one, so arithmetic expressions compiled by gval work against values
// read verbatim off disk; otherwise the value is left as a string.
func coerce(v string) interface{} {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

// evalBool evaluates a compiled expression and requires the result be
// boolean, the contract every guard ("if") and claim expression needs.
func evalBool(eval gval.Evaluable, vars map[string]string, builtin Builtin) (bool, error) {
	val, err := eval(context.Background(), evalParams(vars, builtin))
	if err != nil {
		return false, err
	}
	b, ok := val.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not evaluate to a boolean, got %T", val)
	}
	return b, nil
}

// evalValue evaluates a compiled expression for its value, rendered
// back to the tag engine's canonical string representation.
func evalValue(eval gval.Evaluable, vars map[string]string, builtin Builtin) (string, error) {
	val, err := eval(context.Background(), evalParams(vars, builtin))
	if err != nil {
		return "", err
	}
	return stringify(val), nil
}

func stringify(val interface{}) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
