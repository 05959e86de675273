// Package engine implements the declarative rule sublanguage (rule,
// using, claim, map), the rule registry, and the worklist fixed-point
// evaluator that applies a ruleset to one object's tags.
package engine

import "fmt"

// Kind distinguishes the three rule body forms of the surface syntax.
type Kind int

const (
	// KindDefault rules run a small statement block; outputs are the
	// values of local variables whose names match an out pattern.
	KindDefault Kind = iota
	// KindClaim rules assert a boolean expression and produce no
	// outputs.
	KindClaim
	// KindMap rules look up the input tuple in a literal table.
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindClaim:
		return "claim"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Body is the compiled, callable form of a rule's action. The three
// surface forms (code block, claim expression, mapping table) each get
// their own implementation; none of them require a general-purpose
// interpreter.
type Body interface {
	// Run executes the body against the bound input variables, keyed by
	// concrete tag name. inOrder lists those same tag names in the
	// rule's declared `in` order, which a map rule needs to reconstruct
	// its lookup tuple. Builtin exposes the four built-ins described in
	// spec.md §4.1.
	Run(inputs map[string]string, inOrder []string, builtin Builtin) (Outcome, error)
}

// Outcome normalizes the result of running a rule body, per spec.md
// §4.1's five outcomes. Outcomes 1 and 2 (normal completion, explicit
// return) are represented identically: Outputs holds what the out
// patterns matched. Outcome 3 (exception) is signaled by returning
// ErrException from Run, not through Outcome. Outcome 4 (body error)
// is any other non-nil error from Run. Outcome 5 ("continue") is
// Partial set to true.
type Outcome struct {
	Outputs  map[string]string
	Problems []string
	Partial  bool
}

// ErrException is returned by a Body's Run to signal the "exception"
// outcome: the input tuple does not apply to this body. Outputs are
// discarded and no error is recorded; Msg, if non-empty, is logged.
type ErrException struct {
	Msg string
}

func (e *ErrException) Error() string {
	if e.Msg == "" {
		return "exception"
	}
	return fmt.Sprintf("exception: %s", e.Msg)
}

// ErrClaimViolated is returned by a claim Body when its expression
// evaluates false.
type ErrClaimViolated struct {
	Expr string
}

func (e *ErrClaimViolated) Error() string {
	return fmt.Sprintf("Claim violated: %s", e.Expr)
}

// Rule is a compiled rule record, the in-memory counterpart of the
// surface `rule ... in {...} out {...} if ... then <body>` declaration.
type Rule struct {
	ID         string
	Name       string
	SourceFile string
	In         []string
	Out        []string
	Conditions []string
	Kind       Kind
	Body       Body
}

// DisplayName returns Name, defaulting to "Unnamed Rule (<id>)" the way
// spec.md §3 requires.
func (r *Rule) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("Unnamed Rule (%s)", r.ID)
}

// Ref renders the rule reference form used by the result renderer:
// <id>."<name>".
func (r *Rule) Ref() string {
	return fmt.Sprintf(`%s."%s"`, r.ID, r.DisplayName())
}

// dedupePreserveOrder removes duplicate strings, keeping the first
// occurrence's position -- the ordering rule spec.md §3 requires for a
// rule's In and Conditions.
func dedupePreserveOrder(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
