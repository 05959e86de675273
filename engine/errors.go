package engine

import "fmt"

// SyntaxError reports a malformed rule declaration: wrong argument
// count, "in" appearing after "out", mapping arity mismatch, a
// conditional "rule" inside a body, or an incomplete statement at EOF.
// It is recovered at the file level: Compile discards every rule of the
// offending file, and a caller loading several files goes on with the
// next one.
type SyntaxError struct {
	File   string
	Rule   string
	Detail string
}

func (e *SyntaxError) Error() string {
	if e.File == "" {
		return e.Detail
	}
	if e.Rule == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Detail)
	}
	return fmt.Sprintf("%s: rule %q: %s", e.File, e.Rule, e.Detail)
}

// EvalErrorKind enumerates the error taxonomy of spec.md §7 that an
// evaluator run accumulates per object (ObjectNotFound and ReaderError
// are raised outside the evaluator, by the scanner and reader
// respectively, and are not EvalErrorKind values).
type EvalErrorKind string

const (
	KindRuleBodyError  EvalErrorKind = "RuleBodyError"
	KindMissingOutput  EvalErrorKind = "MissingOutput"
	KindWriteConflict  EvalErrorKind = "WriteConflict"
	KindNonConvergence EvalErrorKind = "NonConvergence"
)

// EvalError is one entry in an evaluation's error list: the
// (trace_index, rule_reference, tag_name_or_empty, message) tuple of
// spec.md §3.
type EvalError struct {
	TraceIndex int           `yaml:"trace_index"`
	Kind       EvalErrorKind `yaml:"kind"`
	RuleID     string        `yaml:"rule_id,omitempty"`
	RuleRef    string        `yaml:"rule_ref,omitempty"`
	Tag        string        `yaml:"tag,omitempty"`
	Message    string        `yaml:"message"`
}

func (e EvalError) String() string {
	if e.Tag == "" {
		return fmt.Sprintf("[%d] %s: %s: %s", e.TraceIndex, e.Kind, e.RuleRef, e.Message)
	}
	return fmt.Sprintf("[%d] %s: %s on %s: %s", e.TraceIndex, e.Kind, e.RuleRef, e.Tag, e.Message)
}
