package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-logr/logr"

	"github.com/karlgluck/tagengine/tagstore"
	"github.com/karlgluck/tagengine/tracing"
)

// TraceEntry is one step of an evaluation's trace log: a fixed record
// of what happened when a rule was popped off the worklist, indexed by
// a strictly increasing trace_index (spec.md §3, §5).
type TraceEntry struct {
	Index  int    `yaml:"index"`
	RuleID string `yaml:"rule_id"`
	Note   string `yaml:"note"`
}

// LogEntry is one line of a per-rule or per-property log.
type LogEntry struct {
	TraceIndex int    `yaml:"trace_index"`
	Note       string `yaml:"note"`
}

// PropertyWrite records one touch of a tag by a rule: which rule and
// at which trace index, kept in ascending trace_index order per tag
// (spec.md §8 invariant P4). The same shape is reused for reads in
// Result.Readers -- a rule binding a tag as an input is a read the
// same way a rule setting it is a write.
type PropertyWrite struct {
	RuleID     string `yaml:"rule_id"`
	TraceIndex int    `yaml:"trace_index"`
}

// Result is everything spec.md §3 requires an evaluator to produce for
// one object: the updated tags, the changed subset, the trace/rule/
// property logs, accumulated errors and per-rule profiling.
type Result struct {
	ObjectPath  string                     `yaml:"object_path"`
	Initial     map[string]string          `yaml:"initial_tags"`
	Context     map[string]string          `yaml:"context"`
	Changed     map[string]string          `yaml:"changed_tags"`
	Trace       []TraceEntry               `yaml:"trace_log"`
	RuleLog     map[string][]LogEntry      `yaml:"rule_log"`
	PropertyLog map[string][]LogEntry      `yaml:"property_log"`
	Writers     map[string][]PropertyWrite `yaml:"property_writers"`
	Readers     map[string][]PropertyWrite `yaml:"property_readers"`
	Errors      []EvalError                `yaml:"errors"`
	Profiling   map[string]time.Duration   `yaml:"profiling"`
	ExceededCap bool                       `yaml:"exceeded_step_cap,omitempty"`
}

// Options configures one Evaluator.
type Options struct {
	// MaxSteps caps the number of worklist pops before the evaluator
	// gives up and reports NonConvergence (spec.md §4.5, §9: the source
	// has no cap at all, but a port should add a configurable one).
	// Zero selects a generous default.
	MaxSteps int
	Log      logr.Logger
	// Rules restricts the initial worklist to this subset of rule ids,
	// typically the output of SelectRules; rules outside the subset are
	// also never reactivated by a write. Nil seeds every registered
	// rule, per spec.md §4.5's initial state.
	Rules []string
}

const defaultMaxSteps = 100000

// Evaluator runs one object's worklist fixed-point evaluation against
// a read-only Registry. It holds no state between calls to Evaluate;
// each call owns a private evaluator state for the duration of one
// object, so a single Evaluator value can be shared (e.g. one per
// worker goroutine, constructed once with the registry snapshot).
type Evaluator struct {
	reg  *Registry
	opts Options
}

// NewEvaluator returns an Evaluator bound to reg, which must not be
// mutated for as long as the Evaluator is used (registries are built
// once and shared read-only, per spec.md §5).
func NewEvaluator(reg *Registry, opts Options) *Evaluator {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	if opts.Log.GetSink() == nil {
		opts.Log = logr.Discard()
	}
	return &Evaluator{reg: reg, opts: opts}
}

// Evaluate runs the worklist fixed point for a single object against
// its initial tags, as described in spec.md §4.5. ctx is used only to
// parent the tracing spans opened around the object and each rule's
// evaluation; cancellation is not observed mid-body, per spec.md §5.
func (e *Evaluator) Evaluate(ctx context.Context, objectPath string, initial map[string]string) *Result {
	ctx, objSpan := tracing.StartObjectSpan(ctx, objectPath)
	defer objSpan.End()

	log := e.opts.Log.WithValues("object", objectPath)

	context := make(map[string]string, len(initial))
	for k, v := range initial {
		context[k] = v
	}

	res := &Result{
		ObjectPath:  objectPath,
		Initial:     initial,
		RuleLog:     make(map[string][]LogEntry),
		PropertyLog: make(map[string][]LogEntry),
		Writers:     make(map[string][]PropertyWrite),
		Readers:     make(map[string][]PropertyWrite),
		Profiling:   make(map[string]time.Duration),
	}

	seed := e.opts.Rules
	if seed == nil {
		seed = e.reg.AllRules()
	}
	worklist := newWorklist(seed)
	steps := 0

	for !worklist.empty() {
		steps++
		if steps > e.opts.MaxSteps {
			res.ExceededCap = true
			res.Errors = append(res.Errors, EvalError{
				TraceIndex: len(res.Trace),
				Kind:       KindNonConvergence,
				Message:    fmt.Sprintf("evaluation exceeded %d steps without reaching a fixed point", e.opts.MaxSteps),
			})
			break
		}
		ruleID := worklist.pop()
		rule, ok := e.reg.Rule(ruleID)
		if !ok {
			continue // P1: every worklist item names a registered rule; defensive only.
		}
		traceIndex := len(res.Trace)

		bound, inOrder, missing := BindInputs(rule, context)
		if len(missing) > 0 {
			note := fmt.Sprintf("not evaluated because inputs are missing: %v", missing)
			res.Trace = append(res.Trace, TraceEntry{Index: traceIndex, RuleID: ruleID, Note: note})
			res.RuleLog[ruleID] = append(res.RuleLog[ruleID], LogEntry{TraceIndex: traceIndex, Note: note})
			continue
		}
		for name := range bound {
			res.Readers[name] = append(res.Readers[name], PropertyWrite{RuleID: ruleID, TraceIndex: traceIndex})
		}

		builtin := newBuiltin(rule, objectPath, func(pattern string) bool {
			return len(matchGlobAgainst(pattern, context)) > 0 || hasExact(context, pattern)
		})

		skip, guardNote := e.checkGuards(rule, bound, builtin)
		if skip {
			res.Trace = append(res.Trace, TraceEntry{Index: traceIndex, RuleID: ruleID, Note: guardNote})
			res.RuleLog[ruleID] = append(res.RuleLog[ruleID], LogEntry{TraceIndex: traceIndex, Note: guardNote})
			continue
		}

		_, ruleSpan := tracing.StartRuleSpan(ctx, rule.Ref())
		start := time.Now()
		outcome, err := rule.Body.Run(bound, inOrder, builtin)
		elapsed := time.Since(start)
		ruleSpan.End()
		res.Profiling[ruleID] += elapsed
		res.Profiling["total"] += elapsed

		var exc *ErrException
		switch {
		case errors.As(err, &exc):
			note := "exception"
			if exc.Msg != "" {
				note = fmt.Sprintf("exception: %s", exc.Msg)
			}
			res.Trace = append(res.Trace, TraceEntry{Index: traceIndex, RuleID: ruleID, Note: note})
			res.RuleLog[ruleID] = append(res.RuleLog[ruleID], LogEntry{TraceIndex: traceIndex, Note: note})
			continue
		case err != nil:
			note := err.Error()
			res.Trace = append(res.Trace, TraceEntry{Index: traceIndex, RuleID: ruleID, Note: "error: " + note})
			ee := EvalError{TraceIndex: traceIndex, Kind: KindRuleBodyError, RuleID: ruleID, RuleRef: rule.Ref(), Message: note}
			res.Errors = append(res.Errors, ee)
			res.RuleLog[ruleID] = append(res.RuleLog[ruleID], LogEntry{TraceIndex: traceIndex, Note: "error: " + note})
			continue
		}

		if len(outcome.Problems) > 0 && len(outcome.Outputs) == 0 && !outcome.Partial {
			for _, p := range outcome.Problems {
				ee := EvalError{TraceIndex: traceIndex, Kind: KindMissingOutput, RuleID: ruleID, RuleRef: rule.Ref(), Message: p}
				res.Errors = append(res.Errors, ee)
			}
			note := fmt.Sprintf("outputs discarded: %v", outcome.Problems)
			res.Trace = append(res.Trace, TraceEntry{Index: traceIndex, RuleID: ruleID, Note: note})
			res.RuleLog[ruleID] = append(res.RuleLog[ruleID], LogEntry{TraceIndex: traceIndex, Note: note})
			continue
		}

		ranNote := fmt.Sprintf("ran in %s", elapsed)
		res.Trace = append(res.Trace, TraceEntry{Index: traceIndex, RuleID: ruleID, Note: ranNote})
		res.RuleLog[ruleID] = append(res.RuleLog[ruleID], LogEntry{TraceIndex: traceIndex, Note: ranNote})

		for name, value := range outcome.Outputs {
			e.mergeOutput(res, context, worklist, ruleID, rule, traceIndex, name, value, log)
		}
	}

	res.Context = context
	res.Changed = tagstore.Diff(initial, context)
	return res
}

func hasExact(context map[string]string, pattern string) bool {
	_, ok := context[pattern]
	return ok
}

// checkGuards evaluates a rule's ordered conditions left to right,
// stopping at the first false guard (spec.md §4.5 step 2).
func (e *Evaluator) checkGuards(rule *Rule, bound map[string]string, builtin Builtin) (skip bool, note string) {
	for i, condSrc := range rule.Conditions {
		eval, err := compileExpr(condSrc)
		if err != nil {
			return true, fmt.Sprintf("condition %d is malformed: %v", i, err)
		}
		ok, err := evalBool(eval, bound, builtin)
		if err != nil || !ok {
			return true, fmt.Sprintf("condition %d requires: %s", i, condSrc)
		}
	}
	return false, ""
}

// mergeOutput applies one (tag, value) write from a rule body, per
// spec.md §4.5 step 4: conflict detection, unchanged-value suppression
// and worklist reactivation.
func (e *Evaluator) mergeOutput(res *Result, context map[string]string, wl *worklist, ruleID string, rule *Rule, traceIndex int, name, value string, log logr.Logger) {
	prior, existed := context[name]
	res.Writers[name] = append(res.Writers[name], PropertyWrite{RuleID: ruleID, TraceIndex: traceIndex})

	if existed && prior == value {
		note := "written but unchanged"
		res.Trace = append(res.Trace, TraceEntry{Index: traceIndex, RuleID: ruleID, Note: note})
		res.RuleLog[ruleID] = append(res.RuleLog[ruleID], LogEntry{TraceIndex: traceIndex, Note: note})
		res.PropertyLog[name] = append(res.PropertyLog[name], LogEntry{TraceIndex: traceIndex, Note: note})
		return // P7: a write equal to the current value never reactivates.
	}

	writes := res.Writers[name]
	for _, w := range writes[:len(writes)-1] {
		if w.RuleID != ruleID {
			note := fmt.Sprintf("conflicts with %s at step %d", w.RuleID, w.TraceIndex)
			ee := EvalError{TraceIndex: traceIndex, Kind: KindWriteConflict, RuleID: ruleID, RuleRef: rule.Ref(), Tag: name, Message: note}
			res.Errors = append(res.Errors, ee)
			res.Trace = append(res.Trace, TraceEntry{Index: traceIndex, RuleID: ruleID, Note: "write conflict: " + note})
			res.RuleLog[ruleID] = append(res.RuleLog[ruleID], LogEntry{TraceIndex: traceIndex, Note: "write conflict: " + note})
			res.PropertyLog[name] = append(res.PropertyLog[name], LogEntry{TraceIndex: traceIndex, Note: "write conflict: " + note})
			break
		}
	}

	context[name] = value
	note := fmt.Sprintf("set to %q", value)
	res.PropertyLog[name] = append(res.PropertyLog[name], LogEntry{TraceIndex: traceIndex, Note: note})
	log.V(5).Info("tag written", "tag", name, "rule", ruleID)

	for _, dependent := range e.reg.RulesByInput(name) {
		if e.opts.Rules != nil && !slices.Contains(e.opts.Rules, dependent) {
			continue // outside the selected subset: never scheduled
		}
		wl.push(dependent)
	}
}
