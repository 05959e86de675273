package engine

import (
	"fmt"

	"github.com/PaesslerAG/gval"
)

// claimBody is the compiled form of `claim <boolean-expr>`: it
// produces no outputs and fails (a RuleBodyError, once normalized by
// the evaluator) when the expression is false.
type claimBody struct {
	exprSrc string
	eval    gval.Evaluable
}

func (b *claimBody) Run(inputs map[string]string, _ []string, builtin Builtin) (Outcome, error) {
	ok, err := evalBool(b.eval, inputs, builtin)
	if err != nil {
		return Outcome{}, fmt.Errorf("evaluating claim: %w", err)
	}
	if !ok {
		return Outcome{}, &ErrClaimViolated{Expr: b.exprSrc}
	}
	return Outcome{}, nil
}

// mapBody is the compiled form of `map { {in...} {out...} ... }`: a
// literal lookup table keyed by the ordered tuple of input values.
type mapBody struct {
	table map[string][]string
	order [][]string
	outs  []string
}

func (b *mapBody) Run(inputs map[string]string, inOrder []string, _ Builtin) (Outcome, error) {
	tuple := make([]string, len(inOrder))
	for i, name := range inOrder {
		tuple[i] = inputs[name]
	}
	out, ok := b.table[mapKey(tuple)]
	if !ok {
		return Outcome{}, &ErrException{Msg: fmt.Sprintf("no mapping for input %v", tuple)}
	}
	outputs := make(map[string]string, len(out))
	for i, name := range b.outs {
		if i < len(out) {
			outputs[name] = out[i]
		}
	}
	return Outcome{Outputs: outputs}, nil
}

// blockBody is the compiled form of a default rule's code block: an
// ordered statement list whose final local-variable state supplies the
// out patterns' values.
type blockBody struct {
	stmts    []statement
	outNames []string
}

func (b *blockBody) Run(inputs map[string]string, _ []string, builtin Builtin) (Outcome, error) {
	local := make(map[string]string, len(inputs)+len(b.stmts))
	for k, v := range inputs {
		local[k] = v
	}

	partial := false
stmtLoop:
	for _, st := range b.stmts {
		switch st.kind {
		case stmtSet:
			val, err := evalValue(st.expr, local, builtin)
			if err != nil {
				return Outcome{}, fmt.Errorf("evaluating `set %s`: %w", st.varName, err)
			}
			local[st.varName] = val
		case stmtException:
			return Outcome{}, &ErrException{Msg: st.msg}
		case stmtReturn:
			break stmtLoop
		case stmtContinue:
			partial = true
			break stmtLoop
		}
	}

	outputs := make(map[string]string, len(b.outNames))
	var problems []string
	for _, name := range b.outNames {
		if v, ok := local[name]; ok {
			outputs[name] = v
		} else {
			problems = append(problems, fmt.Sprintf("Didn't set output {%s}", name))
		}
	}
	if !partial && len(problems) > 0 {
		return Outcome{Problems: problems}, nil
	}
	return Outcome{Outputs: outputs, Problems: problems, Partial: partial}, nil
}
