package scheduler

import (
	"fmt"

	"constellation/internal/ctype"
	"constellation/internal/ir"
)

// evalLambda evaluates a HigherOrder node's compiled lambda body
// (section 4.4) against one source-list element, seeding the lambda's
// own node arena with its single parameter value and its captured
// outer bindings.
func evalLambda(lambda *ir.TypedLambda, arg *ctype.Value, captured map[string]*ctype.Value) (*ctype.Value, error) {
	env := map[ir.NodeID]*ctype.Value{}
	if len(lambda.ParamNodes) > 0 {
		env[lambda.ParamNodes[0]] = arg
	}
	for name, nodeID := range lambda.CapturedBindings {
		if v, ok := captured[name]; ok {
			env[nodeID] = v
		}
	}
	return evalLambdaNode(lambda, lambda.BodyOutputID, env)
}

// evalLambdaNode recursively evaluates one node of a lambda's body
// arena, memoizing results in env (the same single-assignment
// discipline the top-level scheduler applies to DagSpec data cells,
// section 3.7).
func evalLambdaNode(lambda *ir.TypedLambda, id ir.NodeID, env map[ir.NodeID]*ctype.Value) (*ctype.Value, error) {
	if v, ok := env[id]; ok {
		return v, nil
	}
	n := lambda.Node(id)
	if n == nil {
		return nil, fmt.Errorf("lambda body references missing node %d", id)
	}

	rec := func(child ir.NodeID) (*ctype.Value, error) {
		return evalLambdaNode(lambda, child, env)
	}

	var result *ctype.Value
	var err error

	switch n.Kind {
	case ir.NodeLiteral:
		result = n.Value

	case ir.NodeMerge:
		l, e1 := rec(n.Left)
		r, e2 := rec(n.Right)
		if err = firstErr(e1, e2); err == nil {
			result = mergeValues(l, r)
		}

	case ir.NodeCoalesce:
		l, e1 := rec(n.Left)
		r, e2 := rec(n.Right)
		if err = firstErr(e1, e2); err == nil {
			result = coalesceValue(l, r)
		}

	case ir.NodeAnd:
		l, e1 := rec(n.Left)
		r, e2 := rec(n.Right)
		if err = firstErr(e1, e2); err == nil {
			result = ctype.NewBoolean(l.Bool() && r.Bool())
		}

	case ir.NodeOr:
		l, e1 := rec(n.Left)
		r, e2 := rec(n.Right)
		if err = firstErr(e1, e2); err == nil {
			result = ctype.NewBoolean(l.Bool() || r.Bool())
		}

	case ir.NodeNot:
		operand, e1 := rec(n.Operand)
		if err = e1; err == nil {
			result = ctype.NewBoolean(!operand.Bool())
		}

	case ir.NodeCompare:
		l, e1 := rec(n.Left)
		r, e2 := rec(n.Right)
		if err = firstErr(e1, e2); err == nil {
			result, err = compareValues(n.Op, l, r)
		}

	case ir.NodeArith:
		l, e1 := rec(n.Left)
		r, e2 := rec(n.Right)
		if err = firstErr(e1, e2); err == nil {
			result, err = arithValues(n.Op, l, r)
		}

	case ir.NodeNegate:
		operand, e1 := rec(n.Operand)
		if err = e1; err == nil {
			result, err = negateValue(operand)
		}

	case ir.NodeProject:
		source, e1 := rec(n.Source)
		if err = e1; err == nil {
			fields := make(map[string]*ctype.Value, len(n.Fields))
			for _, f := range n.Fields {
				if fv, ok := source.Field(f); ok {
					fields[f] = fv
				}
			}
			result = ctype.NewProduct(fields)
		}

	case ir.NodeFieldAccess:
		source, e1 := rec(n.Source)
		if err = e1; err == nil {
			fv, _ := source.Field(n.Field)
			result = fv
		}

	case ir.NodeConditional:
		cond, e1 := rec(n.Cond)
		if err = e1; err != nil {
			break
		}
		if cond.Bool() {
			result, err = rec(n.Then)
		} else {
			result, err = rec(n.Else)
		}

	case ir.NodeGuard:
		expr, e1 := rec(n.GuardExpr)
		cond, e2 := rec(n.GuardCond)
		if err = firstErr(e1, e2); err == nil {
			result = guardValue(expr, cond, n.OutputType)
		}

	case ir.NodeTagTest:
		subject, e1 := rec(n.TagSubject)
		if err = e1; err == nil {
			result = ctype.NewBoolean(subject.Tag() == n.Tag)
		}

	case ir.NodeUnpackTag:
		subject, e1 := rec(n.TagSubject)
		if err = e1; err == nil {
			result = subject.Payload()
		}

	case ir.NodeStringInterp:
		result, err = evalStringInterp(n.Parts, n.Expressions, rec)

	case ir.NodeListLit:
		items := make([]*ctype.Value, len(n.Items))
		for i, itemID := range n.Items {
			v, e := rec(itemID)
			if e != nil {
				err = e
				break
			}
			items[i] = v
		}
		if err == nil {
			var elem *ctype.Type
			if n.OutputType != nil {
				elem = n.OutputType.Elem
			}
			result = ctype.NewList(elem, items)
		}

	case ir.NodeRecordLit:
		fields := make(map[string]*ctype.Value, len(n.Order))
		for _, name := range n.Order {
			v, e := rec(n.RecordFields[name])
			if e != nil {
				err = e
				break
			}
			fields[name] = v
		}
		if err == nil {
			result = ctype.NewProduct(fields)
		}

	case ir.NodeHigherOrder:
		source, e1 := rec(n.HOSource)
		if err = e1; err != nil {
			break
		}
		captured := make(map[string]*ctype.Value, len(n.CapturedInputs))
		for name, outer := range n.CapturedInputs {
			v, e := rec(outer)
			if e != nil {
				err = e
				break
			}
			captured[name] = v
		}
		if err == nil {
			result, err = evalHigherOrder(n.Op, n.Lambda, source, captured)
		}

	case ir.NodeBranch:
		result, err = evalBranchCases(n.Cases, n.Otherwise, rec)

	default:
		err = fmt.Errorf("unsupported node kind %d in lambda body", n.Kind)
	}

	if err != nil {
		return nil, err
	}
	env[id] = result
	return result, nil
}

func evalStringInterp(parts []string, exprs []ir.NodeID, rec func(ir.NodeID) (*ctype.Value, error)) (*ctype.Value, error) {
	var out string
	for i, part := range parts {
		out += part
		if i < len(exprs) {
			v, err := rec(exprs[i])
			if err != nil {
				return nil, err
			}
			out += displayString(v)
		}
	}
	return ctype.NewString(out), nil
}

func evalBranchCases(cases []ir.BranchCase, otherwise ir.NodeID, rec func(ir.NodeID) (*ctype.Value, error)) (*ctype.Value, error) {
	for _, cs := range cases {
		cond, err := rec(cs.Cond)
		if err != nil {
			return nil, err
		}
		if cond.Bool() {
			return rec(cs.Expr)
		}
	}
	return rec(otherwise)
}

func evalHigherOrder(op string, lambda *ir.TypedLambda, source *ctype.Value, captured map[string]*ctype.Value) (*ctype.Value, error) {
	items := source.List()
	switch op {
	case "map":
		out := make([]*ctype.Value, len(items))
		for i, elem := range items {
			v, err := evalLambda(lambda, elem, captured)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		var elem *ctype.Type
		if len(out) > 0 {
			elem = out[0].Type()
		} else if source.Type() != nil {
			elem = source.Type().Elem
		}
		return ctype.NewList(elem, out), nil

	case "filter":
		var out []*ctype.Value
		for _, elem := range items {
			v, err := evalLambda(lambda, elem, captured)
			if err != nil {
				return nil, err
			}
			if v.Bool() {
				out = append(out, elem)
			}
		}
		var elemType *ctype.Type
		if source.Type() != nil {
			elemType = source.Type().Elem
		}
		return ctype.NewList(elemType, out), nil

	case "all":
		for _, elem := range items {
			v, err := evalLambda(lambda, elem, captured)
			if err != nil {
				return nil, err
			}
			if !v.Bool() {
				return ctype.NewBoolean(false), nil
			}
		}
		return ctype.NewBoolean(true), nil

	case "any":
		for _, elem := range items {
			v, err := evalLambda(lambda, elem, captured)
			if err != nil {
				return nil, err
			}
			if v.Bool() {
				return ctype.NewBoolean(true), nil
			}
		}
		return ctype.NewBoolean(false), nil

	case "sortBy":
		// Rejected at compile time (SPEC_FULL.md section C.2); reaching
		// here would mean the IR generator let one through.
		return nil, fmt.Errorf("sortBy is unsupported: should have been rejected at compile time")

	default:
		return nil, fmt.Errorf("unknown higher-order operation %q", op)
	}
}

func firstErr(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
