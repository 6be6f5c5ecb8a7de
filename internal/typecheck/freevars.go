package typecheck

import "constellation/internal/ast"

// freeVars collects every VarRef name referenced by expr that is not
// bound by an enclosing Lambda parameter, used both to build the
// variable dependency graph (duplicate/circular-dependency detection,
// section 4.3 item 6) and to build HigherOrderNode.capturedInputs during
// IR generation (section 4.4).
func freeVars(expr ast.Expr, bound map[string]bool, out map[string]bool) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *ast.StringLit, *ast.IntLit, *ast.FloatLit, *ast.BoolLit:
		return
	case *ast.VarRef:
		if !bound[e.Name] {
			out[e.Name] = true
		}
	case *ast.FieldAccess:
		freeVars(e.Source, bound, out)
	case *ast.Projection:
		freeVars(e.Source, bound, out)
	case *ast.Merge:
		freeVars(e.Left, bound, out)
		freeVars(e.Right, bound, out)
	case *ast.FuncCall:
		for _, a := range e.Args {
			freeVars(a, bound, out)
		}
		for _, o := range e.Options {
			freeVars(o.Value, bound, out)
		}
	case *ast.Conditional:
		freeVars(e.Cond, bound, out)
		freeVars(e.Then, bound, out)
		freeVars(e.Else, bound, out)
	case *ast.Branch:
		for _, arm := range e.Arms {
			freeVars(arm.Cond, bound, out)
			freeVars(arm.Expr, bound, out)
		}
		freeVars(e.Otherwise, bound, out)
	case *ast.Guard:
		freeVars(e.Expr, bound, out)
		freeVars(e.Cond, bound, out)
	case *ast.Coalesce:
		freeVars(e.Left, bound, out)
		freeVars(e.Right, bound, out)
	case *ast.Lambda:
		inner := map[string]bool{}
		for k, v := range bound {
			inner[k] = v
		}
		for _, p := range e.Params {
			inner[p] = true
		}
		freeVars(e.Body, inner, out)
	case *ast.StringInterp:
		for _, sub := range e.Exprs {
			freeVars(sub, bound, out)
		}
	case *ast.UnaryOp:
		freeVars(e.Operand, bound, out)
	case *ast.BinaryOp:
		freeVars(e.Left, bound, out)
		freeVars(e.Right, bound, out)
	case *ast.ListLit:
		for _, item := range e.Items {
			freeVars(item, bound, out)
		}
	case *ast.RecordLit:
		for _, v := range e.Fields {
			freeVars(v, bound, out)
		}
	case *ast.Match:
		freeVars(e.Subject, bound, out)
		for _, arm := range e.Arms {
			inner := map[string]bool{}
			for k, v := range bound {
				inner[k] = v
			}
			if arm.Binding != "" {
				inner[arm.Binding] = true
			}
			freeVars(arm.Body, inner, out)
		}
	}
}

// FreeVars is the exported entry point used by internal/ir when building
// captured-closure bookkeeping for lambdas (section 4.4).
func FreeVars(expr ast.Expr) map[string]bool {
	out := map[string]bool{}
	freeVars(expr, map[string]bool{}, out)
	return out
}
