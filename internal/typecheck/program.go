package typecheck

import (
	"constellation/internal/ast"
	"constellation/internal/semtype"
)

// NormalizedOption is one validated, type-resolved module-call option,
// ready for internal/ir to fold into an IRModuleCallOptions.
type NormalizedOption struct {
	Name  string
	Raw   string   // literal text for duration/rate/priority options
	Expr  ast.Expr // for fallback and any option given as a full expression
	Value *semtype.Type
}

// TypedProgram is the output of internal/typecheck: the original AST
// plus every piece of information internal/ir needs to lower it,
// without mutating the AST itself.
type TypedProgram struct {
	Program *ast.Program

	// Order is the explicit topological sort over the variable
	// dependency graph (section 4.3 item 6): inputs and assignments in
	// an order where every name is preceded by everything it depends on.
	Order []string

	VarTypes  map[string]*semtype.Type
	ExprTypes map[ast.Expr]*semtype.Type

	Imports map[string]string // alias (or bare last segment) -> qualified module name
	TypeEnv map[string]*semtype.Type

	Inputs  []string
	Outputs []string

	Assignments map[string]*ast.Assignment // name -> its assignment decl
	CallOptions map[*ast.FuncCall][]NormalizedOption
}

func (tp *TypedProgram) TypeOf(e ast.Expr) *semtype.Type {
	return tp.ExprTypes[e]
}
