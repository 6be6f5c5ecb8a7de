// Package typecheck implements the semantic analyzer (section 4.3):
// scope/name resolution, bidirectional type inference, option
// validation, and exhaustiveness checking over the parsed AST, against
// a FunctionRegistry external collaborator.
package typecheck

import (
	"fmt"
	"sort"

	"constellation/internal/ast"
	"constellation/internal/errs"
	"constellation/internal/registry"
	"constellation/internal/semtype"
)

// HigherOrderOps is the closed set of operations the IR treats as
// HigherOrder nodes rather than ordinary module calls (section 3.4).
var HigherOrderOps = map[string]bool{
	"filter": true, "map": true, "all": true, "any": true, "sortBy": true,
}

type analyzer struct {
	reg registry.Registry

	typeEnv map[string]*semtype.Type
	imports map[string]string

	scope     map[string]*semtype.Type
	exprTypes map[ast.Expr]*semtype.Type

	callOptions map[*ast.FuncCall][]NormalizedOption

	errs errs.List
}

// Analyze runs the full semantic-analysis pass and returns either a
// TypedProgram or the accumulated diagnostics; as many diagnostics as
// possible are reported per pass rather than stopping at the first
// error (section 4.3, section 7).
func Analyze(prog *ast.Program, reg registry.Registry) (*TypedProgram, errs.List) {
	a := &analyzer{
		reg:         reg,
		typeEnv:     map[string]*semtype.Type{},
		imports:     map[string]string{},
		scope:       map[string]*semtype.Type{},
		exprTypes:   map[ast.Expr]*semtype.Type{},
		callOptions: map[*ast.FuncCall][]NormalizedOption{},
	}

	a.resolveImports(prog)
	a.resolveTypeDefs(prog)

	assignments := map[string]*ast.Assignment{}
	inputs := map[string]*ast.InputDecl{}
	var inputOrder []string
	var outputOrder []string
	for _, d := range prog.Decls {
		switch decl := d.(type) {
		case *ast.InputDecl:
			if _, dup := inputs[decl.Name]; dup {
				a.duplicateDefinition(decl.Name, decl.Position)
				continue
			}
			if _, dup := assignments[decl.Name]; dup {
				a.duplicateDefinition(decl.Name, decl.Position)
				continue
			}
			inputs[decl.Name] = decl
			inputOrder = append(inputOrder, decl.Name)
		case *ast.Assignment:
			if _, dup := assignments[decl.Name]; dup {
				a.duplicateDefinition(decl.Name, decl.Position)
				continue
			}
			if _, dup := inputs[decl.Name]; dup {
				a.duplicateDefinition(decl.Name, decl.Position)
				continue
			}
			assignments[decl.Name] = decl
		case *ast.OutputDecl:
			outputOrder = append(outputOrder, decl.Name)
		}
	}

	order, cycles := a.topoSort(inputOrder, assignments)
	for _, name := range cycles {
		a.errs = append(a.errs, errs.New(errs.ECircularDependency, errs.CategorySemantic,
			"circular dependency", fmt.Sprintf("variable %q participates in a circular dependency", name), nil))
	}

	for _, name := range order {
		if in, ok := inputs[name]; ok {
			t, err := a.resolveTypeExpr(in.Type)
			if err != nil {
				a.errs = append(a.errs, err)
				continue
			}
			a.scope[name] = t
			continue
		}
		if assign, ok := assignments[name]; ok {
			t := a.infer(assign.Value)
			a.scope[name] = t
		}
	}

	for _, name := range outputOrder {
		if _, ok := a.scope[name]; !ok {
			a.errs = append(a.errs, errs.New(errs.EUndefinedVar, errs.CategoryRef,
				"undefined variable", fmt.Sprintf("output %q refers to an undeclared variable", name), nil))
		}
	}

	tp := &TypedProgram{
		Program:     prog,
		Order:       order,
		VarTypes:    a.scope,
		ExprTypes:   a.exprTypes,
		Imports:     a.imports,
		TypeEnv:     a.typeEnv,
		Inputs:      inputOrder,
		Outputs:     outputOrder,
		Assignments: assignments,
		CallOptions: a.callOptions,
	}
	return tp, a.errs
}

func (a *analyzer) duplicateDefinition(name string, pos ast.Position) {
	loc := &errs.SourcePos{Line: pos.Line, Column: pos.Column}
	a.errs = append(a.errs, errs.New(errs.EDuplicateDefinition, errs.CategorySemantic,
		"duplicate definition", fmt.Sprintf("%q is defined more than once", name), loc))
}

func (a *analyzer) resolveImports(prog *ast.Program) {
	seen := map[string][]string{}
	for _, d := range prog.Decls {
		use, ok := d.(*ast.UseDecl)
		if !ok {
			continue
		}
		alias := use.Alias
		if alias == "" {
			alias = lastSegment(use.QualName)
		}
		seen[alias] = append(seen[alias], use.QualName)
		a.imports[alias] = use.QualName
	}
	for alias, candidates := range seen {
		if len(candidates) > 1 {
			a.errs = append(a.errs, errs.New(errs.EAmbiguousFunc, errs.CategoryRef,
				"ambiguous function", fmt.Sprintf("%q resolves to multiple imports: %v", alias, candidates), nil))
		}
	}
}

func lastSegment(qualName string) string {
	last := qualName
	for i := len(qualName) - 1; i >= 0; i-- {
		if qualName[i] == '.' {
			last = qualName[i+1:]
			break
		}
	}
	return last
}

func (a *analyzer) resolveTypeDefs(prog *ast.Program) {
	defs := map[string]ast.TypeExpr{}
	for _, d := range prog.Decls {
		if td, ok := d.(*ast.TypeDef); ok {
			defs[td.Name] = td.Type
		}
	}
	var resolve func(name string, stack map[string]bool) (*semtype.Type, *errs.Diagnostic)
	resolve = func(name string, stack map[string]bool) (*semtype.Type, *errs.Diagnostic) {
		if t, ok := a.typeEnv[name]; ok {
			return t, nil
		}
		te, ok := defs[name]
		if !ok {
			return nil, errs.New(errs.EUndefinedType, errs.CategoryRef, "undefined type", fmt.Sprintf("type %q is not defined", name), nil)
		}
		if stack[name] {
			return nil, errs.New(errs.ECircularDependency, errs.CategorySemantic, "circular type definition", fmt.Sprintf("type %q is circularly defined", name), nil)
		}
		stack[name] = true
		t, err := a.resolveTypeExprWithAliases(te, defs, stack)
		if err != nil {
			return nil, err
		}
		a.typeEnv[name] = t
		return t, nil
	}
	for name := range defs {
		if _, err := resolve(name, map[string]bool{}); err != nil {
			a.errs = append(a.errs, err)
		}
	}
}

func (a *analyzer) resolveTypeExpr(te ast.TypeExpr) (*semtype.Type, *errs.Diagnostic) {
	return a.resolveTypeExprWithAliases(te, nil, nil)
}

func (a *analyzer) resolveTypeExprWithAliases(te ast.TypeExpr, defs map[string]ast.TypeExpr, stack map[string]bool) (*semtype.Type, *errs.Diagnostic) {
	switch t := te.(type) {
	case *ast.NamedType:
		switch t.Name {
		case "String":
			return semtype.String, nil
		case "Int":
			return semtype.Int, nil
		case "Float":
			return semtype.Float, nil
		case "Boolean":
			return semtype.Boolean, nil
		case "Nothing":
			return semtype.Nothing, nil
		}
		if resolved, ok := a.typeEnv[t.Name]; ok {
			return resolved, nil
		}
		if defs != nil {
			if inner, ok := defs[t.Name]; ok {
				if stack != nil && stack[t.Name] {
					return nil, errs.New(errs.ECircularDependency, errs.CategorySemantic, "circular type definition", fmt.Sprintf("type %q is circularly defined", t.Name), nil)
				}
				if stack != nil {
					stack[t.Name] = true
				}
				resolved, err := a.resolveTypeExprWithAliases(inner, defs, stack)
				if err != nil {
					return nil, err
				}
				a.typeEnv[t.Name] = resolved
				return resolved, nil
			}
		}
		return nil, errs.New(errs.EUndefinedType, errs.CategoryRef, "undefined type", fmt.Sprintf("type %q is not defined", t.Name), &errs.SourcePos{Line: t.Line, Column: t.Column})
	case *ast.ListTypeExpr:
		elem, err := a.resolveTypeExprWithAliases(t.Elem, defs, stack)
		if err != nil {
			return nil, err
		}
		return semtype.List(elem), nil
	case *ast.MapTypeExpr:
		k, err := a.resolveTypeExprWithAliases(t.Key, defs, stack)
		if err != nil {
			return nil, err
		}
		v, err := a.resolveTypeExprWithAliases(t.Value, defs, stack)
		if err != nil {
			return nil, err
		}
		return semtype.Map(k, v), nil
	case *ast.OptionalTypeExpr:
		elem, err := a.resolveTypeExprWithAliases(t.Elem, defs, stack)
		if err != nil {
			return nil, err
		}
		return semtype.Optional(elem), nil
	case *ast.RecordTypeExpr:
		fields := make(map[string]*semtype.Type, len(t.Fields))
		for name, fte := range t.Fields {
			ft, err := a.resolveTypeExprWithAliases(fte, defs, stack)
			if err != nil {
				return nil, err
			}
			fields[name] = ft
		}
		return semtype.Record(fields), nil
	case *ast.UnionTypeExpr:
		members := make([]*semtype.Type, 0, len(t.Members))
		for _, mte := range t.Members {
			mt, err := a.resolveTypeExprWithAliases(mte, defs, stack)
			if err != nil {
				return nil, err
			}
			members = append(members, mt)
		}
		return semtype.Union(members...), nil
	default:
		return nil, errs.Internal("unknown type expression")
	}
}

// topoSort performs Kahn's algorithm over the variable dependency graph
// built from free-variable references (section 4.3 item 6). Returns the
// sorted order for the non-cyclic portion and the names left over in a
// cycle.
func (a *analyzer) topoSort(inputOrder []string, assignments map[string]*ast.Assignment) (order []string, cyclic []string) {
	nodes := map[string]bool{}
	for _, n := range inputOrder {
		nodes[n] = true
	}
	var assignNames []string
	for n := range assignments {
		nodes[n] = true
		assignNames = append(assignNames, n)
	}
	sort.Strings(assignNames)

	deps := map[string]map[string]bool{}
	for n := range nodes {
		deps[n] = map[string]bool{}
	}
	for _, n := range assignNames {
		for dep := range FreeVars(assignments[n].Value) {
			if nodes[dep] {
				deps[n][dep] = true
			}
		}
	}

	indegree := map[string]int{}
	reverse := map[string][]string{}
	for n, ds := range deps {
		indegree[n] = len(ds)
		for dep := range ds {
			reverse[dep] = append(reverse[dep], n)
		}
	}

	var queue []string
	for _, n := range inputOrder {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	for _, n := range assignNames {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	sort.Strings(queue)

	visited := map[string]bool{}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n] {
			continue
		}
		visited[n] = true
		order = append(order, n)
		var next []string
		for _, dependent := range reverse[n] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				next = append(next, dependent)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
	}
	for n := range nodes {
		if !visited[n] {
			cyclic = append(cyclic, n)
		}
	}
	sort.Strings(cyclic)
	return order, cyclic
}
