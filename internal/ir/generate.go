package ir

import (
	"fmt"
	"strconv"

	"constellation/internal/ast"
	"constellation/internal/ctype"
	"constellation/internal/errs"
	"constellation/internal/optparse"
	"constellation/internal/registry"
	"constellation/internal/semtype"
	"constellation/internal/typecheck"
)

type generator struct {
	tp    *typecheck.TypedProgram
	reg   registry.Registry
	prog  *IRProgram
	scope map[string]NodeID
	errs  errs.List
}

// Generate lowers a type-checked program into an IRProgram (section
// 4.4): one or more IRNodes per assignment, variable bindings to the
// node producing each name, and a fully-populated topological order
// (node creation order: bindings are generated in
// typecheck.TypedProgram.Order, and each expression's operands are
// generated before the node that consumes them).
func Generate(tp *typecheck.TypedProgram, reg registry.Registry) (*IRProgram, errs.List) {
	g := &generator{tp: tp, reg: reg, prog: newProgram(), scope: map[string]NodeID{}}

	inputTypes := map[string]*semtype.Type{}
	for _, name := range tp.Inputs {
		inputTypes[name] = tp.VarTypes[name]
	}

	for _, name := range tp.Order {
		if st, isInput := inputTypes[name]; isInput {
			id := g.prog.addNode(IRNode{
				Kind:       NodeInput,
				InputName:  name,
				OutputType: g.lower(st, ast.Position{}),
			})
			g.scope[name] = id
			g.prog.VariableBindings[name] = id
			continue
		}
		assign, ok := tp.Assignments[name]
		if !ok {
			continue
		}
		id := g.genExpr(assign.Value)
		g.scope[name] = id
		g.prog.VariableBindings[name] = id
	}

	g.prog.DeclaredOutputs = append(g.prog.DeclaredOutputs, tp.Outputs...)
	return g.prog, g.errs
}

func (g *generator) lower(t *semtype.Type, pos ast.Position) *ctype.Type {
	ct, err := semtype.ToCType(t)
	if err != nil {
		g.errs = append(g.errs, errs.New(errs.EInternal, errs.CategoryInternal,
			"cannot lower type to a runtime representation", err.Error(),
			&errs.SourcePos{Line: pos.Line, Column: pos.Column}))
		return ctype.String
	}
	return ct
}

func (g *generator) typeOf(e ast.Expr) *semtype.Type {
	if t := g.tp.TypeOf(e); t != nil {
		return t
	}
	return semtype.Nothing
}

func (g *generator) fallback(e ast.Expr) NodeID {
	ct := g.lower(g.typeOf(e), e.Pos())
	return g.prog.addNode(IRNode{Kind: NodeLiteral, Value: ctype.Zero(ct), OutputType: ct})
}

func (g *generator) genExpr(e ast.Expr) NodeID {
	switch ex := e.(type) {
	case *ast.StringLit:
		return g.prog.addNode(IRNode{Kind: NodeLiteral, Value: ctype.NewString(ex.Value), OutputType: ctype.String})
	case *ast.IntLit:
		return g.prog.addNode(IRNode{Kind: NodeLiteral, Value: ctype.NewInt(ex.Value), OutputType: ctype.Int})
	case *ast.FloatLit:
		return g.prog.addNode(IRNode{Kind: NodeLiteral, Value: ctype.NewFloat(ex.Value), OutputType: ctype.Float})
	case *ast.BoolLit:
		return g.prog.addNode(IRNode{Kind: NodeLiteral, Value: ctype.NewBoolean(ex.Value), OutputType: ctype.Boolean})
	case *ast.VarRef:
		if id, ok := g.scope[ex.Name]; ok {
			return id
		}
		g.errs = append(g.errs, errs.Internal(fmt.Sprintf("unbound variable %q reached IR generation", ex.Name)))
		return g.fallback(ex)
	case *ast.FieldAccess:
		src := g.genExpr(ex.Source)
		return g.prog.addNode(IRNode{Kind: NodeFieldAccess, Source: src, Field: ex.Field, OutputType: g.lower(g.typeOf(ex), ex.Position)})
	case *ast.Projection:
		src := g.genExpr(ex.Source)
		return g.prog.addNode(IRNode{Kind: NodeProject, Source: src, Fields: ex.Fields, OutputType: g.lower(g.typeOf(ex), ex.Position)})
	case *ast.Merge:
		l := g.genExpr(ex.Left)
		r := g.genExpr(ex.Right)
		return g.prog.addNode(IRNode{Kind: NodeMerge, Left: l, Right: r, OutputType: g.lower(g.typeOf(ex), ex.Position)})
	case *ast.Conditional:
		cond := g.genExpr(ex.Cond)
		then := g.genExpr(ex.Then)
		els := g.genExpr(ex.Else)
		return g.prog.addNode(IRNode{Kind: NodeConditional, Cond: cond, Then: then, Else: els, OutputType: g.lower(g.typeOf(ex), ex.Position)})
	case *ast.Branch:
		return g.genBranch(ex)
	case *ast.Guard:
		expr := g.genExpr(ex.Expr)
		cond := g.genExpr(ex.Cond)
		return g.prog.addNode(IRNode{Kind: NodeGuard, GuardExpr: expr, GuardCond: cond, OutputType: g.lower(g.typeOf(ex), ex.Position)})
	case *ast.Coalesce:
		l := g.genExpr(ex.Left)
		r := g.genExpr(ex.Right)
		return g.prog.addNode(IRNode{Kind: NodeCoalesce, Left: l, Right: r, OutputType: g.lower(g.typeOf(ex), ex.Position)})
	case *ast.StringInterp:
		ids := make([]NodeID, len(ex.Exprs))
		for i, sub := range ex.Exprs {
			ids[i] = g.genExpr(sub)
		}
		return g.prog.addNode(IRNode{Kind: NodeStringInterp, Parts: ex.Parts, Expressions: ids, OutputType: ctype.String})
	case *ast.UnaryOp:
		operand := g.genExpr(ex.Operand)
		if ex.Op == "!" {
			return g.prog.addNode(IRNode{Kind: NodeNot, Operand: operand, OutputType: ctype.Boolean})
		}
		return g.prog.addNode(IRNode{Kind: NodeNegate, Op: ex.Op, Operand: operand, OutputType: g.lower(g.typeOf(ex), ex.Position)})
	case *ast.BinaryOp:
		return g.genBinary(ex)
	case *ast.ListLit:
		return g.genListLit(ex)
	case *ast.RecordLit:
		return g.genRecordLit(ex)
	case *ast.FuncCall:
		return g.genCall(ex)
	case *ast.Match:
		return g.genMatch(ex)
	case *ast.Lambda:
		g.errs = append(g.errs, errs.Internal("a lambda expression reached IR generation outside a higher-order call"))
		return g.fallback(ex)
	default:
		g.errs = append(g.errs, errs.Internal(fmt.Sprintf("unhandled expression type %T in IR generation", e)))
		return g.fallback(e)
	}
}

func (g *generator) genBinary(ex *ast.BinaryOp) NodeID {
	l := g.genExpr(ex.Left)
	r := g.genExpr(ex.Right)
	switch ex.Op {
	case "&&":
		return g.prog.addNode(IRNode{Kind: NodeAnd, Left: l, Right: r, OutputType: ctype.Boolean})
	case "||":
		return g.prog.addNode(IRNode{Kind: NodeOr, Left: l, Right: r, OutputType: ctype.Boolean})
	case "==", "!=", "<", "<=", ">", ">=":
		return g.prog.addNode(IRNode{Kind: NodeCompare, Op: ex.Op, Left: l, Right: r, OutputType: ctype.Boolean})
	default: // "-", "*", "/"
		return g.prog.addNode(IRNode{Kind: NodeArith, Op: ex.Op, Left: l, Right: r, OutputType: g.lower(g.typeOf(ex), ex.Position)})
	}
}

func (g *generator) genListLit(ex *ast.ListLit) NodeID {
	listType := g.lower(g.typeOf(ex), ex.Position)
	ids := make([]NodeID, len(ex.Items))
	allLiteral := true
	for i, item := range ex.Items {
		ids[i] = g.genExpr(item)
		if g.prog.Node(ids[i]).Kind != NodeLiteral {
			allLiteral = false
		}
	}
	if allLiteral {
		vals := make([]*ctype.Value, len(ids))
		for i, id := range ids {
			vals[i] = g.prog.Node(id).Value
		}
		return g.prog.addNode(IRNode{Kind: NodeLiteral, Value: ctype.NewList(listType.Elem, vals), OutputType: listType})
	}
	return g.prog.addNode(IRNode{Kind: NodeListLit, Items: ids, OutputType: listType})
}

func (g *generator) genRecordLit(ex *ast.RecordLit) NodeID {
	recType := g.lower(g.typeOf(ex), ex.Position)
	ids := make(map[string]NodeID, len(ex.Order))
	allLiteral := true
	for _, name := range ex.Order {
		id := g.genExpr(ex.Fields[name])
		ids[name] = id
		if g.prog.Node(id).Kind != NodeLiteral {
			allLiteral = false
		}
	}
	if allLiteral {
		vals := make(map[string]*ctype.Value, len(ids))
		for name, id := range ids {
			vals[name] = g.prog.Node(id).Value
		}
		return g.prog.addNode(IRNode{Kind: NodeLiteral, Value: ctype.NewProduct(vals), OutputType: recType})
	}
	return g.prog.addNode(IRNode{Kind: NodeRecordLit, RecordFields: ids, Order: ex.Order, OutputType: recType})
}

func (g *generator) genBranch(ex *ast.Branch) NodeID {
	cases := make([]BranchCase, len(ex.Arms))
	for i, arm := range ex.Arms {
		cases[i] = BranchCase{Cond: g.genExpr(arm.Cond), Expr: g.genExpr(arm.Expr)}
	}
	otherwise := g.genExpr(ex.Otherwise)
	return g.prog.addNode(IRNode{Kind: NodeBranch, Cases: cases, Otherwise: otherwise, OutputType: g.lower(g.typeOf(ex), ex.Position)})
}

// genMatch lowers a match expression to a Branch (SPEC_FULL section
// C.4): each non-wildcard arm becomes a (tagTest, unpackedBody) case;
// a wildcard arm (or, absent one, the last arm under exhaustiveness)
// becomes the mandatory otherwise.
func (g *generator) genMatch(ex *ast.Match) NodeID {
	subject := g.genExpr(ex.Subject)
	subjectType := g.typeOf(ex.Subject)

	var members []*semtype.Type
	switch subjectType.Kind {
	case semtype.KindUnion:
		members = subjectType.Members
	case semtype.KindNothing:
	default:
		members = []*semtype.Type{subjectType}
	}
	payloadOf := map[string]*semtype.Type{}
	for i, m := range members {
		payloadOf[semtype.SynthesizeTag(i, m)] = m
	}

	armBody := func(arm ast.MatchArm, payload *semtype.Type, isWildcard bool) NodeID {
		if arm.Binding == "" {
			return g.genExpr(arm.Body)
		}
		var bindID NodeID
		if isWildcard {
			bindID = subject
		} else {
			bindID = g.prog.addNode(IRNode{Kind: NodeUnpackTag, TagSubject: subject, Tag: arm.Tag, OutputType: g.lower(payload, arm.Position)})
		}
		saved, had := g.scope[arm.Binding]
		g.scope[arm.Binding] = bindID
		id := g.genExpr(arm.Body)
		if had {
			g.scope[arm.Binding] = saved
		} else {
			delete(g.scope, arm.Binding)
		}
		return id
	}

	var cases []BranchCase
	otherwise := NoNode
	for i, arm := range ex.Arms {
		isWildcard := arm.Tag == ""
		if isWildcard {
			otherwise = armBody(arm, nil, true)
			continue
		}
		payload := payloadOf[arm.Tag]
		isLast := i == len(ex.Arms)-1
		if otherwise == NoNode && isLast {
			// Exhaustive without an explicit wildcard: the last arm fills
			// the mandatory Otherwise slot, but its binding (if any) still
			// unpacks its own tag's payload rather than the raw subject.
			otherwise = armBody(arm, payload, false)
			continue
		}
		condID := g.prog.addNode(IRNode{Kind: NodeTagTest, TagSubject: subject, Tag: arm.Tag, OutputType: ctype.Boolean})
		exprID := armBody(arm, payload, false)
		cases = append(cases, BranchCase{Cond: condID, Expr: exprID})
	}
	if otherwise == NoNode {
		otherwise = g.fallback(ex)
	}
	return g.prog.addNode(IRNode{Kind: NodeBranch, Cases: cases, Otherwise: otherwise, OutputType: g.lower(g.typeOf(ex), ex.Position)})
}

func rawOptionText(e ast.Expr) string {
	switch v := e.(type) {
	case *ast.StringLit:
		return v.Value
	case *ast.VarRef:
		return v.Name
	case *ast.IntLit:
		return strconv.FormatInt(v.Value, 10)
	case *ast.BoolLit:
		if v.Value {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func (g *generator) genModuleOptions(ex *ast.FuncCall) IRModuleCallOptions {
	opts := IRModuleCallOptions{Backoff: "fixed", OnError: "fail"}
	for _, opt := range g.tp.CallOptions[ex] {
		switch opt.Name {
		case "retry":
			n, _ := strconv.Atoi(opt.Raw)
			opts.HasRetry, opts.Retry = true, n
		case "concurrency":
			n, _ := strconv.Atoi(opt.Raw)
			opts.HasConcurrency, opts.Concurrency = true, n
		case "timeout":
			if d, err := optparse.Duration(opt.Raw); err == nil {
				opts.HasTimeout, opts.TimeoutMs = true, d.Milliseconds()
			}
		case "delay":
			if d, err := optparse.Duration(opt.Raw); err == nil {
				opts.HasDelay, opts.DelayMs = true, d.Milliseconds()
			}
		case "cache":
			if d, err := optparse.Duration(opt.Raw); err == nil {
				opts.HasCache, opts.CacheTTLMs = true, d.Milliseconds()
			}
		case "cache_backend":
			opts.CacheBackend = rawOptionText(opt.Expr)
		case "throttle":
			if rate, err := optparse.ParseRate(opt.Raw); err == nil {
				opts.HasThrottle, opts.ThrottleCount, opts.ThrottleWindowMs = true, rate.Count, rate.Window.Milliseconds()
			}
		case "backoff":
			opts.Backoff = opt.Raw
		case "on_error":
			opts.OnError = opt.Raw
		case "priority":
			if p, err := optparse.Priority(opt.Raw); err == nil {
				opts.HasPriority, opts.Priority = true, p
			}
		case "lazy":
			opts.Lazy = rawOptionText(opt.Expr) == "true"
		case "fallback":
			opts.HasFallback, opts.Fallback = true, g.genExpr(opt.Expr)
		case "batch":
			opts.Batch = rawOptionText(opt.Expr)
		case "window":
			opts.Window = rawOptionText(opt.Expr)
		case "join":
			opts.Join = rawOptionText(opt.Expr)
		case "checkpoint":
			opts.Checkpoint = rawOptionText(opt.Expr)
		}
	}
	return opts
}

func (g *generator) genCall(ex *ast.FuncCall) NodeID {
	if typecheck.HigherOrderOps[ex.QualName] {
		return g.genHigherOrder(ex)
	}

	entry, found := g.reg.Resolve(ex.QualName, g.tp.Imports)
	if !found {
		entry, found = g.reg.Lookup(ex.QualName)
	}

	inputs := make(map[string]NodeID, len(ex.Args))
	if found {
		for i, arg := range ex.Args {
			id := g.genExpr(arg)
			if i < len(entry.Params) {
				inputs[entry.Params[i].Name] = id
			}
		}
	} else {
		for i, arg := range ex.Args {
			inputs[fmt.Sprintf("arg%d", i)] = g.genExpr(arg)
		}
	}

	moduleName := ex.QualName
	language := ""
	if found && entry.ModuleName != "" {
		moduleName = entry.ModuleName
		language = entry.Language
	}

	return g.prog.addNode(IRNode{
		Kind:         NodeModuleCall,
		ModuleName:   moduleName,
		LanguageName: language,
		Inputs:       inputs,
		Options:      g.genModuleOptions(ex),
		OutputType:   g.lower(g.typeOf(ex), ex.Position),
	})
}

// genHigherOrder compiles filter/map/all/any/sortBy into a HigherOrder
// node whose lambda is its own small IR sub-program (section 4.4);
// sortBy is accepted by the type checker (SPEC_FULL section C.2) but
// this generator reports it with E031 since no comparator lowering exists.
func (g *generator) genHigherOrder(ex *ast.FuncCall) NodeID {
	if ex.QualName == "sortBy" {
		g.errs = append(g.errs, errs.New(errs.EUnsupportedOperation, errs.CategorySemantic,
			"unsupported operation", "sortBy is accepted by the type checker but has no IR lowering", nil))
	}
	source := g.genExpr(ex.Args[0])
	lambda, _ := ex.Args[1].(*ast.Lambda)
	if lambda == nil {
		return g.fallback(ex)
	}

	captured := typecheck.FreeVars(lambda.Body)
	for _, p := range lambda.Params {
		delete(captured, p)
	}

	lg := &generator{tp: g.tp, reg: g.reg, prog: newProgram(), scope: map[string]NodeID{}}
	paramNodes := make([]NodeID, len(lambda.Params))
	paramType := g.prog.Node(source).OutputType
	var elemType *ctype.Type
	if paramType != nil && paramType.Kind == ctype.KindList {
		elemType = paramType.Elem
	}
	for i, p := range lambda.Params {
		id := lg.prog.addNode(IRNode{Kind: NodeInput, InputName: p, OutputType: elemType})
		paramNodes[i] = id
		lg.scope[p] = id
	}
	capturedBindings := map[string]NodeID{}
	capturedInputs := map[string]NodeID{}
	for name := range captured {
		outerID, ok := g.scope[name]
		if !ok {
			continue
		}
		innerID := lg.prog.addNode(IRNode{Kind: NodeInput, InputName: name, OutputType: g.prog.Node(outerID).OutputType})
		lg.scope[name] = innerID
		capturedBindings[name] = innerID
		capturedInputs[name] = outerID
	}
	bodyID := lg.genExpr(lambda.Body)
	g.errs = append(g.errs, lg.errs...)

	typedLambda := &TypedLambda{
		ParamNames:       lambda.Params,
		ParamNodes:       paramNodes,
		BodyNodes:        lg.prog.Nodes,
		BodyOutputID:     bodyID,
		CapturedBindings: capturedBindings,
	}

	return g.prog.addNode(IRNode{
		Kind:           NodeHigherOrder,
		Op:             ex.QualName,
		HOSource:       source,
		Lambda:         typedLambda,
		CapturedInputs: capturedInputs,
		OutputType:     g.lower(g.typeOf(ex), ex.Position),
	})
}
