package typecheck

import (
	"fmt"
	"strconv"

	"constellation/internal/ast"
	"constellation/internal/errs"
	"constellation/internal/optparse"
	"constellation/internal/semtype"
)

func posOf(e ast.Expr) *errs.SourcePos {
	if e == nil {
		return nil
	}
	p := e.Pos()
	return &errs.SourcePos{Line: p.Line, Column: p.Column}
}

func (a *analyzer) errAt(code errs.Code, cat errs.Category, title, detail string, pos *errs.SourcePos) {
	a.errs = append(a.errs, errs.New(code, cat, title, detail, pos))
}

// infer performs bidirectional type inference over one expression node,
// recording its resolved type in a.exprTypes and returning it. On error
// it records a diagnostic and returns semtype.Nothing, which is a
// subtype of everything so the mistake does not cascade into unrelated
// downstream diagnostics (section 4.3, section 7).
func (a *analyzer) infer(e ast.Expr) *semtype.Type {
	if e == nil {
		return semtype.Nothing
	}
	t := a.inferRaw(e)
	if t == nil {
		t = semtype.Nothing
	}
	a.exprTypes[e] = t
	return t
}

func (a *analyzer) inferRaw(e ast.Expr) *semtype.Type {
	switch ex := e.(type) {
	case *ast.StringLit:
		return semtype.String
	case *ast.IntLit:
		return semtype.Int
	case *ast.FloatLit:
		return semtype.Float
	case *ast.BoolLit:
		return semtype.Boolean
	case *ast.VarRef:
		if t, ok := a.scope[ex.Name]; ok {
			return t
		}
		a.errAt(errs.EUndefinedVar, errs.CategoryRef, "undefined variable",
			fmt.Sprintf("%q is not defined", ex.Name), posOf(ex))
		return semtype.Nothing
	case *ast.FieldAccess:
		return a.inferFieldAccess(ex)
	case *ast.Projection:
		return a.inferProjection(ex)
	case *ast.Merge:
		l := a.infer(ex.Left)
		r := a.infer(ex.Right)
		return a.mergeTypes(l, r, ex)
	case *ast.FuncCall:
		return a.inferCall(ex)
	case *ast.Conditional:
		ct := a.infer(ex.Cond)
		if !ct.Equal(semtype.Boolean) && ct.Kind != semtype.KindNothing {
			a.errAt(errs.ETypeMismatch, errs.CategoryType, "condition must be Boolean",
				fmt.Sprintf("if-condition has type %s, expected Boolean", ct), posOf(ex.Cond))
		}
		tt := a.infer(ex.Then)
		et := a.infer(ex.Else)
		return semtype.Join(tt, et)
	case *ast.Branch:
		return a.inferBranch(ex)
	case *ast.Guard:
		et := a.infer(ex.Expr)
		ct := a.infer(ex.Cond)
		if !ct.Equal(semtype.Boolean) && ct.Kind != semtype.KindNothing {
			a.errAt(errs.ETypeMismatch, errs.CategoryType, "guard condition must be Boolean",
				fmt.Sprintf("guard condition has type %s, expected Boolean", ct), posOf(ex.Cond))
		}
		return semtype.Optional(et)
	case *ast.Coalesce:
		lt := a.infer(ex.Left)
		rt := a.infer(ex.Right)
		if lt.Kind != semtype.KindOptional && lt.Kind != semtype.KindNothing {
			a.errAt(errs.EIncompatibleOp, errs.CategoryType, "coalesce requires an optional left operand",
				fmt.Sprintf("left side of ?? has type %s, expected an Optional<T>", lt), posOf(ex.Left))
			return rt
		}
		if lt.Kind == semtype.KindNothing {
			return rt
		}
		return semtype.Join(lt.Elem, rt)
	case *ast.Lambda:
		return a.inferLambda(ex, nil)
	case *ast.StringInterp:
		for _, sub := range ex.Exprs {
			a.infer(sub)
		}
		return semtype.String
	case *ast.UnaryOp:
		return a.inferUnary(ex)
	case *ast.BinaryOp:
		return a.inferBinary(ex)
	case *ast.ListLit:
		return a.inferListLit(ex)
	case *ast.RecordLit:
		return a.inferRecordLit(ex)
	case *ast.Match:
		return a.inferMatch(ex)
	default:
		a.errAt(errs.EInternal, errs.CategoryInternal, "unhandled expression", fmt.Sprintf("%T", e), posOf(e))
		return semtype.Nothing
	}
}

func (a *analyzer) inferFieldAccess(ex *ast.FieldAccess) *semtype.Type {
	st := a.infer(ex.Source)
	return a.fieldType(st, ex.Field, ex)
}

func (a *analyzer) fieldType(st *semtype.Type, field string, ex ast.Expr) *semtype.Type {
	switch st.Kind {
	case semtype.KindNothing:
		return semtype.Nothing
	case semtype.KindRecord, semtype.KindOpenRecord:
		if ft, ok := st.Fields[field]; ok {
			return ft
		}
		a.errAt(errs.EInvalidField, errs.CategoryRef, "no such field",
			fmt.Sprintf("record has no field %q", field), posOf(ex))
		return semtype.Nothing
	case semtype.KindList:
		return semtype.List(a.fieldType(st.Elem, field, ex))
	default:
		a.errAt(errs.EInvalidField, errs.CategoryType, "field access on non-record",
			fmt.Sprintf("cannot access field %q on %s", field, st), posOf(ex))
		return semtype.Nothing
	}
}

func (a *analyzer) inferProjection(ex *ast.Projection) *semtype.Type {
	st := a.infer(ex.Source)
	return a.projectType(st, ex.Fields, ex)
}

func (a *analyzer) projectType(st *semtype.Type, fields []string, ex ast.Expr) *semtype.Type {
	switch st.Kind {
	case semtype.KindNothing:
		return semtype.Nothing
	case semtype.KindList:
		return semtype.List(a.projectType(st.Elem, fields, ex))
	case semtype.KindRecord, semtype.KindOpenRecord:
		out := make(map[string]*semtype.Type, len(fields))
		for _, f := range fields {
			ft, ok := st.Fields[f]
			if !ok {
				a.errAt(errs.EInvalidProject, errs.CategoryRef, "no such field",
					fmt.Sprintf("record has no field %q to project", f), posOf(ex))
				ft = semtype.Nothing
			}
			out[f] = ft
		}
		return semtype.Record(out)
	default:
		a.errAt(errs.EInvalidProject, errs.CategoryType, "projection on non-record",
			fmt.Sprintf("cannot project fields from %s", st), posOf(ex))
		return semtype.Nothing
	}
}

// mergeTypes implements the "+" merge/arithmetic overload (section 3.4,
// SPEC_FULL section C.3): Record+Record merges fields right-biased,
// List<Record>+Record broadcasts the record across the list (and vice
// versa), List+List merges element-wise, and numeric/string operands
// fall back to arithmetic addition / concatenation.
func (a *analyzer) mergeTypes(l, r *semtype.Type, ex ast.Expr) *semtype.Type {
	if l.Kind == semtype.KindNothing {
		return r
	}
	if r.Kind == semtype.KindNothing {
		return l
	}
	if l.Kind == semtype.KindRecord && r.Kind == semtype.KindRecord {
		out := make(map[string]*semtype.Type, len(l.Fields)+len(r.Fields))
		for name, ft := range l.Fields {
			out[name] = ft
		}
		for name, ft := range r.Fields {
			out[name] = ft // right wins field conflicts
		}
		return semtype.Record(out)
	}
	if l.Kind == semtype.KindList && r.Kind == semtype.KindRecord {
		return semtype.List(a.mergeTypes(l.Elem, r, ex))
	}
	if l.Kind == semtype.KindRecord && r.Kind == semtype.KindList {
		return semtype.List(a.mergeTypes(l, r.Elem, ex))
	}
	if l.Kind == semtype.KindList && r.Kind == semtype.KindList {
		return semtype.List(a.mergeTypes(l.Elem, r.Elem, ex))
	}
	if l.Kind == semtype.KindString && r.Kind == semtype.KindString {
		return semtype.String
	}
	if isNumeric(l) && isNumeric(r) {
		if l.Kind == semtype.KindFloat || r.Kind == semtype.KindFloat {
			return semtype.Float
		}
		return semtype.Int
	}
	a.errAt(errs.EIncompatibleMerge, errs.CategoryType, "incompatible merge operands",
		fmt.Sprintf("cannot merge %s with %s", l, r), posOf(ex))
	return semtype.Nothing
}

func isNumeric(t *semtype.Type) bool {
	return t.Kind == semtype.KindInt || t.Kind == semtype.KindFloat
}

func (a *analyzer) inferUnary(ex *ast.UnaryOp) *semtype.Type {
	t := a.infer(ex.Operand)
	switch ex.Op {
	case "!":
		if !t.Equal(semtype.Boolean) && t.Kind != semtype.KindNothing {
			a.errAt(errs.EIncompatibleOp, errs.CategoryType, "! requires Boolean",
				fmt.Sprintf("operand has type %s, expected Boolean", t), posOf(ex))
			return semtype.Nothing
		}
		return semtype.Boolean
	case "-":
		if !isNumeric(t) && t.Kind != semtype.KindNothing {
			a.errAt(errs.EUnsupportedArith, errs.CategoryType, "unary - requires a numeric operand",
				fmt.Sprintf("operand has type %s", t), posOf(ex))
			return semtype.Nothing
		}
		return t
	default:
		return semtype.Nothing
	}
}

func (a *analyzer) inferBinary(ex *ast.BinaryOp) *semtype.Type {
	lt := a.infer(ex.Left)
	rt := a.infer(ex.Right)
	switch ex.Op {
	case "&&", "||":
		if (!lt.Equal(semtype.Boolean) && lt.Kind != semtype.KindNothing) ||
			(!rt.Equal(semtype.Boolean) && rt.Kind != semtype.KindNothing) {
			a.errAt(errs.EIncompatibleOp, errs.CategoryType, "logical operator requires Boolean operands",
				fmt.Sprintf("%s applied to %s and %s", ex.Op, lt, rt), posOf(ex))
		}
		return semtype.Boolean
	case "==", "!=":
		if !semtype.IsSubtype(lt, rt) && !semtype.IsSubtype(rt, lt) {
			a.errAt(errs.EUnsupportedCompare, errs.CategoryType, "incomparable operands",
				fmt.Sprintf("cannot compare %s with %s", lt, rt), posOf(ex))
		}
		return semtype.Boolean
	case "<", "<=", ">", ">=":
		if !isNumeric(lt) || !isNumeric(rt) {
			if lt.Kind != semtype.KindNothing && rt.Kind != semtype.KindNothing {
				a.errAt(errs.EUnsupportedCompare, errs.CategoryType, "ordering requires numeric operands",
					fmt.Sprintf("%s applied to %s and %s", ex.Op, lt, rt), posOf(ex))
			}
		}
		return semtype.Boolean
	case "-", "*", "/":
		if !isNumeric(lt) || !isNumeric(rt) {
			if lt.Kind != semtype.KindNothing && rt.Kind != semtype.KindNothing {
				a.errAt(errs.EUnsupportedArith, errs.CategoryType, "arithmetic requires numeric operands",
					fmt.Sprintf("%s applied to %s and %s", ex.Op, lt, rt), posOf(ex))
				return semtype.Nothing
			}
		}
		if lt.Kind == semtype.KindFloat || rt.Kind == semtype.KindFloat {
			return semtype.Float
		}
		return semtype.Int
	default:
		a.errAt(errs.EInternal, errs.CategoryInternal, "unknown binary operator", ex.Op, posOf(ex))
		return semtype.Nothing
	}
}

func (a *analyzer) inferListLit(ex *ast.ListLit) *semtype.Type {
	if len(ex.Items) == 0 {
		return semtype.List(semtype.Nothing)
	}
	elem := a.infer(ex.Items[0])
	for _, item := range ex.Items[1:] {
		elem = semtype.Join(elem, a.infer(item))
	}
	return semtype.List(elem)
}

func (a *analyzer) inferRecordLit(ex *ast.RecordLit) *semtype.Type {
	fields := make(map[string]*semtype.Type, len(ex.Fields))
	for _, name := range ex.Order {
		fields[name] = a.infer(ex.Fields[name])
	}
	return semtype.Record(fields)
}

func (a *analyzer) inferBranch(ex *ast.Branch) *semtype.Type {
	types := make([]*semtype.Type, 0, len(ex.Arms)+1)
	for _, arm := range ex.Arms {
		ct := a.infer(arm.Cond)
		if !ct.Equal(semtype.Boolean) && ct.Kind != semtype.KindNothing {
			a.errAt(errs.ETypeMismatch, errs.CategoryType, "branch condition must be Boolean",
				fmt.Sprintf("branch condition has type %s, expected Boolean", ct), posOf(arm.Cond))
		}
		types = append(types, a.infer(arm.Expr))
	}
	types = append(types, a.infer(ex.Otherwise))
	result := types[0]
	for _, t := range types[1:] {
		result = semtype.Join(result, t)
	}
	return result
}

// inferLambda type-checks a lambda body, binding its parameters to
// paramTypes if provided (checking mode, propagated from the enclosing
// higher-order call's signature) or to Nothing when inferred in
// isolation (synthesis mode, section 4.3 item 2).
func (a *analyzer) inferLambda(ex *ast.Lambda, paramTypes []*semtype.Type) *semtype.Type {
	saved := map[string]*semtype.Type{}
	present := map[string]bool{}
	for i, p := range ex.Params {
		if old, ok := a.scope[p]; ok {
			saved[p] = old
			present[p] = true
		}
		if paramTypes != nil && i < len(paramTypes) {
			a.scope[p] = paramTypes[i]
		} else {
			a.scope[p] = semtype.Nothing
		}
	}
	bodyType := a.infer(ex.Body)
	for _, p := range ex.Params {
		if present[p] {
			a.scope[p] = saved[p]
		} else {
			delete(a.scope, p)
		}
	}
	var pt []*semtype.Type
	if paramTypes != nil {
		pt = paramTypes
	} else {
		pt = make([]*semtype.Type, len(ex.Params))
		for i := range pt {
			pt[i] = semtype.Nothing
		}
	}
	return semtype.Function(pt, bodyType)
}

func (a *analyzer) inferMatch(ex *ast.Match) *semtype.Type {
	st := a.infer(ex.Subject)
	var members []*semtype.Type
	switch st.Kind {
	case semtype.KindUnion:
		members = st.Members
	case semtype.KindNothing:
	default:
		members = []*semtype.Type{st}
	}
	tags := make(map[string]*semtype.Type, len(members))
	for i, m := range members {
		tags[semtype.SynthesizeTag(i, m)] = m
	}

	covered := map[string]bool{}
	hasWildcard := false
	var armTypes []*semtype.Type
	for _, arm := range ex.Arms {
		saved, had := a.scope[arm.Binding]
		if arm.Tag == "" {
			hasWildcard = true
			if arm.Binding != "" {
				a.scope[arm.Binding] = st
			}
		} else {
			covered[arm.Tag] = true
			payload, ok := tags[arm.Tag]
			if !ok {
				a.errAt(errs.EPatternMismatch, errs.CategoryType, "no such union member",
					fmt.Sprintf("tag %q is not a member of %s", arm.Tag, st), posOf(arm.Body))
				payload = semtype.Nothing
			}
			if arm.Binding != "" {
				a.scope[arm.Binding] = payload
			}
		}
		armTypes = append(armTypes, a.infer(arm.Body))
		if arm.Binding != "" {
			if had {
				a.scope[arm.Binding] = saved
			} else {
				delete(a.scope, arm.Binding)
			}
		}
	}

	if st.Kind != semtype.KindNothing && !hasWildcard {
		for tag := range tags {
			if !covered[tag] {
				a.errAt(errs.ENonExhaustiveMatch, errs.CategoryType, "non-exhaustive match",
					fmt.Sprintf("match over %s does not cover every member and has no wildcard arm", st), posOf(ex))
				break
			}
		}
	}

	if len(armTypes) == 0 {
		return semtype.Nothing
	}
	result := armTypes[0]
	for _, t := range armTypes[1:] {
		result = semtype.Join(result, t)
	}
	return result
}

func (a *analyzer) inferCall(ex *ast.FuncCall) *semtype.Type {
	if HigherOrderOps[ex.QualName] {
		return a.inferHigherOrder(ex)
	}

	entry, found := a.reg.Resolve(ex.QualName, a.imports)
	if !found {
		entry, found = a.reg.Lookup(ex.QualName)
	}
	if !found {
		for _, arg := range ex.Args {
			a.infer(arg)
		}
		a.errAt(errs.EUndefinedFunc, errs.CategoryRef, "undefined function",
			fmt.Sprintf("no module registered for %q", ex.QualName), posOf(ex))
		a.normalizeOptions(ex, nil)
		return semtype.Nothing
	}

	if len(ex.Args) != len(entry.Params) {
		a.errAt(errs.ETypeMismatch, errs.CategoryType, "argument count mismatch",
			fmt.Sprintf("%q expects %d argument(s), got %d", ex.QualName, len(entry.Params), len(ex.Args)), posOf(ex))
	}
	for i, arg := range ex.Args {
		at := a.infer(arg)
		if i >= len(entry.Params) {
			continue
		}
		pt := entry.Params[i].Type
		if !semtype.IsSubtype(at, pt) {
			a.errAt(errs.ETypeMismatch, errs.CategoryType, "argument type mismatch",
				fmt.Sprintf("argument %d to %q has type %s, expected %s", i+1, ex.QualName, at, pt), posOf(arg))
		}
	}

	ret := entry.Returns
	if ret == nil {
		ret = semtype.Nothing
	}
	a.normalizeOptions(ex, ret)
	return ret
}

// inferHigherOrder type-checks filter/map/all/any/sortBy (section 3.4):
// arg 0 is a List<T>, arg 1 is a one-parameter lambda bound to T.
func (a *analyzer) inferHigherOrder(ex *ast.FuncCall) *semtype.Type {
	if len(ex.Args) != 2 {
		a.errAt(errs.ETypeMismatch, errs.CategoryType, "argument count mismatch",
			fmt.Sprintf("%q expects 2 arguments (a list and a lambda), got %d", ex.QualName, len(ex.Args)), posOf(ex))
		for _, arg := range ex.Args {
			a.infer(arg)
		}
		return semtype.Nothing
	}
	listType := a.infer(ex.Args[0])
	elem := semtype.Nothing
	if listType.Kind == semtype.KindList {
		elem = listType.Elem
	} else if listType.Kind != semtype.KindNothing {
		a.errAt(errs.ETypeMismatch, errs.CategoryType, "first argument must be a list",
			fmt.Sprintf("%q expects a List as its first argument, got %s", ex.QualName, listType), posOf(ex.Args[0]))
	}

	lambda, ok := ex.Args[1].(*ast.Lambda)
	if !ok {
		a.errAt(errs.ETypeMismatch, errs.CategoryType, "second argument must be a lambda",
			fmt.Sprintf("%q expects a lambda as its second argument", ex.QualName), posOf(ex.Args[1]))
		a.infer(ex.Args[1])
		return semtype.List(elem)
	}
	if len(lambda.Params) != 1 {
		a.errAt(errs.ETypeMismatch, errs.CategoryType, "lambda must take one parameter",
			fmt.Sprintf("%q's lambda expects exactly 1 parameter, got %d", ex.QualName, len(lambda.Params)), posOf(lambda))
	}
	fnType := a.inferLambda(lambda, []*semtype.Type{elem})
	a.exprTypes[lambda] = fnType

	switch ex.QualName {
	case "filter", "all", "any":
		if !fnType.Return.Equal(semtype.Boolean) && fnType.Return.Kind != semtype.KindNothing {
			a.errAt(errs.ETypeMismatch, errs.CategoryType, "predicate must return Boolean",
				fmt.Sprintf("%q's lambda returns %s, expected Boolean", ex.QualName, fnType.Return), posOf(lambda.Body))
		}
		if ex.QualName == "filter" {
			return semtype.List(elem)
		}
		return semtype.Boolean
	case "map":
		return semtype.List(fnType.Return)
	case "sortBy":
		// Accepted at type-check time per the open-question resolution;
		// internal/ir rejects it with E031 since no comparator lowering
		// exists yet.
		return semtype.List(elem)
	default:
		return semtype.Nothing
	}
}

// normalizeOptions validates and normalizes every ast.CallOption on a
// module call (section 4.3 item 4, section 6.2), populating
// a.callOptions[ex].
func (a *analyzer) normalizeOptions(ex *ast.FuncCall, returns *semtype.Type) {
	var out []NormalizedOption
	var batchSeen, windowSeen bool
	for _, opt := range ex.Options {
		switch opt.Name {
		case "retry":
			n, ok := a.optInt(opt)
			if ok && n < 0 {
				a.invalidOption(opt, "retry must be a non-negative integer")
			}
			out = append(out, NormalizedOption{Name: opt.Name, Raw: strconv.Itoa(n)})
		case "concurrency":
			n, ok := a.optInt(opt)
			if ok && n <= 0 {
				a.invalidOption(opt, "concurrency must be a positive integer")
			}
			out = append(out, NormalizedOption{Name: opt.Name, Raw: strconv.Itoa(n)})
		case "timeout", "delay", "cache":
			raw, ok := a.optRaw(opt)
			if !ok {
				a.invalidOption(opt, fmt.Sprintf("%s requires a duration literal", opt.Name))
				continue
			}
			if _, err := optparse.Duration(raw); err != nil {
				a.invalidOption(opt, err.Error())
			}
			out = append(out, NormalizedOption{Name: opt.Name, Raw: raw})
		case "throttle":
			raw, ok := a.optRaw(opt)
			if !ok {
				a.invalidOption(opt, "throttle requires an N/duration literal")
				continue
			}
			rate, err := optparse.ParseRate(raw)
			if err != nil {
				a.invalidOption(opt, err.Error())
			} else if rate.Count <= 0 {
				a.invalidOption(opt, "throttle count must be positive")
			}
			out = append(out, NormalizedOption{Name: opt.Name, Raw: raw})
		case "backoff":
			raw, ok := a.optRaw(opt)
			if !ok || !optparse.BackoffStrategies[raw] {
				a.invalidOption(opt, "backoff must be one of fixed|linear|exponential")
				continue
			}
			out = append(out, NormalizedOption{Name: opt.Name, Raw: raw})
		case "on_error":
			raw, ok := a.optRaw(opt)
			if !ok || !optparse.OnErrorPolicies[raw] {
				a.invalidOption(opt, "on_error must be one of fail|skip|log|wrap")
				continue
			}
			out = append(out, NormalizedOption{Name: opt.Name, Raw: raw})
		case "priority":
			raw, ok := a.optRaw(opt)
			if !ok {
				a.invalidOption(opt, "priority requires a named level or an integer")
				continue
			}
			if _, err := optparse.Priority(raw); err != nil {
				a.invalidOption(opt, err.Error())
			}
			out = append(out, NormalizedOption{Name: opt.Name, Raw: raw})
		case "lazy":
			if _, ok := opt.Value.(*ast.BoolLit); !ok {
				a.invalidOption(opt, "lazy requires a boolean literal")
				continue
			}
			out = append(out, NormalizedOption{Name: opt.Name, Expr: opt.Value})
		case "cache_backend":
			if _, ok := opt.Value.(*ast.StringLit); !ok {
				a.invalidOption(opt, "cache_backend requires a string literal")
				continue
			}
			out = append(out, NormalizedOption{Name: opt.Name, Expr: opt.Value})
		case "fallback":
			ft := a.infer(opt.Value)
			if returns != nil && returns.Kind != semtype.KindNothing && !semtype.IsSubtype(ft, returns) {
				a.errAt(errs.EFallbackMismatch, errs.CategoryType, "fallback type mismatch",
					fmt.Sprintf("fallback has type %s, expected a subtype of %s", ft, returns), posOf(opt.Value))
			}
			out = append(out, NormalizedOption{Name: opt.Name, Expr: opt.Value, Value: ft})
		case "batch":
			batchSeen = true
			out = append(out, NormalizedOption{Name: opt.Name, Expr: opt.Value})
		case "window":
			windowSeen = true
			out = append(out, NormalizedOption{Name: opt.Name, Expr: opt.Value})
		case "join", "checkpoint":
			out = append(out, NormalizedOption{Name: opt.Name, Expr: opt.Value})
		default:
			a.errAt(errs.EInvalidOptionValue, errs.CategorySemantic, "unknown option",
				fmt.Sprintf("%q is not a recognized module-call option", opt.Name), posOf(opt.Value))
		}
	}
	if batchSeen && windowSeen {
		a.errAt(errs.EStreamingOptionConflict, errs.CategorySemantic, "conflicting streaming options",
			"batch and window are mutually exclusive grouping strategies", posOf(ex))
	}
	a.callOptions[ex] = out
}

func (a *analyzer) optRaw(opt ast.CallOption) (string, bool) {
	switch v := opt.Value.(type) {
	case *ast.StringLit:
		return v.Value, true
	case *ast.VarRef:
		return v.Name, true
	case *ast.IntLit:
		return strconv.FormatInt(v.Value, 10), true
	default:
		a.infer(opt.Value)
		return "", false
	}
}

func (a *analyzer) optInt(opt ast.CallOption) (int, bool) {
	lit, ok := opt.Value.(*ast.IntLit)
	if !ok {
		a.invalidOption(opt, fmt.Sprintf("%s requires an integer literal", opt.Name))
		a.infer(opt.Value)
		return 0, false
	}
	return int(lit.Value), true
}

func (a *analyzer) invalidOption(opt ast.CallOption, detail string) {
	a.errAt(errs.EInvalidOptionValue, errs.CategoryType, "invalid option value", detail, &errs.SourcePos{
		Line: opt.Position.Line, Column: opt.Position.Column,
	})
}
