package ir

import (
	"fmt"
	"sort"
	"strings"

	"constellation/internal/ctype"
)

// Optimize runs the three optional IR passes in order (section 4.5):
// constant folding, dead code elimination, then common subexpression
// elimination. Each pass preserves the declared output set, node
// types, and topological-order consistency.
func Optimize(p *IRProgram) *IRProgram {
	foldConstants(p)
	p = eliminateDeadCode(p)
	p = eliminateCommonSubexpressions(p)
	return p
}

func isLiteral(p *IRProgram, id NodeID) bool {
	n := p.Node(id)
	return n != nil && n.Kind == NodeLiteral
}

func literalValue(p *IRProgram, id NodeID) *ctype.Value {
	return p.Node(id).Value
}

func asFloat(v *ctype.Value) float64 {
	if v.Kind() == ctype.KindFloat {
		return v.Float()
	}
	return float64(v.Int())
}

// foldConstants collapses any inline op whose operands are already
// Literal nodes into a Literal itself (section 4.5 item 1): boolean
// ops, arithmetic over literals, and a conditional whose condition is
// constant and whose chosen branch is itself a Literal. Node ids never
// change, so no other references need updating.
func foldConstants(p *IRProgram) {
	for i := range p.Nodes {
		n := &p.Nodes[i]
		switch n.Kind {
		case NodeAnd:
			if isLiteral(p, n.Left) && isLiteral(p, n.Right) {
				v := literalValue(p, n.Left).Bool() && literalValue(p, n.Right).Bool()
				*n = IRNode{Kind: NodeLiteral, Value: ctype.NewBoolean(v), OutputType: n.OutputType}
			}
		case NodeOr:
			if isLiteral(p, n.Left) && isLiteral(p, n.Right) {
				v := literalValue(p, n.Left).Bool() || literalValue(p, n.Right).Bool()
				*n = IRNode{Kind: NodeLiteral, Value: ctype.NewBoolean(v), OutputType: n.OutputType}
			}
		case NodeNot:
			if isLiteral(p, n.Operand) {
				v := !literalValue(p, n.Operand).Bool()
				*n = IRNode{Kind: NodeLiteral, Value: ctype.NewBoolean(v), OutputType: n.OutputType}
			}
		case NodeNegate:
			if isLiteral(p, n.Operand) {
				lv := literalValue(p, n.Operand)
				var nv *ctype.Value
				if n.OutputType != nil && n.OutputType.Kind == ctype.KindFloat {
					nv = ctype.NewFloat(-asFloat(lv))
				} else {
					nv = ctype.NewInt(-lv.Int())
				}
				*n = IRNode{Kind: NodeLiteral, Value: nv, OutputType: n.OutputType}
			}
		case NodeArith:
			if isLiteral(p, n.Left) && isLiteral(p, n.Right) {
				*n = IRNode{Kind: NodeLiteral, Value: foldArith(n.Op, literalValue(p, n.Left), literalValue(p, n.Right), n.OutputType), OutputType: n.OutputType}
			}
		case NodeMerge:
			if isLiteral(p, n.Left) && isLiteral(p, n.Right) {
				if v, ok := foldMerge(literalValue(p, n.Left), literalValue(p, n.Right), n.OutputType); ok {
					*n = IRNode{Kind: NodeLiteral, Value: v, OutputType: n.OutputType}
				}
			}
		case NodeCompare:
			if isLiteral(p, n.Left) && isLiteral(p, n.Right) {
				*n = IRNode{Kind: NodeLiteral, Value: foldCompare(n.Op, literalValue(p, n.Left), literalValue(p, n.Right)), OutputType: n.OutputType}
			}
		case NodeConditional:
			if isLiteral(p, n.Cond) {
				chosen := n.Then
				if !literalValue(p, n.Cond).Bool() {
					chosen = n.Else
				}
				if isLiteral(p, chosen) {
					*n = IRNode{Kind: NodeLiteral, Value: literalValue(p, chosen), OutputType: n.OutputType}
				}
			}
		}
	}
}

func foldArith(op string, l, r *ctype.Value, outType *ctype.Type) *ctype.Value {
	if outType != nil && outType.Kind == ctype.KindFloat {
		lf, rf := asFloat(l), asFloat(r)
		switch op {
		case "-":
			return ctype.NewFloat(lf - rf)
		case "*":
			return ctype.NewFloat(lf * rf)
		case "/":
			if rf == 0 {
				return ctype.NewFloat(0)
			}
			return ctype.NewFloat(lf / rf)
		}
	}
	li, ri := l.Int(), r.Int()
	switch op {
	case "-":
		return ctype.NewInt(li - ri)
	case "*":
		return ctype.NewInt(li * ri)
	case "/":
		if ri == 0 {
			return ctype.NewInt(0)
		}
		return ctype.NewInt(li / ri)
	}
	return ctype.NewInt(0)
}

// foldMerge evaluates the "+" overload at constant-folding time for the
// scalar cases (string concatenation, numeric addition). Record/list
// merges are left as a NodeMerge: folding those requires recursively
// merging their literal field/element values, which the scheduler
// already does at evaluation time and isn't worth duplicating here.
func foldMerge(l, r *ctype.Value, outType *ctype.Type) (*ctype.Value, bool) {
	if l.Kind() == ctype.KindString && r.Kind() == ctype.KindString {
		return ctype.NewString(l.Str() + r.Str()), true
	}
	if (l.Kind() == ctype.KindInt || l.Kind() == ctype.KindFloat) &&
		(r.Kind() == ctype.KindInt || r.Kind() == ctype.KindFloat) {
		if outType != nil && outType.Kind == ctype.KindFloat {
			return ctype.NewFloat(asFloat(l) + asFloat(r)), true
		}
		return ctype.NewInt(l.Int() + r.Int()), true
	}
	return nil, false
}

func foldCompare(op string, l, r *ctype.Value) *ctype.Value {
	switch op {
	case "==":
		return ctype.NewBoolean(l.Equal(r))
	case "!=":
		return ctype.NewBoolean(!l.Equal(r))
	default:
		lf, rf := asFloat(l), asFloat(r)
		switch op {
		case "<":
			return ctype.NewBoolean(lf < rf)
		case "<=":
			return ctype.NewBoolean(lf <= rf)
		case ">":
			return ctype.NewBoolean(lf > rf)
		default: // ">="
			return ctype.NewBoolean(lf >= rf)
		}
	}
}

// rewriteRefs applies f to every node-id field a node variant carries,
// returning the rewritten copy. Shared by dead-code compaction (f maps
// old ids to their post-compaction position) and CSE (f maps an id to
// the canonical node it was merged into).
func rewriteRefs(n IRNode, f func(NodeID) NodeID) IRNode {
	switch n.Kind {
	case NodeModuleCall:
		newInputs := make(map[string]NodeID, len(n.Inputs))
		for k, v := range n.Inputs {
			newInputs[k] = f(v)
		}
		n.Inputs = newInputs
		if n.Options.HasFallback {
			n.Options.Fallback = f(n.Options.Fallback)
		}
	case NodeMerge, NodeCoalesce, NodeAnd, NodeOr, NodeCompare, NodeArith:
		n.Left, n.Right = f(n.Left), f(n.Right)
	case NodeProject, NodeFieldAccess:
		n.Source = f(n.Source)
	case NodeConditional:
		n.Cond, n.Then, n.Else = f(n.Cond), f(n.Then), f(n.Else)
	case NodeNot, NodeNegate:
		n.Operand = f(n.Operand)
	case NodeGuard:
		n.GuardExpr, n.GuardCond = f(n.GuardExpr), f(n.GuardCond)
	case NodeBranch:
		newCases := make([]BranchCase, len(n.Cases))
		for i, c := range n.Cases {
			newCases[i] = BranchCase{Cond: f(c.Cond), Expr: f(c.Expr)}
		}
		n.Cases = newCases
		n.Otherwise = f(n.Otherwise)
	case NodeStringInterp:
		newExprs := make([]NodeID, len(n.Expressions))
		for i, e := range n.Expressions {
			newExprs[i] = f(e)
		}
		n.Expressions = newExprs
	case NodeHigherOrder:
		n.HOSource = f(n.HOSource)
		newCaptured := make(map[string]NodeID, len(n.CapturedInputs))
		for k, v := range n.CapturedInputs {
			newCaptured[k] = f(v)
		}
		n.CapturedInputs = newCaptured
	case NodeTagTest, NodeUnpackTag:
		n.TagSubject = f(n.TagSubject)
	case NodeListLit:
		newItems := make([]NodeID, len(n.Items))
		for i, it := range n.Items {
			newItems[i] = f(it)
		}
		n.Items = newItems
	case NodeRecordLit:
		newFields := make(map[string]NodeID, len(n.RecordFields))
		for k, v := range n.RecordFields {
			newFields[k] = f(v)
		}
		n.RecordFields = newFields
	}
	return n
}

// eliminateDeadCode removes any node not reachable from declaredOutputs
// via the reverse dependency closure (section 4.5 item 2), compacting
// the arena and remapping every reference.
func eliminateDeadCode(p *IRProgram) *IRProgram {
	reachable := map[NodeID]bool{}
	var mark func(id NodeID)
	mark = func(id NodeID) {
		if id == NoNode || reachable[id] {
			return
		}
		n := p.Node(id)
		if n == nil {
			return
		}
		reachable[id] = true
		for _, dep := range references(*n) {
			mark(dep)
		}
	}
	for _, name := range p.DeclaredOutputs {
		if id, ok := p.VariableBindings[name]; ok {
			mark(id)
		}
	}

	var order []NodeID
	for _, id := range p.TopologicalOrder {
		if reachable[id] {
			order = append(order, id)
		}
	}
	oldToNew := make(map[NodeID]NodeID, len(order))
	for i, old := range order {
		oldToNew[old] = NodeID(i)
	}
	remap := func(id NodeID) NodeID {
		if id == NoNode {
			return NoNode
		}
		if nid, ok := oldToNew[id]; ok {
			return nid
		}
		return NoNode
	}

	newNodes := make([]IRNode, len(order))
	for i, old := range order {
		newNodes[i] = rewriteRefs(p.Nodes[old], remap)
	}
	newBindings := make(map[string]NodeID, len(p.VariableBindings))
	for name, id := range p.VariableBindings {
		if nid, ok := oldToNew[id]; ok {
			newBindings[name] = nid
		}
	}
	newOrder := make([]NodeID, len(newNodes))
	for i := range newNodes {
		newOrder[i] = NodeID(i)
	}
	return &IRProgram{Nodes: newNodes, TopologicalOrder: newOrder, VariableBindings: newBindings, DeclaredOutputs: p.DeclaredOutputs}
}

// references lists the node-ids a node variant reads from, used by
// eliminateDeadCode's reverse-reachability walk. A lambda's own body
// arena is self-contained and is not walked here: it is only ever
// entered by the scheduler via its HigherOrder node, never by name.
func references(n IRNode) []NodeID {
	var out []NodeID
	add := func(id NodeID) {
		if id != NoNode {
			out = append(out, id)
		}
	}
	switch n.Kind {
	case NodeModuleCall:
		for _, dep := range n.Inputs {
			add(dep)
		}
		if n.Options.HasFallback {
			add(n.Options.Fallback)
		}
	case NodeMerge, NodeCoalesce, NodeAnd, NodeOr, NodeCompare, NodeArith:
		add(n.Left)
		add(n.Right)
	case NodeProject, NodeFieldAccess:
		add(n.Source)
	case NodeConditional:
		add(n.Cond)
		add(n.Then)
		add(n.Else)
	case NodeNot, NodeNegate:
		add(n.Operand)
	case NodeGuard:
		add(n.GuardExpr)
		add(n.GuardCond)
	case NodeBranch:
		for _, c := range n.Cases {
			add(c.Cond)
			add(c.Expr)
		}
		add(n.Otherwise)
	case NodeStringInterp:
		for _, e := range n.Expressions {
			add(e)
		}
	case NodeHigherOrder:
		add(n.HOSource)
		for _, outer := range n.CapturedInputs {
			add(outer)
		}
	case NodeTagTest, NodeUnpackTag:
		add(n.TagSubject)
	case NodeListLit:
		out = append(out, n.Items...)
	case NodeRecordLit:
		for _, v := range n.RecordFields {
			add(v)
		}
	}
	return out
}

// isPureInline reports whether a node kind is a side-effect-free
// structural op eligible for common subexpression elimination (section
// 4.5 item 3). ModuleCall (external, possibly impure), HigherOrder (the
// lambda body makes key comparison impractical) and Branch (modeled as
// a synthetic module, section 3.5) are excluded; Input is excluded
// because each one is already the unique binding site for its name.
func isPureInline(k NodeKind) bool {
	switch k {
	case NodeLiteral, NodeMerge, NodeProject, NodeFieldAccess, NodeConditional,
		NodeAnd, NodeOr, NodeNot, NodeGuard, NodeCoalesce, NodeStringInterp,
		NodeCompare, NodeArith, NodeNegate, NodeListLit, NodeRecordLit,
		NodeTagTest, NodeUnpackTag:
		return true
	default:
		return false
	}
}

// eliminateCommonSubexpressions merges inline-transform nodes sharing
// the same operation and the same (already-rewritten) inputs (section
// 4.5 item 3), rewriting every downstream reference and variable
// binding to point at the surviving node.
func eliminateCommonSubexpressions(p *IRProgram) *IRProgram {
	canon := map[string]NodeID{}
	remap := map[NodeID]NodeID{}
	translate := func(id NodeID) NodeID {
		if id == NoNode {
			return NoNode
		}
		if nid, ok := remap[id]; ok {
			return nid
		}
		return id
	}

	var newNodes []IRNode
	for _, old := range p.TopologicalOrder {
		n := rewriteRefs(p.Nodes[old], translate)
		if !isPureInline(n.Kind) {
			newID := NodeID(len(newNodes))
			newNodes = append(newNodes, n)
			remap[old] = newID
			continue
		}
		key := canonicalKey(n)
		if existing, ok := canon[key]; ok {
			remap[old] = existing
			continue
		}
		newID := NodeID(len(newNodes))
		newNodes = append(newNodes, n)
		canon[key] = newID
		remap[old] = newID
	}

	newBindings := make(map[string]NodeID, len(p.VariableBindings))
	for name, id := range p.VariableBindings {
		newBindings[name] = translate(id)
	}
	newOrder := make([]NodeID, len(newNodes))
	for i := range newNodes {
		newOrder[i] = NodeID(i)
	}
	return &IRProgram{Nodes: newNodes, TopologicalOrder: newOrder, VariableBindings: newBindings, DeclaredOutputs: p.DeclaredOutputs}
}

func canonicalKey(n IRNode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|", n.Kind)
	switch n.Kind {
	case NodeLiteral:
		fmt.Fprintf(&b, "%s:%s", n.OutputType, canonicalValue(n.Value))
	case NodeMerge, NodeCoalesce, NodeAnd, NodeOr, NodeCompare, NodeArith:
		fmt.Fprintf(&b, "%s:%d:%d", n.Op, n.Left, n.Right)
	case NodeProject:
		fields := append([]string(nil), n.Fields...)
		sort.Strings(fields)
		fmt.Fprintf(&b, "%d:%s", n.Source, strings.Join(fields, ","))
	case NodeFieldAccess:
		fmt.Fprintf(&b, "%d:%s", n.Source, n.Field)
	case NodeConditional:
		fmt.Fprintf(&b, "%d:%d:%d", n.Cond, n.Then, n.Else)
	case NodeNot, NodeNegate:
		fmt.Fprintf(&b, "%d", n.Operand)
	case NodeGuard:
		fmt.Fprintf(&b, "%d:%d", n.GuardExpr, n.GuardCond)
	case NodeStringInterp:
		ids := make([]string, len(n.Expressions))
		for i, e := range n.Expressions {
			ids[i] = fmt.Sprint(e)
		}
		fmt.Fprintf(&b, "%s|%s", strings.Join(n.Parts, "\x00"), strings.Join(ids, ","))
	case NodeTagTest, NodeUnpackTag:
		fmt.Fprintf(&b, "%d:%s", n.TagSubject, n.Tag)
	case NodeListLit:
		ids := make([]string, len(n.Items))
		for i, it := range n.Items {
			ids[i] = fmt.Sprint(it)
		}
		fmt.Fprintf(&b, "%s", strings.Join(ids, ","))
	case NodeRecordLit:
		names := make([]string, 0, len(n.RecordFields))
		for name := range n.RecordFields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s=%d", name, n.RecordFields[name])
		}
		fmt.Fprintf(&b, "%s", strings.Join(parts, ","))
	}
	return b.String()
}

func canonicalValue(v *ctype.Value) string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind() {
	case ctype.KindString:
		return "s:" + v.Str()
	case ctype.KindInt:
		return fmt.Sprintf("i:%d", v.Int())
	case ctype.KindFloat:
		return fmt.Sprintf("f:%g", v.Float())
	case ctype.KindBoolean:
		return fmt.Sprintf("b:%v", v.Bool())
	default:
		return fmt.Sprintf("v:%p", v)
	}
}
