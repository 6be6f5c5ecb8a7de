package dag

import (
	"fmt"

	"github.com/google/uuid"

	"constellation/internal/ctype"
	"constellation/internal/errs"
	"constellation/internal/ir"
)

type compiler struct {
	prog    *ir.IRProgram
	spec    *DagSpec
	dataOf  map[ir.NodeID]DataUUID
	errs    errs.List
}

// Compile traverses an IRProgram in topological order, producing a
// DagSpec (section 4.6). Node references that cannot be resolved
// should not occur given the IR's own invariants; if one is found
// anyway it is reported as an internal error rather than panicking.
func Compile(prog *ir.IRProgram) (*DagSpec, errs.List) {
	c := &compiler{prog: prog, spec: newDagSpec(), dataOf: map[ir.NodeID]DataUUID{}}
	for _, id := range prog.TopologicalOrder {
		c.compileNode(id)
	}
	c.spec.DeclaredOutputs = append(c.spec.DeclaredOutputs, prog.DeclaredOutputs...)
	for _, name := range prog.DeclaredOutputs {
		nodeID, ok := prog.VariableBindings[name]
		if !ok {
			c.internalf("declared output %q has no variable binding", name)
			continue
		}
		data, ok := c.dataOf[nodeID]
		if !ok {
			c.internalf("declared output %q resolves to an uncompiled node", name)
			continue
		}
		c.spec.OutputBindings[name] = data
	}
	return c.spec, c.errs
}

func (c *compiler) internalf(format string, args ...any) {
	c.errs = append(c.errs, errs.Internal(fmt.Sprintf(format, args...)))
}

// data resolves the DataUUID an already-compiled IR node produced; an
// unresolved id cannot occur given a well-formed topological order, but
// data reports an internal error and returns a zero UUID rather
// than indexing out of bounds.
func (c *compiler) data(id ir.NodeID) DataUUID {
	d, ok := c.dataOf[id]
	if !ok {
		c.internalf("node %d referenced before it was compiled", id)
	}
	return d
}

func (c *compiler) addData(id ir.NodeID, spec *DataNodeSpec) DataUUID {
	if spec.UUID == "" {
		spec.UUID = DataUUID(uuid.NewString())
	}
	if spec.Nicknames == nil {
		spec.Nicknames = map[ModuleUUID]string{}
	}
	c.spec.Data[spec.UUID] = spec
	c.spec.DataOrder = append(c.spec.DataOrder, spec.UUID)
	c.dataOf[id] = spec.UUID
	return spec.UUID
}

// wireInput records data feeding a module under a parameter nickname:
// an inEdge plus the nickname the consuming module knows it by
// (section 3.5's Nicknames field).
func (c *compiler) wireInput(data DataUUID, module ModuleUUID, param string) {
	c.spec.InEdges = append(c.spec.InEdges, DataModuleEdge{Data: data, Module: module})
	if n := c.spec.Data[data]; n != nil {
		n.Nicknames[module] = param
	}
}

func (c *compiler) inlineNode(id ir.NodeID, n *ir.IRNode, t *InlineTransform, inputs map[string]DataUUID) DataUUID {
	return c.addData(id, &DataNodeSpec{CType: n.OutputType, InlineTransform: t, TransformInputs: inputs})
}

func (c *compiler) compileNode(id ir.NodeID) {
	n := c.prog.Node(id)
	if n == nil {
		c.internalf("topological order references missing node %d", id)
		return
	}

	switch n.Kind {
	case ir.NodeInput:
		c.addData(id, &DataNodeSpec{Name: n.InputName, CType: n.OutputType})

	case ir.NodeLiteral:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineLiteral, Value: n.Value}, nil)

	case ir.NodeMerge:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineMerge},
			map[string]DataUUID{"left": c.data(n.Left), "right": c.data(n.Right)})

	case ir.NodeCoalesce:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineCoalesce},
			map[string]DataUUID{"left": c.data(n.Left), "right": c.data(n.Right)})

	case ir.NodeAnd:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineAnd},
			map[string]DataUUID{"left": c.data(n.Left), "right": c.data(n.Right)})

	case ir.NodeOr:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineOr},
			map[string]DataUUID{"left": c.data(n.Left), "right": c.data(n.Right)})

	case ir.NodeCompare:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineCompare, Op: n.Op},
			map[string]DataUUID{"left": c.data(n.Left), "right": c.data(n.Right)})

	case ir.NodeArith:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineArith, Op: n.Op},
			map[string]DataUUID{"left": c.data(n.Left), "right": c.data(n.Right)})

	case ir.NodeNot:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineNot}, map[string]DataUUID{"operand": c.data(n.Operand)})

	case ir.NodeNegate:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineNegate, Op: n.Op}, map[string]DataUUID{"operand": c.data(n.Operand)})

	case ir.NodeProject:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineProject, Fields: n.Fields}, map[string]DataUUID{"source": c.data(n.Source)})

	case ir.NodeFieldAccess:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineFieldAccess, Field: n.Field}, map[string]DataUUID{"source": c.data(n.Source)})

	case ir.NodeConditional:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineConditional},
			map[string]DataUUID{"cond": c.data(n.Cond), "then": c.data(n.Then), "else": c.data(n.Else)})

	case ir.NodeGuard:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineGuard},
			map[string]DataUUID{"expr": c.data(n.GuardExpr), "cond": c.data(n.GuardCond)})

	case ir.NodeTagTest:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineTagTest, Tag: n.Tag}, map[string]DataUUID{"subject": c.data(n.TagSubject)})

	case ir.NodeUnpackTag:
		c.inlineNode(id, n, &InlineTransform{Kind: InlineUnpackTag, Tag: n.Tag}, map[string]DataUUID{"subject": c.data(n.TagSubject)})

	case ir.NodeStringInterp:
		inputs := make(map[string]DataUUID, len(n.Expressions))
		for i, e := range n.Expressions {
			inputs[fmt.Sprintf("part%d", i)] = c.data(e)
		}
		c.inlineNode(id, n, &InlineTransform{Kind: InlineStringInterp, Parts: n.Parts}, inputs)

	case ir.NodeListLit:
		inputs := make(map[string]DataUUID, len(n.Items))
		for i, item := range n.Items {
			inputs[fmt.Sprintf("item%d", i)] = c.data(item)
		}
		c.inlineNode(id, n, &InlineTransform{Kind: InlineListLit}, inputs)

	case ir.NodeRecordLit:
		inputs := make(map[string]DataUUID, len(n.RecordFields))
		for name, fieldID := range n.RecordFields {
			inputs["field:"+name] = c.data(fieldID)
		}
		c.inlineNode(id, n, &InlineTransform{Kind: InlineRecordLit, RecordOrder: n.Order}, inputs)

	case ir.NodeHigherOrder:
		inputs := map[string]DataUUID{"source": c.data(n.HOSource)}
		for name, outer := range n.CapturedInputs {
			inputs["captured:"+name] = c.data(outer)
		}
		c.inlineNode(id, n, &InlineTransform{Kind: InlineHigherOrder, Op: n.Op, Lambda: n.Lambda}, inputs)

	case ir.NodeModuleCall:
		c.compileModuleCall(id, n)

	case ir.NodeBranch:
		c.compileBranch(id, n)

	default:
		c.internalf("unhandled IR node kind %d in DAG compiler", n.Kind)
	}
}

func (c *compiler) compileModuleCall(id ir.NodeID, n *ir.IRNode) {
	module := ModuleUUID(uuid.NewString())
	consumes := make(map[string]*ctype.Type, len(n.Inputs))
	for param, argID := range n.Inputs {
		argData := c.data(argID)
		if dn := c.spec.Data[argData]; dn != nil {
			consumes[param] = dn.CType
		}
		c.wireInput(argData, module, param)
	}
	c.spec.Modules[module] = &ModuleNodeSpec{
		UUID:     module,
		Metadata: ModuleMetadata{Name: n.ModuleName, Language: n.LanguageName},
		Consumes: consumes,
		Produces: map[string]*ctype.Type{"out": n.OutputType},
	}
	c.spec.ModuleOrder = append(c.spec.ModuleOrder, module)
	c.spec.ModuleOptions[module] = n.Options
	if n.Options.HasFallback {
		c.spec.ModuleFallbacks[module] = c.data(n.Options.Fallback)
	}

	out := c.addData(id, &DataNodeSpec{CType: n.OutputType})
	c.spec.OutEdges = append(c.spec.OutEdges, DataModuleEdge{Data: out, Module: module})
}

// compileBranch lowers an ordered Branch into a synthetic module
// (section 3.5, section 4.6): the runtime evaluates cond0..condN-1 and
// returns the first true arm's expression, otherwise Otherwise.
func (c *compiler) compileBranch(id ir.NodeID, n *ir.IRNode) {
	module := ModuleUUID(uuid.NewString())
	consumes := make(map[string]*ctype.Type, len(n.Cases)*2+1)
	var condData, exprData []DataUUID
	for i, cs := range n.Cases {
		cd := c.data(cs.Cond)
		ed := c.data(cs.Expr)
		condData = append(condData, cd)
		exprData = append(exprData, ed)
		condParam := fmt.Sprintf("cond%d", i)
		exprParam := fmt.Sprintf("expr%d", i)
		c.wireInput(cd, module, condParam)
		c.wireInput(ed, module, exprParam)
		if dn := c.spec.Data[cd]; dn != nil {
			consumes[condParam] = dn.CType
		}
		if dn := c.spec.Data[ed]; dn != nil {
			consumes[exprParam] = dn.CType
		}
	}
	otherwiseData := c.data(n.Otherwise)
	c.wireInput(otherwiseData, module, "otherwise")
	if dn := c.spec.Data[otherwiseData]; dn != nil {
		consumes["otherwise"] = dn.CType
	}

	c.spec.Modules[module] = &ModuleNodeSpec{
		UUID:      module,
		Metadata:  ModuleMetadata{Name: "$branch"},
		Consumes:  consumes,
		Produces:  map[string]*ctype.Type{"out": n.OutputType},
		Synthetic: true,
		Branch:    &BranchSpec{CondData: condData, ExprData: exprData, OtherwiseData: otherwiseData},
	}
	c.spec.ModuleOrder = append(c.spec.ModuleOrder, module)

	out := c.addData(id, &DataNodeSpec{CType: n.OutputType})
	c.spec.OutEdges = append(c.spec.OutEdges, DataModuleEdge{Data: out, Module: module})
}
