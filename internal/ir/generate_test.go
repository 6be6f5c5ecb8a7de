package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constellation/internal/ctype"
	"constellation/internal/ir"
	"constellation/internal/parser"
	"constellation/internal/registry"
	"constellation/internal/semtype"
	"constellation/internal/typecheck"
)

func newRegistry() *registry.InMemory {
	reg := registry.NewInMemory()
	reg.Register("concat", registry.Entry{
		Params:     []registry.Param{{Name: "a", Type: semtype.String}, {Name: "b", Type: semtype.String}},
		Returns:    semtype.String,
		ModuleName: "concat",
	})
	reg.Register("fetch", registry.Entry{
		Params:     []registry.Param{{Name: "url", Type: semtype.String}},
		Returns:    semtype.String,
		ModuleName: "fetch",
	})
	return reg
}

func generate(t *testing.T, src string) (*typecheck.TypedProgram, *ir.IRProgram) {
	t.Helper()
	prog, perrs := parser.Parse(src)
	require.Empty(t, perrs)
	tp, terrs := typecheck.Analyze(prog, newRegistry())
	require.Empty(t, terrs, "%v", terrs)
	irp, ierrs := ir.Generate(tp, newRegistry())
	require.Empty(t, ierrs, "%v", ierrs)
	return tp, irp
}

func TestGenerateModuleCallWithOptions(t *testing.T) {
	_, prog := generate(t, `
in x: String
result = fetch(x) with fallback: "dflt", retry: 2, timeout: 500ms, priority: high
out result
`)
	id, ok := prog.VariableBindings["result"]
	require.True(t, ok)
	n := prog.Node(id)
	require.Equal(t, ir.NodeModuleCall, n.Kind)
	assert.Equal(t, "fetch", n.ModuleName)
	assert.True(t, n.Options.HasFallback)
	assert.True(t, n.Options.HasRetry)
	assert.Equal(t, 2, n.Options.Retry)
	assert.True(t, n.Options.HasTimeout)
	assert.EqualValues(t, 500, n.Options.TimeoutMs)
	assert.True(t, n.Options.HasPriority)
	assert.Equal(t, 80, n.Options.Priority)

	fallback := prog.Node(n.Options.Fallback)
	require.Equal(t, ir.NodeLiteral, fallback.Kind)
	assert.Equal(t, "dflt", fallback.Value.Str())
}

func TestGenerateHigherOrderCapturesFreeVariable(t *testing.T) {
	_, prog := generate(t, `
in items: List<Int>
in threshold: Int
filtered = filter(items, (x) => x > threshold)
out filtered
`)
	id := prog.VariableBindings["filtered"]
	n := prog.Node(id)
	require.Equal(t, ir.NodeHigherOrder, n.Kind)
	assert.Equal(t, "filter", n.Op)

	outerThreshold, ok := n.CapturedInputs["threshold"]
	require.True(t, ok)
	assert.Equal(t, prog.VariableBindings["threshold"], outerThreshold)

	lambda := n.Lambda
	require.NotNil(t, lambda)
	require.Len(t, lambda.ParamNodes, 1)
	bodyOut := lambda.Node(lambda.BodyOutputID)
	require.Equal(t, ir.NodeCompare, bodyOut.Kind)
	assert.Equal(t, ">", bodyOut.Op)

	innerThreshold, ok := lambda.CapturedBindings["threshold"]
	require.True(t, ok)
	assert.Equal(t, bodyOut.Right, innerThreshold)
}

func TestGenerateMatchLowersToBranch(t *testing.T) {
	_, prog := generate(t, `
in flag: Boolean
category = if flag 1 else "x"
label = match category { Int0(n) -> "num", Str1(s) -> "txt" }
out label
`)
	id := prog.VariableBindings["label"]
	n := prog.Node(id)
	require.Equal(t, ir.NodeBranch, n.Kind)
	require.Len(t, n.Cases, 1)
	cond := prog.Node(n.Cases[0].Cond)
	assert.Equal(t, ir.NodeTagTest, cond.Kind)
	assert.NotEqual(t, ir.NoNode, n.Otherwise)
}

func TestGenerateListLiteralConstantFolds(t *testing.T) {
	_, prog := generate(t, `
xs = [1, 2, 3]
out xs
`)
	id := prog.VariableBindings["xs"]
	n := prog.Node(id)
	require.Equal(t, ir.NodeLiteral, n.Kind)
	require.Equal(t, ctype.KindList, n.Value.Kind())
	assert.Len(t, n.Value.List(), 3)
}

func TestGenerateListLiteralWithNonConstantItemStaysUnfolded(t *testing.T) {
	_, prog := generate(t, `
in n: Int
xs = [n, 2, 3]
out xs
`)
	id := prog.VariableBindings["xs"]
	n := prog.Node(id)
	require.Equal(t, ir.NodeListLit, n.Kind)
	require.Len(t, n.Items, 3)
}

func TestOptimizeFoldsConstantArithmetic(t *testing.T) {
	_, prog := generate(t, `
total = 2 + 3
doubled = total * 2
out doubled
`)
	opt := ir.Optimize(prog)
	id, ok := opt.VariableBindings["doubled"]
	require.True(t, ok)
	n := opt.Node(id)
	require.Equal(t, ir.NodeLiteral, n.Kind)
	assert.EqualValues(t, 10, n.Value.Int())
}

func TestOptimizeDeadCodeEliminationDropsUnreachableNodes(t *testing.T) {
	_, prog := generate(t, `
in x: String
in y: String
kept = concat(x, x)
unused = concat(y, y)
out kept
`)
	before := len(prog.Nodes)
	opt := ir.Optimize(prog)
	assert.Less(t, len(opt.Nodes), before)

	id, ok := opt.VariableBindings["kept"]
	require.True(t, ok)
	n := opt.Node(id)
	require.Equal(t, ir.NodeModuleCall, n.Kind)
	assert.Equal(t, "concat", n.ModuleName)

	_, stillBound := opt.VariableBindings["unused"]
	assert.False(t, stillBound)
}

func TestOptimizePreservesDeclaredOutputsAndTypes(t *testing.T) {
	_, prog := generate(t, `
in x: String
greeting = concat("Hello, ", x)
out greeting
`)
	original := prog.Node(prog.VariableBindings["greeting"]).OutputType
	opt := ir.Optimize(prog)
	assert.Equal(t, []string{"greeting"}, opt.DeclaredOutputs)
	id, ok := opt.VariableBindings["greeting"]
	require.True(t, ok)
	assert.True(t, opt.Node(id).OutputType.Equal(original))
}

func TestOptimizeCommonSubexpressionEliminationMergesDuplicateArith(t *testing.T) {
	_, prog := generate(t, `
in n: Int
a = n * 2
b = n * 2
c = a - b
out c
`)
	opt := ir.Optimize(prog)
	id, ok := opt.VariableBindings["c"]
	require.True(t, ok)
	n := opt.Node(id)
	require.Equal(t, ir.NodeArith, n.Kind)
	assert.Equal(t, n.Left, n.Right, "a and b compute the same expression and should collapse to one node")
}
