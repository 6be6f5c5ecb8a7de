package dag_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constellation/internal/dag"
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

func compile(t *testing.T, src string) *dag.DagSpec {
	t.Helper()
	prog, perrs := parser.Parse(src)
	require.Empty(t, perrs)
	tp, terrs := typecheck.Analyze(prog, newRegistry())
	require.Empty(t, terrs, "%v", terrs)
	irp, ierrs := ir.Generate(tp, newRegistry())
	require.Empty(t, ierrs, "%v", ierrs)
	spec, derrs := dag.Compile(irp)
	require.Empty(t, derrs, "%v", derrs)
	return spec
}

func TestCompileModuleCallWiresConsumesAndEdges(t *testing.T) {
	spec := compile(t, `
in x: String
result = fetch(x)
out result
`)
	require.Len(t, spec.ModuleOrder, 1)
	module := spec.Modules[spec.ModuleOrder[0]]
	assert.Equal(t, "fetch", module.Metadata.Name)
	require.Contains(t, module.Consumes, "url")
	assert.Equal(t, "String", module.Consumes["url"].String())
	require.Contains(t, module.Produces, "out")

	var sawInEdge, sawOutEdge bool
	for _, e := range spec.InEdges {
		if e.Module == module.UUID {
			sawInEdge = true
			assert.Equal(t, "url", spec.Data[e.Data].Nicknames[module.UUID])
		}
	}
	for _, e := range spec.OutEdges {
		if e.Module == module.UUID {
			sawOutEdge = true
		}
	}
	assert.True(t, sawInEdge)
	assert.True(t, sawOutEdge)

	outUUID, ok := spec.OutputBindings["result"]
	require.True(t, ok)
	assert.Contains(t, spec.Data, outUUID)
}

func TestCompileModuleCallWithFallbackPopulatesModuleFallbacks(t *testing.T) {
	spec := compile(t, `
in x: String
result = fetch(x) with fallback: "dflt"
out result
`)
	module := spec.ModuleOrder[0]
	fb, ok := spec.ModuleFallbacks[module]
	require.True(t, ok)
	fbNode := spec.Data[fb]
	require.NotNil(t, fbNode.InlineTransform)
	assert.Equal(t, dag.InlineLiteral, fbNode.InlineTransform.Kind)
	assert.Equal(t, "dflt", fbNode.InlineTransform.Value.Str())
}

func TestCompileBranchLowersToSyntheticModule(t *testing.T) {
	spec := compile(t, `
in flag: Boolean
category = if flag 1 else "x"
label = match category { Int0(n) -> "num", Str1(s) -> "txt" }
out label
`)
	var branchModule *dag.ModuleNodeSpec
	for _, m := range spec.Modules {
		if m.Synthetic {
			branchModule = m
		}
	}
	require.NotNil(t, branchModule)
	assert.Equal(t, "$branch", branchModule.Metadata.Name)
	require.NotNil(t, branchModule.Branch)
	assert.Len(t, branchModule.Branch.CondData, 1)
	assert.Len(t, branchModule.Branch.ExprData, 1)
	assert.NotEmpty(t, branchModule.Branch.OtherwiseData)
}

func TestCompileHigherOrderCarriesLambdaAndCapturedInputs(t *testing.T) {
	spec := compile(t, `
in items: List<Int>
in threshold: Int
filtered = filter(items, (x) => x > threshold)
out filtered
`)
	outUUID := spec.OutputBindings["filtered"]
	n := spec.Data[outUUID]
	require.NotNil(t, n.InlineTransform)
	assert.Equal(t, dag.InlineHigherOrder, n.InlineTransform.Kind)
	assert.Equal(t, "filter", n.InlineTransform.Op)
	require.NotNil(t, n.InlineTransform.Lambda)
	assert.Contains(t, n.TransformInputs, "source")
	assert.Contains(t, n.TransformInputs, "captured:threshold")
}

func TestStructuralHashIsDeterministicAcrossCompiles(t *testing.T) {
	src := `
in x: String
greeting = concat("Hello, ", x)
out greeting
`
	specA := compile(t, src)
	specB := compile(t, src)

	hashA := dag.StructuralHash(specA)
	hashB := dag.StructuralHash(specB)
	assert.Equal(t, hashA, hashB, "two compiles of the same program must hash identically despite fresh UUIDs")
	assert.Len(t, hashA, 64)
}

func TestStructuralHashDiffersOnSemanticChange(t *testing.T) {
	specA := compile(t, `
in x: String
greeting = concat("Hello, ", x)
out greeting
`)
	specB := compile(t, `
in x: String
greeting = concat("Goodbye, ", x)
out greeting
`)
	assert.NotEqual(t, dag.StructuralHash(specA), dag.StructuralHash(specB))
}
