package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constellation/internal/ast"
	"constellation/internal/parser"
)

func mustParse(t *testing.T, src string) *ast.Program {
	t.Helper()
	prog, errs := parser.Parse(src)
	require.Empty(t, errs, "%v", errs)
	require.NotNil(t, prog)
	return prog
}

func TestParseHello(t *testing.T) {
	prog := mustParse(t, `
in name: String
greeting = concat("Hello, ", name)
out greeting
`)
	require.Len(t, prog.Decls, 3)
	in, ok := prog.Decls[0].(*ast.InputDecl)
	require.True(t, ok)
	assert.Equal(t, "name", in.Name)

	assign, ok := prog.Decls[1].(*ast.Assignment)
	require.True(t, ok)
	call, ok := assign.Value.(*ast.FuncCall)
	require.True(t, ok)
	assert.Equal(t, "concat", call.QualName)
	assert.Len(t, call.Args, 2)

	out, ok := prog.Decls[2].(*ast.OutputDecl)
	require.True(t, ok)
	assert.Equal(t, "greeting", out.Name)
}

func TestParseMergeAndProjection(t *testing.T) {
	prog := mustParse(t, `
in base: Base
in extra: Extra
merged = base + extra
summary = merged[id, score]
out merged
out summary
`)
	mergedAssign := prog.Decls[2].(*ast.Assignment)
	_, ok := mergedAssign.Value.(*ast.Merge)
	require.True(t, ok)

	summaryAssign := prog.Decls[3].(*ast.Assignment)
	proj, ok := summaryAssign.Value.(*ast.Projection)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "score"}, proj.Fields)
}

func TestParseGuardAndCoalesce(t *testing.T) {
	prog := mustParse(t, `
in score: Int
in threshold: Int
highScore = "Excellent!" when score > threshold
finalMsg = highScore ?? "Below threshold"
out finalMsg
`)
	guardAssign := prog.Decls[2].(*ast.Assignment)
	guard, ok := guardAssign.Value.(*ast.Guard)
	require.True(t, ok)
	cmp, ok := guard.Cond.(*ast.BinaryOp)
	require.True(t, ok)
	assert.Equal(t, ">", cmp.Op)

	coalesceAssign := prog.Decls[3].(*ast.Assignment)
	co, ok := coalesceAssign.Value.(*ast.Coalesce)
	require.True(t, ok)
	_, ok = co.Left.(*ast.VarRef)
	assert.True(t, ok)
}

func TestParseBranch(t *testing.T) {
	prog := mustParse(t, `
in score: Int
grade = branch {
  score >= 90 -> "A",
  score >= 80 -> "B",
  score >= 70 -> "C",
  otherwise -> "F"
}
out grade
`)
	assign := prog.Decls[1].(*ast.Assignment)
	b, ok := assign.Value.(*ast.Branch)
	require.True(t, ok)
	require.Len(t, b.Arms, 3)
	require.NotNil(t, b.Otherwise)
}

func TestParseHigherOrderWithClosure(t *testing.T) {
	prog := mustParse(t, `
in list: List<Int>
in threshold: Int
filtered = filter(list, (x) => x > threshold)
out filtered
`)
	assign := prog.Decls[2].(*ast.Assignment)
	call, ok := assign.Value.(*ast.FuncCall)
	require.True(t, ok)
	assert.Equal(t, "filter", call.QualName)
	require.Len(t, call.Args, 2)
	lambda, ok := call.Args[1].(*ast.Lambda)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, lambda.Params)
}

func TestParseStringInterpolation(t *testing.T) {
	prog := mustParse(t, `
in name: String
greeting = "Hello, ${name}!"
out greeting
`)
	assign := prog.Decls[1].(*ast.Assignment)
	interp, ok := assign.Value.(*ast.StringInterp)
	require.True(t, ok)
	assert.Equal(t, []string{"Hello, ", "!"}, interp.Parts)
	require.Len(t, interp.Exprs, 1)
}

func TestParseModuleCallWithOptions(t *testing.T) {
	prog := mustParse(t, `
in x: String
result = fetch(x) with retry: 3, delay: 50ms, backoff: exponential, fallback: "dflt"
out result
`)
	assign := prog.Decls[1].(*ast.Assignment)
	call := assign.Value.(*ast.FuncCall)
	require.Len(t, call.Options, 4)
	assert.Equal(t, "retry", call.Options[0].Name)
	assert.Equal(t, "delay", call.Options[1].Name)
	delayLit, ok := call.Options[1].Value.(*ast.StringLit)
	require.True(t, ok)
	assert.Equal(t, "50ms", delayLit.Value)
}

func TestParseRecoversFromMalformedDeclAndReportsDiagnostic(t *testing.T) {
	_, errs := parser.Parse(`
in a: String
in
out a
`)
	require.NotEmpty(t, errs)
}
