package typecheck_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constellation/internal/errs"
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

func TestAnalyzeHelloWorld(t *testing.T) {
	prog, perrs := parser.Parse(`
in name: String
greeting = concat("Hello, ", name)
out greeting
`)
	require.Empty(t, perrs)
	tp, terrs := typecheck.Analyze(prog, newRegistry())
	require.Empty(t, terrs, "%v", terrs)
	assert.True(t, tp.VarTypes["greeting"].Equal(semtype.String))
	assert.Equal(t, []string{"name", "greeting"}, tp.Order)
}

func TestAnalyzeCircularDependencyIsDetected(t *testing.T) {
	prog, perrs := parser.Parse(`
a = b
b = a
out a
`)
	require.Empty(t, perrs)
	_, terrs := typecheck.Analyze(prog, newRegistry())
	require.True(t, terrs.HasErrors())
	assertHasCode(t, terrs, errs.ECircularDependency)
}

func TestAnalyzeDuplicateDefinitionIsDetected(t *testing.T) {
	prog, perrs := parser.Parse(`
in x: String
x = concat(x, x)
out x
`)
	require.Empty(t, perrs)
	_, terrs := typecheck.Analyze(prog, newRegistry())
	require.True(t, terrs.HasErrors())
	assertHasCode(t, terrs, errs.EDuplicateDefinition)
}

func TestAnalyzeFallbackTypeMismatch(t *testing.T) {
	prog, perrs := parser.Parse(`
in x: String
result = fetch(x) with fallback: 42
out result
`)
	require.Empty(t, perrs)
	_, terrs := typecheck.Analyze(prog, newRegistry())
	require.True(t, terrs.HasErrors())
	assertHasCode(t, terrs, errs.EFallbackMismatch)
}

func TestAnalyzeFallbackTypeOk(t *testing.T) {
	prog, perrs := parser.Parse(`
in x: String
result = fetch(x) with fallback: "dflt", retry: 2
out result
`)
	require.Empty(t, perrs)
	tp, terrs := typecheck.Analyze(prog, newRegistry())
	require.Empty(t, terrs, "%v", terrs)
	assert.True(t, tp.VarTypes["result"].Equal(semtype.String))
}

func TestAnalyzeInvalidOptionValues(t *testing.T) {
	prog, perrs := parser.Parse(`
in x: String
result = fetch(x) with retry: -1, concurrency: 0
out result
`)
	require.Empty(t, perrs)
	_, terrs := typecheck.Analyze(prog, newRegistry())
	require.True(t, terrs.HasErrors())
	assertHasCode(t, terrs, errs.EInvalidOptionValue)
}

func TestAnalyzeConditionalJoinsBranchTypes(t *testing.T) {
	prog, perrs := parser.Parse(`
in flag: Boolean
value = if flag 1 else 2
out value
`)
	require.Empty(t, perrs)
	tp, terrs := typecheck.Analyze(prog, newRegistry())
	require.Empty(t, terrs, "%v", terrs)
	assert.True(t, tp.VarTypes["value"].Equal(semtype.Int))
}

func TestAnalyzeHigherOrderFilter(t *testing.T) {
	prog, perrs := parser.Parse(`
in items: List<Int>
in threshold: Int
filtered = filter(items, (x) => x > threshold)
out filtered
`)
	require.Empty(t, perrs)
	tp, terrs := typecheck.Analyze(prog, newRegistry())
	require.Empty(t, terrs, "%v", terrs)
	assert.Equal(t, "List<Int>", tp.VarTypes["filtered"].String())
}

func TestAnalyzeUndefinedVariableInOutput(t *testing.T) {
	prog, perrs := parser.Parse(`
in x: String
out y
`)
	require.Empty(t, perrs)
	_, terrs := typecheck.Analyze(prog, newRegistry())
	require.True(t, terrs.HasErrors())
	assertHasCode(t, terrs, errs.EUndefinedVar)
}

func assertHasCode(t *testing.T, list errs.List, code errs.Code) {
	t.Helper()
	for _, d := range list {
		if d.Code == code {
			return
		}
	}
	t.Fatalf("expected a diagnostic with code %s, got %v", code, list)
}
