package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constellation/internal/compiler"
	"constellation/internal/registry"
	"constellation/internal/semtype"
	"constellation/internal/store"
)

func newRegistry() *registry.InMemory {
	reg := registry.NewInMemory()
	reg.Register("shout", registry.Entry{
		Params:     []registry.Param{{Name: "text", Type: semtype.String}},
		Returns:    semtype.String,
		ModuleName: "shout",
	})
	return reg
}

const sampleSource = `in text: String
loud = shout(text)
out loud`

func TestCompileProducesDagSpec(t *testing.T) {
	result, errsList := compiler.Compile(sampleSource, "greeter", newRegistry())
	require.Empty(t, errsList)
	require.NotNil(t, result)
	assert.Equal(t, "greeter", result.Name)
	assert.NotEmpty(t, result.StructuralHash)
	assert.Contains(t, result.Spec.OutputBindings, "loud")
}

func TestCompileReportsParseErrors(t *testing.T) {
	_, errsList := compiler.Compile("in text String", "broken", newRegistry())
	assert.True(t, errsList.HasErrors())
}

func TestCompileCachedHitsOnSecondCompile(t *testing.T) {
	reg := newRegistry()
	st := store.New()

	first, errsList := compiler.CompileCached(sampleSource, "greeter", reg, st)
	require.Empty(t, errsList)
	assert.False(t, first.FromCache)

	second, errsList := compiler.CompileCached(sampleSource, "greeter-again", reg, st)
	require.Empty(t, errsList)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.StructuralHash, second.StructuralHash)
}

func TestCompileCachedMissesOnRegistryChange(t *testing.T) {
	reg := newRegistry()
	st := store.New()

	first, errsList := compiler.CompileCached(sampleSource, "greeter", reg, st)
	require.Empty(t, errsList)

	reg2 := newRegistry()
	reg2.Register("extra", registry.Entry{Returns: semtype.Int, ModuleName: "extra"})
	second, errsList := compiler.CompileCached(sampleSource, "greeter", reg2, st)
	require.Empty(t, errsList)
	assert.False(t, second.FromCache)
	assert.Equal(t, first.StructuralHash, second.StructuralHash)
}
