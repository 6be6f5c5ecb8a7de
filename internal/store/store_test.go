package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constellation/internal/dag"
	"constellation/internal/ir"
	"constellation/internal/parser"
	"constellation/internal/registry"
	"constellation/internal/semtype"
	"constellation/internal/store"
	"constellation/internal/typecheck"
)

func newRegistry() *registry.InMemory {
	reg := registry.NewInMemory()
	reg.Register("fetch", registry.Entry{
		Params:     []registry.Param{{Name: "url", Type: semtype.String}},
		Returns:    semtype.String,
		ModuleName: "fetch",
	})
	return reg
}

func compile(t *testing.T, src string) *dag.DagSpec {
	t.Helper()
	reg := newRegistry()
	astFile, perrs := parser.Parse(src)
	require.Empty(t, perrs)
	typed, terrs := typecheck.Analyze(astFile, reg)
	require.Empty(t, terrs)
	prog, ierrs := ir.Generate(typed, reg)
	require.Empty(t, ierrs)
	spec, derrs := dag.Compile(prog)
	require.Empty(t, derrs)
	return spec
}

func TestStoreIdempotentOnDuplicateImage(t *testing.T) {
	spec := compile(t, `in url: String
x = fetch(url)
out x`)
	st := store.New()
	img1 := store.NewImage("pipeline-a", spec)
	img2 := store.NewImage("pipeline-a", spec)

	h1 := st.Store(img1)
	h2 := st.Store(img2)
	assert.Equal(t, h1, h2)

	got, ok := st.Get(h1)
	require.True(t, ok)
	assert.Same(t, img1, got)
}

func TestStoreAliasResolvesToStructuralHash(t *testing.T) {
	spec := compile(t, `in url: String
x = fetch(url)
out x`)
	st := store.New()
	img := store.NewImage("pipeline-b", spec)
	hash := st.Store(img)

	st.Alias("latest", hash)
	resolved, ok := st.Resolve("latest")
	require.True(t, ok)
	assert.Equal(t, hash, resolved)

	byName, ok := st.GetByName("latest")
	require.True(t, ok)
	assert.Equal(t, hash, byName.StructuralHash)
}

func TestStoreSyntacticIndexRoundTrips(t *testing.T) {
	st := store.New()
	reg := newRegistry()
	src := `in url: String
x = fetch(url)
out x`

	synHash := store.SyntacticHash(src)
	regHash := store.RegistryHash(reg)

	_, ok := st.LookupSyntactic(synHash, regHash)
	assert.False(t, ok)

	st.PutSyntacticIndex(synHash, regHash, "deadbeef")
	got, ok := st.LookupSyntactic(synHash, regHash)
	require.True(t, ok)
	assert.Equal(t, "deadbeef", got)
}

func TestRegistryHashStableAcrossInsertionOrder(t *testing.T) {
	r1 := registry.NewInMemory()
	r1.Register("a", registry.Entry{Returns: semtype.Int, ModuleName: "a"})
	r1.Register("b", registry.Entry{Returns: semtype.String, ModuleName: "b"})

	r2 := registry.NewInMemory()
	r2.Register("b", registry.Entry{Returns: semtype.String, ModuleName: "b"})
	r2.Register("a", registry.Entry{Returns: semtype.Int, ModuleName: "a"})

	assert.Equal(t, store.RegistryHash(r1), store.RegistryHash(r2))
}

func TestRegistryHashChangesOnSignatureChange(t *testing.T) {
	r1 := registry.NewInMemory()
	r1.Register("a", registry.Entry{Returns: semtype.Int, ModuleName: "a"})

	r2 := registry.NewInMemory()
	r2.Register("a", registry.Entry{Returns: semtype.String, ModuleName: "a"})

	assert.NotEqual(t, store.RegistryHash(r1), store.RegistryHash(r2))
}
