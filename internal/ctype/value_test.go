package ctype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constellation/internal/ctype"
)

func TestInjectExtractRoundTrip(t *testing.T) {
	cases := []any{
		"hello",
		int64(42),
		3.14,
		true,
		[]string{"a", "b", "c"},
	}
	for _, hv := range cases {
		v, err := ctype.Inject(hv)
		require.NoError(t, err)
		back, err := ctype.Extract(v)
		require.NoError(t, err)
		assert.EqualValues(t, normalizeForCompare(hv), normalizeForCompare(back))
	}
}

// normalizeForCompare papers over []string vs []any, since Extract always
// returns []any for lists.
func normalizeForCompare(v any) any {
	if s, ok := v.([]string); ok {
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out
	}
	return v
}

func TestZeroValues(t *testing.T) {
	assert.Equal(t, "", ctype.Zero(ctype.String).Str())
	assert.Equal(t, int64(0), ctype.Zero(ctype.Int).Int())
	assert.Equal(t, 0.0, ctype.Zero(ctype.Float).Float())
	assert.Equal(t, false, ctype.Zero(ctype.Boolean).Bool())
	assert.Empty(t, ctype.Zero(ctype.List(ctype.Int)).List())
	assert.False(t, ctype.Zero(ctype.Optional(ctype.String)).IsSome())

	rec := ctype.Zero(ctype.Product(map[string]*ctype.Type{"n": ctype.Int}))
	fv, ok := rec.Field("n")
	require.True(t, ok)
	assert.Equal(t, int64(0), fv.Int())
}

func TestZeroUnionIsFirstVariantLexicographically(t *testing.T) {
	u := ctype.Union(map[string]*ctype.Type{
		"Zebra": ctype.Int,
		"Alpha": ctype.String,
	})
	z := ctype.Zero(u)
	assert.Equal(t, "Alpha", z.Tag())
	assert.Equal(t, "", z.Payload().Str())
}

func TestValueEqualityIsStructural(t *testing.T) {
	a := ctype.NewProduct(map[string]*ctype.Value{
		"id":   ctype.NewInt(1),
		"name": ctype.NewString("Alice"),
	})
	b := ctype.NewProduct(map[string]*ctype.Value{
		"name": ctype.NewString("Alice"),
		"id":   ctype.NewInt(1),
	})
	assert.True(t, a.Equal(b))

	c := ctype.NewProduct(map[string]*ctype.Value{
		"id":   ctype.NewInt(2),
		"name": ctype.NewString("Alice"),
	})
	assert.False(t, a.Equal(c))
}

func TestUnionTypeStringIsCanonicalAndSorted(t *testing.T) {
	u1 := ctype.Union(map[string]*ctype.Type{"B": ctype.Int, "A": ctype.String})
	u2 := ctype.Union(map[string]*ctype.Type{"A": ctype.String, "B": ctype.Int})
	assert.Equal(t, u1.String(), u2.String())
}

func TestMapValueEqualityIgnoresInsertionOrder(t *testing.T) {
	a := ctype.NewMap(ctype.String, ctype.Int, []ctype.MapEntry{
		{Key: ctype.NewString("x"), Value: ctype.NewInt(1)},
		{Key: ctype.NewString("y"), Value: ctype.NewInt(2)},
	})
	b := ctype.NewMap(ctype.String, ctype.Int, []ctype.MapEntry{
		{Key: ctype.NewString("y"), Value: ctype.NewInt(2)},
		{Key: ctype.NewString("x"), Value: ctype.NewInt(1)},
	})
	assert.True(t, a.Equal(b))
}
