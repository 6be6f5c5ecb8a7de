package semtype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"constellation/internal/semtype"
)

func TestSubtypeReflexiveAndNothingBottom(t *testing.T) {
	assert.True(t, semtype.IsSubtype(semtype.Int, semtype.Int))
	assert.True(t, semtype.IsSubtype(semtype.Nothing, semtype.Int))
	assert.True(t, semtype.IsSubtype(semtype.Nothing, semtype.Record(map[string]*semtype.Type{"x": semtype.Int})))
}

func TestSubtypePrimitivesOnlySelf(t *testing.T) {
	assert.False(t, semtype.IsSubtype(semtype.Int, semtype.Float))
	assert.False(t, semtype.IsSubtype(semtype.String, semtype.Int))
}

func TestSubtypeListCovariant(t *testing.T) {
	assert.True(t, semtype.IsSubtype(semtype.List(semtype.Nothing), semtype.List(semtype.Int)))
	assert.False(t, semtype.IsSubtype(semtype.List(semtype.Int), semtype.List(semtype.String)))
}

func TestSubtypeMapKeysInvariantValuesCovariant(t *testing.T) {
	assert.True(t, semtype.IsSubtype(semtype.Map(semtype.String, semtype.Nothing), semtype.Map(semtype.String, semtype.Int)))
	assert.False(t, semtype.IsSubtype(semtype.Map(semtype.Int, semtype.Int), semtype.Map(semtype.String, semtype.Int)))
}

func TestSubtypeRecordWidthAndDepth(t *testing.T) {
	sub := semtype.Record(map[string]*semtype.Type{
		"id": semtype.Int, "name": semtype.String, "score": semtype.Float,
	})
	sup := semtype.Record(map[string]*semtype.Type{"id": semtype.Int, "name": semtype.String})
	assert.True(t, semtype.IsSubtype(sub, sup))
	assert.False(t, semtype.IsSubtype(sup, sub))
}

func TestSubtypeUnionAsSupertypeAndSubtype(t *testing.T) {
	u := semtype.Union(semtype.Int, semtype.String)
	assert.True(t, semtype.IsSubtype(semtype.Int, u))
	assert.True(t, semtype.IsSubtype(u, semtype.Union(semtype.Int, semtype.String, semtype.Boolean)))
	assert.False(t, semtype.IsSubtype(u, semtype.Int))
}

func TestUnionFlattensNestedUnions(t *testing.T) {
	nested := semtype.Union(semtype.Union(semtype.Int, semtype.String), semtype.Boolean)
	flat := semtype.Union(semtype.Int, semtype.String, semtype.Boolean)
	assert.Equal(t, flat.String(), nested.String())
}

func TestSubtypeFunctionContravariantParamsCovariantReturn(t *testing.T) {
	narrow := semtype.Record(map[string]*semtype.Type{"id": semtype.Int})
	wide := semtype.Record(map[string]*semtype.Type{"id": semtype.Int, "extra": semtype.String})

	// f: (wide) -> narrow  <:  g: (narrow) -> wide  -- wrong direction, should fail
	f := semtype.Function([]*semtype.Type{wide}, narrow)
	g := semtype.Function([]*semtype.Type{narrow}, wide)
	assert.False(t, semtype.IsSubtype(f, g))

	// h: (narrow) -> wide  <:  k: (wide) -> narrow -- contravariant param, covariant return
	h := semtype.Function([]*semtype.Type{narrow}, wide)
	k := semtype.Function([]*semtype.Type{wide}, narrow)
	assert.True(t, semtype.IsSubtype(h, k))
}

func TestJoinOfIncompatibleRecordsIsUnion(t *testing.T) {
	a := semtype.Record(map[string]*semtype.Type{"x": semtype.Int})
	b := semtype.Record(map[string]*semtype.Type{"x": semtype.String})
	joined := semtype.Join(a, b)
	assert.Equal(t, semtype.KindUnion, joined.Kind)
}

func TestJoinSubtypeShortCircuits(t *testing.T) {
	sub := semtype.Record(map[string]*semtype.Type{"id": semtype.Int, "name": semtype.String})
	sup := semtype.Record(map[string]*semtype.Type{"id": semtype.Int})
	assert.True(t, semtype.Join(sub, sup).Equal(sup))
}
