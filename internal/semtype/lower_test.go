package semtype_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constellation/internal/ctype"
	"constellation/internal/semtype"
)

func TestToCTypeTotalOverPlainTypes(t *testing.T) {
	cases := []*semtype.Type{
		semtype.String,
		semtype.Int,
		semtype.List(semtype.Float),
		semtype.Map(semtype.String, semtype.Boolean),
		semtype.Optional(semtype.Int),
		semtype.Record(map[string]*semtype.Type{"a": semtype.Int}),
		semtype.Union(semtype.Int, semtype.String),
	}
	for _, c := range cases {
		ct, err := semtype.ToCType(c)
		require.NoError(t, err, c.String())
		assert.NotNil(t, ct)
	}
}

func TestToCTypeFailsOnFunction(t *testing.T) {
	fn := semtype.Function([]*semtype.Type{semtype.Int}, semtype.Int)
	_, err := semtype.ToCType(fn)
	require.Error(t, err)
	var le *semtype.LoweringError
	assert.ErrorAs(t, err, &le)
}

func TestToCTypeFailsOnUnresolvedOpenRecord(t *testing.T) {
	u := semtype.NewRowUnifier()
	row := u.Fresh()
	open := semtype.OpenRecord(map[string]*semtype.Type{"x": semtype.Int}, row)
	_, err := semtype.ToCType(open)
	require.Error(t, err)
}

func TestResolveOpenRecordThenLower(t *testing.T) {
	u := semtype.NewRowUnifier()
	row := u.Fresh()
	require.NoError(t, u.AddField(row, "score", semtype.Float))
	open := semtype.OpenRecord(map[string]*semtype.Type{"id": semtype.Int}, row)

	closed, err := u.Resolve(open)
	require.NoError(t, err)
	assert.Equal(t, semtype.KindRecord, closed.Kind)

	ct, err := semtype.ToCType(closed)
	require.NoError(t, err)
	assert.Equal(t, ctype.KindProduct, ct.Kind)
	assert.Contains(t, ct.Fields, "score")
	assert.Contains(t, ct.Fields, "id")
}

func TestUnionLoweringTagsAreDeterministic(t *testing.T) {
	sem := semtype.Union(semtype.Int, semtype.String)
	a, err := semtype.ToCType(sem)
	require.NoError(t, err)
	b, err := semtype.ToCType(sem)
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())
}
