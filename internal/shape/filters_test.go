package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryshape/internal/schema"
)

func bareCatalog() *Catalog {
	return &Catalog{
		shapes: make(map[string]Shape),
		refs:   make(map[string]*Ref),
		args:   make(map[string]*Validator),
	}
}

func TestAggregateFilter_RejectsNonNumericAverages(t *testing.T) {
	c := bareCatalog()

	for _, typ := range []schema.ScalarType{schema.String, schema.Boolean, schema.DateTime} {
		for _, op := range []AggregateOp{AggAvg, AggSum} {
			_, err := c.aggregateFilter(typ, false, []AggregateOp{AggCount, op})
			assert.ErrorIs(t, err, ErrNonNumericAggregate, "%s on %s", op, typ)
		}
	}

	o, err := c.aggregateFilter(schema.BigInt, true, aggregateOpsFor(schema.BigInt))
	require.NoError(t, err)
	avg, ok := o.Field("_avg")
	require.True(t, ok)
	assert.Equal(t, "FloatNullableFilter", avg.Shape.Name())
	sum, ok := o.Field("_sum")
	require.True(t, ok)
	assert.Equal(t, "BigIntNullableFilter", sum.Shape.Name())
	count, ok := o.Field("_count")
	require.True(t, ok)
	assert.Equal(t, "IntFilter", count.Shape.Name())
}

func TestScalarFilter_Operators(t *testing.T) {
	c := bareCatalog()

	names := func(o *Object) []string {
		var out []string
		for _, f := range o.fields {
			out = append(out, f.Name)
		}
		return out
	}

	assert.Equal(t, []string{"equals", "not"}, names(c.scalarFilter(schema.Boolean, false)))
	assert.Equal(t,
		[]string{"equals", "in", "notIn", "lt", "lte", "gt", "gte", "not"},
		names(c.scalarFilter(schema.DateTime, true)))
	assert.Equal(t,
		[]string{"equals", "in", "notIn", "lt", "lte", "gt", "gte", "contains", "startsWith", "endsWith", "mode", "not"},
		names(c.scalarFilter(schema.String, false)))
	assert.Equal(t, "IntNullableFilter", c.scalarFilter(schema.Int, true).Name())
}

func TestPath_String(t *testing.T) {
	p := Path{}.Key("data").Key("posts").Key("create").Index(0).Key("author")
	assert.Equal(t, "data.posts.create[0].author", p.String())
	assert.Equal(t, "[2].x", Path{}.Index(2).Key("x").String())

	// Extending a path never aliases its parent.
	base := make(Path, 0, 8).Key("where")
	a := base.Key("a")
	b := base.Key("b")
	assert.Equal(t, "where.a", a.String())
	assert.Equal(t, "where.b", b.String())
}

func TestUnion_PrefersExactKeyMatch(t *testing.T) {
	small := NewObject("Small", Field{Name: "a", Shape: &Scalar{Type: schema.Int}})
	large := NewObject("Large",
		Field{Name: "a", Shape: &Scalar{Type: schema.Int}},
		Field{Name: "b", Shape: &Scalar{Type: schema.String}, Default: func() any { return "d" }},
	)
	u := NewUnion("", small, large)

	errs := &Errors{}
	out, ok := u.Validate(map[string]any{"a": 1}, nil, errs)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": int64(1)}, out)

	out, ok = u.Validate(map[string]any{"a": 1, "b": "x"}, nil, errs)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": int64(1), "b": "x"}, out)

	_, ok = u.Validate(map[string]any{"a": "no", "c": 1}, nil, errs)
	assert.False(t, ok)
	assert.True(t, errs.Has(CodeUnrecognizedKey))
}

func TestRef_UndefinedTarget(t *testing.T) {
	c := bareCatalog()
	r := c.ref("Nowhere")

	errs := &Errors{}
	_, ok := r.Validate(map[string]any{}, Path{"x"}, errs)
	assert.False(t, ok)
	assert.Equal(t, []Code{CodeInternal}, errs.Codes())
	assert.ErrorIs(t, c.checkReferences(), ErrDanglingReference)
}
