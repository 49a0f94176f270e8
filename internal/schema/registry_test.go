package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func user() Entity {
	return Entity{
		Name: "User",
		Fields: []Field{
			{Name: "id", Type: Int, IsID: true, Default: Default{Kind: AutoIncrement}},
			{Name: "email", Type: String, IsUnique: true},
			{Name: "name", Type: String, Nullable: true},
		},
		Relations: []Relation{
			{Name: "posts", Target: "Post", Cardinality: Many, Inverse: "author"},
		},
	}
}

func post() Entity {
	return Entity{
		Name: "Post",
		Fields: []Field{
			{Name: "id", Type: Int, IsID: true, Default: Default{Kind: AutoIncrement}},
			{Name: "title", Type: String},
			{Name: "authorId", Type: Int, Nullable: true},
		},
		Relations: []Relation{
			{Name: "author", Target: "User", Cardinality: One, ForeignKey: "authorId", Inverse: "posts"},
		},
	}
}

func TestRegistry_RegisterAndSeal(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(post()))
	require.NoError(t, r.Register(user()))
	require.NoError(t, r.Seal(context.Background()))
	assert.True(t, r.Sealed())

	e, err := r.Resolve("Post")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "authorId"}, e.FieldNames())
	assert.True(t, e.IsForeignKey("authorId"))
	assert.False(t, e.IsForeignKey("title"))

	rel, ok := e.Relation("author")
	require.True(t, ok)
	assert.True(t, e.RelationOptional(rel))

	u, err := r.Resolve("User")
	require.NoError(t, err)
	inv, ok := r.InverseOf(u, u.Relations[0])
	require.True(t, ok)
	assert.Equal(t, "author", inv.Name)

	assert.Equal(t, []string{"Post", "User"}, r.Names())
}

func TestRegistry_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entity  func() Entity
		wantErr error
	}{
		{
			name: "conflicting names",
			entity: func() Entity {
				e := post()
				e.Relations[0].Name = "title"
				return e
			},
			wantErr: ErrConflictingName,
		},
		{
			name: "unknown scalar type",
			entity: func() Entity {
				e := post()
				e.Fields[1].Type = "Decimal"
				return e
			},
			wantErr: ErrUnknownScalarType,
		},
		{
			name: "missing foreign key field",
			entity: func() Entity {
				e := post()
				e.Relations[0].ForeignKey = "writerId"
				return e
			},
			wantErr: ErrInvalidForeignKey,
		},
		{
			name: "many relation without inverse",
			entity: func() Entity {
				e := user()
				e.Relations[0].Inverse = ""
				return e
			},
			wantErr: ErrInverseMismatch,
		},
		{
			name: "autoincrement on string",
			entity: func() Entity {
				e := post()
				e.Fields[1].Default = Default{Kind: AutoIncrement}
				return e
			},
			wantErr: ErrInvalidDescriptor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewRegistry().Register(tt.entity())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegistry_DuplicateAndSealed(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(user()))
	assert.ErrorIs(t, r.Register(user()), ErrDuplicateEntity)

	require.NoError(t, r.Register(post()))
	require.NoError(t, r.Seal(context.Background()))
	assert.ErrorIs(t, r.Register(Entity{Name: "Book"}), ErrRegistrySealed)
}

func TestRegistry_SealDetectsDanglingAndInverse(t *testing.T) {
	t.Run("dangling target", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(user()))
		err := r.Seal(context.Background())
		assert.ErrorIs(t, err, ErrDanglingRelation)
		assert.False(t, r.Sealed())
	})

	t.Run("inverse points elsewhere", func(t *testing.T) {
		r := NewRegistry()
		u := user()
		u.Relations[0].Inverse = "title"
		require.NoError(t, r.Register(u))
		require.NoError(t, r.Register(post()))
		assert.ErrorIs(t, r.Seal(context.Background()), ErrInverseMismatch)
	})
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	_, err := NewRegistry().Resolve("Nope")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestParseScalarType(t *testing.T) {
	st, err := ParseScalarType("bigint")
	require.NoError(t, err)
	assert.Equal(t, BigInt, st)
	assert.True(t, st.IsNumeric())
	assert.False(t, DateTime.IsNumeric())

	_, err = ParseScalarType("json")
	assert.ErrorIs(t, err, ErrUnknownScalarType)
}
