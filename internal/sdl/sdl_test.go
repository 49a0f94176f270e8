package sdl

import (
	"context"
	"testing"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryshape/internal/models"
	"queryshape/internal/shape"
)

func newCatalog(t *testing.T) *shape.Catalog {
	t.Helper()
	reg, err := models.Registry(context.Background())
	require.NoError(t, err)
	c, err := shape.NewCatalog(context.Background(), reg)
	require.NoError(t, err)
	return c
}

func findInput(t *testing.T, doc *ast.Document, name string) *ast.InputObjectDefinition {
	t.Helper()
	for _, def := range doc.Definitions {
		if in, ok := def.(*ast.InputObjectDefinition); ok && in.Name.Value == name {
			return in
		}
	}
	t.Fatalf("input %s not found", name)
	return nil
}

func fieldType(t *testing.T, in *ast.InputObjectDefinition, field string) ast.Type {
	t.Helper()
	for _, f := range in.Fields {
		if f.Name.Value == field {
			return f.Type
		}
	}
	t.Fatalf("field %s.%s not found", in.Name.Value, field)
	return nil
}

func TestDocument_FieldTypes(t *testing.T) {
	c := newCatalog(t)
	doc, err := Document(c, "PostCreateInput", "UserWhereInput", "SortOrder")
	require.NoError(t, err)

	// Custom scalars, then the enum, then inputs sorted by name.
	require.Len(t, doc.Definitions, 5)
	assert.Equal(t, "BigInt", doc.Definitions[0].(*ast.ScalarDefinition).Name.Value)
	assert.Equal(t, "DateTime", doc.Definitions[1].(*ast.ScalarDefinition).Name.Value)
	assert.Equal(t, "SortOrder", doc.Definitions[2].(*ast.EnumDefinition).Name.Value)

	post := findInput(t, doc, "PostCreateInput")
	title, ok := fieldType(t, post, "title").(*ast.NonNull)
	require.True(t, ok)
	assert.Equal(t, "String", title.Type.(*ast.Named).Name.Value)

	likes, ok := fieldType(t, post, "likes").(*ast.NonNull)
	require.True(t, ok)
	assert.Equal(t, "BigInt", likes.Type.(*ast.Named).Name.Value)

	content, ok := fieldType(t, post, "content").(*ast.Named)
	require.True(t, ok)
	assert.Equal(t, "String", content.Name.Value)

	author, ok := fieldType(t, post, "author").(*ast.Named)
	require.True(t, ok)
	assert.Equal(t, "UserCreateNestedOneWithoutPostsInput", author.Name.Value)

	where := findInput(t, doc, "UserWhereInput")
	and, ok := fieldType(t, where, "AND").(*ast.List)
	require.True(t, ok)
	elem, ok := and.Type.(*ast.NonNull)
	require.True(t, ok)
	assert.Equal(t, "UserWhereInput", elem.Type.(*ast.Named).Name.Value)

	email, ok := fieldType(t, where, "email").(*ast.Named)
	require.True(t, ok)
	assert.Equal(t, "StringFilter", email.Name.Value)
}

func TestRender(t *testing.T) {
	c := newCatalog(t)

	out, err := Render(c)
	require.NoError(t, err)
	assert.Contains(t, out, "scalar DateTime")
	assert.Contains(t, out, "enum QueryMode")
	assert.Contains(t, out, "input UserFindManyArgs")
	assert.Contains(t, out, "input PostCreateManyAuthorInputEnvelope")
	assert.NotContains(t, out, "input MapInclude")
}

func TestRender_UnknownShape(t *testing.T) {
	c := newCatalog(t)

	_, err := Render(c, "NoSuchInput")
	assert.Error(t, err)
}
