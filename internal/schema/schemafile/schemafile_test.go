package schemafile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryshape/internal/schema"
)

const sample = `
entities:
  - name: User
    fields:
      - {name: id, type: Int, id: true, default: autoincrement}
      - {name: email, type: String, unique: true}
    relations:
      - {name: posts, target: Post, cardinality: many, inverse: author}
  - name: Post
    fields:
      - {name: id, type: Int, id: true, default: autoincrement}
      - {name: createdAt, type: DateTime, default: now}
      - {name: published, type: Boolean, default: {value: false}}
      - {name: viewCount, type: Int, default: {value: 0}}
      - {name: authorId, type: Int, nullable: true}
    relations:
      - {name: author, target: User, cardinality: one, foreign_key: authorId, inverse: posts}
`

func TestLoad(t *testing.T) {
	reg, err := Load(context.Background(), []byte(sample))
	require.NoError(t, err)
	assert.True(t, reg.Sealed())

	post, err := reg.Resolve("Post")
	require.NoError(t, err)

	created, ok := post.Field("createdAt")
	require.True(t, ok)
	assert.Equal(t, schema.Now, created.Default.Kind)

	published, ok := post.Field("published")
	require.True(t, ok)
	assert.Equal(t, schema.Literal, published.Default.Kind)
	assert.Equal(t, false, published.Default.Value)

	views, _ := post.Field("viewCount")
	assert.Equal(t, int64(0), views.Default.Value)

	rel, ok := post.Relation("author")
	require.True(t, ok)
	assert.Equal(t, schema.One, rel.Cardinality)
	assert.Equal(t, "authorId", rel.ForeignKey)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "empty", doc: "", want: "empty"},
		{name: "unknown key", doc: "entities:\n  - name: A\n    colour: red\n", want: "colour"},
		{name: "unknown type", doc: "entities:\n  - name: A\n    fields:\n      - {name: x, type: Json}\n", want: "unknown scalar type"},
		{name: "bad default", doc: "entities:\n  - name: A\n    fields:\n      - {name: x, type: Int, default: uuid}\n", want: "unknown default"},
		{name: "literal mismatch", doc: "entities:\n  - name: A\n    fields:\n      - {name: x, type: Int, default: {value: abc}}\n", want: "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_SealFailure(t *testing.T) {
	doc := "entities:\n  - name: User\n    fields:\n      - {name: id, type: Int, id: true}\n    relations:\n      - {name: posts, target: Post, cardinality: many, inverse: author}\n"
	_, err := Load(context.Background(), []byte(doc))
	assert.ErrorIs(t, err, schema.ErrDanglingRelation)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	reg, err := LoadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Post", "User"}, reg.Names())

	_, err = LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
