package introspect

import (
	"bytes"
	"context"
	"database/sql"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryshape/internal/naming"
	"queryshape/internal/schema"
	"queryshape/internal/shape"
)

var (
	tablesQuery      = regexp.QuoteMeta("SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = ? ORDER BY TABLE_NAME")
	columnsQuery     = regexp.QuoteMeta("FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME, ORDINAL_POSITION")
	foreignKeysQuery = regexp.QuoteMeta("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME IS NOT NULL")
)

var columnHeaders = []string{
	"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE",
	"IS_NULLABLE", "COLUMN_DEFAULT", "EXTRA", "COLUMN_KEY",
}

var fkHeaders = []string{
	"TABLE_NAME", "CONSTRAINT_NAME", "COLUMN_NAME",
	"REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME",
}

// expectBlog registers a users/posts schema where posts carries two keys
// to users.
func expectBlog(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(tablesQuery).
		WithArgs("blog", "BASE TABLE").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("posts").AddRow("users"))

	mock.ExpectQuery(columnsQuery).
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows(columnHeaders).
			AddRow("posts", "id", "bigint", "bigint", "NO", nil, "auto_increment", "PRI").
			AddRow("posts", "title", "varchar", "varchar(255)", "NO", nil, "", "").
			AddRow("posts", "views", "int", "int", "NO", "0", "", "").
			AddRow("posts", "author_id", "int", "int", "NO", nil, "", "MUL").
			AddRow("posts", "editor_id", "int", "int", "YES", nil, "", "MUL").
			AddRow("posts", "title_length", "int", "int", "YES", nil, "VIRTUAL GENERATED", "").
			AddRow("users", "id", "int", "int", "NO", nil, "auto_increment", "PRI").
			AddRow("users", "email", "varchar", "varchar(320)", "NO", nil, "", "UNI").
			AddRow("users", "name", "varchar", "varchar(100)", "YES", nil, "", "").
			AddRow("users", "role", "enum", "enum('USER','ADMIN')", "NO", "USER", "", "").
			AddRow("users", "active", "tinyint", "tinyint(1)", "NO", "1", "", "").
			AddRow("users", "created_at", "datetime", "datetime", "NO", "CURRENT_TIMESTAMP", "DEFAULT_GENERATED", "").
			AddRow("users", "updated_at", "timestamp", "timestamp", "NO", "CURRENT_TIMESTAMP", "DEFAULT_GENERATED on update CURRENT_TIMESTAMP", "").
			AddRow("users", "location", "point", "point", "YES", nil, "", ""))

	mock.ExpectQuery(foreignKeysQuery).
		WithArgs("blog").
		WillReturnRows(sqlmock.NewRows(fkHeaders).
			AddRow("posts", "posts_ibfk_1", "author_id", "users", "id").
			AddRow("posts", "posts_ibfk_2", "editor_id", "users", "id"))
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func findEntity(t *testing.T, entities []schema.Entity, name string) schema.Entity {
	t.Helper()
	for _, e := range entities {
		if e.Name == name {
			return e
		}
	}
	t.Fatalf("entity %s not found", name)
	return schema.Entity{}
}

func TestEntities_Blog(t *testing.T) {
	db, mock := newMock(t)
	expectBlog(mock)

	logs := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	entities, err := Entities(context.Background(), db, Options{Database: "blog", Logger: logger})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, entities, 2)
	assert.Equal(t, "Post", entities[0].Name)
	assert.Equal(t, "User", entities[1].Name)

	post := findEntity(t, entities, "Post")
	assert.Equal(t, []string{"id", "title", "views", "authorId", "editorId"}, post.FieldNames())
	id, _ := post.Field("id")
	assert.True(t, id.IsID)
	assert.Equal(t, schema.BigInt, id.Type)
	assert.Equal(t, schema.AutoIncrement, id.Default.Kind)
	views, _ := post.Field("views")
	assert.Equal(t, schema.Default{Kind: schema.Literal, Value: int64(0)}, views.Default)
	editor, _ := post.Field("editorId")
	assert.True(t, editor.Nullable)

	require.Len(t, post.Relations, 1)
	assert.Equal(t, schema.Relation{
		Name:        "author",
		Target:      "User",
		Cardinality: schema.One,
		ForeignKey:  "authorId",
		Inverse:     "authorPosts",
	}, post.Relations[0])

	user := findEntity(t, entities, "User")
	email, _ := user.Field("email")
	assert.True(t, email.IsUnique)
	role, _ := user.Field("role")
	assert.Equal(t, schema.String, role.Type)
	assert.Equal(t, "USER", role.Default.Value)
	active, _ := user.Field("active")
	assert.Equal(t, schema.Boolean, active.Type)
	assert.Equal(t, true, active.Default.Value)
	created, _ := user.Field("createdAt")
	assert.Equal(t, schema.Now, created.Default.Kind)
	updated, _ := user.Field("updatedAt")
	assert.Equal(t, schema.UpdatedAt, updated.Default.Kind)
	_, ok := user.Field("location")
	assert.False(t, ok)

	require.Len(t, user.Relations, 1)
	assert.Equal(t, schema.Many, user.Relations[0].Cardinality)
	assert.Equal(t, "authorPosts", user.Relations[0].Name)
	assert.Equal(t, "author", user.Relations[0].Inverse)

	assert.Contains(t, logs.String(), "closes a relation cycle")
	assert.Contains(t, logs.String(), "constraint=posts_ibfk_2")
	assert.Contains(t, logs.String(), "unsupported type")
}

func TestLoad_BuildsCatalog(t *testing.T) {
	db, mock := newMock(t)
	expectBlog(mock)

	reg, err := Load(context.Background(), db, Options{Database: "blog"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.True(t, reg.Sealed())

	catalog, err := shape.NewCatalog(context.Background(), reg)
	require.NoError(t, err)
	assert.Len(t, catalog.Validators(), 2*len(shape.Operations))

	_, err = catalog.Validate("UserFindManyArgs", map[string]any{
		"where": map[string]any{
			"authorPosts": map[string]any{"some": map[string]any{"views": map[string]any{"gt": 10}}},
		},
	})
	assert.NoError(t, err)
}

func TestEntities_IncludeTables(t *testing.T) {
	db, mock := newMock(t)
	expectBlog(mock)

	entities, err := Entities(context.Background(), db, Options{
		Database:      "blog",
		IncludeTables: []string{"POST*"},
		Namer:         naming.New(naming.DefaultConfig(), nil),
	})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "Post", entities[0].Name)
	assert.Empty(t, entities[0].Relations)
}

func TestEntities_Errors(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		setupMock func(sqlmock.Sqlmock)
		wantErr   error
		contains  string
	}{
		{
			name:      "missing database name",
			opts:      Options{},
			setupMock: func(sqlmock.Sqlmock) {},
			contains:  "database name is required",
		},
		{
			name: "tables query fails",
			opts: Options{Database: "blog"},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(tablesQuery).WillReturnError(sql.ErrConnDone)
			},
			wantErr: sql.ErrConnDone,
		},
		{
			name: "no matching tables",
			opts: Options{Database: "blog", IncludeTables: []string{"orders"}},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(tablesQuery).
					WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("users"))
			},
			wantErr: ErrNoTables,
		},
		{
			name: "columns query fails",
			opts: Options{Database: "blog"},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(tablesQuery).
					WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("users"))
				mock.ExpectQuery(columnsQuery).WillReturnError(sql.ErrTxDone)
			},
			wantErr: sql.ErrTxDone,
		},
		{
			name: "foreign keys query fails",
			opts: Options{Database: "blog"},
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(tablesQuery).
					WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("users"))
				mock.ExpectQuery(columnsQuery).
					WillReturnRows(sqlmock.NewRows(columnHeaders))
				mock.ExpectQuery(foreignKeysQuery).WillReturnError(sql.ErrConnDone)
			},
			contains: "query foreign keys",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			tt.setupMock(mock)

			_, err := Entities(context.Background(), db, tt.opts)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestLoad_DuplicateEntityNames(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(tablesQuery).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("user").AddRow("users"))
	mock.ExpectQuery(columnsQuery).
		WillReturnRows(sqlmock.NewRows(columnHeaders).
			AddRow("user", "id", "int", "int", "NO", nil, "", "PRI").
			AddRow("users", "id", "int", "int", "NO", nil, "", "PRI"))
	mock.ExpectQuery(foreignKeysQuery).WillReturnRows(sqlmock.NewRows(fkHeaders))

	_, err := Load(context.Background(), db, Options{Database: "blog"})
	assert.ErrorIs(t, err, schema.ErrDuplicateEntity)
}

func TestEntities_SkippedForeignKeys(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(tablesQuery).
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("employees").AddRow("teams"))
	mock.ExpectQuery(columnsQuery).
		WillReturnRows(sqlmock.NewRows(columnHeaders).
			AddRow("employees", "id", "int", "int", "NO", nil, "", "PRI").
			AddRow("employees", "manager_id", "int", "int", "YES", nil, "", "MUL").
			AddRow("employees", "team_id", "int", "int", "NO", nil, "", "MUL").
			AddRow("employees", "team_region", "varchar", "varchar(8)", "NO", nil, "", "").
			AddRow("teams", "id", "int", "int", "NO", nil, "", "PRI").
			AddRow("teams", "region", "varchar", "varchar(8)", "NO", nil, "", "PRI"))
	mock.ExpectQuery(foreignKeysQuery).
		WillReturnRows(sqlmock.NewRows(fkHeaders).
			AddRow("employees", "fk_manager", "manager_id", "employees", "id").
			AddRow("employees", "fk_team", "team_id", "teams", "id").
			AddRow("employees", "fk_team", "team_region", "teams", "region"))

	entities, err := Entities(context.Background(), db, Options{Database: "hr"})
	require.NoError(t, err)
	for _, e := range entities {
		assert.Empty(t, e.Relations, e.Name)
	}

	// composite primary key leaves the entity without an id
	team := findEntity(t, entities, "Team")
	for _, f := range team.Fields {
		assert.False(t, f.IsID, f.Name)
	}
}

func TestScalarType(t *testing.T) {
	tests := []struct {
		dataType   string
		columnType string
		want       schema.ScalarType
		ok         bool
	}{
		{"tinyint", "tinyint(1)", schema.Boolean, true},
		{"tinyint", "tinyint(4)", schema.Int, true},
		{"bit", "bit(1)", schema.Boolean, true},
		{"bit", "bit(8)", "", false},
		{"int", "int", schema.Int, true},
		{"int", "int unsigned", schema.BigInt, true},
		{"year", "year", schema.Int, true},
		{"bigint", "bigint unsigned", schema.BigInt, true},
		{"decimal", "decimal(10,2)", schema.Float, true},
		{"double", "double", schema.Float, true},
		{"timestamp", "timestamp(3)", schema.DateTime, true},
		{"date", "date", schema.DateTime, true},
		{"json", "json", schema.String, true},
		{"enum", "enum('a','b')", schema.String, true},
		{"time", "time", schema.String, true},
		{"blob", "blob", "", false},
		{"vector", "vector(3)", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.columnType, func(t *testing.T) {
			got, ok := scalarType(tt.dataType, tt.columnType)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLiteralDefault(t *testing.T) {
	tests := []struct {
		name    string
		st      schema.ScalarType
		raw     string
		want    any
		wantErr bool
	}{
		{"int", schema.Int, "42", int64(42), false},
		{"quoted int", schema.Int, "'7'", int64(7), false},
		{"bigint", schema.BigInt, "9007199254740993", int64(9007199254740993), false},
		{"float", schema.Float, "1.50", 1.5, false},
		{"bit literal", schema.Boolean, "b'1'", true, false},
		{"false", schema.Boolean, "0", false, false},
		{"bad boolean", schema.Boolean, "maybe", nil, true},
		{"string", schema.String, "draft", "draft", false},
		{"datetime", schema.DateTime, "2024-01-02 03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), false},
		{"zero date", schema.DateTime, "0000-00-00 00:00:00", nil, true},
		{"int overflow", schema.Int, "4294967295", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := literalDefault(tt.st, tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchesAny(t *testing.T) {
	assert.True(t, matchesAny("Users", []string{"user*"}))
	assert.True(t, matchesAny("audit_log", []string{"posts", "audit_?og"}))
	assert.False(t, matchesAny("posts", []string{"user*"}))
	assert.False(t, matchesAny("posts", []string{"["}))
	assert.Equal(t, []string{"a", "b"}, filterTables([]string{"a", "b"}, nil))
}

func TestUnionFind(t *testing.T) {
	u := newUnionFind()
	assert.True(t, u.union("a", "b"))
	assert.True(t, u.union("c", "d"))
	assert.False(t, u.union("b", "a"))
	assert.True(t, u.union("b", "d"))
	assert.False(t, u.union("a", "c"))
}
