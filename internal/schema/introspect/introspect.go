// Package introspect builds entity descriptors from the information_schema
// of a MySQL-compatible database.
package introspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"queryshape/internal/naming"
	"queryshape/internal/scalars"
	"queryshape/internal/schema"
)

// ErrNoTables is returned when no base table matches the include patterns.
var ErrNoTables = errors.New("no tables matched for introspection")

// Queryer provides query access for schema introspection.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Options controls which tables are read and how they are named.
type Options struct {
	Database      string
	IncludeTables []string // glob patterns, empty means every table
	Namer         *naming.Namer
	Logger        *slog.Logger
}

type column struct {
	table      string
	name       string
	dataType   string
	columnType string
	nullable   bool
	def        sql.NullString
	extra      string
	key        string
}

type foreignKey struct {
	table      string
	constraint string
	columns    []string
	refTable   string
	refColumns []string
}

// Load introspects the database and returns a sealed registry.
func Load(ctx context.Context, db Queryer, opts Options) (*schema.Registry, error) {
	entities, err := Entities(ctx, db, opts)
	if err != nil {
		return nil, err
	}
	reg := schema.NewRegistry()
	for _, e := range entities {
		if err := reg.Register(e); err != nil {
			return nil, fmt.Errorf("introspected schema: %w", err)
		}
	}
	if err := reg.Seal(ctx); err != nil {
		return nil, fmt.Errorf("introspected schema: %w", err)
	}
	return reg, nil
}

// Entities reads tables, columns and foreign keys and converts them into
// entity descriptors in table name order.
func Entities(ctx context.Context, db Queryer, opts Options) ([]schema.Entity, error) {
	ctx, span := startSpan(ctx, "introspect.entities", attribute.String("db.name", opts.Database))
	defer span.End()

	if opts.Database == "" {
		err := errors.New("introspect: database name is required")
		recordSpanError(span, err)
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	namer := opts.Namer
	if namer == nil {
		namer = naming.New(naming.DefaultConfig(), logger)
	}

	tables, err := getTables(ctx, db, opts.Database)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	tables = filterTables(tables, opts.IncludeTables)
	if len(tables) == 0 {
		recordSpanError(span, ErrNoTables)
		return nil, fmt.Errorf("%w in database %q", ErrNoTables, opts.Database)
	}
	span.SetAttributes(attribute.Int("introspect.tables", len(tables)))

	columns, err := getColumns(ctx, db, opts.Database)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	fks, err := getForeignKeys(ctx, db, opts.Database)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	b := &builder{
		namer:   namer,
		logger:  logger,
		index:   make(map[string]int, len(tables)),
		fields:  make(map[string]map[string]string, len(tables)),
		entries: make([]schema.Entity, 0, len(tables)),
	}
	for _, table := range tables {
		b.addTable(table)
	}
	for _, col := range columns {
		b.addColumn(col)
	}
	b.markIdentities(columns)
	b.addRelations(fks)

	span.SetAttributes(attribute.Int("introspect.entities", len(b.entries)))
	return b.entries, nil
}

type builder struct {
	namer   *naming.Namer
	logger  *slog.Logger
	index   map[string]int               // table -> entries position
	fields  map[string]map[string]string // table -> column -> field name
	entries []schema.Entity
}

func (b *builder) addTable(table string) {
	b.index[table] = len(b.entries)
	b.fields[table] = make(map[string]string)
	b.entries = append(b.entries, schema.Entity{Name: b.namer.EntityName(table)})
}

func (b *builder) entity(table string) (*schema.Entity, bool) {
	i, ok := b.index[table]
	if !ok {
		return nil, false
	}
	return &b.entries[i], true
}

func (b *builder) addColumn(col column) {
	e, ok := b.entity(col.table)
	if !ok {
		return
	}
	extra := strings.ToLower(col.extra)
	if strings.Contains(extra, "generated") && !strings.Contains(extra, "default_generated") {
		b.logger.Debug("skipping generated column",
			slog.String("table", col.table),
			slog.String("column", col.name),
		)
		return
	}
	st, ok := scalarType(col.dataType, col.columnType)
	if !ok {
		b.logger.Warn("skipping column with unsupported type",
			slog.String("table", col.table),
			slog.String("column", col.name),
			slog.String("type", col.columnType),
		)
		return
	}

	name := b.namer.RegisterField(e.Name, b.namer.FieldName(col.name), "column "+col.name)
	b.fields[col.table][col.name] = name
	e.Fields = append(e.Fields, schema.Field{
		Name:     name,
		Type:     st,
		Nullable: col.nullable,
		IsUnique: col.key == "UNI",
		Default:  b.columnDefault(col, st),
	})
}

// markIdentities flags single-column primary keys. Composite keys leave the
// entity without an id field.
func (b *builder) markIdentities(columns []column) {
	primary := make(map[string][]string)
	for _, col := range columns {
		if col.key == "PRI" {
			primary[col.table] = append(primary[col.table], col.name)
		}
	}
	for table, cols := range primary {
		e, ok := b.entity(table)
		if !ok {
			continue
		}
		if len(cols) != 1 {
			b.logger.Debug("composite primary key, no id field",
				slog.String("table", table),
				slog.Any("columns", cols),
			)
			continue
		}
		name, ok := b.fields[table][cols[0]]
		if !ok {
			continue
		}
		for i := range e.Fields {
			if e.Fields[i].Name == name {
				e.Fields[i].IsID = true
				e.Fields[i].IsUnique = false
			}
		}
	}
}

func (b *builder) columnDefault(col column, st schema.ScalarType) schema.Default {
	extra := strings.ToLower(col.extra)
	if strings.Contains(extra, "auto_increment") && (st == schema.Int || st == schema.BigInt) {
		return schema.Default{Kind: schema.AutoIncrement}
	}
	if st == schema.DateTime {
		if strings.Contains(extra, "on update current_timestamp") {
			return schema.Default{Kind: schema.UpdatedAt}
		}
		if col.def.Valid && isCurrentTimestamp(col.def.String) {
			return schema.Default{Kind: schema.Now}
		}
	}
	if !col.def.Valid {
		return schema.Default{}
	}

	value, err := literalDefault(st, col.def.String)
	if err != nil {
		b.logger.Warn("ignoring column default",
			slog.String("table", col.table),
			slog.String("column", col.name),
			slog.String("default", col.def.String),
			slog.String("error", err.Error()),
		)
		return schema.Default{}
	}
	return schema.Default{Kind: schema.Literal, Value: value}
}

func isCurrentTimestamp(expr string) bool {
	expr = strings.ToLower(strings.TrimSpace(expr))
	for _, prefix := range []string{"current_timestamp", "now(", "localtimestamp"} {
		if strings.HasPrefix(expr, prefix) {
			return true
		}
	}
	return false
}

func literalDefault(st schema.ScalarType, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if st == schema.Boolean {
		switch strings.ToLower(raw) {
		case "1", "true", "b'1'":
			return true, nil
		case "0", "false", "b'0'":
			return false, nil
		}
		return nil, fmt.Errorf("not a boolean literal: %q", raw)
	}
	raw = strings.Trim(raw, "'")
	switch st {
	case schema.Int, schema.BigInt, schema.Float:
		return scalars.Coerce(st, json.Number(raw))
	default:
		return scalars.Coerce(st, raw)
	}
}

// addRelations turns single-column foreign keys into a one relation on the
// owning entity and a many relation on the referenced one. Keys that would
// close a loop in the relation graph are skipped, so nested mutation
// payloads stay finite.
func (b *builder) addRelations(fks []foreignKey) {
	perTarget := make(map[[2]string]int)
	for _, fk := range fks {
		perTarget[[2]string{fk.table, fk.refTable}]++
	}

	forest := newUnionFind()
	for _, fk := range fks {
		attrs := []any{
			slog.String("table", fk.table),
			slog.String("constraint", fk.constraint),
			slog.String("references", fk.refTable),
		}
		owner, ok := b.entity(fk.table)
		if !ok {
			continue
		}
		target, ok := b.entity(fk.refTable)
		if !ok {
			b.logger.Debug("skipping foreign key to excluded table", attrs...)
			continue
		}
		if len(fk.columns) != 1 {
			b.logger.Warn("skipping composite foreign key", attrs...)
			continue
		}
		if fk.table == fk.refTable {
			b.logger.Warn("skipping self-referencing foreign key", attrs...)
			continue
		}
		fkField, ok := b.fields[fk.table][fk.columns[0]]
		if !ok {
			b.logger.Warn("skipping foreign key on unmapped column", attrs...)
			continue
		}
		if !forest.union(fk.table, fk.refTable) {
			b.logger.Warn("skipping foreign key that closes a relation cycle", attrs...)
			continue
		}

		onlyFK := perTarget[[2]string{fk.table, fk.refTable}] == 1
		source := "foreign key " + fk.constraint
		oneName := b.namer.RegisterField(owner.Name, b.namer.ManyToOneFieldName(fk.columns[0]), source)
		manyName := b.namer.RegisterField(target.Name, b.namer.OneToManyFieldName(fk.table, fk.columns[0], onlyFK), source)

		owner.Relations = append(owner.Relations, schema.Relation{
			Name:        oneName,
			Target:      target.Name,
			Cardinality: schema.One,
			ForeignKey:  fkField,
			Inverse:     manyName,
		})
		target.Relations = append(target.Relations, schema.Relation{
			Name:        manyName,
			Target:      owner.Name,
			Cardinality: schema.Many,
			Inverse:     oneName,
		})
	}
}

type unionFind map[string]string

func newUnionFind() unionFind {
	return make(unionFind)
}

func (u unionFind) find(x string) string {
	for {
		parent, ok := u[x]
		if !ok || parent == x {
			return x
		}
		u[x] = u[parent]
		x = parent
	}
}

// union joins the sets of a and b and reports false if they were already joined.
func (u unionFind) union(a, b string) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	u[ra] = rb
	return true
}

func filterTables(tables, patterns []string) []string {
	if len(patterns) == 0 {
		return tables
	}
	out := tables[:0:0]
	for _, table := range tables {
		if matchesAny(table, patterns) {
			out = append(out, table)
		}
	}
	return out
}

func matchesAny(value string, patterns []string) bool {
	value = strings.ToLower(value)
	for _, pattern := range patterns {
		if ok, err := path.Match(strings.ToLower(strings.TrimSpace(pattern)), value); err == nil && ok {
			return true
		}
	}
	return false
}

// scalarType maps a MySQL column type to a scalar type.
func scalarType(dataType, columnType string) (schema.ScalarType, bool) {
	dataType = strings.ToLower(dataType)
	columnType = strings.ToLower(columnType)
	switch dataType {
	case "tinyint":
		if strings.HasPrefix(columnType, "tinyint(1)") {
			return schema.Boolean, true
		}
		return schema.Int, true
	case "bool", "boolean", "bit":
		if dataType == "bit" && columnType != "bit(1)" {
			return "", false
		}
		return schema.Boolean, true
	case "smallint", "mediumint", "int", "integer", "year":
		if dataType == "int" && strings.Contains(columnType, "unsigned") {
			return schema.BigInt, true
		}
		return schema.Int, true
	case "bigint":
		return schema.BigInt, true
	case "float", "double", "real", "decimal", "numeric":
		return schema.Float, true
	case "date", "datetime", "timestamp":
		return schema.DateTime, true
	case "char", "varchar", "tinytext", "text", "mediumtext", "longtext", "enum", "set", "json", "time":
		return schema.String, true
	}
	return "", false
}

func getTables(ctx context.Context, db Queryer, databaseName string) ([]string, error) {
	ctx, span := startSpan(ctx, "introspect.get_tables", attribute.String("db.name", databaseName))
	defer span.End()

	query, args, err := sq.Select("TABLE_NAME").
		From("INFORMATION_SCHEMA.TABLES").
		Where(sq.Eq{"TABLE_SCHEMA": databaseName}).
		Where(sq.Eq{"TABLE_TYPE": "BASE TABLE"}).
		OrderBy("TABLE_NAME").
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("build tables query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return tables, nil
}

func getColumns(ctx context.Context, db Queryer, databaseName string) ([]column, error) {
	ctx, span := startSpan(ctx, "introspect.get_columns", attribute.String("db.name", databaseName))
	defer span.End()

	query, args, err := sq.Select(
		"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE",
		"IS_NULLABLE", "COLUMN_DEFAULT", "EXTRA", "COLUMN_KEY",
	).
		From("INFORMATION_SCHEMA.COLUMNS").
		Where(sq.Eq{"TABLE_SCHEMA": databaseName}).
		OrderBy("TABLE_NAME", "ORDINAL_POSITION").
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("build columns query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var columns []column
	for rows.Next() {
		var col column
		var isNullable string
		if err := rows.Scan(&col.table, &col.name, &col.dataType, &col.columnType, &isNullable, &col.def, &col.extra, &col.key); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		col.nullable = strings.EqualFold(isNullable, "YES")
		col.key = strings.ToUpper(col.key)
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return columns, nil
}

func getForeignKeys(ctx context.Context, db Queryer, databaseName string) ([]foreignKey, error) {
	ctx, span := startSpan(ctx, "introspect.get_foreign_keys", attribute.String("db.name", databaseName))
	defer span.End()

	query, args, err := sq.Select(
		"TABLE_NAME", "CONSTRAINT_NAME", "COLUMN_NAME",
		"REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME",
	).
		From("INFORMATION_SCHEMA.KEY_COLUMN_USAGE").
		Where(sq.Eq{"TABLE_SCHEMA": databaseName}).
		Where(sq.NotEq{"REFERENCED_TABLE_NAME": nil}).
		OrderBy("TABLE_NAME", "CONSTRAINT_NAME", "ORDINAL_POSITION").
		PlaceholderFormat(sq.Question).
		ToSql()
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("build foreign keys query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var fks []foreignKey
	for rows.Next() {
		var table, constraint, col, refTable, refCol string
		if err := rows.Scan(&table, &constraint, &col, &refTable, &refCol); err != nil {
			recordSpanError(span, err)
			return nil, err
		}
		if n := len(fks); n > 0 && fks[n-1].table == table && fks[n-1].constraint == constraint {
			fks[n-1].columns = append(fks[n-1].columns, col)
			fks[n-1].refColumns = append(fks[n-1].refColumns, refCol)
			continue
		}
		fks = append(fks, foreignKey{
			table:      table,
			constraint: constraint,
			columns:    []string{col},
			refTable:   refTable,
			refColumns: []string{refCol},
		})
	}
	if err := rows.Err(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	return fks, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := otel.Tracer("queryshape/introspect").Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
