package app

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"queryshape/internal/config"
	"queryshape/internal/logging"
	"queryshape/internal/shape"
)

func testLogger() (*logging.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return logging.NewLogger(logging.Config{Level: "debug", Format: "text", Output: buf}), buf
}

func testConfig() *config.Config {
	return &config.Config{
		Schema: config.SchemaConfig{Source: config.SourceBuiltin},
		Output: config.OutputConfig{Format: "json"},
		Observability: config.ObservabilityConfig{
			ServiceName: "queryshape-test",
			Logging:     config.LoggingConfig{Level: "debug", Format: "text"},
		},
	}
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	logger, _ := testLogger()
	_, err := New(nil, logger)
	assert.Error(t, err)
	_, err = New(testConfig(), nil)
	assert.Error(t, err)
}

func TestInit_Builtin(t *testing.T) {
	logger, logs := testLogger()
	cfg := testConfig()
	cfg.Validation.WarmCatalog = true

	app, err := New(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, app.Service())

	require.NoError(t, app.Init(context.Background()))
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	svc := app.Service()
	require.NotNil(t, svc)
	assert.Len(t, svc.Validators(), 4*len(shape.Operations))
	assert.Same(t, svc.Catalog(), app.Catalog())

	_, err = svc.Validate(context.Background(), "PostCreateArgs", map[string]any{
		"data": map[string]any{"title": "hello", "likes": 1},
	})
	assert.NoError(t, err)
	assert.Contains(t, logs.String(), "shape catalog built")
	assert.Contains(t, logs.String(), "warm=true")
}

func TestInit_FileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entities:
  - name: Tag
    fields:
      - {name: id, type: Int, id: true, default: autoincrement}
      - {name: label, type: String, unique: true}
`), 0o600))

	logger, _ := testLogger()
	cfg := testConfig()
	cfg.Schema = config.SchemaConfig{Source: config.SourceFile, File: path}

	app, err := New(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	assert.Len(t, app.Service().Validators(), len(shape.Operations))
	_, err = app.Service().Validate(context.Background(), "TagFindUniqueArgs", map[string]any{
		"where": map[string]any{"label": "go"},
	})
	assert.NoError(t, err)
}

func TestInit_MissingSchemaFile(t *testing.T) {
	logger, _ := testLogger()
	cfg := testConfig()
	cfg.Schema = config.SchemaConfig{Source: config.SourceFile, File: filepath.Join(t.TempDir(), "missing.yaml")}

	app, err := New(cfg, logger)
	require.NoError(t, err)
	err = app.Init(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Nil(t, app.Service())
}

func TestInit_DatabaseSource(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.TABLES")).
		WithArgs("shop", "BASE TABLE").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("customers").AddRow("orders"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.COLUMNS")).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{
			"TABLE_NAME", "COLUMN_NAME", "DATA_TYPE", "COLUMN_TYPE",
			"IS_NULLABLE", "COLUMN_DEFAULT", "EXTRA", "COLUMN_KEY",
		}).
			AddRow("customers", "id", "int", "int", "NO", nil, "auto_increment", "PRI").
			AddRow("customers", "email", "varchar", "varchar(255)", "NO", nil, "", "UNI").
			AddRow("orders", "id", "bigint", "bigint", "NO", nil, "auto_increment", "PRI").
			AddRow("orders", "customer_id", "int", "int", "NO", nil, "", "MUL").
			AddRow("orders", "total", "decimal", "decimal(10,2)", "NO", "0.00", "", ""))
	mock.ExpectQuery(regexp.QuoteMeta("FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE")).
		WithArgs("shop").
		WillReturnRows(sqlmock.NewRows([]string{
			"TABLE_NAME", "CONSTRAINT_NAME", "COLUMN_NAME",
			"REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME",
		}).AddRow("orders", "orders_ibfk_1", "customer_id", "customers", "id"))
	mock.ExpectClose()

	logger, _ := testLogger()
	cfg := testConfig()
	cfg.Schema.Source = config.SourceDatabase
	cfg.Database = config.DatabaseConfig{Host: "localhost", Port: 3306, User: "root", Database: "shop"}

	app, err := New(cfg, logger)
	require.NoError(t, err)
	app.connect = func(context.Context, *config.Config, *logging.Logger) (*sql.DB, statsRegistration, error) {
		return db, nil, nil
	}

	require.NoError(t, app.Init(context.Background()))
	assert.Len(t, app.Service().Validators(), 2*len(shape.Operations))

	_, err = app.Service().Validate(context.Background(), "OrderFindManyArgs", map[string]any{
		"where": map[string]any{"customer": map[string]any{"email": map[string]any{"endsWith": "@example.com"}}},
	})
	assert.NoError(t, err)

	require.NoError(t, app.Shutdown(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInit_DatabaseConnectFailure(t *testing.T) {
	logger, _ := testLogger()
	cfg := testConfig()
	cfg.Schema.Source = config.SourceDatabase
	cfg.Database = config.DatabaseConfig{Host: "localhost", Port: 3306, Database: "shop"}

	app, err := New(cfg, logger)
	require.NoError(t, err)
	app.connect = func(context.Context, *config.Config, *logging.Logger) (*sql.DB, statsRegistration, error) {
		return nil, nil, errors.New("connection refused")
	}

	err = app.Init(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to database")
}

func TestShutdown_WritesMetricsTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queryshape.prom")
	logger, _ := testLogger()
	cfg := testConfig()
	cfg.Observability.MetricsEnabled = true
	cfg.Observability.MetricsFile = path

	app, err := New(cfg, logger)
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))

	_, err = app.Service().Validate(context.Background(), "UserFindManyArgs", map[string]any{"take": -1})
	require.NoError(t, err)
	_, err = app.Service().Validate(context.Background(), "UserFindManyArgs", map[string]any{"skip": -1})
	require.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "queryshape_validations")
	assert.Contains(t, text, `outcome="invalid"`)
	assert.Contains(t, text, "queryshape_catalog_builds")
	assert.Contains(t, text, `source="builtin"`)
}

func TestShutdown_Idempotent(t *testing.T) {
	logger, _ := testLogger()
	app := &App{logger: logger}
	var calls int32
	app.closers = []closer{{"test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}}}

	require.NoError(t, app.Shutdown(context.Background()))
	require.NoError(t, app.Shutdown(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRelease_NewestFirst(t *testing.T) {
	logger, logs := testLogger()
	app := &App{logger: logger}
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		app.closers = append(app.closers, closer{name, func(context.Context) error {
			order = append(order, name)
			if name == "second" {
				return errors.New("boom")
			}
			return nil
		}})
	}

	err := app.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: boom")
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Contains(t, logs.String(), "component=second")
}

func TestInitLogger_WithoutExports(t *testing.T) {
	cfg := testConfig()
	logger, provider, err := InitLogger(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Nil(t, provider)
}
