package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "", want: slog.LevelInfo},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", want: slog.LevelInfo, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLogger_JSONToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf})

	logger.Debug("hidden")
	logger.WithValidator("PostCreateArgs").Info("validated", slog.Int("issues", 0))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &record))
	assert.Equal(t, "validated", record["msg"])
	assert.Equal(t, "PostCreateArgs", record["validator"])
	assert.EqualValues(t, 0, record["issues"])
}

func TestNewLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "debug", Format: "text", Output: &buf})

	logger.WithFields("entity", "User").Debug("catalog ready")
	assert.Contains(t, buf.String(), "msg=\"catalog ready\"")
	assert.Contains(t, buf.String(), "entity=User")
}

func TestNewLogger_WithProviderFansOut(t *testing.T) {
	var buf bytes.Buffer
	provider := sdklog.NewLoggerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	logger := NewLogger(Config{Level: "info", Format: "text", Output: &buf, LoggerProvider: provider})
	_, ok := logger.Handler().(*multiHandler)
	require.True(t, ok)

	logger.Info("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestMultiHandler_EnabledIfAnyHandlerIs(t *testing.T) {
	var quiet, loud bytes.Buffer
	h := newMultiHandler(
		slog.NewTextHandler(&quiet, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&loud, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h).With("k", "v").WithGroup("g")
	logger.Info("only loud", "x", 1)
	assert.Empty(t, quiet.String())
	assert.Contains(t, loud.String(), "g.x=1")
	assert.Contains(t, loud.String(), "k=v")
}

func TestContextLogger(t *testing.T) {
	fallback := FromContext(context.Background())
	require.NotNil(t, fallback)
	assert.Equal(t, slog.Default(), fallback.Logger)

	var buf bytes.Buffer
	logger := NewLogger(Config{Output: &buf})
	ctx := WithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}
