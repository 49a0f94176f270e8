package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"queryshape/internal/app"
	"queryshape/internal/config"
	"queryshape/internal/logging"
	"queryshape/internal/sdl"
	"queryshape/internal/shape"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

// errInvalidPayload marks a completed run whose payload failed validation.
var errInvalidPayload = errors.New("payload failed validation")

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errInvalidPayload) {
			os.Exit(2)
		}
		slog.Error("shapectl error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := config.NewFlagSet("shapectl")
	fs.Bool("version", false, "Print version and exit")
	fs.Bool("list", false, "Print every validator name")
	fs.Bool("describe", false, "Print shapes as GraphQL input definitions (all, or the names given as arguments)")
	fs.String("args", "", "Validate a JSON payload against the named validator, e.g. PostFindManyArgs")
	fs.String("input", "@-", "JSON payload file for --args (@- reads stdin)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion, _ := fs.GetBool("version"); showVersion {
		_, err := fmt.Fprintf(stdout, "queryshape %s (%s)\n", Version, Commit)
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	ctx := context.Background()
	logger, loggerProvider, err := app.InitLogger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(ctx, logger.Logger)
		}
		return err
	}
	a.AttachLoggerProvider(loggerProvider)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = a.Shutdown(shutdownCtx)
	}()

	ctx = logging.WithLogger(ctx, logger)
	if err := a.Init(ctx); err != nil {
		return err
	}

	out := printer{w: stdout, format: cfg.Output.Format, pretty: cfg.Output.Pretty}
	list, _ := fs.GetBool("list")
	describe, _ := fs.GetBool("describe")
	name, _ := fs.GetString("args")

	switch {
	case list:
		return out.list(a.Service().Validators())
	case describe:
		doc, err := sdl.Render(a.Catalog(), fs.Args()...)
		if err != nil {
			return err
		}
		_, err = io.WriteString(stdout, doc)
		return err
	case name != "":
		input, _ := fs.GetString("input")
		payload, err := readPayload(input, stdin)
		if err != nil {
			return err
		}
		normalized, err := a.Service().Validate(ctx, name, payload)
		if issues, ok := shape.AsErrors(err); ok {
			if perr := out.issues(issues); perr != nil {
				return perr
			}
			return fmt.Errorf("%w: %d issue(s)", errInvalidPayload, issues.Len())
		}
		if err != nil {
			return err
		}
		return out.value(normalized)
	default:
		fs.SetOutput(stdout)
		fs.PrintDefaults()
		return fmt.Errorf("one of --list, --describe, --args or --version is required")
	}
}

// readPayload decodes one JSON document, keeping numbers as json.Number.
func readPayload(path string, stdin io.Reader) (any, error) {
	var data []byte
	var err error
	if path == "@-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = config.ReadSource(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to decode payload: unexpected data after the JSON document")
	}
	return payload, nil
}

type printer struct {
	w      io.Writer
	format string
	pretty bool
}

func (p printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	if p.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func (p printer) list(names []string) error {
	if p.format == "json" {
		return p.json(names)
	}
	_, err := io.WriteString(p.w, strings.Join(names, "\n")+"\n")
	return err
}

func (p printer) value(v any) error {
	if p.format == "json" {
		return p.json(v)
	}
	_, err := fmt.Fprintln(p.w, "valid")
	return err
}

func (p printer) issues(e *shape.Errors) error {
	if p.format == "json" {
		return p.json(e)
	}
	for _, issue := range e.Issues {
		if _, err := fmt.Fprintln(p.w, issue.String()); err != nil {
			return err
		}
	}
	return nil
}
