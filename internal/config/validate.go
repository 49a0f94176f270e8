package config

import (
	"fmt"
	"path"
	"strings"

	"queryshape/internal/logging"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, hint, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

func (r *ValidationResult) addWarning(field, hint, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

// Validate checks the configuration and returns fatal errors and warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Schema.validate(result)
	if c.Schema.Source == SourceDatabase {
		c.Database.validate(result)
	}
	c.Output.validate(result)
	validateNaming(result, c)
	c.Observability.validate(result)

	return result
}

func (s *SchemaConfig) validate(result *ValidationResult) {
	switch s.Source {
	case SourceBuiltin:
		if s.File != "" {
			result.addWarning("schema.file", "set schema.source=file to use it", "schema.file is ignored for the builtin source")
		}
	case SourceFile:
		if strings.TrimSpace(s.File) == "" {
			result.addError("schema.file", "point schema.file at a YAML descriptor or use @- for stdin", "schema.file is required when schema.source is %q", SourceFile)
		}
	case SourceDatabase:
	default:
		result.addError("schema.source", "valid values are: builtin, file, database", "invalid schema source %q", s.Source)
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.addError("database.port", "", "port %d is out of valid range (1-65535)", d.Port)
	}
	if !validTLSMode(d.TLSMode) {
		result.addError("database.tls_mode", "valid values are: false, true, skip-verify, preferred", "invalid TLS mode %q", d.TLSMode)
	}
	if d.ConnectTimeout < 0 {
		result.addError("database.connect_timeout", "", "connect_timeout cannot be negative")
	}
	if _, err := d.EffectiveDatabaseName(); err != nil {
		result.addError("database.database", "", "%v", err)
	}
	if d.Password != "" && d.PasswordPrompt {
		result.addWarning("database.password_prompt", "", "password already configured, prompt is skipped")
	}
	if len(d.IncludeTables) == 0 {
		result.addWarning("database.include_tables", "use * to introspect every table", "no tables selected for introspection")
	}
	validateGlobList(result, "database.include_tables", d.IncludeTables)
}

func (o *OutputConfig) validate(result *ValidationResult) {
	if o.Format != "json" && o.Format != "text" {
		result.addError("output.format", "valid values are: json, text", "invalid output format %q", o.Format)
	}
	if o.Pretty && o.Format == "text" {
		result.addWarning("output.pretty", "", "pretty printing only applies to json output")
	}
}

func validateNaming(result *ValidationResult, c *Config) {
	check := func(field string, overrides map[string]string) {
		for from, to := range overrides {
			if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
				result.addError(field, "", "override %q -> %q must not be empty", from, to)
			}
		}
	}
	check("naming.plural_overrides", c.Naming.PluralOverrides)
	check("naming.singular_overrides", c.Naming.SingularOverrides)
	if c.Schema.Source != SourceDatabase && (len(c.Naming.PluralOverrides) > 0 || len(c.Naming.SingularOverrides) > 0) {
		result.addWarning("naming", "naming overrides only affect the database source", "naming overrides are ignored for schema source %q", c.Schema.Source)
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if _, err := logging.ParseLevel(o.Logging.Level); err != nil {
		result.addError("observability.logging.level", "valid values are: debug, info, warn, error", "%v", err)
	}
	if o.Logging.Format != "json" && o.Logging.Format != "text" {
		result.addError("observability.logging.format", "valid values are: json, text", "invalid log format %q", o.Logging.Format)
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", "", "trace_sample_ratio %v must be between 0 and 1", o.TraceSampleRatio)
	}
	if o.MetricsFile != "" && !o.MetricsEnabled {
		result.addWarning("observability.metrics_file", "set observability.metrics_enabled=true", "metrics_file is set but metrics are disabled")
	}
	if o.TracingEnabled {
		validateOTLP(result, "observability.traces", o.GetTracesConfig())
	}
	if o.Logging.ExportsEnabled {
		validateOTLP(result, "observability.logs", o.GetLogsConfig())
	}
}

func validateOTLP(result *ValidationResult, field string, cfg OTLPConfig) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		result.addError(field+".endpoint", "set observability.otlp.endpoint", "OTLP endpoint is required")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Protocol)) {
	case "", "grpc", "http", "http/protobuf":
	default:
		result.addError(field+".protocol", "valid values are: grpc, http/protobuf", "invalid OTLP protocol %q", cfg.Protocol)
	}
	switch cfg.Compression {
	case "", "none", "gzip":
	default:
		result.addError(field+".compression", "valid values are: none, gzip", "invalid OTLP compression %q", cfg.Compression)
	}
	if (cfg.TLSClientCertFile == "") != (cfg.TLSClientKeyFile == "") {
		result.addError(field+".tls_client_cert_file", "", "OTLP TLS client cert and key must both be set")
	}
	if cfg.Insecure && cfg.TLSCertFile != "" {
		result.addWarning(field+".insecure", "", "tls_cert_file is ignored when insecure is true")
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.addError(field, "", "pattern cannot be empty")
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
			result.addError(field, "", "invalid glob pattern %q: %v", pattern, err)
		}
	}
}
