package naming

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

// Namer converts SQL identifiers into entity and field names and builds the
// names of derived shapes.
type Namer struct {
	config Config
	logger *slog.Logger
	seen   map[string]map[string]string // entity -> field -> source
}

// New creates a Namer with the given configuration.
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config: cfg,
		logger: logger,
		seen:   make(map[string]map[string]string),
	}
}

// Default returns a Namer with default configuration.
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset forgets registered field names so the namer can be reused.
func (n *Namer) Reset() {
	n.seen = make(map[string]map[string]string)
}

// EntityName converts a table name to a singular PascalCase entity name.
// Example: "blog_posts" -> "BlogPost"
func (n *Namer) EntityName(tableName string) string {
	parts := splitWords(tableName)
	if len(parts) == 0 {
		return ""
	}
	last := len(parts) - 1
	parts[last] = n.Singularize(parts[last])
	return joinPascal(parts)
}

// FieldName converts a column name to camelCase.
// Example: "view_count" -> "viewCount"
func (n *Namer) FieldName(columnName string) string {
	return escapeReserved(toCamelCase(columnName))
}

// TypeName converts any identifier to PascalCase.
// Example: "author" -> "Author", "created_by" -> "CreatedBy"
func (n *Namer) TypeName(name string) string {
	return joinPascal(splitWords(name))
}

// ManyToOneFieldName names the "one" side of a relation after its foreign
// key with the id suffix stripped.
// Example: "author_id" -> "author", "authorId" -> "author"
func (n *Namer) ManyToOneFieldName(fkColumn string) string {
	name := fkColumn
	lower := strings.ToLower(name)
	for _, suffix := range []string{"_id", "_fk"} {
		if strings.HasSuffix(lower, suffix) {
			name = name[:len(name)-len(suffix)]
			return escapeReserved(toCamelCase(name))
		}
	}
	if strings.HasSuffix(name, "Id") && len(name) > 2 {
		name = name[:len(name)-2]
	}
	return escapeReserved(toCamelCase(name))
}

// OneToManyFieldName names the "many" side of a relation. With a single
// foreign key from the source table the pluralized table name is used,
// otherwise the foreign key name prefixes it.
// Example: isOnlyFK=true: "posts" -> "posts"
// Example: isOnlyFK=false, fkColumn="editor_id": "posts" -> "editorPosts"
func (n *Namer) OneToManyFieldName(sourceTable, fkColumn string, isOnlyFK bool) string {
	plural := n.Pluralize(toCamelCase(n.singularTable(sourceTable)))
	if isOnlyFK {
		return escapeReserved(plural)
	}
	prefix := n.ManyToOneFieldName(fkColumn)
	return escapeReserved(prefix + capitalize(plural))
}

func (n *Namer) singularTable(tableName string) string {
	parts := splitWords(tableName)
	if len(parts) == 0 {
		return tableName
	}
	last := len(parts) - 1
	parts[last] = n.Singularize(parts[last])
	return strings.Join(parts, "_")
}

// RegisterField records a field name on an entity and returns a name that
// does not collide with earlier registrations, suffixing a counter if needed.
func (n *Namer) RegisterField(entity, field, source string) string {
	fields := n.seen[entity]
	if fields == nil {
		fields = make(map[string]string)
		n.seen[entity] = fields
	}
	if _, taken := fields[field]; !taken {
		fields[field] = source
		return field
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s%d", field, i)
		if _, taken := fields[candidate]; !taken {
			n.logger.Warn("field name collision, auto-suffixed",
				slog.String("entity", entity),
				slog.String("original", field),
				slog.String("renamed", candidate),
				slog.String("source", source),
				slog.String("conflicts_with", fields[field]),
			)
			fields[candidate] = source
			return candidate
		}
	}
}

// Without returns the "Without<Relation>" fragment used in the names of
// nested payloads that omit a back-reference. It is empty when nothing is
// omitted.
func (n *Namer) Without(relation string) string {
	if relation == "" {
		return ""
	}
	return "Without" + n.TypeName(relation)
}

func splitWords(s string) []string {
	var words []string
	var current []rune
	runes := []rune(s)
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])):
			flush()
			current = append(current, r)
		default:
			current = append(current, r)
		}
	}
	flush()
	return words
}

func joinPascal(words []string) string {
	var b strings.Builder
	for _, w := range words {
		b.WriteString(capitalize(w))
	}
	return b.String()
}

func toCamelCase(s string) string {
	words := splitWords(s)
	if len(words) == 0 {
		return ""
	}
	out := lowerFirst(words[0])
	for _, w := range words[1:] {
		out += capitalize(w)
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}
