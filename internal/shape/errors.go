package shape

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Construction errors. They are returned by NewCatalog and abort startup.
var (
	ErrNonNumericAggregate = errors.New("average and sum aggregates require a numeric type")
	ErrDanglingReference   = errors.New("shape reference has no definition")
	ErrDuplicateShape      = errors.New("shape defined twice")
	ErrUnterminatedNesting = errors.New("nested payload construction does not terminate")
	ErrReservedName        = errors.New("field name collides with a reserved shape key")
	ErrRegistryNotSealed   = errors.New("registry must be sealed before building shapes")
	ErrUnknownValidator    = errors.New("unknown validator")
)

// Code classifies a validation issue.
type Code string

const (
	CodeInvalidType                Code = "invalid_type"
	CodeRequired                   Code = "required"
	CodeUnrecognizedKey            Code = "unrecognized_key"
	CodeUnrecognizedFilterOperator Code = "unrecognized_filter_operator"
	CodeInvalidEnumValue           Code = "invalid_enum_value"
	CodeNotInteger                 Code = "not_integer"
	CodeOutOfRange                 Code = "out_of_range"
	CodeInvalidDate                Code = "invalid_date"
	CodeTooSmall                   Code = "too_small"
	CodeSelectIncludeConflict      Code = "select_include_conflict"
	CodeInternal                   Code = "internal"
)

// Path locates a value inside a payload. Elements are object keys (string)
// or list indexes (int).
type Path []any

// Key returns a copy of p extended with an object key.
func (p Path) Key(k string) Path {
	return append(p[:len(p):len(p)], k)
}

// Index returns a copy of p extended with a list index.
func (p Path) Index(i int) Path {
	return append(p[:len(p):len(p)], i)
}

// String renders the path as a.b[0].c.
func (p Path) String() string {
	var b strings.Builder
	for _, elem := range p {
		switch v := elem.(type) {
		case int:
			b.WriteString("[")
			b.WriteString(strconv.Itoa(v))
			b.WriteString("]")
		default:
			if b.Len() > 0 {
				b.WriteString(".")
			}
			fmt.Fprint(&b, v)
		}
	}
	return b.String()
}

// Issue is a single violation found while validating a payload.
type Issue struct {
	Path    Path   `json:"path"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if len(i.Path) == 0 {
		return fmt.Sprintf("%s: %s", i.Code, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Path, i.Code, i.Message)
}

// Errors collects every issue found in a payload. Validation never stops at
// the first problem.
type Errors struct {
	Issues []Issue `json:"issues"`
}

func (e *Errors) add(path Path, code Code, format string, args ...any) {
	e.Issues = append(e.Issues, Issue{
		Path:    append(Path(nil), path...),
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

func (e *Errors) merge(other *Errors) {
	e.Issues = append(e.Issues, other.Issues...)
}

// Len returns the number of issues.
func (e *Errors) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Issues)
}

// Has reports whether any issue carries code.
func (e *Errors) Has(code Code) bool {
	for _, issue := range e.Issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// At returns the issues reported at the rendered path.
func (e *Errors) At(path string) []Issue {
	var out []Issue
	for _, issue := range e.Issues {
		if issue.Path.String() == path {
			out = append(out, issue)
		}
	}
	return out
}

// Codes returns the distinct codes in first-seen order.
func (e *Errors) Codes() []Code {
	seen := make(map[Code]bool)
	var out []Code
	for _, issue := range e.Issues {
		if !seen[issue.Code] {
			seen[issue.Code] = true
			out = append(out, issue.Code)
		}
	}
	return out
}

func (e *Errors) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.String()
	}
	return strings.Join(msgs, "; ")
}

// AsErrors unwraps a validation failure.
func AsErrors(err error) (*Errors, bool) {
	var verrs *Errors
	if errors.As(err, &verrs) {
		return verrs, true
	}
	return nil, false
}
