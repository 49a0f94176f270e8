// Package shape builds strict validators for query and mutation arguments
// from entity descriptors and runs them over decoded payloads.
//
// Shapes form a graph: objects hold fields, unions hold alternatives, and
// named shapes reference each other through deferred Refs so cyclic
// structures (a where input nesting itself, a user nesting posts nesting
// their author) are built once and resolved on first use.
package shape

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"queryshape/internal/scalars"
	"queryshape/internal/schema"
)

// Shape validates one decoded value.
type Shape interface {
	// Name is the registered name of the shape, or "" for anonymous shapes.
	Name() string
	// Accepts is a structural pre-check used to pick union alternatives.
	Accepts(value any) bool
	// Validate checks value and returns its normalized form. Issues are
	// appended to errs; ok is false when any were found.
	Validate(value any, path Path, errs *Errors) (out any, ok bool)
}

func isObject(v any) bool {
	_, ok := v.(map[string]any)
	return ok
}

func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}

// Scalar accepts one scalar type and coerces it.
type Scalar struct {
	Type schema.ScalarType
}

func (s *Scalar) Name() string { return string(s.Type) }

func (s *Scalar) Accepts(v any) bool {
	return v != nil && !isObject(v) && !isList(v)
}

func (s *Scalar) Validate(v any, path Path, errs *Errors) (any, bool) {
	if v == nil {
		errs.add(path, CodeInvalidType, "expected %s, received null", s.Type)
		return nil, false
	}
	out, err := scalars.Coerce(s.Type, v)
	if err != nil {
		errs.add(path, codeForCoercion(err), "%s", err.Error())
		return nil, false
	}
	return out, true
}

func codeForCoercion(err error) Code {
	switch {
	case errors.Is(err, scalars.ErrNotInteger):
		return CodeNotInteger
	case errors.Is(err, scalars.ErrOutOfRange):
		return CodeOutOfRange
	case errors.Is(err, scalars.ErrInvalidDate):
		return CodeInvalidDate
	default:
		return CodeInvalidType
	}
}

// Nullable admits null in addition to Inner.
type Nullable struct {
	Inner Shape
}

func (n *Nullable) Name() string { return "" }

func (n *Nullable) Accepts(v any) bool {
	return v == nil || n.Inner.Accepts(v)
}

func (n *Nullable) Validate(v any, path Path, errs *Errors) (any, bool) {
	if v == nil {
		return nil, true
	}
	return n.Inner.Validate(v, path, errs)
}

// List validates every element against Elem.
type List struct {
	Elem Shape
}

func (l *List) Name() string { return "" }

func (l *List) Accepts(v any) bool { return isList(v) }

func (l *List) Validate(v any, path Path, errs *Errors) (any, bool) {
	items, ok := v.([]any)
	if !ok {
		errs.add(path, CodeInvalidType, "expected list of %s, received %s", describe(l.Elem), scalars.Describe(v))
		return nil, false
	}
	out := make([]any, len(items))
	valid := true
	for i, item := range items {
		val, ok := l.Elem.Validate(item, path.Index(i), errs)
		if !ok {
			valid = false
		}
		out[i] = val
	}
	return out, valid
}

// Enum accepts one of a fixed set of string tokens.
type Enum struct {
	name   string
	values []string
	set    map[string]struct{}
}

// NewEnum declares an enum shape.
func NewEnum(name string, values ...string) *Enum {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return &Enum{name: name, values: values, set: set}
}

func (e *Enum) Name() string { return e.name }

// Values returns the tokens in declaration order.
func (e *Enum) Values() []string { return append([]string(nil), e.values...) }

func (e *Enum) Accepts(v any) bool {
	_, ok := v.(string)
	return ok
}

func (e *Enum) Validate(v any, path Path, errs *Errors) (any, bool) {
	s, ok := v.(string)
	if !ok {
		errs.add(path, CodeInvalidType, "expected %s, received %s", e.name, scalars.Describe(v))
		return nil, false
	}
	if _, ok := e.set[s]; !ok {
		errs.add(path, CodeInvalidEnumValue, "invalid %s value %q, expected one of %s", e.name, s, strings.Join(e.values, " | "))
		return nil, false
	}
	return s, true
}

// Mapped post-processes the output of Inner on success.
type Mapped struct {
	Inner Shape
	Fn    func(any) any
}

func (m *Mapped) Name() string { return m.Inner.Name() }

func (m *Mapped) Accepts(v any) bool { return m.Inner.Accepts(v) }

func (m *Mapped) Validate(v any, path Path, errs *Errors) (any, bool) {
	out, ok := m.Inner.Validate(v, path, errs)
	if !ok {
		return out, false
	}
	return m.Fn(out), true
}

// Refine runs an extra check on the output of Inner.
type Refine struct {
	Inner Shape
	Check func(out any, path Path, errs *Errors) bool
}

func (r *Refine) Name() string { return r.Inner.Name() }

func (r *Refine) Accepts(v any) bool { return r.Inner.Accepts(v) }

func (r *Refine) Validate(v any, path Path, errs *Errors) (any, bool) {
	out, ok := r.Inner.Validate(v, path, errs)
	if !ok {
		return out, false
	}
	return out, r.Check(out, path, errs)
}

// Union accepts a value matching any of its options. The first option that
// validates wins; when none do, the issues of the closest option are kept.
type Union struct {
	name    string
	Options []Shape
}

// NewUnion declares a union. An empty name makes it anonymous.
func NewUnion(name string, options ...Shape) *Union {
	return &Union{name: name, Options: options}
}

func (u *Union) Name() string { return u.name }

func (u *Union) Accepts(v any) bool {
	for _, opt := range u.Options {
		if opt.Accepts(v) {
			return true
		}
	}
	return false
}

func (u *Union) Validate(v any, path Path, errs *Errors) (any, bool) {
	var candidates []Shape
	for _, opt := range u.Options {
		if opt.Accepts(v) {
			candidates = append(candidates, opt)
		}
	}
	if len(candidates) == 0 {
		errs.add(path, CodeInvalidType, "expected %s, received %s", describe(u), scalars.Describe(v))
		return nil, false
	}

	// Objects whose keys cover the input are tried before the rest.
	if m, ok := v.(map[string]any); ok && len(candidates) > 1 {
		var exact, rest []Shape
		for _, c := range candidates {
			if obj := objectOf(c); obj != nil && obj.unknownKeys(m) > 0 {
				rest = append(rest, c)
			} else {
				exact = append(exact, c)
			}
		}
		if len(exact) > 0 {
			candidates = exact
		} else {
			candidates = rest
		}
	}

	var best *Errors
	for _, c := range candidates {
		scratch := &Errors{}
		out, ok := c.Validate(v, path, scratch)
		if ok {
			return out, true
		}
		if best == nil || scratch.Len() < best.Len() {
			best = scratch
		}
	}
	errs.merge(best)
	return nil, false
}

// Ref points at a named shape in a catalog. The target is looked up on first
// use and memoized.
type Ref struct {
	name   string
	lookup func(string) Shape
	once   sync.Once
	target Shape
}

func (r *Ref) Name() string { return r.name }

// Target resolves the referenced shape.
func (r *Ref) Target() Shape {
	r.once.Do(func() {
		r.target = r.lookup(r.name)
	})
	return r.target
}

func (r *Ref) Accepts(v any) bool {
	t := r.Target()
	return t != nil && t.Accepts(v)
}

func (r *Ref) Validate(v any, path Path, errs *Errors) (any, bool) {
	t := r.Target()
	if t == nil {
		errs.add(path, CodeInternal, "shape %s is not defined", r.name)
		return nil, false
	}
	return t.Validate(v, path, errs)
}

// Field is one key of an Object.
type Field struct {
	Name     string
	Shape    Shape
	Required bool
	// Default produces the value used when the key is absent.
	Default func() any
}

// Object is a strict record: unknown keys are rejected.
type Object struct {
	name    string
	fields  []Field
	index   map[string]int
	unknown Code
	checks  []func(out map[string]any, path Path, errs *Errors)
}

// NewObject declares an object shape.
func NewObject(name string, fields ...Field) *Object {
	o := &Object{name: name, index: make(map[string]int), unknown: CodeUnrecognizedKey}
	for _, f := range fields {
		o.Add(f)
	}
	return o
}

func (o *Object) Name() string { return o.name }

// Add appends a field. Later fields with the same name replace earlier ones.
func (o *Object) Add(f Field) {
	if i, ok := o.index[f.Name]; ok {
		o.fields[i] = f
		return
	}
	o.index[f.Name] = len(o.fields)
	o.fields = append(o.fields, f)
}

// Fields returns the declared fields in order.
func (o *Object) Fields() []Field { return append([]Field(nil), o.fields...) }

// Field returns the declared field with the given name.
func (o *Object) Field(name string) (Field, bool) {
	i, ok := o.index[name]
	if !ok {
		return Field{}, false
	}
	return o.fields[i], true
}

func (o *Object) Accepts(v any) bool { return isObject(v) }

func (o *Object) unknownKeys(m map[string]any) int {
	n := 0
	for k := range m {
		if _, ok := o.index[k]; !ok {
			n++
		}
	}
	return n
}

func (o *Object) Validate(v any, path Path, errs *Errors) (any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		errs.add(path, CodeInvalidType, "expected %s, received %s", describe(o), scalars.Describe(v))
		return nil, false
	}

	before := errs.Len()
	var unknown []string
	for k := range m {
		if _, known := o.index[k]; !known {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		if o.unknown == CodeUnrecognizedFilterOperator {
			errs.add(path.Key(k), o.unknown, "unrecognized filter operator %q on field %q", k, filteredField(path))
		} else {
			errs.add(path.Key(k), o.unknown, "unrecognized key %q in %s", k, describe(o))
		}
	}

	out := make(map[string]any, len(m))
	for _, f := range o.fields {
		raw, present := m[f.Name]
		if !present {
			if f.Required {
				errs.add(path.Key(f.Name), CodeRequired, "%s is required", f.Name)
			} else if f.Default != nil {
				out[f.Name] = f.Default()
			}
			continue
		}
		val, ok := f.Shape.Validate(raw, path.Key(f.Name), errs)
		if ok {
			out[f.Name] = val
		}
	}

	for _, check := range o.checks {
		check(out, path, errs)
	}
	if errs.Len() != before {
		return nil, false
	}
	return out, true
}

// filteredField names the entity field a filter object applies to, skipping
// operator keys such as not or _min that nest filters.
func filteredField(path Path) string {
	for i := len(path) - 1; i >= 0; i-- {
		s, ok := path[i].(string)
		if !ok {
			continue
		}
		switch s {
		case "not", "_count", "_min", "_max", "_avg", "_sum":
			continue
		}
		return s
	}
	return ""
}

func objectOf(s Shape) *Object {
	for {
		switch v := s.(type) {
		case *Object:
			return v
		case *Ref:
			s = v.Target()
		case *Mapped:
			s = v.Inner
		case *Refine:
			s = v.Inner
		default:
			return nil
		}
	}
}

func describe(s Shape) string {
	switch v := s.(type) {
	case nil:
		return "unknown"
	case *Nullable:
		return describe(v.Inner) + " | null"
	case *List:
		return "list of " + describe(v.Elem)
	case *Union:
		if v.name != "" {
			return v.name
		}
		parts := make([]string, len(v.Options))
		for i, opt := range v.Options {
			parts[i] = describe(opt)
		}
		return strings.Join(parts, " | ")
	case *Mapped:
		return describe(v.Inner)
	case *Refine:
		return describe(v.Inner)
	default:
		if name := s.Name(); name != "" {
			return name
		}
		return fmt.Sprintf("%T", s)
	}
}

func oneOrMany(s Shape) *Union {
	return NewUnion("", s, &List{Elem: s})
}

func asList(v any) any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}
