// Package schema describes entities, their scalar fields, and the relations
// between them. Descriptors are registered once and never mutated afterwards.
package schema

import (
	"fmt"
	"strings"
)

// ScalarType identifies the value domain of a scalar field.
type ScalarType string

const (
	Int      ScalarType = "Int"
	BigInt   ScalarType = "BigInt"
	Float    ScalarType = "Float"
	String   ScalarType = "String"
	Boolean  ScalarType = "Boolean"
	DateTime ScalarType = "DateTime"
)

var scalarTypes = map[ScalarType]struct{}{
	Int: {}, BigInt: {}, Float: {}, String: {}, Boolean: {}, DateTime: {},
}

// Valid reports whether t is a known scalar type.
func (t ScalarType) Valid() bool {
	_, ok := scalarTypes[t]
	return ok
}

// IsNumeric reports whether averages and sums are defined for t.
func (t ScalarType) IsNumeric() bool {
	return t == Int || t == BigInt || t == Float
}

// ParseScalarType accepts the canonical names case-insensitively.
func ParseScalarType(s string) (ScalarType, error) {
	for t := range scalarTypes {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScalarType, s)
}

// DefaultKind describes how a field is populated when a create payload omits it.
type DefaultKind string

const (
	NoDefault     DefaultKind = ""
	AutoIncrement DefaultKind = "autoincrement"
	Now           DefaultKind = "now"
	UpdatedAt     DefaultKind = "updatedAt"
	Literal       DefaultKind = "value"
)

// Default is the default-value policy of a field.
type Default struct {
	Kind  DefaultKind
	Value any // only for Literal
}

// Field describes a scalar field of an entity.
type Field struct {
	Name     string
	Type     ScalarType
	Nullable bool
	IsID     bool
	IsUnique bool
	Default  Default
}

// HasDefault reports whether the field is filled in when absent on create.
func (f Field) HasDefault() bool {
	return f.Default.Kind != NoDefault
}

// Generated reports whether the store assigns the value and callers cannot
// supply it through the checked create shape.
func (f Field) Generated() bool {
	return f.Default.Kind == AutoIncrement
}

// Cardinality is the arity of a relation as seen from its owning entity.
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// Relation describes a navigable link to another entity.
//
// A "one" relation is backed by ForeignKey, a scalar field on the owning entity.
// A "many" relation has no foreign key of its own; Inverse names the "one"
// relation on Target that points back.
type Relation struct {
	Name        string
	Target      string
	Cardinality Cardinality
	ForeignKey  string
	Inverse     string
}

// Entity is a registered record type.
type Entity struct {
	Name      string
	Fields    []Field
	Relations []Relation
}

// Field returns the scalar field with the given name.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Relation returns the relation with the given name.
func (e *Entity) Relation(name string) (Relation, bool) {
	for _, r := range e.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// IsForeignKey reports whether the field backs one of the entity's relations.
func (e *Entity) IsForeignKey(field string) bool {
	for _, r := range e.Relations {
		if r.Cardinality == One && r.ForeignKey == field {
			return true
		}
	}
	return false
}

// FieldNames returns scalar field names in declaration order.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// NumericFields returns the fields for which averages and sums are defined.
func (e *Entity) NumericFields() []Field {
	var out []Field
	for _, f := range e.Fields {
		if f.Type.IsNumeric() {
			out = append(out, f)
		}
	}
	return out
}

// UniqueFields returns fields usable as a unique selector, id first.
func (e *Entity) UniqueFields() []Field {
	var out []Field
	for _, f := range e.Fields {
		if f.IsID {
			out = append(out, f)
		}
	}
	for _, f := range e.Fields {
		if f.IsUnique && !f.IsID {
			out = append(out, f)
		}
	}
	return out
}

// RelationOptional reports whether a "one" relation may be absent, which is
// the case when its foreign key is nullable.
func (e *Entity) RelationOptional(r Relation) bool {
	if r.Cardinality != One {
		return true
	}
	fk, ok := e.Field(r.ForeignKey)
	return ok && fk.Nullable
}

func (e *Entity) clone() *Entity {
	out := &Entity{
		Name:      e.Name,
		Fields:    append([]Field(nil), e.Fields...),
		Relations: append([]Relation(nil), e.Relations...),
	}
	return out
}
