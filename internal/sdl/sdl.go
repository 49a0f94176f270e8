// Package sdl describes catalog shapes as GraphQL input type definitions.
//
// GraphQL inputs have no unions, so a union is rendered as its first named
// object alternative and a value-or-list union as a list. The output is a
// readable summary of the accepted payloads, not a schema to execute.
package sdl

import (
	"fmt"
	"sort"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"

	"queryshape/internal/scalars"
	"queryshape/internal/schema"
	"queryshape/internal/shape"
)

var scalarOrder = []schema.ScalarType{
	schema.Int, schema.BigInt, schema.Float, schema.String, schema.Boolean, schema.DateTime,
}

// Render prints the named shapes, or every enum and object shape of the
// catalog when names is empty.
func Render(c *shape.Catalog, names ...string) (string, error) {
	doc, err := Document(c, names...)
	if err != nil {
		return "", err
	}
	printed := printer.Print(doc)
	out, ok := printed.(string)
	if !ok {
		return "", fmt.Errorf("unexpected printed document type %T", printed)
	}
	return out, nil
}

// Document builds the AST for the named shapes. Custom scalars are declared
// first, then enums, then input objects, each group sorted by name.
func Document(c *shape.Catalog, names ...string) (*ast.Document, error) {
	if len(names) == 0 {
		names = c.ShapeNames()
	} else {
		names = append([]string(nil), names...)
		sort.Strings(names)
	}

	var enums, inputs []ast.Node
	for _, name := range names {
		s, ok := c.Shape(name)
		if !ok {
			return nil, fmt.Errorf("unknown shape %q", name)
		}
		switch v := s.(type) {
		case *shape.Enum:
			enums = append(enums, enumDefinition(v))
		case *shape.Object:
			inputs = append(inputs, inputDefinition(v))
		}
	}

	definitions := make([]ast.Node, 0, len(enums)+len(inputs)+2)
	for _, t := range scalarOrder {
		gql := scalars.GraphQLType(t)
		if isBuiltin(gql.Name()) {
			continue
		}
		definitions = append(definitions, ast.NewScalarDefinition(&ast.ScalarDefinition{
			Name:        name(gql.Name()),
			Description: ast.NewStringValue(&ast.StringValue{Value: gql.Description()}),
		}))
	}
	definitions = append(definitions, enums...)
	definitions = append(definitions, inputs...)
	return ast.NewDocument(&ast.Document{Definitions: definitions}), nil
}

func isBuiltin(scalar string) bool {
	switch scalar {
	case "Int", "Float", "String", "Boolean", "ID":
		return true
	}
	return false
}

func name(value string) *ast.Name {
	return ast.NewName(&ast.Name{Value: value})
}

func enumDefinition(e *shape.Enum) *ast.EnumDefinition {
	values := make([]*ast.EnumValueDefinition, 0, len(e.Values()))
	for _, v := range e.Values() {
		values = append(values, ast.NewEnumValueDefinition(&ast.EnumValueDefinition{Name: name(v)}))
	}
	return ast.NewEnumDefinition(&ast.EnumDefinition{Name: name(e.Name()), Values: values})
}

func inputDefinition(o *shape.Object) *ast.InputObjectDefinition {
	fields := make([]*ast.InputValueDefinition, 0, len(o.Fields()))
	for _, f := range o.Fields() {
		typ := typeOf(f.Shape)
		if f.Required {
			if _, already := typ.(*ast.NonNull); !already {
				typ = ast.NewNonNull(&ast.NonNull{Type: typ})
			}
		} else if nn, ok := typ.(*ast.NonNull); ok {
			typ = nn.Type
		}
		fields = append(fields, ast.NewInputValueDefinition(&ast.InputValueDefinition{
			Name: name(f.Name),
			Type: typ,
		}))
	}
	return ast.NewInputObjectDefinition(&ast.InputObjectDefinition{Name: name(o.Name()), Fields: fields})
}

// typeOf maps a shape to a GraphQL type reference. Shapes that reject null
// are wrapped in NonNull; inputDefinition unwraps optional fields again.
func typeOf(s shape.Shape) ast.Type {
	switch v := s.(type) {
	case *shape.Scalar:
		return nonNull(named(scalars.GraphQLType(v.Type).Name()))
	case *shape.Nullable:
		inner := typeOf(v.Inner)
		if nn, ok := inner.(*ast.NonNull); ok {
			return nn.Type
		}
		return inner
	case *shape.List:
		return nonNull(ast.NewList(&ast.List{Type: typeOf(v.Elem)}))
	case *shape.Mapped:
		return typeOf(v.Inner)
	case *shape.Refine:
		return typeOf(v.Inner)
	case *shape.Union:
		return unionType(v)
	default:
		return nonNull(named(s.Name()))
	}
}

func unionType(u *shape.Union) ast.Type {
	// one-or-many: the list form covers the single value too.
	if len(u.Options) == 2 {
		if l, ok := u.Options[1].(*shape.List); ok && l.Elem == u.Options[0] {
			return typeOf(l)
		}
	}
	for _, opt := range u.Options {
		if _, ok := opt.(*shape.Ref); ok {
			return typeOf(opt)
		}
	}
	for _, opt := range u.Options {
		if inner, ok := opt.(*shape.Union); ok {
			return unionType(inner)
		}
	}
	return typeOf(u.Options[0])
}

func named(value string) *ast.Named {
	return ast.NewNamed(&ast.Named{Name: name(value)})
}

func nonNull(t ast.Type) ast.Type {
	return ast.NewNonNull(&ast.NonNull{Type: t})
}
