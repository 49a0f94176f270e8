package scalars

import (
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"queryshape/internal/schema"
)

// GraphQLType returns the GraphQL scalar used when shapes are described as
// GraphQL input definitions. Built-in scalars map to graphql-go's own types.
func GraphQLType(t schema.ScalarType) *graphql.Scalar {
	switch t {
	case schema.Int:
		return graphql.Int
	case schema.Float:
		return graphql.Float
	case schema.String:
		return graphql.String
	case schema.Boolean:
		return graphql.Boolean
	case schema.BigInt:
		return bigIntScalar
	case schema.DateTime:
		return dateTimeScalar
	default:
		return nil
	}
}

var bigIntScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "BigInt",
	Description: "A signed 64-bit integer. Accepts numbers or base-10 strings.",
	Serialize: func(value interface{}) interface{} {
		n, err := Coerce(schema.BigInt, value)
		if err != nil {
			return nil
		}
		return strconv.FormatInt(n.(int64), 10)
	},
	ParseValue: func(value interface{}) interface{} {
		n, err := Coerce(schema.BigInt, value)
		if err != nil {
			return nil
		}
		return n
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		switch v := valueAST.(type) {
		case *ast.IntValue:
			n, err := strconv.ParseInt(v.Value, 10, 64)
			if err != nil {
				return nil
			}
			return n
		case *ast.StringValue:
			n, err := Coerce(schema.BigInt, v.Value)
			if err != nil {
				return nil
			}
			return n
		}
		return nil
	},
})

var dateTimeScalar = graphql.NewScalar(graphql.ScalarConfig{
	Name:        "DateTime",
	Description: "An instant in time. Accepts RFC 3339 strings, dates, or epoch milliseconds.",
	Serialize: func(value interface{}) interface{} {
		t, err := Coerce(schema.DateTime, value)
		if err != nil {
			return nil
		}
		return t.(time.Time).Format(time.RFC3339Nano)
	},
	ParseValue: func(value interface{}) interface{} {
		t, err := Coerce(schema.DateTime, value)
		if err != nil {
			return nil
		}
		return t
	},
	ParseLiteral: func(valueAST ast.Value) interface{} {
		sv, ok := valueAST.(*ast.StringValue)
		if !ok {
			return nil
		}
		t, err := Coerce(schema.DateTime, sv.Value)
		if err != nil {
			return nil
		}
		return t
	},
})
