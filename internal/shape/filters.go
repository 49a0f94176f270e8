package shape

import (
	"fmt"

	"queryshape/internal/schema"
)

// Enum names shared by every entity.
const (
	SortOrderEnum                 = "SortOrder"
	QueryModeEnum                 = "QueryMode"
	TransactionIsolationLevelEnum = "TransactionIsolationLevel"
)

var filterTypes = []schema.ScalarType{
	schema.Int, schema.BigInt, schema.Float, schema.String, schema.Boolean, schema.DateTime,
}

func (c *Catalog) defineEnums(entities []*schema.Entity) {
	c.define(NewEnum(SortOrderEnum, "asc", "desc"))
	c.define(NewEnum(QueryModeEnum, "default", "insensitive"))
	c.define(NewEnum(TransactionIsolationLevelEnum, "ReadUncommitted", "ReadCommitted", "RepeatableRead", "Serializable"))
	for _, e := range entities {
		c.define(NewEnum(scalarFieldEnumName(e.Name), e.FieldNames()...))
	}
}

func scalarFieldEnumName(entity string) string {
	return entity + "ScalarFieldEnum"
}

// typeToken is the spelling of a scalar type inside shape names.
func typeToken(t schema.ScalarType) string {
	if t == schema.Boolean {
		return "Bool"
	}
	return string(t)
}

// FilterName returns the name of the filter shape for a scalar type.
func FilterName(t schema.ScalarType, nullable bool) string {
	if nullable {
		return typeToken(t) + "NullableFilter"
	}
	return typeToken(t) + "Filter"
}

// AggregateFilterName returns the name of the having-clause filter for a
// scalar type.
func AggregateFilterName(t schema.ScalarType, nullable bool) string {
	if nullable {
		return typeToken(t) + "NullableWithAggregatesFilter"
	}
	return typeToken(t) + "WithAggregatesFilter"
}

func (c *Catalog) defineFilters() error {
	for _, t := range filterTypes {
		for _, nullable := range []bool{false, true} {
			c.define(c.scalarFilter(t, nullable))

			agg, err := c.aggregateFilter(t, nullable, aggregateOpsFor(t))
			if err != nil {
				return err
			}
			c.define(agg)
		}
	}
	return nil
}

// scalarFilter builds the operator object for one scalar type.
//
//	numeric, DateTime: equals in notIn lt lte gt gte not
//	String:            the above plus contains startsWith endsWith mode
//	Boolean:           equals not
//
// The nullable variant admits null for equals, in, notIn and not.
func (c *Catalog) scalarFilter(t schema.ScalarType, nullable bool) *Object {
	name := FilterName(t, nullable)
	o := NewObject(name)
	o.unknown = CodeUnrecognizedFilterOperator
	c.addComparisonOperators(o, t, nullable)
	o.Add(Field{Name: "not", Shape: NewUnion("", bare(t, nullable), c.ref(name))})
	return o
}

func (c *Catalog) addComparisonOperators(o *Object, t schema.ScalarType, nullable bool) {
	value := &Scalar{Type: t}
	o.Add(Field{Name: "equals", Shape: bare(t, nullable)})
	if t == schema.Boolean {
		return
	}
	var list Shape = &List{Elem: value}
	if nullable {
		list = &Nullable{Inner: list}
	}
	o.Add(Field{Name: "in", Shape: list})
	o.Add(Field{Name: "notIn", Shape: list})
	for _, op := range []string{"lt", "lte", "gt", "gte"} {
		o.Add(Field{Name: op, Shape: value})
	}
	if t == schema.String {
		for _, op := range []string{"contains", "startsWith", "endsWith"} {
			o.Add(Field{Name: op, Shape: value})
		}
		o.Add(Field{Name: "mode", Shape: c.ref(QueryModeEnum)})
	}
}

func bare(t schema.ScalarType, nullable bool) Shape {
	var s Shape = &Scalar{Type: t}
	if nullable {
		s = &Nullable{Inner: s}
	}
	return s
}

// equalsShorthand accepts a bare value where a filter is expected and
// expands it to {"equals": value}.
func equalsShorthand(t schema.ScalarType, nullable bool) Shape {
	return &Mapped{
		Inner: bare(t, nullable),
		Fn: func(v any) any {
			return map[string]any{"equals": v}
		},
	}
}

// fieldFilter is the where-clause shape of a scalar field: a filter object or
// the equality shorthand.
func (c *Catalog) fieldFilter(f schema.Field) Shape {
	return NewUnion("", c.ref(FilterName(f.Type, f.Nullable)), equalsShorthand(f.Type, f.Nullable))
}

// AggregateOp is an aggregate available on a having-clause filter.
type AggregateOp string

const (
	AggCount AggregateOp = "_count"
	AggMin   AggregateOp = "_min"
	AggMax   AggregateOp = "_max"
	AggAvg   AggregateOp = "_avg"
	AggSum   AggregateOp = "_sum"
)

func aggregateOpsFor(t schema.ScalarType) []AggregateOp {
	ops := []AggregateOp{AggCount, AggMin, AggMax}
	if t.IsNumeric() {
		ops = append(ops, AggAvg, AggSum)
	}
	return ops
}

// aggregateFilter extends the scalar filter with aggregate sub-filters.
// _count is an Int filter, _min and _max filter the field's own type, _avg is
// a Float filter and _sum filters the field's own type.
func (c *Catalog) aggregateFilter(t schema.ScalarType, nullable bool, ops []AggregateOp) (*Object, error) {
	name := AggregateFilterName(t, nullable)
	o := NewObject(name)
	o.unknown = CodeUnrecognizedFilterOperator
	c.addComparisonOperators(o, t, nullable)
	o.Add(Field{Name: "not", Shape: NewUnion("", bare(t, nullable), c.ref(name))})

	for _, op := range ops {
		var target string
		switch op {
		case AggCount:
			target = FilterName(schema.Int, false)
		case AggMin, AggMax:
			target = FilterName(t, nullable)
		case AggAvg, AggSum:
			if !t.IsNumeric() {
				return nil, fmt.Errorf("%s on %s: %w", op, t, ErrNonNumericAggregate)
			}
			target = FilterName(t, nullable)
			if op == AggAvg {
				target = FilterName(schema.Float, nullable)
			}
		default:
			return nil, fmt.Errorf("unknown aggregate %q", op)
		}
		o.Add(Field{Name: string(op), Shape: c.ref(target)})
	}
	return o, nil
}

// fieldAggregateFilter is the having-clause shape of a scalar field.
func (c *Catalog) fieldAggregateFilter(f schema.Field) Shape {
	return NewUnion("", c.ref(AggregateFilterName(f.Type, f.Nullable)), equalsShorthand(f.Type, f.Nullable))
}
