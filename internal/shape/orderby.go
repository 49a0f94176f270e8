package shape

import "queryshape/internal/schema"

// defineOrderBy declares the ordering shapes of an entity. Scalars sort by
// SortOrder; a many relation sorts by its _count and a one relation by the
// target's own ordering.
func (c *Catalog) defineOrderBy(e *schema.Entity) {
	sort := c.ref(SortOrderEnum)

	withRelation := c.object(orderByRelationName(e.Name))
	for _, f := range e.Fields {
		withRelation.Add(Field{Name: f.Name, Shape: sort})
	}
	for _, r := range e.Relations {
		if r.Cardinality == schema.Many {
			withRelation.Add(Field{Name: r.Name, Shape: c.ref(orderByRelationAggregateName(r.Target))})
		} else {
			withRelation.Add(Field{Name: r.Name, Shape: c.ref(orderByRelationName(r.Target))})
		}
	}

	c.define(NewObject(orderByRelationAggregateName(e.Name), Field{Name: "_count", Shape: sort}))

	numeric := e.NumericFields()
	c.define(sortObject(countOrderByName(e.Name), e.Fields, sort))
	c.define(sortObject(maxOrderByName(e.Name), e.Fields, sort))
	c.define(sortObject(minOrderByName(e.Name), e.Fields, sort))
	if len(numeric) > 0 {
		c.define(sortObject(avgOrderByName(e.Name), numeric, sort))
		c.define(sortObject(sumOrderByName(e.Name), numeric, sort))
	}

	withAggregation := c.object(orderByAggregationName(e.Name))
	for _, f := range e.Fields {
		withAggregation.Add(Field{Name: f.Name, Shape: sort})
	}
	withAggregation.Add(Field{Name: "_count", Shape: c.ref(countOrderByName(e.Name))})
	if len(numeric) > 0 {
		withAggregation.Add(Field{Name: "_avg", Shape: c.ref(avgOrderByName(e.Name))})
	}
	withAggregation.Add(Field{Name: "_max", Shape: c.ref(maxOrderByName(e.Name))})
	withAggregation.Add(Field{Name: "_min", Shape: c.ref(minOrderByName(e.Name))})
	if len(numeric) > 0 {
		withAggregation.Add(Field{Name: "_sum", Shape: c.ref(sumOrderByName(e.Name))})
	}
}

func sortObject(name string, fields []schema.Field, sort Shape) *Object {
	o := NewObject(name)
	for _, f := range fields {
		o.Add(Field{Name: f.Name, Shape: sort})
	}
	return o
}
