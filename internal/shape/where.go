package shape

import "queryshape/internal/schema"

// defineWhere declares the filter shapes of an entity:
//
//	<E>WhereInput                     logical combinators, field filters, relation quantifiers
//	<E>WhereUniqueInput               id and unique fields
//	<E>ScalarWhereInput               where without relations
//	<E>ScalarWhereWithAggregatesInput having clause of groupBy
//	<E>ListRelationFilter             every/some/none, used by "many" relations targeting E
//	<E>RelationFilter                 is/isNot, used by required "one" relations targeting E
//	<E>NullableRelationFilter         is/isNot with null, used by optional "one" relations
func (c *Catalog) defineWhere(e *schema.Entity) {
	where := c.object(whereName(e.Name))
	c.addLogical(where)
	for _, f := range e.Fields {
		where.Add(Field{Name: f.Name, Shape: c.fieldFilter(f)})
	}
	for _, r := range e.Relations {
		where.Add(Field{Name: r.Name, Shape: c.relationFilter(e, r)})
	}

	unique := c.object(whereUniqueName(e.Name))
	for _, f := range e.UniqueFields() {
		unique.Add(Field{Name: f.Name, Shape: &Scalar{Type: f.Type}})
	}

	scalarWhere := c.object(scalarWhereName(e.Name))
	c.addLogical(scalarWhere)
	for _, f := range e.Fields {
		scalarWhere.Add(Field{Name: f.Name, Shape: c.fieldFilter(f)})
	}

	having := c.object(scalarWhereAggregatesName(e.Name))
	c.addLogical(having)
	for _, f := range e.Fields {
		having.Add(Field{Name: f.Name, Shape: c.fieldAggregateFilter(f)})
	}

	self := c.ref(whereName(e.Name))
	list := c.object(listRelationFilterName(e.Name))
	list.Add(Field{Name: "every", Shape: self})
	list.Add(Field{Name: "some", Shape: self})
	list.Add(Field{Name: "none", Shape: self})

	required := c.object(relationFilterName(e.Name))
	required.Add(Field{Name: "is", Shape: self})
	required.Add(Field{Name: "isNot", Shape: self})

	optional := c.object(nullableRelationFilterName(e.Name))
	optional.Add(Field{Name: "is", Shape: &Nullable{Inner: self}})
	optional.Add(Field{Name: "isNot", Shape: &Nullable{Inner: self}})
}

// addLogical adds AND (one or many), OR (list) and NOT (one or many), each
// nesting the object itself.
func (c *Catalog) addLogical(o *Object) {
	self := c.ref(o.Name())
	o.Add(Field{Name: "AND", Shape: oneOrMany(self)})
	o.Add(Field{Name: "OR", Shape: &List{Elem: self}})
	o.Add(Field{Name: "NOT", Shape: oneOrMany(self)})
}

func (c *Catalog) relationFilter(owner *schema.Entity, r schema.Relation) Shape {
	if r.Cardinality == schema.Many {
		return c.ref(listRelationFilterName(r.Target))
	}
	if owner.RelationOptional(r) {
		return &Nullable{Inner: NewUnion("", c.ref(nullableRelationFilterName(r.Target)), c.ref(whereName(r.Target)))}
	}
	return NewUnion("", c.ref(relationFilterName(r.Target)), c.ref(whereName(r.Target)))
}
