package shape

import "queryshape/internal/schema"

// defineArgs composes the argument validators of every operation on e.
func (c *Catalog) defineArgs(e *schema.Entity) {
	where := c.ref(whereName(e.Name))
	unique := c.ref(whereUniqueName(e.Name))
	take := &Scalar{Type: schema.Int}
	skip := nonNegative(&Scalar{Type: schema.Int})
	fields := c.ref(scalarFieldEnumName(e.Name))
	hasRelations := len(e.Relations) > 0

	projection := func(o *Object) {
		o.Add(Field{Name: "select", Shape: c.ref(selectName(e.Name))})
		if hasRelations {
			o.Add(Field{Name: "include", Shape: c.ref(includeName(e.Name))})
			o.checks = append(o.checks, checkSelectInclude)
		}
	}

	for _, op := range []Operation{FindFirst, FindFirstOrThrow, FindMany} {
		o := c.operationArgs(e, op)
		projection(o)
		o.Add(Field{Name: "where", Shape: where})
		o.Add(Field{Name: "orderBy", Shape: oneOrMany(c.ref(orderByRelationName(e.Name)))})
		o.Add(Field{Name: "cursor", Shape: unique})
		o.Add(Field{Name: "take", Shape: take})
		o.Add(Field{Name: "skip", Shape: skip})
		o.Add(Field{Name: "distinct", Shape: &Mapped{Inner: oneOrMany(fields), Fn: asList}})
	}

	for _, op := range []Operation{FindUnique, FindUniqueOrThrow} {
		o := c.operationArgs(e, op)
		projection(o)
		o.Add(Field{Name: "where", Shape: unique, Required: true})
	}

	agg := c.operationArgs(e, Aggregate)
	agg.Add(Field{Name: "where", Shape: where})
	agg.Add(Field{Name: "orderBy", Shape: oneOrMany(c.ref(orderByRelationName(e.Name)))})
	agg.Add(Field{Name: "cursor", Shape: unique})
	agg.Add(Field{Name: "take", Shape: take})
	agg.Add(Field{Name: "skip", Shape: skip})
	c.addAggregateSelections(agg, e)

	group := c.operationArgs(e, GroupBy)
	group.Add(Field{Name: "where", Shape: where})
	group.Add(Field{Name: "orderBy", Shape: oneOrMany(c.ref(orderByAggregationName(e.Name)))})
	group.Add(Field{Name: "by", Shape: nonEmpty(&Mapped{Inner: oneOrMany(fields), Fn: asList}), Required: true})
	group.Add(Field{Name: "having", Shape: c.ref(scalarWhereAggregatesName(e.Name))})
	group.Add(Field{Name: "take", Shape: take})
	group.Add(Field{Name: "skip", Shape: skip})
	c.addAggregateSelections(group, e)

	create := c.operationArgs(e, Create)
	projection(create)
	create.Add(Field{Name: "data", Shape: c.createUnion(e.Name, ""), Required: true})

	createMany := c.operationArgs(e, CreateMany)
	createMany.Add(Field{Name: "data", Shape: oneOrMany(c.ref(createManyName(e.Name))), Required: true})
	createMany.Add(Field{Name: "skipDuplicates", Shape: &Scalar{Type: schema.Boolean}})

	update := c.operationArgs(e, Update)
	projection(update)
	update.Add(Field{Name: "data", Shape: c.updateUnion(e.Name, ""), Required: true})
	update.Add(Field{Name: "where", Shape: unique, Required: true})

	updateMany := c.operationArgs(e, UpdateMany)
	updateMany.Add(Field{Name: "data", Shape: NewUnion("", c.ref(updateManyMutationName(e.Name)), c.ref(uncheckedUpdateManyName(e.Name, ""))), Required: true})
	updateMany.Add(Field{Name: "where", Shape: where})

	upsert := c.operationArgs(e, Upsert)
	projection(upsert)
	upsert.Add(Field{Name: "where", Shape: unique, Required: true})
	upsert.Add(Field{Name: "create", Shape: c.createUnion(e.Name, ""), Required: true})
	upsert.Add(Field{Name: "update", Shape: c.updateUnion(e.Name, ""), Required: true})

	del := c.operationArgs(e, Delete)
	projection(del)
	del.Add(Field{Name: "where", Shape: unique, Required: true})

	deleteMany := c.operationArgs(e, DeleteMany)
	deleteMany.Add(Field{Name: "where", Shape: where})
}

// operationArgs declares the root object of an operation and registers its
// validator.
func (c *Catalog) operationArgs(e *schema.Entity, op Operation) *Object {
	name := ArgsName(e.Name, op)
	o := c.object(name)
	c.args[name] = &Validator{name: name, entity: e.Name, operation: op, shape: o}
	return o
}

func nonNegative(s Shape) Shape {
	return &Refine{Inner: s, Check: func(out any, path Path, errs *Errors) bool {
		if n, ok := out.(int64); ok && n < 0 {
			errs.add(path, CodeTooSmall, "must not be negative, received %d", n)
			return false
		}
		return true
	}}
}

func nonEmpty(s Shape) Shape {
	return &Refine{Inner: s, Check: func(out any, path Path, errs *Errors) bool {
		if list, ok := out.([]any); ok && len(list) == 0 {
			errs.add(path, CodeTooSmall, "must name at least one field")
			return false
		}
		return true
	}}
}
