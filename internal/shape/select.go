package shape

import (
	"sort"

	"queryshape/internal/schema"
)

// defineSelect declares the projection shapes of an entity. A scalar is
// selected with a boolean. A many relation takes true or the target's
// find-many arguments, a one relation true or <T>Args, and _count true or
// <E>CountOutputTypeArgs. Entities without relations have no include.
func (c *Catalog) defineSelect(e *schema.Entity) {
	boolean := &Scalar{Type: schema.Boolean}

	sel := c.object(selectName(e.Name))
	for _, f := range e.Fields {
		sel.Add(Field{Name: f.Name, Shape: boolean})
	}

	args := c.object(argsName(e.Name))
	args.Add(Field{Name: "select", Shape: c.ref(selectName(e.Name))})
	if len(e.Relations) == 0 {
		return
	}
	args.Add(Field{Name: "include", Shape: c.ref(includeName(e.Name))})
	args.checks = append(args.checks, checkSelectInclude)

	include := c.object(includeName(e.Name))
	countSelect := c.object(countOutputSelectName(e.Name))
	hasMany := false
	for _, r := range e.Relations {
		var nested Shape
		if r.Cardinality == schema.Many {
			hasMany = true
			nested = NewUnion("", boolean, c.ref(ArgsName(r.Target, FindMany)))
			countSelect.Add(Field{Name: r.Name, Shape: boolean})
		} else {
			nested = NewUnion("", boolean, c.ref(argsName(r.Target)))
		}
		sel.Add(Field{Name: r.Name, Shape: nested})
		include.Add(Field{Name: r.Name, Shape: nested})
	}

	countArgs := c.object(countOutputArgsName(e.Name))
	countArgs.Add(Field{Name: "select", Shape: &Nullable{Inner: c.ref(countOutputSelectName(e.Name))}})
	if hasMany {
		count := NewUnion("", boolean, c.ref(countOutputArgsName(e.Name)))
		sel.Add(Field{Name: "_count", Shape: count})
		include.Add(Field{Name: "_count", Shape: count})
	}
}

// checkSelectInclude rejects arguments whose select and include name the
// same relation.
func checkSelectInclude(out map[string]any, path Path, errs *Errors) {
	sel, ok := out["select"].(map[string]any)
	if !ok {
		return
	}
	inc, ok := out["include"].(map[string]any)
	if !ok {
		return
	}
	var both []string
	for k := range inc {
		if _, ok := sel[k]; ok {
			both = append(both, k)
		}
	}
	sort.Strings(both)
	for _, k := range both {
		errs.add(path.Key("include").Key(k), CodeSelectIncludeConflict,
			"%q cannot appear in both select and include", k)
	}
}

// defineAggregateSelections declares the aggregate projections used by the
// aggregate and groupBy arguments. _count takes every scalar plus _all,
// _min and _max every scalar, _avg and _sum only numeric scalars.
func (c *Catalog) defineAggregateSelections(e *schema.Entity) {
	boolean := &Scalar{Type: schema.Boolean}

	count := c.object(countAggregateInputName(e.Name))
	for _, f := range e.Fields {
		count.Add(Field{Name: f.Name, Shape: boolean})
	}
	count.Add(Field{Name: "_all", Shape: boolean})

	c.define(sortObject(minAggregateInputName(e.Name), e.Fields, boolean))
	c.define(sortObject(maxAggregateInputName(e.Name), e.Fields, boolean))
	if numeric := e.NumericFields(); len(numeric) > 0 {
		c.define(sortObject(avgAggregateInputName(e.Name), numeric, boolean))
		c.define(sortObject(sumAggregateInputName(e.Name), numeric, boolean))
	}
}

// addAggregateSelections adds _count, _avg, _sum, _min and _max to the
// arguments of aggregate and groupBy.
func (c *Catalog) addAggregateSelections(o *Object, e *schema.Entity) {
	o.Add(Field{Name: "_count", Shape: NewUnion("", &Scalar{Type: schema.Boolean}, c.ref(countAggregateInputName(e.Name)))})
	if len(e.NumericFields()) > 0 {
		o.Add(Field{Name: "_avg", Shape: c.ref(avgAggregateInputName(e.Name))})
		o.Add(Field{Name: "_sum", Shape: c.ref(sumAggregateInputName(e.Name))})
	}
	o.Add(Field{Name: "_min", Shape: c.ref(minAggregateInputName(e.Name))})
	o.Add(Field{Name: "_max", Shape: c.ref(maxAggregateInputName(e.Name))})
}
