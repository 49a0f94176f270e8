package shape

import (
	"fmt"
	"strings"

	"queryshape/internal/schema"
)

// variant identifies a family of create and update payloads for an entity
// with one relation left out. The omitted relation is the back-reference to
// the owner that nests the payload; an empty name means nothing is omitted.
type variant struct {
	entity  string
	without string
}

func (v variant) String() string {
	if v.without == "" {
		return v.entity
	}
	return v.entity + " without " + v.without
}

// defineFieldUpdateOperations declares the operation objects accepted in
// place of a literal in update payloads. Every type has set; numeric types
// add increment, decrement, multiply and divide. The nullable variants
// accept set: null.
func (c *Catalog) defineFieldUpdateOperations() {
	for _, t := range filterTypes {
		for _, nullable := range []bool{false, true} {
			o := c.object(fieldUpdateOperationsName(typeToken(t), nullable))
			o.Add(Field{Name: "set", Shape: bare(t, nullable)})
			if !t.IsNumeric() {
				continue
			}
			for _, op := range []string{"increment", "decrement", "multiply", "divide"} {
				o.Add(Field{Name: op, Shape: &Scalar{Type: t}})
			}
		}
	}
}

// defineTopLevelPayloads declares the scalar-only payloads used by bulk
// writes. The full create and update payloads come from the entity's
// unrestricted variant.
func (c *Catalog) defineTopLevelPayloads(e *schema.Entity) {
	createMany := c.object(createManyName(e.Name))
	for _, f := range e.Fields {
		createMany.Add(c.createField(f))
	}

	mutation := c.object(updateManyMutationName(e.Name))
	for _, f := range e.Fields {
		if f.Generated() || e.IsForeignKey(f.Name) {
			continue
		}
		mutation.Add(c.updateField(f))
	}

	unchecked := c.object(uncheckedUpdateManyName(e.Name, ""))
	for _, f := range e.Fields {
		unchecked.Add(c.updateField(f))
	}
}

// defineVariants builds the create and update payloads of every entity,
// then those of each entity as nested under its related owners. Nesting
// one relation deep enqueues the target without its back-reference, so the
// set of variants is finite; a cycle among them means a payload could be
// nested forever and is rejected.
func (c *Catalog) defineVariants(entities []*schema.Entity) error {
	for _, e := range entities {
		c.enqueue(variant{entity: e.Name})
	}
	for len(c.pending) > 0 {
		v := c.pending[0]
		c.pending = c.pending[1:]
		if err := c.defineVariant(v); err != nil {
			return err
		}
	}
	if cycle := c.findVariantCycle(); len(cycle) > 0 {
		parts := make([]string, len(cycle))
		for i, v := range cycle {
			parts[i] = v.String()
		}
		return fmt.Errorf("%w: %s", ErrUnterminatedNesting, strings.Join(parts, " -> "))
	}
	return nil
}

func (c *Catalog) enqueue(v variant) {
	if c.queued[v] {
		return
	}
	c.queued[v] = true
	c.pending = append(c.pending, v)
}

func (c *Catalog) defineVariant(v variant) error {
	e, err := c.reg.Resolve(v.entity)
	if err != nil {
		return err
	}
	without := c.namer.Without(v.without)

	create := c.object(createName(e.Name, without))
	uncheckedCreate := c.object(uncheckedCreateName(e.Name, without))
	update := c.object(updateName(e.Name, without))
	uncheckedUpdate := c.object(uncheckedUpdateName(e.Name, without))

	excludedFK := ""
	if r, ok := e.Relation(v.without); ok && r.Cardinality == schema.One {
		excludedFK = r.ForeignKey
	}

	for _, f := range e.Fields {
		checked := !f.Generated() && !e.IsForeignKey(f.Name)
		if checked {
			create.Add(c.createField(f))
			update.Add(c.updateField(f))
		}
		if f.Name != excludedFK {
			uncheckedCreate.Add(c.createField(f))
			uncheckedUpdate.Add(c.updateField(f))
		}
	}

	for _, r := range e.Relations {
		if r.Name == v.without {
			continue
		}
		c.defineNestedOperations(v, e, r)
		w := c.namer.Without(c.backReference(e, r))
		if r.Cardinality == schema.Many {
			createOps := c.ref(createNestedManyName(r.Target, w))
			updateOps := c.ref(updateNestedManyName(r.Target, w))
			create.Add(Field{Name: r.Name, Shape: createOps})
			uncheckedCreate.Add(Field{Name: r.Name, Shape: createOps})
			update.Add(Field{Name: r.Name, Shape: updateOps})
			uncheckedUpdate.Add(Field{Name: r.Name, Shape: updateOps})
			continue
		}
		required := !e.RelationOptional(r)
		create.Add(Field{Name: r.Name, Shape: c.ref(createNestedOneName(r.Target, w)), Required: required})
		update.Add(Field{Name: r.Name, Shape: c.ref(updateNestedOneName(r.Target, w, required))})
	}
	return nil
}

// createField is the create-payload entry of a scalar. Nullable fields and
// fields with a default are optional; defaults other than autoincrement are
// filled in when the key is absent.
func (c *Catalog) createField(f schema.Field) Field {
	out := Field{
		Name:     f.Name,
		Shape:    bare(f.Type, f.Nullable),
		Required: !f.Nullable && !f.HasDefault(),
	}
	switch f.Default.Kind {
	case schema.Now, schema.UpdatedAt:
		out.Default = func() any { return c.now().UTC() }
	case schema.Literal:
		value := f.Default.Value
		out.Default = func() any { return value }
	}
	return out
}

// updateField is the update-payload entry of a scalar: a literal or an
// operation object, null allowed when the field is nullable.
func (c *Catalog) updateField(f schema.Field) Field {
	var s Shape = NewUnion("", &Scalar{Type: f.Type}, c.ref(fieldUpdateOperationsName(typeToken(f.Type), f.Nullable)))
	if f.Nullable {
		s = &Nullable{Inner: s}
	}
	return Field{Name: f.Name, Shape: s}
}

// defineNestedOperations declares, once per target variant, the objects
// holding the nested operations of relation r, and records the nesting edge
// from the owner's variant to the target's.
func (c *Catalog) defineNestedOperations(owner variant, e *schema.Entity, r schema.Relation) {
	inverse := c.backReference(e, r)
	target := variant{entity: r.Target, without: inverse}
	c.edges[owner] = append(c.edges[owner], target)
	c.enqueue(target)

	w := c.namer.Without(inverse)
	if r.Cardinality == schema.Many {
		if _, done := c.shapes[createNestedManyName(r.Target, w)]; !done {
			c.defineManyOperations(r.Target, inverse, w)
		}
		return
	}
	if _, done := c.shapes[createNestedOneName(r.Target, w)]; !done {
		c.defineOneCreateOperations(r.Target, w)
	}
	required := !e.RelationOptional(r)
	if _, done := c.shapes[updateNestedOneName(r.Target, w, required)]; !done {
		c.defineOneUpdateOperations(r.Target, w, required)
	}
}

// backReference names the target's relation pointing back along r. A one
// relation may leave its inverse implicit when the target's many relation
// names it.
func (c *Catalog) backReference(e *schema.Entity, r schema.Relation) string {
	if inv, ok := c.reg.InverseOf(e, r); ok {
		return inv.Name
	}
	return r.Inverse
}

func (c *Catalog) createUnion(t, w string) Shape {
	return NewUnion("", c.ref(createName(t, w)), c.ref(uncheckedCreateName(t, w)))
}

func (c *Catalog) updateUnion(t, w string) Shape {
	return NewUnion("", c.ref(updateName(t, w)), c.ref(uncheckedUpdateName(t, w)))
}

func (c *Catalog) defineCreateOrConnect(t, w string) {
	if _, done := c.shapes[createOrConnectName(t, w)]; done {
		return
	}
	c.define(NewObject(createOrConnectName(t, w),
		Field{Name: "where", Shape: c.ref(whereUniqueName(t)), Required: true},
		Field{Name: "create", Shape: c.createUnion(t, w), Required: true},
	))
}

// defineManyOperations declares the nested operations for a many relation
// whose target t points back through inverse.
func (c *Catalog) defineManyOperations(t, inverse, w string) {
	target, err := c.reg.Resolve(t)
	if err != nil {
		c.buildErrs = append(c.buildErrs, err)
		return
	}
	back, _ := target.Relation(inverse)
	unique := c.ref(whereUniqueName(t))
	c.defineCreateOrConnect(t, w)

	// Batched rows carry every scalar except the foreign key the owner
	// assigns.
	suffix := c.namer.TypeName(inverse)
	rows := c.object(createManyNestedName(t, suffix))
	scalarsOnly := c.object(uncheckedUpdateManyName(t, w))
	for _, f := range target.Fields {
		if f.Name == back.ForeignKey {
			continue
		}
		rows.Add(c.createField(f))
		scalarsOnly.Add(c.updateField(f))
	}
	c.define(NewObject(createManyEnvelopeName(t, suffix),
		Field{Name: "data", Shape: oneOrMany(c.ref(createManyNestedName(t, suffix))), Required: true},
		Field{Name: "skipDuplicates", Shape: &Scalar{Type: schema.Boolean}},
	))

	c.define(NewObject(upsertWithWhereUniqueName(t, w),
		Field{Name: "where", Shape: unique, Required: true},
		Field{Name: "update", Shape: c.updateUnion(t, w), Required: true},
		Field{Name: "create", Shape: c.createUnion(t, w), Required: true},
	))
	c.define(NewObject(updateWithWhereUniqueName(t, w),
		Field{Name: "where", Shape: unique, Required: true},
		Field{Name: "data", Shape: c.updateUnion(t, w), Required: true},
	))
	c.define(NewObject(updateManyWithWhereName(t, w),
		Field{Name: "where", Shape: c.ref(scalarWhereName(t)), Required: true},
		Field{Name: "data", Shape: NewUnion("", c.ref(updateManyMutationName(t)), c.ref(uncheckedUpdateManyName(t, w))), Required: true},
	))

	create := c.object(createNestedManyName(t, w))
	c.addManyCreateOperations(create, t, suffix, w)

	update := c.object(updateNestedManyName(t, w))
	c.addManyCreateOperations(update, t, suffix, w)
	update.Add(Field{Name: "upsert", Shape: oneOrMany(c.ref(upsertWithWhereUniqueName(t, w)))})
	update.Add(Field{Name: "set", Shape: oneOrMany(unique)})
	update.Add(Field{Name: "disconnect", Shape: oneOrMany(unique)})
	update.Add(Field{Name: "delete", Shape: oneOrMany(unique)})
	update.Add(Field{Name: "update", Shape: oneOrMany(c.ref(updateWithWhereUniqueName(t, w)))})
	update.Add(Field{Name: "updateMany", Shape: oneOrMany(c.ref(updateManyWithWhereName(t, w)))})
	update.Add(Field{Name: "deleteMany", Shape: oneOrMany(c.ref(scalarWhereName(t)))})
}

func (c *Catalog) addManyCreateOperations(o *Object, t, suffix, w string) {
	o.Add(Field{Name: "create", Shape: oneOrMany(c.createUnion(t, w))})
	o.Add(Field{Name: "connectOrCreate", Shape: oneOrMany(c.ref(createOrConnectName(t, w)))})
	o.Add(Field{Name: "createMany", Shape: c.ref(createManyEnvelopeName(t, suffix))})
	o.Add(Field{Name: "connect", Shape: oneOrMany(c.ref(whereUniqueName(t)))})
}

func (c *Catalog) defineOneCreateOperations(t, w string) {
	c.defineCreateOrConnect(t, w)
	c.define(NewObject(createNestedOneName(t, w),
		Field{Name: "create", Shape: c.createUnion(t, w)},
		Field{Name: "connectOrCreate", Shape: c.ref(createOrConnectName(t, w))},
		Field{Name: "connect", Shape: c.ref(whereUniqueName(t))},
	))
}

// defineOneUpdateOperations declares the nested update of a one relation.
// Only an optional relation can be disconnected or deleted.
func (c *Catalog) defineOneUpdateOperations(t, w string, required bool) {
	if _, done := c.shapes[upsertOneName(t, w)]; !done {
		c.define(NewObject(upsertOneName(t, w),
			Field{Name: "update", Shape: c.updateUnion(t, w), Required: true},
			Field{Name: "create", Shape: c.createUnion(t, w), Required: true},
		))
	}
	o := c.object(updateNestedOneName(t, w, required))
	o.Add(Field{Name: "create", Shape: c.createUnion(t, w)})
	o.Add(Field{Name: "connectOrCreate", Shape: c.ref(createOrConnectName(t, w))})
	o.Add(Field{Name: "upsert", Shape: c.ref(upsertOneName(t, w))})
	if !required {
		o.Add(Field{Name: "disconnect", Shape: &Scalar{Type: schema.Boolean}})
		o.Add(Field{Name: "delete", Shape: &Scalar{Type: schema.Boolean}})
	}
	o.Add(Field{Name: "connect", Shape: c.ref(whereUniqueName(t))})
	o.Add(Field{Name: "update", Shape: c.updateUnion(t, w)})
}

// findVariantCycle returns the variants of a nesting cycle, first variant
// repeated at the end, or nil when nesting always bottoms out.
func (c *Catalog) findVariantCycle() []variant {
	const (
		unvisited = iota
		active
		finished
	)
	state := make(map[variant]int)
	var stack []variant
	var cycle []variant

	var visit func(v variant) bool
	visit = func(v variant) bool {
		state[v] = active
		stack = append(stack, v)
		for _, next := range c.edges[v] {
			switch state[next] {
			case active:
				for i, s := range stack {
					if s == next {
						cycle = append(append([]variant(nil), stack[i:]...), next)
						break
					}
				}
				return true
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[v] = finished
		return false
	}

	for _, e := range c.reg.Entities() {
		root := variant{entity: e.Name}
		if state[root] == unvisited && visit(root) {
			return cycle
		}
	}
	return nil
}
