package shape

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"queryshape/internal/naming"
	"queryshape/internal/schema"
)

// Operation is a query or mutation kind that has an argument validator.
type Operation string

const (
	FindFirst         Operation = "FindFirst"
	FindFirstOrThrow  Operation = "FindFirstOrThrow"
	FindMany          Operation = "FindMany"
	FindUnique        Operation = "FindUnique"
	FindUniqueOrThrow Operation = "FindUniqueOrThrow"
	Aggregate         Operation = "Aggregate"
	GroupBy           Operation = "GroupBy"
	Create            Operation = "Create"
	CreateMany        Operation = "CreateMany"
	Update            Operation = "Update"
	UpdateMany        Operation = "UpdateMany"
	Upsert            Operation = "Upsert"
	Delete            Operation = "Delete"
	DeleteMany        Operation = "DeleteMany"
)

// Operations lists every operation in a stable order.
var Operations = []Operation{
	FindFirst, FindFirstOrThrow, FindMany, FindUnique, FindUniqueOrThrow,
	Aggregate, GroupBy,
	Create, CreateMany, Update, UpdateMany, Upsert, Delete, DeleteMany,
}

// ArgsName returns the validator name for an entity operation.
func ArgsName(entity string, op Operation) string {
	return entity + string(op) + "Args"
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithClock overrides the source of "now" and "updatedAt" defaults.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// WithNamer overrides the namer used for derived shape names.
func WithNamer(n *naming.Namer) Option {
	return func(c *Catalog) { c.namer = n }
}

// Catalog holds every named shape derived from a registry. It is immutable
// once NewCatalog returns and safe for concurrent use.
type Catalog struct {
	reg    *schema.Registry
	namer  *naming.Namer
	now    func() time.Time
	shapes map[string]Shape
	refs   map[string]*Ref
	args   map[string]*Validator

	pending   []variant
	queued    map[variant]bool
	edges     map[variant][]variant
	buildErrs []error
}

// Validator validates the arguments of one entity operation.
type Validator struct {
	name      string
	entity    string
	operation Operation
	shape     Shape
}

func (v *Validator) Name() string { return v.name }

func (v *Validator) Entity() string { return v.entity }

func (v *Validator) Operation() Operation { return v.operation }

// Shape returns the root shape of the validator.
func (v *Validator) Shape() Shape { return v.shape }

// Validate checks value and returns its normalized form. A failed validation
// returns an *Errors listing every issue.
func (v *Validator) Validate(value any) (any, error) {
	errs := &Errors{}
	out, ok := v.shape.Validate(value, nil, errs)
	if !ok || errs.Len() > 0 {
		return nil, errs
	}
	return out, nil
}

// NewCatalog derives all shapes for the entities of a sealed registry.
func NewCatalog(ctx context.Context, reg *schema.Registry, opts ...Option) (*Catalog, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := otel.Tracer("queryshape/shape").Start(ctx, "shape.build_catalog")
	defer span.End()

	c := &Catalog{
		reg:    reg,
		namer:  naming.Default(),
		now:    time.Now,
		shapes: make(map[string]Shape),
		refs:   make(map[string]*Ref),
		args:   make(map[string]*Validator),
		queued: make(map[variant]bool),
		edges:  make(map[variant][]variant),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.build(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("shape.count", len(c.shapes)),
		attribute.Int("shape.validators", len(c.args)),
	)
	return c, nil
}

func (c *Catalog) build() error {
	if !c.reg.Sealed() {
		return ErrRegistryNotSealed
	}
	entities := c.reg.Entities()
	for _, e := range entities {
		for _, f := range e.Fields {
			if naming.IsReserved(f.Name) {
				return fmt.Errorf("%s.%s: %w", e.Name, f.Name, ErrReservedName)
			}
		}
		for _, r := range e.Relations {
			if naming.IsReserved(r.Name) {
				return fmt.Errorf("%s.%s: %w", e.Name, r.Name, ErrReservedName)
			}
		}
	}

	c.defineEnums(entities)
	if err := c.defineFilters(); err != nil {
		return err
	}
	c.defineFieldUpdateOperations()
	for _, e := range entities {
		c.defineWhere(e)
		c.defineOrderBy(e)
		c.defineSelect(e)
		c.defineAggregateSelections(e)
		c.defineTopLevelPayloads(e)
		c.defineArgs(e)
	}
	if err := c.defineVariants(entities); err != nil {
		return err
	}
	if err := errors.Join(c.buildErrs...); err != nil {
		return err
	}
	return c.checkReferences()
}

// define registers a named shape. Names are derived from unique entity and
// relation names, so a duplicate is reported as a construction error.
func (c *Catalog) define(s Shape) {
	name := s.Name()
	if _, exists := c.shapes[name]; exists {
		c.buildErrs = append(c.buildErrs, fmt.Errorf("%w: %s", ErrDuplicateShape, name))
		return
	}
	c.shapes[name] = s
}

func (c *Catalog) object(name string) *Object {
	o := NewObject(name)
	c.define(o)
	return o
}

func (c *Catalog) ref(name string) *Ref {
	if r, ok := c.refs[name]; ok {
		return r
	}
	r := &Ref{name: name, lookup: c.lookup}
	c.refs[name] = r
	return r
}

func (c *Catalog) lookup(name string) Shape {
	return c.shapes[name]
}

func (c *Catalog) checkReferences() error {
	var missing []string
	for name := range c.refs {
		if _, ok := c.shapes[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %v", ErrDanglingReference, missing)
	}
	return nil
}

// Warm resolves every deferred reference up front.
func (c *Catalog) Warm() {
	for _, r := range c.refs {
		r.Target()
	}
}

// Validator returns the validator registered under name, for example
// "UserFindManyArgs".
func (c *Catalog) Validator(name string) (*Validator, error) {
	v, ok := c.args[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownValidator, name)
	}
	return v, nil
}

// Validate runs the named validator.
func (c *Catalog) Validate(name string, value any) (any, error) {
	v, err := c.Validator(name)
	if err != nil {
		return nil, err
	}
	return v.Validate(value)
}

// Validators returns all validator names sorted alphabetically.
func (c *Catalog) Validators() []string {
	names := make([]string, 0, len(c.args))
	for name := range c.args {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shape returns the named shape.
func (c *Catalog) Shape(name string) (Shape, bool) {
	s, ok := c.shapes[name]
	return s, ok
}

// ShapeNames returns all named shapes sorted alphabetically.
func (c *Catalog) ShapeNames() []string {
	names := make([]string, 0, len(c.shapes))
	for name := range c.shapes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Registry returns the registry the catalog was built from.
func (c *Catalog) Registry() *schema.Registry { return c.reg }
