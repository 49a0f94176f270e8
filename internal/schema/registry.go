package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrDuplicateEntity    = errors.New("entity already registered")
	ErrConflictingName    = errors.New("conflicting field or relation name")
	ErrUnknownScalarType  = errors.New("unknown scalar type")
	ErrUnknownEntity      = errors.New("unknown entity")
	ErrDanglingRelation   = errors.New("relation target is not registered")
	ErrInvalidForeignKey  = errors.New("invalid foreign key")
	ErrInverseMismatch    = errors.New("relation inverse mismatch")
	ErrRegistrySealed     = errors.New("registry is sealed")
	ErrRegistryNotSealed  = errors.New("registry is not sealed")
	ErrInvalidDescriptor  = errors.New("invalid entity descriptor")
	ErrMultipleIdentities = errors.New("entity declares more than one id field")
)

// Registry holds entity descriptors. Entities are registered during a single
// setup phase that ends with Seal; after that the registry is read-only and
// safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	order    []string
	sealed   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register adds an entity. Each entity can be registered once.
// Cross-entity checks are deferred to Seal so entities may reference
// each other in any order.
func (r *Registry) Register(e Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return fmt.Errorf("register %s: %w", e.Name, ErrRegistrySealed)
	}
	if e.Name == "" {
		return fmt.Errorf("%w: entity name is empty", ErrInvalidDescriptor)
	}
	if _, exists := r.entities[e.Name]; exists {
		return fmt.Errorf("register %s: %w", e.Name, ErrDuplicateEntity)
	}
	if err := checkLocal(&e); err != nil {
		return fmt.Errorf("register %s: %w", e.Name, err)
	}

	r.entities[e.Name] = e.clone()
	r.order = append(r.order, e.Name)
	return nil
}

func checkLocal(e *Entity) error {
	names := make(map[string]string, len(e.Fields)+len(e.Relations))
	ids := 0
	for _, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: field with empty name", ErrInvalidDescriptor)
		}
		if prev, ok := names[f.Name]; ok {
			return fmt.Errorf("%w: %q declared as %s and field", ErrConflictingName, f.Name, prev)
		}
		names[f.Name] = "field"
		if !f.Type.Valid() {
			return fmt.Errorf("field %s: %w: %q", f.Name, ErrUnknownScalarType, f.Type)
		}
		if f.IsID {
			ids++
		}
		if f.Default.Kind == AutoIncrement && f.Type != Int && f.Type != BigInt {
			return fmt.Errorf("field %s: %w: autoincrement requires an integer type", f.Name, ErrInvalidDescriptor)
		}
		if (f.Default.Kind == Now || f.Default.Kind == UpdatedAt) && f.Type != DateTime {
			return fmt.Errorf("field %s: %w: %s default requires DateTime", f.Name, ErrInvalidDescriptor, f.Default.Kind)
		}
	}
	if ids > 1 {
		return ErrMultipleIdentities
	}
	for _, rel := range e.Relations {
		if rel.Name == "" {
			return fmt.Errorf("%w: relation with empty name", ErrInvalidDescriptor)
		}
		if prev, ok := names[rel.Name]; ok {
			return fmt.Errorf("%w: %q declared as %s and relation", ErrConflictingName, rel.Name, prev)
		}
		names[rel.Name] = "relation"
		switch rel.Cardinality {
		case One:
			if _, ok := e.Field(rel.ForeignKey); !ok {
				return fmt.Errorf("relation %s: %w: field %q does not exist", rel.Name, ErrInvalidForeignKey, rel.ForeignKey)
			}
		case Many:
			if rel.ForeignKey != "" {
				return fmt.Errorf("relation %s: %w: many relations do not own a foreign key", rel.Name, ErrInvalidForeignKey)
			}
			if rel.Inverse == "" {
				return fmt.Errorf("relation %s: %w: many relations must name an inverse", rel.Name, ErrInverseMismatch)
			}
		default:
			return fmt.Errorf("relation %s: %w: cardinality %q", rel.Name, ErrInvalidDescriptor, rel.Cardinality)
		}
	}
	return nil
}

// Seal ends registration and validates cross-entity references.
func (r *Registry) Seal(ctx context.Context) error {
	_, span := startSpan(ctx, "schema.seal")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil
	}
	span.SetAttributes(attribute.Int("schema.entities", len(r.order)))

	var errs []error
	for _, name := range r.order {
		e := r.entities[name]
		for _, rel := range e.Relations {
			if err := r.checkRelation(e, rel); err != nil {
				errs = append(errs, fmt.Errorf("%s.%s: %w", e.Name, rel.Name, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		recordSpanError(span, err)
		return err
	}

	r.sealed = true
	return nil
}

func (r *Registry) checkRelation(owner *Entity, rel Relation) error {
	target, ok := r.entities[rel.Target]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDanglingRelation, rel.Target)
	}
	if rel.Inverse == "" {
		if rel.Cardinality == Many {
			return ErrInverseMismatch
		}
		return nil
	}
	inverse, ok := target.Relation(rel.Inverse)
	if !ok {
		return fmt.Errorf("%w: %s has no relation %q", ErrInverseMismatch, target.Name, rel.Inverse)
	}
	if inverse.Target != owner.Name {
		return fmt.Errorf("%w: %s.%s targets %s", ErrInverseMismatch, target.Name, inverse.Name, inverse.Target)
	}
	if inverse.Inverse != "" && inverse.Inverse != rel.Name {
		return fmt.Errorf("%w: %s.%s names %q as inverse", ErrInverseMismatch, target.Name, inverse.Name, inverse.Inverse)
	}
	if rel.Cardinality == Many && inverse.Cardinality != One {
		return fmt.Errorf("%w: %s.%s must be a one relation", ErrInverseMismatch, target.Name, inverse.Name)
	}
	return nil
}

// Sealed reports whether registration has finished.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}
	return e, nil
}

// Entities returns all descriptors in registration order.
func (r *Registry) Entities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entities[name])
	}
	return out
}

// Names returns the registered entity names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}

// InverseOf returns the relation on the target that points back along rel,
// if one is declared on either side.
func (r *Registry) InverseOf(owner *Entity, rel Relation) (Relation, bool) {
	target, err := r.Resolve(rel.Target)
	if err != nil {
		return Relation{}, false
	}
	if rel.Inverse != "" {
		return target.Relation(rel.Inverse)
	}
	for _, candidate := range target.Relations {
		if candidate.Target == owner.Name && candidate.Inverse == rel.Name {
			return candidate, true
		}
	}
	return Relation{}, false
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := otel.Tracer("queryshape/schema").Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
