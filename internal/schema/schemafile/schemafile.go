// Package schemafile reads entity descriptors from YAML documents.
//
//	entities:
//	  - name: Post
//	    fields:
//	      - {name: id, type: Int, id: true, default: autoincrement}
//	      - {name: published, type: Boolean, default: {value: false}}
//	      - {name: authorId, type: Int, nullable: true}
//	    relations:
//	      - {name: author, target: User, cardinality: one, foreign_key: authorId, inverse: posts}
package schemafile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"queryshape/internal/scalars"
	"queryshape/internal/schema"
)

type document struct {
	Entities []entityDoc `yaml:"entities"`
}

type entityDoc struct {
	Name      string        `yaml:"name"`
	Fields    []fieldDoc    `yaml:"fields"`
	Relations []relationDoc `yaml:"relations"`
}

type fieldDoc struct {
	Name     string     `yaml:"name"`
	Type     string     `yaml:"type"`
	Nullable bool       `yaml:"nullable"`
	ID       bool       `yaml:"id"`
	Unique   bool       `yaml:"unique"`
	Default  defaultDoc `yaml:"default"`
}

type relationDoc struct {
	Name        string `yaml:"name"`
	Target      string `yaml:"target"`
	Cardinality string `yaml:"cardinality"`
	ForeignKey  string `yaml:"foreign_key"`
	Inverse     string `yaml:"inverse"`
}

// defaultDoc accepts either a bare generator name or {value: <literal>}.
type defaultDoc struct {
	Kind  schema.DefaultKind
	Value any
	set   bool
}

func (d *defaultDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		switch kind := schema.DefaultKind(node.Value); kind {
		case schema.AutoIncrement, schema.Now, schema.UpdatedAt:
			d.Kind = kind
			d.set = true
			return nil
		default:
			return fmt.Errorf("line %d: unknown default %q (use autoincrement, now, updatedAt or {value: ...})", node.Line, node.Value)
		}
	case yaml.MappingNode:
		var literal struct {
			Value any `yaml:"value"`
		}
		if err := node.Decode(&literal); err != nil {
			return err
		}
		d.Kind = schema.Literal
		d.Value = literal.Value
		d.set = true
		return nil
	default:
		return fmt.Errorf("line %d: default must be a string or mapping", node.Line)
	}
}

// Parse decodes a schema document. Unknown keys are rejected.
func Parse(r io.Reader) ([]schema.Entity, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("schema document is empty")
		}
		return nil, fmt.Errorf("failed to decode schema document: %w", err)
	}

	entities := make([]schema.Entity, 0, len(doc.Entities))
	for _, ed := range doc.Entities {
		entity, err := ed.toEntity()
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", ed.Name, err)
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func (ed entityDoc) toEntity() (schema.Entity, error) {
	e := schema.Entity{Name: ed.Name}
	for _, fd := range ed.Fields {
		st, err := schema.ParseScalarType(fd.Type)
		if err != nil {
			return schema.Entity{}, fmt.Errorf("field %s: %w", fd.Name, err)
		}
		f := schema.Field{
			Name:     fd.Name,
			Type:     st,
			Nullable: fd.Nullable,
			IsID:     fd.ID,
			IsUnique: fd.Unique,
		}
		if fd.Default.set {
			f.Default = schema.Default{Kind: fd.Default.Kind}
			if fd.Default.Kind == schema.Literal {
				value, err := scalars.Coerce(st, fd.Default.Value)
				if err != nil {
					return schema.Entity{}, fmt.Errorf("field %s default: %w", fd.Name, err)
				}
				f.Default.Value = value
			}
		}
		e.Fields = append(e.Fields, f)
	}
	for _, rd := range ed.Relations {
		e.Relations = append(e.Relations, schema.Relation{
			Name:        rd.Name,
			Target:      rd.Target,
			Cardinality: schema.Cardinality(rd.Cardinality),
			ForeignKey:  rd.ForeignKey,
			Inverse:     rd.Inverse,
		})
	}
	return e, nil
}

// Load parses data and registers every entity into a new sealed registry.
func Load(ctx context.Context, data []byte) (*schema.Registry, error) {
	entities, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	reg := schema.NewRegistry()
	for _, e := range entities {
		if err := reg.Register(e); err != nil {
			return nil, err
		}
	}
	if err := reg.Seal(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}

// LoadFile reads a schema document from disk.
func LoadFile(ctx context.Context, path string) (*schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %q: %w", path, err)
	}
	return Load(ctx, data)
}
