// Package models embeds the builtin User, Post, Book and Map schema.
package models

import (
	"context"
	_ "embed"

	"queryshape/internal/schema"
	"queryshape/internal/schema/schemafile"
)

//go:embed schema.yaml
var builtin []byte

// Registry returns a sealed registry holding the builtin entities.
func Registry(ctx context.Context) (*schema.Registry, error) {
	return schemafile.Load(ctx, builtin)
}

// Source returns the embedded schema document.
func Source() []byte {
	return append([]byte(nil), builtin...)
}
