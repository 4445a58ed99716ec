// Package memory provides an in-memory remote backend for tests and local
// experiments. Documents are lost when the backend is closed.
package memory

import (
	"context"

	"github.com/gezibash/docio/internal/remote/badger"
	"github.com/gezibash/docio/internal/settings"
	"github.com/gezibash/docio/pkg/remote"
)

func init() {
	remote.Register("memory", NewFactory, Defaults)
}

// Defaults returns the default configuration for the memory backend.
func Defaults() map[string]string {
	return map[string]string{
		badger.KeyInMemory: "true",
	}
}

// NewFactory creates a new in-memory backend using BadgerDB's in-memory mode.
func NewFactory(ctx context.Context, config map[string]string) (remote.Operations, error) {
	cfg := settings.Merge(config, map[string]string{badger.KeyInMemory: "true"})
	return badger.NewFactory(ctx, cfg)
}

// New returns an empty in-memory backend.
func New() (remote.Operations, error) {
	return NewFactory(context.Background(), nil)
}
