package registry

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
)

//go:embed all:builtin
var builtinFS embed.FS

// LoadBuiltin loads the catalog compiled into the binary: the ten
// core particles. It is the default catalog when no directory is
// configured.
func (r *Registry) LoadBuiltin(ctx context.Context) error {
	sub, err := fs.Sub(builtinFS, "builtin")
	if err != nil {
		return fmt.Errorf("failed to open builtin catalog: %w", err)
	}
	snap, err := r.loader.LoadFS(ctx, sub, "builtin")
	if err != nil {
		return fmt.Errorf("failed to load builtin catalog: %w", err)
	}
	r.swap(snap)
	return nil
}
