package registry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/vizi2000/maicrosoft/pkg/plan"
)

// indexPath is where a catalog directory keeps its index file.
const indexPath = "_meta/registry.yaml"

// Loader reads primitive catalogs from a directory tree: an index
// file naming every primitive, plus one YAML definition file per
// primitive.
type Loader struct {
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewLoader creates a new catalog loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger:   logger.With().Str("component", "registry-loader").Logger(),
		validate: validator.New(),
	}
}

// LoadDir loads a catalog from a directory on disk.
func (l *Loader) LoadDir(ctx context.Context, dir string) (*Snapshot, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to stat catalog directory: %w", err)
	}
	return l.LoadFS(ctx, os.DirFS(dir), dir)
}

// LoadFS loads a catalog from any filesystem. Individual definition
// files that fail to parse or validate are skipped with a warning;
// a missing or unreadable index, or a duplicate primitive id, fails
// the whole load.
func (l *Loader) LoadFS(ctx context.Context, fsys fs.FS, source string) (*Snapshot, error) {
	data, err := fs.ReadFile(fsys, indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog index: %w", err)
	}

	var index Index
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to parse catalog index: %w", err)
	}

	primitives := make(map[string]*Primitive)
	var order []string

	for _, entry := range index.Entries() {
		if _, exists := primitives[entry.ID]; exists {
			return nil, fmt.Errorf("duplicate primitive id in index: %s", entry.ID)
		}

		p, err := l.loadDefinition(fsys, entry)
		if err != nil {
			l.logger.Warn().Err(err).
				Str("id", entry.ID).
				Str("path", entry.Path).
				Msg("Skipping primitive definition")
			continue
		}

		primitives[p.Metadata.ID] = p
		order = append(order, p.Metadata.ID)
	}

	l.logger.Info().
		Int("loaded", len(primitives)).
		Str("source", source).
		Msg("Primitive catalog loaded")

	return &Snapshot{
		primitives: primitives,
		order:      order,
		LoadedAt:   time.Now(),
		Source:     source,
	}, nil
}

// loadDefinition reads and validates one primitive definition file.
func (l *Loader) loadDefinition(fsys fs.FS, entry IndexEntry) (*Primitive, error) {
	data, err := fs.ReadFile(fsys, path.Clean(entry.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to read definition: %w", err)
	}

	var p Primitive
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse definition: %w", err)
	}

	if err := l.validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("definition failed validation: %w", err)
	}

	if !plan.PrimitiveIDPattern.MatchString(p.Metadata.ID) {
		return nil, fmt.Errorf("invalid primitive id: %s", p.Metadata.ID)
	}
	if p.Metadata.ID != entry.ID {
		return nil, fmt.Errorf("definition id %s does not match index id %s", p.Metadata.ID, entry.ID)
	}

	wantType, err := TypeForID(p.Metadata.ID)
	if err != nil {
		return nil, err
	}
	if p.Metadata.Type != wantType {
		return nil, fmt.Errorf("primitive %s declares type %s, id prefix implies %s",
			p.Metadata.ID, p.Metadata.Type, wantType)
	}

	return &p, nil
}
