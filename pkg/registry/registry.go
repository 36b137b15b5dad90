// Package registry manages the catalog of pre-vetted primitives that
// plan nodes reference by id. The catalog is loaded into an immutable
// snapshot; reloads build a fresh snapshot and swap it in atomically,
// so validation runs that started on the old snapshot keep a
// consistent view.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a primitive id resolves to nothing.
	ErrNotFound = errors.New("primitive not found")

	// ErrNotLoaded is returned when the registry has no snapshot yet.
	ErrNotLoaded = errors.New("registry not loaded")
)

// Registry is the concurrent-safe catalog handle. Create one with
// New, populate it with LoadBuiltin or LoadDir, then share it.
type Registry struct {
	mu     sync.RWMutex
	snap   *Snapshot
	loader *Loader
	logger zerolog.Logger

	watch *watchState
}

// New creates an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		loader: NewLoader(logger),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

// LoadDir loads the catalog at dir and swaps it in. On failure the
// previous snapshot, if any, stays active.
func (r *Registry) LoadDir(ctx context.Context, dir string) error {
	snap, err := r.loader.LoadDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to load catalog from %s: %w", dir, err)
	}
	r.swap(snap)
	return nil
}

// swap installs a new snapshot.
func (r *Registry) swap(snap *Snapshot) {
	r.mu.Lock()
	old := r.snap
	r.snap = snap
	r.mu.Unlock()

	evt := r.logger.Info().
		Int("primitives", snap.Len()).
		Str("source", snap.Source)
	if old != nil {
		evt = evt.Int("replaced", old.Len())
	}
	evt.Msg("Registry snapshot swapped")
}

// Snapshot returns the active snapshot, nil before the first load.
func (r *Registry) Snapshot() *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap
}

// Get returns the primitive with the given id. The returned primitive
// is shared and read-only.
func (r *Registry) Get(id string) (*Primitive, error) {
	snap := r.Snapshot()
	if snap == nil {
		return nil, ErrNotLoaded
	}
	p := snap.Get(id)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Exists reports whether the given id resolves to a primitive.
func (r *Registry) Exists(id string) bool {
	snap := r.Snapshot()
	return snap != nil && snap.Has(id)
}

// List returns summaries of catalogued primitives matching the
// filter, in index order.
func (r *Registry) List(filter ListFilter) []Summary {
	snap := r.Snapshot()
	if snap == nil {
		return nil
	}

	var out []Summary
	for _, p := range snap.All() {
		if filter.Type != "" && p.Metadata.Type != filter.Type {
			continue
		}
		if filter.Category != "" && p.Metadata.Category != filter.Category {
			continue
		}
		if filter.Status != "" && p.Metadata.Status != filter.Status {
			continue
		}
		out = append(out, Summary{
			ID:          p.Metadata.ID,
			Name:        p.Metadata.Name,
			Type:        p.Metadata.Type,
			Version:     p.Metadata.Version,
			Status:      p.Metadata.Status,
			Category:    p.Metadata.Category,
			Description: p.Metadata.Description,
			Tags:        p.Metadata.Tags,
		})
	}
	return out
}

// Search scores catalogued primitives against a keyword query: a
// whole-query match in the name weighs most, then tag containment,
// then per-word description hits. Only positive scores are returned,
// highest first; ties keep index order. A non-positive limit means no
// limit.
func (r *Registry) Search(query string, limit int) []SearchResult {
	snap := r.Snapshot()
	if snap == nil {
		return nil
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" {
		return nil
	}
	queryWords := strings.Fields(queryLower)

	var results []SearchResult
	for _, p := range snap.All() {
		score := 0

		if strings.Contains(strings.ToLower(p.Metadata.Name), queryLower) {
			score += 10
		}

		descLower := strings.ToLower(p.Metadata.Description)
		for _, word := range queryWords {
			if strings.Contains(descLower, word) {
				score += 2
			}
		}

		for _, tag := range p.Metadata.Tags {
			tagLower := strings.ToLower(tag)
			if strings.Contains(queryLower, tagLower) || strings.Contains(tagLower, queryLower) {
				score += 5
			}
		}

		if score > 0 {
			results = append(results, SearchResult{
				ID:          p.Metadata.ID,
				Name:        p.Metadata.Name,
				Description: p.Metadata.Description,
				Score:       score,
				Tags:        p.Metadata.Tags,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
