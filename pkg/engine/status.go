package engine

import "time"

// Status describes a loaded engine: what it can validate against and
// compile to. Serving deployments expose it on their status endpoint.
type Status struct {
	// Primitives is the number of primitives in the current catalog.
	Primitives int `json:"primitives"`

	// CatalogSource names where the catalog was loaded from.
	CatalogSource string `json:"catalog_source"`

	// CatalogLoadedAt is when the current catalog snapshot was built.
	CatalogLoadedAt time.Time `json:"catalog_loaded_at"`

	// Targets lists the registered compilation targets.
	Targets []string `json:"targets"`

	// Policies lists the enabled policy rules.
	Policies []string `json:"policies"`

	// DefaultTarget is the target used when a request names none.
	DefaultTarget string `json:"default_target"`
}

// Status describes the loaded engine.
func (e *Engine) Status() *Status {
	snap := e.registry.Snapshot()

	var enabled []string
	for _, p := range e.policies.ListPolicies() {
		if p.Enabled {
			enabled = append(enabled, p.Name)
		}
	}

	return &Status{
		Primitives:      snap.Len(),
		CatalogSource:   snap.Source,
		CatalogLoadedAt: snap.LoadedAt,
		Targets:         e.targets.Names(),
		Policies:        enabled,
		DefaultTarget:   e.defaultTarget(),
	}
}
