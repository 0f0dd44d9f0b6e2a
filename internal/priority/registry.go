// Package priority maps (source, field) pairs to trust levels.
package priority

import (
	"sort"

	"assetrecon/internal/config"
)

// ManualSource is the synthetic source name of human overrides
const ManualSource = "manual"

// Registry is an immutable lookup table built from configuration
type Registry struct {
	unknown int
	manual  int
	sources map[string]config.SourcePriority
}

// NewRegistry builds a registry. Zero values in cfg fall back to the package defaults.
func NewRegistry(cfg config.Priorities) *Registry {
	r := &Registry{
		unknown: cfg.Unknown,
		manual:  cfg.Manual,
		sources: make(map[string]config.SourcePriority, len(cfg.Sources)),
	}
	if r.unknown == 0 {
		r.unknown = config.DefaultUnknownPriority
	}
	if r.manual == 0 {
		r.manual = config.DefaultManualPriority
	}
	for name, src := range cfg.Sources {
		fields := make(map[string]int, len(src.Fields))
		for f, p := range src.Fields {
			fields[f] = p
		}
		r.sources[name] = config.SourcePriority{Default: src.Default, Fields: fields}
	}
	return r
}

// PriorityOf returns the trust level of source for field. Unknown sources get
// the configured low default instead of an error.
func (r *Registry) PriorityOf(source, field string) int {
	if source == ManualSource {
		return r.manual
	}
	src, ok := r.sources[source]
	if !ok {
		return r.unknown
	}
	if p, ok := src.Fields[field]; ok {
		return p
	}
	return src.Default
}

// ManualPriority is the priority of human overrides, the maximum configured value
func (r *Registry) ManualPriority() int {
	return r.manual
}

// Sources returns the configured source names in sorted order
func (r *Registry) Sources() []string {
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
