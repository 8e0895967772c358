package catalog

import (
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// mutate runs fn against a single entry inside an Update transaction.
func (c *Catalog) mutate(id string, fn func(*types.ModelEntry)) error {
	return c.Update(func(s *types.CatalogSnapshot) error {
		m, ok := s.Models[id]
		if !ok {
			return &NotFoundError{ID: id}
		}
		fn(&m)
		s.Models[id] = m
		return nil
	})
}

// SetEnabled flips the enabled flag. Enabling an entry whose port collides
// with another enabled entry is rejected by the invariant check.
func (c *Catalog) SetEnabled(id string, enabled bool) error {
	return c.mutate(id, func(m *types.ModelEntry) { m.Enabled = enabled })
}

// SetTierOverride sets or clears (nil) the user tier override.
func (c *Catalog) SetTierOverride(id string, t *types.Tier) error {
	return c.mutate(id, func(m *types.ModelEntry) { m.TierOverride = t })
}

// SetThinkingOverride sets or clears (nil) the user thinking override.
func (c *Catalog) SetThinkingOverride(id string, v *bool) error {
	return c.mutate(id, func(m *types.ModelEntry) { m.ThinkingOverride = v })
}

// SetPort assigns or clears a port without conflict validation; callers that
// accept user input go through ports.ValidateExplicit first. The enabled-port
// invariant is still enforced on commit.
func (c *Catalog) SetPort(id string, port *int) error {
	return c.mutate(id, func(m *types.ModelEntry) { m.Port = port })
}

// RuntimeOverrides carries the per-model launch parameter overrides; nil
// fields mean inherit the global default.
type RuntimeOverrides struct {
	NGPULayers *int
	CtxSize    *int
	NThreads   *int
	BatchSize  *int
}

// SetRuntimeOverrides replaces all four runtime override fields.
func (c *Catalog) SetRuntimeOverrides(id string, ov RuntimeOverrides) error {
	return c.mutate(id, func(m *types.ModelEntry) {
		m.NGPULayers = ov.NGPULayers
		m.CtxSize = ov.CtxSize
		m.NThreads = ov.NThreads
		m.BatchSize = ov.BatchSize
	})
}
