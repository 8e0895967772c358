package discovery

import "github.com/dlorp/synapse-engine-sub012/pkg/types"

// Merge combines an existing catalog with a fresh scan. For IDs present in
// both, user state carries over from existing: tier and thinking overrides,
// enabled, port and the runtime overrides — source metadata comes from the
// fresh scan. New IDs arrive with defaults. IDs absent from the fresh scan
// are dropped; any port they held is immediately free for reallocation.
//
// Merge is pure; callers apply the result under the catalog's writer lock so
// readers never observe an intermediate state.
func Merge(existing, fresh types.CatalogSnapshot) types.CatalogSnapshot {
	out := fresh.Clone()
	for id, next := range out.Models {
		prev, ok := existing.Models[id]
		if !ok {
			continue
		}
		next.TierOverride = clonePtr(prev.TierOverride)
		next.ThinkingOverride = clonePtr(prev.ThinkingOverride)
		next.Enabled = prev.Enabled
		next.Port = clonePtr(prev.Port)
		next.NGPULayers = clonePtr(prev.NGPULayers)
		next.CtxSize = clonePtr(prev.CtxSize)
		next.NThreads = clonePtr(prev.NThreads)
		next.BatchSize = clonePtr(prev.BatchSize)
		out.Models[id] = next
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
