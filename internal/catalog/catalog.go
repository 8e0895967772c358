// Package catalog owns the in-memory model registry: the single source of
// truth for port assignments and enabled state. All mutations are expressed
// as snapshot-to-snapshot transforms serialized behind one writer lock, so
// API calls, rescans and allocation can never interleave into a lost update.
package catalog

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

type Catalog struct {
	mu   sync.RWMutex
	snap types.CatalogSnapshot
	// path of the registry file; empty disables persistence.
	path string
	log  zerolog.Logger
}

// Options tune catalog construction.
type Options struct {
	// Path is the registry file written on every committed mutation.
	Path   string
	Logger zerolog.Logger
}

// New wraps a snapshot. The snapshot is cloned; the caller's copy is not
// retained.
func New(snap types.CatalogSnapshot, opts Options) *Catalog {
	c := &Catalog{snap: snap.Clone(), path: opts.Path, log: opts.Logger}
	if c.snap.Models == nil {
		c.snap.Models = make(map[string]types.ModelEntry)
	}
	return c
}

// Snapshot returns a deep copy of the current state. Readers see either the
// pre-mutation or post-mutation catalog, never an intermediate.
func (c *Catalog) Snapshot() types.CatalogSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap.Clone()
}

// Update applies fn to a clone of the current snapshot under the writer
// lock. The result is validated against the enabled-port invariant before
// commit; a validation failure leaves the catalog untouched. A persistence
// failure after commit is returned as a PersistError, but the in-memory
// state remains authoritative.
func (c *Catalog) Update(fn func(*types.CatalogSnapshot) error) error {
	c.mu.Lock()
	next := c.snap.Clone()
	if err := fn(&next); err != nil {
		c.mu.Unlock()
		return err
	}
	if err := checkEnabledPorts(next); err != nil {
		c.mu.Unlock()
		return err
	}
	c.snap = next
	snap := c.snap.Clone()
	c.mu.Unlock()

	if c.path == "" {
		return nil
	}
	if err := Save(snap, c.path); err != nil {
		c.log.Error().Err(err).Str("path", c.path).Msg("registry save failed; in-memory state kept")
		return &PersistError{Path: c.path, Err: err}
	}
	return nil
}

// checkEnabledPorts enforces that no two enabled entries share a port.
func checkEnabledPorts(s types.CatalogSnapshot) error {
	seen := make(map[int]string, len(s.Models))
	ids := make([]string, 0, len(s.Models))
	for id := range s.Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		m := s.Models[id]
		if !m.Enabled || m.Port == nil {
			continue
		}
		if other, dup := seen[*m.Port]; dup {
			return &DuplicatePortError{Port: *m.Port, IDs: []string{other, id}}
		}
		seen[*m.Port] = id
	}
	return nil
}

// Get returns a copy of one entry.
func (c *Catalog) Get(id string) (types.ModelEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.snap.Models[id]
	if !ok {
		return types.ModelEntry{}, false
	}
	return m.Clone(), true
}

// List returns all entries sorted by ID.
func (c *Catalog) List() []types.ModelEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.ModelEntry, 0, len(c.snap.Models))
	for _, m := range c.snap.Models {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByTier returns entries whose effective tier matches t, sorted by ID.
func (c *Catalog) ByTier(t types.Tier) []types.ModelEntry {
	var out []types.ModelEntry
	for _, m := range c.List() {
		if m.EffectiveTier() == t {
			out = append(out, m)
		}
	}
	return out
}

// Enabled returns enabled entries sorted by ID.
func (c *Catalog) Enabled() []types.ModelEntry {
	var out []types.ModelEntry
	for _, m := range c.List() {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// ByPort returns the entry currently holding port p, if any.
func (c *Catalog) ByPort(p int) (types.ModelEntry, bool) {
	for _, m := range c.List() {
		if m.Port != nil && *m.Port == p {
			return m, true
		}
	}
	return types.ModelEntry{}, false
}
