package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/dlorp/synapse-engine-sub012/internal/catalog"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// ResolveProfile maps a configured profile name to its model IDs.
func (e *Engine) ResolveProfile(name string) ([]string, error) {
	ids, ok := e.cfg.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile: %q", name)
	}
	return ids, nil
}

// ApplyProfile transitions the fleet to exactly the given model set: stop
// processes for models leaving the set, flip enabled flags, reallocate ports
// for newcomers, then start the new set. Stopping strictly precedes starting
// so a port freed by a leaving model can be handed to a joining one without
// a collision window.
func (e *Engine) ApplyProfile(ctx context.Context, modelIDs []string) (types.FleetReport, error) {
	want := make(map[string]bool, len(modelIDs))
	snap := e.cat.Snapshot()
	for _, id := range modelIDs {
		if _, ok := snap.Models[id]; !ok {
			return types.FleetReport{}, &catalog.NotFoundError{ID: id}
		}
		want[id] = true
	}

	var leaving []string
	for id, m := range snap.Models {
		if m.Enabled && !want[id] {
			leaving = append(leaving, id)
		}
	}

	// stop-before-start barrier across the whole fleet
	var wg sync.WaitGroup
	for _, id := range leaving {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			e.sup.Stop(ctx, id, e.cfg.ShutdownTimeout())
		}(id)
	}
	wg.Wait()

	err := e.cat.Update(func(s *types.CatalogSnapshot) error {
		for id, m := range s.Models {
			m.Enabled = want[id]
			s.Models[id] = m
		}
		return nil
	})
	if err != nil && !catalog.IsPersist(err) {
		return types.FleetReport{}, err
	}

	e.log.Info().Int("enabled", len(modelIDs)).Int("stopped", len(leaving)).Msg("profile applied")
	return e.StartAll(ctx)
}
