// Package ports assigns listen ports to enabled models from the catalog's
// configured range, in tier priority order so POWERFUL models take the
// lowest ports.
package ports

import (
	"fmt"
	"sort"

	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// ConflictError rejects an explicit port already held by another enabled
// model. No state is mutated on this path.
type ConflictError struct {
	Port     int
	HolderID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("port %d already held by enabled model %s", e.Port, e.HolderID)
}

// ExhaustedError reports that the range has no free port left for a model.
type ExhaustedError struct {
	ModelID string
	Range   types.PortRange
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no free port in %d-%d for model %s", e.Range.Start, e.Range.End, e.ModelID)
}

// RangeError rejects an explicit port outside the configured range.
type RangeError struct {
	Port  int
	Range types.PortRange
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("port %d outside range %d-%d", e.Port, e.Range.Start, e.Range.End)
}

// Allocate assigns a port to every enabled entry that lacks one, skipping
// ports held by other enabled entries. Candidates are ordered by tier
// priority (POWERFUL, BALANCED, FAST), ties broken by ID for determinism.
// The input snapshot is mutated in place; it is expected to be the catalog's
// working clone inside an Update transaction.
func Allocate(s *types.CatalogSnapshot) error {
	used := make(map[int]bool)
	var pending []string
	for id, m := range s.Models {
		if m.Enabled && m.Port != nil {
			used[*m.Port] = true
		}
		if m.Enabled && m.Port == nil {
			pending = append(pending, id)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		a, b := s.Models[pending[i]], s.Models[pending[j]]
		pa, pb := a.EffectiveTier().Priority(), b.EffectiveTier().Priority()
		if pa != pb {
			return pa < pb
		}
		return a.ID < b.ID
	})

	next := s.PortRange.Start
	for _, id := range pending {
		for next <= s.PortRange.End && used[next] {
			next++
		}
		if next > s.PortRange.End {
			return &ExhaustedError{ModelID: id, Range: s.PortRange}
		}
		m := s.Models[id]
		p := next
		m.Port = &p
		s.Models[id] = m
		used[p] = true
	}
	return nil
}

// ValidateExplicit checks a proposed explicit port for one model against the
// snapshot: it must sit inside the range and must not collide with a
// different enabled model. Validation happens before any mutation.
func ValidateExplicit(s types.CatalogSnapshot, modelID string, port int) error {
	if !s.PortRange.Contains(port) {
		return &RangeError{Port: port, Range: s.PortRange}
	}
	for id, m := range s.Models {
		if id == modelID || !m.Enabled || m.Port == nil {
			continue
		}
		if *m.Port == port {
			return &ConflictError{Port: port, HolderID: id}
		}
	}
	return nil
}
