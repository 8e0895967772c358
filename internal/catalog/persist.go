package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dlorp/synapse-engine-sub012/internal/common/fsutil"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// registryFile is the on-disk shape of the catalog. The file is purely a
// durability boundary: written whole on every committed mutation, never
// read-modify-written in place.
type registryFile struct {
	Models         map[string]types.ModelEntry `json:"models"`
	ScanPath       string                      `json:"scanPath"`
	LastScan       time.Time                   `json:"lastScan"`
	PortRange      [2]int                      `json:"portRange"`
	TierThresholds types.TierThresholds        `json:"tierThresholds"`
}

// Save writes the snapshot to path atomically (temp file + rename).
func Save(s types.CatalogSnapshot, path string) error {
	f := registryFile{
		Models:         s.Models,
		ScanPath:       s.ScanPath,
		LastScan:       s.LastScan.UTC(),
		PortRange:      [2]int{s.PortRange.Start, s.PortRange.End},
		TierThresholds: s.TierThresholds,
	}
	if f.Models == nil {
		f.Models = map[string]types.ModelEntry{}
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	return fsutil.WriteFileAtomic(path, append(b, '\n'), 0o644)
}

// Load reads a registry file. Entry IDs are restored from the map keys.
func Load(path string) (types.CatalogSnapshot, error) {
	var s types.CatalogSnapshot
	b, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	var f registryFile
	if err := json.Unmarshal(b, &f); err != nil {
		return s, fmt.Errorf("parse registry %s: %w", path, err)
	}
	s.Models = make(map[string]types.ModelEntry, len(f.Models))
	for id, m := range f.Models {
		m.ID = id
		s.Models[id] = m
	}
	s.ScanPath = f.ScanPath
	s.LastScan = f.LastScan
	s.PortRange = types.PortRange{Start: f.PortRange[0], End: f.PortRange[1]}
	s.TierThresholds = f.TierThresholds
	return s, nil
}
