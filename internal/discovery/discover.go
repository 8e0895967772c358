// Package discovery scans a directory tree for model artifacts and turns
// filenames into catalog entries: parsed metadata, thinking detection, tier
// classification and a deterministic model ID.
package discovery

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub012/internal/common/fsutil"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// PathError reports an unreadable scan path. Unreadable subdirectories do
// not abort a scan; only a dead root does.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string { return fmt.Sprintf("scan %s: %v", e.Path, e.Err) }
func (e *PathError) Unwrap() error { return e.Err }

// Service runs discovery passes.
type Service struct {
	log zerolog.Logger
}

func NewService(log zerolog.Logger) *Service { return &Service{log: log} }

// Result is a discovery outcome: the fresh snapshot plus scan counters.
type Result struct {
	Snapshot types.CatalogSnapshot
	Found    int
	Skipped  int
}

// Discover recursively scans scanPath for .gguf artifacts and builds a fresh
// catalog snapshot. Files matching no filename pattern are excluded but
// counted in Skipped. ID collisions get a deterministic -2, -3... suffix in
// sorted path order, so IDs are stable across rescans.
func (s *Service) Discover(scanPath string, portRange types.PortRange, th types.TierThresholds) (Result, error) {
	root, err := fsutil.ExpandHome(scanPath)
	if err != nil {
		return Result{}, &PathError{Path: scanPath, Err: err}
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return Result{}, &PathError{Path: scanPath, Err: err}
	}

	var paths []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			s.log.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".gguf") {
			paths = append(paths, path)
		}
		return nil
	})
	if walkErr != nil {
		return Result{}, &PathError{Path: root, Err: walkErr}
	}
	sort.Strings(paths)

	snap := types.CatalogSnapshot{
		Models:         make(map[string]types.ModelEntry, len(paths)),
		ScanPath:       root,
		LastScan:       time.Now().UTC(),
		PortRange:      portRange,
		TierThresholds: th,
	}
	res := Result{Found: len(paths)}
	for _, path := range paths {
		name := filepath.Base(path)
		parsed, ok := Parse(name)
		if !ok {
			res.Skipped++
			s.log.Debug().Str("file", name).Msg("no filename pattern matched")
			continue
		}
		thinking := DetectThinking(name, parsed)
		tier := AssignTier(parsed, thinking, th)
		id := uniqueID(snap.Models, ModelID(parsed, tier))
		entry := types.ModelEntry{
			ID:           id,
			FilePath:     path,
			Filename:     name,
			Family:       parsed.Family,
			SizeParams:   parsed.SizeParams,
			Quantization: parsed.Quantization,
			IsThinking:   thinking,
			AssignedTier: tier,
		}
		if parsed.Version != "" {
			v := parsed.Version
			entry.Version = &v
		}
		snap.Models[id] = entry
	}
	res.Snapshot = snap
	s.log.Info().Str("path", root).Int("found", res.Found).Int("skipped", res.Skipped).
		Int("models", len(snap.Models)).Msg("discovery complete")
	return res, nil
}

// uniqueID disambiguates slug collisions with an incrementing counter rather
// than silently overwriting.
func uniqueID(existing map[string]types.ModelEntry, id string) string {
	if _, taken := existing[id]; !taken {
		return id
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", id, n)
		if _, taken := existing[candidate]; !taken {
			return candidate
		}
	}
}
