// Package orchestrator wires discovery, the catalog, the port allocator and
// the supervisor into one engine with an explicit create → run → teardown
// lifecycle. Nothing here is a process-wide singleton; callers construct an
// Engine and pass it around.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub012/internal/catalog"
	"github.com/dlorp/synapse-engine-sub012/internal/common/fsutil"
	"github.com/dlorp/synapse-engine-sub012/internal/config"
	"github.com/dlorp/synapse-engine-sub012/internal/discovery"
	"github.com/dlorp/synapse-engine-sub012/internal/events"
	"github.com/dlorp/synapse-engine-sub012/internal/ports"
	"github.com/dlorp/synapse-engine-sub012/internal/supervisor"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

type Engine struct {
	cfg  config.Config
	log  zerolog.Logger
	cat  *catalog.Catalog
	disc *discovery.Service
	sup  *supervisor.Supervisor
	pub  events.Publisher

	stopHealth context.CancelFunc
}

// New builds an engine from config. An existing registry file is loaded so
// overrides and port assignments survive restarts; a missing file starts the
// catalog empty until the first scan.
func New(cfg config.Config, log zerolog.Logger, pub events.Publisher) (*Engine, error) {
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	regPath, err := fsutil.ExpandHome(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("registry path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(regPath), 0o755); err != nil {
		return nil, fmt.Errorf("registry dir: %w", err)
	}

	snap := types.CatalogSnapshot{
		Models:         map[string]types.ModelEntry{},
		PortRange:      cfg.PortRange(),
		TierThresholds: cfg.TierThresholds(),
	}
	if fsutil.PathExists(regPath) {
		loaded, err := catalog.Load(regPath)
		if err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
		snap = loaded
		// config wins over persisted bounds
		snap.PortRange = cfg.PortRange()
		snap.TierThresholds = cfg.TierThresholds()
	}

	e := &Engine{
		cfg:  cfg,
		log:  log,
		pub:  pub,
		cat:  catalog.New(snap, catalog.Options{Path: regPath, Logger: log}),
		disc: discovery.NewService(log),
		sup: supervisor.New(supervisor.Config{
			BinPath:         cfg.LlamaServerPath,
			Host:            cfg.Host,
			MaxStartupTime:  cfg.MaxStartupTime(),
			ShutdownTimeout: cfg.ShutdownTimeout(),
			ForceKillGrace:  cfg.ForceKillGrace(),
			HealthInterval:  cfg.HealthInterval(),
			NGPULayers:      cfg.NGPULayers,
			CtxSize:         cfg.CtxSize,
			NThreads:        cfg.NThreads,
			BatchSize:       cfg.BatchSize,
		}, log, pub),
	}
	return e, nil
}

func (e *Engine) Catalog() *catalog.Catalog          { return e.cat }
func (e *Engine) Supervisor() *supervisor.Supervisor { return e.sup }

// ListModels returns the catalog entries sorted by ID.
func (e *Engine) ListModels() []types.ModelEntry { return e.cat.List() }

// SetModelEnabled flips the enable flag. A disabled model keeps its port and
// overrides; it just stops being a fleet start target.
func (e *Engine) SetModelEnabled(modelID string, enabled bool) error {
	return e.cat.SetEnabled(modelID, enabled)
}

// Run starts the background health monitor. It returns immediately; the
// monitor stops when ctx is cancelled or Close is called.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.stopHealth = cancel
	go e.sup.MonitorHealth(ctx)
}

// Close tears the fleet down: every tracked process is stopped with the
// configured escalation semantics. Safe to call on all exit paths.
func (e *Engine) Close(ctx context.Context) types.StopReport {
	if e.stopHealth != nil {
		e.stopHealth()
	}
	report := e.sup.StopAll(ctx, e.cfg.ShutdownTimeout())
	e.log.Info().Int("stopped", report.Stopped).Int("forced", len(report.Forced)).Msg("fleet shut down")
	return report
}

// Status reports the fleet and catalog state plus the binary sanity check.
func (e *Engine) Status() types.StatusResponse {
	snap := e.cat.Snapshot()
	resp := types.StatusResponse{
		Models:    len(snap.Models),
		Processes: e.sup.Statuses(),
		ByTier:    map[types.Tier]int{},
		LastScan:  snap.LastScan,
	}
	for _, m := range snap.Models {
		if m.Enabled {
			resp.Enabled++
		}
		resp.ByTier[m.EffectiveTier()]++
	}
	resp.BinFound, resp.BinPath = e.binCheck()
	return resp
}

// binCheck validates the server binary is reachable before anything spawns.
func (e *Engine) binCheck() (bool, string) {
	bin := e.cfg.LlamaServerPath
	if filepath.IsAbs(bin) {
		fi, err := os.Stat(bin)
		return err == nil && !fi.IsDir(), bin
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return false, bin
	}
	return true, path
}

// Rescan runs discovery and merges the result into the catalog atomically.
func (e *Engine) Rescan(ctx context.Context) (types.ScanReport, error) {
	if err := ctx.Err(); err != nil {
		return types.ScanReport{}, err
	}
	res, err := e.disc.Discover(e.cfg.ModelsDir, e.cfg.PortRange(), e.cfg.TierThresholds())
	if err != nil {
		return types.ScanReport{}, err
	}

	var added, removed int
	err = e.cat.Update(func(s *types.CatalogSnapshot) error {
		for id := range res.Snapshot.Models {
			if _, ok := s.Models[id]; !ok {
				added++
			}
		}
		for id := range s.Models {
			if _, ok := res.Snapshot.Models[id]; !ok {
				removed++
			}
		}
		*s = discovery.Merge(*s, res.Snapshot)
		return nil
	})
	report := types.ScanReport{
		ScanPath: res.Snapshot.ScanPath,
		Found:    res.Found,
		Added:    added,
		Removed:  removed,
		Skipped:  res.Skipped,
		ScanTime: res.Snapshot.LastScan,
	}
	if err != nil && !catalog.IsPersist(err) {
		return report, err
	}
	e.pub.Publish(events.New("discovery_complete", "", map[string]any{
		"found": report.Found, "added": report.Added, "removed": report.Removed, "skipped": report.Skipped,
	}))
	return report, err
}

// SetModelPort validates and applies an explicit port. The conflict check
// runs inside the catalog transaction, so no state mutates on rejection.
// restartRequired signals that the model is currently running on its old
// port; the caller decides when to bounce it.
func (e *Engine) SetModelPort(modelID string, port int) (restartRequired bool, err error) {
	err = e.cat.Update(func(s *types.CatalogSnapshot) error {
		m, ok := s.Models[modelID]
		if !ok {
			return &catalog.NotFoundError{ID: modelID}
		}
		if verr := ports.ValidateExplicit(*s, modelID, port); verr != nil {
			return verr
		}
		p := port
		m.Port = &p
		s.Models[modelID] = m
		return nil
	})
	if err != nil && !catalog.IsPersist(err) {
		return false, err
	}
	if proc, ok := e.sup.Get(modelID); ok && proc.Port != port {
		restartRequired = true
	}
	return restartRequired, err
}
