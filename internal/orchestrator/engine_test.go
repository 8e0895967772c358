package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub012/internal/config"
	"github.com/dlorp/synapse-engine-sub012/internal/events"
	"github.com/dlorp/synapse-engine-sub012/internal/ports"
	"github.com/dlorp/synapse-engine-sub012/internal/supervisor"
	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// selectiveServer fails for model paths containing "bad" and serves quietly
// otherwise, so one binary exercises mixed fleet outcomes.
const selectiveServer = `#!/bin/sh
case "$2" in
  *bad*) echo "cannot open model file" >&2; exit 1 ;;
  *) echo "HTTP server listening" >&2; exec sleep 60 ;;
esac
`

const (
	idLlama  = "llama-3.1-8b-q4_k_m-balanced"
	idQwen   = "qwen-coder-2.5-14b-q4_k_m-powerful"
	idBadger = "badger-7b-q8_0-balanced"
)

func newTestEngine(t *testing.T) (*Engine, *events.MemoryPublisher) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fakes are unix-only")
	}
	dir := t.TempDir()
	modelsDir := filepath.Join(dir, "models")
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, n := range []string{
		"llama-3.1-8b-instruct.Q4_K_M.gguf",
		"qwen2.5-coder-14b-instruct-q4_k_m.gguf",
		"badger-7b-q8_0.gguf",
	} {
		if err := os.WriteFile(filepath.Join(modelsDir, n), []byte("gguf"), 0o644); err != nil {
			t.Fatalf("touch: %v", err)
		}
	}
	bin := filepath.Join(dir, "fake-llama-server")
	if err := os.WriteFile(bin, []byte(selectiveServer), 0o755); err != nil {
		t.Fatalf("write fake server: %v", err)
	}

	cfg, err := config.Normalize(config.Config{
		ModelsDir:          modelsDir,
		RegistryPath:       filepath.Join(dir, "registry.json"),
		LlamaServerPath:    bin,
		PortStart:          9101,
		PortEnd:            9110,
		ShutdownTimeoutSec: 2,
		ForceKillGraceSec:  2,
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	pub := events.NewMemoryPublisher()
	e, err := New(cfg, zerolog.Nop(), pub)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	t.Cleanup(func() { e.Close(context.Background()) })
	return e, pub
}

func TestRescanBuildsCatalog(t *testing.T) {
	e, pub := newTestEngine(t)
	report, err := e.Rescan(context.Background())
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if report.Found != 3 || report.Added != 3 || report.Removed != 0 || report.Skipped != 0 {
		t.Fatalf("report: %+v", report)
	}
	for _, id := range []string{idLlama, idQwen, idBadger} {
		if _, ok := e.Catalog().Get(id); !ok {
			t.Fatalf("missing %s; have %+v", id, e.Catalog().List())
		}
	}
	if len(pub.Named("discovery_complete")) != 1 {
		t.Fatalf("discovery event missing: %+v", pub.Events())
	}
}

func TestStartAllIsolatesFailures(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Rescan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	for _, id := range []string{idLlama, idQwen, idBadger} {
		if err := e.Catalog().SetEnabled(id, true); err != nil {
			t.Fatalf("enable %s: %v", id, err)
		}
	}

	report, err := e.StartAll(ctx)
	if err != nil {
		t.Fatalf("start all: %v", err)
	}
	if report.Total != 3 || report.Ready != 2 {
		t.Fatalf("report: %+v", report)
	}
	if len(report.Failed) != 1 || report.Failed[0].ModelID != idBadger {
		t.Fatalf("failed list: %+v", report.Failed)
	}
	for _, id := range []string{idLlama, idQwen} {
		p, ok := e.Supervisor().Get(id)
		if !ok || p.State() != supervisor.StateReady {
			t.Fatalf("%s should be ready (ok=%v)", id, ok)
		}
	}
	if _, ok := e.Supervisor().Get(idBadger); ok {
		t.Fatalf("failed model must not stay tracked")
	}

	// ports were allocated in tier priority order: powerful gets the lowest
	qwen, _ := e.Catalog().Get(idQwen)
	if qwen.Port == nil || *qwen.Port != 9101 {
		t.Fatalf("qwen port: %+v", qwen.Port)
	}
}

func TestApplyProfileStopBeforeStart(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Rescan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}

	if _, err := e.ApplyProfile(ctx, []string{idLlama}); err != nil {
		t.Fatalf("apply profile 1: %v", err)
	}
	first, ok := e.Supervisor().Get(idLlama)
	if !ok {
		t.Fatalf("llama should be running")
	}

	report, err := e.ApplyProfile(ctx, []string{idLlama, idQwen})
	if err != nil {
		t.Fatalf("apply profile 2: %v", err)
	}
	if report.Ready != 2 {
		t.Fatalf("report: %+v", report)
	}
	// the surviving model keeps its process
	if cur, _ := e.Supervisor().Get(idLlama); cur != first {
		t.Fatalf("surviving model was restarted")
	}

	if _, err := e.ApplyProfile(ctx, []string{idQwen}); err != nil {
		t.Fatalf("apply profile 3: %v", err)
	}
	if _, ok := e.Supervisor().Get(idLlama); ok {
		t.Fatalf("llama should have been stopped by the profile switch")
	}
	m, _ := e.Catalog().Get(idLlama)
	if m.Enabled {
		t.Fatalf("llama should be disabled")
	}

	if _, err := e.ApplyProfile(ctx, []string{"nope"}); err == nil {
		t.Fatalf("unknown model must be rejected")
	}
}

func TestSetModelPort(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Rescan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if _, err := e.ApplyProfile(ctx, []string{idLlama, idQwen}); err != nil {
		t.Fatalf("apply profile: %v", err)
	}

	llama, _ := e.Catalog().Get(idLlama)
	before := e.Catalog().Snapshot()

	// Scenario D: conflicting explicit port, nothing mutates
	var ce *ports.ConflictError
	qwen, _ := e.Catalog().Get(idQwen)
	if _, err := e.SetModelPort(idLlama, *qwen.Port); !errors.As(err, &ce) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	after := e.Catalog().Snapshot()
	if m := after.Models[idLlama]; *m.Port != *llama.Port {
		t.Fatalf("port mutated on rejection")
	}
	if !after.LastScan.Equal(before.LastScan) || len(after.Models) != len(before.Models) {
		t.Fatalf("catalog changed on rejection")
	}

	// moving a running model to a free port flags the needed restart
	restart, err := e.SetModelPort(idLlama, 9109)
	if err != nil {
		t.Fatalf("set port: %v", err)
	}
	if !restart {
		t.Fatalf("running model must signal restart required")
	}
	m, _ := e.Catalog().Get(idLlama)
	if m.Port == nil || *m.Port != 9109 {
		t.Fatalf("port not applied: %+v", m.Port)
	}
}

func TestRescanPreservesStateAndDropsMissing(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Rescan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	tier := types.TierFast
	if err := e.Catalog().SetTierOverride(idLlama, &tier); err != nil {
		t.Fatalf("override: %v", err)
	}
	if err := e.Catalog().SetEnabled(idLlama, true); err != nil {
		t.Fatalf("enable: %v", err)
	}

	// drop one artifact and rescan
	snap := e.Catalog().Snapshot()
	if err := os.Remove(snap.Models[idBadger].FilePath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	report, err := e.Rescan(ctx)
	if err != nil {
		t.Fatalf("rescan 2: %v", err)
	}
	if report.Removed != 1 || report.Added != 0 {
		t.Fatalf("report: %+v", report)
	}
	if _, ok := e.Catalog().Get(idBadger); ok {
		t.Fatalf("removed artifact still present")
	}
	m, _ := e.Catalog().Get(idLlama)
	if m.TierOverride == nil || *m.TierOverride != tier || !m.Enabled {
		t.Fatalf("user state lost on rescan: %+v", m)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.Rescan(ctx); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if _, err := e.ApplyProfile(ctx, []string{idLlama, idQwen}); err != nil {
		t.Fatalf("apply profile: %v", err)
	}
	e.Run(ctx)

	start := time.Now()
	report := e.Close(ctx)
	if report.Total != 2 || report.Stopped != 2 {
		t.Fatalf("close report: %+v", report)
	}
	if len(e.Supervisor().Tracked()) != 0 {
		t.Fatalf("processes survived Close")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("close took too long")
	}
}
