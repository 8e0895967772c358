package discovery

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

var testThresholds = types.TierThresholds{PowerfulMin: 13, FastMax: 7}
var testRange = types.PortRange{Start: 9001, End: 9010}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte("gguf"), 0o644); err != nil {
			t.Fatalf("touch %s: %v", n, err)
		}
	}
}

func TestDiscoverTierCounts(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"deepseek-r1-distill-llama-8b-q4_k_m.gguf", // thinking -> powerful
		"gptoss-20b-q4_k_m.gguf",                   // size -> powerful
		"qwen2.5-coder-14b-instruct-q4_k_m.gguf",   // size -> powerful
		"tinyllama-1.1b-chat-q4_0.gguf",            // fast
		"gemma2-2b-it-q4_k_m.gguf",                 // fast
	)
	svc := NewService(zerolog.Nop())
	res, err := svc.Discover(dir, testRange, testThresholds)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if res.Found != 5 || res.Skipped != 0 {
		t.Fatalf("found=%d skipped=%d", res.Found, res.Skipped)
	}
	counts := map[types.Tier]int{}
	thinking := 0
	for _, m := range res.Snapshot.Models {
		counts[m.EffectiveTier()]++
		if m.EffectiveThinking() {
			thinking++
		}
	}
	if counts[types.TierFast] != 2 || counts[types.TierBalanced] != 0 || counts[types.TierPowerful] != 3 {
		t.Fatalf("tier counts: %v", counts)
	}
	if thinking != 1 {
		t.Fatalf("thinking count: %d", thinking)
	}
	for _, m := range res.Snapshot.Models {
		if m.Enabled || m.Port != nil || m.TierOverride != nil || m.ThinkingOverride != nil {
			t.Fatalf("fresh entries must carry defaults: %+v", m)
		}
	}
}

func TestDiscoverRecursesAndCountsSkipped(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		filepath.Join("sub", "llama-3.1-8b-instruct.Q4_K_M.gguf"),
		"not-a-model.txt",
		"mystery.gguf", // .gguf but no pattern matches
	)
	svc := NewService(zerolog.Nop())
	res, err := svc.Discover(dir, testRange, testThresholds)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if res.Found != 2 || res.Skipped != 1 {
		t.Fatalf("found=%d skipped=%d", res.Found, res.Skipped)
	}
	if len(res.Snapshot.Models) != 1 {
		t.Fatalf("models: %+v", res.Snapshot.Models)
	}
}

func TestDiscoverUnreadableRoot(t *testing.T) {
	svc := NewService(zerolog.Nop())
	_, err := svc.Discover(filepath.Join(t.TempDir(), "nope"), testRange, testThresholds)
	var pe *PathError
	if err == nil {
		t.Fatalf("expected PathError")
	}
	if !errors.As(err, &pe) {
		t.Fatalf("expected PathError, got %T", err)
	}
}

func TestDiscoverIDCollisionSuffix(t *testing.T) {
	dir := t.TempDir()
	// identical metadata in two directories -> same slug, deterministic suffix
	touch(t, dir,
		filepath.Join("a", "llama-3.1-8b-instruct.Q4_K_M.gguf"),
		filepath.Join("b", "llama-3.1-8b-instruct.Q4_K_M.gguf"),
	)
	svc := NewService(zerolog.Nop())
	res, err := svc.Discover(dir, testRange, testThresholds)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	base := "llama-3.1-8b-q4_k_m-balanced"
	if _, ok := res.Snapshot.Models[base]; !ok {
		t.Fatalf("missing base id, have %v", ids(res.Snapshot))
	}
	if _, ok := res.Snapshot.Models[base+"-2"]; !ok {
		t.Fatalf("missing suffixed id, have %v", ids(res.Snapshot))
	}
	// sorted path order makes the assignment stable: a/ gets the base id
	if m := res.Snapshot.Models[base]; filepath.Base(filepath.Dir(m.FilePath)) != "a" {
		t.Fatalf("base id should map to first path, got %s", m.FilePath)
	}
}

func ids(s types.CatalogSnapshot) []string {
	var out []string
	for id := range s.Models {
		out = append(out, id)
	}
	return out
}
