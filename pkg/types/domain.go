package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tier is the performance classification of a model, driving routing and
// latency expectations.
type Tier string

const (
	TierFast     Tier = "fast"
	TierBalanced Tier = "balanced"
	TierPowerful Tier = "powerful"
)

// ParseTier normalizes s into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierFast:
		return TierFast, nil
	case TierBalanced:
		return TierBalanced, nil
	case TierPowerful:
		return TierPowerful, nil
	}
	return "", fmt.Errorf("unknown tier: %q", s)
}

// Priority orders tiers for port allocation: POWERFUL first.
func (t Tier) Priority() int {
	switch t {
	case TierPowerful:
		return 0
	case TierBalanced:
		return 1
	default:
		return 2
	}
}

func (t Tier) Valid() bool {
	return t == TierFast || t == TierBalanced || t == TierPowerful
}

// Quantization is a normalized GGUF precision label, e.g. Q4_K_M, Q8_0, F16.
type Quantization string

// ParseQuantization uppercases and validates a quantization token.
func ParseQuantization(s string) (Quantization, error) {
	q := Quantization(strings.ToUpper(strings.TrimSpace(s)))
	if q.BitLevel() == 0 {
		return "", fmt.Errorf("unknown quantization: %q", s)
	}
	return q, nil
}

// BitLevel extracts the nominal bit width (Q4_K_M -> 4, IQ2_XS -> 2,
// F16 -> 16). Returns 0 for unrecognized labels.
func (q Quantization) BitLevel() int {
	s := string(q)
	switch {
	case strings.HasPrefix(s, "IQ"):
		s = s[2:]
	case strings.HasPrefix(s, "Q"), strings.HasPrefix(s, "F"):
		s = s[1:]
	case strings.HasPrefix(s, "BF"):
		s = s[2:]
	default:
		return 0
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0
	}
	return n
}

// LowPrecision reports whether the quantization is in the low-precision set
// used by FAST tier classification (4-bit and below).
func (q Quantization) LowPrecision() bool {
	n := q.BitLevel()
	return n > 0 && n <= 4
}

// ModelEntry is one discovered model artifact plus its runtime settings.
// JSON field names are the registry persistence keys and must round-trip.
type ModelEntry struct {
	// ID is the map key in the registry file, not serialized inside the entry.
	ID string `json:"-"`

	FilePath string  `json:"filePath"`
	Filename string  `json:"filename"`
	Family   string  `json:"family"`
	Version  *string `json:"version"`
	// SizeParams is the parameter count in billions.
	SizeParams   float64      `json:"sizeParams"`
	Quantization Quantization `json:"quantization"`

	IsThinking       bool  `json:"isThinking"`
	ThinkingOverride *bool `json:"thinkingOverride"`

	AssignedTier Tier  `json:"assignedTier"`
	TierOverride *Tier `json:"tierOverride"`

	Port    *int `json:"port"`
	Enabled bool `json:"enabled"`

	// Per-model runtime overrides; nil means inherit the global default.
	NGPULayers *int `json:"nGpuLayers"`
	CtxSize    *int `json:"ctxSize"`
	NThreads   *int `json:"nThreads"`
	BatchSize  *int `json:"batchSize"`
}

// EffectiveThinking resolves the override-wins rule for the thinking flag.
func (m ModelEntry) EffectiveThinking() bool {
	if m.ThinkingOverride != nil {
		return *m.ThinkingOverride
	}
	return m.IsThinking
}

// EffectiveTier resolves the tier. A thinking-effective model is always
// POWERFUL; that rule wins over both the computed tier and a user override.
func (m ModelEntry) EffectiveTier() Tier {
	if m.EffectiveThinking() {
		return TierPowerful
	}
	if m.TierOverride != nil {
		return *m.TierOverride
	}
	return m.AssignedTier
}

// Clone returns a deep copy; pointer fields are reallocated so mutations on
// the copy never alias the original.
func (m ModelEntry) Clone() ModelEntry {
	out := m
	out.Version = clonePtr(m.Version)
	out.ThinkingOverride = clonePtr(m.ThinkingOverride)
	out.TierOverride = clonePtr(m.TierOverride)
	out.Port = clonePtr(m.Port)
	out.NGPULayers = clonePtr(m.NGPULayers)
	out.CtxSize = clonePtr(m.CtxSize)
	out.NThreads = clonePtr(m.NThreads)
	out.BatchSize = clonePtr(m.BatchSize)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// PortRange is an inclusive port interval.
type PortRange struct {
	Start int
	End   int
}

func (r PortRange) Contains(p int) bool { return p >= r.Start && p <= r.End }

// TierThresholds are the size cut-offs, in billions of parameters, used by
// tier assignment.
type TierThresholds struct {
	PowerfulMin float64 `json:"powerfulMin"`
	FastMax     float64 `json:"fastMax"`
}

// CatalogSnapshot is a plain value of the whole catalog: the model set plus
// scan metadata. All catalog mutations are expressed as snapshot-to-snapshot
// transforms applied under the catalog's writer lock.
type CatalogSnapshot struct {
	Models         map[string]ModelEntry
	ScanPath       string
	LastScan       time.Time
	PortRange      PortRange
	TierThresholds TierThresholds
}

// Clone deep-copies the snapshot.
func (s CatalogSnapshot) Clone() CatalogSnapshot {
	out := s
	out.Models = make(map[string]ModelEntry, len(s.Models))
	for id, m := range s.Models {
		out.Models[id] = m.Clone()
	}
	return out
}

// EnabledWithPort lists entries that are enabled and hold a port.
func (s CatalogSnapshot) EnabledWithPort() []ModelEntry {
	var out []ModelEntry
	for _, m := range s.Models {
		if m.Enabled && m.Port != nil {
			out = append(out, m.Clone())
		}
	}
	return out
}
