package discovery

import "github.com/dlorp/synapse-engine-sub012/pkg/types"

// AssignTier computes the tier for a parsed artifact. Pure function of the
// parsed metadata, the thinking flag and the thresholds:
//
//  1. thinking models are POWERFUL, regardless of size
//  2. size >= powerfulMin -> POWERFUL
//  3. size < fastMax with a low-precision quant -> FAST
//  4. everything else -> BALANCED
func AssignTier(p ParsedArtifact, thinking bool, th types.TierThresholds) types.Tier {
	if thinking {
		return types.TierPowerful
	}
	if p.SizeParams >= th.PowerfulMin {
		return types.TierPowerful
	}
	if p.SizeParams < th.FastMax && p.Quantization.LowPrecision() {
		return types.TierFast
	}
	return types.TierBalanced
}
