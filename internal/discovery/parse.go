package discovery

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/dlorp/synapse-engine-sub012/pkg/types"
)

// ParsedArtifact is the structured metadata extracted from one artifact
// filename.
type ParsedArtifact struct {
	Family       string
	Version      string
	Variant      string
	Submodel     string
	SizeParams   float64
	Quantization types.Quantization
	Suffix       string
}

const quantPattern = `i?q\d+(?:_[a-z0-9]+)*|bf16|f16|f32`

// filenamePatterns are tried in order; the first match wins. They differ only
// in which optional segments (version, variant) are present between the
// family prefix and the size token.
var filenamePatterns = []*regexp.Regexp{
	// family + version + variant + size (+ submodel) + quant
	regexp.MustCompile(`(?i)^(?P<family>[a-z]+)[-_.]?v?(?P<version>\d+(?:\.\d+)*)[-_](?P<variant>[a-z][a-z0-9]*(?:[-_.][a-z0-9]+)*?)[-_.](?P<size>\d+(?:\.\d+)?)b(?:[-_.](?P<submodel>[a-z][a-z0-9]*))?[-_.](?P<quant>` + quantPattern + `)(?:[-_.](?P<suffix>[a-z0-9][a-z0-9._-]*))?\.gguf$`),
	// family + version + size (+ submodel) + quant
	regexp.MustCompile(`(?i)^(?P<family>[a-z]+)[-_.]?v?(?P<version>\d+(?:\.\d+)*)[-_](?P<size>\d+(?:\.\d+)?)b(?:[-_.](?P<submodel>[a-z][a-z0-9]*))?[-_.](?P<quant>` + quantPattern + `)(?:[-_.](?P<suffix>[a-z0-9][a-z0-9._-]*))?\.gguf$`),
	// family + variant + size (+ submodel) + quant
	regexp.MustCompile(`(?i)^(?P<family>[a-z]+)[-_.](?P<variant>[a-z][a-z0-9]*(?:[-_.][a-z0-9]+)*?)[-_.](?P<size>\d+(?:\.\d+)?)b(?:[-_.](?P<submodel>[a-z][a-z0-9]*))?[-_.](?P<quant>` + quantPattern + `)(?:[-_.](?P<suffix>[a-z0-9][a-z0-9._-]*))?\.gguf$`),
	// family + size (+ tail) + quant
	regexp.MustCompile(`(?i)^(?P<family>[a-z]+)[-_.](?P<size>\d+(?:\.\d+)?)b(?:[-_.](?P<submodel>[a-z0-9][a-z0-9.]*?))?[-_.](?P<quant>` + quantPattern + `)(?:[-_.](?P<suffix>[a-z0-9][a-z0-9._-]*))?\.gguf$`),
}

// thinkingTokens match as whole filename tokens ("r1" must not fire inside
// "turbo1"); thinkingSubstrings match anywhere.
var thinkingTokens = regexp.MustCompile(`(?i)(?:^|[-_.])(?:r1|o1)(?:[-_.]|$)`)

var thinkingSubstrings = []string{"reasoning", "think"}

// Parse extracts artifact metadata from a filename. ok is false when no
// pattern matches; such files are excluded from the catalog but counted.
func Parse(filename string) (ParsedArtifact, bool) {
	for _, re := range filenamePatterns {
		m := re.FindStringSubmatch(filename)
		if m == nil {
			continue
		}
		var p ParsedArtifact
		for i, name := range re.SubexpNames() {
			if i == 0 || name == "" {
				continue
			}
			switch name {
			case "family":
				p.Family = strings.ToLower(m[i])
			case "version":
				p.Version = m[i]
			case "variant":
				p.Variant = strings.ToLower(m[i])
			case "submodel":
				p.Submodel = strings.ToLower(m[i])
			case "size":
				p.SizeParams, _ = strconv.ParseFloat(m[i], 64)
			case "quant":
				p.Quantization = types.Quantization(strings.ToUpper(m[i]))
			case "suffix":
				p.Suffix = strings.ToLower(m[i])
			}
		}
		if p.Family == "" || p.Quantization.BitLevel() == 0 {
			continue
		}
		return p, true
	}
	return ParsedArtifact{}, false
}

// DetectThinking applies the keyword heuristics to the filename and the
// extracted variant field.
func DetectThinking(filename string, p ParsedArtifact) bool {
	for _, probe := range []string{filename, p.Variant} {
		if probe == "" {
			continue
		}
		if thinkingTokens.MatchString(probe) {
			return true
		}
		lower := strings.ToLower(probe)
		for _, kw := range thinkingSubstrings {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// ModelID builds the deterministic slug for a parsed artifact:
// family-variant-version-size-quant-tier, lowercased, empty parts skipped.
func ModelID(p ParsedArtifact, tier types.Tier) string {
	parts := make([]string, 0, 6)
	for _, s := range []string{
		p.Family,
		p.Variant,
		p.Version,
		strconv.FormatFloat(p.SizeParams, 'f', -1, 64) + "b",
		string(p.Quantization),
		string(tier),
	} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.ToLower(strings.Join(parts, "-"))
}
