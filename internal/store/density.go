package store

import "strings"

const (
	// DecimateThreshold is the sample count above which QueryNodes thins its result.
	DecimateThreshold = 100

	// decimateTarget is the divisor used to pick the decimation step.
	decimateTarget = 50

	// tagSeparator joins k=v pairs inside one aggregated row. The unit
	// separator cannot occur in OSM tag text.
	tagSeparator = "\x1f"
)

// ApproximationRate returns the rounding step, in degrees, used to collapse
// nearby nodes at the given zoom. Zoom levels pair up; anything outside 1..20
// falls back to the coarsest step.
func ApproximationRate(zoom int) float64 {
	switch zoom {
	case 20, 19:
		return 0.0000001
	case 18, 17:
		return 0.00000025
	case 16, 15:
		return 0.000001
	case 14, 13:
		return 0.000025
	case 12, 11:
		return 0.00015
	case 10, 9:
		return 0.00045
	case 8, 7:
		return 0.00225
	case 6, 5:
		return 0.009
	case 4, 3:
		return 0.036
	case 2, 1:
		return 0.144
	default:
		return 0.576
	}
}

// Decimate keeps every (len/50)-th element when s holds more than 100
// elements, starting with the first. Shorter slices are returned as is.
func Decimate[T any](s []T) []T {
	if len(s) <= DecimateThreshold {
		return s
	}
	step := len(s) / decimateTarget
	out := make([]T, 0, len(s)/step+1)
	for i := 0; i < len(s); i += step {
		out = append(out, s[i])
	}
	return out
}

// parseNodeTags splits an aggregated "k=v<US>k=v" string. A pair without
// '=' maps its key to the empty string.
func parseNodeTags(s string) map[string]string {
	tags := make(map[string]string)
	if s == "" {
		return tags
	}
	for _, pair := range strings.Split(s, tagSeparator) {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		tags[k] = v
	}
	return tags
}
