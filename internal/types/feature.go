package types

// LatLon is a single WGS84 coordinate.
type LatLon struct {
	Lat float64
	Lon float64
}

// Feature is one OSM way as retrieved from the feature store: its node
// coordinates (in way order, restricted to the queried box) and its tags.
// NodeIDs, when set, runs parallel to Coordinates.
type Feature struct {
	ID          int64
	Coordinates []LatLon
	NodeIDs     []int64
	Tags        map[string]string
}

// Name returns the feature's name tag, if any.
func (f Feature) Name() (string, bool) {
	name, ok := f.Tags["name"]
	return name, ok
}

// NodeSample is one point returned by the point-density query: a rounded
// coordinate plus the tags of the nodes that collapsed into it.
type NodeSample struct {
	Lat  float64
	Lon  float64
	Tags map[string]string
}

// FeatureCounts summarizes a list of features for logging.
func FeatureCounts(features []Feature) map[string]int {
	counts := map[string]int{"total": len(features)}
	for _, f := range features {
		switch {
		case len(f.Coordinates) < 2:
			counts["degenerate"]++
		case len(f.Tags) == 0:
			counts["untagged"]++
		}
		if _, ok := f.Tags["name"]; ok {
			counts["named"]++
		}
	}
	return counts
}
