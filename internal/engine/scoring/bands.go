package scoring

// band awards points when the value reaches the threshold. Tables are
// ordered from best to worst; the first match wins.
type band struct {
	threshold float64
	points    int
}

type table struct {
	max      int
	atMost   bool
	bands    []band
	fallback int
}

func (t table) score(v *float64) (earned, max int) {
	if v == nil {
		return 0, 0
	}
	for _, b := range t.bands {
		if (t.atMost && *v <= b.threshold) || (!t.atMost && *v >= b.threshold) {
			return b.points, t.max
		}
	}
	return t.fallback, t.max
}

var (
	depthTable = table{max: 20, bands: []band{{80, 20}, {65, 16}, {50, 12}, {35, 7}}, fallback: 3}
	rateTable  = table{max: 15, bands: []band{{85, 15}, {70, 12}, {55, 8}, {40, 4}}, fallback: 1}

	// combined uses compressions in target for both depth and rate
	combinedTable = table{max: 20, bands: []band{{60, 20}, {45, 16}, {35, 12}, {25, 7}}, fallback: 3}
	ccfTable      = table{max: 15, bands: []band{{85, 15}, {80, 12}, {70, 8}, {60, 4}}, fallback: 1}

	pauseMeanTable = table{max: 6, atMost: true, bands: []band{{4, 6}, {6, 4}, {8, 2}}}
	longPauseTable = table{max: 4, atMost: true, bands: []band{{0, 4}, {1, 2}}}

	firstCompressionTable = table{max: 5, atMost: true, bands: []band{{30, 5}, {60, 4}, {90, 2}}}
	firstShockTable       = table{max: 5, atMost: true, bands: []band{{120, 5}, {180, 3}}, fallback: 1}
)

const (
	velocityMax          = 10
	velocityTarget       = 400
	velocityConsistentSD = 100
	nonShockablePoints   = 3
)

func scoreReleaseVelocity(mean, sd *float64) (earned, max int) {
	if mean == nil {
		return 0, 0
	}
	switch {
	case *mean >= velocityTarget && sd != nil && *sd < velocityConsistentSD:
		return 10, velocityMax
	case *mean >= velocityTarget:
		return 8, velocityMax
	case *mean >= 350:
		return 6, velocityMax
	case *mean >= 300:
		return 3, velocityMax
	}
	return 1, velocityMax
}

// scoreFirstShock treats a missing time with zero shocks as a non-shockable
// rhythm worth a neutral score. An unknown shock count is excluded.
func scoreFirstShock(v *float64, shocks *int) (earned, max int) {
	if v == nil {
		if shocks != nil && *shocks == 0 {
			return nonShockablePoints, firstShockTable.max
		}
		return 0, 0
	}
	return firstShockTable.score(v)
}
