package overlay

import (
	"math"
	"sort"
)

const (
	// DefaultMaxSelected caps non-forced levels per frame.
	DefaultMaxSelected = 6
	// DefaultDedupBandPct is the share of the padded price range inside which
	// two non-forced levels count as duplicates.
	DefaultDedupBandPct = 0.003
)

// Selector ranks and dedupes candidate levels.
type Selector struct {
	MaxSelected  int
	DedupBandPct float64
}

// DefaultSelector returns the stock tuning.
func DefaultSelector() Selector {
	return Selector{MaxSelected: DefaultMaxSelected, DedupBandPct: DefaultDedupBandPct}
}

// Select applies the default selector.
func Select(candidates []Level, paddedRange float64) []Level {
	return DefaultSelector().Select(candidates, paddedRange)
}

// Select returns every forced level followed by at most MaxSelected
// non-forced levels, highest priority first, skipping any candidate within
// the dedupe band of one already accepted.
func (s Selector) Select(candidates []Level, paddedRange float64) []Level {
	maxSelected := s.MaxSelected
	if maxSelected <= 0 {
		maxSelected = DefaultMaxSelected
	}
	bandPct := s.DedupBandPct
	if bandPct <= 0 {
		bandPct = DefaultDedupBandPct
	}
	band := math.Abs(paddedRange) * bandPct

	var forced, rest []Level
	for _, l := range candidates {
		if math.IsNaN(l.Price) || math.IsInf(l.Price, 0) {
			continue
		}
		if l.Forced() {
			forced = append(forced, l)
		} else {
			rest = append(rest, l)
		}
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Priority > rest[j].Priority })

	accepted := make([]Level, 0, maxSelected)
	for _, cand := range rest {
		if len(accepted) >= maxSelected {
			break
		}
		dup := false
		for _, a := range accepted {
			if math.Abs(a.Price-cand.Price) <= band {
				dup = true
				break
			}
		}
		if !dup {
			accepted = append(accepted, cand)
		}
	}

	seen := make(map[string]struct{}, len(forced)+len(accepted))
	out := make([]Level, 0, len(forced)+len(accepted))
	for _, l := range append(forced, accepted...) {
		key := l.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}
