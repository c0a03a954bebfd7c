package bars

// Coverage describes how much of the expected bucket range a series fills.
// It is diagnostic only and never used to mutate bars.
type Coverage struct {
	ExpectedBars int     `json:"expectedBars" msgpack:"expectedBars"`
	MissingBars  int     `json:"missingBars" msgpack:"missingBars"`
	GapCount     int     `json:"gapCount" msgpack:"gapCount"`
	MaxGapMs     int64   `json:"maxGapMs" msgpack:"maxGapMs"`
	CoveragePct  float64 `json:"coveragePct" msgpack:"coveragePct"`
	FirstTs      int64   `json:"firstTs" msgpack:"firstTs"`
	LastTs       int64   `json:"lastTs" msgpack:"lastTs"`
}

// ComputeCoverage runs a contiguous-bucket analysis over a sorted series.
// A gap is any step between consecutive bars wider than one bucket;
// MaxGapMs is the widest missing span.
func ComputeCoverage(series []Candle, r Resolution) Coverage {
	width := r.Millis()
	if len(series) == 0 || width <= 0 {
		return Coverage{}
	}
	first, last := series[0].T, series[len(series)-1].T
	cov := Coverage{
		FirstTs:      first,
		LastTs:       last,
		ExpectedBars: int((last-first)/width) + 1,
	}
	for i := 1; i < len(series); i++ {
		step := series[i].T - series[i-1].T
		if step <= width {
			continue
		}
		cov.GapCount++
		if missing := step - width; missing > cov.MaxGapMs {
			cov.MaxGapMs = missing
		}
	}
	cov.MissingBars = cov.ExpectedBars - len(series)
	if cov.MissingBars < 0 {
		cov.MissingBars = 0
	}
	cov.CoveragePct = float64(len(series)) / float64(cov.ExpectedBars) * 100
	if cov.CoveragePct > 100 {
		cov.CoveragePct = 100
	}
	return cov
}
