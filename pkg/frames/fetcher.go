package frames

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/broker"
)

// ErrNoHistory means the collaborator answered without any usable bars.
var ErrNoHistory = errors.New("no history returned")

type fetchResult struct {
	bars        []bars.Candle
	coverage    *bars.Coverage
	source      string
	fetchedAtMs int64
}

// fetcher turns one frame refresh into a history request.
type fetcher struct {
	history broker.HistoryProvider
	now     func() time.Time
}

func (f *fetcher) request(symbol string, cfg Config, force bool) broker.HistoryRequest {
	to := f.now().UnixMilli()
	from := to - cfg.Resolution.Millis()*int64(cfg.LookbackBars)
	var maxAge int64
	if !force {
		maxAge = cfg.MaxAge.Milliseconds()
	}
	return broker.HistoryRequest{
		Symbol:     symbol,
		Resolution: cfg.Resolution,
		FromMs:     from,
		ToMs:       to,
		MaxAgeMs:   maxAge,
	}
}

func (f *fetcher) fetch(ctx context.Context, symbol string, cfg Config, force bool) (fetchResult, error) {
	if f.history == nil {
		return fetchResult{}, broker.ErrNotConnected
	}
	req := f.request(symbol, cfg, force)
	series, err := f.history.GetHistorySeries(ctx, req)
	if err != nil {
		return fetchResult{}, err
	}
	if series == nil {
		return fetchResult{}, ErrNoHistory
	}
	normalized := bars.Tail(bars.Normalize(series.Bars), cfg.Capacity())
	if len(normalized) == 0 {
		return fetchResult{}, ErrNoHistory
	}

	res := fetchResult{
		bars:        normalized,
		source:      series.Source,
		fetchedAtMs: series.FetchedAtMs,
		coverage:    series.Coverage,
	}
	if res.fetchedAtMs <= 0 {
		res.fetchedAtMs = req.ToMs
	}
	if res.coverage == nil {
		cov := bars.ComputeCoverage(normalized, cfg.Resolution)
		res.coverage = &cov
	}
	return res, nil
}

// describeError renders a fetch failure for display on the frame.
func describeError(symbol string, cfg Config, err error) string {
	switch {
	case errors.Is(err, broker.ErrNotConnected):
		return "Broker not connected"
	case errors.Is(err, ErrNoHistory):
		return fmt.Sprintf("No %s history for %s", cfg.Label, symbol)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s history request timed out", cfg.Label)
	default:
		return fmt.Sprintf("%s history failed: %v", cfg.Label, err)
	}
}
