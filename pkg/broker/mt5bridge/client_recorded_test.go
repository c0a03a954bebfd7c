package mt5bridge

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dnaeon/go-vcr/recorder"
	"github.com/stretchr/testify/assert"

	"mtfchart/pkg/bars"
	"mtfchart/pkg/broker"
)

// This test uses go-vcr to record/replay a real history call against a local
// bridge. It skips by default if the cassette is absent and RECORD_CASSETTES != 1.
func TestClient_GetHistorySeries_Recorded(t *testing.T) {
	cassette := filepath.Join("testdata", "cassettes", "mt5bridge_history")
	if _, err := os.Stat(cassette + ".yaml"); os.IsNotExist(err) {
		if os.Getenv("RECORD_CASSETTES") != "1" {
			t.Skipf("cassette missing; set RECORD_CASSETTES=1 to record: %s.yaml", cassette)
		}
		err := os.MkdirAll(filepath.Dir(cassette), 0o755)
		assert.NoError(t, err, "mkdir cassettes dir should succeed")
	}

	r, err := recorder.New(cassette)
	assert.NoError(t, err, "recorder.New should not error")
	defer func() { _ = r.Stop() }()

	baseURL := os.Getenv("MT5_BRIDGE_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8001"
	}
	client := NewClient(WithBaseURL(baseURL), WithHTTPClient(&http.Client{Transport: r}), WithMaxRetries(0))
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	series, err := client.GetHistorySeries(context.Background(), broker.HistoryRequest{
		Symbol:     "EURUSD",
		Resolution: bars.Res1h,
		FromMs:     to - 200*bars.Res1h.Millis(),
		ToMs:       to,
	})
	assert.NoError(t, err, "GetHistorySeries should not error")
	if assert.NotNil(t, series) {
		assert.NotEmpty(t, bars.Normalize(series.Bars), "bars should normalise")
		assert.NotEmpty(t, series.Source)
	}
}
