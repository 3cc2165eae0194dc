package coinbase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"LatentTrader/internal/domain/models"
	drepo "LatentTrader/internal/domain/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// candleServer answers every request with one row per minute of the
// requested range, newest first, mixing string and number encodings.
func candleServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/products/BTC-USD/candles", r.URL.Path)
		assert.Equal(t, "60", r.URL.Query().Get("granularity"))
		start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
		assert.NoError(t, err)
		end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
		assert.NoError(t, err)

		var rows []interface{}
		for ts := end; !ts.Before(start); ts = ts.Add(-time.Minute) {
			px := float64(ts.Unix()%1000) / 10
			rows = append(rows, []interface{}{ts.Unix(), px - 1, "101.5", px, px + 0.5, "2.25"})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
}

func TestRESTGetCandlesPagesAndSorts(t *testing.T) {
	var calls atomic.Int32
	srv := candleServer(t, &calls)
	defer srv.Close()

	r := NewREST(srv.URL, WithRateLimit(0, 1))
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(400 * time.Minute)

	got, err := r.GetCandles(context.Background(), "BTC-USD", from, to, drepo.G1m)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load(), "400 rows need two pages of 300")
	require.Len(t, got, 400)
	assert.True(t, got[0].Time.Equal(from))
	assert.True(t, got[399].Time.Equal(to.Add(-time.Minute)))
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i-1].Time.Before(got[i].Time), "row %d out of order", i)
	}
	assert.InDelta(t, 101.5, got[0].High, 1e-12)
	assert.InDelta(t, 2.25, got[0].Volume, 1e-12)
	assert.Equal(t, "BTC-USD", got[0].Product)
}

func TestRESTErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"NotFound"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewREST(srv.URL)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err := r.GetCandles(context.Background(), "BTC-USD", from, from.Add(time.Hour), drepo.G1m)
	assert.Error(t, err)

	_, err = r.GetCandles(context.Background(), "BTC-USD", from, from, drepo.G1m)
	assert.Error(t, err)
}

func parseCandlesJSON(t *testing.T, body string) ([]models.Candle, error) {
	t.Helper()
	var raw [][]decimal.Decimal
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	return parseCandles("BTC-USD", raw)
}

func TestParseCandlesRejectsShortRows(t *testing.T) {
	_, err := parseCandlesJSON(t, `[[1709251200, 1, 2, 3]]`)
	assert.Error(t, err)

	got, err := parseCandlesJSON(t, `[[1709251200, "1", 2, "1.5", 1.75, 10]]`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 1.75, got[0].Close, 1e-12)
	assert.Equal(t, int64(1709251200), got[0].Time.Unix())
}
