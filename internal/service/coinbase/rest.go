package coinbase

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"time"

	"LatentTrader/internal/domain/models"
	drepo "LatentTrader/internal/domain/repository"
	"LatentTrader/internal/service/ratelimit"
	xhttp "LatentTrader/pkg/http"
	"LatentTrader/pkg/logger"

	"github.com/shopspring/decimal"
)

// MaxCandlesPerRequest is the exchange cap on rows per candles call.
const MaxCandlesPerRequest = 300

// RESTOption configures REST.
type RESTOption func(*REST)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *xhttp.Client) RESTOption {
	return func(r *REST) {
		if c != nil {
			r.client = c
		}
	}
}

// WithRateLimit paces requests to perSecond with the given burst.
func WithRateLimit(perSecond float64, burst int) RESTOption {
	return func(r *REST) {
		r.limiter = ratelimit.New(perSecond, burst)
	}
}

// WithRESTLogger sets the logger.
func WithRESTLogger(l *logger.Logger) RESTOption {
	return func(r *REST) {
		if l != nil {
			r.log = l
		}
	}
}

// REST is the historical candles client. It implements CandleStore.
type REST struct {
	baseURL string
	client  *xhttp.Client
	limiter *ratelimit.Limiter
	log     *logger.Logger
}

func NewREST(baseURL string, opts ...RESTOption) *REST {
	r := &REST{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(10*time.Second), xhttp.WithRetries(3, time.Second)),
		limiter: ratelimit.New(3, 1),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetCandles pages through [from, to) in requests of at most
// MaxCandlesPerRequest rows and returns the rows in ascending time order,
// one per bucket.
func (r *REST) GetCandles(ctx context.Context, product string, from, to time.Time, g drepo.Granularity) ([]models.Candle, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("empty range %s..%s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	step := time.Duration(MaxCandlesPerRequest) * g.Duration()
	seen := make(map[int64]models.Candle)

	for start := from; start.Before(to); start = start.Add(step) {
		end := start.Add(step)
		if end.After(to) {
			end = to
		}
		rows, err := r.fetch(ctx, product, start, end, g)
		if err != nil {
			return nil, err
		}
		for _, c := range rows {
			if c.Time.Before(from) || !c.Time.Before(to) {
				continue
			}
			seen[c.Time.Unix()] = c
		}
	}

	out := make([]models.Candle, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b models.Candle) int { return a.Time.Compare(b.Time) })
	r.log.Debug("coinbase candles fetched",
		logger.String("product", product),
		logger.Int("granularity", int(g)),
		logger.Int("rows", len(out)))
	return out, nil
}

func (r *REST) fetch(ctx context.Context, product string, start, end time.Time, g drepo.Granularity) ([]models.Candle, error) {
	if err := r.limiter.Wait(ctx, "candles"); err != nil {
		return nil, err
	}
	var raw [][]decimal.Decimal
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     r.baseURL + "/products/" + url.PathEscape(product) + "/candles",
		Headers: map[string]string{"Accept": "application/json"},
		Query: url.Values{
			"start":       {start.UTC().Format(time.RFC3339)},
			"end":         {end.UTC().Format(time.RFC3339)},
			"granularity": {strconv.Itoa(int(g))},
		},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("coinbase candles %s: %w", product, err)
	}
	return parseCandles(product, raw)
}

// parseCandles decodes [time, low, high, open, close, volume] rows.
func parseCandles(product string, raw [][]decimal.Decimal) ([]models.Candle, error) {
	out := make([]models.Candle, 0, len(raw))
	for i, row := range raw {
		if len(row) < 6 {
			return nil, fmt.Errorf("candle row %d has %d fields", i, len(row))
		}
		out = append(out, models.Candle{
			Time:    time.Unix(row[0].IntPart(), 0).UTC(),
			Product: product,
			Low:     row[1].InexactFloat64(),
			High:    row[2].InexactFloat64(),
			Open:    row[3].InexactFloat64(),
			Close:   row[4].InexactFloat64(),
			Volume:  row[5].InexactFloat64(),
		})
	}
	return out, nil
}

var _ drepo.CandleStore = (*REST)(nil)
