package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"LatentTrader/internal/domain/models"
	domrepo "LatentTrader/internal/domain/repository"
	pkgch "LatentTrader/pkg/clickhouse"
	applogger "LatentTrader/pkg/logger"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// CHCandleStore reads OHLCV history from a ClickHouse table of one-minute
// candles, rolling rows up to the requested granularity in the query.
type CHCandleStore struct {
	db    *sql.DB
	query string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, table string, l *applogger.Logger) (*CHCandleStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid candle table %q", table)
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{db: ch.DB(), query: candleQuery(table), l: l}, nil
}

func candleQuery(table string) string {
	const qtpl = `
        SELECT toStartOfInterval(bucket, toIntervalSecond(?)) AS t,
               min(low), max(high), argMin(open, bucket), argMax(close, bucket), sum(volume)
        FROM %s
        WHERE product = ? AND bucket >= ? AND bucket < ?
        GROUP BY t
        ORDER BY t ASC
    `
	return fmt.Sprintf(qtpl, table)
}

func (s *CHCandleStore) GetCandles(ctx context.Context, product string, from, to time.Time, g domrepo.Granularity) ([]models.Candle, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, s.query, int(g), product, from.UTC(), to.UTC())
	if err != nil {
		s.l.Error("clickhouse get_candles query error",
			applogger.String("product", product),
			applogger.Int("granularity", int(g)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, int(to.Sub(from)/g.Duration())+1)
	for rows.Next() {
		c := models.Candle{Product: product}
		if err := rows.Scan(&c.Time, &c.Low, &c.High, &c.Open, &c.Close, &c.Volume); err != nil {
			s.l.Error("clickhouse get_candles scan error",
				applogger.String("product", product),
				applogger.Error(err),
			)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse get_candles ok",
		applogger.String("product", product),
		applogger.Int("granularity", int(g)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)
