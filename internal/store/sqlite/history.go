package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sdexalgo/internal/model"
)

// rowLimitSafety bounds how many raw 1-minute rows a single GetCandles
// call will pull into memory before grouping. The query contract is the
// aggregation result, not the storage layout: grouping in Go after one
// ordered scan is
// simplest-correct for an archive whose per-pair 1m row count is bounded
// by wall-clock time, not request volume.
const rowLimitSafety = 200_000

type ohlcvRow struct {
	id                                 int64
	ts                                 int64
	year, month, week, day             int
	hour4, hour, minute15, minute5     int
	open, high, low, close             float64
	baseVolume, counterVolume          float64
}

// GetCandles returns a paged ordered stream of candles for a pair and
// time window. For model.Res1m (or empty), it returns raw rows
// ordered by timestamp. For any coarser resolution it groups the
// matching 1-minute rows by the resolution's bucket-prefix columns and
// returns one aggregated Candle per bucket: (min-ts, max-high, min-low,
// first-open, last-close, sum-base-volume, sum-counter-volume), with the
// last row's id becoming the next page token.
func (s *Store) GetCandles(ctx context.Context, pair model.TradingPair, from, to time.Time, res model.Resolution, pageSize int, pageToken string) ([]model.Candle, string, error) {
	if res != "" && !res.Valid() {
		return nil, "", fmt.Errorf("invalid resolution %q", res)
	}
	if pageSize <= 0 {
		pageSize = 100
	}

	afterID, err := parsePageToken(pageToken)
	if err != nil {
		return nil, "", fmt.Errorf("invalid page token %q: %w", pageToken, err)
	}

	if res == "" || res == model.Res1m {
		return s.getRawCandles(ctx, pair, from, to, afterID, pageSize)
	}
	return s.getAggregatedCandles(ctx, pair, from, to, res, afterID, pageSize)
}

func parsePageToken(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	return strconv.ParseInt(token, 10, 64)
}

func (s *Store) getRawCandles(ctx context.Context, pair model.TradingPair, from, to time.Time, afterID int64, pageSize int) ([]model.Candle, string, error) {
	rows, err := s.queryRows(ctx, pair, from, to, afterID, pageSize)
	if err != nil {
		return nil, "", err
	}
	if len(rows) == 0 {
		return nil, "", nil
	}
	candles := make([]model.Candle, len(rows))
	for i, r := range rows {
		candles[i] = rowToCandle(pair, model.Res1m, r)
	}
	next := ""
	if len(rows) == pageSize {
		next = strconv.FormatInt(rows[len(rows)-1].id, 10)
	}
	return candles, next, nil
}

func (s *Store) getAggregatedCandles(ctx context.Context, pair model.TradingPair, from, to time.Time, res model.Resolution, afterID int64, pageSize int) ([]model.Candle, string, error) {
	rows, err := s.queryRows(ctx, pair, from, to, afterID, rowLimitSafety)
	if err != nil {
		return nil, "", err
	}
	if len(rows) == rowLimitSafety {
		s.log.Warn("sqlite: GetCandles truncated raw row scan at safety limit", "pair", pair.Key(), "limit", rowLimitSafety)
	}
	if len(rows) == 0 {
		return nil, "", nil
	}

	buckets := groupByBucket(rows, res)

	if len(buckets) <= pageSize {
		candles := make([]model.Candle, len(buckets))
		for i, b := range buckets {
			candles[i] = bucketToCandle(pair, res, b)
		}
		return candles, "", nil
	}

	page := buckets[:pageSize]
	candles := make([]model.Candle, len(page))
	for i, b := range page {
		candles[i] = bucketToCandle(pair, res, b)
	}
	next := strconv.FormatInt(page[len(page)-1].lastID, 10)
	return candles, next, nil
}

func (s *Store) queryRows(ctx context.Context, pair model.TradingPair, from, to time.Time, afterID int64, limit int) ([]ohlcvRow, error) {
	args := []any{pair.Key()}
	where := `trade_pair = ?`
	if !from.IsZero() {
		where += ` AND ts >= ?`
		args = append(args, from.Unix())
	}
	if !to.IsZero() {
		where += ` AND ts < ?`
		args = append(args, to.Unix())
	}
	if afterID > 0 {
		where += ` AND id > ?`
		args = append(args, afterID)
	}
	args = append(args, limit)

	query := `
		SELECT id, ts, year, month, week, day, hour4, hour, minute15, minute5,
		       open, high, low, close, base_volume, counter_volume
		FROM sdex_ohlcv WHERE ` + where + ` ORDER BY id ASC LIMIT ?`

	sqlRows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer sqlRows.Close()

	var out []ohlcvRow
	for sqlRows.Next() {
		var r ohlcvRow
		if err := sqlRows.Scan(&r.id, &r.ts, &r.year, &r.month, &r.week, &r.day, &r.hour4, &r.hour, &r.minute15, &r.minute5,
			&r.open, &r.high, &r.low, &r.close, &r.baseVolume, &r.counterVolume); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, sqlRows.Err()
}

func rowToCandle(pair model.TradingPair, res model.Resolution, r ohlcvRow) model.Candle {
	return model.Candle{
		Pair:          pair,
		Resolution:    res,
		Start:         time.Unix(r.ts, 0).UTC(),
		Open:          r.open,
		High:          r.high,
		Low:           r.low,
		Close:         r.close,
		BaseVolume:    r.baseVolume,
		CounterVolume: r.counterVolume,
	}
}

// bucketAgg accumulates one resolution bucket's worth of 1-minute rows,
// in timestamp order (the order queryRows returns them in).
type bucketAgg struct {
	firstTS, lastID                   int64
	open, high, low, close            float64
	baseVolume, counterVolume         float64
}

// bucketKeyFor returns the grouping key for resolution res, built from
// the row's precomputed bucket columns: year+month+week for 1w, down
// through year/month/day/hour4 etc. for finer resolutions.
func bucketKeyFor(r ohlcvRow, res model.Resolution) [6]int {
	switch res {
	case model.Res1w:
		return [6]int{r.year, r.month, r.week}
	case model.Res1d:
		return [6]int{r.year, r.month, r.day}
	case model.Res4h:
		return [6]int{r.year, r.month, r.day, r.hour4}
	case model.Res1h:
		return [6]int{r.year, r.month, r.day, r.hour}
	case model.Res15m:
		return [6]int{r.year, r.month, r.day, r.hour, r.minute15}
	case model.Res5m:
		return [6]int{r.year, r.month, r.day, r.hour, r.minute5}
	default:
		return [6]int{r.year, r.month, r.day, r.hour, r.hour, r.minute5}
	}
}

func groupByBucket(rows []ohlcvRow, res model.Resolution) []bucketAgg {
	var out []bucketAgg
	var curKey [6]int
	have := false

	for _, r := range rows {
		key := bucketKeyFor(r, res)
		if !have || key != curKey {
			out = append(out, bucketAgg{
				firstTS:       r.ts,
				lastID:        r.id,
				open:          r.open,
				high:          r.high,
				low:           r.low,
				close:         r.close,
				baseVolume:    r.baseVolume,
				counterVolume: r.counterVolume,
			})
			curKey = key
			have = true
			continue
		}
		b := &out[len(out)-1]
		b.lastID = r.id
		b.close = r.close
		if r.high > b.high {
			b.high = r.high
		}
		if r.low < b.low {
			b.low = r.low
		}
		b.baseVolume += r.baseVolume
		b.counterVolume += r.counterVolume
	}
	return out
}

func bucketToCandle(pair model.TradingPair, res model.Resolution, b bucketAgg) model.Candle {
	return model.Candle{
		Pair:          pair,
		Resolution:    res,
		Start:         time.Unix(b.firstTS, 0).UTC(),
		Open:          b.open,
		High:          b.high,
		Low:           b.low,
		Close:         b.close,
		BaseVolume:    b.baseVolume,
		CounterVolume: b.counterVolume,
	}
}
