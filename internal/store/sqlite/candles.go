package sqlite

import (
	"context"
	"database/sql"
	"time"

	"sdexalgo/internal/model"
)

const (
	archiveBatchSize  = 100
	archiveFlushDelay = 200 * time.Millisecond
)

// ── CandleArchive ──

// Run persists closed 1-minute candles from candleCh into sdex_ohlcv in
// batched transactions, flushing on batch size or timer.
func (s *Store) Run(ctx context.Context, candleCh <-chan model.Candle) {
	batch := make([]model.Candle, 0, archiveBatchSize)
	timer := time.NewTimer(archiveFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.insertCandleBatch(batch); err != nil {
			s.log.Error("sqlite: candle archive batch insert failed", "err", err)
		} else {
			s.metrics.CandlesArchivedAdd(len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c, ok := <-candleCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, c)
			if len(batch) >= archiveBatchSize {
				flush()
				timer.Reset(archiveFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(archiveFlushDelay)
		}
	}
}

func (s *Store) insertCandleBatch(candles []model.Candle) error {
	return s.withRetry("insert candle batch", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO sdex_ohlcv
				(trade_pair, ts, year, month, week, day, hour4, hour, minute15, minute5, minute,
				 open, high, low, close, base_volume, counter_volume)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			tx.Rollback()
			return err
		}
		defer stmt.Close()

		for _, c := range candles {
			b := model.BucketColumnsFor(c.Start)
			_, err := stmt.Exec(c.Pair.Key(), c.Start.Unix(), b.Year, b.Month, b.Week, b.Day, b.Hour4, b.Hour, b.Minute15, b.Minute5, b.Minute,
				c.Open, c.High, c.Low, c.Close, c.BaseVolume, c.CounterVolume)
			if err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

// ── StateStore ──

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Put(ctx context.Context, key, value string) error {
	return s.withRetry("put state", func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO state (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		return err
	})
}
