package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"sdexalgo/internal/model"
)

// ── BacktestStore ──

func (s *Store) CreateBacktest(ctx context.Context, b model.BacktestRequest) error {
	params, err := json.Marshal(b.AlgoSnapshot.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	return s.withRetry("create backtest", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO backtest_request (id, userid, algoname, start_ts, end_ts, base_code, base_issuer,
				counter_code, counter_issuer, candlesize, strategyname, parameters, status, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.Owner, b.AlgoSnapshot.Name, b.StartTS.Unix(), b.EndTS.Unix(),
			b.AlgoSnapshot.Pair.Base.Code, b.AlgoSnapshot.Pair.Base.Issuer,
			b.AlgoSnapshot.Pair.Counter.Code, b.AlgoSnapshot.Pair.Counter.Issuer,
			string(b.AlgoSnapshot.Resolution), b.AlgoSnapshot.Strategy, string(params),
			string(b.Status), b.Error)
		return err
	})
}

func (s *Store) UpdateBacktestStatus(ctx context.Context, id string, status model.BacktestStatus, errMsg string) error {
	return s.withRetry("update backtest status", func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE backtest_request SET status = ?, error = ? WHERE id = ?`, string(status), errMsg, id)
		return err
	})
}

func (s *Store) GetBacktest(ctx context.Context, id string) (model.BacktestRequest, error) {
	row := s.db.QueryRowContext(ctx, backtestSelect+` WHERE id = ?`, id)
	return scanBacktest(row)
}

func (s *Store) ListBacktests(ctx context.Context, owner string) ([]model.BacktestRequest, error) {
	rows, err := s.db.QueryContext(ctx, backtestSelect+` WHERE userid = ? ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBacktests(rows)
}

func (s *Store) NextQueued(ctx context.Context, n int) ([]model.BacktestRequest, error) {
	rows, err := s.db.QueryContext(ctx, backtestSelect+` WHERE status = ? ORDER BY rowid LIMIT ?`, string(model.BacktestNew), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBacktests(rows)
}

const backtestSelect = `
	SELECT id, userid, algoname, start_ts, end_ts, base_code, base_issuer, counter_code, counter_issuer,
		candlesize, strategyname, parameters, status, error
	FROM backtest_request`

func scanBacktest(row rowScanner) (model.BacktestRequest, error) {
	var b model.BacktestRequest
	var startTS, endTS int64
	var baseCode, baseIssuer, counterCode, counterIssuer, res, params, status string
	err := row.Scan(&b.ID, &b.Owner, &b.AlgoSnapshot.Name, &startTS, &endTS,
		&baseCode, &baseIssuer, &counterCode, &counterIssuer, &res, &b.AlgoSnapshot.Strategy, &params,
		&status, &b.Error)
	if err != nil {
		return model.BacktestRequest{}, err
	}
	b.AlgoSnapshot.Owner = b.Owner
	b.AlgoSnapshot.Pair = model.TradingPair{
		Base:    assetFromCols(baseCode, baseIssuer),
		Counter: assetFromCols(counterCode, counterIssuer),
	}
	b.AlgoSnapshot.Resolution = model.Resolution(res)
	b.StartTS = unixToTime(startTS)
	b.EndTS = unixToTime(endTS)
	b.Status = model.BacktestStatus(status)
	if err := json.Unmarshal([]byte(params), &b.AlgoSnapshot.Parameters); err != nil {
		return model.BacktestRequest{}, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return b, nil
}

func scanBacktests(rows *sql.Rows) ([]model.BacktestRequest, error) {
	var out []model.BacktestRequest
	for rows.Next() {
		b, err := scanBacktest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
