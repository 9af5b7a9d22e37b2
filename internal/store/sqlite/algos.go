package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sdexalgo/internal/model"
)

// ── AlgoStore ──

func (s *Store) CreateAlgo(ctx context.Context, a model.Algo) error {
	params, err := json.Marshal(a.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	return s.withRetry("create algo", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO algos (userid, algoname, base_code, base_issuer, counter_code, counter_issuer, candlesize, strategyname, parameters)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.Owner, a.Name, a.Pair.Base.Code, a.Pair.Base.Issuer, a.Pair.Counter.Code, a.Pair.Counter.Issuer,
			string(a.Resolution), a.Strategy, string(params))
		return err
	})
}

func (s *Store) GetAlgo(ctx context.Context, owner, name string) (model.Algo, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT userid, algoname, base_code, base_issuer, counter_code, counter_issuer, candlesize, strategyname, parameters
		FROM algos WHERE userid = ? AND algoname = ?`, owner, name)
	return scanAlgo(row)
}

func (s *Store) ListAlgos(ctx context.Context, owner string) ([]model.Algo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT userid, algoname, base_code, base_issuer, counter_code, counter_issuer, candlesize, strategyname, parameters
		FROM algos WHERE userid = ? ORDER BY algoname`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Algo
	for rows.Next() {
		a, err := scanAlgo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAlgo(ctx context.Context, owner, name string) error {
	return s.withRetry("delete algo", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM algos WHERE userid = ? AND algoname = ?`, owner, name)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlgo(row rowScanner) (model.Algo, error) {
	var a model.Algo
	var baseCode, baseIssuer, counterCode, counterIssuer, res, params string
	err := row.Scan(&a.Owner, &a.Name, &baseCode, &baseIssuer, &counterCode, &counterIssuer, &res, &a.Strategy, &params)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Algo{}, err
	}
	if err != nil {
		return model.Algo{}, err
	}
	a.Pair = model.TradingPair{
		Base:    assetFromCols(baseCode, baseIssuer),
		Counter: assetFromCols(counterCode, counterIssuer),
	}
	a.Resolution = model.Resolution(res)
	if err := json.Unmarshal([]byte(params), &a.Parameters); err != nil {
		return model.Algo{}, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return a, nil
}

func assetFromCols(code, issuer string) model.Asset {
	if code == "" && issuer == "" {
		return model.NativeAsset
	}
	return model.NewAsset(code, issuer)
}

func assetFromKey(key string) model.Asset {
	if key == model.NativeAsset.Key() {
		return model.NativeAsset
	}
	idx := strings.LastIndexByte(key, '_')
	if idx < 0 {
		return model.NativeAsset
	}
	return model.NewAsset(key[:idx], key[idx+1:])
}

func unixToTime(ts int64) time.Time { return time.Unix(ts, 0).UTC() }

// ── DeploymentStore ──

func (s *Store) CreateDeployment(ctx context.Context, d model.Deployment) error {
	return s.withRetry("create deployment", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO deployed_algos (id, userid, algoname, amount, num_cycles, status, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.Owner, d.AlgoName, d.Amount, d.NumCycles, string(d.Status), d.Error)
		return err
	})
}

func (s *Store) UpdateDeploymentStatus(ctx context.Context, id string, status model.DeploymentStatus, errMsg string) error {
	return s.withRetry("update deployment status", func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE deployed_algos SET status = ?, error = ? WHERE id = ?`, string(status), errMsg, id)
		return err
	})
}

func (s *Store) GetDeployment(ctx context.Context, id string) (model.Deployment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, userid, algoname, amount, num_cycles, status, error FROM deployed_algos WHERE id = ?`, id)
	return scanDeployment(row)
}

func (s *Store) ListDeployments(ctx context.Context, owner string) ([]model.Deployment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, userid, algoname, amount, num_cycles, status, error FROM deployed_algos WHERE userid = ? ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDeployment(row rowScanner) (model.Deployment, error) {
	var d model.Deployment
	var status string
	err := row.Scan(&d.ID, &d.Owner, &d.AlgoName, &d.Amount, &d.NumCycles, &status, &d.Error)
	if err != nil {
		return model.Deployment{}, err
	}
	d.Status = model.DeploymentStatus(status)
	return d, nil
}

// ── TradeStore ──

func (s *Store) RecordTrade(ctx context.Context, t model.TradeRecord) error {
	soldKey, boughtKey := t.SoldAsset.Key(), t.BoughtAsset.Key()
	return s.withRetry("record trade", func() error {
		if t.BacktestID != "" {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO backtest_trades (ts, backtest_id, advice, sold_asset, sold_amount, bought_asset, bought_amount)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				t.Timestamp.Unix(), t.BacktestID, string(t.Advice),
				soldKey, t.SoldAmount, boughtKey, t.BoughtAmount)
			return err
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO trades (ts, deployment_id, advice, sold_asset, sold_amount, bought_asset, bought_amount)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.Timestamp.Unix(), t.DeploymentID, string(t.Advice),
			soldKey, t.SoldAmount, boughtKey, t.BoughtAmount)
		return err
	})
}

func (s *Store) ListTradesByDeployment(ctx context.Context, deploymentID string) ([]model.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, advice, sold_asset, sold_amount, bought_asset, bought_amount
		FROM trades WHERE deployment_id = ? ORDER BY ts`, deploymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTradeRecords(rows, func(t *model.TradeRecord) { t.DeploymentID = deploymentID })
}

func (s *Store) ListTradesByBacktest(ctx context.Context, backtestID string) ([]model.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, advice, sold_asset, sold_amount, bought_asset, bought_amount
		FROM backtest_trades WHERE backtest_id = ? ORDER BY ts`, backtestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTradeRecords(rows, func(t *model.TradeRecord) { t.BacktestID = backtestID })
}

func scanTradeRecords(rows *sql.Rows, tag func(*model.TradeRecord)) ([]model.TradeRecord, error) {
	var out []model.TradeRecord
	for rows.Next() {
		var ts int64
		var advice, soldKey, boughtKey string
		var t model.TradeRecord
		if err := rows.Scan(&ts, &advice, &soldKey, &t.SoldAmount, &boughtKey, &t.BoughtAmount); err != nil {
			return nil, err
		}
		t.Timestamp = unixToTime(ts)
		t.Advice = model.Advice(advice)
		t.SoldAsset = assetFromKey(soldKey)
		t.BoughtAsset = assetFromKey(boughtKey)
		tag(&t)
		out = append(out, t)
	}
	return out, rows.Err()
}
