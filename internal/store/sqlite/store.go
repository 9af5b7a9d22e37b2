// Package sqlite is the persistence adapter backing every port declared
// in internal/model/ports.go except ExchangeAdapter: algos, deployed_algos,
// trades, backtest_request, backtest_trades, the sdex_ohlcv 1-minute
// candle archive, and the state table.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sdexalgo/internal/metrics"
)

const maxWriteRetries = 3

// Store is a single-writer SQLite connection shared by every persistence
// port this repository implements. SQLite has one physical writer
// regardless of how many Go-level connections are open, so the pool is
// capped at a single connection.
type Store struct {
	db      *sql.DB
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at path in WAL
// mode and creates the schema if it does not already exist.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("sqlite: opened database", "path", path)
	return &Store{db: db, log: log}, nil
}

// SetMetrics wires the optional metrics surface; safe to leave unset.
func (s *Store) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// DB returns the underlying *sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS algos (
			userid        TEXT NOT NULL,
			algoname      TEXT NOT NULL,
			base_code     TEXT NOT NULL,
			base_issuer   TEXT NOT NULL,
			counter_code  TEXT NOT NULL,
			counter_issuer TEXT NOT NULL,
			candlesize    TEXT NOT NULL,
			strategyname  TEXT NOT NULL,
			parameters    TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (userid, algoname)
		);

		CREATE TABLE IF NOT EXISTS deployed_algos (
			id         TEXT PRIMARY KEY,
			userid     TEXT NOT NULL,
			algoname   TEXT NOT NULL,
			amount     REAL NOT NULL,
			num_cycles INTEGER NOT NULL,
			status     TEXT NOT NULL,
			error      TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_deployed_algos_userid ON deployed_algos(userid);

		CREATE TABLE IF NOT EXISTS trades (
			ts              INTEGER NOT NULL,
			deployment_id   TEXT NOT NULL,
			advice          TEXT NOT NULL,
			sold_asset      TEXT NOT NULL,
			sold_amount     REAL NOT NULL,
			bought_asset    TEXT NOT NULL,
			bought_amount   REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_deployment ON trades(deployment_id, ts);

		CREATE TABLE IF NOT EXISTS backtest_request (
			id           TEXT PRIMARY KEY,
			userid       TEXT NOT NULL,
			algoname     TEXT NOT NULL,
			start_ts     INTEGER NOT NULL,
			end_ts       INTEGER NOT NULL,
			base_code    TEXT NOT NULL,
			base_issuer  TEXT NOT NULL,
			counter_code TEXT NOT NULL,
			counter_issuer TEXT NOT NULL,
			candlesize   TEXT NOT NULL,
			strategyname TEXT NOT NULL,
			parameters   TEXT NOT NULL DEFAULT '{}',
			status       TEXT NOT NULL,
			error        TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_backtest_request_status ON backtest_request(status);

		CREATE TABLE IF NOT EXISTS backtest_trades (
			ts            INTEGER NOT NULL,
			backtest_id   TEXT NOT NULL,
			advice        TEXT NOT NULL,
			sold_asset    TEXT NOT NULL,
			sold_amount   REAL NOT NULL,
			bought_asset  TEXT NOT NULL,
			bought_amount REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_backtest_trades_backtest ON backtest_trades(backtest_id, ts);

		CREATE TABLE IF NOT EXISTS sdex_ohlcv (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			trade_pair     TEXT NOT NULL,
			ts             INTEGER NOT NULL,
			year           INTEGER NOT NULL,
			month          INTEGER NOT NULL,
			week           INTEGER NOT NULL,
			day            INTEGER NOT NULL,
			hour4          INTEGER NOT NULL,
			hour           INTEGER NOT NULL,
			minute15       INTEGER NOT NULL,
			minute5        INTEGER NOT NULL,
			minute         INTEGER NOT NULL,
			open           REAL NOT NULL,
			high           REAL NOT NULL,
			low            REAL NOT NULL,
			close          REAL NOT NULL,
			base_volume    REAL NOT NULL,
			counter_volume REAL NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_sdex_ohlcv_pair_ts ON sdex_ohlcv(trade_pair, ts);
		CREATE INDEX IF NOT EXISTS idx_sdex_ohlcv_pair_bucket ON sdex_ohlcv(trade_pair, year, month, week, day, hour4, hour, minute15, minute5);

		CREATE TABLE IF NOT EXISTS state (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	return err
}

// withRetry retries fn up to maxWriteRetries times; beyond that the
// operation fails. Retries are immediate (no backoff): a single-writer
// SQLite connection's failures are almost always SQLITE_BUSY, which
// clears within milliseconds once the prior writer commits.
func (s *Store) withRetry(op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxWriteRetries; attempt++ {
		start := time.Now()
		if err = fn(); err == nil {
			s.metrics.ObserveSQLiteCommit(time.Since(start))
			return nil
		}
		s.metrics.SQLiteRetry()
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, maxWriteRetries, err)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
