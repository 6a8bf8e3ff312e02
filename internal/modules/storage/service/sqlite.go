package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"signal_engine/internal/models"
)

// SQLite — встраиваемый Store для одиночного запуска и тестов.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create data directory")
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// один писатель, иначе SQLITE_BUSY
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate sqlite")
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS strategies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			kind TEXT NOT NULL,
			builtin TEXT NOT NULL DEFAULT '',
			formula TEXT NOT NULL DEFAULT '',
			params TEXT NOT NULL DEFAULT '{}',
			signal_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS instruments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			exchange TEXT NOT NULL DEFAULT '',
			broker TEXT NOT NULL,
			subscription_key TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			UNIQUE (broker, subscription_key)
		)`,
		`CREATE TABLE IF NOT EXISTS broker_credentials (
			broker TEXT PRIMARY KEY,
			api_key TEXT NOT NULL DEFAULT '',
			access_token TEXT NOT NULL DEFAULT '',
			client_code TEXT NOT NULL DEFAULT '',
			feed_token TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id TEXT PRIMARY KEY,
			strategy_id INTEGER NOT NULL,
			instrument_id INTEGER NOT NULL,
			instrument_key TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			type TEXT NOT NULL,
			price REAL NOT NULL,
			ema50 REAL NOT NULL,
			ema200 REAL NOT NULL,
			candle_start_unix_millis INTEGER NOT NULL,
			created_unix_millis INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS candles (
			instrument_key TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			period_start_unix_millis INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			volume REAL NOT NULL,
			PRIMARY KEY (instrument_key, timeframe, period_start_unix_millis)
		)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) EnabledStrategies(ctx context.Context) ([]models.Strategy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, timeframe, enabled, kind, builtin, formula, params, signal_count
		FROM strategies WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query strategies")
	}
	defer rows.Close()

	var out []models.Strategy
	for rows.Next() {
		var (
			r      strategyRow
			params string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Timeframe, &r.Enabled, &r.Kind, &r.Builtin, &r.Formula, &params, &r.SignalCount); err != nil {
			return nil, errors.Wrap(err, "scan strategy")
		}
		r.Params = []byte(params)
		st, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, errors.Wrap(rows.Err(), "iterate strategies")
}

func (s *SQLite) EnabledInstruments(ctx context.Context) ([]models.Instrument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, exchange, broker, subscription_key, enabled
		FROM instruments WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "query instruments")
	}
	defer rows.Close()

	var out []models.Instrument
	for rows.Next() {
		var (
			in     models.Instrument
			broker string
		)
		if err := rows.Scan(&in.ID, &in.Symbol, &in.Exchange, &broker, &in.SubscriptionKey, &in.Enabled); err != nil {
			return nil, errors.Wrap(err, "scan instrument")
		}
		in.Broker = models.BrokerName(broker)
		out = append(out, in)
	}
	return out, errors.Wrap(rows.Err(), "iterate instruments")
}

func (s *SQLite) Credentials(ctx context.Context) ([]models.BrokerCredentials, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT broker, api_key, access_token, client_code, feed_token FROM broker_credentials`)
	if err != nil {
		return nil, errors.Wrap(err, "query credentials")
	}
	defer rows.Close()

	var out []models.BrokerCredentials
	for rows.Next() {
		var (
			c      models.BrokerCredentials
			broker string
		)
		if err := rows.Scan(&broker, &c.APIKey, &c.AccessToken, &c.ClientCode, &c.FeedToken); err != nil {
			return nil, errors.Wrap(err, "scan credentials")
		}
		c.Broker = models.BrokerName(broker)
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate credentials")
}

func (s *SQLite) SaveSignal(ctx context.Context, sig models.Signal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO signals (id, strategy_id, instrument_id, instrument_key, timeframe, type,
			price, ema50, ema200, candle_start_unix_millis, created_unix_millis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.StrategyID, sig.InstrumentID, sig.InstrumentKey, string(sig.Timeframe), string(sig.Type),
		sig.Price, sig.EMA50, sig.EMA200, sig.CandleStart.UnixMilli(), sig.CreatedAt.UnixMilli())
	return errors.Wrap(err, "insert signal")
}

func (s *SQLite) IncrementSignalCount(ctx context.Context, strategyID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE strategies SET signal_count = signal_count + 1 WHERE id = ?`, strategyID)
	return errors.Wrap(err, "increment signal count")
}

func (s *SQLite) SaveCandle(ctx context.Context, c models.Candle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO candles (instrument_key, timeframe, period_start_unix_millis,
			open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.InstrumentKey, string(c.Timeframe), c.PeriodStart.UnixMilli(),
		c.Open, c.High, c.Low, c.Close, c.Volume)
	return errors.Wrap(err, "upsert candle")
}

func (s *SQLite) RecentCandles(ctx context.Context, key models.CandleKey, limit int) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period_start_unix_millis, open, high, low, close, volume
		FROM candles WHERE instrument_key = ? AND timeframe = ?
		ORDER BY period_start_unix_millis DESC LIMIT ?`,
		key.InstrumentKey, string(key.Timeframe), limit)
	if err != nil {
		return nil, errors.Wrap(err, "query candles")
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		c := models.Candle{InstrumentKey: key.InstrumentKey, Timeframe: key.Timeframe}
		var startMillis int64
		if err := rows.Scan(&startMillis, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, errors.Wrap(err, "scan candle")
		}
		c.PeriodStart = time.UnixMilli(startMillis).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate candles")
	}
	reverse(out)
	return out, nil
}

// AddStrategy / AddInstrument / PutCredentials — заполнение базы из сид-файла.

func (s *SQLite) AddStrategy(ctx context.Context, st models.Strategy) (int64, error) {
	params, err := encodeParams(st)
	if err != nil {
		return 0, errors.Wrap(err, "encode params")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO strategies (name, timeframe, enabled, kind, builtin, formula, params)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.Name, string(st.Timeframe), st.Enabled, string(st.Kind), st.Builtin, st.Formula, string(params))
	if err != nil {
		return 0, errors.Wrap(err, "insert strategy")
	}
	return res.LastInsertId()
}

func (s *SQLite) AddInstrument(ctx context.Context, in models.Instrument) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO instruments (symbol, exchange, broker, subscription_key, enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (broker, subscription_key) DO UPDATE
		SET symbol = excluded.symbol, exchange = excluded.exchange, enabled = excluded.enabled`,
		in.Symbol, in.Exchange, string(in.Broker), in.SubscriptionKey, in.Enabled)
	if err != nil {
		return 0, errors.Wrap(err, "upsert instrument")
	}
	return res.LastInsertId()
}

func (s *SQLite) PutCredentials(ctx context.Context, c models.BrokerCredentials) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO broker_credentials (broker, api_key, access_token, client_code, feed_token)
		VALUES (?, ?, ?, ?, ?)`,
		string(c.Broker), c.APIKey, c.AccessToken, c.ClientCode, c.FeedToken)
	return errors.Wrap(err, "put credentials")
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
