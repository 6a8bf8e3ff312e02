package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"signal_engine/internal/models"
	"signal_engine/pkg/db"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS strategies (
	id           BIGSERIAL PRIMARY KEY,
	name         TEXT        NOT NULL,
	timeframe    TEXT        NOT NULL,
	enabled      BOOLEAN     NOT NULL DEFAULT TRUE,
	kind         TEXT        NOT NULL,
	builtin      TEXT        NOT NULL DEFAULT '',
	formula      TEXT        NOT NULL DEFAULT '',
	params       JSONB       NOT NULL DEFAULT '{}',
	signal_count BIGINT      NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS instruments (
	id               BIGSERIAL PRIMARY KEY,
	symbol           TEXT    NOT NULL,
	exchange         TEXT    NOT NULL DEFAULT '',
	broker           TEXT    NOT NULL,
	subscription_key TEXT    NOT NULL,
	enabled          BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE (broker, subscription_key)
);
CREATE TABLE IF NOT EXISTS broker_credentials (
	broker       TEXT PRIMARY KEY,
	api_key      TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL DEFAULT '',
	client_code  TEXT NOT NULL DEFAULT '',
	feed_token   TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS signals (
	id             UUID PRIMARY KEY,
	strategy_id    BIGINT         NOT NULL,
	instrument_id  BIGINT         NOT NULL,
	instrument_key TEXT           NOT NULL,
	timeframe      TEXT           NOT NULL,
	type           TEXT           NOT NULL,
	price          NUMERIC(20, 6) NOT NULL,
	ema50          NUMERIC(20, 6) NOT NULL,
	ema200         NUMERIC(20, 6) NOT NULL,
	candle_start   TIMESTAMPTZ    NOT NULL,
	created_at     TIMESTAMPTZ    NOT NULL
);
CREATE TABLE IF NOT EXISTS candles (
	instrument_key TEXT           NOT NULL,
	timeframe      TEXT           NOT NULL,
	period_start   TIMESTAMPTZ    NOT NULL,
	open           NUMERIC(20, 6) NOT NULL,
	high           NUMERIC(20, 6) NOT NULL,
	low            NUMERIC(20, 6) NOT NULL,
	close          NUMERIC(20, 6) NOT NULL,
	volume         NUMERIC(24, 4) NOT NULL,
	PRIMARY KEY (instrument_key, timeframe, period_start)
);`

// Postgres — Store поверх pgx-пула. NUMERIC читается в decimal.Decimal.
type Postgres struct {
	db db.TxManager
}

func NewPostgres(ctx context.Context, m db.TxManager) (*Postgres, error) {
	if m == nil {
		return nil, fmt.Errorf("pg.NewPostgres: nil tx manager")
	}
	if _, err := m.Conn().Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("pg.NewPostgres: schema: %w", err)
	}
	return &Postgres{db: m}, nil
}

func (p *Postgres) EnabledStrategies(ctx context.Context) (out []models.Strategy, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.EnabledStrategies: %w", err)
		}
	}()

	rows, err := p.db.Conn().Query(ctx, `
		SELECT id, name, timeframe, enabled, kind, builtin, formula, params::text, signal_count
		FROM strategies WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r      strategyRow
			params string
		)
		if err = rows.Scan(&r.ID, &r.Name, &r.Timeframe, &r.Enabled, &r.Kind, &r.Builtin, &r.Formula, &params, &r.SignalCount); err != nil {
			return nil, err
		}
		r.Params = []byte(params)
		s, convErr := r.toModel()
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) EnabledInstruments(ctx context.Context) (out []models.Instrument, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.EnabledInstruments: %w", err)
		}
	}()

	rows, err := p.db.Conn().Query(ctx, `
		SELECT id, symbol, exchange, broker, subscription_key, enabled
		FROM instruments WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			in     models.Instrument
			broker string
		)
		if err = rows.Scan(&in.ID, &in.Symbol, &in.Exchange, &broker, &in.SubscriptionKey, &in.Enabled); err != nil {
			return nil, err
		}
		in.Broker = models.BrokerName(broker)
		out = append(out, in)
	}
	return out, rows.Err()
}

func (p *Postgres) Credentials(ctx context.Context) (out []models.BrokerCredentials, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.Credentials: %w", err)
		}
	}()

	rows, err := p.db.Conn().Query(ctx, `
		SELECT broker, api_key, access_token, client_code, feed_token FROM broker_credentials`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c      models.BrokerCredentials
			broker string
		)
		if err = rows.Scan(&broker, &c.APIKey, &c.AccessToken, &c.ClientCode, &c.FeedToken); err != nil {
			return nil, err
		}
		c.Broker = models.BrokerName(broker)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) SaveSignal(ctx context.Context, s models.Signal) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.SaveSignal: %w", err)
		}
	}()

	_, err = p.db.Conn().Exec(ctx, `
		INSERT INTO signals (id, strategy_id, instrument_id, instrument_key, timeframe, type,
			price, ema50, ema200, candle_start, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		s.ID, s.StrategyID, s.InstrumentID, s.InstrumentKey, string(s.Timeframe), string(s.Type),
		decimal.NewFromFloat(s.Price), decimal.NewFromFloat(s.EMA50), decimal.NewFromFloat(s.EMA200),
		s.CandleStart, s.CreatedAt)
	return err
}

func (p *Postgres) IncrementSignalCount(ctx context.Context, strategyID int64) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.IncrementSignalCount: %w", err)
		}
	}()

	return p.db.RunMaster(ctx, func(ctx context.Context, tx db.Transaction) error {
		tag, err := tx.Exec(ctx,
			`UPDATE strategies SET signal_count = signal_count + 1 WHERE id = $1`, strategyID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("strategy %d not found", strategyID)
		}
		return nil
	})
}

func (p *Postgres) SaveCandle(ctx context.Context, c models.Candle) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.SaveCandle: %w", err)
		}
	}()

	_, err = p.db.Conn().Exec(ctx, `
		INSERT INTO candles (instrument_key, timeframe, period_start, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (instrument_key, timeframe, period_start) DO UPDATE
		SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume`,
		c.InstrumentKey, string(c.Timeframe), c.PeriodStart,
		decimal.NewFromFloat(c.Open), decimal.NewFromFloat(c.High), decimal.NewFromFloat(c.Low),
		decimal.NewFromFloat(c.Close), decimal.NewFromFloat(c.Volume))
	return err
}

func (p *Postgres) RecentCandles(ctx context.Context, key models.CandleKey, limit int) (out []models.Candle, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("pg.RecentCandles: %w", err)
		}
	}()

	err = p.db.RunRepeatableRead(ctx, func(ctx context.Context, tx db.Transaction) error {
		rows, err := tx.Query(ctx, `
			SELECT period_start, open, high, low, close, volume
			FROM candles WHERE instrument_key = $1 AND timeframe = $2
			ORDER BY period_start DESC LIMIT $3`,
			key.InstrumentKey, string(key.Timeframe), limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				start                        time.Time
				open, high, low, cls, volume decimal.Decimal
			)
			if err := rows.Scan(&start, &open, &high, &low, &cls, &volume); err != nil {
				return err
			}
			out = append(out, models.Candle{
				InstrumentKey: key.InstrumentKey,
				Timeframe:     key.Timeframe,
				PeriodStart:   start.UTC(),
				Open:          open.InexactFloat64(),
				High:          high.InexactFloat64(),
				Low:           low.InexactFloat64(),
				Close:         cls.InexactFloat64(),
				Volume:        volume.InexactFloat64(),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

// Close ничего не делает: пулом владеет postgres-модуль.
func (p *Postgres) Close() error { return nil }
