package db

import (
	"context"
	"fmt"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"signal_engine/pkg/logger"
)

type PoolConfig struct {
	DSN string
}

type PgTxManager struct {
	poolMaster *pgxpool.Pool
}

func NewPgTxManager(poolMaster *pgxpool.Pool) *PgTxManager {
	return &PgTxManager{
		poolMaster: poolMaster,
	}
}

func (m *PgTxManager) Close() {
	m.poolMaster.Close()
}

// NewPool регистрирует shopspring decimal для NUMERIC на каждом соединении.
func NewPool(ctx context.Context, conf PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(conf.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

func (m *PgTxManager) RunMaster(ctx context.Context, fn func(ctxTx context.Context, tx Transaction) error) error {
	options := pgx.TxOptions{
		IsoLevel: pgx.ReadCommitted,
	}
	return m.inTx(ctx, m.poolMaster, options, fn)
}

func (m *PgTxManager) RunRepeatableRead(ctx context.Context, fn func(ctxTx context.Context, tx Transaction) error) error {
	options := pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	}
	return m.inTx(ctx, m.poolMaster, options, fn)
}

// Conn — пул без транзакции, для одиночных запросов.
func (m *PgTxManager) Conn() Transaction {
	return m.poolMaster
}

func (m *PgTxManager) inTx(
	ctx context.Context,
	pool *pgxpool.Pool,
	options pgx.TxOptions,
	f func(ctxTx context.Context, tx Transaction) error,
) (err error) {
	tx, err := pool.BeginTx(ctx, options)
	if err != nil {
		return fmt.Errorf("failed to begin tx, err: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic in tx: %v", p)
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = f(ctx, tx)
	if err != nil {
		return fmt.Errorf("failed to run fn, err: %w", err)
	}

	return nil
}
