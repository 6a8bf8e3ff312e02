package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal_engine/pkg/db"
)

type fakeTx struct {
	execs    []string
	affected int64
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if strings.HasPrefix(strings.TrimSpace(sql), "UPDATE") {
		return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(f.affected, 10)), nil
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

type fakeTxManager struct {
	tx      *fakeTx
	master  int
	outside int
}

func (m *fakeTxManager) RunMaster(ctx context.Context, fn func(ctxTx context.Context, tx db.Transaction) error) error {
	m.master++
	return fn(ctx, m.tx)
}

func (m *fakeTxManager) RunRepeatableRead(ctx context.Context, fn func(ctxTx context.Context, tx db.Transaction) error) error {
	return fn(ctx, m.tx)
}

func (m *fakeTxManager) Conn() db.Transaction {
	m.outside++
	return m.tx
}

func TestPostgresIncrementSignalCountInTx(t *testing.T) {
	ctx := context.Background()
	m := &fakeTxManager{tx: &fakeTx{affected: 1}}
	p, err := NewPostgres(ctx, m)
	require.NoError(t, err)
	schemaCalls := m.outside

	require.NoError(t, p.IncrementSignalCount(ctx, 7))
	assert.Equal(t, 1, m.master)
	assert.Equal(t, schemaCalls, m.outside)
	assert.Contains(t, m.tx.execs[len(m.tx.execs)-1], "signal_count = signal_count + 1")

	m.tx.affected = 0
	err = p.IncrementSignalCount(ctx, 8)
	assert.ErrorContains(t, err, "strategy 8 not found")
}

func TestNewPostgresNilManager(t *testing.T) {
	_, err := NewPostgres(context.Background(), nil)
	assert.Error(t, err)
}
