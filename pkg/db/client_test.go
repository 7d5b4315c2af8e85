package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/partsdepot/cart-service/pkg/config"
	"github.com/partsdepot/cart-service/pkg/logger"
)

type widget struct {
	ID   int
	Name string
}

func newSQLiteClient(t *testing.T) *Client {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&widget{}))
	return NewFromGorm(conn)
}

func countWidgets(t *testing.T, c *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, c.DB().Model(&widget{}).Count(&n).Error)
	return n
}

func TestWithTxCommits(t *testing.T) {
	client := newSQLiteClient(t)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&widget{Name: "brake pad"}).Error
	})

	require.NoError(t, err)
	assert.EqualValues(t, 1, countWidgets(t, client))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	client := newSQLiteClient(t)
	boom := errors.New("boom")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&widget{Name: "rotor"}).Error)
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.EqualValues(t, 0, countWidgets(t, client))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := newSQLiteClient(t)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&widget{Name: "caliper"}).Error)
			panic("kaboom")
		})
	})
	assert.EqualValues(t, 0, countWidgets(t, client))
}

func TestPing(t *testing.T) {
	client := newSQLiteClient(t)
	require.NoError(t, client.Ping(context.Background()))
}

func TestSupportsRowLocks(t *testing.T) {
	client := newSQLiteClient(t)
	assert.False(t, SupportsRowLocks(client.DB()))
	assert.False(t, SupportsRowLocks(nil))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	require.ErrorContains(t, err, "DSN is required")

	_, err = New(context.Background(), config.DBConfig{DSN: "file::memory:", Driver: "mysql"}, nil)
	require.ErrorContains(t, err, "unsupported database driver")
}

func TestQueryLoggerReportsSlowAndFailedStatements(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Format: "json", Output: &buf})
	ql := newQueryLogger(logg, 10*time.Millisecond)
	ctx := context.Background()
	sql := func() (string, int64) { return "SELECT 1", 1 }

	ql.Trace(ctx, time.Now(), sql, nil)
	assert.Empty(t, buf.String())

	ql.Trace(ctx, time.Now(), sql, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	ql.Trace(ctx, time.Now().Add(-time.Second), sql, nil)
	assert.Contains(t, buf.String(), "slow query")
	assert.Contains(t, buf.String(), `"sql":"SELECT 1"`)

	buf.Reset()
	ql.Trace(ctx, time.Now(), sql, errors.New("relation missing"))
	assert.Contains(t, buf.String(), "query failed")
	assert.Contains(t, buf.String(), "relation missing")
}

func TestQueryLoggerSilentWithoutLogger(t *testing.T) {
	ql := newQueryLogger(nil, time.Millisecond)
	assert.NotPanics(t, func() {
		ql.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT 1", 0 }, errors.New("x"))
	})
}
