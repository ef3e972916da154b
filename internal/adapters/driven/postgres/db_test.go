package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolConfig_WithDefaults(t *testing.T) {
	cfg := PoolConfig{URL: "postgres://x"}.withDefaults()
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)

	capped := PoolConfig{MaxOpenConns: 3, MaxIdleConns: 8}.withDefaults()
	assert.Equal(t, 3, capped.MaxIdleConns, "idle connections are capped at the open limit")
}

func TestConnect_RejectsEmptyURL(t *testing.T) {
	_, err := Connect(context.Background(), PoolConfig{})
	assert.Error(t, err)
}

func TestInTx_Commits(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM product_cache").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := db.inTx(context.Background(), "clear cache", "s1", func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM product_cache")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackAndLabelsError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("constraint violated")
	err := db.inTx(context.Background(), "merge cache", "s1", func(tx *sql.Tx) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "merge cache for store s1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_JoinsRollbackFailure(t *testing.T) {
	db, mock := newMockDB(t)
	rbErr := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(rbErr)

	boom := errors.New("constraint violated")
	err := db.inTx(context.Background(), "replace cache", "s1", func(tx *sql.Tx) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, rbErr)
}

func TestInTx_BeginAndCommitFailures(t *testing.T) {
	db, mock := newMockDB(t)
	beginErr := errors.New("too many connections")
	mock.ExpectBegin().WillReturnError(beginErr)

	called := false
	err := db.inTx(context.Background(), "clear cache", "s1", func(tx *sql.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, beginErr)
	assert.Contains(t, err.Error(), "begin")
	assert.False(t, called)

	commitErr := errors.New("serialization failure")
	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(commitErr)

	err = db.inTx(context.Background(), "clear cache", "s1", func(tx *sql.Tx) error { return nil })
	assert.ErrorIs(t, err, commitErr)
	assert.Contains(t, err.Error(), "commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimePtr(t *testing.T) {
	assert.Nil(t, timePtr(sql.NullTime{}))

	ts := time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)
	got := timePtr(sql.NullTime{Time: ts, Valid: true})
	require.NotNil(t, got)
	assert.True(t, ts.Equal(*got))
}
