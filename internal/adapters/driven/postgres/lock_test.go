package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashLockName_Stable(t *testing.T) {
	assert.Equal(t, hashLockName("sync-all-stores"), hashLockName("sync-all-stores"))
	assert.NotEqual(t, hashLockName("a"), hashLockName("b"))
}

func TestAdvisoryLock_AcquireRelease(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db)
	key := hashLockName("sync-all-stores")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_try_advisory_lock($1)")).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(key).
		WillReturnRows(sqlmock.NewRows([]string{"pg_advisory_unlock"}).AddRow(true))

	ctx := context.Background()
	acquired, err := lock.Acquire(ctx, "sync-all-stores", time.Hour)
	require.NoError(t, err)
	assert.True(t, acquired)

	// Held locally: no second round trip
	acquired, err = lock.Acquire(ctx, "sync-all-stores", time.Hour)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, lock.Release(ctx, "sync-all-stores"))
	// Releasing again is a no-op
	require.NoError(t, lock.Release(ctx, "sync-all-stores"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdvisoryLock_HeldElsewhere(t *testing.T) {
	db, mock := newMockDB(t)
	lock := NewAdvisoryLock(db)

	mock.ExpectQuery(regexp.QuoteMeta("pg_try_advisory_lock")).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	acquired, err := lock.Acquire(context.Background(), "sync-all-stores", time.Hour)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.NoError(t, mock.ExpectationsWereMet())
}
