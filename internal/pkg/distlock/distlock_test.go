package distlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_Exclusive(t *testing.T) {
	ctx := context.Background()
	_, client := setupRedis(t)

	a := NewRedisLock(client, "projector", time.Minute)
	b := NewRedisLock(client, "projector", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// b does not own the key, so its release is a no-op.
	require.NoError(t, b.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExpiresAndExtend(t *testing.T) {
	ctx := context.Background()
	mr, client := setupRedis(t)

	l := NewRedisLock(client, "projector", time.Second)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, 10*time.Second))
	mr.FastForward(5 * time.Second)
	assert.True(t, mr.Exists("wa-outreach:lock:projector"))

	mr.FastForward(10 * time.Second)
	assert.ErrorIs(t, l.Extend(ctx, time.Second), ErrNotHeld)
}

func TestWithLock(t *testing.T) {
	ctx := context.Background()
	_, client := setupRedis(t)

	holder := NewRedisLock(client, "tick", time.Minute)
	ran, err := WithLock(ctx, NewRedisLock(client, "tick", time.Minute), func(context.Context) error {
		ok, _ := holder.Acquire(ctx)
		assert.False(t, ok, "lock must be held while fn runs")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	ok, _ := holder.Acquire(ctx)
	assert.True(t, ok, "lock must be released after fn")

	ran, err = WithLock(ctx, NewRedisLock(client, "tick", time.Minute), func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestWithLock_PropagatesError(t *testing.T) {
	_, client := setupRedis(t)
	boom := errors.New("boom")
	ran, err := WithLock(context.Background(), NewRedisLock(client, "tick", time.Minute), func(context.Context) error {
		return boom
	})
	assert.True(t, ran)
	assert.ErrorIs(t, err, boom)
}

func TestPGAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewPGAdvisoryLock(db, "projector")
	mock.ExpectQuery(`SELECT pg_try_advisory_lock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec(`SELECT pg_advisory_unlock\(\$1\)`).
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGAdvisoryLock_Contended(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT pg_try_advisory_lock`).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	l := NewPGAdvisoryLock(db, "projector")
	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, l.Release(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewLock_Backend(t *testing.T) {
	_, client := setupRedis(t)
	assert.IsType(t, &RedisLock{}, NewLock(client, nil, "k", time.Second))
	assert.IsType(t, &PGAdvisoryLock{}, NewLock(nil, nil, "k", time.Second))
}
