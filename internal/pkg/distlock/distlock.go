// Package distlock guards work that must run on a single replica at a
// time, such as the inbound event projector tick.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Extend when the lock expired or another
// holder took it.
var ErrNotHeld = errors.New("distlock: lock not held")

// DistLock is a non-blocking mutual exclusion primitive. Instances are
// not safe for concurrent use; create one per goroutine.
type DistLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// NewLock prefers Redis when a client is configured and falls back to a
// Postgres advisory lock otherwise.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// WithLock runs fn only when the lock is acquired. It reports whether fn
// ran. Release errors are ignored once fn has returned; the TTL or the
// dropped session frees the lock anyway.
func WithLock(ctx context.Context, l DistLock, fn func(context.Context) error) (bool, error) {
	ok, err := l.Acquire(ctx)
	if err != nil || !ok {
		return false, err
	}
	defer l.Release(context.WithoutCancel(ctx))
	return true, fn(ctx)
}

// PGAdvisoryLock uses pg_try_advisory_lock. The lock is session scoped, so
// it is released when the connection drops.
//
// database/sql may hand Release a different pooled connection than the one
// that acquired, so the lock pins a *sql.Conn between the two calls.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock derives a stable 64-bit lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	l.conn.Close()
	l.conn = nil
	return err
}
