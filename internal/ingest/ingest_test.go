package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/pkg/distlock"
)

type memStore struct {
	mu        sync.Mutex
	rows      []domain.InboundEvent
	hashes    map[string]bool
	processed map[int64]bool
	failed    map[int64]string
	events    []domain.DeliveryEvent
	targets   map[string]domain.TargetStatus
	projErr   error
}

func newMemStore() *memStore {
	return &memStore{
		hashes:    map[string]bool{},
		processed: map[int64]bool{},
		failed:    map[int64]string{},
		targets:   map[string]domain.TargetStatus{"t1": domain.TargetQueued},
	}
}

func (m *memStore) Insert(_ context.Context, ev *domain.InboundEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes[ev.PayloadHash] {
		return false, nil
	}
	m.hashes[ev.PayloadHash] = true
	ev.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, *ev)
	return true, nil
}

func (m *memStore) Pending(_ context.Context, limit int) ([]domain.InboundEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.InboundEvent
	for _, r := range m.rows {
		if m.processed[r.ID] || m.failed[r.ID] != "" {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Project(_ context.Context, id int64, _ string, ev domain.DeliveryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.projErr != nil {
		return m.projErr
	}
	cur, ok := m.targets[ev.TargetID]
	if !ok {
		return ErrUnknownTarget
	}
	m.events = append(m.events, ev)
	if next, _ := ev.Kind.TargetStatus(); cur.Advances(next) {
		m.targets[ev.TargetID] = next
	}
	m.processed[id] = true
	return nil
}

func (m *memStore) MarkFailed(_ context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = reason
	return nil
}

func newLock(t *testing.T) (*redis.Client, distlock.DistLock) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, distlock.NewRedisLock(client, "projector", time.Minute)
}

func TestParseCallback(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"run_id":"r1","target_id":"t1","kind":" SENT ","meta":{"ts":"2026-03-01T12:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.EventSent, cb.Kind)
	assert.Equal(t, "2026-03-01T12:00:00Z", cb.Meta["ts"])

	_, err = ParseCallback([]byte(`{"run_id":"r1","target_id":"t1","kind":"reacted"}`))
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "invalid_event_kind", ve.Code)

	_, err = ParseCallback([]byte(`{"target_id":"t1","kind":"sent"}`))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "missing_run_id", ve.Code)

	_, err = ParseCallback([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCallbackOccurredAt(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"run_id":"r1","target_id":"t1","kind":"sent","meta":{"ts":"2026-03-01T09:00:00-03:00"}}`))
	require.NoError(t, err)
	require.NotNil(t, cb.OccurredAt())
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), *cb.OccurredAt())

	for _, meta := range []string{`{"ts":"2024-13-40"}`, `{"ts":"2024-13-40T00:00:00Z"}`, `{"ts":1709294400}`, `{}`} {
		cb, err := ParseCallback([]byte(`{"run_id":"r1","target_id":"t1","kind":"sent","meta":` + meta + `}`))
		require.NoError(t, err)
		assert.Nil(t, cb.OccurredAt(), meta)
	}
}

func TestReceiver_DedupsByBody(t *testing.T) {
	store := newMemStore()
	r := NewReceiver(store)
	body := []byte(`{"run_id":"r1","target_id":"t1","kind":"sent"}`)

	fresh, err := r.Accept(context.Background(), "org-1", body)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = r.Accept(context.Background(), "org-1", body)
	require.NoError(t, err)
	assert.False(t, fresh)
	require.Len(t, store.rows, 1)
	assert.Equal(t, PayloadHash(body), store.rows[0].PayloadHash)
	assert.Equal(t, "sent", store.rows[0].EventType)
}

func TestReceiver_OrgChecks(t *testing.T) {
	r := NewReceiver(newMemStore())
	ctx := context.Background()

	_, err := r.Accept(ctx, "org-1", []byte(`{"org_id":"org-2","run_id":"r1","target_id":"t1","kind":"sent"}`))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = r.Accept(ctx, "", []byte(`{"run_id":"r1","target_id":"t1","kind":"sent"}`))
	assert.ErrorIs(t, err, domain.ErrValidation)

	fresh, err := r.Accept(ctx, "", []byte(`{"org_id":"org-2","run_id":"r1","target_id":"t1","kind":"sent"}`))
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestProjector_AdvancesMonotonically(t *testing.T) {
	store := newMemStore()
	_, lock := newLock(t)
	r := NewReceiver(store)
	ctx := context.Background()

	for _, body := range []string{
		`{"run_id":"r1","target_id":"t1","kind":"sending"}`,
		`{"run_id":"r1","target_id":"t1","kind":"read"}`,
		`{"run_id":"r1","target_id":"t1","kind":"delivered"}`,
		`{"run_id":"r1","target_id":"t1","kind":"failed"}`,
	} {
		_, err := r.Accept(ctx, "org-1", []byte(body))
		require.NoError(t, err)
	}

	var invalidated []string
	p := NewProjector(store, lock, 10, OnProjected(func(_ context.Context, org string) {
		invalidated = append(invalidated, org)
	}))
	n, err := p.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Every fact is recorded, but status never moves backwards.
	assert.Len(t, store.events, 4)
	assert.Equal(t, domain.TargetRead, store.targets["t1"])
	assert.Equal(t, []string{"org-1"}, invalidated)

	n, err = p.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProjector_ParksUnknownTargets(t *testing.T) {
	store := newMemStore()
	_, lock := newLock(t)
	ctx := context.Background()
	_, err := NewReceiver(store).Accept(ctx, "org-1", []byte(`{"run_id":"r1","target_id":"ghost","kind":"sent"}`))
	require.NoError(t, err)

	n, err := NewProjector(store, lock, 10).Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, store.failed[1], "unknown target")
}

func TestProjector_StoreErrorLeavesRowPending(t *testing.T) {
	store := newMemStore()
	_, lock := newLock(t)
	ctx := context.Background()
	_, err := NewReceiver(store).Accept(ctx, "org-1", []byte(`{"run_id":"r1","target_id":"t1","kind":"sent"}`))
	require.NoError(t, err)

	store.projErr = errors.New("deadlock detected")
	_, err = NewProjector(store, lock, 10).Tick(ctx)
	require.Error(t, err)

	pending, _ := store.Pending(ctx, 10)
	assert.Len(t, pending, 1)
}

func TestProjector_SkipsWhenLockHeld(t *testing.T) {
	store := newMemStore()
	client, lock := newLock(t)
	ctx := context.Background()
	_, err := NewReceiver(store).Accept(ctx, "org-1", []byte(`{"run_id":"r1","target_id":"t1","kind":"sent"}`))
	require.NoError(t, err)

	other := distlock.NewRedisLock(client, "projector", time.Minute)
	ok, err := other.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := NewProjector(store, lock, 10).Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.events)
}

func TestProjector_RunStopsOnCancel(t *testing.T) {
	store := newMemStore()
	_, lock := newLock(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := NewReceiver(store).Accept(ctx, "org-1", []byte(`{"run_id":"r1","target_id":"t1","kind":"sent"}`))
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		NewProjector(store, lock, 10).Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.events) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("projector did not stop")
	}
}
