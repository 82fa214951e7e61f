package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/pkg/distlock"
	"github.com/ignite/wa-outreach/internal/pkg/logger"
)

// Projector drains the inbox. Only the replica holding the lock projects
// on a given tick.
type Projector struct {
	store       Store
	lock        distlock.DistLock
	batch       int
	onProjected func(ctx context.Context, orgID string)
}

// ProjectorOption configures a Projector.
type ProjectorOption func(*Projector)

// OnProjected registers a hook called once per org after a tick projected
// at least one of its events. The worker uses it to drop cached summaries.
func OnProjected(fn func(ctx context.Context, orgID string)) ProjectorOption {
	return func(p *Projector) { p.onProjected = fn }
}

// NewProjector creates a projector reading up to batch rows per tick.
func NewProjector(store Store, lock distlock.DistLock, batch int, opts ...ProjectorOption) *Projector {
	if batch <= 0 {
		batch = 200
	}
	p := &Projector{store: store, lock: lock, batch: batch}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Tick projects one batch. It returns the number of events projected and
// zero without error when another replica holds the lock.
func (p *Projector) Tick(ctx context.Context) (int, error) {
	var n int
	_, err := distlock.WithLock(ctx, p.lock, func(ctx context.Context) error {
		var err error
		n, err = p.drain(ctx)
		return err
	})
	return n, err
}

func (p *Projector) drain(ctx context.Context) (int, error) {
	pending, err := p.store.Pending(ctx, p.batch)
	if err != nil {
		return 0, err
	}

	projected := 0
	orgs := make(map[string]struct{})
	for _, in := range pending {
		cb, err := ParseCallback(in.Raw)
		if err != nil {
			p.park(ctx, in.ID, err)
			continue
		}
		ev := domain.DeliveryEvent{RunID: cb.RunID, TargetID: cb.TargetID, Kind: cb.Kind, Meta: cb.Meta, OccurredAt: cb.OccurredAt()}
		err = p.store.Project(ctx, in.ID, in.OrgID, ev)
		if errors.Is(err, ErrUnknownTarget) {
			p.park(ctx, in.ID, err)
			continue
		}
		if err != nil {
			// Leave the row pending; the next tick retries it.
			return projected, err
		}
		projected++
		orgs[in.OrgID] = struct{}{}
	}

	if p.onProjected != nil {
		for org := range orgs {
			p.onProjected(ctx, org)
		}
	}
	return projected, nil
}

func (p *Projector) park(ctx context.Context, id int64, cause error) {
	logger.Warn("ingest: parking inbox row", "inbox_id", id, "error", cause)
	if err := p.store.MarkFailed(ctx, id, cause.Error()); err != nil {
		logger.Error("ingest: mark failed", "inbox_id", id, "error", err)
	}
}

// Run ticks every interval until ctx is cancelled. A full batch is
// followed immediately by another tick.
func (p *Projector) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := p.Tick(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("ingest: projector tick failed", "error", err)
		}
		if n > 0 {
			logger.Debug("ingest: projected events", "count", n)
		}
		if err == nil && n >= p.batch {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
