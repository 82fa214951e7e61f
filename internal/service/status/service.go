// Package status aggregates delivery telemetry into dashboard progress.
//
// The stored run status lags what the dispatcher is doing, so every
// summary carries a display status derived from its target counters and a
// label localized for the caller.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/wa-outreach/internal/domain"
	"github.com/ignite/wa-outreach/internal/labels"
	"github.com/ignite/wa-outreach/internal/pkg/logger"
)

// DefaultRecentLimit is the number of rows in a recent recipients view.
const DefaultRecentLimit = 10

const maxRecentLimit = 100

// Repository reads the aggregates. Implementations return raw statuses and
// counters; labels and display status are applied by the Service.
type Repository interface {
	// ActiveRuns returns one summary per scheduled, running or paused run.
	ActiveRuns(ctx context.Context, orgID string) ([]domain.RunSummary, error)

	// RecentRecipients returns up to limit rows: the most recent sent
	// events, then the oldest queued targets with a nil EventAt.
	RecentRecipients(ctx context.Context, orgID, runID string, limit int) ([]domain.RecipientRow, error)
}

// Service implements the StatusAggregator operations.
type Service struct {
	repo        Repository
	labels      *labels.Resolver
	cache       *redis.Client
	ttl         time.Duration
	recentLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithCache caches summaries in Redis for ttl. Cache failures fall back
// to direct reads.
func WithCache(client *redis.Client, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = client
		s.ttl = ttl
	}
}

// WithRecentLimit overrides DefaultRecentLimit.
func WithRecentLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.recentLimit = n
		}
	}
}

// NewService creates a status service.
func NewService(repo Repository, l *labels.Resolver, opts ...Option) *Service {
	s := &Service{repo: repo, labels: l, recentLimit: DefaultRecentLimit}
	for _, o := range opts {
		o(s)
	}
	return s
}

// cacheKey keys on the resolved catalog language so that equivalent
// locales share an entry. Unmatched locales all render raw codes.
func cacheKey(orgID, lang string) string {
	if lang == "" {
		lang = "raw"
	}
	return "wa-outreach:runs:active:" + orgID + ":" + lang
}

// Summarize returns the active runs of an org with display statuses and
// labels for locale, ordered by last event (most recent first, runs
// without events last) then name.
func (s *Service) Summarize(ctx context.Context, orgID, locale string) ([]domain.RunSummary, error) {
	lang := s.labels.Base(locale)
	if cached, ok := s.fromCache(ctx, orgID, lang); ok {
		return cached, nil
	}

	runs, err := s.repo.ActiveRuns(ctx, orgID)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		r := &runs[i]
		r.Status = r.RunCounters.DisplayStatus(r.RawStatus)
		r.StatusLabel = s.labels.Label(domain.DomainRun, string(r.Status), locale)
	}
	SortSummaries(runs)
	if runs == nil {
		runs = []domain.RunSummary{}
	}

	s.toCache(ctx, orgID, lang, runs)
	return runs, nil
}

// RecentRecipients returns the latest recipients of a run with labels for
// locale. limit <= 0 uses the configured default.
func (s *Service) RecentRecipients(ctx context.Context, orgID, runID string, limit int, locale string) ([]domain.RecipientRow, error) {
	if limit <= 0 {
		limit = s.recentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	rows, err := s.repo.RecentRecipients(ctx, orgID, runID, limit)
	if err != nil {
		return nil, err
	}
	SortRecipients(rows)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].StatusLabel = s.labels.Label(rows[i].StatusDomain, rows[i].StatusCode, locale)
	}
	if rows == nil {
		rows = []domain.RecipientRow{}
	}
	return rows, nil
}

// Invalidate drops cached summaries of an org for every locale.
func (s *Service) Invalidate(ctx context.Context, orgID string) {
	if s.cache == nil {
		return
	}
	iter := s.cache.Scan(ctx, 0, cacheKey(orgID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		s.cache.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		logger.Warn("status: cache invalidate failed", "org_id", orgID, "error", err)
	}
}

func (s *Service) fromCache(ctx context.Context, orgID, locale string) ([]domain.RunSummary, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return nil, false
	}
	data, err := s.cache.Get(ctx, cacheKey(orgID, locale)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("status: cache read failed", "org_id", orgID, "error", err)
		}
		return nil, false
	}
	var runs []domain.RunSummary
	if err := json.Unmarshal(data, &runs); err != nil {
		return nil, false
	}
	return runs, true
}

func (s *Service) toCache(ctx context.Context, orgID, locale string, runs []domain.RunSummary) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	data, err := json.Marshal(runs)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKey(orgID, locale), data, s.ttl).Err(); err != nil {
		logger.Warn("status: cache write failed", "org_id", orgID, "error", err)
	}
}

// SortSummaries orders by last event DESC NULLS LAST, then name.
func SortSummaries(runs []domain.RunSummary) {
	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i].LastEventAt, runs[j].LastEventAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return runs[i].Name < runs[j].Name
	})
}

// SortRecipients orders by event time DESC NULLS LAST. Filler rows keep
// their relative (oldest queued first) order.
func SortRecipients(rows []domain.RecipientRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].EventAt, rows[j].EventAt
		switch {
		case a != nil && b != nil:
			return a.After(*b)
		case a != nil:
			return true
		}
		return false
	})
}
