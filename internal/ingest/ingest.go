// Package ingest accepts delivery callbacks from the dispatcher and
// projects them into delivery events and target status.
//
// Callbacks are stored raw in an inbox keyed by the SHA-256 of the body, so
// a retried callback is acknowledged without being recorded twice. A single
// projector, guarded by a distributed lock, drains the inbox.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/ignite/wa-outreach/internal/domain"
)

// ErrUnknownTarget is returned by Store.Project when the callback names a
// target that does not exist in the run and org.
var ErrUnknownTarget = errors.New("ingest: unknown target")

// SourceDispatcher tags callbacks posted by the dispatch worker.
const SourceDispatcher = "dispatcher"

// Callback is the body the dispatcher posts for every delivery fact.
type Callback struct {
	OrgID    string           `json:"org_id"`
	RunID    string           `json:"run_id"`
	TargetID string           `json:"target_id"`
	Kind     domain.EventKind `json:"kind"`
	Meta     map[string]any   `json:"meta,omitempty"`
}

// Validate checks the callback names a target and a known kind.
func (c Callback) Validate() error {
	if strings.TrimSpace(c.RunID) == "" {
		return domain.Invalid("missing_run_id", "")
	}
	if strings.TrimSpace(c.TargetID) == "" {
		return domain.Invalid("missing_target_id", "")
	}
	if _, ok := c.Kind.TargetStatus(); !ok {
		return domain.Invalid("invalid_event_kind", string(c.Kind))
	}
	return nil
}

// ParseCallback decodes and validates a raw callback body.
func ParseCallback(body []byte) (Callback, error) {
	var cb Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return cb, domain.Invalid("invalid_json", err.Error())
	}
	cb.Kind = domain.EventKind(strings.ToLower(strings.TrimSpace(string(cb.Kind))))
	return cb, cb.Validate()
}

// OccurredAt returns meta.ts when it is an RFC 3339 timestamp.
func (c Callback) OccurredAt() *time.Time {
	s, ok := c.Meta["ts"].(string)
	if !ok {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}

// PayloadHash is the dedup key of a raw body.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Store persists the inbox and applies projections.
type Store interface {
	// Insert stores ev unless a row with the same payload hash exists.
	// It reports whether a row was written.
	Insert(ctx context.Context, ev *domain.InboundEvent) (bool, error)

	// Pending returns unprocessed inbox rows, oldest first.
	Pending(ctx context.Context, limit int) ([]domain.InboundEvent, error)

	// Project appends ev, advances its target's status if the event moves
	// it forward, and marks the inbox row processed, atomically.
	Project(ctx context.Context, inboxID int64, orgID string, ev domain.DeliveryEvent) error

	// MarkFailed parks an inbox row that can never be projected.
	MarkFailed(ctx context.Context, inboxID int64, reason string) error
}

// Receiver is the fast acknowledgement side of the inbox.
type Receiver struct {
	store Store
}

// NewReceiver creates a receiver writing to store.
func NewReceiver(store Store) *Receiver { return &Receiver{store: store} }

// Accept validates and stores a callback for orgID. The org in the body,
// when present, must match. It reports whether the body was new.
func (r *Receiver) Accept(ctx context.Context, orgID string, body []byte) (bool, error) {
	cb, err := ParseCallback(body)
	if err != nil {
		return false, err
	}
	switch {
	case orgID == "":
		orgID = cb.OrgID
	case cb.OrgID != "" && cb.OrgID != orgID:
		return false, domain.Invalid("org_mismatch", "")
	}
	if orgID == "" {
		return false, domain.Invalid("missing_org_id", "")
	}

	return r.store.Insert(ctx, &domain.InboundEvent{
		OrgID:       orgID,
		Source:      SourceDispatcher,
		EventType:   string(cb.Kind),
		PayloadHash: PayloadHash(body),
		Raw:         body,
	})
}
