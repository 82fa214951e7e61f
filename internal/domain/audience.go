package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AudienceType tags the AudienceSpec union.
type AudienceType string

const (
	AudienceJoinedGroupRecent AudienceType = "joined_group_recent"
	AudienceAllContacts       AudienceType = "all_contacts"
)

// DefaultJoinWindowDays applies when joined_group_recent has no usable days.
const DefaultJoinWindowDays = 3

// MaxJoinWindowDays bounds the recency window to a hundred years.
const MaxJoinWindowDays = 36500

// GroupRefPlaceholder marks a preset whose group has not been chosen yet.
const GroupRefPlaceholder = "<WA_GROUP_ID>"

// AudienceSpec describes who a campaign targets.
type AudienceSpec struct {
	Type   AudienceType   `json:"type"`
	Params AudienceParams `json:"params"`
}

// AudienceParams holds the parameters of every audience type. Fields not
// used by a type are left zero.
type AudienceParams struct {
	// GroupRef is either the internal group id or the provider's group id.
	GroupRef string `json:"group_ref,omitempty"`
	Days     int    `json:"days,omitempty"`
}

// UnmarshalJSON accepts the legacy "group_id" key and days given as a
// number or a numeric string.
func (p *AudienceParams) UnmarshalJSON(data []byte) error {
	var raw struct {
		GroupRef json.RawMessage `json:"group_ref"`
		GroupID  json.RawMessage `json:"group_id"`
		Days     json.RawMessage `json:"days"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ref := raw.GroupRef
	if len(ref) == 0 || bytes.Equal(ref, []byte("null")) {
		ref = raw.GroupID
	}
	p.GroupRef = strings.TrimSpace(scalarString(ref))
	p.Days = 0
	if d := strings.TrimSpace(scalarString(raw.Days)); d != "" {
		if f, err := strconv.ParseFloat(d, 64); err == nil {
			p.Days = int(math.Max(math.Min(f, math.MaxInt32), math.MinInt32))
		}
	}
	return nil
}

// scalarString renders a JSON string or number as plain text.
func scalarString(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// WindowDays returns the recency window, defaulting non-positive values.
func (p AudienceParams) WindowDays() int {
	if p.Days <= 0 {
		return DefaultJoinWindowDays
	}
	return p.Days
}

// Validate rejects audience types the resolver cannot translate and
// recency windows out of range.
func (a AudienceSpec) Validate() error {
	switch a.Type {
	case AudienceJoinedGroupRecent:
		if a.Params.Days > MaxJoinWindowDays {
			return Invalid("invalid_days", strconv.Itoa(a.Params.Days))
		}
		return nil
	case AudienceAllContacts:
		return nil
	default:
		return &UnsupportedAudienceError{Type: string(a.Type)}
	}
}

// HasPlaceholderGroup reports whether the group reference still needs to be
// chosen by the operator.
func (a AudienceSpec) HasPlaceholderGroup() bool {
	return a.Type == AudienceJoinedGroupRecent && a.Params.GroupRef == GroupRefPlaceholder
}

// Segment is the normalized content of a campaign's stored segment field.
// Two historical shapes exist on disk:
//
//	{"audience": {"type": ..., "params": ...}, "throttle": {...}}
//	{"type": ..., "params": ..., "options": {...}}
//
// ParseSegment folds both into this struct.
type Segment struct {
	Audience AudienceSpec
	Throttle *ThrottlePatch
}

// ParseSegment normalizes a stored segment. Empty input yields an empty
// Segment whose audience fails validation later.
func ParseSegment(raw []byte) (Segment, error) {
	var seg Segment
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return seg, nil
	}

	var shape struct {
		Audience *AudienceSpec  `json:"audience"`
		Type     AudienceType   `json:"type"`
		Params   AudienceParams `json:"params"`
		Throttle *ThrottlePatch `json:"throttle"`
		Options  *ThrottlePatch `json:"options"`
	}
	if err := json.Unmarshal(trimmed, &shape); err != nil {
		return seg, fmt.Errorf("parse segment: %w", err)
	}

	if shape.Audience != nil {
		seg.Audience = *shape.Audience
	} else {
		seg.Audience = AudienceSpec{Type: shape.Type, Params: shape.Params}
	}
	seg.Audience.Type = AudienceType(strings.TrimSpace(string(seg.Audience.Type)))

	switch {
	case shape.Throttle != nil:
		seg.Throttle = shape.Throttle
	case shape.Options != nil:
		seg.Throttle = shape.Options
	}
	return seg, nil
}

// MarshalJSON always writes the nested shape.
func (s Segment) MarshalJSON() ([]byte, error) {
	out := struct {
		Audience AudienceSpec   `json:"audience"`
		Throttle *ThrottlePatch `json:"throttle,omitempty"`
	}{Audience: s.Audience, Throttle: s.Throttle}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either historical shape.
func (s *Segment) UnmarshalJSON(data []byte) error {
	seg, err := ParseSegment(data)
	if err != nil {
		return err
	}
	*s = seg
	return nil
}

// SegmentPreset is a ready-made audience offered to campaign authors.
type SegmentPreset struct {
	Key      string       `json:"key"`
	Label    string       `json:"label"`
	Audience AudienceSpec `json:"audience"`
	// GroupSubject is the display name of the resolved group, if any.
	GroupSubject string `json:"group_subject,omitempty"`
}
