package domain

import (
	"fmt"
	"time"
)

// ThrottleConfig is the rate and timing policy frozen into a run. The
// engine stores it verbatim; the external dispatcher enforces it.
type ThrottleConfig struct {
	TextDelay  [2]int     `json:"text_delay"`
	MediaDelay [2]int     `json:"media_delay"`
	PerMinute  int        `json:"per_minute"`
	QuietHours [2]string  `json:"quiet_hours"`
	DryRun     bool       `json:"dry_run"`
	Safeguards Safeguards `json:"safeguards"`
}

// Safeguards limits how often a recipient may be contacted.
type Safeguards struct {
	FrequencyCapHours int `json:"frequency_cap_hours"`
}

// DefaultThrottle returns the built-in policy used when neither the
// campaign nor the configuration provides one.
func DefaultThrottle() ThrottleConfig {
	return ThrottleConfig{
		TextDelay:  [2]int{0, 30},
		MediaDelay: [2]int{30, 60},
		PerMinute:  6,
		QuietHours: [2]string{"22:00", "08:00"},
		DryRun:     true,
		Safeguards: Safeguards{FrequencyCapHours: 72},
	}
}

// Validate checks the policy is internally consistent.
func (t ThrottleConfig) Validate() error {
	if t.TextDelay[0] < 0 || t.TextDelay[0] > t.TextDelay[1] {
		return Invalid("invalid_text_delay", fmt.Sprintf("%v", t.TextDelay))
	}
	if t.MediaDelay[0] < 0 || t.MediaDelay[0] > t.MediaDelay[1] {
		return Invalid("invalid_media_delay", fmt.Sprintf("%v", t.MediaDelay))
	}
	if t.PerMinute <= 0 {
		return Invalid("invalid_per_minute", fmt.Sprintf("%d", t.PerMinute))
	}
	for _, h := range t.QuietHours {
		if _, err := time.Parse("15:04", h); err != nil {
			return Invalid("invalid_quiet_hours", h)
		}
	}
	if t.Safeguards.FrequencyCapHours < 0 {
		return Invalid("invalid_frequency_cap", fmt.Sprintf("%d", t.Safeguards.FrequencyCapHours))
	}
	return nil
}

// ThrottlePatch is a partially specified ThrottleConfig as it appears in
// stored segments and request bodies. Nil fields inherit from a base.
type ThrottlePatch struct {
	TextDelay  *[2]int     `json:"text_delay,omitempty"`
	MediaDelay *[2]int     `json:"media_delay,omitempty"`
	PerMinute  *int        `json:"per_minute,omitempty"`
	QuietHours *[2]string  `json:"quiet_hours,omitempty"`
	DryRun     *bool       `json:"dry_run,omitempty"`
	Safeguards *Safeguards `json:"safeguards,omitempty"`
}

// Apply overlays the patch onto base. A nil patch returns base unchanged.
func (p *ThrottlePatch) Apply(base ThrottleConfig) ThrottleConfig {
	if p == nil {
		return base
	}
	out := base
	if p.TextDelay != nil {
		out.TextDelay = *p.TextDelay
	}
	if p.MediaDelay != nil {
		out.MediaDelay = *p.MediaDelay
	}
	if p.PerMinute != nil {
		out.PerMinute = *p.PerMinute
	}
	if p.QuietHours != nil {
		out.QuietHours = *p.QuietHours
	}
	if p.DryRun != nil {
		out.DryRun = *p.DryRun
	}
	if p.Safeguards != nil {
		out.Safeguards = *p.Safeguards
	}
	return out
}

// PatchFrom converts a full config back into a patch with every field set.
func PatchFrom(t ThrottleConfig) *ThrottlePatch {
	td, md, pm, qh, dr, sg := t.TextDelay, t.MediaDelay, t.PerMinute, t.QuietHours, t.DryRun, t.Safeguards
	return &ThrottlePatch{
		TextDelay:  &td,
		MediaDelay: &md,
		PerMinute:  &pm,
		QuietHours: &qh,
		DryRun:     &dr,
		Safeguards: &sg,
	}
}
