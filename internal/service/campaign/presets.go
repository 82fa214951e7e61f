package campaign

import (
	"context"
	"errors"

	"github.com/ignite/wa-outreach/internal/domain"
)

// fallbackPresets is offered when neither the org nor the global catalog
// defines any preset.
func fallbackPresets() []domain.SegmentPreset {
	return []domain.SegmentPreset{{
		Key:   "joined_group_recent",
		Label: "Entraram no grupo recentemente",
		Audience: domain.AudienceSpec{
			Type:   domain.AudienceJoinedGroupRecent,
			Params: domain.AudienceParams{GroupRef: domain.GroupRefPlaceholder, Days: domain.DefaultJoinWindowDays},
		},
	}}
}

// Presets lists segment presets for the org. Presets whose group is still
// the placeholder get groupRef substituted in, or the org's most recent
// group when groupRef is empty. Placeholders stay when no group exists.
func (s *Service) Presets(ctx context.Context, orgID, groupRef string) ([]domain.SegmentPreset, error) {
	var presets []domain.SegmentPreset
	if s.presets != nil {
		list, err := s.presets.ListPresets(ctx, orgID)
		if err != nil {
			return nil, persistence("list presets", err)
		}
		presets = list
	}
	if len(presets) == 0 {
		presets = fallbackPresets()
	}

	var (
		group  *GroupRef
		looked bool
	)
	for i := range presets {
		if !presets[i].Audience.HasPlaceholderGroup() || s.presets == nil {
			continue
		}
		if !looked {
			looked = true
			g, err := s.presets.FindGroup(ctx, orgID, groupRef)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, persistence("find group", err)
			}
			group = g
		}
		if group == nil {
			continue
		}
		ref := group.WAGroupID
		if ref == "" {
			ref = group.ID
		}
		presets[i].Audience.Params.GroupRef = ref
		presets[i].GroupSubject = group.Subject
	}
	return presets, nil
}
