package app

import (
	"context"

	"competition-engine/internal/domain"
)

// ReconcileCompetition re-derives both visibility flags for every entry of a
// competition from first principles (round timing plus the participant's
// qualification history) and writes only the fields that differ.
//
// Qualification cascades can be bypassed by direct data edits, partial
// failures mid-pass, or entries created out of order; this is the one
// canonical repair path. It is idempotent and safe to run concurrently with
// itself: it is a pure function of existing state, so last-writer-wins.
func (s *CompetitionService) ReconcileCompetition(ctx context.Context, competitionID string) (domain.RepairReport, error) {
	report := domain.RepairReport{CompetitionID: competitionID}
	if !s.settings.Enabled {
		return report, nil
	}

	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return report, err
	}
	rounds := comp.SortedRounds()
	roundIdx := make(map[string]int, len(rounds))
	for i := range rounds {
		roundIdx[rounds[i].ID] = i
	}

	entries, err := s.store.ListEntriesByCompetition(ctx, competitionID)
	if err != nil {
		return report, err
	}

	// Group entries per participant, keyed by round position, so the
	// qualification chain can be walked in order.
	byParticipant := make(map[string]map[int]*domain.Entry)
	for i := range entries {
		idx, ok := roundIdx[entries[i].RoundID]
		if !ok {
			continue
		}
		perRound, exists := byParticipant[entries[i].ParticipantID]
		if !exists {
			perRound = make(map[int]*domain.Entry)
			byParticipant[entries[i].ParticipantID] = perRound
		}
		perRound[idx] = &entries[i]
	}

	now := s.now()
	for _, perRound := range byParticipant {
		for idx, entry := range perRound {
			round := &rounds[idx]
			if !round.Started(now) {
				// Flags on unstarted rounds are inert (no post can surface in
				// a feed yet); leave optimistic creations alone.
				continue
			}
			report.EntriesChecked++

			// A validly submitted post for a started round always stays in
			// the general feed; disqualification only affects the
			// competition-specific feed.
			wantNormal := true
			wantCompetition := competitionFeedAllowed(perRound, idx)

			if entry.VisibleInNormalFeed != wantNormal || entry.VisibleInCompetitionFeed != wantCompetition {
				if err := s.store.UpdateEntryVisibility(ctx, entry.ID, wantCompetition, wantNormal); err != nil {
					return report, err
				}
				report.EntriesUpdated++
			}
		}
	}
	return report, nil
}

// competitionFeedAllowed walks the participant's earlier entries in round
// order. The first round is always allowed; round k is allowed only if every
// earlier round's entry exists and is not confirmed disqualified. Pending
// rounds (qualification still null) default to visible: hiding happens only
// once disqualification is confirmed. A missing earlier entry means the
// participant cannot have legitimately advanced, so the entry is hidden.
func competitionFeedAllowed(perRound map[int]*domain.Entry, idx int) bool {
	for i := 0; i < idx; i++ {
		prev, ok := perRound[i]
		if !ok {
			return false
		}
		if prev.QualifiedForNextRound != nil && !*prev.QualifiedForNextRound {
			return false
		}
	}
	return true
}
