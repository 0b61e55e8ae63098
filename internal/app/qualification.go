package app

import (
	"context"

	"competition-engine/internal/domain"
)

// ProcessRound evaluates every submitted entry of a closed round against the
// round's likes threshold, advances qualifiers into the next round, and hides
// a failed participant's future-round entries from the competition feed.
//
// The call is idempotent: re-running it re-derives the same outcomes, and the
// create-if-absent next-round insert cannot duplicate entries. The counting
// phase completes fully before any write; an engagement failure aborts the
// whole pass with nothing applied.
func (s *CompetitionService) ProcessRound(ctx context.Context, roundID string) (domain.ProcessingResult, error) {
	result := domain.ProcessingResult{RoundID: roundID}
	if !s.settings.Enabled {
		result.Skipped = true
		result.SkipReason = "engine disabled"
		return result, nil
	}

	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return result, err
	}
	comp, err := s.store.GetCompetition(ctx, round.CompetitionID)
	if err != nil {
		return result, err
	}
	if comp.Terminated() {
		// Terminated competitions are immutable; report success so callers
		// stay idempotent-friendly.
		result.Skipped = true
		result.SkipReason = "competition already terminated"
		return result, nil
	}

	now := s.now()
	if !round.Closed(now) {
		return result, domain.ErrRoundNotClosed
	}

	entries, err := s.store.ListEntriesByRound(ctx, roundID)
	if err != nil {
		return result, err
	}
	submitted := submittedOnly(entries)
	if len(submitted) == 0 {
		result.NoSubmissions = true
		return result, nil
	}

	counts, err := s.countInWindow(ctx, round, submitted)
	if err != nil {
		return result, err
	}

	next := comp.RoundAfter(roundID)
	threshold := round.Threshold()

	for i := range submitted {
		entry := &submitted[i]
		qualified := counts[i] >= threshold

		if err := s.store.UpdateEntryQualification(ctx, entry.ID, qualified); err != nil {
			return result, err
		}
		// The entry was a valid submission for its own round: it stays visible
		// in both feeds regardless of the outcome.
		if !entry.VisibleInCompetitionFeed || !entry.VisibleInNormalFeed {
			if err := s.store.UpdateEntryVisibility(ctx, entry.ID, true, true); err != nil {
				return result, err
			}
		}

		if next != nil {
			if qualified {
				if err := s.store.AdvanceParticipant(ctx, entry.ParticipantID, newEntry(entry.ParticipantID, next.ID, now)); err != nil {
					return result, err
				}
			} else if err := s.hideFutureEntries(ctx, comp, entry.ParticipantID, roundID); err != nil {
				return result, err
			}
		}

		if qualified {
			result.QualifiedCount++
		} else {
			result.DisqualifiedCount++
		}
		result.Entries = append(result.Entries, domain.EntryResult{
			EntryID:       entry.ID,
			ParticipantID: entry.ParticipantID,
			Likes:         counts[i],
			Qualified:     qualified,
		})
	}
	return result, nil
}

// hideFutureEntries removes a disqualified participant's entries in rounds
// strictly after the given one from the competition feed. Such entries exist
// when bulk operations pre-created them before the disqualification was
// known. Normal-feed visibility is left untouched.
func (s *CompetitionService) hideFutureEntries(ctx context.Context, comp *domain.Competition, participantID, roundID string) error {
	currentIdx := comp.RoundIndex(roundID)
	if currentIdx < 0 {
		return domain.ErrRoundNotFound
	}
	entries, err := s.store.ListEntriesByParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		idx := comp.RoundIndex(e.RoundID)
		if idx <= currentIdx {
			continue
		}
		if e.VisibleInCompetitionFeed {
			if err := s.store.UpdateEntryVisibility(ctx, e.ID, false, e.VisibleInNormalFeed); err != nil {
				return err
			}
		}
	}
	return nil
}
