package app

import (
	"context"
	"fmt"

	"competition-engine/internal/domain"
)

// EvaluateTermination decides whether a competition should end early: nobody
// joined, nobody submitted, nobody met a round's bar, or nobody qualified out
// of a processed round. Checks run in round order and the first match wins.
//
// The evaluation is a no-op once a completion reason is recorded, so it is
// safe to invoke opportunistically on read paths and from scheduled sweeps.
func (s *CompetitionService) EvaluateTermination(ctx context.Context, competitionID string) (domain.TerminationDecision, error) {
	decision := domain.TerminationDecision{CompetitionID: competitionID}
	if !s.settings.Enabled {
		return decision, nil
	}

	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return decision, err
	}
	if comp.Terminated() {
		return decision, nil
	}

	now := s.now()
	rounds := comp.SortedRounds()
	if len(rounds) == 0 || !rounds[0].Closed(now) {
		return decision, nil
	}

	count, err := s.store.CountParticipants(ctx, competitionID)
	if err != nil {
		return decision, err
	}
	if count < 1 {
		return s.terminate(ctx, &decision, "No one joined this competition, that's why it ended.")
	}

	for i := range rounds {
		round := &rounds[i]
		if !round.Closed(now) {
			break
		}

		entries, err := s.store.ListEntriesByRound(ctx, round.ID)
		if err != nil {
			return decision, err
		}
		submitted := submittedOnly(entries)

		if len(submitted) == 0 {
			reason := "No participants submitted posts for the competition. No winner declared."
			if i > 0 {
				reason = fmt.Sprintf("No participants submitted posts for %s. No winner declared.", round.Name)
			}
			return s.terminate(ctx, &decision, reason)
		}

		if round.Threshold() > 0 {
			counts, err := s.countInWindow(ctx, round, submitted)
			if err != nil {
				return decision, err
			}
			anyMet := false
			for _, n := range counts {
				if n >= round.Threshold() {
					anyMet = true
					break
				}
			}
			if !anyMet {
				return s.terminate(ctx, &decision, fmt.Sprintf(
					"%s required %d likes but no participant achieved this target, so the competition has been ended.",
					round.Name, round.Threshold()))
			}
		}

		if i < len(rounds)-1 && fullyProcessed(submitted) && !anyQualified(submitted) {
			return s.terminate(ctx, &decision, fmt.Sprintf(
				"No participants qualified from %s. No winner declared.", round.Name))
		}
	}
	return decision, nil
}

// terminate records the reason, deactivates the competition, and surfaces all
// submitted content in the general feed regardless of round state.
func (s *CompetitionService) terminate(ctx context.Context, decision *domain.TerminationDecision, reason string) (domain.TerminationDecision, error) {
	if err := s.store.TerminateCompetition(ctx, decision.CompetitionID, reason); err != nil {
		return *decision, err
	}
	if err := s.store.ForceNormalFeedVisibility(ctx, decision.CompetitionID); err != nil {
		return *decision, err
	}
	decision.Terminated = true
	decision.Reason = reason
	return *decision, nil
}

// fullyProcessed reports whether qualification ran over every submitted entry.
func fullyProcessed(entries []domain.Entry) bool {
	for i := range entries {
		if entries[i].QualifiedForNextRound == nil {
			return false
		}
	}
	return true
}

func anyQualified(entries []domain.Entry) bool {
	for i := range entries {
		if q := entries[i].QualifiedForNextRound; q != nil && *q {
			return true
		}
	}
	return false
}
