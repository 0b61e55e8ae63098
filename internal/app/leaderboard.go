package app

import (
	"context"
	"sort"
	"strconv"

	"competition-engine/internal/domain"
)

const defaultPageSize = 20

// BuildLeaderboard ranks a round's submitted entries by in-window like count,
// descending, excluding globally disqualified participants. Ties break by
// entry id so repeated calls on unchanged data return identical orders.
//
// The cursor is an offset token. Rank numbers are only assigned on the first
// page: a rank computed page-by-page would be fabricated, so later pages
// leave it at zero instead.
func (s *CompetitionService) BuildLeaderboard(ctx context.Context, roundID, cursor string, pageSize int) (domain.LeaderboardPage, error) {
	page := domain.LeaderboardPage{RoundID: roundID, Entries: []domain.RankedEntry{}}

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return page, domain.ErrInvalidCursor
		}
		offset = n
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	ranked, err := s.rankRound(ctx, roundID)
	if err != nil {
		return page, err
	}

	if offset >= len(ranked) {
		return page, nil
	}
	end := offset + pageSize
	if end > len(ranked) {
		end = len(ranked)
	}
	page.Entries = ranked[offset:end]
	if offset == 0 {
		for i := range page.Entries {
			page.Entries[i].Rank = i + 1
		}
	}
	if end < len(ranked) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}

// ResolveWinners returns the top three of the final round, only once the
// whole competition has ended. A final round without submitted entries yields
// an empty winners list, not an error.
func (s *CompetitionService) ResolveWinners(ctx context.Context, competitionID string) (domain.WinnersResult, error) {
	result := domain.WinnersResult{CompetitionID: competitionID, Winners: []domain.RankedEntry{}}

	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return result, err
	}
	if !comp.Terminated() && !comp.Ended(s.now()) {
		return result, domain.ErrCompetitionNotEnded
	}

	final := comp.FinalRound()
	if final == nil {
		result.Decided = true
		return result, nil
	}
	result.RoundID = final.ID

	ranked, err := s.rankRound(ctx, final.ID)
	if err != nil {
		return result, err
	}
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	result.Decided = true
	result.Winners = ranked
	return result, nil
}

// rankRound produces the full ordered board for one round.
func (s *CompetitionService) rankRound(ctx context.Context, roundID string) ([]domain.RankedEntry, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}

	participants, err := s.store.ListParticipants(ctx, round.CompetitionID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*domain.Participant, len(participants))
	for i := range participants {
		byID[participants[i].ID] = &participants[i]
	}

	entries, err := s.store.ListEntriesByRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	eligible := make([]domain.Entry, 0, len(entries))
	for _, e := range submittedOnly(entries) {
		p, ok := byID[e.ParticipantID]
		if !ok || p.IsDisqualified {
			continue
		}
		eligible = append(eligible, e)
	}

	counts, err := s.countInWindow(ctx, round, eligible)
	if err != nil {
		return nil, err
	}

	ranked := make([]domain.RankedEntry, len(eligible))
	for i := range eligible {
		ranked[i] = domain.RankedEntry{
			EntryID:       eligible[i].ID,
			ParticipantID: eligible[i].ParticipantID,
			UserID:        byID[eligible[i].ParticipantID].UserID,
			PostID:        *eligible[i].PostID,
			Likes:         counts[i],
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Likes != ranked[j].Likes {
			return ranked[i].Likes > ranked[j].Likes
		}
		return ranked[i].EntryID < ranked[j].EntryID
	})
	return ranked, nil
}
