package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"competition-engine/internal/domain"
)

// Store is an in-memory implementation of app.Store, used by unit tests and
// as the fallback when no Postgres URL is configured. All maps are guarded by
// one mutex; the atomic units (CreateEntryIfAbsent, AdvanceParticipant) hold
// it across their whole critical section.
type Store struct {
	mu           sync.RWMutex
	competitions map[string]*domain.Competition
	rounds       map[string]*domain.Round
	participants map[string]*domain.Participant
	entries      map[string]*domain.Entry
	// entryKeys enforces the unique (participant, round) pair.
	entryKeys map[entryKey]string
}

type entryKey struct {
	participantID string
	roundID       string
}

func NewStore() *Store {
	return &Store{
		competitions: make(map[string]*domain.Competition),
		rounds:       make(map[string]*domain.Round),
		participants: make(map[string]*domain.Participant),
		entries:      make(map[string]*domain.Entry),
		entryKeys:    make(map[entryKey]string),
	}
}

// SeedCompetition installs a competition and its rounds (tests and demos).
func (s *Store) SeedCompetition(comp domain.Competition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range comp.Rounds {
		round := comp.Rounds[i]
		round.CompetitionID = comp.ID
		s.rounds[round.ID] = &round
	}
	s.competitions[comp.ID] = &comp
}

func (s *Store) GetCompetition(_ context.Context, id string) (*domain.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comp, ok := s.competitions[id]
	if !ok {
		return nil, domain.ErrCompetitionNotFound
	}
	return s.copyCompetitionLocked(comp), nil
}

func (s *Store) ListActiveCompetitions(_ context.Context) ([]domain.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Competition
	for _, comp := range s.competitions {
		if comp.IsActive && comp.CompletionReason == nil {
			out = append(out, *s.copyCompetitionLocked(comp))
		}
	}
	return out, nil
}

func (s *Store) copyCompetitionLocked(comp *domain.Competition) *domain.Competition {
	cp := *comp
	cp.Rounds = nil
	for _, round := range s.rounds {
		if round.CompetitionID == comp.ID {
			cp.Rounds = append(cp.Rounds, *round)
		}
	}
	return &cp
}

func (s *Store) GetRound(_ context.Context, id string) (*domain.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	round, ok := s.rounds[id]
	if !ok {
		return nil, domain.ErrRoundNotFound
	}
	cp := *round
	return &cp, nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) FindParticipant(_ context.Context, competitionID, userID string) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participants {
		if p.CompetitionID == competitionID && p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrParticipantNotFound
}

func (s *Store) CountParticipants(_ context.Context, competitionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.participants {
		if p.CompetitionID == competitionID {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListParticipants(_ context.Context, competitionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Participant
	for _, p := range s.participants {
		if p.CompetitionID == competitionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *Store) CreateParticipant(_ context.Context, p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Mirrors the SQL schema's UNIQUE (competition_id, user_id).
	for _, existing := range s.participants {
		if existing.CompetitionID == p.CompetitionID && existing.UserID == p.UserID {
			return fmt.Errorf("participant %s already registered in %s", p.UserID, p.CompetitionID)
		}
	}
	cp := *p
	s.participants[p.ID] = &cp
	return nil
}

// DisqualifyParticipant flips the administrative flag (tests and admin tools).
func (s *Store) DisqualifyParticipant(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[id]; ok {
		p.IsDisqualified = true
	}
}

func (s *Store) GetEntry(_ context.Context, participantID, roundID string) (*domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.entryKeys[entryKey{participantID, roundID}]
	if !ok {
		return nil, domain.ErrEntryNotFound
	}
	cp := *s.entries[id]
	return &cp, nil
}

func (s *Store) ListEntriesByRound(_ context.Context, roundID string) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Entry
	for _, e := range s.entries {
		if e.RoundID == roundID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *Store) ListEntriesByParticipant(_ context.Context, participantID string) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Entry
	for _, e := range s.entries {
		if e.ParticipantID == participantID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *Store) ListEntriesByCompetition(_ context.Context, competitionID string) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Entry
	for _, e := range s.entries {
		if round, ok := s.rounds[e.RoundID]; ok && round.CompetitionID == competitionID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *Store) CreateEntryIfAbsent(_ context.Context, e *domain.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createEntryLocked(e)
}

func (s *Store) createEntryLocked(e *domain.Entry) (bool, error) {
	key := entryKey{e.ParticipantID, e.RoundID}
	if _, exists := s.entryKeys[key]; exists {
		return false, nil
	}
	if _, exists := s.entries[e.ID]; exists {
		return false, domain.ErrDuplicateEntry
	}
	cp := *e
	s.entries[e.ID] = &cp
	s.entryKeys[key] = e.ID
	return true, nil
}

func (s *Store) SetEntryPost(_ context.Context, entryID, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return domain.ErrEntryNotFound
	}
	e.PostID = &postID
	e.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateEntryQualification(_ context.Context, entryID string, qualified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return domain.ErrEntryNotFound
	}
	e.QualifiedForNextRound = &qualified
	e.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateEntryVisibility(_ context.Context, entryID string, competitionFeed, normalFeed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return domain.ErrEntryNotFound
	}
	e.VisibleInCompetitionFeed = competitionFeed
	e.VisibleInNormalFeed = normalFeed
	e.UpdatedAt = time.Now()
	return nil
}

func (s *Store) AdvanceParticipant(_ context.Context, participantID string, next *domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if _, err := s.createEntryLocked(next); err != nil {
		return err
	}
	// The pointer tracks the furthest round reached: reprocessing an earlier
	// round must not pull it back.
	if s.roundBeforeLocked(p.CurrentRoundID, next.RoundID) {
		p.CurrentRoundID = next.RoundID
	}
	return nil
}

// roundBeforeLocked reports whether cur precedes next in start-date order. An
// empty or unknown current round always allows the move.
func (s *Store) roundBeforeLocked(cur, next string) bool {
	curRound, ok := s.rounds[cur]
	if !ok {
		return true
	}
	nextRound, ok := s.rounds[next]
	if !ok {
		return false
	}
	return curRound.StartDate.Before(nextRound.StartDate)
}

func (s *Store) TerminateCompetition(_ context.Context, competitionID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	comp, ok := s.competitions[competitionID]
	if !ok {
		return domain.ErrCompetitionNotFound
	}
	if comp.CompletionReason != nil {
		return nil
	}
	comp.CompletionReason = &reason
	comp.IsActive = false
	return nil
}

func (s *Store) ForceNormalFeedVisibility(_ context.Context, competitionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		round, ok := s.rounds[e.RoundID]
		if !ok || round.CompetitionID != competitionID {
			continue
		}
		if e.PostID != nil && !e.VisibleInNormalFeed {
			e.VisibleInNormalFeed = true
			e.UpdatedAt = time.Now()
		}
	}
	return nil
}
