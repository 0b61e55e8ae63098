package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"competition-engine/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store abstracts how competitions, rounds, participants and entries are
// persisted (in-memory, Postgres, etc). All state-machine correctness rests on
// two of its guarantees: the unique (participant, round) constraint honored by
// CreateEntryIfAbsent, and the atomicity of AdvanceParticipant.
type Store interface {
	GetCompetition(ctx context.Context, id string) (*domain.Competition, error)
	ListActiveCompetitions(ctx context.Context) ([]domain.Competition, error)
	GetRound(ctx context.Context, id string) (*domain.Round, error)

	GetParticipant(ctx context.Context, id string) (*domain.Participant, error)
	FindParticipant(ctx context.Context, competitionID, userID string) (*domain.Participant, error)
	CountParticipants(ctx context.Context, competitionID string) (int, error)
	ListParticipants(ctx context.Context, competitionID string) ([]domain.Participant, error)
	CreateParticipant(ctx context.Context, p *domain.Participant) error

	GetEntry(ctx context.Context, participantID, roundID string) (*domain.Entry, error)
	ListEntriesByRound(ctx context.Context, roundID string) ([]domain.Entry, error)
	ListEntriesByParticipant(ctx context.Context, participantID string) ([]domain.Entry, error)
	ListEntriesByCompetition(ctx context.Context, competitionID string) ([]domain.Entry, error)

	// CreateEntryIfAbsent inserts the entry unless one already exists for the
	// (participant, round) pair. Reports whether a row was created; a
	// duplicate is not an error.
	CreateEntryIfAbsent(ctx context.Context, e *domain.Entry) (bool, error)
	SetEntryPost(ctx context.Context, entryID, postID string) error
	UpdateEntryQualification(ctx context.Context, entryID string, qualified bool) error
	UpdateEntryVisibility(ctx context.Context, entryID string, competitionFeed, normalFeed bool) error

	// AdvanceParticipant creates the next-round entry (if absent) and moves the
	// participant's current-round pointer in a single atomic unit. A crash must
	// not leave one applied without the other. The pointer tracks the furthest
	// round reached: a move toward an earlier round leaves it unchanged.
	AdvanceParticipant(ctx context.Context, participantID string, next *domain.Entry) error

	// TerminateCompetition records the completion reason and deactivates the
	// competition. Idempotent: terminating a terminated competition is a no-op.
	TerminateCompetition(ctx context.Context, competitionID, reason string) error
	// ForceNormalFeedVisibility flips visible_in_normal_feed on every submitted
	// entry of the competition. Applied once on termination.
	ForceNormalFeedVisibility(ctx context.Context, competitionID string) error
}

// EngagementReader counts qualifying likes on a post inside a half-open time
// window [from, to). Counts may undercount while the window is still open;
// they are only required to be final once to <= now.
type EngagementReader interface {
	CountInWindow(ctx context.Context, postID string, from, to time.Time) (int, error)
}

// Authorizer is the narrow capability the engine needs from the identity
// system: whether a credential may trigger admin operations.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (bool, error)
}

// Settings is the explicit call-time configuration of the engine. It is
// passed in rather than read from ambient state so the engine is testable
// without a live configuration store.
type Settings struct {
	// Enabled gates the three mutating operations; a disabled engine turns
	// them into no-ops.
	Enabled bool
	// EngagementTimeout bounds each counting phase against the external store.
	EngagementTimeout time.Duration
	// MaxConcurrentCounts caps parallel CountInWindow calls.
	MaxConcurrentCounts int
}

// DefaultSettings returns the production defaults.
func DefaultSettings() Settings {
	return Settings{
		Enabled:             true,
		EngagementTimeout:   10 * time.Second,
		MaxConcurrentCounts: 8,
	}
}

// CompetitionService contains the competition engine use cases: qualification
// processing, visibility reconciliation, termination evaluation, and the
// leaderboard/winner read side.
type CompetitionService struct {
	store      Store
	engagement EngagementReader
	settings   Settings
	now        func() time.Time
}

func NewCompetitionService(store Store, engagement EngagementReader, settings Settings) *CompetitionService {
	return NewCompetitionServiceWithClock(store, engagement, settings, time.Now)
}

// NewCompetitionServiceWithClock allows deterministic time in tests.
func NewCompetitionServiceWithClock(store Store, engagement EngagementReader, settings Settings, now func() time.Time) *CompetitionService {
	if settings.MaxConcurrentCounts <= 0 {
		settings.MaxConcurrentCounts = 8
	}
	return &CompetitionService{
		store:      store,
		engagement: engagement,
		settings:   settings,
		now:        now,
	}
}

// GetCompetition returns a competition with its rounds.
func (s *CompetitionService) GetCompetition(ctx context.Context, id string) (*domain.Competition, error) {
	return s.store.GetCompetition(ctx, id)
}

// ListActiveCompetitions returns competitions still eligible for processing.
func (s *CompetitionService) ListActiveCompetitions(ctx context.Context) ([]domain.Competition, error) {
	return s.store.ListActiveCompetitions(ctx)
}

// Join registers a user in a competition and seeds their first-round entry.
// Joining twice returns the existing participant.
func (s *CompetitionService) Join(ctx context.Context, competitionID, userID string) (*domain.Participant, error) {
	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if comp.Terminated() || !comp.IsActive {
		return nil, domain.ErrCompetitionTerminated
	}

	existing, err := s.store.FindParticipant(ctx, competitionID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrParticipantNotFound) {
		// A transient lookup failure must not fall through to a second
		// registration.
		return nil, err
	}

	now := s.now()
	participant := &domain.Participant{
		ID:            uuid.NewString(),
		UserID:        userID,
		CompetitionID: competitionID,
		JoinedAt:      now,
	}
	first := comp.FirstRound()
	if first != nil {
		participant.CurrentRoundID = first.ID
	}
	if err := s.store.CreateParticipant(ctx, participant); err != nil {
		return nil, err
	}

	if first != nil {
		entry := newEntry(participant.ID, first.ID, now)
		if _, err := s.store.CreateEntryIfAbsent(ctx, entry); err != nil {
			return nil, err
		}
	}
	return participant, nil
}

// SubmitPost attaches a post to the caller's entry while the round is open.
func (s *CompetitionService) SubmitPost(ctx context.Context, competitionID, userID, roundID, postID string) (*domain.Entry, error) {
	comp, err := s.store.GetCompetition(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if comp.Terminated() || !comp.IsActive {
		return nil, domain.ErrCompetitionTerminated
	}

	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if round.CompetitionID != competitionID {
		return nil, domain.ErrRoundNotFound
	}
	if round.State(s.now()) != domain.RoundOpen {
		return nil, domain.ErrRoundNotOpen
	}

	participant, err := s.store.FindParticipant(ctx, competitionID, userID)
	if err != nil {
		return nil, err
	}
	if participant.IsDisqualified {
		return nil, domain.ErrParticipantDisqualified
	}

	entry, err := s.store.GetEntry(ctx, participant.ID, roundID)
	if err != nil {
		return nil, err
	}
	if entry.Submitted() {
		if *entry.PostID == postID {
			return entry, nil
		}
		return nil, domain.ErrAlreadySubmitted
	}
	if err := s.store.SetEntryPost(ctx, entry.ID, postID); err != nil {
		return nil, err
	}
	entry.PostID = &postID
	return entry, nil
}

// countInWindow gathers like counts for the given entries concurrently,
// bounded by the engagement timeout. It either returns a complete result or
// fails wholesale; callers must not partially apply anything on error.
func (s *CompetitionService) countInWindow(ctx context.Context, round *domain.Round, entries []domain.Entry) ([]int, error) {
	if s.settings.EngagementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.EngagementTimeout)
		defer cancel()
	}

	counts := make([]int, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.MaxConcurrentCounts)
	for i := range entries {
		i := i
		g.Go(func() error {
			n, err := s.engagement.CountInWindow(gctx, *entries[i].PostID, round.StartDate, round.EndDate)
			if err != nil {
				return fmt.Errorf("%w: post %s: %v", domain.ErrEngagementRead, *entries[i].PostID, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return counts, nil
}

// submittedOnly filters entries down to those carrying a post.
func submittedOnly(entries []domain.Entry) []domain.Entry {
	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Submitted() {
			out = append(out, e)
		}
	}
	return out
}

func newEntry(participantID, roundID string, now time.Time) *domain.Entry {
	return &domain.Entry{
		ID:                       uuid.NewString(),
		ParticipantID:            participantID,
		RoundID:                  roundID,
		VisibleInCompetitionFeed: true,
		VisibleInNormalFeed:      true,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}
