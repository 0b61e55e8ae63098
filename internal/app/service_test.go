package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"competition-engine/internal/app"
	"competition-engine/internal/domain"
	"competition-engine/internal/infra/memory"
)

func TestJoinSeedsFirstRoundEntry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.now = env.rounds[0].StartDate.Add(time.Minute)

	p, err := env.service.Join(ctx, compID, "alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.CurrentRoundID != "r1" {
		t.Fatalf("current round = %s, want r1", p.CurrentRoundID)
	}
	entry, err := env.store.GetEntry(ctx, p.ID, "r1")
	if err != nil {
		t.Fatalf("expected seeded first-round entry: %v", err)
	}
	if entry.Submitted() {
		t.Fatalf("seeded entry must not carry a post yet")
	}
	if !entry.VisibleInCompetitionFeed || !entry.VisibleInNormalFeed {
		t.Fatalf("new entries start visible in both feeds: %+v", entry)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.now = env.rounds[0].StartDate.Add(time.Minute)

	first, err := env.service.Join(ctx, compID, "alice")
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	second, err := env.service.Join(ctx, compID, "alice")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("joining twice must return the same participant: %s vs %s", first.ID, second.ID)
	}
	n, _ := env.store.CountParticipants(ctx, compID)
	if n != 1 {
		t.Fatalf("expected 1 participant, got %d", n)
	}
}

type flakyLookupStore struct {
	*memory.Store
	lookupErr error
}

func (s *flakyLookupStore) FindParticipant(context.Context, string, string) (*domain.Participant, error) {
	return nil, s.lookupErr
}

// A transient lookup failure is not "never joined": falling through to a
// second registration would duplicate the participant.
func TestJoinPropagatesLookupFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.now = env.rounds[0].StartDate.Add(time.Minute)

	lookupErr := errors.New("connection reset")
	flaky := &flakyLookupStore{Store: env.store, lookupErr: lookupErr}
	service := app.NewCompetitionServiceWithClock(
		flaky, env.likes, app.DefaultSettings(),
		func() time.Time { return env.now },
	)

	if _, err := service.Join(ctx, compID, "alice"); !errors.Is(err, lookupErr) {
		t.Fatalf("expected the lookup error back, got %v", err)
	}
	n, _ := env.store.CountParticipants(ctx, compID)
	if n != 0 {
		t.Fatalf("no participant may be created after a failed lookup, got %d", n)
	}
}

func TestJoinTerminatedCompetition(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	if err := env.store.TerminateCompetition(ctx, compID, "over"); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if _, err := env.service.Join(ctx, compID, "alice"); !errors.Is(err, domain.ErrCompetitionTerminated) {
		t.Fatalf("expected ErrCompetitionTerminated, got %v", err)
	}
}

func TestSubmitPostOutsideWindow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.joinAndSubmit(t, "alice", "")

	env.now = env.rounds[0].StartDate.Add(-time.Minute)
	if _, err := env.service.SubmitPost(ctx, compID, "alice", "r1", "post-a"); !errors.Is(err, domain.ErrRoundNotOpen) {
		t.Fatalf("before start: expected ErrRoundNotOpen, got %v", err)
	}
	env.now = env.rounds[0].EndDate
	if _, err := env.service.SubmitPost(ctx, compID, "alice", "r1", "post-a"); !errors.Is(err, domain.ErrRoundNotOpen) {
		t.Fatalf("at end boundary: expected ErrRoundNotOpen, got %v", err)
	}
}

func TestSubmitPostIdempotentSamePost(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.joinAndSubmit(t, "alice", "post-a")
	env.now = env.rounds[0].StartDate.Add(2 * time.Minute)

	entry, err := env.service.SubmitPost(ctx, compID, "alice", "r1", "post-a")
	if err != nil {
		t.Fatalf("resubmitting the same post must succeed: %v", err)
	}
	if entry.PostID == nil || *entry.PostID != "post-a" {
		t.Fatalf("unexpected post id: %v", entry.PostID)
	}
}

func TestSubmitPostDifferentPostRejected(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.joinAndSubmit(t, "alice", "post-a")
	env.now = env.rounds[0].StartDate.Add(2 * time.Minute)

	if _, err := env.service.SubmitPost(ctx, compID, "alice", "r1", "post-b"); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected ErrAlreadySubmitted, got %v", err)
	}
}

func TestSubmitPostDisqualifiedParticipant(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	p := env.joinAndSubmit(t, "alice", "")
	env.store.DisqualifyParticipant(p.ID)
	env.now = env.rounds[0].StartDate.Add(2 * time.Minute)

	if _, err := env.service.SubmitPost(ctx, compID, "alice", "r1", "post-a"); !errors.Is(err, domain.ErrParticipantDisqualified) {
		t.Fatalf("expected ErrParticipantDisqualified, got %v", err)
	}
}

func TestSubmitPostWrongCompetitionRound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	other := domain.Competition{
		ID: "comp-2", Title: "Other", IsActive: true,
		Rounds: []domain.Round{{ID: "other-r1", Name: "Round 1", StartDate: env.base, EndDate: env.base.Add(time.Hour)}},
	}
	env.store.SeedCompetition(other)
	env.joinAndSubmit(t, "alice", "")
	env.now = env.rounds[0].StartDate.Add(2 * time.Minute)

	if _, err := env.service.SubmitPost(ctx, compID, "alice", "other-r1", "post-a"); !errors.Is(err, domain.ErrRoundNotFound) {
		t.Fatalf("expected ErrRoundNotFound, got %v", err)
	}
}
