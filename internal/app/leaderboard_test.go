package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"competition-engine/internal/domain"
)

// seedBoard joins five users and gives their round-1 posts a fixed like
// distribution with one tie.
func seedBoard(t *testing.T, env *testEnv) {
	t.Helper()
	likes := map[string]int{"u1": 50, "u2": 40, "u3": 40, "u4": 30, "u5": 10}
	for _, user := range []string{"u1", "u2", "u3", "u4", "u5"} {
		env.joinAndSubmit(t, user, "post-"+user)
		env.addLikes("post-"+user, likes[user])
	}
}

func TestLeaderboardOrderingAndTies(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedBoard(t, env)
	// Out-of-window likes must not count.
	env.likes.AddLikes("post-u5", env.rounds[0].EndDate.Add(time.Minute))
	env.afterRound(0)

	page, err := env.service.BuildLeaderboard(ctx, "r1", "", 0)
	if err != nil {
		t.Fatalf("build leaderboard: %v", err)
	}
	if len(page.Entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(page.Entries))
	}
	wantLikes := []int{50, 40, 40, 30, 10}
	for i, e := range page.Entries {
		if e.Likes != wantLikes[i] {
			t.Fatalf("position %d: likes = %d, want %d", i, e.Likes, wantLikes[i])
		}
		if e.Rank != i+1 {
			t.Fatalf("position %d: rank = %d, want %d", i, e.Rank, i+1)
		}
	}
	// Tied entries keep a stable relative order across calls.
	again, err := env.service.BuildLeaderboard(ctx, "r1", "", 0)
	if err != nil {
		t.Fatalf("rebuild leaderboard: %v", err)
	}
	for i := range page.Entries {
		if page.Entries[i].EntryID != again.Entries[i].EntryID {
			t.Fatalf("unstable order at position %d", i)
		}
	}
	if page.Entries[1].EntryID > page.Entries[2].EntryID {
		t.Fatalf("tie must break by entry id ascending")
	}
}

func TestLeaderboardPagination(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedBoard(t, env)
	env.afterRound(0)

	first, err := env.service.BuildLeaderboard(ctx, "r1", "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Entries) != 2 || first.NextCursor == "" {
		t.Fatalf("expected a full first page with a cursor, got %+v", first)
	}
	if first.Entries[0].Rank != 1 || first.Entries[1].Rank != 2 {
		t.Fatalf("first page carries ranks, got %d and %d", first.Entries[0].Rank, first.Entries[1].Rank)
	}

	second, err := env.service.BuildLeaderboard(ctx, "r1", first.NextCursor, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Entries) != 2 {
		t.Fatalf("expected 2 entries on the second page, got %d", len(second.Entries))
	}
	for _, e := range second.Entries {
		if e.Rank != 0 {
			t.Fatalf("ranks are undefined past the first page, got %d", e.Rank)
		}
	}

	last, err := env.service.BuildLeaderboard(ctx, "r1", second.NextCursor, 2)
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if len(last.Entries) != 1 || last.NextCursor != "" {
		t.Fatalf("expected the final single-entry page without a cursor, got %+v", last)
	}
}

func TestLeaderboardInvalidCursor(t *testing.T) {
	env := newTestEnv(t)
	env.afterRound(0)

	if _, err := env.service.BuildLeaderboard(context.Background(), "r1", "not-a-number", 0); !errors.Is(err, domain.ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor, got %v", err)
	}
	if _, err := env.service.BuildLeaderboard(context.Background(), "r1", "-1", 0); !errors.Is(err, domain.ErrInvalidCursor) {
		t.Fatalf("expected ErrInvalidCursor for negative offset, got %v", err)
	}
}

func TestLeaderboardExcludesDisqualifiedParticipants(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seedBoard(t, env)

	top, err := env.store.FindParticipant(ctx, compID, "u1")
	if err != nil {
		t.Fatalf("find participant: %v", err)
	}
	env.store.DisqualifyParticipant(top.ID)
	env.afterRound(0)

	page, err := env.service.BuildLeaderboard(ctx, "r1", "", 0)
	if err != nil {
		t.Fatalf("build leaderboard: %v", err)
	}
	if len(page.Entries) != 4 {
		t.Fatalf("expected 4 entries after exclusion, got %d", len(page.Entries))
	}
	if page.Entries[0].Likes != 40 {
		t.Fatalf("top entry should be the 40-like post, got %d likes", page.Entries[0].Likes)
	}
}

func TestResolveWinnersTopThree(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	// All five submit in round 1; to make them final-round contenders the
	// board is built on a single-round competition instead.
	single := domain.Competition{
		ID: "comp-final", Title: "One Shot", IsActive: true,
		Rounds: []domain.Round{{
			ID: "rf", Name: "Final", StartDate: env.base, EndDate: env.base.Add(time.Hour),
		}},
	}
	env.store.SeedCompetition(single)

	likes := map[string]int{"w1": 50, "w2": 40, "w3": 40, "w4": 30, "w5": 10}
	env.now = env.base.Add(time.Minute)
	for _, user := range []string{"w1", "w2", "w3", "w4", "w5"} {
		if _, err := env.service.Join(ctx, "comp-final", user); err != nil {
			t.Fatalf("join %s: %v", user, err)
		}
		if _, err := env.service.SubmitPost(ctx, "comp-final", user, "rf", "post-"+user); err != nil {
			t.Fatalf("submit %s: %v", user, err)
		}
		for i := 0; i < likes[user]; i++ {
			env.likes.AddLikes("post-"+user, env.base.Add(10*time.Minute+time.Duration(i)*time.Second))
		}
	}

	// Not ended yet.
	if _, err := env.service.ResolveWinners(ctx, "comp-final"); !errors.Is(err, domain.ErrCompetitionNotEnded) {
		t.Fatalf("expected ErrCompetitionNotEnded, got %v", err)
	}

	env.now = env.base.Add(2 * time.Hour)
	result, err := env.service.ResolveWinners(ctx, "comp-final")
	if err != nil {
		t.Fatalf("resolve winners: %v", err)
	}
	if !result.Decided || len(result.Winners) != 3 {
		t.Fatalf("expected 3 decided winners, got %+v", result)
	}
	wantLikes := []int{50, 40, 40}
	for i, w := range result.Winners {
		if w.Likes != wantLikes[i] || w.Rank != i+1 {
			t.Fatalf("winner %d: likes=%d rank=%d, want likes=%d rank=%d", i, w.Likes, w.Rank, wantLikes[i], i+1)
		}
	}
}

func TestResolveWinnersEmptyFinalRound(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.joinAndSubmit(t, "alice", "post-a")
	env.afterRound(2) // whole competition over, final round empty

	result, err := env.service.ResolveWinners(ctx, compID)
	if err != nil {
		t.Fatalf("resolve winners: %v", err)
	}
	if !result.Decided || len(result.Winners) != 0 {
		t.Fatalf("expected a decided empty result, got %+v", result)
	}
}
