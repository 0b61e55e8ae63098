package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"competition-engine/internal/app"
	"competition-engine/internal/domain"
	"competition-engine/internal/infra/memory"
	transport "competition-engine/internal/transport/http"
)

const adminToken = "secret-admin-token"

// newTestServer builds a server over the in-memory infra with a clock frozen
// just after round 1 of the seeded competition closed.
func newTestServer(t *testing.T) (*httptest.Server, *memory.Store, *memory.StaticEngagementReader) {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	store := memory.NewStore()
	store.SeedCompetition(domain.Competition{
		ID: "comp-1", Title: "Photo Battle", IsActive: true,
		Rounds: []domain.Round{
			{ID: "r1", Name: "Round 1", StartDate: base, EndDate: base.Add(time.Hour)},
			{ID: "r2", Name: "Round 2", StartDate: base.Add(time.Hour), EndDate: base.Add(2 * time.Hour)},
		},
	})
	likes := memory.NewStaticEngagementReader()

	service := app.NewCompetitionServiceWithClock(
		store, likes, app.DefaultSettings(),
		func() time.Time { return base.Add(90 * time.Minute) },
	)
	handler := transport.NewHandler(service, app.NewTokenAuthorizer(adminToken))

	mux := http.NewServeMux()
	handler.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store, likes
}

func seedEntry(t *testing.T, store *memory.Store, participantID, roundID, postID string) {
	t.Helper()
	ctx := context.Background()
	p := domain.Participant{ID: participantID, UserID: "user-" + participantID, CompetitionID: "comp-1", CurrentRoundID: roundID}
	if err := store.CreateParticipant(ctx, &p); err != nil {
		t.Fatalf("create participant: %v", err)
	}
	entry := domain.Entry{
		ID: participantID + "-" + roundID, ParticipantID: participantID, RoundID: roundID,
		PostID: &postID, VisibleInCompetitionFeed: true, VisibleInNormalFeed: true,
	}
	if _, err := store.CreateEntryIfAbsent(ctx, &entry); err != nil {
		t.Fatalf("create entry: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestGetCompetitionNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/competitions/missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

// A bare read of a competition past a round boundary runs the lazy
// termination evaluation.
func TestGetCompetitionEvaluatesTermination(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/competitions/comp-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var comp domain.Competition
	if err := json.NewDecoder(resp.Body).Decode(&comp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Nobody joined and round 1 closed: the read itself must have ended it.
	if comp.CompletionReason == nil {
		t.Fatalf("expected lazy evaluation to terminate the empty competition")
	}
	if comp.IsActive {
		t.Fatalf("terminated competition reported active")
	}
}

func TestJoinValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/competitions/comp-1/join", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestProcessRoundRequiresAdminToken(t *testing.T) {
	srv, store, likes := newTestServer(t)
	seedEntry(t, store, "p1", "r1", "post-1")
	likes.AddLikes("post-1", time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC))

	url := srv.URL + "/competitions/comp-1/rounds/r1/process"

	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("post without token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, url, nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post with wrong token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status with wrong token = %d, want 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, url, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post with token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", resp.StatusCode)
	}
	var result domain.ProcessingResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.QualifiedCount != 1 {
		t.Fatalf("expected 1 qualifier, got %+v", result)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv, store, likes := newTestServer(t)
	seedEntry(t, store, "p1", "r1", "post-1")
	seedEntry(t, store, "p2", "r1", "post-2")
	at := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	likes.AddLikes("post-1", at, at.Add(time.Second))
	likes.AddLikes("post-2", at)

	resp, err := http.Get(srv.URL + "/rounds/r1/leaderboard")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var page domain.LeaderboardPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(page.Entries))
	}
	if page.Entries[0].Likes != 2 || page.Entries[0].Rank != 1 {
		t.Fatalf("top row = %+v, want 2 likes at rank 1", page.Entries[0])
	}

	resp, err = http.Get(srv.URL + "/rounds/r1/leaderboard?cursor=garbage")
	if err != nil {
		t.Fatalf("get with bad cursor: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad cursor status = %d, want 400", resp.StatusCode)
	}
}

func TestWinnersEndpointBeforeEnd(t *testing.T) {
	srv, store, _ := newTestServer(t)
	seedEntry(t, store, "p1", "r1", "post-1")

	// Round 2 is still open at the frozen clock.
	resp, err := http.Get(srv.URL + "/competitions/comp-1/winners")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409 while the competition is running", resp.StatusCode)
	}
}
