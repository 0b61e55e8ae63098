package domain

import (
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// RoundState is the lifecycle state of a round derived from wall-clock time.
type RoundState string

const (
	RoundNotStarted RoundState = "NOT_STARTED"
	RoundOpen       RoundState = "OPEN"
	RoundClosed     RoundState = "CLOSED"
)

// Competition is a multi-round elimination contest.
type Competition struct {
	bun.BaseModel `bun:"table:competitions,alias:c"`

	ID               string    `bun:"id,pk" json:"id"`
	Title            string    `bun:"title,notnull" json:"title"`
	IsActive         bool      `bun:"is_active,notnull" json:"isActive"`
	CompletionReason *string   `bun:"completion_reason" json:"completionReason,omitempty"`
	CreatedAt        time.Time `bun:"created_at,notnull" json:"createdAt"`

	Rounds []Round `bun:"rel:has-many,join:id=competition_id" json:"rounds,omitempty"`
}

// Terminated reports whether the competition has been closed out with a reason.
// Once true, qualification processing must never mutate entries again.
func (c *Competition) Terminated() bool {
	return c.CompletionReason != nil
}

// SortedRounds returns the rounds ordered by start date ascending, which
// defines "next" and "previous" throughout the engine.
func (c *Competition) SortedRounds() []Round {
	rounds := make([]Round, len(c.Rounds))
	copy(rounds, c.Rounds)
	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].StartDate.Before(rounds[j].StartDate)
	})
	return rounds
}

// FirstRound returns the earliest round, or nil when none exist.
func (c *Competition) FirstRound() *Round {
	rounds := c.SortedRounds()
	if len(rounds) == 0 {
		return nil
	}
	return &rounds[0]
}

// FinalRound returns the latest round, or nil when none exist.
func (c *Competition) FinalRound() *Round {
	rounds := c.SortedRounds()
	if len(rounds) == 0 {
		return nil
	}
	return &rounds[len(rounds)-1]
}

// RoundAfter returns the round immediately following the given round by start
// date, or nil when the given round is the last one.
func (c *Competition) RoundAfter(roundID string) *Round {
	rounds := c.SortedRounds()
	for i := range rounds {
		if rounds[i].ID == roundID && i+1 < len(rounds) {
			return &rounds[i+1]
		}
	}
	return nil
}

// RoundIndex returns the position of a round in start-date order, or -1.
func (c *Competition) RoundIndex(roundID string) int {
	rounds := c.SortedRounds()
	for i := range rounds {
		if rounds[i].ID == roundID {
			return i
		}
	}
	return -1
}

// Ended reports whether every round's end date has passed.
func (c *Competition) Ended(now time.Time) bool {
	if len(c.Rounds) == 0 {
		return false
	}
	for i := range c.Rounds {
		if !c.Rounds[i].Closed(now) {
			return false
		}
	}
	return true
}

// Round is a time-boxed phase of a competition. The half-open interval
// [StartDate, EndDate) defines both openness and the engagement window.
type Round struct {
	bun.BaseModel `bun:"table:rounds,alias:r"`

	ID            string    `bun:"id,pk" json:"id"`
	CompetitionID string    `bun:"competition_id,notnull" json:"competitionId"`
	Name          string    `bun:"name,notnull" json:"name"`
	StartDate     time.Time `bun:"start_date,notnull" json:"startDate"`
	EndDate       time.Time `bun:"end_date,notnull" json:"endDate"`
	LikesToPass   *int      `bun:"likes_to_pass" json:"likesToPass,omitempty"`
}

// Started reports whether the round has begun.
func (r *Round) Started(now time.Time) bool {
	return !now.Before(r.StartDate)
}

// Closed reports whether the round has ended.
func (r *Round) Closed(now time.Time) bool {
	return !now.Before(r.EndDate)
}

// State derives the lifecycle state from the stored timestamps. Never cached:
// "has this round ended" is always recomputed against now.
func (r *Round) State(now time.Time) RoundState {
	switch {
	case now.Before(r.StartDate):
		return RoundNotStarted
	case now.Before(r.EndDate):
		return RoundOpen
	default:
		return RoundClosed
	}
}

// Threshold returns the likes-to-pass value, treating nil as zero (everyone
// with a submitted post qualifies).
func (r *Round) Threshold() int {
	if r.LikesToPass == nil {
		return 0
	}
	return *r.LikesToPass
}

// Participant is one user's membership in one competition. IsDisqualified is
// an administrative flag, distinct from per-round qualification outcomes.
type Participant struct {
	bun.BaseModel `bun:"table:participants,alias:p"`

	ID             string    `bun:"id,pk" json:"id"`
	UserID         string    `bun:"user_id,notnull" json:"userId"`
	CompetitionID  string    `bun:"competition_id,notnull" json:"competitionId"`
	IsDisqualified bool      `bun:"is_disqualified,notnull" json:"isDisqualified"`
	CurrentRoundID string    `bun:"current_round_id" json:"currentRoundId"`
	JoinedAt       time.Time `bun:"joined_at,notnull" json:"joinedAt"`
}

// Entry records one participant's presence in one round, optionally carrying
// a submitted post. At most one entry exists per (participant, round).
type Entry struct {
	bun.BaseModel `bun:"table:entries,alias:e"`

	ID                       string    `bun:"id,pk" json:"id"`
	ParticipantID            string    `bun:"participant_id,notnull" json:"participantId"`
	RoundID                  string    `bun:"round_id,notnull" json:"roundId"`
	PostID                   *string   `bun:"post_id" json:"postId,omitempty"`
	QualifiedForNextRound    *bool     `bun:"qualified_for_next_round" json:"qualifiedForNextRound,omitempty"`
	VisibleInCompetitionFeed bool      `bun:"visible_in_competition_feed,notnull" json:"visibleInCompetitionFeed"`
	VisibleInNormalFeed      bool      `bun:"visible_in_normal_feed,notnull" json:"visibleInNormalFeed"`
	CreatedAt                time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt                time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Submitted reports whether the participant attached a post to this entry.
// Unsubmitted entries are excluded from qualification and leaderboards.
func (e *Entry) Submitted() bool {
	return e.PostID != nil
}

// LikeEvent is a single qualifying like on a post. Only events whose
// timestamp falls inside a round's window count toward that round.
type LikeEvent struct {
	bun.BaseModel `bun:"table:like_events,alias:l"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	PostID    string    `bun:"post_id,notnull" json:"postId"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// EntryResult is the per-entry outcome of a qualification pass.
type EntryResult struct {
	EntryID       string `json:"entryId"`
	ParticipantID string `json:"participantId"`
	Likes         int    `json:"likes"`
	Qualified     bool   `json:"qualified"`
}

// ProcessingResult aggregates a qualification pass over one round.
type ProcessingResult struct {
	RoundID           string        `json:"roundId"`
	Skipped           bool          `json:"skipped"`
	SkipReason        string        `json:"skipReason,omitempty"`
	NoSubmissions     bool          `json:"noSubmissions"`
	QualifiedCount    int           `json:"qualifiedCount"`
	DisqualifiedCount int           `json:"disqualifiedCount"`
	Entries           []EntryResult `json:"entries,omitempty"`
}

// RepairReport summarizes a reconciliation pass.
type RepairReport struct {
	CompetitionID  string `json:"competitionId"`
	EntriesChecked int    `json:"entriesChecked"`
	EntriesUpdated int    `json:"entriesUpdated"`
}

// TerminationDecision is the outcome of an early-termination evaluation.
type TerminationDecision struct {
	CompetitionID string `json:"competitionId"`
	Terminated    bool   `json:"terminated"`
	Reason        string `json:"reason,omitempty"`
}

// RankedEntry is a leaderboard row. Rank is 1-based and only meaningful on an
// unpaginated pass; it stays zero past the first page rather than lying.
type RankedEntry struct {
	EntryID       string `json:"entryId"`
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
	PostID        string `json:"postId"`
	Likes         int    `json:"likes"`
	Rank          int    `json:"rank,omitempty"`
}

// LeaderboardPage is one page of a round leaderboard.
type LeaderboardPage struct {
	RoundID    string        `json:"roundId"`
	Entries    []RankedEntry `json:"entries"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// WinnersResult carries the final top three. Empty Winners with Decided true
// is the explicit "no winners" outcome, not an error.
type WinnersResult struct {
	CompetitionID string        `json:"competitionId"`
	RoundID       string        `json:"roundId,omitempty"`
	Decided       bool          `json:"decided"`
	Winners       []RankedEntry `json:"winners"`
}
