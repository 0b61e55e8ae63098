package domain

import "errors"

var (
	// ErrCompetitionNotFound indicates the competition id resolves to nothing.
	ErrCompetitionNotFound = errors.New("competition not found")
	// ErrRoundNotFound indicates the round id resolves to nothing.
	ErrRoundNotFound = errors.New("round not found")
	// ErrParticipantNotFound indicates a user acts in a competition they never joined.
	ErrParticipantNotFound = errors.New("participant not found in competition")
	// ErrEntryNotFound indicates no entry exists for the participant in the round.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrRoundNotClosed is returned when qualification is requested before the
	// round's end date. Recoverable: retry after the boundary.
	ErrRoundNotClosed = errors.New("round has not ended yet")
	// ErrRoundNotOpen is returned when a submission arrives outside the round window.
	ErrRoundNotOpen = errors.New("round is not open for submissions")
	// ErrCompetitionTerminated rejects joins/submissions on a completed competition.
	ErrCompetitionTerminated = errors.New("competition has been terminated")
	// ErrCompetitionNotEnded guards winner resolution until every round has closed.
	ErrCompetitionNotEnded = errors.New("competition has not ended yet")
	// ErrDuplicateEntry reports an insert reusing an existing entry id. The
	// (participant, round) collision never surfaces as this error: the
	// create-if-absent path reports it as "already exists" instead.
	ErrDuplicateEntry = errors.New("entry id already in use")
	// ErrEngagementRead wraps transient failures of the engagement store. A
	// qualification pass that hits one aborts wholesale and is safe to retry.
	ErrEngagementRead = errors.New("engagement count unavailable")
	// ErrParticipantDisqualified rejects submissions from administratively
	// disqualified participants.
	ErrParticipantDisqualified = errors.New("participant is disqualified")
	// ErrAlreadySubmitted rejects a second post on the same entry.
	ErrAlreadySubmitted = errors.New("entry already has a submitted post")
	// ErrInvalidCursor rejects malformed leaderboard pagination tokens.
	ErrInvalidCursor = errors.New("invalid pagination cursor")
	// ErrUnauthorized rejects admin operations without a valid credential.
	ErrUnauthorized = errors.New("not authorized")
)
