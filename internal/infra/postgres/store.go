package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"competition-engine/internal/domain"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Store is the bun-backed implementation of app.Store. The unique
// (participant_id, round_id) index on entries and RunInTx around participant
// advancement carry the engine's concurrency guarantees.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetCompetition(ctx context.Context, id string) (*domain.Competition, error) {
	comp := new(domain.Competition)
	err := s.db.NewSelect().Model(comp).
		Relation("Rounds").
		Where("c.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCompetitionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get competition: %w", err)
	}
	return comp, nil
}

func (s *Store) ListActiveCompetitions(ctx context.Context) ([]domain.Competition, error) {
	var comps []domain.Competition
	err := s.db.NewSelect().Model(&comps).
		Relation("Rounds").
		Where("c.is_active = TRUE").
		Where("c.completion_reason IS NULL").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active competitions: %w", err)
	}
	return comps, nil
}

func (s *Store) GetRound(ctx context.Context, id string) (*domain.Round, error) {
	round := new(domain.Round)
	err := s.db.NewSelect().Model(round).Where("r.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get round: %w", err)
	}
	return round, nil
}

func (s *Store) GetParticipant(ctx context.Context, id string) (*domain.Participant, error) {
	p := new(domain.Participant)
	err := s.db.NewSelect().Model(p).Where("p.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

func (s *Store) FindParticipant(ctx context.Context, competitionID, userID string) (*domain.Participant, error) {
	p := new(domain.Participant)
	err := s.db.NewSelect().Model(p).
		Where("p.competition_id = ?", competitionID).
		Where("p.user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find participant: %w", err)
	}
	return p, nil
}

func (s *Store) CountParticipants(ctx context.Context, competitionID string) (int, error) {
	n, err := s.db.NewSelect().Model((*domain.Participant)(nil)).
		Where("p.competition_id = ?", competitionID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return n, nil
}

func (s *Store) ListParticipants(ctx context.Context, competitionID string) ([]domain.Participant, error) {
	var out []domain.Participant
	err := s.db.NewSelect().Model(&out).
		Where("p.competition_id = ?", competitionID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return out, nil
}

func (s *Store) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	if _, err := s.db.NewInsert().Model(p).Exec(ctx); err != nil {
		return fmt.Errorf("create participant: %w", err)
	}
	return nil
}

func (s *Store) GetEntry(ctx context.Context, participantID, roundID string) (*domain.Entry, error) {
	e := new(domain.Entry)
	err := s.db.NewSelect().Model(e).
		Where("e.participant_id = ?", participantID).
		Where("e.round_id = ?", roundID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

func (s *Store) ListEntriesByRound(ctx context.Context, roundID string) ([]domain.Entry, error) {
	var out []domain.Entry
	err := s.db.NewSelect().Model(&out).
		Where("e.round_id = ?", roundID).
		Order("e.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries by round: %w", err)
	}
	return out, nil
}

func (s *Store) ListEntriesByParticipant(ctx context.Context, participantID string) ([]domain.Entry, error) {
	var out []domain.Entry
	err := s.db.NewSelect().Model(&out).
		Where("e.participant_id = ?", participantID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries by participant: %w", err)
	}
	return out, nil
}

func (s *Store) ListEntriesByCompetition(ctx context.Context, competitionID string) ([]domain.Entry, error) {
	var out []domain.Entry
	err := s.db.NewSelect().Model(&out).
		Where("e.round_id IN (SELECT id FROM rounds WHERE competition_id = ?)", competitionID).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries by competition: %w", err)
	}
	return out, nil
}

func (s *Store) CreateEntryIfAbsent(ctx context.Context, e *domain.Entry) (bool, error) {
	res, err := s.db.NewInsert().Model(e).
		On("CONFLICT (participant_id, round_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		// The ON CONFLICT clause absorbs the (participant_id, round_id)
		// collision, so a surfaced unique violation is an entry id reuse.
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == "23505" {
			return false, domain.ErrDuplicateEntry
		}
		return false, fmt.Errorf("create entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create entry: %w", err)
	}
	return affected > 0, nil
}

func (s *Store) SetEntryPost(ctx context.Context, entryID, postID string) error {
	res, err := s.db.NewUpdate().Model((*domain.Entry)(nil)).
		Set("post_id = ?", postID).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", entryID).
		Exec(ctx)
	return entryUpdateResult(res, err, "set entry post")
}

func (s *Store) UpdateEntryQualification(ctx context.Context, entryID string, qualified bool) error {
	res, err := s.db.NewUpdate().Model((*domain.Entry)(nil)).
		Set("qualified_for_next_round = ?", qualified).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", entryID).
		Exec(ctx)
	return entryUpdateResult(res, err, "update entry qualification")
}

func (s *Store) UpdateEntryVisibility(ctx context.Context, entryID string, competitionFeed, normalFeed bool) error {
	res, err := s.db.NewUpdate().Model((*domain.Entry)(nil)).
		Set("visible_in_competition_feed = ?", competitionFeed).
		Set("visible_in_normal_feed = ?", normalFeed).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", entryID).
		Exec(ctx)
	return entryUpdateResult(res, err, "update entry visibility")
}

// AdvanceParticipant applies the next-round entry insert and the
// current-round pointer move in one transaction: both or neither. The pointer
// only ever moves forward in round order, so reprocessing an earlier round
// cannot regress a participant who already advanced further.
func (s *Store) AdvanceParticipant(ctx context.Context, participantID string, next *domain.Entry) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var currentRoundID sql.NullString
		err := tx.NewSelect().Model((*domain.Participant)(nil)).
			ColumnExpr("p.current_round_id").
			Where("p.id = ?", participantID).
			For("UPDATE").
			Scan(ctx, &currentRoundID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return fmt.Errorf("advance participant: %w", err)
		}

		if _, err := tx.NewInsert().Model(next).
			On("CONFLICT (participant_id, round_id) DO NOTHING").
			Exec(ctx); err != nil {
			return fmt.Errorf("advance participant entry: %w", err)
		}

		if _, err := tx.NewUpdate().Model((*domain.Participant)(nil)).
			Set("current_round_id = ?", next.RoundID).
			Where("id = ?", participantID).
			Where(`current_round_id IS NULL OR (SELECT start_date FROM rounds WHERE id = current_round_id) < (SELECT start_date FROM rounds WHERE id = ?)`, next.RoundID).
			Exec(ctx); err != nil {
			return fmt.Errorf("advance participant pointer: %w", err)
		}
		return nil
	})
}

func (s *Store) TerminateCompetition(ctx context.Context, competitionID, reason string) error {
	// The completion_reason IS NULL guard makes termination first-writer-wins.
	_, err := s.db.NewUpdate().Model((*domain.Competition)(nil)).
		Set("completion_reason = ?", reason).
		Set("is_active = FALSE").
		Where("id = ?", competitionID).
		Where("completion_reason IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("terminate competition: %w", err)
	}
	return nil
}

func (s *Store) ForceNormalFeedVisibility(ctx context.Context, competitionID string) error {
	_, err := s.db.NewUpdate().Model((*domain.Entry)(nil)).
		Set("visible_in_normal_feed = TRUE").
		Set("updated_at = ?", time.Now()).
		Where("post_id IS NOT NULL").
		Where("visible_in_normal_feed = FALSE").
		Where("round_id IN (SELECT id FROM rounds WHERE competition_id = ?)", competitionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("force normal feed visibility: %w", err)
	}
	return nil
}

func entryUpdateResult(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return domain.ErrEntryNotFound
	}
	return nil
}
