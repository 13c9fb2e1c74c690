package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// OutcomesStore persists remediation outcomes. The effectiveness state only
// ever leaves unknown once; deferral never resets a terminal state.
type OutcomesStore interface {
	CreateOutcome(ctx context.Context, o *ResolutionOutcome) (int64, error)
	GetOutcome(ctx context.Context, id int64) (*ResolutionOutcome, error)
	ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]ResolutionOutcome, error)
	RecordReview(ctx context.Context, id int64, state, reason, note, source string) error
	DeferReview(ctx context.Context, id int64, until time.Time) error
}

type outcomesStore struct {
	db *sql.DB
}

func NewOutcomesStore(db *sql.DB) OutcomesStore {
	return &outcomesStore{db: db}
}

const outcomeColumns = `id, request_id, user_id, code, note, actor_masked, created_at, effectiveness_state, effectiveness_deferred_until, effectiveness_reason, effectiveness_note, effectiveness_source`

func (s *outcomesStore) CreateOutcome(ctx context.Context, o *ResolutionOutcome) (int64, error) {
	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	} else {
		o.CreatedAt = o.CreatedAt.UTC()
	}
	if strings.TrimSpace(o.EffectivenessState) == "" {
		o.EffectivenessState = EffectivenessUnknown
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO resolution_outcomes(request_id, user_id, code, note, actor_masked, created_at, effectiveness_state, effectiveness_deferred_until, effectiveness_reason, effectiveness_note, effectiveness_source)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		strings.TrimSpace(o.RequestID), strings.TrimSpace(o.UserID), strings.TrimSpace(o.Code),
		o.Note, o.ActorMasked, o.CreatedAt, o.EffectivenessState,
		nullableTime(o.EffectivenessDeferredUntil), o.EffectivenessReason, o.EffectivenessNote, o.EffectivenessSource)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	o.ID = id
	return id, nil
}

func (s *outcomesStore) GetOutcome(ctx context.Context, id int64) (*ResolutionOutcome, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outcomeColumns+` FROM resolution_outcomes WHERE id=?`, id)
	return scanOutcome(row)
}

func (s *outcomesStore) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]ResolutionOutcome, error) {
	var clauses []string
	var args []any
	if filter.State != "" {
		clauses = append(clauses, "effectiveness_state=?")
		args = append(args, filter.State)
	}
	if filter.RequestID != "" {
		clauses = append(clauses, "request_id=?")
		args = append(args, filter.RequestID)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "created_at>=?")
		args = append(args, filter.Since.UTC())
	}
	query := `SELECT ` + outcomeColumns + ` FROM resolution_outcomes`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ResolutionOutcome
	for rows.Next() {
		o, err := scanOutcomeRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// RecordReview transitions unknown -> success|fail exactly once; a repeat on
// a terminal row is a conflict.
func (s *outcomesStore) RecordReview(ctx context.Context, id int64, state, reason, note, source string) error {
	if state != EffectivenessSuccess && state != EffectivenessFail {
		return errors.New("invalid effectiveness state")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE resolution_outcomes
		SET effectiveness_state=?, effectiveness_reason=?, effectiveness_note=?, effectiveness_source=?, effectiveness_deferred_until=NULL
		WHERE id=? AND effectiveness_state=?`,
		state, strings.TrimSpace(reason), note, strings.TrimSpace(source), id, EffectivenessUnknown)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

// DeferReview only touches rows still in unknown state.
func (s *outcomesStore) DeferReview(ctx context.Context, id int64, until time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE resolution_outcomes
		SET effectiveness_deferred_until=?
		WHERE id=? AND effectiveness_state=?`,
		until.UTC(), id, EffectivenessUnknown)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func scanOutcome(row *sql.Row) (*ResolutionOutcome, error) {
	var o ResolutionOutcome
	var deferred sql.NullTime
	if err := row.Scan(&o.ID, &o.RequestID, &o.UserID, &o.Code, &o.Note, &o.ActorMasked, &o.CreatedAt, &o.EffectivenessState, &deferred, &o.EffectivenessReason, &o.EffectivenessNote, &o.EffectivenessSource); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if deferred.Valid {
		o.EffectivenessDeferredUntil = &deferred.Time
	}
	return &o, nil
}

func scanOutcomeRow(rows *sql.Rows) (ResolutionOutcome, error) {
	var o ResolutionOutcome
	var deferred sql.NullTime
	if err := rows.Scan(&o.ID, &o.RequestID, &o.UserID, &o.Code, &o.Note, &o.ActorMasked, &o.CreatedAt, &o.EffectivenessState, &deferred, &o.EffectivenessReason, &o.EffectivenessNote, &o.EffectivenessSource); err != nil {
		return o, err
	}
	if deferred.Valid {
		o.EffectivenessDeferredUntil = &deferred.Time
	}
	return o, nil
}
