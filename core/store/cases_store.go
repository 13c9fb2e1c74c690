package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CasesStore persists case workflow rows keyed by request id. Rows are
// created lazily and never deleted; closed is the only terminal status.
type CasesStore interface {
	GetCase(ctx context.Context, requestID string) (*CaseWorkflow, error)
	GetOrCreateCase(ctx context.Context, requestID, priority string, slaDeadline *time.Time) (*CaseWorkflow, error)
	ListCases(ctx context.Context, filter CaseFilter) ([]CaseWorkflow, error)
	ActiveCaseCounts(ctx context.Context) (map[int64]int, error)

	AssignCase(ctx context.Context, requestID string, userID int64, now time.Time) error
	ClaimCase(ctx context.Context, requestID string, userID int64, now time.Time) error
	ReleaseCase(ctx context.Context, requestID string, now time.Time) error
	SetCaseStatus(ctx context.Context, requestID, status string, now time.Time) error
	SetCasePriority(ctx context.Context, requestID, priority string, slaDeadline *time.Time, now time.Time) error
	TouchCase(ctx context.Context, requestID string, now time.Time) error

	AddCaseAudit(ctx context.Context, entry *CaseAuditEntry) (int64, error)
	ListCaseAudit(ctx context.Context, requestID string, limit int) ([]CaseAuditEntry, error)

	AddCaseNote(ctx context.Context, note *CaseNote) (int64, error)
	ListCaseNotes(ctx context.Context, requestID string) ([]CaseNote, error)

	UpsertQueueSource(ctx context.Context, src *CaseReasonSource) error
	ListQueueSources(ctx context.Context, requestID string) ([]CaseReasonSource, error)
}

type casesStore struct {
	db *sql.DB
}

func NewCasesStore(db *sql.DB) CasesStore {
	return &casesStore{db: db}
}

const caseColumns = `request_id, status, priority, assigned_to_user_id, claimed_at, resolved_at, closed_at, sla_deadline, last_touched_at, created_at, updated_at`

func (s *casesStore) GetCase(ctx context.Context, requestID string) (*CaseWorkflow, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM case_workflows WHERE request_id=?`, requestID)
	return scanCase(row)
}

func (s *casesStore) GetOrCreateCase(ctx context.Context, requestID, priority string, slaDeadline *time.Time) (*CaseWorkflow, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, errors.New("request id required")
	}
	if strings.TrimSpace(priority) == "" {
		priority = "p3"
	}
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO case_workflows(request_id, status, priority, sla_deadline, last_touched_at, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT (request_id) DO NOTHING`,
		requestID, CaseStatusOpen, priority, nullableTime(slaDeadline), now, now, now); err != nil {
		return nil, err
	}
	return s.GetCase(ctx, requestID)
}

func (s *casesStore) ListCases(ctx context.Context, filter CaseFilter) ([]CaseWorkflow, error) {
	var clauses []string
	var args []any
	if len(filter.StatusIn) > 0 {
		var in []string
		for _, raw := range filter.StatusIn {
			if strings.TrimSpace(raw) != "" {
				in = append(in, strings.TrimSpace(raw))
			}
		}
		if len(in) > 0 {
			clauses = append(clauses, fmt.Sprintf("status IN (%s)", placeholders(len(in))))
			for _, val := range in {
				args = append(args, val)
			}
		}
	} else if filter.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, filter.Status)
	}
	if filter.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, filter.Priority)
	}
	if filter.AssignedTo > 0 {
		clauses = append(clauses, "assigned_to_user_id=?")
		args = append(args, filter.AssignedTo)
	}
	query := `SELECT ` + caseColumns + ` FROM case_workflows`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY last_touched_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CaseWorkflow
	for rows.Next() {
		cw, err := scanCaseRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, cw)
	}
	return res, rows.Err()
}

func (s *casesStore) ActiveCaseCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT assigned_to_user_id, COUNT(*)
		FROM case_workflows
		WHERE status!=? AND assigned_to_user_id IS NOT NULL
		GROUP BY assigned_to_user_id`, CaseStatusClosed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[int64]int{}
	for rows.Next() {
		var userID int64
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, err
		}
		res[userID] = count
	}
	return res, rows.Err()
}

func (s *casesStore) AssignCase(ctx context.Context, requestID string, userID int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE case_workflows
		SET assigned_to_user_id=?, last_touched_at=?, updated_at=?
		WHERE request_id=? AND status!=?`,
		userID, now.UTC(), now.UTC(), strings.TrimSpace(requestID), CaseStatusClosed)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

// ClaimCase sets the assignee only when the case is unassigned or already
// held by the same actor; two concurrent claims get exactly one winner.
func (s *casesStore) ClaimCase(ctx context.Context, requestID string, userID int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE case_workflows
		SET assigned_to_user_id=?, claimed_at=?, last_touched_at=?, updated_at=?
		WHERE request_id=? AND status!=? AND (assigned_to_user_id IS NULL OR assigned_to_user_id=?)`,
		userID, now.UTC(), now.UTC(), now.UTC(), strings.TrimSpace(requestID), CaseStatusClosed, userID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *casesStore) ReleaseCase(ctx context.Context, requestID string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE case_workflows
		SET assigned_to_user_id=NULL, claimed_at=NULL, last_touched_at=?, updated_at=?
		WHERE request_id=? AND status!=?`,
		now.UTC(), now.UTC(), strings.TrimSpace(requestID), CaseStatusClosed)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *casesStore) SetCaseStatus(ctx context.Context, requestID, status string, now time.Time) error {
	ts := now.UTC()
	query := `
		UPDATE case_workflows
		SET status=?, last_touched_at=?, updated_at=?
		WHERE request_id=? AND status!=?`
	args := []any{status, ts, ts, strings.TrimSpace(requestID), CaseStatusClosed}
	switch status {
	case CaseStatusResolved:
		query = `
			UPDATE case_workflows
			SET status=?, resolved_at=?, last_touched_at=?, updated_at=?
			WHERE request_id=? AND status!=?`
		args = []any{status, ts, ts, ts, strings.TrimSpace(requestID), CaseStatusClosed}
	case CaseStatusClosed:
		query = `
			UPDATE case_workflows
			SET status=?, closed_at=?, last_touched_at=?, updated_at=?
			WHERE request_id=? AND status!=?`
		args = []any{status, ts, ts, ts, strings.TrimSpace(requestID), CaseStatusClosed}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *casesStore) SetCasePriority(ctx context.Context, requestID, priority string, slaDeadline *time.Time, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE case_workflows
		SET priority=?, sla_deadline=?, last_touched_at=?, updated_at=?
		WHERE request_id=? AND status!=?`,
		priority, nullableTime(slaDeadline), now.UTC(), now.UTC(), strings.TrimSpace(requestID), CaseStatusClosed)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

// TouchCase only ever moves last_touched_at forward.
func (s *casesStore) TouchCase(ctx context.Context, requestID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE case_workflows
		SET last_touched_at=CASE WHEN last_touched_at < ? THEN ? ELSE last_touched_at END, updated_at=?
		WHERE request_id=?`,
		now.UTC(), now.UTC(), now.UTC(), strings.TrimSpace(requestID))
	return err
}

func (s *casesStore) AddCaseAudit(ctx context.Context, entry *CaseAuditEntry) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO case_audit(request_id, action, actor, meta, created_at)
		VALUES(?,?,?,?,?)`,
		strings.TrimSpace(entry.RequestID), strings.TrimSpace(entry.Action), strings.TrimSpace(entry.Actor), entry.Meta, now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	entry.ID = id
	entry.CreatedAt = now
	return id, nil
}

func (s *casesStore) ListCaseAudit(ctx context.Context, requestID string, limit int) ([]CaseAuditEntry, error) {
	query := `
		SELECT id, request_id, action, actor, meta, created_at
		FROM case_audit WHERE request_id=? ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, strings.TrimSpace(requestID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CaseAuditEntry
	for rows.Next() {
		var e CaseAuditEntry
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Action, &e.Actor, &e.Meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *casesStore) AddCaseNote(ctx context.Context, note *CaseNote) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO case_notes(request_id, body, created_by, created_at)
		VALUES(?,?,?,?)`,
		strings.TrimSpace(note.RequestID), note.Body, strings.TrimSpace(note.CreatedBy), now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	note.ID = id
	note.CreatedAt = now
	return id, nil
}

func (s *casesStore) ListCaseNotes(ctx context.Context, requestID string) ([]CaseNote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, body, created_by, created_at
		FROM case_notes WHERE request_id=? ORDER BY created_at DESC, id DESC`, strings.TrimSpace(requestID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CaseNote
	for rows.Next() {
		var n CaseNote
		if err := rows.Scan(&n.ID, &n.RequestID, &n.Body, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// UpsertQueueSource merges by (code, primary_source): counts sum and
// last_seen_at keeps the max, so replays and out-of-order arrivals converge.
func (s *casesStore) UpsertQueueSource(ctx context.Context, src *CaseReasonSource) error {
	count := src.Count
	if count <= 0 {
		count = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO case_queue_sources(request_id, code, primary_source, count, detail, last_seen_at, window_label)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT (request_id, code, primary_source)
		DO UPDATE SET
			count=case_queue_sources.count+excluded.count,
			detail=CASE WHEN excluded.last_seen_at >= case_queue_sources.last_seen_at THEN excluded.detail ELSE case_queue_sources.detail END,
			window_label=CASE WHEN excluded.last_seen_at >= case_queue_sources.last_seen_at THEN excluded.window_label ELSE case_queue_sources.window_label END,
			last_seen_at=MAX(case_queue_sources.last_seen_at, excluded.last_seen_at)`,
		strings.TrimSpace(src.RequestID), strings.ToLower(strings.TrimSpace(src.Code)), strings.TrimSpace(src.PrimarySource),
		count, src.Detail, src.LastSeenAt.UTC(), src.WindowLabel)
	return err
}

func (s *casesStore) ListQueueSources(ctx context.Context, requestID string) ([]CaseReasonSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, code, primary_source, count, detail, last_seen_at, window_label
		FROM case_queue_sources WHERE request_id=? ORDER BY last_seen_at DESC, id DESC`, strings.TrimSpace(requestID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []CaseReasonSource
	for rows.Next() {
		var src CaseReasonSource
		if err := rows.Scan(&src.ID, &src.RequestID, &src.Code, &src.PrimarySource, &src.Count, &src.Detail, &src.LastSeenAt, &src.WindowLabel); err != nil {
			return nil, err
		}
		res = append(res, src)
	}
	return res, rows.Err()
}

func scanCase(row *sql.Row) (*CaseWorkflow, error) {
	var cw CaseWorkflow
	var assigned sql.NullInt64
	var claimedAt, resolvedAt, closedAt, slaDeadline sql.NullTime
	if err := row.Scan(&cw.RequestID, &cw.Status, &cw.Priority, &assigned, &claimedAt, &resolvedAt, &closedAt, &slaDeadline, &cw.LastTouchedAt, &cw.CreatedAt, &cw.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	fillCaseNullables(&cw, assigned, claimedAt, resolvedAt, closedAt, slaDeadline)
	return &cw, nil
}

func scanCaseRow(rows *sql.Rows) (CaseWorkflow, error) {
	var cw CaseWorkflow
	var assigned sql.NullInt64
	var claimedAt, resolvedAt, closedAt, slaDeadline sql.NullTime
	if err := rows.Scan(&cw.RequestID, &cw.Status, &cw.Priority, &assigned, &claimedAt, &resolvedAt, &closedAt, &slaDeadline, &cw.LastTouchedAt, &cw.CreatedAt, &cw.UpdatedAt); err != nil {
		return cw, err
	}
	fillCaseNullables(&cw, assigned, claimedAt, resolvedAt, closedAt, slaDeadline)
	return cw, nil
}

func fillCaseNullables(cw *CaseWorkflow, assigned sql.NullInt64, claimedAt, resolvedAt, closedAt, slaDeadline sql.NullTime) {
	if assigned.Valid {
		cw.AssignedToUserID = &assigned.Int64
	}
	if claimedAt.Valid {
		cw.ClaimedAt = &claimedAt.Time
	}
	if resolvedAt.Valid {
		cw.ResolvedAt = &resolvedAt.Time
	}
	if closedAt.Valid {
		cw.ClosedAt = &closedAt.Time
	}
	if slaDeadline.Valid {
		cw.SLADeadline = &slaDeadline.Time
	}
}
