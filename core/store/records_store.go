package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// RecordsStore is the durable event stream every windowed computation reads.
// Records are append-only; retention pruning is the only delete path.
type RecordsStore interface {
	AddRecord(ctx context.Context, rec *IncidentRecord) (int64, error)
	ListRecords(ctx context.Context, filter IncidentRecordFilter) ([]IncidentRecord, error)
	DeleteRecordsBefore(ctx context.Context, before time.Time) (int64, error)
}

type recordsStore struct {
	db *sql.DB
}

func NewRecordsStore(db *sql.DB) RecordsStore {
	return &recordsStore{db: db}
}

func (s *recordsStore) AddRecord(ctx context.Context, rec *IncidentRecord) (int64, error) {
	now := time.Now().UTC()
	if rec.At.IsZero() {
		rec.At = now
	} else {
		rec.At = rec.At.UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_records(request_id, at, surface, code, message, user_id, email_masked, event_name, flow, path, return_to, context_json, created_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.RequestID, rec.At, rec.Surface, rec.Code, rec.Message, rec.UserID, rec.EmailMasked,
		rec.EventName, rec.Flow, rec.Path, rec.ReturnTo, mapToJSON(rec.Context), now)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	rec.ID = id
	rec.CreatedAt = now
	return id, nil
}

func (s *recordsStore) ListRecords(ctx context.Context, filter IncidentRecordFilter) ([]IncidentRecord, error) {
	var clauses []string
	var args []any
	if filter.Surface != "" {
		clauses = append(clauses, "surface=?")
		args = append(args, filter.Surface)
	}
	if filter.Code != "" {
		clauses = append(clauses, "code=?")
		args = append(args, filter.Code)
	}
	if filter.Flow != "" {
		clauses = append(clauses, "flow=?")
		args = append(args, filter.Flow)
	}
	if filter.RequestID != "" {
		clauses = append(clauses, "request_id=?")
		args = append(args, filter.RequestID)
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, filter.UserID)
	}
	if filter.EventName != "" {
		clauses = append(clauses, "event_name=?")
		args = append(args, filter.EventName)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "at>=?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		clauses = append(clauses, "at<?")
		args = append(args, filter.Until.UTC())
	}
	query := `SELECT id, request_id, at, surface, code, message, user_id, email_masked, event_name, flow, path, return_to, context_json, created_at FROM incident_records`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []IncidentRecord
	for rows.Next() {
		var rec IncidentRecord
		var contextRaw string
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.At, &rec.Surface, &rec.Code, &rec.Message, &rec.UserID, &rec.EmailMasked, &rec.EventName, &rec.Flow, &rec.Path, &rec.ReturnTo, &contextRaw, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Context = parseStringMap(contextRaw)
		res = append(res, rec)
	}
	return res, rows.Err()
}

func (s *recordsStore) DeleteRecordsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM incident_records WHERE at < ?`, before.UTC())
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
