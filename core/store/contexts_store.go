package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ContextsStore persists fused request identities. Merges run as optimistic
// compare-and-set on version; the user_id column is additionally guarded in
// SQL so a racing writer can never replace an established identity.
type ContextsStore interface {
	GetContext(ctx context.Context, requestID string) (*RequestContext, error)
	CreateContext(ctx context.Context, rc *RequestContext) error
	UpdateContext(ctx context.Context, rc *RequestContext, expectedVersion int) error
	ListContexts(ctx context.Context, limit int) ([]RequestContext, error)
}

type contextsStore struct {
	db *sql.DB
}

func NewContextsStore(db *sql.DB) ContextsStore {
	return &contextsStore{db: db}
}

func (s *contextsStore) GetContext(ctx context.Context, requestID string) (*RequestContext, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT request_id, user_id, email_masked, source, confidence, sources_json, first_seen_at, last_seen_at, last_seen_path, meta_json, version
		FROM request_contexts WHERE request_id=?`, requestID)
	return scanRequestContext(row)
}

func (s *contextsStore) CreateContext(ctx context.Context, rc *RequestContext) error {
	if rc.Version <= 0 {
		rc.Version = 1
	}
	if rc.Confidence == "" {
		rc.Confidence = ConfidenceLow
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO request_contexts(request_id, user_id, email_masked, source, confidence, sources_json, first_seen_at, last_seen_at, last_seen_path, meta_json, version)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (request_id) DO NOTHING`,
		strings.TrimSpace(rc.RequestID), rc.UserID, rc.EmailMasked, rc.Source, rc.Confidence,
		timeMapToJSON(rc.Sources), rc.FirstSeenAt.UTC(), rc.LastSeenAt.UTC(), rc.LastSeenPath,
		mapToJSON(rc.Meta), rc.Version)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *contextsStore) UpdateContext(ctx context.Context, rc *RequestContext, expectedVersion int) error {
	// user_id only transitions from empty; a concurrent writer that lost the
	// race keeps the winner's identity even if its own CAS succeeds later.
	res, err := s.db.ExecContext(ctx, `
		UPDATE request_contexts SET
			user_id=CASE WHEN user_id='' THEN ? ELSE user_id END,
			email_masked=CASE WHEN email_masked='' THEN ? ELSE email_masked END,
			source=?,
			confidence=?,
			sources_json=?,
			first_seen_at=CASE WHEN first_seen_at<=? THEN first_seen_at ELSE ? END,
			last_seen_at=?,
			last_seen_path=?,
			meta_json=?,
			version=version+1
		WHERE request_id=? AND version=?`,
		rc.UserID, rc.EmailMasked, rc.Source, rc.Confidence, timeMapToJSON(rc.Sources),
		rc.FirstSeenAt.UTC(), rc.FirstSeenAt.UTC(),
		rc.LastSeenAt.UTC(), rc.LastSeenPath, mapToJSON(rc.Meta),
		strings.TrimSpace(rc.RequestID), expectedVersion)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	rc.Version = expectedVersion + 1
	return nil
}

func (s *contextsStore) ListContexts(ctx context.Context, limit int) ([]RequestContext, error) {
	query := `
		SELECT request_id, user_id, email_masked, source, confidence, sources_json, first_seen_at, last_seen_at, last_seen_path, meta_json, version
		FROM request_contexts ORDER BY last_seen_at DESC`
	if limit > 0 {
		query += " LIMIT ?"
	}
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, query, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RequestContext
	for rows.Next() {
		rc, err := scanRequestContextRow(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rc)
	}
	return res, rows.Err()
}

func scanRequestContext(row *sql.Row) (*RequestContext, error) {
	var rc RequestContext
	var sourcesRaw, metaRaw string
	if err := row.Scan(&rc.RequestID, &rc.UserID, &rc.EmailMasked, &rc.Source, &rc.Confidence, &sourcesRaw, &rc.FirstSeenAt, &rc.LastSeenAt, &rc.LastSeenPath, &metaRaw, &rc.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rc.Sources = parseTimeMap(sourcesRaw)
	rc.Meta = parseStringMap(metaRaw)
	return &rc, nil
}

func scanRequestContextRow(rows *sql.Rows) (RequestContext, error) {
	var rc RequestContext
	var sourcesRaw, metaRaw string
	if err := rows.Scan(&rc.RequestID, &rc.UserID, &rc.EmailMasked, &rc.Source, &rc.Confidence, &sourcesRaw, &rc.FirstSeenAt, &rc.LastSeenAt, &rc.LastSeenPath, &metaRaw, &rc.Version); err != nil {
		return rc, err
	}
	rc.Sources = parseTimeMap(sourcesRaw)
	rc.Meta = parseStringMap(metaRaw)
	return rc, nil
}
