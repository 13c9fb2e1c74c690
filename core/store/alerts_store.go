package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// AlertsStore keeps the ownership and snooze ledgers. Expiry is evaluated
// lazily at read time; there is no background sweep.
type AlertsStore interface {
	ClaimOwnership(ctx context.Context, own *AlertOwnership) error
	ReleaseOwnership(ctx context.Context, alertKey, windowLabel string) error
	GetOwnership(ctx context.Context, alertKey, windowLabel string, now time.Time) (*AlertOwnership, error)
	ListOwnership(ctx context.Context, now time.Time) ([]AlertOwnership, error)

	Snooze(ctx context.Context, sn *AlertSnooze) error
	Unsnooze(ctx context.Context, alertKey, windowLabel string) error
	ListSnoozes(ctx context.Context, now time.Time) ([]AlertSnooze, error)
}

type alertsStore struct {
	db *sql.DB
}

func NewAlertsStore(db *sql.DB) AlertsStore {
	return &alertsStore{db: db}
}

// ClaimOwnership is a single conditional upsert: it wins if the slot is
// free, expired, or already held by the same actor; otherwise ErrConflict.
func (s *alertsStore) ClaimOwnership(ctx context.Context, own *AlertOwnership) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_ownership(alert_key, window_label, claimed_by, claimed_at, expires_at)
		VALUES(?,?,?,?,?)
		ON CONFLICT (alert_key, window_label)
		DO UPDATE SET
			claimed_by=excluded.claimed_by,
			claimed_at=excluded.claimed_at,
			expires_at=excluded.expires_at
		WHERE alert_ownership.expires_at<=excluded.claimed_at OR alert_ownership.claimed_by=excluded.claimed_by`,
		strings.TrimSpace(own.AlertKey), strings.TrimSpace(own.WindowLabel),
		own.ClaimedBy, own.ClaimedAt.UTC(), own.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *alertsStore) ReleaseOwnership(ctx context.Context, alertKey, windowLabel string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM alert_ownership WHERE alert_key=? AND window_label=?`,
		strings.TrimSpace(alertKey), strings.TrimSpace(windowLabel))
	return err
}

func (s *alertsStore) GetOwnership(ctx context.Context, alertKey, windowLabel string, now time.Time) (*AlertOwnership, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT alert_key, window_label, claimed_by, claimed_at, expires_at
		FROM alert_ownership WHERE alert_key=? AND window_label=? AND expires_at>?`,
		strings.TrimSpace(alertKey), strings.TrimSpace(windowLabel), now.UTC())
	var own AlertOwnership
	if err := row.Scan(&own.AlertKey, &own.WindowLabel, &own.ClaimedBy, &own.ClaimedAt, &own.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &own, nil
}

func (s *alertsStore) ListOwnership(ctx context.Context, now time.Time) ([]AlertOwnership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_key, window_label, claimed_by, claimed_at, expires_at
		FROM alert_ownership WHERE expires_at>? ORDER BY claimed_at DESC`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AlertOwnership
	for rows.Next() {
		var own AlertOwnership
		if err := rows.Scan(&own.AlertKey, &own.WindowLabel, &own.ClaimedBy, &own.ClaimedAt, &own.ExpiresAt); err != nil {
			return nil, err
		}
		res = append(res, own)
	}
	return res, rows.Err()
}

func (s *alertsStore) Snooze(ctx context.Context, sn *AlertSnooze) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_snoozes(alert_key, window_label, until_at)
		VALUES(?,?,?)
		ON CONFLICT (alert_key, window_label)
		DO UPDATE SET until_at=excluded.until_at`,
		strings.TrimSpace(sn.AlertKey), strings.TrimSpace(sn.WindowLabel), sn.UntilAt.UTC())
	return err
}

func (s *alertsStore) Unsnooze(ctx context.Context, alertKey, windowLabel string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM alert_snoozes WHERE alert_key=? AND window_label=?`,
		strings.TrimSpace(alertKey), strings.TrimSpace(windowLabel))
	return err
}

func (s *alertsStore) ListSnoozes(ctx context.Context, now time.Time) ([]AlertSnooze, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_key, window_label, until_at
		FROM alert_snoozes WHERE until_at>? ORDER BY until_at ASC`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []AlertSnooze
	for rows.Next() {
		var sn AlertSnooze
		if err := rows.Scan(&sn.AlertKey, &sn.WindowLabel, &sn.UntilAt); err != nil {
			return nil, err
		}
		res = append(res, sn)
	}
	return res, rows.Err()
}
