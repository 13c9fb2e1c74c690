package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"huntdesk-ops/config"
	"huntdesk-ops/core/store"
)

// AlertService is the ownership and snooze ledger for alert keys. State
// is keyed per (alertKey, windowLabel) so the same alert carries
// independent state per evaluation window.
type AlertService struct {
	alerts store.AlertsStore
	cfg    config.AlertsConfig
}

func NewAlertService(alerts store.AlertsStore, cfg config.AlertsConfig) *AlertService {
	return &AlertService{alerts: alerts, cfg: cfg}
}

// Claim takes time-boxed ownership of an alert. Re-claiming your own
// active claim refreshes the TTL; claiming someone else's active claim
// returns store.ErrConflict.
func (s *AlertService) Claim(ctx context.Context, alertKey, windowLabel string, actorID int64, now time.Time) (*store.AlertOwnership, error) {
	alertKey = strings.TrimSpace(alertKey)
	if alertKey == "" {
		return nil, fmt.Errorf("claim: empty alert key")
	}
	own := &store.AlertOwnership{
		AlertKey:    alertKey,
		WindowLabel: windowLabel,
		ClaimedBy:   actorID,
		ClaimedAt:   now.UTC(),
		ExpiresAt:   now.UTC().Add(s.claimTTL()),
	}
	if err := s.alerts.ClaimOwnership(ctx, own); err != nil {
		return nil, err
	}
	return own, nil
}

func (s *AlertService) Release(ctx context.Context, alertKey, windowLabel string) error {
	return s.alerts.ReleaseOwnership(ctx, alertKey, windowLabel)
}

// Ownership returns the active claim, or nil when absent or expired.
func (s *AlertService) Ownership(ctx context.Context, alertKey, windowLabel string, now time.Time) (*store.AlertOwnership, error) {
	return s.alerts.GetOwnership(ctx, alertKey, windowLabel, now)
}

// OwnershipMap lists all active claims keyed by "alertKey|windowLabel".
func (s *AlertService) OwnershipMap(ctx context.Context, now time.Time) (map[string]store.AlertOwnership, error) {
	list, err := s.alerts.ListOwnership(ctx, now)
	if err != nil {
		return nil, err
	}
	res := make(map[string]store.AlertOwnership, len(list))
	for _, own := range list {
		res[own.AlertKey+"|"+own.WindowLabel] = own
	}
	return res, nil
}

// Snooze suppresses an alert until now+minutes, overwriting any earlier
// snooze for the same key and window.
func (s *AlertService) Snooze(ctx context.Context, alertKey, windowLabel string, minutes int, now time.Time) (*store.AlertSnooze, error) {
	alertKey = strings.TrimSpace(alertKey)
	if alertKey == "" {
		return nil, fmt.Errorf("snooze: empty alert key")
	}
	if minutes <= 0 {
		minutes = defaultSnoozeMinutes
	}
	if max := s.cfg.MaxSnoozeMinutes; max > 0 && minutes > max {
		minutes = max
	}
	snooze := &store.AlertSnooze{
		AlertKey:    alertKey,
		WindowLabel: windowLabel,
		UntilAt:     now.UTC().Add(time.Duration(minutes) * time.Minute),
	}
	if err := s.alerts.Snooze(ctx, snooze); err != nil {
		return nil, err
	}
	return snooze, nil
}

func (s *AlertService) Unsnooze(ctx context.Context, alertKey, windowLabel string) error {
	return s.alerts.Unsnooze(ctx, alertKey, windowLabel)
}

// Snoozes lists all snoozes still in effect.
func (s *AlertService) Snoozes(ctx context.Context, now time.Time) ([]store.AlertSnooze, error) {
	return s.alerts.ListSnoozes(ctx, now)
}

// Snoozed reports whether the alert is currently suppressed.
func (s *AlertService) Snoozed(ctx context.Context, alertKey, windowLabel string, now time.Time) (bool, error) {
	list, err := s.alerts.ListSnoozes(ctx, now)
	if err != nil {
		return false, err
	}
	for _, sn := range list {
		if sn.AlertKey == alertKey && sn.WindowLabel == windowLabel {
			return true, nil
		}
	}
	return false, nil
}

const defaultSnoozeMinutes = 60

func (s *AlertService) claimTTL() time.Duration {
	if s.cfg.ClaimTTLMinutes > 0 {
		return time.Duration(s.cfg.ClaimTTLMinutes) * time.Minute
	}
	return 30 * time.Minute
}
