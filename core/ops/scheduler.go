package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"huntdesk-ops/config"
	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"
)

// Scheduler owns the cron jobs: incident retention pruning and the
// effectiveness due-review scan. Side work only; every on-demand read
// path stays correct without it.
type Scheduler struct {
	cron     *cron.Cron
	records  store.RecordsStore
	outcomes store.OutcomesStore
	sender   WebhookSender
	cfg      *config.AppConfig
	log      *utils.Logger
}

func NewScheduler(records store.RecordsStore, outcomes store.OutcomesStore, sender WebhookSender, cfg *config.AppConfig, log *utils.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		records:  records,
		outcomes: outcomes,
		sender:   sender,
		cfg:      cfg,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if !s.cfg.Scheduler.Enabled {
		return nil
	}
	if spec := s.cfg.Scheduler.RetentionSpec; spec != "" {
		if _, err := s.cron.AddFunc(spec, s.pruneRecords); err != nil {
			return fmt.Errorf("retention job: %w", err)
		}
	}
	if spec := s.cfg.Scheduler.DueScanSpec; spec != "" {
		if _, err := s.cron.AddFunc(spec, s.scanDueReviews); err != nil {
			return fmt.Errorf("due scan job: %w", err)
		}
	}
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) pruneRecords() {
	days := s.cfg.Correlation.RetentionDays
	if days <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	n, err := s.records.DeleteRecordsBefore(ctx, cutoff)
	if err != nil {
		s.log.Errorf("retention prune: %v", err)
		return
	}
	if n > 0 {
		s.log.Printf("retention pruned %d incident records older than %s", n, cutoff.Format(time.RFC3339))
	}
}

func (s *Scheduler) scanDueReviews() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	now := time.Now().UTC()
	outcomes, err := s.outcomes.ListOutcomes(ctx, store.OutcomeFilter{})
	if err != nil {
		s.log.Errorf("due scan: %v", err)
		return
	}
	report := ComputeDue(outcomes, s.cfg.ReviewAge(), now)
	if len(report.DueItems) == 0 || s.sender == nil {
		return
	}
	event := NotifyEvent{
		Kind:   "reviews_due",
		Title:  fmt.Sprintf("%d remediation reviews due", len(report.DueItems)),
		Detail: dueDetail(report),
		At:     now,
	}
	if err := s.sender.Send(ctx, event); err != nil {
		s.log.Errorf("due scan notify: %v", err)
	}
}

func dueDetail(report DueReport) string {
	detail := ""
	for i, item := range report.DueItems {
		if i >= 5 {
			detail += fmt.Sprintf(" and %d more", len(report.DueItems)-i)
			break
		}
		if i > 0 {
			detail += ", "
		}
		detail += fmt.Sprintf("#%d %s", item.ID, item.Code)
	}
	return detail
}
