package ops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"huntdesk-ops/config"
	"huntdesk-ops/core/rbac"
	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"
)

// ErrForbidden marks a transition the actor's roles do not permit.
var ErrForbidden = errors.New("forbidden")

// ErrBadTransition marks a transition the state machine does not allow.
var ErrBadTransition = errors.New("transition not allowed")

// Actor is the operator behind a command.
type Actor struct {
	UserID   int64
	Username string
	Roles    []string
}

// CaseService drives the per-request workflow. Cases materialize lazily on
// first reference; closed is terminal and never reopened here. Every
// transition lands in the append-only case audit; audit failures are logged
// and never fail the primary write.
type CaseService struct {
	cases  store.CasesStore
	policy *rbac.Policy
	sender WebhookSender
	cfg    config.CasesConfig
	log    *utils.Logger
}

func NewCaseService(cases store.CasesStore, policy *rbac.Policy, sender WebhookSender, cfg config.CasesConfig, log *utils.Logger) *CaseService {
	return &CaseService{cases: cases, policy: policy, sender: sender, cfg: cfg, log: log}
}

// Get materializes the case when it does not exist yet.
func (s *CaseService) Get(ctx context.Context, requestID string, now time.Time) (*store.CaseWorkflow, error) {
	priority := s.defaultPriority()
	deadline := s.slaDeadline(priority, now)
	return s.cases.GetOrCreateCase(ctx, requestID, priority, deadline)
}

func (s *CaseService) List(ctx context.Context, filter store.CaseFilter) ([]store.CaseWorkflow, error) {
	return s.cases.ListCases(ctx, filter)
}

// Workload counts active (non-closed) cases per assignee.
func (s *CaseService) Workload(ctx context.Context) (map[int64]int, error) {
	return s.cases.ActiveCaseCounts(ctx)
}

// Assign sets the assignee. Admin-tier only; a plain ops role may view
// but never assign.
func (s *CaseService) Assign(ctx context.Context, requestID string, targetUserID int64, actor Actor, now time.Time) (*store.CaseWorkflow, error) {
	if !s.policy.Allowed(actor.Roles, rbac.PermCasesAssign) {
		return nil, ErrForbidden
	}
	if _, err := s.Get(ctx, requestID, now); err != nil {
		return nil, err
	}
	if err := s.cases.AssignCase(ctx, requestID, targetUserID, now); err != nil {
		return nil, err
	}
	s.audit(ctx, requestID, "assign", actor, map[string]any{"assigned_to": targetUserID})
	return s.cases.GetCase(ctx, requestID)
}

// Claim is self-assignment: any operator may take an unclaimed case or
// re-claim their own. A case held by someone else returns ErrConflict.
func (s *CaseService) Claim(ctx context.Context, requestID string, actor Actor, now time.Time) (*store.CaseWorkflow, error) {
	if _, err := s.Get(ctx, requestID, now); err != nil {
		return nil, err
	}
	if err := s.cases.ClaimCase(ctx, requestID, actor.UserID, now); err != nil {
		return nil, err
	}
	s.audit(ctx, requestID, "claim", actor, nil)
	return s.cases.GetCase(ctx, requestID)
}

// Release clears the assignee without touching status.
func (s *CaseService) Release(ctx context.Context, requestID string, actor Actor, now time.Time) (*store.CaseWorkflow, error) {
	if _, err := s.Get(ctx, requestID, now); err != nil {
		return nil, err
	}
	if err := s.cases.ReleaseCase(ctx, requestID, now); err != nil {
		return nil, err
	}
	s.audit(ctx, requestID, "release", actor, nil)
	return s.cases.GetCase(ctx, requestID)
}

// Transition moves the case to status. Closed cases reject everything;
// re-applying the current status is a benign no-op.
func (s *CaseService) Transition(ctx context.Context, requestID, status string, actor Actor, now time.Time) (*store.CaseWorkflow, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !validCaseStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrBadTransition, status)
	}
	current, err := s.Get(ctx, requestID, now)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if current.Status == store.CaseStatusClosed {
		return nil, fmt.Errorf("%w: case is closed", ErrBadTransition)
	}
	if err := s.cases.SetCaseStatus(ctx, requestID, status, now); err != nil {
		return nil, err
	}
	s.audit(ctx, requestID, "status:"+status, actor, map[string]any{"from": current.Status})
	if status == store.CaseStatusResolved || status == store.CaseStatusClosed {
		s.notify(requestID, status, now)
	}
	return s.cases.GetCase(ctx, requestID)
}

// SetPriority changes priority and recomputes the SLA deadline.
func (s *CaseService) SetPriority(ctx context.Context, requestID, priority string, actor Actor, now time.Time) (*store.CaseWorkflow, error) {
	priority = strings.ToLower(strings.TrimSpace(priority))
	if !validPriority(priority) {
		return nil, fmt.Errorf("invalid priority %q", priority)
	}
	if _, err := s.Get(ctx, requestID, now); err != nil {
		return nil, err
	}
	deadline := s.slaDeadline(priority, now)
	if err := s.cases.SetCasePriority(ctx, requestID, priority, deadline, now); err != nil {
		return nil, err
	}
	s.audit(ctx, requestID, "priority:"+priority, actor, nil)
	return s.cases.GetCase(ctx, requestID)
}

// AddNote appends an operator note and refreshes lastTouchedAt.
func (s *CaseService) AddNote(ctx context.Context, requestID, body string, actor Actor, now time.Time) (*store.CaseNote, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("empty note")
	}
	if _, err := s.Get(ctx, requestID, now); err != nil {
		return nil, err
	}
	note := &store.CaseNote{
		RequestID: requestID,
		Body:      body,
		CreatedBy: MaskActor(actor.Username),
		CreatedAt: now.UTC(),
	}
	id, err := s.cases.AddCaseNote(ctx, note)
	if err != nil {
		return nil, err
	}
	note.ID = id
	if err := s.cases.TouchCase(ctx, requestID, now); err != nil && s.log != nil {
		s.log.Errorf("case touch %s: %v", requestID, err)
	}
	return note, nil
}

func (s *CaseService) Notes(ctx context.Context, requestID string) ([]store.CaseNote, error) {
	return s.cases.ListCaseNotes(ctx, requestID)
}

func (s *CaseService) Audit(ctx context.Context, requestID string, limit int) ([]store.CaseAuditEntry, error) {
	return s.cases.ListCaseAudit(ctx, requestID, limit)
}

// AddReasonSource merges one queue explanation into the case and refreshes
// lastTouchedAt. The case materializes if needed.
func (s *CaseService) AddReasonSource(ctx context.Context, src store.CaseReasonSource, now time.Time) error {
	if _, err := s.Get(ctx, src.RequestID, now); err != nil {
		return err
	}
	if src.LastSeenAt.IsZero() {
		src.LastSeenAt = now.UTC()
	}
	if err := s.cases.UpsertQueueSource(ctx, &src); err != nil {
		return err
	}
	if err := s.cases.TouchCase(ctx, src.RequestID, now); err != nil && s.log != nil {
		s.log.Errorf("case touch %s: %v", src.RequestID, err)
	}
	return nil
}

// Reason resolves the case's current queue explanation from its merged
// sources, or nil when none exist.
func (s *CaseService) Reason(ctx context.Context, requestID string, now time.Time) (*store.CaseReason, []store.CaseReasonSource, error) {
	sources, err := s.cases.ListQueueSources(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	merged := MergeReasonSources(sources)
	return ResolveCaseReason(merged, now), merged, nil
}

func (s *CaseService) audit(ctx context.Context, requestID, action string, actor Actor, meta map[string]any) {
	entry := &store.CaseAuditEntry{
		RequestID: requestID,
		Action:    action,
		Actor:     MaskActor(actor.Username),
		CreatedAt: time.Now().UTC(),
	}
	if len(meta) > 0 {
		raw, _ := json.Marshal(meta)
		entry.Meta = string(raw)
	}
	if _, err := s.cases.AddCaseAudit(ctx, entry); err != nil && s.log != nil {
		s.log.Errorf("case audit %s %s: %v", requestID, action, err)
	}
}

// notify is fire and forget with its own timeout; a push failure never
// fails the transition.
func (s *CaseService) notify(requestID, status string, now time.Time) {
	if s.sender == nil {
		return
	}
	event := NotifyEvent{
		Kind:      "case_" + status,
		RequestID: requestID,
		Title:     fmt.Sprintf("Case %s %s", requestID, status),
		At:        now.UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.sender.Send(ctx, event); err != nil && s.log != nil {
			s.log.Errorf("case notify %s: %v", requestID, err)
		}
	}()
}

func (s *CaseService) defaultPriority() string {
	if validPriority(s.cfg.DefaultPriority) {
		return s.cfg.DefaultPriority
	}
	return "p3"
}

func (s *CaseService) slaDeadline(priority string, now time.Time) *time.Time {
	hours := 0
	switch priority {
	case "p1":
		hours = s.cfg.SLAHoursP1
	case "p2":
		hours = s.cfg.SLAHoursP2
	case "p3":
		hours = s.cfg.SLAHoursP3
	case "p4":
		hours = s.cfg.SLAHoursP4
	}
	if hours <= 0 {
		return nil
	}
	deadline := now.UTC().Add(time.Duration(hours) * time.Hour)
	return &deadline
}

func validCaseStatus(status string) bool {
	switch status {
	case store.CaseStatusOpen, store.CaseStatusInvestigating, store.CaseStatusMonitoring,
		store.CaseStatusWaitingOnUser, store.CaseStatusWaitingOnProvider,
		store.CaseStatusResolved, store.CaseStatusClosed:
		return true
	}
	return false
}

func validPriority(priority string) bool {
	switch priority {
	case "p1", "p2", "p3", "p4":
		return true
	}
	return false
}
