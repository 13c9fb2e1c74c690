package store

import "time"

// Surfaces a normalized incident can originate from. Anything else is
// coerced to "other" during normalization.
const (
	SurfaceBilling     = "billing"
	SurfacePortal      = "portal"
	SurfaceCheckout    = "checkout"
	SurfaceOutcomes    = "outcomes"
	SurfaceOutreach    = "outreach"
	SurfaceReferrals   = "referrals"
	SurfaceOther       = "other"
	SurfaceDiagnostics = "diagnostics"
)

// IncidentRecord is the canonical shape every raw operational signal is
// normalized into. Immutable once written.
type IncidentRecord struct {
	ID          int64             `json:"id"`
	RequestID   string            `json:"request_id,omitempty"`
	At          time.Time         `json:"at"`
	Surface     string            `json:"surface"`
	Code        string            `json:"code,omitempty"`
	Message     string            `json:"message,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	EmailMasked string            `json:"email_masked,omitempty"`
	EventName   string            `json:"event_name,omitempty"`
	Flow        string            `json:"flow,omitempty"`
	Path        string            `json:"path,omitempty"`
	ReturnTo    string            `json:"return_to,omitempty"`
	Context     map[string]string `json:"context,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type IncidentRecordFilter struct {
	Surface   string
	Code      string
	Flow      string
	RequestID string
	UserID    string
	EventName string
	Since     time.Time
	Until     time.Time
	Limit     int
}

// RequestContext is the fused identity view for one request id.
// Once UserID is set it is never replaced by a different value.
type RequestContext struct {
	RequestID    string               `json:"request_id"`
	UserID       string               `json:"user_id,omitempty"`
	EmailMasked  string               `json:"email_masked,omitempty"`
	Source       string               `json:"source"`
	Confidence   string               `json:"confidence"`
	Sources      map[string]time.Time `json:"sources"`
	FirstSeenAt  time.Time            `json:"first_seen_at"`
	LastSeenAt   time.Time            `json:"last_seen_at"`
	LastSeenPath string               `json:"last_seen_path,omitempty"`
	Meta         map[string]string    `json:"meta,omitempty"`
	Version      int                  `json:"version"`
}

const (
	ConfidenceLow    = "low"
	ConfidenceMedium = "medium"
	ConfidenceHigh   = "high"
)

// Case workflow statuses. open is initial, closed is terminal; everything
// except closed counts as active for workload purposes.
const (
	CaseStatusOpen              = "open"
	CaseStatusInvestigating     = "investigating"
	CaseStatusMonitoring        = "monitoring"
	CaseStatusWaitingOnUser     = "waiting_on_user"
	CaseStatusWaitingOnProvider = "waiting_on_provider"
	CaseStatusResolved          = "resolved"
	CaseStatusClosed            = "closed"
)

type CaseWorkflow struct {
	RequestID        string     `json:"request_id"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	AssignedToUserID *int64     `json:"assigned_to_user_id,omitempty"`
	ClaimedAt        *time.Time `json:"claimed_at,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	SLADeadline      *time.Time `json:"sla_deadline,omitempty"`
	LastTouchedAt    time.Time  `json:"last_touched_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type CaseAuditEntry struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Meta      string    `json:"meta,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type CaseNote struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id"`
	Body      string    `json:"body"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// CaseReasonSource is one contributing explanation for why a request id sits
// in the operator queue.
type CaseReasonSource struct {
	ID            int64     `json:"id,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	Code          string    `json:"code"`
	PrimarySource string    `json:"primary_source"`
	Count         int       `json:"count"`
	Detail        string    `json:"detail,omitempty"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	WindowLabel   string    `json:"window_label,omitempty"`
}

type CaseReason struct {
	Code          string    `json:"code"`
	Title         string    `json:"title"`
	Detail        string    `json:"detail,omitempty"`
	PrimarySource string    `json:"primary_source"`
	ComputedAt    time.Time `json:"computed_at"`
}

type CaseFilter struct {
	Status     string
	StatusIn   []string
	Priority   string
	AssignedTo int64
	Limit      int
	Offset     int
}

type AlertOwnership struct {
	AlertKey    string    `json:"alert_key"`
	WindowLabel string    `json:"window_label"`
	ClaimedBy   int64     `json:"claimed_by"`
	ClaimedAt   time.Time `json:"claimed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AlertSnooze struct {
	AlertKey    string    `json:"alert_key"`
	WindowLabel string    `json:"window_label"`
	UntilAt     time.Time `json:"until_at"`
}

const (
	EffectivenessUnknown = "unknown"
	EffectivenessSuccess = "success"
	EffectivenessFail    = "fail"
)

type ResolutionOutcome struct {
	ID                         int64      `json:"id"`
	RequestID                  string     `json:"request_id,omitempty"`
	UserID                     string     `json:"user_id,omitempty"`
	Code                       string     `json:"code"`
	Note                       string     `json:"note,omitempty"`
	ActorMasked                string     `json:"actor_masked"`
	CreatedAt                  time.Time  `json:"created_at"`
	EffectivenessState         string     `json:"effectiveness_state"`
	EffectivenessDeferredUntil *time.Time `json:"effectiveness_deferred_until,omitempty"`
	EffectivenessReason        string     `json:"effectiveness_reason,omitempty"`
	EffectivenessNote          string     `json:"effectiveness_note,omitempty"`
	EffectivenessSource        string     `json:"effectiveness_source,omitempty"`
}

type OutcomeFilter struct {
	State     string
	RequestID string
	Since     time.Time
	Limit     int
}
