package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"huntdesk-ops/config"
	"huntdesk-ops/core/auth"
	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/rbac"
	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"
)

// BackgroundWorker is anything the runtime starts alongside the HTTP
// server and stops on shutdown.
type BackgroundWorker interface {
	Start() error
	Stop()
}

type ServerDeps struct {
	Users    store.UsersStore
	Sessions store.SessionStore
	Audits   store.AuditStore
	Records  store.RecordsStore
	Contexts store.ContextsStore
	Outcomes store.OutcomesStore

	Resolver *ops.Resolver
	Scorer   *ops.Scorer
	Cases    *ops.CaseService
	Alerts   *ops.AlertService
	AckSvc   *ops.AckTokenService
	Sender   ops.WebhookSender
}

type Server struct {
	cfg             *config.AppConfig
	logger          *utils.Logger
	users           store.UsersStore
	sessions        store.SessionStore
	audits          store.AuditStore
	records         store.RecordsStore
	contexts        store.ContextsStore
	outcomes        store.OutcomesStore
	resolver        *ops.Resolver
	scorer          *ops.Scorer
	cases           *ops.CaseService
	alerts          *ops.AlertService
	ackSvc          *ops.AckTokenService
	sender          ops.WebhookSender
	policy          *rbac.Policy
	sessionManager  *auth.SessionManager
	activityTracker *sessionActivity
}

func NewServer(cfg *config.AppConfig, deps ServerDeps, policy *rbac.Policy, sm *auth.SessionManager, logger *utils.Logger) *Server {
	return &Server{
		cfg:             cfg,
		logger:          logger,
		users:           deps.Users,
		sessions:        deps.Sessions,
		audits:          deps.Audits,
		records:         deps.Records,
		contexts:        deps.Contexts,
		outcomes:        deps.Outcomes,
		resolver:        deps.Resolver,
		scorer:          deps.Scorer,
		cases:           deps.Cases,
		alerts:          deps.Alerts,
		ackSvc:          deps.AckSvc,
		sender:          deps.Sender,
		policy:          policy,
		sessionManager:  sm,
		activityTracker: newSessionActivity(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.securityHeadersMiddleware)
	r.Use(s.loggingMiddleware)

	h := s.newRouteHandlers()

	r.Route("/api", func(r chi.Router) {
		r.Use(s.jsonMiddleware)

		r.Post("/auth/login", s.rateLimitMiddleware(h.auth.Login))
		r.Post("/auth/logout", s.withSession(h.auth.Logout))
		r.Get("/auth/me", s.withSession(h.auth.Me))
		r.Post("/auth/ping", s.withSession(h.auth.Ping))

		// Ack tokens are the only path around the session wall: signed,
		// short-lived, single-purpose.
		r.Post("/alerts/ack", h.alerts.Ack)

		r.Get("/health", s.withSession(s.requirePermission(rbac.PermHealthView)(h.health.Snapshot)))

		r.Post("/events", s.withSession(s.requirePermission(rbac.PermEventsIngest)(h.events.Ingest)))
		r.Get("/events", s.withSession(s.requirePermission(rbac.PermIncidentsView)(h.events.List)))
		r.Get("/events/groups", s.withSession(s.requirePermission(rbac.PermIncidentsView)(h.events.Groups)))
		r.Get("/events/correlate", s.withSession(s.requirePermission(rbac.PermIncidentsView)(h.events.Correlate)))
		r.Get("/events/webhook-receipt", s.withSession(s.requirePermission(rbac.PermIncidentsView)(h.events.WebhookReceipt)))
		r.Get("/contexts/{request_id}", s.withSession(s.requirePermission(rbac.PermIncidentsView)(h.events.Context)))

		r.Get("/cases", s.withSession(s.requirePermission(rbac.PermCasesView)(h.cases.List)))
		r.Get("/cases/workload", s.withSession(s.requirePermission(rbac.PermCasesView)(h.cases.Workload)))
		r.Get("/cases/{request_id}", s.withSession(s.requirePermission(rbac.PermCasesView)(h.cases.Get)))
		r.Post("/cases/{request_id}/assign", s.withSession(s.requirePermission(rbac.PermCasesAssign)(h.cases.Assign)))
		r.Post("/cases/{request_id}/claim", s.withSession(s.requirePermission(rbac.PermCasesTransition)(h.cases.Claim)))
		r.Post("/cases/{request_id}/release", s.withSession(s.requirePermission(rbac.PermCasesTransition)(h.cases.Release)))
		r.Post("/cases/{request_id}/status", s.withSession(s.requirePermission(rbac.PermCasesTransition)(h.cases.SetStatus)))
		r.Post("/cases/{request_id}/priority", s.withSession(s.requirePermission(rbac.PermCasesTransition)(h.cases.SetPriority)))
		r.Get("/cases/{request_id}/notes", s.withSession(s.requirePermission(rbac.PermCasesView)(h.cases.Notes)))
		r.Post("/cases/{request_id}/notes", s.withSession(s.requirePermission(rbac.PermCasesTransition)(h.cases.AddNote)))
		r.Get("/cases/{request_id}/audit", s.withSession(s.requirePermission(rbac.PermCasesView)(h.cases.Audit)))
		r.Post("/cases/{request_id}/reasons", s.withSession(s.requirePermission(rbac.PermCasesTransition)(h.cases.AddReason)))

		r.Get("/alerts/ownership", s.withSession(s.requirePermission(rbac.PermAlertsClaim)(h.alerts.Ownership)))
		r.Post("/alerts/claim", s.withSession(s.requirePermission(rbac.PermAlertsClaim)(h.alerts.Claim)))
		r.Post("/alerts/release", s.withSession(s.requirePermission(rbac.PermAlertsClaim)(h.alerts.Release)))
		r.Post("/alerts/snooze", s.withSession(s.requirePermission(rbac.PermAlertsSnooze)(h.alerts.Snooze)))
		r.Post("/alerts/unsnooze", s.withSession(s.requirePermission(rbac.PermAlertsSnooze)(h.alerts.Unsnooze)))
		r.Get("/alerts/snoozes", s.withSession(s.requirePermission(rbac.PermAlertsSnooze)(h.alerts.Snoozes)))
		r.Post("/alerts/ack-token", s.withSession(s.requirePermission(rbac.PermAlertsClaim)(h.alerts.IssueAckToken)))

		r.Post("/outcomes", s.withSession(s.requirePermission(rbac.PermOutcomesRecord)(h.outcomes.Create)))
		r.Get("/outcomes", s.withSession(s.requirePermission(rbac.PermOutcomesReview)(h.outcomes.List)))
		r.Get("/outcomes/due", s.withSession(s.requirePermission(rbac.PermOutcomesReview)(h.outcomes.Due)))
		r.Get("/outcomes/{id}", s.withSession(s.requirePermission(rbac.PermOutcomesReview)(h.outcomes.Get)))
		r.Post("/outcomes/{id}/review", s.withSession(s.requirePermission(rbac.PermOutcomesReview)(h.outcomes.Review)))
		r.Post("/outcomes/{id}/defer", s.withSession(s.requirePermission(rbac.PermOutcomesReview)(h.outcomes.Defer)))

		r.Get("/accounts", s.withSession(s.requirePermission(rbac.PermAccountsManage)(h.accounts.List)))
		r.Post("/accounts", s.withSession(s.requirePermission(rbac.PermAccountsManage)(h.accounts.Create)))
		r.Post("/accounts/{id}/roles", s.withSession(s.requirePermission(rbac.PermAccountsManage)(h.accounts.SetRoles)))
		r.Post("/accounts/{id}/active", s.withSession(s.requirePermission(rbac.PermAccountsManage)(h.accounts.SetActive)))

		r.Get("/logs", s.withSession(s.requirePermission(rbac.PermAuditView)(h.logs.List)))
		r.Get("/logs/export", s.withSession(s.requirePermission(rbac.PermAuditView)(h.logs.Export)))
	})

	return r
}
