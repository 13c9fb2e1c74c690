package appbootstrap

import (
	"database/sql"
	"time"

	"huntdesk-ops/api"
	"huntdesk-ops/config"
	"huntdesk-ops/core/ops"
	"huntdesk-ops/core/rbac"
	"huntdesk-ops/core/store"
	"huntdesk-ops/core/utils"
)

type runtimeComposition struct {
	serverDeps api.ServerDeps
	sessions   store.SessionStore
	users      store.UsersStore
	policy     *rbac.Policy
	workers    []api.BackgroundWorker
}

func composeRuntime(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*runtimeComposition, error) {
	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	audits := store.NewAuditStore(db)
	records := store.NewRecordsStore(db)
	contexts := store.NewContextsStore(db)
	cases := store.NewCasesStore(db)
	alerts := store.NewAlertsStore(db)
	outcomes := store.NewOutcomesStore(db)

	policy, err := rbac.NewPolicy()
	if err != nil {
		return nil, err
	}
	sender := ops.NewHTTPWebhookSender(cfg.Notify)
	resolver := ops.NewResolver(contexts, logger)
	scorer := ops.NewScorer(cfg.Health)
	caseSvc := ops.NewCaseService(cases, policy, sender, cfg.Cases, logger)
	alertSvc := ops.NewAlertService(alerts, cfg.Alerts)
	ackSvc := ops.NewAckTokenService(cfg.Alerts.AckSecret, time.Duration(cfg.Alerts.AckTTLMinutes)*time.Minute)
	scheduler := ops.NewScheduler(records, outcomes, sender, cfg, logger)

	return &runtimeComposition{
		serverDeps: api.ServerDeps{
			Users:    users,
			Sessions: sessions,
			Audits:   audits,
			Records:  records,
			Contexts: contexts,
			Outcomes: outcomes,
			Resolver: resolver,
			Scorer:   scorer,
			Cases:    caseSvc,
			Alerts:   alertSvc,
			AckSvc:   ackSvc,
			Sender:   sender,
		},
		sessions: sessions,
		users:    users,
		policy:   policy,
		workers:  []api.BackgroundWorker{scheduler},
	}, nil
}
