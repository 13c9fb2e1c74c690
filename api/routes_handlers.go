package api

import "huntdesk-ops/api/handlers"

type routeHandlers struct {
	auth     *handlers.AuthHandler
	accounts *handlers.AccountsHandler
	events   *handlers.EventsHandler
	health   *handlers.HealthHandler
	cases    *handlers.CasesHandler
	alerts   *handlers.AlertsHandler
	outcomes *handlers.OutcomesHandler
	logs     *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:     handlers.NewAuthHandler(s.cfg, s.users, s.sessions, s.sessionManager, s.audits, s.logger),
		accounts: handlers.NewAccountsHandler(s.users, s.sessions, s.audits, s.logger),
		events:   handlers.NewEventsHandler(s.cfg, s.records, s.contexts, s.resolver, s.cases, s.audits, s.logger),
		health:   handlers.NewHealthHandler(s.cfg, s.records, s.scorer),
		cases:    handlers.NewCasesHandler(s.cases, s.audits, s.logger),
		alerts:   handlers.NewAlertsHandler(s.cfg, s.alerts, s.ackSvc, s.audits, s.logger),
		outcomes: handlers.NewOutcomesHandler(s.cfg, s.outcomes, s.audits, s.logger),
		logs:     handlers.NewLogsHandler(s.audits),
	}
}
