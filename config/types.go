package config

import "time"

type AppConfig struct {
	DBDriver   string        `yaml:"db_driver" env:"HUNTDESK_OPS_DB_DRIVER" env-default:"sqlite"`
	DBURL      string        `yaml:"db_url" env:"HUNTDESK_OPS_DB_URL"`
	DBPath     string        `yaml:"db_path" env:"HUNTDESK_OPS_DB_PATH" env-default:"data/ops.db"`
	ListenAddr string        `yaml:"listen_addr" env:"HUNTDESK_OPS_LISTEN_ADDR" env-default:"0.0.0.0:8090"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"HUNTDESK_OPS_SESSION_TTL" env-default:"3h"`
	AppEnv     string        `yaml:"app_env" env:"HUNTDESK_OPS_APP_ENV"`
	CSRFKey    string        `yaml:"csrf_key" env:"HUNTDESK_OPS_CSRF_KEY"`

	Health        HealthConfig        `yaml:"health"`
	Correlation   CorrelationConfig   `yaml:"correlation"`
	Cases         CasesConfig         `yaml:"cases"`
	Alerts        AlertsConfig        `yaml:"alerts"`
	Effectiveness EffectivenessConfig `yaml:"effectiveness"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Notify        NotifyConfig        `yaml:"notify"`
	Security      SecurityConfig      `yaml:"security"`
}

// HealthConfig carries the per-signal RAG cut-offs. A count of zero is always
// green; amber applies from the amber cut-off, red from the red cut-off.
type HealthConfig struct {
	WindowMinutes       int `yaml:"window_minutes" env:"HUNTDESK_OPS_HEALTH_WINDOW_MINUTES" env-default:"15"`
	TrendHours          int `yaml:"trend_hours" env:"HUNTDESK_OPS_HEALTH_TREND_HOURS" env-default:"24"`
	WebhookFailureAmber int `yaml:"webhook_failure_amber" env:"HUNTDESK_OPS_HEALTH_WEBHOOK_FAILURE_AMBER" env-default:"1"`
	WebhookFailureRed   int `yaml:"webhook_failure_red" env:"HUNTDESK_OPS_HEALTH_WEBHOOK_FAILURE_RED" env-default:"5"`
	WebhookErrorAmber   int `yaml:"webhook_error_amber" env:"HUNTDESK_OPS_HEALTH_WEBHOOK_ERROR_AMBER" env-default:"1"`
	WebhookErrorRed     int `yaml:"webhook_error_red" env:"HUNTDESK_OPS_HEALTH_WEBHOOK_ERROR_RED" env-default:"3"`
	PortalErrorAmber    int `yaml:"portal_error_amber" env:"HUNTDESK_OPS_HEALTH_PORTAL_ERROR_AMBER" env-default:"2"`
	PortalErrorRed      int `yaml:"portal_error_red" env:"HUNTDESK_OPS_HEALTH_PORTAL_ERROR_RED" env-default:"5"`
	CheckoutErrorAmber  int `yaml:"checkout_error_amber" env:"HUNTDESK_OPS_HEALTH_CHECKOUT_ERROR_AMBER" env-default:"1"`
	CheckoutErrorRed    int `yaml:"checkout_error_red" env:"HUNTDESK_OPS_HEALTH_CHECKOUT_ERROR_RED" env-default:"4"`
	RateLimitAmber      int `yaml:"rate_limit_amber" env:"HUNTDESK_OPS_HEALTH_RATE_LIMIT_AMBER" env-default:"3"`
	RateLimitRed        int `yaml:"rate_limit_red" env:"HUNTDESK_OPS_HEALTH_RATE_LIMIT_RED" env-default:"10"`
}

type CorrelationConfig struct {
	WindowMinutes       int `yaml:"window_minutes" env:"HUNTDESK_OPS_CORRELATION_WINDOW_MINUTES" env-default:"10"`
	WebhookReceiptHours int `yaml:"webhook_receipt_hours" env:"HUNTDESK_OPS_CORRELATION_RECEIPT_HOURS" env-default:"24"`
	GroupSampleRequests int `yaml:"group_sample_requests" env:"HUNTDESK_OPS_CORRELATION_GROUP_SAMPLES" env-default:"5"`
	RetentionDays       int `yaml:"retention_days" env:"HUNTDESK_OPS_CORRELATION_RETENTION_DAYS" env-default:"30"`
}

type CasesConfig struct {
	DefaultPriority string `yaml:"default_priority" env:"HUNTDESK_OPS_CASES_DEFAULT_PRIORITY" env-default:"p3"`
	SLAHoursP1      int    `yaml:"sla_hours_p1" env:"HUNTDESK_OPS_CASES_SLA_HOURS_P1" env-default:"4"`
	SLAHoursP2      int    `yaml:"sla_hours_p2" env:"HUNTDESK_OPS_CASES_SLA_HOURS_P2" env-default:"8"`
	SLAHoursP3      int    `yaml:"sla_hours_p3" env:"HUNTDESK_OPS_CASES_SLA_HOURS_P3" env-default:"24"`
	SLAHoursP4      int    `yaml:"sla_hours_p4" env:"HUNTDESK_OPS_CASES_SLA_HOURS_P4" env-default:"72"`
}

type AlertsConfig struct {
	ClaimTTLMinutes  int    `yaml:"claim_ttl_minutes" env:"HUNTDESK_OPS_ALERTS_CLAIM_TTL_MINUTES" env-default:"30"`
	MaxSnoozeMinutes int    `yaml:"max_snooze_minutes" env:"HUNTDESK_OPS_ALERTS_MAX_SNOOZE_MINUTES" env-default:"1440"`
	AckSecret        string `yaml:"ack_secret" env:"HUNTDESK_OPS_ALERTS_ACK_SECRET"`
	AckTTLMinutes    int    `yaml:"ack_ttl_minutes" env:"HUNTDESK_OPS_ALERTS_ACK_TTL_MINUTES" env-default:"60"`
}

type EffectivenessConfig struct {
	ReviewAgeHours      int `yaml:"review_age_hours" env:"HUNTDESK_OPS_EFFECTIVENESS_REVIEW_AGE_HOURS" env-default:"2"`
	RepeatLookbackHours int `yaml:"repeat_lookback_hours" env:"HUNTDESK_OPS_EFFECTIVENESS_REPEAT_LOOKBACK_HOURS" env-default:"24"`
}

type SchedulerConfig struct {
	Enabled       bool   `yaml:"enabled" env:"HUNTDESK_OPS_SCHEDULER_ENABLED" env-default:"true"`
	RetentionSpec string `yaml:"retention_spec" env:"HUNTDESK_OPS_SCHEDULER_RETENTION_SPEC" env-default:"17 3 * * *"`
	DueScanSpec   string `yaml:"due_scan_spec" env:"HUNTDESK_OPS_SCHEDULER_DUE_SCAN_SPEC" env-default:"*/30 * * * *"`
}

type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url" env:"HUNTDESK_OPS_NOTIFY_WEBHOOK_URL"`
	AckBaseURL     string `yaml:"ack_base_url" env:"HUNTDESK_OPS_NOTIFY_ACK_BASE_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"HUNTDESK_OPS_NOTIFY_TIMEOUT_SECONDS" env-default:"10"`
}

type SecurityConfig struct {
	TrustedProxies []string `yaml:"trusted_proxies" env:"HUNTDESK_OPS_SECURITY_TRUSTED_PROXIES" env-separator:","`
}

const maxOperatorSessionTTL = 3 * time.Hour

func (c *AppConfig) EffectiveSessionTTL() time.Duration {
	ttl := maxOperatorSessionTTL
	if c != nil && c.SessionTTL > 0 {
		ttl = c.SessionTTL
	}
	if ttl > maxOperatorSessionTTL {
		return maxOperatorSessionTTL
	}
	return ttl
}

func (c *AppConfig) HealthWindow() time.Duration {
	minutes := 15
	if c != nil && c.Health.WindowMinutes > 0 {
		minutes = c.Health.WindowMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (c *AppConfig) CorrelationWindow() time.Duration {
	minutes := 10
	if c != nil && c.Correlation.WindowMinutes > 0 {
		minutes = c.Correlation.WindowMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (c *AppConfig) ClaimTTL() time.Duration {
	minutes := 30
	if c != nil && c.Alerts.ClaimTTLMinutes > 0 {
		minutes = c.Alerts.ClaimTTLMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (c *AppConfig) ReviewAge() time.Duration {
	hours := 2
	if c != nil && c.Effectiveness.ReviewAgeHours > 0 {
		hours = c.Effectiveness.ReviewAgeHours
	}
	return time.Duration(hours) * time.Hour
}
