package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	SLA           SLAConfig
	Approval      ApprovalConfig
	Scheduler     SchedulerConfig
	Integrations  IntegrationsConfig
	Notifications NotificationsConfig
	Stats         StatsConfig
	Export        ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SLAWindow pairs the two deadlines derived on submission.
type SLAWindow struct {
	Approval time.Duration
	Handover time.Duration
}

// SLAConfig holds per-reason deadline windows with a default fallback.
type SLAConfig struct {
	Default     SLAWindow
	Accident    SLAWindow
	Breakdown   SLAWindow
	Maintenance SLAWindow
}

// ApprovalConfig defines the approver roster consulted on submission.
type ApprovalConfig struct {
	Approvers []string
}

// SchedulerConfig governs the reconciliation sweeps and their thresholds.
type SchedulerConfig struct {
	Enabled            bool
	Interval           time.Duration
	LockTTL            time.Duration
	DocumentHorizon    time.Duration
	DocumentUrgentDays int
	ReminderStepDays   int
	WebhookMaxAge      time.Duration
	WebhookMaxRetries  int
	AutoCloseAfter     time.Duration
	SystemActor        string
}

// IntegrationConfig enables a single partner webhook target.
type IntegrationConfig struct {
	Enabled  bool
	Endpoint string
}

// IntegrationsConfig groups the partner webhook targets.
type IntegrationsConfig struct {
	Fleet              IntegrationConfig
	Billing            IntegrationConfig
	BillingAutoInvoice bool
	Claims             IntegrationConfig
	WebhookTimeout     time.Duration
}

// NotificationsConfig tunes the async notification queue and escalation routing.
type NotificationsConfig struct {
	EscalationList []string
	QueueWorkers   int
	QueueSize      int
}

// StatsConfig governs caching of the statistics endpoint.
type StatsConfig struct {
	CacheTTL time.Duration
}

// ExportConfig gates the custody register export endpoint.
type ExportConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.SLA = SLAConfig{
		Default: SLAWindow{
			Approval: parseDuration(v.GetString("SLA_APPROVAL_WINDOW"), 24*time.Hour),
			Handover: parseDuration(v.GetString("SLA_HANDOVER_WINDOW"), 72*time.Hour),
		},
		Accident: SLAWindow{
			Approval: parseDuration(v.GetString("SLA_ACCIDENT_APPROVAL_WINDOW"), 4*time.Hour),
			Handover: parseDuration(v.GetString("SLA_ACCIDENT_HANDOVER_WINDOW"), 24*time.Hour),
		},
		Breakdown: SLAWindow{
			Approval: parseDuration(v.GetString("SLA_BREAKDOWN_APPROVAL_WINDOW"), 8*time.Hour),
			Handover: parseDuration(v.GetString("SLA_BREAKDOWN_HANDOVER_WINDOW"), 48*time.Hour),
		},
		Maintenance: SLAWindow{
			Approval: parseDuration(v.GetString("SLA_MAINTENANCE_APPROVAL_WINDOW"), 48*time.Hour),
			Handover: parseDuration(v.GetString("SLA_MAINTENANCE_HANDOVER_WINDOW"), 7*24*time.Hour),
		},
	}

	cfg.Approval = ApprovalConfig{
		Approvers: splitAndTrim(v.GetString("APPROVAL_APPROVERS")),
	}

	cfg.Scheduler = SchedulerConfig{
		Enabled:            v.GetBool("SCHEDULER_ENABLED"),
		Interval:           parseDuration(v.GetString("SCHEDULER_INTERVAL"), time.Hour),
		LockTTL:            parseDuration(v.GetString("SCHEDULER_LOCK_TTL"), 10*time.Minute),
		DocumentHorizon:    parseDuration(v.GetString("SCHEDULER_DOCUMENT_HORIZON"), 30*24*time.Hour),
		DocumentUrgentDays: v.GetInt("SCHEDULER_DOCUMENT_URGENT_DAYS"),
		ReminderStepDays:   v.GetInt("SCHEDULER_REMINDER_STEP_DAYS"),
		WebhookMaxAge:      parseDuration(v.GetString("SCHEDULER_WEBHOOK_MAX_AGE"), 24*time.Hour),
		WebhookMaxRetries:  v.GetInt("SCHEDULER_WEBHOOK_MAX_RETRIES"),
		AutoCloseAfter:     parseDuration(v.GetString("SCHEDULER_AUTO_CLOSE_AFTER"), 90*24*time.Hour),
		SystemActor:        v.GetString("SCHEDULER_SYSTEM_ACTOR"),
	}

	cfg.Integrations = IntegrationsConfig{
		Fleet: IntegrationConfig{
			Enabled:  v.GetBool("INTEGRATION_FLEET_ENABLED"),
			Endpoint: v.GetString("INTEGRATION_FLEET_ENDPOINT"),
		},
		Billing: IntegrationConfig{
			Enabled:  v.GetBool("INTEGRATION_BILLING_ENABLED"),
			Endpoint: v.GetString("INTEGRATION_BILLING_ENDPOINT"),
		},
		BillingAutoInvoice: v.GetBool("INTEGRATION_BILLING_AUTO_INVOICE"),
		Claims: IntegrationConfig{
			Enabled:  v.GetBool("INTEGRATION_CLAIMS_ENABLED"),
			Endpoint: v.GetString("INTEGRATION_CLAIMS_ENDPOINT"),
		},
		WebhookTimeout: parseDuration(v.GetString("INTEGRATION_WEBHOOK_TIMEOUT"), 10*time.Second),
	}

	cfg.Notifications = NotificationsConfig{
		EscalationList: splitAndTrim(v.GetString("NOTIFICATION_ESCALATION_LIST")),
		QueueWorkers:   v.GetInt("NOTIFICATION_QUEUE_WORKERS"),
		QueueSize:      v.GetInt("NOTIFICATION_QUEUE_SIZE"),
	}

	cfg.Stats = StatsConfig{
		CacheTTL: parseDuration(v.GetString("STATS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Export = ExportConfig{Enabled: v.GetBool("ENABLE_EXPORT")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "custody")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SLA_APPROVAL_WINDOW", "24h")
	v.SetDefault("SLA_HANDOVER_WINDOW", "72h")
	v.SetDefault("SLA_ACCIDENT_APPROVAL_WINDOW", "4h")
	v.SetDefault("SLA_ACCIDENT_HANDOVER_WINDOW", "24h")
	v.SetDefault("SLA_BREAKDOWN_APPROVAL_WINDOW", "8h")
	v.SetDefault("SLA_BREAKDOWN_HANDOVER_WINDOW", "48h")
	v.SetDefault("SLA_MAINTENANCE_APPROVAL_WINDOW", "48h")
	v.SetDefault("SLA_MAINTENANCE_HANDOVER_WINDOW", "168h")

	v.SetDefault("APPROVAL_APPROVERS", "")

	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_INTERVAL", "1h")
	v.SetDefault("SCHEDULER_LOCK_TTL", "10m")
	v.SetDefault("SCHEDULER_DOCUMENT_HORIZON", "720h")
	v.SetDefault("SCHEDULER_DOCUMENT_URGENT_DAYS", 7)
	v.SetDefault("SCHEDULER_REMINDER_STEP_DAYS", 7)
	v.SetDefault("SCHEDULER_WEBHOOK_MAX_AGE", "24h")
	v.SetDefault("SCHEDULER_WEBHOOK_MAX_RETRIES", 3)
	v.SetDefault("SCHEDULER_AUTO_CLOSE_AFTER", "2160h")
	v.SetDefault("SCHEDULER_SYSTEM_ACTOR", "system")

	v.SetDefault("INTEGRATION_FLEET_ENABLED", false)
	v.SetDefault("INTEGRATION_FLEET_ENDPOINT", "")
	v.SetDefault("INTEGRATION_BILLING_ENABLED", false)
	v.SetDefault("INTEGRATION_BILLING_ENDPOINT", "")
	v.SetDefault("INTEGRATION_BILLING_AUTO_INVOICE", false)
	v.SetDefault("INTEGRATION_CLAIMS_ENABLED", false)
	v.SetDefault("INTEGRATION_CLAIMS_ENDPOINT", "")
	v.SetDefault("INTEGRATION_WEBHOOK_TIMEOUT", "10s")

	v.SetDefault("NOTIFICATION_ESCALATION_LIST", "")
	v.SetDefault("NOTIFICATION_QUEUE_WORKERS", 2)
	v.SetDefault("NOTIFICATION_QUEUE_SIZE", 64)

	v.SetDefault("STATS_CACHE_TTL", "5m")
	v.SetDefault("ENABLE_EXPORT", true)
}

// Window returns the SLA window configured for a reason code.
func (c SLAConfig) Window(reason string) SLAWindow {
	switch strings.ToUpper(reason) {
	case "ACCIDENT":
		return c.Accident
	case "BREAKDOWN":
		return c.Breakdown
	case "MAINTENANCE":
		return c.Maintenance
	default:
		return c.Default
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
