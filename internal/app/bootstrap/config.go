// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for the draw service.
// Loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, mail_smtp_host, etc.
//   - Environment variables: GANGMAIL_MONGO_URI, GANGMAIL_MAIL_SMTP_HOST, etc.
//   - Command-line flags: --mongo_uri, --mail_smtp_host, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "gangmail", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size"},

	// Email/SMTP configuration
	{Name: "mail_smtp_host", Default: "localhost", Desc: "SMTP server host"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username (blank disables auth)"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "draw@afgangmail.com", Desc: "From email address"},
	{Name: "mail_from_name", Default: "AF Gang Mail", Desc: "From display name"},

	{Name: "site_name", Default: "AF Gang Mail", Desc: "Site name used in email copy"},
	{Name: "base_url", Default: "http://localhost:3000", Desc: "Base URL for links in emails"},

	{Name: "ops_token_hash", Default: "", Desc: "bcrypt hash of the operator token for trigger endpoints (blank disables the guard)"},

	// Draw engine settings
	{Name: "draw_lookback_window", Default: 3, Desc: "Prior exchanges consulted to avoid repeat pairings"},
	{Name: "draw_max_attempts", Default: 1000, Desc: "Randomized generation passes before reporting infeasibility"},
	{Name: "draw_sweep_interval", Default: "1m", Desc: "How often due exchanges are swept and drawn"},

	// Notification dispatch settings
	{Name: "notify_workers", Default: 2, Desc: "Concurrent notification delivery workers"},
	{Name: "notify_max_attempts", Default: 5, Desc: "Delivery attempts before a notification is marked failed"},
	{Name: "notify_backoff_base", Default: "30s", Desc: "First retry delay, doubled per attempt"},
	{Name: "reconcile_interval", Default: "5m", Desc: "How often the notification reconciliation sweep runs"},
	{Name: "reconcile_grace", Default: "10m", Desc: "Age before an unnotified assignment is replayed"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "GANGMAIL", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),

		SiteName: appValues.String("site_name"),
		BaseURL:  appValues.String("base_url"),

		OpsTokenHash: appValues.String("ops_token_hash"),

		DrawLookbackWindow: appValues.Int("draw_lookback_window"),
		DrawMaxAttempts:    appValues.Int("draw_max_attempts"),
		DrawSweepInterval:  appValues.Duration("draw_sweep_interval", 1*time.Minute),

		NotifyWorkers:     appValues.Int("notify_workers"),
		NotifyMaxAttempts: appValues.Int("notify_max_attempts"),
		NotifyBackoffBase: appValues.Duration("notify_backoff_base", 30*time.Second),
		ReconcileInterval: appValues.Duration("reconcile_interval", 5*time.Minute),
		ReconcileGrace:    appValues.Duration("reconcile_grace", 10*time.Minute),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation before any
// backends are built.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.DrawLookbackWindow < 0 {
		return fmt.Errorf("draw_lookback_window must be >= 0, got %d", appCfg.DrawLookbackWindow)
	}
	if appCfg.DrawSweepInterval <= 0 {
		return fmt.Errorf("draw_sweep_interval must be positive")
	}

	if appCfg.OpsTokenHash == "" && coreCfg.Env == "prod" {
		return fmt.Errorf("ops_token_hash must be set in production")
	}
	if appCfg.OpsTokenHash == "" {
		logger.Warn("ops_token_hash is blank; trigger endpoints are unguarded")
	}

	return nil
}
