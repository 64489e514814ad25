// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig covers framework-level settings (HTTP ports, TLS,
// log level); AppConfig is everything specific to the draw service:
// MongoDB, SMTP, and the draw/notification tuning knobs.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Email/SMTP configuration
	MailSMTPHost string // e.g. localhost for Mailpit, email-smtp.us-east-1.amazonaws.com for SES
	MailSMTPPort int    // e.g. 1025 for Mailpit, 587 for SES
	MailSMTPUser string // empty disables auth
	MailSMTPPass string
	MailFrom     string
	MailFromName string

	// Identity used in email copy and links
	SiteName string
	BaseURL  string

	// OpsTokenHash is the bcrypt hash of the operator token required on
	// the trigger endpoints. Empty disables the guard (dev only).
	OpsTokenHash string

	// Draw engine tuning
	DrawLookbackWindow int           // default lookback for exchanges that don't set one
	DrawMaxAttempts    int           // randomized generation passes per draw
	DrawSweepInterval  time.Duration // how often the due-draw sweep runs

	// Notification dispatch tuning
	NotifyWorkers     int
	NotifyMaxAttempts int
	NotifyBackoffBase time.Duration
	ReconcileInterval time.Duration // how often the reconciliation sweep runs
	ReconcileGrace    time.Duration // how old an unnotified assignment must be before replay
}
