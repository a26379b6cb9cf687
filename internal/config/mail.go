package config

// MailConfig configures outgoing email.  When Host is empty messages are
// written to the log instead of being sent.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	AppURL   string // base URL used to build links in emails
}

// LoadMailConfig reads SMTP_* variables.
func LoadMailConfig() MailConfig {
	return MailConfig{
		Host:     envStr("SMTP_HOST", ""),
		Port:     envInt("SMTP_PORT", 587),
		Username: envStr("SMTP_USERNAME", ""),
		Password: envStr("SMTP_PASSWORD", ""),
		From:     envStr("SMTP_FROM", "EventFlow <no-reply@eventflow.local>"),
		AppURL:   envStr("APP_URL", "http://localhost:3000"),
	}
}
