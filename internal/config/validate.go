package config

import (
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate fills defaults, then validates. The returned copy is the
// one callers should keep.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	// ---- Defaults ----

	if strings.TrimSpace(out.Email.Mailbox) == "" {
		out.Email.Mailbox = "INBOX"
	}
	if out.Email.IMAPPort == 0 {
		out.Email.IMAPPort = 993
	}
	if out.Alerts.HorizonHours <= 0 {
		out.Alerts.HorizonHours = 24
	}
	if out.Alerts.MaxEmails <= 0 {
		out.Alerts.MaxEmails = 50
	}
	if out.Telegram.UpdateTimeoutSeconds <= 0 {
		out.Telegram.UpdateTimeoutSeconds = 30
	}
	if out.Polling.EmailSeconds <= 0 {
		out.Polling.EmailSeconds = 300
	}

	// ---- Validation rules ----

	if strings.TrimSpace(out.Email.IMAPHost) == "" {
		res.addErr("email.imap_host is required")
	}
	if strings.TrimSpace(out.Email.Username) == "" {
		res.addErr("email.username is required")
	}
	if out.Email.IMAPPort < 1 || out.Email.IMAPPort > 65535 {
		res.addErr("email.imap_port must be 1..65535")
	}

	if out.Polling.EmailSeconds < 30 {
		res.addWarn("polling.email_seconds is very low (%d) and may trip IMAP rate limits.", out.Polling.EmailSeconds)
	}
	if out.Alerts.HorizonHours > 24*90 {
		res.addWarn("alerts.horizon_hours covers more than 90 days; scans will be slow.")
	}
	if out.Alerts.MaxEmails > 2000 {
		res.addWarn("alerts.max_emails is %d; consider a smaller batch.", out.Alerts.MaxEmails)
	}

	return out, res
}
