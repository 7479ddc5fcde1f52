package app

import "github.com/prompthub/authcore/pkg/mail"

// SMTPSettings converts EmailConfig to the mail package representation.
// Delivery stays disabled until a host and sender address are present.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled && c.SMTP.Host != "" && c.SMTP.From != "",
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}
