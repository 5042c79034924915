package utils

import (
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
)

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host     string
	Port     string
	User     string
	Pass     string
	From     string
	TLS      bool
	StartTLS bool
}

// Ready reports whether every required SMTP setting is present.
func (c MailConfig) Ready() bool {
	return c.Host != "" && c.Port != "" && c.User != "" && c.Pass != "" && c.From != ""
}

// SendMail sends an HTML mail.
func SendMail(cfg MailConfig, to []string, subject string, body []byte) error {
	if !cfg.Ready() {
		return errors.New("smtp config missing")
	}
	if len(to) == 0 {
		return errors.New("no recipients")
	}

	e := email.NewEmail()
	e.From = cfg.From
	e.To = to
	e.Subject = subject
	e.HTML = body

	addr := cfg.Host + ":" + cfg.Port
	auth := smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	tlsConfig := &tls.Config{ServerName: cfg.Host}

	if cfg.TLS {
		return e.SendWithTLS(addr, auth, tlsConfig)
	}
	if cfg.StartTLS {
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}

// SummaryLine is one label/value row of a summary mail.
type SummaryLine struct {
	Label string
	Value string
}

// SummaryHTML renders a small HTML table for a run summary mail.
func SummaryHTML(title string, lines []SummaryLine) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>\n<table>\n", html.EscapeString(title))
	for _, l := range lines {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td></tr>\n", html.EscapeString(l.Label), html.EscapeString(l.Value))
	}
	b.WriteString("</table>\n")
	return []byte(b.String())
}
