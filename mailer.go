package main

import (
	"fmt"
	"net/smtp"
	"strings"
)

// inviteMailer delivers meal-plan invitations.
type inviteMailer interface {
	sendMealPlanInvite(to, inviterName, planTitle, link string) error
}

// noopMailer is used when SMTP is not configured; invites are still stored.
type noopMailer struct{}

func (noopMailer) sendMealPlanInvite(string, string, string, string) error { return nil }

type smtpMailer struct {
	addr   string
	auth   smtp.Auth
	sender string
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func newSMTPMailer(cfg appConfig) *smtpMailer {
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPHost)
	}
	return &smtpMailer{
		addr:   fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		auth:   auth,
		sender: cfg.SMTPSender,
		send:   smtp.SendMail,
	}
}

// inviteMessage builds the RFC 822 message for a meal-plan invitation.
func inviteMessage(from, to, inviterName, planTitle, link string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s invited you to the meal plan \"%s\"\r\n", inviterName, planTitle)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	fmt.Fprintf(&b, "%s wants to share the meal plan \"%s\" with you.\r\n\r\n", inviterName, planTitle)
	fmt.Fprintf(&b, "Open it here: %s\r\n", link)
	return []byte(b.String())
}

func (m *smtpMailer) sendMealPlanInvite(to, inviterName, planTitle, link string) error {
	msg := inviteMessage(m.sender, to, inviterName, planTitle, link)
	return m.send(m.addr, m.auth, m.sender, []string{to}, msg)
}
