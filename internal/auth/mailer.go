package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/sirupsen/logrus"
)

const loginSubject = "Your MarsRoulette Login"

// Mailer delivers a magic login link to an address.
type Mailer interface {
	Send(ctx context.Context, to, token string) error
}

func loginLink(frontendURL, token string) string {
	return strings.TrimRight(frontendURL, "/") + "/login?token=" + url.QueryEscape(token)
}

func loginBody(link string) string {
	return fmt.Sprintf("Click the link below to log in to MarsRoulette:\n\n%s\n\nThe link expires in 10 minutes.", link)
}

type MailgunMailer struct {
	mg          mailgun.Mailgun
	from        string
	frontendURL string
}

func NewMailgunMailer(domain, apiKey, from, frontendURL string) *MailgunMailer {
	return &MailgunMailer{
		mg:          mailgun.NewMailgun(domain, apiKey),
		from:        from,
		frontendURL: frontendURL,
	}
}

func (m *MailgunMailer) Send(ctx context.Context, to, token string) error {
	msg := m.mg.NewMessage(m.from, loginSubject, loginBody(loginLink(m.frontendURL, token)), to)
	if _, _, err := m.mg.Send(ctx, msg); err != nil {
		return fmt.Errorf("mailgun send to %s: %w", to, err)
	}
	return nil
}

// LogMailer writes the login link to the log instead of mailing it. Used when
// no mail provider is configured.
type LogMailer struct {
	log         logrus.FieldLogger
	frontendURL string
}

func NewLogMailer(frontendURL string, log logrus.FieldLogger) *LogMailer {
	return &LogMailer{log: log, frontendURL: frontendURL}
}

func (m *LogMailer) Send(_ context.Context, to, token string) error {
	m.log.WithFields(logrus.Fields{"to": to, "link": loginLink(m.frontendURL, token)}).Info("login link")
	return nil
}
