// Package notify delivers lifecycle events to users by email. Delivery is
// best-effort: the caller logs failures and moves on, so a broken SMTP relay
// never blocks an application's lifecycle.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inbucket/html2text"
	"github.com/wneessen/go-mail"

	"school-device-issuance/internal/config"
	"school-device-issuance/internal/lifecycle"
)

var subjects = map[string]string{
	"application.submitted": "Device application received",
	"application.reviewed":  "Your device application was reviewed",
	"devices.assigned":      "Devices have been assigned to your school",
	"application.received":  "Device receipt confirmed",
	"application.cancelled": "Device application cancelled",
}

type EmailNotifier struct {
	client *mail.Client
	from   string
	logger *slog.Logger
}

func NewEmailNotifier(cfg config.SMTPConfig) (*EmailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}

	return &EmailNotifier{
		client: client,
		from:   cfg.From,
		logger: slog.With("component", "notify"),
	}, nil
}

// Notify sends one event email to the target address. The plaintext
// alternative is derived from the HTML body.
func (n *EmailNotifier) Notify(ctx context.Context, target string, kind string, event lifecycle.Event) error {
	subject, ok := subjects[kind]
	if !ok {
		subject = "Device application update"
	}

	html := renderHTML(kind, event)
	text, err := html2text.FromString(html, html2text.Options{TextOnly: true})
	if err != nil {
		n.logger.Warn("Failed to derive plaintext body", "kind", kind, "error", err)
		text = subject
	}

	msg := mail.NewMsg()
	if err := msg.From(n.from); err != nil {
		return err
	}
	if err := msg.To(target); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w", kind, target, err)
	}

	n.logger.Debug("Notification sent", "kind", kind, "target", target, "application", event.ApplicationID)
	return nil
}

func renderHTML(kind string, event lifecycle.Event) string {
	body := fmt.Sprintf(
		"<html><body><h2>%s</h2><p>Application <b>#%d</b> for school <b>%s</b> moved from <b>%s</b> to <b>%s</b>.</p>",
		subjects[kind], event.ApplicationID, event.SchoolCode, orNew(string(event.From)), string(event.To))
	if count, ok := event.Extra["device_count"]; ok {
		body += fmt.Sprintf("<p>Devices assigned: <b>%v</b>.</p>", count)
	}
	body += fmt.Sprintf("<p>Action by %s at %s.</p></body></html>", event.Actor, event.At.Format("2006-01-02 15:04"))
	return body
}

func orNew(s string) string {
	if s == "" {
		return "new"
	}
	return s
}

var _ lifecycle.Notifier = (*EmailNotifier)(nil)
