package mailingservices

import (
	"context"
	"fmt"
	"time"

	"github.com/campuslink/campus/config"
	"github.com/mailgun/mailgun-go/v4"
)

//go:generate mockgen -destination=../mocks/mailer_mock.go -package=mocks github.com/campuslink/campus/mailingservices Mailer

// Mailer sends the account emails
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, name, link string) (string, error)
	SendResetPassword(ctx context.Context, to, name, link string) (string, error)
}

type Mailgun struct {
	Client mailgun.Mailgun
	From   string
}

func NewMailgun(conf *config.Config) *Mailgun {
	return &Mailgun{
		Client: mailgun.NewMailgun(conf.MgDomain, conf.MailgunApiKey),
		From:   conf.MgEmailFrom,
	}
}

func (m *Mailgun) SendVerificationEmail(ctx context.Context, to, name, link string) (string, error) {
	body := fmt.Sprintf("Hi %s,\n\nConfirm your Campus account by opening the link below:\n\n%s\n\nIf you did not sign up you can ignore this email.\n", name, link)
	return m.send(ctx, to, "Verify your Campus account", body)
}

func (m *Mailgun) SendResetPassword(ctx context.Context, to, name, link string) (string, error) {
	body := fmt.Sprintf("Hi %s,\n\nA password reset was requested for your Campus account. The link below is valid for one hour:\n\n%s\n\nIf you did not request it you can ignore this email.\n", name, link)
	return m.send(ctx, to, "Reset your Campus password", body)
}

func (m *Mailgun) send(ctx context.Context, to, subject, body string) (string, error) {
	message := m.Client.NewMessage(m.From, subject, body, to)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, id, err := m.Client.Send(ctx, message)
	if err != nil {
		return "", fmt.Errorf("mailgun send to %s: %w", to, err)
	}
	return id, nil
}
