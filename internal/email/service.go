package email

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/rikseotools/vence/internal/model"
)

// ErrNoAddress is returned for users without an email address.
var ErrNoAddress = errors.New("user has no email address")

// Payload is the content of one notification email.
type Payload struct {
	Subject string `json:"subject" validate:"required,notblank"`
	Body    string `json:"body" validate:"required,notblank"`
	Link    string `json:"link,omitempty" validate:"omitempty,url"`
}

// Service sends notification emails and returns the message id.
type Service interface {
	Send(ctx context.Context, user model.User, p Payload) (string, error)
}

// Dialer is satisfied by *gomail.Dialer.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	dialer Dialer
	from   string
	domain string
}

func NewSMTPService(cfg Config) Service {
	return NewService(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From)
}

// NewService sends through dialer.
func NewService(dialer Dialer, from string) Service {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = strings.Trim(from[i+1:], "> ")
	}
	return &smtpService{dialer: dialer, from: from, domain: domain}
}

func (s *smtpService) Send(ctx context.Context, user model.User, p Payload) (string, error) {
	if strings.TrimSpace(user.Email) == "" {
		return "", ErrNoAddress
	}

	id := uuid.NewString()
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetAddressHeader("To", user.Email, user.Name)
	m.SetHeader("Subject", p.Subject)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", id, s.domain))
	m.SetBody("text/plain", textBody(p))
	if p.Link != "" {
		m.AddAlternative("text/html", htmlBody(p))
	}

	// gomail has no context support; give up waiting once ctx is done.
	done := make(chan error, 1)
	go func() { done <- s.dialer.DialAndSend(m) }()
	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("failed to send email: %w", err)
		}
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func textBody(p Payload) string {
	if p.Link == "" {
		return p.Body
	}
	return p.Body + "\n\n" + p.Link
}

func htmlBody(p Payload) string {
	return fmt.Sprintf(`<p>%s</p><p><a href="%s">%s</a></p>`,
		html.EscapeString(p.Body), html.EscapeString(p.Link), html.EscapeString(p.Subject))
}
