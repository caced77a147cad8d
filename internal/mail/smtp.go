package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	gomail "github.com/wneessen/go-mail"
	"github.com/trektide/apiserver/config"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[Kind]string{
	KindWelcome:          "Welcome to Trektide",
	KindPasswordReset:    "Your password reset link (valid for 10 minutes)",
	KindBookingConfirmed: "Your booking is confirmed",
}

// SMTPSender renders a message's template and delivers it over SMTP.
type SMTPSender struct {
	client    *gomail.Client
	from      string
	templates *template.Template
}

// NewSMTPSender constructs an SMTP-backed sender from config.
func NewSMTPSender(cfg config.SMTPConfig) (*SMTPSender, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, err
	}

	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &SMTPSender{
		client:    client,
		from:      cfg.From,
		templates: templates,
	}, nil
}

// Send renders the template for msg.Kind and delivers the mail.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	subject, ok := subjects[msg.Kind]
	if !ok {
		return fmt.Errorf("unknown mail kind %q", msg.Kind)
	}

	var body bytes.Buffer
	data := struct {
		Name    string
		URL     string
		Subject string
	}{Name: msg.Name, URL: msg.URL, Subject: subject}
	if err := s.templates.ExecuteTemplate(&body, string(msg.Kind)+".html", data); err != nil {
		return fmt.Errorf("render %s mail: %w", msg.Kind, err)
	}

	m := gomail.NewMsg()
	if err := m.From(s.from); err != nil {
		return err
	}
	if err := m.To(msg.To); err != nil {
		return err
	}
	m.Subject(subject)
	m.SetBodyString(gomail.TypeTextHTML, body.String())

	return s.client.DialAndSendWithContext(ctx, m)
}
