package smtpmail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	provisioning "github.com/goliatone/go-provisioning"
)

// Config holds the SMTP connection settings
type Config struct {
	Host     string        `json:"host" koanf:"host"`
	Port     int           `json:"port" koanf:"port"`
	Username string        `json:"username" koanf:"username"`
	Password string        `json:"password" koanf:"password"`
	From     string        `json:"from" koanf:"from"`
	TLS      string        `json:"tls" koanf:"tls"`
	Timeout  time.Duration `json:"timeout" koanf:"timeout"`
}

// Sender delivers html invitations over SMTP
type Sender struct {
	config  Config
	options []mail.Option
}

var _ provisioning.MailSender = (*Sender)(nil)

// New validates cfg. The connection is opened per message.
func New(cfg Config) (*Sender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtpmail: host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtpmail: from address is required")
	}

	opts := []mail.Option{
		mail.WithTLSPortPolicy(tlsPolicy(cfg.TLS)),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	return &Sender{config: cfg, options: opts}, nil
}

// Send implements provisioning.MailSender
func (s *Sender) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg, err := s.message(to, subject, htmlBody)
	if err != nil {
		return err
	}

	client, err := mail.NewClient(s.config.Host, s.options...)
	if err != nil {
		return fmt.Errorf("smtpmail: client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtpmail: send to %s: %w", to, err)
	}
	return nil
}

func (s *Sender) message(to, subject, htmlBody string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(s.config.From); err != nil {
		return nil, fmt.Errorf("smtpmail: from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("smtpmail: to: %w", err)
	}
	msg.Subject(subject)
	msg.SetMessageID()
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)
	return msg, nil
}

func tlsPolicy(name string) mail.TLSPolicy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mandatory", "required":
		return mail.TLSMandatory
	case "none", "off":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}
