package provisioning

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Logger is the structured logger used across the package.
// Messages take key/value pairs, the same shape glog uses.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerProvider hands out named loggers
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// LoggerProviderFunc adapts a function to LoggerProvider.
type LoggerProviderFunc func(name string) Logger

// GetLogger implements LoggerProvider.
func (f LoggerProviderFunc) GetLogger(name string) Logger {
	if f == nil {
		return nil
	}
	return f(name)
}

// ResolveLogger picks the logger for a named component. An explicit logger
// wins over the provider, and the default logger is used when neither is set.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if logger != nil {
		return provider, logger
	}

	if provider != nil {
		if l := provider.GetLogger(name); l != nil {
			return provider, l
		}
	}

	return provider, defLogger{name: name}
}

// TemplateRenderer renders a named template with a view model
type TemplateRenderer interface {
	Render(templateID string, viewModel map[string]any) (string, error)
}

// MailSender delivers a rendered html message
type MailSender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// MailSenderFunc adapts a function to the MailSender interface.
type MailSenderFunc func(ctx context.Context, to, subject, htmlBody string) error

// Send implements MailSender.
func (f MailSenderFunc) Send(ctx context.Context, to, subject, htmlBody string) error {
	if f == nil {
		return nil
	}
	return f(ctx, to, subject, htmlBody)
}

// URLBuilder builds absolute links to application actions. It is optional,
// the invitation dispatcher falls back to a configured link template.
type URLBuilder interface {
	BuildConfirmationLink(action, controller string, params map[string]string) (string, error)
}

// TokenIssuer issues purpose scoped one time tokens for a user
type TokenIssuer interface {
	GenerateTokenTx(ctx context.Context, tx bun.IDB, user *User, purpose TokenPurpose) (string, error)
}

// WorkshopLookup resolves workshop ids to entities. A nil provider id
// disables the ownership filter.
type WorkshopLookup interface {
	ResolveTx(ctx context.Context, tx bun.IDB, providerID *uuid.UUID, ids []uuid.UUID) ([]*Workshop, error)
}

// EmailLock serializes concurrent provisioning calls for the same address.
type EmailLock interface {
	Acquire(ctx context.Context, email string) (release func(), err error)
}

type noopEmailLock struct{}

func (noopEmailLock) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

type defLogger struct {
	name string
}

func (d defLogger) Debug(msg string, args ...any) {}

func (d defLogger) Info(msg string, args ...any) {
	d.print("INF", msg, args...)
}

func (d defLogger) Warn(msg string, args ...any) {
	d.print("WRN", msg, args...)
}

func (d defLogger) Error(msg string, args ...any) {
	d.print("ERR", msg, args...)
}

func (d defLogger) print(level, msg string, args ...any) {
	var b strings.Builder
	b.WriteString("[" + level + "] PROVISIONING ")
	if d.name != "" {
		b.WriteString(d.name + ": ")
	}
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	fmt.Println(b.String())
}
