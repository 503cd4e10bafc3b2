package provisioning

import (
	"context"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultInvitationTemplate renders the new admin invitation email
const DefaultInvitationTemplate = "email/admin_invitation"

// Invitation is a rendered invitation email ready for delivery
type Invitation struct {
	OperationID uuid.UUID
	UserID      uuid.UUID
	Recipient   string
	Subject     string
	Body        string
}

// InvitationDispatcher renders invitation emails and hands them to a MailSender
type InvitationDispatcher struct {
	tokens   TokenIssuer
	renderer TemplateRenderer
	sender   MailSender
	urls     URLBuilder
	config   InvitationConfig
	logger   Logger
}

func NewInvitationDispatcher(tokens TokenIssuer, renderer TemplateRenderer, sender MailSender, config InvitationConfig) *InvitationDispatcher {
	_, logger := ResolveLogger("invitations", nil, nil)
	return &InvitationDispatcher{
		tokens:   tokens,
		renderer: renderer,
		sender:   sender,
		config:   config,
		logger:   logger,
	}
}

// WithURLBuilder sets the builder used when a call does not bring its own
func (d *InvitationDispatcher) WithURLBuilder(urls URLBuilder) *InvitationDispatcher {
	d.urls = urls
	return d
}

func (d *InvitationDispatcher) WithLogger(logger Logger) *InvitationDispatcher {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// WithSender swaps the mail sender
func (d *InvitationDispatcher) WithSender(sender MailSender) *InvitationDispatcher {
	d.sender = sender
	return d
}

// Prepare issues a confirmation token for user and renders the invitation.
// urls may be nil, in which case the configured fallback link is used.
func (d *InvitationDispatcher) Prepare(ctx context.Context, tx bun.IDB, operationID uuid.UUID, user *User, password string, urls URLBuilder) (*Invitation, error) {
	token, err := d.tokens.GenerateTokenTx(ctx, tx, user, PurposeEmailConfirmation)
	if err != nil {
		return nil, err
	}

	link, err := d.confirmationLink(user, token, urls)
	if err != nil {
		return nil, err
	}

	body, err := d.renderer.Render(d.config.TemplateID, map[string]any{
		"ConfirmationUrl": link,
		"Email":           user.Email,
		"Password":        password,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render invitation").
			WithTextCode(TextCodeUnexpected).
			WithCode(goerrors.CodeInternal).
			WithMetadata(map[string]any{
				"template_id": d.config.TemplateID,
			})
	}

	return &Invitation{
		OperationID: operationID,
		UserID:      user.ID,
		Recipient:   user.Email,
		Subject:     d.config.Subject,
		Body:        body,
	}, nil
}

// Send delivers a prepared invitation
func (d *InvitationDispatcher) Send(ctx context.Context, inv *Invitation) error {
	if inv == nil {
		return nil
	}
	if d.sender == nil {
		return goerrors.New("mail sender not configured", goerrors.CategoryInternal).
			WithTextCode(TextCodeUnexpected).
			WithCode(goerrors.CodeInternal)
	}

	if err := d.sender.Send(ctx, inv.Recipient, inv.Subject, inv.Body); err != nil {
		d.logger.Error("invitation delivery failed", "recipient", inv.Recipient, "operation_id", inv.OperationID, "error", err)
		return err
	}

	d.logger.Info("invitation sent", "recipient", inv.Recipient, "operation_id", inv.OperationID)
	return nil
}

func (d *InvitationDispatcher) confirmationLink(user *User, token string, urls URLBuilder) (string, error) {
	if urls == nil {
		urls = d.urls
	}

	if urls != nil {
		return urls.BuildConfirmationLink(d.config.ConfirmationAction, d.config.ConfirmationController, map[string]string{
			"email":       user.Email,
			"token":       token,
			"redirectUrl": d.config.LoginURL,
		})
	}

	return fallbackConfirmationLink(d.config.ConfirmationLink, user.ID, token, d.config.LoginURL)
}

func fallbackConfirmationLink(base string, userID uuid.UUID, token, redirect string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "invalid confirmation link").
			WithTextCode(TextCodeUnexpected).
			WithCode(goerrors.CodeInternal)
	}

	q := u.Query()
	q.Set("userId", userID.String())
	q.Set("token", token)
	q.Set("redirectUrl", redirect)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
