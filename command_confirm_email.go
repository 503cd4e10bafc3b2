package provisioning

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/codes"
)

// ConfirmEmailMessage carries the query of an invitation confirmation link.
// Links built by a URLBuilder carry the email, fallback links the user id.
type ConfirmEmailMessage struct {
	UserID      uuid.UUID `json:"userId,omitempty"`
	Email       string    `json:"email,omitempty"`
	Token       string    `json:"token"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
}

func (m ConfirmEmailMessage) Type() string { return "admin.confirm-email" }

// Validate will run validation rules
func (m ConfirmEmailMessage) Validate() error {
	m.Email = strings.TrimSpace(m.Email)
	m.Token = strings.TrimSpace(m.Token)

	rules := []*validation.FieldRules{
		validation.Field(&m.Token, validation.Required),
	}
	if m.UserID == uuid.Nil {
		rules = append(rules, validation.Field(&m.Email, validation.Required, is.Email))
	}
	return validation.ValidateStruct(&m, rules...)
}

// EmailConfirmation is the result of a successful confirmation
type EmailConfirmation struct {
	UserID      uuid.UUID `json:"userId"`
	Email       string    `json:"email"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
}

// ConfirmEmail consumes the confirmation token sent with an invitation and
// marks the identity email as confirmed. Unknown accounts are reported as an
// invalid token.
func (o *Orchestrator) ConfirmEmail(ctx context.Context, req ConfirmEmailMessage) Response {
	if err := req.Validate(); err != nil {
		o.logger.Warn("email confirmation rejected", "error", err)
		return NewResponseFromError(newValidationError(err))
	}

	ctx, span := o.tracer.Start(ctx, "provisioning.confirm_email")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.config.OperationTimeout)
	defer cancel()

	var user *User
	err := retryTransient(ctx, o.config.Retry, func(int) error {
		err := o.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			found, err := o.confirmationTarget(ctx, tx, req)
			if err != nil {
				return err
			}
			if err := o.identity.ConfirmEmailTx(ctx, tx, found, req.Token); err != nil {
				return err
			}
			user = found
			return nil
		})
		if err != nil {
			return identityError(err, "failed to confirm email", goerrors.CodeInternal)
		}
		return nil
	}, func(err error, wait time.Duration) {
		o.logger.Warn("transient failure, retrying email confirmation", "wait", wait, "error", err)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Warn("email confirmation failed", "user_id", req.UserID, "email", req.Email, "error", err)
		return NewResponseFromError(o.classify(err))
	}

	span.SetStatus(codes.Ok, "")
	o.logger.Info("email confirmed", "user_id", user.ID)

	return NewSuccessResponse(&EmailConfirmation{
		UserID:      user.ID,
		Email:       user.Email,
		RedirectURL: req.RedirectURL,
	})
}

func (o *Orchestrator) confirmationTarget(ctx context.Context, tx bun.IDB, req ConfirmEmailMessage) (*User, error) {
	var (
		user *User
		err  error
	)
	if req.UserID != uuid.Nil {
		user, err = o.identity.FindByIDTx(ctx, tx, req.UserID)
	} else {
		user, err = o.identity.FindByEmailTx(ctx, tx, normalizeEmail(req.Email))
	}
	if err != nil {
		if IsNotFound(err) {
			return nil, errTokenInvalid(map[string]any{
				"user_id": req.UserID.String(),
				"purpose": string(PurposeEmailConfirmation),
			})
		}
		return nil, err
	}
	return user, nil
}
