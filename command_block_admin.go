package provisioning

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// BlockProviderMessage blocks or unblocks every admin of a provider
type BlockProviderMessage struct {
	ProviderID uuid.UUID `json:"providerId"`
	IsBlocked  bool      `json:"isBlocked"`
}

func (m BlockProviderMessage) Type() string { return "admin.block_by_provider" }

// BulkBlockResult is the per account outcome of BlockByProvider
type BulkBlockResult struct {
	ID             uuid.UUID `json:"id"`
	Role           AdminRole `json:"role"`
	IsSuccess      bool      `json:"isSuccess"`
	HTTPStatusCode int       `json:"httpStatusCode"`
	Message        string    `json:"message,omitempty"`
}

func blockFlag(blocked bool) string {
	if blocked {
		return "1"
	}
	return "0"
}

func (o *Orchestrator) block(ctx context.Context, role AdminRole, id uuid.UUID, blocked bool, classification BlockingType, actorID string) Response {
	op := o.newOperation(role, OperationBlock, actorID, id.String())

	if !role.IsValid() {
		return o.reject(op, errUnknownRole(role))
	}

	op.precheck = func(ctx context.Context) error {
		_, err := o.loadAccount(ctx, o.repo.DB(), role, id)
		return err
	}

	return o.run(ctx, op, func(ctx context.Context, tx bun.Tx, st *attemptState) (any, error) {
		account, err := o.loadAccount(ctx, tx, role, id)
		if err != nil {
			return nil, err
		}

		user, err := o.loadIdentity(ctx, tx, account.UserID)
		if err != nil {
			return nil, err
		}

		previous := user.IsBlocked
		user.IsBlocked = blocked

		if err := o.identity.UpdateTx(ctx, tx, user); err != nil {
			return nil, identityError(err, "failed to update identity", goerrors.CodeInternal)
		}

		// rotating the stamp signs the account out everywhere
		if err := o.identity.UpdateSecurityStampTx(ctx, tx, user); err != nil {
			return nil, identityError(err, "failed to update security stamp", goerrors.CodeInternal)
		}

		if err := o.repo.Admins().UpdateBlockingTx(ctx, tx, account.UserID, classification); err != nil {
			return nil, storeError(err, "failed to update blocking type")
		}
		account.BlockingType = classification

		if o.audits(role, OperationBlock) {
			cs := newChangeSet(account, actorID, op.id, OperationBlock)
			cs.add(PropertyIsBlocked, blockFlag(previous), blockFlag(blocked))
			st.record(cs)
		}

		st.emit(o.event(op, account, blocked, map[string]any{
			"blocking_type": string(classification),
		}))

		return NewAdminView(account, user), nil
	})
}

// BlockByProvider applies a block or unblock to every provider admin and
// employee of providerID. Manually blocked accounts are left alone. Each
// account runs as its own operation, failures are collected into the message.
func (o *Orchestrator) BlockByProvider(ctx context.Context, providerID uuid.UUID, blocked bool, actorID string) Response {
	ctx, span := o.tracer.Start(ctx, "provisioning.block_by_provider",
		trace.WithAttributes(
			attribute.String("provisioning.provider_id", providerID.String()),
			attribute.Bool("provisioning.blocked", blocked),
			attribute.String("provisioning.actor_id", actorID),
		),
	)
	defer span.End()

	if providerID == uuid.Nil {
		return NewResponseFromError(newValidationError(fmt.Errorf("providerId: cannot be blank")))
	}

	accounts, err := o.repo.Admins().ListByScope(ctx, AdminFilter{
		Roles:           []AdminRole{RoleProviderAdmin, RoleEmployee},
		ScopeID:         &providerID,
		ExcludeBlocking: []BlockingType{BlockingManual},
	})
	if err != nil {
		err = storeError(err, "failed to list provider admins")
		span.RecordError(err)
		o.logger.Error("bulk block failed", "provider_id", providerID, "error", err)
		return NewResponseFromError(err)
	}

	classification := BlockingNone
	if blocked {
		classification = BlockingAutomatic
	}

	results := make([]BulkBlockResult, 0, len(accounts))
	failures := 0

	var msg strings.Builder
	for _, account := range accounts {
		resp := o.block(ctx, account.Role, account.UserID, blocked, classification, actorID)
		results = append(results, BulkBlockResult{
			ID:             account.UserID,
			Role:           account.Role,
			IsSuccess:      resp.IsSuccess,
			HTTPStatusCode: resp.HTTPStatusCode,
			Message:        resp.Message,
		})
		if resp.IsSuccess {
			continue
		}
		failures++
		msg.WriteString(account.UserID.String())
		msg.WriteString(" ")
		msg.WriteString(statusName(resp.HTTPStatusCode))
		msg.WriteString(" ")
	}

	span.SetAttributes(
		attribute.Int("provisioning.accounts", len(accounts)),
		attribute.Int("provisioning.failures", failures),
	)

	o.logger.Info("bulk block completed",
		"provider_id", providerID,
		"blocked", blocked,
		"accounts", len(accounts),
		"failures", failures,
	)

	return Response{
		IsSuccess:      failures == 0,
		HTTPStatusCode: http.StatusOK,
		Message:        msg.String(),
		Result:         results,
	}
}

// statusName renders a status code as its reason phrase without spaces
func statusName(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return fmt.Sprintf("%d", code)
	}
	return strings.ReplaceAll(text, " ", "")
}
