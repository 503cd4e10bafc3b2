package provisioning

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Notifier moves invitations out of the transactional core.
// Stage runs inside the transaction, Flush after commit.
type Notifier interface {
	Mode() DeliveryMode
	Stage(ctx context.Context, tx bun.IDB, inv *Invitation) error
	Flush(ctx context.Context, operationID uuid.UUID)
}

// OutboxMessageID derives the outbox row id of an invitation. Retried
// attempts of one operation map to the same row.
func OutboxMessageID(operationID uuid.UUID, recipient string) uuid.UUID {
	id, err := hashid.NewUUID(operationID.String() + ":" + normalizeEmail(recipient))
	if err != nil {
		return uuid.NewSHA1(operationID, []byte(normalizeEmail(recipient)))
	}
	return id
}

type outboxNotifier struct {
	repo      RepositoryManager
	deliverer *OutboxDeliverer
	logger    Logger
}

// NewOutboxNotifier stages invitations in the outbox table and delivers them
// once the transaction commits. Undelivered rows are left for the worker.
func NewOutboxNotifier(repo RepositoryManager, deliverer *OutboxDeliverer) Notifier {
	_, logger := ResolveLogger("outbox", nil, nil)
	return &outboxNotifier{
		repo:      repo,
		deliverer: deliverer,
		logger:    logger,
	}
}

func (n *outboxNotifier) Mode() DeliveryMode {
	return DeliveryOutbox
}

func (n *outboxNotifier) Stage(ctx context.Context, tx bun.IDB, inv *Invitation) error {
	msg := &OutboxMessage{
		ID:          OutboxMessageID(inv.OperationID, inv.Recipient),
		OperationID: inv.OperationID,
		Recipient:   inv.Recipient,
		Subject:     inv.Subject,
		Body:        inv.Body,
		Status:      OutboxPending,
	}

	inserted, err := n.repo.Outbox().EnqueueTx(ctx, tx, msg)
	if err != nil {
		return storeError(err, "failed to enqueue invitation")
	}
	if !inserted {
		n.logger.Debug("invitation already enqueued", "operation_id", inv.OperationID, "recipient", inv.Recipient)
	}
	return nil
}

func (n *outboxNotifier) Flush(ctx context.Context, operationID uuid.UUID) {
	if n.deliverer == nil {
		return
	}
	if _, err := n.deliverer.DeliverOperation(ctx, operationID); err != nil {
		n.logger.Warn("post commit delivery incomplete, worker will retry", "operation_id", operationID, "error", err)
	}
}

type inlineNotifier struct {
	dispatcher *InvitationDispatcher
}

// NewInlineNotifier sends invitations inside the transaction, so the
// operation commits only after the mail was accepted.
func NewInlineNotifier(dispatcher *InvitationDispatcher) Notifier {
	return &inlineNotifier{dispatcher: dispatcher}
}

func (n *inlineNotifier) Mode() DeliveryMode {
	return DeliveryInline
}

func (n *inlineNotifier) Stage(ctx context.Context, _ bun.IDB, inv *Invitation) error {
	if err := n.dispatcher.Send(ctx, inv); err != nil {
		if IsTransient(err) {
			return transientError(err, "failed to send invitation")
		}
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send invitation").
			WithTextCode(TextCodeUnexpected).
			WithCode(goerrors.CodeInternal)
	}
	return nil
}

func (n *inlineNotifier) Flush(context.Context, uuid.UUID) {}

// OutboxDeliverer sends pending outbox rows through the invitation dispatcher
type OutboxDeliverer struct {
	repo        RepositoryManager
	dispatcher  *InvitationDispatcher
	logger      Logger
	metrics     Metrics
	maxAttempts int
	staleAfter  time.Duration
	batchSize   int
	now         func() time.Time
}

func NewOutboxDeliverer(repo RepositoryManager, dispatcher *InvitationDispatcher) *OutboxDeliverer {
	_, logger := ResolveLogger("outbox", nil, nil)
	return &OutboxDeliverer{
		repo:        repo,
		dispatcher:  dispatcher,
		logger:      logger,
		metrics:     noopMetrics{},
		maxAttempts: 10,
		staleAfter:  5 * time.Minute,
		batchSize:   50,
		now:         time.Now,
	}
}

func (d *OutboxDeliverer) WithLogger(logger Logger) *OutboxDeliverer {
	if logger != nil {
		d.logger = logger
	}
	return d
}

func (d *OutboxDeliverer) WithMetrics(metrics Metrics) *OutboxDeliverer {
	if metrics != nil {
		d.metrics = metrics
	}
	return d
}

// WithMaxAttempts parks a message as failed after n delivery attempts
func (d *OutboxDeliverer) WithMaxAttempts(n int) *OutboxDeliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

// WithStaleAfter sets how long a claimed row may stay in sending before it
// can be claimed again
func (d *OutboxDeliverer) WithStaleAfter(ttl time.Duration) *OutboxDeliverer {
	if ttl > 0 {
		d.staleAfter = ttl
	}
	return d
}

func (d *OutboxDeliverer) WithBatchSize(n int) *OutboxDeliverer {
	if n > 0 {
		d.batchSize = n
	}
	return d
}

// DeliverOperation sends the pending messages of one operation
func (d *OutboxDeliverer) DeliverOperation(ctx context.Context, operationID uuid.UUID) (int, error) {
	msgs, err := d.repo.Outbox().ListByOperation(ctx, operationID)
	if err != nil {
		return 0, err
	}
	return d.deliver(ctx, msgs)
}

// DeliverPending sends one batch of pending and stale messages
func (d *OutboxDeliverer) DeliverPending(ctx context.Context) (int, error) {
	msgs, err := d.repo.Outbox().ListDeliverable(ctx, d.staleBefore(), d.batchSize)
	if err != nil {
		return 0, err
	}
	return d.deliver(ctx, msgs)
}

func (d *OutboxDeliverer) deliver(ctx context.Context, msgs []*OutboxMessage) (int, error) {
	sent := 0
	var firstErr error

	for _, msg := range msgs {
		if msg.Status == OutboxSent || msg.Status == OutboxFailed {
			continue
		}

		ok, err := d.deliverOne(ctx, msg)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ok {
			sent++
		}
	}

	return sent, firstErr
}

func (d *OutboxDeliverer) deliverOne(ctx context.Context, msg *OutboxMessage) (bool, error) {
	claimed, err := d.repo.Outbox().Claim(ctx, msg.ID, d.staleBefore())
	if err != nil {
		return false, err
	}
	if !claimed {
		// another worker owns it
		return false, nil
	}
	attempts := msg.Attempts + 1

	err = d.dispatcher.Send(ctx, &Invitation{
		OperationID: msg.OperationID,
		Recipient:   msg.Recipient,
		Subject:     msg.Subject,
		Body:        msg.Body,
	})
	if err != nil {
		final := attempts >= d.maxAttempts
		d.metrics.OutboxDelivery(false)
		if markErr := d.repo.Outbox().MarkFailed(ctx, msg.ID, err.Error(), final); markErr != nil {
			d.logger.Error("failed to record outbox failure", "id", msg.ID, "error", markErr)
		}
		if final {
			d.logger.Error("outbox message parked after max attempts", "id", msg.ID, "attempts", attempts)
		}
		return false, err
	}

	d.metrics.OutboxDelivery(true)
	if err := d.repo.Outbox().MarkSent(ctx, msg.ID); err != nil {
		// the mail left; a stale claim could resend it
		d.logger.Error("failed to mark outbox message sent", "id", msg.ID, "error", err)
		return true, err
	}
	return true, nil
}

func (d *OutboxDeliverer) staleBefore() time.Time {
	return d.now().UTC().Add(-d.staleAfter)
}
