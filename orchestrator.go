package provisioning

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-provisioning"

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithConfig replaces the default configuration
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.config = cfg
	}
}

// WithNotifier overrides the notifier derived from the delivery mode
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithOutboxDeliverer sets the deliverer used by the default outbox notifier
func WithOutboxDeliverer(d *OutboxDeliverer) Option {
	return func(o *Orchestrator) {
		o.deliverer = d
	}
}

func WithChangeLogRecorder(r ChangeLogRecorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

func WithWorkshopLookup(w WorkshopLookup) Option {
	return func(o *Orchestrator) {
		o.workshops = w
	}
}

// WithEmailLock serializes Create calls per email address
func WithEmailLock(l EmailLock) Option {
	return func(o *Orchestrator) {
		o.lock = l
	}
}

func WithActivitySink(s ActivitySink) Option {
	return func(o *Orchestrator) {
		o.sink = s
	}
}

func WithMetrics(m Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

func WithLogger(l Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

func WithLoggerProvider(p LoggerProvider) Option {
	return func(o *Orchestrator) {
		o.loggerProvider = p
	}
}

// WithClock overrides the time source used for events and durations
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// Orchestrator runs admin account lifecycle operations across the identity
// store and the domain store as single units of work.
type Orchestrator struct {
	repo           RepositoryManager
	identity       IdentityStore
	invitations    *InvitationDispatcher
	notifier       Notifier
	deliverer      *OutboxDeliverer
	recorder       ChangeLogRecorder
	workshops      WorkshopLookup
	lock           EmailLock
	sink           ActivitySink
	metrics        Metrics
	tracer         trace.Tracer
	logger         Logger
	loggerProvider LoggerProvider
	config         Config
	now            func() time.Time
}

// NewOrchestrator validates the configuration and wires defaults for every
// collaborator not given through opts.
func NewOrchestrator(repo RepositoryManager, identity IdentityStore, invitations *InvitationDispatcher, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		repo:        repo,
		identity:    identity,
		invitations: invitations,
		config:      DefaultConfig(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if err := o.config.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid provisioning configuration").
			WithTextCode(TextCodeValidation)
	}

	if repo == nil || identity == nil || invitations == nil {
		return nil, goerrors.New("repository, identity store and invitation dispatcher are required", goerrors.CategoryInternal).
			WithTextCode(TextCodeUnexpected)
	}

	o.loggerProvider, o.logger = ResolveLogger("provisioning", o.loggerProvider, o.logger)

	if o.now == nil {
		o.now = time.Now
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.lock == nil {
		o.lock = noopEmailLock{}
	}
	if o.workshops == nil {
		o.workshops = repo.Workshops()
	}
	if o.recorder == nil {
		o.recorder = NewChangeLogRecorder(repo)
	}
	o.sink = normalizeActivitySink(o.sink)

	if o.notifier == nil {
		switch o.config.Delivery {
		case DeliveryInline:
			o.notifier = NewInlineNotifier(invitations)
		default:
			if o.deliverer == nil {
				o.deliverer = NewOutboxDeliverer(repo, invitations).
					WithMetrics(o.metrics).
					WithLogger(o.logger)
			}
			o.notifier = NewOutboxNotifier(repo, o.deliverer)
		}
	}

	return o, nil
}

// Config returns the active configuration
func (o *Orchestrator) Config() Config {
	return o.config
}

// Deliverer returns the outbox deliverer, nil in inline mode
func (o *Orchestrator) Deliverer() *OutboxDeliverer {
	return o.deliverer
}

// ChangeLog returns the recorder used for audit rows
func (o *Orchestrator) ChangeLog() ChangeLogRecorder {
	return o.recorder
}

// operation describes one logical provisioning call
type operation struct {
	id       uuid.UUID
	role     AdminRole
	kind     OperationKind
	actorID  string
	targetID string
	lockKey  string
	precheck func(ctx context.Context) error
}

func (o *Orchestrator) newOperation(role AdminRole, kind OperationKind, actorID, targetID string) *operation {
	return &operation{
		id:       uuid.New(),
		role:     role,
		kind:     kind,
		actorID:  actorID,
		targetID: targetID,
	}
}

type compensation struct {
	name string
	fn   func(ctx context.Context, tx bun.IDB) error
}

// attemptState is rebuilt for every execution of the transactional core
type attemptState struct {
	number        int
	changes       []*ChangeLogEntry
	events        []ActivityEvent
	compensations []compensation
	staged        int
	dispatched    bool
}

func (s *attemptState) onFailure(name string, fn func(ctx context.Context, tx bun.IDB) error) {
	s.compensations = append(s.compensations, compensation{name: name, fn: fn})
}

func (s *attemptState) record(cs *changeSet) {
	if cs == nil {
		return
	}
	s.changes = append(s.changes, cs.entries...)
}

func (s *attemptState) emit(evt ActivityEvent) {
	s.events = append(s.events, evt)
}

type coreFunc func(ctx context.Context, tx bun.Tx, st *attemptState) (any, error)

// run executes op: prechecks, then the transactional core under the retry
// policy, then the post commit side effects. Every outcome is an envelope.
func (o *Orchestrator) run(ctx context.Context, op *operation, core coreFunc) Response {
	start := o.now()

	ctx, span := o.tracer.Start(ctx, "provisioning."+strings.ToLower(string(op.kind)),
		trace.WithAttributes(
			attribute.String("provisioning.operation_id", op.id.String()),
			attribute.String("provisioning.role", op.role.String()),
			attribute.String("provisioning.actor_id", op.actorID),
			attribute.String("provisioning.target_id", op.targetID),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.config.OperationTimeout)
	defer cancel()

	result, st, err := o.execute(ctx, op, core)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.metrics.OperationCompleted(op.role, op.kind, OutcomeFailure, o.now().Sub(start))
		o.logFailure(op, err)
		return NewResponseFromError(err)
	}

	o.afterCommit(ctx, op, st)

	span.SetAttributes(attribute.Int("provisioning.attempts", st.number))
	span.SetStatus(codes.Ok, "")
	o.metrics.OperationCompleted(op.role, op.kind, OutcomeSuccess, o.now().Sub(start))
	o.logger.Info("admin operation completed",
		"operation", op.kind,
		"operation_id", op.id,
		"role", op.role,
		"target_id", op.targetID,
		"actor_id", op.actorID,
		"attempts", st.number,
	)

	return NewSuccessResponse(result)
}

func (o *Orchestrator) execute(ctx context.Context, op *operation, core coreFunc) (any, *attemptState, error) {
	select {
	case <-ctx.Done():
		return nil, nil, transientError(ctx.Err(), "operation cancelled")
	default:
	}

	if op.lockKey != "" {
		release, err := o.lock.Acquire(ctx, op.lockKey)
		if err != nil {
			return nil, nil, o.classify(err)
		}
		defer release()
	}

	if op.precheck != nil {
		if err := op.precheck(ctx); err != nil {
			return nil, nil, err
		}
	}

	var (
		result any
		final  *attemptState
	)

	err := retryTransient(ctx, o.config.Retry, func(n int) error {
		st := &attemptState{number: n}
		res, err := o.attempt(ctx, op, st, core)
		if err != nil {
			if st.dispatched {
				// the mail already left, running the core again would send a second one
				return backoff.Permanent(err)
			}
			return err
		}
		result, final = res, st
		return nil
	}, func(err error, wait time.Duration) {
		o.metrics.OperationRetried(op.role, op.kind)
		o.logger.Warn("transient failure, retrying admin operation",
			"operation", op.kind,
			"operation_id", op.id,
			"wait", wait,
			"error", err,
		)
	})
	if err != nil {
		return nil, nil, o.classify(err)
	}

	return result, final, nil
}

func (o *Orchestrator) attempt(ctx context.Context, op *operation, st *attemptState, core coreFunc) (any, error) {
	var result any

	err := o.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := core(ctx, tx, st)
		if err != nil {
			o.compensate(ctx, op, tx, st)
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, o.classify(err)
	}

	return result, nil
}

// compensate undoes the steps of a failed attempt in reverse order
func (o *Orchestrator) compensate(ctx context.Context, op *operation, tx bun.IDB, st *attemptState) {
	for i := len(st.compensations) - 1; i >= 0; i-- {
		c := st.compensations[i]
		if err := c.fn(ctx, tx); err != nil {
			o.logger.Error("compensation failed",
				"step", c.name,
				"operation_id", op.id,
				"error", err,
			)
			continue
		}
		o.logger.Debug("compensation applied", "step", c.name, "operation_id", op.id)
	}
	st.compensations = nil
}

// classify makes sure every error leaving an attempt carries a text code
func (o *Orchestrator) classify(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		return richErr
	}
	return storeError(err, "admin operation failed")
}

func (o *Orchestrator) afterCommit(ctx context.Context, op *operation, st *attemptState) {
	if st == nil {
		return
	}

	if st.staged > 0 {
		o.notifier.Flush(ctx, op.id)
	}

	if len(st.changes) > 0 {
		n, err := o.recorder.Append(ctx, st.changes...)
		if err != nil {
			o.metrics.ChangeLogAppended(op.role, op.kind, 0, false)
			o.logger.Error("failed to append change log",
				"operation_id", op.id,
				"rows", len(st.changes),
				"error", err,
			)
		} else {
			o.metrics.ChangeLogAppended(op.role, op.kind, n, true)
		}
	}

	for _, evt := range st.events {
		if err := o.sink.Record(ctx, evt); err != nil {
			o.logger.Warn("activity sink error", "event", evt.EventType, "operation_id", op.id, "error", err)
		}
	}
}

func (o *Orchestrator) logFailure(op *operation, err error) {
	args := []any{
		"operation", op.kind,
		"operation_id", op.id,
		"role", op.role,
		"target_id", op.targetID,
		"actor_id", op.actorID,
		"error", err,
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && (richErr.Category == goerrors.CategoryValidation || richErr.Category == goerrors.CategoryNotFound) {
		o.logger.Warn("admin operation rejected", args...)
		return
	}
	o.logger.Error("admin operation failed", args...)
}

// reject returns a failed envelope for errors found before any store access
func (o *Orchestrator) reject(op *operation, err error) Response {
	o.metrics.OperationCompleted(op.role, op.kind, OutcomeFailure, 0)
	o.logFailure(op, err)
	return NewResponseFromError(err)
}

func (o *Orchestrator) event(op *operation, account *AdminAccount, blocked bool, meta map[string]any) ActivityEvent {
	return ActivityEvent{
		EventType:   activityEventFor(op.kind, blocked),
		Actor:       ActorRef{ID: op.actorID, Type: "user"},
		OperationID: op.id,
		UserID:      account.UserID.String(),
		Role:        account.Role,
		ScopeID:     account.ScopeID.String(),
		Metadata:    meta,
		OccurredAt:  o.now().UTC(),
	}
}

func (o *Orchestrator) audits(role AdminRole, kind OperationKind) bool {
	return o.config.RoleSettings(role).Audits(kind)
}

func (o *Orchestrator) tracked(role AdminRole) []string {
	return o.config.RoleSettings(role).TrackedProperties
}

// ensureEmailFree fails when an identity other than exclude owns email
func (o *Orchestrator) ensureEmailFree(ctx context.Context, tx bun.IDB, email string, exclude uuid.UUID) error {
	existing, err := o.identity.FindByEmailTx(ctx, tx, email)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return identityError(err, "failed to look up email", goerrors.CodeInternal)
	}
	if existing != nil && existing.ID != exclude {
		return ErrDuplicateEmail(email)
	}
	return nil
}

// loadAccount fetches the account of role id, mapping a miss to ErrAdminNotFound
func (o *Orchestrator) loadAccount(ctx context.Context, tx bun.IDB, role AdminRole, id uuid.UUID) (*AdminAccount, error) {
	account, err := o.repo.Admins().GetByIDTx(ctx, tx, role, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrAdminNotFound(role, id.String())
		}
		return nil, storeError(err, "failed to load admin")
	}
	return account, nil
}

func (o *Orchestrator) loadIdentity(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	user, err := o.identity.FindByIDTx(ctx, tx, id)
	if err != nil {
		return nil, identityError(err, "failed to load identity", goerrors.CodeInternal)
	}
	return user, nil
}

// stageInvitation renders an invitation for user and hands it to the notifier
func (o *Orchestrator) stageInvitation(ctx context.Context, tx bun.IDB, op *operation, st *attemptState, user *User, password string, urls URLBuilder) error {
	inv, err := o.invitations.Prepare(ctx, tx, op.id, user, password, urls)
	if err != nil {
		return identityError(err, "failed to prepare invitation", goerrors.CodeInternal)
	}

	if err := o.notifier.Stage(ctx, tx, inv); err != nil {
		return err
	}

	st.staged++
	if o.notifier.Mode() == DeliveryInline {
		st.dispatched = true
	}
	return nil
}
