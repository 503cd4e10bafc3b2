package provisioning_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-provisioning"
)

// sentMail is one message accepted by the mailbox
type sentMail struct {
	to      string
	subject string
	body    string
}

// mailbox implements provisioning.MailSender, failing while fail returns an error
type mailbox struct {
	mu    sync.Mutex
	sent  []sentMail
	calls int
	fail  func(call int) error
}

func (m *mailbox) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail != nil {
		if err := m.fail(m.calls); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

func (m *mailbox) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

// stubRenderer keeps the view models it was asked to render
type stubRenderer struct {
	mu     sync.Mutex
	models []map[string]any
	err    error
}

func (r *stubRenderer) Render(templateID string, viewModel map[string]any) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.models = append(r.models, viewModel)
	return templateID + "|" + viewModel["Email"].(string) + "|" + viewModel["ConfirmationUrl"].(string), nil
}

func (r *stubRenderer) Last() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.models) == 0 {
		return nil
	}
	return r.models[len(r.models)-1]
}

func (r *stubRenderer) Password(i int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.models[i]["Password"].(string)
}

type capturingSink struct {
	mu     sync.Mutex
	events []provisioning.ActivityEvent
	err    error
}

func (c *capturingSink) Record(ctx context.Context, evt provisioning.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return c.err
}

func (c *capturingSink) Events() []provisioning.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]provisioning.ActivityEvent(nil), c.events...)
}

type completedOp struct {
	role    provisioning.AdminRole
	op      provisioning.OperationKind
	outcome string
}

type capturingMetrics struct {
	mu         sync.Mutex
	completed  []completedOp
	retried    int
	logged     int
	logFailed  int
	deliveries map[bool]int
}

func newCapturingMetrics() *capturingMetrics {
	return &capturingMetrics{deliveries: map[bool]int{}}
}

func (m *capturingMetrics) OperationCompleted(role provisioning.AdminRole, op provisioning.OperationKind, outcome string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, completedOp{role: role, op: op, outcome: outcome})
}

func (m *capturingMetrics) OperationRetried(role provisioning.AdminRole, op provisioning.OperationKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retried++
}

func (m *capturingMetrics) ChangeLogAppended(role provisioning.AdminRole, op provisioning.OperationKind, rows int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !ok {
		m.logFailed++
		return
	}
	m.logged += rows
}

func (m *capturingMetrics) OutboxDelivery(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries[ok]++
}

func (m *capturingMetrics) Retried() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retried
}

func (m *capturingMetrics) Last() completedOp {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.completed) == 0 {
		return completedOp{}
	}
	return m.completed[len(m.completed)-1]
}

// faultyIdentity wraps a real identity store and injects failures
type faultyIdentity struct {
	provisioning.IdentityStore

	mu          sync.Mutex
	addRoleErr  func(call int) error
	addRoleCall int
	updateErr   func(user *provisioning.User) error
	deletes     int
}

func (f *faultyIdentity) AddToRoleTx(ctx context.Context, tx bun.IDB, user *provisioning.User, role string) error {
	f.mu.Lock()
	f.addRoleCall++
	call := f.addRoleCall
	f.mu.Unlock()

	if f.addRoleErr != nil {
		if err := f.addRoleErr(call); err != nil {
			return err
		}
	}
	return f.IdentityStore.AddToRoleTx(ctx, tx, user, role)
}

func (f *faultyIdentity) UpdateTx(ctx context.Context, tx bun.IDB, user *provisioning.User) error {
	if f.updateErr != nil {
		if err := f.updateErr(user); err != nil {
			return err
		}
	}
	return f.IdentityStore.UpdateTx(ctx, tx, user)
}

func (f *faultyIdentity) DeleteTx(ctx context.Context, tx bun.IDB, user *provisioning.User) error {
	f.mu.Lock()
	f.deletes++
	f.mu.Unlock()
	return f.IdentityStore.DeleteTx(ctx, tx, user)
}

func (f *faultyIdentity) Deletes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes
}

// recordingLock is an in process EmailLock
type recordingLock struct {
	mu       sync.Mutex
	keys     []string
	released int
	err      error
}

func (l *recordingLock) Acquire(ctx context.Context, email string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.keys = append(l.keys, email)
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

type failingRecorder struct {
	provisioning.ChangeLogRecorder
	appends int
}

func (r *failingRecorder) Append(ctx context.Context, entries ...*provisioning.ChangeLogEntry) (int, error) {
	r.appends++
	return 0, errors.New("change log store unavailable")
}

// staticURLs implements provisioning.URLBuilder
type staticURLs struct {
	action     string
	controller string
	params     map[string]string
}

func (s *staticURLs) BuildConfirmationLink(action, controller string, params map[string]string) (string, error) {
	s.action = action
	s.controller = controller
	s.params = params
	return "https://app.example.com/" + controller + "/" + action + "?token=" + params["token"], nil
}

func ids(workshops ...*provisioning.Workshop) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(workshops))
	for _, w := range workshops {
		out = append(out, w.ID)
	}
	return out
}
