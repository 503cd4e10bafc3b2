package provisioning_test

import (
	"context"
	"database/sql"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-provisioning"
)

const sqliteMigration = "data/sql/migrations/sqlite/20250610120000_admin_provisioning.up.sql"

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	raw, err := fs.ReadFile(provisioning.GetMigrationsFS(), sqliteMigration)
	require.NoError(t, err)

	for _, stmt := range strings.Split(string(raw), "--bun:split") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	return db
}

type testEnv struct {
	t          *testing.T
	db         *bun.DB
	repo       provisioning.RepositoryManager
	identity   provisioning.IdentityStore
	renderer   *stubRenderer
	mail       *mailbox
	sink       *capturingSink
	metrics    *capturingMetrics
	config     provisioning.Config
	dispatcher *provisioning.InvitationDispatcher
	opts       []provisioning.Option
	orch       *provisioning.Orchestrator

	providerID uuid.UUID
	otherID    uuid.UUID
	workshops  []*provisioning.Workshop
	foreign    *provisioning.Workshop
}

// newTestEnv builds an orchestrator over an in memory database. configure
// runs before the orchestrator is created.
func newTestEnv(t *testing.T, configure ...func(env *testEnv)) *testEnv {
	t.Helper()

	db := newTestDB(t)
	repo := provisioning.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())

	cfg := provisioning.DefaultConfig()
	cfg.Retry.InitialInterval = time.Millisecond
	cfg.Retry.MaxInterval = 2 * time.Millisecond

	env := &testEnv{
		t:          t,
		db:         db,
		repo:       repo,
		identity:   provisioning.NewIdentityStore(repo, provisioning.WithHashCost(bcrypt.MinCost)),
		renderer:   &stubRenderer{},
		mail:       &mailbox{},
		sink:       &capturingSink{},
		metrics:    newCapturingMetrics(),
		config:     cfg,
		providerID: uuid.New(),
		otherID:    uuid.New(),
	}
	env.seedWorkshops()

	for _, fn := range configure {
		fn(env)
	}

	env.dispatcher = provisioning.NewInvitationDispatcher(env.identity, env.renderer, env.mail, env.config.Invitation)

	opts := []provisioning.Option{
		provisioning.WithConfig(env.config),
		provisioning.WithActivitySink(env.sink),
		provisioning.WithMetrics(env.metrics),
	}
	opts = append(opts, env.opts...)

	orch, err := provisioning.NewOrchestrator(repo, env.identity, env.dispatcher, opts...)
	require.NoError(t, err)
	env.orch = orch

	return env
}

func (e *testEnv) seedWorkshops() {
	e.workshops = []*provisioning.Workshop{
		{ID: uuid.New(), ProviderID: e.providerID, Title: "Robotics"},
		{ID: uuid.New(), ProviderID: e.providerID, Title: "Chess"},
		{ID: uuid.New(), ProviderID: e.providerID, Title: "Painting"},
	}
	e.foreign = &provisioning.Workshop{ID: uuid.New(), ProviderID: e.otherID, Title: "Swimming"}

	rows := append(append([]*provisioning.Workshop(nil), e.workshops...), e.foreign)
	_, err := e.db.NewInsert().Model(&rows).Exec(context.Background())
	require.NoError(e.t, err)
}

func (e *testEnv) createMessage(email string, scope uuid.UUID, workshops ...*provisioning.Workshop) provisioning.CreateAdminMessage {
	return provisioning.CreateAdminMessage{
		FirstName:   "Olena",
		LastName:    "Kovalenko",
		Email:       email,
		ScopeID:     scope,
		WorkshopIDs: ids(workshops...),
	}
}

// mustCreate provisions an admin and returns its view
func (e *testEnv) mustCreate(role provisioning.AdminRole, msg provisioning.CreateAdminMessage) *provisioning.AdminView {
	e.t.Helper()
	resp := e.orch.For(role).Create(context.Background(), msg, "actor-1", nil)
	require.True(e.t, resp.IsSuccess, resp.Message)
	view, ok := resp.Result.(*provisioning.AdminView)
	require.True(e.t, ok)
	return view
}

func (e *testEnv) userCount() int {
	e.t.Helper()
	n, err := e.db.NewSelect().Model((*provisioning.User)(nil)).Count(context.Background())
	require.NoError(e.t, err)
	return n
}

func (e *testEnv) user(id uuid.UUID) *provisioning.User {
	e.t.Helper()
	u, err := e.identity.FindByID(context.Background(), id)
	require.NoError(e.t, err)
	return u
}

func (e *testEnv) changes(filter provisioning.ChangeLogFilter) []*provisioning.ChangeLogEntry {
	e.t.Helper()
	rows, _, err := e.orch.ChangeLog().List(context.Background(), filter)
	require.NoError(e.t, err)
	return rows
}

func (e *testEnv) lastEvent() provisioning.ActivityEvent {
	e.t.Helper()
	events := e.sink.Events()
	require.NotEmpty(e.t, events)
	return events[len(events)-1]
}

func propertyRows(rows []*provisioning.ChangeLogEntry) map[string]*provisioning.ChangeLogEntry {
	out := make(map[string]*provisioning.ChangeLogEntry, len(rows))
	for _, r := range rows {
		key := r.PropertyName
		if r.WorkshopID != nil {
			key += ":" + r.WorkshopID.String()
		}
		out[key] = r
	}
	return out
}
