package provisioning_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-provisioning"
)

type dispatcherFixture struct {
	db         *bun.DB
	identity   provisioning.IdentityStore
	user       *provisioning.User
	renderer   *stubRenderer
	mail       *mailbox
	dispatcher *provisioning.InvitationDispatcher
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	db := newTestDB(t)
	repo := provisioning.NewRepositoryManager(db)
	identity := provisioning.NewIdentityStore(repo, provisioning.WithHashCost(bcrypt.MinCost))

	user, err := identity.CreateWithPasswordTx(context.Background(), db, &provisioning.User{
		FirstName: "Olena",
		LastName:  "Kovalenko",
		Email:     "olena@example.com",
	}, "Str0ng!Passw0rd")
	require.NoError(t, err)

	f := &dispatcherFixture{
		db:       db,
		identity: identity,
		user:     user,
		renderer: &stubRenderer{},
		mail:     &mailbox{},
	}
	f.dispatcher = provisioning.NewInvitationDispatcher(identity, f.renderer, f.mail, provisioning.DefaultConfig().Invitation)
	return f
}

func TestPrepareUsesFallbackLink(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()
	op := uuid.New()

	inv, err := f.dispatcher.Prepare(ctx, f.db, op, f.user, "Temp!Passw0rd", nil)
	require.NoError(t, err)

	assert.Equal(t, op, inv.OperationID)
	assert.Equal(t, f.user.ID, inv.UserID)
	assert.Equal(t, "olena@example.com", inv.Recipient)
	assert.Equal(t, provisioning.DefaultConfig().Invitation.Subject, inv.Subject)
	assert.True(t, strings.HasPrefix(inv.Body, provisioning.DefaultInvitationTemplate+"|olena@example.com|"))

	model := f.renderer.Last()
	require.NotNil(t, model)
	assert.Equal(t, "Temp!Passw0rd", model["Password"])
	assert.Equal(t, "olena@example.com", model["Email"])

	link, err := url.Parse(model["ConfirmationUrl"].(string))
	require.NoError(t, err)
	assert.Equal(t, "/account/email-confirmation", link.Path)
	assert.Equal(t, f.user.ID.String(), link.Query().Get("userId"))
	assert.Equal(t, "http://localhost:8572/login", link.Query().Get("redirectUrl"))

	token := link.Query().Get("token")
	require.NotEmpty(t, token)
	assert.NoError(t, f.identity.VerifyTokenTx(ctx, f.db, f.user, provisioning.PurposeEmailConfirmation, token))
}

func TestPrepareUsesURLBuilder(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	fallback := &staticURLs{}
	f.dispatcher.WithURLBuilder(fallback)

	_, err := f.dispatcher.Prepare(ctx, f.db, uuid.New(), f.user, "Temp!Passw0rd", nil)
	require.NoError(t, err)
	assert.Equal(t, "EmailConfirmation", fallback.action)
	assert.Equal(t, "Account", fallback.controller)
	assert.Equal(t, "olena@example.com", fallback.params["email"])
	assert.Equal(t, "http://localhost:8572/login", fallback.params["redirectUrl"])

	perCall := &staticURLs{}
	_, err = f.dispatcher.Prepare(ctx, f.db, uuid.New(), f.user, "Temp!Passw0rd", perCall)
	require.NoError(t, err)
	assert.NotEmpty(t, perCall.params["token"])
	assert.NotEqual(t, fallback.params["token"], perCall.params["token"])
	assert.Equal(t, "https://app.example.com/Account/EmailConfirmation?token="+perCall.params["token"], f.renderer.Last()["ConfirmationUrl"])
}

func TestPrepareRenderFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	f.renderer.err = errors.New("template not found")

	_, err := f.dispatcher.Prepare(context.Background(), f.db, uuid.New(), f.user, "Temp!Passw0rd", nil)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, provisioning.TextCodeUnexpected, richErr.TextCode)
	assert.Equal(t, provisioning.DefaultInvitationTemplate, richErr.Metadata["template_id"])
}

func TestSend(t *testing.T) {
	f := newDispatcherFixture(t)
	ctx := context.Background()

	require.NoError(t, f.dispatcher.Send(ctx, nil))
	assert.Empty(t, f.mail.Sent())

	inv := &provisioning.Invitation{Recipient: "olena@example.com", Subject: "Hi", Body: "<p>hi</p>"}
	require.NoError(t, f.dispatcher.Send(ctx, inv))
	require.Len(t, f.mail.Sent(), 1)
	assert.Equal(t, sentMail{to: "olena@example.com", subject: "Hi", body: "<p>hi</p>"}, f.mail.Sent()[0])

	f.mail.fail = func(int) error { return errors.New("smtp: 554") }
	assert.Error(t, f.dispatcher.Send(ctx, inv))

	f.dispatcher.WithSender(nil)
	err := f.dispatcher.Send(ctx, inv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail sender not configured")
}
