package provisioning

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	DB() *bun.DB
	Users() Users
	UserTokens() UserTokens
	Admins() AdminAccounts
	Workshops() Workshops
	ChangeLogs() ChangeLogs
	Outbox() OutboxMessages
}

type mngr struct {
	db         *bun.DB
	users      Users
	tokens     UserTokens
	admins     AdminAccounts
	workshops  Workshops
	changeLogs ChangeLogs
	outbox     OutboxMessages
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:         db,
		users:      NewUsersRepository(db),
		tokens:     NewUserTokensRepository(db),
		admins:     NewAdminAccountsRepository(db),
		workshops:  NewWorkshopsRepository(db),
		changeLogs: NewChangeLogsRepository(),
		outbox:     NewOutboxRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("database should be initialized")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.tokens == nil {
		return errors.New("repository user tokens should be initialized")
	}

	if m.admins == nil {
		return errors.New("repository admins should be initialized")
	}

	if m.workshops == nil {
		return errors.New("repository workshops should be initialized")
	}

	if m.changeLogs == nil {
		return errors.New("repository change logs should be initialized")
	}

	if m.outbox == nil {
		return errors.New("repository outbox should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) DB() *bun.DB {
	return m.db
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) UserTokens() UserTokens {
	return m.tokens
}

func (m mngr) Admins() AdminAccounts {
	return m.admins
}

func (m mngr) Workshops() Workshops {
	return m.workshops
}

func (m mngr) ChangeLogs() ChangeLogs {
	return m.changeLogs
}

func (m mngr) Outbox() OutboxMessages {
	return m.outbox
}
