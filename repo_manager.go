package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Organizations() Organizations
	Memberships() Memberships
	Projects() Projects
	SAMLConfigs() SAMLConfigs
	APITokens() APITokens
	Sessions() SessionStore
}

type mngr struct {
	db            *bun.DB
	users         Users
	organizations Organizations
	memberships   Memberships
	projects      Projects
	samlConfigs   SAMLConfigs
	apiTokens     APITokens
	sessions      SessionStore
}

// RepositoryManagerOption customizes the manager
type RepositoryManagerOption func(*mngr)

// WithSessionStore replaces the database backed session store
func WithSessionStore(store SessionStore) RepositoryManagerOption {
	return func(m *mngr) {
		if store != nil {
			m.sessions = store
		}
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryManagerOption) RepositoryManager {
	m := &mngr{
		db:            db,
		users:         NewUsersRepository(db),
		organizations: NewOrganizationsRepository(db),
		memberships:   NewMembershipsRepository(db),
		projects:      NewProjectsRepository(db),
		samlConfigs:   NewSAMLConfigsRepository(db),
		apiTokens:     NewAPITokensRepository(db),
		sessions:      NewSessionsRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.organizations == nil {
		return errors.New("repository organizations should be initialized")
	}

	if m.memberships == nil {
		return errors.New("repository memberships should be initialized")
	}

	if m.sessions == nil {
		return errors.New("session store should be initialized")
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

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Organizations() Organizations {
	return m.organizations
}

func (m mngr) Memberships() Memberships {
	return m.memberships
}

func (m mngr) Projects() Projects {
	return m.projects
}

func (m mngr) SAMLConfigs() SAMLConfigs {
	return m.samlConfigs
}

func (m mngr) APITokens() APITokens {
	return m.apiTokens
}

func (m mngr) Sessions() SessionStore {
	return m.sessions
}

func isRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	return repository.IsRecordNotFound(err) ||
		errors.Is(err, sql.ErrNoRows) ||
		goerrors.IsNotFound(err)
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
