package accounts

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	repository.Repository[*User]

	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error
	TrackSucccessfulLogin(ctx context.Context, user *User) error
	TrackSucccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	FindByUUID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	SetActiveOrganization(ctx context.Context, user *User, orgID *uuid.UUID) error
	SetActiveOrganizationTx(ctx context.Context, tx bun.IDB, user *User, orgID *uuid.UUID) error
	ClearActiveOrganization(ctx context.Context, orgID uuid.UUID) (int64, error)
	UpdateProfile(ctx context.Context, user *User) error
	UpdateAvatar(ctx context.Context, id uuid.UUID, avatar string) error
	ListAll(ctx context.Context) ([]*User, error)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

// RegisterTx inserts the user, deriving a stable id from the email when none is set
func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, err
	}
	return user, nil
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.findOneTx(ctx, tx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (a *users) FindByUUID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindByUUIDTx(ctx, a.db, id)
}

func (a *users) FindByUUIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.findOneTx(ctx, tx, "id", id)
}

func (a *users) findOneTx(ctx context.Context, tx bun.IDB, column string, value any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					column: fmt.Sprint(value),
				})
		}
		return nil, err
	}
	return record, nil
}

func (a *users) SetActiveOrganization(ctx context.Context, user *User, orgID *uuid.UUID) error {
	return a.SetActiveOrganizationTx(ctx, a.db, user, orgID)
}

// SetActiveOrganizationTx persists only the active organization column
func (a *users) SetActiveOrganizationTx(ctx context.Context, tx bun.IDB, user *User, orgID *uuid.UUID) error {
	user.ActiveOrganizationID = orgID
	_, err := tx.NewUpdate().
		Model(user).
		Column("active_organization_id").
		WherePK().
		Exec(ctx)
	return err
}

// ClearActiveOrganization unsets the active organization of every user
// pointing at orgID and returns how many were updated
func (a *users) ClearActiveOrganization(ctx context.Context, orgID uuid.UUID) (int64, error) {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("active_organization_id = NULL").
		Where("active_organization_id = ?", orgID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (a *users) UpdateProfile(ctx context.Context, user *User) error {
	now := time.Now()
	user.UpdatedAt = &now
	_, err := a.db.NewUpdate().
		Model(user).
		Column("first_name", "last_name", "phone", "allow_newsletters", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

func (a *users) UpdateAvatar(ctx context.Context, id uuid.UUID, avatar string) error {
	res, err := a.db.NewUpdate().
		Model((*User)(nil)).
		Set("avatar = ?", avatar).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}
	return nil
}

func (a *users) ListAll(ctx context.Context) ([]*User, error) {
	records := []*User{}
	err := a.db.NewSelect().
		Model(&records).
		Order("email ASC").
		Scan(ctx)
	return records, err
}

func (a *users) TrackSucccessfulLogin(ctx context.Context, user *User) error {
	return a.TrackSucccessfulLoginTx(ctx, a.db, user)
}

func (a *users) TrackSucccessfulLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	now := time.Now()
	user.LastLogin = &now
	user.LastActivity = &now
	user.LoginAttempts = 0
	user.LoginAttemptAt = nil

	_, err := tx.NewUpdate().
		Model(user).
		Column("last_login", "last_activity", "login_attempts", "login_attempt_at").
		WherePK().
		Exec(ctx)
	return err
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, user)
}

func (a *users) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, user *User) error {
	now := time.Now()
	user.LoginAttempts = user.LoginAttempts + 1
	user.LoginAttemptAt = &now

	_, err := tx.NewUpdate().
		Model(user).
		Column("login_attempts", "login_attempt_at").
		WherePK().
		Exec(ctx)
	return err
}

func prepareUserDefaults(user *User) {
	if user == nil {
		return
	}

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Username == "" {
		user.Username = UsernameFromEmail(user.Email)
	}

	if user.ID == uuid.Nil {
		if isEmail(user.Email) {
			if id, err := hashid.NewUUID(user.Email); err == nil {
				user.ID = id
			}
		}
		if user.ID == uuid.Nil {
			user.ID = uuid.New()
		}
	}

	if !user.IsActive {
		user.IsActive = true
	}
}

func isEmail(val string) bool {
	if val == "" {
		return false
	}
	_, err := mail.ParseAddress(val)
	return err == nil
}
