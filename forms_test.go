package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	accounts "github.com/prophet-studio/go-accounts"
)

func TestSignupRequestValidate(t *testing.T) {
	valid := accounts.SignupRequest{Email: "new@example.com", Password: "long-enough"}
	require.NoError(t, valid.Validate())

	errs := accounts.FormErrors(accounts.SignupRequest{Email: "nope", Password: "short"}.Validate())
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")

	errs = accounts.FormErrors(accounts.SignupRequest{
		Email:        "new@example.com",
		Password:     "long-enough",
		Organization: "not-a-uuid",
	}.Validate())
	assert.Contains(t, errs, "organization")
}

func TestLoginRequestLeavesOrganizationToController(t *testing.T) {
	require.NoError(t, accounts.LoginRequest{
		Email:        "member@example.com",
		Password:     testPassword,
		Organization: "not-a-uuid",
	}.Validate())

	errs := accounts.FormErrors(accounts.LoginRequest{Email: "nope"}.Validate())
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
}

func TestProfileRequestValidate(t *testing.T) {
	require.NoError(t, accounts.ProfileRequest{FirstName: "Ada", Phone: "+14155550100"}.Validate())
	require.NoError(t, accounts.ProfileRequest{}.Validate())

	errs := accounts.FormErrors(accounts.ProfileRequest{Phone: "call me"}.Validate())
	assert.Contains(t, errs, "phone")

	user := &accounts.User{}
	accounts.ProfileRequest{FirstName: "Ada", LastName: "Lovelace", AllowNewsletters: true}.Apply(user)
	assert.Equal(t, "Ada Lovelace", user.FullName())
	assert.True(t, user.AllowNewsletters)
}

func TestFormErrorsFallbacks(t *testing.T) {
	assert.Empty(t, accounts.FormErrors(nil))

	errs := accounts.FormErrors(errors.New("boom", errors.CategoryInternal))
	assert.Equal(t, map[string]string{accounts.FormErrorKey: "boom"}, errs)
}

func newLoginForm(repo accounts.RepositoryManager, payload *accounts.LoginRequest) accounts.LoginForm {
	return accounts.NewCredentialsLoginFormFactory(repo.Users(), fastPasswords{}, nil)(payload)
}

func TestCredentialsLoginFormValid(t *testing.T) {
	_, repo := newTestRepo(t)
	user := createUser(t, repo, "valid@example.com", false)

	form := newLoginForm(repo, &accounts.LoginRequest{
		Email:          "valid@example.com",
		Password:       testPassword,
		PersistSession: true,
	})
	require.True(t, form.IsValid(context.Background()))
	assert.Equal(t, user.ID, form.CleanedUser().ID)
	assert.True(t, form.PersistSession())
	assert.Empty(t, form.Errors())
}

func TestCredentialsLoginFormWrongPassword(t *testing.T) {
	_, repo := newTestRepo(t)
	user := createUser(t, repo, "wrong@example.com", false)

	form := newLoginForm(repo, &accounts.LoginRequest{Email: "wrong@example.com", Password: "nope"})
	require.False(t, form.IsValid(context.Background()))
	assert.Equal(t, accounts.ErrMismatchedHashAndPassword.Message, form.Errors()[accounts.FormErrorKey])
	assert.Nil(t, form.CleanedUser())

	found, err := repo.Users().FindByUUID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.LoginAttempts)
}

func TestCredentialsLoginFormUnknownAndInvalid(t *testing.T) {
	_, repo := newTestRepo(t)

	form := newLoginForm(repo, &accounts.LoginRequest{Email: "ghost@example.com", Password: "x"})
	require.False(t, form.IsValid(context.Background()))
	assert.Equal(t, accounts.ErrMismatchedHashAndPassword.Message, form.Errors()[accounts.FormErrorKey])

	form = newLoginForm(repo, &accounts.LoginRequest{Email: "not-an-email"})
	require.False(t, form.IsValid(context.Background()))
	assert.Contains(t, form.Errors(), "email")
	assert.Contains(t, form.Errors(), "password")
}

func TestCredentialsLoginFormInactiveUser(t *testing.T) {
	db, repo := newTestRepo(t)
	user := createUser(t, repo, "inactive@example.com", false)
	setInactive(t, db, user)

	form := newLoginForm(repo, &accounts.LoginRequest{Email: "inactive@example.com", Password: testPassword})
	require.False(t, form.IsValid(context.Background()))
}

func TestCredentialsLoginFormLockout(t *testing.T) {
	db, repo := newTestRepo(t)
	user := createUser(t, repo, "locked@example.com", false)

	recent := time.Now().Add(-time.Hour)
	_, err := db.NewUpdate().
		Model((*accounts.User)(nil)).
		Set("login_attempts = ?", accounts.MaxLoginAttempts+1).
		Set("login_attempt_at = ?", recent).
		Where("id = ?", user.ID).
		Exec(context.Background())
	require.NoError(t, err)

	form := newLoginForm(repo, &accounts.LoginRequest{Email: "locked@example.com", Password: testPassword})
	require.False(t, form.IsValid(context.Background()))
	assert.Equal(t, accounts.ErrTooManyLoginAttempts.Message, form.Errors()[accounts.FormErrorKey])

	// attempts older than the cool down period are forgotten
	stale := time.Now().Add(-accounts.CoolDownPeriod - time.Hour)
	_, err = db.NewUpdate().
		Model((*accounts.User)(nil)).
		Set("login_attempt_at = ?", stale).
		Where("id = ?", user.ID).
		Exec(context.Background())
	require.NoError(t, err)

	form = newLoginForm(repo, &accounts.LoginRequest{Email: "locked@example.com", Password: testPassword})
	assert.True(t, form.IsValid(context.Background()))
}

func setInactive(t *testing.T, db *bun.DB, user *accounts.User) {
	t.Helper()
	_, err := db.NewUpdate().
		Model((*accounts.User)(nil)).
		Set("is_active = ?", false).
		Where("id = ?", user.ID).
		Exec(context.Background())
	require.NoError(t, err)
}
