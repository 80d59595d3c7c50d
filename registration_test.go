package accounts_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/prophet-studio/go-accounts"
)

func newRegistrar(t *testing.T, repo accounts.RepositoryManager, cfg accounts.Config, sink accounts.ActivitySink) *accounts.Registrar {
	t.Helper()
	orgs := accounts.NewOrganizationService(repo, accounts.WithOrganizationActivitySink(sink))
	sessions := accounts.NewSessionManager(cfg, repo, accounts.WithSessionActivitySink(sink))
	return accounts.NewRegistrar(cfg, repo, orgs, sessions,
		accounts.WithRegistrarPasswords(fastPasswords{}),
		accounts.WithRegistrarActivitySink(sink),
	)
}

func TestRegistrarFirstUserCreatesOrganization(t *testing.T) {
	_, repo := newTestRepo(t)
	cfg := newTestConfig()
	sink := &recordingSink{}
	registrar := newRegistrar(t, repo, cfg, sink)

	ctx := newFakeContext()
	next, err := registrar.SaveUser(ctx, accounts.RegistrationRequest{
		Form: &accounts.SignupRequest{
			Email:            "First@Example.com",
			Password:         "s3cret-pass",
			AllowNewsletters: true,
		},
		Next: "/projects/new",
	})
	require.NoError(t, err)
	assert.Equal(t, "/projects/new", next)

	user, err := repo.Users().FindByEmail(context.Background(), "first@example.com")
	require.NoError(t, err)
	assert.True(t, user.AllowNewsletters)
	require.True(t, user.HasActiveOrganization())

	org, err := repo.Organizations().FindByUUID(context.Background(), *user.ActiveOrganizationID)
	require.NoError(t, err)
	assert.Equal(t, accounts.DefaultSignupOrganizationTitle, org.Title)

	member, err := repo.Memberships().Find(context.Background(), user.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleOwner, member.Role)

	require.NoError(t, fastPasswords{}.ComparePasswordAndHash("s3cret-pass", user.PasswordHash))

	cookie := ctx.cookie(accounts.DefaultSessionCookieName)
	require.NotNil(t, cookie)
	assert.False(t, cookie.Expires.IsZero())

	analytics, ok := ctx.Locals(accounts.SignupAnalyticsKey).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, analytics["new-user"])

	assert.Contains(t, sink.types(), accounts.ActivityEventUserSignup)
}

func TestRegistrarJoinsExistingOrganization(t *testing.T) {
	_, repo := newTestRepo(t)
	cfg := newTestConfig()
	registrar := newRegistrar(t, repo, cfg, nil)

	owner := createUser(t, repo, "owner@example.com", false)
	org := createOrganization(t, repo, "Existing", owner)

	next, err := registrar.SaveUser(newFakeContext(), accounts.RegistrationRequest{
		Form:         &accounts.SignupRequest{Email: "joiner@example.com", Password: "s3cret-pass"},
		Organization: org,
		Next:         "https://evil.example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "/projects/", next)

	user, err := repo.Users().FindByEmail(context.Background(), "joiner@example.com")
	require.NoError(t, err)
	require.True(t, user.HasActiveOrganization())
	assert.Equal(t, org.ID, *user.ActiveOrganizationID)

	member, err := repo.Memberships().Find(context.Background(), user.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleMember, member.Role)
}

func TestRegistrarFallsBackToFirstOrganization(t *testing.T) {
	_, repo := newTestRepo(t)
	registrar := newRegistrar(t, repo, newTestConfig(), nil)

	owner := createUser(t, repo, "owner@example.com", false)
	first := createOrganization(t, repo, "First", owner)
	createOrganization(t, repo, "Second", owner)

	_, err := registrar.SaveUser(newFakeContext(), accounts.RegistrationRequest{
		Form: &accounts.SignupRequest{Email: "late@example.com", Password: "s3cret-pass"},
	})
	require.NoError(t, err)

	user, err := repo.Users().FindByEmail(context.Background(), "late@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, *user.ActiveOrganizationID)
}

func TestRegistrarRejectsTakenEmail(t *testing.T) {
	_, repo := newTestRepo(t)
	registrar := newRegistrar(t, repo, newTestConfig(), nil)

	createUser(t, repo, "taken@example.com", false)

	_, err := registrar.SaveUser(newFakeContext(), accounts.RegistrationRequest{
		Form: &accounts.SignupRequest{Email: "taken@example.com", Password: "s3cret-pass"},
	})
	assert.ErrorIs(t, err, accounts.ErrEmailTaken)

	exists, err := repo.Organizations().AnyExists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProceedRegistrationUsesInjectedSaver(t *testing.T) {
	var got accounts.RegistrationRequest
	saver := accounts.UserSaverFunc(func(ctx router.Context, req accounts.RegistrationRequest) (string, error) {
		got = req
		return "/custom", nil
	})

	form := &accounts.SignupRequest{Email: "custom@example.com"}
	next, err := accounts.ProceedRegistration(newFakeContext(), saver, accounts.RegistrationRequest{Form: form})
	require.NoError(t, err)
	assert.Equal(t, "/custom", next)
	assert.Same(t, form, got.Form)

	_, err = accounts.ProceedRegistration(newFakeContext(), nil, accounts.RegistrationRequest{Form: form})
	require.Error(t, err)
}
