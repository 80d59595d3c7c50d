package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/prophet-studio/go-accounts"
)

func TestSessionLoginPersistent(t *testing.T) {
	_, repo := newTestRepo(t)
	cfg := newTestConfig()
	sink := &recordingSink{}
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions := accounts.NewSessionManager(cfg, repo,
		accounts.WithSessionActivitySink(sink),
		accounts.WithSessionClock(func() time.Time { return now }),
	)

	user := createUser(t, repo, "login@example.com", false)
	ctx := newFakeContext()

	session, err := sessions.Login(ctx, user, true)
	require.NoError(t, err)
	assert.True(t, session.KeepLoggedIn)
	assert.Equal(t, now.Add(time.Hour), session.ExpiresAt)
	assert.Contains(t, session.Data, accounts.SessionDataLastLogin)

	cookie := ctx.cookie(accounts.DefaultSessionCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, session.Key.String(), cookie.Value)
	assert.True(t, cookie.HTTPOnly)
	assert.Equal(t, session.ExpiresAt, cookie.Expires)

	stored, err := repo.Sessions().Get(context.Background(), session.Key)
	require.NoError(t, err)
	assert.Equal(t, user.ID, stored.UserID)

	assert.Equal(t, []accounts.ActivityEventType{accounts.ActivityEventLoginSuccess}, sink.types())
}

func TestSessionLoginBrowserSession(t *testing.T) {
	_, repo := newTestRepo(t)
	sessions := accounts.NewSessionManager(newTestConfig(), repo)

	user := createUser(t, repo, "browser@example.com", false)
	ctx := newFakeContext()

	_, err := sessions.Login(ctx, user, false)
	require.NoError(t, err)

	cookie := ctx.cookie(accounts.DefaultSessionCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.Expires.IsZero())
}

func TestSessionCurrentFromCookie(t *testing.T) {
	_, repo := newTestRepo(t)
	sessions := accounts.NewSessionManager(newTestConfig(), repo)

	user := createUser(t, repo, "current@example.com", false)
	session, err := sessions.Login(newFakeContext(), user, true)
	require.NoError(t, err)

	ctx := newFakeContext().withSession(session.Key)
	current, currentUser, err := sessions.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Key, current.Key)
	assert.Equal(t, user.ID, currentUser.ID)
	assert.True(t, sessions.IsAuthenticated(ctx))
}

func TestSessionCurrentRejectsBadCookies(t *testing.T) {
	_, repo := newTestRepo(t)
	sessions := accounts.NewSessionManager(newTestConfig(), repo)

	_, _, err := sessions.Current(newFakeContext())
	assert.ErrorIs(t, err, accounts.ErrSessionNotFound)

	ctx := newFakeContext()
	ctx.cookies[accounts.DefaultSessionCookieName] = "not-a-uuid"
	_, _, err = sessions.Current(ctx)
	assert.ErrorIs(t, err, accounts.ErrSessionNotFound)

	_, _, err = sessions.Current(newFakeContext().withSession(uuid.New()))
	assert.ErrorIs(t, err, accounts.ErrSessionNotFound)
}

func TestSessionExpiredIsDeleted(t *testing.T) {
	_, repo := newTestRepo(t)
	now := time.Now()
	clock := func() time.Time { return now }
	sessions := accounts.NewSessionManager(newTestConfig(), repo, accounts.WithSessionClock(clock))

	user := createUser(t, repo, "expired@example.com", false)
	session, err := sessions.Login(newFakeContext(), user, false)
	require.NoError(t, err)

	now = now.Add(48 * time.Hour)

	_, _, err = sessions.Current(newFakeContext().withSession(session.Key))
	assert.ErrorIs(t, err, accounts.ErrSessionNotFound)

	_, err = repo.Sessions().Get(context.Background(), session.Key)
	require.Error(t, err)
}

func TestSessionBindOrganization(t *testing.T) {
	_, repo := newTestRepo(t)
	sessions := accounts.NewSessionManager(newTestConfig(), repo)

	user := createUser(t, repo, "bind@example.com", false)
	session, err := sessions.Login(newFakeContext(), user, true)
	require.NoError(t, err)

	orgID := uuid.New()
	require.NoError(t, sessions.BindOrganization(context.Background(), session, orgID))

	stored, err := repo.Sessions().Get(context.Background(), session.Key)
	require.NoError(t, err)
	require.NotNil(t, stored.OrganizationID)
	assert.Equal(t, orgID, *stored.OrganizationID)
	assert.Equal(t, orgID.String(), stored.Data[accounts.SessionDataOrganization])

	assert.ErrorIs(t, sessions.BindOrganization(context.Background(), nil, orgID), accounts.ErrSessionNotFound)
}

func TestSessionLogout(t *testing.T) {
	_, repo := newTestRepo(t)
	sink := &recordingSink{}
	sessions := accounts.NewSessionManager(newTestConfig(), repo, accounts.WithSessionActivitySink(sink))

	user := createUser(t, repo, "logout@example.com", false)
	session, err := sessions.Login(newFakeContext(), user, true)
	require.NoError(t, err)

	ctx := newFakeContext().withSession(session.Key)
	require.NoError(t, sessions.Logout(ctx))

	_, err = repo.Sessions().Get(context.Background(), session.Key)
	require.Error(t, err)

	for _, name := range []string{accounts.DefaultSessionCookieName, accounts.DefaultJWTCookieName} {
		cookie := ctx.cookie(name)
		require.NotNil(t, cookie, name)
		assert.Empty(t, cookie.Value)
		assert.True(t, cookie.Expires.Before(time.Now()))
	}

	assert.Contains(t, sink.types(), accounts.ActivityEventLogout)

	// logging out without a session only clears cookies
	require.NoError(t, sessions.Logout(newFakeContext()))
}
