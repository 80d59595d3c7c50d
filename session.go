package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

const (
	localsSessionKey = "accounts_session"
	localsUserKey    = "accounts_user"

	// SessionDataLastLogin is stamped on every login
	SessionDataLastLogin = "last_login"
	// SessionDataOrganization mirrors the bound organization
	SessionDataOrganization = "organization_pk"

	browserSessionTTL = 24 * time.Hour
)

// SessionManager logs users in and out of server side sessions
type SessionManager struct {
	cfg      Config
	users    Users
	store    SessionStore
	activity ActivitySink
	logger   Logger
	provider LoggerProvider
	now      Clock
}

// SessionManagerOption customizes the manager
type SessionManagerOption func(*SessionManager)

func WithSessionLogger(logger Logger) SessionManagerOption {
	return func(m *SessionManager) {
		m.provider, m.logger = ResolveLogger("accounts.sessions", m.provider, logger)
	}
}

func WithSessionActivitySink(sink ActivitySink) SessionManagerOption {
	return func(m *SessionManager) {
		m.activity = normalizeActivitySink(sink)
	}
}

func WithSessionClock(now Clock) SessionManagerOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

func NewSessionManager(cfg Config, repo RepositoryManager, opts ...SessionManagerOption) *SessionManager {
	m := &SessionManager{
		cfg:      cfg,
		users:    repo.Users(),
		store:    repo.Sessions(),
		activity: noopActivitySink{},
		logger:   NoopLogger(),
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m *SessionManager) maxSessionAge() time.Duration {
	if age := m.cfg.GetMaxSessionAge(); age > 0 {
		return time.Duration(age) * time.Second
	}
	return 14 * 24 * time.Hour
}

// Login creates a session for the user, stamps the last login time and sets
// the session cookie. Non persistent sessions use a browser session cookie.
func (m *SessionManager) Login(ctx router.Context, user *User, persist bool) (*Session, error) {
	now := m.now()

	ttl := m.maxSessionAge()
	if !persist {
		ttl = browserSessionTTL
	}

	session := &Session{
		Key:            uuid.New(),
		UserID:         user.ID,
		OrganizationID: user.ActiveOrganizationID,
		KeepLoggedIn:   persist,
		LastLogin:      now,
		ExpiresAt:      now.Add(ttl),
	}
	session.Set(SessionDataLastLogin, now.Unix())

	if err := m.store.Save(ctx.Context(), session); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create session")
	}

	if err := m.users.TrackSucccessfulLogin(ctx.Context(), user); err != nil {
		m.logger.Error("failed to track successful login", "user_id", user.ID, "error", err)
	}

	cookie := &router.Cookie{
		Name:     m.cfg.GetSessionCookieName(),
		Value:    session.Key.String(),
		Path:     "/",
		HTTPOnly: true,
		SameSite: "Lax",
	}
	// no expiry makes it a browser session cookie
	if persist {
		cookie.Expires = session.ExpiresAt
	}
	ctx.Cookie(cookie)

	ctx.Locals(localsSessionKey, session)
	ctx.Locals(localsUserKey, user)

	recordActivity(ctx.Context(), m.activity, m.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		ActorID:   user.ID.String(),
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"persist_session": persist},
	})

	return session, nil
}

// BindOrganization records the organization on the session
func (m *SessionManager) BindOrganization(ctx context.Context, session *Session, orgID uuid.UUID) error {
	if session == nil {
		return ErrSessionNotFound
	}
	session.OrganizationID = &orgID
	session.Set(SessionDataOrganization, orgID.String())
	return m.store.Save(ctx, session)
}

// Current returns the session and user of the request
func (m *SessionManager) Current(ctx router.Context) (*Session, *User, error) {
	if session, ok := ctx.Locals(localsSessionKey).(*Session); ok && session != nil {
		if user, ok := ctx.Locals(localsUserKey).(*User); ok && user != nil {
			return session, user, nil
		}
	}

	raw := ctx.Cookies(m.cfg.GetSessionCookieName())
	if raw == "" {
		return nil, nil, ErrSessionNotFound
	}

	key, err := uuid.Parse(raw)
	if err != nil {
		return nil, nil, ErrSessionNotFound
	}

	session, err := m.store.Get(ctx.Context(), key)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to load session")
	}

	if session.Expired(m.now()) {
		_ = m.store.Delete(ctx.Context(), key)
		return nil, nil, ErrSessionNotFound
	}

	user, err := m.users.FindByUUID(ctx.Context(), session.UserID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to load session user")
	}

	ctx.Locals(localsSessionKey, session)
	ctx.Locals(localsUserKey, user)

	return session, user, nil
}

// IsAuthenticated reports whether the request carries a valid session
func (m *SessionManager) IsAuthenticated(ctx router.Context) bool {
	_, _, err := m.Current(ctx)
	return err == nil
}

// Logout destroys the session and clears the session and token cookies
func (m *SessionManager) Logout(ctx router.Context) error {
	session, user, err := m.Current(ctx)
	if err == nil {
		if err := m.store.Delete(ctx.Context(), session.Key); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to delete session")
		}

		recordActivity(ctx.Context(), m.activity, m.logger, ActivityEvent{
			EventType: ActivityEventLogout,
			ActorID:   user.ID.String(),
			UserID:    user.ID.String(),
		})
	}

	ctx.Locals(localsSessionKey, nil)
	ctx.Locals(localsUserKey, nil)

	deleteCookie(ctx, m.cfg.GetSessionCookieName(), "")
	deleteCookie(ctx, m.cfg.GetJWTCookieName(), m.cfg.GetJWTCookieDomain())

	return nil
}
