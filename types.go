package accounts

import (
	"context"
	"time"

	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// Logger is the structured logger used across the package
type Logger = glog.Logger

// LoggerProvider hands out named loggers
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Config holds account options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	// GetJWTCookieName is the name of the cookie holding the access token
	GetJWTCookieName() string
	GetJWTCookieDomain() string
	GetSessionCookieName() string
	// GetMaxSessionAge is the cookie lifetime in seconds for persistent sessions
	GetMaxSessionAge() int
	GetHostname() string
	GetDisableSignupWithoutLink() bool
	GetDefaultOrganizationTitle() string
	GetSignupOrganizationTitle() string
	GetAvatarPath() string
	GetProjectIndexPath() string
}

// UserSaver persists a validated signup and returns the redirect target
type UserSaver interface {
	SaveUser(ctx router.Context, req RegistrationRequest) (string, error)
}

// UserSaverFunc adapts a function to the UserSaver interface
type UserSaverFunc func(ctx router.Context, req RegistrationRequest) (string, error)

// SaveUser implements UserSaver
func (f UserSaverFunc) SaveUser(ctx router.Context, req RegistrationRequest) (string, error) {
	return f(ctx, req)
}

// LoginForm validates login credentials
type LoginForm interface {
	IsValid(ctx context.Context) bool
	CleanedUser() *User
	PersistSession() bool
	Errors() map[string]string
}

// LoginFormFactory builds a LoginForm from a posted payload
type LoginFormFactory func(payload *LoginRequest) LoginForm

// SessionStore persists login sessions
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, key uuid.UUID) (*Session, error)
	Delete(ctx context.Context, key uuid.UUID) error
}

// OrganizationSessionStore is implemented by stores that can unbind every
// session from an organization
type OrganizationSessionStore interface {
	ClearOrganization(ctx context.Context, orgID uuid.UUID) error
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Clock returns the current time, tests override it
type Clock func() time.Time
