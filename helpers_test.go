package accounts_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io/fs"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"

	accounts "github.com/prophet-studio/go-accounts"
)

const testPassword = "correct-horse-battery"

// newTestDB opens a private in memory database with the account tables
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	raw, err := fs.ReadFile(accounts.GetMigrationsFS(), "data/sql/migrations/0001_accounts.up.sql")
	require.NoError(t, err)

	for _, stmt := range strings.Split(string(raw), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := db.ExecContext(context.Background(), stmt)
		require.NoError(t, err, stmt)
	}

	return db
}

func newTestRepo(t *testing.T) (*bun.DB, accounts.RepositoryManager) {
	t.Helper()
	db := newTestDB(t)
	return db, accounts.NewRepositoryManager(db)
}

type testConfig struct {
	SigningKey               string
	Hostname                 string
	DisableSignupWithoutLink bool
	AvatarPath               string
	DefaultOrganizationTitle string
	SignupOrganizationTitle  string
	ProjectIndexPath         string
	JWTCookieDomain          string
	TokenExpiration          int
}

func newTestConfig() *testConfig {
	return &testConfig{
		SigningKey:       "test-signing-key-0123456789",
		Hostname:         "https://prophet.test",
		ProjectIndexPath: "/projects/",
	}
}

func (c *testConfig) GetSigningKey() string            { return c.SigningKey }
func (c *testConfig) GetSigningMethod() string         { return "HS256" }
func (c *testConfig) GetContextKey() string            { return "user" }
func (c *testConfig) GetTokenExpiration() int          { return c.TokenExpiration }
func (c *testConfig) GetIssuer() string                { return "prophet-test" }
func (c *testConfig) GetAudience() []string            { return []string{"prophet"} }
func (c *testConfig) GetJWTCookieName() string         { return accounts.DefaultJWTCookieName }
func (c *testConfig) GetJWTCookieDomain() string       { return c.JWTCookieDomain }
func (c *testConfig) GetSessionCookieName() string     { return accounts.DefaultSessionCookieName }
func (c *testConfig) GetMaxSessionAge() int            { return 3600 }
func (c *testConfig) GetHostname() string              { return c.Hostname }
func (c *testConfig) GetDisableSignupWithoutLink() bool { return c.DisableSignupWithoutLink }
func (c *testConfig) GetDefaultOrganizationTitle() string { return c.DefaultOrganizationTitle }
func (c *testConfig) GetSignupOrganizationTitle() string  { return c.SignupOrganizationTitle }
func (c *testConfig) GetAvatarPath() string               { return c.AvatarPath }
func (c *testConfig) GetProjectIndexPath() string         { return c.ProjectIndexPath }

// fastPasswords hashes with the minimum bcrypt cost
type fastPasswords struct{}

func (fastPasswords) HashPassword(password string) (string, error) {
	if password == "" {
		return "", accounts.ErrNoEmptyString
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return string(h), err
}

func (fastPasswords) ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return accounts.ErrMismatchedHashAndPassword
	}
	return nil
}

func createUser(t *testing.T, repo accounts.RepositoryManager, email string, superuser bool) *accounts.User {
	t.Helper()

	hash, err := fastPasswords{}.HashPassword(testPassword)
	require.NoError(t, err)

	user, err := repo.Users().Register(context.Background(), &accounts.User{
		Email:        email,
		PasswordHash: hash,
		IsSuperuser:  superuser,
	})
	require.NoError(t, err)
	return user
}

func createOrganization(t *testing.T, repo accounts.RepositoryManager, title string, owner *accounts.User) *accounts.Organization {
	t.Helper()

	org, err := accounts.NewOrganizationService(repo).CreateOrganization(context.Background(), title, owner)
	require.NoError(t, err)
	return org
}

// recordingSink keeps every activity event
type recordingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) types() []accounts.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// baseContext lets fakeContext embed router.Context while defining its own
// Context method
type baseContext interface{ router.Context }

// fakeContext is a router.Context backed by maps. Methods not overridden
// panic through the nil embedded interface.
type fakeContext struct {
	baseContext

	ctx         context.Context
	body        map[string]any
	headers     map[string]string
	cookies     map[string]string
	params      map[string]string
	query       map[string]string
	locals      map[any]any
	originalURL string

	status         int
	setCookies     []*router.Cookie
	rendered       string
	renderData     router.ViewContext
	redirect       string
	redirectStatus int
	jsonBody       any
	nextCalled     bool
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		ctx:         context.Background(),
		headers:     map[string]string{},
		cookies:     map[string]string{},
		params:      map[string]string{},
		query:       map[string]string{},
		locals:      map[any]any{},
		originalURL: "/",
		status:      200,
	}
}

// withSession returns a request carrying the session cookie
func (f *fakeContext) withSession(key uuid.UUID) *fakeContext {
	f.cookies[accounts.DefaultSessionCookieName] = key.String()
	return f
}

func (f *fakeContext) cookie(name string) *router.Cookie {
	for i := len(f.setCookies) - 1; i >= 0; i-- {
		if f.setCookies[i].Name == name {
			return f.setCookies[i]
		}
	}
	return nil
}

func (f *fakeContext) Next() error {
	f.nextCalled = true
	return nil
}

func (f *fakeContext) Context() context.Context { return f.ctx }

func (f *fakeContext) SetContext(ctx context.Context) { f.ctx = ctx }

func (f *fakeContext) Status(code int) router.Context {
	f.status = code
	return f
}

func (f *fakeContext) SendString(s string) error {
	f.jsonBody = s
	return nil
}

func (f *fakeContext) JSON(code int, val any) error {
	f.status = code
	f.jsonBody = val
	return nil
}

func (f *fakeContext) NoContent(code int) error {
	f.status = code
	return nil
}

func (f *fakeContext) Render(name string, bind any, layout ...string) error {
	f.rendered = name
	if data, ok := bind.(router.ViewContext); ok {
		f.renderData = data
	}
	return nil
}

func (f *fakeContext) Redirect(path string, status ...int) error {
	f.redirect = path
	f.redirectStatus = 302
	if len(status) > 0 {
		f.redirectStatus = status[0]
	}
	return nil
}

func (f *fakeContext) Header(key string) string { return f.headers[key] }

func (f *fakeContext) Bind(i any) error {
	raw, err := json.Marshal(f.body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, i)
}

func (f *fakeContext) Cookie(cookie *router.Cookie) {
	f.setCookies = append(f.setCookies, cookie)
}

func (f *fakeContext) Cookies(key string, defaultValue ...string) string {
	if v, ok := f.cookies[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (f *fakeContext) Param(key string, defaultValue ...string) string {
	if v, ok := f.params[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (f *fakeContext) Query(key string, defaultValue ...string) string {
	if v, ok := f.query[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (f *fakeContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		f.locals[key] = value[0]
		return value[0]
	}
	return f.locals[key]
}

func (f *fakeContext) OriginalURL() string { return f.originalURL }
