package accounts

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// DefaultLoginOrganizationTitle is the organization users join on login
// when they have none
const DefaultLoginOrganizationTitle = "Default"

// RegisterAccountRoutes mounts the account pages on app
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountsControllerOption) *AccountsController {
	controller := NewAccountsController(opts...)

	app.Get(controller.Routes.Login, controller.LoginShow).
		SetName("user-login.get")
	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("user-login.post")

	app.Get(controller.Routes.Signup, controller.SignupShow).
		SetName("user-signup.get")
	app.Post(controller.Routes.Signup, controller.SignupPost).
		SetName("user-signup.post")

	app.Get(controller.Routes.Logout, controller.Logout).
		SetName("logout.get")

	app.Get(controller.Routes.Account, controller.AccountShow).
		SetName("user-account.get")
	app.Post(controller.Routes.Account, controller.AccountUpdate).
		SetName("user-account.post")

	app.Get(controller.Routes.People, controller.PeopleList).
		SetName("organization-people.get")

	return controller
}

type AccountsRoutes struct {
	Login   string
	Signup  string
	Logout  string
	Account string
	People  string
}

type AccountsViews struct {
	Login   string
	Signup  string
	Account string
	People  string
}

type AccountsController struct {
	Debug        bool
	Logger       Logger
	Routes       *AccountsRoutes
	Views        *AccountsViews
	ErrorHandler router.ErrorHandler

	cfg       Config
	repo      RepositoryManager
	orgs      *OrganizationService
	sessions  *SessionManager
	tokens    TokenService
	payloads  *PayloadHandler
	saver     UserSaver
	loginForm LoginFormFactory
	activity  ActivitySink
	now       Clock
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func WithConfig(cfg Config) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.cfg = cfg
		return c
	}
}

func WithRepository(repo RepositoryManager) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.repo = repo
		return c
	}
}

// WithUserSaver replaces the signup persistence strategy
func WithUserSaver(saver UserSaver) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.saver = saver
		return c
	}
}

// WithLoginFormFactory replaces the login form strategy
func WithLoginFormFactory(factory LoginFormFactory) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.loginForm = factory
		return c
	}
}

func WithSessionManager(sessions *SessionManager) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.sessions = sessions
		return c
	}
}

func WithOrganizationService(orgs *OrganizationService) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.orgs = orgs
		return c
	}
}

func WithTokenService(tokens TokenService) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.tokens = tokens
		return c
	}
}

func WithPayloadHandler(payloads *PayloadHandler) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.payloads = payloads
		return c
	}
}

func WithActivitySink(sink ActivitySink) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.activity = normalizeActivitySink(sink)
		return c
	}
}

func WithLogger(logger Logger) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithErrorHandler(handler router.ErrorHandler) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

func WithDebug(debug bool) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Debug = debug
		return c
	}
}

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger:   NoopLogger(),
		activity: noopActivitySink{},
		now:      time.Now,
		Routes: &AccountsRoutes{
			Login:   "/user/login",
			Signup:  "/user/signup",
			Logout:  "/logout",
			Account: "/user/account",
			People:  "/organization",
		},
		Views: &AccountsViews{
			Login:   "users/login",
			Signup:  "users/signup",
			Account: "users/account",
			People:  "organizations/people_list",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	if c.repo == nil {
		panic("Missing RepositoryManager in accounts controller...")
	}

	if c.cfg == nil {
		panic("Missing Config in accounts controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = NewErrorHandler(c.Logger)
	}

	if c.orgs == nil {
		c.orgs = NewOrganizationService(c.repo,
			WithOrganizationLogger(c.Logger),
			WithOrganizationActivitySink(c.activity),
		)
	}

	if c.sessions == nil {
		c.sessions = NewSessionManager(c.cfg, c.repo,
			WithSessionLogger(c.Logger),
			WithSessionActivitySink(c.activity),
		)
	}

	if c.tokens == nil {
		c.tokens = NewTokenServiceFromConfig(c.cfg, c.Logger)
	}

	if c.payloads == nil {
		c.payloads = NewPayloadHandler(c.repo, c.cfg)
	}

	if c.saver == nil {
		c.saver = NewRegistrar(c.cfg, c.repo, c.orgs, c.sessions,
			WithRegistrarLogger(c.Logger),
			WithRegistrarActivitySink(c.activity),
		)
	}

	if c.loginForm == nil {
		c.loginForm = NewCredentialsLoginFormFactory(c.repo.Users(), nil, c.Logger)
	}

	return c
}

// Sessions exposes the session manager used by the controller
func (a *AccountsController) Sessions() *SessionManager {
	return a.sessions
}

func (a *AccountsController) nextPage(ctx router.Context) string {
	index := a.cfg.GetProjectIndexPath()
	if index == "" {
		index = "/projects/"
	}
	return safeRedirect(ctx.Query("next", ""), index)
}

func (a *AccountsController) requireLogin(ctx router.Context) error {
	target := a.Routes.Login + "?next=" + url.QueryEscape(ctx.OriginalURL())
	return ctx.Redirect(target, http.StatusFound)
}

func (a *AccountsController) organizations(ctx router.Context) []*Organization {
	orgs, err := a.repo.Organizations().ListAll(ctx.Context())
	if err != nil {
		a.Logger.Error("failed to list organizations", "error", err)
		return []*Organization{}
	}
	return orgs
}

func (a *AccountsController) LoginShow(ctx router.Context) error {
	next := a.nextPage(ctx)
	if a.sessions.IsAuthenticated(ctx) {
		return ctx.Redirect(next, http.StatusFound)
	}

	return a.renderLogin(ctx, &LoginRequest{}, map[string]string{}, next)
}

func (a *AccountsController) renderLogin(ctx router.Context, form *LoginRequest, errs map[string]string, next string) error {
	form.Password = ""
	return ctx.Render(a.Views.Login, router.ViewContext{
		"form":          form,
		"errors":        errs,
		"next":          next,
		"organizations": a.organizations(ctx),
	})
}

func (a *AccountsController) LoginPost(ctx router.Context) error {
	next := a.nextPage(ctx)
	if a.sessions.IsAuthenticated(ctx) {
		return ctx.Redirect(next, http.StatusFound)
	}

	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.renderLogin(ctx, payload, map[string]string{FormErrorKey: "Failed to parse form"}, next)
	}

	if a.Debug {
		a.Logger.Debug("login attempt", "payload", print.MaybePrettyJSON(map[string]any{
			"email":           payload.Email,
			"organization":    payload.Organization,
			"persist_session": payload.PersistSession,
		}))
	}

	form := a.loginForm(payload)
	if !form.IsValid(ctx.Context()) {
		recordActivity(ctx.Context(), a.activity, a.Logger, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"email": payload.Email},
		})
		return a.renderLogin(ctx, payload, form.Errors(), next)
	}

	user := form.CleanedUser()
	persist := form.PersistSession()

	session, err := a.sessions.Login(ctx, user, persist)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	// past this point a failed login must not leave the session behind
	fail := func(err error) error {
		if lerr := a.sessions.Logout(ctx); lerr != nil {
			a.Logger.Error("failed to discard session of failed login", "user_id", user.ID, "error", lerr)
		}
		return a.ErrorHandler(ctx, err)
	}

	org, err := a.resolveLoginOrganization(ctx, session, user, payload.Organization)
	if err != nil {
		return fail(err)
	}

	if _, err := a.orgs.CheckAddOrganization(ctx.Context(), user, a.loginOrganizationTitle(), org); err != nil {
		return fail(err)
	}

	claims, err := a.payloads.Payload(ctx.Context(), user)
	if err != nil {
		return fail(err)
	}

	token, err := a.tokens.SignClaims(claims)
	if err != nil {
		return fail(err)
	}

	setJWTCookie(ctx, a.cfg, token, persist, a.now())

	a.Logger.Info("user logged in", "user_id", user.ID, "active_organization", claims.ActiveOrganization)

	return ctx.Redirect(next, http.StatusSeeOther)
}

// loginOrganizationTitle names the organization users without one join on login
func (a *AccountsController) loginOrganizationTitle() string {
	if title := a.cfg.GetDefaultOrganizationTitle(); title != "" {
		return title
	}
	return DefaultLoginOrganizationTitle
}

// resolveLoginOrganization binds the posted organization. Superusers that
// are not members join it, everybody else is denied. With nothing posted the
// active organization is kept.
func (a *AccountsController) resolveLoginOrganization(ctx router.Context, session *Session, user *User, raw string) (*Organization, error) {
	if raw == "" {
		if !user.HasActiveOrganization() {
			return nil, nil
		}
		org, err := a.repo.Organizations().FindByUUID(ctx.Context(), *user.ActiveOrganizationID)
		if err != nil {
			if isRecordNotFound(err) {
				return nil, nil
			}
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load active organization")
		}
		return org, nil
	}

	deny := func() (*Organization, error) {
		recordActivity(ctx.Context(), a.activity, a.Logger, ActivityEvent{
			EventType: ActivityEventLoginDenied,
			UserID:    user.ID.String(),
			Metadata:  map[string]any{"organization": raw},
		})
		return nil, ErrNotOrganizationMember
	}

	orgID, err := uuid.Parse(raw)
	if err != nil {
		if user.IsSuperuser {
			return nil, ErrOrganizationNotFound
		}
		return deny()
	}

	org, err := a.repo.Organizations().FindByUUID(ctx.Context(), orgID)
	if err != nil {
		if !isRecordNotFound(err) {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load organization")
		}
		if user.IsSuperuser {
			return nil, ErrOrganizationNotFound
		}
		return deny()
	}

	if _, err := a.repo.Memberships().Find(ctx.Context(), user.ID, org.ID); err != nil {
		if !isRecordNotFound(err) {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load membership")
		}
		if !user.IsSuperuser {
			return deny()
		}
		if _, err := a.orgs.AddUser(ctx.Context(), org, user); err != nil {
			return nil, err
		}
	}

	if err := a.sessions.BindOrganization(ctx.Context(), session, org.ID); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to bind session organization")
	}

	return org, nil
}

func (a *AccountsController) SignupShow(ctx router.Context) error {
	next := a.nextPage(ctx)
	if a.sessions.IsAuthenticated(ctx) {
		return ctx.Redirect(next, http.StatusFound)
	}

	return a.renderSignup(ctx, &SignupRequest{}, map[string]string{}, next)
}

func (a *AccountsController) renderSignup(ctx router.Context, form *SignupRequest, errs map[string]string, next string) error {
	form.Password = ""
	return ctx.Render(a.Views.Signup, router.ViewContext{
		"user_form":     form,
		"errors":        errs,
		"next":          next,
		"token":         ctx.Query("token", ""),
		"organizations": a.organizations(ctx),
	})
}

func (a *AccountsController) SignupPost(ctx router.Context) error {
	next := a.nextPage(ctx)
	if a.sessions.IsAuthenticated(ctx) {
		return ctx.Redirect(next, http.StatusFound)
	}

	payload := new(SignupRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("signup parse payload", "error", err)
		return a.renderSignup(ctx, payload, map[string]string{FormErrorKey: "Failed to parse form"}, next)
	}

	org, err := a.signupOrganization(ctx, payload.Organization)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := a.checkSignupToken(ctx.Query("token", ""), org); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderSignup(ctx, payload, FormErrors(err), next)
	}

	redirect, err := ProceedRegistration(ctx, a.saver, RegistrationRequest{
		Form:         payload,
		Organization: org,
		Next:         next,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return a.renderSignup(ctx, payload, map[string]string{"email": ErrEmailTaken.Message}, next)
		}
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(redirect, http.StatusSeeOther)
}

func (a *AccountsController) signupOrganization(ctx router.Context, raw string) (*Organization, error) {
	if raw == "" {
		org, err := a.repo.Organizations().FirstOrganization(ctx.Context())
		if err != nil {
			if isRecordNotFound(err) {
				return nil, nil
			}
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load organization")
		}
		return org, nil
	}

	orgID, err := uuid.Parse(raw)
	if err != nil {
		return nil, ErrOrganizationNotFound
	}

	org, err := a.repo.Organizations().FindByUUID(ctx.Context(), orgID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, ErrOrganizationNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load organization")
	}
	return org, nil
}

// checkSignupToken enforces invite links. Link only signup requires a
// matching token, otherwise only a present and wrong token is rejected.
func (a *AccountsController) checkSignupToken(token string, org *Organization) error {
	matches := org != nil && token != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(org.Token)) == 1

	if a.cfg.GetDisableSignupWithoutLink() {
		if !matches {
			return ErrSignupTokenMismatch
		}
		return nil
	}

	if token != "" && org != nil && !matches {
		return ErrSignupTokenMismatch
	}
	return nil
}

func (a *AccountsController) Logout(ctx router.Context) error {
	if !a.sessions.IsAuthenticated(ctx) {
		return a.requireLogin(ctx)
	}

	if err := a.sessions.Logout(ctx); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Redirect(hostnameRedirect(a.cfg.GetHostname()), http.StatusFound)
}

// accountContext loads the logged in user, redirecting when there is no
// session or no organization to work in
func (a *AccountsController) accountContext(ctx router.Context) (*User, bool, error) {
	session, user, err := a.sessions.Current(ctx)
	if err != nil {
		return nil, false, a.requireLogin(ctx)
	}

	if !user.HasActiveOrganization() && session.OrganizationID == nil {
		return nil, false, ctx.Redirect("/", http.StatusFound)
	}

	return user, true, nil
}

func (a *AccountsController) renderAccount(ctx router.Context, user *User, form ProfileRequest, errs map[string]string) error {
	token, err := a.repo.APITokens().GetOrCreateForUser(ctx.Context(), user.ID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Account, router.ViewContext{
		"user":              user,
		"user_profile_form": form,
		"errors":            errs,
		"token":             token.Key,
	})
}

func profileFromUser(user *User) ProfileRequest {
	return ProfileRequest{
		FirstName:        user.FirstName,
		LastName:         user.LastName,
		Phone:            user.Phone,
		AllowNewsletters: user.AllowNewsletters,
	}
}

func (a *AccountsController) AccountShow(ctx router.Context) error {
	user, ok, err := a.accountContext(ctx)
	if !ok {
		return err
	}

	return a.renderAccount(ctx, user, profileFromUser(user), map[string]string{})
}

func (a *AccountsController) AccountUpdate(ctx router.Context) error {
	user, ok, err := a.accountContext(ctx)
	if !ok {
		return err
	}

	payload := new(ProfileRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("account parse payload", "error", err)
		return a.renderAccount(ctx, user, profileFromUser(user), map[string]string{FormErrorKey: "Failed to parse form"})
	}

	if err := payload.Validate(); err != nil {
		return a.renderAccount(ctx, user, *payload, FormErrors(err))
	}

	payload.Apply(user)
	if err := a.repo.Users().UpdateProfile(ctx.Context(), user); err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryInternal, "failed to update profile"))
	}

	return ctx.Redirect(a.Routes.Account, http.StatusSeeOther)
}

func (a *AccountsController) PeopleList(ctx router.Context) error {
	_, user, err := a.sessions.Current(ctx)
	if err != nil {
		return a.requireLogin(ctx)
	}

	organizationID := ""
	if user.HasActiveOrganization() {
		organizationID = user.ActiveOrganizationID.String()
	}

	return ctx.Render(a.Views.People, router.ViewContext{
		"user":            user,
		"organization_id": organizationID,
	})
}
