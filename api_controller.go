package accounts

import (
	"net/http"
	"strconv"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/prophet-studio/go-accounts/middleware/jwtware"
)

// RegisterAPIRoutes mounts the JSON endpoints, all but the token endpoint
// require an access token
func RegisterAPIRoutes[T any](app router.Router[T], api *APIController) {
	app.Post("/api/token", api.ObtainToken).
		SetName("api-token.post")

	authenticated := api.Protect(jwtware.Config{})
	members := api.Protect(jwtware.Config{OrganizationParam: "pk"})
	superusers := api.Protect(jwtware.Config{RequireSuperuser: true})

	app.Get("/api/organizations", api.ListOrganizations, authenticated).
		SetName("api-organizations.get")
	app.Get("/api/organizations/:pk/memberships", api.ListMemberships, members).
		SetName("api-memberships.get")
	app.Delete("/api/organizations/:pk/memberships/:user_id", api.RemoveMembership, members).
		SetName("api-memberships.delete")
	app.Get("/api/users", api.ListUsers, superusers).
		SetName("api-users.get")
}

type APIController struct {
	Logger       Logger
	ErrorHandler router.ErrorHandler
	ContextKey   string

	cfg       Config
	repo      RepositoryManager
	orgs      *OrganizationService
	tokens    TokenService
	payloads  *PayloadHandler
	loginForm LoginFormFactory
}

type APIControllerOption func(*APIController)

func WithAPILogger(logger Logger) APIControllerOption {
	return func(a *APIController) {
		if logger != nil {
			a.Logger = logger
		}
	}
}

func WithAPIOrganizationService(orgs *OrganizationService) APIControllerOption {
	return func(a *APIController) {
		a.orgs = orgs
	}
}

func WithAPITokenService(tokens TokenService) APIControllerOption {
	return func(a *APIController) {
		a.tokens = tokens
	}
}

func WithAPILoginFormFactory(factory LoginFormFactory) APIControllerOption {
	return func(a *APIController) {
		a.loginForm = factory
	}
}

func NewAPIController(cfg Config, repo RepositoryManager, opts ...APIControllerOption) *APIController {
	a := &APIController{
		Logger:     NoopLogger(),
		ContextKey: cfg.GetContextKey(),
		cfg:        cfg,
		repo:       repo,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if a.ContextKey == "" {
		a.ContextKey = "user"
	}

	if a.ErrorHandler == nil {
		a.ErrorHandler = NewJSONErrorHandler(a.Logger)
	}

	if a.orgs == nil {
		a.orgs = NewOrganizationService(repo, WithOrganizationLogger(a.Logger))
	}

	if a.tokens == nil {
		a.tokens = NewTokenServiceFromConfig(cfg, a.Logger)
	}

	if a.payloads == nil {
		a.payloads = NewPayloadHandler(repo, cfg)
	}

	if a.loginForm == nil {
		a.loginForm = NewCredentialsLoginFormFactory(repo.Users(), nil, a.Logger)
	}

	return a
}

// Protect returns the jwt middleware for the API routes. Tokens are read
// from the Authorization header or the access token cookie.
func (a *APIController) Protect(cfg jwtware.Config) router.MiddlewareFunc {
	cfg.TokenValidator = a.tokens
	cfg.ContextKey = a.ContextKey
	if cfg.TokenLookup == "" {
		cookie := a.cfg.GetJWTCookieName()
		if cookie == "" {
			cookie = DefaultJWTCookieName
		}
		cfg.TokenLookup = "header:" + router.HeaderAuthorization + ",cookie:" + cookie
	}
	if cfg.ContextEnricher == nil {
		cfg.ContextEnricher = ContextEnricherAdapter
	}
	RegisterValidationListeners(&cfg, ActiveUserListener(a.repo.Users()))
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(ctx router.Context, err error) error {
			var richErr *errors.Error
			switch {
			case errors.As(err, &richErr):
				return a.ErrorHandler(ctx, richErr)
			case errors.Is(err, jwtware.ErrSuperuserRequired):
				return a.ErrorHandler(ctx, ErrSuperuserRequired)
			case errors.Is(err, jwtware.ErrNotMember):
				return a.ErrorHandler(ctx, ErrNotOrganizationMember)
			}
			return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized))
		}
	}
	return jwtware.New(cfg)
}

func (a *APIController) claims(ctx router.Context) (jwtware.AuthClaims, uuid.UUID, error) {
	claims, ok := GetRouterClaims(ctx, a.ContextKey)
	if !ok || claims == nil {
		return nil, uuid.Nil, ErrSessionNotFound
	}

	id, err := uuid.Parse(claims.UserID())
	if err != nil {
		return nil, uuid.Nil, ErrTokenMalformed
	}

	return claims, id, nil
}

// ObtainToken exchanges credentials for an access token
func (a *APIController) ObtainToken(ctx router.Context) error {
	payload := new(TokenRequest)
	if err := ctx.Bind(payload); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{
			"errors": map[string]string{FormErrorKey: "Failed to parse body"},
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"errors": FormErrors(err)})
	}

	form := a.loginForm(&LoginRequest{Email: payload.Email, Password: payload.Password})
	if !form.IsValid(ctx.Context()) {
		return ctx.JSON(http.StatusBadRequest, map[string]any{"errors": form.Errors()})
	}

	claims, err := a.payloads.Payload(ctx.Context(), form.CleanedUser())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	token, err := a.tokens.SignClaims(claims)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(http.StatusOK, map[string]any{"token": token})
}

func (a *APIController) ListOrganizations(ctx router.Context) error {
	claims, userID, err := a.claims(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	var orgs []*Organization
	if claims.IsSuperuser() {
		orgs, err = a.repo.Organizations().ListAll(ctx.Context())
	} else {
		orgs, err = a.repo.Organizations().ListForUser(ctx.Context(), userID)
	}
	if err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryInternal, "failed to list organizations"))
	}

	return ctx.JSON(http.StatusOK, orgs)
}

// organizationForCaller loads the :pk organization and makes sure the
// caller is a member, returning the caller membership
func (a *APIController) organizationForCaller(ctx router.Context, claims jwtware.AuthClaims, userID uuid.UUID) (*Organization, *OrganizationMember, error) {
	orgID, err := uuid.Parse(ctx.Param("pk", ""))
	if err != nil {
		return nil, nil, ErrOrganizationNotFound
	}

	org, err := a.repo.Organizations().FindByUUID(ctx.Context(), orgID)
	if err != nil {
		if isRecordNotFound(err) {
			return nil, nil, ErrOrganizationNotFound
		}
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to load organization")
	}

	member, err := a.repo.Memberships().Find(ctx.Context(), userID, org.ID)
	if err != nil {
		if !isRecordNotFound(err) {
			return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to load membership")
		}
		if !claims.IsSuperuser() {
			return nil, nil, ErrNotOrganizationMember
		}
		member = nil
	}

	return org, member, nil
}

func queryInt(ctx router.Context, key string, def int) int {
	raw := ctx.Query(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	return v
}

func (a *APIController) ListMemberships(ctx router.Context) error {
	claims, userID, err := a.claims(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	org, _, err := a.organizationForCaller(ctx, claims, userID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	page, err := a.repo.Memberships().Page(ctx.Context(), org.ID,
		queryInt(ctx, "page", 1),
		queryInt(ctx, "page_size", DefaultPageSize),
	)
	if err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryInternal, "failed to list memberships"))
	}

	return ctx.JSON(http.StatusOK, page)
}

func (a *APIController) RemoveMembership(ctx router.Context) error {
	claims, callerID, err := a.claims(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	targetID, err := uuid.Parse(ctx.Param("user_id", ""))
	if err != nil {
		return a.ErrorHandler(ctx, errors.New("user not found", errors.CategoryNotFound).
			WithCode(errors.CodeNotFound))
	}

	if targetID == callerID {
		return a.ErrorHandler(ctx, ErrCannotRemoveSelf)
	}

	org, member, err := a.organizationForCaller(ctx, claims, callerID)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if !claims.IsSuperuser() && (member == nil || !member.Role.CanManageMembers()) {
		return a.ErrorHandler(ctx, ErrNotOrganizationMember)
	}

	target, err := a.repo.Users().FindByUUID(ctx.Context(), targetID)
	if err != nil {
		if isRecordNotFound(err) {
			return a.ErrorHandler(ctx, errors.New("user not found", errors.CategoryNotFound).
				WithCode(errors.CodeNotFound))
		}
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryInternal, "failed to load user"))
	}

	if err := a.orgs.RemoveMember(ctx.Context(), org, target); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	a.Logger.Info("membership removed", "organization_id", org.ID, "user_id", targetID, "by", callerID)

	return ctx.NoContent(http.StatusNoContent)
}

func (a *APIController) ListUsers(ctx router.Context) error {
	claims, _, err := a.claims(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if !claims.IsSuperuser() {
		return a.ErrorHandler(ctx, ErrSuperuserRequired)
	}

	users, err := a.repo.Users().ListAll(ctx.Context())
	if err != nil {
		return a.ErrorHandler(ctx, errors.Wrap(err, errors.CategoryInternal, "failed to list users"))
	}

	return ctx.JSON(http.StatusOK, users)
}
