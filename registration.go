package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun"
)

// SignupAnalyticsKey is the request local holding signup analytics data
const SignupAnalyticsKey = "advanced_json"

// DefaultSignupOrganizationTitle names the organization created for the
// first user to sign up
const DefaultSignupOrganizationTitle = "Prophet Studio"

// Registrar is the default UserSaver. It stores the user, binds the
// organization and opens a session.
type Registrar struct {
	repo      RepositoryManager
	orgs      *OrganizationService
	sessions  *SessionManager
	passwords PasswordAuthenticator
	cfg       Config
	activity  ActivitySink
	logger    Logger
	provider  LoggerProvider
}

// RegistrarOption customizes the registrar
type RegistrarOption func(*Registrar)

func WithRegistrarLogger(logger Logger) RegistrarOption {
	return func(r *Registrar) {
		r.provider, r.logger = ResolveLogger("accounts.registrar", r.provider, logger)
	}
}

func WithRegistrarPasswords(passwords PasswordAuthenticator) RegistrarOption {
	return func(r *Registrar) {
		if passwords != nil {
			r.passwords = passwords
		}
	}
}

func WithRegistrarActivitySink(sink ActivitySink) RegistrarOption {
	return func(r *Registrar) {
		r.activity = normalizeActivitySink(sink)
	}
}

func NewRegistrar(cfg Config, repo RepositoryManager, orgs *OrganizationService, sessions *SessionManager, opts ...RegistrarOption) *Registrar {
	r := &Registrar{
		repo:      repo,
		orgs:      orgs,
		sessions:  sessions,
		passwords: NewPasswordAuthenticator(),
		cfg:       cfg,
		activity:  noopActivitySink{},
		logger:    NoopLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// SaveUser implements UserSaver
func (r *Registrar) SaveUser(ctx router.Context, req RegistrationRequest) (string, error) {
	if req.Form == nil {
		return "", errors.New("missing signup form", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	hash, err := r.passwords.HashPassword(req.Form.Password)
	if err != nil {
		return "", err
	}

	user := &User{
		Email:            req.Form.Email,
		PasswordHash:     hash,
		AllowNewsletters: req.Form.AllowNewsletters,
	}

	var org *Organization
	err = r.repo.RunInTx(ctx.Context(), nil, func(txCtx context.Context, tx bun.Tx) error {
		var err error
		if _, err = r.repo.Users().FindByEmailTx(txCtx, tx, user.Email); err == nil {
			return ErrEmailTaken
		} else if !isRecordNotFound(err) {
			return errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
		}

		if user, err = r.repo.Users().RegisterTx(txCtx, tx, user); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to register user")
		}

		org, err = r.resolveOrganizationTx(txCtx, tx, req.Organization, user)
		if err != nil {
			return err
		}

		orgID := org.ID
		return r.repo.Users().SetActiveOrganizationTx(txCtx, tx, user, &orgID)
	})
	if err != nil {
		return "", err
	}

	ctx.Locals(SignupAnalyticsKey, map[string]any{
		"email":                user.Email,
		"allow_newsletters":    user.AllowNewsletters,
		"update-notifications": 1,
		"new-user":             1,
	})

	if _, err := r.sessions.Login(ctx, user, true); err != nil {
		return "", err
	}

	recordActivity(ctx.Context(), r.activity, r.logger, ActivityEvent{
		EventType:      ActivityEventUserSignup,
		ActorID:        user.ID.String(),
		UserID:         user.ID.String(),
		OrganizationID: org.ID.String(),
		Metadata:       map[string]any{"allow_newsletters": user.AllowNewsletters},
	})

	r.logger.Info("user registered", "user_id", user.ID, "organization_id", org.ID)

	return safeRedirect(req.Next, r.cfg.GetProjectIndexPath()), nil
}

func (r *Registrar) resolveOrganizationTx(ctx context.Context, tx bun.IDB, org *Organization, user *User) (*Organization, error) {
	if org == nil {
		first, err := r.repo.Organizations().FirstOrganizationTx(ctx, tx)
		switch {
		case err == nil:
			org = first
		case isRecordNotFound(err):
			title := r.cfg.GetSignupOrganizationTitle()
			if title == "" {
				title = DefaultSignupOrganizationTitle
			}
			return r.orgs.CreateOrganizationTx(ctx, tx, title, user)
		default:
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up organization")
		}
	}

	if _, err := r.repo.Memberships().AddMemberTx(ctx, tx, user.ID, org.ID, RoleMember); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to add organization member")
	}

	return org, nil
}

// ProceedRegistration hands a validated signup to the injected saver
func ProceedRegistration(ctx router.Context, saver UserSaver, req RegistrationRequest) (string, error) {
	if saver == nil {
		return "", errors.New("no user saver configured", errors.CategoryInternal).
			WithCode(errors.CodeInternal)
	}
	return saver.SaveUser(ctx, req)
}
