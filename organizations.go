package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// OrganizationService bootstraps organizations and their memberships
type OrganizationService struct {
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
	provider LoggerProvider
}

// OrganizationServiceOption customizes the service
type OrganizationServiceOption func(*OrganizationService)

func WithOrganizationLogger(logger Logger) OrganizationServiceOption {
	return func(s *OrganizationService) {
		s.provider, s.logger = ResolveLogger("accounts.organizations", s.provider, logger)
	}
}

func WithOrganizationLoggerProvider(provider LoggerProvider) OrganizationServiceOption {
	return func(s *OrganizationService) {
		s.provider, s.logger = ResolveLogger("accounts.organizations", provider, s.logger)
	}
}

func WithOrganizationActivitySink(sink ActivitySink) OrganizationServiceOption {
	return func(s *OrganizationService) {
		s.activity = normalizeActivitySink(sink)
	}
}

func NewOrganizationService(repo RepositoryManager, opts ...OrganizationServiceOption) *OrganizationService {
	s := &OrganizationService{
		repo:     repo,
		activity: noopActivitySink{},
		logger:   NoopLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// CreateOrganization creates the organization and the creator membership
// in a single transaction
func (s *OrganizationService) CreateOrganization(ctx context.Context, title string, creator *User) (*Organization, error) {
	var org *Organization
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		org, err = s.CreateOrganizationTx(ctx, tx, title, creator)
		return err
	})
	if err != nil {
		return nil, err
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:      ActivityEventOrganizationCreated,
		ActorID:        creator.ID.String(),
		UserID:         creator.ID.String(),
		OrganizationID: org.ID.String(),
		Metadata:       map[string]any{"title": org.Title},
	})

	return org, nil
}

// CreateOrganizationTx joins an outer transaction
func (s *OrganizationService) CreateOrganizationTx(ctx context.Context, tx bun.IDB, title string, creator *User) (*Organization, error) {
	if creator == nil || creator.ID == uuid.Nil {
		return nil, errors.New("organization creator is required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}

	creatorID := creator.ID
	org, err := s.repo.Organizations().InsertTx(ctx, tx, &Organization{
		Title:       title,
		CreatedByID: &creatorID,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create organization")
	}

	if _, err := s.repo.Memberships().InsertTx(ctx, tx, &OrganizationMember{
		UserID:         creator.ID,
		OrganizationID: org.ID,
		Role:           RoleOwner,
	}); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create organization owner membership")
	}

	s.logger.Info("organization created", "organization_id", org.ID, "title", title, "created_by", creator.ID)

	return org, nil
}

// DestroyOptions control organization teardown
type DestroyOptions struct {
	// RunHooks emits activity events for every deleted record
	RunHooks bool
}

// DestroyOption mutates DestroyOptions
type DestroyOption func(*DestroyOptions)

// WithDestroyHooks enables or disables activity hooks while deleting
func WithDestroyHooks(enabled bool) DestroyOption {
	return func(o *DestroyOptions) {
		o.RunHooks = enabled
	}
}

// DestroyOrganization removes projects, the SAML config, memberships and the
// organization. Users and sessions bound to it lose their active organization. Steps are not transactional, a failure leaves earlier
// deletions in place. Hooks are off unless WithDestroyHooks(true) is given.
func (s *OrganizationService) DestroyOrganization(ctx context.Context, org *Organization, opts ...DestroyOption) error {
	if org == nil {
		return ErrOrganizationNotFound
	}

	options := DestroyOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	emit := func(event ActivityEvent) {
		if !options.RunHooks {
			return
		}
		event.OrganizationID = org.ID.String()
		recordActivity(ctx, s.activity, s.logger, event)
	}

	projectIDs, err := s.repo.Projects().DeleteForOrganization(ctx, org.ID)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete organization projects").
			WithMetadata(map[string]any{"organization_id": org.ID.String()})
	}

	for _, id := range projectIDs {
		emit(ActivityEvent{
			EventType: ActivityEventProjectDeleted,
			ObjectID:  id.String(),
		})
	}

	saml, err := s.repo.SAMLConfigs().FindForOrganization(ctx, org.ID)
	switch {
	case err == nil:
		if err := s.repo.SAMLConfigs().Delete(ctx, saml); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to delete organization SAML config").
				WithMetadata(map[string]any{"organization_id": org.ID.String()})
		}
		emit(ActivityEvent{
			EventType: ActivityEventSAMLConfigDeleted,
			ObjectID:  saml.ID.String(),
		})
	case !isRecordNotFound(err):
		return errors.Wrap(err, errors.CategoryInternal, "failed to load organization SAML config")
	}

	if err := s.repo.Memberships().DeleteForOrganization(ctx, org.ID); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete organization members")
	}

	cleared, err := s.repo.Users().ClearActiveOrganization(ctx, org.ID)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to clear users active organization").
			WithMetadata(map[string]any{"organization_id": org.ID.String()})
	}

	if store, ok := s.repo.Sessions().(OrganizationSessionStore); ok {
		if err := store.ClearOrganization(ctx, org.ID); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to unbind organization sessions")
		}
	}

	if err := s.repo.Organizations().Destroy(ctx, org); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete organization")
	}

	emit(ActivityEvent{
		EventType: ActivityEventOrganizationDeleted,
		ObjectID:  org.ID.String(),
		Metadata:  map[string]any{"projects": len(projectIDs)},
	})

	s.logger.Info("organization destroyed",
		"organization_id", org.ID,
		"projects", len(projectIDs),
		"users_cleared", cleared,
		"hooks", options.RunHooks,
	)

	return nil
}

// AddUser makes the user a member of the organization, existing
// memberships are left untouched
func (s *OrganizationService) AddUser(ctx context.Context, org *Organization, user *User) (*OrganizationMember, error) {
	member, err := s.repo.Memberships().AddMember(ctx, user.ID, org.ID, RoleMember)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to add organization member")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:      ActivityEventMemberAdded,
		UserID:         user.ID.String(),
		OrganizationID: org.ID.String(),
	})

	return member, nil
}

// CheckAddOrganization makes sure the user belongs to an organization and
// that it is the active one. With no organizations in the system a new one
// titled title is created. Otherwise the given organization is used, or the
// first one matching title. Returns the organization id.
func (s *OrganizationService) CheckAddOrganization(ctx context.Context, user *User, title string, org *Organization) (uuid.UUID, error) {
	exists, err := s.repo.Organizations().AnyExists(ctx)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, errors.CategoryInternal, "failed to check organizations")
	}

	if exists {
		if org == nil {
			org, err = s.repo.Organizations().FirstByTitle(ctx, title)
			if err != nil {
				if isRecordNotFound(err) {
					s.logger.Warn("default organization not found", "title", title, "user_id", user.ID)
					return uuid.Nil, ErrOrganizationNotFound
				}
				return uuid.Nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up organization")
			}
		}

		if _, err := s.AddUser(ctx, org, user); err != nil {
			return uuid.Nil, err
		}
	} else {
		org, err = s.CreateOrganization(ctx, title, user)
		if err != nil {
			return uuid.Nil, err
		}
	}

	if err := s.SetActiveOrganization(ctx, user, org); err != nil {
		return uuid.Nil, err
	}

	return org.ID, nil
}

// SetActiveOrganization persists only the user active organization
func (s *OrganizationService) SetActiveOrganization(ctx context.Context, user *User, org *Organization) error {
	orgID := org.ID
	if err := s.repo.Users().SetActiveOrganization(ctx, user, &orgID); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to set active organization")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:      ActivityEventActiveOrganizationSet,
		UserID:         user.ID.String(),
		OrganizationID: orgID.String(),
	})

	return nil
}

// RemoveMember deletes the membership and clears the active organization
// when it pointed to org
func (s *OrganizationService) RemoveMember(ctx context.Context, org *Organization, user *User) error {
	if err := s.repo.Memberships().RemoveMember(ctx, user.ID, org.ID); err != nil {
		if isRecordNotFound(err) {
			return errors.Wrap(err, errors.CategoryNotFound, "membership not found").
				WithCode(errors.CodeNotFound)
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to remove organization member")
	}

	if user.ActiveOrganizationID != nil && *user.ActiveOrganizationID == org.ID {
		if err := s.repo.Users().SetActiveOrganization(ctx, user, nil); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to clear active organization")
		}
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:      ActivityEventMemberRemoved,
		UserID:         user.ID.String(),
		OrganizationID: org.ID.String(),
	})

	return nil
}
