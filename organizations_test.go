package accounts_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/prophet-studio/go-accounts"
)

func TestCreateOrganizationMakesCreatorOwner(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()
	sink := &recordingSink{}
	svc := accounts.NewOrganizationService(repo, accounts.WithOrganizationActivitySink(sink))

	user := createUser(t, repo, "founder@example.com", false)
	org, err := svc.CreateOrganization(ctx, "Founders", user)
	require.NoError(t, err)

	require.NotNil(t, org.CreatedByID)
	assert.Equal(t, user.ID, *org.CreatedByID)
	assert.NotEmpty(t, org.Token)

	member, err := repo.Memberships().Find(ctx, user.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleOwner, member.Role)

	assert.Equal(t, []accounts.ActivityEventType{accounts.ActivityEventOrganizationCreated}, sink.types())
}

func TestCreateOrganizationRequiresCreator(t *testing.T) {
	_, repo := newTestRepo(t)
	svc := accounts.NewOrganizationService(repo)

	_, err := svc.CreateOrganization(context.Background(), "Orphan", &accounts.User{})
	require.Error(t, err)

	var richErr *errors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, errors.CategoryValidation, richErr.Category)
}

func TestCheckAddOrganizationCreatesFirstOrganization(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()
	svc := accounts.NewOrganizationService(repo)

	user := createUser(t, repo, "first@example.com", false)
	orgID, err := svc.CheckAddOrganization(ctx, user, "Default", nil)
	require.NoError(t, err)

	org, err := repo.Organizations().FindByUUID(ctx, orgID)
	require.NoError(t, err)
	assert.Equal(t, "Default", org.Title)

	member, err := repo.Memberships().Find(ctx, user.ID, orgID)
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleOwner, member.Role)

	found, err := repo.Users().FindByUUID(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, found.HasActiveOrganization())
	assert.Equal(t, orgID, *found.ActiveOrganizationID)
}

func TestCheckAddOrganizationJoinsByTitle(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()
	svc := accounts.NewOrganizationService(repo)

	owner := createUser(t, repo, "owner@example.com", false)
	org := createOrganization(t, repo, "Default", owner)

	joiner := createUser(t, repo, "joiner@example.com", false)
	orgID, err := svc.CheckAddOrganization(ctx, joiner, "Default", nil)
	require.NoError(t, err)
	assert.Equal(t, org.ID, orgID)

	member, err := repo.Memberships().Find(ctx, joiner.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleMember, member.Role)

	// existing memberships are kept as they are
	_, err = svc.CheckAddOrganization(ctx, owner, "Default", nil)
	require.NoError(t, err)
	member, err = repo.Memberships().Find(ctx, owner.ID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, accounts.RoleOwner, member.Role)
}

func TestCheckAddOrganizationPrefersGivenOrganization(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()
	svc := accounts.NewOrganizationService(repo)

	owner := createUser(t, repo, "owner@example.com", false)
	createOrganization(t, repo, "Default", owner)
	target := createOrganization(t, repo, "Target", owner)

	user := createUser(t, repo, "user@example.com", false)
	orgID, err := svc.CheckAddOrganization(ctx, user, "Default", target)
	require.NoError(t, err)
	assert.Equal(t, target.ID, orgID)

	ids, err := repo.Memberships().OrganizationIDsForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{target.ID}, ids)
}

func TestCheckAddOrganizationTitleMiss(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()
	svc := accounts.NewOrganizationService(repo)

	owner := createUser(t, repo, "owner@example.com", false)
	createOrganization(t, repo, "Something Else", owner)

	user := createUser(t, repo, "user@example.com", false)
	_, err := svc.CheckAddOrganization(ctx, user, "Default", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, accounts.ErrOrganizationNotFound))
}

func seedOrganizationGraph(t *testing.T, repo accounts.RepositoryManager) (*accounts.User, *accounts.User, *accounts.Organization) {
	t.Helper()
	ctx := context.Background()

	owner := createUser(t, repo, "owner@example.com", false)
	member := createUser(t, repo, "member@example.com", false)
	org := createOrganization(t, repo, "Doomed", owner)

	_, err := repo.Memberships().AddMember(ctx, member.ID, org.ID, accounts.RoleMember)
	require.NoError(t, err)

	for _, title := range []string{"Alpha", "Beta"} {
		_, err := repo.Projects().Insert(ctx, &accounts.Project{Title: title, OrganizationID: org.ID})
		require.NoError(t, err)
	}

	_, err = repo.SAMLConfigs().Insert(ctx, &accounts.SAMLConfig{
		OrganizationID: org.ID,
		MetadataURL:    "https://idp.example.com/metadata",
		Domain:         "example.com",
	})
	require.NoError(t, err)

	return owner, member, org
}

func TestDestroyOrganizationRemovesEverything(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()
	sink := &recordingSink{}
	svc := accounts.NewOrganizationService(repo, accounts.WithOrganizationActivitySink(sink))

	owner, member, org := seedOrganizationGraph(t, repo)

	bystander := createUser(t, repo, "bystander@example.com", false)
	elsewhere := createOrganization(t, repo, "Elsewhere", bystander)
	require.NoError(t, repo.Users().SetActiveOrganization(ctx, bystander, &elsewhere.ID))

	for _, u := range []*accounts.User{owner, member} {
		require.NoError(t, repo.Users().SetActiveOrganization(ctx, u, &org.ID))
	}

	session := &accounts.Session{
		Key:            uuid.New(),
		UserID:         member.ID,
		OrganizationID: &org.ID,
		LastLogin:      time.Now(),
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	require.NoError(t, repo.Sessions().Save(ctx, session))

	require.NoError(t, svc.DestroyOrganization(ctx, org))

	for _, u := range []*accounts.User{owner, member} {
		found, err := repo.Users().FindByUUID(ctx, u.ID)
		require.NoError(t, err)
		assert.False(t, found.HasActiveOrganization(), "user %s still points at the deleted organization", u.Email)

		claims, err := accounts.NewPayloadHandler(repo, newTestConfig()).Payload(ctx, found)
		require.NoError(t, err)
		assert.Empty(t, claims.ActiveOrganizationID())
	}

	found, err := repo.Users().FindByUUID(ctx, bystander.ID)
	require.NoError(t, err)
	require.True(t, found.HasActiveOrganization())
	assert.Equal(t, elsewhere.ID, *found.ActiveOrganizationID)

	stored, err := repo.Sessions().Get(ctx, session.Key)
	require.NoError(t, err)
	assert.Nil(t, stored.OrganizationID)

	_, err = repo.Organizations().FindByUUID(ctx, org.ID)
	require.Error(t, err)

	ids, err := repo.Projects().IDsForOrganization(ctx, org.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = repo.SAMLConfigs().FindForOrganization(ctx, org.ID)
	require.Error(t, err)

	for _, u := range []*accounts.User{owner, member} {
		_, err = repo.Memberships().Find(ctx, u.ID, org.ID)
		require.Error(t, err)
	}

	// hooks are off by default
	assert.Empty(t, sink.types())
}

func TestDestroyOrganizationWithHooks(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()
	sink := &recordingSink{}
	svc := accounts.NewOrganizationService(repo, accounts.WithOrganizationActivitySink(sink))

	_, _, org := seedOrganizationGraph(t, repo)

	require.NoError(t, svc.DestroyOrganization(ctx, org, accounts.WithDestroyHooks(true)))

	assert.Equal(t, []accounts.ActivityEventType{
		accounts.ActivityEventProjectDeleted,
		accounts.ActivityEventProjectDeleted,
		accounts.ActivityEventSAMLConfigDeleted,
		accounts.ActivityEventOrganizationDeleted,
	}, sink.types())

	for _, e := range sink.events {
		assert.Equal(t, org.ID.String(), e.OrganizationID)
	}
}

func TestDestroyOrganizationWithoutSAML(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()
	svc := accounts.NewOrganizationService(repo)

	owner := createUser(t, repo, "owner@example.com", false)
	org := createOrganization(t, repo, "Plain", owner)

	require.NoError(t, svc.DestroyOrganization(ctx, org, accounts.WithDestroyHooks(false)))

	exists, err := repo.Organizations().AnyExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.True(t, errors.Is(svc.DestroyOrganization(ctx, nil), accounts.ErrOrganizationNotFound))
}

func TestRemoveMemberClearsActiveOrganization(t *testing.T) {
	_, repo := newTestRepo(t)
	ctx := context.Background()
	svc := accounts.NewOrganizationService(repo)

	owner := createUser(t, repo, "owner@example.com", false)
	org := createOrganization(t, repo, "Acme", owner)

	member := createUser(t, repo, "member@example.com", false)
	_, err := svc.AddUser(ctx, org, member)
	require.NoError(t, err)
	require.NoError(t, svc.SetActiveOrganization(ctx, member, org))

	require.NoError(t, svc.RemoveMember(ctx, org, member))

	found, err := repo.Users().FindByUUID(ctx, member.ID)
	require.NoError(t, err)
	assert.False(t, found.HasActiveOrganization())

	err = svc.RemoveMember(ctx, org, member)
	require.Error(t, err)

	var richErr *errors.Error
	require.True(t, errors.As(err, &richErr))
	assert.Equal(t, errors.CategoryNotFound, richErr.Category)
}
