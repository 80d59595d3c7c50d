package accounts

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// PayloadHandler builds access token claims for a user
type PayloadHandler struct {
	repo RepositoryManager
	cfg  Config
	now  Clock
}

func NewPayloadHandler(repo RepositoryManager, cfg Config) *PayloadHandler {
	return &PayloadHandler{
		repo: repo,
		cfg:  cfg,
		now:  time.Now,
	}
}

// BasePayload returns the registered claims and user identity
func (h *PayloadHandler) BasePayload(user *User) *JWTClaims {
	now := h.now()
	hours := h.cfg.GetTokenExpiration()
	if hours <= 0 {
		hours = 24
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    h.cfg.GetIssuer(),
			Subject:   user.ID.String(),
			Audience:  h.cfg.GetAudience(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(hours) * time.Hour)),
		},
		UID:       user.ID.String(),
		Username:  user.Username,
		Email:     user.Email,
		Superuser: user.IsSuperuser,
	}
	ensureTokenID(&claims.RegisteredClaims)
	return claims
}

// Payload augments the base payload with organization membership and the
// projects of the active organization
func (h *PayloadHandler) Payload(ctx context.Context, user *User) (*JWTClaims, error) {
	claims := h.BasePayload(user)

	orgIDs, err := h.repo.Memberships().OrganizationIDsForUser(ctx, user.ID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user organizations")
	}
	claims.Organizations = uuidStrings(orgIDs)

	if !user.HasActiveOrganization() {
		return claims, nil
	}

	claims.ActiveOrganization = user.ActiveOrganizationID.String()

	projectIDs, err := h.repo.Projects().IDsForOrganization(ctx, *user.ActiveOrganizationID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load organization projects")
	}
	claims.Projects = uuidStrings(projectIDs)

	return claims, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
