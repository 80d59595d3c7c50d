package accounts

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prophet-studio/go-accounts/middleware/jwtware"
)

// JWTClaims is the access token payload
type JWTClaims struct {
	jwt.RegisteredClaims
	UID                string   `json:"uid,omitempty"`
	Username           string   `json:"username,omitempty"`
	Email              string   `json:"email,omitempty"`
	Superuser          bool     `json:"is_superuser,omitempty"`
	Organizations      []string `json:"organizations,omitempty"`
	ActiveOrganization string   `json:"active_organization,omitempty"`
	Projects           []string `json:"projects,omitempty"`
}

var _ jwtware.AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// UserUUID parses the user ID
func (c *JWTClaims) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID())
}

func (c *JWTClaims) IsSuperuser() bool {
	return c.Superuser
}

// OrganizationIDs returns the organizations the user belongs to
func (c *JWTClaims) OrganizationIDs() []string {
	return c.Organizations
}

func (c *JWTClaims) ActiveOrganizationID() string {
	return c.ActiveOrganization
}

// BelongsTo reports whether the token lists the organization
func (c *JWTClaims) BelongsTo(orgID string) bool {
	for _, id := range c.Organizations {
		if id == orgID {
			return true
		}
	}
	return false
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
