package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Organization is the top level tenant
type Organization struct {
	bun.BaseModel `bun:"table:organizations,alias:org"`
	ID            uuid.UUID             `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Title         string                `bun:"title,notnull" json:"title,omitempty"`
	CreatedByID   *uuid.UUID            `bun:"created_by,type:uuid" json:"created_by,omitempty"`
	Token         string                `bun:"token,notnull" json:"-"`
	Members       []*OrganizationMember `bun:"rel:has-many,join:id=organization_id" json:"members,omitempty"`
	CreatedAt     *time.Time            `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time            `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// OrganizationMember links a user to an organization
type OrganizationMember struct {
	bun.BaseModel  `bun:"table:organization_members,alias:om"`
	ID             uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID         uuid.UUID     `bun:"user_id,notnull,type:uuid" json:"user_id"`
	User           *User         `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	OrganizationID uuid.UUID     `bun:"organization_id,notnull,type:uuid" json:"organization_id"`
	Organization   *Organization `bun:"rel:belongs-to,join:organization_id=id" json:"-"`
	Role           MemberRole    `bun:"member_role,notnull" json:"role,omitempty"`
	CreatedAt      *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// User is the account model
type User struct {
	bun.BaseModel        `bun:"table:users,alias:usr"`
	ID                   uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username             string         `bun:"username,notnull" json:"username,omitempty"`
	Email                string         `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName            string         `bun:"first_name" json:"first_name,omitempty"`
	LastName             string         `bun:"last_name" json:"last_name,omitempty"`
	Phone                string         `bun:"phone" json:"phone,omitempty"`
	Avatar               string         `bun:"avatar" json:"avatar,omitempty"`
	PasswordHash         string         `bun:"password_hash" json:"-"`
	IsSuperuser          bool           `bun:"is_superuser,notnull,default:false" json:"is_superuser"`
	IsActive             bool           `bun:"is_active,notnull,default:true" json:"is_active"`
	AllowNewsletters     bool           `bun:"allow_newsletters,notnull,default:false" json:"allow_newsletters"`
	ActiveOrganizationID *uuid.UUID     `bun:"active_organization_id,type:uuid" json:"active_organization,omitempty"`
	LoginAttempts        int            `bun:"login_attempts" json:"-"`
	LoginAttemptAt       *time.Time     `bun:"login_attempt_at" json:"-"`
	LastLogin            *time.Time     `bun:"last_login,nullzero" json:"last_login,omitempty"`
	LastActivity         *time.Time     `bun:"last_activity,nullzero" json:"last_activity,omitempty"`
	Metadata             map[string]any `bun:"metadata,type:jsonb" json:"-"`
	CreatedAt            *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt            *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// FullName joins first and last name
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// HasActiveOrganization reports whether the user is bound to an organization
func (u *User) HasActiveOrganization() bool {
	return u != nil && u.ActiveOrganizationID != nil && *u.ActiveOrganizationID != uuid.Nil
}

// UsernameFromEmail derives the username from the email local part
func UsernameFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

// Project belongs to an organization
type Project struct {
	bun.BaseModel  `bun:"table:projects,alias:prj"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Title          string     `bun:"title,notnull" json:"title,omitempty"`
	OrganizationID uuid.UUID  `bun:"organization_id,notnull,type:uuid" json:"organization_id"`
	CreatedByID    *uuid.UUID `bun:"created_by,type:uuid" json:"created_by,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// SAMLConfig is the optional single sign on setup of an organization
type SAMLConfig struct {
	bun.BaseModel  `bun:"table:saml_configs,alias:saml"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	OrganizationID uuid.UUID  `bun:"organization_id,notnull,unique,type:uuid" json:"organization_id"`
	MetadataURL    string     `bun:"metadata_url" json:"metadata_url,omitempty"`
	Domain         string     `bun:"domain" json:"domain,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// APIToken is the per user API key shown in the account page
type APIToken struct {
	bun.BaseModel `bun:"table:api_tokens,alias:tok"`
	Key           string     `bun:"token_key,pk" json:"key"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"user_id"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Session is a server side login session
type Session struct {
	bun.BaseModel  `bun:"table:sessions,alias:ses"`
	Key            uuid.UUID      `bun:"session_key,pk,type:uuid" json:"key" msgpack:"key"`
	UserID         uuid.UUID      `bun:"user_id,notnull,type:uuid" json:"user_id" msgpack:"user_id"`
	OrganizationID *uuid.UUID     `bun:"organization_id,type:uuid" json:"organization_id,omitempty" msgpack:"organization_id"`
	KeepLoggedIn   bool           `bun:"keep_me_logged_in,notnull" json:"keep_me_logged_in" msgpack:"keep_me_logged_in"`
	LastLogin      time.Time      `bun:"last_login,notnull" json:"last_login" msgpack:"last_login"`
	Data           map[string]any `bun:"data,type:jsonb" json:"data,omitempty" msgpack:"data"`
	ExpiresAt      time.Time      `bun:"expires_at,notnull" json:"expires_at" msgpack:"expires_at"`
}

// Expired reports whether the session is past its expiry
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Set stores a value in the session data bag
func (s *Session) Set(key string, val any) *Session {
	if s.Data == nil {
		s.Data = make(map[string]any)
	}
	s.Data[key] = val
	return s
}
