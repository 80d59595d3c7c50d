package config

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	accounts "github.com/prophet-studio/go-accounts"
)

// BaseConfig is loaded from config/app.json
type BaseConfig struct {
	App         App         `koanf:"app" json:"app"`
	Auth        Auth        `koanf:"auth" json:"auth"`
	Persistence Persistence `koanf:"persistence" json:"persistence"`
	Redis       Redis       `koanf:"redis" json:"redis"`
	NATS        NATS        `koanf:"nats" json:"nats"`
}

type App struct {
	Name       string `koanf:"name" json:"name"`
	Address    string `koanf:"address" json:"address"`
	Debug      bool   `koanf:"debug" json:"debug"`
	ViewsDir   string `koanf:"views_dir" json:"views_dir"`
	CSRFCookie string `koanf:"csrf_cookie" json:"csrf_cookie"`
}

type Redis struct {
	URL string `koanf:"url" json:"url"`
}

type NATS struct {
	URL           string `koanf:"url" json:"url"`
	SubjectPrefix string `koanf:"subject_prefix" json:"subject_prefix"`
}

func (a BaseConfig) GetApp() App                 { return a.App }
func (a BaseConfig) GetAuth() Auth               { return a.Auth }
func (a BaseConfig) GetPersistence() Persistence { return a.Persistence }
func (a BaseConfig) GetRedis() Redis             { return a.Redis }
func (a BaseConfig) GetNATS() NATS               { return a.NATS }

func (a BaseConfig) Validate() error {
	return validation.Errors{
		"auth":        a.Auth.Validate(),
		"persistence": a.Persistence.Validate(),
		"redis": validation.ValidateStruct(&a.Redis,
			validation.Field(&a.Redis.URL, is.RequestURI),
		),
	}.Filter()
}

// Auth implements accounts.Config
type Auth struct {
	SigningKey               string   `koanf:"signing_key" json:"signing_key"`
	SigningMethod            string   `koanf:"signing_method" json:"signing_method"`
	ContextKey               string   `koanf:"context_key" json:"context_key"`
	TokenExpiration          int      `koanf:"token_expiration" json:"token_expiration"`
	Issuer                   string   `koanf:"issuer" json:"issuer"`
	Audience                 []string `koanf:"audience" json:"audience"`
	JWTCookieName            string   `koanf:"jwt_cookie_name" json:"jwt_cookie_name"`
	JWTCookieDomain          string   `koanf:"jwt_cookie_domain" json:"jwt_cookie_domain"`
	SessionCookieName        string   `koanf:"session_cookie_name" json:"session_cookie_name"`
	MaxSessionAge            int      `koanf:"max_session_age" json:"max_session_age"`
	Hostname                 string   `koanf:"hostname" json:"hostname"`
	DisableSignupWithoutLink bool     `koanf:"disable_signup_without_link" json:"disable_signup_without_link"`
	DefaultOrganizationTitle string   `koanf:"default_organization_title" json:"default_organization_title"`
	SignupOrganizationTitle  string   `koanf:"signup_organization_title" json:"signup_organization_title"`
	AvatarPath               string   `koanf:"avatar_path" json:"avatar_path"`
	ProjectIndexPath         string   `koanf:"project_index_path" json:"project_index_path"`
}

var _ accounts.Config = Auth{}

func (a Auth) GetSigningKey() string               { return a.SigningKey }
func (a Auth) GetSigningMethod() string            { return a.SigningMethod }
func (a Auth) GetContextKey() string               { return a.ContextKey }
func (a Auth) GetTokenExpiration() int             { return a.TokenExpiration }
func (a Auth) GetIssuer() string                   { return a.Issuer }
func (a Auth) GetAudience() []string               { return a.Audience }
func (a Auth) GetJWTCookieName() string            { return a.JWTCookieName }
func (a Auth) GetJWTCookieDomain() string          { return a.JWTCookieDomain }
func (a Auth) GetSessionCookieName() string        { return a.SessionCookieName }
func (a Auth) GetMaxSessionAge() int               { return a.MaxSessionAge }
func (a Auth) GetHostname() string                 { return a.Hostname }
func (a Auth) GetDisableSignupWithoutLink() bool   { return a.DisableSignupWithoutLink }
func (a Auth) GetDefaultOrganizationTitle() string { return a.DefaultOrganizationTitle }
func (a Auth) GetSignupOrganizationTitle() string  { return a.SignupOrganizationTitle }
func (a Auth) GetAvatarPath() string               { return a.AvatarPath }
func (a Auth) GetProjectIndexPath() string         { return a.ProjectIndexPath }

func (a Auth) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.SigningKey, validation.Required, validation.Length(16, 0)),
		validation.Field(&a.SigningMethod, validation.In("", "HS256", "HS384", "HS512")),
		validation.Field(&a.TokenExpiration, validation.Min(0)),
		validation.Field(&a.MaxSessionAge, validation.Min(0)),
		validation.Field(&a.Hostname, is.URL),
	)
}

// Persistence is consumed by go-persistence-bun
type Persistence struct {
	Debug                 bool   `koanf:"debug" json:"debug"`
	Driver                string `koanf:"driver" json:"driver"`
	Server                string `koanf:"server" json:"server"`
	DSN                   string `koanf:"dsn" json:"dsn"`
	PingTimeoutExpression string `koanf:"ping_timeout" json:"ping_timeout"`
	OtelIdentifier        string `koanf:"otel_identifier" json:"otel_identifier"`
}

func (p Persistence) GetDebug() bool            { return p.Debug }
func (p Persistence) GetDriver() string         { return p.Driver }
func (p Persistence) GetServer() string         { return p.Server }
func (p Persistence) GetDSN() string            { return p.DSN }
func (p Persistence) GetOtelIdentifier() string { return p.OtelIdentifier }

func (p Persistence) GetPingTimeout() time.Duration {
	if p.PingTimeoutExpression == "" {
		return 5 * time.Second
	}
	dur, err := time.ParseDuration(p.PingTimeoutExpression)
	if err != nil {
		panic(
			fmt.Sprintf("unable to parse time: expr %s", p.PingTimeoutExpression),
		)
	}
	return dur
}

func (p Persistence) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Driver, validation.Required, validation.In("sqlite", "postgres")),
		validation.Field(&p.DSN, validation.Required),
		validation.Field(&p.PingTimeoutExpression, validation.By(func(value any) error {
			expr, _ := value.(string)
			if expr == "" {
				return nil
			}
			_, err := time.ParseDuration(expr)
			return err
		})),
	)
}
