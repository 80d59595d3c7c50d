package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
)

// FormErrorKey holds errors not bound to a single field
const FormErrorKey = "form"

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = 24 * time.Hour

// LoginRequest payload. Organization is resolved by the controller, an id
// that does not parse is treated like an unknown organization.
type LoginRequest struct {
	Email          string `form:"email" json:"email"`
	Password       string `form:"password" json:"password"`
	PersistSession bool   `form:"persist_session" json:"persist_session"`
	Organization   string `form:"organization" json:"organization"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// SignupRequest is the signup form payload
type SignupRequest struct {
	Email            string `form:"email" json:"email"`
	Password         string `form:"password" json:"password"`
	AllowNewsletters bool   `form:"allow_newsletters" json:"allow_newsletters"`
	Organization     string `form:"organization" json:"organization"`
}

// Validate will validate the payload
func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(6, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&r.Organization, is.UUID),
	)
}

// ProfileRequest is the account page payload
type ProfileRequest struct {
	FirstName        string `form:"first_name" json:"first_name"`
	LastName         string `form:"last_name" json:"last_name"`
	Phone            string `form:"phone" json:"phone"`
	AllowNewsletters bool   `form:"allow_newsletters" json:"allow_newsletters"`
}

// Validate will validate the payload
func (r ProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(0, 256)),
		validation.Field(&r.LastName, validation.Length(0, 256)),
		validation.Field(&r.Phone, validation.Length(0, 256), is.E164),
	)
}

// Apply copies the profile fields into the user
func (r ProfileRequest) Apply(user *User) {
	user.FirstName = r.FirstName
	user.LastName = r.LastName
	user.Phone = r.Phone
	user.AllowNewsletters = r.AllowNewsletters
}

// RegistrationRequest carries a validated signup to a UserSaver
type RegistrationRequest struct {
	Form         *SignupRequest
	Organization *Organization
	Next         string
}

// TokenRequest is the JSON token endpoint payload
type TokenRequest struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

func (r TokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// FormErrors flattens ozzo validation errors into field messages
func FormErrors(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	var richErr *errors.Error
	if errors.As(err, &richErr) {
		out[FormErrorKey] = richErr.Message
		return out
	}

	out[FormErrorKey] = err.Error()
	return out
}

// CredentialsLoginForm checks email and password against the users table
type CredentialsLoginForm struct {
	users     Users
	passwords PasswordAuthenticator
	logger    Logger
	payload   *LoginRequest
	user      *User
	errors    map[string]string
}

// NewCredentialsLoginFormFactory returns the default LoginFormFactory
func NewCredentialsLoginFormFactory(users Users, passwords PasswordAuthenticator, logger Logger) LoginFormFactory {
	if passwords == nil {
		passwords = NewPasswordAuthenticator()
	}
	if logger == nil {
		logger = NoopLogger()
	}
	return func(payload *LoginRequest) LoginForm {
		return &CredentialsLoginForm{
			users:     users,
			passwords: passwords,
			logger:    logger,
			payload:   payload,
			errors:    map[string]string{},
		}
	}
}

func (f *CredentialsLoginForm) IsValid(ctx context.Context) bool {
	if err := f.payload.Validate(); err != nil {
		f.errors = FormErrors(err)
		return false
	}

	user, err := f.users.FindByEmail(ctx, f.payload.Email)
	if err != nil {
		if !isRecordNotFound(err) {
			f.logger.Error("failed to load user for login", "error", err)
		}
		f.errors[FormErrorKey] = ErrMismatchedHashAndPassword.Message
		return false
	}

	if !user.IsActive {
		f.errors[FormErrorKey] = ErrMismatchedHashAndPassword.Message
		return false
	}

	if user.LoginAttemptAt != nil && time.Since(*user.LoginAttemptAt) > CoolDownPeriod {
		user.LoginAttempts = 0
	}

	if user.LoginAttempts > MaxLoginAttempts {
		f.errors[FormErrorKey] = ErrTooManyLoginAttempts.Message
		return false
	}

	if err := f.passwords.ComparePasswordAndHash(f.payload.Password, user.PasswordHash); err != nil {
		if err2 := f.users.TrackAttemptedLogin(ctx, user); err2 != nil {
			f.logger.Error("failed to track login attempt", "error", err2)
		}
		f.errors[FormErrorKey] = ErrMismatchedHashAndPassword.Message
		return false
	}

	f.user = user
	return true
}

func (f *CredentialsLoginForm) CleanedUser() *User {
	return f.user
}

func (f *CredentialsLoginForm) PersistSession() bool {
	return f.payload.PersistSession
}

func (f *CredentialsLoginForm) Errors() map[string]string {
	return f.errors
}
