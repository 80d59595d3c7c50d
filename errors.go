package accounts

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeOrganizationNotFound   = "ORGANIZATION_NOT_FOUND"
	TextCodeNotOrganizationMember  = "NOT_ORGANIZATION_MEMBER"
	TextCodeSignupTokenMismatch    = "SIGNUP_TOKEN_MISMATCH"
	TextCodeInvalidAvatar          = "INVALID_AVATAR"
	TextCodeEmptyPassword          = "EMPTY_PASSWORD"
	TextCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts        = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeSessionNotFound        = "SESSION_NOT_FOUND"
	TextCodeCannotRemoveSelf       = "CANNOT_REMOVE_SELF"
	TextCodeSuperuserRequired      = "SUPERUSER_REQUIRED"
	TextCodeActiveOrganizationMiss = "ACTIVE_ORGANIZATION_MISSING"
	TextCodeEmailTaken             = "EMAIL_TAKEN"
	TextCodeUserInactive           = "USER_INACTIVE"
)

var (
	// ErrOrganizationNotFound is returned when an organization lookup yields nothing
	ErrOrganizationNotFound = errors.New("organization not found", errors.CategoryNotFound).
				WithCode(errors.CodeNotFound).
				WithTextCode(TextCodeOrganizationNotFound)

	ErrNotOrganizationMember = errors.New("User is not a member of this organization", errors.CategoryAuthz).
					WithCode(errors.CodeForbidden).
					WithTextCode(TextCodeNotOrganizationMember)

	ErrSignupTokenMismatch = errors.New("signup token does not match organization", errors.CategoryAuthz).
				WithCode(errors.CodeForbidden).
				WithTextCode(TextCodeSignupTokenMismatch)

	ErrNoEmptyString = errors.New("password can not be empty", errors.CategoryValidation).
				WithCode(errors.CodeBadRequest).
				WithTextCode(TextCodeEmptyPassword)

	ErrMismatchedHashAndPassword = errors.New("invalid email or password", errors.CategoryAuth).
					WithCode(errors.CodeUnauthorized).
					WithTextCode(TextCodeInvalidCredentials)

	ErrTooManyLoginAttempts = errors.New("too many login attempts, try again later", errors.CategoryRateLimit).
				WithCode(errors.CodeForbidden).
				WithTextCode(TextCodeTooManyAttempts)

	ErrSessionNotFound = errors.New("session not found", errors.CategoryAuth).
				WithCode(errors.CodeUnauthorized).
				WithTextCode(TextCodeSessionNotFound)

	ErrCannotRemoveSelf = errors.New("you can not remove yourself from an organization", errors.CategoryAuthz).
				WithCode(errors.CodeForbidden).
				WithTextCode(TextCodeCannotRemoveSelf)

	ErrSuperuserRequired = errors.New("superuser access required", errors.CategoryAuthz).
				WithCode(errors.CodeForbidden).
				WithTextCode(TextCodeSuperuserRequired)

	ErrEmailTaken = errors.New("User with such email already exists", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode(TextCodeEmailTaken)

	ErrUserInactive = errors.New("user account is disabled", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized).
			WithTextCode(TextCodeUserInactive)

	ErrNoActiveOrganization = errors.New("user has no active organization", errors.CategoryBadInput).
				WithCode(errors.CodeBadRequest).
				WithTextCode(TextCodeActiveOrganizationMiss)
)

// IsPermissionDenied reports whether the error should render as a 403
func IsPermissionDenied(err error) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.Category == errors.CategoryAuthz || richErr.Code == errors.CodeForbidden
}
