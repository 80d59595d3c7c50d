package accounts

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/prophet-studio/go-accounts/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use accounts helpers directly.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter stores validated claims in the standard context
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	if claims == nil {
		return c
	}
	return WithClaimsContext(c, claims)
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}

// ActiveUserListener rejects tokens issued to users that were deactivated
// or deleted after the token was signed
func ActiveUserListener(users Users) ValidationListener {
	return func(ctx router.Context, claims jwtware.AuthClaims) error {
		id, err := uuid.Parse(claims.UserID())
		if err != nil {
			return ErrTokenMalformed
		}

		user, err := users.FindByUUID(ctx.Context(), id)
		if err != nil {
			if isRecordNotFound(err) {
				return ErrUserInactive
			}
			return errors.Wrap(err, errors.CategoryInternal, "failed to load token user")
		}

		if !user.IsActive {
			return ErrUserInactive
		}

		ctx.SetContext(WithContext(ctx.Context(), user))
		return nil
	}
}
