package accounts

import (
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	// DefaultJWTCookieName holds the access token for the frontend
	DefaultJWTCookieName = "jwt_access_token"
	// DefaultSessionCookieName holds the server side session key
	DefaultSessionCookieName = "sessionid"
)

// safeRedirect only accepts local paths, anything else yields fallback
func safeRedirect(next, fallback string) string {
	if fallback == "" {
		fallback = "/"
	}
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return fallback
	}
	return next
}

// hostnameRedirect is the post logout target
func hostnameRedirect(hostname string) string {
	if hostname == "" {
		return "/"
	}
	if !strings.HasSuffix(hostname, "/") {
		hostname += "/"
	}
	return hostname
}

func setJWTCookie(ctx router.Context, cfg Config, token string, persist bool, now time.Time) {
	cookie := &router.Cookie{
		Name:     cfg.GetJWTCookieName(),
		Value:    token,
		Path:     "/",
		Domain:   cfg.GetJWTCookieDomain(),
		HTTPOnly: false,
		SameSite: "Lax",
	}
	if persist {
		age := cfg.GetMaxSessionAge()
		if age <= 0 {
			age = int((14 * 24 * time.Hour).Seconds())
		}
		cookie.Expires = now.Add(time.Duration(age) * time.Second)
	}
	ctx.Cookie(cookie)
}

func deleteCookie(ctx router.Context, name, domain string) {
	ctx.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		SameSite: "Lax",
	})
}

// asRichError normalizes any error into a go-errors value
func asRichError(err error) *errors.Error {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}
	return errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
		WithCode(errors.CodeInternal)
}

// statusForError maps error categories to HTTP status codes
func statusForError(richErr *errors.Error) int {
	switch {
	case IsPermissionDenied(richErr):
		return http.StatusForbidden
	case richErr.Category == errors.CategoryNotFound:
		return http.StatusNotFound
	case richErr.Category == errors.CategoryAuth:
		return http.StatusUnauthorized
	case richErr.Category == errors.CategoryValidation, richErr.Category == errors.CategoryBadInput:
		return http.StatusBadRequest
	case richErr.Code >= 400 && richErr.Code < 600:
		return richErr.Code
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorHandler renders errors/403, errors/404 or errors/500
func NewErrorHandler(logger Logger) router.ErrorHandler {
	if logger == nil {
		logger = NoopLogger()
	}
	return func(c router.Context, err error) error {
		richErr := asRichError(err)
		status := statusForError(richErr)

		logger.Info(
			"accounts error handler",
			"error", richErr.Message,
			"category", richErr.Category,
			"status", status,
		)
		logger.Debug("accounts error details", "details", print.MaybePrettyJSON(richErr.Metadata))

		view := "errors/500"
		switch status {
		case http.StatusForbidden:
			view = "errors/403"
		case http.StatusNotFound:
			view = "errors/404"
		}

		return c.Status(status).Render(view, router.ViewContext{
			"error":   richErr,
			"message": richErr.Message,
			"status":  status,
		})
	}
}

// NewJSONErrorHandler writes errors as JSON for the API routes
func NewJSONErrorHandler(logger Logger) router.ErrorHandler {
	if logger == nil {
		logger = NoopLogger()
	}
	return func(c router.Context, err error) error {
		richErr := asRichError(err)
		status := statusForError(richErr)

		logger.Info("accounts api error", "error", richErr.Message, "category", richErr.Category, "status", status)

		return c.JSON(status, map[string]any{
			"error":     richErr.Message,
			"text_code": richErr.TextCode,
			"status":    status,
		})
	}
}
