package accounts

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AvatarFormField is the multipart field carrying the avatar
const AvatarFormField = "avatar"

// AvatarHandler stores uploaded avatars. It runs on the fiber app directly
// since it needs the multipart form.
type AvatarHandler struct {
	cfg      Config
	users    Users
	sessions SessionStore
	tokens   TokenService
	activity ActivitySink
	logger   Logger
	now      Clock
}

type AvatarHandlerOption func(*AvatarHandler)

func WithAvatarLogger(logger Logger) AvatarHandlerOption {
	return func(h *AvatarHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithAvatarActivitySink(sink ActivitySink) AvatarHandlerOption {
	return func(h *AvatarHandler) {
		h.activity = normalizeActivitySink(sink)
	}
}

func WithAvatarTokenService(tokens TokenService) AvatarHandlerOption {
	return func(h *AvatarHandler) {
		if tokens != nil {
			h.tokens = tokens
		}
	}
}

func NewAvatarHandler(cfg Config, repo RepositoryManager, opts ...AvatarHandlerOption) *AvatarHandler {
	h := &AvatarHandler{
		cfg:      cfg,
		users:    repo.Users(),
		sessions: repo.Sessions(),
		activity: noopActivitySink{},
		logger:   NoopLogger(),
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	if h.tokens == nil {
		h.tokens = NewTokenServiceFromConfig(cfg, h.logger)
	}

	return h
}

// Register mounts the handler on the fiber app
func (h *AvatarHandler) Register(app fiber.Router, path string) {
	if path == "" {
		path = "/user/avatar"
	}
	app.Post(path, h.Handle)
}

func (h *AvatarHandler) Handle(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return h.fail(c, err)
	}

	form, err := c.MultipartForm()
	if err != nil {
		return h.fail(c, errors.New("expected a multipart form", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest))
	}

	avatar, err := CheckAvatar(form.File[AvatarFormField])
	if err != nil {
		return h.fail(c, err)
	}

	if avatar == nil {
		return h.fail(c, errors.New("no avatar uploaded", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest).
			WithTextCode(TextCodeInvalidAvatar))
	}

	root := h.cfg.GetAvatarPath()
	if root == "" {
		root = "avatars"
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return h.fail(c, errors.Wrap(err, errors.CategoryInternal, "failed to prepare avatar storage"))
	}

	name := HashUpload(root, avatar.Filename)
	if err := c.SaveFile(avatar, name); err != nil {
		return h.fail(c, errors.Wrap(err, errors.CategoryInternal, "failed to store avatar"))
	}

	if err := h.users.UpdateAvatar(c.UserContext(), user.ID, name); err != nil {
		_ = os.Remove(name)
		return h.fail(c, errors.Wrap(err, errors.CategoryInternal, "failed to update avatar"))
	}

	recordActivity(c.UserContext(), h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventAvatarUpdated,
		ActorID:   user.ID.String(),
		UserID:    user.ID.String(),
		ObjectID:  filepath.Base(name),
		Metadata:  map[string]any{"size": avatar.Size},
	})

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"avatar": name})
}

// currentUser resolves the caller from the session cookie or an access token
func (h *AvatarHandler) currentUser(c *fiber.Ctx) (*User, error) {
	ctx := c.UserContext()

	// an explicit bearer token wins over cookies, those requests skip csrf
	token := bearerToken(c.Get(fiber.HeaderAuthorization))

	if token == "" {
		if raw := c.Cookies(h.sessionCookieName()); raw != "" {
			if key, err := uuid.Parse(raw); err == nil {
				session, err := h.sessions.Get(ctx, key)
				if err == nil && !session.Expired(h.now()) {
					return h.users.FindByUUID(ctx, session.UserID)
				}
			}
		}
		token = c.Cookies(h.jwtCookieName())
	}

	if token == "" {
		return nil, ErrSessionNotFound
	}

	claims, err := h.tokens.ValidateClaims(token)
	if err != nil {
		return nil, err
	}

	id, err := claims.UserUUID()
	if err != nil {
		return nil, ErrTokenMalformed
	}

	return h.users.FindByUUID(ctx, id)
}

func bearerToken(header string) string {
	const scheme = "Bearer "
	if len(header) > len(scheme) && strings.EqualFold(header[:len(scheme)], scheme) {
		return strings.TrimSpace(header[len(scheme):])
	}
	return ""
}

// CSRFExempt reports whether a request can skip csrf checks: API routes and
// requests authenticated with a bearer token, which browsers never attach on
// their own
func CSRFExempt(c *fiber.Ctx) bool {
	return strings.HasPrefix(c.Path(), "/api/") || bearerToken(c.Get(fiber.HeaderAuthorization)) != ""
}

func (h *AvatarHandler) sessionCookieName() string {
	if name := h.cfg.GetSessionCookieName(); name != "" {
		return name
	}
	return DefaultSessionCookieName
}

func (h *AvatarHandler) jwtCookieName() string {
	if name := h.cfg.GetJWTCookieName(); name != "" {
		return name
	}
	return DefaultJWTCookieName
}

func (h *AvatarHandler) fail(c *fiber.Ctx, err error) error {
	richErr := asRichError(err)
	status := statusForError(richErr)
	if isRecordNotFound(err) {
		status = fiber.StatusUnauthorized
	}

	h.logger.Info("avatar upload rejected", "error", richErr.Message, "status", status)

	return c.Status(status).JSON(fiber.Map{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}
