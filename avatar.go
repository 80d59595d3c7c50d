package accounts

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	// AvatarMaxDimension is the max width and height in pixels
	AvatarMaxDimension = 1200
	// AvatarMaxSize is the max upload size in bytes
	AvatarMaxSize = 1024 * 1024
)

var avatarSubtypes = map[string]bool{
	"jpeg": true,
	"jpg":  true,
	"gif":  true,
	"png":  true,
}

func avatarError(msg, reason string) *errors.Error {
	return errors.New(msg, errors.CategoryValidation).
		WithCode(errors.CodeBadRequest).
		WithTextCode(TextCodeInvalidAvatar).
		WithMetadata(map[string]any{"reason": reason})
}

// CheckAvatar validates the first uploaded file. It returns nil when no
// files were uploaded.
func CheckAvatar(files []*multipart.FileHeader) (*multipart.FileHeader, error) {
	if len(files) == 0 {
		return nil, nil
	}

	avatar := files[0]

	f, err := avatar.Open()
	if err != nil {
		return nil, avatarError("Can't read image, try another one", "unreadable")
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, avatarError("Can't read image, try another one", "unreadable")
	}

	if cfg.Width > AvatarMaxDimension || cfg.Height > AvatarMaxDimension {
		return nil, avatarError("Please use an image that is 1200 x 1200 pixels or smaller.", "dimensions")
	}

	mainType, subType := splitContentType(avatar.Header.Get("Content-Type"))
	if mainType != "image" || !avatarSubtypes[subType] {
		return nil, avatarError("Please use a JPEG, GIF or PNG image.", "content_type")
	}

	if avatar.Size > AvatarMaxSize {
		return nil, avatarError("Avatar file size may not exceed 1024 kb", "size")
	}

	return avatar, nil
}

func splitContentType(contentType string) (string, string) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ""
	}

	mainType, subType, ok := strings.Cut(mediaType, "/")
	if !ok {
		return "", ""
	}
	return mainType, subType
}

// HashUpload prefixes the file name with a short random id under avatarPath
func HashUpload(avatarPath, filename string) string {
	name := filepath.Base(filename)
	return path.Join(avatarPath, uuid.NewString()[:8]+"-"+name)
}
