// Package storage puts user uploads (profile pictures) in object storage and
// hands back their public URL.
package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/toolhub/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage",
	fx.Provide(New),
)

var (
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrUploadFailed    = errors.New("upload failed")
)

// Object describes a single upload.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Uploader interface {
	Upload(ctx context.Context, obj Object) (publicURL string, err error)
}

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// AvatarKey builds a collision-free object key under the user's prefix.
func AvatarKey(userID, contentType string, now time.Time) (string, error) {
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", ErrUnsupportedType
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return path.Join(strings.TrimSpace(userID), strings.ToLower(id.String())+ext), nil
}

// IsSupportedImage reports whether contentType can be stored as an avatar.
func IsSupportedImage(contentType string) bool {
	_, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	return ok
}

func New(cfg config.Config, log *zap.Logger) (Uploader, error) {
	log = log.Named("storage")
	switch cfg.Storage.Driver {
	case "supabase":
		if cfg.Storage.SupabaseURL == "" || cfg.Storage.SupabaseKey == "" {
			return nil, errors.New("supabase storage requires SUPABASE_URL and SUPABASE_SERVICE_KEY")
		}
		log.Info("using supabase storage", zap.String("bucket", cfg.Storage.Bucket))
		return NewSupabase(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.Bucket, nil), nil
	case "local", "":
		log.Info("using local storage", zap.String("dir", cfg.Storage.LocalDir))
		return NewLocal(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL, cfg.Storage.Bucket), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
