package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Local writes objects below dir/bucket and serves them from baseURL.
type Local struct {
	dir     string
	baseURL string
	bucket  string
}

func NewLocal(dir, baseURL, bucket string) *Local {
	return &Local{dir: dir, baseURL: strings.TrimRight(baseURL, "/"), bucket: bucket}
}

// Root is the directory the HTTP server exposes at the base URL.
func (l *Local) Root() string { return l.dir }

func (l *Local) Upload(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Clean("/" + obj.Key)
	target := filepath.Join(l.dir, l.bucket, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	f, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if _, err := io.Copy(f, obj.Body); err != nil {
		f.Close()
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	return l.baseURL + "/" + l.bucket + filepath.ToSlash(clean), nil
}
