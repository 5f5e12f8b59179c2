package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvatarKey(t *testing.T) {
	key, err := AvatarKey("42", "image/png", time.Unix(1700000000, 0))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "42/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	_, err = AvatarKey("42", "application/pdf", time.Now())
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.True(t, IsSupportedImage("IMAGE/JPEG"))
}

func TestLocalUpload(t *testing.T) {
	dir := t.TempDir()
	local := NewLocal(dir, "/uploads/", "profile-pictures")

	url, err := local.Upload(context.Background(), Object{Key: "7/a.png", ContentType: "image/png", Body: strings.NewReader("png")})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/profile-pictures/7/a.png", url)

	data, err := os.ReadFile(filepath.Join(dir, "profile-pictures", "7", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	_, err = local.Upload(context.Background(), Object{Key: "../../escape.png", Body: strings.NewReader("x")})
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "profile-pictures", "escape.png"))
	assert.NoError(t, err)
}

func TestSupabaseUpload(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL, "service-key", "profile-pictures", srv.Client())
	url, err := s.Upload(context.Background(), Object{Key: "7/a.png", ContentType: "image/png", Body: bytes.NewReader([]byte("img"))})
	require.NoError(t, err)

	assert.Equal(t, "/storage/v1/object/profile-pictures/7/a.png", gotPath)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "img", string(gotBody))
	assert.Equal(t, srv.URL+"/storage/v1/object/public/profile-pictures/7/a.png", url)
}

func TestSupabaseUploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket not found", http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL, "k", "missing", srv.Client())
	_, err := s.Upload(context.Background(), Object{Key: "x.png", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrUploadFailed)
}
