package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Supabase talks to the storage REST API of a Supabase project.
type Supabase struct {
	baseURL string
	key     string
	bucket  string
	client  *http.Client
}

func NewSupabase(baseURL, serviceKey, bucket string, client *http.Client) *Supabase {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Supabase{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     serviceKey,
		bucket:  bucket,
		client:  client,
	}
}

func (s *Supabase) Upload(ctx context.Context, obj Object) (string, error) {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, obj.Key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, obj.Body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("apikey", s.key)
	req.Header.Set("Content-Type", obj.ContentType)
	req.Header.Set("x-upsert", "true")
	if obj.Size > 0 {
		req.ContentLength = obj.Size
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrUploadFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return s.PublicURL(obj.Key), nil
}

func (s *Supabase) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, key)
}
