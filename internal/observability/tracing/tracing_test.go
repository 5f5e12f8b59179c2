package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsSensitiveKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/chat/:conversationId"),
		attribute.String("auth.refresh_token", "x"),
		attribute.String("user.email", "a@b.com"),
		attribute.Int("http.status_code", 200),
	)
	assert.Len(t, attrs, 2)
}

func TestSafeErrorKeepsOutermostMessage(t *testing.T) {
	err := fmt.Errorf("upsert profile: %w", errors.New(`duplicate key value "alice@example.com"`))
	assert.EqualError(t, SafeError(err), "upsert profile")
	assert.Nil(t, SafeError(nil))
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 1.0, clampRatio(3))
	assert.Equal(t, 0.25, clampRatio(0.25))
}
