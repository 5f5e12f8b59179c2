package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("event_type", "SIGNED_IN"),
		attribute.String("user_id", "456"),
		attribute.String("conversation_id", "789"),
		attribute.String("role", "assistant"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("event_type"), attrs[0].Key)
	assert.Equal(t, attribute.Key("role"), attrs[1].Key)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAuthEvent(context.Background(), "SIGNED_OUT")
		m.RecordAutoReply(context.Background(), "claimed")
		m.RecordFunctionCall(context.Background(), "get-autocomplete", 200)
	})
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordChatMessage(context.Background(), "user")
		m.RecordVerifyAttempt(context.Background(), "miss")
	})
}
