package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	authEvents      metric.Int64Counter
	onboardingRuns  metric.Int64Counter
	verifyAttempts  metric.Int64Counter
	chatMessages    metric.Int64Counter
	autoReplies     metric.Int64Counter
	functionCalls   metric.Int64Counter
	rateLimitDenied metric.Int64Counter
	realtimeDropped metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "toolhub"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.authEvents, err = meter.Int64Counter("toolhub_auth_events_total"); err != nil {
		return nil, err
	}
	if m.onboardingRuns, err = meter.Int64Counter("toolhub_onboarding_runs_total"); err != nil {
		return nil, err
	}
	if m.verifyAttempts, err = meter.Int64Counter("toolhub_onboarding_verify_attempts_total"); err != nil {
		return nil, err
	}
	if m.chatMessages, err = meter.Int64Counter("toolhub_chat_messages_total"); err != nil {
		return nil, err
	}
	if m.autoReplies, err = meter.Int64Counter("toolhub_chat_auto_replies_total"); err != nil {
		return nil, err
	}
	if m.functionCalls, err = meter.Int64Counter("toolhub_function_calls_total"); err != nil {
		return nil, err
	}
	if m.rateLimitDenied, err = meter.Int64Counter("toolhub_rate_limit_denied_total"); err != nil {
		return nil, err
	}
	if m.realtimeDropped, err = meter.Int64Counter("toolhub_realtime_dropped_total"); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAuthEvent counts auth state changes by event type.
func (m *Metrics) RecordAuthEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.authEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOnboardingRun counts onboarding runs by outcome step.
func (m *Metrics) RecordOnboardingRun(ctx context.Context, step, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("step", strings.TrimSpace(step)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.onboardingRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordVerifyAttempt counts profile verification polls.
func (m *Metrics) RecordVerifyAttempt(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.verifyAttempts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordChatMessage counts appended chat messages by role.
func (m *Metrics) RecordChatMessage(ctx context.Context, role string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("role", strings.TrimSpace(role)))
	m.chatMessages.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAutoReply counts auto-reply decisions.
func (m *Metrics) RecordAutoReply(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.autoReplies.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordFunctionCall counts function endpoint invocations.
func (m *Metrics) RecordFunctionCall(ctx context.Context, function string, statusCode int) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("function", strings.TrimSpace(function)),
		attribute.Int("status_code", statusCode),
	)
	m.functionCalls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRealtimeDropped counts change events dropped for slow subscribers.
func (m *Metrics) RecordRealtimeDropped(ctx context.Context, table string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("table", strings.TrimSpace(table)))
	m.realtimeDropped.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"event_type":  {},
	"function":    {},
	"outcome":     {},
	"role":        {},
	"step":        {},
	"table":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
