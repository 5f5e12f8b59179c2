package observability

import (
	"testing"

	"github.com/smallbiznis/toolhub/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("DEPLOYMENT_ENV", "")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "")

	cfg := LoadConfig(config.Config{Environment: "development", AppVersion: "1.2.3"})

	assert.Equal(t, "toolhub", cfg.ServiceName)
	assert.Equal(t, "1.2.3", cfg.Version)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.OtelEnabled)
	assert.True(t, cfg.Debug())
}

func TestLoadConfigProductionEnablesOtel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("OTEL_ENABLED", "")
	t.Setenv("DEPLOYMENT_ENV", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", "http")

	cfg := LoadConfig(config.Config{AppName: "directory", Environment: "production"})

	assert.Equal(t, "directory", cfg.ServiceName)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, "http", cfg.OtelExporterProtocol)
	assert.False(t, cfg.Debug())
}
