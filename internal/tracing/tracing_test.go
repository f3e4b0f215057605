package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dongshu2013/the-agent-bot/internal/config"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Endpoint: "localhost:4317"}, "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		raw          string
		insecure     bool
		wantEndpoint string
		wantInsecure bool
	}{
		{"collector:4318", false, "collector:4318", false},
		{"collector:4318", true, "collector:4318", true},
		{"http://collector:4318", false, "collector:4318", true},
		{"https://otel.example.com", true, "otel.example.com", false},
	}
	for _, tt := range tests {
		endpoint, insecure := normalizeEndpoint(tt.raw, tt.insecure)
		assert.Equal(t, tt.wantEndpoint, endpoint, tt.raw)
		assert.Equal(t, tt.wantInsecure, insecure, tt.raw)
	}
}

func TestProtocol(t *testing.T) {
	assert.Equal(t, "grpc", protocol(config.TelemetryConfig{}))
	assert.Equal(t, "http", protocol(config.TelemetryConfig{Protocol: "HTTP"}))
}
