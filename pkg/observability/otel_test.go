package observability

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitOTel_Disabled(t *testing.T) {
	log, hook := test.NewNullLogger()

	providers, err := InitOTel(context.Background(), OTelConfig{Enabled: false}, log)
	require.NoError(t, err)
	assert.Nil(t, providers)
	assert.Equal(t, "OpenTelemetry is disabled", hook.LastEntry().Message)

	// nil providers shut down cleanly
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitOTel_RequiresEndpoint(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := InitOTel(context.Background(), OTelConfig{Enabled: true}, log)
	assert.ErrorContains(t, err, "endpoint is required")
}

// OTLP exporters connect lazily, so an unreachable collector does not fail init
func TestInitOTel_InstallsGlobals(t *testing.T) {
	log, _ := test.NewNullLogger()
	prevTP := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prevTP)

	providers, err := InitOTel(context.Background(), OTelConfig{
		Enabled:        true,
		Endpoint:       "127.0.0.1:4317",
		ServiceName:    "iuran-test",
		ServiceVersion: "test",
		Insecure:       true,
		SampleRatio:    0.5,
	}, log)
	require.NoError(t, err)
	require.NotNil(t, providers)
	defer providers.Shutdown(context.Background())

	assert.Same(t, providers.TracerProvider, otel.GetTracerProvider())
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
	var _ sdktrace.Sampler = sampler(0.5)
}
