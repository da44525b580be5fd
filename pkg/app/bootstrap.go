package app

import (
	"context"

	"github.com/krama-desa/iuran/pkg/config"
	"github.com/krama-desa/iuran/pkg/observability"
	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger from the observability settings
func NewLogger(cfg *config.Config) (*logrus.Logger, error) {
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
}

// InitTelemetry starts OpenTelemetry and registers its shutdown with sm.
// Nothing is registered when OpenTelemetry is disabled.
func InitTelemetry(ctx context.Context, cfg *config.Config, log logrus.FieldLogger, sm *observability.ShutdownManager) error {
	o := cfg.Observability
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}, log)
	if err != nil {
		return err
	}
	if providers != nil {
		sm.Register("opentelemetry", providers.Shutdown)
	}
	return nil
}
