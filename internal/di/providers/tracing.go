package providers

import (
	"context"

	"github.com/samber/do/v2"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/listenupapp/tasksync-server/internal/logger"
)

// TracerProviderHandle wraps the SDK tracer provider with Shutdownable.
type TracerProviderHandle struct {
	*sdktrace.TracerProvider
}

// Shutdown implements do.Shutdownable.
func (h *TracerProviderHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.TracerProvider.Shutdown(ctx)
}

// ProvideTracerProvider installs the global tracer provider. Spans carry the
// trace and span IDs that the logger attaches to every record.
func ProvideTracerProvider(i do.Injector) (*TracerProviderHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	// TODO: register an OTLP span exporter once a collector endpoint is configurable.
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)

	log.Debug("Tracer provider installed")

	return &TracerProviderHandle{TracerProvider: tp}, nil
}
