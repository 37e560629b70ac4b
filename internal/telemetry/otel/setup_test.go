package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestNewProviders_EmptyEndpoint(t *testing.T) {
	ctx := context.Background()
	for _, endpoint := range []string{"", "   "} {
		providers, err := NewProviders(ctx, Options{Endpoint: endpoint, ServiceName: "chabaqa-test"})
		if err != nil {
			t.Fatalf("NewProviders(%q): %v", endpoint, err)
		}
		if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
			t.Fatal("all providers should be set")
		}
		if err := providers.Shutdown(ctx); err != nil {
			t.Errorf("shutdown should be no-op for empty endpoint, got %v", err)
		}
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	for _, endpoint := range []string{"http://", "://bad url", "http://[::1"} {
		if _, err := NewProviders(context.Background(), Options{Endpoint: endpoint}); err == nil {
			t.Errorf("NewProviders(%q) should fail", endpoint)
		}
	}
}

func TestNewProviders_EndpointForms(t *testing.T) {
	ctx := context.Background()
	cases := []Options{
		{Endpoint: "localhost:4317", ServiceName: "chabaqa-api"},
		{Endpoint: "http://localhost:4317", ServiceName: "chabaqa-api", Environment: "development"},
		{Endpoint: "https://collector:4317/v1/traces", ServiceName: "chabaqa-gate"},
		{Endpoint: "https://collector:4317", ServiceName: "chabaqa-gate", Insecure: true},
	}
	for _, opts := range cases {
		providers, err := NewProviders(ctx, opts)
		if err != nil {
			t.Fatalf("NewProviders(%+v): %v", opts, err)
		}
		// Exporters dial lazily, so creation succeeds without a collector.
		shutdownCtx, cancel := context.WithTimeout(ctx, 0)
		_ = providers.Shutdown(shutdownCtx)
		cancel()
	}
}

func TestSetGlobal(t *testing.T) {
	oldTP, oldMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(oldTP)
		otel.SetMeterProvider(oldMP)
	}()

	providers, err := NewProviders(context.Background(), Options{ServiceName: "chabaqa-test"})
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	providers.SetGlobal()
	if otel.GetTracerProvider() != providers.TracerProvider {
		t.Error("global TracerProvider not set")
	}
	if otel.GetMeterProvider() != providers.MeterProvider {
		t.Error("global MeterProvider not set")
	}
	if len(otel.GetTextMapPropagator().Fields()) == 0 {
		t.Error("propagator should carry traceparent")
	}

	(&Providers{}).SetGlobal() // nil providers must not panic
}
