// Package telemetry wires OpenTelemetry metrics and traces for the tool
// server and the paid HTTP calls it makes.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Exporter names accepted by Config.Exporter.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// Config selects where telemetry goes.
type Config struct {
	Exporter       string
	OTLPEndpoint   string
	OTLPInsecure   bool
	ServiceName    string
	ServiceVersion string
	// Writer receives stdout exporter output. Never os.Stdout in stdio mode.
	Writer io.Writer
}

// Provider owns the meter and tracer providers.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	metrics        *Metrics
}

// NewProvider builds providers for cfg and installs them globally. With
// ExporterNone (or an empty exporter) all instruments are no-ops.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	switch cfg.Exporter {
	case "", ExporterNone:
		m, err := NewMetrics(metricnoop.NewMeterProvider().Meter(cfg.ServiceName))
		if err != nil {
			return nil, err
		}
		return &Provider{metrics: m}, nil
	case ExporterStdout, ExporterOTLP:
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q", cfg.Exporter)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("resource.New failed: %w", err)
	}

	reader, spans, err := newExporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		),
		tracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(spans),
		),
	}

	otel.SetMeterProvider(p.meterProvider)
	otel.SetTracerProvider(p.tracerProvider)

	p.metrics, err = NewMetrics(p.meterProvider.Meter(cfg.ServiceName))
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}

	return p, nil
}

func newExporters(ctx context.Context, cfg Config) (sdkmetric.Reader, sdktrace.SpanExporter, error) {
	if cfg.Exporter == ExporterStdout {
		w := cfg.Writer
		if w == nil {
			w = os.Stderr
		}

		me, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("stdoutmetric.New failed: %w", err)
		}
		te, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("stdouttrace.New failed: %w", err)
		}
		return sdkmetric.NewPeriodicReader(me), te, nil
	}

	if cfg.OTLPEndpoint == "" {
		return nil, nil, errors.New("OTLP endpoint is required for the otlp exporter")
	}

	mopts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint)}
	topts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.OTLPInsecure {
		mopts = append(mopts, otlpmetrichttp.WithInsecure())
		topts = append(topts, otlptracehttp.WithInsecure())
	}

	me, err := otlpmetrichttp.New(ctx, mopts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otlpmetrichttp.New failed: %w", err)
	}
	te, err := otlptracehttp.New(ctx, topts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otlptracehttp.New failed: %w", err)
	}

	return sdkmetric.NewPeriodicReader(me), te, nil
}

// Metrics returns the instrument set. Never nil.
func (p *Provider) Metrics() *Metrics {
	return p.metrics
}

// Shutdown flushes and stops exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	if p.tracerProvider != nil {
		err = errors.Join(err, p.tracerProvider.Shutdown(ctx))
	}
	if p.meterProvider != nil {
		err = errors.Join(err, p.meterProvider.Shutdown(ctx))
	}
	return err
}
