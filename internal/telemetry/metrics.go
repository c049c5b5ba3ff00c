package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/x402mail/x402mail-go/internal/x402"
)

// Outcome attribute values.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics records tool and payment activity. A nil *Metrics is a no-op.
type Metrics struct {
	toolCalls    metric.Int64Counter
	toolDuration metric.Float64Histogram
	payments     metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	toolCalls, err := meter.Int64Counter("x402mail.tool.calls",
		metric.WithDescription("Tool invocations by tool and outcome"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, fmt.Errorf("create tool.calls counter failed: %w", err)
	}

	toolDuration, err := meter.Float64Histogram("x402mail.tool.duration",
		metric.WithDescription("Tool invocation latency, payment round trip included"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create tool.duration histogram failed: %w", err)
	}

	payments, err := meter.Int64Counter("x402mail.payments",
		metric.WithDescription("x402 payment attempts by network and outcome"),
		metric.WithUnit("{payment}"))
	if err != nil {
		return nil, fmt.Errorf("create payments counter failed: %w", err)
	}

	return &Metrics{toolCalls: toolCalls, toolDuration: toolDuration, payments: payments}, nil
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("outcome", outcome(err)),
	)
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordPayment records one payment attempt. It matches the
// x402.Transport OnPayment hook.
func (m *Metrics) RecordPayment(ev x402.PaymentEvent) {
	if m == nil {
		return
	}

	m.payments.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("network", ev.Network),
		attribute.String("outcome", outcome(ev.Err)),
	))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
