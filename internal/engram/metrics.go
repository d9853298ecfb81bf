package engram

import (
	"context"
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/flemzord/recall/internal/engram"

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "engram",
			Name:      "requests_total",
			Help:      "Memory service API calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recall",
			Subsystem: "engram",
			Name:      "request_duration_seconds",
			Help:      "Memory service API call latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// outcome classifies an error for the requests_total label.
func outcome(err error) string {
	var apiErr *APIError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrInvalidRequest) && !errors.As(err, &apiErr):
		return "invalid"
	case errors.As(err, &apiErr):
		return "http_" + strconv.Itoa(apiErr.StatusCode)
	default:
		return "transport"
	}
}

// observe starts a span for op and returns a finisher that records the
// span status and metrics.
func (c *Client) observe(ctx context.Context, op, method, path string) (context.Context, func(*error)) {
	ctx, span := c.tracer.Start(ctx, "engram."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", path),
			attribute.String("engram.tenant_id", c.cfg.TenantID),
		),
	)
	start := c.now()
	return ctx, func(errp *error) {
		err := *errp
		requestDuration.WithLabelValues(op).Observe(c.now().Sub(start).Seconds())
		requestsTotal.WithLabelValues(op, outcome(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
