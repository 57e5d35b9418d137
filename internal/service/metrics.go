package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/zhejian/url-shortener/shortlink/internal/service"

// Resolution outcomes recorded on shortlink.resolutions
const (
	resultRedirected = "redirected"
	resultNotFound   = "not_found"
	resultExpired    = "expired"
	resultError      = "error"
)

type serviceMetrics struct {
	created     metric.Int64Counter
	resolutions metric.Int64Counter
	deleted     metric.Int64Counter
}

func newServiceMetrics() *serviceMetrics {
	meter := otel.Meter(meterName)

	created, err := meter.Int64Counter("shortlink.links.created",
		metric.WithDescription("Links created"),
		metric.WithUnit("{link}"))
	if err != nil {
		otel.Handle(err)
	}
	resolutions, err := meter.Int64Counter("shortlink.resolutions",
		metric.WithDescription("Alias resolutions by result"),
		metric.WithUnit("{resolution}"))
	if err != nil {
		otel.Handle(err)
	}
	deleted, err := meter.Int64Counter("shortlink.links.deleted",
		metric.WithDescription("Links deleted"),
		metric.WithUnit("{link}"))
	if err != nil {
		otel.Handle(err)
	}

	return &serviceMetrics{created: created, resolutions: resolutions, deleted: deleted}
}

func (m *serviceMetrics) linkCreated(ctx context.Context, generated bool) {
	m.created.Add(ctx, 1, metric.WithAttributes(attribute.Bool("alias.generated", generated)))
}

func (m *serviceMetrics) resolved(ctx context.Context, result string) {
	m.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *serviceMetrics) linkDeleted(ctx context.Context) {
	m.deleted.Add(ctx, 1)
}
