package gate

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Keksclan/goRawrStash/future"
	"github.com/Keksclan/goRawrStash/retry"
)

// Health enables cache reads while a gRPC health probe reports SERVING.
// It is meant to point at whatever keeps the cached data honest (the
// authoritative store or its invalidation feed): while that is unhealthy,
// cached values cannot be trusted and reads bypass the cache. Writes stay
// enabled so fresh loads still warm it.
type Health struct {
	client  healthpb.HealthClient
	service string
	retry   retry.Config
	timeout time.Duration
	logger  *slog.Logger
}

// HealthOption configures a [Health] source.
type HealthOption func(*Health)

// WithRetry sets how probes are retried. The default retries Unavailable.
func WithRetry(cfg retry.Config) HealthOption {
	return func(h *Health) { h.retry = cfg }
}

// WithProbeTimeout bounds each probe attempt. Default 1s.
func WithProbeTimeout(d time.Duration) HealthOption {
	return func(h *Health) { h.timeout = d }
}

// WithHealthLogger sets the logger for retried probes.
func WithHealthLogger(l *slog.Logger) HealthOption {
	return func(h *Health) { h.logger = l }
}

// NewHealth probes service over conn. An empty service asks for the
// server's overall health.
func NewHealth(conn grpc.ClientConnInterface, service string, opts ...HealthOption) *Health {
	h := &Health{
		client:  healthpb.NewHealthClient(conn),
		service: service,
		retry:   retry.DefaultConfig(),
		timeout: time.Second,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.retry.OnRetry == nil {
		h.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
			h.logger.Debug("gate: health probe failed, retrying",
				slog.String("service", h.service),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err),
			)
		}
	}
	return h
}

// ReadEnabled probes the service.
func (h *Health) ReadEnabled(ctx context.Context) *future.Future[bool] {
	return future.Go(ctx, func(ctx context.Context) (bool, error) {
		resp, err := retry.Do(ctx, h.retry, h.check)
		if err != nil {
			return false, err
		}
		return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
	})
}

// WriteEnabled is always true.
func (h *Health) WriteEnabled(context.Context) *future.Future[bool] {
	return future.Resolved(true)
}

func (h *Health) check(ctx context.Context) (*healthpb.HealthCheckResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.client.Check(ctx, &healthpb.HealthCheckRequest{Service: h.service})
}
