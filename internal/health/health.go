// Package health reports database reachability over the standard gRPC
// health protocol.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service reported alongside the overall "" status.
const ServiceName = "checkin"

// Pinger verifies a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker probes the database and mirrors the result into a gRPC health server.
type Checker struct {
	pinger  Pinger
	timeout time.Duration
	server  *grpchealth.Server
}

// NewChecker creates a checker. Status starts as NOT_SERVING until the first probe.
func NewChecker(pinger Pinger, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &Checker{
		pinger:  pinger,
		timeout: timeout,
		server:  grpchealth.NewServer(),
	}
	c.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// Check pings the database once.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}

// Refresh runs Check and publishes the result.
func (c *Checker) Refresh(ctx context.Context) error {
	err := c.Check(ctx)
	if err != nil {
		c.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return err
	}
	c.set(healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Start refreshes the status every interval until ctx is done.
func (c *Checker) Start(ctx context.Context, interval time.Duration) {
	if err := c.Refresh(ctx); err != nil {
		slog.Warn("Initial health probe failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					slog.Warn("Health probe failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Register exposes the health service on s.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.server)
}

// Shutdown marks everything NOT_SERVING and ignores later updates.
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}

func (c *Checker) set(status healthpb.HealthCheckResponse_ServingStatus) {
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)
}
