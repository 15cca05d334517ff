package grpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// Probe dials addr and waits until service reports SERVING or ctx ends.
// The binaries use it for container health checks.
func Probe(ctx context.Context, addr, service string) error {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return errors.New("health address is required")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	conn, err := gogrpc.NewClient(addr, gogrpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial health %s: %w", addr, err)
	}
	defer conn.Close()
	return waitServing(ctx, conn, service)
}

// waitServing polls the health service with a doubling delay capped at one
// second.
func waitServing(ctx context.Context, conn *gogrpc.ClientConn, service string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client := grpc_health_v1.NewHealthClient(conn)
	delay := 100 * time.Millisecond
	var last error
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Second)
		response, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		switch {
		case err != nil:
			last = err
		case response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING:
			return nil
		default:
			last = fmt.Errorf("status %s", response.GetStatus())
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not serving: %w", service, last)
		case <-time.After(delay):
		}
		if delay < time.Second {
			delay = min(2*delay, time.Second)
		}
	}
}
