// Package healthcheck serves grpc.health.v1 for a service whose liveness is
// decided by a probe function.
package healthcheck

import (
	"context"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Probe reports whether the service can currently serve requests.
type Probe func(ctx context.Context) bool

// Server implements the gRPC Health service on top of a Probe.
type Server struct {
	probe Probe
	healthpb.UnimplementedHealthServer
}

// NewServer returns a health server. A nil probe always reports SERVING.
func NewServer(probe Probe) *Server {
	if probe == nil {
		probe = func(context.Context) bool { return true }
	}
	return &Server{probe: probe}
}

// Check calls the probe and reports SERVING or NOT_SERVING.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if s.probe(ctx) {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
}

// Register adds a health server for probe to srv.
func Register(srv *grpc.Server, probe Probe) *Server {
	h := NewServer(probe)
	healthpb.RegisterHealthServer(srv, h)
	return h
}
