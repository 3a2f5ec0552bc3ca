package api

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reporting on the engine.
const ServiceName = "autotrader.Engine"

func newGRPCServer(h *health.Server) *grpc.Server {
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, h)
	return gs
}

// refreshHealth sets both the overall and the engine service status from
// the engine's stopped flag.
func (s *Server) refreshHealth() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.src.Status().Stopped {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
