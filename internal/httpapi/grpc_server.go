package httpapi

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"tasktrack.dev/internal/obs"
)

// GRPCServer publishes readiness over the standard grpc.health.v1 service so
// orchestrators can probe the API without speaking HTTP.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
	version   string
	log       logrus.FieldLogger
}

// NewGRPCServer creates the health reporter. Status starts as NOT_SERVING
// until the first Probe.
func NewGRPCServer(r readinessChecker, version string) *GRPCServer {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCServer{
		health:    hs,
		readiness: r,
		version:   version,
		log:       obs.Logger(),
	}
}

// Register attaches the health service to a gRPC server.
func (s *GRPCServer) Register(reg grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(reg, s.health)
}

// Probe evaluates readiness once and publishes the result.
func (s *GRPCServer) Probe(ctx context.Context) error {
	err := s.readiness.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(serviceName, st)
	obs.SetReady(err == nil)
	return err
}

// Run probes on every tick until ctx is done, then marks every service
// NOT_SERVING so clients drain before the listener closes.
func (s *GRPCServer) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s.probeLogged(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.probeLogged(ctx)
		}
	}
}

func (s *GRPCServer) probeLogged(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.Probe(probeCtx); err != nil && ctx.Err() == nil {
		s.log.WithError(err).WithField("version", s.version).Warn("readiness probe failed")
	}
}
