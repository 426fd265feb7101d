// Package health exposes the standard grpc health protocol for the node.
package health

import (
	"net"
	"sync"

	"PPRealtime/logger"
	"PPRealtime/tools/safe"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	ServiceProducer = "pprealtime.Producer"
	ServiceCache    = "pprealtime.Cache"
	ServiceConsumer = "pprealtime.Consumer"
)

type Server struct {
	gs *grpc.Server
	hs *grpchealth.Server

	mu  sync.Mutex
	lis net.Listener
}

func New() *Server {
	gs := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return &Server{gs: gs, hs: hs}
}

// Start listens on addr and serves in the background. The overall status starts SERVING.
func (s *Server) Start(addr string) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.lis = lis
	s.mu.Unlock()

	s.hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	safe.Go("grpc-health", func() {
		logger.Info("[gRPC] health listening", zap.String("addr", lis.Addr().String()))
		if err := s.gs.Serve(lis); err != nil {
			logger.Warn("[gRPC] serve stopped", zap.Error(err))
		}
	})
	return lis.Addr(), nil
}

// Set reports one component. Unknown names are registered on first use.
func (s *Server) Set(service string, ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.hs.SetServingStatus(service, st)
}

// Stop flips every status to NOT_SERVING and stops the server.
func (s *Server) Stop() {
	s.hs.Shutdown()
	s.gs.GracefulStop()
}
