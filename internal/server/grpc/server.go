// Package grpc exposes the object, sync, search and folder operations over
// gRPC. Messages are plain Go structs encoded with the JSON codec.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/groupware/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Services are the operations served by GRPCServer.
type Services struct {
	Objects objectService
	Sync    syncService
	Search  searchService
	Folders folderCatalog
}

type GRPCServer struct {
	address   string
	objects   objectService
	sync      syncService
	search    searchService
	folders   folderCatalog
	logger    logging.Logger
	jwtSecret []byte
	health    *health.Server
}

func NewGRPCServer(address string, l logging.Logger, svc Services, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   address,
		objects:   svc.Objects,
		sync:      svc.Sync,
		search:    svc.Search,
		folders:   svc.Folders,
		logger:    l.With("module", "grpc_server"),
		jwtSecret: []byte(secretKey),
		health:    health.NewServer(),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully: running
// calls, open result streams included, are allowed to finish.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamLoggingInterceptor, s.streamAccessTokenInterceptor),
	)
	srv.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
