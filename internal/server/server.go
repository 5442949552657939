package server

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"time"

	"rewardengine/internal/coordinator"
	"rewardengine/internal/emission"
	"rewardengine/internal/ingestion"
	"rewardengine/internal/observability"
	"rewardengine/internal/persistence"
	"rewardengine/internal/query"
	"rewardengine/internal/recorder"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Server wraps the gRPC server (health + reflection) and the HTTP/JSON API
// served from a gRPC-Gateway runtime mux.
type Server struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	httpServer   *http.Server
	handler      http.Handler
	grpcAddr     string
	httpAddr     string
	logger       zerolog.Logger
}

// Deps holds what the API reads from and writes to. Everything except
// Coordinator is optional; routes whose dependency is missing answer
// Unimplemented.
type Deps struct {
	Coordinator   *coordinator.Coordinator
	Curves        []*emission.Curve // served in addition to the ledgers' own curves
	Injector      *ingestion.Injector
	Recorder      recorder.Recorder
	Query         *query.QueryService
	DB            *sql.DB
	SnapshotMgr   *persistence.SnapshotManager
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
	Clock         func() time.Time
	Logger        zerolog.Logger
}

// New builds the gRPC server and the HTTP handler tree.
func New(grpcAddr, httpAddr string, deps *Deps) (*Server, error) {
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("server: coordinator is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	api := &api{deps: deps, catalog: newCatalog(deps.Coordinator, deps.Curves)}
	mux := runtime.NewServeMux()
	if err := api.register(mux); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	httpMux := http.NewServeMux()
	if deps.HealthChecker != nil {
		httpMux.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler)
		httpMux.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler)
	} else {
		httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	httpMux.Handle("/", mux)

	return &Server{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		handler:      httpMux,
		grpcAddr:     grpcAddr,
		httpAddr:     httpAddr,
		logger:       deps.Logger,
	}, nil
}

// Handler returns the HTTP handler tree, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// SetServing flips the gRPC health status, typically once replay is done.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)
}

// StartGRPC starts the gRPC server (blocking).
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", s.grpcAddr).Msg("gRPC server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTP starts the HTTP/JSON API (blocking).
func (s *Server) StartHTTP(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.httpAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP API shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
