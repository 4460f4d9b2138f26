package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/claridad-app/claridad/internal/config"
	"github.com/claridad-app/claridad/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ChatService is the health service name reported for the chat API.
const ChatService = "claridad.Chat"

// Server runs the chat API on TCP and the health service on the session's
// Unix domain socket.
type Server struct {
	httpServer   *http.Server
	httpListener net.Listener

	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string

	logger *zap.Logger
}

// NewServer binds both listeners. Serving starts with Start.
func NewServer(p Params, cfg *config.Config, handler http.Handler, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	httpListener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		_ = listener.Close()
		_ = os.Remove(socketPath)
		return nil, fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ChatService, healthpb.HealthCheckResponse_NOT_SERVING)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	return &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		httpListener: httpListener,
		grpcServer:   srv,
		health:       hs,
		listener:     listener,
		socketPath:   socketPath,
		logger:       logger,
	}, nil
}

// Addr returns the bound HTTP address.
func (s *Server) Addr() string {
	return s.httpListener.Addr().String()
}

// Start serves both listeners in the background and marks the chat service
// healthy.
func (s *Server) Start() {
	s.logger.Info("gRPC health server starting", zap.String("socket", s.socketPath))
	go func() {
		if err := s.grpcServer.Serve(s.listener); err != nil {
			s.logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	s.logger.Info("HTTP server starting", zap.String("addr", s.Addr()))
	go func() {
		if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(ChatService, healthpb.HealthCheckResponse_SERVING)
}

// Stop drains HTTP, then performs a graceful gRPC shutdown and removes the
// socket file.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	s.logger.Info("HTTP server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP shutdown", zap.Error(err))
		_ = s.httpServer.Close()
	}

	s.logger.Info("gRPC server stopping")
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}

// CheckHealth asks the daemon listening on socketPath for the chat service's
// serving status.
func CheckHealth(ctx context.Context, socketPath string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	defer func() { _ = conn.Close() }()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ChatService})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
