// Package server hosts the extraction tools on an MCP stdio server.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/osmextract/pkg/tools"
	"github.com/NERVsystems/osmextract/pkg/version"
)

const (
	// ServerName is the name of the MCP server
	ServerName = "osmextract"
)

// Server encapsulates the MCP server with the extraction tools registered
type Server struct {
	srv    *mcpserver.MCPServer
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewServer creates an MCP server with every tool in the registry
func NewServer(registry *tools.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("initializing MCP server",
		"name", ServerName,
		"version", version.BuildVersion)

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	registry.RegisterTools(srv)

	return &Server{
		srv:    srv,
		logger: logger,
		doneCh: make(chan struct{}),
	}
}

// Run serves MCP over stdin/stdout until ctx is cancelled, Shutdown is
// called or stdin is closed
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve serves MCP over the given streams. It may only be called once.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	defer close(s.doneCh)
	defer s.cancel()

	stdio := mcpserver.NewStdioServer(s.srv)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		s.logger.Info("MCP server stopped")
		return nil
	}
	s.logger.Error("server error", "error", err)
	return err
}

// Shutdown stops a running server without waiting for it
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// WaitForShutdown blocks until Serve has returned
func (s *Server) WaitForShutdown() {
	<-s.doneCh
}

// MCPServer returns the underlying MCP server
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.srv
}
