package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/tilde-sec/threatsift/internal/config"
)

// Server manages the MCP server lifecycle over stdio.
type Server struct {
	state   *State
	watcher *RegistryWatcher
	mcp     *server.MCPServer
}

// NewServer builds the shared state, registers every tool and starts
// watching the registry file.
func NewServer(cfg *config.Config) (*Server, error) {
	state, err := NewState(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize service state: %w", err)
	}

	mcpServer := server.NewMCPServer(
		"threatsift",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	RegisterTools(mcpServer, state)

	watcher, err := NewRegistryWatcher(state)
	if err != nil {
		state.Close()
		return nil, fmt.Errorf("failed to create registry watcher: %w", err)
	}

	return &Server{state: state, watcher: watcher, mcp: mcpServer}, nil
}

// Serve starts the server on stdio and blocks until a shutdown signal
// or a transport error.
func (s *Server) Serve(ctx context.Context) error {
	s.watcher.Start(ctx)
	defer s.watcher.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving MCP on stdio")
		if err := server.ServeStdio(s.mcp); err != nil {
			errCh <- fmt.Errorf("mcp server error: %w", err)
		}
	}()

	select {
	case <-sigCh:
		slog.Info("shutdown signal received, stopping")
		cancel()
		return nil
	case err := <-errCh:
		cancel()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the watcher and the store handle.
func (s *Server) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	return s.state.Close()
}
