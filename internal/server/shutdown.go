package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"sales-insights/internal/config"
)

const hookTimeout = 10 * time.Second

// ShutdownHook releases a resource once the server stops accepting requests.
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   ShutdownHook
}

type GracefulServer struct {
	server *http.Server
	cfg    config.ServerConfig
	logger *slog.Logger

	mu    sync.Mutex
	hooks []namedHook
}

func NewGracefulServer(server *http.Server, cfg config.ServerConfig, logger *slog.Logger) *GracefulServer {
	return &GracefulServer{server: server, cfg: cfg, logger: logger}
}

// RegisterShutdownHook adds fn under name. Hooks run concurrently with the HTTP drain.
func (gs *GracefulServer) RegisterShutdownHook(name string, fn ShutdownHook) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, namedHook{name: name, fn: fn})
}

// ListenAndServe serves until SIGINT or SIGTERM, then shuts down gracefully.
func (gs *GracefulServer) ListenAndServe() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", gs.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", gs.server.Addr, err)
	}
	return gs.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (gs *GracefulServer) Serve(ctx context.Context, ln net.Listener) error {
	served := make(chan error, 1)
	go func() {
		gs.logger.Info("listening",
			"addr", ln.Addr().String(),
			"read_timeout", gs.cfg.ReadTimeout,
			"write_timeout", gs.cfg.WriteTimeout,
		)
		served <- gs.server.Serve(ln)
	}()

	select {
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	gs.logger.Info("shutdown signal received",
		"cause", context.Cause(ctx),
		"timeout", gs.cfg.ShutdownTimeout,
	)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gs.cfg.ShutdownTimeout)
	defer cancel()
	return gs.shutdown(shutdownCtx)
}

func (gs *GracefulServer) shutdown(ctx context.Context) error {
	gs.mu.Lock()
	hooks := append([]namedHook(nil), gs.hooks...)
	gs.mu.Unlock()

	// Hooks do not cancel each other on failure.
	var g errgroup.Group
	for _, h := range hooks {
		g.Go(func() error { return gs.runHook(ctx, h) })
	}
	g.Go(func() error {
		if err := gs.server.Shutdown(ctx); err != nil {
			gs.logger.Error("http drain failed", "error", err)
			return fmt.Errorf("http shutdown: %w", err)
		}
		gs.logger.Info("http server drained")
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		gs.logger.Info("graceful shutdown completed", "hooks", len(hooks))
		return err
	case <-ctx.Done():
		gs.logger.Warn("shutdown timeout exceeded, forcing exit")
		return ctx.Err()
	}
}

func (gs *GracefulServer) runHook(ctx context.Context, h namedHook) error {
	ctx, cancel := context.WithTimeout(ctx, hookTimeout)
	defer cancel()

	start := time.Now()
	if err := h.fn(ctx); err != nil {
		gs.logger.Error("shutdown hook failed", "hook", h.name, "error", err)
		return fmt.Errorf("shutdown hook %s: %w", h.name, err)
	}
	gs.logger.Debug("shutdown hook completed", "hook", h.name, "duration", time.Since(start))
	return nil
}
