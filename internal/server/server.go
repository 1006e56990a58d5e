// Package server assembles the relay: registry, engine, sweeper, hub and the
// HTTP surface, and runs them until the context ends.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Tyrowin/vanishchat/internal/chat"
	"github.com/Tyrowin/vanishchat/internal/relay"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// Server owns one instance of every relay component. Nothing is global, so
// tests can build as many isolated servers as they need.
type Server struct {
	cfg      Config
	clock    clockwork.Clock
	log      *slog.Logger
	registry *chat.Registry
	engine   *relay.Engine
	sweeper  *chat.Sweeper
	hub      *Hub
	upgrader websocket.Upgrader
}

// New wires a Server from cfg. The hub and sweeper only start with Run or
// StartBackground.
func New(cfg Config, log *slog.Logger, clock clockwork.Clock) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cfg = cfg.Sanitize()

	registry := chat.NewRegistry(clock)
	hub := NewHub(log.With("component", "hub"))
	origins := newOriginPolicy(cfg.AllowedOrigins, log)

	return &Server{
		cfg:      cfg,
		clock:    clock,
		log:      log,
		registry: registry,
		hub:      hub,
		engine:   relay.NewEngine(registry, hub, clock, log.With("component", "relay"), cfg.DeleteGrace),
		sweeper:  chat.NewSweeper(registry, clock, log.With("component", "sweeper"), cfg.SweepInterval, cfg.IdleThreshold),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
}

// Registry exposes the chat registry, mainly for health reporting and tests.
func (s *Server) Registry() *chat.Registry { return s.registry }

// Hub exposes the connection hub.
func (s *Server) Hub() *Hub { return s.hub }

// StartBackground launches the hub loop and the inactivity sweeper. The
// sweeper stops with ctx; the hub stops with Hub().Shutdown.
func (s *Server) StartBackground(ctx context.Context) {
	go s.hub.Run()
	go s.sweeper.Run(ctx)
	s.log.Info("Hub started and ready to manage WebSocket connections")
}

// Run serves HTTP on the configured port until ctx is cancelled or the
// listener fails, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.StartBackground(ctx)

	httpServer := CreateServer(s.cfg.Addr(), s.Routes())
	errCh := make(chan error, 1)
	go func() {
		errCh <- StartServer(httpServer, s.log)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownErr := ShutdownServer(httpServer, s.cfg.ShutdownTimeout, s.log)
	hubErr := s.hub.Shutdown(s.cfg.ShutdownTimeout)

	return errors.Join(serveErr, shutdownErr, hubErr)
}

func (s *Server) clientConfig() ClientConfig {
	return ClientConfig{
		MaxMessageSize: s.cfg.MaxMessageSize,
		RateLimit:      s.cfg.RateLimit,
		Clock:          s.clock,
	}
}
