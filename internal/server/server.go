package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/Tyrowin/echochamber/internal/config"
	"github.com/Tyrowin/echochamber/internal/hub"
)

// Server accepts WebSocket clients and runs one Session per connection
// against a shared Hub.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	ids      hub.IDGenerator
	upgrader websocket.Upgrader
	clock    clockwork.Clock
	logger   *slog.Logger

	httpServer *http.Server

	// ctx is the parent of every session; cancelling it ends them all.
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	stopping bool
	sessions sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithClock sets the clock driving keepalive pings.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) { s.clock = clock }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithIDGenerator overrides the generator selected by cfg.IDStrategy.
func WithIDGenerator(ids hub.IDGenerator) Option {
	return func(s *Server) { s.ids = ids }
}

// New builds a Server for cfg. The HTTP listener is not opened until Start.
func New(cfg *config.Config, h *hub.Hub, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		hub:    h,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.ids == nil {
		ids, err := hub.NewIDGenerator(cfg.IDStrategy)
		if err != nil {
			return nil, fmt.Errorf("create server: %w", err)
		}
		s.ids = ids
	}

	origins := newOriginPolicy(cfg.Origins(), s.logger)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.checkOrigin,
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = CreateServer(cfg.Addr, s.Routes())
	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// startSession runs a session in the background, tracked for shutdown.
// Connections accepted after shutdown began are closed immediately.
func (s *Server) startSession(session *Session) {
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		_ = session.ch.CloseWithCode(websocket.CloseGoingAway, "server shutting down")
		return
	}
	s.sessions.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.sessions.Done()
		session.Run(s.ctx)
	}()
}

// waitSessions blocks until every session has terminated or ctx is done.
func (s *Server) waitSessions(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
