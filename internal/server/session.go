// Package server runs one session per WebSocket client, bridging its
// channel to the hub for the lifetime of the connection.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/echochamber/internal/hub"
	"github.com/Tyrowin/echochamber/internal/metrics"
)

// SessionState is a step of the session lifecycle. Transitions only move
// forward: Connecting, Active, Closing, Terminated.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosing
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CloseReason records why a session left the Active state.
type CloseReason int

const (
	ReasonPeerClosed CloseReason = iota
	ReasonReadError
	ReasonBinaryFrame
	ReasonShutdown
)

func (r CloseReason) String() string {
	switch r {
	case ReasonPeerClosed:
		return "peer_closed"
	case ReasonReadError:
		return "read_error"
	case ReasonBinaryFrame:
		return "binary_frame"
	case ReasonShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// SessionOptions tune a single session.
type SessionOptions struct {
	// Announce sends "You are <id>" to the new client and broadcasts
	// "<id> disconnected" when it leaves.
	Announce bool
	Limiter  *rateLimiter
	Logger   *slog.Logger
}

// Session bridges one client channel to the hub.
type Session struct {
	id       hub.ClientID
	ch       Channel
	hub      *hub.Hub
	announce bool
	limiter  *rateLimiter
	logger   *slog.Logger
	state    atomic.Int32
}

// NewSession prepares a session in the Connecting state.
func NewSession(id hub.ClientID, ch Channel, h *hub.Hub, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		id:       id,
		ch:       ch,
		hub:      h,
		announce: opts.Announce,
		limiter:  opts.Limiter,
		logger:   logger.With("client_id", id, "remote_addr", ch.RemoteAddr()),
	}
}

// ID returns the client identifier.
func (s *Session) ID() hub.ClientID {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Run registers the session, relays inbound text to the hub until the
// channel ends, then unregisters. Cancelling ctx closes the channel with
// "going away" and ends the session.
func (s *Session) Run(ctx context.Context) CloseReason {
	// The greeting is queued before registration so it precedes any broadcast.
	if s.announce {
		if err := s.ch.Outbound().Send("You are " + string(s.id)); err != nil {
			s.logger.Warn("Failed to queue greeting", "error", err)
		}
	}

	if _, err := s.hub.Register(s.id, s.ch.Outbound()); err != nil {
		s.logger.Warn("Registration rejected", "error", err)
		s.setState(StateClosing)
		if closeErr := s.ch.CloseWithCode(websocket.CloseGoingAway, "server shutting down"); closeErr != nil {
			s.logger.Debug("Error closing rejected channel", "error", closeErr)
		}
		s.setState(StateTerminated)
		metrics.SessionsClosed.WithLabelValues(ReasonShutdown.String()).Inc()
		return ReasonShutdown
	}

	s.setState(StateActive)
	s.logger.Info("Client admitted")

	stop := context.AfterFunc(ctx, func() {
		_ = s.ch.CloseWithCode(websocket.CloseGoingAway, "server shutting down")
	})
	defer stop()

	reason := s.receiveLoop(ctx)
	s.terminate(reason)
	return reason
}

func (s *Session) receiveLoop(ctx context.Context) CloseReason {
	for {
		frame, err := s.ch.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ReasonShutdown
			}
			return s.handleReadError(err)
		}

		if frame.Type != FrameText {
			s.logger.Warn("Client sent non-text frame; closing", "frame_type", frame.Type.String(), "error", ErrBinaryFrame)
			if err := s.ch.CloseWithCode(websocket.CloseUnsupportedData, binaryFrameReason); err != nil {
				s.logger.Debug("Error closing channel", "error", err)
			}
			return ReasonBinaryFrame
		}

		if !s.limiter.allow() {
			metrics.RateLimited.Inc()
			s.logger.Warn("Rate limit exceeded; discarding message")
			continue
		}

		s.hub.Broadcast(string(frame.Data))
	}
}

// handleReadError logs the read failure and classifies it.
func (s *Session) handleReadError(err error) CloseReason {
	if errors.Is(err, websocket.ErrReadLimit) {
		s.logger.Warn("Message exceeded maximum size", "error", err)
		return ReasonReadError
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure) {
		s.logger.Info("Client disconnected", "error", err)
		return ReasonPeerClosed
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isExpectedCloseError(err) {
		s.logger.Info("Client connection closed", "error", err)
		return ReasonPeerClosed
	}

	s.logger.Warn("WebSocket read error", "error", err)
	return ReasonReadError
}

// terminate performs the Closing step exactly once.
func (s *Session) terminate(reason CloseReason) {
	s.setState(StateClosing)

	s.hub.Unregister(s.id)
	if err := s.ch.CloseWithCode(websocket.CloseNormalClosure, ""); err != nil {
		s.logger.Debug("Error closing channel", "error", err)
	}

	metrics.SessionsClosed.WithLabelValues(reason.String()).Inc()

	// A rejected binary frame produces no broadcast at all.
	if s.announce && reason != ReasonShutdown && reason != ReasonBinaryFrame {
		s.hub.Broadcast(string(s.id) + " disconnected")
	}

	s.setState(StateTerminated)
	s.logger.Info("Session terminated", "reason", reason.String())
}
