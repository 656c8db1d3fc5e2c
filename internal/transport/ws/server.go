// Package ws is the WebSocket gate: it accepts client connections, mints
// connection identities, authenticates session tokens, and feeds framed
// commands and events into the dispatch core.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/tessera-games/riftgate/internal/actor"
	"github.com/tessera-games/riftgate/internal/auth"
	apperrors "github.com/tessera-games/riftgate/internal/platform/errors"
	"github.com/tessera-games/riftgate/internal/transport"
)

const (
	defaultMaxFramesPerSecond = 40
	defaultMaxDecodeErrors    = 3
)

// Config defines the inputs for the gate transport boundary.
type Config struct {
	HTTPAddr           string        `env:"RIFTGATE_GATE_HTTP_ADDR" envDefault:":8080"`
	ReadHeaderTimeout  time.Duration `env:"RIFTGATE_GATE_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout    time.Duration `env:"RIFTGATE_GATE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxFramesPerSecond int           `env:"RIFTGATE_GATE_MAX_FRAMES_PER_SECOND" envDefault:"40"`
	MaxDecodeErrors    int           `env:"RIFTGATE_GATE_MAX_DECODE_ERRORS" envDefault:"3"`
}

// Dispatcher routes one command invocation; satisfied by the distributed
// command router.
type Dispatcher interface {
	Dispatch(ctx context.Context, a *actor.Actor, name string, rawArgs []any) (any, error)
}

// frame is the wire envelope for both directions.
type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type cmdPayload struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

type eventPayload struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

type authPayload struct {
	Token string `json:"token"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Usage   string `json:"usage,omitempty"`
}

// peer serializes outbound writes for one connection.
type peer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (p *peer) send(f frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(f)
}

// Server hosts the gate HTTP/WebSocket process. It implements
// transport.Transport for the net-event processor and the Notifier
// contract for the dispatch service.
type Server struct {
	cfg        Config
	actors     *actor.Registry
	dispatcher Dispatcher
	verifier   *auth.VerifierConfig
	logger     *log.Logger

	mu       sync.Mutex
	peers    map[string]*peer
	handlers map[string]transport.EventHandler

	httpServer *http.Server
}

// NewServer creates a gate. The verifier is optional; without one, auth
// frames are rejected and only public commands are reachable.
func NewServer(cfg Config, actors *actor.Registry, dispatcher Dispatcher, verifier *auth.VerifierConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.MaxFramesPerSecond <= 0 {
		cfg.MaxFramesPerSecond = defaultMaxFramesPerSecond
	}
	if cfg.MaxDecodeErrors <= 0 {
		cfg.MaxDecodeErrors = defaultMaxDecodeErrors
	}
	return &Server{
		cfg:        cfg,
		actors:     actors,
		dispatcher: dispatcher,
		verifier:   verifier,
		logger:     logger,
		peers:      make(map[string]*peer),
		handlers:   make(map[string]transport.EventHandler),
	}
}

// OnEvent implements transport.Transport. Subscriptions are installed
// during bootstrap, before ListenAndServe.
func (s *Server) OnEvent(name string, handler transport.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = handler
}

// Send implements transport.Transport.
func (s *Server) Send(_ context.Context, name string, target transport.Target, args ...any) error {
	payload, err := json.Marshal(eventPayload{Name: name, Args: args})
	if err != nil {
		return err
	}
	f := frame{Type: "event", Payload: payload}

	s.mu.Lock()
	var targets []*peer
	if target.All {
		for _, p := range s.peers {
			targets = append(targets, p)
		}
	} else {
		for _, id := range target.ConnectionIDs {
			if p, ok := s.peers[id]; ok {
				targets = append(targets, p)
			}
		}
	}
	s.mu.Unlock()

	var firstErr error
	for _, p := range targets {
		if err := p.send(f); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Notify implements the dispatch Notifier contract.
func (s *Server) Notify(ctx context.Context, connectionID, message string) error {
	return s.Send(ctx, "system.notice", transport.ToConnection(connectionID), message)
}

// Handler returns the HTTP routes for the gate.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	wsHandler := websocket.Handler(s.handleConn)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		wsHandler.ServeHTTP(w, r)
	})
	return mux
}

// ListenAndServe runs the gate until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleConn(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	connectionID := uuid.NewString()
	a := actor.New(connectionID)
	s.actors.Add(a)
	p := &peer{enc: json.NewEncoder(conn)}

	s.mu.Lock()
	s.peers[connectionID] = p
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.peers, connectionID)
		s.mu.Unlock()
		s.actors.Remove(connectionID)
	}()

	_ = p.send(frame{Type: "welcome", Payload: mustJSON(map[string]string{"connection_id": connectionID})})

	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	windowStart := time.Now()
	framesInWindow := 0
	ctx := context.Background()

	for {
		var f frame
		if err := decoder.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			if decodeErrors >= s.cfg.MaxDecodeErrors {
				s.logger.Printf("gate: dropping %s after %d decode errors", connectionID, decodeErrors)
				return
			}
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > s.cfg.MaxFramesPerSecond {
			s.logger.Printf("gate: dropping %s for exceeding frame rate", connectionID)
			return
		}

		s.handleFrame(ctx, a, p, f)
	}
}

func (s *Server) handleFrame(ctx context.Context, a *actor.Actor, p *peer, f frame) {
	switch f.Type {
	case "auth":
		s.handleAuth(a, p, f.Payload)

	case "cmd":
		var payload cmdPayload
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			s.sendError(p, apperrors.New(apperrors.CodeValidationFailure, "malformed command frame"))
			return
		}
		result, err := s.dispatcher.Dispatch(ctx, a, payload.Name, payload.Args)
		if err != nil {
			s.sendError(p, err)
			return
		}
		if result != nil {
			if encoded, err := json.Marshal(result); err == nil {
				_ = p.send(frame{Type: "cmd.result", Payload: encoded})
			}
		}

	case "event":
		var payload eventPayload
		if err := json.Unmarshal(f.Payload, &payload); err != nil {
			s.sendError(p, apperrors.New(apperrors.CodeValidationFailure, "malformed event frame"))
			return
		}
		s.mu.Lock()
		handler, ok := s.handlers[payload.Name]
		s.mu.Unlock()
		if !ok {
			s.logger.Printf("gate: unknown event %q from %s dropped", payload.Name, a.ConnectionID())
			return
		}
		handler(ctx, a.ConnectionID(), payload.Args)

	default:
		s.sendError(p, apperrors.New(apperrors.CodeValidationFailure, "unknown frame type"))
	}
}

func (s *Server) handleAuth(a *actor.Actor, p *peer, payload json.RawMessage) {
	if s.verifier == nil {
		s.sendError(p, apperrors.New(apperrors.CodeUnauthenticated, "authentication is not configured"))
		return
	}
	var body authPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		s.sendError(p, apperrors.New(apperrors.CodeValidationFailure, "malformed auth frame"))
		return
	}
	claims, err := auth.VerifySessionToken(body.Token, *s.verifier)
	if err != nil {
		s.logger.Printf("gate: auth failed for %s: %v", a.ConnectionID(), err)
		s.sendError(p, apperrors.New(apperrors.CodeUnauthenticated, "invalid session token"))
		return
	}
	a.Attach(claims.AccountID)
	_ = p.send(frame{Type: "auth.ok", Payload: mustJSON(map[string]string{"account_id": claims.AccountID})})
}

// sendError writes a structured error frame. Internal detail stays in the
// logs; the client sees the code, message, and usage hint only.
func (s *Server) sendError(p *peer, err error) {
	body := errorPayload{
		Code:    string(apperrors.CodeOf(err)),
		Message: "request failed",
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case apperrors.CodeValidationFailure, apperrors.CodeCommandNotFound,
			apperrors.CodeUnauthenticated, apperrors.CodeSecurityViolation:
			body.Message = appErr.Message
			body.Usage = appErr.Metadata["usage"]
		}
	}
	encoded, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return
	}
	_ = p.send(frame{Type: "error", Payload: encoded})
}

func mustJSON(v any) json.RawMessage {
	encoded, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return encoded
}
