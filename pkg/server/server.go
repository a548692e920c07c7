package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/dyscypliner/dyscypliner-go/pkg/hub"
	"github.com/dyscypliner/dyscypliner-go/pkg/log"
	"github.com/dyscypliner/dyscypliner-go/pkg/status"
	"github.com/dyscypliner/dyscypliner-go/pkg/wire"
)

const (
	// DefaultPingInterval is how often each observer session is pinged.
	DefaultPingInterval = 5 * time.Second

	// DefaultPingTimeout is how long an unanswered ping is tolerated.
	DefaultPingTimeout = 10 * time.Second
)

// Config configures the HTTP transport.
type Config struct {
	// Address to listen on (e.g., ":8080" or "127.0.0.1:8080").
	Address string

	// Login and Password gate the observer WebSocket endpoint.
	Login    string
	Password string

	// PingInterval is the WebSocket keepalive period (default: 5s).
	PingInterval time.Duration

	// PingTimeout closes sessions unresponsive past it (default: 10s).
	PingTimeout time.Duration

	// Logger for transport event logging (optional).
	Logger log.Logger
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Login == "" || c.Password == "" {
		return errors.New("observer credentials are required")
	}
	if c.PingTimeout <= c.PingInterval {
		return fmt.Errorf("ping timeout (%v) must exceed ping interval (%v)",
			c.PingTimeout, c.PingInterval)
	}
	return nil
}

// Server serves the observer WebSocket endpoint and the device report
// endpoint on top of a running hub.
type Server struct {
	config Config
	hub    *hub.Hub
	logger log.Logger

	httpServer *http.Server
	listener   net.Listener

	// Active observer sessions
	sessions   map[*session]struct{}
	sessionsMu sync.Mutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a server bound to h. Zero config fields fall back to defaults.
func New(config Config, h *hub.Hub) (*Server, error) {
	if h == nil {
		return nil, errors.New("hub is required")
	}
	if config.Address == "" {
		config.Address = ":8080"
	}
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PingTimeout == 0 {
		config.PingTimeout = DefaultPingTimeout
	}
	if config.Logger == nil {
		config.Logger = &log.NoopLogger{}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Server{
		config:   config,
		hub:      h,
		logger:   config.Logger,
		sessions: make(map[*session]struct{}),
	}, nil
}

// Start begins listening and serving. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return errors.New("server already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/{login}/{password}", s.handleObserver)
	mux.HandleFunc("GET /device/alive/{key}/{status}", s.handleDeviceAlive)

	s.httpServer = &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return s.ctx },
	}

	s.running.Store(true)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logError(err, "http serve")
		}
	}()

	return nil
}

// Stop shuts the server down and closes all observer sessions.
func (s *Server) Stop() error {
	if !s.running.Load() {
		return nil
	}

	s.running.Store(false)
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)

	s.sessionsMu.Lock()
	for sess := range s.sessions {
		sess.close()
	}
	s.sessionsMu.Unlock()

	s.wg.Wait()
	return err
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// SessionCount returns the number of active observer sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

// handleObserver authenticates, upgrades, and runs one observer session.
// The handler blocks for the lifetime of the connection.
func (s *Server) handleObserver(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r.PathValue("login"), r.PathValue("password")) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logError(err, "websocket accept")
		return
	}

	sess := newSession(s.ctx, conn, r.RemoteAddr)

	// Connect delivers INIT through the session's queue before any broadcast
	// can be interleaved; the pumps start afterwards and drain it.
	token, err := s.hub.Connect(sess)
	if err != nil {
		sess.close()
		s.logError(err, "hub connect")
		return
	}

	s.sessionsMu.Lock()
	s.sessions[sess] = struct{}{}
	s.sessionsMu.Unlock()

	s.logStateChange(sess, "", "CONNECTED")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		sess.writePump()
	}()
	go func() {
		defer s.wg.Done()
		sess.keepaliveLoop(s.config.PingInterval, s.config.PingTimeout)
	}()

	s.readLoop(sess)

	s.hub.Disconnect(token)
	sess.close()

	s.sessionsMu.Lock()
	delete(s.sessions, sess)
	s.sessionsMu.Unlock()

	s.logStateChange(sess, "CONNECTED", "DISCONNECTED")
}

// readLoop consumes inbound observer messages until the connection drops.
// Only ADDDEV is meaningful; anything else is logged and ignored.
func (s *Server) readLoop(sess *session) {
	for {
		_, data, err := sess.conn.Read(sess.ctx)
		if err != nil {
			return
		}

		cmd, err := wire.ParseCommand(string(data))
		if err != nil {
			s.logger.Log(log.Event{
				Timestamp:    time.Now(),
				ConnectionID: sess.connID,
				Direction:    log.DirectionIn,
				Category:     log.CategoryCommand,
				RemoteAddr:   sess.remoteAddr,
				Command:      &log.CommandEvent{Verb: "UNKNOWN", Argument: string(data)},
			})
			continue
		}

		if _, err := s.hub.AddDevice(cmd.Name); err != nil {
			s.logError(err, "adding device")
			return
		}
	}
}

// handleDeviceAlive accepts one liveness report. The status token is
// validated here; the hub never sees OFFLINE or unknown tokens.
func (s *Server) handleDeviceAlive(w http.ResponseWriter, r *http.Request) {
	st, err := status.ParseReport(r.PathValue("status"))
	if err != nil {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	// Unknown keys are deliberately indistinguishable from known ones.
	s.hub.DeviceAlive(r.PathValue("key"), st)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) authorized(login, password string) bool {
	loginOK := subtle.ConstantTimeCompare([]byte(login), []byte(s.config.Login)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.config.Password)) == 1
	return loginOK && passwordOK
}

func (s *Server) logStateChange(sess *session, oldState, newState string) {
	s.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: sess.connID,
		Category:     log.CategoryState,
		RemoteAddr:   sess.remoteAddr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

func (s *Server) logError(err error, context string) {
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Message: err.Error(), Context: context},
	})
}
