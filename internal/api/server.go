package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/wtap-core/internal/auth"
	"github.com/nerrad567/wtap-core/internal/infrastructure/config"
	"github.com/nerrad567/wtap-core/internal/infrastructure/logging"
	"github.com/nerrad567/wtap-core/internal/pipeline"
	"github.com/nerrad567/wtap-core/internal/runner"
	"github.com/nerrad567/wtap-core/internal/wifi"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultReplyTimeout bounds how long POST /api waits for a deferred reply.
const defaultReplyTimeout = 30 * time.Second

// WiFiStatus reports the connectivity manager state.
type WiFiStatus interface {
	Snapshot() wifi.Snapshot
}

// HistorySource lists recent connect attempts.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]wifi.ConnectRecord, error)
}

// BrokerStatus reports the MQTT connection state.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Pipeline     *pipeline.Pipeline
	Runner       *runner.Runner // optional, for metrics
	WiFi         WiFiStatus     // optional, for metrics
	History      HistorySource  // optional
	MQTT         BrokerStatus   // optional
	Hub          *Hub           // if set, used instead of a server-owned hub
	Panel        http.Handler   // optional, serves the configuration page
	ReplyTimeout time.Duration
	Version      string
}

// Server is the HTTP API server for wtap-core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	pipeline     *pipeline.Pipeline
	runner       *runner.Runner
	wifi         WiFiStatus
	history      HistorySource
	mqtt         BrokerStatus
	admin        *auth.Admin
	replyTimeout time.Duration
	version      string
	startTime    time.Time
	server       *http.Server
	hub          *Hub
	externalHub  bool
	panel        http.Handler
	cancel       context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("command pipeline is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		pipeline:     deps.Pipeline,
		runner:       deps.Runner,
		wifi:         deps.WiFi,
		history:      deps.History,
		mqtt:         deps.MQTT,
		replyTimeout: deps.ReplyTimeout,
		version:      deps.Version,
		panel:        deps.Panel,
		startTime:    time.Now(),
	}
	if s.replyTimeout <= 0 {
		s.replyTimeout = defaultReplyTimeout
	}
	if deps.Security.AdminPasswordHash != "" {
		ttl := time.Duration(deps.Security.JWT.AccessTokenTTL) * time.Minute
		s.admin = auth.NewAdmin(deps.Security.AdminPasswordHash, deps.Security.JWT.Secret, ttl)
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub. It implements wifi.Notifier.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return srvCtx },
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr, "auth", s.secCfg.AuthEnabled)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
