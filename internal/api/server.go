package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"grimm.is/ruledit/internal/brand"
	"grimm.is/ruledit/internal/clock"
	"grimm.is/ruledit/internal/config"
	"grimm.is/ruledit/internal/i18n"
	"grimm.is/ruledit/internal/logging"
	"grimm.is/ruledit/internal/metrics"
	"grimm.is/ruledit/internal/ratelimit"
	"grimm.is/ruledit/internal/versions"
)

// ServerConfig holds HTTP server timeouts and limits.
type ServerConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	ShutdownTimeout   time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadHeaderTimeout: 10 * time.Second, // Slowloris prevention
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16,
		ShutdownTimeout:   10 * time.Second,
	}
}

// Server handles API requests.
type Server struct {
	Config   *config.Config
	store    versions.Store
	logger   *logging.Logger
	metrics  *metrics.Registry
	clock    clock.Clock
	sessions *sessionRegistry
	limiter  *ratelimit.Limiter
	ws       *WSManager

	mux *http.ServeMux
}

// ServerOptions holds dependencies for the API server.
type ServerOptions struct {
	Config  *config.Config
	Store   versions.Store
	Logger  *logging.Logger
	Metrics *metrics.Registry // Optional: defaults to the global registry
	Clock   clock.Clock       // Optional: defaults to the system clock
}

// NewServer creates a new API server with the provided options.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Store == nil {
		return nil, errors.New("api: version store is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.WithComponent("api")
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.Get()
	}

	s := &Server{
		Config:   cfg,
		store:    opts.Store,
		logger:   logger,
		metrics:  reg,
		clock:    clock.Or(opts.Clock),
		ws:       NewWSManager(logger),
		sessions: newSessionRegistry(cfg.SessionTTL, opts.Clock),
		limiter:  ratelimit.NewLimiter(cfg.SessionsPerMinute, time.Minute, opts.Clock),
	}
	s.sessions.onChange = reg.SetActiveSessions
	s.sessions.onExpire = func(id string) {
		s.logger.Info("session expired", "session", id)
		s.ws.CloseSession(id)
	}

	s.initRoutes()
	return s, nil
}

// initRoutes initializes the HTTP router
func (s *Server) initRoutes() {
	mux := http.NewServeMux()
	s.mux = mux

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Editing sessions
	mux.HandleFunc("POST /api/rulesets/upload", s.handleUpload)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/rules", s.handleAddRule)
	mux.HandleFunc("PUT /api/sessions/{id}/rules/{chain}/{index}", s.handleUpdateRule)
	mux.HandleFunc("DELETE /api/sessions/{id}/rules/{chain}/{index}", s.handleDeleteRule)
	mux.HandleFunc("POST /api/sessions/{id}/edit", s.handleBeginEdit)
	mux.HandleFunc("DELETE /api/sessions/{id}/edit", s.handleCancelEdit)
	mux.HandleFunc("POST /api/sessions/{id}/commit", s.handleCommit)
	mux.HandleFunc("GET /api/sessions/{id}/render", s.handleRender)
	mux.HandleFunc("GET /api/sessions/{id}/download", s.handleDownload)
	mux.HandleFunc("POST /api/sessions/{id}/save", s.handleSaveSession)
	mux.HandleFunc("GET /api/sessions/{id}/watch", s.handleWatch)

	// Stored versions
	mux.HandleFunc("POST /api/versions", s.handleSaveVersion)
	mux.HandleFunc("GET /api/versions", s.handleListVersions)
	mux.HandleFunc("GET /api/versions/diff", s.handleDiffVersions)
	mux.HandleFunc("GET /api/versions/{id}", s.handleGetVersion)
	mux.HandleFunc("POST /api/versions/{id}/load", s.handleLoadVersion)
	mux.HandleFunc("GET /api/devices", s.handleDevices)
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	// Chain: i18n -> AccessLog -> Mux. The access logger must see the
	// request the mux annotates with its route pattern.
	return i18n.Middleware(AccessLogger(s.logger, s.metrics, s.mux))
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
// The session janitor runs for the lifetime of the call.
func (s *Server) Serve(ctx context.Context, addr string, sc *ServerConfig) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln, sc)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener, sc *ServerConfig) error {
	if sc == nil {
		sc = DefaultServerConfig()
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: sc.ReadHeaderTimeout,
		ReadTimeout:       sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       sc.IdleTimeout,
		MaxHeaderBytes:    sc.MaxHeaderBytes,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.sessions.janitor(ctx, janitorInterval(s.Config.SessionTTL))
	if s.limiter.Enabled() {
		go s.limiter.RunCleanup(ctx, time.Minute, 2*time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String(), "version", brand.Version)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// storeContext bounds a version store call by the configured request timeout.
func (s *Server) storeContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.Config.RequestTimeout)
}

// allowSession applies the per-client session creation limit. It writes a
// 429 and returns false when the client is over the limit.
func (s *Server) allowSession(w http.ResponseWriter, r *http.Request) bool {
	if s.limiter.Allow(clientIP(r)) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	WriteErrorCtx(w, r, http.StatusTooManyRequests, nil, i18n.MsgRateLimited)
	return false
}

// clientIP is the remote address without its port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  brand.Version,
		"sessions": s.sessions.len(),
	})
}
