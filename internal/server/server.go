package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thruflo/goalboard/internal/auth"
	"github.com/thruflo/goalboard/internal/config"
	"github.com/thruflo/goalboard/internal/logging"
	"github.com/thruflo/goalboard/internal/loop"
	"github.com/thruflo/goalboard/internal/store"
	"github.com/thruflo/goalboard/internal/stream"
	"github.com/thruflo/goalboard/web"
)

// TokenCookie carries the session token for browser clients.
const TokenCookie = "goalboard_token"

const (
	defaultLongPollTimeout = 30 * time.Second
	defaultSSEReconnect    = 60 * time.Second
	shutdownTimeout        = 5 * time.Second
	sweepInterval          = time.Minute
)

// Controller is the part of loop.Controller the server drives.
type Controller interface {
	Start(ctx context.Context, goal string) (string, error)
	Stop() bool
	Snapshot() loop.Snapshot
}

// History looks up finished runs.
type History interface {
	List(ctx context.Context, limit int) ([]store.Run, error)
	Get(ctx context.Context, id string) (store.Run, error)
}

// Config holds server options. Controller and Hub are required.
type Config struct {
	Port         int
	PasswordHash string // empty disables authentication

	Controller Controller
	Hub        *stream.Hub
	History    History // optional
	Logger     *logging.Logger

	RateLimit       RateLimitConfig
	LongPollTimeout time.Duration
	SSEReconnect    time.Duration
	// StaticDir overrides the embedded scripts and styles when it exists.
	StaticDir string
}

// Server is the HTTP front end for the dashboard.
type Server struct {
	port         int
	passwordHash string

	controller Controller
	hub        *stream.Hub
	history    History
	log        *logging.Logger

	templates *template.Template
	static    fs.FS
	tokens    *auth.Tokens
	limiter   *loginLimiter
	upgrader  websocket.Upgrader

	longPollTimeout time.Duration
	sseReconnect    time.Duration

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	runCtx   context.Context
	started  bool
}

// NewServer creates a Server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if cfg.Hub == nil {
		return nil, errors.New("event hub is required")
	}
	if cfg.PasswordHash != "" {
		if err := auth.ValidateHash(cfg.PasswordHash); err != nil {
			return nil, fmt.Errorf("invalid password hash: %w", err)
		}
	}

	templates, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.With("component", "server")
	}

	s := &Server{
		port:            cfg.Port,
		passwordHash:    cfg.PasswordHash,
		controller:      cfg.Controller,
		hub:             cfg.Hub,
		history:         cfg.History,
		log:             log,
		templates:       templates,
		static:          web.GetStatic(cfg.StaticDir),
		tokens:          auth.NewTokens(auth.DefaultTokenTTL),
		limiter:         newLoginLimiter(cfg.RateLimit, log),
		longPollTimeout: cfg.LongPollTimeout,
		sseReconnect:    cfg.SSEReconnect,
		runCtx:          context.Background(),
	}
	if s.longPollTimeout <= 0 {
		s.longPollTimeout = defaultLongPollTimeout
	}
	if s.sseReconnect <= 0 {
		s.sseReconnect = defaultSSEReconnect
	}
	s.upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096}
	return s, nil
}

// NewServerFromConfig creates a Server from the config file settings.
func NewServerFromConfig(cfg *config.ServerConfig, controller Controller, hub *stream.Hub, history History) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config is required")
	}
	return NewServer(&Config{
		Port:         cfg.Port,
		PasswordHash: cfg.PasswordHash,
		Controller:   controller,
		Hub:          hub,
		History:      history,
	})
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// AuthEnabled reports whether a password is required.
func (s *Server) AuthEnabled() bool {
	return s.passwordHash != ""
}

// Start listens and serves until ctx is cancelled or Stop is called. Runs
// started over HTTP live as long as ctx.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	// Stop is a no-op until started is set, so a cancelled ctx must be
	// caught here.
	if ctx.Err() != nil {
		s.mu.Unlock()
		return nil
	}

	addr := fmt.Sprintf(":%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.runCtx = ctx
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// Streaming responses end with ctx.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.started = true
	s.mu.Unlock()

	go s.tokens.RunPruner(ctx, sweepInterval)
	go s.sweepLimiter(ctx)

	s.log.Info("dashboard listening", "addr", listener.Addr().String(), "auth", s.AuthEnabled())

	err = s.server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.started = false
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// ListenAddr returns the bound address, or "" before Start.
func (s *Server) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runCtx
}

func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.limiter.sweep()
		}
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(s.static)))
	mux.HandleFunc("POST /auth", s.handleAuth)
	mux.HandleFunc("POST /logout", s.handleLogout)

	// Protected
	mux.HandleFunc("GET /partials/dashboard", s.withAuth(s.handleDashboardPartial))
	mux.HandleFunc("POST /api/runs", s.withAuth(s.handleStartRun))
	mux.HandleFunc("POST /api/runs/stop", s.withAuth(s.handleStopRun))
	mux.HandleFunc("GET /api/state", s.withAuth(s.handleState))
	mux.HandleFunc("GET /api/events", s.withAuth(s.handleEvents))
	mux.HandleFunc("GET /ws", s.withAuth(s.handleWebSocket))
	mux.HandleFunc("GET /api/runs/history", s.withAuth(s.handleHistoryList))
	mux.HandleFunc("GET /api/runs/history/{id}", s.withAuth(s.handleHistoryGet))
	mux.HandleFunc("GET /api/runs/history/{id}/report", s.withAuth(s.handleHistoryReport))

	return mux
}

// requestToken returns the bearer token or, failing that, the cookie.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		const prefix = "Bearer "
		if strings.HasPrefix(h, prefix) {
			return strings.TrimPrefix(h, prefix)
		}
		return ""
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) authorized(r *http.Request) bool {
	return !s.AuthEnabled() || s.tokens.Valid(requestToken(r))
}

// withAuth rejects requests without a valid token when a password is set.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.AuthEnabled() {
			handler(w, r)
			return
		}
		token := requestToken(r)
		if token == "" {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}
		if !s.tokens.Valid(token) {
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}
}

// handleAuth exchanges the dashboard password for a token.
func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	if !s.AuthEnabled() {
		http.Error(w, "authentication is not enabled", http.StatusNotFound)
		return
	}

	ip := clientIP(r)
	if d := s.limiter.allow(ip); !d.Allowed {
		retry := int((d.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
		s.log.Warn("login rejected", "ip", ip, "reason", d.Reason)
		http.Error(w, d.Reason, http.StatusTooManyRequests)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := decodeRequest(r, &req, func() { req.Password = r.FormValue("password") }); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		http.Error(w, "password required", http.StatusBadRequest)
		return
	}

	ok, err := auth.VerifyPassword(req.Password, s.passwordHash)
	if err != nil {
		s.log.Error("password verification failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		s.limiter.failed(ip)
		if wantsHTML(r) {
			s.renderStatus(w, http.StatusUnauthorized, "login", map[string]string{"Error": "Invalid password."})
			return
		}
		http.Error(w, "invalid password", http.StatusUnauthorized)
		return
	}
	s.limiter.succeeded(ip)

	token, expiry, err := s.tokens.Issue()
	if err != nil {
		s.log.Error("token issue failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expiry,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "expires_at": expiry})
}

// handleLogout revokes the caller's token and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := requestToken(r); token != "" {
		s.tokens.Revoke(token)
	}
	http.SetCookie(w, &http.Cookie{Name: TokenCookie, Value: "", Path: "/", MaxAge: -1})
	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
