package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"loanconnect/internal/auth"
	"loanconnect/internal/backend"
	"loanconnect/internal/handler"
	"loanconnect/internal/listing"
	"loanconnect/internal/storage"
	"loanconnect/internal/store"
	"loanconnect/internal/wizard"
)

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	storage    storage.Storage
	loans      *store.LoanStore
	smes       *store.SMEStore
}

// Config holds server configuration.
type Config struct {
	Port       int
	Storage    storage.Storage
	Loans      *store.LoanStore
	SMEs       *store.SMEStore
	Backend    *backend.Client
	Wizard     *wizard.Wizard
	Protected  []string
	SignInPath string
	Logger     *zap.Logger
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		logger:  cfg.Logger,
		storage: cfg.Storage,
		loans:   cfg.Loans,
		smes:    cfg.SMEs,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.routes(cfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes(cfg Config) http.Handler {
	// Create services
	lister := listing.NewService(cfg.Backend, cfg.Logger.Named("listing"))
	gate := auth.NewGate(cfg.Backend, cfg.Protected, cfg.SignInPath, cfg.Logger.Named("auth"))

	// Create handlers
	loanHandler := handler.NewLoanHandler(cfg.Loans)
	smeHandler := handler.NewSMEHandler(cfg.SMEs, cfg.Backend, cfg.Logger)
	wizardHandler := handler.NewWizardHandler(cfg.Wizard, cfg.Logger.Named("wizard"))
	applicationHandler := handler.NewApplicationHandler(lister, cfg.Logger)
	sessionHandler := handler.NewSessionHandler(cfg.Backend, cfg.Logger)

	// Setup chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.zapLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(gate.Middleware)

	// Health check endpoints
	r.Get("/health", s.healthCheck)
	r.Get("/ready", s.readyCheck)

	// Session
	r.Get("/auth/me", sessionHandler.Me)
	r.Post("/auth/logout", sessionHandler.Logout)

	// Dashboard
	r.Route("/dashboard", func(r chi.Router) {
		r.Use(s.waitHydrated)
		r.Route("/loans", loanHandler.Routes)
		r.Route("/apply-loan", wizardHandler.Routes)
		r.Get("/applications", applicationHandler.List)
		r.Route("/smes", smeHandler.Routes)
	})

	// Registration
	r.With(s.waitHydrated).Post("/register/sme", smeHandler.Create)

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// healthCheck returns basic health status.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readyCheck returns readiness status (stores hydrated, storage reachable).
func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Check hydration
	if !s.loans.Hydrated() || !s.smes.Hydrated() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready","reason":"stores not hydrated"}`))
		return
	}

	// Check storage
	if err := s.storage.Ping(ctx); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready","reason":"storage unavailable"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

// waitHydrated holds dashboard requests until both stores have loaded their
// snapshots, so nothing renders or persists defaults over the saved state.
func (s *Server) waitHydrated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, ready := range []<-chan struct{}{s.loans.Ready(), s.smes.Ready()} {
			select {
			case <-ready:
			case <-r.Context().Done():
				handler.Error(w, http.StatusServiceUnavailable, "NOT_READY", "client state is still loading")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// zapLogger is a middleware that logs requests using zap.
func (s *Server) zapLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
