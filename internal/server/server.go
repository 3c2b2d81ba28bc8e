// Package server provides the HTTP API for LinkedIn profile sync.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/profile-sync/internal/credentials"
	"github.com/jonathan/profile-sync/internal/db"
	"github.com/jonathan/profile-sync/internal/jobs"
	"github.com/jonathan/profile-sync/internal/scraper"
	"github.com/jonathan/profile-sync/internal/server/middleware"
	"github.com/jonathan/profile-sync/internal/server/ratelimit"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Runner runs scrapes. *jobs.Runner implements it.
type Runner interface {
	Scrape(ctx context.Context, req jobs.Request) (*jobs.Outcome, error)
	Resume(ctx context.Context, sessionKey, profileURL string, pollBudget time.Duration) (*jobs.Outcome, error)
	Release(sessionKey string)
	Submit(ctx context.Context, req jobs.Request) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*db.ProfileScrape, error)
	Latest(ctx context.Context, sessionKey string) (*db.ProfileScrape, error)
}

// CredentialStore manages stored LinkedIn credentials. *credentials.Resolver implements it.
type CredentialStore interface {
	Save(ctx context.Context, sessionKey string, creds scraper.Credentials) error
	Status(ctx context.Context, sessionKey string) (credentials.Status, error)
	Delete(ctx context.Context, sessionKey string) error
}

// Pinger reports database health. *db.DB implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Port int
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Runner      Runner
	Credentials CredentialStore
	JWT         *JWTService
	// RateLimiter defaults to ratelimit.LoadConfig().
	RateLimiter *ratelimit.Limiter
	// Database is optional; /health reports it when set.
	Database Pinger
	Logger   *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	runner      Runner
	credentials CredentialStore
	database    Pinger
	rateLimiter *ratelimit.Limiter
	validate    *validator.Validate
	log         *zap.Logger
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Runner == nil {
		return nil, errors.New("server requires a runner")
	}
	if deps.JWT == nil {
		return nil, errors.New("server requires a JWT service")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.RateLimiter == nil {
		deps.RateLimiter = ratelimit.NewLimiter(ratelimit.LoadConfig())
	}

	s := &Server{
		runner:      deps.Runner,
		credentials: deps.Credentials,
		database:    deps.Database,
		rateLimiter: deps.RateLimiter,
		validate:    newValidator(),
		log:         deps.Logger.Named("server"),
	}

	auth := middleware.AuthMiddleware(deps.JWT.AsTokenValidator())
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /linkedin/scrape", protected(s.handleScrape))
	mux.Handle("POST /linkedin/scrape/retry", protected(s.handleRetry))
	mux.Handle("DELETE /linkedin/session", protected(s.handleRelease))
	mux.Handle("POST /linkedin/sync", protected(s.handleSubmitSync))
	mux.Handle("GET /linkedin/sync/{id}", protected(s.handleGetSync))
	mux.Handle("GET /linkedin/profile", protected(s.handleGetProfile))
	mux.Handle("GET /linkedin/credentials", protected(s.handleGetCredentials))
	mux.Handle("PUT /linkedin/credentials", protected(s.handlePutCredentials))
	mux.Handle("DELETE /linkedin/credentials", protected(s.handleDeleteCredentials))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withRateLimit(s.withLogging(s.withCORS(mux))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // a scrape plus a resumed challenge poll
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.rateLimiter.Stop()
	s.log.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their per-endpoint limit
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging logs each request with its status and duration
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// clientID identifies the caller for rate limiting by remote IP.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	if info.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds()+0.5)))
	}
	s.log.Warn("rate limit exceeded",
		zap.String("client", clientID(r)), zap.String("path", r.URL.Path), zap.Int("limit", info.Limit))
	s.jsonResponse(w, http.StatusTooManyRequests, errorBody{
		ErrorCode: "RATE_LIMITED",
		Message:   "Rate limit exceeded. Please try again later.",
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	status := http.StatusOK
	if s.database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.database.Ping(ctx); err != nil {
			s.log.Warn("database ping failed", zap.Error(err))
			resp["status"] = "degraded"
			resp["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			resp["database"] = "ok"
		}
	}
	s.jsonResponse(w, status, resp)
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse maps err to a status code and error body
func (s *Server) errorResponse(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	s.jsonResponse(w, status, newErrorBody(err))
}

// normalizer is implemented by request types that clean their fields before validation.
type normalizer interface {
	normalize()
}

// decodeAndValidate reads a JSON body into dst, normalizes it and checks its validate tags.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	if n, ok := dst.(normalizer); ok {
		n.normalize()
	}
	if err := s.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &ErrValidation{Field: fe.Field(), Message: "failed on '" + fe.Tag() + "'"}
		}
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
