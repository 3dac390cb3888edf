package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	applog "prestiti/internal/log"
)

type Server struct {
	http.Server
	api         PortfolioAPI
	rateLimiter *rateLimiter
	metrics     *securityMetrics
	logger      *applog.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server bound to addr.
func NewServer(addr string, api PortfolioAPI) *Server {
	mux := http.NewServeMux()

	logger := applog.FromContext(context.Background()).WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		api:         api,
		rateLimiter: newRateLimiter(),
		metrics:     &securityMetrics{},
		logger:      logger,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/loans", s.wrap(s.handleCreateLoan))
	mux.HandleFunc("GET /api/loans", s.wrap(s.handleListLoans))
	mux.HandleFunc("GET /api/loans/{id}", s.wrap(s.handleGetLoan))
	mux.HandleFunc("DELETE /api/loans/{id}", s.wrap(s.handleDeleteLoan))
	mux.HandleFunc("GET /api/loans/{id}/schedule", s.wrap(s.handleLoanSchedule))
	mux.HandleFunc("POST /api/loans/{id}/payments", s.wrap(s.handleCreatePayment))
	mux.HandleFunc("GET /api/loans/{id}/payments", s.wrap(s.handleListPayments))
	mux.HandleFunc("GET /api/loans/{id}/matches", s.wrap(s.handleLoanMatches))

	mux.HandleFunc("POST /api/cards", s.wrap(s.handleCreateAccount))
	mux.HandleFunc("GET /api/cards", s.wrap(s.handleListAccounts))
	mux.HandleFunc("GET /api/cards/{id}", s.wrap(s.handleGetAccount))
	mux.HandleFunc("DELETE /api/cards/{id}", s.wrap(s.handleDeleteAccount))
	mux.HandleFunc("POST /api/cards/{id}/transactions", s.wrap(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/cards/{id}/transactions", s.wrap(s.handleListTransactions))
	mux.HandleFunc("GET /api/cards/{id}/cycles", s.wrap(s.handleAccountCycles))
	mux.HandleFunc("GET /api/cards/{id}/grace", s.wrap(s.handleAccountGrace))

	mux.HandleFunc("GET /api/summary", s.wrap(s.handleSummary))
	mux.HandleFunc("GET /api/summary/latest", s.wrap(s.handleLatestSnapshot))

	return s
}

// wrap adds rate limiting, security headers, request IDs and request
// logging around a handler.
func (s *Server) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := generateRequestID()
		reqLogger := s.logger.With(applog.FieldRequestID, requestID)
		structured := applog.NewStructuredLogger(reqLogger)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = context.WithValue(ctx, applog.LoggerContextKey, reqLogger)
		r = r.WithContext(ctx)

		structured.LogHTTPStart(ctx, r, clientIP)

		if detectSuspiciousRequest(r, s.metrics) {
			reqLogger.WarnContext(ctx, "Suspicious request",
				applog.FieldClientIP, clientIP,
				"url", r.URL.String())
		}

		// Writes are rate limited per client; reads are cheap enough not
		// to bother.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP, s.metrics) {
			reqLogger.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorEnvelope{
				Error: errorBody{Message: "rate limit exceeded, try again later"},
			})
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		structured.LogHTTPEnd(ctx, r, rw.statusCode, duration.Milliseconds(), clientIP)
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
