// Package http serves the finwise JSON API on top of the data store and
// the assistant gateway.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finwise/internal/assistant"
	"finwise/internal/kv"
	"finwise/internal/log"
	"finwise/internal/middleware/ratelimit"
	"finwise/internal/middleware/security"
	"finwise/internal/middleware/trace"
	"finwise/internal/store"
)

// Assistant is the part of the gateway the API exposes.
type Assistant interface {
	Config() assistant.Config
	Configure(ctx context.Context, cfg assistant.Config) error
	Ask(ctx context.Context, question, customSystemPrompt string) string
	IsLoading() bool
}

var _ Assistant = (*assistant.Gateway)(nil)

type Options struct {
	Addr               string
	Store              store.DataStore
	Assistant          Assistant
	Storage            kv.Storage // checked by /readyz when it implements kv.Pinger
	Logger             *log.Logger
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	store     store.DataStore
	assistant Assistant
	storage   kv.Storage
	logger    *log.Logger
	limiter   *ratelimit.Limiter
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	s := &Server{
		store:     opts.Store,
		assistant: opts.Assistant,
		storage:   opts.Storage,
		logger:    logger.WithComponent(log.ComponentHTTP),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		now:       time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/summary", s.handleSummary)

	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("POST /api/goals", s.handleCreateGoal)
	mux.HandleFunc("PATCH /api/goals/{id}", s.handleUpdateGoal)
	mux.HandleFunc("DELETE /api/goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("POST /api/goals/{id}/contributions", s.handleContribute)

	mux.HandleFunc("POST /api/budgets", s.handleCreateBudget)
	mux.HandleFunc("PATCH /api/budgets/{id}", s.handleUpdateBudget)
	mux.HandleFunc("DELETE /api/budgets/{id}", s.handleDeleteBudget)

	mux.HandleFunc("PUT /api/profile", s.handleSetProfile)
	mux.HandleFunc("DELETE /api/profile", s.handleDeleteProfile)
	mux.HandleFunc("PUT /api/preferences", s.handleSetPreferences)

	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("POST /api/session", s.handleSignIn)
	mux.HandleFunc("DELETE /api/session", s.handleSignOut)
	mux.HandleFunc("POST /api/onboarding", s.handleCompleteOnboarding)
	mux.HandleFunc("POST /api/welcome", s.handleWelcomeSeen)

	mux.HandleFunc("GET /api/assistant", s.handleGetAssistant)
	mux.HandleFunc("PUT /api/assistant", s.handleSetAssistant)
	mux.HandleFunc("POST /api/assistant/ask", s.handleAsk)

	detector := security.NewDetector(logger)
	tracer := trace.NewMiddleware(logger, detector.ExtractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.limiter.Middleware(detector.ExtractClientIP, ratelimit.Mutating, func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, detector.ExtractClientIP(r), log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
	})

	// outermost first
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           tracer.Middleware(headers.Middleware(detector.Middleware(limit(mux)))),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the server and the limiter's cleanup goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.storage.(kv.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Storage not ready", log.FieldError, err)
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
