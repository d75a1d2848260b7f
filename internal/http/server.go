// Package http serves the remote transaction store as a JSON API. Every
// /api route is scoped to the owner resolved from the x-auth-token header.
package http

import (
	"context"
	"net/http"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/remote"
	"fintrack/internal/remote/httpapi"
	"fintrack/internal/storage"
)

// BudgetStore persists per-owner monthly budget limits.
type BudgetStore interface {
	ListBudgets(ctx context.Context, owner, month string) ([]storage.BudgetRecord, error)
	UpsertBudget(ctx context.Context, owner string, l core.BudgetLimit, month string) (storage.BudgetRecord, error)
	DeleteBudget(ctx context.Context, owner, scope, month string) error
}

// CategoryStore persists each owner's managed categories.
type CategoryStore interface {
	ListCategories(ctx context.Context, owner string) ([]core.Category, error)
	CreateCategory(ctx context.Context, owner string, c core.Category) (core.Category, error)
	DeleteCategory(ctx context.Context, owner, id string) error
}

type Config struct {
	Addr string
	// Store receives the resolved owner id as its token.
	Store remote.Client
	// Budgets and Categories are optional; without them their routes
	// answer 501.
	Budgets    BudgetStore
	Categories CategoryStore
	// Ready backs /readyz. Nil means always ready.
	Ready func(ctx context.Context) error
	// Tokens maps auth tokens to owner ids.
	Tokens             map[string]string
	RateLimitPerMinute int
	// TrustedProxies are CIDRs whose forwarding headers are honoured.
	TrustedProxies []string
	Logger         *log.Logger
}

type Server struct {
	http.Server

	store      remote.Client
	budgets    BudgetStore
	categories CategoryStore
	ready      func(ctx context.Context) error
	tokens     map[string]string
	logger     *log.Logger

	limiter      *ratelimit.Limiter
	detector     *security.Detector
	listCache    *cache.LRUCache[[]core.Transaction]
	cacheManager *cache.Manager
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	rl := ratelimit.DefaultConfig()
	if cfg.RateLimitPerMinute > 0 {
		rl.RequestsPerMinute = cfg.RateLimitPerMinute
	}

	s := &Server{
		store:        cfg.Store,
		budgets:      cfg.Budgets,
		categories:   cfg.Categories,
		ready:        cfg.Ready,
		tokens:       cfg.Tokens,
		logger:       logger,
		limiter:      ratelimit.NewLimiter(rl),
		detector:     security.NewDetector(),
		listCache:    cache.NewLRUCache[[]core.Transaction](200, 2*time.Minute),
		cacheManager: cache.NewManager(logger),
	}
	for _, cidr := range cfg.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}

	s.cacheManager.Register(s.listCache)
	s.cacheManager.StartCleanup(5 * time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /api/transactions", s.withAuth(s.handleList))
	mux.Handle("POST /api/transactions", s.withAuth(s.handleCreate))
	mux.Handle("PUT /api/transactions/{id}", s.withAuth(s.handleUpdate))
	mux.Handle("DELETE /api/transactions/{id}", s.withAuth(s.handleDelete))
	mux.Handle("GET /api/budgets", s.withAuth(s.handleListBudgets))
	mux.Handle("POST /api/budgets", s.withAuth(s.handleUpsertBudget))
	mux.Handle("DELETE /api/budgets/{category}", s.withAuth(s.handleDeleteBudget))
	mux.Handle("GET /api/categories", s.withAuth(s.handleListCategories))
	mux.Handle("POST /api/categories", s.withAuth(s.handleCreateCategory))
	mux.Handle("DELETE /api/categories/{id}", s.withAuth(s.handleDeleteCategory))

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		writeMsg(w, http.StatusTooManyRequests, "Too many requests")
	})(h)
	h = s.detector.Middleware(func(w http.ResponseWriter, r *http.Request) {
		log.FromContext(r.Context()).Warn("Suspicious request rejected", "path", r.URL.Path, "method", r.Method)
		writeMsg(w, http.StatusBadRequest, "Bad request")
	})(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.Middleware(logger, s.detector.ExtractClientIP)(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown drains connections, then stops the background cleanup loops.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	s.limiter.Stop()
	s.cacheManager.Stop()

	m := s.limiter.GetMetrics()
	s.logger.Info("HTTP server stopped",
		"rate_limited", m.Rejected,
		"suspicious", s.detector.GetMetrics().SuspiciousRequests,
	)
	return err
}

type ownerKey struct{}

// withAuth resolves the token header to an owner or answers 401.
func (s *Server) withAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, ok := s.tokens[r.Header.Get(httpapi.TokenHeader)]
		if !ok || owner == "" {
			writeMsg(w, http.StatusUnauthorized, msgNotAuthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		next(w, r.WithContext(ctx))
	})
}

func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			log.FromContext(r.Context()).Warn("Readiness check failed", log.FieldError, err)
			writeMsg(w, http.StatusServiceUnavailable, "Not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
