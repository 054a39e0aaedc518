package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"tasktrack.dev/internal/auth"
	"tasktrack.dev/internal/obs"
	"tasktrack.dev/internal/ratelimit"
	"tasktrack.dev/internal/stream"
	"tasktrack.dev/internal/tasks"
)

const serviceName = "tasktrack-api"

// ReadyProbe is a readiness check, typically a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// API is the HTTP layer.
type API struct {
	router    chi.Router
	readiness readinessChecker
	version   string
	started   time.Time

	auth     *auth.Service
	accounts *auth.AccountService
	tasks    *tasks.Manager

	events     *stream.Broker
	limiter    ratelimit.Limiter
	trustProxy bool
	devMode    bool
	log        logrus.FieldLogger
}

// Option configures API.
type Option func(*API)

// WithDevMode exposes error causes in 401 bodies.
func WithDevMode(on bool) Option {
	return func(a *API) { a.devMode = on }
}

// WithLimiter replaces the default per-IP limiter. Nil disables rate limiting.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(a *API) { a.limiter = l }
}

// WithTrustedProxy keys rate limits on X-Forwarded-For instead of the peer
// address. Only enable behind a proxy that sets the header.
func WithTrustedProxy(on bool) Option {
	return func(a *API) { a.trustProxy = on }
}

// WithEvents enables GET /api/tasks/events backed by broker.
func WithEvents(broker *stream.Broker) Option {
	return func(a *API) { a.events = broker }
}

// WithLogger overrides the logger used for server-side error detail.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *API) {
		if l != nil {
			a.log = l
		}
	}
}

func New(rp readinessChecker, version string, authSvc *auth.Service, accounts *auth.AccountService, taskMgr *tasks.Manager, opts ...Option) *API {
	a := &API{
		readiness: rp,
		version:   version,
		started:   time.Now(),
		auth:      authSvc,
		accounts:  accounts,
		tasks:     taskMgr,
		limiter:   ratelimit.NewLocal(20, 10),
		log:       obs.Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// health/ready
	r.Get("/health", a.Health)
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)

	// Prometheus metrics
	r.Handle("/metrics", obs.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.Post("/login", a.handleLogin)
			r.Post("/refresh-token", a.handleRefresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Get("/users/me", a.handleProfile)
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(auth.RoleAdmin))
				r.Get("/users", a.handleListUsers)
				r.Put("/users/{id}", a.handleUpdateUser)
				r.Delete("/users/{id}", a.handleDeleteUser)
			})

			r.Post("/tasks", a.handleCreateTask)
			r.Get("/tasks", a.handleListTasks)
			r.Get("/tasks/events", a.Stream)
			r.Put("/tasks/{id}", a.handleUpdateTask)
			r.Delete("/tasks/{id}", a.handleDeleteTask)
			r.Post("/tasks/{id}/comments", a.handleAddComment)
			r.Get("/tasks/{id}/comments", a.handleListComments)
		})
	})
	return r
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.router)
	if a.limiter != nil {
		h = RateLimit(h, a.limiter, a.trustProxy)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Recover(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return otelhttp.NewHandler(h, serviceName)
}

// --- Handlers ---

// Health reports liveness with uptime, without touching dependencies.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"service":        serviceName,
		"version":        a.version,
		"uptime_seconds": int64(time.Since(a.started).Seconds()),
		"time":           time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readiness.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
